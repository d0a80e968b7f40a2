package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/forgepool/forgepool/internal/config"
	"github.com/forgepool/forgepool/internal/ctrl"
)

func TestRoutes(t *testing.T) {
	rt := ctrl.New(ctrl.FetcherFunc(func(context.Context) ([]string, error) { return nil, nil }), nil, ctrl.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Run(ctx)

	var cfg config.ServerConfig
	cfg.SetDefaults()
	srv := httptest.NewServer(New(rt, cfg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz = %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "forgepool_workers_connected") {
		t.Fatalf("metrics missing gauges: %d", resp.StatusCode)
	}

	// worker endpoint rejects plain GETs but is mounted
	resp, err = http.Get(srv.URL + cfg.WSPath)
	if err != nil {
		t.Fatalf("ws path: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		t.Fatalf("worker endpoint not mounted")
	}
}
