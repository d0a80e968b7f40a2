// Package catalogsrc provides the fetch collaborators the library
// catalog refreshes from. A source yields a raw list of approved
// library identifiers; the router decides what to do with it.
package catalogsrc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/forgepool/forgepool/internal/ctrl"
)

// ParseList splits newline-separated library identifiers. Blank lines
// and '#' comments are skipped.
func ParseList(raw string) []string {
	var ids []string
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	return ids
}

// FileSource reads the library list from a file on disk.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(ctx context.Context) ([]string, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	return ParseList(string(b)), nil
}

// HTTPSource fetches the library list from a URL.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (s HTTPSource) Fetch(ctx context.Context) ([]string, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog fetch: unexpected status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return ParseList(string(b)), nil
}

// New builds a fetcher from a configured source string: redis URLs go
// to the redis source, http(s) URLs to the HTTP source, anything else
// is a file path.
func New(source, redisKey string) (ctrl.Fetcher, error) {
	switch {
	case source == "":
		return nil, fmt.Errorf("catalog source not configured")
	case strings.HasPrefix(source, "redis://") || strings.HasPrefix(source, "rediss://"):
		return NewRedisSource(source, redisKey)
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		return HTTPSource{URL: source}, nil
	default:
		return FileSource{Path: source}, nil
	}
}
