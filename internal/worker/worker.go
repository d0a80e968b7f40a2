package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/forgepool/forgepool/internal/config"
	"github.com/forgepool/forgepool/internal/ctrl"
	"github.com/forgepool/forgepool/internal/logx"
	"github.com/forgepool/forgepool/internal/reconnect"
)

var buildVersion = "dev"

// Run starts the worker agent and blocks until ctx is canceled or the
// connection is lost with reconnection disabled.
func Run(ctx context.Context, cfg config.WorkerConfig) error {
	comp := &Compiler{Cmd: cfg.CompilerCmd, Reload: cfg.ReloadCmd}
	attempt := 0
	for {
		connected, err := connectAndServe(ctx, cfg, comp)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil || !cfg.Reconnect {
			return err
		}
		if connected {
			attempt = 0
		}
		delay := reconnect.Delay(attempt)
		attempt++
		logx.Log.Warn().Dur("backoff", delay).Err(err).Msg("connection to server lost; retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// connectAndServe runs one connection lifecycle: dial, register,
// heartbeat, serve jobs until the connection drops. The bool reports
// whether registration got far enough to count as a fresh session for
// backoff purposes.
func connectAndServe(ctx context.Context, cfg config.WorkerConfig, comp *Compiler) (bool, error) {
	// connCtx outlives ctx by a moment so the unregister frame below
	// can still go out during shutdown.
	connCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws, _, err := websocket.Dial(ctx, cfg.ServerURL, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = ws.Close(websocket.StatusInternalError, "closing") }()
	logx.Log.Info().Str("server", cfg.ServerURL).Msg("connected to server")

	cpus, memBytes := hostInfo()
	regMsg := ctrl.RegisterMessage{
		Type:        "register",
		WorkerID:    cfg.WorkerID,
		WorkerName:  cfg.WorkerName,
		WorkerKey:   cfg.WorkerKey,
		Version:     buildVersion,
		CPUCount:    cpus,
		MemoryBytes: memBytes,
	}
	b, _ := json.Marshal(regMsg)
	if err := ws.Write(connCtx, websocket.MessageText, b); err != nil {
		return false, err
	}

	sendCh := make(chan any, 16)
	go func() {
		defer cancel()
		for {
			select {
			case msg := <-sendCh:
				b, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				if err := ws.Write(connCtx, websocket.MessageText, b); err != nil {
					return
				}
			case <-connCtx.Done():
				return
			}
		}
	}()

	send := func(msg any) {
		select {
		case sendCh <- msg:
		case <-connCtx.Done():
		}
	}

	// Graceful shutdown: announce departure so the server drops the
	// record right away instead of waiting out the heartbeat expiry.
	go func() {
		select {
		case <-ctx.Done():
			send(ctrl.UnregisterMessage{Type: "unregister"})
			time.Sleep(100 * time.Millisecond)
			cancel()
		case <-connCtx.Done():
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				send(ctrl.HeartbeatMessage{Type: "heartbeat", TS: time.Now().UnixMilli()})
			case <-connCtx.Done():
				return
			}
		}
	}()

	// Registration done; announce readiness.
	send(ctrl.StatusMessage{Type: "status", State: string(ctrl.StateReady)})

	// jobMu serializes compiles: the server dispatches one job per
	// worker, and the reload command must not race a running compile.
	var jobMu sync.Mutex

	for {
		_, msg, err := ws.Read(connCtx)
		if err != nil {
			return true, err
		}
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}
		switch env.Type {
		case "compile_job":
			var m ctrl.CompileJobMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				continue
			}
			go func() {
				jobMu.Lock()
				defer jobMu.Unlock()
				send(ctrl.StatusMessage{Type: "status", State: string(ctrl.StateCompiling)})
				out, err := comp.Compile(connCtx, m.Source)
				if err != nil {
					logx.Log.Warn().Str("request_id", m.RequestID).Err(err).Msg("compile failed")
					send(ctrl.CompileErrorMessage{Type: "compile_error", RequestID: m.RequestID, Code: ctrl.CodeWorkerError, Message: err.Error()})
				} else {
					send(ctrl.CompileResultMessage{Type: "compile_result", RequestID: m.RequestID, Output: out})
				}
				send(ctrl.StatusMessage{Type: "status", State: string(ctrl.StateReady)})
			}()
		case "update_libraries":
			var m ctrl.UpdateLibrariesMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				continue
			}
			go func() {
				jobMu.Lock()
				defer jobMu.Unlock()
				if err := comp.ReloadLibraries(connCtx, m.Libraries); err != nil {
					logx.Log.Warn().Err(err).Msg("library reload failed")
					return
				}
				logx.Log.Info().Int("libraries", len(m.Libraries)).Msg("library environment updated")
			}()
		case "cancel_job":
			// Advisory only; a running compile is not interruptible,
			// so the job finishes and reports as usual.
			logx.Log.Debug().Msg("cancel_job ignored")
		default:
			logx.Log.Debug().Str("type", env.Type).Msg("unknown frame dropped")
		}
	}
}
