package ctrl

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/forgepool/forgepool/internal/logx"
)

// WSHandler accepts worker control connections. The first frame must
// be a register message; afterwards the connection is a straight
// translation layer between wire frames and router events. The read
// loop exiting for any reason posts the channel-termination signal,
// which is the single removal path for the worker.
func WSHandler(rt *Router, workerKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provided := ""
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			provided = strings.TrimPrefix(auth, "Bearer ")
		}
		if provided == "" {
			provided = r.URL.Query().Get("worker_key")
		}
		if workerKey != "" && provided != workerKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		defer c.Close(websocket.StatusInternalError, "server error")

		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &env); err != nil || env.Type != "register" {
			c.Close(websocket.StatusPolicyViolation, "expected register")
			return
		}
		var rm RegisterMessage
		if err := json.Unmarshal(data, &rm); err != nil {
			return
		}
		if workerKey != "" && rm.WorkerKey != workerKey {
			c.Close(websocket.StatusPolicyViolation, "unauthorized")
			return
		}
		if rm.WorkerID == "" {
			rm.WorkerID = uuid.NewString()
		}
		name := rm.WorkerName
		if name == "" {
			name = rm.WorkerID
			if len(name) > 8 {
				name = name[:8]
			}
		}

		ch := NewChannel(rt.Options().ChannelBuffer, func() { _ = c.CloseNow() })
		rt.Post(RegisterEvent{WorkerID: rm.WorkerID, WorkerName: name, Channel: ch})
		logx.Log.Info().Str("worker_id", rm.WorkerID).Str("remote_addr", r.RemoteAddr).Msg("worker connected")
		defer rt.Post(ChannelTerminatedEvent{Channel: ch})

		go func() {
			for msg := range ch.Out() {
				b, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				if err := c.Write(ctx, websocket.MessageText, b); err != nil {
					// Keep draining so the router's sends never wedge;
					// the read loop tears the connection down.
					continue
				}
			}
		}()

		readLoop(ctx, c, rt, rm.WorkerID)
	}
}

func readLoop(ctx context.Context, c *websocket.Conn, rt *Router, workerID string) {
	for {
		_, msg, err := c.Read(ctx)
		if err != nil {
			return
		}
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}
		switch env.Type {
		case "heartbeat":
			rt.Post(HeartbeatEvent{WorkerID: workerID})
		case "status":
			var m StatusMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				continue
			}
			if st, ok := ParseWorkerState(m.State); ok {
				rt.Post(StateUpdateEvent{WorkerID: workerID, State: st})
			}
		case "unregister":
			rt.Post(UnregisterEvent{WorkerID: workerID})
			return
		case "compile_result":
			var m CompileResultMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				continue
			}
			rt.Post(WorkerResultEvent{WorkerID: workerID, Result: CompileResult{ID: m.RequestID, Output: m.Output}})
		case "compile_error":
			var m CompileErrorMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				continue
			}
			code := m.Code
			if code == "" {
				code = CodeWorkerError
			}
			rt.Post(WorkerResultEvent{WorkerID: workerID, Result: CompileResult{ID: m.RequestID, Err: &JobError{Code: code, Message: m.Message}}})
		default:
			logx.Log.Debug().Str("type", env.Type).Str("worker_id", workerID).Msg("unknown frame dropped")
		}
	}
}
