package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/forgepool/forgepool/internal/ctrl"
	"github.com/forgepool/forgepool/internal/logx"
)

// NewRouter builds the client-facing API: submit, cancel, state.
func NewRouter(rt *ctrl.Router, apiKey string) chi.Router {
	r := chi.NewRouter()
	if apiKey != "" {
		r.Use(AuthMiddleware(apiKey))
	}
	r.Post("/compile", handleCompile(rt))
	r.Delete("/compile/{id}", handleCancel(rt))
	r.Get("/state", handleState(rt))
	return r
}

// CompileRequest is the submit payload. ID is optional; one is
// assigned when absent.
type CompileRequest struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
}

type errorResponse struct {
	Error ctrl.JobError `json:"error"`
}

func handleCompile(rt *ctrl.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CompileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Source == "" {
			http.Error(w, "source required", http.StatusBadRequest)
			return
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}
		reply := make(chan ctrl.CompileResult, 1)
		rt.Post(ctrl.CompileRequestEvent{
			RequestID: req.ID,
			Source:    req.Source,
			Client:    chiMiddleware.GetReqID(r.Context()),
			Reply:     reply,
		})

		select {
		case res := <-reply:
			writeResult(w, req.ID, res)
		case <-r.Context().Done():
			// The caller gave up; cancellation is advisory and only
			// effective while the request is still queued.
			rt.Post(ctrl.CancelCompileEvent{RequestID: req.ID})
			logx.Log.Debug().Str("request_id", req.ID).Msg("caller disconnected")
		}
	}
}

func handleCancel(rt *ctrl.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rt.Post(ctrl.CancelCompileEvent{RequestID: chi.URLParam(r, "id")})
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleState(rt *ctrl.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan ctrl.Snapshot, 1)
		rt.Post(ctrl.SnapshotEvent{Reply: reply})
		select {
		case snap := <-reply:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(snap)
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
			http.Error(w, "state unavailable", http.StatusServiceUnavailable)
		}
	}
}

func writeResult(w http.ResponseWriter, id string, res ctrl.CompileResult) {
	w.Header().Set("Content-Type", "application/json")
	if res.Err == nil {
		res.ID = id
		_ = json.NewEncoder(w).Encode(res)
		return
	}
	w.WriteHeader(statusForCode(res.Err.Code))
	_ = json.NewEncoder(w).Encode(errorResponse{Error: *res.Err})
}

func statusForCode(code string) int {
	switch code {
	case ctrl.CodeUnsupportedLibrary:
		return http.StatusBadRequest
	case ctrl.CodeNoWorkers:
		return http.StatusServiceUnavailable
	case ctrl.CodeWorkerError, ctrl.CodeWorkerLost:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
