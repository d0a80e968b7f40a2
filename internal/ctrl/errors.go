package ctrl

import "errors"

var (
	ErrUnsupportedLibrary = errors.New("unsupported library")
	ErrNoWorkers          = errors.New("no workers available")
)

// Terminal reply codes delivered to request callers.
const (
	CodeUnsupportedLibrary = "unsupported_library"
	CodeNoWorkers          = "no_workers_available"
	CodeWorkerError        = "worker_error"
	CodeWorkerLost         = "worker_lost"
)

// JobError is the failure half of a compile reply. Worker-reported
// errors are forwarded opaquely; the other codes originate here.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *JobError) Error() string {
	return e.Code + ": " + e.Message
}

// CompileResult is the single terminal reply for a compile request.
// Exactly one of Output or Err is meaningful.
type CompileResult struct {
	ID     string    `json:"id"`
	Output string    `json:"output,omitempty"`
	Err    *JobError `json:"error,omitempty"`
}
