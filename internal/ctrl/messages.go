package ctrl

// Wire messages exchanged with workers over the control connection.
// All frames are JSON text with a discriminating "type" field.

type RegisterMessage struct {
	Type        string   `json:"type"`
	WorkerID    string   `json:"worker_id"`
	WorkerName  string   `json:"worker_name,omitempty"`
	WorkerKey   string   `json:"worker_key,omitempty"`
	Libraries   []string `json:"libraries,omitempty"`
	Version     string   `json:"version,omitempty"`
	CPUCount    int      `json:"cpu_count,omitempty"`
	MemoryBytes uint64   `json:"memory_bytes,omitempty"`
}

type HeartbeatMessage struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
}

type StatusMessage struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

type UnregisterMessage struct {
	Type string `json:"type"`
}

type CompileJobMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Source    string `json:"source"`
}

type CancelJobMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
}

type UpdateLibrariesMessage struct {
	Type      string   `json:"type"`
	Libraries []string `json:"libraries"`
}

type CompileResultMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Output    string `json:"output"`
}

type CompileErrorMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}
