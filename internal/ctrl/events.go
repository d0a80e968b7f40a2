package ctrl

// Event is one message on the router inbox. Every external stimulus
// is an Event; the router processes them strictly one at a time.
type Event interface {
	event()
}

type RegisterEvent struct {
	WorkerID   string
	WorkerName string
	Channel    *Channel
}

type UnregisterEvent struct {
	WorkerID string
}

type HeartbeatEvent struct {
	WorkerID string
}

type StateUpdateEvent struct {
	WorkerID string
	State    WorkerState
}

type WorkerReadyEvent struct {
	WorkerID string
}

type CompileRequestEvent struct {
	RequestID string
	Source    string
	Client    string
	Reply     chan CompileResult
}

type CancelCompileEvent struct {
	RequestID string
}

type WorkerResultEvent struct {
	WorkerID string
	Result   CompileResult
}

type RefreshCatalogTickEvent struct{}

type LivenessTickEvent struct{}

// ChannelTerminatedEvent is the transport's death signal for a worker
// connection. Worker removal is single-sourced through this path.
type ChannelTerminatedEvent struct {
	Channel *Channel
}

// SnapshotEvent requests a point-in-time view of router state,
// serialized through the loop like everything else.
type SnapshotEvent struct {
	Reply chan Snapshot
}

// catalogFetchedEvent re-enters the loop when an off-loop catalog
// fetch completes.
type catalogFetchedEvent struct {
	libs []string
	err  error
}

func (RegisterEvent) event()           {}
func (UnregisterEvent) event()         {}
func (HeartbeatEvent) event()          {}
func (StateUpdateEvent) event()        {}
func (WorkerReadyEvent) event()        {}
func (CompileRequestEvent) event()     {}
func (CancelCompileEvent) event()      {}
func (WorkerResultEvent) event()       {}
func (RefreshCatalogTickEvent) event() {}
func (LivenessTickEvent) event()       {}
func (ChannelTerminatedEvent) event()  {}
func (SnapshotEvent) event()           {}
func (catalogFetchedEvent) event()     {}
