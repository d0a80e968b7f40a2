package ctrl

import "time"

// WorkerState is the lifecycle state of a registered worker.
type WorkerState string

const (
	StateInitializing WorkerState = "initializing"
	StateReady        WorkerState = "ready"
	StateCompiling    WorkerState = "compiling"
)

// ParseWorkerState maps a wire state string to a WorkerState.
func ParseWorkerState(s string) (WorkerState, bool) {
	switch WorkerState(s) {
	case StateInitializing, StateReady, StateCompiling:
		return WorkerState(s), true
	}
	return "", false
}

// Worker is the registry record for one connected worker.
type Worker struct {
	ID           string
	Name         string
	Channel      *Channel
	State        WorkerState
	LastActivity time.Time
	LastSeen     time.Time
	LastClient   string
	LastLibs     LibSet

	// seq is the registration order, used as the stable tie-break
	// when scheduling ranks are otherwise equal.
	seq uint64
}

// Registry is the authoritative worker map. It is owned by the router
// and only ever touched from the event loop, so it carries no lock.
type Registry struct {
	workers   map[string]*Worker
	byChannel map[*Channel]*Worker
	nextSeq   uint64
	now       func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		workers:   make(map[string]*Worker),
		byChannel: make(map[*Channel]*Worker),
		now:       time.Now,
	}
}

// Register inserts a worker in state initializing. A re-registration
// under an existing id replaces the previous record; the displaced
// record is returned so the caller can run its teardown (its old
// connection is dead weight and any dispatch it held must fail).
func (r *Registry) Register(id, name string, ch *Channel) (w, displaced *Worker) {
	if prev, ok := r.workers[id]; ok {
		displaced = prev
		delete(r.byChannel, prev.Channel)
	}
	now := r.now()
	w = &Worker{
		ID:           id,
		Name:         name,
		Channel:      ch,
		State:        StateInitializing,
		LastActivity: now,
		LastSeen:     now,
		LastLibs:     LibSet{},
		seq:          r.nextSeq,
	}
	r.nextSeq++
	r.workers[id] = w
	r.byChannel[ch] = w
	return w, displaced
}

// Unregister removes a worker by id and returns the removed record,
// or nil if the id is unknown.
func (r *Registry) Unregister(id string) *Worker {
	w, ok := r.workers[id]
	if !ok {
		return nil
	}
	delete(r.workers, id)
	delete(r.byChannel, w.Channel)
	return w
}

// RemoveByChannel removes the worker bound to ch, if any.
func (r *Registry) RemoveByChannel(ch *Channel) *Worker {
	w, ok := r.byChannel[ch]
	if !ok {
		return nil
	}
	delete(r.workers, w.ID)
	delete(r.byChannel, ch)
	return w
}

func (r *Registry) Get(id string) *Worker {
	return r.workers[id]
}

// UpdateState sets the worker state and stamps LastActivity. No-op
// for unknown ids.
func (r *Registry) UpdateState(id string, st WorkerState) *Worker {
	w, ok := r.workers[id]
	if !ok {
		return nil
	}
	w.State = st
	w.LastActivity = r.now()
	return w
}

// Touch records heartbeat activity. No-op for unknown ids.
func (r *Registry) Touch(id string) bool {
	w, ok := r.workers[id]
	if !ok {
		return false
	}
	w.LastSeen = r.now()
	return true
}

// Ready returns the workers currently able to accept a job.
func (r *Registry) Ready() []*Worker {
	var res []*Worker
	for _, w := range r.workers {
		if w.State == StateReady {
			res = append(res, w)
		}
	}
	return res
}

// All returns every registered worker, in no particular order.
func (r *Registry) All() []*Worker {
	res := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		res = append(res, w)
	}
	return res
}

func (r *Registry) Len() int {
	return len(r.workers)
}
