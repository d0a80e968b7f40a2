package ctrl

import (
	"context"
	"errors"
	"time"

	"github.com/forgepool/forgepool/internal/logx"
)

const (
	HeartbeatInterval = 5 * time.Second
	HeartbeatExpiry   = 3 * HeartbeatInterval
)

// Options tunes the router's timers. Zero values take defaults.
type Options struct {
	CatalogRefreshInterval time.Duration
	CatalogRetryInterval   time.Duration
	LivenessInterval       time.Duration
	// LivenessGrace delays the first liveness sweep so slow workers
	// can finish starting up. Must exceed LivenessInterval.
	LivenessGrace   time.Duration
	HeartbeatExpiry time.Duration
	ChannelBuffer   int
}

func (o *Options) setDefaults() {
	if o.CatalogRefreshInterval == 0 {
		o.CatalogRefreshInterval = 5 * time.Minute
	}
	if o.CatalogRetryInterval == 0 {
		o.CatalogRetryInterval = 15 * time.Second
	}
	if o.LivenessInterval == 0 {
		o.LivenessInterval = HeartbeatInterval
	}
	if o.LivenessGrace <= o.LivenessInterval {
		o.LivenessGrace = 3 * o.LivenessInterval
	}
	if o.HeartbeatExpiry == 0 {
		o.HeartbeatExpiry = HeartbeatExpiry
	}
	if o.ChannelBuffer == 0 {
		o.ChannelBuffer = 32
	}
}

// Router owns the registry, queue, pending-dispatch map and catalog,
// and dispatches every inbound event to the right component. All
// state is confined to the event loop; mutual exclusion is structural,
// not lock-based. No handler blocks: catalog fetches and worker sends
// are asynchronous, their completions re-entering as new events.
type Router struct {
	inbox   chan Event
	reg     *Registry
	queue   *RequestQueue
	catalog *Catalog
	sched   *Scheduler
	fetcher Fetcher
	opts    Options

	// pending maps worker id to its one in-flight job. An id is
	// present iff the worker is compiling.
	pending map[string]pendingDispatch

	fetching bool
	now      func() time.Time
}

type pendingDispatch struct {
	requestID string
	reply     chan CompileResult
}

func New(fetcher Fetcher, defaultLibs []string, opts Options) *Router {
	opts.setDefaults()
	reg := NewRegistry()
	catalog := NewCatalog(defaultLibs)
	return &Router{
		inbox:   make(chan Event, 256),
		reg:     reg,
		queue:   NewRequestQueue(),
		catalog: catalog,
		sched:   NewScheduler(reg, catalog),
		fetcher: fetcher,
		opts:    opts,
		pending: make(map[string]pendingDispatch),
		now:     time.Now,
	}
}

// Options returns the effective (defaulted) option set.
func (r *Router) Options() Options {
	return r.opts
}

// Post delivers an event to the loop. Safe from any goroutine.
func (r *Router) Post(ev Event) {
	r.inbox <- ev
}

// Run drains the inbox until ctx is canceled. It kicks the initial
// catalog refresh and schedules the first liveness sweep after the
// grace period.
func (r *Router) Run(ctx context.Context) {
	r.handle(ctx, RefreshCatalogTickEvent{})
	r.schedule(r.opts.LivenessGrace, LivenessTickEvent{})
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.inbox:
			r.handle(ctx, ev)
		}
	}
}

// schedule posts ev after d from a timer goroutine.
func (r *Router) schedule(d time.Duration, ev Event) {
	time.AfterFunc(d, func() { r.Post(ev) })
}

func (r *Router) handle(ctx context.Context, ev Event) {
	switch ev := ev.(type) {
	case RegisterEvent:
		r.handleRegister(ev)
	case UnregisterEvent:
		r.removeWorker(r.reg.Unregister(ev.WorkerID), "unregistered")
	case ChannelTerminatedEvent:
		r.removeWorker(r.reg.RemoveByChannel(ev.Channel), "channel terminated")
	case HeartbeatEvent:
		r.reg.Touch(ev.WorkerID)
	case StateUpdateEvent:
		r.handleStateUpdate(ev.WorkerID, ev.State)
	case WorkerReadyEvent:
		r.handleStateUpdate(ev.WorkerID, StateReady)
	case CompileRequestEvent:
		r.queue.Push(&PendingRequest{
			ID:         ev.RequestID,
			Source:     ev.Source,
			Client:     ev.Client,
			Reply:      ev.Reply,
			EnqueuedAt: r.now(),
		})
		r.processQueue()
	case CancelCompileEvent:
		r.handleCancel(ev.RequestID)
	case WorkerResultEvent:
		r.handleWorkerResult(ev)
	case RefreshCatalogTickEvent:
		r.handleCatalogTick(ctx)
	case catalogFetchedEvent:
		r.handleCatalogFetched(ev)
	case LivenessTickEvent:
		r.handleLivenessTick()
	case SnapshotEvent:
		select {
		case ev.Reply <- r.snapshot():
		default:
		}
	default:
		logx.Log.Warn().Type("event", ev).Msg("unknown event dropped")
	}
	queueDepth.Set(float64(r.queue.Len()))
	workersConnected.Set(float64(r.reg.Len()))
}

func (r *Router) handleRegister(ev RegisterEvent) {
	w, old := r.reg.Register(ev.WorkerID, ev.WorkerName, ev.Channel)
	if old != nil {
		// Reconnect under the same id: the previous record goes
		// through the full removal path so a dispatch it held fails
		// instead of dangling against the new, initializing record.
		r.removeWorker(old, "replaced by new connection")
	}
	logx.Log.Info().Str("worker_id", w.ID).Str("worker_name", w.Name).Msg("worker registered")
	w.Channel.TrySend(UpdateLibrariesMessage{Type: "update_libraries", Libraries: r.catalog.Libraries()})
	r.processQueue()
}

// removeWorker finishes any removal path: a pending dispatch left
// behind is failed rather than letting its caller hang, and the
// outbound channel is closed. Tolerates w == nil so every removal
// operation stays idempotent.
func (r *Router) removeWorker(w *Worker, reason string) {
	if w == nil {
		return
	}
	logx.Log.Info().Str("worker_id", w.ID).Str("reason", reason).Msg("worker removed")
	r.failPending(w.ID, "worker removed while compiling")
	w.Channel.Close()
}

func (r *Router) handleStateUpdate(id string, st WorkerState) {
	w := r.reg.Get(id)
	if w == nil {
		return
	}
	prev := w.State
	r.reg.UpdateState(id, st)
	if prev == StateCompiling && st != StateCompiling {
		// The worker walked away from its job; its caller must not hang.
		r.failPending(id, "worker abandoned job")
	}
	if st == StateReady {
		r.processQueue()
	}
}

func (r *Router) handleWorkerResult(ev WorkerResultEvent) {
	if w := r.reg.Get(ev.WorkerID); w != nil {
		w.State = StateReady
		w.LastActivity = r.now()
	}
	pd, ok := r.pending[ev.WorkerID]
	if ok {
		delete(r.pending, ev.WorkerID)
		outcome := "ok"
		if ev.Result.Err != nil {
			outcome = ev.Result.Err.Code
		}
		requestsTotal.WithLabelValues(outcome).Inc()
		deliver(pd.reply, ev.Result)
	} else {
		logx.Log.Warn().Str("worker_id", ev.WorkerID).Str("request_id", ev.Result.ID).Msg("result without pending dispatch")
	}
	r.processQueue()
}

// processQueue drains the queue head against ready workers. Strict
// FIFO: the head either dispatches, fails terminally, or blocks the
// queue until a worker frees up.
func (r *Router) processQueue() {
	for {
		head := r.queue.Peek()
		if head == nil {
			return
		}
		libs := ExtractLibraries(head.Source)
		w, err := r.sched.SelectWorker(libs)
		switch {
		case err != nil:
			r.queue.Pop()
			requestsTotal.WithLabelValues(CodeUnsupportedLibrary).Inc()
			deliver(head.Reply, CompileResult{ID: head.ID, Err: &JobError{Code: CodeUnsupportedLibrary, Message: err.Error()}})
		case w != nil:
			r.queue.Pop()
			r.dispatch(head, w, libs)
		case r.reg.Len() == 0:
			r.queue.Pop()
			requestsTotal.WithLabelValues(CodeNoWorkers).Inc()
			deliver(head.Reply, CompileResult{ID: head.ID, Err: &JobError{Code: CodeNoWorkers, Message: ErrNoWorkers.Error()}})
		default:
			// Workers exist but none is ready; wait for one to free up.
			return
		}
	}
}

func (r *Router) dispatch(req *PendingRequest, w *Worker, libs LibSet) {
	job := CompileJobMessage{Type: "compile_job", RequestID: req.ID, Source: req.Source}
	if !w.Channel.TrySend(job) {
		// Control stream saturated; tear the worker down and let the
		// request wait for another candidate.
		logx.Log.Warn().Str("worker_id", w.ID).Msg("send buffer full, terminating worker")
		w.State = StateInitializing
		w.Channel.Terminate()
		r.queue.PushFront(req)
		return
	}
	w.State = StateCompiling
	w.LastActivity = r.now()
	w.LastClient = req.Client
	w.LastLibs = libs
	r.pending[w.ID] = pendingDispatch{requestID: req.ID, reply: req.Reply}
	dispatchesTotal.Inc()
	logx.Log.Info().Str("request_id", req.ID).Str("worker_id", w.ID).Strs("libraries", libs.Sorted()).Msg("dispatch")
}

func (r *Router) failPending(workerID, msg string) {
	pd, ok := r.pending[workerID]
	if !ok {
		return
	}
	delete(r.pending, workerID)
	requestsTotal.WithLabelValues(CodeWorkerLost).Inc()
	deliver(pd.reply, CompileResult{ID: pd.requestID, Err: &JobError{Code: CodeWorkerLost, Message: msg}})
}

// handleCancel removes a queued request. For an already dispatched
// request the cancel is advisory: the worker is told, but the job
// still resolves through the normal result path.
func (r *Router) handleCancel(requestID string) {
	if r.queue.Cancel(requestID) {
		logx.Log.Debug().Str("request_id", requestID).Msg("canceled queued request")
		return
	}
	for id, pd := range r.pending {
		if pd.requestID != requestID {
			continue
		}
		if w := r.reg.Get(id); w != nil {
			w.Channel.TrySend(CancelJobMessage{Type: "cancel_job", RequestID: requestID})
		}
		return
	}
}

func (r *Router) handleCatalogTick(ctx context.Context) {
	if r.fetching {
		return
	}
	r.fetching = true
	go func() {
		libs, err := r.fetcher.Fetch(ctx)
		r.Post(catalogFetchedEvent{libs: libs, err: err})
	}()
}

func (r *Router) handleCatalogFetched(ev catalogFetchedEvent) {
	r.fetching = false
	outcome := r.catalog.Apply(ev.libs, ev.err)
	catalogRefreshTotal.WithLabelValues(string(outcome)).Inc()
	switch outcome {
	case RefreshInstalled:
		logx.Log.Info().Int("libraries", len(r.catalog.Current())).Msg("catalog installed")
		msg := UpdateLibrariesMessage{Type: "update_libraries", Libraries: r.catalog.Libraries()}
		for _, w := range r.reg.All() {
			if !w.Channel.TrySend(msg) {
				logx.Log.Warn().Str("worker_id", w.ID).Msg("dropped catalog push")
			}
		}
		r.schedule(r.opts.CatalogRefreshInterval, RefreshCatalogTickEvent{})
	case RefreshUnchanged:
		r.schedule(r.opts.CatalogRefreshInterval, RefreshCatalogTickEvent{})
	default:
		if ev.err != nil && !errors.Is(ev.err, context.Canceled) {
			logx.Log.Warn().Err(ev.err).Msg("catalog fetch failed")
		}
		r.schedule(r.opts.CatalogRetryInterval, RefreshCatalogTickEvent{})
	}
}

// handleLivenessTick force-terminates stale workers. Removal itself
// happens on the channel-termination path so it stays single-sourced.
func (r *Router) handleLivenessTick() {
	now := r.now()
	for _, w := range r.reg.All() {
		if now.Sub(w.LastSeen) > r.opts.HeartbeatExpiry {
			logx.Log.Warn().Str("worker_id", w.ID).Time("last_seen", w.LastSeen).Msg("worker stale, evicting")
			workerEvictionsTotal.Inc()
			w.Channel.Terminate()
		}
	}
	r.schedule(r.opts.LivenessInterval, LivenessTickEvent{})
}

// deliver sends the terminal reply without blocking the loop. Reply
// channels hold one slot and receive exactly one result, so a full
// buffer means the caller already got a reply.
func deliver(ch chan CompileResult, res CompileResult) {
	select {
	case ch <- res:
	default:
		logx.Log.Warn().Str("request_id", res.ID).Msg("reply dropped, channel full")
	}
}
