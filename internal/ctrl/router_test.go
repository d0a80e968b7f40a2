package ctrl

import (
	"context"
	"testing"
	"time"
)

func newTestRouter(t *testing.T, libs ...string) *Router {
	t.Helper()
	rt := New(FetcherFunc(func(context.Context) ([]string, error) { return libs, nil }), nil, Options{})
	if len(libs) > 0 {
		rt.handle(context.Background(), catalogFetchedEvent{libs: libs})
	}
	return rt
}

func addWorker(t *testing.T, rt *Router, id string, terminated *bool) *Channel {
	t.Helper()
	ch := NewChannel(8, func() {
		if terminated != nil {
			*terminated = true
		}
	})
	rt.handle(context.Background(), RegisterEvent{WorkerID: id, WorkerName: id, Channel: ch})
	// every new connection gets the current catalog
	if _, ok := recvMsg(t, ch).(UpdateLibrariesMessage); !ok {
		t.Fatalf("expected update_libraries after register")
	}
	return ch
}

func markReady(rt *Router, id string) {
	rt.handle(context.Background(), StateUpdateEvent{WorkerID: id, State: StateReady})
}

func submit(rt *Router, id, source string) chan CompileResult {
	reply := make(chan CompileResult, 1)
	rt.handle(context.Background(), CompileRequestEvent{RequestID: id, Source: source, Reply: reply})
	return reply
}

func recvMsg(t *testing.T, ch *Channel) any {
	t.Helper()
	select {
	case m := <-ch.Out():
		return m
	default:
		t.Fatalf("no message queued on channel")
		return nil
	}
}

func recvReply(t *testing.T, reply chan CompileResult) CompileResult {
	t.Helper()
	select {
	case res := <-reply:
		return res
	default:
		t.Fatalf("no reply delivered")
		return CompileResult{}
	}
}

func expectNoReply(t *testing.T, reply chan CompileResult) {
	t.Helper()
	select {
	case res := <-reply:
		t.Fatalf("unexpected reply: %+v", res)
	default:
	}
}

func TestDispatchToReadyWorker(t *testing.T) {
	rt := newTestRouter(t, "A", "B")
	ch := addWorker(t, rt, "w1", nil)
	markReady(rt, "w1")

	reply := submit(rt, "r1", "// requires: A\n// requires: B\nmain")
	job, ok := recvMsg(t, ch).(CompileJobMessage)
	if !ok || job.RequestID != "r1" {
		t.Fatalf("expected compile_job for r1, got %+v", job)
	}
	w := rt.reg.Get("w1")
	if w.State != StateCompiling {
		t.Fatalf("state = %q; want compiling", w.State)
	}
	if _, ok := rt.pending["w1"]; !ok {
		t.Fatalf("pending dispatch not recorded")
	}
	if rt.queue.Len() != 0 {
		t.Fatalf("queue depth = %d; want 0", rt.queue.Len())
	}
	if !w.LastLibs.Equal(NewLibSet("A", "B")) {
		t.Fatalf("LastLibs not reserved to the request set: %v", w.LastLibs.Sorted())
	}
	expectNoReply(t, reply)

	rt.handle(context.Background(), WorkerResultEvent{WorkerID: "w1", Result: CompileResult{ID: "r1", Output: "ok"}})
	res := recvReply(t, reply)
	if res.Err != nil || res.Output != "ok" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if w.State != StateReady {
		t.Fatalf("worker not ready after result")
	}
	if _, ok := rt.pending["w1"]; ok {
		t.Fatalf("pending dispatch not cleared")
	}
}

func TestFIFOAcrossOneWorker(t *testing.T) {
	rt := newTestRouter(t, "A")
	ch := addWorker(t, rt, "w1", nil)
	markReady(rt, "w1")

	replyA := submit(rt, "ra", "x")
	replyB := submit(rt, "rb", "y")

	if job := recvMsg(t, ch).(CompileJobMessage); job.RequestID != "ra" {
		t.Fatalf("first dispatch = %s; want ra", job.RequestID)
	}
	if rt.queue.Len() != 1 {
		t.Fatalf("rb should be queued")
	}
	rt.handle(context.Background(), WorkerResultEvent{WorkerID: "w1", Result: CompileResult{ID: "ra", Output: "1"}})
	if recvReply(t, replyA).Output != "1" {
		t.Fatalf("ra reply wrong")
	}
	if job := recvMsg(t, ch).(CompileJobMessage); job.RequestID != "rb" {
		t.Fatalf("second dispatch = %s; want rb", job.RequestID)
	}
	expectNoReply(t, replyB)
}

func TestUnsupportedLibraryFastFail(t *testing.T) {
	rt := newTestRouter(t) // empty catalog
	addWorker(t, rt, "w1", nil)
	markReady(rt, "w1")

	reply := submit(rt, "r1", "// requires: libZ\n")
	res := recvReply(t, reply)
	if res.Err == nil || res.Err.Code != CodeUnsupportedLibrary {
		t.Fatalf("expected unsupported_library, got %+v", res)
	}
	if rt.queue.Len() != 0 {
		t.Fatalf("failed request must never enter the queue")
	}
	if rt.reg.Get("w1").State != StateReady {
		t.Fatalf("worker should be untouched")
	}
}

func TestUnsupportedHeadDoesNotBlockQueue(t *testing.T) {
	rt := newTestRouter(t, "A")
	ch := addWorker(t, rt, "w1", nil)
	markReady(rt, "w1")

	// both enqueued in one pass: bad head fails, good follower dispatches
	badReply := make(chan CompileResult, 1)
	goodReply := make(chan CompileResult, 1)
	rt.queue.Push(&PendingRequest{ID: "bad", Source: "// requires: libZ\n", Reply: badReply})
	rt.queue.Push(&PendingRequest{ID: "good", Source: "x", Reply: goodReply})
	rt.processQueue()

	if res := recvReply(t, badReply); res.Err == nil || res.Err.Code != CodeUnsupportedLibrary {
		t.Fatalf("bad head not failed: %+v", res)
	}
	if job := recvMsg(t, ch).(CompileJobMessage); job.RequestID != "good" {
		t.Fatalf("follower not dispatched, got %+v", job)
	}
}

func TestNoWorkersAvailable(t *testing.T) {
	rt := newTestRouter(t, "A")
	reply := submit(rt, "r1", "x")
	res := recvReply(t, reply)
	if res.Err == nil || res.Err.Code != CodeNoWorkers {
		t.Fatalf("expected no_workers_available, got %+v", res)
	}
}

func TestQueueBlocksUntilWorkerReady(t *testing.T) {
	rt := newTestRouter(t, "A")
	ch := addWorker(t, rt, "w1", nil) // still initializing

	reply := submit(rt, "r1", "x")
	expectNoReply(t, reply)
	if rt.queue.Len() != 1 {
		t.Fatalf("request should stay queued while no worker is ready")
	}

	markReady(rt, "w1")
	if job := recvMsg(t, ch).(CompileJobMessage); job.RequestID != "r1" {
		t.Fatalf("expected dispatch after ready, got %+v", job)
	}
}

func TestCancelQueuedRequest(t *testing.T) {
	rt := newTestRouter(t, "A")
	ch := addWorker(t, rt, "w1", nil)

	reply := submit(rt, "r1", "x")
	rt.handle(context.Background(), CancelCompileEvent{RequestID: "r1"})
	if rt.queue.Len() != 0 {
		t.Fatalf("cancel did not remove the queued request")
	}

	markReady(rt, "w1")
	select {
	case m := <-ch.Out():
		t.Fatalf("unexpected dispatch after cancel: %+v", m)
	default:
	}
	expectNoReply(t, reply)
}

func TestCancelDispatchedIsAdvisory(t *testing.T) {
	rt := newTestRouter(t, "A")
	ch := addWorker(t, rt, "w1", nil)
	markReady(rt, "w1")
	reply := submit(rt, "r1", "x")
	if job := recvMsg(t, ch).(CompileJobMessage); job.RequestID != "r1" {
		t.Fatalf("expected dispatch, got %+v", job)
	}

	rt.handle(context.Background(), CancelCompileEvent{RequestID: "r1"})
	if _, ok := rt.pending["w1"]; !ok {
		t.Fatalf("in-flight dispatch must survive cancellation")
	}
	if c, ok := recvMsg(t, ch).(CancelJobMessage); !ok || c.RequestID != "r1" {
		t.Fatalf("expected advisory cancel_job, got %+v", c)
	}
	rt.handle(context.Background(), WorkerResultEvent{WorkerID: "w1", Result: CompileResult{ID: "r1", Output: "ok"}})
	if recvReply(t, reply).Output != "ok" {
		t.Fatalf("dispatched request should still complete")
	}
}

func TestReregisterWhileCompilingFailsInflight(t *testing.T) {
	rt := newTestRouter(t, "A")
	old := addWorker(t, rt, "w1", nil)
	markReady(rt, "w1")
	reply := submit(rt, "r1", "x")
	if job := recvMsg(t, old).(CompileJobMessage); job.RequestID != "r1" {
		t.Fatalf("expected dispatch, got %+v", job)
	}

	// same id reconnects on a fresh channel while r1 is in flight
	nw := addWorker(t, rt, "w1", nil)

	res := recvReply(t, reply)
	if res.Err == nil || res.Err.Code != CodeWorkerLost {
		t.Fatalf("expected worker_lost for the abandoned job, got %+v", res)
	}
	if res.ID != "r1" {
		t.Fatalf("reply id = %q; want r1", res.ID)
	}
	if len(rt.pending) != 0 {
		t.Fatalf("pending dispatch survived re-registration")
	}
	w := rt.reg.Get("w1")
	if w == nil || w.Channel != nw || w.State != StateInitializing {
		t.Fatalf("new record not installed: %+v", w)
	}
	// the displaced channel was closed, so its writer drains out
	if _, ok := <-old.Out(); ok {
		t.Fatalf("old channel still open after replacement")
	}
	// the old connection's death signal must not evict the new record
	rt.handle(context.Background(), ChannelTerminatedEvent{Channel: old})
	if rt.reg.Get("w1") == nil || rt.reg.Get("w1").Channel != nw {
		t.Fatalf("stale termination removed the replacement record")
	}
}

func TestWorkerRemovedFailsInflight(t *testing.T) {
	rt := newTestRouter(t, "A")
	ch := addWorker(t, rt, "w1", nil)
	markReady(rt, "w1")
	reply := submit(rt, "r1", "x")

	rt.handle(context.Background(), ChannelTerminatedEvent{Channel: ch})
	res := recvReply(t, reply)
	if res.Err == nil || res.Err.Code != CodeWorkerLost {
		t.Fatalf("expected worker_lost, got %+v", res)
	}
	if rt.reg.Len() != 0 {
		t.Fatalf("worker still registered")
	}
	if len(rt.pending) != 0 {
		t.Fatalf("pending dispatch leaked")
	}
}

func TestStateUpdateAwayFromCompilingFailsPending(t *testing.T) {
	rt := newTestRouter(t, "A")
	addWorker(t, rt, "w1", nil)
	markReady(rt, "w1")
	reply := submit(rt, "r1", "x")

	rt.handle(context.Background(), StateUpdateEvent{WorkerID: "w1", State: StateReady})
	res := recvReply(t, reply)
	if res.Err == nil || res.Err.Code != CodeWorkerLost {
		t.Fatalf("expected worker_lost, got %+v", res)
	}
	if _, ok := rt.pending["w1"]; ok {
		t.Fatalf("pending map out of sync with worker state")
	}
}

func TestLivenessEviction(t *testing.T) {
	rt := newTestRouter(t, "A")
	terminated := false
	ch := addWorker(t, rt, "w1", &terminated)
	rt.reg.Get("w1").LastSeen = time.Now().Add(-time.Hour)

	rt.handle(context.Background(), LivenessTickEvent{})
	if !terminated {
		t.Fatalf("stale worker not terminated")
	}
	// removal rides the transport's death signal
	rt.handle(context.Background(), ChannelTerminatedEvent{Channel: ch})
	if rt.reg.Len() != 0 {
		t.Fatalf("worker still registered after termination")
	}
}

func TestHeartbeatKeepsWorkerAlive(t *testing.T) {
	rt := newTestRouter(t, "A")
	terminated := false
	addWorker(t, rt, "w1", &terminated)
	rt.reg.Get("w1").LastSeen = time.Now().Add(-time.Hour)

	rt.handle(context.Background(), HeartbeatEvent{WorkerID: "w1"})
	rt.handle(context.Background(), LivenessTickEvent{})
	if terminated {
		t.Fatalf("fresh worker evicted")
	}
}

func TestCatalogInstallBroadcasts(t *testing.T) {
	rt := newTestRouter(t)
	ch := addWorker(t, rt, "w1", nil)

	rt.handle(context.Background(), catalogFetchedEvent{libs: []string{"A", "B"}})
	upd, ok := recvMsg(t, ch).(UpdateLibrariesMessage)
	if !ok || len(upd.Libraries) != 2 {
		t.Fatalf("expected catalog push, got %+v", upd)
	}

	// identical refresh stays quiet
	rt.handle(context.Background(), catalogFetchedEvent{libs: []string{"B", "A"}})
	select {
	case m := <-ch.Out():
		t.Fatalf("unchanged catalog pushed anyway: %+v", m)
	default:
	}
}

func TestResultWithoutPendingDispatch(t *testing.T) {
	rt := newTestRouter(t, "A")
	addWorker(t, rt, "w1", nil)
	// logged as an inconsistency, never a crash
	rt.handle(context.Background(), WorkerResultEvent{WorkerID: "w1", Result: CompileResult{ID: "ghost", Output: "x"}})
	rt.handle(context.Background(), WorkerResultEvent{WorkerID: "never-registered", Result: CompileResult{ID: "ghost"}})
}

func TestSnapshot(t *testing.T) {
	rt := newTestRouter(t, "A")
	addWorker(t, rt, "w1", nil)
	markReady(rt, "w1")
	submit(rt, "r1", "x")

	reply := make(chan Snapshot, 1)
	rt.handle(context.Background(), SnapshotEvent{Reply: reply})
	snap := <-reply
	if len(snap.Workers) != 1 || snap.Workers[0].ID != "w1" {
		t.Fatalf("unexpected workers: %+v", snap.Workers)
	}
	if snap.InFlight != 1 || snap.QueueDepth != 0 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if len(snap.Libraries) != 1 {
		t.Fatalf("unexpected catalog: %v", snap.Libraries)
	}
}
