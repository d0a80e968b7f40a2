package ctrl

import (
	"errors"
	"testing"
	"time"
)

func readyWorker(reg *Registry, id string, libs LibSet, lastActivity time.Time) *Worker {
	w, _ := reg.Register(id, "", NewChannel(4, nil))
	w.State = StateReady
	w.LastLibs = libs
	w.LastActivity = lastActivity
	return w
}

func TestSelectWorkerAffinityWins(t *testing.T) {
	reg := NewRegistry()
	cat := NewCatalog(nil)
	cat.Apply([]string{"A", "B"}, nil)
	t1 := time.Unix(200, 0)
	t2 := time.Unix(100, 0) // less recently active than t1
	readyWorker(reg, "w1", NewLibSet("A", "B"), t1)
	readyWorker(reg, "w2", NewLibSet(), t2)
	sched := NewScheduler(reg, cat)
	w, err := sched.SelectWorker(NewLibSet("A", "B"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if w.ID != "w1" {
		t.Fatalf("expected w1 (exact library match), got %s", w.ID)
	}
}

func TestSelectWorkerLeastRecentlyActive(t *testing.T) {
	reg := NewRegistry()
	cat := NewCatalog(nil)
	cat.Apply([]string{"A"}, nil)
	readyWorker(reg, "w1", NewLibSet("A"), time.Unix(300, 0))
	readyWorker(reg, "w2", NewLibSet(), time.Unix(100, 0))
	sched := NewScheduler(reg, cat)
	// no worker matches exactly, so the idlest one wins
	w, err := sched.SelectWorker(NewLibSet())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if w.ID != "w2" {
		t.Fatalf("expected w2 (least recently active), got %s", w.ID)
	}
}

func TestSelectWorkerStableTieBreak(t *testing.T) {
	reg := NewRegistry()
	cat := NewCatalog(nil)
	cat.Apply([]string{"A"}, nil)
	ta := time.Unix(100, 0)
	readyWorker(reg, "w1", NewLibSet(), ta)
	readyWorker(reg, "w2", NewLibSet(), ta)
	readyWorker(reg, "w3", NewLibSet(), ta)
	sched := NewScheduler(reg, cat)
	for i := 0; i < 10; i++ {
		w, err := sched.SelectWorker(NewLibSet())
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if w.ID != "w1" {
			t.Fatalf("tie-break not stable: got %s on iteration %d", w.ID, i)
		}
	}
}

func TestSelectWorkerUnsupportedLibrary(t *testing.T) {
	reg := NewRegistry()
	cat := NewCatalog(nil)
	readyWorker(reg, "w1", NewLibSet(), time.Unix(100, 0))
	sched := NewScheduler(reg, cat)
	_, err := sched.SelectWorker(NewLibSet("libZ"))
	if !errors.Is(err, ErrUnsupportedLibrary) {
		t.Fatalf("expected ErrUnsupportedLibrary, got %v", err)
	}
}

func TestSelectWorkerNoCandidates(t *testing.T) {
	reg := NewRegistry()
	cat := NewCatalog(nil)
	cat.Apply([]string{"A"}, nil)
	// registered but not ready
	reg.Register("w1", "", NewChannel(4, nil))
	sched := NewScheduler(reg, cat)
	w, err := sched.SelectWorker(NewLibSet("A"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if w != nil {
		t.Fatalf("expected no candidate, got %s", w.ID)
	}
}
