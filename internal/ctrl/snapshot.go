package ctrl

import (
	"sort"
	"time"
)

// WorkerSnapshot is a point-in-time view of one worker record.
type WorkerSnapshot struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	State        WorkerState `json:"state"`
	LastSeen     time.Time   `json:"last_seen"`
	LastActivity time.Time   `json:"last_activity"`
	LastClient   string      `json:"last_client,omitempty"`
	LastLibs     []string    `json:"last_libraries"`
}

// Snapshot is a point-in-time view of router state, for the state API.
type Snapshot struct {
	Workers    []WorkerSnapshot `json:"workers"`
	QueueDepth int              `json:"queue_depth"`
	InFlight   int              `json:"in_flight"`
	Libraries  []string         `json:"libraries"`
}

func (r *Router) snapshot() Snapshot {
	workers := r.reg.All()
	sort.Slice(workers, func(i, j int) bool { return workers[i].seq < workers[j].seq })
	snap := Snapshot{
		Workers:    make([]WorkerSnapshot, 0, len(workers)),
		QueueDepth: r.queue.Len(),
		InFlight:   len(r.pending),
		Libraries:  r.catalog.Libraries(),
	}
	for _, w := range workers {
		snap.Workers = append(snap.Workers, WorkerSnapshot{
			ID:           w.ID,
			Name:         w.Name,
			State:        w.State,
			LastSeen:     w.LastSeen,
			LastActivity: w.LastActivity,
			LastClient:   w.LastClient,
			LastLibs:     w.LastLibs.Sorted(),
		})
	}
	return snap
}
