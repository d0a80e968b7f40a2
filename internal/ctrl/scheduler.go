package ctrl

import (
	"fmt"
	"sort"
)

// Scheduler picks a worker for a compile request.
type Scheduler struct {
	reg     *Registry
	catalog *Catalog
}

func NewScheduler(reg *Registry, catalog *Catalog) *Scheduler {
	return &Scheduler{reg: reg, catalog: catalog}
}

// SelectWorker ranks ready workers for a request declaring libs.
// Requests touching a library outside the catalog fail immediately
// with ErrUnsupportedLibrary and never wait. (nil, nil) means no
// worker is ready right now.
//
// Ranking: a worker whose loaded library set equals the request's
// sorts first (no environment reload), then least-recently-active,
// then registration order as the explicit tie-break.
func (s *Scheduler) SelectWorker(libs LibSet) (*Worker, error) {
	if missing := s.catalog.Missing(libs); missing != "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLibrary, missing)
	}
	cands := s.reg.Ready()
	if len(cands) == 0 {
		return nil, nil
	}
	sort.Slice(cands, func(i, j int) bool {
		wi, wj := cands[i], cands[j]
		ei, ej := wi.LastLibs.Equal(libs), wj.LastLibs.Equal(libs)
		if ei != ej {
			return ei
		}
		if !wi.LastActivity.Equal(wj.LastActivity) {
			return wi.LastActivity.Before(wj.LastActivity)
		}
		return wi.seq < wj.seq
	})
	return cands[0], nil
}
