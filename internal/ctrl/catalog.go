package ctrl

import (
	"context"
	"strings"
)

// Fetcher retrieves the raw approved-library list from wherever it
// lives (file, HTTP endpoint, redis set). Implementations are free to
// block; the router only ever calls Fetch off-loop.
type Fetcher interface {
	Fetch(ctx context.Context) ([]string, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context) ([]string, error)

func (f FetcherFunc) Fetch(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// RefreshOutcome classifies one catalog refresh attempt and drives the
// rescheduling decision.
type RefreshOutcome string

const (
	RefreshInstalled RefreshOutcome = "installed"
	RefreshUnchanged RefreshOutcome = "unchanged"
	RefreshEmpty     RefreshOutcome = "empty"
	RefreshFailed    RefreshOutcome = "failed"
)

// Catalog holds the approved library set. The set is replaced
// atomically on a successful refresh and never regresses to empty
// once non-empty.
type Catalog struct {
	current  LibSet
	defaults []string
}

func NewCatalog(defaults []string) *Catalog {
	return &Catalog{current: LibSet{}, defaults: defaults}
}

// Current returns the installed set. Callers must not mutate it.
func (c *Catalog) Current() LibSet {
	return c.current
}

// Libraries returns the installed set in lexical order.
func (c *Catalog) Libraries() []string {
	return c.current.Sorted()
}

// Missing returns the first declared library absent from the catalog,
// or "" when all are approved.
func (c *Catalog) Missing(req LibSet) string {
	for _, id := range req.Sorted() {
		if !c.current.Has(id) {
			return id
		}
	}
	return ""
}

// Apply folds one fetch attempt into the catalog. The fetched list is
// unioned with the configured defaults. A failed or empty fetch never
// mutates the installed set, so a transient outage cannot flap the
// catalog to "nothing supported".
func (c *Catalog) Apply(fetched []string, err error) RefreshOutcome {
	if err != nil {
		return RefreshFailed
	}
	next := NewLibSet(c.defaults...)
	for _, id := range fetched {
		if id = strings.TrimSpace(id); id != "" {
			next.Add(id)
		}
	}
	if len(next) == 0 {
		return RefreshEmpty
	}
	if next.Equal(c.current) {
		return RefreshUnchanged
	}
	c.current = next
	return RefreshInstalled
}
