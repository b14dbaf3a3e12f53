package fetch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultWorkers is the download concurrency when none is configured.
const DefaultWorkers = 4

// Getter fetches a single identity.
type Getter interface {
	Fetch(ctx context.Context, identity string) Result
}

// Pool runs fetches for many identities on a bounded number of goroutines.
type Pool struct {
	Getter  Getter
	Workers int
	// Limiter, when set, caps how fast new downloads start.
	Limiter *rate.Limiter
}

// Run fetches every identity. onDone (may be nil) sees each Result as it
// finishes, serialized, in completion order. The returned slice is aligned to
// identities. A failed item never stops the others; a cancelled ctx stops new
// items from starting and marks them failed.
func (p *Pool) Run(ctx context.Context, identities []string, onDone func(Result)) []Result {
	workers := p.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}

	results := make([]Result, len(identities))
	var mu sync.Mutex
	report := func(i int, r Result) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = r
		if onDone != nil {
			onDone(r)
		}
	}

	var g errgroup.Group
	g.SetLimit(workers)

	for i, id := range identities {
		if err := p.wait(ctx); err != nil {
			report(i, Result{Identity: id, Err: &FetchError{Identity: id, Err: err}})
			continue
		}
		g.Go(func() error {
			report(i, p.Getter.Fetch(ctx, id))
			return nil
		})
	}
	g.Wait()
	return results
}

func (p *Pool) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Limiter == nil {
		return nil
	}
	return p.Limiter.Wait(ctx)
}
