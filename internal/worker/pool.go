package worker

import (
	"context"
	"sync"

	"github.com/avolkov/paperboy/internal/model"
)

// ClassifyFunc scores a single paper
type ClassifyFunc func(ctx context.Context, p model.Paper) (model.ScoredPaper, error)

// Outcome is the per-paper result of a pool run. Err is set when the paper
// could not be classified; the rest of the batch is unaffected.
type Outcome struct {
	Paper  model.Paper
	Scored model.ScoredPaper
	Err    error
}

// Pool classifies a batch of papers with a fixed number of workers
type Pool struct {
	workers int
	fn      ClassifyFunc
}

// NewPool creates a pool with the specified number of workers
func NewPool(workers int, fn ClassifyFunc) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers, fn: fn}
}

// Run classifies every paper and returns outcomes in input order. A cancelled
// context stops dispatching new papers; papers never dispatched get ctx.Err()
// as their outcome error.
func (p *Pool) Run(ctx context.Context, papers []model.Paper) []Outcome {
	outcomes := make([]Outcome, len(papers))
	done := make([]bool, len(papers))
	for i, paper := range papers {
		outcomes[i] = Outcome{Paper: paper}
	}

	indexes := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				scored, err := p.fn(ctx, papers[i])
				outcomes[i] = Outcome{Paper: papers[i], Scored: scored, Err: err}
				done[i] = true
			}
		}()
	}

dispatch:
	for i := range papers {
		select {
		case <-ctx.Done():
			break dispatch
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		for i := range outcomes {
			if !done[i] {
				outcomes[i].Err = err
			}
		}
	}

	return outcomes
}
