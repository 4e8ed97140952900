package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avolkov/paperboy/internal/model"
)

// Window is the time range a fetch covers
type Window struct {
	Start time.Time
	End   time.Time
}

// LookbackWindow builds a window ending now
func LookbackWindow(lookback time.Duration) Window {
	now := time.Now().UTC()
	return Window{Start: now.Add(-lookback), End: now}
}

// Source yields candidate papers from one upstream feed
type Source interface {
	Name() string
	Fetch(ctx context.Context, window Window) ([]model.Paper, error)
}

// Registry maps source names to implementations
type Registry struct {
	sources map[string]Source
	order   []string
}

// NewRegistry builds an empty registry
func NewRegistry() *Registry {
	return &Registry{sources: map[string]Source{}}
}

// Register adds or replaces a source, preserving registration order
func (r *Registry) Register(source Source) {
	if _, exists := r.sources[source.Name()]; !exists {
		r.order = append(r.order, source.Name())
	}
	r.sources[source.Name()] = source
}

// Resolve returns a source by name
func (r *Registry) Resolve(name string) (Source, error) {
	if source, ok := r.sources[name]; ok {
		return source, nil
	}
	return nil, fmt.Errorf("source %s is not registered", name)
}

// Names returns the registered source names in registration order
func (r *Registry) Names() []string {
	return r.order
}

// FetchAll queries every registered source and aggregates the results,
// deduplicated by identity key. A failing source is logged and skipped;
// one broken upstream must not sink the whole run.
func (r *Registry) FetchAll(ctx context.Context, window Window, logger *slog.Logger) ([]model.Paper, error) {
	if len(r.order) == 0 {
		return nil, fmt.Errorf("no feed sources registered")
	}

	var aggregated []model.Paper
	seen := map[model.Key]struct{}{}
	failures := 0

	for _, name := range r.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		source := r.sources[name]
		papers, err := source.Fetch(ctx, window)
		if err != nil {
			logger.Warn("feed source failed", "source", name, "error", err)
			failures++
			continue
		}

		fresh := 0
		for _, paper := range papers {
			key := paper.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			aggregated = append(aggregated, paper)
			fresh++
		}
		logger.Info("feed source done", "source", name, "papers", len(papers), "new", fresh)
	}

	if failures == len(r.order) {
		return nil, fmt.Errorf("all %d feed sources failed", failures)
	}

	return aggregated, nil
}
