package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/avolkov/paperboy/internal/model"
)

type stubSource struct {
	name   string
	papers []model.Paper
	err    error
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context, window Window) ([]model.Paper, error) {
	return s.papers, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubSource{name: "arxiv"})

	if _, err := r.Resolve("arxiv"); err != nil {
		t.Errorf("Resolve: %v", err)
	}
	if _, err := r.Resolve("missing"); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestRegistry_FetchAllDeduplicates(t *testing.T) {
	shared := model.Paper{Source: "arxiv", SourceID: "2501.00001", Title: "Shared"}

	r := NewRegistry()
	r.Register(&stubSource{name: "a", papers: []model.Paper{shared}})
	r.Register(&stubSource{name: "b", papers: []model.Paper{
		shared,
		{Source: "arxiv", SourceID: "2501.00002", Title: "Unique"},
	}})

	papers, err := r.FetchAll(context.Background(), LookbackWindow(time.Hour), quietLogger())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(papers) != 2 {
		t.Errorf("expected 2 deduplicated papers, got %d", len(papers))
	}
}

func TestRegistry_FetchAllIsolatesFailures(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubSource{name: "broken", err: errors.New("upstream down")})
	r.Register(&stubSource{name: "ok", papers: []model.Paper{
		{Source: "biorxiv", SourceID: "10.1101/2025.01.01", Title: "Fine"},
	}})

	papers, err := r.FetchAll(context.Background(), LookbackWindow(time.Hour), quietLogger())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(papers) != 1 {
		t.Errorf("expected 1 paper from the healthy source, got %d", len(papers))
	}
}

func TestRegistry_FetchAllAllFailed(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubSource{name: "broken1", err: errors.New("down")})
	r.Register(&stubSource{name: "broken2", err: errors.New("down")})

	if _, err := r.FetchAll(context.Background(), LookbackWindow(time.Hour), quietLogger()); err == nil {
		t.Error("expected error when every source fails")
	}
}

func TestRegistry_FetchAllEmpty(t *testing.T) {
	r := NewRegistry()
	if _, err := r.FetchAll(context.Background(), LookbackWindow(time.Hour), quietLogger()); err == nil {
		t.Error("expected error with no sources registered")
	}
}

func TestLookbackWindow(t *testing.T) {
	w := LookbackWindow(36 * time.Hour)
	if got := w.End.Sub(w.Start); got != 36*time.Hour {
		t.Errorf("expected 36h window, got %v", got)
	}
}
