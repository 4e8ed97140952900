package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avolkov/paperboy/internal/classify"
	"github.com/avolkov/paperboy/internal/feed"
	"github.com/avolkov/paperboy/internal/model"
	"github.com/avolkov/paperboy/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSource struct {
	papers []model.Paper
	err    error
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Fetch(ctx context.Context, window feed.Window) ([]model.Paper, error) {
	return s.papers, s.err
}

// stubClassifier returns canned decisions keyed by source ID and counts calls
type stubClassifier struct {
	mu        sync.Mutex
	decisions map[string]*classify.Decision
	errors    map[string]error
	calls     int
}

func (c *stubClassifier) Name() string { return "stub" }

func (c *stubClassifier) Classify(ctx context.Context, paper model.Paper, hints []string) (*classify.Decision, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if err, ok := c.errors[paper.SourceID]; ok {
		return nil, err
	}
	if dec, ok := c.decisions[paper.SourceID]; ok {
		return dec, nil
	}
	return nil, fmt.Errorf("no canned decision for %s", paper.SourceID)
}

func (c *stubClassifier) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// captureDeliverer records delivered digests; onDeliver runs before success
type captureDeliverer struct {
	digests   []model.Digest
	err       error
	onDeliver func(model.Digest)
}

func (d *captureDeliverer) Name() string { return "capture" }

func (d *captureDeliverer) Deliver(ctx context.Context, digest model.Digest) error {
	if d.err != nil {
		return d.err
	}
	if d.onDeliver != nil {
		d.onDeliver(digest)
	}
	d.digests = append(d.digests, digest)
	return nil
}

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Filter.MinAbstractLen = 10
	cfg.Filter.DropTerms = []string{"blockchain"}
	cfg.Filter.GreylistTerms = nil
	cfg.Filter.BoostTerms = map[string][]string{"high": {"bioreactor"}}
	cfg.Digest.MinScore = 50
	cfg.Classifier.Workers = 2
	return cfg
}

func testPaper(id, title, abstract string) model.Paper {
	return model.Paper{
		Source:    "arxiv",
		SourceID:  id,
		Title:     title,
		Abstract:  abstract,
		Published: time.Now().UTC().Add(-2 * time.Hour),
	}
}

func decision(keep bool, score float64) *classify.Decision {
	return &classify.Decision{
		Keep:           keep,
		RelevanceScore: score,
		Buckets:        []string{"Drug Discovery"},
		Summary:        "canned summary",
		WhyItMatters:   "canned rationale",
	}
}

func newTestPipeline(cfg *model.Config, src feed.Source, cls classify.Classifier, del *captureDeliverer, st store.Store) *Pipeline {
	registry := feed.NewRegistry()
	registry.Register(src)
	return NewPipeline(cfg, registry, cls, del, st, quietLogger())
}

func TestRunCommitsOutcomes(t *testing.T) {
	src := &stubSource{papers: []model.Paper{
		testPaper("good", "Relevant work", "a long enough abstract about bioreactor control"),
		testPaper("weak", "Marginal work", "a long enough abstract about something else"),
		testPaper("rejected", "Unrelated work", "a long enough abstract the classifier rejects"),
		testPaper("spam", "Token launch", "blockchain announcement with a long abstract"),
	}}
	cls := &stubClassifier{decisions: map[string]*classify.Decision{
		"good":     decision(true, 90),
		"weak":     decision(true, 10),
		"rejected": decision(false, 80),
	}}
	del := &captureDeliverer{}
	st := store.NewMemoryStore()

	summary, err := newTestPipeline(testConfig(), src, cls, del, st).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Delivered {
		t.Error("summary should report delivery")
	}
	if summary.Fetched != 4 {
		t.Errorf("Fetched = %d, want 4", summary.Fetched)
	}
	if summary.Kept != 1 {
		t.Errorf("Kept = %d, want 1", summary.Kept)
	}

	if len(del.digests) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(del.digests))
	}
	if got := del.digests[0].Len(); got != 1 {
		t.Fatalf("digest has %d papers, want 1", got)
	}

	want := map[string]model.Outcome{
		"good":     model.OutcomeIncluded,
		"weak":     model.OutcomeBelowThreshold,
		"rejected": model.OutcomeFiltered,
		"spam":     model.OutcomeFiltered,
	}
	for id, outcome := range want {
		rec, err := st.Lookup(context.Background(), model.Key{Source: "arxiv", SourceID: id})
		if err != nil {
			t.Fatalf("Lookup %s: %v", id, err)
		}
		if rec == nil {
			t.Errorf("no record for %s", id)
			continue
		}
		if rec.Outcome != outcome {
			t.Errorf("outcome for %s = %q, want %q", id, rec.Outcome, outcome)
		}
	}

	runs := st.Runs()
	if len(runs) != 1 || runs[0].RunID != summary.RunID {
		t.Errorf("run summary not recorded: %+v", runs)
	}
}

func TestRunSkipsProcessedPapers(t *testing.T) {
	src := &stubSource{papers: []model.Paper{
		testPaper("good", "Relevant work", "a long enough abstract about bioreactor control"),
	}}
	cls := &stubClassifier{decisions: map[string]*classify.Decision{
		"good": decision(true, 90),
	}}
	del := &captureDeliverer{}
	st := store.NewMemoryStore()
	p := newTestPipeline(testConfig(), src, cls, del, st)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if cls.callCount() != 1 {
		t.Errorf("classifier called %d times, want 1 (second run deduped)", cls.callCount())
	}
	if len(del.digests) != 1 {
		t.Fatalf("expected 1 delivery, got %d (empty digests are not sent)", len(del.digests))
	}
}

func TestRunCancelled(t *testing.T) {
	src := &stubSource{papers: []model.Paper{
		testPaper("good", "Relevant work", "a long enough abstract about bioreactor control"),
	}}
	cls := &stubClassifier{decisions: map[string]*classify.Decision{"good": decision(true, 90)}}
	del := &captureDeliverer{}
	st := store.NewMemoryStore()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPipeline(testConfig(), src, cls, del, st).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(del.digests) != 0 {
		t.Error("nothing should be delivered after cancellation")
	}
}

func TestRunIsolatesClassifierFailures(t *testing.T) {
	src := &stubSource{papers: []model.Paper{
		testPaper("good", "Relevant work", "a long enough abstract about bioreactor control"),
		testPaper("broken", "Unscorable work", "a long enough abstract the classifier chokes on"),
	}}
	cls := &stubClassifier{
		decisions: map[string]*classify.Decision{"good": decision(true, 90)},
		errors: map[string]error{
			"broken": &classify.Error{Op: "chat", Transient: false, Err: errors.New("bad request")},
		},
	}
	del := &captureDeliverer{}
	st := store.NewMemoryStore()

	if _, err := newTestPipeline(testConfig(), src, cls, del, st).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := del.digests[0].Len(); got != 1 {
		t.Errorf("digest has %d papers, want 1", got)
	}
	rec, err := st.Lookup(context.Background(), model.Key{Source: "arxiv", SourceID: "broken"})
	if err != nil || rec == nil {
		t.Fatalf("Lookup broken: rec=%v err=%v", rec, err)
	}
	if rec.Outcome != model.OutcomeErrorSkipped {
		t.Errorf("outcome = %q, want %q", rec.Outcome, model.OutcomeErrorSkipped)
	}
}

func TestRunStoreUnavailableIsFatal(t *testing.T) {
	src := &stubSource{papers: []model.Paper{
		testPaper("good", "Relevant work", "a long enough abstract about bioreactor control"),
	}}
	cls := &stubClassifier{decisions: map[string]*classify.Decision{"good": decision(true, 90)}}
	del := &captureDeliverer{}
	st := store.NewMemoryStore()
	st.FailAll = true

	_, err := newTestPipeline(testConfig(), src, cls, del, st).Run(context.Background())
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(del.digests) != 0 {
		t.Error("nothing should be delivered when the ledger is down")
	}
}

func TestRunDeliveryFailurePreventsCommit(t *testing.T) {
	src := &stubSource{papers: []model.Paper{
		testPaper("good", "Relevant work", "a long enough abstract about bioreactor control"),
	}}
	cls := &stubClassifier{decisions: map[string]*classify.Decision{"good": decision(true, 90)}}
	del := &captureDeliverer{err: errors.New("smtp on fire")}
	st := store.NewMemoryStore()

	summary, err := newTestPipeline(testConfig(), src, cls, del, st).Run(context.Background())
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if summary.Delivered {
		t.Error("summary should not report delivery")
	}

	rec, lookupErr := st.Lookup(context.Background(), model.Key{Source: "arxiv", SourceID: "good"})
	if lookupErr != nil {
		t.Fatalf("Lookup: %v", lookupErr)
	}
	if rec != nil {
		t.Error("no outcome should be committed when delivery fails")
	}
}

func TestRunSurfacesOutcomeConflicts(t *testing.T) {
	src := &stubSource{papers: []model.Paper{
		testPaper("good", "Relevant work", "a long enough abstract about bioreactor control"),
	}}
	cls := &stubClassifier{decisions: map[string]*classify.Decision{"good": decision(true, 90)}}
	st := store.NewMemoryStore()
	del := &captureDeliverer{}
	// A concurrent writer records a different outcome between delivery
	// and commit.
	del.onDeliver = func(model.Digest) {
		err := st.MarkProcessed(context.Background(), model.ProcessedRecord{
			Key:       model.Key{Source: "arxiv", SourceID: "good"},
			Outcome:   model.OutcomeFiltered,
			FirstSeen: time.Now().UTC(),
		})
		if err != nil {
			t.Errorf("seed conflicting record: %v", err)
		}
	}

	_, err := newTestPipeline(testConfig(), src, cls, del, st).Run(context.Background())
	if err == nil {
		t.Fatal("expected conflict error")
	}
	if !store.IsConflict(err) {
		t.Fatalf("expected *ConflictError in chain, got %v", err)
	}
	if !strings.Contains(err.Error(), "conflict") {
		t.Errorf("error should mention the conflict: %v", err)
	}
}

func TestRunFetchFailure(t *testing.T) {
	src := &stubSource{err: errors.New("upstream down")}
	cls := &stubClassifier{}
	del := &captureDeliverer{}
	st := store.NewMemoryStore()

	summary, err := newTestPipeline(testConfig(), src, cls, del, st).Run(context.Background())
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if summary.Error == "" {
		t.Error("summary should carry the error")
	}
	runs := st.Runs()
	if len(runs) != 1 || runs[0].Error == "" {
		t.Errorf("failed run should still be recorded: %+v", runs)
	}
}
