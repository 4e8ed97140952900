package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/paperboy/internal/classify"
	"github.com/avolkov/paperboy/internal/deliver"
	"github.com/avolkov/paperboy/internal/digest"
	"github.com/avolkov/paperboy/internal/feed"
	"github.com/avolkov/paperboy/internal/filter"
	"github.com/avolkov/paperboy/internal/model"
	"github.com/avolkov/paperboy/internal/score"
	"github.com/avolkov/paperboy/internal/store"
	"github.com/avolkov/paperboy/internal/worker"
)

// Pipeline orchestrates one digest run: fetch, pre-filter, dedup against the
// ledger, classify, score, assemble, deliver, commit. Outcomes are committed
// only after delivery succeeds, so delivery is at-least-once: a crash between
// delivery and commit means the next run may send some papers again.
type Pipeline struct {
	cfg        *model.Config
	sources    *feed.Registry
	prefilter  *filter.Filter
	classifier classify.Classifier
	scorer     *score.Scorer
	assembler  *digest.Assembler
	deliverer  deliver.Deliverer
	ledger     store.Store
	logger     *slog.Logger
}

// NewPipeline wires a pipeline from its stages
func NewPipeline(cfg *model.Config, sources *feed.Registry, classifier classify.Classifier, deliverer deliver.Deliverer, ledger store.Store, logger *slog.Logger) *Pipeline {
	pf := filter.New(cfg.Filter, cfg.Buckets, logger)
	return &Pipeline{
		cfg:        cfg,
		sources:    sources,
		prefilter:  pf,
		classifier: classifier,
		scorer:     score.NewScorer(),
		assembler:  digest.NewAssembler(cfg.Digest, pf.BucketNames()),
		deliverer:  deliverer,
		ledger:     ledger,
		logger:     logger,
	}
}

// State names the phase a run is in. Transitions are strictly sequential;
// cancellation is honored at every boundary.
type State string

const (
	StateFetching    State = "fetching"
	StateFiltering   State = "filtering"
	StateDeduping    State = "deduping"
	StateClassifying State = "classifying"
	StateAssembling  State = "assembling"
	StateDelivering  State = "delivering"
	StateCommitting  State = "committing"
	StateDone        State = "done"
)

// pending is a paper with a decided outcome waiting for the commit phase
type pending struct {
	scored  model.ScoredPaper
	outcome model.Outcome
}

// Run executes one digest run and returns its summary. A nil error means the
// digest was delivered and every outcome was committed.
func (p *Pipeline) Run(ctx context.Context) (model.RunSummary, error) {
	run := model.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	logger := p.logger.With("run_id", run.RunID)

	summary, err := p.run(ctx, run, logger)
	if err != nil {
		summary.Error = err.Error()
	}
	if logErr := p.ledger.LogRun(ctx, summary); logErr != nil {
		logger.Error("failed to record run", "error", logErr)
		if err == nil {
			err = logErr
		}
	}
	return summary, err
}

// advance moves the run into the next state, or stops it when the context
// is already cancelled
func advance(ctx context.Context, logger *slog.Logger, s State) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled before %s: %w", s, err)
	}
	logger.Debug("state transition", "state", string(s))
	return nil
}

func (p *Pipeline) run(ctx context.Context, run model.RunSummary, logger *slog.Logger) (model.RunSummary, error) {
	if err := advance(ctx, logger, StateFetching); err != nil {
		return run, err
	}
	window := feed.LookbackWindow(p.cfg.Sources.Lookback)
	papers, err := p.sources.FetchAll(ctx, window, logger)
	if err != nil {
		return run, fmt.Errorf("fetch: %w", err)
	}
	run.Fetched = len(papers)
	logger.Info("fetched", "papers", len(papers), "window_start", window.Start)

	if err := advance(ctx, logger, StateFiltering); err != nil {
		return run, err
	}
	kept, droppedPapers := p.prefilter.Apply(papers)
	logger.Info("pre-filtered", "kept", len(kept), "dropped", len(droppedPapers))

	// Dedup against the ledger. A store failure here is fatal: without the
	// ledger there is no dedup guarantee.
	if err := advance(ctx, logger, StateDeduping); err != nil {
		return run, err
	}
	fresh, seen, err := p.dedup(ctx, kept)
	if err != nil {
		return run, err
	}
	if seen > 0 {
		logger.Info("skipped already-processed papers", "count", seen)
	}

	if err := advance(ctx, logger, StateClassifying); err != nil {
		return run, err
	}
	pendings, classifyErrs := p.classifyAll(ctx, fresh, logger)

	if err := advance(ctx, logger, StateAssembling); err != nil {
		return run, err
	}

	// Papers the classifier never saw still get a committed outcome
	for _, paper := range droppedPapers {
		pendings = append(pendings, pending{
			scored:  model.ScoredPaper{Paper: paper},
			outcome: model.OutcomeFiltered,
		})
	}

	var eligible []model.ScoredPaper
	for _, pd := range pendings {
		if pd.outcome == model.OutcomeIncluded {
			eligible = append(eligible, pd.scored)
		}
	}
	dig := p.assembler.Assemble(eligible, run.Fetched)
	dig.RunID = run.RunID
	run.Kept = dig.Len()
	run.TopPicks = len(dig.TopPicks)
	logger.Info("assembled digest", "papers", dig.Len(), "top_picks", run.TopPicks, "empty", dig.Empty())

	// An empty digest is a valid result, not an email anyone wants
	if dig.Empty() {
		logger.Info("nothing to report, skipping delivery")
	} else {
		if err := advance(ctx, logger, StateDelivering); err != nil {
			return run, err
		}
		if err := p.deliverer.Deliver(ctx, dig); err != nil {
			return run, fmt.Errorf("deliver via %s: %w", p.deliverer.Name(), err)
		}
		run.Delivered = true
	}

	// Commit outcomes, only now that delivery succeeded
	if err := advance(ctx, logger, StateCommitting); err != nil {
		return run, err
	}
	if err := p.commit(ctx, run.RunID, pendings, logger); err != nil {
		return run, err
	}

	p.logMetrics(ctx, run.RunID, map[string]float64{
		"fetched":         float64(run.Fetched),
		"filtered_out":    float64(len(droppedPapers)),
		"duplicates":      float64(seen),
		"classify_errors": float64(classifyErrs),
		"delivered":       float64(dig.Len()),
	}, logger)

	logger.Debug("state transition", "state", string(StateDone))
	return run, nil
}

// dedup drops papers the ledger has already seen. Returns the unseen filter
// results and how many were skipped.
func (p *Pipeline) dedup(ctx context.Context, kept []filter.Result) ([]filter.Result, int, error) {
	fresh := make([]filter.Result, 0, len(kept))
	seen := 0
	for _, res := range kept {
		rec, err := p.ledger.Lookup(ctx, res.Paper.Key())
		if err != nil {
			return nil, 0, fmt.Errorf("ledger lookup for %s: %w", res.Paper.Key(), err)
		}
		if rec != nil {
			seen++
			continue
		}
		fresh = append(fresh, res)
	}
	return fresh, seen, nil
}

// classifyAll runs the classifier pool over the fresh papers and decides an
// outcome per paper. Individual failures become error-skipped outcomes; the
// batch continues.
func (p *Pipeline) classifyAll(ctx context.Context, fresh []filter.Result, logger *slog.Logger) ([]pending, int) {
	byKey := make(map[model.Key]filter.Result, len(fresh))
	papers := make([]model.Paper, 0, len(fresh))
	for _, res := range fresh {
		byKey[res.Paper.Key()] = res
		papers = append(papers, res.Paper)
	}

	pool := worker.NewPool(p.cfg.Classifier.Workers, func(ctx context.Context, paper model.Paper) (model.ScoredPaper, error) {
		res := byKey[paper.Key()]
		dec, err := p.classifier.Classify(ctx, paper, res.Buckets)
		if err != nil {
			return model.ScoredPaper{}, err
		}
		return p.buildScored(res, dec), nil
	})

	outcomes := pool.Run(ctx, papers)

	pendings := make([]pending, 0, len(outcomes))
	errCount := 0
	for _, out := range outcomes {
		if out.Err != nil {
			errCount++
			logger.Warn("classification failed, skipping paper",
				"key", out.Paper.Key().String(), "error", out.Err)
			pendings = append(pendings, pending{
				scored:  model.ScoredPaper{Paper: out.Paper},
				outcome: model.OutcomeErrorSkipped,
			})
			continue
		}
		scored := out.Scored
		p.scorer.Finalize(&scored)
		pendings = append(pendings, pending{scored: scored, outcome: p.decideOutcome(scored)})
	}
	return pendings, errCount
}

// buildScored merges the heuristic result and the classifier decision
func (p *Pipeline) buildScored(res filter.Result, dec *classify.Decision) model.ScoredPaper {
	sp := model.ScoredPaper{
		Paper:          res.Paper,
		Keep:           dec.Keep,
		Score:          int(math.Round(dec.RelevanceScore)),
		Buckets:        dec.Buckets,
		Rationale:      dec.WhyItMatters,
		Summary:        dec.Summary,
		RiskFlags:      dec.RiskFlags,
		CodeURLs:       mergeURLs(res.CodeURLs, dec.CodeURLs),
		DatasetURLs:    mergeURLs(res.DatasetURLs, dec.DatasetURLs),
		HeuristicScore: res.HeuristicScore,
		Greylisted:     res.Greylisted,
	}
	if len(sp.Buckets) > 0 {
		sp.Bucket = sp.Buckets[0]
	} else {
		sp.Bucket = model.BucketUncategorized
	}
	return sp
}

func (p *Pipeline) decideOutcome(sp model.ScoredPaper) model.Outcome {
	switch {
	case !sp.Keep:
		return model.OutcomeFiltered
	case sp.FinalScore < p.cfg.Digest.MinScore:
		return model.OutcomeBelowThreshold
	default:
		return model.OutcomeIncluded
	}
}

// commit records every outcome in the ledger. A store failure is fatal; an
// outcome conflict is recorded as an error but does not stop the remaining
// commits, because leaving outcomes unrecorded would redeliver them all.
func (p *Pipeline) commit(ctx context.Context, runID string, pendings []pending, logger *slog.Logger) error {
	var conflicts []error
	for _, pd := range pendings {
		rec := model.ProcessedRecord{
			Key:       pd.scored.Key(),
			Outcome:   pd.outcome,
			FirstSeen: time.Now().UTC(),
			Score:     pd.scored.FinalScore,
			Bucket:    pd.scored.Bucket,
		}
		err := p.ledger.MarkProcessed(ctx, rec)
		switch {
		case err == nil:
		case store.IsConflict(err):
			logger.Error("outcome conflict, reset required to reprocess",
				"key", rec.Key.String(), "error", err)
			conflicts = append(conflicts, err)
		default:
			return fmt.Errorf("commit %s: %w", rec.Key, err)
		}
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("run %s: %d outcome conflicts: %w", runID, len(conflicts), errors.Join(conflicts...))
	}
	return nil
}

func (p *Pipeline) logMetrics(ctx context.Context, runID string, metrics map[string]float64, logger *slog.Logger) {
	for name, value := range metrics {
		if err := p.ledger.LogMetric(ctx, runID, name, value); err != nil {
			logger.Warn("failed to record metric", "metric", name, "error", err)
		}
	}
}

// mergeURLs unions two URL lists preserving first-seen order
func mergeURLs(a, b []string) []string {
	if len(a) == 0 {
		return b
	}
	seen := make(map[string]bool, len(a)+len(b))
	merged := make([]string, 0, len(a)+len(b))
	for _, url := range a {
		if !seen[url] {
			seen[url] = true
			merged = append(merged, url)
		}
	}
	for _, url := range b {
		if !seen[url] {
			seen[url] = true
			merged = append(merged, url)
		}
	}
	return merged
}
