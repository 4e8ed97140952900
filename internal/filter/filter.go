package filter

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/avolkov/paperboy/internal/model"
)

// Filter is the cheap pre-classifier pass. It drops papers that are clearly
// off-topic, flags greylisted ones, and attaches a keyword score so the
// expensive model call only sees plausible candidates. It errs on the side
// of keeping: any boost term overrides the drop list.
type Filter struct {
	cfg     model.FilterConfig
	buckets []model.BucketConfig
	logger  *slog.Logger

	boost    map[string][]*regexp.Regexp
	drop     []*regexp.Regexp
	greylist []*regexp.Regexp
	rescue   []*regexp.Regexp
	bucketRe map[string][]*regexp.Regexp
}

// Result is a paper that survived pre-filtering
type Result struct {
	Paper          model.Paper
	HeuristicScore int
	Greylisted     bool
	Buckets        []string
	CodeURLs       []string
	DatasetURLs    []string
}

// aiTerms and domainTerms drive the pairing bonus: a paper mentioning both
// an AI method and a biomedical subject gets a flat boost.
var (
	aiTerms     = []string{"machine learning", "deep learning", "neural network", "ai"}
	domainTerms = []string{"medical", "clinical", "patient", "drug", "protein", "diagnostic", "healthcare"}
)

// New compiles the term lists into a ready filter
func New(cfg model.FilterConfig, buckets []model.BucketConfig, logger *slog.Logger) *Filter {
	f := &Filter{
		cfg:      cfg,
		buckets:  buckets,
		logger:   logger,
		boost:    make(map[string][]*regexp.Regexp, len(cfg.BoostTerms)),
		bucketRe: make(map[string][]*regexp.Regexp, len(buckets)),
	}

	for level, terms := range cfg.BoostTerms {
		f.boost[level] = compileTerms(terms)
	}
	f.drop = compileTerms(cfg.DropTerms)
	f.greylist = compileTerms(cfg.GreylistTerms)
	f.rescue = compileTerms(cfg.RescueTerms)
	for _, bucket := range buckets {
		f.bucketRe[bucket.Name] = compileTerms(bucket.Keywords)
	}

	return f
}

func compileTerms(terms []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(terms))
	for _, term := range terms {
		patterns = append(patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(term)+`\b`))
	}
	return patterns
}

// Apply pre-filters a fetched batch. Kept papers come back scored and
// bucketed; dropped papers come back separately so the ledger can record
// them as filtered.
func (f *Filter) Apply(papers []model.Paper) (kept []Result, dropped []model.Paper) {
	for _, paper := range papers {
		text := paper.Title + " " + paper.Abstract

		if strings.TrimSpace(paper.Title) == "" || strings.TrimSpace(paper.Abstract) == "" {
			f.logger.Debug("dropping paper", "key", paper.Key(), "reason", "missing title or abstract")
			dropped = append(dropped, paper)
			continue
		}

		if f.cfg.MinAbstractLen > 0 && len(paper.Abstract) < f.cfg.MinAbstractLen {
			f.logger.Debug("dropping paper", "key", paper.Key(), "reason", "abstract too short")
			dropped = append(dropped, paper)
			continue
		}

		if f.shouldDrop(text) {
			f.logger.Debug("dropping paper", "key", paper.Key(), "reason", "drop term")
			dropped = append(dropped, paper)
			continue
		}

		greylisted := f.isGreylisted(text)
		if greylisted && !f.hasRescueTerm(text) {
			f.logger.Debug("dropping paper", "key", paper.Key(), "reason", "greylisted without rescue term")
			dropped = append(dropped, paper)
			continue
		}

		codeURLs, datasetURLs := ExtractLinks(paper)

		kept = append(kept, Result{
			Paper:          paper,
			HeuristicScore: f.score(text),
			Greylisted:     greylisted,
			Buckets:        f.detectBuckets(text),
			CodeURLs:       codeURLs,
			DatasetURLs:    datasetURLs,
		})
	}

	f.logger.Info("pre-filtered papers", "in", len(papers), "kept", len(kept), "dropped", len(dropped))
	return kept, dropped
}

// shouldDrop applies the drop list unless any boost term is present
func (f *Filter) shouldDrop(text string) bool {
	if !anyMatch(f.drop, text) {
		return false
	}
	for _, patterns := range f.boost {
		if anyMatch(patterns, text) {
			return false
		}
	}
	return true
}

func (f *Filter) isGreylisted(text string) bool {
	return anyMatch(f.greylist, text)
}

func (f *Filter) hasRescueTerm(text string) bool {
	return anyMatch(f.rescue, text)
}

// score counts keyword hits weighted by boost level and adds a flat bonus
// when an AI term and a domain term co-occur. Capped at 100.
func (f *Filter) score(text string) int {
	score := 0
	for level, weight := range map[string]int{"high": 20, "medium": 10, "low": 5} {
		for _, pattern := range f.boost[level] {
			score += len(pattern.FindAllStringIndex(text, -1)) * weight
		}
	}

	lower := strings.ToLower(text)
	if containsAny(lower, aiTerms) && containsAny(lower, domainTerms) {
		score += 20
	}

	if score > 100 {
		score = 100
	}
	return score
}

// detectBuckets returns bucket names in configured order
func (f *Filter) detectBuckets(text string) []string {
	var detected []string
	for _, bucket := range f.buckets {
		if anyMatch(f.bucketRe[bucket.Name], text) {
			detected = append(detected, bucket.Name)
		}
	}
	return detected
}

// BucketNames returns the configured enumeration in order, for validation
func (f *Filter) BucketNames() []string {
	names := make([]string, 0, len(f.buckets))
	for _, bucket := range f.buckets {
		names = append(names, bucket.Name)
	}
	return names
}

func anyMatch(patterns []*regexp.Regexp, text string) bool {
	for _, pattern := range patterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

func containsAny(lower string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// Describe summarizes the compiled filter for logging
func (f *Filter) Describe() string {
	return fmt.Sprintf("boost=%d drop=%d greylist=%d rescue=%d buckets=%d",
		len(f.cfg.BoostTerms), len(f.drop), len(f.greylist), len(f.rescue), len(f.buckets))
}
