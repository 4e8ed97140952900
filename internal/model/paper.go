package model

import (
	"fmt"
	"time"
)

// Key is the stable identity of a paper across runs: the source name plus
// the source-assigned identifier (arXiv ID, DOI, ...). It is the unit of
// deduplication.
type Key struct {
	Source   string `json:"source"`
	SourceID string `json:"source_id"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Source, k.SourceID)
}

// Paper is a raw candidate item as yielded by a feed source
type Paper struct {
	Source      string    `json:"source"`                 // Feed source name (e.g., "arxiv", "biorxiv")
	SourceID    string    `json:"source_id"`              // Source-assigned identifier
	Title       string    `json:"title"`
	Abstract    string    `json:"abstract"`
	Authors     []string  `json:"authors,omitempty"`
	Categories  []string  `json:"categories,omitempty"`   // Source taxonomy (cs.AI, neuroscience, ...)
	Published   time.Time `json:"published"`
	Version     int       `json:"version,omitempty"`      // Revision number where the source has one
	AbstractURL string    `json:"abstract_url,omitempty"`
	PDFURL      string    `json:"pdf_url,omitempty"`
	Comments    string    `json:"comments,omitempty"`     // Author comments (often carry code/data links)
}

// Key returns the paper's identity key
func (p Paper) Key() Key {
	return Key{Source: p.Source, SourceID: p.SourceID}
}

// ScoredPaper is a Paper after heuristic scoring and model classification
type ScoredPaper struct {
	Paper

	Keep           bool     `json:"keep"`                      // Classifier's keep/drop verdict
	Score          int      `json:"score"`                     // Model relevance score, clamped to [0,100]
	Bucket         string   `json:"bucket"`                    // Primary bucket, or BucketUncategorized
	Buckets        []string `json:"buckets,omitempty"`         // All matching buckets, in configured order
	Rationale      string   `json:"rationale,omitempty"`       // Why the classifier thinks it matters
	Summary        string   `json:"summary,omitempty"`
	RiskFlags      []string `json:"risk_flags,omitempty"`      // e.g. "sim-only", "no-code"
	CodeURLs       []string `json:"code_urls,omitempty"`
	DatasetURLs    []string `json:"dataset_urls,omitempty"`
	HeuristicScore int      `json:"heuristic_score"`           // Keyword-based pre-score, [0,100]
	Greylisted     bool     `json:"greylisted,omitempty"`
	FinalScore     int      `json:"final_score"`               // Blended score used for ordering
}

// BucketUncategorized is assigned when the classifier cannot confidently
// match any configured bucket. It is always a valid bucket.
const BucketUncategorized = "Uncategorized"

// Outcome records what the pipeline did with a paper
type Outcome string

const (
	OutcomeIncluded       Outcome = "included"        // Delivered in a digest
	OutcomeBelowThreshold Outcome = "below-threshold" // Classified but under the score cutoff
	OutcomeFiltered       Outcome = "filtered"        // Rejected by the heuristic pre-filter
	OutcomeErrorSkipped   Outcome = "error-skipped"   // Permanent classifier failure
)

// Valid reports whether o is a known outcome value.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeIncluded, OutcomeBelowThreshold, OutcomeFiltered, OutcomeErrorSkipped:
		return true
	}
	return false
}

// ProcessedRecord is the durable dedup ledger entry for one identity key.
// Once written, the outcome is immutable until an explicit store reset.
type ProcessedRecord struct {
	Key       Key       `json:"key"`
	Outcome   Outcome   `json:"outcome"`
	FirstSeen time.Time `json:"first_seen"`
	Score     int       `json:"score,omitempty"`
	Bucket    string    `json:"bucket,omitempty"`
}

// RunSummary captures the audit record of one pipeline run
type RunSummary struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Fetched   int       `json:"fetched"`
	Kept      int       `json:"kept"`
	TopPicks  int       `json:"top_picks"`
	Delivered bool      `json:"delivered"`
	Error     string    `json:"error,omitempty"`
}
