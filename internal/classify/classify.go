package classify

import (
	"context"
	"errors"
	"fmt"

	"github.com/avolkov/paperboy/internal/model"
)

// Decision is the structured verdict for one paper
type Decision struct {
	Keep           bool     `json:"keep"`
	RelevanceScore float64  `json:"relevance_score"`
	Buckets        []string `json:"buckets"`
	Tags           []string `json:"tags,omitempty"`
	WhyItMatters   string   `json:"why_it_matters"`
	Summary        string   `json:"summary"`
	CodeURLs       []string `json:"code_urls,omitempty"`
	DatasetURLs    []string `json:"dataset_urls,omitempty"`
	RiskFlags      []string `json:"risk_flags,omitempty"`
}

// Classifier renders a relevance verdict for a single paper. bucketHints are
// the heuristically detected buckets, passed through as a nudge.
type Classifier interface {
	Classify(ctx context.Context, paper model.Paper, bucketHints []string) (*Decision, error)
	Name() string
}

// Error wraps a classification failure. Transient failures (rate limits,
// upstream outages, malformed responses) are worth retrying; the rest are
// not.
type Error struct {
	Op        string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("classify %s: %s: %v", e.Op, kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth another attempt
func IsTransient(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Transient
	}
	return false
}
