package model

import "time"

// Digest is the grouped, ordered, threshold-filtered output of a single
// pipeline run. It is ephemeral: built, rendered, delivered, discarded.
type Digest struct {
	RunID       string         `json:"run_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	TopPicks    []ScoredPaper  `json:"top_picks,omitempty"`
	Buckets     []DigestBucket `json:"buckets,omitempty"`
	Noteworthy  []ScoredPaper  `json:"also_noteworthy,omitempty"`
	TotalSeen   int            `json:"total_seen"` // Papers that reached classification this run
}

// DigestBucket is one named group of papers, ordered best-first
type DigestBucket struct {
	Name   string        `json:"name"`
	Papers []ScoredPaper `json:"papers"`
}

// Empty reports whether the digest carries nothing to deliver. An empty
// digest is a valid "nothing to report" state, not an error.
func (d Digest) Empty() bool {
	return len(d.TopPicks) == 0 && len(d.Buckets) == 0 && len(d.Noteworthy) == 0
}

// Len returns the total number of papers across all sections
func (d Digest) Len() int {
	n := len(d.TopPicks) + len(d.Noteworthy)
	for _, b := range d.Buckets {
		n += len(b.Papers)
	}
	return n
}
