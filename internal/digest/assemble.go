package digest

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/paperboy/internal/model"
)

// Assembler turns a scored batch into the digest structure: top picks,
// then buckets in their configured order, then an also-noteworthy tail.
// Every paper appears at most once.
type Assembler struct {
	cfg         model.DigestConfig
	bucketOrder []string
}

// NewAssembler creates an assembler. bucketOrder is the configured bucket
// enumeration; the uncategorized bucket is always appended after it.
func NewAssembler(cfg model.DigestConfig, bucketOrder []string) *Assembler {
	return &Assembler{cfg: cfg, bucketOrder: bucketOrder}
}

// Eligible reports whether a classified paper qualifies for the digest
func (a *Assembler) Eligible(p model.ScoredPaper) bool {
	return p.Keep && p.FinalScore >= a.cfg.MinScore
}

// Assemble builds a digest from eligible papers. An empty input produces a
// valid empty digest, not an error.
func (a *Assembler) Assemble(papers []model.ScoredPaper, totalSeen int) model.Digest {
	digest := model.Digest{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		TotalSeen:   totalSeen,
	}
	// The threshold is enforced here, not trusted from the caller
	ordered := make([]model.ScoredPaper, 0, len(papers))
	for _, p := range papers {
		if a.Eligible(p) {
			ordered = append(ordered, p)
		}
	}
	if len(ordered) == 0 {
		return digest
	}
	sortPapers(ordered)

	// Top picks come off the head of the ordering
	topCount := a.cfg.TopPicks
	if topCount > len(ordered) {
		topCount = len(ordered)
	}
	digest.TopPicks = ordered[:topCount]
	remaining := ordered[topCount:]

	used := make(map[model.Key]struct{}, len(remaining))

	for _, name := range append(append([]string{}, a.bucketOrder...), model.BucketUncategorized) {
		var members []model.ScoredPaper
		for _, p := range remaining {
			if _, taken := used[p.Key()]; taken {
				continue
			}
			if paperInBucket(p, name) {
				members = append(members, p)
			}
		}
		if len(members) == 0 {
			continue
		}

		sortPapers(members)
		if a.cfg.PerBucketCap > 0 && len(members) > a.cfg.PerBucketCap {
			members = members[:a.cfg.PerBucketCap]
		}
		for _, p := range members {
			used[p.Key()] = struct{}{}
		}
		digest.Buckets = append(digest.Buckets, model.DigestBucket{Name: name, Papers: members})
	}

	// High scorers that fell through every bucket cap
	for _, p := range remaining {
		if _, taken := used[p.Key()]; taken {
			continue
		}
		if p.FinalScore >= a.cfg.NoteworthyScore {
			digest.Noteworthy = append(digest.Noteworthy, p)
		}
	}
	sortPapers(digest.Noteworthy)

	return digest
}

// paperInBucket matches a paper against one bucket name. Papers without any
// bucket belong to the uncategorized section.
func paperInBucket(p model.ScoredPaper, name string) bool {
	if len(p.Buckets) == 0 {
		return name == model.BucketUncategorized
	}
	for _, b := range p.Buckets {
		if b == name {
			return true
		}
	}
	return false
}

// sortPapers applies the digest ordering: final score descending, then
// newer publication date, then identity key for a stable total order.
func sortPapers(papers []model.ScoredPaper) {
	sort.SliceStable(papers, func(i, j int) bool {
		if papers[i].FinalScore != papers[j].FinalScore {
			return papers[i].FinalScore > papers[j].FinalScore
		}
		if !papers[i].Published.Equal(papers[j].Published) {
			return papers[i].Published.After(papers[j].Published)
		}
		return papers[i].Key().String() < papers[j].Key().String()
	})
}
