package digest

import (
	"testing"
	"time"

	"github.com/avolkov/paperboy/internal/model"
)

var bucketOrder = []string{"Diagnostics & Imaging", "Drug Discovery"}

func scored(id string, score int, buckets ...string) model.ScoredPaper {
	return model.ScoredPaper{
		Paper: model.Paper{
			Source:    "arxiv",
			SourceID:  id,
			Published: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		Keep:       true,
		Buckets:    buckets,
		FinalScore: score,
	}
}

func newAssembler(cfg model.DigestConfig) *Assembler {
	if cfg.MinScore == 0 {
		cfg.MinScore = 50
	}
	if cfg.NoteworthyScore == 0 {
		cfg.NoteworthyScore = 60
	}
	if cfg.TopPicks == 0 {
		cfg.TopPicks = 2
	}
	return NewAssembler(cfg, bucketOrder)
}

func TestAssembler_EmptyInput(t *testing.T) {
	d := newAssembler(model.DigestConfig{}).Assemble(nil, 0)

	if !d.Empty() {
		t.Error("expected empty digest")
	}
	if d.RunID == "" {
		t.Error("expected a run ID even for an empty digest")
	}
}

func TestAssembler_DropsIneligiblePapers(t *testing.T) {
	rejected := scored("b", 95, "Drug Discovery")
	rejected.Keep = false

	papers := []model.ScoredPaper{
		scored("a", 10, "Drug Discovery"), // Under MinScore 50
		rejected,
		scored("c", 70, "Drug Discovery"),
	}

	d := newAssembler(model.DigestConfig{}).Assemble(papers, 3)

	if d.Len() != 1 {
		t.Fatalf("expected only the eligible paper, got %d", d.Len())
	}
	if d.TopPicks[0].SourceID != "c" {
		t.Errorf("expected paper c, got %s", d.TopPicks[0].SourceID)
	}
}

func TestAssembler_TopPicksAreHighestScores(t *testing.T) {
	papers := []model.ScoredPaper{
		scored("a", 70, "Drug Discovery"),
		scored("b", 90, "Diagnostics & Imaging"),
		scored("c", 80, "Drug Discovery"),
		scored("d", 60, "Drug Discovery"),
	}

	d := newAssembler(model.DigestConfig{}).Assemble(papers, 4)

	if len(d.TopPicks) != 2 {
		t.Fatalf("expected 2 top picks, got %d", len(d.TopPicks))
	}
	if d.TopPicks[0].SourceID != "b" || d.TopPicks[1].SourceID != "c" {
		t.Errorf("unexpected top picks %s, %s", d.TopPicks[0].SourceID, d.TopPicks[1].SourceID)
	}
}

func TestAssembler_BucketsInConfiguredOrder(t *testing.T) {
	papers := []model.ScoredPaper{
		scored("a", 95, "Diagnostics & Imaging"),
		scored("b", 90, "Diagnostics & Imaging"),
		scored("c", 70, "Drug Discovery"),
		scored("d", 75, "Diagnostics & Imaging"),
	}

	d := newAssembler(model.DigestConfig{}).Assemble(papers, 4)

	// a and b go to top picks; d and c remain
	if len(d.Buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(d.Buckets))
	}
	if d.Buckets[0].Name != "Diagnostics & Imaging" || d.Buckets[1].Name != "Drug Discovery" {
		t.Errorf("buckets out of order: %s, %s", d.Buckets[0].Name, d.Buckets[1].Name)
	}
	if len(d.Buckets[0].Papers) != 1 || d.Buckets[0].Papers[0].SourceID != "d" {
		t.Errorf("unexpected diagnostics members %v", d.Buckets[0].Papers)
	}
}

func TestAssembler_PaperAppearsOnce(t *testing.T) {
	// e matches both buckets; it must land only in the first
	papers := []model.ScoredPaper{
		scored("a", 95, "Diagnostics & Imaging"),
		scored("b", 90, "Diagnostics & Imaging"),
		scored("e", 80, "Diagnostics & Imaging", "Drug Discovery"),
	}

	d := newAssembler(model.DigestConfig{}).Assemble(papers, 3)

	count := 0
	for _, p := range d.TopPicks {
		if p.SourceID == "e" {
			count++
		}
	}
	for _, bucket := range d.Buckets {
		for _, p := range bucket.Papers {
			if p.SourceID == "e" {
				count++
			}
		}
	}
	for _, p := range d.Noteworthy {
		if p.SourceID == "e" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected paper e exactly once, found %d times", count)
	}
}

func TestAssembler_UncategorizedFallback(t *testing.T) {
	papers := []model.ScoredPaper{
		scored("a", 95, "Diagnostics & Imaging"),
		scored("b", 90, "Diagnostics & Imaging"),
		scored("f", 65), // no buckets
	}

	d := newAssembler(model.DigestConfig{}).Assemble(papers, 3)

	var found bool
	for _, bucket := range d.Buckets {
		if bucket.Name == model.BucketUncategorized {
			found = true
			if len(bucket.Papers) != 1 || bucket.Papers[0].SourceID != "f" {
				t.Errorf("unexpected uncategorized members %v", bucket.Papers)
			}
		}
	}
	if !found {
		t.Error("expected an uncategorized bucket")
	}
}

func TestAssembler_OrderingTieBreaks(t *testing.T) {
	older := scored("z-older", 80, "Drug Discovery")
	older.Published = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := scored("a-newer", 80, "Drug Discovery")
	newer.Published = time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	sameDayA := scored("m-one", 80, "Drug Discovery")
	sameDayB := scored("m-two", 80, "Drug Discovery")

	papers := []model.ScoredPaper{older, sameDayB, newer, sameDayA}
	sortPapers(papers)

	want := []string{"a-newer", "m-one", "m-two", "z-older"}
	for i, id := range want {
		if papers[i].SourceID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, papers[i].SourceID)
		}
	}
}

func TestAssembler_PerBucketCapOverflowsToNoteworthy(t *testing.T) {
	papers := []model.ScoredPaper{
		scored("a", 95, "Diagnostics & Imaging"),
		scored("b", 90, "Diagnostics & Imaging"),
		scored("c", 85, "Diagnostics & Imaging"),
		scored("d", 80, "Diagnostics & Imaging"),
		scored("e", 55, "Diagnostics & Imaging"),
	}

	d := newAssembler(model.DigestConfig{PerBucketCap: 1}).Assemble(papers, 5)

	// a, b are top picks; cap leaves only c in the bucket
	if len(d.Buckets) != 1 || len(d.Buckets[0].Papers) != 1 {
		t.Fatalf("expected 1 capped bucket with 1 paper, got %+v", d.Buckets)
	}
	if d.Buckets[0].Papers[0].SourceID != "c" {
		t.Errorf("expected c in bucket, got %s", d.Buckets[0].Papers[0].SourceID)
	}

	// d clears the noteworthy floor, e does not
	if len(d.Noteworthy) != 1 || d.Noteworthy[0].SourceID != "d" {
		t.Errorf("unexpected noteworthy %v", d.Noteworthy)
	}
}

func TestAssembler_Eligible(t *testing.T) {
	a := newAssembler(model.DigestConfig{})

	if !a.Eligible(scored("x", 50)) {
		t.Error("expected score at threshold to be eligible")
	}
	if a.Eligible(scored("y", 49)) {
		t.Error("expected score below threshold to be ineligible")
	}

	dropped := scored("z", 90)
	dropped.Keep = false
	if a.Eligible(dropped) {
		t.Error("expected keep=false to be ineligible")
	}
}

func TestDigest_Len(t *testing.T) {
	papers := []model.ScoredPaper{
		scored("a", 95, "Diagnostics & Imaging"),
		scored("b", 90, "Diagnostics & Imaging"),
		scored("c", 70, "Drug Discovery"),
	}
	d := newAssembler(model.DigestConfig{}).Assemble(papers, 3)
	if d.Len() != 3 {
		t.Errorf("expected Len 3, got %d", d.Len())
	}
}
