package score

import (
	"math"

	"github.com/avolkov/paperboy/internal/model"
)

// Scorer blends the model verdict with heuristic signals into the final
// relevance score used for ordering and thresholds.
type Scorer struct {
	modelWeight     float64
	heuristicWeight float64
}

// NewScorer creates a scorer with the standard 70/30 blend
func NewScorer() *Scorer {
	return &Scorer{modelWeight: 0.7, heuristicWeight: 0.3}
}

// Finalize computes and stores the final score for a classified paper.
//
// The blend starts from the weighted model and heuristic scores, then
// applies artifact bonuses (code, datasets) and penalties (simulation-only
// work, missing code, greylisted topics). The result is clamped to [0,100].
func (s *Scorer) Finalize(p *model.ScoredPaper) {
	score := float64(p.Score)*s.modelWeight + float64(p.HeuristicScore)*s.heuristicWeight

	if len(p.CodeURLs) > 0 {
		score += 5
	}
	if len(p.DatasetURLs) > 0 {
		score += 3
	}

	for _, flag := range p.RiskFlags {
		switch flag {
		case "sim-only":
			score -= 10
		case "no-code":
			score -= 5
		}
	}

	if p.Greylisted {
		score -= 15
	}

	p.FinalScore = clamp(score)
}

// FinalizeAll scores a whole batch in place
func (s *Scorer) FinalizeAll(papers []model.ScoredPaper) {
	for i := range papers {
		s.Finalize(&papers[i])
	}
}

func clamp(score float64) int {
	return int(math.Round(math.Max(0, math.Min(100, score))))
}
