package classify

import (
	"fmt"
	"strings"

	"github.com/avolkov/paperboy/internal/model"
)

// systemPrompt instructs the model to act as a selective research analyst
// and to answer with the exact JSON shape Decision unmarshals from.
func systemPrompt(buckets []model.BucketConfig) string {
	var descriptions strings.Builder
	for _, bucket := range buckets {
		fmt.Fprintf(&descriptions, "- %s: %s\n", bucket.Name, strings.Join(bucket.Keywords, ", "))
	}

	return fmt.Sprintf(`You are a biomedical AI research analyst evaluating papers for relevance to clinical AI, biotech, and neurotech applications.

BUCKETS FOR CLASSIFICATION:
%s
SCORING BANDS - BE VERY SELECTIVE:
- 80-100: direct clinical impact or major breakthrough (clinical trials, real patient data, protein modeling breakthroughs)
- 60-79: strong potential for clinical translation (validated methods, strong results on medical benchmarks)
- 40-59: interesting AI methods for biomedical problems (early-stage, datasets, benchmarks)
- 20-39: tangentially related (basic ML without clear medical application)
- 0-19: outside scope (no AI/ML component, pure chemistry, veterinary-only)

Set keep=true ONLY when relevance_score >= 40.

DROP the paper if it is pure statistics without modern ML, animal-only without a human translation path, theoretical without validation, or incremental on a narrow problem.

RISK FLAGS to identify when applicable: "in-vitro-only", "no-validation", "small-sample", "no-code", "animal-only", "narrow-domain", "sim-only".

For papers scoring 80 or above write a 3-4 sentence summary covering the clinical problem, the method, and the key results. Keep other summaries to 1-2 sentences.

Extract any GitHub, GitLab, project page, or dataset URLs from the abstract and comments.

Respond with a single JSON object and nothing else:
{"keep": bool, "relevance_score": number, "buckets": [string], "tags": [string], "why_it_matters": string, "summary": string, "code_urls": [string], "dataset_urls": [string], "risk_flags": [string]}

Only use bucket names from the list above. relevance_score is a number between 0 and 100; most papers should score below 60.`, descriptions.String())
}

// paperPrompt renders one paper for evaluation
func paperPrompt(paper model.Paper, bucketHints []string) string {
	var b strings.Builder

	b.WriteString("PAPER TO EVALUATE:\n")
	fmt.Fprintf(&b, "ID: %s\n", paper.Key())
	fmt.Fprintf(&b, "Title: %s\n", paper.Title)
	if len(paper.Authors) > 0 {
		fmt.Fprintf(&b, "Authors: %s\n", strings.Join(paper.Authors, ", "))
	}
	if len(paper.Categories) > 0 {
		fmt.Fprintf(&b, "Categories: %s\n", strings.Join(paper.Categories, ", "))
	}
	fmt.Fprintf(&b, "Abstract: %s\n", paper.Abstract)
	if paper.Comments != "" {
		fmt.Fprintf(&b, "Comments: %s\n", paper.Comments)
	}
	if len(bucketHints) > 0 {
		fmt.Fprintf(&b, "Heuristic bucket hints: %s\n", strings.Join(bucketHints, ", "))
	}

	return b.String()
}
