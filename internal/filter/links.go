package filter

import (
	"regexp"

	"github.com/avolkov/paperboy/internal/model"
)

// Papers rarely link artifacts in structured metadata; authors put repo and
// dataset URLs in the abstract or the comments field. These patterns cover
// the hosts that show up in practice.
var (
	codePatterns = []*regexp.Regexp{
		regexp.MustCompile(`https?://github\.com/[\w\-/]+`),
		regexp.MustCompile(`https?://gitlab\.com/[\w\-/]+`),
		regexp.MustCompile(`https?://[\w\-.]+\.github\.io/[\w\-/]+`),
	}
	datasetPatterns = []*regexp.Regexp{
		regexp.MustCompile(`https?://[\w\-.]*huggingface\.co/datasets/[\w\-/]+`),
		regexp.MustCompile(`https?://[\w\-.]*kaggle\.com/[\w\-/]+`),
		regexp.MustCompile(`https?://[\w\-.]*zenodo\.org/[\w\-/]+`),
	}
)

// ExtractLinks pulls code and dataset URLs from a paper's abstract and
// comments, deduplicated in first-seen order.
func ExtractLinks(paper model.Paper) (codeURLs, datasetURLs []string) {
	text := paper.Abstract + " " + paper.Comments

	for _, pattern := range codePatterns {
		codeURLs = append(codeURLs, pattern.FindAllString(text, -1)...)
	}
	for _, pattern := range datasetPatterns {
		datasetURLs = append(datasetURLs, pattern.FindAllString(text, -1)...)
	}

	return dedupe(codeURLs), dedupe(datasetURLs)
}

func dedupe(urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(urls))
	out := urls[:0]
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
