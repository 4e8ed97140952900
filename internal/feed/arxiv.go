package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/avolkov/paperboy/internal/model"
)

const (
	arxivAPIBase   = "https://export.arxiv.org/api/query"
	arxivPageSize  = 100
	arxivSourceKey = "arxiv"
)

var arxivVersionExpr = regexp.MustCompile(`v(\d+)$`)

// ArxivSource queries the arXiv Atom API per configured category, newest
// first, and stops paging once results fall out of the window.
type ArxivSource struct {
	fetcher    *Fetcher
	baseURL    string
	categories []string
	logger     *slog.Logger
}

var _ Source = (*ArxivSource)(nil)

// NewArxivSource creates the source; baseURL is overridable for tests
func NewArxivSource(fetcher *Fetcher, categories []string, logger *slog.Logger) *ArxivSource {
	return &ArxivSource{
		fetcher:    fetcher,
		baseURL:    arxivAPIBase,
		categories: categories,
		logger:     logger,
	}
}

func (s *ArxivSource) Name() string {
	return arxivSourceKey
}

func (s *ArxivSource) Fetch(ctx context.Context, window Window) ([]model.Paper, error) {
	var papers []model.Paper
	seen := map[string]struct{}{}

	for _, category := range s.categories {
		start := 0
		for {
			page, err := s.fetchPage(ctx, category, start)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", category, err)
			}
			if len(page) == 0 {
				break
			}

			exhausted := false
			for _, paper := range page {
				if paper.Published.Before(window.Start) {
					exhausted = true
					break
				}
				if _, ok := seen[paper.SourceID]; ok {
					continue
				}
				seen[paper.SourceID] = struct{}{}
				papers = append(papers, paper)
			}

			if exhausted || len(page) < arxivPageSize {
				break
			}
			start += arxivPageSize
		}
	}

	s.logger.Debug("arxiv fetch complete", "categories", len(s.categories), "papers", len(papers))
	return papers, nil
}

func (s *ArxivSource) fetchPage(ctx context.Context, category string, start int) ([]model.Paper, error) {
	query := url.Values{}
	query.Set("search_query", "cat:"+category)
	query.Set("sortBy", "submittedDate")
	query.Set("sortOrder", "descending")
	query.Set("start", strconv.Itoa(start))
	query.Set("max_results", strconv.Itoa(arxivPageSize))

	body, err := s.fetcher.Get(ctx, arxivSourceKey, s.baseURL+"?"+query.Encode())
	if err != nil {
		return nil, err
	}

	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse atom feed: %w", err)
	}

	papers := make([]model.Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		paper, err := entry.toPaper()
		if err != nil {
			s.logger.Warn("skipping malformed arxiv entry", "id", entry.ID, "error", err)
			continue
		}
		papers = append(papers, paper)
	}
	return papers, nil
}

// Atom feed shapes for the arXiv API

type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID         string          `xml:"id"`
	Title      string          `xml:"title"`
	Summary    string          `xml:"summary"`
	Published  string          `xml:"published"`
	Authors    []arxivAuthor   `xml:"author"`
	Categories []arxivCategory `xml:"category"`
	Links      []arxivLink     `xml:"link"`
	Comment    string          `xml:"comment"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivCategory struct {
	Term string `xml:"term,attr"`
}

type arxivLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Rel   string `xml:"rel,attr"`
}

func (e arxivEntry) toPaper() (model.Paper, error) {
	// Entry IDs look like http://arxiv.org/abs/2501.01234v2
	idx := strings.LastIndex(e.ID, "/abs/")
	if idx < 0 {
		return model.Paper{}, fmt.Errorf("unrecognized entry id %q", e.ID)
	}
	versionedID := e.ID[idx+len("/abs/"):]

	version := 1
	sourceID := versionedID
	if match := arxivVersionExpr.FindStringSubmatch(versionedID); match != nil {
		version, _ = strconv.Atoi(match[1])
		sourceID = strings.TrimSuffix(versionedID, match[0])
	}

	published, err := time.Parse(time.RFC3339, e.Published)
	if err != nil {
		return model.Paper{}, fmt.Errorf("parse published date %q: %w", e.Published, err)
	}

	authors := make([]string, 0, len(e.Authors))
	for _, author := range e.Authors {
		authors = append(authors, author.Name)
	}

	categories := make([]string, 0, len(e.Categories))
	for _, category := range e.Categories {
		categories = append(categories, category.Term)
	}

	var pdfURL string
	for _, link := range e.Links {
		if link.Title == "pdf" {
			pdfURL = link.Href
			break
		}
	}

	return model.Paper{
		Source:      arxivSourceKey,
		SourceID:    sourceID,
		Title:       collapseWhitespace(e.Title),
		Abstract:    collapseWhitespace(e.Summary),
		Authors:     authors,
		Categories:  categories,
		Published:   published.UTC(),
		Version:     version,
		AbstractURL: e.ID,
		PDFURL:      pdfURL,
		Comments:    collapseWhitespace(e.Comment),
	}, nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
