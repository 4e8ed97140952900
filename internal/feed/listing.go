package feed

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/avolkov/paperboy/internal/model"
	"github.com/avolkov/paperboy/internal/util"
)

var listingDateExpr = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)

// ListingSource scrapes arXiv HTML listing pages (/list/<cat>/recent).
// Unlike the Atom API it has no machine contract, so this source honors
// robots.txt and any crawl delay the host requests.
type ListingSource struct {
	fetcher *Fetcher
	robots  *util.RobotsChecker
	urls    []string
	logger  *slog.Logger
}

var _ Source = (*ListingSource)(nil)

// NewListingSource creates a listing scraper for the given page URLs
func NewListingSource(fetcher *Fetcher, robots *util.RobotsChecker, urls []string, logger *slog.Logger) *ListingSource {
	return &ListingSource{
		fetcher: fetcher,
		robots:  robots,
		urls:    urls,
		logger:  logger,
	}
}

func (s *ListingSource) Name() string {
	return "arxiv-listing"
}

func (s *ListingSource) Fetch(ctx context.Context, window Window) ([]model.Paper, error) {
	var papers []model.Paper
	seen := map[string]struct{}{}

	for _, pageURL := range s.urls {
		allowed, crawlDelay, err := s.robots.CanFetch(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("robots check %s: %w", pageURL, err)
		}
		if !allowed {
			s.logger.Warn("listing page disallowed by robots.txt", "url", pageURL)
			continue
		}
		if crawlDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(crawlDelay):
			}
		}

		body, err := s.fetcher.Get(ctx, s.Name(), pageURL)
		if err != nil {
			return nil, fmt.Errorf("fetch listing %s: %w", pageURL, err)
		}

		pagePapers, err := parseListing(body, window)
		if err != nil {
			return nil, fmt.Errorf("parse listing %s: %w", pageURL, err)
		}

		for _, paper := range pagePapers {
			if _, ok := seen[paper.SourceID]; ok {
				continue
			}
			seen[paper.SourceID] = struct{}{}
			papers = append(papers, paper)
		}
	}

	s.logger.Debug("listing fetch complete", "pages", len(s.urls), "papers", len(papers))
	return papers, nil
}

// parseListing walks the dt/dd pairs of an arXiv listing page
func parseListing(body []byte, window Window) ([]model.Paper, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	var papers []model.Paper
	doc.Find("dl > dt").Each(func(i int, dt *goquery.Selection) {
		dd := dt.Next()

		paper, ok := parseListingEntry(dt, dd)
		if !ok {
			return
		}
		if !paper.Published.IsZero() && paper.Published.Before(window.Start) {
			return
		}
		papers = append(papers, paper)
	})

	return papers, nil
}

func parseListingEntry(dt, dd *goquery.Selection) (model.Paper, bool) {
	link := dt.Find(`a[href*="/abs/"]`).First()

	id := strings.TrimSpace(link.Text())
	id = strings.TrimPrefix(id, "arXiv:")
	if id == "" {
		if href, exists := link.Attr("href"); exists {
			id = strings.TrimPrefix(href, "/abs/")
		}
	}
	if id == "" {
		return model.Paper{}, false
	}

	href, _ := link.Attr("href")
	if href != "" && !strings.HasPrefix(href, "http") {
		href = "https://arxiv.org" + href
	}

	title := strings.TrimSpace(dd.Find(".list-title").First().Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))

	abstract := strings.TrimSpace(dd.Find(".mathjax").First().Text())
	abstract = strings.TrimSpace(strings.TrimPrefix(abstract, "Abstract:"))

	var authors []string
	dd.Find(".list-authors a").Each(func(i int, a *goquery.Selection) {
		if name := strings.TrimSpace(a.Text()); name != "" {
			authors = append(authors, name)
		}
	})

	comments := strings.TrimSpace(dd.Find(".list-comments").First().Text())
	comments = strings.TrimSpace(strings.TrimPrefix(comments, "Comments:"))

	var published time.Time
	dateText := strings.TrimSpace(dd.Find(".list-date").First().Text())
	if dateText == "" {
		dateText = strings.TrimSpace(dd.Find(".list-dateline").First().Text())
	}
	if match := listingDateExpr.FindString(dateText); match != "" {
		if parsed, err := time.Parse("2 Jan 2006", match); err == nil {
			published = parsed.UTC()
		}
	}

	return model.Paper{
		Source:      "arxiv",
		SourceID:    id,
		Title:       collapseWhitespace(title),
		Abstract:    collapseWhitespace(abstract),
		Authors:     authors,
		Published:   published,
		Version:     1,
		AbstractURL: href,
		Comments:    collapseWhitespace(comments),
	}, true
}
