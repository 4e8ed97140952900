package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/avolkov/paperboy/internal/model"
)

const (
	biorxivAPIBase  = "https://api.biorxiv.org/details"
	biorxivPageSize = 100
)

// BiorxivSource pages through the bioRxiv/medRxiv details API. The API is
// cursor based and returns at most 100 items per request; a short page
// means the range is exhausted.
type BiorxivSource struct {
	fetcher *Fetcher
	baseURL string
	servers []string
	logger  *slog.Logger
}

var _ Source = (*BiorxivSource)(nil)

// NewBiorxivSource creates the source; servers are "biorxiv" or "medrxiv"
func NewBiorxivSource(fetcher *Fetcher, servers []string, logger *slog.Logger) *BiorxivSource {
	return &BiorxivSource{
		fetcher: fetcher,
		baseURL: biorxivAPIBase,
		servers: servers,
		logger:  logger,
	}
}

func (s *BiorxivSource) Name() string {
	return "biorxiv"
}

func (s *BiorxivSource) Fetch(ctx context.Context, window Window) ([]model.Paper, error) {
	var papers []model.Paper
	seen := map[string]struct{}{}

	startStr := window.Start.UTC().Format("2006-01-02")
	endStr := window.End.UTC().Format("2006-01-02")

	for _, server := range s.servers {
		cursor := 0
		for {
			url := fmt.Sprintf("%s/%s/%s/%s/%d", s.baseURL, server, startStr, endStr, cursor)
			body, err := s.fetcher.Get(ctx, s.Name(), url)
			if err != nil {
				return nil, fmt.Errorf("server %s: %w", server, err)
			}

			var page biorxivResponse
			if err := json.Unmarshal(body, &page); err != nil {
				return nil, fmt.Errorf("server %s: parse response: %w", server, err)
			}
			if len(page.Collection) == 0 {
				break
			}

			for _, item := range page.Collection {
				paper, ok := item.toPaper(server)
				if !ok {
					continue
				}
				if _, dup := seen[paper.SourceID]; dup {
					continue
				}
				seen[paper.SourceID] = struct{}{}
				papers = append(papers, paper)
			}

			if len(page.Collection) < biorxivPageSize {
				break
			}
			cursor += len(page.Collection)
		}
	}

	s.logger.Debug("biorxiv fetch complete", "servers", len(s.servers), "papers", len(papers))
	return papers, nil
}

type biorxivResponse struct {
	Collection []biorxivItem `json:"collection"`
}

type biorxivItem struct {
	DOI      string `json:"doi"`
	Title    string `json:"title"`
	Authors  string `json:"authors"`
	Abstract string `json:"abstract"`
	Category string `json:"category"`
	Date     string `json:"date"`
	Version  string `json:"version"`
}

func (i biorxivItem) toPaper(server string) (model.Paper, bool) {
	if i.DOI == "" {
		return model.Paper{}, false
	}

	published, err := time.Parse("2006-01-02", i.Date)
	if err != nil {
		published = time.Time{}
	}

	version, err := strconv.Atoi(i.Version)
	if err != nil || version < 1 {
		version = 1
	}

	// Authors arrive as "Last, F.; Last, F."
	var authors []string
	for _, author := range strings.Split(i.Authors, ";") {
		if author = strings.TrimSpace(author); author != "" {
			authors = append(authors, author)
		}
	}

	var categories []string
	if i.Category != "" {
		categories = []string{i.Category}
	}

	return model.Paper{
		Source:      server,
		SourceID:    i.DOI,
		Title:       collapseWhitespace(i.Title),
		Abstract:    collapseWhitespace(i.Abstract),
		Authors:     authors,
		Categories:  categories,
		Published:   published.UTC(),
		Version:     version,
		AbstractURL: "https://doi.org/" + i.DOI,
	}, true
}
