package feed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avolkov/paperboy/internal/model"
)

const (
	pubmedAPIBase    = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	pubmedMaxResults = 500
	pubmedBatchSize  = 200
	pubmedSourceKey  = "pubmed"
)

// PubmedSource queries the NCBI E-utilities API in two steps: esearch turns
// a query plus publication-date window into PMIDs, efetch resolves PMIDs to
// article metadata in batches. An API key raises NCBI's rate allowance but
// is optional.
type PubmedSource struct {
	fetcher *Fetcher
	baseURL string
	apiKey  string
	queries []string
	logger  *slog.Logger
}

var _ Source = (*PubmedSource)(nil)

// NewPubmedSource creates the source; baseURL is overridable for tests
func NewPubmedSource(fetcher *Fetcher, apiKey string, queries []string, logger *slog.Logger) *PubmedSource {
	return &PubmedSource{
		fetcher: fetcher,
		baseURL: pubmedAPIBase,
		apiKey:  apiKey,
		queries: queries,
		logger:  logger,
	}
}

func (s *PubmedSource) Name() string {
	return pubmedSourceKey
}

func (s *PubmedSource) Fetch(ctx context.Context, window Window) ([]model.Paper, error) {
	var papers []model.Paper
	seen := map[string]struct{}{}

	for _, query := range s.queries {
		pmids, err := s.searchPMIDs(ctx, query, window)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", query, err)
		}
		if len(pmids) == 0 {
			continue
		}

		fetched, err := s.fetchDetails(ctx, pmids)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", query, err)
		}
		for _, paper := range fetched {
			if _, dup := seen[paper.SourceID]; dup {
				continue
			}
			seen[paper.SourceID] = struct{}{}
			papers = append(papers, paper)
		}
	}

	s.logger.Debug("pubmed fetch complete", "queries", len(s.queries), "papers", len(papers))
	return papers, nil
}

func (s *PubmedSource) searchPMIDs(ctx context.Context, query string, window Window) ([]string, error) {
	dateRange := fmt.Sprintf("(%s:%s[PDAT])",
		window.Start.UTC().Format("2006/01/02"),
		window.End.UTC().Format("2006/01/02"))

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", query+" AND "+dateRange)
	params.Set("retmax", strconv.Itoa(pubmedMaxResults))
	params.Set("retmode", "json")
	params.Set("sort", "pub_date")
	if s.apiKey != "" {
		params.Set("api_key", s.apiKey)
	}

	body, err := s.fetcher.Get(ctx, pubmedSourceKey, s.baseURL+"/esearch.fcgi?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var result pubmedSearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	return result.Result.IDList, nil
}

func (s *PubmedSource) fetchDetails(ctx context.Context, pmids []string) ([]model.Paper, error) {
	var papers []model.Paper

	for start := 0; start < len(pmids); start += pubmedBatchSize {
		end := start + pubmedBatchSize
		if end > len(pmids) {
			end = len(pmids)
		}

		params := url.Values{}
		params.Set("db", "pubmed")
		params.Set("id", strings.Join(pmids[start:end], ","))
		params.Set("retmode", "xml")
		if s.apiKey != "" {
			params.Set("api_key", s.apiKey)
		}

		body, err := s.fetcher.Get(ctx, pubmedSourceKey, s.baseURL+"/efetch.fcgi?"+params.Encode())
		if err != nil {
			return nil, err
		}

		var set pubmedArticleSet
		if err := xml.Unmarshal(body, &set); err != nil {
			return nil, fmt.Errorf("parse article set: %w", err)
		}

		for _, article := range set.Articles {
			paper, ok := article.toPaper()
			if !ok {
				s.logger.Warn("skipping pubmed article without PMID")
				continue
			}
			papers = append(papers, paper)
		}
	}
	return papers, nil
}

type pubmedSearchResponse struct {
	Result struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// XML shapes for the efetch response

type pubmedArticleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    string `xml:"ArticleTitle"`
			Abstract struct {
				Sections []pubmedAbstractText `xml:"AbstractText"`
			} `xml:"Abstract"`
			Authors []pubmedAuthor `xml:"AuthorList>Author"`
			Journal struct {
				Title string `xml:"Title"`
			} `xml:"Journal"`
		} `xml:"Article"`
		MeshTerms []string `xml:"MeshHeadingList>MeshHeading>DescriptorName"`
	} `xml:"MedlineCitation"`
	Data struct {
		History []pubmedPubDate `xml:"History>PubMedPubDate"`
	} `xml:"PubmedData"`
}

type pubmedAbstractText struct {
	Label string `xml:"Label,attr"`
	Text  string `xml:",chardata"`
}

type pubmedAuthor struct {
	LastName string `xml:"LastName"`
	ForeName string `xml:"ForeName"`
}

type pubmedPubDate struct {
	Status string `xml:"PubStatus,attr"`
	Year   string `xml:"Year"`
	Month  string `xml:"Month"`
	Day    string `xml:"Day"`
}

func (a pubmedArticle) toPaper() (model.Paper, bool) {
	pmid := strings.TrimSpace(a.Citation.PMID)
	if pmid == "" {
		return model.Paper{}, false
	}

	var abstractParts []string
	for _, section := range a.Citation.Article.Abstract.Sections {
		text := strings.TrimSpace(section.Text)
		if text == "" {
			continue
		}
		if section.Label != "" {
			text = section.Label + ": " + text
		}
		abstractParts = append(abstractParts, text)
	}

	var authors []string
	for _, author := range a.Citation.Article.Authors {
		if author.LastName == "" {
			continue
		}
		name := author.LastName
		if author.ForeName != "" {
			name = author.ForeName + " " + name
		}
		authors = append(authors, name)
	}

	// Top MeSH descriptors stand in for categories
	categories := a.Citation.MeshTerms
	if len(categories) > 5 {
		categories = categories[:5]
	}

	return model.Paper{
		Source:      pubmedSourceKey,
		SourceID:    pmid,
		Title:       collapseWhitespace(a.Citation.Article.Title),
		Abstract:    collapseWhitespace(strings.Join(abstractParts, " ")),
		Authors:     authors,
		Categories:  categories,
		Published:   a.published(),
		Version:     1,
		AbstractURL: "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/",
		Comments:    collapseWhitespace(a.Citation.Article.Journal.Title),
	}, true
}

// published prefers the pubmed history date, then entrez; missing dates
// yield a zero time rather than an error.
func (a pubmedArticle) published() time.Time {
	for _, status := range []string{"pubmed", "entrez"} {
		for _, date := range a.Data.History {
			if date.Status != status {
				continue
			}
			if t, ok := date.time(); ok {
				return t
			}
		}
	}
	return time.Time{}
}

func (d pubmedPubDate) time() (time.Time, bool) {
	year, err := strconv.Atoi(d.Year)
	if err != nil {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(d.Month)
	if err != nil || month < 1 || month > 12 {
		month = 1
	}
	day, err := strconv.Atoi(d.Day)
	if err != nil || day < 1 || day > 31 {
		day = 1
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}
