package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/plumeline/plumeline/models"
)

// SemanticScholarAdapter searches the Semantic Scholar Graph API
type SemanticScholarAdapter struct {
	client     *http.Client
	apiKey     string
	maxRetries int
	baseURL    string
}

// NewSemanticScholar creates the adapter; apiKey is optional
func NewSemanticScholar(apiKey string, timeout time.Duration, maxRetries int) *SemanticScholarAdapter {
	return &SemanticScholarAdapter{
		client:     &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		maxRetries: maxRetries,
		baseURL:    "https://api.semanticscholar.org/graph/v1",
	}
}

// Name returns the adapter identifier
func (a *SemanticScholarAdapter) Name() string { return "semanticscholar" }

type s2Response struct {
	Data []struct {
		Title       string `json:"title"`
		Abstract    string `json:"abstract"`
		Year        int    `json:"year"`
		URL         string `json:"url"`
		CitationCnt int    `json:"citationCount"`
		ExternalIDs struct {
			DOI      string `json:"DOI"`
			PubMed   string `json:"PubMed"`
			PubMedC  string `json:"PubMedCentral"`
		} `json:"externalIds"`
		Journal struct {
			Name string `json:"name"`
		} `json:"journal"`
		Authors []struct {
			Name string `json:"name"`
		} `json:"authors"`
	} `json:"data"`
}

// Search queries papers matching the query, filtered by publication year
func (a *SemanticScholarAdapter) Search(ctx context.Context, query string, maxResults, minYear int) ([]*models.ExternalDocument, error) {
	u := fmt.Sprintf("%s/paper/search?query=%s&limit=%d&year=%d-&fields=title,abstract,year,url,citationCount,externalIds,journal,authors",
		a.baseURL, url.QueryEscape(query), maxResults, minYear)

	var decoded s2Response
	if err := httpGetJSON(ctx, a.client, u, a.maxRetries, &decoded); err != nil {
		return nil, err
	}

	docs := make([]*models.ExternalDocument, 0, len(decoded.Data))
	for _, p := range decoded.Data {
		if p.Title == "" || (minYear > 0 && p.Year > 0 && p.Year < minYear) {
			continue
		}
		authors := make([]string, 0, len(p.Authors))
		for _, author := range p.Authors {
			authors = append(authors, author.Name)
		}
		docs = append(docs, &models.ExternalDocument{
			Title:         p.Title,
			Abstract:      p.Abstract,
			Authors:       authors,
			Year:          p.Year,
			Source:        a.Name(),
			URL:           p.URL,
			DOI:           p.ExternalIDs.DOI,
			PMID:          p.ExternalIDs.PubMed,
			PMCID:         p.ExternalIDs.PubMedC,
			Journal:       p.Journal.Name,
			CitationCount: p.CitationCnt,
		})
	}
	return docs, nil
}
