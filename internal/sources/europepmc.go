package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/plumeline/plumeline/models"
)

// EuropePMCAdapter searches the Europe PMC REST API
type EuropePMCAdapter struct {
	client     *http.Client
	maxRetries int
	baseURL    string
}

// NewEuropePMC creates the adapter
func NewEuropePMC(timeout time.Duration, maxRetries int) *EuropePMCAdapter {
	return &EuropePMCAdapter{
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		baseURL:    "https://www.ebi.ac.uk/europepmc/webservices/rest",
	}
}

// Name returns the adapter identifier
func (a *EuropePMCAdapter) Name() string { return "europepmc" }

type epmcResponse struct {
	ResultList struct {
		Result []struct {
			Title        string `json:"title"`
			AbstractText string `json:"abstractText"`
			AuthorString string `json:"authorString"`
			PubYear      string `json:"pubYear"`
			DOI          string `json:"doi"`
			PMID         string `json:"pmid"`
			PMCID        string `json:"pmcid"`
			Journal      string `json:"journalTitle"`
			CitedByCount int    `json:"citedByCount"`
		} `json:"result"`
	} `json:"resultList"`
}

// Search queries publications, restricted to the requested year range
func (a *EuropePMCAdapter) Search(ctx context.Context, query string, maxResults, minYear int) ([]*models.ExternalDocument, error) {
	q := query
	if minYear > 0 {
		q = fmt.Sprintf("%s AND PUB_YEAR:[%d TO 3000]", query, minYear)
	}
	u := fmt.Sprintf("%s/search?query=%s&format=json&pageSize=%d&resultType=core",
		a.baseURL, url.QueryEscape(q), maxResults)

	var decoded epmcResponse
	if err := httpGetJSON(ctx, a.client, u, a.maxRetries, &decoded); err != nil {
		return nil, err
	}

	docs := make([]*models.ExternalDocument, 0, len(decoded.ResultList.Result))
	for _, r := range decoded.ResultList.Result {
		if r.Title == "" {
			continue
		}
		year, _ := strconv.Atoi(r.PubYear)
		doc := &models.ExternalDocument{
			Title:         r.Title,
			Abstract:      r.AbstractText,
			Year:          year,
			Source:        a.Name(),
			DOI:           r.DOI,
			PMID:          r.PMID,
			PMCID:         r.PMCID,
			Journal:       r.Journal,
			CitationCount: r.CitedByCount,
		}
		if r.AuthorString != "" {
			doc.Authors = []string{r.AuthorString}
		}
		if r.DOI != "" {
			doc.URL = "https://doi.org/" + r.DOI
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
