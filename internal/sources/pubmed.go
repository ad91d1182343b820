package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/plumeline/plumeline/models"
)

// PubMedAdapter searches the NCBI E-utilities (esearch then esummary)
type PubMedAdapter struct {
	client     *http.Client
	apiKey     string
	maxRetries int
	baseURL    string
}

// NewPubMed creates the adapter; apiKey raises NCBI's rate allowance
func NewPubMed(apiKey string, timeout time.Duration, maxRetries int) *PubMedAdapter {
	return &PubMedAdapter{
		client:     &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		maxRetries: maxRetries,
		baseURL:    "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
	}
}

// Name returns the adapter identifier
func (a *PubMedAdapter) Name() string { return "pubmed" }

type esearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type esummaryResponse struct {
	Result map[string]any `json:"result"`
}

// Search runs esearch for PMIDs then esummary for their records
func (a *PubMedAdapter) Search(ctx context.Context, query string, maxResults, minYear int) ([]*models.ExternalDocument, error) {
	term := query
	if minYear > 0 {
		term = fmt.Sprintf("%s AND %d:3000[dp]", query, minYear)
	}
	searchURL := fmt.Sprintf("%s/esearch.fcgi?db=pubmed&retmode=json&retmax=%d&term=%s%s",
		a.baseURL, maxResults, url.QueryEscape(term), a.keyParam())

	var search esearchResponse
	if err := httpGetJSON(ctx, a.client, searchURL, a.maxRetries, &search); err != nil {
		return nil, err
	}
	ids := search.ESearchResult.IDList
	if len(ids) == 0 {
		return nil, nil
	}

	summaryURL := fmt.Sprintf("%s/esummary.fcgi?db=pubmed&retmode=json&id=%s%s",
		a.baseURL, strings.Join(ids, ","), a.keyParam())

	var summary esummaryResponse
	if err := httpGetJSON(ctx, a.client, summaryURL, a.maxRetries, &summary); err != nil {
		return nil, err
	}

	docs := make([]*models.ExternalDocument, 0, len(ids))
	for _, id := range ids {
		record, ok := summary.Result[id].(map[string]any)
		if !ok {
			continue
		}
		doc := &models.ExternalDocument{
			Title:   str(record["title"]),
			Source:  a.Name(),
			PMID:    id,
			Journal: str(record["fulljournalname"]),
			URL:     "https://pubmed.ncbi.nlm.nih.gov/" + id + "/",
			Year:    yearFromPubDate(str(record["pubdate"])),
		}
		if authors, ok := record["authors"].([]any); ok {
			for _, raw := range authors {
				if author, ok := raw.(map[string]any); ok {
					doc.Authors = append(doc.Authors, str(author["name"]))
				}
			}
		}
		if ids, ok := record["articleids"].([]any); ok {
			for _, raw := range ids {
				entry, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				switch str(entry["idtype"]) {
				case "doi":
					doc.DOI = str(entry["value"])
				case "pmc":
					doc.PMCID = str(entry["value"])
				}
			}
		}
		if doc.Title != "" {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (a *PubMedAdapter) keyParam() string {
	if a.apiKey == "" {
		return ""
	}
	return "&api_key=" + url.QueryEscape(a.apiKey)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func yearFromPubDate(pubdate string) int {
	fields := strings.Fields(pubdate)
	if len(fields) == 0 {
		return 0
	}
	year, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return year
}
