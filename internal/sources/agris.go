package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/plumeline/plumeline/models"
)

// AgrisAdapter scrapes the FAO AGRIS search portal. AGRIS has no public JSON
// API, so results are parsed out of the search page HTML.
type AgrisAdapter struct {
	client     *http.Client
	maxRetries int
	baseURL    string
}

// NewAgris creates the adapter
func NewAgris(timeout time.Duration, maxRetries int) *AgrisAdapter {
	return &AgrisAdapter{
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		baseURL:    "https://agris.fao.org/search/en",
	}
}

// Name returns the adapter identifier
func (a *AgrisAdapter) Name() string { return "agris" }

var agrisYearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// Search fetches the AGRIS result page and extracts record cards
func (a *AgrisAdapter) Search(ctx context.Context, query string, maxResults, minYear int) ([]*models.ExternalDocument, error) {
	u := fmt.Sprintf("%s?q=%s", a.baseURL, url.QueryEscape(query))

	var body []byte
	var lastErr error
	for attempt := 0; attempt < a.maxRetries || attempt == 0; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		var retryable bool
		body, retryable, lastErr = a.fetch(ctx, u)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable {
			break
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrParse, err)
	}

	var docs []*models.ExternalDocument
	doc.Find("div.result-item, article.search-result").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		title := strings.TrimSpace(card.Find("h3 a, a.title").First().Text())
		if title == "" {
			return true
		}
		href, _ := card.Find("h3 a, a.title").First().Attr("href")
		if href != "" && !strings.HasPrefix(href, "http") {
			href = "https://agris.fao.org" + href
		}

		abstract := strings.TrimSpace(card.Find("div.abstract, p.abstract").First().Text())
		meta := strings.TrimSpace(card.Find("div.meta, span.date").Text())

		year := 0
		if m := agrisYearRe.FindString(meta); m != "" {
			year, _ = strconv.Atoi(m)
		}
		if minYear > 0 && year > 0 && year < minYear {
			return true
		}

		var authors []string
		card.Find("span.author, a.author").Each(func(_ int, s *goquery.Selection) {
			if name := strings.TrimSpace(s.Text()); name != "" {
				authors = append(authors, name)
			}
		})

		docs = append(docs, &models.ExternalDocument{
			Title:    title,
			Abstract: abstract,
			Authors:  authors,
			Year:     year,
			Source:   a.Name(),
			URL:      href,
		})
		return len(docs) < maxResults
	})
	return docs, nil
}

func (a *AgrisAdapter) fetch(ctx context.Context, u string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", models.ErrSource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("%w: status %d", models.ErrSource, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("%w: status %d", models.ErrSource, resp.StatusCode)
	}

	const maxBody = 4 << 20
	body, err = io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", models.ErrSource, err)
	}
	return body, false, nil
}
