// Package sources fans a query out to external academic APIs, deduplicates
// the returned documents and ranks them with a composite score.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/plumeline/plumeline/models"
)

// Adapter is one external academic source. Concrete rate limits and response
// parsing are adapter-private; every adapter returns the homogeneous document
// record.
type Adapter interface {
	Name() string
	Search(ctx context.Context, query string, maxResults, minYear int) ([]*models.ExternalDocument, error)
}

// httpGetJSON performs a GET with bounded retries and decodes the JSON body.
// Retries cover transport errors and 5xx/429 only; malformed bodies are
// ParseError and never retried.
func httpGetJSON(ctx context.Context, client *http.Client, url string, maxRetries int, out any) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, retryable, err := doGet(ctx, client, url)
		if err == nil {
			if decodeErr := json.Unmarshal(body, out); decodeErr != nil {
				return fmt.Errorf("%w: %v", models.ErrParse, decodeErr)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return lastErr
}

func doGet(ctx context.Context, client *http.Client, url string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
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

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", models.ErrSource, err)
	}
	return body, false, nil
}
