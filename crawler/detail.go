package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"imovelsage/config"
	"imovelsage/httputil"
)

// DetailFetcher fetches one detail page and returns its parsed document.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, link string) (*goquery.Document, error)
}

// StatusError reports a non-2xx response. The allow-listed codes (403, 404)
// are carried this way so the retry wrapper can tell "the listing is gone"
// apart from transport failures worth retrying.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// DetailClient fetches detail pages over plain HTTP. Detail pages are static
// HTML; only the index grid needs a browser.
type DetailClient struct {
	client *http.Client
	site   *config.SiteConfig
}

func NewDetailClient(client *http.Client, site *config.SiteConfig) *DetailClient {
	return &DetailClient{client: client, site: site}
}

func (c *DetailClient) FetchDetail(ctx context.Context, link string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httputil.SetCrawlHeaders(req, c.site)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// fetchDetailWithRetry retries transient failures up to the site's retry
// budget with doubling delays. Allow-listed statuses are returned
// immediately: they mean the listing is gone, not that the transport hiccuped.
func fetchDetailWithRetry(ctx context.Context, fetcher DetailFetcher, link string, site *config.SiteConfig) (*goquery.Document, error) {
	var lastErr error
	delay := site.Delay()

	for attempt := 1; attempt <= site.RetryAttempts; attempt++ {
		doc, err := fetcher.FetchDetail(ctx, link)
		if err == nil {
			return doc, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) && site.StatusAllowed(statusErr.Code) {
			return nil, err
		}

		if attempt < site.RetryAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", site.RetryAttempts, lastErr)
}
