package crawler

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"imovelsage/config"
	"imovelsage/models"
)

// FetchResult carries one index-page outcome into the walker's control loop.
// Failures travel as values so skip-and-advance is an explicit branch, not a
// callback side channel.
type FetchResult struct {
	PageNumber int
	Doc        *goquery.Document
	Err        error
}

// Ingestor persists one extracted record, reporting success. The crawler
// never touches storage directly; everything funnels through here.
type Ingestor interface {
	Ingest(ctx context.Context, rec *models.ListingRecord) bool
}

// Clock is injected for staleness tests.
type Clock func() time.Time

// Crawler walks one site's paginated index, filters cards through the
// staleness policy and schedules detail fetches for the survivors.
//
// The cache is seeded once before Run and read-only afterwards; detail jobs
// run concurrently but never write to it, so no locking is needed.
type Crawler struct {
	Site     *config.SiteConfig
	Index    IndexFetcher
	Detail   DetailFetcher
	Ingest   Ingestor
	Cache    map[string]models.CacheEntry
	Progress *Progress
	Now      Clock
}

// Run walks the index from startPage until the next-page control disappears
// or too many consecutive pages are lost. The only error it returns besides
// cancellation is an unreachable first page, which is a fatal startup
// condition; everything after it degrades to page skips.
func (c *Crawler) Run(ctx context.Context, seed string, startPage int) error {
	if c.Now == nil {
		c.Now = time.Now
	}
	if startPage < 1 {
		startPage = 1
	}

	pool := NewWorkerPool(c.Site.Concurrency, c.Site.Delay())
	defer pool.Wait()

	consecutiveSkips := 0

	for page := startPage; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		pageURL, err := PageURL(seed, page)
		if err != nil {
			return fmt.Errorf("derive page %d url: %w", page, err)
		}

		// Index fetches share the dispatch throttle with detail jobs so the
		// site sees one paced request stream, not two.
		pool.throttle()
		res := c.fetchIndexWithRetry(ctx, pageURL, page)

		if res.Err != nil {
			if page == startPage {
				return fmt.Errorf("seed page %d unreachable: %w", page, res.Err)
			}
			consecutiveSkips++
			c.Progress.PageSkipped()
			log.Printf("[%s] page %d lost after %d attempts, advancing: %v",
				c.Site.ID, page, c.Site.RetryAttempts, res.Err)
			if consecutiveSkips >= c.Site.MaxConsecutiveSkips {
				log.Printf("[%s] %d consecutive pages lost, assuming end of results", c.Site.ID, consecutiveSkips)
				return nil
			}
			continue
		}
		consecutiveSkips = 0

		summaries := ExtractSummaries(res.Doc, c.Site.BaseURL, res.PageNumber)
		visited, eta := c.Progress.PageDone(len(summaries))
		log.Printf("[%s] page %d | %d cards | %d pages visited | ETA ~%d min",
			c.Site.ID, res.PageNumber, len(summaries), visited, int(eta.Minutes()))

		c.schedule(ctx, pool, summaries)

		if !HasNextPage(res.Doc) {
			log.Printf("[%s] last page reached at %d", c.Site.ID, res.PageNumber)
			return nil
		}
	}
}

// schedule applies the staleness policy and submits detail fetches for the
// survivors. Detail failures are isolated per listing: logged, counted,
// skipped.
func (c *Crawler) schedule(ctx context.Context, pool *WorkerPool, summaries []models.ListingSummary) {
	now := c.Now()

	for _, summary := range summaries {
		decision := ShouldRefetch(summary.ID, summary.Price, c.Cache, now, c.Site.TTL())
		if !decision.Refetch {
			continue
		}
		if summary.UnstableID {
			log.Printf("[%s] unstable id for %s, keyed on full link", c.Site.ID, summary.Link)
		}

		s := summary
		pool.Submit(func() {
			c.processDetail(ctx, s, decision.Reason)
		})
	}
}

func (c *Crawler) processDetail(ctx context.Context, summary models.ListingSummary, reason RefetchReason) {
	doc, err := fetchDetailWithRetry(ctx, c.Detail, summary.Link, c.Site)
	if err != nil {
		c.Progress.ListingFailed()
		log.Printf("[%s] detail skip %s (%s): %v", c.Site.ID, summary.ID, reason, err)
		return
	}

	rec := ExtractDetail(doc, summary, c.Now())
	if c.Ingest.Ingest(ctx, rec) {
		c.Progress.ListingStored()
	} else {
		c.Progress.ListingFailed()
	}
}

func (c *Crawler) fetchIndexWithRetry(ctx context.Context, pageURL string, page int) FetchResult {
	var lastErr error
	delay := c.Site.Delay()

	for attempt := 1; attempt <= c.Site.RetryAttempts; attempt++ {
		doc, err := c.Index.FetchIndex(ctx, pageURL)
		if err == nil {
			return FetchResult{PageNumber: page, Doc: doc}
		}
		lastErr = err

		if attempt < c.Site.RetryAttempts {
			log.Printf("[%s] page %d attempt %d/%d failed: %v",
				c.Site.ID, page, attempt, c.Site.RetryAttempts, err)
			select {
			case <-ctx.Done():
				return FetchResult{PageNumber: page, Err: ctx.Err()}
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return FetchResult{PageNumber: page, Err: lastErr}
}

// PageURL rewrites the page-number query parameter of the seed address.
func PageURL(seed string, page int) (string, error) {
	u, err := url.Parse(seed)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("p", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// HasNextPage reports whether the index shows an enabled next-page control.
// An absent or disabled control terminates the walk.
func HasNextPage(doc *goquery.Document) bool {
	next := doc.Find(`button[aria-label="Go to next page"]`).First()
	if next.Length() == 0 {
		return false
	}
	class, _ := next.Attr("class")
	return !strings.Contains(class, "Mui-disabled")
}
