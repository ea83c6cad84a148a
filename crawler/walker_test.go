package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"imovelsage/config"
	"imovelsage/models"
)

func testSite() *config.SiteConfig {
	return &config.SiteConfig{
		ID:                  "test_site",
		BaseURL:             "https://example.test",
		TTLDays:             7,
		Concurrency:         2,
		DelayMS:             1,
		RetryAttempts:       2,
		MaxConsecutiveSkips: 3,
		AllowedStatuses:     []int{403, 404},
	}
}

// indexHTML renders a minimal index page with one card per id.
func indexHTML(ids []string, nextEnabled bool) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="grid">`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<a data-id="listing-card-link" href="/pt/comprar/apartamento/x/venda-apartamento-x/%s">`, id)
		b.WriteString(`<p class="text-ellipsis">Braga</p><b>100 m²</b><span>100.000 €</span></a>`)
	}
	b.WriteString(`</div>`)
	class := "MuiPaginationItem-root"
	if !nextEnabled {
		class += " Mui-disabled"
	}
	fmt.Fprintf(&b, `<button aria-label="Go to next page" class="%s"></button>`, class)
	b.WriteString(`</body></html>`)
	return b.String()
}

type fakePage struct {
	html string
	err  error
}

type fakeIndex struct {
	mu    sync.Mutex
	pages map[int]fakePage
	calls []int // page numbers in fetch order, retries included
}

func (f *fakeIndex) FetchIndex(_ context.Context, pageURL string) (*goquery.Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	page, _ := strconv.Atoi(u.Query().Get("p"))

	f.mu.Lock()
	f.calls = append(f.calls, page)
	f.mu.Unlock()

	p, ok := f.pages[page]
	if !ok {
		return nil, fmt.Errorf("no such page %d", page)
	}
	if p.err != nil {
		return nil, p.err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(p.html))
}

func (f *fakeIndex) callCount(page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.calls {
		if p == page {
			n++
		}
	}
	return n
}

type fakeDetail struct {
	mu    sync.Mutex
	fail  map[string]error // by listing id suffix of the link
	calls map[string]int
}

func (f *fakeDetail) FetchDetail(_ context.Context, link string) (*goquery.Document, error) {
	id := link[strings.LastIndex(link, "/")+1:]

	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[id]++
	f.mu.Unlock()

	if err, ok := f.fail[id]; ok {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
}

func (f *fakeDetail) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type fakeIngest struct {
	mu     sync.Mutex
	stored []string
}

func (f *fakeIngest) Ingest(_ context.Context, rec *models.ListingRecord) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, rec.ID)
	return true
}

func (f *fakeIngest) storedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stored...)
}

const seedURL = "https://example.test/pt/comprar?p=1&s=braga"

func newTestCrawler(site *config.SiteConfig, index IndexFetcher, detail *fakeDetail, ingest *fakeIngest) *Crawler {
	return &Crawler{
		Site:     site,
		Index:    index,
		Detail:   detail,
		Ingest:   ingest,
		Cache:    map[string]models.CacheEntry{},
		Progress: NewProgress(site.ExpectedPages),
		Now:      func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) },
	}
}

func TestCrawlerRun_StopsAtLastPage(t *testing.T) {
	index := &fakeIndex{pages: map[int]fakePage{
		1: {html: indexHTML([]string{"100-1", "100-2"}, true)},
		2: {html: indexHTML([]string{"200-1"}, true)},
		3: {html: indexHTML([]string{"300-1"}, false)},
	}}
	detail := &fakeDetail{}
	ingest := &fakeIngest{}
	c := newTestCrawler(testSite(), index, detail, ingest)

	if err := c.Run(context.Background(), seedURL, 1); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := len(index.calls); got != 3 {
		t.Fatalf("expected exactly 3 index fetches, got %d (%v)", got, index.calls)
	}
	if index.callCount(4) != 0 {
		t.Fatal("must not fetch past the disabled next-page control")
	}

	snap := c.Progress.Snapshot()
	if snap.PagesVisited != 3 || snap.ListingsSeen != 4 {
		t.Fatalf("expected 3 pages / 4 cards, got %d / %d", snap.PagesVisited, snap.ListingsSeen)
	}
	if stored := ingest.storedIDs(); len(stored) != 4 {
		t.Fatalf("expected 4 stored listings, got %v", stored)
	}
}

func TestCrawlerRun_SeedPageFatal(t *testing.T) {
	index := &fakeIndex{pages: map[int]fakePage{
		1: {err: errors.New("browser crashed")},
	}}
	c := newTestCrawler(testSite(), index, &fakeDetail{}, &fakeIngest{})

	err := c.Run(context.Background(), seedURL, 1)
	if err == nil {
		t.Fatal("unreachable seed page must fail the run")
	}
	if got := index.callCount(1); got != 2 {
		t.Fatalf("expected the full retry budget of 2 attempts, got %d", got)
	}
	if index.callCount(2) != 0 {
		t.Fatal("must not advance past a dead seed page")
	}
}

func TestCrawlerRun_PageSkipAdvances(t *testing.T) {
	index := &fakeIndex{pages: map[int]fakePage{
		1: {html: indexHTML([]string{"100-1"}, true)},
		2: {err: errors.New("timeout")},
		3: {html: indexHTML([]string{"300-1"}, false)},
	}}
	ingest := &fakeIngest{}
	c := newTestCrawler(testSite(), index, &fakeDetail{}, ingest)

	if err := c.Run(context.Background(), seedURL, 1); err != nil {
		t.Fatalf("mid-walk page loss must not fail the run: %v", err)
	}

	if got := index.callCount(2); got != 2 {
		t.Fatalf("expected 2 attempts on the lost page, got %d", got)
	}

	snap := c.Progress.Snapshot()
	if snap.PagesVisited != 2 || snap.PagesSkipped != 1 {
		t.Fatalf("expected 2 visited / 1 skipped, got %d / %d", snap.PagesVisited, snap.PagesSkipped)
	}
	if stored := ingest.storedIDs(); len(stored) != 2 {
		t.Fatalf("listings on surviving pages must still be stored, got %v", stored)
	}
}

func TestCrawlerRun_ConsecutiveSkipCap(t *testing.T) {
	index := &fakeIndex{pages: map[int]fakePage{
		1: {html: indexHTML([]string{"100-1"}, true)},
	}}
	c := newTestCrawler(testSite(), index, &fakeDetail{}, &fakeIngest{})

	if err := c.Run(context.Background(), seedURL, 1); err != nil {
		t.Fatalf("hitting the skip cap must end the run cleanly: %v", err)
	}

	// Pages 2-4 are lost; page 5 must never be attempted.
	for page := 2; page <= 4; page++ {
		if got := index.callCount(page); got != 2 {
			t.Fatalf("expected 2 attempts for page %d, got %d", page, got)
		}
	}
	if index.callCount(5) != 0 {
		t.Fatal("walk must stop after the consecutive-skip cap")
	}

	if snap := c.Progress.Snapshot(); snap.PagesSkipped != 3 {
		t.Fatalf("expected 3 skipped pages, got %d", snap.PagesSkipped)
	}
}

func TestCrawlerRun_DetailFailureIsolated(t *testing.T) {
	index := &fakeIndex{pages: map[int]fakePage{
		1: {html: indexHTML([]string{"100-1", "100-2", "100-3"}, false)},
	}}
	detail := &fakeDetail{fail: map[string]error{
		"100-2": errors.New("connection reset"),
	}}
	ingest := &fakeIngest{}
	c := newTestCrawler(testSite(), index, detail, ingest)

	if err := c.Run(context.Background(), seedURL, 1); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	stored := ingest.storedIDs()
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored listings, got %v", stored)
	}
	for _, id := range stored {
		if id == "100-2" {
			t.Fatal("failed listing must not be stored")
		}
	}
	if got := detail.callCount("100-2"); got != 2 {
		t.Fatalf("transient detail failure should use the retry budget, got %d attempts", got)
	}

	snap := c.Progress.Snapshot()
	if snap.ListingsStored != 2 || snap.ListingsFailed != 1 {
		t.Fatalf("expected 2 stored / 1 failed, got %d / %d", snap.ListingsStored, snap.ListingsFailed)
	}
}

func TestCrawlerRun_AllowedStatusNotRetried(t *testing.T) {
	index := &fakeIndex{pages: map[int]fakePage{
		1: {html: indexHTML([]string{"100-1"}, false)},
	}}
	detail := &fakeDetail{fail: map[string]error{
		"100-1": &StatusError{Code: 404},
	}}
	c := newTestCrawler(testSite(), index, detail, &fakeIngest{})

	if err := c.Run(context.Background(), seedURL, 1); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := detail.callCount("100-1"); got != 1 {
		t.Fatalf("a gone listing must not be retried, got %d attempts", got)
	}
	if snap := c.Progress.Snapshot(); snap.ListingsFailed != 1 {
		t.Fatalf("expected 1 failed listing, got %d", snap.ListingsFailed)
	}
}

func TestCrawlerRun_FreshListingSkipped(t *testing.T) {
	index := &fakeIndex{pages: map[int]fakePage{
		1: {html: indexHTML([]string{"100-1", "100-2"}, false)},
	}}
	detail := &fakeDetail{}
	ingest := &fakeIngest{}
	c := newTestCrawler(testSite(), index, detail, ingest)

	recent := c.Now().Add(-24 * time.Hour)
	c.Cache["100-1"] = models.CacheEntry{Price: 100000, LastCrawled: &recent}

	if err := c.Run(context.Background(), seedURL, 1); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := detail.callCount("100-1"); got != 0 {
		t.Fatalf("fresh listing must not be refetched, got %d detail calls", got)
	}
	if got := detail.callCount("100-2"); got != 1 {
		t.Fatalf("unknown listing must be fetched, got %d detail calls", got)
	}
	if stored := ingest.storedIDs(); len(stored) != 1 || stored[0] != "100-2" {
		t.Fatalf("expected only 100-2 stored, got %v", stored)
	}
}

func TestCrawlerRun_IndexDispatchDelay(t *testing.T) {
	index := &fakeIndex{pages: map[int]fakePage{
		1: {html: indexHTML(nil, true)},
		2: {html: indexHTML(nil, true)},
		3: {html: indexHTML(nil, false)},
	}}
	site := testSite()
	site.DelayMS = 50
	c := newTestCrawler(site, index, &fakeDetail{}, &fakeIngest{})

	start := time.Now()
	if err := c.Run(context.Background(), seedURL, 1); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// The first dispatch is immediate; pages 2 and 3 must each wait out the
	// configured delay.
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("3 index pages fetched in %v, dispatch delay not enforced", elapsed)
	}
}

func TestPageURL(t *testing.T) {
	got, err := PageURL("https://example.test/pt/comprar?p=1&s=braga", 7)
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(got)
	if u.Query().Get("p") != "7" {
		t.Fatalf("expected p=7, got %s", got)
	}
	if u.Query().Get("s") != "braga" {
		t.Fatalf("other query params must survive, got %s", got)
	}

	got, err = PageURL("https://example.test/pt/comprar", 2)
	if err != nil {
		t.Fatal(err)
	}
	u, _ = url.Parse(got)
	if u.Query().Get("p") != "2" {
		t.Fatalf("missing p param must be added, got %s", got)
	}
}
