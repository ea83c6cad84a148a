package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

// fakeSeedIndex serves pages keyed by seed marker and page number, so tests
// can tell which seed a fetch belongs to.
type fakeSeedIndex struct {
	mu    sync.Mutex
	pages map[string]fakePage // keyed "<s>:<p>" from the query params
	calls map[string]int
}

func (f *fakeSeedIndex) FetchIndex(_ context.Context, pageURL string) (*goquery.Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	key := u.Query().Get("s") + ":" + u.Query().Get("p")

	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[key]++
	f.mu.Unlock()

	p, ok := f.pages[key]
	if !ok {
		return nil, fmt.Errorf("no such page %s", key)
	}
	if p.err != nil {
		return nil, p.err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(p.html))
}

func (f *fakeSeedIndex) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

const (
	seedA = "https://example.test/pt/comprar?p=1&s=a"
	seedB = "https://example.test/pt/comprar?p=1&s=b"
)

func TestCrawlSeeds_ResumePointsAtFailingSeed(t *testing.T) {
	index := &fakeSeedIndex{pages: map[string]fakePage{
		"a:1": {html: indexHTML([]string{"100-1"}, true)},
		"a:2": {html: indexHTML([]string{"100-2"}, false)},
		// seed b has no pages at all, so its first page is fatal
	}}
	c := newTestCrawler(testSite(), index, &fakeDetail{}, &fakeIngest{})

	failedSeed, failedPage, err := crawlSeeds(context.Background(), c, []string{seedA, seedB}, 0, 0)
	if err == nil {
		t.Fatal("dead seed b must fail the walk")
	}
	if failedSeed != 1 {
		t.Fatalf("expected the failing seed index 1, got %d", failedSeed)
	}
	if failedPage != 1 {
		t.Fatalf("pages visited on earlier seeds must not shift the resume page, got %d", failedPage)
	}
}

func TestCrawlSeeds_ResumeSkipsCompletedSeeds(t *testing.T) {
	index := &fakeSeedIndex{pages: map[string]fakePage{
		"a:1": {html: indexHTML([]string{"100-1"}, false)},
		"b:3": {html: indexHTML([]string{"300-1"}, false)},
	}}
	c := newTestCrawler(testSite(), index, &fakeDetail{}, &fakeIngest{})

	if _, _, err := crawlSeeds(context.Background(), c, []string{seedA, seedB}, 1, 3); err != nil {
		t.Fatalf("resume walk failed: %v", err)
	}

	if got := index.callCount("a:1"); got != 0 {
		t.Fatalf("completed seed a must not be refetched, got %d fetches", got)
	}
	if got := index.callCount("b:3"); got != 1 {
		t.Fatalf("seed b must restart at its saved page, got %d fetches of page 3", got)
	}
	for _, key := range []string{"b:1", "b:2"} {
		if got := index.callCount(key); got != 0 {
			t.Fatalf("seed b must not rewalk page %s, got %d fetches", key, got)
		}
	}
}
