package crawler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"
	"imovelsage/config"
)

// Index pages are script-rendered; the card grid only exists after the
// site's listing script has run.
const listingCardSelector = `div.grid div[id^="listing-list-card-"]`

// IndexFetcher fetches one index page and returns its parsed document.
type IndexFetcher interface {
	FetchIndex(ctx context.Context, pageURL string) (*goquery.Document, error)
}

// BrowserFetcher renders index pages in a headless browser, waiting for the
// listing grid before handing back the document.
type BrowserFetcher struct {
	site        *config.SiteConfig
	pw          *playwright.Playwright
	browser     playwright.Browser
	mu          sync.Mutex
	initialized bool
}

func NewBrowserFetcher(site *config.SiteConfig) *BrowserFetcher {
	return &BrowserFetcher{site: site}
}

func (f *BrowserFetcher) ensureBrowser() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initialized {
		return nil
	}

	var err error
	f.pw, err = playwright.Run()
	if err != nil {
		return fmt.Errorf("start playwright: %w", err)
	}

	f.browser, err = f.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	f.initialized = true
	return nil
}

func (f *BrowserFetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		f.browser.Close()
	}
	if f.pw != nil {
		f.pw.Stop()
	}
	f.initialized = false
}

// FetchIndex navigates to pageURL and waits for the listing grid, bounded by
// the site's nav timeout. Timeouts surface as errors for the recovery path.
func (f *BrowserFetcher) FetchIndex(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := f.ensureBrowser(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	browserCtx, err := f.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(f.site.UserAgent),
		IgnoreHttpsErrors: playwright.Bool(true),
		Viewport:          &playwright.Size{Width: 1920, Height: 1080},
		ExtraHttpHeaders: map[string]string{
			"Accept-Language": f.site.AcceptLanguage,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	defer browserCtx.Close()

	page, err := browserCtx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}

	timeout := float64(f.site.NavTimeout().Milliseconds())
	if _, err := page.Goto(pageURL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(timeout),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}

	dismissConsent(page)

	if err := page.Locator(listingCardSelector).First().WaitFor(playwright.LocatorWaitForOptions{
		Timeout: playwright.Float(timeout),
	}); err != nil {
		return nil, fmt.Errorf("wait for listings: %w", err)
	}

	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("read page content: %w", err)
	}

	return goquery.NewDocumentFromReader(strings.NewReader(content))
}

func dismissConsent(page playwright.Page) {
	consentSelectors := []string{
		"#didomi-notice-agree-button",
		"button:has-text('Aceitar')",
		"button:has-text('Accept')",
		"button[id*='accept']",
	}

	for _, selector := range consentSelectors {
		btn := page.Locator(selector).First()
		if visible, _ := btn.IsVisible(); visible {
			log.Printf("Dismissing consent banner: %s", selector)
			btn.Click()
			page.WaitForTimeout(1000)
			break
		}
	}
}
