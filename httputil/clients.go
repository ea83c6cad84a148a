package httputil

import (
	"net/http"
	"time"

	"imovelsage/config"
)

type Clients struct {
	Scraping *http.Client // for target-site detail pages
	API      *http.Client // for the enrichment inference endpoint
}

func NewClients() *Clients {
	return &Clients{
		Scraping: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		API: &http.Client{Timeout: 120 * time.Second},
	}
}

// SetCrawlHeaders applies the header set the target site expects. Omitting
// these gets requests trivially blocked.
func SetCrawlHeaders(req *http.Request, site *config.SiteConfig) {
	req.Header.Set("User-Agent", site.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", site.AcceptLanguage)
	req.Header.Set("Referer", "https://www.google.com/")
	req.Header.Set("Cache-Control", "no-cache")
}
