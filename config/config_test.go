package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

const siteYAML = `
id: remax_pt
name: RE/MAX Portugal
base_url: https://www.remax.pt
seed_urls:
  - https://www.remax.pt/pt/comprar?p=1
ttl_days: 14
concurrency: 2
`

func TestSiteConfig_Parse(t *testing.T) {
	var site SiteConfig
	if err := yaml.Unmarshal([]byte(siteYAML), &site); err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	site.applyDefaults()

	if site.ID != "remax_pt" {
		t.Fatalf("expected id remax_pt, got %s", site.ID)
	}
	if len(site.SeedURLs) != 1 {
		t.Fatalf("expected 1 seed url, got %d", len(site.SeedURLs))
	}
	if site.TTLDays != 14 || site.Concurrency != 2 {
		t.Fatal("explicit values must not be overwritten by defaults")
	}
	if site.DelayMS != 2500 || site.RetryAttempts != 3 || site.MaxConsecutiveSkips != 3 {
		t.Fatalf("missing values must default, got delay=%d retries=%d skips=%d",
			site.DelayMS, site.RetryAttempts, site.MaxConsecutiveSkips)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("ENRICH_BATCH", "25")
	if got := getEnvInt("ENRICH_BATCH", 50); got != 25 {
		t.Fatalf("expected 25, got %d", got)
	}
	if got := getEnvInt("ENRICH_BATCH_UNSET", 50); got != 50 {
		t.Fatalf("expected default 50, got %d", got)
	}
	t.Setenv("ENRICH_BATCH", "not-a-number")
	if got := getEnvInt("ENRICH_BATCH", 50); got != 50 {
		t.Fatalf("unparseable value must fall back to default, got %d", got)
	}
}

func TestSiteConfig_Helpers(t *testing.T) {
	site := &SiteConfig{TTLDays: 7, DelayMS: 2500, AllowedStatuses: []int{403, 404}}

	if site.TTL() != 7*24*time.Hour {
		t.Fatalf("unexpected ttl %v", site.TTL())
	}
	if site.Delay() != 2500*time.Millisecond {
		t.Fatalf("unexpected delay %v", site.Delay())
	}
	if !site.StatusAllowed(404) || site.StatusAllowed(500) {
		t.Fatal("status allow-list misbehaving")
	}
}
