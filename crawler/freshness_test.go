package crawler

import (
	"testing"
	"time"

	"imovelsage/models"
)

func TestShouldRefetch(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ttl := 7 * 24 * time.Hour

	recent := now.Add(-24 * time.Hour)
	old := now.Add(-8 * 24 * time.Hour)
	exactly := now.Add(-ttl)

	cache := map[string]models.CacheEntry{
		"fresh-1":   {Price: 100000, LastCrawled: &recent},
		"stale-1":   {Price: 100000, LastCrawled: &old},
		"edge-1":    {Price: 100000, LastCrawled: &exactly},
		"no-time-1": {Price: 100000, LastCrawled: nil},
	}

	cases := []struct {
		name   string
		id     string
		price  float64
		want   bool
		reason RefetchReason
	}{
		{"unknown id", "never-seen", 100000, true, ReasonNew},
		{"price changed on fresh entry", "fresh-1", 95000, true, ReasonPriceChanged},
		{"price changed on stale entry", "stale-1", 120000, true, ReasonPriceChanged},
		{"unchanged past ttl", "stale-1", 100000, true, ReasonStale},
		{"unchanged exactly at ttl", "edge-1", 100000, true, ReasonStale},
		{"unchanged within ttl", "fresh-1", 100000, false, ReasonFresh},
		{"null timestamp fails open", "no-time-1", 100000, true, ReasonStale},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ShouldRefetch(c.id, c.price, cache, now, ttl)
			if got.Refetch != c.want {
				t.Fatalf("refetch = %v, want %v", got.Refetch, c.want)
			}
			if got.Reason != c.reason {
				t.Fatalf("reason = %s, want %s", got.Reason, c.reason)
			}
		})
	}
}
