package crawler

import (
	"time"

	"imovelsage/models"
)

type RefetchReason string

const (
	ReasonNew          RefetchReason = "new"           // never seen before
	ReasonPriceChanged RefetchReason = "price_changed" // always refetch, regardless of age
	ReasonStale        RefetchReason = "stale"         // unchanged price but past the TTL
	ReasonFresh        RefetchReason = "fresh"         // skip
)

// Decision is the staleness verdict for one observed card.
type Decision struct {
	Refetch bool
	Reason  RefetchReason
}

// ShouldRefetch decides whether a listing's detail page is worth fetching,
// given its freshly observed price and the cache seeded from storage at run
// start. The rules are evaluated in order: unknown id, price change, TTL.
// A missing or NULL cached timestamp counts as stale, so bad cache data
// fails open toward refetching, never toward skipping.
func ShouldRefetch(id string, observedPrice float64, cache map[string]models.CacheEntry, now time.Time, ttl time.Duration) Decision {
	entry, ok := cache[id]
	if !ok {
		return Decision{Refetch: true, Reason: ReasonNew}
	}

	if entry.Price != observedPrice {
		return Decision{Refetch: true, Reason: ReasonPriceChanged}
	}

	if entry.LastCrawled == nil || now.Sub(*entry.LastCrawled) >= ttl {
		return Decision{Refetch: true, Reason: ReasonStale}
	}

	return Decision{Refetch: false, Reason: ReasonFresh}
}
