package models

import "time"

// Unknown is the placeholder the source site's free-text fields default to
// when a value cannot be extracted.
const Unknown = "Desconhecido"

// ListingSummary is what an index-page card yields. It only lives long
// enough to be checked against the crawl cache; survivors get a detail fetch.
type ListingSummary struct {
	ID         string  `json:"id"`
	Link       string  `json:"link"`
	Price      float64 `json:"price"`
	AreaM2     int     `json:"area_m2"`
	Locality   string  `json:"locality"`
	PageNumber int     `json:"page_number"`

	// UnstableID is set when the canonical id pattern did not match and the
	// full link is being used as the id. Upserts keyed on such ids break if
	// the site ever changes its URL scheme.
	UnstableID bool `json:"unstable_id"`
}

// ListingRecord is the durable row in the imoveis table, one per listing.
type ListingRecord struct {
	ID          string    `json:"id" db:"url_id"`
	Link        string    `json:"link" db:"link"`
	LastCrawled time.Time `json:"last_crawled" db:"last_crawled"`
	PublishedAt time.Time `json:"published_at" db:"data_publicacao"`

	Price    float64 `json:"price" db:"preco_atual"`
	Locality string  `json:"locality" db:"freguesia"`
	Subtype  string  `json:"subtype" db:"tipologia"`

	GrossAreaM2  float64  `json:"gross_area_m2" db:"area_bruta_m2"`
	UsableAreaM2 *float64 `json:"usable_area_m2" db:"area_util_m2"`
	LotAreaM2    *float64 `json:"lot_area_m2" db:"area_terreno_m2"`

	BuildYear *int `json:"build_year" db:"ano_construcao"`
	Bedrooms  *int `json:"bedrooms" db:"num_quartos"`
	Bathrooms *int `json:"bathrooms" db:"num_wc"`

	// Parking and Elevator are free-text presence markers, not booleans.
	// The site encodes them inconsistently ("Sim", "1 lugar", "Box", ...).
	Parking  *string `json:"parking" db:"estacionamento"`
	Elevator *string `json:"elevator" db:"elevador"`

	EnergyCertificate *string `json:"energy_certificate" db:"certificado_energetico"`
	Description       *string `json:"description" db:"descricao_bruta"`

	UnstableID bool `json:"unstable_id" db:"unstable_id"`

	// ListingPageNumber is carried for operator logs only, never persisted.
	ListingPageNumber int `json:"-" db:"-"`
}

// CacheEntry mirrors the seed-read columns of a stored listing. A nil
// LastCrawled means the stored timestamp was NULL and the entry must be
// treated as stale.
type CacheEntry struct {
	Price       float64
	LastCrawled *time.Time
}
