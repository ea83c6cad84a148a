package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// CrawlRun is the operational (SQLite) record of one crawl execution.
type CrawlRun struct {
	ID             int64      `json:"id" db:"id"`
	SiteID         string     `json:"site_id" db:"site_id"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	FinishedAt     *time.Time `json:"finished_at" db:"finished_at"`
	Status         RunStatus  `json:"status" db:"status"`
	PagesVisited   int        `json:"pages_visited" db:"pages_visited"`
	PagesSkipped   int        `json:"pages_skipped" db:"pages_skipped"`
	ListingsSeen   int        `json:"listings_seen" db:"listings_seen"`
	ListingsStored int        `json:"listings_stored" db:"listings_stored"`
	ListingsFailed int        `json:"listings_failed" db:"listings_failed"`
}

// DomainCrawlRun is the durable (Postgres) record of one crawl execution,
// correlated across stores by its uuid.
type DomainCrawlRun struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	Source         string          `json:"source" db:"source"`
	StartedAt      time.Time       `json:"started_at" db:"started_at"`
	FinishedAt     *time.Time      `json:"finished_at" db:"finished_at"`
	Status         string          `json:"status" db:"status"`
	PagesVisited   int             `json:"pages_visited" db:"pages_visited"`
	PagesSkipped   int             `json:"pages_skipped" db:"pages_skipped"`
	ListingsStored int             `json:"listings_stored" db:"listings_stored"`
	ListingsFailed int             `json:"listings_failed" db:"listings_failed"`
	ErrorMessage   string          `json:"error_message" db:"error_message"`
	Metadata       json.RawMessage `json:"metadata" db:"metadata"`
}
