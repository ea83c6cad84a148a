package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"imovelsage/models"
)

// SQLiteStore holds operational data the daemon needs locally: run history,
// log lines, pending operator commands and per-site resume pages. Domain
// data lives in Postgres only.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id INTEGER PRIMARY KEY,
		site_id TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		pages_visited INTEGER DEFAULT 0,
		pages_skipped INTEGER DEFAULT 0,
		listings_seen INTEGER DEFAULT 0,
		listings_stored INTEGER DEFAULT 0,
		listings_failed INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS crawl_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		site_id TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT NOT NULL,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS site_stats (
		site_id TEXT PRIMARY KEY,
		last_run_at DATETIME,
		last_run_status TEXT,
		crawl_resume_seed INTEGER DEFAULT 0,
		crawl_resume_page INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_logs_run ON crawl_logs(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_site ON crawl_runs(site_id, started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Runs
// =============================================================================

func (s *SQLiteStore) CreateRun(run *models.CrawlRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO crawl_runs (site_id, started_at, status)
		VALUES (?, ?, ?)`,
		run.SiteID, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.CrawlRun) error {
	_, err := s.db.Exec(`
		UPDATE crawl_runs SET finished_at = ?, status = ?, pages_visited = ?,
			pages_skipped = ?, listings_seen = ?, listings_stored = ?, listings_failed = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.PagesVisited, run.PagesSkipped,
		run.ListingsSeen, run.ListingsStored, run.ListingsFailed, run.ID)
	return err
}

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message, siteID string) error {
	_, err := s.db.Exec(`
		INSERT INTO crawl_logs (run_id, timestamp, level, message, site_id)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, siteID)
	return err
}

func (s *SQLiteStore) UpdateSiteStats(siteID string) error {
	_, err := s.db.Exec(`
		INSERT INTO site_stats (site_id, last_run_at, last_run_status)
		SELECT ?,
			(SELECT started_at FROM crawl_runs WHERE site_id = ? ORDER BY started_at DESC LIMIT 1),
			(SELECT status FROM crawl_runs WHERE site_id = ? ORDER BY started_at DESC LIMIT 1)
		ON CONFLICT(site_id) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_run_status = excluded.last_run_status`,
		siteID, siteID, siteID)
	return err
}

func (s *SQLiteStore) GetLastRunTime(siteID string) (time.Time, error) {
	var lastRun time.Time
	err := s.db.QueryRow(`
		SELECT last_run_at FROM site_stats WHERE site_id = ?`, siteID).Scan(&lastRun)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	return lastRun, err
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func (s *SQLiteStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	if cmd.Params == nil || string(cmd.Params) == "null" {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}

// =============================================================================
// Resume pages
// =============================================================================

// GetResumePage returns the saved resume point for a site: which seed URL
// the aborted run was on and the page to restart it from. (0, 0) means no
// resume is pending.
func (s *SQLiteStore) GetResumePage(siteID string) (seed, page int, err error) {
	err = s.db.QueryRow(`
		SELECT COALESCE(crawl_resume_seed, 0), COALESCE(crawl_resume_page, 0)
		FROM site_stats WHERE site_id = ?`, siteID).Scan(&seed, &page)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	return seed, page, err
}

func (s *SQLiteStore) SetResumePage(siteID string, seed, page int) error {
	_, err := s.db.Exec(`
		INSERT INTO site_stats (site_id, crawl_resume_seed, crawl_resume_page)
		VALUES (?, ?, ?)
		ON CONFLICT(site_id) DO UPDATE SET crawl_resume_seed = ?, crawl_resume_page = ?`,
		siteID, seed, page, seed, page)
	return err
}

func (s *SQLiteStore) ClearResumePage(siteID string) error {
	_, err := s.db.Exec(`
		UPDATE site_stats SET crawl_resume_seed = 0, crawl_resume_page = 0 WHERE site_id = ?`, siteID)
	return err
}

func (s *SQLiteStore) GetSitesWithResumePage() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT site_id FROM site_stats WHERE crawl_resume_page > 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var siteID string
		if err := rows.Scan(&siteID); err != nil {
			return nil, err
		}
		sites = append(sites, siteID)
	}
	return sites, rows.Err()
}
