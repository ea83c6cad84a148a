package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"imovelsage/config"
	"imovelsage/httputil"
	"imovelsage/models"
	"imovelsage/services"
	"imovelsage/storage"
)

// Orchestrator drives crawl runs across configured sites: it seeds the
// cache, wires a Crawler per site, and keeps run records in both stores.
type Orchestrator struct {
	cfg     *config.Config
	ops     *storage.SQLiteStore
	pg      *storage.PostgresStore
	ingest  *services.IngestService
	clients *httputil.Clients
	paused  bool
}

func NewOrchestrator(cfg *config.Config, ops *storage.SQLiteStore, pg *storage.PostgresStore, ingest *services.IngestService, clients *httputil.Clients) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		ops:     ops,
		pg:      pg,
		ingest:  ingest,
		clients: clients,
	}
}

func (o *Orchestrator) RunAll(ctx context.Context) error {
	if o.paused {
		log.Println("Crawler is paused, skipping run")
		return nil
	}

	for siteID := range o.cfg.Sites {
		if err := o.RunSite(ctx, siteID); err != nil {
			log.Printf("Error running site %s: %v", siteID, err)
		}
	}

	return nil
}

// RunSite executes one full crawl of a site. The returned error is reserved
// for the fatal startup condition (seed page unreachable); everything else
// is absorbed into counters.
func (o *Orchestrator) RunSite(ctx context.Context, siteID string) error {
	site, ok := o.cfg.Sites[siteID]
	if !ok {
		return fmt.Errorf("unknown site: %s", siteID)
	}

	run := &models.CrawlRun{
		SiteID:    siteID,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	runID, err := o.ops.CreateRun(run)
	if err != nil {
		return err
	}
	run.ID = runID

	pgRun := &models.DomainCrawlRun{
		ID:        uuid.New(),
		Source:    siteID,
		StartedAt: run.StartedAt,
		Status:    string(models.RunStatusRunning),
	}
	if err := o.pg.CreateCrawlRun(ctx, pgRun); err != nil {
		log.Printf("Warning: failed to create Postgres run record: %v", err)
	}

	o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Starting crawl for %s", site.Name), siteID)

	// Seed the cache once, before any fetch. A failed scan is degraded, not
	// fatal: an empty cache over-fetches, it never silently skips.
	cache, err := o.pg.LoadCrawlCache(ctx)
	if err != nil {
		o.log(run.ID, models.LogLevelWarn, fmt.Sprintf("Cache seed failed, crawling with empty cache: %v", err), siteID)
		cache = make(map[string]models.CacheEntry)
	} else {
		o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Cache seeded with %d listings", len(cache)), siteID)
	}

	o.ingest.Reset()
	progress := NewProgress(site.ExpectedPages * len(site.SeedURLs))

	browser := NewBrowserFetcher(site)
	defer browser.Close()

	c := &Crawler{
		Site:     site,
		Index:    browser,
		Detail:   NewDetailClient(o.clients.Scraping, site),
		Ingest:   o.ingest,
		Cache:    cache,
		Progress: progress,
	}

	resumeSeed, resumePage, _ := o.ops.GetResumePage(siteID)
	if resumeSeed >= len(site.SeedURLs) {
		resumeSeed, resumePage = 0, 0
	}
	if resumePage > 1 {
		o.log(run.ID, models.LogLevelInfo,
			fmt.Sprintf("Resuming seed %d from page %d", resumeSeed, resumePage), siteID)
	}

	failedSeed, failedPage, fatal := crawlSeeds(ctx, c, site.SeedURLs, resumeSeed, resumePage)
	if fatal != nil {
		o.ops.SetResumePage(siteID, failedSeed, failedPage)
		o.log(run.ID, models.LogLevelError, fmt.Sprintf("Crawl aborted: %v", fatal), siteID)
	} else {
		o.ops.ClearResumePage(siteID)
	}

	o.finishRun(ctx, run, pgRun, progress, siteID, fatal)
	return fatal
}

// crawlSeeds walks each seed URL in order, honoring a saved resume point.
// Seeds before resumeSeed completed in the aborted run and are skipped. On a
// fatal error it reports which seed failed and the page to restart it from,
// derived from that seed's own visited count so earlier seeds' pages never
// leak into the resume page.
func crawlSeeds(ctx context.Context, c *Crawler, seeds []string, resumeSeed, resumePage int) (failedSeed, failedPage int, err error) {
	for i := resumeSeed; i < len(seeds); i++ {
		start := 1
		if i == resumeSeed && resumePage > 1 {
			start = resumePage
		}

		before := c.Progress.Snapshot().PagesVisited
		if runErr := c.Run(ctx, seeds[i], start); runErr != nil {
			visited := c.Progress.Snapshot().PagesVisited - before
			return i, start + visited, runErr
		}
	}
	return 0, 0, nil
}

func (o *Orchestrator) finishRun(ctx context.Context, run *models.CrawlRun, pgRun *models.DomainCrawlRun, progress *Progress, siteID string, fatal error) {
	now := time.Now()
	snap := progress.Snapshot()
	stored, failed := o.ingest.Counts()

	run.FinishedAt = &now
	run.Status = models.RunStatusCompleted
	if fatal != nil {
		run.Status = models.RunStatusFailed
	}
	run.PagesVisited = snap.PagesVisited
	run.PagesSkipped = snap.PagesSkipped
	run.ListingsSeen = snap.ListingsSeen
	run.ListingsStored = stored
	run.ListingsFailed = snap.ListingsFailed

	o.ops.UpdateRun(run)
	o.ops.UpdateSiteStats(siteID)

	pgRun.FinishedAt = &now
	pgRun.Status = string(run.Status)
	pgRun.PagesVisited = snap.PagesVisited
	pgRun.PagesSkipped = snap.PagesSkipped
	pgRun.ListingsStored = stored
	pgRun.ListingsFailed = snap.ListingsFailed
	if fatal != nil {
		pgRun.ErrorMessage = fatal.Error()
	}
	if meta, err := json.Marshal(map[string]int{
		"listings_seen": snap.ListingsSeen,
		"ingest_failed": failed,
	}); err == nil {
		pgRun.Metadata = meta
	}
	if err := o.pg.UpdateCrawlRun(ctx, pgRun); err != nil {
		log.Printf("Warning: failed to update Postgres run record: %v", err)
	}

	o.log(run.ID, models.LogLevelInfo,
		fmt.Sprintf("Finished: %d pages (%d skipped), %d cards seen, %d stored, %d failed",
			snap.PagesVisited, snap.PagesSkipped, snap.ListingsSeen, stored, run.ListingsFailed), siteID)
}

func (o *Orchestrator) HandleCommand(cmd *models.Command) error {
	params, err := o.ops.ParseCommandParams(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()

	switch cmd.Command {
	case models.CmdCrawlNow:
		return o.RunAll(ctx)
	case models.CmdCrawlSite:
		if params.Site != "" {
			return o.RunSite(ctx, params.Site)
		}
		return o.RunAll(ctx)
	case models.CmdPause:
		o.paused = true
		log.Println("Crawler paused")
	case models.CmdResume:
		o.paused = false
		log.Println("Crawler resumed")
	}

	return nil
}

func (o *Orchestrator) IsPaused() bool {
	return o.paused
}

func (o *Orchestrator) GetSiteIDs() []string {
	var ids []string
	for id := range o.cfg.Sites {
		ids = append(ids, id)
	}
	return ids
}

func (o *Orchestrator) log(runID int64, level models.LogLevel, message, siteID string) {
	log.Printf("[%s] %s: %s", level, siteID, message)
	o.ops.Log(&runID, level, message, siteID)
}
