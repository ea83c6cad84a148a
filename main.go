package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imovelsage/config"
	"imovelsage/crawler"
	"imovelsage/httputil"
	"imovelsage/logging"
	"imovelsage/scheduler"
	"imovelsage/services"
	"imovelsage/storage"
	"imovelsage/workers"
)

var (
	crawlNow = flag.Bool("crawl", false, "Run crawl once and exit")
	siteID   = flag.String("site", "", "Limit -crawl to one site id")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting imovelsage...")
	log.Printf("Loaded %d site configs", len(cfg.Sites))
	for id, site := range cfg.Sites {
		log.Printf("  - %s (%s)", site.Name, id)
	}

	clients := httputil.NewClients()
	ctx := context.Background()

	// Postgres holds the domain data; without it nothing can be persisted.
	pgStore, err := storage.NewPostgresStore(ctx, cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pgStore.Close()
	log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.Postgres.URL))

	if err := pgStore.Migrate(ctx); err != nil {
		log.Fatalf("Failed to run Postgres migrations: %v", err)
	}

	// SQLite holds operational data: runs, logs, commands, resume pages.
	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	ingest := services.NewIngestService(pgStore)
	orchestrator := crawler.NewOrchestrator(cfg, sqliteStore, pgStore, ingest, clients)

	// Handle one-shot commands
	if *crawlNow {
		log.Println("Running crawl...")
		if *siteID != "" {
			err = orchestrator.RunSite(ctx, *siteID)
		} else {
			err = orchestrator.RunAll(ctx)
		}
		if err != nil {
			log.Fatalf("Crawl failed: %v", err)
		}
		log.Println("Crawl complete!")
		return
	}

	// Daemon mode
	sched := scheduler.New(cfg, orchestrator, sqliteStore)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	enrichmentWorker := workers.NewEnrichmentWorker(pgStore, clients.API, cfg.Enrich)
	sched.SetWorkers(enrichmentWorker)

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	go enrichmentWorker.Run(ctx, cfg.Enrich.BatchSize, 5*time.Minute)
	log.Println("Enrichment worker started")

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	cancel()
	log.Println("Goodbye!")
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
