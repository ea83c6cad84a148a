package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"imovelsage/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Migrate creates the schema this store owns. The imoveis column names are a
// fixed contract shared with the valuation pipeline; do not rename them.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS imoveis (
		url_id VARCHAR PRIMARY KEY,
		link TEXT,
		last_crawled TIMESTAMP,
		data_publicacao DATE,

		preco_atual FLOAT,
		freguesia VARCHAR,
		tipologia VARCHAR,

		area_bruta_m2 FLOAT,
		area_util_m2 FLOAT,
		area_terreno_m2 FLOAT,

		ano_construcao INTEGER,
		num_quartos INTEGER,
		num_wc INTEGER,
		estacionamento VARCHAR,
		elevador VARCHAR,
		certificado_energetico VARCHAR,
		descricao_bruta TEXT,
		unstable_id BOOLEAN DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS imoveis_ai_data (
		imovel_id VARCHAR(255) PRIMARY KEY,
		estado_conservacao INTEGER,
		venda_urgente BOOLEAN,
		potencial_investimento TEXT,
		analisado_em TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_imovel FOREIGN KEY(imovel_id) REFERENCES imoveis(url_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS crawl_runs (
		id UUID PRIMARY KEY,
		source VARCHAR,
		started_at TIMESTAMP,
		finished_at TIMESTAMP,
		status VARCHAR,
		pages_visited INTEGER DEFAULT 0,
		pages_skipped INTEGER DEFAULT 0,
		listings_stored INTEGER DEFAULT 0,
		listings_failed INTEGER DEFAULT 0,
		error_message TEXT,
		metadata JSONB
	);`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// Listings
// =============================================================================

// UpsertListing inserts or fully replaces one listing, keyed on url_id. Each
// record gets its own transaction so one bad row never poisons the run.
func (s *PostgresStore) UpsertListing(ctx context.Context, rec *models.ListingRecord) error {
	query := `
		INSERT INTO imoveis (
			url_id, link, last_crawled, data_publicacao,
			preco_atual, freguesia, tipologia,
			area_bruta_m2, area_util_m2, area_terreno_m2,
			ano_construcao, num_quartos, num_wc,
			estacionamento, elevador, certificado_energetico,
			descricao_bruta, unstable_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (url_id) DO UPDATE SET
			link = EXCLUDED.link,
			last_crawled = EXCLUDED.last_crawled,
			preco_atual = EXCLUDED.preco_atual,
			freguesia = EXCLUDED.freguesia,
			tipologia = EXCLUDED.tipologia,
			area_bruta_m2 = EXCLUDED.area_bruta_m2,
			area_util_m2 = EXCLUDED.area_util_m2,
			area_terreno_m2 = EXCLUDED.area_terreno_m2,
			ano_construcao = EXCLUDED.ano_construcao,
			num_quartos = EXCLUDED.num_quartos,
			num_wc = EXCLUDED.num_wc,
			estacionamento = EXCLUDED.estacionamento,
			elevador = EXCLUDED.elevador,
			certificado_energetico = EXCLUDED.certificado_energetico,
			descricao_bruta = EXCLUDED.descricao_bruta,
			unstable_id = EXCLUDED.unstable_id`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, query,
		rec.ID, rec.Link, rec.LastCrawled, rec.PublishedAt,
		rec.Price, rec.Locality, rec.Subtype,
		rec.GrossAreaM2, rec.UsableAreaM2, rec.LotAreaM2,
		rec.BuildYear, rec.Bedrooms, rec.Bathrooms,
		rec.Parking, rec.Elevator, rec.EnergyCertificate,
		rec.Description, rec.UnstableID,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// LoadCrawlCache does the startup seed scan: every known id with its last
// price and crawl time. Called exactly once per run, before any fetch.
func (s *PostgresStore) LoadCrawlCache(ctx context.Context) (map[string]models.CacheEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT url_id, preco_atual, last_crawled FROM imoveis`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cache := make(map[string]models.CacheEntry)
	for rows.Next() {
		var id string
		var price *float64
		var lastCrawled *time.Time
		if err := rows.Scan(&id, &price, &lastCrawled); err != nil {
			return nil, err
		}
		entry := models.CacheEntry{LastCrawled: lastCrawled}
		if price != nil {
			entry.Price = *price
		}
		cache[id] = entry
	}
	return cache, rows.Err()
}

// =============================================================================
// Crawl runs
// =============================================================================

func (s *PostgresStore) CreateCrawlRun(ctx context.Context, run *models.DomainCrawlRun) error {
	query := `
		INSERT INTO crawl_runs (id, source, started_at, status, pages_visited, pages_skipped, listings_stored, listings_failed, error_message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		run.ID, run.Source, run.StartedAt, run.Status,
		run.PagesVisited, run.PagesSkipped, run.ListingsStored, run.ListingsFailed,
		run.ErrorMessage, run.Metadata,
	)
	return err
}

func (s *PostgresStore) UpdateCrawlRun(ctx context.Context, run *models.DomainCrawlRun) error {
	query := `
		UPDATE crawl_runs SET
			finished_at = $2, status = $3, pages_visited = $4, pages_skipped = $5,
			listings_stored = $6, listings_failed = $7, error_message = $8, metadata = $9
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query,
		run.ID, run.FinishedAt, run.Status, run.PagesVisited, run.PagesSkipped,
		run.ListingsStored, run.ListingsFailed, run.ErrorMessage, run.Metadata,
	)
	return err
}

// =============================================================================
// Enrichment
// =============================================================================

// UnanalyzedListing is a listing with a description but no AI analysis yet.
type UnanalyzedListing struct {
	ID          string
	Description string
}

func (s *PostgresStore) GetUnanalyzedListings(ctx context.Context, limit int) ([]UnanalyzedListing, error) {
	query := `
		SELECT i.url_id, i.descricao_bruta
		FROM imoveis i
		LEFT JOIN imoveis_ai_data a ON a.imovel_id = i.url_id
		WHERE a.imovel_id IS NULL
		  AND i.descricao_bruta IS NOT NULL AND i.descricao_bruta <> ''
		ORDER BY i.last_crawled
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []UnanalyzedListing
	for rows.Next() {
		var l UnanalyzedListing
		if err := rows.Scan(&l.ID, &l.Description); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (s *PostgresStore) UpsertInsights(ctx context.Context, in *models.DescriptionInsights) error {
	query := `
		INSERT INTO imoveis_ai_data (imovel_id, estado_conservacao, venda_urgente, potencial_investimento, analisado_em)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (imovel_id) DO UPDATE SET
			estado_conservacao = EXCLUDED.estado_conservacao,
			venda_urgente = EXCLUDED.venda_urgente,
			potencial_investimento = EXCLUDED.potencial_investimento,
			analisado_em = EXCLUDED.analisado_em`

	_, err := s.pool.Exec(ctx, query,
		in.ListingID, in.Condition, in.UrgentSale, in.Potential, in.AnalyzedAt,
	)
	return err
}

// GetListing is used by tooling and tests to read one stored row back.
func (s *PostgresStore) GetListing(ctx context.Context, id string) (*models.ListingRecord, error) {
	query := `
		SELECT url_id, link, last_crawled, data_publicacao,
			preco_atual, freguesia, tipologia,
			area_bruta_m2, area_util_m2, area_terreno_m2,
			ano_construcao, num_quartos, num_wc,
			estacionamento, elevador, certificado_energetico,
			descricao_bruta, unstable_id
		FROM imoveis WHERE url_id = $1`

	var rec models.ListingRecord
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.Link, &rec.LastCrawled, &rec.PublishedAt,
		&rec.Price, &rec.Locality, &rec.Subtype,
		&rec.GrossAreaM2, &rec.UsableAreaM2, &rec.LotAreaM2,
		&rec.BuildYear, &rec.Bedrooms, &rec.Bathrooms,
		&rec.Parking, &rec.Elevator, &rec.EnergyCertificate,
		&rec.Description, &rec.UnstableID,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
