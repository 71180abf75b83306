package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"house-finder/models"
	"house-finder/utils"
)

const resultColumns = 15

// PostgresWriter persists enriched results to PostgreSQL, keyed by run id
// and listing URL.
type PostgresWriter struct {
	db    *sql.DB
	runID string
}

// NewPostgresWriter opens a connection to PostgreSQL, retrying the initial
// ping with retry, runs schema migrations, and returns a ready-to-use
// PostgresWriter.
func NewPostgresWriter(ctx context.Context, dsn, runID string, retry *utils.RetryConfig) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if err := retry.Do(ctx, "postgres-ping", db.PingContext); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	pw := &PostgresWriter{db: db, runID: runID}
	if err := pw.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS house_results (
			id                   SERIAL PRIMARY KEY,
			run_id               UUID         NOT NULL,
			listing_id           TEXT         NOT NULL,
			url                  TEXT         NOT NULL,
			price                INTEGER,
			floors               INTEGER,
			house_area           NUMERIC(10,2),
			price_per_house_area INTEGER,
			total_area           NUMERIC(12,2),
			price_per_total_area INTEGER,
			straight_km          NUMERIC(10,3),
			cycling_km           NUMERIC(10,3),
			year                 INTEGER,
			postal_code          VARCHAR(5)   NOT NULL DEFAULT '',
			geohash              VARCHAR(12)  NOT NULL DEFAULT '',
			internet             TEXT         NOT NULL DEFAULT '',
			created_at           TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			UNIQUE (run_id, url)
		);

		CREATE INDEX IF NOT EXISTS idx_house_results_run     ON house_results(run_id);
		CREATE INDEX IF NOT EXISTS idx_house_results_geohash ON house_results(geohash);
		CREATE INDEX IF NOT EXISTS idx_house_results_ppa     ON house_results(price_per_house_area);
	`)
	return err
}

// WriteResults batch-inserts results for the writer's run. Re-writing the
// same run is a no-op for rows already stored.
func (pw *PostgresWriter) WriteResults(results []*models.EnrichedResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const batchSize = 50
	for i := 0; i < len(results); i += batchSize {
		end := i + batchSize
		if end > len(results) {
			end = len(results)
		}
		query, args := insertBatch(pw.runID, results[i:end])
		if _, err := pw.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("postgres: insert batch: %w", err)
		}
	}
	return nil
}

func insertBatch(runID string, batch []*models.EnrichedResult) (string, []any) {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*resultColumns)

	for idx, r := range batch {
		base := idx * resultColumns
		placeholders := make([]string, resultColumns)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs,
			runID, r.ListingID, r.URL, r.Price, r.Floors,
			r.HouseArea, r.PricePerHouseArea, r.TotalArea, r.PricePerTotalArea,
			r.StraightKm, r.CyclingKm, r.Year, r.PostalCode, r.Geohash,
			strings.Join(r.OfferLines(), "\n"))
	}

	query := fmt.Sprintf(`
		INSERT INTO house_results (run_id, listing_id, url, price, floors,
			house_area, price_per_house_area, total_area, price_per_total_area,
			straight_km, cycling_km, year, postal_code, geohash, internet)
		VALUES %s
		ON CONFLICT (run_id, url) DO NOTHING
	`, strings.Join(valueStrings, ","))
	return query, valueArgs
}

// FetchRun reads back the results stored for runID, cheapest per house
// area first. Offers are not restored.
func (pw *PostgresWriter) FetchRun(ctx context.Context, runID string) ([]*models.EnrichedResult, error) {
	rows, err := pw.db.QueryContext(ctx, `
		SELECT listing_id, url, price, floors, house_area, price_per_house_area,
		       total_area, price_per_total_area, straight_km, cycling_km, year,
		       postal_code, geohash
		FROM house_results
		WHERE run_id = $1
		ORDER BY COALESCE(price_per_house_area, 0), id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch run: %w", err)
	}
	defer rows.Close()

	var results []*models.EnrichedResult
	for rows.Next() {
		r := &models.EnrichedResult{}
		if err := rows.Scan(
			&r.ListingID, &r.URL, &r.Price, &r.Floors, &r.HouseArea, &r.PricePerHouseArea,
			&r.TotalArea, &r.PricePerTotalArea, &r.StraightKm, &r.CyclingKm, &r.Year,
			&r.PostalCode, &r.Geohash,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
