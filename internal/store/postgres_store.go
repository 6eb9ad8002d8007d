package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/crabalign/internal/align"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const createResultsTable = `CREATE TABLE IF NOT EXISTS crabalign_results (
	id          TEXT PRIMARY KEY,
	positions   JSONB NOT NULL,
	cost_model  TEXT NOT NULL,
	strategy    TEXT NOT NULL,
	target      BIGINT NOT NULL,
	total       BIGINT NOT NULL,
	costs       JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	elapsed_ns  BIGINT NOT NULL
)`

// PostgresStore keeps records in the crabalign_results table through the pgx driver.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens dsn with the pgx driver and pings the server.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Migrate creates the results table if it does not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createResultsTable); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// SaveResult upserts rec.
func (p *PostgresStore) SaveResult(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	positions, err := json.Marshal(rec.Positions)
	if err != nil {
		return fmt.Errorf("failed to serialize positions: %w", err)
	}
	costs, err := json.Marshal(rec.Costs)
	if err != nil {
		return fmt.Errorf("failed to serialize costs: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `INSERT INTO crabalign_results
		(id, positions, cost_model, strategy, target, total, costs, created_at, elapsed_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			positions = EXCLUDED.positions, cost_model = EXCLUDED.cost_model,
			strategy = EXCLUDED.strategy, target = EXCLUDED.target, total = EXCLUDED.total,
			costs = EXCLUDED.costs, created_at = EXCLUDED.created_at, elapsed_ns = EXCLUDED.elapsed_ns`,
		rec.ID, string(positions), rec.CostModel.String(), string(rec.Strategy),
		rec.Target, rec.Total, string(costs), rec.CreatedAt, rec.Elapsed.Nanoseconds())
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	slog.Debug("Result saved", "id", rec.ID, "backend", BackendPostgres)
	return nil
}

// LoadResult fetches a single record.
func (p *PostgresStore) LoadResult(ctx context.Context, id string) (*Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	var (
		rec                     Record
		positions, costs, model string
		strategy                string
		elapsed                 int64
	)
	err := p.db.QueryRowContext(ctx, `SELECT id, positions::text, cost_model, strategy, target, total, costs::text, created_at, elapsed_ns
		FROM crabalign_results WHERE id = $1`, id).
		Scan(&rec.ID, &positions, &model, &strategy, &rec.Target, &rec.Total, &costs, &rec.CreatedAt, &elapsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{ID: id}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	if err := json.Unmarshal([]byte(positions), &rec.Positions); err != nil {
		return nil, fmt.Errorf("failed to decode positions: %w", err)
	}
	if err := json.Unmarshal([]byte(costs), &rec.Costs); err != nil {
		return nil, fmt.Errorf("failed to decode costs: %w", err)
	}
	if rec.CostModel, err = align.ParseCostModel(model); err != nil {
		return nil, err
	}
	rec.Strategy = align.Strategy(strategy)
	rec.Elapsed = time.Duration(elapsed)
	return &rec, nil
}

// ListResults returns every record's metadata, oldest first.
func (p *PostgresStore) ListResults(ctx context.Context) ([]RecordInfo, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, jsonb_array_length(positions), cost_model, target, total, created_at
		FROM crabalign_results ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	infos := []RecordInfo{}
	for rows.Next() {
		var (
			info  RecordInfo
			model string
		)
		if err := rows.Scan(&info.ID, &info.Crabs, &model, &info.Target, &info.Total, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if info.CostModel, err = align.ParseCostModel(model); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return infos, nil
}

// DeleteResult removes one record.
func (p *PostgresStore) DeleteResult(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	res, err := p.db.ExecContext(ctx, `DELETE FROM crabalign_results WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

// Close closes the connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}
