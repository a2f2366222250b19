package db

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the typed statements used by the application.
type Queries struct {
	db DBTX
}

// New returns Queries bound to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns Queries bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)
`

func (q *Queries) CreateMigrationsTable(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, createMigrationsTable)
	return err
}

const listAppliedMigrations = `
SELECT version FROM schema_migrations ORDER BY version
`

func (q *Queries) ListAppliedMigrations(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listAppliedMigrations)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

const recordMigration = `
INSERT INTO schema_migrations (version) VALUES (?)
`

func (q *Queries) RecordMigration(ctx context.Context, version string) error {
	_, err := q.db.ExecContext(ctx, recordMigration, version)
	return err
}

// SourceState is the last value recorded for one source.
type SourceState struct {
	SourceKey string
	LastValue string
	UpdatedAt time.Time
}

// Delivery is one notification attempt.
type Delivery struct {
	ID        int64
	SourceKey string
	Message   string
	Delivered bool
	Error     sql.NullString
	CreatedAt time.Time
}

const getSourceState = `
SELECT source_key, last_value, updated_at FROM source_state WHERE source_key = ?
`

func (q *Queries) GetSourceState(ctx context.Context, sourceKey string) (*SourceState, error) {
	row := q.db.QueryRowContext(ctx, getSourceState, sourceKey)
	var s SourceState
	if err := row.Scan(&s.SourceKey, &s.LastValue, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

const upsertSourceState = `
INSERT INTO source_state (source_key, last_value, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(source_key) DO UPDATE SET
    last_value = excluded.last_value,
    updated_at = excluded.updated_at
`

type UpsertSourceStateParams struct {
	SourceKey string
	LastValue string
}

func (q *Queries) UpsertSourceState(ctx context.Context, arg UpsertSourceStateParams) error {
	_, err := q.db.ExecContext(ctx, upsertSourceState, arg.SourceKey, arg.LastValue)
	return err
}

const listSourceStates = `
SELECT source_key, last_value, updated_at FROM source_state ORDER BY source_key
`

func (q *Queries) ListSourceStates(ctx context.Context) ([]*SourceState, error) {
	rows, err := q.db.QueryContext(ctx, listSourceStates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*SourceState
	for rows.Next() {
		var s SourceState
		if err := rows.Scan(&s.SourceKey, &s.LastValue, &s.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createDelivery = `
INSERT INTO deliveries (source_key, message, delivered, error)
VALUES (?, ?, ?, ?)
`

type CreateDeliveryParams struct {
	SourceKey string
	Message   string
	Delivered bool
	Error     sql.NullString
}

func (q *Queries) CreateDelivery(ctx context.Context, arg CreateDeliveryParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, createDelivery, arg.SourceKey, arg.Message, arg.Delivered, arg.Error)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const listRecentDeliveries = `
SELECT id, source_key, message, delivered, error, created_at
FROM deliveries
WHERE source_key = ?
ORDER BY id DESC
LIMIT ?
`

type ListRecentDeliveriesParams struct {
	SourceKey string
	Limit     int64
}

func (q *Queries) ListRecentDeliveries(ctx context.Context, arg ListRecentDeliveriesParams) ([]*Delivery, error) {
	rows, err := q.db.QueryContext(ctx, listRecentDeliveries, arg.SourceKey, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.SourceKey, &d.Message, &d.Delivered, &d.Error, &d.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countDeliveriesBySource = `
SELECT source_key,
       COUNT(*) AS total,
       COALESCE(SUM(CASE WHEN delivered THEN 1 ELSE 0 END), 0) AS delivered
FROM deliveries
GROUP BY source_key
ORDER BY source_key
`

type CountDeliveriesBySourceRow struct {
	SourceKey string
	Total     int64
	Delivered int64
}

func (q *Queries) CountDeliveriesBySource(ctx context.Context) ([]*CountDeliveriesBySourceRow, error) {
	rows, err := q.db.QueryContext(ctx, countDeliveriesBySource)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*CountDeliveriesBySourceRow
	for rows.Next() {
		var r CountDeliveriesBySourceRow
		if err := rows.Scan(&r.SourceKey, &r.Total, &r.Delivered); err != nil {
			return nil, err
		}
		items = append(items, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
