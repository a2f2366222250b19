package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/abdulachik/littlebird/internal/db"
)

// SQLiteStore keeps source state in the application database and also
// records every delivery attempt.
type SQLiteStore struct {
	db *db.Store
}

// NewSQLiteStore wraps an opened and migrated database.
func NewSQLiteStore(store *db.Store) *SQLiteStore {
	return &SQLiteStore{db: store}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}

	row, err := s.db.GetSourceState(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get state %s: %w", key, err)
	}
	return row.LastValue, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	err := s.db.UpsertSourceState(ctx, db.UpsertSourceStateParams{
		SourceKey: key,
		LastValue: value,
	})
	if err != nil {
		return fmt.Errorf("put state %s: %w", key, err)
	}
	return nil
}

// RecordDelivery appends a delivery attempt to the audit log.
func (s *SQLiteStore) RecordDelivery(ctx context.Context, key, message string, deliveryErr error) error {
	params := db.CreateDeliveryParams{
		SourceKey: key,
		Message:   message,
		Delivered: deliveryErr == nil,
	}
	if deliveryErr != nil {
		params.Error = sql.NullString{String: deliveryErr.Error(), Valid: true}
	}

	if _, err := s.db.CreateDelivery(ctx, params); err != nil {
		return fmt.Errorf("record delivery %s: %w", key, err)
	}
	return nil
}
