package services

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" database/sql driver

	"pr-reaction-bridge/internal/log"
	"pr-reaction-bridge/internal/models"
)

const trackingTable = "tracking_records"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tracking_records (
		id          TEXT PRIMARY KEY,
		url         TEXT NOT NULL CHECK (url <> ''),
		channel     TEXT NOT NULL,
		message_ts  TEXT NOT NULL,
		inserted_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS tracking_records_url_idx ON tracking_records (url)`,
	`CREATE INDEX IF NOT EXISTS tracking_records_location_idx ON tracking_records (channel, message_ts)`,
}

const (
	selectRecords = `SELECT id, url, channel, message_ts, inserted_at FROM ` + trackingTable
	orderRecords  = ` ORDER BY inserted_at, id`
	insertRecord  = `INSERT INTO ` + trackingTable +
		` (id, url, channel, message_ts, inserted_at) VALUES (:id, :url, :channel, :message_ts, :inserted_at)`
	deleteRecords = `DELETE FROM ` + trackingTable + ` WHERE channel = ? AND message_ts = ? AND url IN (?)`
)

// SQLConfig configures the database connection for SQLService.
type SQLConfig struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

// OpenSQL connects to the database and verifies the connection.
func OpenSQL(ctx context.Context, cfg SQLConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return db, nil
}

// SQLService stores tracking records in a relational database (SQLite or PostgreSQL).
type SQLService struct {
	db  *sqlx.DB
	cfg storeConfig
}

// NewSQLService creates a SQLService on top of an open connection pool.
func NewSQLService(db *sqlx.DB, opts ...StoreOption) *SQLService {
	return &SQLService{db: db, cfg: newStoreConfig(opts)}
}

// Migrate creates the tracking table and its indexes when missing.
func (s *SQLService) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			log.Error(ctx, "Failed to apply tracking schema",
				"error", err,
				"driver", s.db.DriverName(),
				"operation", "migrate_tracking_schema",
			)
			return fmt.Errorf("failed to apply tracking schema: %w", err)
		}
	}
	return nil
}

// ListAll returns every record ordered by insertion time.
func (s *SQLService) ListAll(ctx context.Context) ([]*models.TrackingRecord, error) {
	records := make([]*models.TrackingRecord, 0)
	if err := s.db.SelectContext(ctx, &records, selectRecords+orderRecords); err != nil {
		log.Error(ctx, "Failed to list tracking records",
			"error", err,
			"operation", "list_tracking_records",
		)
		return nil, fmt.Errorf("failed to list tracking records: %w", err)
	}
	normalizeTimes(records)
	return records, nil
}

// FindByURL returns the records for url ordered by insertion time.
func (s *SQLService) FindByURL(ctx context.Context, url string) ([]*models.TrackingRecord, error) {
	records := make([]*models.TrackingRecord, 0)
	query := s.db.Rebind(selectRecords + ` WHERE url = ?` + orderRecords)
	if err := s.db.SelectContext(ctx, &records, query, url); err != nil {
		log.Error(ctx, "Failed to query tracking records by URL",
			"error", err,
			"url", url,
			"operation", "find_tracking_records_by_url",
		)
		return nil, fmt.Errorf("failed to query tracking records for %s: %w", url, err)
	}
	normalizeTimes(records)
	return records, nil
}

// InsertAll records every URL for location in one transaction.
func (s *SQLService) InsertAll(
	ctx context.Context, urls []string, location models.ChatLocation, insertedAt time.Time,
) error {
	return s.Reconcile(ctx, nil, &Assertion{URLs: urls, Location: location, InsertedAt: insertedAt})
}

// DeleteAll removes the rows of urls posted at location.
func (s *SQLService) DeleteAll(ctx context.Context, urls []string, location models.ChatLocation) error {
	return s.Reconcile(ctx, &Retraction{URLs: urls, Location: location}, nil)
}

// Reconcile runs the delete and the inserts in a single transaction.
func (s *SQLService) Reconcile(ctx context.Context, retract *Retraction, assert *Assertion) error {
	retract, err := retract.normalize()
	if err != nil {
		return err
	}
	assert, err = assert.normalize(s.cfg)
	if err != nil {
		return err
	}
	if retract == nil && assert == nil {
		return nil
	}

	var removed int64
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		if retract != nil {
			query, args, err := sqlx.In(deleteRecords, retract.Location.Channel, retract.Location.Timestamp, retract.URLs)
			if err != nil {
				return fmt.Errorf("failed to build delete query: %w", err)
			}
			res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
			if err != nil {
				return fmt.Errorf("failed to delete tracking records: %w", err)
			}
			if removed, err = res.RowsAffected(); err != nil {
				return fmt.Errorf("failed to count deleted tracking records: %w", err)
			}
		}

		if assert != nil {
			for _, record := range assert.records(s.cfg.newID) {
				if _, err := tx.NamedExecContext(ctx, insertRecord, record); err != nil {
					return fmt.Errorf("failed to insert tracking record %s: %w", record.URL, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		log.Error(ctx, "Failed to reconcile tracking records",
			"error", err,
			"operation", "reconcile_tracking_records",
		)
		return err
	}

	log.Debug(ctx, "Reconciled tracking records",
		"removed", removed,
		"inserted", assertedCount(assert),
	)
	return nil
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *SQLService) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func assertedCount(a *Assertion) int {
	if a == nil {
		return 0
	}
	return len(a.URLs)
}

func normalizeTimes(records []*models.TrackingRecord) {
	for _, r := range records {
		r.InsertedAt = r.InsertedAt.UTC()
	}
}
