// internal/store/store.go

// Package store mirrors the published report slot into PostgreSQL so
// the latest report survives restarts. The table holds exactly one row;
// every publish overwrites it, matching the in-memory slot semantics.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool abstracts the pgxpool.Pool so tests can run against a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const (
	// The CHECK pins slot to true, so the table can never grow past
	// one row.
	sqlMigrate = `
        CREATE TABLE IF NOT EXISTS audit_reports (
            slot       BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (slot),
            url        TEXT NOT NULL,
            report     JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );
    `

	sqlUpsertReport = `
        INSERT INTO audit_reports (slot, url, report, updated_at)
        VALUES (TRUE, $1, $2, $3)
        ON CONFLICT (slot) DO UPDATE SET
            url = EXCLUDED.url,
            report = EXCLUDED.report,
            updated_at = EXCLUDED.updated_at;
    `

	sqlSelectReport = `SELECT report FROM audit_reports WHERE slot;`
)

// Store is the PostgreSQL-backed report slot.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store around an existing pool and verifies the
// connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Connect dials the DSN, pings it and returns a ready store.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the report table when it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlMigrate); err != nil {
		return fmt.Errorf("failed to create audit_reports table: %w", err)
	}
	return nil
}

// SaveReport overwrites the slot with the given report.
func (s *Store) SaveReport(ctx context.Context, report *schemas.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report for storage: %w", err)
	}

	if _, err := s.pool.Exec(ctx, sqlUpsertReport, report.URL, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert report: %w", err)
	}

	s.log.Debug("Report mirrored to the store.",
		zap.String("url", report.URL),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// LoadLatest returns the stored report, or schemas.ErrNoReport when the
// slot has never been written.
func (s *Store) LoadLatest(ctx context.Context) (*schemas.Report, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, sqlSelectReport).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, schemas.ErrNoReport
		}
		return nil, fmt.Errorf("failed to load report: %w", err)
	}

	var report schemas.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode stored report: %w", err)
	}
	return &report, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
