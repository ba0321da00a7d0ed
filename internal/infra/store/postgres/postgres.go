// Package postgres provides a Ledger Store on PostgreSQL. The aggregate is a
// JSONB document next to a version column; compare-and-swap is a single
// conditional UPDATE.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"
	"github.com/boddenberg/ledger-settlement-go/internal/port"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("store/postgres")

const schema = `
CREATE TABLE IF NOT EXISTS ledger_profiles (
	id         TEXT        PRIMARY KEY,
	version    BIGINT      NOT NULL,
	document   JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store implements port.LedgerStore on a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect opens a pool for dsn and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// New wraps a pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Migrate creates the profiles table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate ledger_profiles: %w", err)
	}
	return nil
}

// Get loads the aggregate; the version column is authoritative.
func (s *Store) Get(ctx context.Context, profileID string) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.Get")
	defer span.End()
	span.SetAttributes(attribute.String("profile.id", profileID))

	var (
		version   int64
		raw       []byte
		createdAt time.Time
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT version, document, created_at, updated_at FROM ledger_profiles WHERE id = $1`,
		profileID,
	).Scan(&version, &raw, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: profileID}
	}
	if err != nil {
		return nil, fmt.Errorf("select profile %s: %w", profileID, err)
	}

	var p domain.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", profileID, err)
	}
	p.ID = profileID
	p.Version = version
	p.CreatedAt = createdAt
	p.UpdatedAt = updatedAt
	return &p, nil
}

// Create inserts the aggregate at version 1.
func (s *Store) Create(ctx context.Context, profile *domain.Profile) error {
	ctx, span := tracer.Start(ctx, "PostgresStore.Create")
	defer span.End()
	span.SetAttributes(attribute.String("profile.id", profile.ID))

	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", profile.ID, err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_profiles (id, version, document) VALUES ($1, 1, $2) ON CONFLICT (id) DO NOTHING`,
		profile.ID, raw,
	)
	if err != nil {
		return fmt.Errorf("insert profile %s: %w", profile.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrConflict{Message: "profile already exists: " + profile.ID}
	}
	profile.Version = 1
	return nil
}

// CompareAndSwap updates the row only while version still equals expectedVersion.
func (s *Store) CompareAndSwap(ctx context.Context, profileID string, expectedVersion int64, next *domain.Profile) (int64, error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.CompareAndSwap")
	defer span.End()
	span.SetAttributes(
		attribute.String("profile.id", profileID),
		attribute.Int64("profile.version", expectedVersion),
	)

	raw, err := json.Marshal(next)
	if err != nil {
		return 0, fmt.Errorf("encode profile %s: %w", profileID, err)
	}

	var newVersion int64
	err = s.pool.QueryRow(ctx,
		`UPDATE ledger_profiles
		    SET document = $3, version = version + 1, updated_at = now()
		  WHERE id = $1 AND version = $2
		RETURNING version`,
		profileID, expectedVersion, raw,
	).Scan(&newVersion)
	if err == nil {
		return newVersion, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("update profile %s: %w", profileID, err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger_profiles WHERE id = $1)`, profileID,
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check profile %s: %w", profileID, err)
	}
	if !exists {
		return 0, &domain.ErrNotFound{Resource: "profile", ID: profileID}
	}
	s.logger.Debug("postgres: stale version on CAS",
		zap.String("profile_id", profileID),
		zap.Int64("expected_version", expectedVersion),
	)
	return 0, domain.ErrVersionConflict
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var _ port.LedgerStore = (*Store)(nil)
