// Package redis provides a Ledger Store backed by Redis. Each profile is one
// JSON document under "<prefix><profileID>"; compare-and-swap uses
// WATCH/MULTI so a concurrent writer aborts the transaction.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"
	"github.com/boddenberg/ledger-settlement-go/internal/port"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("store/redis")

// DefaultKeyPrefix namespaces ledger documents.
const DefaultKeyPrefix = "ledger:profile:"

// Options configures the Redis connection.
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Store implements port.LedgerStore on a Redis client.
type Store struct {
	client goredis.UniversalClient
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewClient opens a single-node client and verifies it with PING.
func NewClient(ctx context.Context, opts Options) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

// New wraps an existing client.
func New(client goredis.UniversalClient, prefix string, logger *zap.Logger) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{client: client, prefix: prefix, logger: logger, now: time.Now}
}

func (s *Store) key(profileID string) string {
	return s.prefix + profileID
}

// Get loads and decodes the aggregate.
func (s *Store) Get(ctx context.Context, profileID string) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "RedisStore.Get")
	defer span.End()
	span.SetAttributes(attribute.String("profile.id", profileID))

	return s.load(ctx, s.client, profileID)
}

type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func (s *Store) load(ctx context.Context, c getter, profileID string) (*domain.Profile, error) {
	raw, err := c.Get(ctx, s.key(profileID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: profileID}
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", profileID, err)
	}

	var p domain.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", profileID, err)
	}
	return &p, nil
}

// Create writes the aggregate at version 1 only if the key is absent.
func (s *Store) Create(ctx context.Context, profile *domain.Profile) error {
	ctx, span := tracer.Start(ctx, "RedisStore.Create")
	defer span.End()
	span.SetAttributes(attribute.String("profile.id", profile.ID))

	cp := profile.Clone()
	cp.Version = 1
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	cp.UpdatedAt = cp.CreatedAt

	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", profile.ID, err)
	}

	ok, err := s.client.SetNX(ctx, s.key(profile.ID), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx %s: %w", profile.ID, err)
	}
	if !ok {
		return &domain.ErrConflict{Message: "profile already exists: " + profile.ID}
	}
	profile.Version = 1
	return nil
}

// CompareAndSwap rewrites the document inside a WATCHed transaction.
func (s *Store) CompareAndSwap(ctx context.Context, profileID string, expectedVersion int64, next *domain.Profile) (int64, error) {
	ctx, span := tracer.Start(ctx, "RedisStore.CompareAndSwap")
	defer span.End()
	span.SetAttributes(
		attribute.String("profile.id", profileID),
		attribute.Int64("profile.version", expectedVersion),
	)

	key := s.key(profileID)
	var newVersion int64

	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		cur, err := s.load(ctx, tx, profileID)
		if err != nil {
			return err
		}
		if cur.Version != expectedVersion {
			return domain.ErrVersionConflict
		}

		cp := next.Clone()
		cp.ID = profileID
		cp.Version = expectedVersion + 1
		cp.CreatedAt = cur.CreatedAt
		cp.UpdatedAt = s.now()

		raw, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("encode profile %s: %w", profileID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		if err != nil {
			return err
		}
		newVersion = cp.Version
		return nil
	}, key)

	switch {
	case err == nil:
		return newVersion, nil
	case errors.Is(err, goredis.TxFailedErr):
		s.logger.Debug("redis: watched key changed during CAS", zap.String("profile_id", profileID))
		return 0, domain.ErrVersionConflict
	default:
		return 0, err
	}
}

// Ping reports whether Redis answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var _ port.LedgerStore = (*Store)(nil)
