// Package redis provides a Redis-backed persistent store. The full snapshot
// is stored as one JSON value, which keeps the write path to a single SET and
// suits the small, whole-workspace save model.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"journeycore/internal/infra/persistence/memory"
	"journeycore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	driverName = "redis"
	stateKey   = "journeycore:state"
)

// Store persists state to Redis while reusing the in-memory implementation
// for transactions.
type Store struct {
	*memory.Store
	client *redis.Client
	mu     sync.Mutex
}

// NewStore opens a Redis-backed store from a redis:// URL and hydrates the
// in-memory store from any existing snapshot.
func NewStore(url string, engine *domain.RulesEngine) (*Store, error) {
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	snapshot, err := loadSnapshot(ctx, client)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	return &Store{Store: mem, client: client}, nil
}

func loadSnapshot(ctx context.Context, client *redis.Client) (memory.Snapshot, error) {
	var snapshot memory.Snapshot
	data, err := client.Get(ctx, stateKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return snapshot, nil
	}
	if err != nil {
		return snapshot, fmt.Errorf("get state: %w", err)
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return snapshot, fmt.Errorf("decode state: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, stateKey, data, 0).Err(); err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}

// RunInTransaction applies fn within a transaction, then snapshots to Redis.
// A failed save surfaces as a SaveError; the in-memory commit stands.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(ctx); pErr != nil {
		return res, &domain.SaveError{Driver: driverName, Op: "persist", Err: pErr}
	}
	return res, nil
}

// RunDeferred commits in memory only; call Flush to make the state durable.
func (s *Store) RunDeferred(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	return s.Store.RunInTransaction(ctx, fn)
}

// Flush snapshots the current state to Redis.
func (s *Store) Flush(ctx context.Context) error {
	if err := s.persist(ctx); err != nil {
		return &domain.SaveError{Driver: driverName, Op: "flush", Err: err}
	}
	return nil
}

// Close releases the underlying Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client exposes the underlying Redis client for integration testing hooks.
func (s *Store) Client() *redis.Client { return s.client }
