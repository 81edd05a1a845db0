package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/textjianghu/jianghu-engine/pkg/mutation"
	"github.com/textjianghu/jianghu-engine/pkg/worldstate"
)

const (
	// sessionTTL bounds how long an idle session survives.
	sessionTTL = 24 * time.Hour

	// maxTxRetries bounds optimistic-transaction retries per turn.
	// Turns for the same session racing each other resolve within a
	// couple of attempts; anything beyond that is a real problem.
	maxTxRetries = 3
)

// RedisStore implements Store on Redis, one JSON document per session.
// Turn application relies on Redis optimistic transactions (WATCH /
// MULTI / EXEC): different sessions never contend, and concurrent turns
// for the same session serialize through the watch on the session key.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed world state store.
func NewRedisStore(redisURL string, logger *slog.Logger) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})
	return &RedisStore{
		client: rdb,
		logger: logger,
	}
}

func worldStateKey(id uuid.UUID) string {
	return "worldstate:" + id.String()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		s.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	s.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available during startup.
func (s *RedisStore) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := s.Ping(ctx); err != nil {
			s.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		s.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

func (s *RedisStore) CreateWorldState(ctx context.Context, ws *worldstate.WorldState) error {
	ws.UpdatedAt = time.Now()

	data, err := json.Marshal(ws)
	if err != nil {
		s.logger.Error("Failed to marshal world state", "session_id", ws.ID, "error", err)
		return fmt.Errorf("failed to marshal world state: %w", err)
	}

	if err := s.client.Set(ctx, worldStateKey(ws.ID), data, sessionTTL).Err(); err != nil {
		s.logger.Error("Failed to save world state", "session_id", ws.ID, "error", err)
		return fmt.Errorf("failed to save world state: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadWorldState(ctx context.Context, id uuid.UUID) (*worldstate.WorldState, error) {
	data, err := s.client.Get(ctx, worldStateKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.logger.Warn("World state not found", "session_id", id)
			return nil, ErrNotFound
		}
		s.logger.Error("Failed to load world state", "session_id", id, "error", err)
		return nil, fmt.Errorf("failed to load world state: %w", err)
	}

	var ws worldstate.WorldState
	if err := json.Unmarshal([]byte(data), &ws); err != nil {
		s.logger.Error("Failed to unmarshal world state", "session_id", id, "error", err)
		return nil, fmt.Errorf("failed to unmarshal world state: %w", err)
	}
	return &ws, nil
}

func (s *RedisStore) DeleteWorldState(ctx context.Context, id uuid.UUID) error {
	if err := s.client.Del(ctx, worldStateKey(id)).Err(); err != nil {
		s.logger.Error("Failed to delete world state", "session_id", id, "error", err)
		return fmt.Errorf("failed to delete world state: %w", err)
	}
	return nil
}

// ApplyTurn applies one turn's mutations inside a Redis optimistic
// transaction. Each attempt runs a strict two-phase discipline: the
// watched GET and the op derivation happen first, then the single write
// goes through MULTI/EXEC. EXEC fails if another writer touched the key
// after the GET, in which case the attempt restarts from the read phase
// with a freshly derived operation list.
func (s *RedisStore) ApplyTurn(ctx context.Context, id uuid.UUID, build BuildOpsFunc) (*worldstate.WorldState, []string, error) {
	key := worldStateKey(id)

	var updated *worldstate.WorldState
	var warnings []string

	txn := func(tx *redis.Tx) error {
		// Read phase: everything the ops need is known once the
		// document is decoded; no reads may follow the first write.
		data, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to read world state: %w", err)
		}

		var ws worldstate.WorldState
		if err := json.Unmarshal([]byte(data), &ws); err != nil {
			return fmt.Errorf("failed to unmarshal world state: %w", err)
		}

		ops, err := build(&ws)
		if err != nil {
			return fmt.Errorf("failed to build operations: %w", err)
		}

		warnings = mutation.Apply(ws.Doc, ops)
		ws.UpdatedAt = time.Now()

		payload, err := json.Marshal(&ws)
		if err != nil {
			return fmt.Errorf("failed to marshal world state: %w", err)
		}

		// Write phase.
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, sessionTTL)
			return nil
		})
		if err != nil {
			return err
		}

		updated = &ws
		return nil
	}

	for attempt := 1; attempt <= maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return updated, warnings, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Warn("World state transaction conflict, retrying",
				"session_id", id,
				"attempt", attempt)
			continue
		}
		return nil, nil, err
	}

	s.logger.Error("World state transaction retries exhausted", "session_id", id)
	return nil, nil, ErrConflict
}
