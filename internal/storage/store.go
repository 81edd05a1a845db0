package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/textjianghu/jianghu-engine/pkg/mutation"
	"github.com/textjianghu/jianghu-engine/pkg/worldstate"
)

// ErrNotFound is returned when no world state exists for a session id.
var ErrNotFound = errors.New("world state not found")

// ErrConflict is returned when a turn's transaction keeps losing to
// concurrent writers after the bounded retries are exhausted. The caller
// must surface it as a turn failure, never apply a partial result.
var ErrConflict = errors.New("world state transaction conflict")

// BuildOpsFunc derives the turn's operation list from the current world
// snapshot. The applier calls it once per transaction attempt, inside
// the read phase, so a retried turn re-derives its operations against
// fresh state instead of replaying a stale list.
type BuildOpsFunc func(snapshot *worldstate.WorldState) ([]mutation.Op, error)

// Store persists per-session world state documents.
type Store interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// CreateWorldState stores a freshly seeded world state.
	CreateWorldState(ctx context.Context, ws *worldstate.WorldState) error

	// LoadWorldState returns the state for a session, or ErrNotFound.
	LoadWorldState(ctx context.Context, id uuid.UUID) (*worldstate.WorldState, error)

	// DeleteWorldState removes a session's state.
	DeleteWorldState(ctx context.Context, id uuid.UUID) error

	// ApplyTurn applies one turn's mutations as a single all-or-nothing
	// transaction and returns the updated state plus mutation warnings.
	// All reads complete before any write is issued; on a concurrent
	// write the attempt is retried from the read phase, bounded, and
	// exhaustion surfaces as ErrConflict.
	ApplyTurn(ctx context.Context, id uuid.UUID, build BuildOpsFunc) (*worldstate.WorldState, []string, error)
}
