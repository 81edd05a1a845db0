package storage

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textjianghu/jianghu-engine/pkg/fieldpath"
	"github.com/textjianghu/jianghu-engine/pkg/mutation"
	"github.com/textjianghu/jianghu-engine/pkg/worldstate"
)

func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewRedisStore(mr.Addr(), logger), mr
}

func TestRedisStore_CreateAndLoad(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	ws := worldstate.New("deepseek-chat")

	require.NoError(t, store.CreateWorldState(ctx, ws))

	loaded, err := store.LoadWorldState(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, ws.ID, loaded.ID)

	hp, ok := loaded.Get(fieldpath.New("player", "core_status", "hp", "current"))
	require.True(t, ok)
	assert.Equal(t, 100.0, hp)
}

func TestRedisStore_LoadNotFound(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer func() { _ = store.Close() }()

	_, err := store.LoadWorldState(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Delete(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	ws := worldstate.New("")
	require.NoError(t, store.CreateWorldState(ctx, ws))
	require.NoError(t, store.DeleteWorldState(ctx, ws.ID))

	_, err := store.LoadWorldState(ctx, ws.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_ApplyTurn(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	ws := worldstate.New("")
	require.NoError(t, store.CreateWorldState(ctx, ws))

	hp := fieldpath.New("player", "core_status", "hp", "current")
	updated, warnings, err := store.ApplyTurn(ctx, ws.ID, func(snapshot *worldstate.WorldState) ([]mutation.Op, error) {
		return []mutation.Op{
			mutation.IncrementField{Path: hp, Delta: -10},
			mutation.CreateEntity{Namespace: "npcs", ID: "npc_1", Record: map[string]any{"id": "npc_1", "name": "Old Man"}},
		}, nil
	})

	require.NoError(t, err)
	assert.Empty(t, warnings)

	v, _ := updated.Get(hp)
	assert.Equal(t, 90.0, v)

	// Effects must be durably visible.
	loaded, err := store.LoadWorldState(ctx, ws.ID)
	require.NoError(t, err)
	v, _ = loaded.Get(hp)
	assert.Equal(t, 90.0, v)
	name, ok := loaded.Get(fieldpath.New("npcs", "npc_1", "name"))
	require.True(t, ok)
	assert.Equal(t, "Old Man", name)
}

func TestRedisStore_ApplyTurnIncrementsCompose(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	ws := worldstate.New("")
	require.NoError(t, store.CreateWorldState(ctx, ws))

	hp := fieldpath.New("player", "core_status", "hp", "current")
	for _, delta := range []float64{-10, 5} {
		d := delta
		_, _, err := store.ApplyTurn(ctx, ws.ID, func(*worldstate.WorldState) ([]mutation.Op, error) {
			return []mutation.Op{mutation.IncrementField{Path: hp, Delta: d}}, nil
		})
		require.NoError(t, err)
	}

	loaded, err := store.LoadWorldState(ctx, ws.ID)
	require.NoError(t, err)
	v, _ := loaded.Get(hp)
	assert.Equal(t, 95.0, v, "two sequential turns compose to a net -5")
}

func TestRedisStore_ApplyTurnNotFound(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer func() { _ = store.Close() }()

	_, _, err := store.ApplyTurn(context.Background(), uuid.New(), func(*worldstate.WorldState) ([]mutation.Op, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_ApplyTurnRetriesOnConflict(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	ws := worldstate.New("")
	require.NoError(t, store.CreateWorldState(ctx, ws))

	key := worldStateKey(ws.ID)
	attempts := 0
	updated, _, err := store.ApplyTurn(ctx, ws.ID, func(*worldstate.WorldState) ([]mutation.Op, error) {
		attempts++
		if attempts == 1 {
			// Concurrent writer lands between read and commit.
			data, getErr := mr.Get(key)
			require.NoError(t, getErr)
			require.NoError(t, mr.Set(key, data))
		}
		return []mutation.Op{
			mutation.SetField{Path: fieldpath.New("world", "weather"), Value: "storm"},
		}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts, "operations must be re-derived on each attempt")

	weather, _ := updated.Get(fieldpath.New("world", "weather"))
	assert.Equal(t, "storm", weather)
}

func TestRedisStore_ApplyTurnConflictExhaustionIsAtomic(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	ws := worldstate.New("")
	require.NoError(t, store.CreateWorldState(ctx, ws))

	key := worldStateKey(ws.ID)
	attempts := 0
	_, _, err := store.ApplyTurn(ctx, ws.ID, func(*worldstate.WorldState) ([]mutation.Op, error) {
		attempts++
		// Every attempt loses to a concurrent writer.
		data, getErr := mr.Get(key)
		require.NoError(t, getErr)
		require.NoError(t, mr.Set(key, data))
		return []mutation.Op{
			mutation.SetField{Path: fieldpath.New("world", "weather"), Value: "storm"},
			mutation.IncrementField{Path: fieldpath.New("player", "core_status", "hp", "current"), Delta: -10},
			mutation.CreateEntity{Namespace: "npcs", ID: "npc_x", Record: map[string]any{"id": "npc_x"}},
		}, nil
	})

	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, maxTxRetries, attempts)

	// None of the three operations' effects may be visible.
	loaded, loadErr := store.LoadWorldState(ctx, ws.ID)
	require.NoError(t, loadErr)

	weather, _ := loaded.Get(fieldpath.New("world", "weather"))
	assert.Equal(t, "clear", weather)
	hp, _ := loaded.Get(fieldpath.New("player", "core_status", "hp", "current"))
	assert.Equal(t, 100.0, hp)
	_, exists := loaded.Get(fieldpath.New("npcs", "npc_x"))
	assert.False(t, exists)
}

func TestMockStore_ApplyTurn(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	ws := worldstate.New("")
	require.NoError(t, store.CreateWorldState(ctx, ws))

	_, warnings, err := store.ApplyTurn(ctx, ws.ID, func(*worldstate.WorldState) ([]mutation.Op, error) {
		return []mutation.Op{
			mutation.CreateEntity{Namespace: "npcs", ID: "npc_a", Record: map[string]any{"id": "npc_a"}},
			mutation.CreateEntity{Namespace: "npcs", ID: "npc_a", Record: map[string]any{"id": "npc_a"}},
		}, nil
	})

	require.NoError(t, err)
	assert.Len(t, warnings, 1, "duplicate create reports a warning")
}
