package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/textjianghu/jianghu-engine/pkg/mutation"
	"github.com/textjianghu/jianghu-engine/pkg/worldstate"
)

// MockStore is an in-memory Store for testing. Transactions never
// conflict unless a conflict is injected via SetApplyError.
type MockStore struct {
	mu         sync.RWMutex
	states     map[uuid.UUID]*worldstate.WorldState
	pingError  error
	applyError error
}

var _ Store = (*MockStore)(nil)

func NewMockStore() *MockStore {
	return &MockStore{
		states: make(map[uuid.UUID]*worldstate.WorldState),
	}
}

// SetPingError configures Ping to fail with the given error.
func (m *MockStore) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetApplyError configures ApplyTurn to fail with the given error,
// e.g. ErrConflict to simulate retry exhaustion.
func (m *MockStore) SetApplyError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyError = err
}

func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MockStore) Close() error {
	return nil
}

func (m *MockStore) CreateWorldState(ctx context.Context, ws *worldstate.WorldState) error {
	if ws == nil {
		return errors.New("world state cannot be nil")
	}
	copied, err := ws.DeepCopy()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[ws.ID] = copied
	return nil
}

func (m *MockStore) LoadWorldState(ctx context.Context, id uuid.UUID) (*worldstate.WorldState, error) {
	m.mu.RLock()
	ws, ok := m.states[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return ws.DeepCopy()
}

func (m *MockStore) DeleteWorldState(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
	return nil
}

func (m *MockStore) ApplyTurn(ctx context.Context, id uuid.UUID, build BuildOpsFunc) (*worldstate.WorldState, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.applyError != nil {
		return nil, nil, m.applyError
	}

	stored, ok := m.states[id]
	if !ok {
		return nil, nil, ErrNotFound
	}

	ws, err := stored.DeepCopy()
	if err != nil {
		return nil, nil, err
	}

	ops, err := build(ws)
	if err != nil {
		return nil, nil, err
	}

	warnings := mutation.Apply(ws.Doc, ops)
	ws.UpdatedAt = time.Now()
	m.states[id] = ws

	result, err := ws.DeepCopy()
	if err != nil {
		return nil, nil, err
	}
	return result, warnings, nil
}
