package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/medconnect-auth/internal/domain"
)

// FlowStore persists flows between requests. Update loads the flow, applies
// fn and saves the result atomically; when fn fails nothing is written.
type FlowStore interface {
	Create(ctx context.Context, f *domain.Flow) error
	Get(ctx context.Context, flowID string) (*domain.Flow, error)
	Update(ctx context.Context, flowID string, fn func(f *domain.Flow) error) (*domain.Flow, error)
}

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps flows in process memory. It is used when no Redis
// address is configured and in tests.
type MemoryStore struct {
	mu    sync.Mutex
	flows map[string]memEntry
	ttl   time.Duration
	clock clockwork.Clock
}

func NewMemoryStore(ttl time.Duration, clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{flows: make(map[string]memEntry), ttl: ttl, clock: clock}
}

func (m *MemoryStore) Create(_ context.Context, f *domain.Flow) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal flow: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gc()
	if _, ok := m.flows[f.FlowID]; ok {
		return fmt.Errorf("flow %s: %w", f.FlowID, domain.ErrConflict)
	}
	m.flows[f.FlowID] = memEntry{data: data, expiresAt: m.clock.Now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, flowID string) (*domain.Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(flowID)
}

func (m *MemoryStore) Update(_ context.Context, flowID string, fn func(f *domain.Flow) error) (*domain.Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.load(flowID)
	if err != nil {
		return nil, err
	}
	if err := fn(f); err != nil {
		return nil, err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal flow: %w", err)
	}
	m.flows[flowID] = memEntry{data: data, expiresAt: m.clock.Now().Add(m.ttl)}
	return f, nil
}

func (m *MemoryStore) load(flowID string) (*domain.Flow, error) {
	e, ok := m.flows[flowID]
	if !ok || !m.clock.Now().Before(e.expiresAt) {
		delete(m.flows, flowID)
		return nil, fmt.Errorf("flow %s: %w", flowID, domain.ErrNotFound)
	}
	var f domain.Flow
	if err := json.Unmarshal(e.data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal flow: %w", err)
	}
	return &f, nil
}

// gc drops expired flows. Callers hold mu.
func (m *MemoryStore) gc() {
	now := m.clock.Now()
	for k, e := range m.flows {
		if !now.Before(e.expiresAt) {
			delete(m.flows, k)
		}
	}
}
