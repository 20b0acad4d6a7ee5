package flowstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements FlowStore using in-memory storage.
// Suitable for testing and local development.
type MemoryStore struct {
	mu    sync.RWMutex
	flows map[string]*Flow
}

// NewMemoryStore creates a new in-memory flow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flows: make(map[string]*Flow),
	}
}

// Create saves a new flow.
func (s *MemoryStore) Create(ctx context.Context, flow *Flow) (*Flow, error) {
	if err := flow.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := flow.Clone()
	if stored.AgentID == "" {
		stored.AgentID = uuid.New().String()
	}
	if _, exists := s.flows[stored.AgentID]; exists {
		return nil, ErrFlowExists
	}

	now := time.Now().UTC()
	stored.Revision = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.flows[stored.AgentID] = stored
	return stored.Clone(), nil
}

// Get retrieves a flow by agent id.
func (s *MemoryStore) Get(ctx context.Context, agentID string) (*Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flow, ok := s.flows[agentID]
	if !ok {
		return nil, ErrFlowNotFound
	}
	return flow.Clone(), nil
}

// Update replaces an existing flow.
func (s *MemoryStore) Update(ctx context.Context, agentID string, flow *Flow) (*Flow, error) {
	if err := flow.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.flows[agentID]
	if !ok {
		return nil, ErrFlowNotFound
	}
	replaceContent(stored, flow)
	return stored.Clone(), nil
}

// Delete removes a flow.
func (s *MemoryStore) Delete(ctx context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.flows[agentID]; !ok {
		return ErrFlowNotFound
	}
	delete(s.flows, agentID)
	return nil
}

// List returns all flows matching the options.
func (s *MemoryStore) List(ctx context.Context, opts *ListOptions) ([]*Flow, error) {
	s.mu.RLock()
	flows := make([]*Flow, 0, len(s.flows))
	for _, flow := range s.flows {
		flows = append(flows, flow.Clone())
	}
	s.mu.RUnlock()

	return filterPage(flows, opts), nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
