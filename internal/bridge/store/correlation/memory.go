package correlation

import (
	"context"
	"sync"
	"time"

	"bugbridge/internal/bridge/models"
	"bugbridge/pkg/platform/sentinel"
)

// InMemoryStore keeps correlations in a mutex-guarded map. It backs unit
// tests and single-process deployments; durability comes from the redis or
// postgres stores.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.CorrelationRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]models.CorrelationRecord)}
}

func (s *InMemoryStore) Get(_ context.Context, sourceID string) (models.CorrelationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.records[sourceID]; ok {
		return rec, nil
	}
	return models.CorrelationRecord{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) CreateIfAbsent(_ context.Context, sourceID, targetID string) (models.CorrelationRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[sourceID]; ok {
		return rec, false, nil
	}
	rec := models.CorrelationRecord{
		SourceID:  sourceID,
		TargetID:  targetID,
		CreatedAt: time.Now().UTC(),
	}
	s.records[sourceID] = rec
	return rec, true, nil
}
