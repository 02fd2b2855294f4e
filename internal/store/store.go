package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("room record not found")

// RoomStore persists room snapshots. Create returns the store-assigned id
// used by later updates. Update reports ErrNotFound for unknown ids.
type RoomStore interface {
	Create(ctx context.Context, rec *RoomRecord) (string, error)
	Update(ctx context.Context, id string, rec *RoomRecord) error
	Get(ctx context.Context, id string) (*RoomRecord, error)
}

// MemoryStore keeps snapshots in process. Records are stored encoded so
// callers cannot mutate what was saved.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string][]byte)}
}

func (s *MemoryStore) Create(ctx context.Context, rec *RoomRecord) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.rows[id] = data
	s.mu.Unlock()
	return id, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, rec *RoomRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return ErrNotFound
	}
	s.rows[id] = data
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*RoomRecord, error) {
	s.mu.RLock()
	data, ok := s.rows[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	rec := &RoomRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Len returns the number of stored rooms.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
