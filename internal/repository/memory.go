package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
)

// MemoryStore keeps records in process memory. It is only suitable for a
// single instance (tests, demos).
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]model.Attendee
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.Attendee)}
}

func (s *MemoryStore) Create(ctx context.Context, a model.Attendee) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[a.ID]; ok {
		return ErrAlreadyExists
	}
	s.records[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) CreateBatch(ctx context.Context, as []model.Attendee) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(as))
	for _, a := range as {
		if _, ok := s.records[a.ID]; ok {
			return ErrAlreadyExists
		}
		if _, ok := seen[a.ID]; ok {
			return ErrAlreadyExists
		}
		seen[a.ID] = struct{}{}
	}
	for _, a := range as {
		s.records[a.ID] = a.Clone()
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Attendee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := a.Clone()
	return &out, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]model.Attendee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]model.Attendee, 0, len(s.records))
	for _, a := range s.records {
		out = append(out, a.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RegisteredAt.After(out[j].RegisteredAt)
	})
	return out, nil
}

func (s *MemoryStore) MarkCheckedIn(ctx context.Context, id string, at time.Time) (*model.Attendee, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.records[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if a.CheckedInAt != nil {
		out := a.Clone()
		return &out, false, nil
	}
	t := checkInTime(at, a.RegisteredAt)
	a.CheckedInAt = &t
	s.records[id] = a
	out := a.Clone()
	return &out, true, nil
}

func (s *MemoryStore) SetCheckedIn(ctx context.Context, id string, at *time.Time) (*model.Attendee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if at == nil {
		a.CheckedInAt = nil
	} else {
		t := at.UTC()
		a.CheckedInAt = &t
	}
	s.records[id] = a
	out := a.Clone()
	return &out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close(context.Context) error { return nil }
