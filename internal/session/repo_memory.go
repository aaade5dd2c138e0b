package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store, useful for tests and local development.
// It is not intended for production use.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]CallSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]CallSession)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Create(ctx context.Context, s CallSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) GetOwned(ctx context.Context, ownerID, id string) (CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.OwnerID != ownerID {
		return CallSession{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) List(ctx context.Context, ownerID string, limit, offset int) ([]CallSession, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owned := m.ownedLocked(ownerID)
	total := len(owned)

	if offset >= len(owned) {
		return []CallSession{}, total, nil
	}
	owned = owned[offset:]
	if limit < len(owned) {
		owned = owned[:limit]
	}
	return owned, total, nil
}

func (m *MemoryStore) ListCreatedBetween(ctx context.Context, ownerID string, from, to time.Time) ([]CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []CallSession
	for _, s := range m.ownedLocked(ownerID) {
		if !s.CreatedAt.Before(from) && s.CreatedAt.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

// ownedLocked returns the owner's sessions newest-first. Caller holds mu.
func (m *MemoryStore) ownedLocked(ownerID string) []CallSession {
	var out []CallSession
	for _, s := range m.sessions {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *MemoryStore) MarkInProgress(ctx context.Context, id, providerCallID, providerControlID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false, ErrNotFound
	}
	if s.Status != StatusInitiating && s.Status != StatusInProgress {
		return false, nil
	}
	// Status write is a no-op on redelivery, but missing provider IDs are
	// still healed (write-once).
	applied := s.Status == StatusInitiating || (s.ProviderCallID == "" && providerCallID != "")
	if !applied {
		return false, nil
	}
	s.Status = StatusInProgress
	if s.ProviderCallID == "" {
		s.ProviderCallID = providerCallID
	}
	if s.ProviderControlID == "" {
		s.ProviderControlID = providerControlID
	}
	s.UpdatedAt = now
	m.sessions[id] = s
	return true, nil
}

func (m *MemoryStore) MarkAICompleted(ctx context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false, ErrNotFound
	}
	if s.Status == StatusAICompleted || !s.Status.CanTransitionTo(StatusAICompleted) {
		return false, nil
	}
	s.Status = StatusAICompleted
	s.UpdatedAt = now
	m.sessions[id] = s
	return true, nil
}

func (m *MemoryStore) MarkCompleted(ctx context.Context, id string, endedAt time.Time, durationSeconds int, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false, ErrNotFound
	}
	if s.Status.IsTerminal() {
		return false, nil
	}
	s.Status = StatusCompleted
	if s.EndedAt == nil {
		e := endedAt
		s.EndedAt = &e
		s.DurationSeconds = durationSeconds
	}
	s.UpdatedAt = now
	m.sessions[id] = s
	return true, nil
}

func (m *MemoryStore) MarkFailed(ctx context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false, ErrNotFound
	}
	if s.Status.IsTerminal() {
		return false, nil
	}
	s.Status = StatusFailed
	s.UpdatedAt = now
	m.sessions[id] = s
	return true, nil
}

func (m *MemoryStore) SetRecordingRef(ctx context.Context, id, ref string, now time.Time) error {
	return m.setField(id, now, func(s *CallSession) { s.RecordingRef = ref })
}

func (m *MemoryStore) SetTranscript(ctx context.Context, id, transcript string, now time.Time) error {
	return m.setField(id, now, func(s *CallSession) { s.Transcript = transcript })
}

func (m *MemoryStore) SetInsights(ctx context.Context, id, insights string, now time.Time) error {
	return m.setField(id, now, func(s *CallSession) { s.Insights = insights })
}

func (m *MemoryStore) setField(id string, now time.Time, set func(*CallSession)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	set(&s)
	s.UpdatedAt = now
	m.sessions[id] = s
	return nil
}
