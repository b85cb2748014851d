package persistence

import (
	"context"
	"sync"
	"time"

	"camsync/internal/core/domain"
	"camsync/pkg/utils"
)

// MemoryStore is an in-process MetadataStore for single-node deployments and
// tests.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[domain.SessionID]*domain.SessionRecord
	devices    map[domain.SessionID][]domain.ParticipantID
	recordings []domain.RecordingMetadata
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[domain.SessionID]*domain.SessionRecord),
		devices:  make(map[domain.SessionID][]domain.ParticipantID),
	}
}

// CreateSession implements ports.MetadataStore.
func (s *MemoryStore) CreateSession(_ context.Context) (*domain.SessionRecord, error) {
	record := &domain.SessionRecord{
		ID:        domain.SessionID(utils.GenerateSessionID()),
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.sessions[record.ID] = record
	s.mu.Unlock()

	out := *record
	return &out, nil
}

// GetSession implements ports.MetadataStore.
func (s *MemoryStore) GetSession(_ context.Context, id domain.SessionID) (*domain.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	out := *record
	return &out, nil
}

// RegisterDevice implements ports.MetadataStore. Unknown sessions are created
// implicitly; the live session does not depend on CreateSession having been
// called first.
func (s *MemoryStore) RegisterDevice(_ context.Context, sessionID domain.SessionID, participantID domain.ParticipantID, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		s.sessions[sessionID] = &domain.SessionRecord{
			ID:        sessionID,
			CreatedAt: time.Now(),
		}
	}
	for _, id := range s.devices[sessionID] {
		if id == participantID {
			return nil
		}
	}
	s.devices[sessionID] = append(s.devices[sessionID], participantID)
	return nil
}

// SaveRecordingMetadata implements ports.MetadataStore.
func (s *MemoryStore) SaveRecordingMetadata(_ context.Context, meta domain.RecordingMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordings = append(s.recordings, meta)
	return nil
}

// Recordings returns a copy of all saved recording metadata.
func (s *MemoryStore) Recordings() []domain.RecordingMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RecordingMetadata, len(s.recordings))
	copy(out, s.recordings)
	return out
}

// Devices returns the devices registered for a session.
func (s *MemoryStore) Devices(sessionID domain.SessionID) []domain.ParticipantID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ParticipantID, len(s.devices[sessionID]))
	copy(out, s.devices[sessionID])
	return out
}
