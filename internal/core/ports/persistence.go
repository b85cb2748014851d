package ports

import (
	"context"

	"camsync/internal/core/domain"
)

// MetadataStore is the external session/device/recording persistence API,
// treated as an opaque collaborator.
type MetadataStore interface {
	CreateSession(ctx context.Context) (*domain.SessionRecord, error)
	GetSession(ctx context.Context, id domain.SessionID) (*domain.SessionRecord, error)
	RegisterDevice(ctx context.Context, sessionID domain.SessionID, participantID domain.ParticipantID, label string) error
	SaveRecordingMetadata(ctx context.Context, meta domain.RecordingMetadata) error
}
