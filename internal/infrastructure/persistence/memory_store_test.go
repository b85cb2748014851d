package persistence

import (
	"context"
	"testing"

	"camsync/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStore_CreateAndGetSession(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record, err := store.CreateSession(ctx)
	assert.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.CreatedAt.IsZero())

	got, err := store.GetSession(ctx, record.ID)
	assert.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
}

func TestMemoryStore_GetSessionNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetSession(context.Background(), "session_missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestMemoryStore_RegisterDeviceCreatesSession(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.RegisterDevice(ctx, "session_abc", "peer_1", "Front")
	assert.NoError(t, err)

	// Session is created implicitly.
	_, err = store.GetSession(ctx, "session_abc")
	assert.NoError(t, err)
	assert.Equal(t, []domain.ParticipantID{"peer_1"}, store.Devices("session_abc"))
}

func TestMemoryStore_RegisterDeviceDeduplicates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	assert.NoError(t, store.RegisterDevice(ctx, "session_abc", "peer_1", "Front"))
	assert.NoError(t, store.RegisterDevice(ctx, "session_abc", "peer_1", "Front"))
	assert.NoError(t, store.RegisterDevice(ctx, "session_abc", "peer_2", "Back"))

	assert.Len(t, store.Devices("session_abc"), 2)
}

func TestMemoryStore_SaveRecordingMetadata(t *testing.T) {
	store := NewMemoryStore()

	meta := domain.RecordingMetadata{
		SessionID: "session_abc",
		DeviceID:  "peer_1",
		Duration:  12.5,
		FileName:  "front_2024-03-15T09-30-45.webm",
		FileSize:  1024,
	}
	assert.NoError(t, store.SaveRecordingMetadata(context.Background(), meta))

	saved := store.Recordings()
	assert.Len(t, saved, 1)
	assert.Equal(t, meta, saved[0])
}
