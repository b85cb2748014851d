package media

import (
	"context"
	"strings"
	"testing"
	"time"

	"camsync/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

// scriptedSource plays back a fixed chunk sequence, then blocks until the
// capture context is cancelled.
type scriptedSource struct {
	mimeType string
	chunks   chan []byte
	closed   bool
}

func newScriptedSource(mimeType string, chunks ...[]byte) *scriptedSource {
	s := &scriptedSource{
		mimeType: mimeType,
		chunks:   make(chan []byte, len(chunks)),
	}
	for _, c := range chunks {
		s.chunks <- c
	}
	return s
}

func (s *scriptedSource) MimeType() string { return s.mimeType }

func (s *scriptedSource) ReadChunk(ctx context.Context) ([]byte, error) {
	select {
	case c := <-s.chunks:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

func defaultPreferences() []string {
	return []string{"video/webm;codecs=vp9,opus", "video/webm", "video/mp4"}
}

func TestAssembler_LocalCameraChunks(t *testing.T) {
	a := NewAssembler(defaultPreferences(), zaptest.NewLogger(t).Sugar())

	cam := &domain.LocalCamera{
		ID:     "cam_1",
		Label:  "Front Door",
		Source: newScriptedSource("video/webm", []byte("chunk-a"), []byte("chunk-b")),
	}

	startedAt := time.Now()
	started := a.Start(startedAt, []*domain.LocalCamera{cam}, nil)
	assert.Equal(t, 1, started)
	assert.True(t, a.Active())

	// Give the recorder loop time to drain the scripted chunks.
	time.Sleep(50 * time.Millisecond)

	artifacts := a.Stop()
	assert.False(t, a.Active())
	assert.Len(t, artifacts, 1)

	got := artifacts[0]
	assert.Equal(t, []byte("chunk-achunk-b"), got.Data)
	assert.Equal(t, "video/webm", got.MimeType)
	assert.Equal(t, "cam_1", got.StreamID)
	assert.Equal(t, "Front Door", got.SourceLabel)
	assert.True(t, strings.HasPrefix(got.FileName, "Front_Door_"))
	assert.True(t, strings.HasSuffix(got.FileName, ".webm"))
	assert.Equal(t, startedAt, got.StartedAt)
	assert.Greater(t, got.Duration, time.Duration(0))
}

func TestAssembler_CameraWithoutSourceSkipped(t *testing.T) {
	a := NewAssembler(defaultPreferences(), zaptest.NewLogger(t).Sugar())

	cams := []*domain.LocalCamera{
		{ID: "cam_1", Label: "Broken"},
		{ID: "cam_2", Label: "Working", Source: newScriptedSource("video/webm", []byte("x"))},
	}

	started := a.Start(time.Now(), cams, nil)
	assert.Equal(t, 1, started)

	time.Sleep(20 * time.Millisecond)
	artifacts := a.Stop()
	assert.Len(t, artifacts, 1)
	assert.Equal(t, "cam_2", artifacts[0].StreamID)
}

func TestAssembler_NoStreamsStaysInactive(t *testing.T) {
	a := NewAssembler(defaultPreferences(), zaptest.NewLogger(t).Sugar())

	started := a.Start(time.Now(), nil, nil)
	assert.Zero(t, started)
	assert.False(t, a.Active())
	assert.Nil(t, a.Stop())
}

func TestAssembler_EmptyRecorderDropped(t *testing.T) {
	a := NewAssembler(defaultPreferences(), zaptest.NewLogger(t).Sugar())

	cam := &domain.LocalCamera{
		ID:     "cam_1",
		Label:  "Silent",
		Source: newScriptedSource("video/webm"),
	}

	started := a.Start(time.Now(), []*domain.LocalCamera{cam}, nil)
	assert.Equal(t, 1, started)

	// The source never produced a chunk; no artifact comes out.
	artifacts := a.Stop()
	assert.Empty(t, artifacts)
}

func TestAssembler_DuplicateLabelsGetDistinctNames(t *testing.T) {
	a := NewAssembler(defaultPreferences(), zaptest.NewLogger(t).Sugar())

	cams := []*domain.LocalCamera{
		{ID: "cam_1", Label: "Cam", Source: newScriptedSource("video/webm", []byte("a"))},
		{ID: "cam_2", Label: "Cam", Source: newScriptedSource("video/webm", []byte("b"))},
	}

	started := a.Start(time.Now(), cams, nil)
	assert.Equal(t, 2, started)

	time.Sleep(30 * time.Millisecond)
	artifacts := a.Stop()
	assert.Len(t, artifacts, 2)
	assert.NotEqual(t, artifacts[0].FileName, artifacts[1].FileName)
}

func TestAssembler_DoubleStartIgnored(t *testing.T) {
	a := NewAssembler(defaultPreferences(), zaptest.NewLogger(t).Sugar())

	cam := &domain.LocalCamera{
		ID:     "cam_1",
		Label:  "Front",
		Source: newScriptedSource("video/webm", []byte("a")),
	}
	assert.Equal(t, 1, a.Start(time.Now(), []*domain.LocalCamera{cam}, nil))
	assert.Zero(t, a.Start(time.Now(), []*domain.LocalCamera{cam}, nil))
	a.Stop()
}

func TestScriptedSourceHonorsCancellation(t *testing.T) {
	src := newScriptedSource("video/webm")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.ReadChunk(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, src.Close())
}
