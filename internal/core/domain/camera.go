package domain

import (
	"context"

	"github.com/pion/webrtc/v3"
)

// ChunkSource is an encoded-container tap provided by the capture layer for
// one local camera: it emits binary chunks of an already-muxed container
// stream (the capture pipeline's recorder output), in arrival order.
type ChunkSource interface {
	// MimeType returns the container type of the emitted chunks,
	// e.g. "video/webm".
	MimeType() string
	// ReadChunk blocks until the next chunk is available. Returns io.EOF
	// once the source is closed.
	ReadChunk(ctx context.Context) ([]byte, error)
	// Close stops the underlying capture hardware for this camera.
	Close() error
}

// LocalCamera describes one enabled local capture device. A session may hold
// several simultaneously (front + back camera). Tracks are attached to every
// peer link; Source, when present, feeds the local recording path.
type LocalCamera struct {
	ID       string
	Label    string
	DeviceID string
	Tracks   []webrtc.TrackLocal
	Source   ChunkSource
}

// Close stops the capture source. Closing an already-closed source must be
// tolerated by implementations.
func (c *LocalCamera) Close() error {
	if c.Source != nil {
		return c.Source.Close()
	}
	return nil
}

// RemoteFeed is one remote media stream received over a peer link, derived
// 1:1 from the remote stream id. It lives as long as its tracks do and is
// pruned when the originating link closes.
type RemoteFeed struct {
	ParticipantID ParticipantID
	StreamID      string
	Label         string
	Tracks        []*webrtc.TrackRemote
}
