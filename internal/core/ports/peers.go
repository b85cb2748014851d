package ports

import (
	"camsync/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// PeerObserver receives peer manager notifications. All callbacks may fire
// from pion event goroutines; implementations must be safe for concurrent use.
type PeerObserver interface {
	OnLocalCandidate(remoteID domain.ParticipantID, candidate webrtc.ICECandidateInit)
	OnFeedAdded(feed domain.RemoteFeed)
	OnFeedRemoved(remoteID domain.ParticipantID, streamID string)
	OnPeerStateChange(remoteID domain.ParticipantID, state webrtc.PeerConnectionState)
}

// PeerManager owns one full-duplex media connection per remote participant.
type PeerManager interface {
	// EnsurePeer returns the existing link for remoteID or creates a new one,
	// attaching every registered local camera's tracks on creation.
	EnsurePeer(remoteID domain.ParticipantID) (created bool, err error)

	HasPeer(remoteID domain.ParticipantID) bool

	// CreateOffer creates and sets a local offer for transmission.
	CreateOffer(remoteID domain.ParticipantID) (webrtc.SessionDescription, error)

	// HandleOffer applies a remote offer and returns the local answer.
	HandleOffer(remoteID domain.ParticipantID, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)

	// HandleAnswer applies a remote answer unless a remote description is
	// already set (duplicate or out-of-order delivery).
	HandleAnswer(remoteID domain.ParticipantID, answer webrtc.SessionDescription) error

	// AddICECandidate applies a candidate. A candidate for an unknown peer is
	// logged and dropped, never an error the caller must handle.
	AddICECandidate(remoteID domain.ParticipantID, candidate webrtc.ICECandidateInit) error

	// RemovePeer closes and removes the link and prunes its remote feeds.
	RemovePeer(remoteID domain.ParticipantID)

	// RegisterLocalCamera attaches the camera's tracks to every existing link.
	RegisterLocalCamera(cam *domain.LocalCamera) error

	// UnregisterLocalCamera detaches the camera's tracks from every link and
	// stops its capture sources.
	UnregisterLocalCamera(id string) error

	Cameras() []*domain.LocalCamera
	Feeds() []domain.RemoteFeed

	// CloseAll tears down every link; per-link failures are isolated.
	CloseAll()
}
