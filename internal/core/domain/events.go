package domain

import "time"

// Event is the discriminated union of session notifications published to
// observers. Variants are plain structs so state machine tests can assert on
// exact sequences.
type Event interface {
	isEvent()
}

// ParticipantsChanged carries a consistent snapshot of the roster after any
// membership mutation.
type ParticipantsChanged struct {
	Participants []Participant
}

// FeedAdded fires when a remote stream's first track arrives on a peer link.
type FeedAdded struct {
	Feed RemoteFeed
}

// FeedRemoved fires when a remote stream dies or its originating link closes.
type FeedRemoved struct {
	ParticipantID ParticipantID
	StreamID      string
}

// ConnectionStateChanged mirrors peer connection state transitions.
type ConnectionStateChanged struct {
	ParticipantID ParticipantID
	State         string
}

// CountdownTick fires on every countdown recomputation while a synchronized
// start is pending.
type CountdownTick struct {
	Remaining time.Duration
}

// RecordingStarted fires when the countdown expires and capture begins.
type RecordingStarted struct {
	StartedAt time.Time
}

// RecordingStopped fires after all recorders have been stopped.
type RecordingStopped struct{}

// ArtifactReady delivers one assembled recording artifact.
type ArtifactReady struct {
	Artifact Artifact
}

func (ParticipantsChanged) isEvent()     {}
func (FeedAdded) isEvent()               {}
func (FeedRemoved) isEvent()             {}
func (ConnectionStateChanged) isEvent()  {}
func (CountdownTick) isEvent()           {}
func (RecordingStarted) isEvent()        {}
func (RecordingStopped) isEvent()        {}
func (ArtifactReady) isEvent()           {}
