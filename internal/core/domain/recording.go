package domain

import "time"

// RecordingState is the synchronized recording controller state machine.
type RecordingState string

const (
	RecordingIdle         RecordingState = "idle"
	RecordingCountingDown RecordingState = "counting_down"
	RecordingActive       RecordingState = "recording"
)

// Artifact is one finished recording file handed to the persistence/download
// collaborator.
type Artifact struct {
	Data        []byte
	FileName    string
	MimeType    string
	SourceLabel string
	StreamID    string
	StartedAt   time.Time
	Duration    time.Duration
}

// SessionRecord is the external persistence view of a session.
type SessionRecord struct {
	ID        SessionID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordingMetadata indexes one finished artifact in the external store.
type RecordingMetadata struct {
	SessionID   SessionID     `json:"session_id"`
	DeviceID    ParticipantID `json:"device_id"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    float64       `json:"duration"`
	FileName    string        `json:"file_name"`
	FileSize    int64         `json:"file_size"`
	CameraIndex int           `json:"camera_index"`
}
