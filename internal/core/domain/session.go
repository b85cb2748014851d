package domain

type SessionID string
type ParticipantID string

// ParticipantState tracks the membership state machine for a remote
// participant within one session instance. GONE is terminal; a re-join is a
// fresh ANNOUNCED entry.
type ParticipantState string

const (
	ParticipantUnknown   ParticipantState = "unknown"
	ParticipantAnnounced ParticipantState = "announced"
	ParticipantLinked    ParticipantState = "linked"
	ParticipantGone      ParticipantState = "gone"
)

// Participant is one member of a session, including self.
type Participant struct {
	ID        ParticipantID
	Label     string
	IsSelf    bool
	Connected bool
	State     ParticipantState
}

// Member is the transport-level roster entry exchanged with signaling
// backends that maintain their own membership view.
type Member struct {
	ID    ParticipantID `json:"participantId"`
	Label string        `json:"label"`
}
