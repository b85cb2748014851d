package domain

import "encoding/json"

type MessageType string

const (
	MessagePresence MessageType = "presence"
	MessageSignal   MessageType = "signal"
	MessageCommand  MessageType = "command"
	// MessageRoster is pushed by backends that track membership server-side.
	MessageRoster MessageType = "roster"
)

type SignalSubtype string

const (
	SignalOffer     SignalSubtype = "offer"
	SignalAnswer    SignalSubtype = "answer"
	SignalCandidate SignalSubtype = "candidate"
)

type CommandAction string

const (
	CommandStartRecording CommandAction = "start_recording"
	CommandStopRecording  CommandAction = "stop_recording"
)

// Envelope is the single wire shape carried by every signaling backend.
// Receivers must ignore envelopes whose From equals their own participant id.
type Envelope struct {
	Type     MessageType      `json:"type"`
	From     ParticipantID    `json:"from"`
	Presence *PresencePayload `json:"presence,omitempty"`
	Signal   *SignalPayload   `json:"signal,omitempty"`
	Command  *CommandPayload  `json:"command,omitempty"`
	Roster   []Member         `json:"roster,omitempty"`
}

// PresencePayload announces a participant to the session. Idempotent; may be
// re-sent on every (re)join.
type PresencePayload struct {
	ParticipantID ParticipantID `json:"participantId"`
	Label         string        `json:"label"`
}

// SignalPayload carries connection negotiation traffic. Logically unicast:
// receivers drop payloads whose To does not match their own id.
type SignalPayload struct {
	Subtype SignalSubtype   `json:"subtype"`
	From    ParticipantID   `json:"from"`
	To      ParticipantID   `json:"to"`
	Data    json.RawMessage `json:"data"`
}

// CommandPayload carries session-wide synchronized commands. StartAt is an
// absolute wall-clock instant in epoch milliseconds so that every receiver
// schedules against the same zero hour rather than a relative delay.
type CommandPayload struct {
	Action  CommandAction `json:"action"`
	From    ParticipantID `json:"from"`
	StartAt int64         `json:"startAt,omitempty"`
}
