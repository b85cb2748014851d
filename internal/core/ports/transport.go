package ports

import (
	"context"

	"camsync/internal/core/domain"
)

// SignalChannel is one subscription to a session-scoped signaling transport.
// Implementations deliver every message on Messages(), including the
// subscriber's own broadcasts; consumers filter by the envelope's From field.
type SignalChannel interface {
	// Announce publishes presence. Idempotent; safe to call on every (re)join.
	Announce(ctx context.Context, presence domain.PresencePayload) error

	// SendSignal sends a logically-unicast negotiation message. Backends may
	// implement it as broadcast-with-filtering.
	SendSignal(ctx context.Context, sig domain.SignalPayload) error

	// SendCommand broadcasts to currently-subscribed participants.
	SendCommand(ctx context.Context, cmd domain.CommandPayload) error

	// Messages delivers all inbound envelopes. Closed when the channel closes.
	Messages() <-chan domain.Envelope

	// Members returns the backend's own membership view when it maintains
	// one; ok=false means the caller must derive the roster from presence
	// announcements alone.
	Members() ([]domain.Member, bool)

	// Connected reports transport health. The channel never reconnects
	// itself; re-subscription is the caller's responsibility.
	Connected() bool

	Close() error
}
