package transport

import (
	"context"
	"sync"

	"camsync/internal/core/domain"

	"go.uber.org/zap"
)

// LocalBus is the in-process signaling backend: every subscriber to a session
// receives every envelope published to it, sender included. It exists for
// same-process multi-participant setups and for deterministic tests.
type LocalBus struct {
	logger *zap.SugaredLogger

	mu       sync.RWMutex
	sessions map[domain.SessionID]map[*LocalChannel]struct{}
}

// NewLocalBus creates an empty bus.
func NewLocalBus(logger *zap.SugaredLogger) *LocalBus {
	return &LocalBus{
		logger:   logger,
		sessions: make(map[domain.SessionID]map[*LocalChannel]struct{}),
	}
}

// Subscribe joins the session and returns the member's channel. Remaining
// subscribers receive a roster push reflecting the new membership.
func (b *LocalBus) Subscribe(sessionID domain.SessionID, self domain.Member) *LocalChannel {
	ch := &LocalChannel{
		bus:       b,
		sessionID: sessionID,
		self:      self,
		msgs:      make(chan domain.Envelope, 64),
	}

	b.mu.Lock()
	subs, ok := b.sessions[sessionID]
	if !ok {
		subs = make(map[*LocalChannel]struct{})
		b.sessions[sessionID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	b.logger.Infow("local channel subscribed",
		"session_id", sessionID, "participant_id", self.ID)
	b.pushRoster(sessionID, self.ID)
	return ch
}

// Members returns the session's current membership.
func (b *LocalBus) Members(sessionID domain.SessionID) []domain.Member {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := b.sessions[sessionID]
	members := make([]domain.Member, 0, len(subs))
	for ch := range subs {
		members = append(members, ch.self)
	}
	return members
}

// broadcast delivers env to every subscriber of the session, the sender
// included. Full mailboxes drop the envelope rather than block the sender.
func (b *LocalBus) broadcast(sessionID domain.SessionID, env domain.Envelope) {
	b.mu.RLock()
	targets := make([]*LocalChannel, 0, len(b.sessions[sessionID]))
	for ch := range b.sessions[sessionID] {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		if !ch.deliver(env) {
			b.logger.Warnw("local channel mailbox full, envelope dropped",
				"session_id", sessionID, "participant_id", ch.self.ID, "type", env.Type)
		}
	}
}

func (b *LocalBus) unsubscribe(ch *LocalChannel) {
	b.mu.Lock()
	subs, ok := b.sessions[ch.sessionID]
	if ok {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(b.sessions, ch.sessionID)
		}
	}
	b.mu.Unlock()

	b.logger.Infow("local channel unsubscribed",
		"session_id", ch.sessionID, "participant_id", ch.self.ID)
	b.pushRoster(ch.sessionID, ch.self.ID)
}

// pushRoster broadcasts the membership view after a join or leave. From is
// the participant whose membership changed, so the triggering side ignores
// its own push through the usual self-filter.
func (b *LocalBus) pushRoster(sessionID domain.SessionID, from domain.ParticipantID) {
	b.broadcast(sessionID, domain.Envelope{
		Type:   domain.MessageRoster,
		From:   from,
		Roster: b.Members(sessionID),
	})
}

// LocalChannel is one subscriber's handle on the bus.
type LocalChannel struct {
	bus       *LocalBus
	sessionID domain.SessionID
	self      domain.Member
	msgs      chan domain.Envelope

	mu     sync.Mutex
	closed bool
}

// Announce implements ports.SignalChannel.
func (c *LocalChannel) Announce(_ context.Context, presence domain.PresencePayload) error {
	return c.publish(domain.Envelope{
		Type:     domain.MessagePresence,
		From:     presence.ParticipantID,
		Presence: &presence,
	})
}

// SendSignal implements ports.SignalChannel. Broadcast with receiver-side
// filtering on the payload's To field.
func (c *LocalChannel) SendSignal(_ context.Context, sig domain.SignalPayload) error {
	return c.publish(domain.Envelope{
		Type:   domain.MessageSignal,
		From:   sig.From,
		Signal: &sig,
	})
}

// SendCommand implements ports.SignalChannel.
func (c *LocalChannel) SendCommand(_ context.Context, cmd domain.CommandPayload) error {
	return c.publish(domain.Envelope{
		Type:    domain.MessageCommand,
		From:    cmd.From,
		Command: &cmd,
	})
}

// Messages implements ports.SignalChannel.
func (c *LocalChannel) Messages() <-chan domain.Envelope {
	return c.msgs
}

// Members implements ports.SignalChannel. The bus always tracks membership.
func (c *LocalChannel) Members() ([]domain.Member, bool) {
	return c.bus.Members(c.sessionID), true
}

// Connected implements ports.SignalChannel.
func (c *LocalChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close implements ports.SignalChannel. Idempotent.
func (c *LocalChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.bus.unsubscribe(c)
	close(c.msgs)
	return nil
}

// deliver enqueues under the channel lock so a concurrent Close cannot race
// the send against closing the mailbox. Reports false when the envelope was
// dropped (full mailbox); delivery to a closed channel is silently skipped.
func (c *LocalChannel) deliver(env domain.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.msgs <- env:
		return true
	default:
		return false
	}
}

func (c *LocalChannel) publish(env domain.Envelope) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrChannelClosed
	}
	c.mu.Unlock()

	c.bus.broadcast(c.sessionID, env)
	return nil
}
