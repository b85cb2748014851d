package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"camsync/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultPongTimeout  = 75 * time.Second
)

// RelayOptions tunes the relay connection; zero values fall back to defaults.
type RelayOptions struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	PongTimeout  time.Duration
}

// RelayChannel is the cross-process signaling backend: a websocket client of
// the relay daemon. The relay tracks membership server-side and pushes roster
// envelopes on every join and leave. The channel never reconnects itself; a
// read failure closes Messages() and the caller re-dials.
type RelayChannel struct {
	conn      *websocket.Conn
	sessionID domain.SessionID
	self      domain.Member
	logger    *zap.SugaredLogger

	pingInterval time.Duration
	writeTimeout time.Duration
	pongTimeout  time.Duration

	msgs      chan domain.Envelope
	done      chan struct{}
	connected atomic.Bool

	writeMu sync.Mutex

	rosterMu sync.RWMutex
	roster   []domain.Member

	closeOnce sync.Once
}

// DialRelay connects to the relay daemon and joins the session.
func DialRelay(
	ctx context.Context,
	relayURL string,
	sessionID domain.SessionID,
	self domain.Member,
	opts RelayOptions,
	logger *zap.SugaredLogger,
) (*RelayChannel, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay url: %w", err)
	}
	q := u.Query()
	q.Set("session_id", string(sessionID))
	q.Set("participant_id", string(self.ID))
	q.Set("label", self.Label)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay: %w", err)
	}

	c := &RelayChannel{
		conn:         conn,
		sessionID:    sessionID,
		self:         self,
		logger:       logger,
		pingInterval: opts.PingInterval,
		writeTimeout: opts.WriteTimeout,
		pongTimeout:  opts.PongTimeout,
		msgs:         make(chan domain.Envelope, 64),
		done:         make(chan struct{}),
	}
	if c.pingInterval <= 0 {
		c.pingInterval = defaultPingInterval
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = defaultWriteTimeout
	}
	if c.pongTimeout <= 0 {
		c.pongTimeout = defaultPongTimeout
	}
	c.connected.Store(true)

	go c.readLoop()
	go c.pingLoop()

	logger.Infow("relay channel connected",
		"session_id", sessionID, "participant_id", self.ID, "relay_url", relayURL)
	return c, nil
}

// Announce implements ports.SignalChannel.
func (c *RelayChannel) Announce(ctx context.Context, presence domain.PresencePayload) error {
	return c.send(ctx, domain.Envelope{
		Type:     domain.MessagePresence,
		From:     presence.ParticipantID,
		Presence: &presence,
	})
}

// SendSignal implements ports.SignalChannel. The relay fans every envelope
// out to the whole session; receivers filter on the payload's To field.
func (c *RelayChannel) SendSignal(ctx context.Context, sig domain.SignalPayload) error {
	return c.send(ctx, domain.Envelope{
		Type:   domain.MessageSignal,
		From:   sig.From,
		Signal: &sig,
	})
}

// SendCommand implements ports.SignalChannel.
func (c *RelayChannel) SendCommand(ctx context.Context, cmd domain.CommandPayload) error {
	return c.send(ctx, domain.Envelope{
		Type:    domain.MessageCommand,
		From:    cmd.From,
		Command: &cmd,
	})
}

// Messages implements ports.SignalChannel.
func (c *RelayChannel) Messages() <-chan domain.Envelope {
	return c.msgs
}

// Members implements ports.SignalChannel, serving the last roster pushed by
// the relay.
func (c *RelayChannel) Members() ([]domain.Member, bool) {
	c.rosterMu.RLock()
	defer c.rosterMu.RUnlock()
	out := make([]domain.Member, len(c.roster))
	copy(out, c.roster)
	return out, true
}

// Connected implements ports.SignalChannel.
func (c *RelayChannel) Connected() bool {
	return c.connected.Load()
}

// Close implements ports.SignalChannel. Idempotent.
func (c *RelayChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		close(c.done)

		c.writeMu.Lock()
		deadline := time.Now().Add(c.writeTimeout)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
		c.writeMu.Unlock()
	})
	return err
}

func (c *RelayChannel) send(ctx context.Context, env domain.Envelope) error {
	if !c.connected.Load() {
		return domain.ErrChannelUnavailable
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("failed to write envelope: %w", err)
	}
	return nil
}

// readLoop forwards inbound envelopes and keeps the roster view current.
// Roster pushes are forwarded as well, so the session reacts to membership
// changes immediately rather than on the next presence announcement.
func (c *RelayChannel) readLoop() {
	defer func() {
		c.connected.Store(false)
		close(c.msgs)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})

	for {
		var env domain.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warnw("relay read failed", "error", err)
			}
			return
		}

		if env.Type == domain.MessageRoster {
			c.rosterMu.Lock()
			c.roster = env.Roster
			c.rosterMu.Unlock()
		}

		select {
		case c.msgs <- env:
		default:
			c.logger.Warnw("relay mailbox full, envelope dropped", "type", env.Type)
		}
	}
}

func (c *RelayChannel) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(c.writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Warnw("relay ping failed", "error", err)
				return
			}
		}
	}
}
