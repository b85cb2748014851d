package signal

import (
	"context"
	"sort"
	"sync"
	"time"

	"camsync/internal/core/domain"
	"camsync/internal/infrastructure/monitoring"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Fanout propagates envelopes between relay instances so sessions can span
// more than one relay process.
type Fanout interface {
	// Publish sends an envelope originating on this instance.
	Publish(ctx context.Context, sessionID domain.SessionID, env domain.Envelope) error
	// Subscribe delivers envelopes originating on other instances until ctx
	// is cancelled.
	Subscribe(ctx context.Context, handler func(sessionID domain.SessionID, env domain.Envelope)) error
}

// Hub holds the relay's session rooms: every envelope received from one
// member is fanned out to every member of the same session, sender included,
// and membership changes produce roster pushes.
type Hub struct {
	fanout    Fanout
	collector *monitoring.Collector
	logger    *zap.SugaredLogger

	writeTimeout time.Duration

	mu    sync.RWMutex
	rooms map[domain.SessionID]map[domain.ParticipantID]*member
}

type member struct {
	id    domain.ParticipantID
	label string
	conn  *websocket.Conn

	writeMu sync.Mutex
}

// NewHub creates a hub. fanout and collector may be nil for single-instance
// deployments without metrics.
func NewHub(fanout Fanout, collector *monitoring.Collector, logger *zap.SugaredLogger) *Hub {
	return &Hub{
		fanout:       fanout,
		collector:    collector,
		logger:       logger,
		writeTimeout: 10 * time.Second,
		rooms:        make(map[domain.SessionID]map[domain.ParticipantID]*member),
	}
}

// Run subscribes to the cross-instance fanout. Blocks until ctx is cancelled;
// a no-op without a fanout.
func (h *Hub) Run(ctx context.Context) error {
	if h.fanout == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return h.fanout.Subscribe(ctx, func(sessionID domain.SessionID, env domain.Envelope) {
		h.deliverLocal(sessionID, env)
	})
}

// Join registers a member's connection and pushes the updated roster to the
// whole session. A second connection for the same participant id replaces the
// first.
func (h *Hub) Join(sessionID domain.SessionID, m domain.Member, conn *websocket.Conn) {
	h.mu.Lock()
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[domain.ParticipantID]*member)
		h.rooms[sessionID] = room
		if h.collector != nil {
			h.collector.RecordSessionOpened()
		}
	}
	if old, reconnect := room[m.ID]; reconnect {
		old.conn.Close()
		h.logger.Infow("closing stale connection for reconnecting participant",
			"session_id", sessionID, "participant_id", m.ID)
	} else if h.collector != nil {
		h.collector.RecordParticipantJoined()
	}
	room[m.ID] = &member{id: m.ID, label: m.Label, conn: conn}
	h.mu.Unlock()

	h.logger.Infow("participant joined",
		"session_id", sessionID, "participant_id", m.ID, "label", m.Label)
	h.pushRoster(sessionID, m.ID)
}

// Leave removes a member and pushes the updated roster to the remaining
// session members. Empty rooms are dropped.
func (h *Hub) Leave(sessionID domain.SessionID, participantID domain.ParticipantID) {
	h.mu.Lock()
	room, ok := h.rooms[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, present := room[participantID]; !present {
		h.mu.Unlock()
		return
	}
	delete(room, participantID)
	empty := len(room) == 0
	if empty {
		delete(h.rooms, sessionID)
	}
	h.mu.Unlock()

	if h.collector != nil {
		h.collector.RecordParticipantLeft()
		if empty {
			h.collector.RecordSessionClosed()
		}
	}
	h.logger.Infow("participant left",
		"session_id", sessionID, "participant_id", participantID)
	if !empty {
		h.pushRoster(sessionID, participantID)
	}
}

// Broadcast fans an inbound envelope out to the session, locally and across
// instances.
func (h *Hub) Broadcast(ctx context.Context, sessionID domain.SessionID, env domain.Envelope) {
	h.deliverLocal(sessionID, env)

	if h.fanout != nil {
		if err := h.fanout.Publish(ctx, sessionID, env); err != nil {
			h.logger.Warnw("cross-instance publish failed",
				"session_id", sessionID, "error", err)
		}
	}
}

// Members returns the session roster ordered by participant id.
func (h *Hub) Members(sessionID domain.SessionID) []domain.Member {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[sessionID]
	members := make([]domain.Member, 0, len(room))
	for _, m := range room {
		members = append(members, domain.Member{ID: m.id, Label: m.label})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members
}

// ObserveConnectionDuration records how long a participant stayed connected.
func (h *Hub) ObserveConnectionDuration(d time.Duration) {
	if h.collector != nil {
		h.collector.RecordConnectionDuration(d.Seconds())
	}
}

// Sessions returns the number of active rooms.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) deliverLocal(sessionID domain.SessionID, env domain.Envelope) {
	h.mu.RLock()
	targets := make([]*member, 0, len(h.rooms[sessionID]))
	for _, m := range h.rooms[sessionID] {
		targets = append(targets, m)
	}
	h.mu.RUnlock()

	for _, m := range targets {
		if err := h.writeTo(m, env); err != nil {
			h.logger.Warnw("failed to deliver envelope",
				"session_id", sessionID, "participant_id", m.id,
				"type", env.Type, "error", err)
		} else if h.collector != nil {
			h.collector.RecordEnvelopeRelayed(string(env.Type))
		}
	}
}

// pushRoster broadcasts the membership snapshot after a join or leave. From
// carries the changed participant so its own push is self-filtered away.
func (h *Hub) pushRoster(sessionID domain.SessionID, from domain.ParticipantID) {
	env := domain.Envelope{
		Type:   domain.MessageRoster,
		From:   from,
		Roster: h.Members(sessionID),
	}
	h.deliverLocal(sessionID, env)
	if h.fanout != nil {
		if err := h.fanout.Publish(context.Background(), sessionID, env); err != nil {
			h.logger.Warnw("cross-instance roster publish failed",
				"session_id", sessionID, "error", err)
		}
	}
}

func (h *Hub) writeTo(m *member, env domain.Envelope) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return err
	}
	return m.conn.WriteJSON(env)
}
