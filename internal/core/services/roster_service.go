package services

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"camsync/internal/core/domain"
	"camsync/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Initiates reports whether participant a initiates the connection toward b.
// Total, stable ordering: the strictly greater id (plain string comparison)
// initiates, so exactly one side of any pair offers, without coordination.
func Initiates(a, b domain.ParticipantID) bool {
	return a > b
}

// RosterService maintains the membership roster for one session and drives
// the peer manager on every roster change: links for departed participants
// are closed, missing links are created, and the deterministic initiator
// side begins offer negotiation.
type RosterService struct {
	selfID    domain.ParticipantID
	selfLabel string
	peers     ports.PeerManager
	channel   ports.SignalChannel
	logger    *zap.SugaredLogger
	notify    func(domain.Event)

	mu           sync.Mutex
	participants map[domain.ParticipantID]*domain.Participant
}

// NewRosterService creates a roster seeded with the self participant.
func NewRosterService(
	selfID domain.ParticipantID,
	selfLabel string,
	peers ports.PeerManager,
	channel ports.SignalChannel,
	logger *zap.SugaredLogger,
	notify func(domain.Event),
) *RosterService {
	r := &RosterService{
		selfID:       selfID,
		selfLabel:    selfLabel,
		peers:        peers,
		channel:      channel,
		logger:       logger,
		notify:       notify,
		participants: make(map[domain.ParticipantID]*domain.Participant),
	}
	r.participants[selfID] = &domain.Participant{
		ID:        selfID,
		Label:     selfLabel,
		IsSelf:    true,
		Connected: true,
		State:     domain.ParticipantAnnounced,
	}
	return r
}

// IsInitiator reports whether this side initiates toward remoteID.
func (r *RosterService) IsInitiator(remoteID domain.ParticipantID) bool {
	return Initiates(r.selfID, remoteID)
}

// HandlePresence records an announced participant and triggers negotiation.
// Idempotent: repeated announcements re-attempt negotiation at most.
func (r *RosterService) HandlePresence(ctx context.Context, p domain.PresencePayload) {
	if p.ParticipantID == r.selfID {
		return
	}

	r.mu.Lock()
	r.upsertLocked(p.ParticipantID, p.Label)
	r.mu.Unlock()

	r.negotiate(ctx, p.ParticipantID)
	r.publishSnapshot()
}

// SyncMembers re-derives the complete roster from the transport's membership
// view: participants absent from members are marked gone and their links
// closed; present participants get a link and, on the initiator side, an
// offer attempt. Preferred over accumulating one-off announcements, since it
// tolerates missed messages.
func (r *RosterService) SyncMembers(ctx context.Context, members []domain.Member) {
	present := make(map[domain.ParticipantID]string, len(members))
	for _, m := range members {
		if m.ID == r.selfID {
			continue
		}
		present[m.ID] = m.Label
	}

	r.mu.Lock()
	var departed []domain.ParticipantID
	for id, p := range r.participants {
		if p.IsSelf {
			continue
		}
		if _, ok := present[id]; !ok {
			departed = append(departed, id)
		}
	}
	for id, label := range present {
		r.upsertLocked(id, label)
	}
	r.mu.Unlock()

	for _, id := range departed {
		r.markGone(id)
	}
	for id := range present {
		r.negotiate(ctx, id)
	}
	r.publishSnapshot()
}

// HandleSignal routes one negotiation message. Messages not addressed to self
// and messages from self are ignored; negotiation failures are logged and
// left for the next roster sync to retry.
func (r *RosterService) HandleSignal(ctx context.Context, sig domain.SignalPayload) {
	if sig.To != r.selfID || sig.From == r.selfID {
		return
	}

	switch sig.Subtype {
	case domain.SignalOffer:
		r.handleOffer(ctx, sig)
	case domain.SignalAnswer:
		var answer webrtc.SessionDescription
		if err := json.Unmarshal(sig.Data, &answer); err != nil {
			r.logger.Warnw("invalid answer payload", "from", sig.From, "error", err)
			return
		}
		if err := r.peers.HandleAnswer(sig.From, answer); err != nil {
			r.logger.Warnw("failed to apply answer", "from", sig.From, "error", err)
		}
	case domain.SignalCandidate:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(sig.Data, &candidate); err != nil {
			r.logger.Warnw("invalid candidate payload", "from", sig.From, "error", err)
			return
		}
		if err := r.peers.AddICECandidate(sig.From, candidate); err != nil {
			r.logger.Warnw("failed to apply candidate", "from", sig.From, "error", err)
		}
	default:
		r.logger.Warnw("unknown signal subtype", "subtype", sig.Subtype, "from", sig.From)
	}
}

// PeerStateChanged reacts to connection state transitions reported by the
// peer manager. Terminal states mark the participant gone.
func (r *RosterService) PeerStateChanged(remoteID domain.ParticipantID, state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateClosed,
		webrtc.PeerConnectionStateDisconnected:
		r.markGone(remoteID)
		r.publishSnapshot()
	}
}

// Snapshot returns the roster ordered by participant id.
func (r *RosterService) Snapshot() []domain.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// upsertLocked records a participant as announced. A previously gone
// participant re-joining becomes a fresh announced entry.
func (r *RosterService) upsertLocked(id domain.ParticipantID, label string) {
	p, exists := r.participants[id]
	if !exists || p.State == domain.ParticipantGone {
		r.participants[id] = &domain.Participant{
			ID:        id,
			Label:     label,
			Connected: true,
			State:     domain.ParticipantAnnounced,
		}
		return
	}
	if label != "" {
		p.Label = label
	}
	p.Connected = true
}

// negotiate ensures a link exists and, on the initiator side, sends an offer.
// Offer failures are swallowed: the next roster sync retries while the peer
// remains present.
func (r *RosterService) negotiate(ctx context.Context, remoteID domain.ParticipantID) {
	if _, err := r.peers.EnsurePeer(remoteID); err != nil {
		r.logger.Warnw("failed to ensure peer link", "remote_id", remoteID, "error", err)
		return
	}
	if !r.IsInitiator(remoteID) {
		return
	}

	r.mu.Lock()
	p, exists := r.participants[remoteID]
	if !exists || p.State == domain.ParticipantLinked || p.State == domain.ParticipantGone {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	offer, err := r.peers.CreateOffer(remoteID)
	if err != nil {
		r.logger.Warnw("failed to create offer", "remote_id", remoteID, "error", err)
		return
	}
	data, err := json.Marshal(offer)
	if err != nil {
		r.logger.Warnw("failed to marshal offer", "remote_id", remoteID, "error", err)
		return
	}
	if err := r.channel.SendSignal(ctx, domain.SignalPayload{
		Subtype: domain.SignalOffer,
		From:    r.selfID,
		To:      remoteID,
		Data:    data,
	}); err != nil {
		r.logger.Warnw("failed to send offer", "remote_id", remoteID, "error", err)
		return
	}

	r.markLinked(remoteID)
	r.logger.Infow("offer sent", "remote_id", remoteID)
}

func (r *RosterService) handleOffer(ctx context.Context, sig domain.SignalPayload) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(sig.Data, &offer); err != nil {
		r.logger.Warnw("invalid offer payload", "from", sig.From, "error", err)
		return
	}

	// An inbound offer implies presence even if the announcement was missed.
	r.mu.Lock()
	r.upsertLocked(sig.From, "")
	r.mu.Unlock()

	answer, err := r.peers.HandleOffer(sig.From, offer)
	if err != nil {
		r.logger.Warnw("failed to handle offer", "from", sig.From, "error", err)
		return
	}
	data, err := json.Marshal(answer)
	if err != nil {
		r.logger.Warnw("failed to marshal answer", "from", sig.From, "error", err)
		return
	}
	if err := r.channel.SendSignal(ctx, domain.SignalPayload{
		Subtype: domain.SignalAnswer,
		From:    r.selfID,
		To:      sig.From,
		Data:    data,
	}); err != nil {
		r.logger.Warnw("failed to send answer", "from", sig.From, "error", err)
		return
	}

	r.markLinked(sig.From)
	r.publishSnapshot()
}

func (r *RosterService) markLinked(remoteID domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, exists := r.participants[remoteID]; exists && p.State != domain.ParticipantGone {
		p.State = domain.ParticipantLinked
	}
}

// markGone transitions a participant to the terminal gone state, closes its
// link and prunes the entry. A later re-join is treated as a new arrival.
func (r *RosterService) markGone(remoteID domain.ParticipantID) {
	r.mu.Lock()
	p, exists := r.participants[remoteID]
	if !exists || p.IsSelf {
		r.mu.Unlock()
		return
	}
	p.State = domain.ParticipantGone
	p.Connected = false
	delete(r.participants, remoteID)
	r.mu.Unlock()

	r.peers.RemovePeer(remoteID)
	r.logger.Infow("participant gone", "remote_id", remoteID)
}

func (r *RosterService) publishSnapshot() {
	if r.notify != nil {
		r.notify(domain.ParticipantsChanged{Participants: r.Snapshot()})
	}
}
