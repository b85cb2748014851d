package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"camsync/internal/core/domain"
	"camsync/internal/core/ports"
	"camsync/pkg/utils"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// SessionConfig is the per-session wiring for the orchestrator.
type SessionConfig struct {
	SessionID       domain.SessionID
	SelfID          domain.ParticipantID
	SelfLabel       string
	LeadTime        time.Duration
	CountdownTick   time.Duration
	MimePreferences []string
}

// SessionService is the session-scoped orchestrator: it pumps envelopes from
// the signaling channel, dispatches them to the roster and recorder services,
// relays peer manager callbacks, and exposes a single event stream to the
// embedding application. It implements ports.PeerObserver so the peer manager
// can report candidates, feeds and connection state directly into the session.
type SessionService struct {
	cfg     SessionConfig
	channel ports.SignalChannel
	store   ports.MetadataStore
	logger  *zap.SugaredLogger

	peers    ports.PeerManager
	roster   *RosterService
	recorder *RecorderService

	events chan domain.Event
	done   chan struct{}

	// emitMu serializes emit against the events channel close in Leave, so a
	// late observer callback can never send on a closed channel.
	emitMu     sync.Mutex
	emitClosed bool

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSessionService creates an unbound session. Attach must be called with
// the peer manager and capture engine before Start. store may be nil when
// external persistence is disabled.
func NewSessionService(
	cfg SessionConfig,
	channel ports.SignalChannel,
	store ports.MetadataStore,
	logger *zap.SugaredLogger,
) *SessionService {
	if cfg.LeadTime <= 0 {
		cfg.LeadTime = 3 * time.Second
	}
	return &SessionService{
		cfg:     cfg,
		channel: channel,
		store:   store,
		logger:  logger,
		events:  make(chan domain.Event, 64),
		done:    make(chan struct{}),
	}
}

// Attach binds the peer manager and capture engine. The peer manager is
// expected to have been constructed with this session as its observer.
func (s *SessionService) Attach(peers ports.PeerManager, capture ports.CaptureEngine) {
	s.peers = peers
	s.roster = NewRosterService(s.cfg.SelfID, s.cfg.SelfLabel, peers, s.channel, s.logger, s.emit)
	s.recorder = NewRecorderService(s.cfg.SelfID, s.channel, capture, peers, s.cfg.CountdownTick, s.logger, s.handleRecorderEvent)
}

// Start registers the device, announces presence, performs the initial
// roster sync and begins the message pump.
func (s *SessionService) Start(ctx context.Context) error {
	if s.store != nil {
		if err := s.store.RegisterDevice(ctx, s.cfg.SessionID, s.cfg.SelfID, s.cfg.SelfLabel); err != nil {
			// Persistence is an index, not a dependency of the live session.
			s.logger.Warnw("device registration failed", "error", err)
		}
	}

	if err := s.channel.Announce(ctx, domain.PresencePayload{
		ParticipantID: s.cfg.SelfID,
		Label:         s.cfg.SelfLabel,
	}); err != nil {
		return err
	}
	if members, ok := s.channel.Members(); ok {
		s.roster.SyncMembers(ctx, members)
	}

	s.wg.Add(1)
	go s.pump(ctx)

	s.logger.Infow("session started",
		"session_id", s.cfg.SessionID, "participant_id", s.cfg.SelfID)
	return nil
}

// Events is the session's ordered notification stream. Slow consumers drop
// events rather than stall signaling.
func (s *SessionService) Events() <-chan domain.Event {
	return s.events
}

// Participants returns the current roster snapshot.
func (s *SessionService) Participants() []domain.Participant {
	return s.roster.Snapshot()
}

// Feeds returns the currently attached remote feeds.
func (s *SessionService) Feeds() []domain.RemoteFeed {
	return s.peers.Feeds()
}

// EnableCamera registers a local camera; its tracks are attached to every
// existing link and the initiator side renegotiates so remotes receive them.
func (s *SessionService) EnableCamera(ctx context.Context, cam *domain.LocalCamera) error {
	if cam.ID == "" {
		cam.ID = utils.GenerateCameraID()
	}
	if err := s.peers.RegisterLocalCamera(cam); err != nil {
		return err
	}
	s.renegotiate(ctx)
	s.logger.Infow("camera enabled", "camera_id", cam.ID, "label", cam.Label)
	return nil
}

// DisableCamera detaches and stops a local camera, then renegotiates.
func (s *SessionService) DisableCamera(ctx context.Context, id string) error {
	if err := s.peers.UnregisterLocalCamera(id); err != nil {
		return err
	}
	s.renegotiate(ctx)
	s.logger.Infow("camera disabled", "camera_id", id)
	return nil
}

// Cameras returns the registered local cameras.
func (s *SessionService) Cameras() []*domain.LocalCamera {
	return s.peers.Cameras()
}

// StartRecording schedules a synchronized recording across the session.
func (s *SessionService) StartRecording(ctx context.Context) (time.Time, error) {
	return s.recorder.StartSynced(ctx, s.cfg.LeadTime)
}

// StopRecording stops recording session-wide.
func (s *SessionService) StopRecording(ctx context.Context) error {
	return s.recorder.Stop(ctx, true)
}

// RecordingState returns the recorder state machine's current state.
func (s *SessionService) RecordingState() domain.RecordingState {
	return s.recorder.State()
}

// Leave tears the session down: pending countdowns and recorders first, then
// the signaling channel, then every peer link and local camera. Each step is
// attempted regardless of earlier failures.
func (s *SessionService) Leave(ctx context.Context) error {
	var firstErr error
	s.closeOnce.Do(func() {
		close(s.done)

		if err := s.recorder.Stop(ctx, false); err != nil {
			s.logger.Warnw("failed to stop recorder on leave", "error", err)
			firstErr = err
		}
		if err := s.channel.Close(); err != nil {
			s.logger.Warnw("failed to close signaling channel", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		s.peers.CloseAll()
		for _, cam := range s.peers.Cameras() {
			if err := cam.Close(); err != nil {
				s.logger.Warnw("failed to close camera", "camera_id", cam.ID, "error", err)
			}
		}

		s.wg.Wait()

		s.emitMu.Lock()
		s.emitClosed = true
		close(s.events)
		s.emitMu.Unlock()

		s.logger.Infow("session left", "session_id", s.cfg.SessionID)
	})
	return firstErr
}

// pump dispatches inbound envelopes until the channel or session closes.
func (s *SessionService) pump(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case env, ok := <-s.channel.Messages():
			if !ok {
				s.logger.Warnw("signaling channel closed")
				return
			}
			s.dispatch(ctx, env)
		}
	}
}

func (s *SessionService) dispatch(ctx context.Context, env domain.Envelope) {
	// Broadcast backends echo the sender's own messages back.
	if env.From == s.cfg.SelfID {
		return
	}

	switch env.Type {
	case domain.MessagePresence:
		if env.Presence == nil {
			return
		}
		s.roster.HandlePresence(ctx, *env.Presence)
		// Prefer the backend's full membership view over accumulated
		// announcements when one is available.
		if members, ok := s.channel.Members(); ok {
			s.roster.SyncMembers(ctx, members)
		}
	case domain.MessageRoster:
		s.roster.SyncMembers(ctx, env.Roster)
	case domain.MessageSignal:
		if env.Signal == nil {
			return
		}
		s.roster.HandleSignal(ctx, *env.Signal)
	case domain.MessageCommand:
		if env.Command == nil {
			return
		}
		s.recorder.HandleCommand(ctx, *env.Command)
	default:
		s.logger.Debugw("ignoring unknown envelope type", "type", env.Type, "from", env.From)
	}
}

// renegotiate re-offers toward every linked peer this side initiates for, so
// track topology changes propagate.
func (s *SessionService) renegotiate(ctx context.Context) {
	for _, p := range s.roster.Snapshot() {
		if p.IsSelf || !s.roster.IsInitiator(p.ID) || !s.peers.HasPeer(p.ID) {
			continue
		}
		offer, err := s.peers.CreateOffer(p.ID)
		if err != nil {
			s.logger.Warnw("renegotiation offer failed", "remote_id", p.ID, "error", err)
			continue
		}
		data, err := json.Marshal(offer)
		if err != nil {
			s.logger.Warnw("failed to marshal renegotiation offer", "remote_id", p.ID, "error", err)
			continue
		}
		if err := s.channel.SendSignal(ctx, domain.SignalPayload{
			Subtype: domain.SignalOffer,
			From:    s.cfg.SelfID,
			To:      p.ID,
			Data:    data,
		}); err != nil {
			s.logger.Warnw("failed to send renegotiation offer", "remote_id", p.ID, "error", err)
		}
	}
}

// OnLocalCandidate implements ports.PeerObserver: trickle local candidates to
// the remote side.
func (s *SessionService) OnLocalCandidate(remoteID domain.ParticipantID, candidate webrtc.ICECandidateInit) {
	data, err := json.Marshal(candidate)
	if err != nil {
		s.logger.Warnw("failed to marshal candidate", "remote_id", remoteID, "error", err)
		return
	}
	if err := s.channel.SendSignal(context.Background(), domain.SignalPayload{
		Subtype: domain.SignalCandidate,
		From:    s.cfg.SelfID,
		To:      remoteID,
		Data:    data,
	}); err != nil {
		s.logger.Warnw("failed to send candidate", "remote_id", remoteID, "error", err)
	}
}

// OnFeedAdded implements ports.PeerObserver.
func (s *SessionService) OnFeedAdded(feed domain.RemoteFeed) {
	// Use the roster label for display when the feed's originator is known.
	for _, p := range s.roster.Snapshot() {
		if p.ID == feed.ParticipantID && p.Label != "" {
			feed.Label = p.Label
			break
		}
	}
	s.emit(domain.FeedAdded{Feed: feed})
}

// OnFeedRemoved implements ports.PeerObserver.
func (s *SessionService) OnFeedRemoved(remoteID domain.ParticipantID, streamID string) {
	s.emit(domain.FeedRemoved{ParticipantID: remoteID, StreamID: streamID})
}

// OnPeerStateChange implements ports.PeerObserver.
func (s *SessionService) OnPeerStateChange(remoteID domain.ParticipantID, state webrtc.PeerConnectionState) {
	s.emit(domain.ConnectionStateChanged{ParticipantID: remoteID, State: state.String()})
	if s.roster != nil {
		s.roster.PeerStateChanged(remoteID, state)
	}
}

// handleRecorderEvent persists finished artifacts before forwarding recorder
// events to the session stream.
func (s *SessionService) handleRecorderEvent(evt domain.Event) {
	if ready, ok := evt.(domain.ArtifactReady); ok && s.store != nil {
		s.persistArtifact(ready.Artifact)
	}
	s.emit(evt)
}

func (s *SessionService) persistArtifact(a domain.Artifact) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	endedAt := a.StartedAt.Add(a.Duration)
	meta := domain.RecordingMetadata{
		SessionID:   s.cfg.SessionID,
		DeviceID:    s.cfg.SelfID,
		StartTime:   a.StartedAt,
		EndTime:     endedAt,
		Duration:    a.Duration.Seconds(),
		FileName:    a.FileName,
		FileSize:    int64(len(a.Data)),
		CameraIndex: s.cameraIndex(a.StreamID),
	}
	if err := s.store.SaveRecordingMetadata(ctx, meta); err != nil {
		s.logger.Warnw("failed to persist recording metadata",
			"file_name", a.FileName, "error", err)
		return
	}
	s.logger.Infow("recording metadata persisted",
		"file_name", a.FileName, "size_bytes", meta.FileSize)
}

// cameraIndex maps a local camera stream back to its registration order;
// remote feeds index as 0.
func (s *SessionService) cameraIndex(streamID string) int {
	for i, cam := range s.peers.Cameras() {
		if cam.ID == streamID {
			return i
		}
	}
	return 0
}

func (s *SessionService) emit(evt domain.Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.emitClosed {
		return
	}
	select {
	case s.events <- evt:
	default:
		s.logger.Debugw("event dropped, consumer too slow")
	}
}
