package webrtc

import (
	"fmt"
	"sync"
	"time"

	"camsync/internal/core/domain"
	"camsync/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config holds WebRTC connection settings.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

// PeerLink is one participant-to-participant media connection plus its
// bookkeeping: the underlying connection, the senders added per local camera
// (so a camera's tracks can be selectively removed), and creation time.
type PeerLink struct {
	RemoteID  domain.ParticipantID
	PC        *webrtc.PeerConnection
	Senders   map[string][]*webrtc.RTPSender // camera id -> senders
	CreatedAt time.Time
}

// Manager owns at most one PeerLink per remote participant and the registries
// of local cameras and remote feeds.
type Manager struct {
	config   Config
	observer ports.PeerObserver

	links       map[domain.ParticipantID]*PeerLink
	cameras     map[string]*domain.LocalCamera
	cameraOrder []string
	feeds       map[domain.ParticipantID]map[string]*domain.RemoteFeed
	mu          sync.RWMutex

	logger *zap.SugaredLogger
}

// NewManager creates a peer connection manager. The observer receives ICE
// candidates to forward, feed lifecycle events, and connection state changes.
func NewManager(config Config, observer ports.PeerObserver, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		config:   config,
		observer: observer,
		links:    make(map[domain.ParticipantID]*PeerLink),
		cameras:  make(map[string]*domain.LocalCamera),
		feeds:    make(map[domain.ParticipantID]map[string]*domain.RemoteFeed),
		logger:   logger,
	}
}

// EnsurePeer returns the existing link for remoteID or creates a new one.
// On creation every registered local camera's tracks are attached.
func (m *Manager) EnsurePeer(remoteID domain.ParticipantID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.links[remoteID]; exists {
		return false, nil
	}

	pc, err := m.newPeerConnection()
	if err != nil {
		return false, fmt.Errorf("failed to create peer connection: %w", err)
	}

	link := &PeerLink{
		RemoteID:  remoteID,
		PC:        pc,
		Senders:   make(map[string][]*webrtc.RTPSender),
		CreatedAt: time.Now(),
	}

	pc.OnICECandidate(m.handleLocalCandidate(remoteID))
	pc.OnTrack(m.handleRemoteTrack(remoteID))
	pc.OnConnectionStateChange(m.handleConnectionState(remoteID))

	// Attach all currently registered local cameras to the new link.
	for _, camID := range m.cameraOrder {
		cam := m.cameras[camID]
		if err := attachCamera(link, cam); err != nil {
			m.logger.Warnw("failed to attach camera to new peer link",
				"remote_id", remoteID,
				"camera_id", camID,
				"error", err,
			)
		}
	}

	m.links[remoteID] = link
	m.logger.Infow("peer link created", "remote_id", remoteID)
	return true, nil
}

// HasPeer reports whether a link exists for remoteID.
func (m *Manager) HasPeer(remoteID domain.ParticipantID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.links[remoteID]
	return exists
}

// CreateOffer creates an offer, sets it as local description and returns it.
func (m *Manager) CreateOffer(remoteID domain.ParticipantID) (webrtc.SessionDescription, error) {
	link, err := m.link(remoteID)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}

	offer, err := link.PC.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create offer: %w", err)
	}
	if err := link.PC.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set local offer: %w", err)
	}
	return offer, nil
}

// HandleOffer applies a remote offer and returns the local answer.
func (m *Manager) HandleOffer(remoteID domain.ParticipantID, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if _, err := m.EnsurePeer(remoteID); err != nil {
		return webrtc.SessionDescription{}, err
	}
	link, err := m.link(remoteID)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}

	if err := link.PC.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set remote offer: %w", err)
	}
	answer, err := link.PC.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create answer: %w", err)
	}
	if err := link.PC.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set local answer: %w", err)
	}
	return answer, nil
}

// HandleAnswer applies a remote answer. A duplicate or out-of-order answer
// (remote description already set) is logged and dropped.
func (m *Manager) HandleAnswer(remoteID domain.ParticipantID, answer webrtc.SessionDescription) error {
	link, err := m.link(remoteID)
	if err != nil {
		return err
	}

	if link.PC.RemoteDescription() != nil {
		m.logger.Debugw("ignoring answer, remote description already set", "remote_id", remoteID)
		return nil
	}
	if err := link.PC.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("failed to set remote answer: %w", err)
	}
	return nil
}

// AddICECandidate applies a candidate to the link. Candidates arriving before
// the remote description are queued by pion; candidates for an unknown peer
// are logged and dropped.
func (m *Manager) AddICECandidate(remoteID domain.ParticipantID, candidate webrtc.ICECandidateInit) error {
	link, err := m.link(remoteID)
	if err != nil {
		m.logger.Debugw("dropping candidate for unknown peer", "remote_id", remoteID)
		return nil
	}

	if err := link.PC.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("failed to add ice candidate: %w", err)
	}
	return nil
}

// RemovePeer closes and removes the link and prunes every feed belonging to
// that participant.
func (m *Manager) RemovePeer(remoteID domain.ParticipantID) {
	m.mu.Lock()
	link, exists := m.links[remoteID]
	if exists {
		delete(m.links, remoteID)
	}
	removed := m.pruneFeedsLocked(remoteID)
	m.mu.Unlock()

	if link != nil && link.PC != nil {
		if err := link.PC.Close(); err != nil {
			m.logger.Debugw("error closing peer connection", "remote_id", remoteID, "error", err)
		}
	}
	for _, streamID := range removed {
		m.observer.OnFeedRemoved(remoteID, streamID)
	}
	if exists {
		m.logger.Infow("peer link removed", "remote_id", remoteID)
	}
}

// RegisterLocalCamera adds the camera to the registry and attaches its tracks
// to every existing link.
func (m *Manager) RegisterLocalCamera(cam *domain.LocalCamera) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.cameras[cam.ID]; exists {
		return fmt.Errorf("camera already registered: %s", cam.ID)
	}
	m.cameras[cam.ID] = cam
	m.cameraOrder = append(m.cameraOrder, cam.ID)

	for remoteID, link := range m.links {
		if err := attachCamera(link, cam); err != nil {
			m.logger.Warnw("failed to attach camera tracks",
				"remote_id", remoteID,
				"camera_id", cam.ID,
				"error", err,
			)
		}
	}

	m.logger.Infow("local camera registered", "camera_id", cam.ID, "label", cam.Label, "tracks", len(cam.Tracks))
	return nil
}

// UnregisterLocalCamera removes the camera's senders from every link and
// stops its capture sources.
func (m *Manager) UnregisterLocalCamera(id string) error {
	m.mu.Lock()
	cam, exists := m.cameras[id]
	if !exists {
		m.mu.Unlock()
		return domain.ErrCameraNotFound
	}
	delete(m.cameras, id)
	for i, camID := range m.cameraOrder {
		if camID == id {
			m.cameraOrder = append(m.cameraOrder[:i], m.cameraOrder[i+1:]...)
			break
		}
	}

	for remoteID, link := range m.links {
		for _, sender := range link.Senders[id] {
			if err := link.PC.RemoveTrack(sender); err != nil {
				m.logger.Debugw("error removing track from peer link",
					"remote_id", remoteID,
					"camera_id", id,
					"error", err,
				)
			}
		}
		delete(link.Senders, id)
	}
	m.mu.Unlock()

	if err := cam.Close(); err != nil {
		m.logger.Debugw("error closing camera source", "camera_id", id, "error", err)
	}
	m.logger.Infow("local camera unregistered", "camera_id", id)
	return nil
}

// Cameras returns the registered local cameras in registration order.
func (m *Manager) Cameras() []*domain.LocalCamera {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.LocalCamera, 0, len(m.cameraOrder))
	for _, id := range m.cameraOrder {
		out = append(out, m.cameras[id])
	}
	return out
}

// Feeds returns a snapshot of all remote feeds.
func (m *Manager) Feeds() []domain.RemoteFeed {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.RemoteFeed
	for _, byStream := range m.feeds {
		for _, feed := range byStream {
			out = append(out, *feed)
		}
	}
	return out
}

// Peers returns the ids of all currently linked remote participants.
func (m *Manager) Peers() []domain.ParticipantID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ParticipantID, 0, len(m.links))
	for id := range m.links {
		out = append(out, id)
	}
	return out
}

// CloseAll tears down every link. Per-link close failures are isolated so one
// failure does not prevent cleanup of the rest.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	links := m.links
	m.links = make(map[domain.ParticipantID]*PeerLink)
	m.feeds = make(map[domain.ParticipantID]map[string]*domain.RemoteFeed)
	m.mu.Unlock()

	for remoteID, link := range links {
		if link.PC == nil {
			continue
		}
		if err := link.PC.Close(); err != nil {
			m.logger.Debugw("error closing peer connection during teardown",
				"remote_id", remoteID,
				"error", err,
			)
		}
	}
}

func (m *Manager) link(remoteID domain.ParticipantID) (*PeerLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	link, exists := m.links[remoteID]
	if !exists {
		return nil, domain.ErrPeerNotFound
	}
	return link, nil
}

func (m *Manager) newPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers:   m.config.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	}

	settingEngine := webrtc.SettingEngine{}
	if m.config.PortRange.Min > 0 && m.config.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(m.config.PortRange.Min, m.config.PortRange.Max); err != nil {
			return nil, err
		}
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithSettingEngine(settingEngine),
	)
	return api.NewPeerConnection(config)
}

func attachCamera(link *PeerLink, cam *domain.LocalCamera) error {
	for _, track := range cam.Tracks {
		sender, err := link.PC.AddTrack(track)
		if err != nil {
			return err
		}
		link.Senders[cam.ID] = append(link.Senders[cam.ID], sender)
	}
	return nil
}

func (m *Manager) handleLocalCandidate(remoteID domain.ParticipantID) func(*webrtc.ICECandidate) {
	return func(c *webrtc.ICECandidate) {
		if c == nil {
			return // end of candidates
		}
		m.observer.OnLocalCandidate(remoteID, c.ToJSON())
	}
}

func (m *Manager) handleRemoteTrack(remoteID domain.ParticipantID) func(*webrtc.TrackRemote, *webrtc.RTPReceiver) {
	return func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		m.logger.Infow("remote track received",
			"remote_id", remoteID,
			"track_id", track.ID(),
			"stream_id", track.StreamID(),
			"codec", track.Codec().MimeType,
		)

		m.mu.Lock()
		link := m.links[remoteID]
		byStream, exists := m.feeds[remoteID]
		if !exists {
			byStream = make(map[string]*domain.RemoteFeed)
			m.feeds[remoteID] = byStream
		}
		feed, exists := byStream[track.StreamID()]
		isNew := !exists
		if isNew {
			feed = &domain.RemoteFeed{
				ParticipantID: remoteID,
				StreamID:      track.StreamID(),
				Label:         string(remoteID),
			}
			byStream[track.StreamID()] = feed
		}
		feed.Tracks = append(feed.Tracks, track)
		snapshot := *feed
		m.mu.Unlock()

		// Ask the sender for an immediate keyframe so a capture starting on
		// this track does not wait out the keyframe interval.
		if link != nil {
			if err := link.PC.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
			}); err != nil {
				m.logger.Debugw("failed to send keyframe request",
					"remote_id", remoteID,
					"stream_id", track.StreamID(),
					"error", err,
				)
			}
		}

		go m.watchTrack(remoteID, track, receiver)

		if isNew {
			m.observer.OnFeedAdded(snapshot)
		}
	}
}

// watchTrack reads RTCP for one remote track until its receiver stops,
// logging loss/jitter observations. The loop ending is the track-end signal:
// the remote removed the track (or the link closed), so the track is pruned
// from its feed.
func (m *Manager) watchTrack(remoteID domain.ParticipantID, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	for {
		packets, _, err := receiver.ReadRTCP()
		if err != nil {
			m.trackEnded(remoteID, track)
			return
		}
		for _, packet := range packets {
			rr, ok := packet.(*rtcp.ReceiverReport)
			if !ok {
				continue
			}
			for _, report := range rr.Reports {
				m.logger.Debugw("receiver report",
					"remote_id", remoteID,
					"stream_id", track.StreamID(),
					"fraction_lost", report.FractionLost,
					"jitter", report.Jitter,
				)
			}
		}
	}
}

// trackEnded drops the track from its feed and removes the feed once its last
// track is gone, so a remote disabling one camera mid-session prunes that
// feed while the link stays up. A feed already pruned by RemovePeer/CloseAll
// is a no-op here.
func (m *Manager) trackEnded(remoteID domain.ParticipantID, track *webrtc.TrackRemote) {
	streamID := track.StreamID()

	m.mu.Lock()
	byStream, exists := m.feeds[remoteID]
	if !exists {
		m.mu.Unlock()
		return
	}
	feed, exists := byStream[streamID]
	if !exists {
		m.mu.Unlock()
		return
	}
	for i, t := range feed.Tracks {
		if t == track {
			feed.Tracks = append(feed.Tracks[:i], feed.Tracks[i+1:]...)
			break
		}
	}
	feedGone := len(feed.Tracks) == 0
	if feedGone {
		delete(byStream, streamID)
		if len(byStream) == 0 {
			delete(m.feeds, remoteID)
		}
	}
	m.mu.Unlock()

	if feedGone {
		m.logger.Infow("remote feed ended", "remote_id", remoteID, "stream_id", streamID)
		m.observer.OnFeedRemoved(remoteID, streamID)
	}
}

func (m *Manager) handleConnectionState(remoteID domain.ParticipantID) func(webrtc.PeerConnectionState) {
	return func(state webrtc.PeerConnectionState) {
		m.logger.Infow("peer connection state changed",
			"remote_id", remoteID,
			"connection_state", state,
		)
		m.observer.OnPeerStateChange(remoteID, state)

		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			m.RemovePeer(remoteID)
		}
	}
}

// pruneFeedsLocked removes all feeds for remoteID and returns their stream
// ids. Caller must hold m.mu.
func (m *Manager) pruneFeedsLocked(remoteID domain.ParticipantID) []string {
	byStream, exists := m.feeds[remoteID]
	if !exists {
		return nil
	}
	delete(m.feeds, remoteID)
	out := make([]string, 0, len(byStream))
	for streamID := range byStream {
		out = append(out, streamID)
	}
	return out
}
