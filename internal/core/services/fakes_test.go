package services

import (
	"context"
	"sync"
	"time"

	"camsync/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// fakeChannel records everything sent through it and lets tests inject
// inbound envelopes and a membership view.
type fakeChannel struct {
	mu        sync.Mutex
	announced []domain.PresencePayload
	signals   []domain.SignalPayload
	commands  []domain.CommandPayload
	members   []domain.Member
	hasView   bool
	msgs      chan domain.Envelope
	closed    bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{msgs: make(chan domain.Envelope, 64)}
}

func (c *fakeChannel) Announce(_ context.Context, p domain.PresencePayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.announced = append(c.announced, p)
	return nil
}

func (c *fakeChannel) SendSignal(_ context.Context, sig domain.SignalPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, sig)
	return nil
}

func (c *fakeChannel) SendCommand(_ context.Context, cmd domain.CommandPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, cmd)
	return nil
}

func (c *fakeChannel) Messages() <-chan domain.Envelope { return c.msgs }

func (c *fakeChannel) Members() ([]domain.Member, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Member, len(c.members))
	copy(out, c.members)
	return out, c.hasView
}

func (c *fakeChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.msgs)
	}
	return nil
}

func (c *fakeChannel) setMembers(members []domain.Member) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members = members
	c.hasView = true
}

func (c *fakeChannel) sentSignals() []domain.SignalPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.SignalPayload, len(c.signals))
	copy(out, c.signals)
	return out
}

func (c *fakeChannel) sentCommands() []domain.CommandPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.CommandPayload, len(c.commands))
	copy(out, c.commands)
	return out
}

// fakePeers is an in-memory PeerManager double.
type fakePeers struct {
	mu             sync.Mutex
	links          map[domain.ParticipantID]bool
	removed        []domain.ParticipantID
	offers         int
	handledOffers  int
	handledAnswers int
	cameras        []*domain.LocalCamera
	feeds          []domain.RemoteFeed
}

func newFakePeers() *fakePeers {
	return &fakePeers{links: make(map[domain.ParticipantID]bool)}
}

func (p *fakePeers) EnsurePeer(remoteID domain.ParticipantID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.links[remoteID] {
		return false, nil
	}
	p.links[remoteID] = true
	return true, nil
}

func (p *fakePeers) HasPeer(remoteID domain.ParticipantID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.links[remoteID]
}

func (p *fakePeers) CreateOffer(domain.ParticipantID) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}, nil
}

func (p *fakePeers) HandleOffer(remoteID domain.ParticipantID, _ webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.links[remoteID] = true
	p.handledOffers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"}, nil
}

func (p *fakePeers) HandleAnswer(domain.ParticipantID, webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handledAnswers++
	return nil
}

func (p *fakePeers) AddICECandidate(domain.ParticipantID, webrtc.ICECandidateInit) error {
	return nil
}

func (p *fakePeers) RemovePeer(remoteID domain.ParticipantID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.links, remoteID)
	p.removed = append(p.removed, remoteID)
}

func (p *fakePeers) RegisterLocalCamera(cam *domain.LocalCamera) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cameras = append(p.cameras, cam)
	return nil
}

func (p *fakePeers) UnregisterLocalCamera(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cam := range p.cameras {
		if cam.ID == id {
			p.cameras = append(p.cameras[:i], p.cameras[i+1:]...)
			return nil
		}
	}
	return domain.ErrCameraNotFound
}

func (p *fakePeers) Cameras() []*domain.LocalCamera {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*domain.LocalCamera, len(p.cameras))
	copy(out, p.cameras)
	return out
}

func (p *fakePeers) Feeds() []domain.RemoteFeed {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.RemoteFeed, len(p.feeds))
	copy(out, p.feeds)
	return out
}

func (p *fakePeers) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.links = make(map[domain.ParticipantID]bool)
}

func (p *fakePeers) linkCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.links)
}

func (p *fakePeers) offerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offers
}

func (p *fakePeers) handledAnswerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handledAnswers
}

// fakeCapture counts start/stop calls.
type fakeCapture struct {
	mu        sync.Mutex
	active    bool
	starts    int
	startedAt time.Time
	artifacts []domain.Artifact
}

func (c *fakeCapture) Start(startedAt time.Time, cameras []*domain.LocalCamera, feeds []domain.RemoteFeed) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	c.startedAt = startedAt
	c.active = true
	return len(cameras) + len(feeds)
}

func (c *fakeCapture) Stop() []domain.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	return c.artifacts
}

func (c *fakeCapture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *fakeCapture) startCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

func (c *fakeCapture) startedAtTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// eventSink collects emitted events for assertions.
type eventSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *eventSink) collect(evt domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *eventSink) all() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	return out
}
