package services

import (
	"context"
	"sync"
	"time"

	"camsync/internal/core/domain"
	"camsync/internal/core/ports"
	"camsync/pkg/utils"

	"go.uber.org/zap"
)

// StreamProvider exposes the streams eligible for capture. Satisfied by the
// peer manager.
type StreamProvider interface {
	Cameras() []*domain.LocalCamera
	Feeds() []domain.RemoteFeed
}

// RecorderService coordinates synchronized recording across the session.
// The initiating side broadcasts a start command carrying an absolute start
// timestamp; every participant, initiator included, runs the same local
// countdown against that timestamp so capture begins simultaneously
// regardless of command delivery latency.
type RecorderService struct {
	selfID  domain.ParticipantID
	channel ports.SignalChannel
	capture ports.CaptureEngine
	streams StreamProvider
	logger  *zap.SugaredLogger
	notify  func(domain.Event)

	tick  time.Duration
	clock func() time.Time

	mu         sync.Mutex
	state      domain.RecordingState
	startAt    time.Time
	startTimer *time.Timer
	tickerStop chan struct{}
}

// NewRecorderService creates an idle recording controller. tick is the
// countdown recomputation interval.
func NewRecorderService(
	selfID domain.ParticipantID,
	channel ports.SignalChannel,
	capture ports.CaptureEngine,
	streams StreamProvider,
	tick time.Duration,
	logger *zap.SugaredLogger,
	notify func(domain.Event),
) *RecorderService {
	if tick <= 0 {
		tick = 250 * time.Millisecond
	}
	return &RecorderService{
		selfID:  selfID,
		channel: channel,
		capture: capture,
		streams: streams,
		logger:  logger,
		notify:  notify,
		tick:    tick,
		clock:   utils.Now,
		state:   domain.RecordingIdle,
	}
}

// State returns the current recording state.
func (s *RecorderService) State() domain.RecordingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartSynced broadcasts a synchronized start leadTime in the future and
// schedules the local countdown toward the same absolute timestamp. Fails if
// no capturable stream is attached or a recording is already in progress.
func (s *RecorderService) StartSynced(ctx context.Context, leadTime time.Duration) (time.Time, error) {
	if len(s.streams.Cameras()) == 0 && len(s.streams.Feeds()) == 0 {
		return time.Time{}, domain.ErrNoActiveStreams
	}

	s.mu.Lock()
	if s.state != domain.RecordingIdle {
		s.mu.Unlock()
		return time.Time{}, domain.ErrRecordingActive
	}
	startAt := s.clock().Add(leadTime)
	s.scheduleLocked(startAt)
	s.mu.Unlock()

	if err := s.channel.SendCommand(ctx, domain.CommandPayload{
		Action:  domain.CommandStartRecording,
		From:    s.selfID,
		StartAt: utils.EpochMillis(startAt),
	}); err != nil {
		// The local countdown proceeds regardless; transport health is the
		// session's problem, not the recorder's.
		s.logger.Warnw("failed to broadcast start command", "error", err)
	}

	s.logger.Infow("synchronized recording scheduled",
		"start_at", startAt, "lead_time", leadTime)
	return startAt, nil
}

// HandleCommand applies a recording command received from a remote
// participant. Own commands and start commands while not idle are ignored.
func (s *RecorderService) HandleCommand(ctx context.Context, cmd domain.CommandPayload) {
	if cmd.From == s.selfID {
		return
	}

	switch cmd.Action {
	case domain.CommandStartRecording:
		s.mu.Lock()
		if s.state != domain.RecordingIdle {
			s.mu.Unlock()
			s.logger.Debugw("ignoring start command while active", "from", cmd.From)
			return
		}
		startAt := utils.FromEpochMillis(cmd.StartAt)
		s.scheduleLocked(startAt)
		s.mu.Unlock()
		s.logger.Infow("remote start command accepted", "from", cmd.From, "start_at", startAt)
	case domain.CommandStopRecording:
		if err := s.Stop(ctx, false); err != nil {
			s.logger.Warnw("failed to apply remote stop", "from", cmd.From, "error", err)
		}
	default:
		s.logger.Warnw("unknown recording command", "action", cmd.Action, "from", cmd.From)
	}
}

// Stop ends the countdown or recording, whichever is in progress. With
// broadcast set, a stop command is sent to the session first. Stopping while
// idle is a no-op.
func (s *RecorderService) Stop(ctx context.Context, broadcast bool) error {
	s.mu.Lock()
	if s.state == domain.RecordingIdle {
		s.mu.Unlock()
		return nil
	}
	wasRecording := s.state == domain.RecordingActive
	s.cancelCountdownLocked()
	s.state = domain.RecordingIdle
	s.mu.Unlock()

	if broadcast {
		if err := s.channel.SendCommand(ctx, domain.CommandPayload{
			Action: domain.CommandStopRecording,
			From:   s.selfID,
		}); err != nil {
			s.logger.Warnw("failed to broadcast stop command", "error", err)
		}
	}

	if wasRecording || s.capture.Active() {
		artifacts := s.capture.Stop()
		s.logger.Infow("recording stopped", "artifacts", len(artifacts))
		s.emit(domain.RecordingStopped{})
		for _, a := range artifacts {
			s.emit(domain.ArtifactReady{Artifact: a})
		}
		return nil
	}

	s.logger.Infow("countdown cancelled")
	s.emit(domain.RecordingStopped{})
	return nil
}

// scheduleLocked arms the countdown toward startAt. Caller holds s.mu.
func (s *RecorderService) scheduleLocked(startAt time.Time) {
	s.cancelCountdownLocked()
	s.state = domain.RecordingCountingDown
	s.startAt = startAt

	stop := make(chan struct{})
	s.tickerStop = stop
	go s.runCountdown(startAt, stop)

	delay := startAt.Sub(s.clock())
	if delay < 0 {
		delay = 0
	}
	s.startTimer = time.AfterFunc(delay, func() { s.begin(startAt) })
}

// runCountdown recomputes the remaining time against the absolute start
// timestamp on every tick, so the display self-corrects even when ticks are
// delayed.
func (s *RecorderService) runCountdown(startAt time.Time, stop chan struct{}) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.emit(domain.CountdownTick{Remaining: startAt.Sub(s.clock())})
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			remaining := startAt.Sub(s.clock())
			if remaining < 0 {
				remaining = 0
			}
			s.emit(domain.CountdownTick{Remaining: remaining})
			if remaining == 0 {
				return
			}
		}
	}
}

// begin fires when the countdown expires and transitions into recording.
func (s *RecorderService) begin(startAt time.Time) {
	s.mu.Lock()
	if s.state != domain.RecordingCountingDown || !s.startAt.Equal(startAt) {
		s.mu.Unlock()
		return
	}
	if s.tickerStop != nil {
		close(s.tickerStop)
		s.tickerStop = nil
	}

	started := s.capture.Start(startAt, s.streams.Cameras(), s.streams.Feeds())
	if started == 0 {
		s.state = domain.RecordingIdle
		s.mu.Unlock()
		s.logger.Warnw("no recorder started, returning to idle")
		return
	}
	s.state = domain.RecordingActive
	s.mu.Unlock()

	s.logger.Infow("recording started", "recorders", started, "started_at", startAt)
	s.emit(domain.RecordingStarted{StartedAt: startAt})
}

// cancelCountdownLocked disarms the pending timer and ticker. Caller holds
// s.mu.
func (s *RecorderService) cancelCountdownLocked() {
	if s.startTimer != nil {
		s.startTimer.Stop()
		s.startTimer = nil
	}
	if s.tickerStop != nil {
		close(s.tickerStop)
		s.tickerStop = nil
	}
}

func (s *RecorderService) emit(evt domain.Event) {
	if s.notify != nil {
		s.notify(evt)
	}
}
