package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"camsync/internal/core/domain"
	"camsync/pkg/utils"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"
)

// Assembler captures attached streams into finished artifacts: one recorder
// per local camera chunk source and one container writer per remote track.
// A recorder that fails to start is logged and skipped; it never aborts
// capture for the other streams.
type Assembler struct {
	preferences []string
	supported   func(string) bool
	logger      *zap.SugaredLogger

	mu        sync.Mutex
	active    bool
	startedAt time.Time
	cancel    context.CancelFunc
	recorders []*recorder
	wg        sync.WaitGroup
}

// recorder is one active capture bound to a single stream source.
type recorder struct {
	streamID    string
	sourceLabel string
	mimeType    string
	fileName    string
	buf         *chunkBuffer
	stop        func() // unblocks and finalizes the recorder's loop
}

// NewAssembler creates an assembler with the given encoding preference list.
func NewAssembler(preferences []string, logger *zap.SugaredLogger) *Assembler {
	return &Assembler{
		preferences: preferences,
		supported:   IsTypeSupported,
		logger:      logger,
	}
}

// Start begins capture for every given stream at startedAt and returns the
// number of recorders that actually started.
func (a *Assembler) Start(startedAt time.Time, cameras []*domain.LocalCamera, feeds []domain.RemoteFeed) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active {
		a.logger.Warnw("capture already active, ignoring start")
		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.startedAt = startedAt
	a.recorders = nil

	selected, err := SelectMimeType(a.preferences, a.supported)
	if err != nil {
		a.logger.Warnw("no supported encoding in preference list, remote feeds will not be captured",
			"preferences", a.preferences,
		)
	}

	names := make(map[string]int)

	for _, cam := range cameras {
		if cam.Source == nil {
			a.logger.Warnw("camera has no capture source, skipping recording",
				"camera_id", cam.ID,
				"label", cam.Label,
			)
			continue
		}
		a.startChunkRecorder(ctx, cam, names)
	}

	if err == nil {
		format := formats[selected]
		for _, feed := range feeds {
			for _, track := range feed.Tracks {
				a.startTrackRecorder(ctx, feed, track, format, names)
			}
		}
	}

	started := len(a.recorders)
	a.active = started > 0
	if !a.active {
		cancel()
		a.cancel = nil
	}
	a.logger.Infow("capture started", "recorders", started, "started_at", startedAt)
	return started
}

// Stop finalizes every recorder and returns the assembled artifacts.
func (a *Assembler) Stop() []domain.Artifact {
	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return nil
	}
	a.active = false
	recorders := a.recorders
	a.recorders = nil
	cancel := a.cancel
	a.cancel = nil
	startedAt := a.startedAt
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, r := range recorders {
		r.stop()
	}
	a.wg.Wait()

	duration := time.Since(startedAt)
	artifacts := make([]domain.Artifact, 0, len(recorders))
	for _, r := range recorders {
		data := r.buf.Assemble()
		if len(data) == 0 {
			a.logger.Warnw("recorder produced no data, dropping artifact",
				"stream_id", r.streamID,
				"file_name", r.fileName,
			)
			continue
		}
		artifacts = append(artifacts, domain.Artifact{
			Data:        data,
			FileName:    r.fileName,
			MimeType:    r.mimeType,
			SourceLabel: r.sourceLabel,
			StreamID:    r.streamID,
			StartedAt:   startedAt,
			Duration:    duration,
		})
	}

	a.logger.Infow("capture stopped", "artifacts", len(artifacts), "duration", duration)
	return artifacts
}

// Active reports whether capture is in progress.
func (a *Assembler) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// startChunkRecorder consumes a local camera's already-muxed chunk stream.
// Caller must hold a.mu.
func (a *Assembler) startChunkRecorder(ctx context.Context, cam *domain.LocalCamera, names map[string]int) {
	buf := newChunkBuffer()
	r := &recorder{
		streamID:    cam.ID,
		sourceLabel: cam.Label,
		mimeType:    cam.Source.MimeType(),
		fileName:    a.fileName(cam.Label, extFor(cam.Source.MimeType()), names),
		buf:         buf,
		stop:        func() {}, // ReadChunk honors ctx cancellation
	}
	a.recorders = append(a.recorders, r)

	source := cam.Source
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			chunk, err := source.ReadChunk(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
					a.logger.Warnw("error reading capture chunk",
						"camera_id", r.streamID,
						"error", err,
					)
				}
				return
			}
			buf.Append(chunk)
		}
	}()
}

// startTrackRecorder depacketizes one remote track into a container writer.
// Caller must hold a.mu.
func (a *Assembler) startTrackRecorder(ctx context.Context, feed domain.RemoteFeed, track *webrtc.TrackRemote, format Format, names map[string]int) {
	codec := track.Codec().MimeType
	ok, isAudio := format.accepts(codec)
	if !ok {
		a.logger.Warnw("track codec not accepted by selected encoding, skipping",
			"stream_id", feed.StreamID,
			"codec", codec,
			"encoding", format.MimeType,
		)
		return
	}

	buf := newChunkBuffer()
	writer, err := format.newTrackWriter(buf, codec)
	if err != nil {
		a.logger.Warnw("failed to create track writer, skipping",
			"stream_id", feed.StreamID,
			"codec", codec,
			"error", err,
		)
		return
	}

	ext := format.VideoExt
	if isAudio {
		ext = format.AudioExt
	}
	r := &recorder{
		streamID:    feed.StreamID,
		sourceLabel: feed.Label,
		mimeType:    format.MimeType,
		fileName:    a.fileName(feed.Label, ext, names),
		buf:         buf,
		stop: func() {
			// Unblock a pending ReadRTP so the loop observes cancellation.
			_ = track.SetReadDeadline(time.Now())
		},
	}
	a.recorders = append(a.recorders, r)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if err := writer.Close(); err != nil {
				a.logger.Debugw("error closing track writer", "stream_id", r.streamID, "error", err)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			pkt, _, err := track.ReadRTP()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					a.logger.Debugw("track read ended", "stream_id", r.streamID, "error", err)
				}
				return
			}
			if err := writeRTP(writer, pkt); err != nil {
				a.logger.Warnw("error writing packet to recorder",
					"stream_id", r.streamID,
					"error", err,
				)
				return
			}
		}
	}()
}

func writeRTP(w pionmedia.Writer, pkt *rtp.Packet) error {
	return w.WriteRTP(pkt)
}

// fileName derives an artifact name from the stream label and the recording
// start time, de-duplicating repeated label+extension pairs.
func (a *Assembler) fileName(label, ext string, names map[string]int) string {
	base := fmt.Sprintf("%s_%s",
		utils.TruncateString(utils.SanitizeFileName(label), 64),
		utils.FileTimestamp(a.startedAt))
	key := base + ext
	n := names[key]
	names[key] = n + 1
	if n == 0 {
		return key
	}
	return fmt.Sprintf("%s_%d%s", base, n, ext)
}
