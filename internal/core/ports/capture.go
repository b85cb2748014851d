package ports

import (
	"time"

	"camsync/internal/core/domain"
)

// CaptureEngine records attached streams into finished artifacts. One
// recorder is bound per stream; a recorder that fails to start is skipped
// without aborting the rest.
type CaptureEngine interface {
	// Start begins capture for every given stream at startedAt and returns
	// the number of recorders that actually started.
	Start(startedAt time.Time, cameras []*domain.LocalCamera, feeds []domain.RemoteFeed) int

	// Stop flushes all recorders and returns the assembled artifacts.
	Stop() []domain.Artifact

	Active() bool
}
