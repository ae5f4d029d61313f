// Package acquire provides the image acquisition capability. The worker only
// sees the Camera interface; whether frames come from real hardware or a
// folder of bench images is decided once at supervisor construction.
package acquire

import (
	"context"

	"github.com/hzvision/cutvision/internal/types"
)

type Camera interface {
	// Connect prepares the source. Called once before the worker loop starts.
	Connect() error
	// Capture grabs one frame. The context carries the capture timeout; a
	// source that cannot produce a frame in time returns an error and the
	// cycle degrades.
	Capture(ctx context.Context) (types.Frame, error)
	Close() error
}
