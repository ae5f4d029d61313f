// Package detect provides the scene classification capability. Workers call
// Detect without knowing how many of them share the model; the Limited
// wrapper bounds concurrent invocations so a single model instance is never
// oversubscribed.
package detect

import (
	"context"

	"github.com/hzvision/cutvision/internal/types"
	"golang.org/x/sync/semaphore"
)

type Detector interface {
	Detect(ctx context.Context, frame types.Frame) (types.DetectionResult, error)
}

// Limited bounds concurrent Detect calls on the wrapped detector. Callers
// blocked on the semaphore still honor their context deadline, so a slow
// model surfaces as a detection timeout, never as a stuck worker.
type Limited struct {
	inner Detector
	sem   *semaphore.Weighted
}

func Limit(inner Detector, maxConcurrent int64) *Limited {
	return &Limited{
		inner: inner,
		sem:   semaphore.NewWeighted(maxConcurrent),
	}
}

func (l *Limited) Detect(ctx context.Context, frame types.Frame) (types.DetectionResult, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return types.DetectionResult{}, &types.DetectionError{Err: err}
	}
	defer l.sem.Release(1)

	return l.inner.Detect(ctx, frame)
}
