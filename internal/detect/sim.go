package detect

import (
	"context"
	"math/rand"
	"sync"

	"github.com/hzvision/cutvision/internal/types"
)

// SimDetector fabricates plausible results for bench runs without a model.
// Roughly 70% cuttable with randomized geometry, the rest split between
// unknown and reserved, matching what the line sees in practice.
type SimDetector struct {
	classes types.ClassValues

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimDetector(classes types.ClassValues, seed int64) *SimDetector {
	return &SimDetector{
		classes: classes,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

func (d *SimDetector) Detect(ctx context.Context, frame types.Frame) (types.DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return types.DetectionResult{}, &types.DetectionError{Err: err}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	roll := d.rng.Float64()
	switch {
	case roll < 0.7:
		return types.DetectionResult{
			Classification: d.classes.Cuttable,
			XOffset:        d.rng.Float64()*40 - 20,
			YOffset:        d.rng.Float64()*30 - 15,
			RAngle:         d.rng.Float64()*90 - 45,
			Height:         20 + d.rng.Float64()*15,
			Length:         35 + d.rng.Float64()*20,
			HeadDirection:  1 + d.rng.Intn(2),
			Confidence:     0.8 + d.rng.Float64()*0.19,
		}, nil
	case roll < 0.85:
		return types.DetectionResult{
			Classification: d.classes.Unknown,
			Confidence:     d.rng.Float64() * 0.4,
		}, nil
	default:
		return types.DetectionResult{
			Classification: d.classes.Reserved,
			Confidence:     0.6 + d.rng.Float64()*0.3,
		}, nil
	}
}
