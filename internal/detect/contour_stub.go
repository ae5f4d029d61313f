//go:build !gocv
// +build !gocv

package detect

import (
	"context"
	"errors"

	"github.com/hzvision/cutvision/internal/types"
)

// ContourDetector stub for builds without the gocv tag.
type ContourDetector struct {
	classes       types.ClassValues
	pixelToMM     float64
	minConfidence float64
}

func NewContourDetector(classes types.ClassValues, pixelToMM, minConfidence float64) *ContourDetector {
	return &ContourDetector{
		classes:       classes,
		pixelToMM:     pixelToMM,
		minConfidence: minConfidence,
	}
}

func (d *ContourDetector) Detect(ctx context.Context, frame types.Frame) (types.DetectionResult, error) {
	return types.DetectionResult{}, &types.DetectionError{
		Err: errors.New("contour detector requires a build with the gocv tag"),
	}
}
