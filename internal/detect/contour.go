//go:build gocv
// +build gocv

package detect

import (
	"context"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/hzvision/cutvision/internal/types"
)

// ContourDetector segments the dark piece against the light belt background
// and derives cut geometry from its minimum-area rectangle. Offsets are in mm
// relative to the image center, the angle is the long axis against
// horizontal.
type ContourDetector struct {
	classes       types.ClassValues
	pixelToMM     float64
	minConfidence float64

	// Pieces covering less than this share of the frame are noise.
	minAreaRatio float64
	// Sanity bounds for the long/short axis ratio of a real piece.
	minAspect, maxAspect float64
}

func NewContourDetector(classes types.ClassValues, pixelToMM, minConfidence float64) *ContourDetector {
	return &ContourDetector{
		classes:       classes,
		pixelToMM:     pixelToMM,
		minConfidence: minConfidence,
		minAreaRatio:  0.002,
		minAspect:     1.1,
		maxAspect:     4.0,
	}
}

func (d *ContourDetector) Detect(ctx context.Context, frame types.Frame) (types.DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return types.DetectionResult{}, &types.DetectionError{Err: err}
	}

	mat, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil || mat.Empty() {
		// Raw BGR buffer from the device camera path.
		if frame.Width > 0 && frame.Height > 0 {
			mat, err = gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
		}
		if err != nil || mat.Empty() {
			return types.DetectionResult{}, &types.DetectionError{Err: fmt.Errorf("undecodable frame")}
		}
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(7, 7), 0, 0, gocv.BorderDefault)

	// Otsu with inversion: dark piece on light background becomes foreground.
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(blurred, &mask, 0, 255, gocv.ThresholdBinaryInv+gocv.ThresholdOtsu)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	best := -1
	bestArea := 0.0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > bestArea {
			bestArea = area
			best = i
		}
	}

	frameArea := float64(mat.Cols() * mat.Rows())
	if best < 0 || bestArea < d.minAreaRatio*frameArea {
		return types.DetectionResult{
			Classification: d.classes.Unknown,
		}, nil
	}

	rect := gocv.MinAreaRect(contours.At(best))

	long := float64(rect.Width)
	short := float64(rect.Height)
	angle := float64(rect.Angle)
	if short > long {
		long, short = short, long
		angle += 90
	}
	// Normalize to (-90, 90] against horizontal.
	for angle > 90 {
		angle -= 180
	}
	for angle <= -90 {
		angle += 180
	}

	aspect := long / math.Max(short, 1)
	confidence := math.Min(1, bestArea/(long*short))

	result := types.DetectionResult{
		XOffset:       (float64(rect.Center.X) - float64(mat.Cols())/2) * d.pixelToMM,
		YOffset:       (float64(rect.Center.Y) - float64(mat.Rows())/2) * d.pixelToMM,
		RAngle:        angle,
		Height:        short * d.pixelToMM,
		Length:        long * d.pixelToMM,
		HeadDirection: headDirection(contours.At(best), rect.Center.X),
		Confidence:    confidence,
	}

	switch {
	case confidence < d.minConfidence:
		result.Classification = d.classes.Unknown
	case aspect < d.minAspect || aspect > d.maxAspect:
		result.Classification = d.classes.Reserved
	default:
		result.Classification = d.classes.Cuttable
	}

	return result, nil
}

// headDirection compares contour mass left and right of the rect center: the
// pointed end carries less area, so the heavier side is the body and the head
// points the other way.
func headDirection(contour gocv.PointVector, centerX int) int {
	left, right := 0, 0
	for i := 0; i < contour.Size(); i++ {
		if contour.At(i).X < centerX {
			left++
		} else {
			right++
		}
	}

	switch {
	case left > right:
		return types.HeadRight
	case right > left:
		return types.HeadLeft
	default:
		return types.HeadUnknown
	}
}
