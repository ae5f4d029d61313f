package detect

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hzvision/cutvision/internal/types"
	"github.com/stretchr/testify/require"
)

var testClasses = types.ClassValues{Unknown: 1, Cuttable: 2, Reserved: 3}

// countingDetector tracks how many Detect calls run at once.
type countingDetector struct {
	active int64
	peak   int64
}

func (d *countingDetector) Detect(ctx context.Context, frame types.Frame) (types.DetectionResult, error) {
	n := atomic.AddInt64(&d.active, 1)
	for {
		peak := atomic.LoadInt64(&d.peak)
		if n <= peak || atomic.CompareAndSwapInt64(&d.peak, peak, n) {
			break
		}
	}

	time.Sleep(10 * time.Millisecond)
	atomic.AddInt64(&d.active, -1)
	return types.DetectionResult{Classification: testClasses.Cuttable}, nil
}

func TestLimitBoundsConcurrentDetections(t *testing.T) {
	inner := &countingDetector{}
	limited := Limit(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := limited.Detect(context.Background(), types.Frame{})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, atomic.LoadInt64(&inner.peak), int64(2))
}

func TestLimitSurfacesContextCancellation(t *testing.T) {
	// Occupy the only slot, then let a waiting caller time out.
	release := make(chan struct{})
	defer close(release)

	limited := Limit(blockingDetector{release: release}, 1)
	go limited.Detect(context.Background(), types.Frame{})
	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := limited.Detect(ctx, types.Frame{})
	var derr *types.DetectionError
	require.ErrorAs(t, err, &derr)
}

type blockingDetector struct {
	release chan struct{}
}

func (d blockingDetector) Detect(ctx context.Context, frame types.Frame) (types.DetectionResult, error) {
	<-d.release
	return types.DetectionResult{}, nil
}

func TestSimDetectorProducesValidClassifications(t *testing.T) {
	detector := NewSimDetector(testClasses, 1)

	counts := make(map[uint16]int)
	for i := 0; i < 200; i++ {
		result, err := detector.Detect(context.Background(), types.Frame{})
		require.NoError(t, err)

		switch result.Classification {
		case testClasses.Cuttable:
			require.GreaterOrEqual(t, result.Confidence, 0.8)
			require.Greater(t, result.Height, 0.0)
			require.Greater(t, result.Length, 0.0)
			require.NotEqual(t, types.HeadUnknown, result.HeadDirection)
		case testClasses.Unknown, testClasses.Reserved:
			require.Zero(t, result.XOffset)
			require.Zero(t, result.Height)
		default:
			t.Fatalf("unexpected classification %d", result.Classification)
		}
		counts[result.Classification]++
	}

	// Roughly 70/15/15; with 200 draws every class shows up.
	require.Greater(t, counts[testClasses.Cuttable], counts[testClasses.Unknown])
	require.NotZero(t, counts[testClasses.Unknown])
	require.NotZero(t, counts[testClasses.Reserved])
}

func TestSimDetectorHonorsContext(t *testing.T) {
	detector := NewSimDetector(testClasses, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := detector.Detect(ctx, types.Frame{})
	var derr *types.DetectionError
	require.ErrorAs(t, err, &derr)
}
