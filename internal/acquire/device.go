//go:build gocv
// +build gocv

package acquire

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/hzvision/cutvision/internal/types"
	"go.uber.org/zap"
)

// DeviceCamera grabs frames from a network camera through OpenCV. The IP is
// the camera's address from the register map file.
type DeviceCamera struct {
	name   string
	source string
	logger *zap.Logger

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	opened bool
}

func NewDeviceCamera(name, source string, logger *zap.Logger) *DeviceCamera {
	return &DeviceCamera{
		name:   name,
		source: source,
		logger: logger,
	}
}

func (c *DeviceCamera) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cap, err := gocv.OpenVideoCapture(c.source)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.source, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return fmt.Errorf("source %s not opened", c.source)
	}

	c.cap = cap
	c.opened = true

	c.logger.Info("Device camera connected",
		zap.String("camera", c.name),
		zap.String("source", c.source))

	return nil
}

func (c *DeviceCamera) Capture(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opened {
		return types.Frame{}, fmt.Errorf("camera %s not connected", c.name)
	}

	mat := gocv.NewMat()
	defer mat.Close()

	if ok := c.cap.Read(&mat); !ok || mat.Empty() {
		return types.Frame{}, fmt.Errorf("camera %s returned no frame", c.name)
	}

	return types.Frame{
		Data:   mat.ToBytes(),
		Width:  mat.Cols(),
		Height: mat.Rows(),
	}, nil
}

func (c *DeviceCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opened {
		return nil
	}
	c.opened = false
	return c.cap.Close()
}
