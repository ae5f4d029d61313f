//go:build !gocv
// +build !gocv

package acquire

import (
	"context"
	"errors"

	"github.com/hzvision/cutvision/internal/types"
	"go.uber.org/zap"
)

// DeviceCamera stub for builds without the gocv tag.
type DeviceCamera struct {
	name   string
	source string
	logger *zap.Logger
}

func NewDeviceCamera(name, source string, logger *zap.Logger) *DeviceCamera {
	return &DeviceCamera{
		name:   name,
		source: source,
		logger: logger,
	}
}

func (c *DeviceCamera) Connect() error {
	return errors.New("device camera requires a build with the gocv tag")
}

func (c *DeviceCamera) Capture(ctx context.Context) (types.Frame, error) {
	return types.Frame{}, errors.New("device camera requires a build with the gocv tag")
}

func (c *DeviceCamera) Close() error { return nil }
