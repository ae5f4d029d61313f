package acquire

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	_ "image/jpeg"
	_ "image/png"

	"github.com/hzvision/cutvision/internal/types"
	"go.uber.org/zap"
)

// FolderCamera serves bench images from a directory in round-robin order. It
// stands in for the real camera on machines without the vision hardware.
type FolderCamera struct {
	name   string
	dir    string
	logger *zap.Logger

	mu     sync.Mutex
	files  []string
	next   int
	opened bool
}

func NewFolderCamera(name, dir string, logger *zap.Logger) *FolderCamera {
	return &FolderCamera{
		name:   name,
		dir:    dir,
		logger: logger,
	}
}

func (c *FolderCamera) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var files []string
	for _, pattern := range []string{"*.jpg", "*.jpeg", "*.png", "*.bmp"} {
		matches, err := filepath.Glob(filepath.Join(c.dir, pattern))
		if err != nil {
			return fmt.Errorf("scan %s: %w", c.dir, err)
		}
		files = append(files, matches...)
	}

	if len(files) == 0 {
		return fmt.Errorf("no test images in %s", c.dir)
	}

	c.files = files
	c.next = 0
	c.opened = true

	c.logger.Info("Folder camera ready",
		zap.String("camera", c.name),
		zap.String("dir", c.dir),
		zap.Int("images", len(files)))

	return nil
}

func (c *FolderCamera) Capture(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}

	c.mu.Lock()
	if !c.opened {
		c.mu.Unlock()
		return types.Frame{}, fmt.Errorf("camera %s not connected", c.name)
	}
	path := c.files[c.next]
	c.next = (c.next + 1) % len(c.files)
	c.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return types.Frame{}, fmt.Errorf("read %s: %w", path, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// bmp is not registered with the stdlib decoders, pass it through
		// with unknown dimensions and let the detector deal with it.
		return types.Frame{Data: data}, nil
	}

	return types.Frame{Data: data, Width: cfg.Width, Height: cfg.Height}, nil
}

func (c *FolderCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = false
	return nil
}
