package acquire

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeTestImage(t *testing.T, dir, name string, width, height int) {
	t.Helper()

	file, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer file.Close()

	require.NoError(t, png.Encode(file, image.NewGray(image.Rect(0, 0, width, height))))
}

func TestFolderCameraConnectRequiresImages(t *testing.T) {
	cam := NewFolderCamera("bench", t.TempDir(), zap.NewNop())
	err := cam.Connect()
	require.Error(t, err)
	require.Contains(t, err.Error(), "no test images")
}

func TestFolderCameraCaptureDecodesDimensions(t *testing.T) {
	dir := t.TempDir()
	writeTestImage(t, dir, "board.png", 64, 48)

	cam := NewFolderCamera("bench", dir, zap.NewNop())
	require.NoError(t, cam.Connect())
	defer cam.Close()

	frame, err := cam.Capture(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, frame.Data)
	require.Equal(t, 64, frame.Width)
	require.Equal(t, 48, frame.Height)
}

func TestFolderCameraRoundRobin(t *testing.T) {
	dir := t.TempDir()
	writeTestImage(t, dir, "a.png", 10, 10)
	writeTestImage(t, dir, "b.png", 20, 20)

	cam := NewFolderCamera("bench", dir, zap.NewNop())
	require.NoError(t, cam.Connect())
	defer cam.Close()

	ctx := context.Background()
	seen := make(map[int]int)
	for i := 0; i < 4; i++ {
		frame, err := cam.Capture(ctx)
		require.NoError(t, err)
		seen[frame.Width]++
	}

	require.Equal(t, 2, seen[10])
	require.Equal(t, 2, seen[20])
}

func TestFolderCameraCaptureAfterClose(t *testing.T) {
	dir := t.TempDir()
	writeTestImage(t, dir, "a.png", 10, 10)

	cam := NewFolderCamera("bench", dir, zap.NewNop())
	require.NoError(t, cam.Connect())
	require.NoError(t, cam.Close())

	_, err := cam.Capture(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not connected")
}

func TestFolderCameraHonorsContext(t *testing.T) {
	dir := t.TempDir()
	writeTestImage(t, dir, "a.png", 10, 10)

	cam := NewFolderCamera("bench", dir, zap.NewNop())
	require.NoError(t, cam.Connect())
	defer cam.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cam.Capture(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
