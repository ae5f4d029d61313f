// Package worker runs one camera's handshake-capture-classify-writeback
// cycle. Each worker owns its status exclusively and shares nothing with its
// siblings except the PLC transport, which serializes internally.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hzvision/cutvision/internal/acquire"
	"github.com/hzvision/cutvision/internal/detect"
	"github.com/hzvision/cutvision/internal/plc"
	"github.com/hzvision/cutvision/internal/types"
	"go.uber.org/zap"
)

// StatusListener receives a status snapshot after every state change. Called
// from the worker goroutine; implementations must not block.
type StatusListener func(types.WorkerStatus)

type Config struct {
	Camera         types.CameraConfig
	Trigger        types.TriggerValues
	Classes        types.ClassValues
	PollInterval   time.Duration
	CaptureTimeout time.Duration
	DetectTimeout  time.Duration
	WriteRetries   int
	RetryBackoff   time.Duration
	// GeometryScale is the controller's fixed-point factor: geometry values
	// are multiplied by it before hitting the registers.
	GeometryScale float64
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = 5 * time.Second
	}
	if c.DetectTimeout <= 0 {
		c.DetectTimeout = 5 * time.Second
	}
	if c.WriteRetries < 1 {
		c.WriteRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
	if c.GeometryScale <= 0 {
		c.GeometryScale = 10
	}
}

type Worker struct {
	cfg      Config
	plc      plc.Transport
	camera   acquire.Camera
	detector detect.Detector
	logger   *zap.Logger
	onStatus StatusListener

	mu     sync.RWMutex
	status types.WorkerStatus
}

func New(cfg Config, transport plc.Transport, camera acquire.Camera, detector detect.Detector, logger *zap.Logger, onStatus StatusListener) *Worker {
	cfg.applyDefaults()

	return &Worker{
		cfg:      cfg,
		plc:      transport,
		camera:   camera,
		detector: detector,
		logger:   logger.With(zap.String("camera", cfg.Camera.Name)),
		onStatus: onStatus,
		status: types.WorkerStatus{
			CameraID:  cfg.Camera.ID,
			Name:      cfg.Camera.Name,
			State:     types.StateIdle,
			Timestamp: time.Now(),
		},
	}
}

// Status returns a read-only snapshot.
func (w *Worker) Status() types.WorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snapshot := w.status
	if w.status.LastResult != nil {
		result := *w.status.LastResult
		snapshot.LastResult = &result
	}
	return snapshot
}

// Run polls the trigger register until the context is cancelled. The stop
// signal is only honored between cycles and inside blocking calls, never
// between the register writes of one cycle.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("Camera worker started",
		zap.Uint16("trigger_addr", w.cfg.Camera.Registers.Trigger),
		zap.Duration("poll_interval", w.cfg.PollInterval))

	if err := w.camera.Connect(); err != nil {
		// Not fatal: every capture will fail and degrade its cycle to
		// UNKNOWN, which keeps the controller serviced while the camera is
		// sorted out.
		w.logger.Error("Camera connect failed", zap.Error(err))
		w.update(func(s *types.WorkerStatus) {
			s.LastError = err.Error()
		})
	}
	defer w.camera.Close()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Camera worker stopped")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll reads the trigger register once and services a cycle when the
// controller has raised READY. Anything else, including a lingering
// IMAGE_READY the controller has not reset yet, performs no writes at all.
func (w *Worker) poll(ctx context.Context) {
	value, err := w.plc.ReadRegister(ctx, w.cfg.Camera.Registers.Trigger)
	if err != nil {
		w.update(func(s *types.WorkerStatus) {
			s.LastError = err.Error()
		})
		return
	}

	if value != w.cfg.Trigger.Ready {
		return
	}

	w.runCycle(ctx)
}

// runCycle drives one handshake. Register writes happen in exactly the order
// PROCESSING, IMAGE_READY, classification, then conditionally the geometry
// block; no step is skipped or reordered.
func (w *Worker) runCycle(ctx context.Context) {
	cycleID := uuid.New().String()
	regs := w.cfg.Camera.Registers

	w.logger.Info("Trigger detected",
		zap.String("cycle", cycleID),
		zap.Uint16("addr", regs.Trigger))

	// Acknowledge so the controller knows capture has begun. A failure here
	// is safe to abandon: nothing has been written yet.
	w.setState(types.StateAcknowledged, cycleID)
	if err := w.plc.WriteRegister(ctx, regs.Trigger, w.cfg.Trigger.Processing); err != nil {
		w.abortCycle(cycleID, "acknowledge failed", err)
		return
	}

	w.setState(types.StateCapturing, cycleID)
	capCtx, cancel := context.WithTimeout(ctx, w.cfg.CaptureTimeout)
	frame, err := w.camera.Capture(capCtx)
	cancel()
	if err != nil {
		w.degradeCycle(ctx, cycleID, &types.AcquisitionError{Camera: w.cfg.Camera.Name, Err: err})
		return
	}

	if err := w.plc.WriteRegister(ctx, regs.Trigger, w.cfg.Trigger.ImageReady); err != nil {
		w.abortCycle(cycleID, "image-ready write failed", err)
		return
	}

	w.setState(types.StateDetecting, cycleID)
	detCtx, cancel := context.WithTimeout(ctx, w.cfg.DetectTimeout)
	result, err := w.detector.Detect(detCtx, frame)
	cancel()
	if err != nil {
		var derr *types.DetectionError
		if !errors.As(err, &derr) {
			derr = &types.DetectionError{Err: err}
		}
		w.degradeCycle(ctx, cycleID, derr)
		return
	}

	// Guard against external interference before committing results: if the
	// trigger register no longer reads IMAGE_READY someone else touched it
	// and the remaining writes must not happen.
	if got, err := w.plc.ReadRegister(ctx, regs.Trigger); err == nil && got != w.cfg.Trigger.ImageReady {
		violation := &types.ProtocolViolationError{
			Camera:   w.cfg.Camera.Name,
			Addr:     regs.Trigger,
			Expected: w.cfg.Trigger.ImageReady,
			Got:      got,
		}
		w.logger.Error("Cycle abandoned", zap.String("cycle", cycleID), zap.Error(violation))
		w.update(func(s *types.WorkerStatus) {
			s.State = types.StateIdle
			s.LastError = violation.Error()
		})
		return
	}

	w.setState(types.StateWritingResult, cycleID)
	if err := w.writeResult(ctx, result); err != nil {
		w.faultCycle(cycleID, err)
		return
	}

	w.logger.Info("Cycle complete",
		zap.String("cycle", cycleID),
		zap.Uint16("class", result.Classification),
		zap.Float64("confidence", result.Confidence))

	w.update(func(s *types.WorkerStatus) {
		s.State = types.StateIdle
		s.LastClass = result.Classification
		s.LastResult = &result
		s.LastError = ""
	})
}

// writeResult writes the classification register and, iff the scene is
// cuttable, the four geometry registers as one atomic block write. Geometry
// is never transmitted for any other classification.
func (w *Worker) writeResult(ctx context.Context, result types.DetectionResult) error {
	regs := w.cfg.Camera.Registers

	if err := w.writeWithRetry(ctx, func(ctx context.Context) error {
		return w.plc.WriteRegister(ctx, regs.Class, result.Classification)
	}); err != nil {
		return err
	}

	if result.Classification != w.cfg.Classes.Cuttable {
		return nil
	}

	values := []uint16{
		scaleToRegister(result.XOffset, w.cfg.GeometryScale),
		scaleToRegister(result.YOffset, w.cfg.GeometryScale),
		scaleToRegister(result.RAngle, w.cfg.GeometryScale),
		scaleToRegister(result.Height, w.cfg.GeometryScale),
	}

	w.logger.Debug("Writing geometry block",
		zap.Uint16("start_addr", regs.XOffset),
		zap.Uint16s("values", values))

	return w.writeWithRetry(ctx, func(ctx context.Context) error {
		return w.plc.WriteRegisters(ctx, regs.XOffset, values)
	})
}

// degradeCycle completes a cycle whose capture or detection failed: the
// classification register gets UNKNOWN and no geometry is written, so the
// controller is never left waiting on a hung trigger.
func (w *Worker) degradeCycle(ctx context.Context, cycleID string, cause error) {
	w.logger.Warn("Cycle degraded", zap.String("cycle", cycleID), zap.Error(cause))

	w.setState(types.StateWritingResult, cycleID)
	err := w.writeWithRetry(ctx, func(ctx context.Context) error {
		return w.plc.WriteRegister(ctx, w.cfg.Camera.Registers.Class, w.cfg.Classes.Unknown)
	})
	if err != nil {
		w.faultCycle(cycleID, err)
		return
	}

	w.update(func(s *types.WorkerStatus) {
		s.State = types.StateIdle
		s.LastClass = w.cfg.Classes.Unknown
		s.LastError = cause.Error()
	})
}

// abortCycle handles handshake write failures where stopping mid-cycle is
// safe because no classification or geometry has been written yet.
func (w *Worker) abortCycle(cycleID, what string, err error) {
	w.logger.Warn("Cycle aborted",
		zap.String("cycle", cycleID),
		zap.String("step", what),
		zap.Error(err))

	w.update(func(s *types.WorkerStatus) {
		s.State = types.StateIdle
		s.LastError = err.Error()
	})
}

// faultCycle marks a cycle whose write-back exhausted its retries. The worker
// still returns to Idle and keeps servicing triggers; one failed write-back
// must never stop the line.
func (w *Worker) faultCycle(cycleID string, err error) {
	w.logger.Error("Cycle faulted", zap.String("cycle", cycleID), zap.Error(err))

	w.setState(types.StateFaulted, cycleID)
	w.update(func(s *types.WorkerStatus) {
		s.State = types.StateIdle
		s.LastError = err.Error()
	})
}

func (w *Worker) writeWithRetry(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= w.cfg.WriteRetries; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}

		if attempt < w.cfg.WriteRetries {
			w.logger.Warn("Register write failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.RetryBackoff):
			}
		}
	}
	return err
}

func (w *Worker) setState(state types.WorkerState, cycleID string) {
	w.update(func(s *types.WorkerStatus) {
		s.State = state
		s.CycleID = cycleID
	})
}

func (w *Worker) update(mutate func(*types.WorkerStatus)) {
	w.mu.Lock()
	mutate(&w.status)
	w.status.Timestamp = time.Now()
	snapshot := w.status
	if w.status.LastResult != nil {
		result := *w.status.LastResult
		snapshot.LastResult = &result
	}
	w.mu.Unlock()

	if w.onStatus != nil {
		w.onStatus(snapshot)
	}
}

// scaleToRegister converts a geometry value to the controller's fixed-point
// format, clamped to the signed 16-bit register range.
func scaleToRegister(v, scale float64) uint16 {
	scaled := int(v * scale)
	if scaled > 32767 {
		scaled = 32767
	}
	if scaled < -32768 {
		scaled = -32768
	}
	return uint16(int16(scaled))
}
