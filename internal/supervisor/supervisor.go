// Package supervisor owns the camera fleet lifecycle: one shared PLC
// transport, one worker per configured camera, and the status fan-in for the
// outside world.
package supervisor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hzvision/cutvision/internal/acquire"
	"github.com/hzvision/cutvision/internal/cameras"
	"github.com/hzvision/cutvision/internal/config"
	"github.com/hzvision/cutvision/internal/detect"
	"github.com/hzvision/cutvision/internal/plc"
	"github.com/hzvision/cutvision/internal/types"
	"github.com/hzvision/cutvision/internal/worker"
	"go.uber.org/zap"
)

// Options inject the hardware-facing capabilities. Real or simulated variants
// are chosen exactly once, at construction; they are never switched at
// runtime. Nil fields fall back to config-driven defaults.
type Options struct {
	Transport plc.Transport
	NewCamera func(cam types.CameraConfig) acquire.Camera
	Detector  detect.Detector
	OnStatus  worker.StatusListener
}

type Supervisor struct {
	cfg       *config.Config
	cameraMap *types.CameraMap
	logger    *zap.Logger
	opts      Options

	mu        sync.Mutex
	running   bool
	transport plc.Transport
	workers   []*worker.Worker
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfg *config.Config, cameraMap *types.CameraMap, logger *zap.Logger, opts Options) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		cameraMap: cameraMap,
		logger:    logger,
		opts:      opts,
	}
}

// Start validates the register map, brings up the transport and spawns one
// worker per camera. Idempotent: a second call on a running supervisor is a
// no-op.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Overlapping register blocks are a fatal configuration error, caught
	// before any camera begins polling.
	if err := cameras.ValidateAddresses(s.cameraMap); err != nil {
		return fmt.Errorf("register map invalid: %w", err)
	}

	transport, err := s.buildTransport()
	if err != nil {
		return err
	}
	s.transport = transport

	detector := s.opts.Detector
	if detector == nil {
		detector = s.buildDetector()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.workers = make([]*worker.Worker, 0, len(s.cameraMap.Cameras))
	for _, cam := range s.cameraMap.Cameras {
		w := worker.New(worker.Config{
			Camera:         cam,
			Trigger:        s.cfg.Protocol.TriggerValues,
			Classes:        s.cfg.Protocol.ClassValues,
			PollInterval:   s.cfg.Protocol.PollInterval,
			CaptureTimeout: s.cfg.Capture.Timeout,
			DetectTimeout:  s.cfg.Detection.Timeout,
			WriteRetries:   s.cfg.Protocol.WriteRetries,
			RetryBackoff:   s.cfg.Protocol.RetryBackoff,
			GeometryScale:  s.cfg.Protocol.GeometryScale,
		}, transport, s.buildCamera(cam), detector, s.logger, s.opts.OnStatus)

		s.workers = append(s.workers, w)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			w.Run(ctx)
		}()
	}

	s.running = true

	s.logger.Info("Supervisor started",
		zap.Int("cameras", len(s.workers)),
		zap.Duration("poll_interval", s.cfg.Protocol.PollInterval))

	return nil
}

// Stop signals all workers, waits for them to reach a safe point and releases
// the transport. Workers are never interrupted mid-write; the wait is bounded
// by the caller's context. Idempotent.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.logger.Info("Stopping supervisor")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Worker shutdown timeout exceeded")
		waitErr = fmt.Errorf("worker shutdown: %w", ctx.Err())
	}

	if err := s.transport.Close(); err != nil && waitErr == nil {
		waitErr = fmt.Errorf("transport close: %w", err)
	}

	s.workers = nil
	s.transport = nil
	s.running = false

	s.logger.Info("Supervisor stopped")
	return waitErr
}

// Running reports whether workers are live.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns per-camera snapshots ordered by camera ID.
func (s *Supervisor) Status() []types.WorkerStatus {
	s.mu.Lock()
	workers := s.workers
	s.mu.Unlock()

	statuses := make([]types.WorkerStatus, 0, len(workers))
	for _, w := range workers {
		statuses = append(statuses, w.Status())
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].CameraID < statuses[j].CameraID
	})

	return statuses
}

// ConnectionState reports the shared transport's link state.
func (s *Supervisor) ConnectionState() plc.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transport == nil {
		return plc.StateDisconnected
	}
	return s.transport.ConnectionState()
}

func (s *Supervisor) buildTransport() (plc.Transport, error) {
	if s.opts.Transport != nil {
		return s.opts.Transport, nil
	}

	if s.cfg.PLC.Simulate {
		sim := plc.NewSimTransport(s.logger)
		if s.cfg.PLC.AutoTrigger {
			addrs := make([]uint16, 0, len(s.cameraMap.Cameras))
			for _, cam := range s.cameraMap.Cameras {
				addrs = append(addrs, cam.Registers.Trigger)
			}
			sim.EnableAutoTrigger(addrs,
				s.cfg.Protocol.TriggerValues.Ready,
				s.cfg.Protocol.TriggerValues.ImageReady)
		}
		return sim, nil
	}

	transport, err := plc.NewTCPTransport(plc.Options{
		Host:              s.cfg.PLC.Host,
		Port:              s.cfg.PLC.Port,
		UnitID:            s.cfg.PLC.UnitID,
		Timeout:           s.cfg.PLC.Timeout,
		ReconnectInterval: s.cfg.PLC.ReconnectInterval,
	}, s.logger)
	if err != nil {
		return nil, fmt.Errorf("transport setup: %w", err)
	}

	return transport, nil
}

func (s *Supervisor) buildCamera(cam types.CameraConfig) acquire.Camera {
	if s.opts.NewCamera != nil {
		return s.opts.NewCamera(cam)
	}

	if s.cfg.Capture.Simulate {
		return acquire.NewFolderCamera(cam.Name, s.cfg.Capture.TestImageDir, s.logger)
	}
	return acquire.NewDeviceCamera(cam.Name, cam.IP, s.logger)
}

func (s *Supervisor) buildDetector() detect.Detector {
	var inner detect.Detector
	if s.cfg.Detection.Simulate {
		inner = detect.NewSimDetector(s.cfg.Protocol.ClassValues, time.Now().UnixNano())
	} else {
		inner = detect.NewContourDetector(s.cfg.Protocol.ClassValues,
			s.cfg.Detection.PixelToMM, s.cfg.Detection.MinConfidence)
	}

	// One model instance serves every camera; the bound keeps workers from
	// piling onto it while still letting them time out individually.
	return detect.Limit(inner, s.cfg.Detection.MaxConcurrent)
}
