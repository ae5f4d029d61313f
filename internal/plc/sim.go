package plc

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SimTransport is an in-memory register table with the same contract as the
// real transport. With auto-trigger enabled it behaves like the bench mock
// controller: it raises READY on an idle trigger register every few seconds
// and resets IMAGE_READY back to zero once it has "consumed" the results.
type SimTransport struct {
	logger *zap.Logger

	mu        sync.Mutex
	registers map[uint16]uint16

	triggerAddrs []uint16
	readyValue   uint16
	doneValue    uint16

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSimTransport(logger *zap.Logger) *SimTransport {
	return &SimTransport{
		logger:    logger,
		registers: make(map[uint16]uint16),
		stopChan:  make(chan struct{}),
	}
}

// EnableAutoTrigger starts the mock-controller loop over the given trigger
// addresses. ready is written to raise a trigger, done is the IMAGE_READY
// value that gets auto-reset to zero.
func (s *SimTransport) EnableAutoTrigger(triggerAddrs []uint16, ready, done uint16) {
	s.triggerAddrs = append([]uint16(nil), triggerAddrs...)
	s.readyValue = ready
	s.doneValue = done

	s.wg.Add(1)
	go s.autoTriggerLoop()
}

func (s *SimTransport) ReadRegister(ctx context.Context, addr uint16) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registers[addr], nil
}

func (s *SimTransport) WriteRegister(ctx context.Context, addr uint16, value uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registers[addr] = value
	return nil
}

func (s *SimTransport) WriteRegisters(ctx context.Context, addr uint16, values []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range values {
		s.registers[addr+uint16(i)] = v
	}
	return nil
}

func (s *SimTransport) ConnectionState() ConnState {
	return StateConnected
}

func (s *SimTransport) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	return nil
}

func (s *SimTransport) autoTriggerLoop() {
	defer s.wg.Done()

	for {
		// Reset any completed handshake first, as the real controller does
		// after consuming the classification and geometry values.
		s.mu.Lock()
		for _, addr := range s.triggerAddrs {
			if s.registers[addr] == s.doneValue {
				s.registers[addr] = 0
			}
		}
		s.mu.Unlock()

		delay := time.Duration(2000+rand.Intn(3000)) * time.Millisecond
		select {
		case <-s.stopChan:
			return
		case <-time.After(delay):
		}

		addr := s.triggerAddrs[rand.Intn(len(s.triggerAddrs))]

		s.mu.Lock()
		// Only raise on an idle register, triggering a busy camera twice
		// would itself be a protocol violation.
		if s.registers[addr] == 0 {
			s.registers[addr] = s.readyValue
			s.logger.Info("Simulated trigger raised", zap.Uint16("addr", addr))
		}
		s.mu.Unlock()
	}
}
