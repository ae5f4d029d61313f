package plc

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hzvision/cutvision/internal/modbus"
	"github.com/hzvision/cutvision/internal/types"
	"go.uber.org/zap"
)

// ConnState is the transport's link state.
type ConnState string

const (
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
	StateReconnecting ConnState = "reconnecting"
)

// Transport is the single shared path to the controller's holding registers.
// All operations are mutually exclusive: at most one is in flight at any
// instant no matter how many workers call concurrently. Calls block until
// completion or timeout. While the link is down, calls fail immediately with
// a retryable TransportError instead of queuing; the transport reconnects in
// the background on its own.
type Transport interface {
	ReadRegister(ctx context.Context, addr uint16) (uint16, error)
	WriteRegister(ctx context.Context, addr uint16, value uint16) error
	// WriteRegisters writes a contiguous block in one wire operation so a
	// partial write is never visible at a granularity larger than one
	// register.
	WriteRegisters(ctx context.Context, addr uint16, values []uint16) error
	ConnectionState() ConnState
	Close() error
}

type Options struct {
	Host              string
	Port              int
	UnitID            uint8
	Timeout           time.Duration
	ReconnectInterval time.Duration
}

// TCPTransport drives a real controller over Modbus-TCP.
type TCPTransport struct {
	client   *modbus.Client
	unitID   uint8
	logger   *zap.Logger
	interval time.Duration

	mu       sync.Mutex
	state    ConnState
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTCPTransport validates the endpoint, dials the controller and returns a
// connected transport. A malformed address or a controller that cannot be
// reached at construction is a non-retryable configuration error.
func NewTCPTransport(opts Options, logger *zap.Logger) (*TCPTransport, error) {
	if opts.Host == "" {
		return nil, &types.TransportError{Op: "connect", Retryable: false,
			Err: fmt.Errorf("empty host")}
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, &types.TransportError{Op: "connect", Retryable: false,
			Err: fmt.Errorf("invalid port %d", opts.Port)}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 2 * time.Second
	}

	address := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	client := modbus.NewClient(address, opts.Timeout)

	if err := client.Connect(); err != nil {
		return nil, &types.TransportError{Op: "connect", Retryable: false,
			Err: fmt.Errorf("controller unreachable at %s: %w", address, err)}
	}

	t := &TCPTransport{
		client:   client,
		unitID:   opts.UnitID,
		logger:   logger,
		interval: opts.ReconnectInterval,
		state:    StateConnected,
		stopChan: make(chan struct{}),
	}

	logger.Info("PLC connected",
		zap.String("address", address),
		zap.Uint8("unit_id", opts.UnitID))

	return t, nil
}

func (t *TCPTransport) ConnectionState() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *TCPTransport) ReadRegister(ctx context.Context, addr uint16) (uint16, error) {
	if err := t.checkUp("read"); err != nil {
		return 0, err
	}

	values, err := t.client.ReadHoldingRegisters(ctx, t.unitID, addr, 1)
	if err != nil {
		t.onIOError("read", addr, err)
		return 0, &types.TransportError{Op: "read", Retryable: true, Err: err}
	}
	if len(values) < 1 {
		err := fmt.Errorf("empty register response for D%d", addr)
		return 0, &types.TransportError{Op: "read", Retryable: true, Err: err}
	}

	return values[0], nil
}

func (t *TCPTransport) WriteRegister(ctx context.Context, addr uint16, value uint16) error {
	if err := t.checkUp("write"); err != nil {
		return err
	}

	if err := t.client.WriteSingleRegister(ctx, t.unitID, addr, value); err != nil {
		t.onIOError("write", addr, err)
		return &types.TransportError{Op: "write", Retryable: true, Err: err}
	}

	return nil
}

func (t *TCPTransport) WriteRegisters(ctx context.Context, addr uint16, values []uint16) error {
	if err := t.checkUp("write_block"); err != nil {
		return err
	}

	if err := t.client.WriteMultipleRegisters(ctx, t.unitID, addr, values); err != nil {
		t.onIOError("write_block", addr, err)
		return &types.TransportError{Op: "write_block", Retryable: true, Err: err}
	}

	return nil
}

func (t *TCPTransport) Close() error {
	t.stopOnce.Do(func() {
		close(t.stopChan)
	})
	t.wg.Wait()

	t.mu.Lock()
	t.state = StateDisconnected
	t.mu.Unlock()

	return t.client.Close()
}

// checkUp fails fast while the link is down so callers never queue behind a
// dead connection.
func (t *TCPTransport) checkUp(op string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateConnected {
		return &types.TransportError{Op: op, Retryable: true,
			Err: fmt.Errorf("link %s", t.state)}
	}
	return nil
}

// onIOError marks the link down and starts the background reconnect loop.
// Only the first failure spawns the loop; later failures see the state flag.
func (t *TCPTransport) onIOError(op string, addr uint16, err error) {
	t.mu.Lock()
	if t.state != StateConnected {
		t.mu.Unlock()
		return
	}
	t.state = StateDisconnected
	t.mu.Unlock()

	t.logger.Warn("PLC link lost",
		zap.String("op", op),
		zap.Uint16("addr", addr),
		zap.Error(err))

	t.client.Close()

	t.wg.Add(1)
	go t.reconnectLoop()
}

func (t *TCPTransport) reconnectLoop() {
	defer t.wg.Done()

	t.mu.Lock()
	t.state = StateReconnecting
	t.mu.Unlock()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopChan:
			return
		case <-ticker.C:
			if err := t.client.Connect(); err != nil {
				t.logger.Debug("PLC reconnect attempt failed", zap.Error(err))
				continue
			}

			t.mu.Lock()
			t.state = StateConnected
			t.mu.Unlock()

			t.logger.Info("PLC reconnected")
			return
		}
	}
}
