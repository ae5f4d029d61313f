package plc

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hzvision/cutvision/internal/modbus"
	"github.com/hzvision/cutvision/internal/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// loopbackController is a minimal Modbus-TCP responder backed by an in-memory
// register table. It answers function codes 0x03, 0x06 and 0x10.
type loopbackController struct {
	t *testing.T

	mu        sync.Mutex
	listener  net.Listener
	conns     []net.Conn
	registers map[uint16]uint16
}

func newLoopbackController(t *testing.T) *loopbackController {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	c := &loopbackController{
		t:         t,
		listener:  listener,
		registers: make(map[uint16]uint16),
	}
	go c.serve(listener)
	return c
}

func (c *loopbackController) address() (string, int) {
	addr := c.listener.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

// stop closes the listener and every live connection, simulating a controller
// dropping off the network.
func (c *loopbackController) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listener.Close()
	for _, conn := range c.conns {
		conn.Close()
	}
	c.conns = nil
}

// restart brings the controller back on the same port, registers intact.
func (c *loopbackController) restart() {
	listener, err := net.Listen("tcp", c.listener.Addr().String())
	require.NoError(c.t, err)

	c.mu.Lock()
	c.listener = listener
	c.mu.Unlock()

	go c.serve(listener)
}

func (c *loopbackController) register(addr uint16) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registers[addr]
}

func (c *loopbackController) serve(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}

		c.mu.Lock()
		c.conns = append(c.conns, conn)
		c.mu.Unlock()

		go c.handle(conn)
	}
}

func (c *loopbackController) handle(conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, 260)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}

		request, err := modbus.DecodeFrame(buf[:n])
		if err != nil {
			return
		}

		var data []byte
		switch request.FunctionCode {
		case modbus.FuncCodeReadHoldingRegisters:
			startAddr := binary.BigEndian.Uint16(request.Data[0:2])
			quantity := binary.BigEndian.Uint16(request.Data[2:4])

			data = make([]byte, 1+2*quantity)
			data[0] = byte(2 * quantity)
			c.mu.Lock()
			for i := uint16(0); i < quantity; i++ {
				binary.BigEndian.PutUint16(data[1+2*i:3+2*i], c.registers[startAddr+i])
			}
			c.mu.Unlock()

		case modbus.FuncCodeWriteSingleRegister:
			addr := binary.BigEndian.Uint16(request.Data[0:2])
			value := binary.BigEndian.Uint16(request.Data[2:4])

			c.mu.Lock()
			c.registers[addr] = value
			c.mu.Unlock()

			data = request.Data[0:4]

		case modbus.FuncCodeWriteMultipleRegisters:
			startAddr := binary.BigEndian.Uint16(request.Data[0:2])
			quantity := binary.BigEndian.Uint16(request.Data[2:4])

			c.mu.Lock()
			for i := uint16(0); i < quantity; i++ {
				c.registers[startAddr+i] = binary.BigEndian.Uint16(request.Data[5+2*i : 7+2*i])
			}
			c.mu.Unlock()

			data = request.Data[0:4]
		}

		response := &modbus.ModbusFrame{
			TransactionID: request.TransactionID,
			UnitID:        request.UnitID,
			FunctionCode:  request.FunctionCode,
			Data:          data,
		}
		if _, err := conn.Write(response.Encode()); err != nil {
			return
		}
	}
}

func TestTCPTransportReadWrite(t *testing.T) {
	controller := newLoopbackController(t)
	defer controller.stop()

	host, port := controller.address()
	transport, err := NewTCPTransport(Options{
		Host: host, Port: port, UnitID: 1, Timeout: time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	defer transport.Close()

	require.Equal(t, StateConnected, transport.ConnectionState())

	ctx := context.Background()
	require.NoError(t, transport.WriteRegister(ctx, 100, 10))

	value, err := transport.ReadRegister(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, uint16(10), value)

	require.NoError(t, transport.WriteRegisters(ctx, 102, []uint16{12, 0xFFFD, 15, 40}))
	require.Equal(t, uint16(12), controller.register(102))
	require.Equal(t, uint16(0xFFFD), controller.register(103))
	require.Equal(t, uint16(15), controller.register(104))
	require.Equal(t, uint16(40), controller.register(105))
}

func TestNewTCPTransportRejectsInvalidEndpoint(t *testing.T) {
	_, err := NewTCPTransport(Options{Host: "", Port: 502}, zap.NewNop())
	var terr *types.TransportError
	require.ErrorAs(t, err, &terr)
	require.False(t, terr.Retryable)

	_, err = NewTCPTransport(Options{Host: "127.0.0.1", Port: 0}, zap.NewNop())
	require.ErrorAs(t, err, &terr)
	require.False(t, terr.Retryable)
}

func TestNewTCPTransportUnreachableController(t *testing.T) {
	// Reserve a port and release it so nothing is listening there.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	_, err = NewTCPTransport(Options{
		Host: "127.0.0.1", Port: port, Timeout: 200 * time.Millisecond,
	}, zap.NewNop())

	var terr *types.TransportError
	require.ErrorAs(t, err, &terr)
	require.False(t, terr.Retryable)
	require.Contains(t, err.Error(), "unreachable")
}

func TestTCPTransportFailsFastWhileDownThenReconnects(t *testing.T) {
	controller := newLoopbackController(t)

	host, port := controller.address()
	transport, err := NewTCPTransport(Options{
		Host: host, Port: port, UnitID: 1,
		Timeout:           200 * time.Millisecond,
		ReconnectInterval: 20 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	defer transport.Close()

	ctx := context.Background()
	require.NoError(t, transport.WriteRegister(ctx, 100, 10))

	controller.stop()

	// First call after the drop hits the dead socket and marks the link down.
	_, err = transport.ReadRegister(ctx, 100)
	var terr *types.TransportError
	require.ErrorAs(t, err, &terr)
	require.True(t, terr.Retryable)

	// While down, calls fail immediately instead of queuing.
	start := time.Now()
	_, err = transport.ReadRegister(ctx, 100)
	require.ErrorAs(t, err, &terr)
	require.True(t, terr.Retryable)
	require.Less(t, time.Since(start), 100*time.Millisecond)

	controller.restart()

	require.Eventually(t, func() bool {
		return transport.ConnectionState() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	value, err := transport.ReadRegister(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, uint16(10), value)

	controller.stop()
}

func TestSimTransportRegisterTable(t *testing.T) {
	sim := NewSimTransport(zap.NewNop())
	defer sim.Close()

	ctx := context.Background()

	value, err := sim.ReadRegister(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, uint16(0), value)

	require.NoError(t, sim.WriteRegister(ctx, 100, 127))
	value, err = sim.ReadRegister(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, uint16(127), value)

	require.NoError(t, sim.WriteRegisters(ctx, 102, []uint16{1, 2, 3, 4}))
	for i, want := range []uint16{1, 2, 3, 4} {
		got, err := sim.ReadRegister(ctx, uint16(102+i))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	require.Equal(t, StateConnected, sim.ConnectionState())
}

func TestSimTransportAutoTriggerResetsCompletedHandshake(t *testing.T) {
	sim := NewSimTransport(zap.NewNop())

	ctx := context.Background()
	require.NoError(t, sim.WriteRegister(ctx, 100, 128))

	sim.EnableAutoTrigger([]uint16{100}, 10, 128)

	// The mock controller consumes IMAGE_READY and clears the register.
	require.Eventually(t, func() bool {
		value, err := sim.ReadRegister(ctx, 100)
		return err == nil && value == 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, sim.Close())
}

func TestTCPTransportErrorsWrapForInspection(t *testing.T) {
	err := &types.TransportError{Op: "read", Retryable: true, Err: context.DeadlineExceeded}
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}
