package modbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	request := ReadHoldingRegistersRequest(42, 1, 100, 1)

	raw := request.Encode()
	require.Len(t, raw, 12) // MBAP(7) + FuncCode(1) + Addr(2) + Qty(2)

	decoded, err := DecodeFrame(raw)
	require.NoError(t, err)
	require.Equal(t, uint16(42), decoded.TransactionID)
	require.Equal(t, uint16(0), decoded.ProtocolID)
	require.Equal(t, uint16(6), decoded.Length)
	require.Equal(t, uint8(1), decoded.UnitID)
	require.Equal(t, uint8(FuncCodeReadHoldingRegisters), decoded.FunctionCode)
	require.Equal(t, []byte{0x00, 0x64, 0x00, 0x01}, decoded.Data)
}

func TestDecodeFrameRejectsBadInput(t *testing.T) {
	_, err := DecodeFrame([]byte{0x00, 0x01, 0x00})
	require.Error(t, err)
	require.Contains(t, err.Error(), "frame too short")

	// Protocol ID must be zero for Modbus-TCP
	raw := ReadHoldingRegistersRequest(1, 1, 0, 1).Encode()
	raw[2] = 0xDE
	raw[3] = 0xAD
	_, err = DecodeFrame(raw)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid protocol ID")
}

func TestWriteSingleRegisterRequestLayout(t *testing.T) {
	request := WriteSingleRegisterRequest(7, 1, 101, 127)

	require.Equal(t, uint8(FuncCodeWriteSingleRegister), request.FunctionCode)
	require.Equal(t, []byte{0x00, 0x65, 0x00, 0x7F}, request.Data)
}

func TestWriteMultipleRegistersRequestLayout(t *testing.T) {
	request := WriteMultipleRegistersRequest(7, 1, 102, []uint16{12, 0xFFFD, 15, 40})

	require.Equal(t, uint8(FuncCodeWriteMultipleRegisters), request.FunctionCode)
	require.Equal(t, []byte{
		0x00, 0x66, // start address 102
		0x00, 0x04, // quantity
		0x08,       // byte count
		0x00, 0x0C, // 12
		0xFF, 0xFD, // -3 as int16
		0x00, 0x0F, // 15
		0x00, 0x28, // 40
	}, request.Data)

	raw := request.Encode()
	require.Equal(t, uint16(len(request.Data)+2), request.Length)
	require.Len(t, raw, 7+1+len(request.Data))
}

func TestCheckException(t *testing.T) {
	ok := &ModbusFrame{FunctionCode: FuncCodeReadHoldingRegisters, Data: []byte{0x02, 0x00, 0x0A}}
	require.NoError(t, ok.CheckException())

	bad := &ModbusFrame{FunctionCode: FuncCodeWriteSingleRegister | exceptionFlag, Data: []byte{0x02}}
	err := bad.CheckException()
	require.Error(t, err)
	require.Contains(t, err.Error(), "illegal data address")
	require.Contains(t, err.Error(), "0x06")
}

func TestParseRegisterResponse(t *testing.T) {
	frame := &ModbusFrame{
		FunctionCode: FuncCodeReadHoldingRegisters,
		Data:         []byte{0x04, 0x00, 0x0A, 0xFF, 0xFD},
	}

	values, err := frame.ParseRegisterResponse()
	require.NoError(t, err)
	require.Equal(t, []uint16{10, 0xFFFD}, values)
}

func TestParseRegisterResponseRejectsTruncatedData(t *testing.T) {
	frame := &ModbusFrame{FunctionCode: FuncCodeReadHoldingRegisters}
	_, err := frame.ParseRegisterResponse()
	require.Error(t, err)

	frame.Data = []byte{0x04, 0x00, 0x0A}
	_, err = frame.ParseRegisterResponse()
	require.Error(t, err)
	require.Contains(t, err.Error(), "incomplete")
}
