package types

import "fmt"

// TransportError covers everything that goes wrong on the register link.
// Retryable errors (lost connection, timeout, malformed response) recover on
// their own through the transport's reconnect loop; non-retryable ones are
// configuration mistakes caught at construction.
type TransportError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("plc %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AcquisitionError degrades the current cycle only.
type AcquisitionError struct {
	Camera string
	Err    error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Camera, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// DetectionError degrades the current cycle only.
type DetectionError struct {
	Err error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detect: %v", e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// ProtocolViolationError means the trigger register changed under the worker
// mid-cycle, or the register map itself is invalid. The register case aborts
// one cycle, the config case aborts startup; neither kills the process once
// workers are running.
type ProtocolViolationError struct {
	Camera   string
	Addr     uint16
	Expected uint16
	Got      uint16
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("protocol violation on %s: trigger D%d expected %d, got %d",
		e.Camera, e.Addr, e.Expected, e.Got)
}
