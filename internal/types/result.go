package types

import "time"

// Frame is one captured image. Data is the decoded pixel buffer in BGR order
// for the gocv path and the raw encoded file for folder sources; the detector
// implementation knows which it accepts.
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// HeadDirection of the detected piece along its long axis.
const (
	HeadUnknown = 0
	HeadLeft    = 1
	HeadRight   = 2
)

// DetectionResult is the outcome of one inference call. Geometry fields are
// meaningful only when Classification equals the configured cuttable code;
// for any other classification they must not be transmitted to the
// controller. Length and HeadDirection are observational extras carried for
// the status surface, the register map ends at Height.
type DetectionResult struct {
	Classification uint16  `json:"classification"`
	XOffset        float64 `json:"x_offset"`
	YOffset        float64 `json:"y_offset"`
	RAngle         float64 `json:"r_angle"`
	Height         float64 `json:"height"`
	Length         float64 `json:"length"`
	HeadDirection  int     `json:"head_direction"`
	Confidence     float64 `json:"confidence"`
}

type WorkerState string

const (
	StateIdle          WorkerState = "idle"
	StateAcknowledged  WorkerState = "acknowledged"
	StateCapturing     WorkerState = "capturing"
	StateDetecting     WorkerState = "detecting"
	StateWritingResult WorkerState = "writing_result"
	StateFaulted       WorkerState = "faulted"
)

// WorkerStatus is a read-only snapshot of one camera worker, owned
// exclusively by that worker and copied out for display.
type WorkerStatus struct {
	CameraID   int              `json:"camera_id"`
	Name       string           `json:"name"`
	State      WorkerState      `json:"state"`
	CycleID    string           `json:"cycle_id,omitempty"`
	LastClass  uint16           `json:"last_class,omitempty"`
	LastResult *DetectionResult `json:"last_result,omitempty"`
	LastError  string           `json:"last_error,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}
