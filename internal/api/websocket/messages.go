package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Camera cycle messages
	MessageTypeCameraStatus MessageType = "camera_status"

	// PLC link messages
	MessageTypePLCState MessageType = "plc_state"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// PLCStateData represents a transport link state change
type PLCStateData struct {
	State    string `json:"state"`
	Previous string `json:"previous_state,omitempty"`
}

// SystemStatusData represents a supervisor-level status update
type SystemStatusData struct {
	Running     bool   `json:"running"`
	CameraCount int    `json:"camera_count"`
	PLCState    string `json:"plc_state"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewCameraStatusMessage(status interface{}) Message {
	return NewMessage(MessageTypeCameraStatus, status)
}

func NewPLCStateMessage(state, previous string) Message {
	return NewMessage(MessageTypePLCState, PLCStateData{
		State:    state,
		Previous: previous,
	})
}

func NewSystemStatusMessage(running bool, cameraCount int, plcState string) Message {
	return NewMessage(MessageTypeSystemStatus, SystemStatusData{
		Running:     running,
		CameraCount: cameraCount,
		PLCState:    plcState,
	})
}
