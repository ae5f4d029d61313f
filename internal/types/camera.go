package types

import "fmt"

// RegisterBlock holds the six holding-register addresses assigned to one
// camera. The controller convention is a stride of 10 between cameras
// (D100, D110, ...) but nothing here relies on it; the loader only requires
// that no address is used twice and that the geometry registers are
// contiguous so they can be written as one block.
type RegisterBlock struct {
	Trigger uint16 `json:"trigger"`
	Class   uint16 `json:"class"`
	XOffset uint16 `json:"x_offset"`
	YOffset uint16 `json:"y_offset"`
	RAngle  uint16 `json:"r_angle"`
	Height  uint16 `json:"height"`
}

// Addresses returns every address of the block, trigger first.
func (r RegisterBlock) Addresses() []uint16 {
	return []uint16{r.Trigger, r.Class, r.XOffset, r.YOffset, r.RAngle, r.Height}
}

// GeometryContiguous reports whether x/y/r/height form an ascending run,
// which the block write to the controller requires.
func (r RegisterBlock) GeometryContiguous() bool {
	return r.YOffset == r.XOffset+1 &&
		r.RAngle == r.XOffset+2 &&
		r.Height == r.XOffset+3
}

type CameraConfig struct {
	ID        int           `json:"id"`
	Name      string        `json:"name"`
	IP        string        `json:"ip"`
	PixelToMM float64       `json:"pixel_to_mm,omitempty"`
	Registers RegisterBlock `json:"registers"`
}

// CameraMap is the parsed cameras file.
type CameraMap struct {
	Cameras []CameraConfig `json:"cameras"`
}

// TriggerValues are the handshake codes written to a camera's trigger
// register. The controller raises Ready, the PC answers Processing and then
// ImageReady, and the controller resets the register to zero after it has
// consumed the results.
type TriggerValues struct {
	Ready      uint16 `mapstructure:"ready" json:"ready" yaml:"ready"`
	Processing uint16 `mapstructure:"processing" json:"processing" yaml:"processing"`
	ImageReady uint16 `mapstructure:"image_ready" json:"image_ready" yaml:"image_ready"`
}

// Validate enforces the handshake ordering Ready < Processing < ImageReady.
func (t TriggerValues) Validate() error {
	if !(t.Ready < t.Processing && t.Processing < t.ImageReady) {
		return fmt.Errorf("trigger values must be strictly increasing: ready=%d processing=%d image_ready=%d",
			t.Ready, t.Processing, t.ImageReady)
	}
	return nil
}

// ClassValues are the outcome codes written to the classification register.
type ClassValues struct {
	Unknown  uint16 `mapstructure:"unknown" json:"unknown" yaml:"unknown"`
	Cuttable uint16 `mapstructure:"cuttable" json:"cuttable" yaml:"cuttable"`
	Reserved uint16 `mapstructure:"reserved" json:"reserved" yaml:"reserved"`
}

func (c ClassValues) Validate() error {
	if c.Unknown == c.Cuttable || c.Unknown == c.Reserved || c.Cuttable == c.Reserved {
		return fmt.Errorf("class values must be distinct: unknown=%d cuttable=%d reserved=%d",
			c.Unknown, c.Cuttable, c.Reserved)
	}
	return nil
}
