package cameras

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hzvision/cutvision/internal/types"
)

// Load reads and validates the camera register map. Any violation here is a
// fatal configuration error: workers must never start on a map where two
// cameras could talk over each other's registers.
func Load(path string) (*types.CameraMap, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("camera map not found: %w", err)
	}

	if err := validator.ValidateMap(data); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", path, err)
	}

	var cm types.CameraMap
	if err := json.Unmarshal(data, &cm); err != nil {
		return nil, fmt.Errorf("failed to unmarshal camera map: %w", err)
	}

	if err := ValidateAddresses(&cm); err != nil {
		return nil, err
	}

	return &cm, nil
}

// ValidateAddresses enforces the semantic invariants the JSON schema cannot
// express: unique camera IDs, no register address used twice anywhere across
// all cameras, and a contiguous geometry run so the block write is possible.
func ValidateAddresses(cm *types.CameraMap) error {
	ids := make(map[int]string, len(cm.Cameras))
	owners := make(map[uint16]string)

	for _, cam := range cm.Cameras {
		if prev, dup := ids[cam.ID]; dup {
			return fmt.Errorf("duplicate camera id %d (%s and %s)", cam.ID, prev, cam.Name)
		}
		ids[cam.ID] = cam.Name

		if !cam.Registers.GeometryContiguous() {
			return fmt.Errorf("camera %s: geometry registers must be contiguous ascending from x_offset D%d",
				cam.Name, cam.Registers.XOffset)
		}

		for _, addr := range cam.Registers.Addresses() {
			if owner, taken := owners[addr]; taken {
				return fmt.Errorf("register D%d assigned to both %s and %s", addr, owner, cam.Name)
			}
			owners[addr] = cam.Name
		}
	}

	return nil
}
