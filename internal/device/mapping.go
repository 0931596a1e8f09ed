package device

import (
	"fmt"
	"sync"

	"github.com/soar/ControllerSync/internal/calibration"
)

// AxisMapping names a raw axis index.
type AxisMapping struct {
	Index     int32
	Target    string // "left_x", "left_y", "right_x", "right_y", "lt", "rt"
	IsTrigger bool
}

// ButtonMapping names a raw button index.
type ButtonMapping struct {
	Index  int32
	Target string // "a", "b", "x", "y", "lb", "rb", "select", "start", "home", "l3", "r3"
}

// Mapping holds the control names of a specific device type.
type Mapping struct {
	Name    string
	Axes    []AxisMapping
	Buttons []ButtonMapping
	HasHat  bool
}

// ControlName returns the mapped name of a control, or the generic
// "Axis0"/"Button3" form for indices the mapping does not know.
func (m *Mapping) ControlName(id calibration.ControlID) string {
	switch id.Kind {
	case calibration.KindAxis:
		for _, am := range m.Axes {
			if int(am.Index) == id.Index {
				return am.Target
			}
		}
	case calibration.KindButton:
		for _, bm := range m.Buttons {
			if int(bm.Index) == id.Index {
				return bm.Target
			}
		}
	case calibration.KindHat:
		if m.HasHat && id.Index == 0 {
			return "dpad"
		}
	}
	return id.String()
}

// Built-in mappings for common controllers.

var xboxMapping = &Mapping{
	Name: "xbox",
	Axes: []AxisMapping{
		{Index: 0, Target: "left_x"},
		{Index: 1, Target: "left_y"},
		{Index: 2, Target: "right_x"},
		{Index: 3, Target: "right_y"},
		{Index: 4, Target: "lt", IsTrigger: true},
		{Index: 5, Target: "rt", IsTrigger: true},
	},
	Buttons: []ButtonMapping{
		{Index: 0, Target: "a"},
		{Index: 1, Target: "b"},
		{Index: 2, Target: "x"},
		{Index: 3, Target: "y"},
		{Index: 4, Target: "lb"},
		{Index: 5, Target: "rb"},
		{Index: 6, Target: "select"},
		{Index: 7, Target: "start"},
		{Index: 8, Target: "l3"},
		{Index: 9, Target: "r3"},
		{Index: 10, Target: "home"},
	},
	HasHat: true,
}

var playstationMapping = &Mapping{
	Name: "playstation",
	Axes: []AxisMapping{
		{Index: 0, Target: "left_x"},
		{Index: 1, Target: "left_y"},
		{Index: 2, Target: "right_x"},
		{Index: 3, Target: "right_y"},
		{Index: 4, Target: "lt", IsTrigger: true},
		{Index: 5, Target: "rt", IsTrigger: true},
	},
	Buttons: []ButtonMapping{
		{Index: 0, Target: "a"},      // Cross (×)
		{Index: 1, Target: "b"},      // Circle (○)
		{Index: 2, Target: "x"},      // Square (□)
		{Index: 3, Target: "y"},      // Triangle (△)
		{Index: 4, Target: "select"}, // Share / Create
		{Index: 5, Target: "home"},   // PS button
		{Index: 6, Target: "start"},  // Options
		{Index: 7, Target: "l3"},
		{Index: 8, Target: "r3"},
		{Index: 9, Target: "lb"},     // L1
		{Index: 10, Target: "rb"},    // R1
	},
	HasHat: true,
}

var switchProMapping = &Mapping{
	Name: "switch_pro",
	Axes: []AxisMapping{
		{Index: 0, Target: "left_x"},
		{Index: 1, Target: "left_y"},
		{Index: 2, Target: "right_x"},
		{Index: 3, Target: "right_y"},
	},
	Buttons: []ButtonMapping{
		{Index: 0, Target: "a"},
		{Index: 1, Target: "b"},
		{Index: 2, Target: "x"},
		{Index: 3, Target: "y"},
		{Index: 4, Target: "lb"},
		{Index: 5, Target: "rb"},
		{Index: 6, Target: "select"},
		{Index: 7, Target: "start"},
		{Index: 8, Target: "l3"},
		{Index: 9, Target: "r3"},
		{Index: 10, Target: "home"},
	},
	HasHat: true,
}

var genericMapping = &Mapping{
	Name: "generic",
	Axes: []AxisMapping{
		{Index: 0, Target: "left_x"},
		{Index: 1, Target: "left_y"},
		{Index: 2, Target: "right_x"},
		{Index: 3, Target: "right_y"},
		{Index: 4, Target: "lt", IsTrigger: true},
		{Index: 5, Target: "rt", IsTrigger: true},
	},
	Buttons: []ButtonMapping{
		{Index: 0, Target: "a"},
		{Index: 1, Target: "b"},
		{Index: 2, Target: "x"},
		{Index: 3, Target: "y"},
		{Index: 4, Target: "lb"},
		{Index: 5, Target: "rb"},
		{Index: 6, Target: "select"},
		{Index: 7, Target: "start"},
		{Index: 8, Target: "l3"},
		{Index: 9, Target: "r3"},
		{Index: 10, Target: "home"},
	},
	HasHat: true,
}

// Known vendor/product IDs.
type deviceKey struct {
	VendorID  uint16
	ProductID uint16
}

var knownDevices = map[deviceKey]*Mapping{
	// Microsoft Xbox controllers
	{0x045E, 0x028E}: xboxMapping, // Xbox 360
	{0x045E, 0x02FF}: xboxMapping, // Xbox One
	{0x045E, 0x0B12}: xboxMapping, // Xbox Series X|S
	{0x045E, 0x0B13}: xboxMapping, // Xbox Series X|S (wireless)
	// Sony PlayStation controllers
	{0x054C, 0x0CE6}: playstationMapping, // DualSense
	{0x054C, 0x09CC}: playstationMapping, // DualShock 4 v2
	{0x054C, 0x05C4}: playstationMapping, // DualShock 4 v1
	// Nintendo Switch Pro Controller
	{0x057E, 0x2009}: switchProMapping,
}

// GetMapping returns the appropriate mapping for a device identified by vendor/product ID.
// Falls back to generic mapping if no specific mapping is found.
func GetMapping(vendorID, productID uint16) *Mapping {
	key := deviceKey{VendorID: vendorID, ProductID: productID}
	if m, ok := knownDevices[key]; ok {
		return m
	}
	return genericMapping
}

// ID formats the identifier used for a device model.
func ID(vendorID, productID uint16) string {
	return fmt.Sprintf("%04x:%04x", vendorID, productID)
}

// Registry tracks the mapping of every connected device. Its Name method is
// used as the calibration engine's namer.
type Registry struct {
	mu       sync.RWMutex
	mappings map[string]*Mapping
}

func NewRegistry() *Registry {
	return &Registry{mappings: make(map[string]*Mapping)}
}

// Add records the mapping for a device.
func (r *Registry) Add(deviceID string, m *Mapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings[deviceID] = m
}

// Remove forgets a device.
func (r *Registry) Remove(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.mappings, deviceID)
}

// Mapping returns the mapping of a device, or the generic mapping for
// devices that were never added.
func (r *Registry) Mapping(deviceID string) *Mapping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.mappings[deviceID]; ok {
		return m
	}
	return genericMapping
}

// Name returns the control name of a device control.
func (r *Registry) Name(deviceID string, id calibration.ControlID) string {
	return r.Mapping(deviceID).ControlName(id)
}
