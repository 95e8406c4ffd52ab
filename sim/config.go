// CarConfig holds the run configuration for the vehicle model: physics
// parameters, sensor layout, and timing limits. A subset of fields is
// topology-affecting (changes the controller input arity) and is locked once
// a population exists; see sim/training's ConfigBridge.

package sim

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// CarConfig groups car physics parameters, sensor layout, and timing limits.
// Loaded from the [car] section of an INI file.
type CarConfig struct {
	Name          string  `ini:"name"`
	MaxSpeed      float64 `ini:"max_speed"`      // speed units; 1 unit = 20 px/sec on track
	Acceleration  float64 `ini:"acceleration"`   // speed units per second
	BrakeForce    float64 `ini:"brake_force"`    // speed units per second
	RotationSpeed float64 `ini:"rotation_speed"` // radians per second at full steering
	DriftEnabled  bool    `ini:"drift_enabled"`  // adds the drift angle controller input
	Grip          float64 `ini:"grip"`           // velocity-heading blend factor, (0,1]
	RayCount      int     `ini:"ray_count"`
	RayLength     float64 `ini:"ray_length"`       // max ray distance in pixels
	RaySpread     float64 `ini:"ray_spread_angle"` // total fan in degrees
	MaxTicks      int     `ini:"max_ticks"`        // generation length
	StallTimeout  int     `ini:"stall_timeout"`    // ticks without a gate before timeout

	// RayAngles are the ray offsets in radians relative to the car heading.
	// Derived from RayCount and RaySpread unless the config file lists
	// explicit angles, in which case the list wins and RayCount follows it.
	RayAngles []float64 `ini:"-"`
}

// DefaultCarConfig returns the configuration the reference car ships with.
func DefaultCarConfig() CarConfig {
	c := CarConfig{
		Name:          "MyCar",
		MaxSpeed:      10.0,
		Acceleration:  0.5,
		BrakeForce:    0.8,
		RotationSpeed: 4.0,
		DriftEnabled:  false,
		Grip:          0.7,
		RayCount:      5,
		RayLength:     200.0,
		RaySpread:     180.0,
		MaxTicks:      2000,
		StallTimeout:  200,
	}
	c.ComputeRayAngles()
	return c
}

// ComputeRayAngles derives RayAngles as an even fan of RayCount rays over
// RaySpread degrees, centered on the heading.
func (c *CarConfig) ComputeRayAngles() {
	if c.RayCount <= 1 {
		c.RayCount = 1
		c.RayAngles = []float64{0}
		return
	}
	half := c.RaySpread * math.Pi / 180 / 2
	step := 2 * half / float64(c.RayCount-1)
	c.RayAngles = make([]float64, c.RayCount)
	for i := range c.RayAngles {
		c.RayAngles[i] = -half + float64(i)*step
	}
}

// NumInputs is the controller input arity: one input per ray plus normalized
// speed, heading, and throttle state, plus the drift angle when drift is on.
func (c *CarConfig) NumInputs() int {
	base := len(c.RayAngles) + 3
	if c.DriftEnabled {
		base++
	}
	return base
}

// TopologyCompatible reports whether a population evolved under c can run
// under other: the ray count and the drift toggle both change NumInputs.
func (c *CarConfig) TopologyCompatible(other *CarConfig) bool {
	return len(c.RayAngles) == len(other.RayAngles) && c.DriftEnabled == other.DriftEnabled
}

// LoadCarConfig reads a CarConfig from the [car] section of an INI file.
// Missing keys fall back to defaults. An explicit ray_angles list (comma
// separated degrees) overrides ray_count and ray_spread_angle.
func LoadCarConfig(path string) (CarConfig, error) {
	c := DefaultCarConfig()
	f, err := ini.Load(path)
	if err != nil {
		return c, fmt.Errorf("failed to load car config %q: %w", path, err)
	}
	sec := f.Section("car")
	if err := sec.MapTo(&c); err != nil {
		return c, fmt.Errorf("failed to map car config: %w", err)
	}
	if sec.HasKey("ray_angles") {
		angles, err := ParseRayAngles(sec.Key("ray_angles").String())
		if err != nil {
			return c, err
		}
		c.RayAngles = angles
		c.RayCount = len(angles)
	} else {
		c.ComputeRayAngles()
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// SaveCarConfig writes the configuration back to an INI file, with explicit
// ray angles so the file round-trips regardless of how the fan was specified.
func SaveCarConfig(path string, c CarConfig) error {
	f := ini.Empty()
	sec, err := f.NewSection("car")
	if err != nil {
		return err
	}
	if err := sec.ReflectFrom(&c); err != nil {
		return fmt.Errorf("failed to serialize car config: %w", err)
	}
	sec.Key("ray_angles").SetValue(FormatRayAngles(c.RayAngles))
	if err := f.SaveTo(path); err != nil {
		return fmt.Errorf("failed to write car config %q: %w", path, err)
	}
	return nil
}

// ParseRayAngles parses a comma-separated list of ray angles in degrees into
// radians.
func ParseRayAngles(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	angles := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		deg, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ray angle %q: %w", p, err)
		}
		angles = append(angles, deg*math.Pi/180)
	}
	if len(angles) == 0 {
		return nil, fmt.Errorf("ray_angles list is empty")
	}
	return angles, nil
}

// FormatRayAngles renders ray angles as the comma-separated degree list the
// config surface exposes.
func FormatRayAngles(angles []float64) string {
	parts := make([]string, len(angles))
	for i, a := range angles {
		parts[i] = strconv.FormatFloat(a*180/math.Pi, 'f', 1, 64)
	}
	return strings.Join(parts, ", ")
}

// Validate checks the numeric guards the simulation relies on. These are
// construction-time invariants, not runtime errors: batch stepping divides by
// MaxSpeed and Acceleration and never re-checks them.
func (c *CarConfig) Validate() error {
	if c.MaxSpeed <= 0 {
		return fmt.Errorf("config error: max_speed must be positive")
	}
	if c.Acceleration <= 0 {
		return fmt.Errorf("config error: acceleration must be positive")
	}
	if c.BrakeForce <= 0 {
		return fmt.Errorf("config error: brake_force must be positive")
	}
	if c.RotationSpeed < 0 {
		return fmt.Errorf("config error: rotation_speed cannot be negative")
	}
	if c.Grip <= 0 || c.Grip > 1 {
		return fmt.Errorf("config error: grip must be in (0, 1]")
	}
	if len(c.RayAngles) == 0 {
		return fmt.Errorf("config error: at least one sensor ray is required")
	}
	if c.RayLength <= 0 {
		return fmt.Errorf("config error: ray_length must be positive")
	}
	if c.MaxTicks <= 0 {
		return fmt.Errorf("config error: max_ticks must be positive")
	}
	if c.StallTimeout <= 0 {
		return fmt.Errorf("config error: stall_timeout must be positive")
	}
	return nil
}
