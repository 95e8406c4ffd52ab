// ConfigBridge: the flat external view of the run configuration, the
// per-field metadata contract used for form generation, and the topology
// validation applied before a resume or a live reconfiguration.

package training

import (
	"fmt"
	"strings"

	"github.com/neatrace/neatrace/sim"
)

// FieldMeta describes one configurable field of the run configuration.
// The enumeration is a contract with the presentation layer: it drives form
// generation and resume validation.
type FieldMeta struct {
	Key            string  `json:"key"`
	Type           string  `json:"type"` // "float", "int", "bool", "string"
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	ResumeSafe     bool    `json:"resume_safe"`
	TopologyImpact bool    `json:"topology_impact"`
	Warning        string  `json:"warning,omitempty"`
}

// ConfigFields enumerates the metadata for every CarConfig field.
// Topology-impacting fields change the controller input arity and are locked
// once a population exists.
func ConfigFields() []FieldMeta {
	return []FieldMeta{
		{Key: "name", Type: "string", ResumeSafe: true},
		{Key: "max_speed", Type: "float", Min: 0.1, Max: 100, ResumeSafe: true},
		{Key: "acceleration", Type: "float", Min: 0.01, Max: 50, ResumeSafe: true},
		{Key: "brake_force", Type: "float", Min: 0.01, Max: 50, ResumeSafe: true},
		{Key: "rotation_speed", Type: "float", Min: 0, Max: 20, ResumeSafe: true},
		{Key: "drift_enabled", Type: "bool", ResumeSafe: false, TopologyImpact: true},
		{Key: "grip", Type: "float", Min: 0.01, Max: 1, ResumeSafe: true},
		{Key: "ray_angles", Type: "string", ResumeSafe: false, TopologyImpact: true},
		{Key: "ray_length", Type: "float", Min: 1, Max: 2000, ResumeSafe: true,
			Warning: "changing sensor range mid-training may degrade performance"},
		{Key: "max_ticks", Type: "int", Min: 1, Max: 1e6, ResumeSafe: true},
		{Key: "stall_timeout", Type: "int", Min: 1, Max: 1e6, ResumeSafe: true},
	}
}

// TopologyMismatchError lists the topology-affecting fields that differ
// between a new configuration and the one a population was evolved under.
type TopologyMismatchError struct {
	Fields []string
}

func (e *TopologyMismatchError) Error() string {
	return fmt.Sprintf("config changes network topology, mismatched fields: %s",
		strings.Join(e.Fields, ", "))
}

// ValidateForResume compares every topology-affecting field of newCfg
// against the configuration recorded when the population was created.
// Returns a *TopologyMismatchError naming each mismatch, or nil when the
// population can run under newCfg. Neither config is mutated.
func ValidateForResume(newCfg, oldCfg *sim.CarConfig) error {
	var mismatched []string
	if len(newCfg.RayAngles) != len(oldCfg.RayAngles) {
		mismatched = append(mismatched, "ray_angles")
	}
	if newCfg.DriftEnabled != oldCfg.DriftEnabled {
		mismatched = append(mismatched, "drift_enabled")
	}
	if len(mismatched) > 0 {
		return &TopologyMismatchError{Fields: mismatched}
	}
	return nil
}

// ResumeWarnings reports non-fatal differences worth surfacing before a
// resume: the run will work, but evolved behavior may degrade.
func ResumeWarnings(newCfg, oldCfg *sim.CarConfig) []string {
	var warnings []string
	if newCfg.RayLength != oldCfg.RayLength {
		warnings = append(warnings, "changing sensor range mid-training may degrade performance")
	}
	if len(newCfg.RayAngles) == len(oldCfg.RayAngles) {
		for i := range newCfg.RayAngles {
			if newCfg.RayAngles[i] != oldCfg.RayAngles[i] {
				warnings = append(warnings, "changing ray angles mid-training may degrade performance")
				break
			}
		}
	}
	return warnings
}

// ConfigToMap renders the structured config in its flat external
// representation, keyed exactly as ConfigFields enumerates.
func ConfigToMap(c *sim.CarConfig) map[string]any {
	return map[string]any{
		"name":           c.Name,
		"max_speed":      c.MaxSpeed,
		"acceleration":   c.Acceleration,
		"brake_force":    c.BrakeForce,
		"rotation_speed": c.RotationSpeed,
		"drift_enabled":  c.DriftEnabled,
		"grip":           c.Grip,
		"ray_angles":     sim.FormatRayAngles(c.RayAngles),
		"ray_length":     c.RayLength,
		"max_ticks":      c.MaxTicks,
		"stall_timeout":  c.StallTimeout,
	}
}

// ConfigFromMap applies a flat external representation onto a copy of base
// and validates the result. base is not mutated; on error no config is
// returned.
func ConfigFromMap(base sim.CarConfig, values map[string]any) (sim.CarConfig, error) {
	c := base
	for key, val := range values {
		if err := applyField(&c, key, val); err != nil {
			return sim.CarConfig{}, err
		}
	}
	if err := c.Validate(); err != nil {
		return sim.CarConfig{}, err
	}
	return c, nil
}

func applyField(c *sim.CarConfig, key string, val any) error {
	switch key {
	case "name":
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("config field %q: expected string, got %T", key, val)
		}
		c.Name = s
	case "max_speed":
		return setFloat(&c.MaxSpeed, key, val)
	case "acceleration":
		return setFloat(&c.Acceleration, key, val)
	case "brake_force":
		return setFloat(&c.BrakeForce, key, val)
	case "rotation_speed":
		return setFloat(&c.RotationSpeed, key, val)
	case "drift_enabled":
		b, ok := val.(bool)
		if !ok {
			return fmt.Errorf("config field %q: expected bool, got %T", key, val)
		}
		c.DriftEnabled = b
	case "grip":
		return setFloat(&c.Grip, key, val)
	case "ray_angles":
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("config field %q: expected string, got %T", key, val)
		}
		angles, err := sim.ParseRayAngles(s)
		if err != nil {
			return err
		}
		c.RayAngles = angles
		c.RayCount = len(angles)
	case "ray_length":
		return setFloat(&c.RayLength, key, val)
	case "max_ticks":
		return setInt(&c.MaxTicks, key, val)
	case "stall_timeout":
		return setInt(&c.StallTimeout, key, val)
	default:
		return fmt.Errorf("unknown config field %q", key)
	}
	return nil
}

func setFloat(dst *float64, key string, val any) error {
	switch n := val.(type) {
	case float64:
		*dst = n
	case int:
		*dst = float64(n)
	default:
		return fmt.Errorf("config field %q: expected number, got %T", key, val)
	}
	return nil
}

func setInt(dst *int, key string, val any) error {
	switch n := val.(type) {
	case int:
		*dst = n
	case float64:
		*dst = int(n)
	default:
		return fmt.Errorf("config field %q: expected integer, got %T", key, val)
	}
	return nil
}
