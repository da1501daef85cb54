// Package axismap converts resampled tool positions into per-axis scene
// values, one record per animation frame.
package axismap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"gcode-anim/pkg/errors"
)

// DefaultUnitFactor converts millimetres to scene metres.
const DefaultUnitFactor = 1.0 / 1000

// Axis describes the travel limits of one machine axis in scene units.
type Axis struct {
	Home     float64 // lower travel limit, the scene value of raw 0
	MaxReach float64 // upper travel limit
	Invert   bool    // raw travel moves the axis down from MaxReach
}

// Value maps a raw coordinate to a scene value.
func (a Axis) Value(raw, unitFactor float64) float64 {
	if a.Invert {
		return a.MaxReach - raw*unitFactor
	}
	return raw*unitFactor + a.Home
}

// Options holds the per-axis limits and the raw-to-scene unit factor.
// A zero UnitFactor selects DefaultUnitFactor.
type Options struct {
	X, Y, Z    Axis
	UnitFactor float64
}

// DefaultOptions returns the limits of a rig whose vertical axis is the
// inverted one.
func DefaultOptions() Options {
	return Options{
		Z:          Axis{Invert: true},
		UnitFactor: DefaultUnitFactor,
	}
}

// Validate rejects a negative or non-finite unit factor and non-finite
// axis limits.
func (o Options) Validate() error {
	u := o.UnitFactor
	if math.IsNaN(u) || math.IsInf(u, 0) || u < 0 {
		return errors.ConfigurationError(fmt.Sprintf("unit factor must be a non-negative finite number, got %g", u))
	}
	for _, a := range []struct {
		name string
		axis Axis
	}{{"x", o.X}, {"y", o.Y}, {"z", o.Z}} {
		for _, v := range []float64{a.axis.Home, a.axis.MaxReach} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.ConfigurationError(fmt.Sprintf("axis %s limits must be finite", a.name))
			}
		}
	}
	return nil
}

func (o Options) unitFactor() float64 {
	if o.UnitFactor == 0 {
		return DefaultUnitFactor
	}
	return o.UnitFactor
}

// Record is one animation frame: a 1-based frame index and the scene value
// of each axis.
type Record struct {
	Frame int     `json:"frame"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

// Map converts one resampled point to the record for frame.
func (o Options) Map(frame int, p r3.Vec) Record {
	u := o.unitFactor()
	return Record{
		Frame: frame,
		X:     o.X.Value(p.X, u),
		Y:     o.Y.Value(p.Y, u),
		Z:     o.Z.Value(p.Z, u),
	}
}

// MapFrames maps every point of a resampled path, numbering frames from 1.
// The animation's end frame is len(result).
func MapFrames(path []r3.Vec, opts Options) []Record {
	out := make([]Record, len(path))
	for i, p := range path {
		out[i] = opts.Map(i+1, p)
	}
	return out
}
