// Package resample re-expresses a toolpath as points evenly spaced by arc
// length, one point per animation frame.
package resample

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"gcode-anim/pkg/errors"
	"gcode-anim/pkg/gcode"
)

// tolerance is the relative slack under which a segment that falls just
// short of the next sample still produces it. Without it, rounding in
// segment lengths makes resampling an evenly spaced path drop its last
// point.
const tolerance = 1e-9

// MaxSamples bounds path length over d, and so the samples one path may
// produce. A distance so small that the path would exceed it is rejected
// as a configuration error.
const MaxSamples = 10_000_000

// Sampler walks a polyline and produces one point every d units of arc
// length. The first point of the polyline is always produced first; a
// tail shorter than d is dropped.
type Sampler struct {
	path []r3.Vec
	d    float64

	// cursor
	prev    r3.Vec
	index   int
	slack   float64
	started bool
	done    bool
}

// NewSampler validates the inputs and returns a sampler positioned at the
// start of path. It fails with a configuration error if d is not a
// positive finite number, path has fewer than two points, or the path
// is longer than MaxSamples*d.
func NewSampler(path []r3.Vec, d float64) (*Sampler, error) {
	if err := CheckDistance(d); err != nil {
		return nil, err
	}
	if len(path) < 2 {
		return nil, errors.ConfigurationError(fmt.Sprintf("path needs at least 2 points, got %d", len(path)))
	}
	if length := PathLength(path); !(length/d <= MaxSamples) {
		return nil, errors.ConfigurationError(fmt.Sprintf(
			"path of length %g needs more than %d samples at distance %g", length, MaxSamples, d))
	}
	return &Sampler{
		path:  path,
		d:     d,
		prev:  path[0],
		index: 1,
	}, nil
}

// CheckDistance reports a configuration error unless d is a positive
// finite sampling distance.
func CheckDistance(d float64) error {
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return errors.ConfigurationError(fmt.Sprintf("sampling distance must be positive, got %g", d))
	}
	return nil
}

// Next returns the next sample, or false once the path is exhausted.
func (s *Sampler) Next() (r3.Vec, bool) {
	if !s.started {
		s.started = true
		return s.path[0], true
	}
	last := len(s.path) - 1
	for !s.done {
		target := s.path[s.index]
		segLen := r3.Norm(r3.Sub(target, s.prev))
		need := s.d - s.slack

		if segLen < need-tolerance*s.d {
			s.slack += segLen
			if s.index == last {
				s.done = true
				break
			}
			s.prev = target
			s.index++
			continue
		}

		var p r3.Vec
		if segLen <= need {
			p = target
		} else {
			p = r3.Add(s.prev, r3.Scale(need/segLen, r3.Sub(target, s.prev)))
		}
		s.slack = 0
		s.prev = p
		return p, true
	}
	return r3.Vec{}, false
}

// Resample returns every sample of path at spacing d.
func Resample(path []r3.Vec, d float64) ([]r3.Vec, error) {
	s, err := NewSampler(path, d)
	if err != nil {
		return nil, err
	}
	out := make([]r3.Vec, 0, ExpectedSamples(PathLength(path), d))
	for p, ok := s.Next(); ok; p, ok = s.Next() {
		out = append(out, p)
	}
	return out, nil
}

// Points projects a raw path onto its XYZ coordinates. Feed rate is not
// resampled.
func Points(raw gcode.Path) []r3.Vec {
	out := make([]r3.Vec, len(raw))
	for i, p := range raw {
		out[i] = r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
	}
	return out
}

// ResamplePath resamples a raw G-code path.
func ResamplePath(raw gcode.Path, d float64) ([]r3.Vec, error) {
	return Resample(Points(raw), d)
}

// PathLength returns the total length of the polyline.
func PathLength(path []r3.Vec) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += r3.Norm(r3.Sub(path[i], path[i-1]))
	}
	return total
}

// ExpectedSamples is the number of samples a path of the given length
// yields at spacing d, capped at MaxSamples.
func ExpectedSamples(length, d float64) int {
	if !(d > 0) || !(length >= 0) {
		return 0
	}
	n := math.Floor(length / d * (1 + tolerance))
	if !(n < MaxSamples) {
		return MaxSamples
	}
	return int(n) + 1
}
