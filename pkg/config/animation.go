package config

import (
	"gcode-anim/pkg/axismap"
)

// DefaultDistancePerFrame is the path length covered by one frame when the
// configuration does not set one, in program units.
const DefaultDistancePerFrame = 100.0

// Animation is the configuration surface of the motion-path pipeline.
//
//	[animation]
//	distance_per_frame: 2.5   # raw units of travel per frame
//	unit_factor: 0.001        # raw units -> scene units
//
//	[axis_z]
//	home: 0.0                 # scene value of raw 0 (non-inverted axes)
//	max_reach: 0.3            # upper travel limit
//	invert: true
type Animation struct {
	DistancePerFrame float64
	Axes             axismap.Options

	// Unused lists "section.option" for options in the sections above
	// that were not recognised. Other sections are left alone.
	Unused []string
}

// DefaultAnimation returns the settings used when no file is given.
func DefaultAnimation() Animation {
	return Animation{
		DistancePerFrame: DefaultDistancePerFrame,
		Axes:             axismap.DefaultOptions(),
	}
}

// LoadAnimation reads the [animation] and [axis_x|y|z] sections. Missing
// sections and options keep their defaults.
func LoadAnimation(c *Config) (Animation, error) {
	anim := DefaultAnimation()
	zero := 0.0
	var read []*Section

	if sec := c.GetSectionOptional("animation"); sec != nil {
		read = append(read, sec)
		d, err := sec.GetFloatWithBounds("distance_per_frame", FloatBounds{Above: &zero}, anim.DistancePerFrame)
		if err != nil {
			return anim, err
		}
		unit, err := sec.GetFloatWithBounds("unit_factor", FloatBounds{Above: &zero}, anim.Axes.UnitFactor)
		if err != nil {
			return anim, err
		}
		anim.DistancePerFrame = d
		anim.Axes.UnitFactor = unit
	}

	axes := []struct {
		section string
		axis    *axismap.Axis
	}{
		{"axis_x", &anim.Axes.X},
		{"axis_y", &anim.Axes.Y},
		{"axis_z", &anim.Axes.Z},
	}
	for _, a := range axes {
		sec := c.GetSectionOptional(a.section)
		if sec == nil {
			continue
		}
		read = append(read, sec)
		if err := loadAxis(sec, a.axis); err != nil {
			return anim, err
		}
	}

	for _, sec := range read {
		for _, opt := range sec.GetUnusedOptions() {
			anim.Unused = append(anim.Unused, sec.GetName()+"."+opt)
		}
	}
	return anim, nil
}

func loadAxis(sec *Section, axis *axismap.Axis) error {
	home, err := sec.GetFloat("home", axis.Home)
	if err != nil {
		return err
	}
	maxReach, err := sec.GetFloatWithBounds("max_reach", FloatBounds{MinVal: &home}, max(axis.MaxReach, home))
	if err != nil {
		return err
	}
	invert, err := sec.GetBool("invert", axis.Invert)
	if err != nil {
		return err
	}
	*axis = axismap.Axis{Home: home, MaxReach: maxReach, Invert: invert}
	return nil
}

// LoadAnimationFile loads the animation settings from a file.
func LoadAnimationFile(path string) (Animation, error) {
	c, err := Load(path)
	if err != nil {
		return DefaultAnimation(), err
	}
	return LoadAnimation(c)
}
