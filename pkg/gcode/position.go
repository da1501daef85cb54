// Package gcode reads G-code programs and reduces their linear moves to an
// ordered path of absolute machine positions.
package gcode

import "fmt"

// Position is the absolute machine state after one motion command:
// X, Y, Z in program units (mm) and the modal feed rate F.
type Position struct {
	X, Y, Z, F float64
}

// Origin is the implicit state before the first motion line.
var Origin = Position{}

// String returns the position in G-code word order.
func (p Position) String() string {
	return fmt.Sprintf("X%g Y%g Z%g F%g", p.X, p.Y, p.Z, p.F)
}

// set overwrites the field named by a G-code axis letter.
func (p *Position) set(axis byte, v float64) {
	switch axis {
	case 'X':
		p.X = v
	case 'Y':
		p.Y = v
	case 'Z':
		p.Z = v
	case 'F':
		p.F = v
	}
}

// Path is the raw toolpath: Origin followed by one Position per executed
// G0/G1 line, in execution order. A Path returned by the parser always
// holds at least one element.
type Path []Position
