package gcode

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// axisWords are the words read from a linear move, in scan order.
var axisWords = [...]byte{'X', 'Y', 'Z', 'F'}

// ParseWarning records an axis word whose value could not be parsed. The
// axis keeps its previous value.
type ParseWarning struct {
	Line  int    // 1-based line number
	Axis  byte   // X, Y, Z or F
	Token string // offending text, empty if nothing followed the letter
}

func (w ParseWarning) String() string {
	return fmt.Sprintf("line %d: unparsable %c value %q", w.Line, w.Axis, w.Token)
}

// Stats counts what the parser has seen.
type Stats struct {
	Lines       int
	MotionLines int
	Skipped     int
}

// Parser converts G0/G1 lines to absolute positions with modal carry-over:
// an axis not named on a line keeps its previous value.
//
// Parsing never fails. Malformed axis values are skipped and reported
// through OnWarning when it is set.
type Parser struct {
	OnWarning func(ParseWarning)

	state Position
	path  Path
	stats Stats
}

// NewParser returns a parser positioned at Origin.
func NewParser() *Parser {
	return &Parser{path: Path{Origin}}
}

// IsMotion reports whether line is a linear move (G0 or G1 prefix after
// trimming). The match is case-sensitive.
func IsMotion(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "G0") || strings.HasPrefix(line, "G1")
}

// Feed processes one program line. For a motion line it returns the new
// position and true; any other line is ignored.
func (p *Parser) Feed(line string) (Position, bool) {
	p.stats.Lines++
	if !IsMotion(line) {
		return Position{}, false
	}
	p.stats.MotionLines++

	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	for _, axis := range axisWords {
		i := strings.IndexByte(line, axis)
		if i < 0 {
			continue
		}
		v, token, ok := leadingNumber(line[i+1:])
		if !ok {
			p.stats.Skipped++
			if p.OnWarning != nil {
				p.OnWarning(ParseWarning{Line: p.stats.Lines, Axis: axis, Token: token})
			}
			continue
		}
		p.state.set(axis, v)
	}

	p.path = append(p.path, p.state)
	return p.state, true
}

// leadingNumber parses the first whitespace-delimited token of s.
// Non-finite values are rejected.
func leadingNumber(s string) (float64, string, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, "", false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fields[0], false
	}
	return v, fields[0], true
}

// Position returns the current modal state.
func (p *Parser) Position() Position {
	return p.state
}

// Stats returns line counters.
func (p *Parser) Stats() Stats {
	return p.stats
}

// Path returns a copy of the positions recorded so far.
func (p *Parser) Path() Path {
	out := make(Path, len(p.path))
	copy(out, p.path)
	return out
}

// ParseReader feeds every line of r without holding the program in memory.
func (p *Parser) ParseReader(r io.Reader) (Path, error) {
	lr := NewLineReader(r)
	for lr.Next() {
		p.Feed(lr.Line())
	}
	if err := lr.Err(); err != nil {
		return p.Path(), err
	}
	return p.Path(), nil
}

// ParseLines returns the raw path of a program.
func ParseLines(lines []string) Path {
	p := NewParser()
	for _, line := range lines {
		p.Feed(line)
	}
	return p.Path()
}
