package gcode

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseLinesModalCarryOver(t *testing.T) {
	lines := []string{"G1 X10 F50", "G1 Y5", "G1 Z-2 F20"}
	want := Path{
		{0, 0, 0, 0},
		{10, 0, 0, 50},
		{10, 5, 0, 50},
		{10, 5, -2, 20},
	}
	if diff := cmp.Diff(want, ParseLines(lines)); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
}

func TestParseLinesUnparsableToken(t *testing.T) {
	got := ParseLines([]string{"G1 Xabc Y5"})
	want := Path{{0, 0, 0, 0}, {0, 5, 0, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
}

func TestParseLinesOriginOnly(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{"nil", nil},
		{"blank", []string{"", "   "}},
		{"non-motion", []string{"; header", "M104 S200", "G28", "G90", "g1 X5"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseLines(tc.lines)
			if diff := cmp.Diff(Path{Origin}, got); diff != "" {
				t.Errorf("path mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseLinesCommentsAndWhitespace(t *testing.T) {
	lines := []string{
		"  G0 X1.5 Y-2 ; travel Z99",
		"G1\tX3 E0.4 F1200",
		"G1 ; Z only in comment",
		"G1 X 7",
	}
	want := Path{
		{0, 0, 0, 0},
		{1.5, -2, 0, 0},
		{3, -2, 0, 1200},
		{3, -2, 0, 1200},
		{7, -2, 0, 1200},
	}
	if diff := cmp.Diff(want, ParseLines(lines)); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
}

func TestParserWarnings(t *testing.T) {
	var warnings []ParseWarning
	p := NewParser()
	p.OnWarning = func(w ParseWarning) { warnings = append(warnings, w) }

	p.Feed("G1 X10")
	p.Feed("G1 Xabc Y5")
	p.Feed("G1 Z F")
	p.Feed("G1 Ynan")

	want := []ParseWarning{
		{Line: 2, Axis: 'X', Token: "abc"},
		{Line: 3, Axis: 'Z', Token: "F"},
		{Line: 3, Axis: 'F', Token: ""},
		{Line: 4, Axis: 'Y', Token: "nan"},
	}
	if diff := cmp.Diff(want, warnings); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}
	if got := p.Position(); got != (Position{X: 10, Y: 5}) {
		t.Errorf("unexpected state %v", got)
	}
	stats := p.Stats()
	if stats.Lines != 4 || stats.MotionLines != 4 || stats.Skipped != 4 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestParserPathIsCopy(t *testing.T) {
	p := NewParser()
	p.Feed("G1 X1")
	path := p.Path()
	path[1].X = 99
	if p.Path()[1].X != 1 {
		t.Error("Path must return an independent copy")
	}
}

func TestParseReader(t *testing.T) {
	src := "G21\r\nG1 X1 Y2\r\nM400\r\nG1 Z0.3\r\n"
	path, err := NewParser().ParseReader(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseReader: %v", err)
	}
	want := Path{{0, 0, 0, 0}, {1, 2, 0, 0}, {1, 2, 0.3, 0}}
	if diff := cmp.Diff(want, path); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
}

func TestIsMotion(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"G0 X1", true},
		{"G1", true},
		{"  G1 Y2", true},
		{"G10", true},
		{"g1 X1", false},
		{"G2 X1 Y1 I1 J0", false},
		{"; G1 X1", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := IsMotion(tc.line); got != tc.want {
			t.Errorf("IsMotion(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}

func TestPositionString(t *testing.T) {
	p := Position{X: 1.5, Y: -2, Z: 0.2, F: 1800}
	if got := p.String(); got != "X1.5 Y-2 Z0.2 F1800" {
		t.Errorf("unexpected %q", got)
	}
}
