package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/spatial/r3"

	"gcode-anim/pkg/axismap"
	"gcode-anim/pkg/errors"
	"gcode-anim/pkg/gcode"
	"gcode-anim/pkg/interchange"
	"gcode-anim/pkg/log"
	"gcode-anim/pkg/metrics"
)

const cornerProgram = `; corner
G28
G1 X10 F1500
G1 Y10 ; up
M104 S200
`

func testOptions(buf *bytes.Buffer) Options {
	logger := log.New("pipeline-test")
	logger.SetWriter(buf)
	logger.SetLevel(log.DEBUG)
	return Options{
		DistancePerFrame: 5,
		Axes: axismap.Options{
			X:          axismap.Axis{Home: 0.1, MaxReach: 0.5},
			Y:          axismap.Axis{Home: 0, MaxReach: 0.5},
			Z:          axismap.Axis{Home: 0, MaxReach: 0.3, Invert: true},
			UnitFactor: 0.001,
		},
		Logger:  logger,
		Metrics: metrics.NewPipelineMetrics(),
	}
}

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestRunCorner(t *testing.T) {
	var buf bytes.Buffer
	opts := testOptions(&buf)

	res, err := Run(strings.NewReader(cornerProgram), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantRaw := gcode.Path{
		{},
		{X: 10, F: 1500},
		{X: 10, Y: 10, F: 1500},
	}
	if diff := cmp.Diff(wantRaw, res.Raw); diff != "" {
		t.Errorf("raw path mismatch (-want +got):\n%s", diff)
	}

	wantResampled := []r3.Vec{{}, {X: 5}, {X: 10}, {X: 10, Y: 5}, {X: 10, Y: 10}}
	if diff := cmp.Diff(wantResampled, res.Resampled, approx); diff != "" {
		t.Errorf("resampled mismatch (-want +got):\n%s", diff)
	}

	if res.EndFrame() != len(res.Resampled) {
		t.Errorf("end frame %d != samples %d", res.EndFrame(), len(res.Resampled))
	}
	wantLast := axismap.Record{Frame: 5, X: 0.11, Y: 0.01, Z: 0.3}
	if diff := cmp.Diff(wantLast, res.Frames[4], approx); diff != "" {
		t.Errorf("last frame mismatch (-want +got):\n%s", diff)
	}
	if res.Length != 20 {
		t.Errorf("expected length 20, got %g", res.Length)
	}
	if res.Stats.Lines != 5 || res.Stats.MotionLines != 2 {
		t.Errorf("unexpected stats %+v", res.Stats)
	}

	if got := opts.Metrics.Samples.Get(nil); got != 5 {
		t.Errorf("samples metric = %g, want 5", got)
	}
	if got := opts.Metrics.RunsTotal.Get(nil); got != 1 {
		t.Errorf("runs metric = %g, want 1", got)
	}
	for _, msg := range []string{"parsed program", "resampled path", "mapped frames"} {
		if !strings.Contains(buf.String(), msg) {
			t.Errorf("log missing %q:\n%s", msg, buf.String())
		}
	}
}

func TestRunWarnings(t *testing.T) {
	var buf bytes.Buffer
	opts := testOptions(&buf)
	var seen []gcode.ParseWarning
	opts.OnWarning = func(w gcode.ParseWarning) { seen = append(seen, w) }

	program := "G1 X10\nG1 Xabc Y10\n"
	res, err := Run(strings.NewReader(program), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []gcode.ParseWarning{{Line: 2, Axis: 'X', Token: "abc"}}
	if diff := cmp.Diff(want, res.Warnings); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("callback mismatch (-want +got):\n%s", diff)
	}
	if res.Raw[2].X != 10 || res.Raw[2].Y != 10 {
		t.Errorf("axis X should keep its value: %v", res.Raw[2])
	}
	if !strings.Contains(buf.String(), "skipped unparsable axis value") {
		t.Errorf("warning not logged:\n%s", buf.String())
	}
	if got := opts.Metrics.SkippedTokensTotal.Get(nil); got != 1 {
		t.Errorf("skipped metric = %g, want 1", got)
	}
}

func TestRunConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		program string
		mutate  func(*Options)
	}{
		{"zero distance", cornerProgram, func(o *Options) { o.DistancePerFrame = 0 }},
		{"negative distance", cornerProgram, func(o *Options) { o.DistancePerFrame = -1 }},
		{"bad unit factor", cornerProgram, func(o *Options) { o.Axes.UnitFactor = -0.001 }},
		{"no motion", "M104 S200\n; nothing\n", func(o *Options) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			opts := testOptions(&buf)
			tt.mutate(&opts)

			_, err := Run(strings.NewReader(tt.program), opts)
			if !errors.IsConfiguration(err) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestRunValidatesBeforeReading(t *testing.T) {
	var buf bytes.Buffer
	opts := testOptions(&buf)
	opts.DistancePerFrame = 0

	r := strings.NewReader(cornerProgram)
	if _, err := Run(r, opts); err == nil {
		t.Fatal("expected error")
	}
	if r.Len() != len(cornerProgram) {
		t.Error("input was read before validation")
	}
	if got := opts.Metrics.RunsTotal.Get(nil); got != 0 {
		t.Errorf("rejected options should not count as a run, got %g", got)
	}
}

func TestRunFileAndWrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "part.gcode")
	if err := os.WriteFile(src, []byte(cornerProgram), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	opts := testOptions(&buf)
	res, err := RunFile(src, opts)
	if err != nil {
		t.Fatalf("RunFile: %v", err)
	}

	out := Outputs{
		PathFile:   filepath.Join(dir, "pathout.csv"),
		FramesFile: filepath.Join(dir, "frames.csv"),
	}
	if err := res.Write(out, opts); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(out.PathFile)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), "0,0,0\n5,0,0\n10,0,0\n10,5,0\n10,10,0"; got != want {
		t.Errorf("path file = %q, want %q", got, want)
	}

	f, err := os.Open(out.FramesFile)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	frames, err := interchange.ReadFrames(f)
	if err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if diff := cmp.Diff(res.Frames, frames, approx); diff != "" {
		t.Errorf("frame table mismatch (-want +got):\n%s", diff)
	}
}

func TestRunFileMissing(t *testing.T) {
	var buf bytes.Buffer
	_, err := RunFile(filepath.Join(t.TempDir(), "missing.gcode"), testOptions(&buf))
	if !errors.Is(err, errors.ErrIO) {
		t.Fatalf("expected IO error, got %v", err)
	}
}

func TestRunFileSetsFileOnError(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "empty.gcode")
	if err := os.WriteFile(src, []byte("M84\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	_, err := RunFile(src, testOptions(&buf))
	if err == nil || !strings.Contains(err.Error(), src) {
		t.Fatalf("expected error naming %s, got %v", src, err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	pathFile := filepath.Join(dir, "pathout.csv")
	path := []r3.Vec{{}, {X: 100, Y: 50, Z: 10}}
	if err := interchange.WritePathFile(pathFile, path); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	opts := testOptions(&buf)
	opts.DistancePerFrame = 0
	res, err := Load(pathFile, opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []axismap.Record{
		{Frame: 1, X: 0.1, Y: 0, Z: 0.3},
		{Frame: 2, X: 0.2, Y: 0.05, Z: 0.29},
	}
	if diff := cmp.Diff(want, res.Frames, approx); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFormatError(t *testing.T) {
	dir := t.TempDir()
	pathFile := filepath.Join(dir, "bad.csv")
	if err := os.WriteFile(pathFile, []byte("1,2,3\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	opts := testOptions(&buf)
	_, err := Load(pathFile, opts)
	if !errors.IsFormat(err) {
		t.Fatalf("expected format error, got %v", err)
	}
	if got := opts.Metrics.RunErrorsTotal.Get(metrics.Labels{"code": "FORMAT"}); got != 1 {
		t.Errorf("format error metric = %g, want 1", got)
	}
}
