// Package pipeline runs the G-code to motion-path stages in order:
// parse, resample, map to frames, and write the interchange files.
package pipeline

import (
	stderrors "errors"
	"io"
	"os"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"gcode-anim/pkg/axismap"
	"gcode-anim/pkg/errors"
	"gcode-anim/pkg/gcode"
	"gcode-anim/pkg/interchange"
	"gcode-anim/pkg/log"
	"gcode-anim/pkg/metrics"
	"gcode-anim/pkg/resample"
)

// Options configures one run. There is no package-level state; every
// setting is passed here.
type Options struct {
	// DistancePerFrame is the arc length between samples, in program units.
	DistancePerFrame float64

	// Axes maps resampled points to per-axis scene values.
	Axes axismap.Options

	// Logger defaults to the "pipeline" child of the root logger.
	Logger *log.Logger

	// Metrics is optional.
	Metrics *metrics.PipelineMetrics

	// OnWarning is called for every skipped axis value, after logging.
	OnWarning func(gcode.ParseWarning)
}

// Result holds every intermediate product of a run.
type Result struct {
	Raw       gcode.Path
	Resampled []r3.Vec
	Frames    []axismap.Record
	Warnings  []gcode.ParseWarning
	Stats     gcode.Stats
	Length    float64
}

// EndFrame is the animation's last frame number.
func (r *Result) EndFrame() int {
	return len(r.Frames)
}

func (o Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.GetLogger("pipeline")
}

// validate checks every precondition before any input is read.
func (o Options) validate() error {
	if err := resample.CheckDistance(o.DistancePerFrame); err != nil {
		return err
	}
	return o.Axes.Validate()
}

// Run parses a G-code program from r and produces the resampled path and
// frame table.
func Run(r io.Reader, opts Options) (res *Result, err error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := opts.logger()
	pm := opts.Metrics
	if pm != nil {
		defer func() { pm.RecordRun(errorCode(err)) }()
	}

	res = &Result{}
	parser := gcode.NewParser()
	parser.OnWarning = func(w gcode.ParseWarning) {
		res.Warnings = append(res.Warnings, w)
		logger.WithFields(log.Fields{
			"line":  w.Line,
			"axis":  string(w.Axis),
			"token": w.Token,
		}).Warn("skipped unparsable axis value")
		if opts.OnWarning != nil {
			opts.OnWarning(w)
		}
	}

	stop := stageTimer(pm, metrics.StageParse)
	res.Raw, err = parser.ParseReader(r)
	elapsed := stop()
	res.Stats = parser.Stats()
	if err != nil {
		return res, errors.Wrap(err, errors.ErrIO, "reading G-code")
	}
	if pm != nil {
		pm.RecordParse(res.Stats.Lines, res.Stats.MotionLines, res.Stats.Skipped, len(res.Raw))
	}
	logger.WithFields(log.Fields{
		"lines":        res.Stats.Lines,
		"motion_lines": res.Stats.MotionLines,
		"skipped":      res.Stats.Skipped,
		"points":       len(res.Raw),
		"elapsed":      elapsed,
	}).Info("parsed program")

	if err := res.resample(opts, logger); err != nil {
		return res, err
	}
	return res, nil
}

// RunFile runs the pipeline on a G-code file.
func RunFile(path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOError(path, err)
	}
	defer f.Close()

	res, err := Run(f, opts)
	var he *errors.HostError
	if stderrors.As(err, &he) && he.File == "" {
		he.SetFile(path)
	}
	return res, err
}

// resample fills Resampled, Length and Frames from Raw.
func (res *Result) resample(opts Options, logger *log.Logger) error {
	pm := opts.Metrics
	points := resample.Points(res.Raw)
	res.Length = resample.PathLength(points)

	stop := stageTimer(pm, metrics.StageResample)
	resampled, err := resample.Resample(points, opts.DistancePerFrame)
	elapsed := stop()
	if err != nil {
		return err
	}
	res.Resampled = resampled
	if pm != nil {
		pm.RecordResample(opts.DistancePerFrame, res.Length, len(resampled))
	}
	logger.WithFields(log.Fields{
		"distance": opts.DistancePerFrame,
		"length":   res.Length,
		"samples":  len(resampled),
		"elapsed":  elapsed,
	}).Info("resampled path")

	res.mapFrames(opts, logger)
	return nil
}

func (res *Result) mapFrames(opts Options, logger *log.Logger) {
	stop := stageTimer(opts.Metrics, metrics.StageMap)
	res.Frames = axismap.MapFrames(res.Resampled, opts.Axes)
	stop()
	logger.WithField("end_frame", res.EndFrame()).Debug("mapped frames")
}

// Load reads an existing path interchange file and maps it to frames. The
// file is taken as already resampled; DistancePerFrame is not used.
func Load(path string, opts Options) (*Result, error) {
	if err := opts.Axes.Validate(); err != nil {
		return nil, err
	}
	logger := opts.logger()

	stop := stageTimer(opts.Metrics, metrics.StageReadInput)
	resampled, err := interchange.ReadPathFile(path)
	stop()
	if err != nil {
		if opts.Metrics != nil {
			opts.Metrics.RecordRun(errorCode(err))
		}
		return nil, err
	}

	res := &Result{Resampled: resampled, Length: resample.PathLength(resampled)}
	logger.WithFields(log.Fields{
		"file":    path,
		"samples": len(resampled),
	}).Info("loaded path")
	res.mapFrames(opts, logger)

	if opts.Metrics != nil {
		opts.Metrics.Samples.Set(nil, float64(len(resampled)))
		opts.Metrics.PathLength.Set(nil, res.Length)
		opts.Metrics.RecordRun("")
	}
	return res, nil
}

// Outputs names the files a run writes. An empty name skips that file.
type Outputs struct {
	PathFile   string
	FramesFile string
}

// Write stores the resampled path and frame table.
func (res *Result) Write(out Outputs, opts Options) error {
	logger := opts.logger()
	stop := stageTimer(opts.Metrics, metrics.StageWrite)
	defer stop()

	if out.PathFile != "" {
		if err := interchange.WritePathFile(out.PathFile, res.Resampled); err != nil {
			return err
		}
		logger.WithFields(log.Fields{"file": out.PathFile, "rows": len(res.Resampled)}).Info("wrote path")
	}
	if out.FramesFile != "" {
		if err := interchange.WriteFramesFile(out.FramesFile, res.Frames); err != nil {
			return err
		}
		logger.WithFields(log.Fields{"file": out.FramesFile, "rows": len(res.Frames)}).Info("wrote frame table")
	}
	return nil
}

func stageTimer(pm *metrics.PipelineMetrics, stage string) func() time.Duration {
	if pm == nil {
		start := time.Now()
		return func() time.Duration { return time.Since(start) }
	}
	return pm.StageTimer(stage)
}

// errorCode returns the HostError code of err, "UNKNOWN" for other errors
// and "" for nil.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var he *errors.HostError
	if stderrors.As(err, &he) {
		return string(he.Code)
	}
	return "UNKNOWN"
}
