// gcode-anim turns a G-code toolpath into the motion data an animation
// tool needs: a path resampled at one point per frame, and the per-axis
// frame table.
//
// Usage:
//
//	gcode-anim [options] [file.gcode [distance]]
//
// Options:
//
//	-g, --gcode string         G-code program (default "path.gcode")
//	-d, --distance float       Path length per frame (default 100, or [animation] distance_per_frame)
//	    --unit-factor float    Raw to scene unit factor (default 0.001)
//	-c, --config string        printer.cfg-style file with [animation] and [axis_x|y|z]
//	-o, --out string           Path interchange file (default "pathout.csv")
//	-f, --frames string        Frame table file
//	    --path-in string       Map an existing interchange file instead of G-code
//	    --serve string         Serve the frame table for live preview (e.g. ":7125")
//	    --metrics string       Serve Prometheus metrics (e.g. ":9100")
//	    --strict-warnings      Exit non-zero if any axis value was skipped
//	    --log-level string     DEBUG, INFO, WARN or ERROR (default INFO, or GCODEANIM_LOG_LEVEL)
//	    --log-format string    text or json (default text, or GCODEANIM_LOG_FORMAT)
//	    --logfile string       Append logs to a file instead of stderr
//	    --logfile-max-size int Roll the log file over past this many MiB (default 10, 0 disables)
//	    --logfile-backups int  Rolled log files to keep (default 3)
//
// Examples:
//
//	# One frame every 2.5 mm, with the frame table
//	gcode-anim -d 2.5 -f frames.csv part.gcode
//
//	# Reference invocation: positional program and distance
//	gcode-anim part.gcode 50
//
//	# Preview a previously written path
//	gcode-anim --path-in pathout.csv --serve :7125
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"gcode-anim/pkg/config"
	"gcode-anim/pkg/errors"
	"gcode-anim/pkg/log"
	"gcode-anim/pkg/metrics"
	"gcode-anim/pkg/pipeline"
	"gcode-anim/pkg/preview"
)

// Exit codes
const (
	exitOK       = 0
	exitError    = 1
	exitUsage    = 2
	exitWarnings = 3
)

const defaultProgram = "path.gcode"

type options struct {
	GCode          string
	Distance       float64
	UnitFactor     float64
	Config         string
	Out            string
	Frames         string
	PathIn         string
	Serve          string
	Metrics        string
	StrictWarnings bool
	LogLevel       string
	LogFormat      string
	LogFile        string
	LogFileMaxSize int
	LogFileBackups int

	distanceSet   bool
	unitFactorSet bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// parseArgs reads flags and the optional positional program and distance.
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	var opts options
	fs := flag.NewFlagSet("gcode-anim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.GCode, "gcode", "g", "", "G-code program (default \""+defaultProgram+"\")")
	fs.Float64VarP(&opts.Distance, "distance", "d", config.DefaultDistancePerFrame, "Path length per frame, in program units")
	fs.Float64Var(&opts.UnitFactor, "unit-factor", 0.001, "Raw to scene unit factor")
	fs.StringVarP(&opts.Config, "config", "c", "", "printer.cfg-style file with [animation] and [axis_x|y|z]")
	fs.StringVarP(&opts.Out, "out", "o", "pathout.csv", "Path interchange file (empty to skip)")
	fs.StringVarP(&opts.Frames, "frames", "f", "", "Frame table file")
	fs.StringVar(&opts.PathIn, "path-in", "", "Map an existing interchange file instead of G-code")
	fs.StringVar(&opts.Serve, "serve", "", "Serve the frame table for live preview on this address")
	fs.StringVar(&opts.Metrics, "metrics", "", "Serve Prometheus metrics on this address")
	fs.BoolVar(&opts.StrictWarnings, "strict-warnings", false, "Exit non-zero if any axis value was skipped")
	fs.StringVar(&opts.LogLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR (default INFO)")
	fs.StringVar(&opts.LogFormat, "log-format", "", "text or json (default text)")
	fs.StringVar(&opts.LogFile, "logfile", "", "Append logs to a file instead of stderr")
	fs.IntVar(&opts.LogFileMaxSize, "logfile-max-size", 10, "Roll the log file over past this many MiB (0 disables)")
	fs.IntVar(&opts.LogFileBackups, "logfile-backups", log.DefaultFileBackups, "Rolled log files to keep")
	fs.SetInterspersed(true)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	if len(rest) > 2 {
		return nil, fmt.Errorf("expected at most 2 arguments, got %d", len(rest))
	}
	if len(rest) >= 1 {
		if opts.GCode != "" {
			return nil, fmt.Errorf("program given both as --gcode and as an argument")
		}
		opts.GCode = rest[0]
	}
	if len(rest) == 2 {
		if fs.Changed("distance") {
			return nil, fmt.Errorf("distance given both as --distance and as an argument")
		}
		d, err := strconv.ParseFloat(rest[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid distance %q: %w", rest[1], err)
		}
		opts.Distance = d
		opts.distanceSet = true
	}
	if opts.GCode == "" {
		opts.GCode = defaultProgram
	}
	opts.distanceSet = opts.distanceSet || fs.Changed("distance")
	opts.unitFactorSet = fs.Changed("unit-factor")
	return &opts, nil
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return exitOK
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	logger, closeLog, err := setupLogging(opts, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer closeLog()

	anim, err := loadAnimation(opts)
	if err != nil {
		logger.WithError(err).Error("invalid configuration")
		return exitError
	}
	for _, opt := range anim.Unused {
		logger.WithField("option", opt).Warn("unknown config option")
	}

	pm := metrics.NewPipelineMetrics()
	popts := pipeline.Options{
		DistancePerFrame: anim.DistancePerFrame,
		Axes:             anim.Axes,
		Logger:           logger.WithPrefix("pipeline"),
		Metrics:          pm,
	}

	var metricsServer *metrics.MetricsServer
	if opts.Metrics != "" {
		metricsServer = metrics.NewMetricsServer(pm, opts.Metrics)
		errCh := metricsServer.StartAsync()
		go func() {
			if err := <-errCh; err != nil {
				logger.WithError(err).Error("metrics server stopped")
			}
		}()
		defer shutdown(logger, "metrics", metricsServer.Shutdown)
	}

	var res *pipeline.Result
	if opts.PathIn != "" {
		res, err = pipeline.Load(opts.PathIn, popts)
	} else {
		res, err = pipeline.RunFile(opts.GCode, popts)
	}
	if err != nil {
		logger.WithError(err).Error("pipeline failed")
		return exitError
	}

	out := pipeline.Outputs{FramesFile: opts.Frames}
	if opts.PathIn == "" {
		out.PathFile = opts.Out
	}
	if err := res.Write(out, popts); err != nil {
		logger.WithError(err).Error("writing outputs failed")
		return exitError
	}
	logger.WithFields(log.Fields{
		"end_frame": res.EndFrame(),
		"warnings":  len(res.Warnings),
	}).Info("done")

	code := exitOK
	if opts.StrictWarnings && len(res.Warnings) > 0 {
		logger.Error("%d axis values were skipped", len(res.Warnings))
		code = exitWarnings
	}

	if opts.Serve != "" {
		if err := servePreview(ctx, opts.Serve, res, logger); err != nil {
			logger.WithError(err).Error("preview server failed")
			return exitError
		}
	} else if metricsServer != nil {
		logger.Info("serving metrics on %s, press Ctrl+C to stop", opts.Metrics)
		<-ctx.Done()
	}
	return code
}

// setupLogging configures the root logger from flags and environment.
func setupLogging(opts *options, stderr io.Writer) (*log.Logger, func(), error) {
	logger := log.New("gcode-anim")
	logger.SetWriter(stderr)
	log.ConfigureFromEnv(logger)
	if opts.LogLevel != "" {
		logger.SetLevel(log.ParseLevel(opts.LogLevel))
	}
	if opts.LogFormat != "" {
		logger.SetFormat(log.ParseFormat(opts.LogFormat))
	}

	closeLog := func() {}
	if opts.LogFile != "" {
		w, err := log.OpenFile(log.FileConfig{
			Name:    opts.LogFile,
			MaxSize: int64(opts.LogFileMaxSize) << 20,
			Backups: opts.LogFileBackups,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.SetWriter(w)
		closeLog = func() { w.Close() }
	}
	log.SetDefaultLogger(logger)
	return logger, closeLog, nil
}

// loadAnimation merges the config file with flags; flags win.
func loadAnimation(opts *options) (config.Animation, error) {
	anim := config.DefaultAnimation()
	if opts.Config != "" {
		var err error
		anim, err = config.LoadAnimationFile(opts.Config)
		if err != nil {
			return anim, err
		}
	}
	if opts.distanceSet || opts.Config == "" {
		anim.DistancePerFrame = opts.Distance
	}
	if opts.unitFactorSet {
		// Zero in axismap.Options means "use the default"; an explicit
		// flag gets the same bound as unit_factor in the config file.
		if !(opts.UnitFactor > 0) {
			return anim, errors.ConfigurationError(fmt.Sprintf("--unit-factor must be above 0, got %g", opts.UnitFactor))
		}
		anim.Axes.UnitFactor = opts.UnitFactor
	}
	return anim, anim.Axes.Validate()
}

// servePreview publishes the frame table and serves it until ctx is done.
func servePreview(ctx context.Context, addr string, res *pipeline.Result, logger *log.Logger) error {
	srv := preview.New(preview.Config{Addr: addr, Logger: logger.WithPrefix("preview")})
	srv.Publish(res.Frames)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down preview server")
	shutdown(logger, "preview", srv.Shutdown)
	return <-errCh
}

func shutdown(logger *log.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.WithError(err).Warnf("%s shutdown", name)
	}
}
