// Metric definitions for the G-code motion-path pipeline
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	goruntime "runtime"
	"time"
)

// Pipeline stage names used as the "stage" label.
const (
	StageParse     = "parse"
	StageResample  = "resample"
	StageMap       = "map"
	StageWrite     = "write"
	StageReadInput = "read"
)

// PipelineMetrics holds the metrics recorded by one pipeline process.
// Counters accumulate across runs; gauges describe the most recent run.
type PipelineMetrics struct {
	LinesTotal         *Counter
	MotionLinesTotal   *Counter
	SkippedTokensTotal *Counter
	RunsTotal          *Counter
	RunErrorsTotal     *Counter
	RawPoints          *Gauge
	Samples            *Gauge
	PathLength         *Gauge
	DistancePerFrame   *Gauge
	StageSeconds       *Histogram
	GoGoroutines       *Gauge
	GoMemoryHeap       *Gauge

	registry *Registry
}

// NewPipelineMetrics creates and registers the pipeline metrics
func NewPipelineMetrics() *PipelineMetrics {
	pm := &PipelineMetrics{registry: NewRegistry()}

	pm.LinesTotal = NewCounter("gcodeanim_lines_total",
		"G-code lines read")
	pm.MotionLinesTotal = NewCounter("gcodeanim_motion_lines_total",
		"G0/G1 lines that produced a path point")
	pm.SkippedTokensTotal = NewCounter("gcodeanim_skipped_axis_tokens_total",
		"Axis words whose value could not be parsed")
	pm.RunsTotal = NewCounter("gcodeanim_runs_total",
		"Pipeline runs")
	pm.RunErrorsTotal = NewCounter("gcodeanim_run_errors_total",
		"Pipeline runs that failed, by error code")
	pm.RawPoints = NewGauge("gcodeanim_raw_points",
		"Points in the raw path of the last run, origin included")
	pm.Samples = NewGauge("gcodeanim_samples",
		"Resampled points (frames) of the last run")
	pm.PathLength = NewGauge("gcodeanim_path_length_mm",
		"Polyline length of the last raw path in program units")
	pm.DistancePerFrame = NewGauge("gcodeanim_distance_per_frame_mm",
		"Sampling distance of the last run")
	pm.StageSeconds = NewHistogram("gcodeanim_stage_seconds",
		"Time spent in each pipeline stage", DefaultBuckets())
	pm.GoGoroutines = NewGauge("gcodeanim_go_goroutines",
		"Number of active goroutines")
	pm.GoMemoryHeap = NewGauge("gcodeanim_go_memory_heap_bytes",
		"Go heap memory in use")

	for _, m := range []Metric{
		pm.LinesTotal, pm.MotionLinesTotal, pm.SkippedTokensTotal,
		pm.RunsTotal, pm.RunErrorsTotal,
		pm.RawPoints, pm.Samples, pm.PathLength, pm.DistancePerFrame,
		pm.StageSeconds, pm.GoGoroutines, pm.GoMemoryHeap,
	} {
		pm.registry.MustRegister(m)
	}
	return pm
}

// StageTimer starts timing a stage; calling the result records the duration.
func (pm *PipelineMetrics) StageTimer(stage string) func() time.Duration {
	return pm.StageSeconds.Timer(Labels{"stage": stage})
}

// RecordParse records the parser statistics of one run.
func (pm *PipelineMetrics) RecordParse(lines, motionLines, skipped, rawPoints int) {
	pm.LinesTotal.Add(nil, float64(lines))
	pm.MotionLinesTotal.Add(nil, float64(motionLines))
	pm.SkippedTokensTotal.Add(nil, float64(skipped))
	pm.RawPoints.Set(nil, float64(rawPoints))
}

// RecordResample records the resampling outcome of one run.
func (pm *PipelineMetrics) RecordResample(d, length float64, samples int) {
	pm.DistancePerFrame.Set(nil, d)
	pm.PathLength.Set(nil, length)
	pm.Samples.Set(nil, float64(samples))
}

// RecordRun counts a finished run. code is empty on success.
func (pm *PipelineMetrics) RecordRun(code string) {
	pm.RunsTotal.Inc(nil)
	if code != "" {
		pm.RunErrorsTotal.Inc(Labels{"code": code})
	}
}

// UpdateSystemMetrics updates Go runtime metrics
func (pm *PipelineMetrics) UpdateSystemMetrics() {
	var m goruntime.MemStats
	goruntime.ReadMemStats(&m)
	pm.GoGoroutines.Set(nil, float64(goruntime.NumGoroutine()))
	pm.GoMemoryHeap.Set(nil, float64(m.HeapAlloc))
}

// Gather returns all metrics in Prometheus text format
func (pm *PipelineMetrics) Gather() string {
	pm.UpdateSystemMetrics()
	return pm.registry.Gather()
}

// Registry returns the internal registry
func (pm *PipelineMetrics) Registry() *Registry {
	return pm.registry
}
