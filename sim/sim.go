// Package sim drives a simulation run: it walks the requested cycles and
// passes, samples the orbit geometry, invokes error generation once per pass
// and hands the assembled dataset to the product writer.
package sim

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/YaoYu9404/swot-simulator/errgen"
	"github.com/YaoYu9404/swot-simulator/internal/logging"
	"github.com/YaoYu9404/swot-simulator/orbit"
	"github.com/YaoYu9404/swot-simulator/product"
	"github.com/YaoYu9404/swot-simulator/settings"
)

const tracerName = "swot-simulator/sim"

// Recorder receives per-pass outcome notifications.
type Recorder interface {
	PassDone(ok bool, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) PassDone(bool, time.Duration) {}

// Surface provides the reference sea surface height the simulated errors are
// applied to.
type Surface interface {
	Height(t time.Time, lat, lon float64) (float64, error)
}

// FlatSurface is a constant-level reference surface.
type FlatSurface struct {
	Level float64 // m
}

func (s FlatSurface) Height(time.Time, float64, float64) (float64, error) {
	return s.Level, nil
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger overrides the runner's logger.
func WithLogger(log logging.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithRecorder wires per-pass outcome reporting.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.rec = rec }
}

// WithSurface overrides the reference surface.
func WithSurface(s Surface) Option {
	return func(r *Runner) { r.surface = s }
}

// WithStartTime pins the epoch of the first cycle.
func WithStartTime(t time.Time) Option {
	return func(r *Runner) { r.start = t }
}

// Runner owns one simulation run.
type Runner struct {
	params  *settings.Parameters
	prop    *orbit.Propagator
	gen     *errgen.Generator
	writer  *product.Writer
	surface Surface
	log     logging.Logger
	rec     Recorder
	tracer  trace.Tracer
	start   time.Time
}

// New assembles a runner from its collaborators.
func New(params *settings.Parameters, prop *orbit.Propagator, gen *errgen.Generator, writer *product.Writer, opts ...Option) *Runner {
	r := &Runner{
		params:  params,
		prop:    prop,
		gen:     gen,
		writer:  writer,
		surface: FlatSurface{},
		log:     logging.Noop(),
		rec:     noopRecorder{},
		tracer:  otel.Tracer(tracerName),
		start:   time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run simulates every requested pass of every requested cycle. A pass
// failure either aborts the run or skips to the next pass, per the
// configured error policy.
func (r *Runner) Run(ctx context.Context) error {
	cycleDuration := time.Duration(r.params.CycleDuration * 24 * float64(time.Hour))
	passDuration := r.prop.Period(r.start) / 2
	if passDuration <= 0 {
		return fmt.Errorf("sim: orbit propagation yields no ground motion")
	}
	passesPerCycle := int(cycleDuration / passDuration)
	if passesPerCycle < 1 {
		passesPerCycle = 1
	}
	passLength := r.params.LenRepeat / float64(passesPerCycle)

	r.log.Info(ctx, "starting run",
		logging.Int("cycles", r.params.Cycles),
		logging.Int("passes_per_cycle", passesPerCycle),
		logging.String("pass_duration", passDuration.String()))

	for cycle := 1; cycle <= r.params.Cycles; cycle++ {
		cycleStart := r.start.Add(time.Duration(cycle-1) * cycleDuration)
		for _, passNumber := range r.selectPasses(passesPerCycle) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.runPass(ctx, cycle, passNumber, cycleStart, passDuration, passLength); err != nil {
				return err
			}
		}
	}
	return nil
}

// selectPasses resolves the configured pass filter against the cycle layout.
// An empty filter means every pass.
func (r *Runner) selectPasses(passesPerCycle int) []int {
	if len(r.params.Passes) == 0 {
		all := make([]int, passesPerCycle)
		for i := range all {
			all[i] = i + 1
		}
		return all
	}
	var selected []int
	for _, n := range r.params.Passes {
		if n < 1 || n > passesPerCycle {
			r.log.Warn(context.Background(), "pass number outside cycle, ignored",
				logging.Int("pass", n), logging.Int("passes_per_cycle", passesPerCycle))
			continue
		}
		selected = append(selected, n)
	}
	return selected
}

func (r *Runner) runPass(ctx context.Context, cycle, passNumber int, cycleStart time.Time, passDuration time.Duration, passLength float64) error {
	begun := time.Now()
	log := logging.WithPass(r.log, cycle, passNumber)

	ctx, span := r.tracer.Start(ctx, "sim.pass",
		trace.WithAttributes(
			attribute.Int("cycle", cycle),
			attribute.Int("pass", passNumber),
		))
	defer span.End()

	passStart := cycleStart.Add(time.Duration(passNumber-1) * passDuration)
	pass := r.prop.SamplePass(passStart, passDuration, cycle, passNumber, r.params)
	if pass.NumLines() == 0 || pass.NumPixels() == 0 {
		log.Warn(ctx, "empty pass geometry, skipped")
		return nil
	}

	// Along-track coordinates are phased to the pass position within the
	// cycle so the spectral models decorrelate across passes.
	offset := float64(passNumber-1) * passLength
	alongTrack := make([]float64, pass.NumLines())
	for i, x := range pass.AlongTrack {
		alongTrack[i] = offset + x
	}

	fields, err := r.gen.Generate(ctx, errgen.Request{
		CycleNumber:         cycle,
		CurvilinearDistance: r.params.LenRepeat,
		AlongTrack:          alongTrack,
		AcrossTrack:         pass.AcrossTrack,
	})
	if err != nil {
		return r.passFailed(ctx, log, begun, fmt.Errorf("error generation: %w", err))
	}

	ssh, err := r.assembleSSH(pass, fields)
	if err != nil {
		return r.passFailed(ctx, log, begun, err)
	}

	if err := r.writer.WritePass(ctx, product.PassData{Pass: pass, SSH: ssh, Fields: fields}); err != nil {
		return r.passFailed(ctx, log, begun, err)
	}

	if r.params.Nadir {
		nadirSSH, err := r.assembleNadirSSH(pass, fields)
		if err != nil {
			return r.passFailed(ctx, log, begun, err)
		}
		if err := r.writer.WriteNadir(ctx, product.NadirData{Pass: pass, SSH: nadirSSH, Fields: fields}); err != nil {
			return r.passFailed(ctx, log, begun, err)
		}
	}

	r.rec.PassDone(true, time.Since(begun))
	log.Info(ctx, "pass complete",
		logging.Int("lines", pass.NumLines()),
		logging.Int("fields", len(fields)))
	return nil
}

// passFailed applies the error policy: abort surfaces the failure, skip logs
// it and lets the run continue.
func (r *Runner) passFailed(ctx context.Context, log logging.Logger, begun time.Time, err error) error {
	r.rec.PassDone(false, time.Since(begun))
	if r.params.OnError == settings.SkipPass {
		log.Warn(ctx, "pass failed, skipping", logging.Err(err))
		return nil
	}
	log.Error(ctx, "pass failed, aborting run", logging.Err(err))
	return fmt.Errorf("sim: %w", err)
}

// assembleSSH evaluates the reference surface over the swath and applies
// every two-dimensional simulated error field on top of it.
func (r *Runner) assembleSSH(pass *orbit.Pass, fields errgen.Fields) (errgen.Array, error) {
	n, m := pass.NumLines(), pass.NumPixels()
	data := make([]float64, n*m)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			h, err := r.surface.Height(pass.Time[i], pass.Lat[i][j], pass.Lon[i][j])
			if err != nil {
				return errgen.Array{}, fmt.Errorf("reference surface at line %d pixel %d: %w", i, j, err)
			}
			data[i*m+j] = h
		}
	}
	for _, arr := range fields {
		if !arr.IsGrid() || arr.NumLines != n || arr.NumPixels != m {
			continue
		}
		for i := range data {
			data[i] += arr.Data[i]
		}
	}
	return errgen.Grid(data, n, m), nil
}

// assembleNadirSSH evaluates the reference surface along the nadir track and
// applies the one-dimensional simulated error fields on top of it.
func (r *Runner) assembleNadirSSH(pass *orbit.Pass, fields errgen.Fields) (errgen.Array, error) {
	n := pass.NumLines()
	data := make([]float64, n)
	for i := 0; i < n; i++ {
		h, err := r.surface.Height(pass.Time[i], pass.LatNadir[i], pass.LonNadir[i])
		if err != nil {
			return errgen.Array{}, fmt.Errorf("reference surface at nadir line %d: %w", i, err)
		}
		data[i] = h
	}
	for _, arr := range fields {
		if arr.IsGrid() || arr.NumLines != n {
			continue
		}
		for i := range data {
			data[i] += arr.Data[i]
		}
	}
	return errgen.Vector(data), nil
}
