package errgen

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/YaoYu9404/swot-simulator/calibration"
	"github.com/YaoYu9404/swot-simulator/internal/logging"
	"github.com/YaoYu9404/swot-simulator/internal/pool"
	"github.com/YaoYu9404/swot-simulator/settings"
)

const tracerName = "github.com/YaoYu9404/swot-simulator/errgen"

// Option configures a Generator.
type Option func(*Generator)

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.log = l
		}
	}
}

// Generator holds the configured error models and dispatches their
// computation over the worker pool, merging per-model outputs into one
// result set.
type Generator struct {
	models []Model
	pool   *pool.Pool
	log    logging.Logger
	tracer trace.Tracer
}

// New builds the active model set from the configured noise list, in
// configuration order, handing each variant only the calibration slices it
// requires. It fails on an unknown category name, and on any pair of models
// declaring the same output field: completion-order merging is only sound
// because field names are pairwise disjoint, so a collision is rejected here
// rather than resolved later.
func New(params *settings.Parameters, table *calibration.Table, p *pool.Pool, opts ...Option) (*Generator, error) {
	g := &Generator{
		pool:   p,
		log:    logging.Noop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}

	for _, name := range params.Noise {
		var m Model
		switch name {
		case "Altimeter":
			m = NewAltimeter(params)
		case "BaselineDilation":
			if table == nil {
				return nil, fmt.Errorf("errgen: %s requires a calibration table", name)
			}
			m = NewBaselineDilation(params, table.DilationPSD, table.SpatialFrequency)
		case "Karin":
			k, err := NewKarin(params)
			if err != nil {
				return nil, fmt.Errorf("errgen: %w", err)
			}
			m = k
		case "RollPhase":
			if table == nil {
				return nil, fmt.Errorf("errgen: %s requires a calibration table", name)
			}
			m = NewRollPhase(params, table.RollPSD, table.PhasePSD, table.SpatialFrequency)
		case "Timing":
			if table == nil {
				return nil, fmt.Errorf("errgen: %s requires a calibration table", name)
			}
			m = NewTiming(params, table.TimingPSD, table.SpatialFrequency)
		case "WetTroposphere":
			m = NewWetTroposphere(params)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownGenerator, name)
		}
		g.models = append(g.models, m)
	}

	if err := checkDisjointFields(g.models); err != nil {
		return nil, err
	}
	return g, nil
}

// checkDisjointFields enforces the namespace invariant across the active set.
func checkDisjointFields(models []Model) error {
	owner := make(map[string]string)
	for _, m := range models {
		for _, field := range m.FieldNames() {
			if prev, dup := owner[field]; dup {
				return fmt.Errorf("errgen: field %q declared by both %s and %s", field, prev, m.Name())
			}
			owner[field] = m.Name()
		}
	}
	return nil
}

// Models returns the active models in construction order. The order carries
// no promise about result ordering.
func (g *Generator) Models() []Model { return g.models }

// Generate synthesizes every active model's error fields for one pass and
// merges them into a single mapping.
//
// The call is atomic: either every model completed and the full merge is
// returned, or one failed and nothing is. Completions are merged as they
// arrive, in finish order; on the first failure the remaining submissions are
// cancelled, the stream is drained, and the partial merge is discarded.
func (g *Generator) Generate(ctx context.Context, req Request) (Fields, error) {
	result := make(Fields)
	// Degenerate passes never touch the execution facility.
	if len(g.models) == 0 || len(req.AlongTrack) == 0 {
		return result, nil
	}

	ctx, span := g.tracer.Start(ctx, "errgen.generate",
		trace.WithAttributes(
			attribute.Int("cycle_number", req.CycleNumber),
			attribute.Int("num_lines", len(req.AlongTrack)),
			attribute.Int("num_pixels", len(req.AcrossTrack)),
			attribute.Int("models", len(g.models)),
		))
	defer span.End()

	batch := g.pool.NewBatch(ctx)
	for _, m := range g.models {
		m := m
		batch.Submit(m.Name(), func(ctx context.Context) (any, error) {
			ctx, span := g.tracer.Start(ctx, "errgen.model",
				trace.WithAttributes(attribute.String("model", m.Name())))
			defer span.End()
			return m.Generate(ctx, req)
		})
	}

	var failure error
	for out := range batch.Completed() {
		if failure != nil {
			continue // drain the remaining completions
		}
		if out.Err != nil {
			failure = computationError(out.Name, out.Err)
			batch.Cancel()
			continue
		}
		fields, ok := out.Value.(Fields)
		if !ok {
			failure = computationError(out.Name, fmt.Errorf("unexpected result type %T", out.Value))
			batch.Cancel()
			continue
		}
		g.log.Debug(ctx, "model completed",
			logging.String("model", out.Name),
			logging.Any("elapsed", out.Elapsed))
		for name, arr := range fields {
			result[name] = arr
		}
	}
	if failure != nil {
		return nil, failure
	}
	return result, nil
}

func computationError(model string, err error) error {
	var ce *ComputationError
	if errors.As(err, &ce) {
		return err
	}
	return &ComputationError{Model: model, Err: err}
}
