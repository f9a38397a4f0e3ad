// Package errgen synthesizes the instrumental and geophysical measurement
// error fields superimposed on the simulated observations.
//
// Each error category (altimeter noise, baseline dilation, Karin speckle,
// roll/phase, timing drift, wet troposphere residual) is one Model. The
// Generator owns the active model set and fans generation out over a worker
// pool, merging the per-model fields into one result.
package errgen

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
)

// ErrUnknownGenerator reports a configured noise category that matches no
// known model variant.
var ErrUnknownGenerator = errors.New("errgen: unknown error generation class")

// ComputationError wraps a failure inside one model's generation, including
// shape mismatches the model detects itself.
type ComputationError struct {
	Model string
	Err   error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("errgen: %s: %v", e.Model, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

// Request carries the per-pass inputs of one generation call. It is immutable
// for the duration of the call; models must not retain or mutate its slices.
type Request struct {
	// CycleNumber identifies the repeat cycle, phasing periodic noise
	// consistently across cycles.
	CycleNumber int
	// CurvilinearDistance is the along-track distance covered by one
	// complete cycle, km.
	CurvilinearDistance float64
	// AlongTrack holds the along-track coordinate of each line, km.
	AlongTrack []float64
	// AcrossTrack holds the across-track coordinate of each pixel, km.
	AcrossTrack []float64
}

// Array is a numeric field shaped either (num_lines,) or
// (num_lines, num_pixels), row-major.
type Array struct {
	Data      []float64
	NumLines  int
	NumPixels int // 0 for along-track-only fields
}

// Vector wraps a 1-D along-track field.
func Vector(data []float64) Array {
	return Array{Data: data, NumLines: len(data)}
}

// Grid wraps a row-major (lines, pixels) swath field.
func Grid(data []float64, lines, pixels int) Array {
	return Array{Data: data, NumLines: lines, NumPixels: pixels}
}

// At returns the sample at line i, pixel j. For 1-D arrays j must be 0.
func (a Array) At(i, j int) float64 {
	if a.NumPixels == 0 {
		return a.Data[i]
	}
	return a.Data[i*a.NumPixels+j]
}

// IsGrid reports whether the array is a swath field.
func (a Array) IsGrid() bool { return a.NumPixels > 0 }

// Fields maps output field names to their simulated values.
type Fields map[string]Array

// Model is one error category. Every variant binds its own arguments: it
// reads only the Request members its contract needs, so the Generator never
// inspects concrete types at dispatch time.
type Model interface {
	// Name returns the configuration name of the variant.
	Name() string
	// FieldNames returns the fixed set of output fields the model may
	// produce. The sets of all active models must be pairwise disjoint.
	FieldNames() []string
	// Generate synthesizes the model's error fields for one pass.
	Generate(ctx context.Context, req Request) (Fields, error)
}

// newRand derives a reproducible PRNG for one (model, cycle) pair from the
// configured base seed. Models are stateless across calls: identical inputs
// produce identical draws, so concurrent passes may share one instance.
func newRand(base int64, model string, cycle int) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(model))
	seed := base ^ int64(h.Sum64()) ^ int64(uint64(cycle)*0x9e3779b97f4a7c15)
	return rand.New(rand.NewSource(seed))
}

var errEmptyAcrossTrack = errors.New("across-track coordinate array is empty")
