package sim

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/YaoYu9404/swot-simulator/errgen"
	"github.com/YaoYu9404/swot-simulator/internal/pool"
	"github.com/YaoYu9404/swot-simulator/orbit"
	"github.com/YaoYu9404/swot-simulator/product"
	"github.com/YaoYu9404/swot-simulator/settings"
)

const (
	issTLE1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issTLE2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

type countingRecorder struct {
	mu     sync.Mutex
	ok     int
	failed int
}

func (c *countingRecorder) PassDone(ok bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.ok++
	} else {
		c.failed++
	}
}

type failingSurface struct{}

func (failingSurface) Height(time.Time, float64, float64) (float64, error) {
	return 0, errors.New("reference surface unavailable")
}

func testParameters(t *testing.T) *settings.Parameters {
	p := &settings.Parameters{}
	p.Noise = []string{"Altimeter", "Karin"}
	p.DeltaAl = 50.0 // coarse posting keeps the pass small
	p.DeltaAc = 20.0
	p.HalfSwath = 70.0
	p.HalfGap = 10.0
	p.LenRepeat = 20866.0
	p.NBeam = 2
	p.SWH = 2.0
	p.Seed = 7
	p.CycleDuration = 0.07 // just over one orbit
	p.Cycles = 1
	p.Passes = []int{1}
	p.OnError = settings.AbortRun
	p.OutputDir = t.TempDir()
	return p
}

func newTestRunner(t *testing.T, params *settings.Parameters, opts ...Option) (*Runner, *countingRecorder, *product.Writer) {
	t.Helper()

	prop, err := orbit.NewPropagator(issTLE1, issTLE2)
	if err != nil {
		t.Fatalf("NewPropagator: %v", err)
	}
	workers := pool.New(2)
	t.Cleanup(workers.Close)
	gen, err := errgen.New(params, nil, workers)
	if err != nil {
		t.Fatalf("errgen.New: %v", err)
	}
	catalog, err := product.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	writer := product.NewWriter(catalog, params)

	rec := &countingRecorder{}
	opts = append([]Option{
		WithRecorder(rec),
		WithStartTime(time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)),
	}, opts...)
	return New(params, prop, gen, writer, opts...), rec, writer
}

func TestRun_WritesPassFiles(t *testing.T) {
	params := testParameters(t)
	runner, rec, writer := newTestRunner(t, params)

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.ok != 1 || rec.failed != 0 {
		t.Fatalf("recorder saw %d ok / %d failed passes, want 1/0", rec.ok, rec.failed)
	}
	if _, err := os.Stat(writer.Path(1, 1)); err != nil {
		t.Fatalf("pass file missing: %v", err)
	}
}

func TestRun_NadirProductAlongsidePasses(t *testing.T) {
	params := testParameters(t)
	params.Nadir = true
	runner, rec, writer := newTestRunner(t, params)

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.ok != 1 || rec.failed != 0 {
		t.Fatalf("recorder saw %d ok / %d failed passes, want 1/0", rec.ok, rec.failed)
	}
	if _, err := os.Stat(writer.Path(1, 1)); err != nil {
		t.Fatalf("pass file missing: %v", err)
	}
	if _, err := os.Stat(writer.NadirPath(1, 1)); err != nil {
		t.Fatalf("nadir file missing: %v", err)
	}
}

func TestAssembleNadirSSH_AppliesVectorFields(t *testing.T) {
	params := testParameters(t)
	runner, _, _ := newTestRunner(t, params, WithSurface(FlatSurface{Level: 1.0}))

	start := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	pass := &orbit.Pass{
		Time:       []time.Time{start, start.Add(time.Second)},
		AlongTrack: []float64{0, 2},
		LatNadir:   []float64{1, 2},
		LonNadir:   []float64{3, 3},
	}
	fields := errgen.Fields{
		"simulated_error_altimeter": errgen.Vector([]float64{0.1, 0.2}),
		"simulated_error_karin":     errgen.Grid([]float64{5, 5, 5, 5}, 2, 2), // swath only, not applied
	}

	ssh, err := runner.assembleNadirSSH(pass, fields)
	if err != nil {
		t.Fatalf("assembleNadirSSH: %v", err)
	}
	want := []float64{1.1, 1.2}
	for i, w := range want {
		if diff := ssh.Data[i] - w; diff > 1e-12 || diff < -1e-12 {
			t.Fatalf("nadir ssh[%d] = %g, want %g", i, ssh.Data[i], w)
		}
	}
}

func TestRun_AllPassesWhenFilterEmpty(t *testing.T) {
	params := testParameters(t)
	params.Passes = nil
	runner, rec, writer := newTestRunner(t, params)

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.ok < 2 {
		t.Fatalf("expected at least two passes in a %g day cycle, got %d", params.CycleDuration, rec.ok)
	}
	for n := 1; n <= rec.ok; n++ {
		if _, err := os.Stat(writer.Path(1, n)); err != nil {
			t.Fatalf("pass %d file missing: %v", n, err)
		}
	}
}

func TestRun_PassFilterOutsideCycleIgnored(t *testing.T) {
	params := testParameters(t)
	params.Passes = []int{1, 9999}
	runner, rec, _ := newTestRunner(t, params)

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.ok != 1 {
		t.Fatalf("recorder saw %d passes, want only the valid one", rec.ok)
	}
}

func TestRun_AbortOnFailure(t *testing.T) {
	params := testParameters(t)
	params.Passes = nil // more than one pass available
	runner, rec, _ := newTestRunner(t, params, WithSurface(failingSurface{}))

	err := runner.Run(context.Background())
	if err == nil {
		t.Fatalf("expected run to abort on surface failure")
	}
	if rec.failed != 1 || rec.ok != 0 {
		t.Fatalf("abort policy should stop after the first failure, got %d ok / %d failed", rec.ok, rec.failed)
	}
}

func TestRun_SkipOnFailure(t *testing.T) {
	params := testParameters(t)
	params.Passes = nil
	params.OnError = settings.SkipPass
	runner, rec, _ := newTestRunner(t, params, WithSurface(failingSurface{}))

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("skip policy must not abort the run, got %v", err)
	}
	if rec.failed < 2 || rec.ok != 0 {
		t.Fatalf("skip policy should try every pass, got %d ok / %d failed", rec.ok, rec.failed)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	params := testParameters(t)
	runner, _, _ := newTestRunner(t, params)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := runner.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run with cancelled context = %v, want context.Canceled", err)
	}
}

func TestFlatSurface(t *testing.T) {
	s := FlatSurface{Level: 1.5}
	h, err := s.Height(time.Now(), 10, 20)
	if err != nil || h != 1.5 {
		t.Fatalf("FlatSurface.Height = %g, %v", h, err)
	}
}

func TestAssembleSSH_AppliesGridFields(t *testing.T) {
	params := testParameters(t)
	runner, _, _ := newTestRunner(t, params, WithSurface(FlatSurface{Level: 1.0}))

	start := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	pass := &orbit.Pass{
		Time:        []time.Time{start, start.Add(time.Second)},
		AlongTrack:  []float64{0, 2},
		AcrossTrack: []float64{-10, 10},
		Lat:         [][]float64{{1, 1}, {2, 2}},
		Lon:         [][]float64{{3, 4}, {3, 4}},
	}
	fields := errgen.Fields{
		"simulated_error_karin":     errgen.Grid([]float64{0.1, 0.2, 0.3, 0.4}, 2, 2),
		"simulated_error_altimeter": errgen.Vector([]float64{5, 5}), // nadir only, not applied
	}

	ssh, err := runner.assembleSSH(pass, fields)
	if err != nil {
		t.Fatalf("assembleSSH: %v", err)
	}
	want := []float64{1.1, 1.2, 1.3, 1.4}
	for i, w := range want {
		if diff := ssh.Data[i] - w; diff > 1e-12 || diff < -1e-12 {
			t.Fatalf("ssh[%d] = %g, want %g", i, ssh.Data[i], w)
		}
	}
}

func TestRun_DeterministicAcrossRuns(t *testing.T) {
	params := testParameters(t)
	runner1, _, writer1 := newTestRunner(t, params)
	if err := runner1.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, err := os.ReadFile(writer1.Path(1, 1))
	if err != nil {
		t.Fatalf("reading first run output: %v", err)
	}

	params2 := testParameters(t)
	params2.Seed = params.Seed
	runner2, _, writer2 := newTestRunner(t, params2)
	if err := runner2.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, err := os.ReadFile(writer2.Path(1, 1))
	if err != nil {
		t.Fatalf("reading second run output: %v", err)
	}

	// The history attribute carries the creation timestamp; everything
	// after the header must match byte for byte.
	if len(first) != len(second) {
		t.Fatalf("output sizes differ between identical runs: %d vs %d", len(first), len(second))
	}
	tail1, tail2 := first[len(first)/2:], second[len(second)/2:]
	if fmt.Sprintf("%x", tail1) != fmt.Sprintf("%x", tail2) {
		t.Fatalf("data sections differ between identical runs")
	}
}
