package errgen

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/YaoYu9404/swot-simulator/settings"
)

// Made-to-measure height noise of the interferometer versus cross-track
// distance, metres at 2 m significant wave height. The U shape reflects the
// loss of coherence near the swath edges and the steep incidence near nadir.
var (
	karinDistance  = []float64{10, 20, 30, 40, 50, 60, 70} // km
	karinSigmaSWH2 = []float64{
		0.0255, 0.0210, 0.0189, 0.0182, 0.0187, 0.0205, 0.0237,
	}
)

// Karin synthesizes the speckle-like height measurement noise of the
// interferometric instrument. Each line draws its pixels from a PRNG seeded
// by the line's position within the cycle, so overlapping passes and repeated
// cycles see consistent noise.
type Karin struct {
	seed     int64
	swh      float64
	distance []float64
	sigma    []float64
}

// NewKarin builds the Karin model. An externally calibrated variance table
// replaces the built-in one when the configuration names a karin_noise file.
func NewKarin(p *settings.Parameters) (*Karin, error) {
	k := &Karin{seed: p.Seed, swh: p.SWH, distance: karinDistance, sigma: karinSigmaSWH2}
	if p.KarinNoise == "" {
		return k, nil
	}
	distance, sigma, err := loadKarinTable(p.KarinNoise)
	if err != nil {
		return nil, err
	}
	k.distance, k.sigma = distance, sigma
	return k, nil
}

// karinTableYAML is the on-disk variance table: height noise standard
// deviation versus cross-track distance at the 2 m reference wave height.
type karinTableYAML struct {
	CrossTrack []float64 `yaml:"cross_track"`
	Sigma      []float64 `yaml:"sigma"`
}

func loadKarinTable(path string) ([]float64, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("karin table: open %s: %w", path, err)
	}
	defer f.Close()
	return readKarinTable(f)
}

func readKarinTable(r io.Reader) ([]float64, []float64, error) {
	var wire karinTableYAML
	if err := yaml.NewDecoder(r).Decode(&wire); err != nil {
		return nil, nil, fmt.Errorf("karin table: decode: %w", err)
	}
	if len(wire.CrossTrack) == 0 {
		return nil, nil, fmt.Errorf("karin table: cross_track is missing or empty")
	}
	if len(wire.Sigma) != len(wire.CrossTrack) {
		return nil, nil, fmt.Errorf("karin table: sigma has %d samples, cross_track has %d",
			len(wire.Sigma), len(wire.CrossTrack))
	}
	for i, x := range wire.CrossTrack {
		if x <= 0 || math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, nil, fmt.Errorf("karin table: cross_track must hold positive finite distances")
		}
		if i > 0 && x <= wire.CrossTrack[i-1] {
			return nil, nil, fmt.Errorf("karin table: cross_track must be strictly increasing")
		}
	}
	for _, v := range wire.Sigma {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, fmt.Errorf("karin table: sigma contains a negative or non-finite value")
		}
	}
	return wire.CrossTrack, wire.Sigma, nil
}

func (m *Karin) Name() string { return "Karin" }

func (m *Karin) FieldNames() []string { return []string{"simulated_error_karin"} }

// Generate is the only variant that reads all four request members: the
// along/across-track grids fix the shape, while the cycle number and the
// curvilinear distance phase the per-line seeds across cycles.
func (m *Karin) Generate(ctx context.Context, req Request) (Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.AcrossTrack) == 0 {
		return nil, errEmptyAcrossTrack
	}

	// Wave-height scaling relative to the 2 m reference table.
	swhScale := math.Sqrt((1.0 + m.swh/2.0) / 2.0)

	n, p := len(req.AlongTrack), len(req.AcrossTrack)
	data := make([]float64, n*p)
	for i, xal := range req.AlongTrack {
		lineSeed := m.seed + int64(math.Floor(xal+req.CurvilinearDistance*float64(req.CycleNumber)))
		rng := rand.New(rand.NewSource(lineSeed))
		for j, xac := range req.AcrossTrack {
			sigma := swhScale * interpSigma(m.distance, m.sigma, math.Abs(xac))
			data[i*p+j] = sigma * rng.NormFloat64()
		}
	}
	return Fields{"simulated_error_karin": Grid(data, n, p)}, nil
}
