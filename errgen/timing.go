package errgen

import (
	"context"

	"github.com/YaoYu9404/swot-simulator/settings"
)

// timingToHeight converts a timing drift (ps) into a two-way range error (m).
const timingToHeight = speedOfLight / 2.0 * 1e-12

// Timing synthesizes the height error from radar timing drift: constant
// across track within a swath side, with independent drifts per side.
type Timing struct {
	seed int64
	psd  []float64
	freq []float64
}

// NewTiming builds the model from the calibrated timing spectrum and the
// shared spatial frequency grid.
func NewTiming(p *settings.Parameters, timingPSD, spatialFrequency []float64) *Timing {
	return &Timing{seed: p.Seed, psd: timingPSD, freq: spatialFrequency}
}

func (m *Timing) Name() string { return "Timing" }

func (m *Timing) FieldNames() []string { return []string{"simulated_error_timing"} }

func (m *Timing) Generate(ctx context.Context, req Request) (Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.AcrossTrack) == 0 {
		return nil, errEmptyAcrossTrack
	}

	rng := newRand(m.seed, m.Name(), req.CycleNumber)
	left := signal1D(rng, m.freq, m.psd, req.AlongTrack)
	right := signal1D(rng, m.freq, m.psd, req.AlongTrack)

	n, p := len(req.AlongTrack), len(req.AcrossTrack)
	data := make([]float64, n*p)
	for i := 0; i < n; i++ {
		for j, x := range req.AcrossTrack {
			drift := left[i]
			if x >= 0 {
				drift = right[i]
			}
			data[i*p+j] = timingToHeight * drift
		}
	}
	return Fields{"simulated_error_timing": Grid(data, n, p)}, nil
}
