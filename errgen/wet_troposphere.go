package errgen

import (
	"context"
	"math"

	"github.com/YaoYu9404/swot-simulator/calibration"
	"github.com/YaoYu9404/swot-simulator/settings"
)

// Wet tropospheric path delay spectrum, two power-law regimes with a break
// around 23 cycles per 10 000 km.
const (
	wetTropoBreakFrequency = 0.0023 // cy/km
	wetTropoLowAmplitude   = 3.156e-5
	wetTropoLowSlope       = 8.0 / 3.0
	wetTropoHighAmplitude  = 1.4875e-4
	wetTropoHighSlope      = 2.33
)

// Residual fraction of the path delay left after the radiometer correction.
var wetTropoResidual = map[int]float64{1: 0.80, 2: 0.50}

// WetTroposphere synthesizes the residual wet tropospheric path delay error
// after radiometer correction: a correlated along-track delay plus a
// cross-track gradient the beams cannot resolve.
type WetTroposphere struct {
	seed      int64
	freq      []float64
	psd       []float64
	residual  float64
	halfSwath float64
}

// NewWetTroposphere builds the model. The delay spectrum is analytic, so no
// calibration slice is needed.
func NewWetTroposphere(p *settings.Parameters) *WetTroposphere {
	freq := calibration.WorkingGrid(p.DeltaAl, p.LenRepeat)
	psd := make([]float64, len(freq))
	for i, f := range freq {
		if f <= wetTropoBreakFrequency {
			psd[i] = wetTropoLowAmplitude * math.Pow(f, -wetTropoLowSlope)
		} else {
			psd[i] = wetTropoHighAmplitude * math.Pow(f, -wetTropoHighSlope)
		}
	}
	return &WetTroposphere{
		seed:      p.Seed,
		freq:      freq,
		psd:       psd,
		residual:  wetTropoResidual[p.NBeam],
		halfSwath: p.HalfSwath,
	}
}

func (m *WetTroposphere) Name() string { return "WetTroposphere" }

func (m *WetTroposphere) FieldNames() []string {
	return []string{"simulated_error_troposphere"}
}

func (m *WetTroposphere) Generate(ctx context.Context, req Request) (Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.AcrossTrack) == 0 {
		return nil, errEmptyAcrossTrack
	}

	rng := newRand(m.seed, m.Name(), req.CycleNumber)
	delay := signal1D(rng, m.freq, m.psd, req.AlongTrack)
	gradient := signal1D(rng, m.freq, m.psd, req.AlongTrack)

	n, p := len(req.AlongTrack), len(req.AcrossTrack)
	data := make([]float64, n*p)
	for i := 0; i < n; i++ {
		for j, x := range req.AcrossTrack {
			data[i*p+j] = m.residual * (delay[i] + gradient[i]*x/m.halfSwath)
		}
	}
	return Fields{"simulated_error_troposphere": Grid(data, n, p)}, nil
}
