package errgen

import (
	"context"
	"math"

	"github.com/YaoYu9404/swot-simulator/calibration"
	"github.com/YaoYu9404/swot-simulator/settings"
)

// Analytic nadir altimeter noise spectrum: a white instrument floor plus a
// red geophysical component.
const (
	altimeterNoiseFloor   = 8.0e-4 // m²/(cy/km)
	altimeterRedAmplitude = 1.05e-5
	altimeterRedSlope     = 2.2
)

// Altimeter synthesizes the conventional nadir altimeter measurement noise.
type Altimeter struct {
	seed int64
	freq []float64
	psd  []float64
}

// NewAltimeter builds the altimeter model. The spectrum is analytic, so no
// calibration slice is needed.
func NewAltimeter(p *settings.Parameters) *Altimeter {
	freq := calibration.WorkingGrid(p.DeltaAl, p.LenRepeat)
	psd := make([]float64, len(freq))
	for i, f := range freq {
		psd[i] = altimeterNoiseFloor + altimeterRedAmplitude*math.Pow(f, -altimeterRedSlope)
	}
	return &Altimeter{seed: p.Seed, freq: freq, psd: psd}
}

func (m *Altimeter) Name() string { return "Altimeter" }

func (m *Altimeter) FieldNames() []string { return []string{"simulated_error_altimeter"} }

// Generate reads only the along-track coordinates: altimeter noise is a nadir
// quantity with one sample per line.
func (m *Altimeter) Generate(ctx context.Context, req Request) (Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rng := newRand(m.seed, m.Name(), req.CycleNumber)
	nadir := signal1D(rng, m.freq, m.psd, req.AlongTrack)
	return Fields{"simulated_error_altimeter": Vector(nadir)}, nil
}
