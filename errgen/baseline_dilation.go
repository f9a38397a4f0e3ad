package errgen

import (
	"context"

	"github.com/YaoYu9404/swot-simulator/settings"
)

// dilationToHeight converts a baseline dilation (µm) at cross-track distance
// x (km) into a height error (m): dh = -(1 + H/Re)/(H·B) · δB · x².
// Units: δB µm → m (1e-6), x² km² → m² (1e6), H km → m (1e3).
const dilationToHeight = -geometricFactor / (satelliteAltitude * 1e3 * baselineLength) * 1e-6 * 1e6

// BaselineDilation synthesizes the height error induced by dilation of the
// interferometric baseline, quadratic in cross-track distance.
type BaselineDilation struct {
	seed int64
	psd  []float64
	freq []float64
}

// NewBaselineDilation builds the model from the calibrated dilation spectrum
// and the shared spatial frequency grid.
func NewBaselineDilation(p *settings.Parameters, dilationPSD, spatialFrequency []float64) *BaselineDilation {
	return &BaselineDilation{seed: p.Seed, psd: dilationPSD, freq: spatialFrequency}
}

func (m *BaselineDilation) Name() string { return "BaselineDilation" }

func (m *BaselineDilation) FieldNames() []string {
	return []string{"simulated_error_baseline_dilation"}
}

func (m *BaselineDilation) Generate(ctx context.Context, req Request) (Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.AcrossTrack) == 0 {
		return nil, errEmptyAcrossTrack
	}

	rng := newRand(m.seed, m.Name(), req.CycleNumber)
	dilation := signal1D(rng, m.freq, m.psd, req.AlongTrack)

	n, p := len(req.AlongTrack), len(req.AcrossTrack)
	data := make([]float64, n*p)
	for i := 0; i < n; i++ {
		for j, x := range req.AcrossTrack {
			data[i*p+j] = dilationToHeight * dilation[i] * x * x
		}
	}
	return Fields{"simulated_error_baseline_dilation": Grid(data, n, p)}, nil
}
