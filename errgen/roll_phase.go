package errgen

import (
	"context"
	"math"

	"github.com/YaoYu9404/swot-simulator/settings"
)

// rollToHeight converts a platform roll angle (arcsec) at cross-track
// distance x (km) into a height error (m): dh = (1 + H/Re) · θ · x.
const rollToHeight = geometricFactor * arcsecToRad * 1e3

// phaseToHeight converts an interferometric phase screen (deg) at cross-track
// distance x (km) into a height error (m), through the phase-to-look-angle
// sensitivity λ/(2πB) of the interferometer.
const phaseToHeight = geometricFactor * degToRad * kaBandWavelength / (2.0 * math.Pi * baselineLength) * 1e3

// RollPhase synthesizes the two attitude-driven swath errors: the roll error,
// linear in cross-track distance across the full swath, and the phase-screen
// error with an independent realization per swath side.
type RollPhase struct {
	seed     int64
	rollPSD  []float64
	phasePSD []float64
	freq     []float64
}

// NewRollPhase builds the model from the calibrated roll and phase spectra
// and the shared spatial frequency grid.
func NewRollPhase(p *settings.Parameters, rollPSD, phasePSD, spatialFrequency []float64) *RollPhase {
	return &RollPhase{seed: p.Seed, rollPSD: rollPSD, phasePSD: phasePSD, freq: spatialFrequency}
}

func (m *RollPhase) Name() string { return "RollPhase" }

func (m *RollPhase) FieldNames() []string {
	return []string{"simulated_error_roll", "simulated_error_phase"}
}

func (m *RollPhase) Generate(ctx context.Context, req Request) (Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.AcrossTrack) == 0 {
		return nil, errEmptyAcrossTrack
	}

	rng := newRand(m.seed, m.Name(), req.CycleNumber)
	roll := signal1D(rng, m.freq, m.rollPSD, req.AlongTrack)
	phaseLeft := signal1D(rng, m.freq, m.phasePSD, req.AlongTrack)
	phaseRight := signal1D(rng, m.freq, m.phasePSD, req.AlongTrack)

	n, p := len(req.AlongTrack), len(req.AcrossTrack)
	rollErr := make([]float64, n*p)
	phaseErr := make([]float64, n*p)
	for i := 0; i < n; i++ {
		for j, x := range req.AcrossTrack {
			rollErr[i*p+j] = rollToHeight * roll[i] * x
			screen := phaseLeft[i]
			if x >= 0 {
				screen = phaseRight[i]
			}
			phaseErr[i*p+j] = phaseToHeight * screen * x
		}
	}
	return Fields{
		"simulated_error_roll":  Grid(rollErr, n, p),
		"simulated_error_phase": Grid(phaseErr, n, p),
	}, nil
}
