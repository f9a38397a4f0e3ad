package errgen

import (
	"math"
	"math/rand"
)

// Mission geometry and physical constants used by the error models.
const (
	satelliteAltitude = 891.0       // km
	earthRadius       = 6378.1363   // km
	baselineLength    = 10.0        // m, interferometric baseline
	kaBandWavelength  = 0.008385803 // m
	speedOfLight      = 299792458.0 // m/s
)

// geometricFactor is the usual (1 + H/Re) amplification of platform attitude
// errors projected on the ground.
const geometricFactor = 1.0 + satelliteAltitude/earthRadius

const (
	arcsecToRad = math.Pi / (180.0 * 3600.0)
	degToRad    = math.Pi / 180.0
)

// signal1D synthesizes a correlated 1-D noise realization matching the given
// power spectral density: one harmonic per frequency bin with amplitude
// sqrt(2·PSD·df) and a uniformly random phase. freq is the working grid in
// cycles per km, x the along-track coordinates in km.
func signal1D(rng *rand.Rand, freq, psd, x []float64) []float64 {
	out := make([]float64, len(x))
	if len(freq) == 0 {
		return out
	}
	for k, f := range freq {
		df := binWidth(freq, k)
		amp := math.Sqrt(2.0 * psd[k] * df)
		phase := rng.Float64() * 2.0 * math.Pi
		omega := 2.0 * math.Pi * f
		for i, xi := range x {
			out[i] += amp * math.Cos(omega*xi+phase)
		}
	}
	return out
}

// binWidth returns the spectral width represented by bin k, using half the
// distance to each neighbour so uneven grids integrate correctly.
func binWidth(freq []float64, k int) float64 {
	switch {
	case len(freq) == 1:
		return freq[0]
	case k == 0:
		return freq[1] - freq[0]
	case k == len(freq)-1:
		return freq[k] - freq[k-1]
	default:
		return (freq[k+1] - freq[k-1]) / 2.0
	}
}

// interpSigma linearly interpolates a lookup table of standard deviations,
// clamping outside the tabulated range.
func interpSigma(xs, ys []float64, x float64) float64 {
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[len(xs)-1] {
		return ys[len(ys)-1]
	}
	for i := 1; i < len(xs); i++ {
		if x <= xs[i] {
			t := (x - xs[i-1]) / (xs[i] - xs[i-1])
			return ys[i-1] + t*(ys[i]-ys[i-1])
		}
	}
	return ys[len(ys)-1]
}
