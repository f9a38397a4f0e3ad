// Package calibration loads the instrumental error spectrum table.
//
// The table holds the calibrated power spectral densities of the platform
// error processes (baseline dilation, roll, phase screen, timing drift) on a
// shared spatial frequency axis. It is loaded once, resampled onto the working
// frequency grid of the run, and shared read-only by every error model.
package calibration

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Channel names the loader requires in the calibration source.
const (
	ChannelSpatialFrequency = "spatial_frequency"
	ChannelDilationPSD      = "dilationPSD"
	ChannelRollPSD          = "rollPSD"
	ChannelPhasePSD         = "phasePSD"
	ChannelTimingPSD        = "timingPSD"
)

// FormatError reports a missing or malformed calibration channel.
type FormatError struct {
	Channel string
	Reason  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("calibration: channel %q %s", e.Channel, e.Reason)
}

// Table is the loaded spectrum table. All slices share one length and are
// never mutated after Load returns; model instances hold references, not
// copies.
type Table struct {
	// SpatialFrequency is the working frequency grid, cycles per km,
	// strictly increasing.
	SpatialFrequency []float64
	DilationPSD      []float64 // µrad²/(cy/km)
	RollPSD          []float64 // arcsec²/(cy/km)
	PhasePSD         []float64 // deg²/(cy/km)
	TimingPSD        []float64 // ps²/(cy/km)
}

type tableYAML struct {
	SpatialFrequency []float64 `yaml:"spatial_frequency"`
	DilationPSD      []float64 `yaml:"dilationPSD"`
	RollPSD          []float64 `yaml:"rollPSD"`
	PhasePSD         []float64 `yaml:"phasePSD"`
	TimingPSD        []float64 `yaml:"timingPSD"`
}

// Load reads the calibration source at path and resamples every channel onto
// the frequency grid implied by the along-track sampling interval deltaAl and
// the repeat length lenRepeat (both kilometres).
func Load(path string, deltaAl, lenRepeat float64) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("calibration: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, deltaAl, lenRepeat)
}

// Read decodes and resamples a calibration source from r. See Load.
func Read(r io.Reader, deltaAl, lenRepeat float64) (*Table, error) {
	if deltaAl <= 0 || lenRepeat <= 0 {
		return nil, fmt.Errorf("calibration: sampling interval %g and repeat length %g must be positive", deltaAl, lenRepeat)
	}

	var wire tableYAML
	if err := yaml.NewDecoder(r).Decode(&wire); err != nil {
		return nil, fmt.Errorf("calibration: decode: %w", err)
	}

	freq := wire.SpatialFrequency
	if err := checkAxis(freq); err != nil {
		return nil, err
	}

	channels := map[string][]float64{
		ChannelDilationPSD: wire.DilationPSD,
		ChannelRollPSD:     wire.RollPSD,
		ChannelPhasePSD:    wire.PhasePSD,
		ChannelTimingPSD:   wire.TimingPSD,
	}
	for name, data := range channels {
		if len(data) == 0 {
			return nil, &FormatError{Channel: name, Reason: "is missing or empty"}
		}
		if len(data) != len(freq) {
			return nil, &FormatError{
				Channel: name,
				Reason:  fmt.Sprintf("has %d samples, frequency axis has %d", len(data), len(freq)),
			}
		}
		for _, v := range data {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &FormatError{Channel: name, Reason: "contains a negative or non-finite density"}
			}
		}
	}

	grid := WorkingGrid(deltaAl, lenRepeat)
	return &Table{
		SpatialFrequency: grid,
		DilationPSD:      resample(freq, wire.DilationPSD, grid),
		RollPSD:          resample(freq, wire.RollPSD, grid),
		PhasePSD:         resample(freq, wire.PhasePSD, grid),
		TimingPSD:        resample(freq, wire.TimingPSD, grid),
	}, nil
}

// WorkingGrid builds the run frequency grid: multiples of 1/lenRepeat up to
// the Nyquist frequency of the along-track posting, 1/(2·deltaAl).
func WorkingGrid(deltaAl, lenRepeat float64) []float64 {
	df := 1.0 / lenRepeat
	nyquist := 1.0 / (2.0 * deltaAl)
	n := int(nyquist / df)
	grid := make([]float64, 0, n)
	for f := df; f <= nyquist*(1+1e-12); f += df {
		grid = append(grid, f)
	}
	return grid
}

func checkAxis(freq []float64) error {
	if len(freq) == 0 {
		return &FormatError{Channel: ChannelSpatialFrequency, Reason: "is missing or empty"}
	}
	for i, f := range freq {
		if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return &FormatError{Channel: ChannelSpatialFrequency, Reason: "must hold positive finite frequencies"}
		}
		if i > 0 && f <= freq[i-1] {
			return &FormatError{Channel: ChannelSpatialFrequency, Reason: "must be strictly increasing"}
		}
	}
	return nil
}

// resample interpolates the calibrated density onto the working grid.
// Frequencies outside the calibrated range clamp to the nearest endpoint,
// matching how the reference processing extends the spectra.
func resample(freq, psd, grid []float64) []float64 {
	out := make([]float64, len(grid))
	for i, f := range grid {
		out[i] = interp(freq, psd, f)
	}
	return out
}

func interp(xs, ys []float64, x float64) float64 {
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[len(xs)-1] {
		return ys[len(ys)-1]
	}
	j := sort.SearchFloat64s(xs, x)
	// xs[j-1] < x <= xs[j]
	x0, x1 := xs[j-1], xs[j]
	y0, y1 := ys[j-1], ys[j]
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}
