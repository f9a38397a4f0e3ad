// Package settings loads and validates the simulation parameters.
package settings

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Known noise category names, in the order the product documentation lists
// them. The error generator accepts exactly these.
var KnownNoise = []string{
	"Altimeter",
	"BaselineDilation",
	"Karin",
	"RollPhase",
	"Timing",
	"WetTroposphere",
}

// OnError selects how the driver reacts when error generation fails for one
// pass.
type OnError string

const (
	// AbortRun stops the whole simulation on the first failing pass.
	AbortRun OnError = "abort"
	// SkipPass logs the failure and continues with the next pass.
	SkipPass OnError = "skip"
)

// Parameters holds the simulation settings. The struct is treated as
// immutable once Load returns it; every component keeps a shared reference.
type Parameters struct {
	// Noise lists the enabled error categories, in configuration order.
	Noise []string

	// ErrorSpectrum is the path of the instrumental error spectrum file.
	ErrorSpectrum string

	// KarinNoise is the path of an optional Karin variance table; empty
	// selects the built-in table.
	KarinNoise string

	// Sampling geometry (kilometres).
	DeltaAl   float64 // along-track sampling interval
	DeltaAc   float64 // across-track sampling interval
	HalfSwath float64 // swath half-width
	HalfGap   float64 // nadir gap half-width
	LenRepeat float64 // along-track length of one repeat cycle

	// Per-category tuning.
	NBeam         int     // radiometer beams used by the wet troposphere model
	SigmaTiming   float64 // timing drift standard deviation, ps
	SWH           float64 // significant wave height fed to the Karin model, m
	HeightSSBCorr bool    // apply the sea state bias correction to heights

	// Seed is the base seed for every reproducible noise draw.
	Seed int64

	// Driver scope.
	CycleDuration float64 // days per repeat cycle
	Cycles        int     // number of cycles to simulate
	Passes        []int   // pass numbers to simulate, empty means all
	OnError       OnError

	// Orbit source: a two line element set.
	TLE1 string
	TLE2 string

	// Product writer scope.
	OutputDir       string
	CompleteProduct bool // also emit catalog variables this run never computes
	Nadir           bool // also emit the standalone nadir product per pass
}

// Wire shapes stay unexported so the on-disk format can evolve separately
// from Parameters.
type parametersYAML struct {
	Noise         []string `yaml:"noise"`
	ErrorSpectrum string   `yaml:"error_spectrum"`
	KarinNoise    string   `yaml:"karin_noise"`

	DeltaAl   *float64 `yaml:"delta_al"`
	DeltaAc   *float64 `yaml:"delta_ac"`
	HalfSwath *float64 `yaml:"half_swath"`
	HalfGap   *float64 `yaml:"half_gap"`
	LenRepeat *float64 `yaml:"len_repeat"`

	NBeam         *int     `yaml:"nbeam"`
	SigmaTiming   *float64 `yaml:"sigma_timing"`
	SWH           *float64 `yaml:"swh"`
	HeightSSBCorr bool     `yaml:"height_ssb_corr"`

	Seed *int64 `yaml:"seed"`

	CycleDuration *float64 `yaml:"cycle_duration"`
	Cycles        *int     `yaml:"cycles"`
	Passes        []int    `yaml:"passes"`
	OnError       string   `yaml:"on_error"`

	TLE1 string `yaml:"tle1"`
	TLE2 string `yaml:"tle2"`

	OutputDir       string `yaml:"output_dir"`
	CompleteProduct bool   `yaml:"complete_product"`
	Nadir           bool   `yaml:"nadir"`
}

// Defaults mirror the reference mission geometry: 2 km posting, a 70 km half
// swath with a 10 km nadir gap, and the 20-day/20866 km repeat orbit.
func defaults() Parameters {
	return Parameters{
		DeltaAl:       2.0,
		DeltaAc:       2.0,
		HalfSwath:     70.0,
		HalfGap:       10.0,
		LenRepeat:     20866.0,
		NBeam:         2,
		SigmaTiming:   100.0,
		SWH:           2.0,
		Seed:          0,
		CycleDuration: 20.86455,
		Cycles:        1,
		OnError:       AbortRun,
		OutputDir:     "out",
	}
}

// Load reads a YAML parameter file and validates it.
func Load(path string) (*Parameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("settings: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes parameters from r and validates them.
func Read(r io.Reader) (*Parameters, error) {
	var wire parametersYAML
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("settings: decode: %w", err)
	}

	p := defaults()
	p.Noise = append([]string(nil), wire.Noise...)
	p.ErrorSpectrum = wire.ErrorSpectrum
	p.KarinNoise = wire.KarinNoise
	setFloat(&p.DeltaAl, wire.DeltaAl)
	setFloat(&p.DeltaAc, wire.DeltaAc)
	setFloat(&p.HalfSwath, wire.HalfSwath)
	setFloat(&p.HalfGap, wire.HalfGap)
	setFloat(&p.LenRepeat, wire.LenRepeat)
	if wire.NBeam != nil {
		p.NBeam = *wire.NBeam
	}
	setFloat(&p.SigmaTiming, wire.SigmaTiming)
	setFloat(&p.SWH, wire.SWH)
	p.HeightSSBCorr = wire.HeightSSBCorr
	if wire.Seed != nil {
		p.Seed = *wire.Seed
	}
	setFloat(&p.CycleDuration, wire.CycleDuration)
	if wire.Cycles != nil {
		p.Cycles = *wire.Cycles
	}
	p.Passes = append([]int(nil), wire.Passes...)
	if wire.OnError != "" {
		p.OnError = OnError(strings.ToLower(wire.OnError))
	}
	p.TLE1 = wire.TLE1
	p.TLE2 = wire.TLE2
	if wire.OutputDir != "" {
		p.OutputDir = wire.OutputDir
	}
	p.CompleteProduct = wire.CompleteProduct
	p.Nadir = wire.Nadir

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks internal consistency. The noise list is checked against the
// known categories here so a bad configuration fails before any table or
// model is built.
func (p *Parameters) Validate() error {
	known := make(map[string]bool, len(KnownNoise))
	for _, name := range KnownNoise {
		known[name] = true
	}
	seen := make(map[string]bool, len(p.Noise))
	for _, name := range p.Noise {
		if !known[name] {
			return fmt.Errorf("settings: unknown noise category %q (known: %s)",
				name, strings.Join(KnownNoise, ", "))
		}
		if seen[name] {
			return fmt.Errorf("settings: noise category %q listed twice", name)
		}
		seen[name] = true
	}

	if len(p.Noise) > 0 && p.NeedsSpectrum() && p.ErrorSpectrum == "" {
		return fmt.Errorf("settings: error_spectrum is required when noise includes a spectrum-driven category")
	}
	if p.DeltaAl <= 0 {
		return fmt.Errorf("settings: delta_al must be positive, got %g", p.DeltaAl)
	}
	if p.DeltaAc <= 0 {
		return fmt.Errorf("settings: delta_ac must be positive, got %g", p.DeltaAc)
	}
	if p.LenRepeat <= 0 {
		return fmt.Errorf("settings: len_repeat must be positive, got %g", p.LenRepeat)
	}
	if p.HalfSwath <= p.HalfGap {
		return fmt.Errorf("settings: half_swath (%g) must exceed half_gap (%g)", p.HalfSwath, p.HalfGap)
	}
	if p.NBeam != 1 && p.NBeam != 2 {
		return fmt.Errorf("settings: nbeam must be 1 or 2, got %d", p.NBeam)
	}
	if p.Cycles < 0 {
		return fmt.Errorf("settings: cycles must not be negative, got %d", p.Cycles)
	}
	switch p.OnError {
	case AbortRun, SkipPass:
	default:
		return fmt.Errorf("settings: on_error must be %q or %q, got %q", AbortRun, SkipPass, p.OnError)
	}
	if !sort.IntsAreSorted(p.Passes) {
		return fmt.Errorf("settings: passes must be listed in increasing order")
	}
	return nil
}

// NeedsSpectrum reports whether any enabled category draws on the calibrated
// error spectrum table.
func (p *Parameters) NeedsSpectrum() bool {
	for _, name := range p.Noise {
		switch name {
		case "BaselineDilation", "RollPhase", "Timing":
			return true
		}
	}
	return false
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}
