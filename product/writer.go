package product

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/YaoYu9404/swot-simulator/errgen"
	"github.com/YaoYu9404/swot-simulator/internal/cdf"
	"github.com/YaoYu9404/swot-simulator/internal/logging"
	"github.com/YaoYu9404/swot-simulator/orbit"
	"github.com/YaoYu9404/swot-simulator/settings"
)

const reference = "Gaultier, L., C. Ubelmann, and L.-L. Fu, 2016: The " +
	"Challenge of Using Future SWOT Data for Oceanic Field Reconstruction. " +
	"J. Atmos. Oceanic Technol., 33, 119-126, doi:10.1175/jtech-d-15-0160.1. " +
	"http://dx.doi.org/10.1175/JTECH-D-15-0160.1."

// Variable time axes count seconds from this epoch.
var timeEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// PassData is everything the writer needs to emit one pass file.
type PassData struct {
	Pass *orbit.Pass

	// SSH is the sea surface height grid with the simulated errors already
	// applied, shaped (num_lines, num_pixels).
	SSH errgen.Array

	// Fields are the individual simulated error fields.
	Fields errgen.Fields
}

// NadirData is everything the writer needs to emit one standalone nadir file.
type NadirData struct {
	Pass *orbit.Pass

	// SSH is the sea surface height along the nadir track with the simulated
	// altimeter error already applied, length num_lines.
	SSH errgen.Array

	// Fields are the simulated error fields. Only one-dimensional fields
	// belong to the nadir product; swath grids are ignored.
	Fields errgen.Fields
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriterLogger overrides the writer's logger.
func WithWriterLogger(log logging.Logger) WriterOption {
	return func(w *Writer) { w.log = log }
}

// Writer emits one product file per pass under the configured output tree.
type Writer struct {
	catalog  *Catalog
	dir      string
	complete bool
	log      logging.Logger
}

// NewWriter builds a writer for the given catalog and run parameters.
func NewWriter(catalog *Catalog, params *settings.Parameters, opts ...WriterOption) *Writer {
	w := &Writer{
		catalog:  catalog,
		dir:      params.OutputDir,
		complete: params.CompleteProduct,
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the output location of one pass file.
func (w *Writer) Path(cycle, pass int) string {
	return filepath.Join(w.dir, "karin", fmt.Sprintf("cycle_%03d", cycle),
		fmt.Sprintf("SWOT_L2_LR_SSH_Expert_%03d_%03d.nc", cycle, pass))
}

// WritePass validates the dataset against the catalog and writes the pass
// file. Unknown field names fail before any file I/O.
func (w *Writer) WritePass(ctx context.Context, data PassData) error {
	pass := data.Pass
	n, m := pass.NumLines(), pass.NumPixels()
	if n == 0 || m == 0 {
		return fmt.Errorf("WritePass: empty pass geometry (%d lines, %d pixels)", n, m)
	}
	for name := range data.Fields {
		if !w.catalog.Has(name) {
			return fmt.Errorf("WritePass: field %q is not described by the product catalog", name)
		}
	}
	if data.SSH.NumLines != n || data.SSH.NumPixels != m {
		return fmt.Errorf("WritePass: ssh grid is (%d,%d), pass geometry is (%d,%d)",
			data.SSH.NumLines, data.SSH.NumPixels, n, m)
	}

	file := cdf.NewFile()
	if err := file.AddDimension("num_lines", n); err != nil {
		return fmt.Errorf("WritePass: %w", err)
	}
	if err := file.AddDimension("num_pixels", m); err != nil {
		return fmt.Errorf("WritePass: %w", err)
	}
	w.globalAttributes(file, pass, true)

	computed := w.computedVariables(data)
	for _, name := range w.catalog.Names() {
		entry, _ := w.catalog.Get(name)
		values, ok := computed[name]
		if !ok {
			if !w.complete {
				continue
			}
			values = fillArray(entry, n, m)
		}
		if err := w.addVariable(file, name, entry, values, n, m); err != nil {
			return fmt.Errorf("WritePass: %w", err)
		}
	}

	path := w.Path(pass.Cycle, pass.Number)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("WritePass: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("WritePass: %w", err)
	}
	if err := file.Encode(f); err != nil {
		f.Close()
		return fmt.Errorf("WritePass: encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("WritePass: %w", err)
	}
	w.log.Info(ctx, "wrote pass file",
		logging.String("path", path),
		logging.Int("lines", n),
		logging.Int("pixels", m))
	return nil
}

// NadirPath returns the output location of one standalone nadir pass file.
func (w *Writer) NadirPath(cycle, pass int) string {
	return filepath.Join(w.dir, "nadir", fmt.Sprintf("cycle_%03d", cycle),
		fmt.Sprintf("SWOT_L2_LR_SSH_Nadir_%03d_%03d.nc", cycle, pass))
}

// nadirName maps a catalog variable name to its name in the standalone nadir
// product, where the coordinates drop their _nadir suffix.
func nadirName(name string) string {
	switch name {
	case "latitude_nadir":
		return "latitude"
	case "longitude_nadir":
		return "longitude"
	}
	return name
}

// WriteNadir writes the standalone nadir product for one pass: the time axis,
// the nadir coordinates, ssh_nadir and the one-dimensional error fields.
func (w *Writer) WriteNadir(ctx context.Context, data NadirData) error {
	pass := data.Pass
	n := pass.NumLines()
	if n == 0 {
		return fmt.Errorf("WriteNadir: empty pass geometry")
	}
	for name := range data.Fields {
		if !w.catalog.Has(name) {
			return fmt.Errorf("WriteNadir: field %q is not described by the product catalog", name)
		}
	}
	if data.SSH.IsGrid() || data.SSH.NumLines != n {
		return fmt.Errorf("WriteNadir: ssh has %d lines, pass geometry has %d",
			data.SSH.NumLines, n)
	}

	file := cdf.NewFile()
	if err := file.AddDimension("num_lines", n); err != nil {
		return fmt.Errorf("WriteNadir: %w", err)
	}
	w.globalAttributes(file, pass, false)

	seconds := make([]float64, n)
	for i, t := range pass.Time {
		seconds[i] = t.Sub(timeEpoch).Seconds()
	}
	computed := map[string][]float64{
		"time":            seconds,
		"latitude_nadir":  pass.LatNadir,
		"longitude_nadir": mapValues(pass.LonNadir, normalizeLongitude),
		"ssh_nadir":       data.SSH.Data,
	}
	for name, arr := range data.Fields {
		if !arr.IsGrid() {
			computed[name] = arr.Data
		}
	}

	for _, name := range w.catalog.Names() {
		entry, _ := w.catalog.Get(name)
		if len(entry.Shape) != 1 || entry.Shape[0] != "num_lines" {
			continue
		}
		values, ok := computed[name]
		if !ok {
			if !w.complete {
				continue
			}
			values = fillArray(entry, n, 0)
		}
		if err := w.addVariable(file, nadirName(name), entry, values, n, 0); err != nil {
			return fmt.Errorf("WriteNadir: %w", err)
		}
	}

	path := w.NadirPath(pass.Cycle, pass.Number)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("WriteNadir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("WriteNadir: %w", err)
	}
	if err := file.Encode(f); err != nil {
		f.Close()
		return fmt.Errorf("WriteNadir: encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("WriteNadir: %w", err)
	}
	w.log.Info(ctx, "wrote nadir file",
		logging.String("path", path),
		logging.Int("lines", n))
	return nil
}

// computedVariables maps catalog names to the values this pass actually
// carries, in physical units.
func (w *Writer) computedVariables(data PassData) map[string][]float64 {
	pass := data.Pass
	n, m := pass.NumLines(), pass.NumPixels()

	seconds := make([]float64, n)
	for i, t := range pass.Time {
		seconds[i] = t.Sub(timeEpoch).Seconds()
	}

	// Across-track distances are stored in metres, broadcast over lines.
	xac := make([]float64, n*m)
	for i := 0; i < n; i++ {
		for j, x := range pass.AcrossTrack {
			xac[i*m+j] = x * 1000.0
		}
	}

	vars := map[string][]float64{
		"time":                 seconds,
		"latitude":             flatten(pass.Lat, nil),
		"longitude":            flatten(pass.Lon, normalizeLongitude),
		"latitude_nadir":       pass.LatNadir,
		"longitude_nadir":      mapValues(pass.LonNadir, normalizeLongitude),
		"cross_track_distance": xac,
		"ssh_karin":            data.SSH.Data,
	}
	for name, arr := range data.Fields {
		vars[name] = arr.Data
	}
	return vars
}

func (w *Writer) addVariable(file *cdf.File, name string, entry *Entry, values []float64, n, m int) error {
	want := 1
	for _, dim := range entry.Shape {
		switch dim {
		case "num_lines":
			want *= n
		case "num_pixels":
			want *= m
		default:
			return fmt.Errorf("variable %q uses unknown dimension %q", name, dim)
		}
	}
	if len(values) != want {
		return fmt.Errorf("variable %q has %d values, shape requires %d", name, len(values), want)
	}

	v, err := file.AddVariable(name, entry.Type, entry.Shape...)
	if err != nil {
		return err
	}
	for _, a := range entry.Attrs {
		v.AddAttribute(cdf.Text(a.Key, a.Value))
	}
	if entry.Packed {
		v.AddAttribute(cdf.DoubleAttr("scale_factor", entry.ScaleFactor))
		v.AddAttribute(cdf.DoubleAttr("add_offset", entry.AddOffset))
	}
	if entry.ValidMin != nil {
		v.AddAttribute(cdf.DoubleAttr("valid_min", *entry.ValidMin))
	}
	if entry.ValidMax != nil {
		v.AddAttribute(cdf.DoubleAttr("valid_max", *entry.ValidMax))
	}

	switch {
	case entry.Packed:
		packed := make([]int32, len(values))
		for i, x := range values {
			packed[i] = entry.pack(x)
		}
		switch entry.Type {
		case cdf.Byte:
			v.AddAttribute(cdf.ByteAttr("_FillValue", int8(entry.FillValue)))
			bytes := make([]byte, len(packed))
			for i, x := range packed {
				bytes[i] = byte(int8(x))
			}
			v.SetBytes(bytes)
		case cdf.Short:
			v.AddAttribute(cdf.ShortAttr("_FillValue", int16(entry.FillValue)))
			shorts := make([]int16, len(packed))
			for i, x := range packed {
				shorts[i] = int16(x)
			}
			v.SetShort(shorts)
		case cdf.Int:
			v.AddAttribute(cdf.IntAttr("_FillValue", int32(entry.FillValue)))
			v.SetInt(packed)
		default:
			return fmt.Errorf("variable %q: cannot pack type %v", name, entry.Type)
		}
	case entry.Type == cdf.Double:
		if entry.HasFill {
			v.AddAttribute(cdf.DoubleAttr("_FillValue", entry.FillValue))
		}
		v.SetDouble(substituteFill(values, entry))
	case entry.Type == cdf.Float:
		if entry.HasFill {
			v.AddAttribute(cdf.FloatAttr("_FillValue", float32(entry.FillValue)))
		}
		sub := substituteFill(values, entry)
		floats := make([]float32, len(sub))
		for i, x := range sub {
			floats[i] = float32(x)
		}
		v.SetFloat(floats)
	default:
		return fmt.Errorf("variable %q: unsupported unpacked type %v", name, entry.Type)
	}
	return nil
}

// pack converts one physical value to its stored integer representation.
func (e *Entry) pack(v float64) int32 {
	if math.IsNaN(v) {
		return int32(e.FillValue)
	}
	return int32(math.Round((v - e.AddOffset) / e.ScaleFactor))
}

func substituteFill(values []float64, e *Entry) []float64 {
	if !e.HasFill {
		return values
	}
	out := make([]float64, len(values))
	for i, x := range values {
		if math.IsNaN(x) {
			out[i] = e.FillValue
		} else {
			out[i] = x
		}
	}
	return out
}

// fillArray builds an all-fill array for a catalog variable this pass did not
// compute.
func fillArray(e *Entry, n, m int) []float64 {
	size := 1
	for _, dim := range e.Shape {
		switch dim {
		case "num_lines":
			size *= n
		case "num_pixels":
			size *= m
		}
	}
	out := make([]float64, size)
	for i := range out {
		out[i] = math.NaN() // encoded as the fill value
	}
	return out
}

func (w *Writer) globalAttributes(file *cdf.File, pass *orbit.Pass, swath bool) {
	first := pass.Time[0]
	last := pass.Time[len(pass.Time)-1]

	file.AddAttribute(cdf.Text("Conventions", "CF-1.7"))
	file.AddAttribute(cdf.Text("title", "Level 2 Low Rate Sea Surface Height Data Product"))
	file.AddAttribute(cdf.Text("institution", "CNES/JPL"))
	file.AddAttribute(cdf.Text("source", "Simulate product"))
	file.AddAttribute(cdf.Text("history", time.Now().UTC().Format("2006-01-02 15:04:05")+" : Creation"))
	file.AddAttribute(cdf.Text("platform", "SWOT"))
	file.AddAttribute(cdf.Text("references", reference))
	file.AddAttribute(cdf.Text("reference_document", "D-56407_SWOT_Product_Description_L2_LR_SSH"))
	file.AddAttribute(cdf.Text("contact", "CNES aviso@altimetry.fr, JPL podaac@podaac.jpl.nasa.gov"))
	file.AddAttribute(cdf.IntAttr("cycle_number", int32(pass.Cycle)))
	file.AddAttribute(cdf.IntAttr("pass_number", int32(pass.Number)))
	file.AddAttribute(cdf.Text("time_coverage_start", first.UTC().Format("2006-01-02T15:04:05")+"Z"))
	file.AddAttribute(cdf.Text("time_coverage_end", last.UTC().Format("2006-01-02T15:04:05")+"Z"))
	file.AddAttribute(cdf.Text("time_coverage_duration", isoDuration(last.Sub(first))))

	var lonMin, lonMax, latMin, latMax float64
	if swath {
		lonMin, lonMax = gridRange(pass.Lon, normalizeLongitude)
		latMin, latMax = gridRange(pass.Lat, nil)
	} else {
		lonMin, lonMax = vectorRange(pass.LonNadir, normalizeLongitude)
		latMin, latMax = vectorRange(pass.LatNadir, nil)
	}
	file.AddAttribute(cdf.DoubleAttr("geospatial_lon_min", lonMin))
	file.AddAttribute(cdf.DoubleAttr("geospatial_lon_max", lonMax))
	file.AddAttribute(cdf.DoubleAttr("geospatial_lat_min", latMin))
	file.AddAttribute(cdf.DoubleAttr("geospatial_lat_max", latMax))

	n, m := pass.NumLines(), pass.NumPixels()
	if swath && n > 0 && m > 0 {
		file.AddAttribute(cdf.DoubleAttr("left_first_longitude", normalizeLongitude(pass.Lon[0][0])))
		file.AddAttribute(cdf.DoubleAttr("left_first_latitude", pass.Lat[0][0]))
		file.AddAttribute(cdf.DoubleAttr("left_last_longitude", normalizeLongitude(pass.Lon[n-1][0])))
		file.AddAttribute(cdf.DoubleAttr("left_last_latitude", pass.Lat[n-1][0]))
		file.AddAttribute(cdf.DoubleAttr("right_first_longitude", normalizeLongitude(pass.Lon[0][m-1])))
		file.AddAttribute(cdf.DoubleAttr("right_first_latitude", pass.Lat[0][m-1]))
		file.AddAttribute(cdf.DoubleAttr("right_last_longitude", normalizeLongitude(pass.Lon[n-1][m-1])))
		file.AddAttribute(cdf.DoubleAttr("right_last_latitude", pass.Lat[n-1][m-1]))
	}
	file.AddAttribute(cdf.Text("wavelength", "0.008385803020979"))
	file.AddAttribute(cdf.Text("orbit_solution", "POE"))
}

// isoDuration formats a duration as ISO 8601 with second resolution.
func isoDuration(d time.Duration) string {
	seconds := int64(d.Seconds())
	hours := seconds / 3600
	seconds -= hours * 3600
	minutes := seconds / 60
	seconds -= minutes * 60

	out := "P"
	if hours > 0 {
		out += fmt.Sprintf("%dH", hours)
	}
	if minutes > 0 || len(out) > 1 {
		out += fmt.Sprintf("%dM", minutes)
	}
	return out + fmt.Sprintf("%dS", seconds)
}

// normalizeLongitude maps a longitude to [0, 360).
func normalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon, 360.0)
	if lon < 0 {
		lon += 360.0
	}
	return lon
}

func flatten(grid [][]float64, transform func(float64) float64) []float64 {
	var out []float64
	for _, row := range grid {
		for _, v := range row {
			if transform != nil {
				v = transform(v)
			}
			out = append(out, v)
		}
	}
	return out
}

func mapValues(values []float64, transform func(float64) float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = transform(v)
	}
	return out
}

func vectorRange(values []float64, transform func(float64) float64) (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if transform != nil {
			v = transform(v)
		}
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	return min, max
}

func gridRange(grid [][]float64, transform func(float64) float64) (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, row := range grid {
		for _, v := range row {
			if transform != nil {
				v = transform(v)
			}
			min = math.Min(min, v)
			max = math.Max(max, v)
		}
	}
	return min, max
}
