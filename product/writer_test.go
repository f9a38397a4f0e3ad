package product

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/YaoYu9404/swot-simulator/errgen"
	"github.com/YaoYu9404/swot-simulator/internal/cdf"
	"github.com/YaoYu9404/swot-simulator/orbit"
	"github.com/YaoYu9404/swot-simulator/settings"
)

func testPass() *orbit.Pass {
	start := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	return &orbit.Pass{
		Cycle:       3,
		Number:      17,
		Time:        []time.Time{start, start.Add(time.Second), start.Add(2 * time.Second)},
		AlongTrack:  []float64{0, 2, 4},
		AcrossTrack: []float64{-10, 10},
		LatNadir:    []float64{10.0, 10.1, 10.2},
		LonNadir:    []float64{-50.0, -50.0, -50.0},
		Lat:         [][]float64{{10.0, 10.0}, {10.1, 10.1}, {10.2, 10.2}},
		Lon:         [][]float64{{-50.1, -49.9}, {-50.1, -49.9}, {-50.1, -49.9}},
	}
}

func testPassData() PassData {
	ssh := make([]float64, 6)
	karin := make([]float64, 6)
	for i := range ssh {
		ssh[i] = 0.5 + 0.01*float64(i)
		karin[i] = 0.001 * float64(i)
	}
	return PassData{
		Pass: testPass(),
		SSH:  errgen.Grid(ssh, 3, 2),
		Fields: errgen.Fields{
			"simulated_error_karin":     errgen.Grid(karin, 3, 2),
			"simulated_error_altimeter": errgen.Vector([]float64{0.01, 0.02, 0.03}),
		},
	}
}

func testNadirData() NadirData {
	return NadirData{
		Pass: testPass(),
		SSH:  errgen.Vector([]float64{0.5, 0.51, 0.52}),
		Fields: errgen.Fields{
			"simulated_error_altimeter": errgen.Vector([]float64{0.01, 0.02, 0.03}),
			"simulated_error_karin":     errgen.Grid(make([]float64, 6), 3, 2),
		},
	}
}

func newTestWriter(t *testing.T, complete bool) *Writer {
	t.Helper()
	catalog, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	p := &settings.Parameters{}
	p.OutputDir = t.TempDir()
	p.CompleteProduct = complete
	return NewWriter(catalog, p)
}

func TestWriter_Path(t *testing.T) {
	w := newTestWriter(t, false)
	got := w.Path(3, 17)
	want := filepath.Join(w.dir, "karin", "cycle_003", "SWOT_L2_LR_SSH_Expert_003_017.nc")
	if got != want {
		t.Fatalf("Path = %q, want %q", got, want)
	}
}

func TestWritePass_CreatesClassicFile(t *testing.T) {
	w := newTestWriter(t, false)
	if err := w.WritePass(context.Background(), testPassData()); err != nil {
		t.Fatalf("WritePass: %v", err)
	}

	raw, err := os.ReadFile(w.Path(3, 17))
	if err != nil {
		t.Fatalf("reading pass file: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("CDF\x01")) {
		t.Fatalf("pass file does not start with the classic magic, got % x", raw[:4])
	}
	for _, name := range []string{"time", "latitude", "longitude", "ssh_karin", "simulated_error_karin", "simulated_error_altimeter"} {
		if !bytes.Contains(raw, []byte(name)) {
			t.Fatalf("pass file is missing variable %q", name)
		}
	}
	// Uncomputed variables are skipped unless a complete product is asked for.
	if bytes.Contains(raw, []byte("simulated_error_roll")) {
		t.Fatalf("uncomputed variable written without complete_product")
	}
}

func TestWritePass_CompleteProductFillsCatalog(t *testing.T) {
	w := newTestWriter(t, true)
	if err := w.WritePass(context.Background(), testPassData()); err != nil {
		t.Fatalf("WritePass: %v", err)
	}
	raw, err := os.ReadFile(w.Path(3, 17))
	if err != nil {
		t.Fatalf("reading pass file: %v", err)
	}
	for _, name := range []string{"simulated_error_roll", "simulated_error_phase", "simulated_error_timing", "simulated_error_troposphere", "simulated_error_baseline_dilation"} {
		if !bytes.Contains(raw, []byte(name)) {
			t.Fatalf("complete product is missing catalog variable %q", name)
		}
	}
}

func TestWritePass_UnknownFieldFailsBeforeIO(t *testing.T) {
	w := newTestWriter(t, false)
	data := testPassData()
	data.Fields["mystery_field"] = errgen.Vector([]float64{1, 2, 3})

	err := w.WritePass(context.Background(), data)
	if err == nil || !strings.Contains(err.Error(), "mystery_field") {
		t.Fatalf("expected unknown field error naming the field, got %v", err)
	}
	if _, statErr := os.Stat(w.Path(3, 17)); !os.IsNotExist(statErr) {
		t.Fatalf("pass file must not be created when validation fails")
	}
}

func TestWritePass_ShapeMismatch(t *testing.T) {
	w := newTestWriter(t, false)
	data := testPassData()
	data.SSH = errgen.Grid(make([]float64, 4), 2, 2)

	if err := w.WritePass(context.Background(), data); err == nil {
		t.Fatalf("expected shape mismatch error")
	}
}

func TestWritePass_EmptyGeometry(t *testing.T) {
	w := newTestWriter(t, false)
	data := testPassData()
	data.Pass.AcrossTrack = nil

	if err := w.WritePass(context.Background(), data); err == nil {
		t.Fatalf("expected error for empty pass geometry")
	}
}

func TestWriter_NadirPath(t *testing.T) {
	w := newTestWriter(t, false)
	got := w.NadirPath(3, 17)
	want := filepath.Join(w.dir, "nadir", "cycle_003", "SWOT_L2_LR_SSH_Nadir_003_017.nc")
	if got != want {
		t.Fatalf("NadirPath = %q, want %q", got, want)
	}
}

func TestWriteNadir_CreatesStandaloneProduct(t *testing.T) {
	w := newTestWriter(t, false)
	if err := w.WriteNadir(context.Background(), testNadirData()); err != nil {
		t.Fatalf("WriteNadir: %v", err)
	}

	raw, err := os.ReadFile(w.NadirPath(3, 17))
	if err != nil {
		t.Fatalf("reading nadir file: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("CDF\x01")) {
		t.Fatalf("nadir file does not start with the classic magic, got % x", raw[:4])
	}
	for _, name := range []string{"time", "ssh_nadir", "simulated_error_altimeter"} {
		if !bytes.Contains(raw, []byte(name)) {
			t.Fatalf("nadir file is missing variable %q", name)
		}
	}
	// Swath grids never make it into the nadir product.
	for _, name := range []string{"ssh_karin", "cross_track_distance", "simulated_error_karin"} {
		if bytes.Contains(raw, []byte(name)) {
			t.Fatalf("nadir file must not carry swath variable %q", name)
		}
	}
}

func TestWriteNadir_RejectsSwathShapedSSH(t *testing.T) {
	w := newTestWriter(t, false)
	data := testNadirData()
	data.SSH = errgen.Grid(make([]float64, 6), 3, 2)

	if err := w.WriteNadir(context.Background(), data); err == nil {
		t.Fatalf("expected error for grid-shaped nadir ssh")
	}
}

func TestAddVariable_PackedShort(t *testing.T) {
	w := newTestWriter(t, false)
	file := cdf.NewFile()
	if err := file.AddDimension("num_lines", 2); err != nil {
		t.Fatalf("AddDimension: %v", err)
	}
	e := &Entry{
		Name:        "quality_flag",
		Type:        cdf.Short,
		Shape:       []string{"num_lines"},
		Packed:      true,
		ScaleFactor: 0.01,
		FillValue:   -32768,
		HasFill:     true,
	}
	if err := w.addVariable(file, e.Name, e, []float64{1.23, math.NaN()}, 2, 0); err != nil {
		t.Fatalf("addVariable: %v", err)
	}

	var buf bytes.Buffer
	if err := file.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// 1.23/0.01 packs to 123, NaN packs to the fill value; both stored as
	// two-byte big-endian integers at the end of the file.
	if raw := buf.Bytes(); !bytes.HasSuffix(raw, []byte{0x00, 0x7b, 0x80, 0x00}) {
		t.Fatalf("packed short data bytes are wrong, tail % x", raw[len(raw)-4:])
	}
}

func TestEntryPack(t *testing.T) {
	e := &Entry{FillValue: 2147483647, HasFill: true, Packed: true, ScaleFactor: 0.0001}
	if got := e.pack(1.2345); got != 12345 {
		t.Fatalf("pack(1.2345) = %d, want 12345", got)
	}
	if got := e.pack(math.NaN()); got != 2147483647 {
		t.Fatalf("pack(NaN) = %d, want fill value", got)
	}
	e.AddOffset = 1.0
	if got := e.pack(1.0); got != 0 {
		t.Fatalf("pack with offset = %d, want 0", got)
	}
}

func TestNormalizeLongitude(t *testing.T) {
	cases := map[float64]float64{
		0:      0,
		-50:    310,
		370:    10,
		-360:   0,
		359.75: 359.75,
	}
	for in, want := range cases {
		if got := normalizeLongitude(in); math.Abs(got-want) > 1e-12 {
			t.Fatalf("normalizeLongitude(%g) = %g, want %g", in, got, want)
		}
	}
}

func TestIsoDuration(t *testing.T) {
	cases := map[time.Duration]string{
		42 * time.Second:                "P42S",
		3 * time.Minute:                 "P3M0S",
		2*time.Hour + 5*time.Second:     "P2H0M5S",
		time.Hour + 30*time.Minute:      "P1H30M0S",
		90*time.Minute + 5*time.Second:  "P1H30M5S",
	}
	for in, want := range cases {
		if got := isoDuration(in); got != want {
			t.Fatalf("isoDuration(%v) = %q, want %q", in, got, want)
		}
	}
}
