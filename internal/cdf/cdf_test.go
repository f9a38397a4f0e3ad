package cdf

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"math"
	"testing"
)

func TestEncode_ByteExactSmallDataset(t *testing.T) {
	f := NewFile()
	if err := f.AddDimension("x", 2); err != nil {
		t.Fatalf("AddDimension: %v", err)
	}
	f.AddAttribute(Text("title", "t"))
	v, err := f.AddVariable("v", Double, "x")
	if err != nil {
		t.Fatalf("AddVariable: %v", err)
	}
	v.SetDouble([]float64{1.0, 2.0})

	var buf bytes.Buffer
	if err := f.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	want := "" +
		"43444601" + // magic "CDF" version 1
		"00000000" + // numrecs
		"0000000a" + "00000001" + // dim_list, one dimension
		"00000001" + "78000000" + "00000002" + // "x", length 2
		"0000000c" + "00000001" + // gatt_list, one attribute
		"00000005" + "7469746c65000000" + // "title"
		"00000002" + "00000001" + "74000000" + // char, one value, "t"
		"0000000b" + "00000001" + // var_list, one variable
		"00000001" + "76000000" + // "v"
		"00000001" + "00000000" + // one dimension, id 0
		"00000000" + "00000000" + // no variable attributes
		"00000006" + "00000010" + "00000068" + // double, vsize 16, begin 104
		"3ff0000000000000" + "4000000000000000"
	if got := hex.EncodeToString(buf.Bytes()); got != want {
		t.Fatalf("encoded dataset mismatch\n got %s\nwant %s", got, want)
	}
}

func TestEncode_SequentialDataOffsets(t *testing.T) {
	f := NewFile()
	if err := f.AddDimension("n", 3); err != nil {
		t.Fatalf("AddDimension: %v", err)
	}
	a, err := f.AddVariable("a", Short, "n")
	if err != nil {
		t.Fatalf("AddVariable a: %v", err)
	}
	a.SetShort([]int16{1, 2, 3})
	b, err := f.AddVariable("b", Int, "n")
	if err != nil {
		t.Fatalf("AddVariable b: %v", err)
	}
	b.SetInt([]int32{4, 5, 6})

	var buf bytes.Buffer
	if err := f.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Six data bytes for the short variable are padded to eight so the
	// next variable begins on a four byte boundary.
	if a.begin%4 != 0 || b.begin != a.begin+8 {
		t.Fatalf("data offsets a=%d b=%d, want b = a+8 on a 4-byte boundary", a.begin, b.begin)
	}
	if len(buf.Bytes()) != b.begin+12 {
		t.Fatalf("dataset is %d bytes, want %d", len(buf.Bytes()), b.begin+12)
	}
	// b's first value sits exactly at its begin offset.
	first := binary.BigEndian.Uint32(buf.Bytes()[b.begin:])
	if first != 4 {
		t.Fatalf("value at b's begin offset is %d, want 4", first)
	}
}

func TestEncode_ShapeMismatch(t *testing.T) {
	f := NewFile()
	if err := f.AddDimension("n", 4); err != nil {
		t.Fatalf("AddDimension: %v", err)
	}
	v, err := f.AddVariable("v", Double, "n")
	if err != nil {
		t.Fatalf("AddVariable: %v", err)
	}
	v.SetDouble([]float64{1.0}) // shape requires 4 values

	if err := f.Encode(&bytes.Buffer{}); err == nil {
		t.Fatalf("expected shape mismatch error")
	}
}

func TestAddDimension_Validation(t *testing.T) {
	f := NewFile()
	if err := f.AddDimension("n", 0); err == nil {
		t.Fatalf("expected error for zero-length dimension")
	}
	if err := f.AddDimension("n", 2); err != nil {
		t.Fatalf("AddDimension: %v", err)
	}
	if err := f.AddDimension("n", 3); err == nil {
		t.Fatalf("expected error for duplicate dimension")
	}
}

func TestAddVariable_Validation(t *testing.T) {
	f := NewFile()
	if err := f.AddDimension("n", 2); err != nil {
		t.Fatalf("AddDimension: %v", err)
	}
	if _, err := f.AddVariable("v", Double, "missing"); err == nil {
		t.Fatalf("expected error for unknown dimension")
	}
	if _, err := f.AddVariable("v", Double, "n"); err != nil {
		t.Fatalf("AddVariable: %v", err)
	}
	if _, err := f.AddVariable("v", Int, "n"); err == nil {
		t.Fatalf("expected error for duplicate variable")
	}
	if _, err := f.AddVariable("w", Type(9), "n"); err == nil {
		t.Fatalf("expected error for invalid type")
	}
}

func TestAttributeBuilders(t *testing.T) {
	a := DoubleAttr("scale_factor", 0.0001)
	if a.Type != Double || a.count() != 1 {
		t.Fatalf("double attribute: type %v count %d", a.Type, a.count())
	}
	if got := math.Float64frombits(binary.BigEndian.Uint64(a.Value)); got != 0.0001 {
		t.Fatalf("double attribute value %g, want 0.0001", got)
	}

	s := ShortAttr("valid_range", -100, 100)
	if s.count() != 2 {
		t.Fatalf("short attribute count %d, want 2", s.count())
	}

	i := IntAttr("_FillValue", 2147483647)
	if got := int32(binary.BigEndian.Uint32(i.Value)); got != math.MaxInt32 {
		t.Fatalf("int attribute value %d", got)
	}

	c := Text("units", "m")
	if c.Type != Char || string(c.Value) != "m" {
		t.Fatalf("char attribute: %v %q", c.Type, c.Value)
	}
}

func TestTypeSizes(t *testing.T) {
	sizes := map[Type]int{Byte: 1, Char: 1, Short: 2, Int: 4, Float: 4, Double: 8}
	for typ, want := range sizes {
		if got := typ.Size(); got != want {
			t.Fatalf("%v size %d, want %d", typ, got, want)
		}
	}
	if Type(0).Size() != 0 {
		t.Fatalf("invalid type must have zero size")
	}
}
