// Package cdf encodes datasets in the netCDF classic format (CDF-1). Only
// the fixed-size subset is supported: named dimensions, typed variables with
// attributes, and global attributes. Record (unlimited) dimensions are not
// implemented.
package cdf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Type is a netCDF external data type.
type Type int32

const (
	Byte   Type = 1
	Char   Type = 2
	Short  Type = 3
	Int    Type = 4
	Float  Type = 5
	Double Type = 6
)

// Size returns the external size of one value in bytes.
func (t Type) Size() int {
	switch t {
	case Byte, Char:
		return 1
	case Short:
		return 2
	case Int, Float:
		return 4
	case Double:
		return 8
	}
	return 0
}

func (t Type) String() string {
	switch t {
	case Byte:
		return "byte"
	case Char:
		return "char"
	case Short:
		return "short"
	case Int:
		return "int"
	case Float:
		return "float"
	case Double:
		return "double"
	}
	return fmt.Sprintf("Type(%d)", int32(t))
}

// Tags of the header lists.
const (
	tagDimension = 0x0A
	tagVariable  = 0x0B
	tagAttribute = 0x0C
)

// Attribute is a named typed value attached to a variable or to the file.
type Attribute struct {
	Name  string
	Type  Type
	Value []byte // external representation, unpadded
}

// Text builds a character attribute.
func Text(name, value string) Attribute {
	return Attribute{Name: name, Type: Char, Value: []byte(value)}
}

// DoubleAttr builds a double attribute from one or more values.
func DoubleAttr(name string, values ...float64) Attribute {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return Attribute{Name: name, Type: Double, Value: buf}
}

// FloatAttr builds a float attribute from one or more values.
func FloatAttr(name string, values ...float32) Attribute {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return Attribute{Name: name, Type: Float, Value: buf}
}

// IntAttr builds an int attribute from one or more values.
func IntAttr(name string, values ...int32) Attribute {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint32(buf[4*i:], uint32(v))
	}
	return Attribute{Name: name, Type: Int, Value: buf}
}

// ByteAttr builds a byte attribute from one or more values.
func ByteAttr(name string, values ...int8) Attribute {
	buf := make([]byte, len(values))
	for i, v := range values {
		buf[i] = byte(v)
	}
	return Attribute{Name: name, Type: Byte, Value: buf}
}

// ShortAttr builds a short attribute from one or more values.
func ShortAttr(name string, values ...int16) Attribute {
	buf := make([]byte, 2*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(buf[2*i:], uint16(v))
	}
	return Attribute{Name: name, Type: Short, Value: buf}
}

func (a Attribute) count() int {
	if s := a.Type.Size(); s > 0 {
		return len(a.Value) / s
	}
	return 0
}

type dimension struct {
	name   string
	length int
}

// Variable is a typed array bound to previously declared dimensions.
type Variable struct {
	name  string
	typ   Type
	dims  []int // indices into File.dims
	attrs []Attribute
	data  []byte

	begin int // assigned during encoding
}

// AddAttribute appends an attribute to the variable.
func (v *Variable) AddAttribute(a Attribute) { v.attrs = append(v.attrs, a) }

// SetDouble stores float64 values as the variable data.
func (v *Variable) SetDouble(values []float64) {
	buf := make([]byte, 8*len(values))
	for i, x := range values {
		binary.BigEndian.PutUint64(buf[8*i:], math.Float64bits(x))
	}
	v.data = buf
}

// SetFloat stores float32 values as the variable data.
func (v *Variable) SetFloat(values []float32) {
	buf := make([]byte, 4*len(values))
	for i, x := range values {
		binary.BigEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	v.data = buf
}

// SetInt stores int32 values as the variable data.
func (v *Variable) SetInt(values []int32) {
	buf := make([]byte, 4*len(values))
	for i, x := range values {
		binary.BigEndian.PutUint32(buf[4*i:], uint32(x))
	}
	v.data = buf
}

// SetShort stores int16 values as the variable data.
func (v *Variable) SetShort(values []int16) {
	buf := make([]byte, 2*len(values))
	for i, x := range values {
		binary.BigEndian.PutUint16(buf[2*i:], uint16(x))
	}
	v.data = buf
}

// SetBytes stores raw external bytes as the variable data.
func (v *Variable) SetBytes(values []byte) { v.data = values }

func (v *Variable) size(dims []dimension) int {
	n := v.typ.Size()
	for _, d := range v.dims {
		n *= dims[d].length
	}
	return n
}

// File is an in-memory netCDF classic dataset under construction.
type File struct {
	dims  []dimension
	attrs []Attribute
	vars  []*Variable
}

// NewFile returns an empty dataset.
func NewFile() *File { return &File{} }

// AddDimension declares a named dimension of fixed length.
func (f *File) AddDimension(name string, length int) error {
	if length <= 0 {
		return fmt.Errorf("cdf: dimension %q must have positive length, got %d", name, length)
	}
	for _, d := range f.dims {
		if d.name == name {
			return fmt.Errorf("cdf: dimension %q already declared", name)
		}
	}
	f.dims = append(f.dims, dimension{name: name, length: length})
	return nil
}

// AddAttribute appends a global attribute.
func (f *File) AddAttribute(a Attribute) { f.attrs = append(f.attrs, a) }

// AddVariable declares a variable over previously declared dimensions.
func (f *File) AddVariable(name string, typ Type, dimNames ...string) (*Variable, error) {
	if typ.Size() == 0 {
		return nil, fmt.Errorf("cdf: variable %q has invalid type %v", name, typ)
	}
	for _, v := range f.vars {
		if v.name == name {
			return nil, fmt.Errorf("cdf: variable %q already declared", name)
		}
	}
	v := &Variable{name: name, typ: typ}
	for _, dn := range dimNames {
		idx := -1
		for i, d := range f.dims {
			if d.name == dn {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("cdf: variable %q references unknown dimension %q", name, dn)
		}
		v.dims = append(v.dims, idx)
	}
	f.vars = append(f.vars, v)
	return v, nil
}

// Encode writes the dataset to w in CDF-1 layout. Every variable must carry
// data matching its declared shape.
func (f *File) Encode(w io.Writer) error {
	for _, v := range f.vars {
		want := v.size(f.dims)
		if len(v.data) != want {
			return fmt.Errorf("cdf: variable %q has %d data bytes, shape requires %d", v.name, len(v.data), want)
		}
	}

	// First pass sizes the header so data offsets can be assigned.
	offset := f.headerSize()
	for _, v := range f.vars {
		v.begin = offset
		offset += pad4(v.size(f.dims))
	}

	var buf bytes.Buffer
	buf.WriteString("CDF\x01")
	writeInt(&buf, 0) // numrecs, no record variables

	writeList(&buf, tagDimension, len(f.dims))
	for _, d := range f.dims {
		writeName(&buf, d.name)
		writeInt(&buf, int32(d.length))
	}

	writeAttrList(&buf, f.attrs)

	writeList(&buf, tagVariable, len(f.vars))
	for _, v := range f.vars {
		writeName(&buf, v.name)
		writeInt(&buf, int32(len(v.dims)))
		for _, d := range v.dims {
			writeInt(&buf, int32(d))
		}
		writeAttrList(&buf, v.attrs)
		writeInt(&buf, int32(v.typ))
		writeInt(&buf, int32(pad4(v.size(f.dims))))
		writeInt(&buf, int32(v.begin))
	}

	for _, v := range f.vars {
		buf.Write(v.data)
		for i := len(v.data); i%4 != 0; i++ {
			buf.WriteByte(0)
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func (f *File) headerSize() int {
	n := 4 + 4 // magic + numrecs
	n += 8     // dim_list tag + count
	for _, d := range f.dims {
		n += nameSize(d.name) + 4
	}
	n += attrListSize(f.attrs)
	n += 8 // var_list tag + count
	for _, v := range f.vars {
		n += nameSize(v.name) + 4 + 4*len(v.dims)
		n += attrListSize(v.attrs)
		n += 12 // nc_type + vsize + begin
	}
	return n
}

func attrListSize(attrs []Attribute) int {
	n := 8
	for _, a := range attrs {
		n += nameSize(a.Name) + 8 + pad4(len(a.Value))
	}
	return n
}

func nameSize(name string) int { return 4 + pad4(len(name)) }

func pad4(n int) int { return (n + 3) &^ 3 }

func writeInt(buf *bytes.Buffer, v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
}

// writeList emits a tagged list header; an empty list is written as ABSENT.
func writeList(buf *bytes.Buffer, tag int32, count int) {
	if count == 0 {
		writeInt(buf, 0)
		writeInt(buf, 0)
		return
	}
	writeInt(buf, tag)
	writeInt(buf, int32(count))
}

func writeName(buf *bytes.Buffer, name string) {
	writeInt(buf, int32(len(name)))
	buf.WriteString(name)
	for i := len(name); i%4 != 0; i++ {
		buf.WriteByte(0)
	}
}

func writeAttrList(buf *bytes.Buffer, attrs []Attribute) {
	writeList(buf, tagAttribute, len(attrs))
	for _, a := range attrs {
		writeName(buf, a.Name)
		writeInt(buf, int32(a.Type))
		writeInt(buf, int32(a.count()))
		buf.Write(a.Value)
		for i := len(a.Value); i%4 != 0; i++ {
			buf.WriteByte(0)
		}
	}
}
