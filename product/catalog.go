// Package product writes pass datasets in the L2 low-rate sea surface height
// layout. The variables a file may carry, their storage types and their
// packing parameters come from an XML product-description catalog.
package product

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"strconv"

	"encoding/xml"

	"github.com/YaoYu9404/swot-simulator/internal/cdf"
)

//go:embed l2b-expert.xml
var defaultCatalogXML []byte

// TextAttr is a free-form annotation attribute carried into the output file.
type TextAttr struct {
	Key   string
	Value string
}

// Entry describes one catalog variable.
type Entry struct {
	Name  string
	Type  cdf.Type
	Shape []string
	Attrs []TextAttr // document order

	FillValue float64
	HasFill   bool

	// Packed entries store round((value - AddOffset) / ScaleFactor).
	Packed      bool
	ScaleFactor float64
	AddOffset   float64

	ValidMin *float64
	ValidMax *float64
}

// Catalog is the parsed product description: the set of variables a product
// file may carry, in document order.
type Catalog struct {
	entries []*Entry
	index   map[string]*Entry
}

// DefaultCatalog loads the catalog embedded in the binary.
func DefaultCatalog() (*Catalog, error) {
	return ReadCatalog(bytes.NewReader(defaultCatalogXML))
}

// Wire representation of the XML catalog.
type xmlCatalog struct {
	Shapes  []xmlShape `xml:"shape"`
	Science struct {
		Nodes struct {
			All []xmlNode `xml:",any"`
		} `xml:"nodes"`
	} `xml:"science"`
}

type xmlShape struct {
	Name       string `xml:"name,attr"`
	Dimensions []struct {
		Name string `xml:"name,attr"`
	} `xml:"dimension"`
}

type xmlNode struct {
	XMLName    xml.Name
	Name       string         `xml:"name,attr"`
	Shape      string         `xml:"shape,attr"`
	Width      int            `xml:"width,attr"`
	Signed     string         `xml:"signed,attr"`
	Annotation *xmlAnnotation `xml:"annotation"`
}

type xmlAnnotation struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

// ReadCatalog parses and validates a product-description document.
func ReadCatalog(r io.Reader) (*Catalog, error) {
	var doc xmlCatalog
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("ReadCatalog: %w", err)
	}

	shapes := make(map[string][]string, len(doc.Shapes))
	for _, s := range doc.Shapes {
		dims := make([]string, 0, len(s.Dimensions))
		for _, d := range s.Dimensions {
			dims = append(dims, d.Name)
		}
		if len(dims) == 0 {
			return nil, fmt.Errorf("ReadCatalog: shape %q declares no dimensions", s.Name)
		}
		shapes[s.Name] = dims
	}

	c := &Catalog{index: make(map[string]*Entry)}
	add := func(n xmlNode) error {
		// Nodes without an annotation describe no stored variable.
		if n.Annotation == nil {
			return nil
		}
		typ, err := nodeType(n)
		if err != nil {
			return err
		}
		if len(n.Name) < 2 || n.Name[0] != '/' {
			return fmt.Errorf("node name %q must start with '/'", n.Name)
		}
		dims, ok := shapes[n.Shape]
		if !ok {
			return fmt.Errorf("node %q references unknown shape %q", n.Name, n.Shape)
		}

		e := &Entry{Name: n.Name[1:], Type: typ, Shape: dims, ScaleFactor: 1.0}
		if err := e.applyAnnotation(n.Annotation.Attrs); err != nil {
			return fmt.Errorf("node %q: %w", n.Name, err)
		}
		if _, dup := c.index[e.Name]; dup {
			return fmt.Errorf("duplicate catalog entry %q", e.Name)
		}
		c.entries = append(c.entries, e)
		c.index[e.Name] = e
		return nil
	}
	for _, n := range doc.Science.Nodes.All {
		if err := add(n); err != nil {
			return nil, fmt.Errorf("ReadCatalog: %w", err)
		}
	}
	if len(c.entries) == 0 {
		return nil, fmt.Errorf("ReadCatalog: catalog describes no variables")
	}
	return c, nil
}

func nodeType(n xmlNode) (cdf.Type, error) {
	switch n.XMLName.Local {
	case "integer":
		if n.Signed != "true" {
			return 0, fmt.Errorf("node %q: only signed integers are supported", n.Name)
		}
		switch n.Width {
		case 8:
			return cdf.Byte, nil
		case 16:
			return cdf.Short, nil
		case 32:
			return cdf.Int, nil
		}
		return 0, fmt.Errorf("node %q: unsupported integer width %d", n.Name, n.Width)
	case "real":
		switch n.Width {
		case 32:
			return cdf.Float, nil
		case 64:
			return cdf.Double, nil
		}
		return 0, fmt.Errorf("node %q: unsupported real width %d", n.Name, n.Width)
	}
	return 0, fmt.Errorf("node %q: unrecognized data type %q", n.Name, n.XMLName.Local)
}

func (e *Entry) applyAnnotation(attrs []xml.Attr) error {
	parse := func(a xml.Attr) (float64, error) {
		v, err := strconv.ParseFloat(a.Value, 64)
		if err != nil {
			return 0, fmt.Errorf("attribute %s=%q is not numeric", a.Name.Local, a.Value)
		}
		return v, nil
	}

	var hasScale, hasOffset bool
	for _, a := range attrs {
		switch a.Name.Local {
		case "_FillValue":
			v, err := parse(a)
			if err != nil {
				return err
			}
			e.FillValue, e.HasFill = v, true
		case "scale_factor":
			v, err := parse(a)
			if err != nil {
				return err
			}
			e.ScaleFactor, hasScale = v, true
		case "add_offset":
			v, err := parse(a)
			if err != nil {
				return err
			}
			e.AddOffset, hasOffset = v, true
		case "valid_min":
			v, err := parse(a)
			if err != nil {
				return err
			}
			e.ValidMin = &v
		case "valid_max":
			v, err := parse(a)
			if err != nil {
				return err
			}
			e.ValidMax = &v
		case "app":
			// tooling hint, not a dataset attribute
		default:
			e.Attrs = append(e.Attrs, TextAttr{Key: a.Name.Local, Value: a.Value})
		}
	}
	e.Packed = hasScale || hasOffset
	if e.ScaleFactor == 0 {
		return fmt.Errorf("scale_factor must be non-zero")
	}
	if e.Packed && !e.HasFill {
		return fmt.Errorf("packed variable requires a _FillValue")
	}
	return nil
}

// Has reports whether the catalog describes the named variable.
func (c *Catalog) Has(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Get returns the named entry.
func (c *Catalog) Get(name string) (*Entry, bool) {
	e, ok := c.index[name]
	return e, ok
}

// Names lists the catalog variables in document order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

// Len returns the number of catalog variables.
func (c *Catalog) Len() int { return len(c.entries) }
