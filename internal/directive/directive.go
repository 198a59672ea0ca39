// Package directive implements a streaming parser for OPI (Open Prepress
// Interface) comment directives embedded in a PostScript document stream.
//
// The parser works token-by-token over lines of the stream and never
// interprets PostScript operators. Every byte outside a recognized
// directive region is passed through verbatim; a recognized region is
// buffered in full so the caller can either replace it or fall back to
// the original placeholder untouched.
//
// Both OPI 1.3 (%ALD) and OPI 2.0 (%%BeginOPI through %%EndOPI)
// comment conventions are recognized.
package directive

import "errors"

// ErrUnterminated reports a begin marker with no matching end marker
// before end of stream. It is always fatal: emitting a document with an
// open directive would corrupt it for downstream consumers.
var ErrUnterminated = errors.New("unterminated OPI directive")

// Directive is one parsed substitution directive. The zero value of most
// fields means "not present in the comments".
type Directive struct {
	// Version13 and Version20 record which comment conventions were seen.
	Version13 bool
	Version20 bool

	FileName       string // reference name, cleaned of PostScript escapes
	ID             string
	MainImage      string
	Distilled      bool
	ObjectComments string

	Dimensions []float64 // stated proxy dimensions: w h
	CropRect   []int     // x1 y1 x2 y2 in source pixels
	CropFixed  []float64 // fractional crop rectangle
	Position   []float64 // placement parallelogram: llx lly ulx uly urx ury lrx lry
	Resolution []float64 // x y in dpi

	ColorType    string // "Process" or "Spot"
	Color        []float64
	ColorName    string
	Tint         float64 // negative when unset
	Overprint    *bool
	ImageType    []float64
	GrayMap      [][]int
	Transparency *bool
	Inks         string
	ASCIITags    map[string][]string

	// GfxState holds the verbatim non-comment lines cached between the
	// begin marker and the placeholder; they carry the graphics state the
	// replacement block must restore.
	GfxState []string

	// IncludedDimensions is the pixel size declared for the low-res proxy.
	IncludedDimensions []int

	// Offset is the byte offset of the directive region in the input.
	Offset int64
}

// Tinted reports whether an explicit tint value was parsed.
func (d *Directive) Tinted() bool { return d.Tint >= 0 }

// RealDimensions returns the placed width and height in points, derived
// from the position parallelogram edge lengths. Returns nil when no
// position was parsed.
func (d *Directive) RealDimensions() []float64 {
	if len(d.Position) < 8 {
		return nil
	}
	p := d.Position
	w := maxf(hypot(p[0]-p[6], p[1]-p[7]), hypot(p[2]-p[4], p[3]-p[5]))
	h := maxf(hypot(p[2]-p[0], p[3]-p[1]), hypot(p[4]-p[6], p[5]-p[7]))
	return []float64{w, h}
}

// Segment is one piece of the document stream. Raw always holds the
// verbatim input bytes. Dir is non-nil when Raw spans a complete
// directive region (begin marker through end marker inclusive).
type Segment struct {
	Raw []byte
	Dir *Directive
}
