// Package psenc emits the PostScript replacement block for one
// resolved OPI directive: comment echo, graphics state and procset,
// placement matrix, and the image operator with its pixel data.
//
// The %%BeginData byte count covers exactly the operator line, the
// data rows and their newlines, and is verified while writing. A
// mismatch is an encoder bug and always fatal, because consumers are
// entitled to seek over the declared region.
package psenc

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fhoech/goopi/internal/directive"
	"github.com/fhoech/goopi/internal/picture"
)

// ErrLengthMismatch reports a difference between the declared
// %%BeginData byte count and the bytes actually written.
var ErrLengthMismatch = errors.New("declared data length mismatch")

// Block is everything the encoder needs for one replacement.
type Block struct {
	// Dir is the parsed directive; its comments are echoed and its
	// cached graphics state restored.
	Dir *directive.Directive

	// Pic holds the final pixels (cropped, downsampled, converted) or
	// the EPS payload.
	Pic *picture.Picture

	// DirectBlack marks single-channel data destined for the black
	// ink (or the directive's ink, when one is set).
	DirectBlack bool

	// Quality is the %%IncludedImageQuality value (1.0, 2.0 or 3.0).
	Quality float64

	// Binary selects binary data blocks instead of hex.
	Binary bool

	// CropRect is the crop in output pixel coordinates; RealCrop is
	// the pixel region actually kept. Both may be nil for a full
	// frame.
	CropRect  []int
	CropFixed []float64
	RealCrop  []int
}

// Encode writes the complete replacement region for blk to w.
func Encode(w io.Writer, blk *Block) error {
	e := &encoder{w: w, blk: blk, dir: blk.Dir, pic: blk.Pic}
	return e.encode()
}

type encoder struct {
	w   io.Writer
	blk *Block
	dir *directive.Directive
	pic *picture.Picture
	err error
}

func (e *encoder) line(s string) {
	if e.err != nil {
		return
	}
	_, e.err = io.WriteString(e.w, s+"\n")
}

func (e *encoder) linef(format string, args ...interface{}) {
	e.line(fmt.Sprintf(format, args...))
}

func (e *encoder) encode() error {
	eps := e.pic.Format == picture.FormatEPS

	color, colorName, tint, inks := e.inkSetup()

	if e.dir.Version13 {
		e.writeComments13(color, colorName, tint)
	}
	if e.dir.Version20 {
		e.writeComments20(inks)
	}

	e.writeGfxState(eps, color, tint)

	if e.dir.Version20 {
		e.line("%%BeginIncludedImage")
		if !eps {
			e.linef("%%IncludedImageDimensions: %d %d", e.pic.Width, e.pic.Height)
		}
		e.linef("%%IncludedImageQuality: %s", formatFloat(e.blk.Quality))
	}

	if eps {
		e.writeEPS()
	} else {
		e.writeRaster(color)
	}

	if e.dir.Version20 {
		e.line("%%EndIncludedImage")
		e.line("%%EndOPI")
	}
	if e.dir.Version13 {
		e.line("%%EndObject")
	}
	return e.err
}

// inkSetup resolves the effective ink of single-channel data: gray
// images without explicit color information print on black ink at full
// tint, exactly like an untagged halftone would.
func (e *encoder) inkSetup() (color []float64, name string, tint float64, inks string) {
	color = e.dir.Color
	name = e.dir.ColorName
	tint = e.dir.Tint
	inks = e.dir.Inks
	if e.pic.Format != picture.FormatEPS && e.pic.Mode == picture.ModeGray {
		if (len(color) == 0 && inks == "") || inks == "full_color" {
			color = []float64{0, 0, 0, 1}
			name = "Black"
			tint = 1.0
			inks = "monochrome 1 (Black) 1.0"
		}
	}
	if tint < 0 {
		tint = 1.0
	}
	return color, name, tint, inks
}

func (e *encoder) writeComments13(color []float64, colorName string, tint float64) {
	e.linef("%%ALDImageFileName: %s", escapeFileName(e.dir.FileName))
	if e.dir.ID != "" {
		e.linef("%%ALDImageID: %s", escapeFileName(e.dir.ID))
	}
	if e.dir.ObjectComments != "" {
		e.linef("%%ALDObjectComments: %s", e.dir.ObjectComments)
	}
	w, h := e.pic.Width, e.pic.Height
	e.linef("%%ALDImageDimensions: %d %d", w, h)
	crop := e.blk.CropRect
	if len(crop) < 4 {
		crop = []int{0, 0, w, h}
	}
	e.linef("%%ALDImageCropRect: %d %d %d %d", crop[0], crop[1], crop[2], crop[3])
	if len(e.blk.CropFixed) == 4 {
		e.linef("%%ALDImageCropFixed: %s %s %s %s",
			formatFloat(e.blk.CropFixed[0]), formatFloat(e.blk.CropFixed[1]),
			formatFloat(e.blk.CropFixed[2]), formatFloat(e.blk.CropFixed[3]))
	}
	if len(e.dir.Position) == 8 {
		e.linef("%%ALDImagePosition: %s", joinFloats(e.dir.Position))
	}
	if len(e.dir.Resolution) > 0 {
		e.linef("%%ALDImageResolution: %s", joinFloats(e.dir.Resolution))
	}
	if e.dir.ColorType != "" {
		e.linef("%%ALDImageColorType: %s", e.dir.ColorType)
	}
	if len(color) >= 4 {
		e.linef("%%ALDImageColor: %s (%s)", joinFloats(color[:4]), colorName)
	}
	if tint > 0 {
		e.linef("%%ALDImageTint: %s", formatFloat(tint))
	}
	if e.dir.Overprint != nil {
		e.linef("%%ALDImageOverprint: %v", *e.dir.Overprint)
	}
	if len(e.dir.ImageType) > 0 && e.pic.Format != picture.FormatEPS {
		e.linef("%%ALDImageType: %d 8", e.pic.Mode.Channels())
	}
	for i, row := range e.dir.GrayMap {
		if i == 0 {
			e.linef("%%ALDImageGrayMap: %s", joinInts(row))
		} else {
			e.linef("%%%%+ %s", joinInts(row))
		}
	}
	if e.dir.Transparency != nil {
		e.linef("%%ALDImageTransparency: %v", *e.dir.Transparency)
	}
	for _, tag := range sortedTags(e.dir.ASCIITags) {
		for i, item := range e.dir.ASCIITags[tag] {
			if i == 0 {
				e.linef("%%ALDImageAsciiTag%s: %s", tag, item)
			} else {
				e.linef("%%%%+ %s", item)
			}
		}
	}
	e.line("%%BeginObject: image")
}

func (e *encoder) writeComments20(inks string) {
	e.line("%%BeginOPI: 2.0")
	e.linef("%%%%ImageFileName: %s", escapeFileName(e.dir.FileName))
	if e.dir.MainImage != "" {
		e.linef("%%%%MainImage: %s", escapeFileName(e.dir.MainImage))
	}
	for _, tag := range sortedTags(e.dir.ASCIITags) {
		for i, item := range e.dir.ASCIITags[tag] {
			if i == 0 {
				e.linef("%%%%TIFFASCIITag: %s (%s)", tag, item)
			} else {
				e.linef("%%%%+ (%s)", item)
			}
		}
	}
	if e.pic.Format != picture.FormatEPS {
		e.linef("%%%%ImageDimensions: %d %d", e.pic.Width, e.pic.Height)
		crop := e.blk.CropFixed
		if len(crop) < 4 {
			crop = []float64{0, 0, float64(e.pic.Width), float64(e.pic.Height)}
		}
		e.linef("%%%%ImageCropRect: %s %s %s %s",
			formatFloat(crop[0]), formatFloat(crop[1]),
			formatFloat(crop[2]), formatFloat(crop[3]))
	}
	if e.dir.Overprint != nil {
		e.linef("%%%%ImageOverprint: %v", *e.dir.Overprint)
	}
	if inks != "" {
		e.linef("%%%%ImageInks: %s", inks)
	} else if e.pic.Format != picture.FormatEPS {
		if e.pic.Mode == picture.ModeGray {
			e.linef("%%%%ImageInks: %s", monochromeInks(e.dir))
		} else {
			e.line("%%ImageInks: full_color")
		}
	}
}

// monochromeInks renders the "%%ImageInks:" value for single-channel
// data from the directive's color definition.
func monochromeInks(dir *directive.Directive) string {
	tint := dir.Tint
	if tint < 0 {
		tint = 1.0
	}
	if len(dir.Color) < 4 {
		return "monochrome 1 (Black) 1.0"
	}
	processInks := []string{"Cyan", "Magenta", "Yellow", "Black"}
	process := strings.EqualFold(dir.ColorType, "process")
	for _, n := range processInks {
		if dir.ColorName == n {
			process = true
		}
	}
	if dir.ColorName == "" {
		process = true
	}
	if !process {
		return fmt.Sprintf("monochrome 1 (%s) %s", dir.ColorName, formatFloat(tint))
	}
	var b strings.Builder
	n := 0
	for i, ink := range processInks {
		if dir.Color[i] > 0 {
			n++
			fmt.Fprintf(&b, " (%s) %s", ink, formatFloat(dir.Color[i]*tint))
		}
	}
	if n == 0 {
		return "monochrome 1 (Black) 1.0"
	}
	return fmt.Sprintf("monochrome %d%s", n, b.String())
}

// writeGfxState restores the cached graphics state, installs the
// default procset and, for pure 1.3 directives, derives the placement
// matrix from the position parallelogram. 2.0 producers set up their
// own matrix inside the cached state.
func (e *encoder) writeGfxState(eps bool, color []float64, tint float64) {
	for _, l := range e.dir.GfxState {
		e.line(l)
	}
	for _, l := range defaultProcset() {
		e.line(l)
	}
	if !eps && e.pic.Mode == picture.ModeGray && needsColorize(color) {
		for _, l := range colorizeProcset(color, tint) {
			e.line(l)
		}
	}

	if e.dir.Version20 {
		return // preset transformation matrix
	}
	if len(e.dir.Position) != 8 {
		return
	}
	w, h := e.pic.Width, e.pic.Height
	for _, l := range placementMatrix(e.dir.Position, w, h, eps) {
		e.line(l)
	}
	if !eps {
		if l, ok := cropConcat(w, h, e.blk.CropRect, e.blk.RealCrop); ok {
			e.line(l)
		}
	} else if l, ok := epsCropConcat(w, h, e.blk.CropFixed); ok {
		e.line(l)
	}
}

// needsColorize reports whether gray data prints on anything other
// than plain black ink.
func needsColorize(color []float64) bool {
	if len(color) < 4 {
		return false
	}
	return color[0] != 0 || color[1] != 0 || color[2] != 0 || color[3] != 1
}

func (e *encoder) writeRaster(color []float64) {
	w, h := e.pic.Width, e.pic.Height
	ch := e.pic.Mode.Channels()
	colorized := e.pic.Mode == picture.ModeGray && needsColorize(color)

	var operator string
	if e.pic.Mode == picture.ModeGray {
		e.line(rdstrProcset(e.blk.Binary))
		e.linef("%d %d 8 [%d 0 0 -%d 0 %d] %d %d rdstr", w, h, w, h, h, w, ch)
		if colorized {
			e.line("[255 0] CreateImageDict")
			operator = "ImageDict image"
		} else {
			operator = "image"
		}
	} else {
		e.linef("/imagedata %d string def", w*ch)
		e.linef("%d %d 8", w, h)
		e.linef("[%d 0 0 -%d 0 %d]", w, h, h)
		if e.blk.Binary {
			e.line("{ currentfile imagedata readstring")
		} else {
			e.line("{ currentfile imagedata readhexstring")
		}
		e.line("\tpop")
		e.line("}")
		e.line("false")
		e.linef("%d", ch)
		operator = "colorimage"
	}

	if e.blk.Binary {
		e.writeDataBinary(operator)
	} else {
		e.writeDataHex(operator)
	}
}

// writeDataHex emits the %%BeginData region with an exact byte count:
// the operator line plus every hex row including its newline.
func (e *encoder) writeDataHex(operator string) {
	data := e.pic.Data
	rowChars := e.pic.Width * 2
	hexLen := len(data) * 2
	rows := hexLen / rowChars
	if hexLen%rowChars != 0 {
		rows++
	}
	declared := len(operator) + 1 + hexLen + rows

	e.linef("%%%%BeginData: %d Hex Bytes", declared)
	cw := &countWriter{w: e.w}
	old := e.w
	e.w = cw
	e.line(operator)
	const hexdigits = "0123456789abcdef"
	row := make([]byte, 0, rowChars+1)
	for len(data) > 0 && e.err == nil {
		n := rowChars / 2
		if n > len(data) {
			n = len(data)
		}
		row = row[:0]
		for _, b := range data[:n] {
			row = append(row, hexdigits[b>>4], hexdigits[b&0x0f])
		}
		row = append(row, '\n')
		_, e.err = cw.Write(row)
		data = data[n:]
	}
	e.w = old
	if e.err == nil && cw.n != int64(declared) {
		e.err = fmt.Errorf("%w: declared %d, wrote %d", ErrLengthMismatch, declared, cw.n)
		return
	}
	e.line("%%EndData")
}

func (e *encoder) writeDataBinary(operator string) {
	declared := len(operator) + 1 + len(e.pic.Data) + 1
	e.linef("%%%%BeginData: %d Binary Bytes", declared)
	cw := &countWriter{w: e.w}
	old := e.w
	e.w = cw
	e.line(operator)
	if e.err == nil {
		_, e.err = cw.Write(e.pic.Data)
	}
	if e.err == nil {
		_, e.err = cw.Write([]byte{'\n'})
	}
	e.w = old
	if e.err == nil && cw.n != int64(declared) {
		e.err = fmt.Errorf("%w: declared %d, wrote %d", ErrLengthMismatch, declared, cw.n)
		return
	}
	e.line("%%EndData")
}

func (e *encoder) writeEPS() {
	e.linef("%%%%BeginDocument: %s", escapeFileName(e.dir.FileName))
	if e.err == nil {
		_, e.err = e.w.Write(e.pic.PS)
	}
	if len(e.pic.PS) > 0 && e.pic.PS[len(e.pic.PS)-1] != '\n' {
		e.line("")
	}
	e.line("%%EndDocument")
}

type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// escapeFileName renders a reference name as a PostScript string,
// hex-tagging unrepresentable characters.
func escapeFileName(name string) string {
	var b strings.Builder
	b.WriteByte('(')
	for _, r := range name {
		switch {
		case r == '\\' || r == '(' || r == ')':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r < 0x20 || r > 0x7e:
			fmt.Fprintf(&b, "<%x>", []byte(string(r)))
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(')')
	return b.String()
}

// formatFloat renders a float the shortest way that round-trips.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func joinFloats(fs []float64) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = formatFloat(f)
	}
	return strings.Join(parts, " ")
}

// sortedTags keeps comment echo order stable across runs.
func sortedTags(tags map[string][]string) []string {
	out := make([]string, 0, len(tags))
	for tag := range tags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func joinInts(is []int) string {
	parts := make([]string, len(is))
	for i, v := range is {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, " ")
}
