package psenc

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/fhoech/goopi/internal/directive"
	"github.com/fhoech/goopi/internal/picture"
)

func rgbBlock() *Block {
	pic := &picture.Picture{
		Width: 3, Height: 2, Mode: picture.ModeRGB,
		Data: []byte{
			1, 2, 3, 4, 5, 6, 7, 8, 9,
			10, 11, 12, 13, 14, 15, 16, 17, 18,
		},
	}
	return &Block{
		Dir: &directive.Directive{
			Version13: true,
			FileName:  "HD:images:flower.tif",
			Position:  []float64{100, 100, 100, 300, 400, 300, 400, 100},
		},
		Pic:     pic,
		Quality: 2.0,
	}
}

func encodeString(t *testing.T, blk *Block) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Encode(&buf, blk); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

// The declared %%BeginData count must cover exactly the bytes between
// the %%BeginData line and the %%EndData line.
func TestEncodeDataLengthExact(t *testing.T) {
	out := encodeString(t, rgbBlock())

	begin := strings.Index(out, "%%BeginData: ")
	if begin < 0 {
		t.Fatal("missing BeginData line")
	}
	lineEnd := strings.IndexByte(out[begin:], '\n') + begin + 1
	fields := strings.Fields(out[begin:lineEnd])
	declared, err := strconv.Atoi(fields[1])
	if err != nil {
		t.Fatalf("declared count: %v", err)
	}
	end := strings.Index(out, "%%EndData")
	if end < 0 {
		t.Fatal("missing EndData line")
	}
	if got := end - lineEnd; got != declared {
		t.Errorf("declared %d bytes, region holds %d", declared, got)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	blk := rgbBlock()
	blk.Dir.ASCIITags = map[string][]string{
		"270": {"caption"}, "305": {"writer"}, "271": {"maker"},
	}
	first := encodeString(t, blk)
	for i := 0; i < 4; i++ {
		if got := encodeString(t, blk); got != first {
			t.Fatal("output changed between runs")
		}
	}
}

func TestEncodeGeometryRoundTrip(t *testing.T) {
	blk := rgbBlock()
	out := encodeString(t, blk)

	var concats [][6]float64
	for _, line := range strings.Split(out, "\n") {
		if m, ok := ParseConcat(line); ok {
			concats = append(concats, m)
		}
	}
	if len(concats) != 2 {
		t.Fatalf("found %d concat lines, want placement + unit scale", len(concats))
	}
	place, scale := concats[0], concats[1]

	// Transform the image-space corners through both matrices and
	// compare with the position parallelogram.
	apply := func(m [6]float64, x, y float64) (float64, float64) {
		return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
	}
	corners := [][2]float64{{0, 0}, {0, 1}, {1, 1}, {1, 0}} // ll ul ur lr in unit space
	pos := blk.Dir.Position
	for i, c := range corners {
		x, y := apply(scale, c[0], c[1])
		x, y = apply(place, x, y)
		if math.Abs(x-pos[i*2]) > 1e-9 || math.Abs(y-pos[i*2+1]) > 1e-9 {
			t.Errorf("corner %d maps to (%g, %g), want (%g, %g)",
				i, x, y, pos[i*2], pos[i*2+1])
		}
	}
}

func TestEncodeGrayPlain(t *testing.T) {
	blk := &Block{
		Dir: &directive.Directive{
			Version13: true,
			FileName:  "g.tif",
			Position:  []float64{0, 0, 0, 10, 10, 10, 10, 0},
			Tint:      -1,
		},
		Pic: &picture.Picture{
			Width: 2, Height: 2, Mode: picture.ModeGray,
			Data: []byte{0, 85, 170, 255},
		},
		Quality: 1.0,
	}
	out := encodeString(t, blk)
	if !strings.Contains(out, "/rdstr{") {
		t.Error("gray output lacks rdstr reader")
	}
	if !strings.Contains(out, "2 2 8 [2 0 0 -2 0 2] 2 1 rdstr") {
		t.Error("gray image setup line missing or malformed")
	}
	if strings.Contains(out, "ImageDict image") {
		t.Error("plain black gray must use the bare image operator")
	}
	if !strings.Contains(out, "\nimage\n") {
		t.Error("image operator missing")
	}
	if !strings.Contains(out, "0055\naaff\n") {
		t.Error("hex rows must wrap at twice the pixel width")
	}
	if strings.Contains(out, "%%ImageInks") {
		t.Error("inks comment is a 2.0 feature, absent from 1.3 output")
	}
}

func TestEncodeGrayColorized(t *testing.T) {
	blk := &Block{
		Dir: &directive.Directive{
			Version20: true,
			FileName:  "duo.tif",
			Color:     []float64{0, 0.5, 0.5, 0},
			ColorName: "Warm",
			ColorType: "Spot",
			Tint:      0.8,
		},
		Pic: &picture.Picture{
			Width: 1, Height: 1, Mode: picture.ModeGray,
			Data: []byte{128},
		},
		Quality: 2.0,
	}
	out := encodeString(t, blk)
	if !strings.Contains(out, "/C/setcmykcolor load def") {
		t.Error("colorization procset missing")
	}
	if !strings.Contains(out, "[255 0] CreateImageDict") {
		t.Error("inverted decode for colorized gray missing")
	}
	if !strings.Contains(out, "ImageDict image") {
		t.Error("colorized gray must image through ImageDict")
	}
	if !strings.Contains(out, "%%ImageInks: monochrome 1 (Warm) 0.8") {
		t.Errorf("spot inks line wrong:\n%s", out)
	}
	if !strings.Contains(out, "%%BeginOPI: 2.0") || !strings.Contains(out, "%%EndOPI") {
		t.Error("2.0 framing missing")
	}
	if strings.Contains(out, "initmatrix") {
		t.Error("2.0 directive must keep the preset matrix")
	}
}

func TestEncodeEPS(t *testing.T) {
	payload := []byte("%!PS-Adobe-3.0 EPSF-3.0\n%%BoundingBox: 0 0 50 50\nshowpage\n")
	blk := &Block{
		Dir: &directive.Directive{
			Version13: true,
			FileName:  "logo.eps",
			Position:  []float64{10, 10, 10, 60, 60, 60, 60, 10},
		},
		Pic: &picture.Picture{
			Format: picture.FormatEPS,
			Width:  50, Height: 50,
			PS:   payload,
			BBox: [4]float64{0, 0, 50, 50},
		},
		Quality: 2.0,
	}
	out := encodeString(t, blk)
	if !strings.Contains(out, "%%BeginDocument: (logo.eps)") {
		t.Error("embed header missing")
	}
	if !strings.Contains(out, string(payload)) {
		t.Error("payload not embedded verbatim")
	}
	if !strings.Contains(out, "%%EndDocument") {
		t.Error("embed trailer missing")
	}
	if strings.Contains(out, "%%BeginData") {
		t.Error("EPS must not emit a data block")
	}
	if strings.Contains(out, "[50 0 0 50 0 0] concat") {
		t.Error("EPS placement must not scale the unit square")
	}
}

func TestEncodeCropConcat(t *testing.T) {
	blk := rgbBlock()
	// Keep pixels 1..3 x 0..2 of a 3x2 frame cropped to the left two
	// thirds; the directive asks for a window smaller than the frame.
	blk.CropRect = []int{1, 0, 3, 2}
	blk.RealCrop = []int{0, 0, 3, 2}
	out := encodeString(t, blk)
	found := false
	for _, line := range strings.Split(out, "\n") {
		if m, ok := ParseConcat(line); ok && m[1] == 0 && m[2] == 0 && m[0] != float64(blk.Pic.Width) {
			// crop concat has zero skew terms and a non-integral scale
			if m[0] == 1.5 && m[3] == 1 {
				found = true
			}
		}
	}
	if !found {
		t.Errorf("crop concat missing:\n%s", out)
	}
}

func TestEscapeFileName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain.tif", "(plain.tif)"},
		{`back\slash`, `(back\\slash)`},
		{"par(en)s", `(par\(en\)s)`},
		{"café", "(caf<c3a9>)"},
	}
	for _, tt := range tests {
		if got := escapeFileName(tt.in); got != tt.want {
			t.Errorf("escapeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMonochromeInks(t *testing.T) {
	tests := []struct {
		dir  directive.Directive
		want string
	}{
		{directive.Directive{Tint: -1}, "monochrome 1 (Black) 1.0"},
		{directive.Directive{Color: []float64{0, 0, 0, 1}, ColorType: "Process", Tint: 0.5},
			"monochrome 1 (Black) 0.5"},
		{directive.Directive{Color: []float64{1, 0, 0, 1}, ColorType: "Process", Tint: -1},
			"monochrome 2 (Cyan) 1 (Black) 1"},
		{directive.Directive{Color: []float64{0, 0.5, 0.5, 0}, ColorName: "Warm", ColorType: "Spot", Tint: -1},
			"monochrome 1 (Warm) 1"},
	}
	for _, tt := range tests {
		if got := monochromeInks(&tt.dir); got != tt.want {
			t.Errorf("monochromeInks(%+v) = %q, want %q", tt.dir, got, tt.want)
		}
	}
}
