package directive

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func collect(t *testing.T, input string) []*Segment {
	t.Helper()
	p := NewParser(strings.NewReader(input), nil)
	var segs []*Segment
	for {
		seg, err := p.Next()
		if err == io.EOF {
			return segs
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		segs = append(segs, seg)
	}
}

func joinRaw(segs []*Segment) []byte {
	var buf bytes.Buffer
	for _, s := range segs {
		buf.Write(s.Raw)
	}
	return buf.Bytes()
}

func TestParserPassthroughFidelity(t *testing.T) {
	inputs := []string{
		"",
		"%!PS-Adobe-3.0\n/foo { bar } def\nshowpage\n",
		"no trailing newline",
		"classic mac line\rendings only\r",
		"mixed\r\nline\nendings\rhere\n",
		// %ALD mentioned in content that is not a directive key
		"% this file mentions %ALDImageTint: nothing open\n",
	}
	for _, in := range inputs {
		segs := collect(t, in)
		for _, s := range segs {
			if s.Dir != nil {
				t.Fatalf("input %q: unexpected directive %+v", in, s.Dir)
			}
		}
		if got := joinRaw(segs); !bytes.Equal(got, []byte(in)) {
			t.Errorf("round trip mismatch:\n in: %q\nout: %q", in, got)
		}
	}
}

const sample13 = `%!PS-Adobe-3.0
save
%ALDImageFileName: (HD:images:flower.tif)
%ALDImageID: (HD:images:flower.tif)
%ALDObjectComments: placed by layout
%ALDImageDimensions: 400 300
%ALDImageCropRect: 0 0 400 300
%ALDImagePosition: 100 100 100 400 500 400 500 100
%ALDImageResolution: 72 72
%ALDImageTint: 0.5
%ALDImageOverprint: true
%ALDImageColor: 0 0 0 1 (Black)
gsave
0 setgray
%%BeginObject: image
%%IncludedImageDimensions: 40 30
... proxy data ...
%%EndObject
grestore
restore
`

func TestParserOPI13(t *testing.T) {
	segs := collect(t, sample13)
	var dir *Directive
	var raw []byte
	for _, s := range segs {
		if s.Dir != nil {
			if dir != nil {
				t.Fatal("more than one directive parsed")
			}
			dir = s.Dir
			raw = s.Raw
		}
	}
	if dir == nil {
		t.Fatal("no directive parsed")
	}
	if !dir.Version13 || dir.Version20 {
		t.Errorf("version flags = 1.3:%v 2.0:%v, want 1.3 only", dir.Version13, dir.Version20)
	}
	if dir.FileName != `HD:images:flower.tif` {
		t.Errorf("FileName = %q", dir.FileName)
	}
	if diff := cmp.Diff([]float64{400, 300}, dir.Dimensions); diff != "" {
		t.Errorf("Dimensions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 0, 400, 300}, dir.CropRect); diff != "" {
		t.Errorf("CropRect mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{100, 100, 100, 400, 500, 400, 500, 100}, dir.Position); diff != "" {
		t.Errorf("Position mismatch (-want +got):\n%s", diff)
	}
	if !dir.Tinted() || dir.Tint != 0.5 {
		t.Errorf("Tint = %v", dir.Tint)
	}
	if dir.Overprint == nil || !*dir.Overprint {
		t.Error("Overprint not parsed as true")
	}
	if dir.ColorName != "Black" {
		t.Errorf("ColorName = %q", dir.ColorName)
	}
	if diff := cmp.Diff([]string{"gsave", "0 setgray"}, dir.GfxState); diff != "" {
		t.Errorf("GfxState mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{40, 30}, dir.IncludedDimensions); diff != "" {
		t.Errorf("IncludedDimensions mismatch (-want +got):\n%s", diff)
	}
	if !bytes.HasPrefix(raw, []byte("%ALDImageFileName:")) {
		t.Errorf("raw region starts with %q", raw[:min(len(raw), 30)])
	}
	if !bytes.HasSuffix(raw, []byte("%%EndObject\n")) {
		t.Errorf("raw region does not end at %s", "%%EndObject")
	}
	// Everything outside the directive region must survive verbatim.
	whole := joinRaw(segs)
	if !bytes.Equal(whole, []byte(sample13)) {
		t.Error("concatenated segments differ from input")
	}
}

const sample20 = `%%BeginOPI: 2.0
%%ImageFileName: (lores/photo.jpg)
%%MainImage: (hires/photo.jpg)
%%ImageDimensions: 1200 800
%%ImageCropRect: 0 0 1200 800
%%TIFFASCIITag: 270 (A caption)
%%+ (continued)
%%BeginObject: image
%%BeginData: 9 Hex Bytes
%%EndOPI
%%EndData
%%EndObject
%%EndOPI
`

func TestParserOPI20(t *testing.T) {
	segs := collect(t, sample20)
	if len(segs) != 1 || segs[0].Dir == nil {
		t.Fatalf("want exactly one directive segment, got %d segments", len(segs))
	}
	dir := segs[0].Dir
	if !dir.Version20 {
		t.Error("Version20 not set")
	}
	if dir.FileName != "lores/photo.jpg" {
		t.Errorf("FileName = %q", dir.FileName)
	}
	if dir.MainImage != "hires/photo.jpg" {
		t.Errorf("MainImage = %q", dir.MainImage)
	}
	want := map[string][]string{"270": {"A caption", "continued"}}
	if diff := cmp.Diff(want, dir.ASCIITags); diff != "" {
		t.Errorf("ASCIITags mismatch (-want +got):\n%s", diff)
	}
	if !bytes.Equal(segs[0].Raw, []byte(sample20)) {
		t.Error("directive region not buffered verbatim")
	}
}

// The %%EndOPI inside the %%BeginData body must not terminate the
// directive: the declared byte count covers it.
func TestParserBeginDataShieldsMarkers(t *testing.T) {
	segs := collect(t, sample20)
	if len(segs) != 1 {
		t.Fatalf("declared data region was scanned for markers: %d segments", len(segs))
	}
}

func TestParserBeginDataLines(t *testing.T) {
	input := "%%BeginOPI: 2.0\n" +
		"%%ImageFileName: (a.tif)\n" +
		"%%BeginObject: image\n" +
		"%%BeginData: 2 ASCII Lines\n" +
		"%%EndOPI\n" +
		"%%EndObject\n" +
		"%%EndData\n" +
		"%%EndObject\n" +
		"%%EndOPI\n"
	segs := collect(t, input)
	if len(segs) != 1 || segs[0].Dir == nil {
		t.Fatalf("want one directive, got %d segments", len(segs))
	}
	if !bytes.Equal(segs[0].Raw, []byte(input)) {
		t.Error("region not buffered verbatim")
	}
}

func TestParserNestedDocumentSkipped(t *testing.T) {
	input := "%%BeginOPI: 2.0\n" +
		"%%ImageFileName: (a.eps)\n" +
		"%%BeginObject: image\n" +
		"%%BeginDocument: (proxy.eps)\n" +
		"%%EndOPI\n" +
		"%%BeginDocument: (inner.eps)\n" +
		"%%EndDocument\n" +
		"%%EndDocument\n" +
		"%%EndObject\n" +
		"%%EndOPI\n"
	segs := collect(t, input)
	if len(segs) != 1 || segs[0].Dir == nil {
		t.Fatalf("embedded document was not skipped: %d segments", len(segs))
	}
}

func TestParserUnterminated(t *testing.T) {
	input := "prefix\n%%BeginOPI: 2.0\n%%ImageFileName: (gone.tif)\n"
	p := NewParser(strings.NewReader(input), nil)
	var err error
	for err == nil {
		_, err = p.Next()
	}
	if !errors.Is(err, ErrUnterminated) {
		t.Fatalf("err = %v, want ErrUnterminated", err)
	}
	if !strings.Contains(err.Error(), "gone.tif") {
		t.Errorf("error does not name the reference: %v", err)
	}
}

func TestParserNestedBeginRestarts(t *testing.T) {
	input := "%%BeginOPI: 2.0\n" +
		"%%ImageFileName: (outer.tif)\n" +
		"%%BeginOPI: 2.0\n" +
		"%%ImageFileName: (inner.tif)\n" +
		"%%BeginObject: image\n" +
		"%%EndObject\n" +
		"%%EndOPI\n"
	segs := collect(t, input)
	var dirs []*Directive
	for _, s := range segs {
		if s.Dir != nil {
			dirs = append(dirs, s.Dir)
		}
	}
	if len(dirs) != 1 {
		t.Fatalf("want 1 directive, got %d", len(dirs))
	}
	if dirs[0].FileName != "inner.tif" {
		t.Errorf("FileName = %q, want inner.tif", dirs[0].FileName)
	}
	if !bytes.Equal(joinRaw(segs), []byte(input)) {
		t.Error("abandoned outer region not preserved verbatim")
	}
}

func TestParserPrefixBeforeMarkerStaysContent(t *testing.T) {
	input := "save %ALDImageFileName: (x.tif)\n" +
		"%%BeginObject: image\n" +
		"%%EndObject\n" +
		"tail\n"
	segs := collect(t, input)
	if len(segs) < 2 {
		t.Fatalf("want prefix segment before directive, got %d segments", len(segs))
	}
	if segs[0].Dir != nil || string(segs[0].Raw) != "save " {
		t.Errorf("first segment = %q (dir=%v), want the bare prefix", segs[0].Raw, segs[0].Dir)
	}
	if !bytes.Equal(joinRaw(segs), []byte(input)) {
		t.Error("round trip mismatch")
	}
}

func TestParserGrayMapContinuation(t *testing.T) {
	input := "%ALDImageFileName: (g.tif)\n" +
		"%ALDImageGrayMap: 0 16 32\n" +
		"%%+ 48 64\n" +
		"%%BeginObject: image\n" +
		"%%EndObject\n"
	segs := collect(t, input)
	var dir *Directive
	for _, s := range segs {
		if s.Dir != nil {
			dir = s.Dir
		}
	}
	if dir == nil {
		t.Fatal("no directive")
	}
	want := [][]int{{0, 16, 32}, {48, 64}}
	if diff := cmp.Diff(want, dir.GrayMap); diff != "" {
		t.Errorf("GrayMap mismatch (-want +got):\n%s", diff)
	}
}

func TestRealDimensions(t *testing.T) {
	d := &Directive{Position: []float64{0, 0, 0, 30, 40, 30, 40, 0}}
	got := d.RealDimensions()
	if diff := cmp.Diff([]float64{40, 30}, got); diff != "" {
		t.Errorf("RealDimensions mismatch (-want +got):\n%s", diff)
	}
	if (&Directive{}).RealDimensions() != nil {
		t.Error("RealDimensions without position should be nil")
	}
}
