package cms

import (
	"testing"

	"seehuhn.de/go/icc"

	"github.com/fhoech/goopi/internal/picture"
)

func grayPic(w, h int, v byte) *picture.Picture {
	p := &picture.Picture{Width: w, Height: h, Mode: picture.ModeGray, Data: make([]byte, w*h)}
	for i := range p.Data {
		p.Data[i] = v
	}
	return p
}

func rgbPic(w, h int, r, g, b byte) *picture.Picture {
	p := &picture.Picture{Width: w, Height: h, Mode: picture.ModeRGB, Data: make([]byte, w*h*3)}
	for i := 0; i < w*h; i++ {
		p.Data[i*3], p.Data[i*3+1], p.Data[i*3+2] = r, g, b
	}
	return p
}

func cmykPic(w, h int, c, m, y, k byte) *picture.Picture {
	p := &picture.Picture{Width: w, Height: h, Mode: picture.ModeCMYK, Data: make([]byte, w*h*4)}
	for i := 0; i < w*h; i++ {
		p.Data[i*4], p.Data[i*4+1], p.Data[i*4+2], p.Data[i*4+3] = c, m, y, k
	}
	return p
}

func TestConvertGrayDirectBlack(t *testing.T) {
	cfg := DefaultConfig()
	res, err := Convert(grayPic(2, 2, 128), &cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.DirectBlack {
		t.Error("gray→CMYK must keep direct black")
	}
	if res.Pic.Mode != picture.ModeGray {
		t.Errorf("mode = %s, want gray data under direct black", res.Pic.Mode)
	}
	if res.Provenance != ProfileNone {
		t.Errorf("provenance = %s, want none (no gray working profile set)", res.Provenance)
	}
}

func TestConvertRGBGrayDetection(t *testing.T) {
	cfg := DefaultConfig()
	res, err := Convert(rgbPic(3, 3, 80, 80, 80), &cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.DirectBlack || res.Pic.Mode != picture.ModeGray {
		t.Fatalf("R=G=B image not routed to gray: %+v", res)
	}
	if res.Pic.Data[0] != 80 {
		t.Errorf("gray value = %d, want 80", res.Pic.Data[0])
	}
	if res.Provenance != ProfileAssumed {
		t.Errorf("provenance = %s, want assumed (built-in sRGB)", res.Provenance)
	}

	cfg.DetectGray = false
	res, err = Convert(rgbPic(3, 3, 80, 80, 80), &cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Pic.Mode != picture.ModeCMYK {
		t.Errorf("with detection off, mode = %s, want CMYK separation", res.Pic.Mode)
	}
}

func TestConvertRGBSeparation(t *testing.T) {
	cfg := DefaultConfig()

	// Pure red: no common coverage, so no black ink.
	res, err := Convert(rgbPic(2, 2, 255, 0, 0), &cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	px := res.Pic.Data[:4]
	if px[0] != 0 {
		t.Errorf("red separation C = %d, want 0", px[0])
	}
	if px[1] != 255 || px[2] != 255 {
		t.Errorf("red separation M,Y = %d,%d, want 255,255", px[1], px[2])
	}
	if px[3] != 0 {
		t.Errorf("red separation K = %d, want 0", px[3])
	}

	// Black: full common coverage, black capped at BlackMax with the
	// chromatic inks balanced under it (rich black).
	res, err = Convert(rgbPic(2, 2, 0, 0, 0), &cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	px = res.Pic.Data[:4]
	wantK := inkByte(cfg.BlackMax)
	if px[3] != wantK {
		t.Errorf("black separation K = %d, want %d", px[3], wantK)
	}
	if px[0] != px[1] || px[1] != px[2] {
		t.Errorf("black separation CMY unbalanced: %v", px[:3])
	}
}

func TestConvertCMYKGrayProbe(t *testing.T) {
	cfg := DefaultConfig()
	res, err := Convert(cmykPic(4, 4, 0, 0, 0, 200), &cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.DirectBlack || res.Pic.Mode != picture.ModeGray {
		t.Fatalf("K-only CMYK not routed to gray: %+v", res)
	}
	if res.Pic.Data[0] != 55 {
		t.Errorf("gray value = %d, want 255-200", res.Pic.Data[0])
	}

	// Any chroma keeps CMYK as CMYK.
	res, err = Convert(cmykPic(4, 4, 10, 0, 0, 200), &cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Pic.Mode != picture.ModeCMYK || res.DirectBlack {
		t.Fatalf("chromatic CMYK rerouted: %+v", res)
	}
}

func TestConvertCMYKGrayProbeFastPath(t *testing.T) {
	// Chroma only in a probe corner: must be caught by the 5-point
	// check before the full scan.
	p := cmykPic(4, 4, 0, 0, 0, 100)
	p.Data[2] = 30 // yellow in the top-left corner pixel
	cfg := DefaultConfig()
	res, err := Convert(p, &cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Pic.Mode != picture.ModeCMYK {
		t.Errorf("mode = %s, want CMYK", res.Pic.Mode)
	}
}

func TestConvertEPSPassthrough(t *testing.T) {
	eps := &picture.Picture{Format: picture.FormatEPS, PS: []byte("%!")}
	cfg := DefaultConfig()
	res, err := Convert(eps, &cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Pic != eps {
		t.Error("EPS must pass through untouched")
	}
}

func TestSourceProfileEmbedded(t *testing.T) {
	p := rgbPic(1, 1, 1, 2, 3)
	p.ICC = icc.SRGBv2Profile
	cfg := DefaultConfig()
	prof, err := SourceProfile(p, &cfg)
	if err != nil {
		t.Fatal(err)
	}
	if prof.Provenance != ProfileEmbedded {
		t.Errorf("provenance = %s, want embedded", prof.Provenance)
	}

	// Profile/pixel mode mismatch is an error, not a silent trust.
	g := grayPic(1, 1, 0)
	g.ICC = icc.SRGBv2Profile
	if _, err := SourceProfile(g, &cfg); err == nil {
		t.Error("RGB profile on gray pixels accepted")
	}
}

func TestParseIntent(t *testing.T) {
	for s, want := range map[string]Intent{
		"":             IntentPerceptual,
		"perceptual":   IntentPerceptual,
		"relative":     IntentRelative,
		"relative_bpc": IntentRelativeBPC,
		"saturation":   IntentSaturation,
		"Absolute":     IntentAbsolute,
	} {
		got, err := ParseIntent(s)
		if err != nil || got != want {
			t.Errorf("ParseIntent(%q) = %v, %v; want %v", s, got, err, want)
		}
	}
	if _, err := ParseIntent("vivid"); err == nil {
		t.Error("ParseIntent(vivid) should fail")
	}
}
