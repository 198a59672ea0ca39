package cms

import (
	"github.com/fhoech/goopi/internal/oplog"
	"github.com/fhoech/goopi/internal/picture"
)

// Convert routes a decoded picture onto the press-side mode. The
// returned Result says which path was taken; the caller logs it.
// EPS input passes through untouched.
func Convert(pic *picture.Picture, cfg *Config, log oplog.Logger) (*Result, error) {
	if log == nil {
		log = oplog.NopLogger{}
	}
	if pic.Format == picture.FormatEPS {
		return &Result{Pic: pic, Path: "EPS passthrough"}, nil
	}

	prof, err := SourceProfile(pic, cfg)
	if err != nil {
		return nil, err
	}

	var res *Result
	switch pic.Mode {
	case picture.ModeGray:
		res = convertGray(pic, cfg)
	case picture.ModeRGB:
		res = convertRGB(pic, cfg)
	case picture.ModeCMYK:
		res = convertCMYK(pic, cfg)
	}
	res.Provenance = prof.Provenance
	if prof.Provenance == ProfileNone {
		log.Warn("no source profile, device-native pass",
			oplog.String("mode", pic.Mode.String()))
	}
	log.Debug("color path chosen",
		oplog.String("path", res.Path),
		oplog.String("intent", cfg.Intent.String()),
		oplog.String("profile", res.Provenance.String()))
	return res, nil
}

func convertGray(pic *picture.Picture, cfg *Config) *Result {
	if cfg.OutputMode == picture.ModeCMYK {
		// Data stays one channel; the procset maps it onto the K ink.
		return &Result{Pic: pic, DirectBlack: true, Path: "gray→CMYK (direct black)"}
	}
	return &Result{Pic: pic, Path: "gray passthrough"}
}

func convertRGB(pic *picture.Picture, cfg *Config) *Result {
	if cfg.DetectGray && rgbIsGray(pic) {
		gray := rgbToGrayDirect(pic)
		if cfg.OutputMode == picture.ModeCMYK {
			return &Result{Pic: gray, DirectBlack: true, Path: "RGB-gray→CMYK (direct black)"}
		}
		return &Result{Pic: gray, Path: "RGB-gray→gray"}
	}
	switch cfg.OutputMode {
	case picture.ModeCMYK:
		return &Result{Pic: separateRGB(pic, cfg), Path: "RGB→CMYK"}
	case picture.ModeGray:
		return &Result{Pic: rgbToGrayLuminance(pic), Path: "RGB→gray"}
	}
	return &Result{Pic: pic, Path: "RGB passthrough"}
}

func convertCMYK(pic *picture.Picture, cfg *Config) *Result {
	if cfg.DetectGray && cmykIsGray(pic) {
		gray := cmykToGrayDirect(pic)
		if cfg.OutputMode == picture.ModeCMYK {
			return &Result{Pic: gray, DirectBlack: true, Path: "CMYK-gray→CMYK (direct black)"}
		}
		if cfg.OutputMode == picture.ModeGray {
			return &Result{Pic: gray, Path: "CMYK-gray→gray"}
		}
		return &Result{Pic: grayToRGB(gray), Path: "CMYK-gray→RGB"}
	}
	switch cfg.OutputMode {
	case picture.ModeCMYK:
		if cfg.StripCMY && cmykIsKOnly(pic) {
			return &Result{Pic: cmykToGrayDirect(pic), DirectBlack: true,
				Path: "CMYK K-only→CMYK (CMY stripped, direct black)"}
		}
		return &Result{Pic: pic, Path: "CMYK passthrough"}
	case picture.ModeGray:
		return &Result{Pic: rgbToGrayLuminance(cmykToRGB(pic)), Path: "CMYK→gray"}
	}
	return &Result{Pic: cmykToRGB(pic), Path: "CMYK→RGB"}
}

// probePoints yields the five quick-check pixels (corners and center)
// tried before a full scan.
func probePoints(w, h int) [5][2]int {
	return [5][2]int{
		{0, 0}, {w - 1, 0}, {0, h - 1}, {w - 1, h - 1}, {w / 2, h / 2},
	}
}

// cmykIsGray reports whether every pixel has zero chroma. Checks five
// spot pixels first so chromatic images fail fast.
func cmykIsGray(pic *picture.Picture) bool {
	for _, pt := range probePoints(pic.Width, pic.Height) {
		i := (pt[1]*pic.Width + pt[0]) * 4
		if pic.Data[i] != 0 || pic.Data[i+1] != 0 || pic.Data[i+2] != 0 {
			return false
		}
	}
	for i := 0; i < len(pic.Data); i += 4 {
		if pic.Data[i] != 0 || pic.Data[i+1] != 0 || pic.Data[i+2] != 0 {
			return false
		}
	}
	return true
}

// cmykIsKOnly is cmykIsGray under a different policy name: the caller
// decided to strip, not to reroute.
func cmykIsKOnly(pic *picture.Picture) bool { return cmykIsGray(pic) }

// rgbIsGray reports whether every pixel has R=G=B.
func rgbIsGray(pic *picture.Picture) bool {
	for _, pt := range probePoints(pic.Width, pic.Height) {
		i := (pt[1]*pic.Width + pt[0]) * 3
		if pic.Data[i] != pic.Data[i+1] || pic.Data[i+1] != pic.Data[i+2] {
			return false
		}
	}
	for i := 0; i < len(pic.Data); i += 3 {
		if pic.Data[i] != pic.Data[i+1] || pic.Data[i+1] != pic.Data[i+2] {
			return false
		}
	}
	return true
}

// cmykToGrayDirect maps K-only data to gray: value = 255 - K.
func cmykToGrayDirect(pic *picture.Picture) *picture.Picture {
	out := &picture.Picture{
		Format: pic.Format,
		Width:  pic.Width,
		Height: pic.Height,
		Mode:   picture.ModeGray,
		Data:   make([]byte, pic.Width*pic.Height),
		DPI:    pic.DPI,
	}
	for i := range out.Data {
		out.Data[i] = 255 - pic.Data[i*4+3]
	}
	return out
}

// rgbToGrayDirect copies one channel of R=G=B data.
func rgbToGrayDirect(pic *picture.Picture) *picture.Picture {
	out := &picture.Picture{
		Format: pic.Format,
		Width:  pic.Width,
		Height: pic.Height,
		Mode:   picture.ModeGray,
		Data:   make([]byte, pic.Width*pic.Height),
		DPI:    pic.DPI,
	}
	for i := range out.Data {
		out.Data[i] = pic.Data[i*3]
	}
	return out
}

func grayToRGB(pic *picture.Picture) *picture.Picture {
	out := &picture.Picture{
		Format: pic.Format,
		Width:  pic.Width,
		Height: pic.Height,
		Mode:   picture.ModeRGB,
		Data:   make([]byte, pic.Width*pic.Height*3),
		DPI:    pic.DPI,
	}
	for i := 0; i < pic.Width*pic.Height; i++ {
		v := pic.Data[i]
		out.Data[i*3] = v
		out.Data[i*3+1] = v
		out.Data[i*3+2] = v
	}
	return out
}

// cmykToRGB is the naive complement inversion. Good enough for the
// RGB output mode, which exists for proofing rather than press runs.
func cmykToRGB(pic *picture.Picture) *picture.Picture {
	out := &picture.Picture{
		Format: pic.Format,
		Width:  pic.Width,
		Height: pic.Height,
		Mode:   picture.ModeRGB,
		Data:   make([]byte, pic.Width*pic.Height*3),
		DPI:    pic.DPI,
	}
	for i := 0; i < pic.Width*pic.Height; i++ {
		c := int(pic.Data[i*4])
		m := int(pic.Data[i*4+1])
		y := int(pic.Data[i*4+2])
		k := int(pic.Data[i*4+3])
		out.Data[i*3] = clamp8(255 - c - k)
		out.Data[i*3+1] = clamp8(255 - m - k)
		out.Data[i*3+2] = clamp8(255 - y - k)
	}
	return out
}

func clamp8(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
