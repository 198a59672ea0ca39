package cms

import (
	"github.com/anthonynsimon/bild/parallel"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/fhoech/goopi/internal/picture"
)

// separateRGB converts an RGB raster to CMYK with UCR/GCR black
// generation. Ink amounts are derived in linear light: below
// cfg.BlackStart common coverage no black is generated, above it black
// ramps up to cfg.BlackMax and the chromatic inks are reduced
// accordingly.
func separateRGB(pic *picture.Picture, cfg *Config) *picture.Picture {
	out := &picture.Picture{
		Format: pic.Format,
		Width:  pic.Width,
		Height: pic.Height,
		Mode:   picture.ModeCMYK,
		Data:   make([]byte, pic.Width*pic.Height*4),
		DPI:    pic.DPI,
	}
	blackStart := cfg.BlackStart
	blackMax := cfg.BlackMax
	if blackMax <= 0 {
		blackMax = 1
	}
	parallel.Line(pic.Height, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < pic.Width; x++ {
				i := (y*pic.Width + x) * 3
				col := colorful.Color{
					R: float64(pic.Data[i]) / 255,
					G: float64(pic.Data[i+1]) / 255,
					B: float64(pic.Data[i+2]) / 255,
				}
				lr, lg, lb := col.LinearRgb()
				c := 1 - lr
				m := 1 - lg
				yy := 1 - lb

				k := min3(c, m, yy)
				var black float64
				if k > blackStart {
					black = (k - blackStart) / (1 - blackStart) * blackMax
				}
				if den := 1 - black; den > 0 {
					c = clamp01((c - black) / den)
					m = clamp01((m - black) / den)
					yy = clamp01((yy - black) / den)
				} else {
					c, m, yy = 0, 0, 0
				}

				o := (y*pic.Width + x) * 4
				out.Data[o] = inkByte(c)
				out.Data[o+1] = inkByte(m)
				out.Data[o+2] = inkByte(yy)
				out.Data[o+3] = inkByte(black)
			}
		}
	})
	return out
}

// rgbToGrayLuminance converts chromatic RGB to gray through the
// linear-light Rec. 709 luminance. Used when a chromatic image must be
// forced onto the gray target.
func rgbToGrayLuminance(pic *picture.Picture) *picture.Picture {
	out := &picture.Picture{
		Format: pic.Format,
		Width:  pic.Width,
		Height: pic.Height,
		Mode:   picture.ModeGray,
		Data:   make([]byte, pic.Width*pic.Height),
		DPI:    pic.DPI,
	}
	parallel.Line(pic.Height, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < pic.Width; x++ {
				i := (y*pic.Width + x) * 3
				col := colorful.Color{
					R: float64(pic.Data[i]) / 255,
					G: float64(pic.Data[i+1]) / 255,
					B: float64(pic.Data[i+2]) / 255,
				}
				lr, lg, lb := col.LinearRgb()
				lum := 0.2126*lr + 0.7152*lg + 0.0722*lb
				encoded := colorful.LinearRgb(lum, lum, lum)
				out.Data[y*pic.Width+x] = inkByte(encoded.R)
			}
		}
	})
	return out
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// inkByte quantizes an ink fraction to a data byte.
func inkByte(v float64) byte {
	return byte(clamp01(v)*255 + 0.5)
}
