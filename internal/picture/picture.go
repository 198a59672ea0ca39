// Package picture decodes the raster and EPS file formats an OPI hires
// tree typically contains: TIFF, JPEG, PNG, PSD and EPS.
//
// Decoded rasters are normalized to 8 bits per channel interleaved
// samples in one of three modes (gray, RGB, CMYK); 1-bit images are
// promoted to gray. EPS files are not rasterized: their PostScript
// payload is carried through for embedding.
package picture

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownFormat reports a file whose magic bytes match no
	// supported container.
	ErrUnknownFormat = errors.New("unknown image format")

	// ErrUnsupportedBitDepth reports more than 8 bits per channel.
	ErrUnsupportedBitDepth = errors.New("unsupported bit depth")

	// ErrUnsupportedColorMode reports a color layout outside gray, RGB
	// and CMYK, including anything carrying alpha.
	ErrUnsupportedColorMode = errors.New("unsupported color mode")

	// ErrUnsupportedFeature reports a container feature the decoder does
	// not handle (exotic compression, tiled layout).
	ErrUnsupportedFeature = errors.New("unsupported container feature")

	// ErrCorruptData reports a file that violates its own container
	// structure.
	ErrCorruptData = errors.New("corrupt image data")
)

// Format identifies the container a file was decoded from.
type Format string

const (
	FormatTIFF Format = "tiff"
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatPSD  Format = "psd"
	FormatEPS  Format = "eps"
)

// Mode is the normalized channel layout of a decoded raster.
type Mode int

const (
	ModeGray Mode = iota
	ModeRGB
	ModeCMYK
)

// Channels returns the samples per pixel for the mode.
func (m Mode) Channels() int {
	switch m {
	case ModeRGB:
		return 3
	case ModeCMYK:
		return 4
	default:
		return 1
	}
}

func (m Mode) String() string {
	switch m {
	case ModeGray:
		return "gray"
	case ModeRGB:
		return "RGB"
	case ModeCMYK:
		return "CMYK"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Picture is one decoded image.
//
// For raster formats Data holds Width×Height interleaved pixels with
// Mode.Channels() samples each. For EPS, Data is nil and PS carries the
// verbatim PostScript payload.
type Picture struct {
	Format Format

	Width  int
	Height int
	Mode   Mode
	Data   []byte

	// DPI is the stated resolution; zero when the file carries none.
	DPI [2]float64

	// ICC is the embedded profile, nil when absent.
	ICC []byte

	// PS and BBox are set for EPS only. BBox is llx lly urx ury in
	// points.
	PS   []byte
	BBox [4]float64
}

// Size returns the memory footprint of the pixel or PostScript data.
func (p *Picture) Size() int64 {
	return int64(len(p.Data) + len(p.PS) + len(p.ICC))
}

// offset returns the index of pixel (x, y) in Data.
func (p *Picture) offset(x, y int) int {
	return (y*p.Width + x) * p.Mode.Channels()
}
