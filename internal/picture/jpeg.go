package picture

import (
	"bytes"
	"fmt"
	"image/jpeg"

	"github.com/vimeo/go-iccjpeg/iccjpeg"
)

// decodeJPEG decodes via the std decoder, which already handles gray,
// YCbCr and Adobe-inverted CMYK. The embedded ICC profile, split across
// APP2 markers, is reassembled by go-iccjpeg.
func decodeJPEG(data []byte) (*Picture, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	pic, err := fromImage(img)
	if err != nil {
		return nil, err
	}
	pic.Format = FormatJPEG
	if icc, err := iccjpeg.GetICCBuf(bytes.NewReader(data)); err == nil && len(icc) > 0 {
		pic.ICC = icc
	}
	pic.DPI = jfifDensity(data)
	return pic, nil
}

// jfifDensity extracts the pixel density from the JFIF APP0 segment.
func jfifDensity(data []byte) [2]float64 {
	// SOI, then marker segments: 0xFF <marker> <len16 incl itself>.
	i := 2
	for i+4 <= len(data) && data[i] == 0xff {
		marker := data[i+1]
		if marker == 0xd8 || (marker >= 0xd0 && marker <= 0xd7) || marker == 0x01 {
			i += 2
			continue
		}
		length := int(data[i+2])<<8 | int(data[i+3])
		if length < 2 || i+2+length > len(data) {
			return [2]float64{}
		}
		if marker == 0xe0 {
			seg := data[i+4 : i+2+length]
			if len(seg) >= 12 && bytes.HasPrefix(seg, []byte("JFIF\x00")) {
				unit := seg[7]
				x := float64(int(seg[8])<<8 | int(seg[9]))
				y := float64(int(seg[10])<<8 | int(seg[11]))
				switch unit {
				case 1: // dots per inch
					return [2]float64{x, y}
				case 2: // dots per cm
					return [2]float64{x * 2.54, y * 2.54}
				}
			}
			return [2]float64{}
		}
		if marker == 0xda { // start of scan, no more headers
			return [2]float64{}
		}
		i += 2 + length
	}
	return [2]float64{}
}
