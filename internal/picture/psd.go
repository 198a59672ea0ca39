package picture

import (
	"encoding/binary"
	"fmt"
)

// PSD color modes.
const (
	psdModeBitmap    = 0
	psdModeGrayscale = 1
	psdModeRGB       = 3
	psdModeCMYK      = 4
)

// decodePSD reads the flattened composite of a version-1 Photoshop
// file: bitmap, grayscale or RGB, raw or RLE. Layers are ignored; the
// composite at the end of the file already merges them. 1-bit bitmap
// composites are promoted to 8-bit gray. CMYK and multichannel
// documents are refused because Photoshop writes them with
// per-document ink setups the pipeline cannot reproduce.
func decodePSD(data []byte) (*Picture, error) {
	if len(data) < 26 {
		return nil, ErrCorruptData
	}
	version := binary.BigEndian.Uint16(data[4:6])
	if version != 1 {
		return nil, fmt.Errorf("%w: PSD version %d", ErrUnsupportedFeature, version)
	}
	channels := int(binary.BigEndian.Uint16(data[12:14]))
	height := int(binary.BigEndian.Uint32(data[14:18]))
	width := int(binary.BigEndian.Uint32(data[18:22]))
	depth := int(binary.BigEndian.Uint16(data[22:24]))
	mode := int(binary.BigEndian.Uint16(data[24:26]))

	var picMode Mode
	switch mode {
	case psdModeBitmap:
		if depth != 1 {
			return nil, fmt.Errorf("%w: %d-bit PSD bitmap", ErrCorruptData, depth)
		}
		picMode = ModeGray
	case psdModeGrayscale:
		picMode = ModeGray
	case psdModeRGB:
		picMode = ModeRGB
	case psdModeCMYK:
		return nil, fmt.Errorf("%w: PSD CMYK", ErrUnsupportedColorMode)
	default:
		return nil, fmt.Errorf("%w: PSD mode %d", ErrUnsupportedColorMode, mode)
	}
	if mode != psdModeBitmap && depth != 8 {
		return nil, fmt.Errorf("%w: %d bits/channel", ErrUnsupportedBitDepth, depth)
	}
	want := picMode.Channels()
	if channels > want {
		return nil, fmt.Errorf("%w: %d channels carry alpha", ErrUnsupportedColorMode, channels)
	}
	if channels < want || width <= 0 || height <= 0 {
		return nil, ErrCorruptData
	}

	// Length-prefixed sections: color mode data, image resources,
	// layer and mask info. The composite follows.
	off := 26
	var dpi [2]float64
	for i := 0; i < 3; i++ {
		if off+4 > len(data) {
			return nil, ErrCorruptData
		}
		length := int(binary.BigEndian.Uint32(data[off : off+4]))
		off += 4
		if off+length > len(data) {
			return nil, ErrCorruptData
		}
		if i == 1 {
			dpi = psdResolution(data[off : off+length])
		}
		off += length
	}

	if off+2 > len(data) {
		return nil, ErrCorruptData
	}
	compression := binary.BigEndian.Uint16(data[off : off+2])
	off += 2

	// Bitmap rows pack 8 pixels per byte.
	rowBytes := width
	if mode == psdModeBitmap {
		rowBytes = (width + 7) / 8
	}
	plane := rowBytes * height
	planes := make([]byte, 0, plane*channels)
	switch compression {
	case 0: // raw
		if off+plane*channels > len(data) {
			return nil, ErrCorruptData
		}
		planes = append(planes, data[off:off+plane*channels]...)
	case 1: // RLE, per-row byte counts then PackBits rows
		rows := height * channels
		if off+rows*2 > len(data) {
			return nil, ErrCorruptData
		}
		counts := make([]int, rows)
		for i := range counts {
			counts[i] = int(binary.BigEndian.Uint16(data[off+i*2 : off+i*2+2]))
		}
		off += rows * 2
		for _, n := range counts {
			if off+n > len(data) {
				return nil, ErrCorruptData
			}
			row, err := unpackBits(data[off : off+n])
			if err != nil {
				return nil, err
			}
			if len(row) < rowBytes {
				return nil, ErrCorruptData
			}
			planes = append(planes, row[:rowBytes]...)
			off += n
		}
	default:
		return nil, fmt.Errorf("%w: PSD compression %d", ErrUnsupportedFeature, compression)
	}

	if mode == psdModeBitmap {
		planes = expandBilevel(planes, width, height)
	}

	// Planar to interleaved.
	pix := width * height
	out := make([]byte, pix*channels)
	for c := 0; c < channels; c++ {
		src := planes[c*pix : (c+1)*pix]
		for i, v := range src {
			out[i*channels+c] = v
		}
	}
	pic := &Picture{
		Format: FormatPSD,
		Width:  width,
		Height: height,
		Mode:   picMode,
		Data:   out,
		DPI:    dpi,
	}
	return pic, nil
}

// expandBilevel promotes packed 1-bit rows to one byte per pixel. Set
// bits are ink in bitmap mode, so they map to black.
func expandBilevel(packed []byte, width, height int) []byte {
	rowBytes := (width + 7) / 8
	out := make([]byte, width*height)
	for y := 0; y < height; y++ {
		row := packed[y*rowBytes:]
		for x := 0; x < width; x++ {
			if row[x/8]&(0x80>>uint(x%8)) == 0 {
				out[y*width+x] = 0xff
			}
		}
	}
	return out
}

// psdResolution finds image resource 0x03ED (resolution info).
func psdResolution(res []byte) [2]float64 {
	i := 0
	for i+12 <= len(res) {
		if string(res[i:i+4]) != "8BIM" {
			return [2]float64{}
		}
		id := binary.BigEndian.Uint16(res[i+4 : i+6])
		// Pascal name, padded to even length.
		nameLen := int(res[i+6])
		n := 1 + nameLen
		if n%2 == 1 {
			n++
		}
		i += 6 + n
		if i+4 > len(res) {
			return [2]float64{}
		}
		size := int(binary.BigEndian.Uint32(res[i : i+4]))
		i += 4
		if i+size > len(res) {
			return [2]float64{}
		}
		if id == 0x03ED && size >= 16 {
			body := res[i : i+size]
			h := float64(binary.BigEndian.Uint32(body[0:4])) / 65536
			v := float64(binary.BigEndian.Uint32(body[8:12])) / 65536
			return [2]float64{h, v}
		}
		i += size
		if size%2 == 1 {
			i++
		}
	}
	return [2]float64{}
}
