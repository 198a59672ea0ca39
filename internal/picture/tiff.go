package picture

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/image/tiff"
)

// TIFF tags the decoder cares about.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagXResolution     = 282
	tagYResolution     = 283
	tagResolutionUnit  = 296
	tagTileWidth       = 322
	tagExtraSamples    = 338
	tagICCProfile      = 34675
)

const (
	compressionNone     = 1
	compressionPackBits = 32773
	photometricCMYK     = 5
)

type tiffMeta struct {
	order           binary.ByteOrder
	width, height   int
	bits            []uint
	compression     uint
	photometric     uint
	samplesPerPixel uint
	rowsPerStrip    uint
	stripOffsets    []uint
	stripCounts     []uint
	extraSamples    int
	tiled           bool
	dpi             [2]float64
	icc             []byte
}

// decodeTIFF decodes via x/image/tiff for the layouts it supports and
// reads CMYK (photometric 5) rasters directly, which the stdlib decoder
// rejects. Only the first IFD is considered.
func decodeTIFF(data []byte) (*Picture, error) {
	meta, err := parseTIFFMeta(data)
	if err != nil {
		return nil, err
	}
	for _, b := range meta.bits {
		if b > 8 {
			return nil, fmt.Errorf("%w: %d bits/sample", ErrUnsupportedBitDepth, b)
		}
	}
	if meta.extraSamples > 0 {
		return nil, fmt.Errorf("%w: alpha channel", ErrUnsupportedColorMode)
	}

	var pic *Picture
	if meta.photometric == photometricCMYK {
		pic, err = decodeTIFFCMYK(data, meta)
	} else {
		img, derr := tiff.Decode(bytes.NewReader(data))
		if derr != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptData, derr)
		}
		pic, err = fromImage(img)
	}
	if err != nil {
		return nil, err
	}
	pic.Format = FormatTIFF
	pic.DPI = meta.dpi
	pic.ICC = meta.icc
	return pic, nil
}

func parseTIFFMeta(data []byte) (*tiffMeta, error) {
	if len(data) < 8 {
		return nil, ErrCorruptData
	}
	meta := &tiffMeta{compression: compressionNone, samplesPerPixel: 1}
	switch {
	case data[0] == 'I' && data[1] == 'I':
		meta.order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		meta.order = binary.BigEndian
	default:
		return nil, ErrCorruptData
	}
	ifd := meta.order.Uint32(data[4:8])
	if int(ifd)+2 > len(data) {
		return nil, ErrCorruptData
	}
	n := int(meta.order.Uint16(data[ifd : ifd+2]))
	resUnit := uint(2) // inches unless stated otherwise
	var xres, yres float64
	for i := 0; i < n; i++ {
		off := int(ifd) + 2 + i*12
		if off+12 > len(data) {
			return nil, ErrCorruptData
		}
		tag := meta.order.Uint16(data[off : off+2])
		switch tag {
		case tagImageWidth:
			meta.width = int(firstValue(data, off, meta.order))
		case tagImageLength:
			meta.height = int(firstValue(data, off, meta.order))
		case tagBitsPerSample:
			meta.bits = entryValues(data, off, meta.order)
		case tagCompression:
			meta.compression = firstValue(data, off, meta.order)
		case tagPhotometric:
			meta.photometric = firstValue(data, off, meta.order)
		case tagSamplesPerPixel:
			meta.samplesPerPixel = firstValue(data, off, meta.order)
		case tagRowsPerStrip:
			meta.rowsPerStrip = firstValue(data, off, meta.order)
		case tagStripOffsets:
			meta.stripOffsets = entryValues(data, off, meta.order)
		case tagStripByteCounts:
			meta.stripCounts = entryValues(data, off, meta.order)
		case tagXResolution:
			xres = rationalValue(data, off, meta.order)
		case tagYResolution:
			yres = rationalValue(data, off, meta.order)
		case tagResolutionUnit:
			resUnit = firstValue(data, off, meta.order)
		case tagTileWidth:
			meta.tiled = true
		case tagExtraSamples:
			meta.extraSamples = int(meta.order.Uint32(data[off+4 : off+8]))
		case tagICCProfile:
			meta.icc = entryBytes(data, off, meta.order)
		}
	}
	switch resUnit {
	case 2:
		meta.dpi = [2]float64{xres, yres}
	case 3:
		meta.dpi = [2]float64{xres * 2.54, yres * 2.54}
	}
	if meta.width <= 0 || meta.height <= 0 {
		return nil, ErrCorruptData
	}
	return meta, nil
}

// firstValue returns the first numeric value of a SHORT or LONG entry.
func firstValue(data []byte, off int, order binary.ByteOrder) uint {
	typ := order.Uint16(data[off+2 : off+4])
	if typ == 3 { // SHORT
		return uint(order.Uint16(data[off+8 : off+10]))
	}
	return uint(order.Uint32(data[off+8 : off+12]))
}

// entryValues returns all numeric values of a SHORT or LONG entry,
// following the offset indirection for values that do not fit inline.
func entryValues(data []byte, off int, order binary.ByteOrder) []uint {
	typ := order.Uint16(data[off+2 : off+4])
	count := int(order.Uint32(data[off+4 : off+8]))
	size := 2
	if typ == 4 { // LONG
		size = 4
	}
	src := off + 8
	if count*size > 4 {
		src = int(order.Uint32(data[off+8 : off+12]))
	}
	if src+count*size > len(data) {
		return nil
	}
	out := make([]uint, count)
	for i := 0; i < count; i++ {
		if size == 2 {
			out[i] = uint(order.Uint16(data[src+i*2 : src+i*2+2]))
		} else {
			out[i] = uint(order.Uint32(data[src+i*4 : src+i*4+4]))
		}
	}
	return out
}

func rationalValue(data []byte, off int, order binary.ByteOrder) float64 {
	src := int(order.Uint32(data[off+8 : off+12]))
	if src+8 > len(data) {
		return 0
	}
	num := order.Uint32(data[src : src+4])
	den := order.Uint32(data[src+4 : src+8])
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func entryBytes(data []byte, off int, order binary.ByteOrder) []byte {
	count := int(order.Uint32(data[off+4 : off+8]))
	src := off + 8
	if count > 4 {
		src = int(order.Uint32(data[off+8 : off+12]))
	}
	if src+count > len(data) {
		return nil
	}
	return append([]byte(nil), data[src:src+count]...)
}

// decodeTIFFCMYK reads a photometric-5 raster strip by strip.
func decodeTIFFCMYK(data []byte, meta *tiffMeta) (*Picture, error) {
	if meta.samplesPerPixel != 4 {
		return nil, fmt.Errorf("%w: CMYK with %d samples/pixel",
			ErrUnsupportedColorMode, meta.samplesPerPixel)
	}
	if meta.tiled {
		return nil, fmt.Errorf("%w: tiled CMYK", ErrUnsupportedFeature)
	}
	if meta.compression != compressionNone && meta.compression != compressionPackBits {
		return nil, fmt.Errorf("%w: CMYK compression %d",
			ErrUnsupportedFeature, meta.compression)
	}
	if len(meta.stripOffsets) == 0 || len(meta.stripOffsets) != len(meta.stripCounts) {
		return nil, ErrCorruptData
	}

	rowBytes := meta.width * 4
	out := make([]byte, 0, meta.height*rowBytes)
	for i, off := range meta.stripOffsets {
		count := meta.stripCounts[i]
		if int(off)+int(count) > len(data) {
			return nil, ErrCorruptData
		}
		strip := data[off : off+count]
		if meta.compression == compressionPackBits {
			var err error
			strip, err = unpackBits(strip)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, strip...)
	}
	if len(out) < meta.height*rowBytes {
		return nil, ErrCorruptData
	}
	return &Picture{
		Width:  meta.width,
		Height: meta.height,
		Mode:   ModeCMYK,
		Data:   out[:meta.height*rowBytes],
	}, nil
}

// unpackBits expands PackBits run-length data.
func unpackBits(src []byte) ([]byte, error) {
	out := make([]byte, 0, len(src)*2)
	for i := 0; i < len(src); {
		n := int8(src[i])
		i++
		switch {
		case n >= 0:
			end := i + int(n) + 1
			if end > len(src) {
				return nil, ErrCorruptData
			}
			out = append(out, src[i:end]...)
			i = end
		case n == -128:
			// no-op
		default:
			if i >= len(src) {
				return nil, ErrCorruptData
			}
			for j := 0; j < 1-int(n); j++ {
				out = append(out, src[i])
			}
			i++
		}
	}
	return out, nil
}
