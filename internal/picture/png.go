package picture

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"image/png"
	"io"
)

// decodePNG decodes via the std decoder after rejecting layouts the
// substitution pipeline cannot represent: alpha color types and 16-bit
// channels. The iCCP and pHYs chunks are scanned separately because the
// std decoder discards them.
func decodePNG(data []byte) (*Picture, error) {
	if len(data) < 33 {
		return nil, ErrCorruptData
	}
	bitDepth := data[24]
	colorType := data[25]
	if colorType == 4 || colorType == 6 {
		return nil, fmt.Errorf("%w: PNG color type %d carries alpha",
			ErrUnsupportedColorMode, colorType)
	}
	if bitDepth == 16 {
		return nil, fmt.Errorf("%w: 16 bits/channel", ErrUnsupportedBitDepth)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	pic, err := fromImage(img)
	if err != nil {
		return nil, err
	}
	pic.Format = FormatPNG
	pic.ICC = pngICC(data)
	pic.DPI = pngDensity(data)
	return pic, nil
}

// pngChunks calls fn for each chunk until fn returns false.
func pngChunks(data []byte, fn func(name string, body []byte) bool) {
	i := 8
	for i+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[i : i+4]))
		name := string(data[i+4 : i+8])
		end := i + 8 + length
		if end+4 > len(data) {
			return
		}
		if !fn(name, data[i+8:end]) {
			return
		}
		i = end + 4 // skip CRC
	}
}

func pngICC(data []byte) []byte {
	var icc []byte
	pngChunks(data, func(name string, body []byte) bool {
		if name != "iCCP" {
			return name != "IDAT"
		}
		// profile name, NUL, compression method (0 = zlib), stream
		nul := bytes.IndexByte(body, 0)
		if nul < 0 || nul+2 > len(body) || body[nul+1] != 0 {
			return false
		}
		zr, err := zlib.NewReader(bytes.NewReader(body[nul+2:]))
		if err != nil {
			return false
		}
		defer zr.Close()
		if buf, err := io.ReadAll(zr); err == nil {
			icc = buf
		}
		return false
	})
	return icc
}

func pngDensity(data []byte) [2]float64 {
	var dpi [2]float64
	pngChunks(data, func(name string, body []byte) bool {
		if name != "pHYs" {
			return name != "IDAT"
		}
		if len(body) == 9 && body[8] == 1 { // pixels per meter
			x := binary.BigEndian.Uint32(body[0:4])
			y := binary.BigEndian.Uint32(body[4:8])
			dpi = [2]float64{float64(x) * 0.0254, float64(y) * 0.0254}
		}
		return false
	})
	return dpi
}
