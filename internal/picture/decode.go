package picture

import (
	"fmt"
	"image"
	"os"

	"github.com/fhoech/goopi/internal/oplog"
)

// Decode decodes data into a normalized Picture. log may be nil.
func Decode(data []byte, log oplog.Logger) (*Picture, error) {
	if log == nil {
		log = oplog.NopLogger{}
	}
	format, err := Sniff(data)
	if err != nil {
		return nil, err
	}
	var pic *Picture
	switch format {
	case FormatTIFF:
		pic, err = decodeTIFF(data)
	case FormatJPEG:
		pic, err = decodeJPEG(data)
	case FormatPNG:
		pic, err = decodePNG(data)
	case FormatPSD:
		pic, err = decodePSD(data)
	case FormatEPS:
		pic, err = decodeEPS(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", format, err)
	}
	if pic.Format == FormatEPS {
		log.Debug("decoded", oplog.String("format", string(pic.Format)),
			oplog.Int("bytes", len(pic.PS)))
	} else {
		log.Debug("decoded", oplog.String("format", string(pic.Format)),
			oplog.Int("width", pic.Width), oplog.Int("height", pic.Height),
			oplog.String("mode", pic.Mode.String()),
			oplog.Float64("dpi", pic.DPI[0]))
	}
	return pic, nil
}

// DecodeFile reads and decodes the file at path.
func DecodeFile(path string, log oplog.Logger) (*Picture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pic, err := Decode(data, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pic, nil
}

// fromImage converts a stdlib image into interleaved 8-bit samples.
// Alpha-carrying images must be rejected by the caller beforehand; any
// alpha that slips through is dropped here.
func fromImage(img image.Image) (*Picture, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		p := &Picture{Width: w, Height: h, Mode: ModeGray, Data: make([]byte, w*h)}
		for y := 0; y < h; y++ {
			copy(p.Data[y*w:(y+1)*w], src.Pix[y*src.Stride:y*src.Stride+w])
		}
		return p, nil
	case *image.CMYK:
		p := &Picture{Width: w, Height: h, Mode: ModeCMYK, Data: make([]byte, w*h*4)}
		for y := 0; y < h; y++ {
			copy(p.Data[y*w*4:(y+1)*w*4], src.Pix[y*src.Stride:y*src.Stride+w*4])
		}
		return p, nil
	case *image.Gray16:
		return nil, ErrUnsupportedBitDepth
	case *image.RGBA64, *image.NRGBA64:
		return nil, ErrUnsupportedBitDepth
	}

	// Everything else (YCbCr, RGBA, NRGBA, Paletted) flattens to RGB.
	p := &Picture{Width: w, Height: h, Mode: ModeRGB, Data: make([]byte, w*h*3)}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			p.Data[i] = byte(r >> 8)
			p.Data[i+1] = byte(g >> 8)
			p.Data[i+2] = byte(bl >> 8)
			i += 3
		}
	}
	return p, nil
}
