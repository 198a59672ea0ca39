package picture

import (
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
)

// ParseFilter maps a configured filter name to a resampling kernel.
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	switch strings.ToLower(name) {
	case "", "lanczos", "antialias":
		return imaging.Lanczos, nil
	case "bicubic", "catmullrom":
		return imaging.CatmullRom, nil
	case "bilinear", "linear":
		return imaging.Linear, nil
	case "box":
		return imaging.Box, nil
	case "nearest":
		return imaging.NearestNeighbor, nil
	case "gaussian":
		return imaging.Gaussian, nil
	case "mitchell":
		return imaging.MitchellNetravali, nil
	}
	return imaging.Lanczos, fmt.Errorf("unknown resample filter %q", name)
}

// Crop returns the pixels inside rect (source pixel coordinates,
// clamped to the picture bounds). EPS pictures cannot be cropped.
func Crop(p *Picture, x1, y1, x2, y2 int) *Picture {
	if p.Format == FormatEPS {
		return p
	}
	if x1 < 0 {
		x1 = 0
	}
	if y1 < 0 {
		y1 = 0
	}
	if x2 > p.Width {
		x2 = p.Width
	}
	if y2 > p.Height {
		y2 = p.Height
	}
	if x1 == 0 && y1 == 0 && x2 == p.Width && y2 == p.Height {
		return p
	}
	if x2 <= x1 || y2 <= y1 {
		return p
	}
	ch := p.Mode.Channels()
	w, h := x2-x1, y2-y1
	out := &Picture{
		Format: p.Format,
		Width:  w,
		Height: h,
		Mode:   p.Mode,
		Data:   make([]byte, w*h*ch),
		DPI:    p.DPI,
		ICC:    p.ICC,
	}
	for y := 0; y < h; y++ {
		src := p.offset(x1, y1+y)
		copy(out.Data[y*w*ch:(y+1)*w*ch], p.Data[src:src+w*ch])
	}
	return out
}

// Resample scales the raster to w×h with the given kernel. CMYK data,
// which the kernel library cannot represent, is resampled as four
// independent gray planes and re-interleaved.
func Resample(p *Picture, w, h int, filter imaging.ResampleFilter) *Picture {
	if p.Format == FormatEPS || (w == p.Width && h == p.Height) || w < 1 || h < 1 {
		return p
	}
	out := &Picture{
		Format: p.Format,
		Width:  w,
		Height: h,
		Mode:   p.Mode,
		DPI:    p.DPI,
		ICC:    p.ICC,
	}
	switch p.Mode {
	case ModeGray:
		resized := imaging.Resize(toGray(p, 0, 1), w, h, filter)
		out.Data = grayPix(resized, w, h)
	case ModeRGB:
		resized := imaging.Resize(toNRGBA(p), w, h, filter)
		out.Data = make([]byte, w*h*3)
		for i := 0; i < w*h; i++ {
			out.Data[i*3] = resized.Pix[i*4]
			out.Data[i*3+1] = resized.Pix[i*4+1]
			out.Data[i*3+2] = resized.Pix[i*4+2]
		}
	case ModeCMYK:
		out.Data = make([]byte, w*h*4)
		for c := 0; c < 4; c++ {
			resized := imaging.Resize(toGray(p, c, 4), w, h, filter)
			plane := grayPix(resized, w, h)
			for i, v := range plane {
				out.Data[i*4+c] = v
			}
		}
	}
	return out
}

// toGray extracts channel c of a picture with stride channels as a
// gray image sharing no memory with the source.
func toGray(p *Picture, c, channels int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, p.Width, p.Height))
	n := p.Width * p.Height
	for i := 0; i < n; i++ {
		g.Pix[i] = p.Data[i*channels+c]
	}
	return g
}

func toNRGBA(p *Picture) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, p.Width, p.Height))
	n := p.Width * p.Height
	for i := 0; i < n; i++ {
		img.Pix[i*4] = p.Data[i*3]
		img.Pix[i*4+1] = p.Data[i*3+1]
		img.Pix[i*4+2] = p.Data[i*3+2]
		img.Pix[i*4+3] = 0xff
	}
	return img
}

// grayPix flattens a resized NRGBA result back to one byte per pixel.
func grayPix(img *image.NRGBA, w, h int) []byte {
	out := make([]byte, w*h)
	for i := 0; i < w*h; i++ {
		out[i] = img.Pix[i*4]
	}
	return out
}
