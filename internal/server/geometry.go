package server

import (
	"math"

	"github.com/fhoech/goopi/internal/directive"
	"github.com/fhoech/goopi/internal/picture"
)

// layout is the geometry plan for one raster substitution: the crop
// window scaled into source pixels, the pixel region to keep, and the
// resample target.
type layout struct {
	cropFixed []float64 // crop window in source pixels
	cropRect  []int
	realCrop  []int // pixel region actually kept
	realRes   [2]float64
	quality   float64
	crop      bool
	resample  bool
	target    [2]int
	factor    [2]float64
}

// planLayout derives the crop and downsample plan from the directive
// geometry and the decoded frame.
//
// Crop rectangles arrive in the coordinate space of the declared proxy
// dimensions and are rescaled to the frame. The effective resolution is
// the cropped pixel extent over the placed size; it decides both the
// quality rating and whether the target resolution justifies
// resampling. Pixels outside the crop are only discarded when at least
// CropThreshold times the crop area would be dropped. OPI 2.0 producers
// are assumed to place crop edges on ceiling boundaries (QuarkXPress
// behavior); 1.3 producers on floors.
func (c *Config) planLayout(dir *directive.Directive, pic *picture.Picture) *layout {
	w, h := pic.Width, pic.Height
	class := c.class(pic.Mode)
	quark := dir.Version20
	lay := &layout{quality: 1.0, factor: [2]float64{1, 1}}

	cf := make([]float64, 4)
	if len(dir.CropFixed) == 4 {
		sx, sy := 1.0, 1.0
		if len(dir.Dimensions) == 2 && dir.Dimensions[0] > 0 && dir.Dimensions[1] > 0 {
			sx = float64(w) / dir.Dimensions[0]
			sy = float64(h) / dir.Dimensions[1]
		}
		cf[0] = dir.CropFixed[0] * sx
		cf[1] = dir.CropFixed[1] * sy
		cf[2] = dir.CropFixed[2] * sx
		cf[3] = dir.CropFixed[3] * sy
	} else {
		cf[2], cf[3] = float64(w), float64(h)
	}
	lay.cropFixed = cf
	lay.realCrop = realCropRect(cf, w, h, quark)

	real := dir.RealDimensions()
	if real != nil && cf[2] > cf[0] && cf[3] > cf[1] {
		lay.realRes[0] = (cf[2] - cf[0]) / (real[0] / 72.0)
		lay.realRes[1] = (cf[3] - cf[1]) / (real[1] / 72.0)
		switch m := math.Min(lay.realRes[0], lay.realRes[1]); {
		case m >= class.Resolution:
			lay.quality = 3.0
		case m >= class.MinResolution:
			lay.quality = 2.0
		}
	}

	// Target dimensions from the class resolution; untouched axes keep
	// the source extent so their factor stays 1.
	dsw, dsh := float64(w), float64(h)
	if real != nil && class.Downsample {
		sizeFactor := 1.0
		switch m := math.Max(real[0], real[1]); {
		case m <= c.TinyHalftoneSize:
			sizeFactor = c.TinyHalftoneFactor
		case m <= c.SmallHalftoneSize:
			sizeFactor = c.SmallHalftoneFactor
		}
		dsRes := [2]float64{class.Resolution, class.Resolution}
		if class.UseEmbeddedResolution && pic.DPI[0] > 0 && pic.DPI[1] > 0 &&
			math.Min(pic.DPI[0], pic.DPI[1]) > class.Resolution {
			dsRes = pic.DPI
		}
		if lay.realRes[0] > dsRes[0]*class.Threshold*sizeFactor {
			dsw = real[0] / 72.0 * dsRes[0] * sizeFactor
		}
		if lay.realRes[1] > dsRes[1]*class.Threshold*sizeFactor {
			dsh = real[1] / 72.0 * dsRes[1] * sizeFactor
		}
	}
	if cw, ch := cf[2]-cf[0], cf[3]-cf[1]; cw > 0 && ch > 0 {
		lay.factor[0] = dsw / cw
		lay.factor[1] = dsh / ch
	}

	endW := lay.realCrop[2] - lay.realCrop[0]
	endH := lay.realCrop[3] - lay.realCrop[1]
	if endW > 0 && endH > 0 &&
		float64(w*h)/float64(endW*endH) >= c.CropThreshold {
		lay.crop = true
	} else {
		lay.realCrop = []int{0, 0, w, h}
		endW, endH = w, h
	}

	lay.target[0] = roundDim(float64(endW)*lay.factor[0], quark)
	lay.target[1] = roundDim(float64(endH)*lay.factor[1], quark)
	lay.resample = lay.target[0] < endW || lay.target[1] < endH
	lay.cropRect = roundList(cf)
	return lay
}

// apply crops and resamples per the plan and rewrites the crop
// coordinates into the final pixel space.
func (l *layout) apply(pic *picture.Picture, class *ClassConfig, quark bool) *picture.Picture {
	if l.crop {
		pic = picture.Crop(pic, l.realCrop[0], l.realCrop[1], l.realCrop[2], l.realCrop[3])
	}
	if !l.resample {
		return pic
	}
	pic = picture.Resample(pic, l.target[0], l.target[1], class.Filter)
	l.cropFixed = []float64{
		l.cropFixed[0] * l.factor[0],
		l.cropFixed[1] * l.factor[1],
		l.cropFixed[2] * l.factor[0],
		l.cropFixed[3] * l.factor[1],
	}
	l.cropRect = roundList(l.cropFixed)
	if l.crop {
		l.realCrop = realCropRect(l.cropFixed, pic.Width, pic.Height, quark)
	} else {
		l.realCrop = []int{0, 0, pic.Width, pic.Height}
	}
	return pic
}

// realCropRect snaps the fractional crop window to pixel bounds. The
// QuarkXPress variant rounds the far edges outward and widens by one
// pixel where the snapped window falls short of a frame edge, matching
// how those producers rasterize the proxy.
func realCropRect(cf []float64, w, h int, quark bool) []int {
	rc := []int{
		int(math.Floor(cf[0])),
		int(math.Floor(cf[1])),
	}
	if !quark {
		return append(rc, int(math.Floor(cf[2])), int(math.Floor(cf[3])))
	}
	rc = append(rc, int(math.Ceil(cf[2])), int(math.Ceil(cf[3])))
	if w != rc[2]-rc[0] {
		if rc[0] != 0 {
			rc[0]--
		}
		if rc[2] != w {
			rc[2]++
		}
	}
	if h != rc[3]-rc[1] {
		if rc[1] != 0 {
			rc[1]--
		}
		if rc[3] != h {
			rc[3]++
		}
	}
	return rc
}

func roundDim(v float64, quark bool) int {
	if quark {
		return int(math.Ceil(v))
	}
	return int(math.Round(v))
}

func roundList(fs []float64) []int {
	out := make([]int, len(fs))
	for i, f := range fs {
		out[i] = int(math.Round(f))
	}
	return out
}
