package psenc

import (
	"fmt"
	"strconv"
	"strings"
)

// placementMatrix maps image space onto the position parallelogram:
// reset to device defaults, concat the parallelogram transform, then
// (for rasters) scale the unit square up to pixel dimensions.
//
// Position order is llx lly ulx uly urx ury lrx lry.
func placementMatrix(pos []float64, w, h int, eps bool) []string {
	llx, lly := pos[0], pos[1]
	ulx, uly := pos[2], pos[3]
	lrx, lry := pos[6], pos[7]
	fw, fh := float64(w), float64(h)
	a := (lrx - llx) / fw
	b := (lry - lly) / fw
	c := (ulx - llx) / fh
	d := (uly - lly) / fh
	out := []string{
		"initmatrix",
		fmt.Sprintf("[%s %s %s %s %s %s] concat",
			formatFloat(a), formatFloat(b), formatFloat(c), formatFloat(d),
			formatFloat(llx), formatFloat(lly)),
	}
	if !eps {
		out = append(out, fmt.Sprintf("[%d 0 0 %d 0 0] concat", w, h))
	}
	return out
}

// cropConcat maps the crop window onto the unit square when the crop
// keeps less than the full frame. crop is in output pixel coordinates,
// real is the pixel region actually kept.
func cropConcat(w, h int, crop, real []int) (string, bool) {
	if len(crop) < 4 {
		return "", false
	}
	if len(real) < 4 {
		real = []int{0, 0, w, h}
	}
	if !(crop[0] > real[0] || crop[1] > real[1] || w > crop[2] || h > crop[3]) {
		return "", false
	}
	cw := crop[2] - crop[0]
	chh := crop[3] - crop[1]
	if cw <= 0 || chh <= 0 {
		return "", false
	}
	a := float64(w) / float64(cw)
	d := float64(h) / float64(chh)
	x1 := crop[0] - real[0]
	y1 := crop[1] - real[1]
	x2 := x1 + cw
	y2 := y1 + chh
	e := -float64(x1) / float64(x2-x1)
	f := -float64(h-y2) / float64(y2-y1)
	return fmt.Sprintf("[%s 0 0 %s %s %s] concat",
		formatFloat(a), formatFloat(d), formatFloat(e), formatFloat(f)), true
}

// epsCropConcat is the EPS variant: the crop is fractional and offsets
// scale with the frame instead of normalizing to it.
func epsCropConcat(w, h int, crop []float64) (string, bool) {
	if len(crop) < 4 {
		return "", false
	}
	fw, fh := float64(w), float64(h)
	if !(crop[0] > 0 || crop[1] > 0 || fw > crop[2] || fh > crop[3]) {
		return "", false
	}
	cw := crop[2] - crop[0]
	chh := crop[3] - crop[1]
	if cw <= 0 || chh <= 0 {
		return "", false
	}
	a := fw / cw
	d := fh / chh
	e := -crop[0] * (fw / cw)
	f := -(fh - crop[3]) * (fh / chh)
	return fmt.Sprintf("[%s 0 0 %s %s %s] concat",
		formatFloat(a), formatFloat(d), formatFloat(e), formatFloat(f)), true
}

// ParseConcat parses a "[a b c d tx ty] concat" line back into its six
// values. Used to verify emitted geometry is machine-readable.
func ParseConcat(line string) ([6]float64, bool) {
	var m [6]float64
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "] concat") {
		return m, false
	}
	fields := strings.Fields(strings.TrimSuffix(strings.TrimPrefix(line, "["), "] concat"))
	if len(fields) != 6 {
		return m, false
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return m, false
		}
		m[i] = v
	}
	return m, true
}
