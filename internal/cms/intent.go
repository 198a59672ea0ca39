package cms

import (
	"fmt"
	"strings"
)

// Intent is the rendering intent recorded with a color path.
type Intent int

const (
	IntentPerceptual Intent = iota
	IntentRelative
	IntentRelativeBPC
	IntentSaturation
	IntentAbsolute
)

// ParseIntent maps the configuration spellings to an Intent.
func ParseIntent(s string) (Intent, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "perceptual":
		return IntentPerceptual, nil
	case "relative", "relative_colorimetric":
		return IntentRelative, nil
	case "relative_bpc", "relative_colorimetric_bpc":
		return IntentRelativeBPC, nil
	case "saturation":
		return IntentSaturation, nil
	case "absolute", "absolute_colorimetric":
		return IntentAbsolute, nil
	}
	return IntentPerceptual, fmt.Errorf("unknown rendering intent %q", s)
}

func (i Intent) String() string {
	switch i {
	case IntentRelative:
		return "relative"
	case IntentRelativeBPC:
		return "relative_bpc"
	case IntentSaturation:
		return "saturation"
	case IntentAbsolute:
		return "absolute"
	default:
		return "perceptual"
	}
}
