package cms

import (
	"fmt"

	"seehuhn.de/go/icc"

	"github.com/fhoech/goopi/internal/picture"
)

// Profile is the resolved source profile for one picture.
type Profile struct {
	Data       []byte
	Provenance Provenance
}

// SourceProfile picks the profile a picture is interpreted under:
// embedded when present and consistent with the pixel mode, otherwise
// the configured working profile, otherwise built-in sRGB for RGB
// images. A mismatched embedded profile is rejected rather than
// silently trusted.
func SourceProfile(pic *picture.Picture, cfg *Config) (Profile, error) {
	if len(pic.ICC) > 0 {
		space, err := profileSpace(pic.ICC)
		if err != nil {
			return Profile{}, err
		}
		if space != pic.Mode {
			return Profile{}, fmt.Errorf(
				"embedded profile is %s but pixels are %s", space, pic.Mode)
		}
		return Profile{Data: pic.ICC, Provenance: ProfileEmbedded}, nil
	}

	var working []byte
	switch pic.Mode {
	case picture.ModeRGB:
		working = cfg.WorkingRGB
		if len(working) == 0 {
			working = icc.SRGBv2Profile
		}
	case picture.ModeGray:
		working = cfg.WorkingGray
	case picture.ModeCMYK:
		working = cfg.WorkingCMYK
	}
	if len(working) > 0 {
		return Profile{Data: working, Provenance: ProfileAssumed}, nil
	}
	return Profile{Provenance: ProfileNone}, nil
}

// profileSpace decodes a profile far enough to learn its color space.
func profileSpace(data []byte) (picture.Mode, error) {
	p, err := icc.Decode(data)
	if err != nil {
		return 0, fmt.Errorf("invalid ICC profile: %w", err)
	}
	switch p.ColorSpace {
	case icc.GraySpace:
		return picture.ModeGray, nil
	case icc.RGBSpace:
		return picture.ModeRGB, nil
	case icc.CMYKSpace:
		return picture.ModeCMYK, nil
	}
	return 0, fmt.Errorf("unsupported profile color space %v", p.ColorSpace)
}
