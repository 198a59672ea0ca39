// Package cms chooses and applies the color path for decoded pictures.
//
// Full ICC rendering is out of reach without a color engine; what this
// package does instead is what matters to the substitution result:
// identify the source profile (embedded, assumed working space, or
// none), detect effectively-gray inputs, and convert between the three
// pipeline modes. RGB→CMYK separation uses a UCR/GCR black generation
// over linear-light values; gray→CMYK keeps the data single-channel and
// leaves colorization to the emitted procset (direct black), so pure
// grays never pick up a chromatic cast from a round trip.
package cms

import (
	"github.com/fhoech/goopi/internal/picture"
)

// Provenance records where the source profile came from. Downstream
// log events distinguish a profile that was really embedded from one
// the configuration assumed.
type Provenance int

const (
	// ProfileNone means no profile at all: device-native passthrough.
	ProfileNone Provenance = iota
	// ProfileAssumed means the configured working profile (or built-in
	// sRGB) was substituted.
	ProfileAssumed
	// ProfileEmbedded means the image carried its own profile.
	ProfileEmbedded
)

func (p Provenance) String() string {
	switch p {
	case ProfileEmbedded:
		return "embedded"
	case ProfileAssumed:
		return "assumed"
	default:
		return "none"
	}
}

// Config selects the output side of the color pipeline.
type Config struct {
	// OutputMode is the press-side mode, ModeCMYK or ModeRGB.
	OutputMode picture.Mode

	// Intent is recorded with the chosen color path.
	Intent Intent

	// DetectGray probes CMYK and RGB inputs for effectively gray
	// content and routes hits through the gray path.
	DetectGray bool

	// StripCMY zeroes the chromatic channels of CMYK inputs whose
	// color lives entirely in the K channel.
	StripCMY bool

	// BlackStart and BlackMax parameterize black generation for
	// RGB→CMYK separation: no black below BlackStart coverage, at most
	// BlackMax black.
	BlackStart float64
	BlackMax   float64

	// Working profiles assumed for images without an embedded one.
	// WorkingRGB falls back to the built-in sRGB profile when empty.
	WorkingRGB  []byte
	WorkingGray []byte
	WorkingCMYK []byte
}

// DefaultConfig returns the pipeline defaults: CMYK output, perceptual
// intent, gray detection on, moderate black generation.
func DefaultConfig() Config {
	return Config{
		OutputMode: picture.ModeCMYK,
		Intent:     IntentPerceptual,
		DetectGray: true,
		BlackStart: 0.25,
		BlackMax:   0.95,
	}
}

// Result is the outcome of a conversion.
type Result struct {
	// Pic holds the converted pixels. May be the input itself when the
	// path is a passthrough.
	Pic *picture.Picture

	// DirectBlack marks single-channel output destined for the black
	// ink: the encoder colorizes it in the procset instead of the
	// pipeline expanding it to four channels.
	DirectBlack bool

	// Provenance of the source profile the path was chosen under.
	Provenance Provenance

	// Path names the conversion for the log, e.g. "RGB→CMYK".
	Path string
}
