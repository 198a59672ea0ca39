package server

import (
	"time"

	"github.com/disintegration/imaging"

	"github.com/fhoech/goopi/internal/cms"
	"github.com/fhoech/goopi/internal/picture"
)

// ClassConfig holds the downsampling parameters of one image class.
// Continuous-tone and line-art images are treated differently at the
// press, so each class carries its own target and floor.
type ClassConfig struct {
	// Downsample enables resampling for the class.
	Downsample bool

	// Resolution is the target output resolution in dpi.
	Resolution float64

	// MinResolution is the floor below which the placed image is
	// reported as draft quality.
	MinResolution float64

	// Threshold is the factor the effective resolution must exceed the
	// target by before resampling kicks in.
	Threshold float64

	// UseEmbeddedResolution prefers the image's own dpi over Resolution
	// as the resampling target when it is higher.
	UseEmbeddedResolution bool

	// Filter is the resampling kernel.
	Filter imaging.ResampleFilter
}

// Config carries everything a substitution run needs.
type Config struct {
	// LoresPath and HiresPath are the proxy and replacement image
	// trees. References are rewritten from the first to the second.
	LoresPath string
	HiresPath string

	// AbortOnError stops the run on the first processing error instead
	// of leaving the placeholder untouched and continuing.
	AbortOnError bool

	// AbortOnNotFound stops the run when a referenced image cannot be
	// resolved. Separate from AbortOnError because missing links are
	// the most common prepress failure and some shops prefer to collect
	// them all in one pass.
	AbortOnNotFound bool

	// Color and Gray are the per-class downsampling parameters. 1-bit
	// sources are promoted to 8-bit gray during decode and follow the
	// Gray class.
	Color ClassConfig
	Gray  ClassConfig

	// CropThreshold is the minimum ratio of full frame area to crop
	// area before pixels outside the crop are actually discarded.
	CropThreshold float64

	// Halftone images placed smaller than these sizes (points) get
	// their downsample threshold scaled by the matching factor.
	SmallHalftoneSize   float64
	SmallHalftoneFactor float64
	TinyHalftoneSize    float64
	TinyHalftoneFactor  float64

	// CMS configures the color pipeline.
	CMS cms.Config

	// Binary emits binary data blocks instead of hex.
	Binary bool

	// Disabled formats are passed through with a warning instead of
	// being substituted.
	Disabled map[picture.Format]bool

	// CacheBudget bounds the decode cache in bytes. Zero means the
	// cache default.
	CacheBudget int64

	// Workers bounds the directive worker pool. Zero means one worker
	// per CPU.
	Workers int

	// Timeout bounds the processing of a single directive. Zero means
	// no limit.
	Timeout time.Duration
}

// DefaultConfig returns production defaults: strict abort policies,
// 300 dpi continuous-tone target, crop when at least 10% of the frame
// falls outside the window.
func DefaultConfig() Config {
	class := ClassConfig{
		Downsample:            true,
		Resolution:            300,
		MinResolution:         200,
		Threshold:             2.0,
		UseEmbeddedResolution: true,
		Filter:                imaging.Lanczos,
	}
	return Config{
		AbortOnError:        true,
		AbortOnNotFound:     true,
		Color:               class,
		Gray:                class,
		CropThreshold:       1.1,
		SmallHalftoneSize:   160,
		SmallHalftoneFactor: 1.0,
		TinyHalftoneSize:    80,
		TinyHalftoneFactor:  1.0,
		CMS:                 cms.DefaultConfig(),
	}
}

// class selects the downsampling class for a pixel mode.
func (c *Config) class(m picture.Mode) *ClassConfig {
	if m == picture.ModeGray {
		return &c.Gray
	}
	return &c.Color
}
