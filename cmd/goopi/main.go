// Command goopi substitutes high-resolution images for OPI placeholders
// in a PostScript stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fhoech/goopi/internal/cms"
	"github.com/fhoech/goopi/internal/oplog"
	"github.com/fhoech/goopi/internal/picture"
	"github.com/fhoech/goopi/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "goopi:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := server.DefaultConfig()

	var (
		in          = flag.String("in", "-", "input PostScript file, - for stdin")
		out         = flag.String("out", "-", "output PostScript file, - for stdout")
		hires       = flag.String("hires", "", "root of the high-resolution image tree (required)")
		lores       = flag.String("lores", "", "root of the proxy image tree as the layout application saw it")
		mode        = flag.String("mode", "hex", "image data encoding: hex or binary")
		colorMode   = flag.String("colormode", "cmyk", "press-side color mode: cmyk or rgb")
		intent      = flag.String("intent", "perceptual", "rendering intent: perceptual, relative, relative_bpc, saturation, absolute")
		workingRGB  = flag.String("working-rgb", "", "ICC profile assumed for untagged RGB images")
		workingGray = flag.String("working-gray", "", "ICC profile assumed for untagged gray images")
		workingCMYK = flag.String("working-cmyk", "", "ICC profile assumed for untagged CMYK images")
		debug       = flag.Bool("debug", false, "log debug events")
		version     = flag.Bool("version", false, "print version and exit")
		cacheMB     = flag.Int64("cache", 256, "decode cache budget in MiB")
		timeout     = flag.Duration("timeout", 0, "per-image processing timeout, 0 for none")

		disableTIFF = flag.Bool("disable-tiff", false, "pass TIFF placeholders through untouched")
		disableJPEG = flag.Bool("disable-jpeg", false, "pass JPEG placeholders through untouched")
		disablePNG  = flag.Bool("disable-png", false, "pass PNG placeholders through untouched")
		disablePSD  = flag.Bool("disable-psd", false, "pass PSD placeholders through untouched")
		disableEPS  = flag.Bool("disable-eps", false, "pass EPS placeholders through untouched")
	)
	flag.BoolVar(&cfg.AbortOnError, "abort-on-error", cfg.AbortOnError,
		"abort the run on the first processing error")
	flag.BoolVar(&cfg.AbortOnNotFound, "abort-on-not-found", cfg.AbortOnNotFound,
		"abort the run when a referenced image cannot be found")
	flag.BoolVar(&cfg.CMS.DetectGray, "detect-gray", cfg.CMS.DetectGray,
		"route effectively gray color images through the gray path")
	flag.BoolVar(&cfg.CMS.StripCMY, "strip-cmy", cfg.CMS.StripCMY,
		"zero chromatic channels of K-only CMYK images")
	flag.Float64Var(&cfg.CropThreshold, "crop-threshold", cfg.CropThreshold,
		"minimum frame/crop area ratio before pixels are discarded")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers,
		"concurrent image workers, 0 for one per CPU")
	classFlags("color", &cfg.Color)
	classFlags("gray", &cfg.Gray)
	flag.Parse()

	if *version {
		fmt.Printf("goopi %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return nil
	}
	if *hires == "" {
		flag.Usage()
		return fmt.Errorf("-hires is required")
	}

	cfg.HiresPath = *hires
	cfg.LoresPath = *lores
	cfg.Binary = *mode == "binary"
	cfg.CacheBudget = *cacheMB << 20
	cfg.Timeout = *timeout

	switch *colorMode {
	case "cmyk":
		cfg.CMS.OutputMode = picture.ModeCMYK
	case "rgb":
		cfg.CMS.OutputMode = picture.ModeRGB
	default:
		return fmt.Errorf("unknown color mode %q", *colorMode)
	}
	it, err := cms.ParseIntent(*intent)
	if err != nil {
		return err
	}
	cfg.CMS.Intent = it

	for _, p := range []struct {
		path string
		dst  *[]byte
	}{
		{*workingRGB, &cfg.CMS.WorkingRGB},
		{*workingGray, &cfg.CMS.WorkingGray},
		{*workingCMYK, &cfg.CMS.WorkingCMYK},
	} {
		if p.path == "" {
			continue
		}
		data, err := os.ReadFile(p.path)
		if err != nil {
			return fmt.Errorf("reading profile: %w", err)
		}
		*p.dst = data
	}

	cfg.Disabled = map[picture.Format]bool{
		picture.FormatTIFF: *disableTIFF,
		picture.FormatJPEG: *disableJPEG,
		picture.FormatPNG:  *disablePNG,
		picture.FormatPSD:  *disablePSD,
		picture.FormatEPS:  *disableEPS,
	}

	log := oplog.NewTextLogger(os.Stderr, *debug)
	log.Info("goopi", oplog.String("version", Version))

	srv, err := server.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var r io.Reader = os.Stdin
	if *in != "-" {
		f, err := os.Open(*in)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	if *out == "-" {
		_, err = srv.RunWriter(ctx, r, os.Stdout)
		return err
	}
	_, err = srv.Run(ctx, r, *out)
	return err
}

// classFlags registers the downsampling flags of one image class.
func classFlags(name string, c *server.ClassConfig) {
	flag.BoolVar(&c.Downsample, "downsample-"+name, c.Downsample,
		"downsample "+name+" images above the threshold")
	flag.Float64Var(&c.Resolution, name+"-res", c.Resolution,
		"target "+name+" resolution in dpi")
	flag.Float64Var(&c.MinResolution, name+"-min-res", c.MinResolution,
		"resolution below which placed "+name+" images rate as draft")
	flag.Float64Var(&c.Threshold, name+"-threshold", c.Threshold,
		"factor the effective resolution must exceed the target by")
	flag.BoolVar(&c.UseEmbeddedResolution, name+"-use-embedded-res", c.UseEmbeddedResolution,
		"prefer the image's own dpi as the resampling target when higher")
	flag.Func(name+"-filter", "resampling filter: lanczos, bicubic, bilinear, box, nearest, gaussian, mitchell", func(s string) error {
		f, err := picture.ParseFilter(s)
		if err != nil {
			return err
		}
		c.Filter = f
		return nil
	})
}
