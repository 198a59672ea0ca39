// Package server orchestrates a substitution run: it parses the
// incoming PostScript stream for OPI directives, resolves and processes
// the referenced images concurrently, and splices the replacement
// blocks back into the stream in their original order.
package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fhoech/goopi/internal/cms"
	"github.com/fhoech/goopi/internal/directive"
	"github.com/fhoech/goopi/internal/oplog"
	"github.com/fhoech/goopi/internal/picture"
	"github.com/fhoech/goopi/internal/psenc"
	"github.com/fhoech/goopi/internal/resolve"
)

// errUnsupported marks an image the pipeline cannot substitute but the
// run can survive: the placeholder passes through untouched regardless
// of the abort policies, because the proxy data may already be usable.
var errUnsupported = errors.New("image type not supported")

// Summary reports what a run did.
type Summary struct {
	Directives int // directive regions seen
	Replaced   int // placeholders replaced with hires data
	Passed     int // placeholders left untouched after an error
	Skipped    int // unsupported or disabled formats passed through
	Errors     int
	BytesIn    int64
	BytesOut   int64
}

// Server owns the shared state of substitution runs: the hires index,
// the decode cache and the configuration. One Server may execute many
// runs; the index is built once and read-only afterwards.
type Server struct {
	cfg      Config
	resolver *resolve.Resolver
	cache    *picture.Cache
	log      oplog.Logger
}

// New indexes the hires tree and returns a ready Server. log may be
// nil.
func New(cfg Config, log oplog.Logger) (*Server, error) {
	if log == nil {
		log = oplog.NopLogger{}
	}
	idx, err := resolve.NewIndex(cfg.HiresPath, log)
	if err != nil {
		return nil, fmt.Errorf("indexing hires tree: %w", err)
	}
	return &Server{
		cfg:      cfg,
		resolver: resolve.NewResolver(idx, cfg.LoresPath, cfg.HiresPath, log),
		cache:    picture.NewCache(cfg.CacheBudget),
		log:      log,
	}, nil
}

// Run substitutes r into the file at dstPath. Output is written to a
// temporary file in the destination directory and renamed into place
// only on success, so an aborted or cancelled run never leaves partial
// output behind.
func (s *Server) Run(ctx context.Context, r io.Reader, dstPath string) (*Summary, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dstPath), "."+filepath.Base(dstPath)+".*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriterSize(tmp, 256*1024)
	sum, err := s.RunWriter(ctx, r, bw)
	if err != nil {
		return sum, err
	}
	if err := bw.Flush(); err != nil {
		return sum, err
	}
	if err := tmp.Close(); err != nil {
		return sum, err
	}
	if err := os.Rename(tmp.Name(), dstPath); err != nil {
		return sum, err
	}
	tmp = nil
	return sum, nil
}

// job pairs a stream segment with its processing result. Workers close
// done when out/err are valid.
type job struct {
	seg  *directive.Segment
	out  []byte
	err  error
	done chan struct{}
}

// RunWriter substitutes r into w. Directives are processed by a bounded
// worker pool; segments are committed to w strictly in stream order.
func (s *Server) RunWriter(ctx context.Context, r io.Reader, w io.Writer) (*Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	jobs := make(chan *job, workers*2)
	work := make(chan *job, workers*2)
	parseErr := make(chan error, 1)

	go func() {
		defer close(jobs)
		defer close(work)
		p := directive.NewParser(r, s.log)
		for {
			seg, err := p.Next()
			if err != nil {
				if err == io.EOF {
					err = nil
				}
				parseErr <- err
				return
			}
			j := &job{seg: seg, done: make(chan struct{})}
			if seg.Dir == nil {
				close(j.done)
			} else {
				select {
				case work <- j:
				case <-ctx.Done():
					parseErr <- ctx.Err()
					return
				}
			}
			select {
			case jobs <- j:
			case <-ctx.Done():
				parseErr <- ctx.Err()
				return
			}
		}
	}()

	for i := 0; i < workers; i++ {
		go func() {
			for j := range work {
				j.out, j.err = s.process(ctx, j.seg.Dir)
				close(j.done)
			}
		}()
	}

	sum := &Summary{}
	abort := func(err error) (*Summary, error) {
		cancel()
		s.log.Error("run aborted", oplog.Error(err),
			oplog.Int("errors", sum.Errors))
		return sum, err
	}

	for j := range jobs {
		select {
		case <-j.done:
		case <-ctx.Done():
			return abort(ctx.Err())
		}
		sum.BytesIn += int64(len(j.seg.Raw))

		if j.seg.Dir == nil {
			if err := writeAll(w, j.seg.Raw, sum); err != nil {
				return abort(err)
			}
			continue
		}
		sum.Directives++

		switch {
		case j.err == nil:
			if err := writeAll(w, j.out, sum); err != nil {
				return abort(err)
			}
			sum.Replaced++
			continue
		case errors.Is(j.err, errUnsupported):
			s.log.Warn("passing placeholder through",
				oplog.String("image", j.seg.Dir.FileName), oplog.Error(j.err))
			sum.Skipped++
		case errors.Is(j.err, psenc.ErrLengthMismatch):
			// Encoder bug, never a data problem. Always fatal.
			sum.Errors++
			return abort(j.err)
		case errors.Is(j.err, resolve.ErrNotFound) || errors.Is(j.err, resolve.ErrAmbiguous):
			sum.Errors++
			s.log.Error("resolution failed",
				oplog.String("image", j.seg.Dir.FileName), oplog.Error(j.err))
			if s.cfg.AbortOnNotFound {
				return abort(j.err)
			}
			sum.Passed++
		default:
			sum.Errors++
			s.log.Error("substitution failed",
				oplog.String("image", j.seg.Dir.FileName), oplog.Error(j.err))
			if s.cfg.AbortOnError {
				return abort(j.err)
			}
			sum.Passed++
		}
		// Placeholder untouched.
		if err := writeAll(w, j.seg.Raw, sum); err != nil {
			return abort(err)
		}
	}

	if err := <-parseErr; err != nil {
		return abort(err)
	}
	s.log.Info("done", oplog.Int("directives", sum.Directives),
		oplog.Int("replaced", sum.Replaced), oplog.Int("errors", sum.Errors))
	return sum, nil
}

func writeAll(w io.Writer, b []byte, sum *Summary) error {
	n, err := w.Write(b)
	sum.BytesOut += int64(n)
	return err
}

// process runs the full pipeline for one directive and returns the
// replacement block bytes.
func (s *Server) process(ctx context.Context, dir *directive.Directive) ([]byte, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	log := s.log.With(oplog.String("image", dir.FileName),
		oplog.Int64("offset", dir.Offset))

	ref := dir.FileName
	if ref == "" {
		ref = dir.MainImage
	}
	if ref == "" {
		return nil, errors.New("directive names no image file")
	}
	path, err := s.resolver.Resolve(ref)
	if err != nil {
		return nil, err
	}
	log.Info("found", oplog.String("path", path))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pic, err := s.cache.LoadContext(ctx, path, log)
	switch {
	case errors.Is(err, picture.ErrUnknownFormat):
		return nil, fmt.Errorf("%w: %s", errUnsupported, path)
	case err != nil:
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	log.Info("image type", oplog.String("format", string(pic.Format)),
		oplog.String("mode", pic.Mode.String()),
		oplog.Int("width", pic.Width), oplog.Int("height", pic.Height))
	if s.cfg.Disabled[pic.Format] {
		return nil, fmt.Errorf("%w: %s disabled", errUnsupported, pic.Format)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blk := &psenc.Block{Dir: dir, Binary: s.cfg.Binary}
	if pic.Format == picture.FormatEPS {
		blk.Pic = pic
		blk.Quality = 2.0
		blk.CropFixed = dir.CropFixed
	} else {
		lay := s.cfg.planLayout(dir, pic)
		pic = lay.apply(pic, s.cfg.class(pic.Mode), dir.Version20)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := cms.Convert(pic, &s.cfg.CMS, log)
		if err != nil {
			return nil, fmt.Errorf("color conversion: %w", err)
		}
		log.Info("color path", oplog.String("path", res.Path),
			oplog.String("profile", res.Provenance.String()))
		blk.Pic = res.Pic
		blk.DirectBlack = res.DirectBlack
		blk.Quality = lay.quality
		blk.CropRect = lay.cropRect
		blk.CropFixed = lay.cropFixed
		blk.RealCrop = lay.realCrop
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := psenc.Encode(&buf, blk); err != nil {
		return nil, err
	}
	log.Info("substituted", oplog.Int("bytes", buf.Len()),
		oplog.Float64("quality", blk.Quality))
	return buf.Bytes(), nil
}
