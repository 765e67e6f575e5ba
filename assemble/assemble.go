// Package assemble downloads package fragments and produces one
// installable package at a destination path.
//
// A single fragment is moved to the destination unchanged. Several
// fragments are loaded as a bundle, merged, patched and written. The
// destination is only ever replaced by a complete file.
package assemble

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/playdl/apk"
	"github.com/pithecene-io/playdl/iox"
	"github.com/pithecene-io/playdl/log"
	"github.com/pithecene-io/playdl/metrics"
	"github.com/pithecene-io/playdl/types"
)

// workDirPattern names the per-call temporary working area.
const workDirPattern = "play_dl-*"

// Options configures a Pipeline.
type Options struct {
	// Fetcher defaults to an HTTPFetcher on http.DefaultClient.
	Fetcher Fetcher
	// TempRoot is where working areas are created. Defaults to os.TempDir().
	TempRoot string
	// Progress receives the cumulative progress signal. Optional.
	Progress ProgressFunc
	Logger   *log.Logger
	Metrics  *metrics.Collector
}

// Pipeline runs fragment downloads and assembly.
type Pipeline struct {
	fetcher  Fetcher
	tempRoot string
	progress ProgressFunc
	logger   *log.Logger
	metrics  *metrics.Collector
}

// Result describes the written artifact.
type Result struct {
	Path      string        `json:"path"`
	Size      int64         `json:"size"`
	SHA256    string        `json:"sha256"`
	Merged    bool          `json:"merged"`
	Fragments int           `json:"fragments"`
	Duration  time.Duration `json:"duration"`
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		fetcher:  opts.Fetcher,
		tempRoot: opts.TempRoot,
		progress: opts.Progress,
		logger:   log.OrNop(opts.Logger).Named("assemble"),
		metrics:  opts.Metrics,
	}
	if p.fetcher == nil {
		p.fetcher = &HTTPFetcher{}
	}
	return p
}

// Assemble validates fragments, downloads them into a fresh working area
// and writes the package to dest. The working area is removed before
// Assemble returns. On error dest is left as it was.
func (p *Pipeline) Assemble(ctx context.Context, fragments []types.Fragment, dest string) (*Result, error) {
	if err := Validate(fragments); err != nil {
		return nil, err
	}
	if dest == "" {
		return nil, errors.New("assemble: destination is required")
	}
	start := time.Now()

	work, err := os.MkdirTemp(p.tempRoot, workDirPattern)
	if err != nil {
		return nil, fmt.Errorf("assemble: create working area: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(work); err != nil {
			p.logger.Warn("failed to remove working area", map[string]any{
				"path":  work,
				"error": err.Error(),
			})
		}
	}()

	paths, err := p.download(ctx, work, fragments)
	if err != nil {
		return nil, err
	}

	var res *Result
	if len(paths) == 1 {
		res, err = p.passThrough(paths[0], dest)
	} else {
		res, err = p.mergeOnWorker(ctx, work, dest)
	}
	if err != nil {
		return nil, err
	}
	res.Fragments = len(fragments)
	res.Duration = time.Since(start)

	p.logger.Info("package assembled", map[string]any{
		"path":      res.Path,
		"size":      res.Size,
		"merged":    res.Merged,
		"fragments": res.Fragments,
	})
	return res, nil
}

// fileName is the working-area file name of a fragment.
func fileName(f types.Fragment) string {
	if strings.HasSuffix(f.Name, ".apk") {
		return f.Name
	}
	return f.Name + ".apk"
}

// download fetches fragments in order. Progress is additive across
// fragments and ends at the declared total.
func (p *Pipeline) download(ctx context.Context, dir string, fragments []types.Fragment) ([]string, error) {
	var total int64
	for _, f := range fragments {
		total += f.Size
	}
	tr := newTracker(total, p.progress)

	paths := make([]string, 0, len(fragments))
	for i, f := range fragments {
		path := filepath.Join(dir, fileName(f))
		if err := p.fetchOne(ctx, tr, i, f, path); err != nil {
			return nil, &DownloadError{Name: f.Name, Err: err}
		}
		tr.finish(i, f.Size)
		p.metrics.IncFragmentDownloaded()
		p.logger.Debug("fragment downloaded", map[string]any{
			"name":     f.Name,
			"type":     string(f.Type),
			"progress": tr.value(),
			"total":    total,
		})
		paths = append(paths, path)
	}
	return paths, nil
}

func (p *Pipeline) fetchOne(ctx context.Context, tr *tracker, idx int, f types.Fragment, path string) (err error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	body, err := p.fetcher.Fetch(ctx, f.URL)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(body)

	pw := &progressWriter{t: tr, idx: idx, declared: f.Size, onWrite: p.metrics.AddBytesDownloaded}
	_, err = io.Copy(io.MultiWriter(file, pw), body)
	return err
}

// passThrough moves the only fragment to dest. Rename is tried first;
// across filesystems the bytes are copied through a temp file.
func (p *Pipeline) passThrough(src, dest string) (*Result, error) {
	sum, size, err := hashFile(src)
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("assemble: create destination dir: %w", err)
	}
	if err := os.Chmod(src, 0o644); err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}
	if err := os.Rename(src, dest); err == nil {
		return &Result{Path: dest, Size: size, SHA256: sum}, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}
	defer iox.DiscardClose(in)
	return writeAtomic(dest, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// mergeOnWorker runs the CPU-bound merge off the calling goroutine and
// waits for it.
func (p *Pipeline) mergeOnWorker(ctx context.Context, dir, dest string) (*Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	var res *Result
	g.Go(func() error {
		var err error
		res, err = p.merge(gctx, dir, dest)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	p.metrics.IncMerge()
	return res, nil
}

func (p *Pipeline) merge(ctx context.Context, dir, dest string) (res *Result, err error) {
	var closers iox.Closers
	defer func() {
		if cerr := closers.Close(); cerr != nil {
			p.logger.Warn("failed to release bundle", map[string]any{"error": cerr.Error()})
			if err == nil {
				err = fmt.Errorf("assemble: release bundle: %w", cerr)
				res = nil
			}
		}
	}()

	bundle, err := apk.LoadBundle(dir, &closers)
	if err != nil {
		return nil, fmt.Errorf("assemble: load bundle: %w", err)
	}
	merged, err := apk.Merge(bundle)
	if err != nil {
		return nil, fmt.Errorf("assemble: merge: %w", err)
	}
	closers.Add(merged)

	if err := apk.PatchManifest(merged.Manifest); err != nil {
		return nil, fmt.Errorf("assemble: patch manifest: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err = writeAtomic(dest, func(w io.Writer) error {
		_, err := merged.WriteTo(w)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.Merged = true
	return res, nil
}

// hashingWriter tracks size and digest of written bytes.
type hashingWriter struct {
	h hash.Hash
	n int64
}

func (w *hashingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return w.h.Write(p)
}

// writeAtomic writes through a temp file next to dest and renames it into
// place, so dest never holds a partial package.
func writeAtomic(dest string, write func(io.Writer) error) (res *Result, err error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("assemble: create destination dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("assemble: create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			iox.DiscardClose(tmp)
			_ = os.Remove(tmp.Name())
		}
	}()

	hw := &hashingWriter{h: sha256.New()}
	if err := write(io.MultiWriter(tmp, hw)); err != nil {
		return nil, fmt.Errorf("assemble: write package: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("assemble: sync package: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("assemble: close package: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return nil, fmt.Errorf("assemble: move package into place: %w", err)
	}

	return &Result{Path: dest, Size: hw.n, SHA256: hex.EncodeToString(hw.h.Sum(nil))}, nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer iox.DiscardClose(f)
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
