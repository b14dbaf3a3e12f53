// Package pipeline sequences a run: load the list, download sources on a
// bounded pool, extract clips one entry at a time, record them, clean up.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/config"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/extract"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/fetch"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/ledger"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/manifest"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/media"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/types"
)

// Sink receives every clip after it has been written to the ledger.
type Sink interface {
	Record(ctx context.Context, rec types.ClipRecord, clipPath string) error
	Name() string
}

// Downloader fetches many identities, reporting each result as it finishes.
type Downloader interface {
	Run(ctx context.Context, identities []string, onDone func(fetch.Result)) []fetch.Result
}

// ClipExtractor produces one clip from a downloaded source.
type ClipExtractor interface {
	Extract(ctx context.Context, srcPath string, entry types.VideoEntry, outDir string) (*types.ClipRecord, error)
}

// Orchestrator owns the entry list and the ledger handle for one run.
type Orchestrator struct {
	Config    config.Config
	Downloads Downloader
	Extractor ClipExtractor
	Sinks     []Sink

	// Stdout receives per-item diagnostics, Stderr banners and progress bars.
	Stdout io.Writer
	Stderr io.Writer

	stage Stage
}

// Stage reports how far the last Run got.
func (o *Orchestrator) Stage() Stage { return o.stage }

// Run executes the whole pipeline. Only failures to prepare the workspace,
// the ledger, or the input list are returned as errors; per-item problems
// are logged and counted in the Summary.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	stdout, stderr := o.writers()
	cfg := o.Config

	// --- INIT ---
	o.stage = StageInit
	for _, dir := range []string{cfg.TempDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return sum, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	fmt.Fprintln(stderr, "✓ Initializing metadata CSV...")
	if _, err := ledger.Init(cfg.LedgerPath); err != nil {
		return sum, err
	}
	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return sum, err
	}
	defer led.Close()

	// --- LIST_LOADED ---
	fmt.Fprintln(stderr, "📄 [1/3] Reading video list and metadata...")
	entries, skipped, err := manifest.Load(cfg.InputList)
	if err != nil {
		return sum, err
	}
	o.stage = StageListLoaded
	for _, e := range skipped {
		fmt.Fprintf(stdout, "[!] Skipping line: %v\n", e)
	}
	sum.Entries, sum.Skipped = len(entries), len(skipped)

	// --- DOWNLOADING ---
	o.stage = StageDownloading
	identities := manifest.Identities(entries)
	sum.Identities = len(identities)
	fmt.Fprintf(stderr, "⬇️  [2/3] Downloading %d videos...\n", len(identities))

	bar := o.newBar(len(identities), "Downloading", stderr)
	sources := make(map[string]string, len(identities))
	results := o.Downloads.Run(ctx, identities, func(r fetch.Result) {
		bar.Add(1)
		if r.Err != nil {
			fmt.Fprintf(stdout, "[!] Failed to download %s: %v\n", r.Identity, r.Err)
		}
	})
	bar.Finish()
	for _, r := range results {
		switch {
		case r.Err != nil:
			sum.FetchFailed++
		case r.Existing:
			sum.Existing++
			sources[r.Identity] = r.Path
		default:
			sum.Downloaded++
			sources[r.Identity] = r.Path
		}
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	// --- EXTRACTING ---
	o.stage = StageExtracting
	fmt.Fprintln(stderr, "✂️  [3/3] Cropping faces and writing metadata...")

	// A source is deleted once its last entry has been attempted.
	remaining := make(map[string]int, len(identities))
	for _, e := range entries {
		remaining[e.Identity()]++
	}

	bar = o.newBar(len(entries), "Extracting", stderr)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		o.extractOne(ctx, entry, sources, led, &sum, stdout)

		id := entry.Identity()
		remaining[id]--
		if remaining[id] == 0 {
			if src, ok := sources[id]; ok {
				if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
					fmt.Fprintf(stdout, "[!] Could not remove %s: %v\n", src, err)
				}
			}
		}
		bar.Add(1)
	}
	bar.Finish()

	// --- CLEANUP ---
	o.stage = StageCleanup
	if err := os.RemoveAll(cfg.TempDir); err != nil {
		fmt.Fprintf(stdout, "[!] Could not remove temp dir %s: %v\n", cfg.TempDir, err)
	}

	// --- DONE ---
	o.stage = StageDone
	fmt.Fprintf(stderr, "✅ Pipeline completed! %d clips written, %d dropped, %d downloads failed.\n",
		sum.Clips, sum.Dropped(), sum.FetchFailed)
	return sum, nil
}

func (o *Orchestrator) extractOne(ctx context.Context, entry types.VideoEntry, sources map[string]string, led *ledger.Ledger, sum *Summary, stdout io.Writer) {
	src, ok := sources[entry.Identity()]
	if !ok {
		sum.Missing++
		fmt.Fprintf(stdout, "[!] Source for %s was not downloaded, skipping\n", entry.VideoID)
		return
	}

	personDir := filepath.Join(o.Config.OutputDir, entry.PersonName)
	if err := os.MkdirAll(personDir, 0755); err != nil {
		sum.Failed++
		fmt.Fprintf(stdout, "[!] Error processing %s: %v\n", entry.VideoID, err)
		return
	}

	rec, err := o.Extractor.Extract(ctx, src, entry, personDir)
	var encErr *media.EncodeError
	switch {
	case err == nil:
	case errors.Is(err, extract.ErrNoFace):
		sum.NoFace++
		return
	case errors.As(err, &encErr):
		sum.EncodeFailed++
		fmt.Fprintf(stdout, "[!] ffmpeg error in %s: %v\n", entry.VideoID, err)
		return
	default:
		sum.Failed++
		fmt.Fprintf(stdout, "[!] Error processing %s: %v\n", entry.VideoID, err)
		return
	}

	if err := led.Append(*rec); err != nil {
		sum.Failed++
		fmt.Fprintf(stdout, "[!] Error recording %s: %v\n", entry.VideoID, err)
		return
	}
	sum.Clips++

	clipPath := extract.OutputPath(personDir, entry)
	for _, s := range o.Sinks {
		if err := s.Record(ctx, *rec, clipPath); err != nil {
			sum.SinkErrors++
			fmt.Fprintf(stdout, "[!] %s failed for %s: %v\n", s.Name(), entry.VideoID, err)
		}
	}
}

func (o *Orchestrator) writers() (io.Writer, io.Writer) {
	stdout, stderr := o.Stdout, o.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}

func (o *Orchestrator) newBar(total int, desc string, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
	)
}
