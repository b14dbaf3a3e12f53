package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/config"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/extract"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/fetch"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/locate"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/pipeline"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/publish"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/storage"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/store"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/utils"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/worker"
)

// Options holds the command-line settings. Paths and backends come from the environment.
type Options struct {
	Workers       int
	MinConfidence float64
	ShowPreview   bool
}

var opts Options

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "facecrop",
	Short: "Build a dataset of face-centered clips from YouTube videos",
	Long: `facecrop reads video_ids.txt (PersonName_VideoKey|HH:MM:SS|duration|gender|age|racial|country),
downloads each source video, crops the first confidently detected face for the
requested window, and appends one row per clip to output/metadata.csv.`,
	Version: Version,
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			utils.Die("Invalid configuration", err, nil)
		}
		cfg.Workers = opts.Workers
		cfg.MinConfidence = opts.MinConfidence
		cfg.ShowPreview = opts.ShowPreview
		if err := cfg.Validate(); err != nil {
			utils.Die("Invalid configuration", err, nil)
		}

		if err := runPipeline(cmd.Context(), cfg); err != nil {
			utils.Die("Pipeline aborted", err, nil)
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	defaults := config.Default(".")
	rootCmd.Flags().IntVarP(&opts.Workers, "workers", "w", defaults.Workers, "Number of parallel downloads")
	rootCmd.Flags().Float64VarP(&opts.MinConfidence, "min-confidence", "c", defaults.MinConfidence, "Minimum face detection confidence (0-1]")
	rootCmd.Flags().BoolVarP(&opts.ShowPreview, "show-preview", "p", false, "Show detection preview (close the window or press Q to stop a clip's scan)")
}

// runPipeline wires the configured backends into an Orchestrator and runs it.
func runPipeline(ctx context.Context, cfg config.Config) error {
	bins := []string{"ffmpeg", "ffprobe", "yt-dlp"}
	if cfg.ShowPreview {
		bins = append(bins, "ffplay")
	}
	if err := utils.RequireBinaries(bins...); err != nil {
		return err
	}

	detector, err := newDetector(ctx, cfg)
	if err != nil {
		return err
	}
	defer detector.Close()

	sinks, closeSinks := newSinks(ctx, cfg)
	defer closeSinks()

	pool := &fetch.Pool{
		Getter:  &fetch.Fetcher{Dir: cfg.TempDir, Downloader: fetch.YtdlpDownloader{}},
		Workers: cfg.Workers,
	}
	if cfg.FetchRate > 0 {
		pool.Limiter = rate.NewLimiter(rate.Limit(cfg.FetchRate), 1)
	}

	x := &extract.Extractor{
		Prober:  extract.FFmpeg{},
		Source:  extract.FFmpeg{},
		Encoder: extract.FFmpeg{},
		Locator: &locate.Locator{Detector: detector, MinConfidence: cfg.MinConfidence},
	}
	if cfg.ShowPreview {
		x.OpenPreview = extract.FFplayPreview
	}

	fmt.Fprintf(os.Stderr, "⚙️  %d download workers, min confidence %.2f, detector %s\n", cfg.Workers, cfg.MinConfidence, cfg.Detector)

	o := &pipeline.Orchestrator{
		Config:    cfg,
		Downloads: pool,
		Extractor: x,
		Sinks:     sinks,
	}
	_, err = o.Run(ctx)
	return err
}

func newDetector(ctx context.Context, cfg config.Config) (locate.Detector, error) {
	switch cfg.Detector {
	case config.DetectorWorker:
		fmt.Fprintln(os.Stderr, "🚀 Warming up face worker...")
		w, err := worker.Start(ctx, cfg.WorkerCommand)
		if err != nil {
			return nil, fmt.Errorf("start face worker: %w", err)
		}
		return w, nil
	default:
		pc := locate.DefaultPigoConfig(cfg.CascadePath)
		pc.QualityCeiling = cfg.QualityCeiling
		d, err := locate.NewPigoDetector(pc)
		if err != nil {
			return nil, fmt.Errorf("load face cascade: %w", err)
		}
		return d, nil
	}
}

// newSinks connects the optional catalog, object storage, and event sinks.
// A sink that cannot be reached is reported and left out of the run.
func newSinks(ctx context.Context, cfg config.Config) ([]pipeline.Sink, func()) {
	var sinks []pipeline.Sink
	var closers []func()

	var uploader *storage.Uploader
	if cfg.MinIO.Enabled() {
		u, err := storage.New(ctx, storage.Options{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			Secure:    cfg.MinIO.Secure,
		})
		if err != nil {
			utils.ShowError("Object storage disabled", err, nil)
		} else {
			uploader = u
		}
	}

	var catalog *store.Store
	if cfg.DatabaseURL != "" {
		s, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			utils.ShowError("Clip catalog disabled", fmt.Errorf("failed to connect to database: %w", err), nil)
		} else {
			catalog = s
			// The run context may already be cancelled; closing still has to reach the server.
			closers = append(closers, func() { s.Close(context.Background()) })
		}
	}

	sinks = append(sinks, archiveSinks(uploader, catalog)...)

	if cfg.Kafka.Enabled() {
		p := publish.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		sinks = append(sinks, p)
		closers = append(closers, func() { p.Close() })
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}

// archiveSinks combines object storage and the catalog. With both present
// the catalog performs the upload itself, so object_key is only recorded
// for clips that actually reached the bucket.
func archiveSinks(uploader *storage.Uploader, catalog *store.Store) []pipeline.Sink {
	switch {
	case uploader != nil && catalog != nil:
		catalog.Uploads = uploader
		return []pipeline.Sink{catalog}
	case catalog != nil:
		return []pipeline.Sink{catalog}
	case uploader != nil:
		return []pipeline.Sink{uploader}
	}
	return nil
}
