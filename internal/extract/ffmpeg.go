package extract

import (
	"context"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/media"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/preview"
)

// FFmpeg is the production Prober, FrameSource and Encoder, backed by the
// ffprobe and ffmpeg executables.
type FFmpeg struct{}

func (FFmpeg) Probe(ctx context.Context, path string) (media.Info, error) {
	return media.Probe(ctx, path)
}

func (FFmpeg) Frames(ctx context.Context, path string, info media.Info, startSec float64, count int) (Frames, error) {
	return media.OpenFrames(ctx, path, info, startSec, count)
}

func (FFmpeg) Encode(ctx context.Context, spec media.ClipSpec) error {
	return media.Encode(ctx, spec)
}

// FFplayPreview opens an ffplay window for each scanned clip.
func FFplayPreview(ctx context.Context, info media.Info) (Previewer, error) {
	w, err := preview.Open(ctx, info.Width, info.Height, info.FPS)
	if err != nil {
		return nil, err
	}
	return w, nil
}
