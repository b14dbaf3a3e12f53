// Package extract scans a time window of a source video for faces and encodes
// a fixed face-centered crop of that window.
package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/locate"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/media"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/types"
)

// ErrNoFace means no frame in the window had a qualifying detection. The clip
// is dropped; callers should not treat this as a failure.
var ErrNoFace = errors.New("no qualifying face in window")

// Prober reports the stream geometry and frame rate of a video file.
type Prober interface {
	Probe(ctx context.Context, path string) (media.Info, error)
}

// Frames is a forward-only sequence of decoded frames ending in io.EOF.
type Frames interface {
	Next() (*image.RGBA, error)
	Close() error
}

// FrameSource opens count frames of path starting at startSec.
type FrameSource interface {
	Frames(ctx context.Context, path string, info media.Info, startSec float64, count int) (Frames, error)
}

// Encoder produces the output clip.
type Encoder interface {
	Encode(ctx context.Context, spec media.ClipSpec) error
}

// Previewer displays qualifying frames. Show returns an error once the viewer
// is gone, which ends the scan early.
type Previewer interface {
	Show(frame *image.RGBA, box types.FaceBox) error
	Close() error
}

// Extractor turns one VideoEntry plus its downloaded source into a clip.
type Extractor struct {
	Prober  Prober
	Source  FrameSource
	Encoder Encoder
	Locator *locate.Locator

	// OpenPreview, when set, is called once per clip to open a viewer.
	OpenPreview func(ctx context.Context, info media.Info) (Previewer, error)
}

// OutputPath is where the clip for entry is written inside outDir.
func OutputPath(outDir string, entry types.VideoEntry) string {
	return filepath.Join(outDir, entry.VideoID+"_cropped.mp4")
}

// Window converts a start offset and duration into the half-open frame
// range [start, end) at fps.
func Window(startSec int, duration, fps float64) (start, end int) {
	start = int(float64(startSec) * fps)
	return start, start + int(duration*fps)
}

// Extract scans the entry's window in srcPath and, if a face qualifies,
// encodes the crop into outDir. It returns ErrNoFace for a drop and a
// *media.EncodeError when ffmpeg fails.
func (x *Extractor) Extract(ctx context.Context, srcPath string, entry types.VideoEntry, outDir string) (*types.ClipRecord, error) {
	info, err := x.Prober.Probe(ctx, srcPath)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", filepath.Base(srcPath), err)
	}

	startFrame, endFrame := Window(entry.StartSeconds, entry.Duration, info.FPS)
	hits, err := x.scan(ctx, srcPath, info, entry, startFrame, endFrame-startFrame)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, ErrNoFace
	}

	// The first qualifying frame fixes the crop for the whole clip.
	box := hits[0].Box

	spec := media.ClipSpec{
		Input:    srcPath,
		Stream:   info.Stream,
		Output:   OutputPath(outDir, entry),
		StartSec: float64(entry.StartSeconds),
		Duration: entry.Duration,
		Box:      box,
	}
	if err := x.Encoder.Encode(ctx, spec); err != nil {
		return nil, err
	}

	return &types.ClipRecord{
		VideoID:    entry.VideoID,
		PersonName: entry.PersonName,
		Height:     info.Height,
		Width:      info.Width,
		StartFrame: startFrame,
		EndFrame:   endFrame,
		Box:        box,
		Gender:     entry.Gender,
		Country:    entry.Country,
		Racial:     entry.Racial,
		Age:        entry.Age,
	}, nil
}

// scan runs the locator over count frames starting at startFrame and returns
// every (frame index, box) pair with a qualifying detection, in scan order.
// A decoder that dies before yielding a qualifying frame is reported as an
// error rather than as ErrNoFace.
func (x *Extractor) scan(ctx context.Context, srcPath string, info media.Info, entry types.VideoEntry, startFrame, count int) (hits []types.FrameBox, err error) {
	if count <= 0 {
		return nil, nil
	}

	frames, err := x.Source.Frames(ctx, srcPath, info, float64(entry.StartSeconds), count)
	if err != nil {
		return nil, fmt.Errorf("open frames: %w", err)
	}
	defer func() {
		if cerr := frames.Close(); cerr != nil && err == nil && len(hits) == 0 {
			err = fmt.Errorf("decode %s: %w", filepath.Base(srcPath), cerr)
		}
	}()

	var view Previewer
	if x.OpenPreview != nil {
		view, err = x.OpenPreview(ctx, info)
		if err != nil {
			return nil, fmt.Errorf("open preview: %w", err)
		}
		defer view.Close()
	}

	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, err := frames.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", startFrame+i, err)
		}

		box, ok, err := x.Locator.Locate(ctx, frame)
		if err != nil {
			return nil, fmt.Errorf("detect frame %d: %w", startFrame+i, err)
		}
		if !ok {
			continue
		}
		hits = append(hits, types.FrameBox{Index: startFrame + i, Box: box})

		if view != nil {
			if err := view.Show(frame, box); err != nil {
				break
			}
		}
	}
	return hits, nil
}
