// Package locate picks the single most confident face in a frame and turns it
// into a margin-expanded crop box.
package locate

import (
	"context"
	"image"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/types"
)

// Margin is the fraction of the detected width/height added on every side.
const Margin = 0.2

// Detector runs face detection on a single RGB frame.
type Detector interface {
	Detect(ctx context.Context, frame *image.RGBA) ([]types.Detection, error)
	Close() error
}

// Best returns the highest-scoring detection. On exact ties the first one in
// detector order wins. ok is false when dets is empty or the best score is
// below minConfidence.
func Best(dets []types.Detection, minConfidence float64) (types.Detection, bool) {
	if len(dets) == 0 {
		return types.Detection{}, false
	}
	best := dets[0]
	for _, d := range dets[1:] {
		if d.Score > best.Score {
			best = d
		}
	}
	if best.Score < minConfidence {
		return types.Detection{}, false
	}
	return best, true
}

// Expand grows d by Margin on each side and clamps it to a width×height frame.
func Expand(d types.Detection, width, height int) types.FaceBox {
	w := d.Right - d.Left
	h := d.Bottom - d.Top
	mw := int(float64(w) * Margin)
	mh := int(float64(h) * Margin)

	return types.FaceBox{
		Left:   max(0, d.Left-mw),
		Top:    max(0, d.Top-mh),
		Right:  min(width, d.Right+mw),
		Bottom: min(height, d.Bottom+mh),
	}
}

// Locator combines a Detector with the confidence floor used for every frame.
type Locator struct {
	Detector      Detector
	MinConfidence float64
}

// Locate returns the expanded box of the best face in frame, or ok=false when
// no candidate meets the confidence floor. Each frame is judged on its own.
func (l *Locator) Locate(ctx context.Context, frame *image.RGBA) (box types.FaceBox, ok bool, err error) {
	dets, err := l.Detector.Detect(ctx, frame)
	if err != nil {
		return types.FaceBox{}, false, err
	}
	best, ok := Best(dets, l.MinConfidence)
	if !ok {
		return types.FaceBox{}, false, nil
	}
	b := frame.Bounds()
	return Expand(best, b.Dx(), b.Dy()), true, nil
}
