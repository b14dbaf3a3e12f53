package locate

import (
	"context"
	_ "embed"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/types"
)

// facefinder is the frontal face cascade distributed with pigo (MIT).
//
//go:embed facefinder
var facefinder []byte

// PigoConfig tunes the in-process pigo cascade.
type PigoConfig struct {
	// CascadePath overrides the embedded facefinder cascade when set.
	CascadePath string
	// QualityCeiling maps pigo's unbounded detection quality onto a [0,1]
	// score: score = min(1, Q/QualityCeiling).
	QualityCeiling float64
	MinSize        int
	MaxSize        int
	ShiftFactor    float64
	ScaleFactor    float64
	IoUThreshold   float64
}

// DefaultPigoConfig returns settings that work for typical 360p-1080p talking-head footage.
func DefaultPigoConfig(cascadePath string) PigoConfig {
	return PigoConfig{
		CascadePath:    cascadePath,
		QualityCeiling: 10,
		MinSize:        40,
		MaxSize:        1200,
		ShiftFactor:    0.1,
		ScaleFactor:    1.1,
		IoUThreshold:   0.2,
	}
}

// PigoDetector detects frontal faces with a pigo cascade classifier.
type PigoDetector struct {
	cfg        PigoConfig
	classifier *pigo.Pigo
}

// NewPigoDetector unpacks the cascade file, or the embedded facefinder
// cascade when no path is configured.
func NewPigoDetector(cfg PigoConfig) (*PigoDetector, error) {
	if cfg.QualityCeiling <= 0 {
		return nil, fmt.Errorf("pigo quality ceiling must be positive, got %f", cfg.QualityCeiling)
	}
	data := facefinder
	if cfg.CascadePath != "" {
		var err error
		if data, err = os.ReadFile(cfg.CascadePath); err != nil {
			return nil, fmt.Errorf("read cascade file: %w", err)
		}
	}
	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack cascade: %w", err)
	}
	return &PigoDetector{cfg: cfg, classifier: classifier}, nil
}

// Detect runs the cascade over frame and returns clustered detections in pixel space.
func (p *PigoDetector) Detect(ctx context.Context, frame *image.RGBA) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := frame.Bounds()
	cols, rows := b.Dx(), b.Dy()

	params := pigo.CascadeParams{
		MinSize:     p.cfg.MinSize,
		MaxSize:     p.cfg.MaxSize,
		ShiftFactor: p.cfg.ShiftFactor,
		ScaleFactor: p.cfg.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(frame),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	raw := p.classifier.RunCascade(params, 0.0)
	raw = p.classifier.ClusterDetections(raw, p.cfg.IoUThreshold)

	dets := make([]types.Detection, 0, len(raw))
	for _, d := range raw {
		dets = append(dets, fromPigo(d.Row, d.Col, d.Scale, float64(d.Q), p.cfg.QualityCeiling))
	}
	return dets, nil
}

// Close is a no-op; the classifier holds no external resources.
func (p *PigoDetector) Close() error { return nil }

// fromPigo converts pigo's center/scale square into a pixel box.
func fromPigo(row, col, scale int, q, ceiling float64) types.Detection {
	half := scale / 2
	score := q / ceiling
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return types.Detection{
		Left:   col - half,
		Top:    row - half,
		Right:  col - half + scale,
		Bottom: row - half + scale,
		Score:  score,
	}
}
