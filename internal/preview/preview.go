// Package preview shows annotated frames in an ffplay window while a clip is scanned.
package preview

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/types"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/utils"
)

// WindowTitle names the preview window.
const WindowTitle = "Face Detection"

// ErrClosed is returned by Show once the viewer has gone away (window closed or q pressed).
var ErrClosed = errors.New("preview window closed")

// Window is a running ffplay process reading raw RGBA frames from stdin.
type Window struct {
	cmd    *utils.SafeCommand
	in     io.WriteCloser
	closed bool
}

// Args builds the ffplay command line for width×height frames at fps.
func Args(width, height int, fps float64) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-window_title", WindowTitle,
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", strconv.FormatFloat(fps, 'f', -1, 64),
		"-autoexit",
		"-",
	}
}

// Open starts an ffplay window sized for the source video.
func Open(ctx context.Context, width, height int, fps float64) (*Window, error) {
	cmd := utils.NewSafeCommand(ctx, "ffplay", Args(width, height, fps)...)
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("preview pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffplay: %w", err)
	}
	return &Window{cmd: cmd, in: in}, nil
}

// Show draws box onto frame and hands the frame to the viewer.
func (w *Window) Show(frame *image.RGBA, box types.FaceBox) error {
	if w.closed {
		return ErrClosed
	}
	DrawBox(frame, box.Rect(), 2)
	if _, err := w.in.Write(frame.Pix); err != nil {
		w.closed = true
		return ErrClosed
	}
	return nil
}

// Close ends the stream and waits for ffplay to exit.
func (w *Window) Close() error {
	w.in.Close()
	if w.cmd == nil {
		return nil
	}
	// ffplay exits non-zero when the user quits; that is not a failure here.
	w.cmd.Wait()
	return nil
}

// DrawBox outlines rect in green with the given line thickness, clipped to img.
func DrawBox(img *image.RGBA, rect image.Rectangle, thickness int) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return
	}
	fill := func(r image.Rectangle) {
		r = r.Intersect(rect)
		stride := img.Stride
		pix := img.Pix
		imgMinX, imgMinY := img.Rect.Min.X, img.Rect.Min.Y
		for y := r.Min.Y; y < r.Max.Y; y++ {
			rowStart := (y-imgMinY)*stride + (r.Min.X-imgMinX)*4
			for x := 0; x < r.Dx(); x++ {
				off := rowStart + x*4
				pix[off] = 0
				pix[off+1] = 255
				pix[off+2] = 0
				pix[off+3] = 255
			}
		}
	}
	t := thickness
	fill(image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+t)) // top
	fill(image.Rect(rect.Min.X, rect.Max.Y-t, rect.Max.X, rect.Max.Y)) // bottom
	fill(image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+t, rect.Max.Y)) // left
	fill(image.Rect(rect.Max.X-t, rect.Min.Y, rect.Max.X, rect.Max.Y)) // right
}
