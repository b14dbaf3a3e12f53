package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/utils"
)

// FrameStream yields decoded RGBA frames from an ffmpeg rawvideo pipe.
type FrameStream struct {
	cmd    *utils.SafeCommand
	out    io.ReadCloser
	width  int
	height int
	buf    []byte
	done   bool
}

// FrameArgs builds the decoder command line. The seek sits before -i so
// ffmpeg jumps to the nearest keyframe and decodes forward from there.
func FrameArgs(path string, stream int, startSec float64, count int) []string {
	streamMap := fmt.Sprintf("0:%d", stream)
	return []string{
		"-hide_banner", "-nostdin",
		"-loglevel", "error",
		"-ss", formatSeconds(startSec),
		"-i", path,
		"-map", streamMap,
		"-frames:v", strconv.Itoa(count),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	}
}

// OpenFrames starts decoding up to count frames of path from startSec.
func OpenFrames(ctx context.Context, path string, info Info, startSec float64, count int) (*FrameStream, error) {
	if count <= 0 {
		return &FrameStream{done: true}, nil
	}
	cmd := utils.NewSafeCommand(ctx, "ffmpeg", FrameArgs(path, info.Stream, startSec, count)...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("decoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start decoder: %w", err)
	}
	return &FrameStream{
		cmd:    cmd,
		out:    out,
		width:  info.Width,
		height: info.Height,
		buf:    make([]byte, info.Width*info.Height*4),
	}, nil
}

// Next returns the next frame, or io.EOF once the decoder has nothing left.
// The returned image shares a buffer that is overwritten by the following call.
func (f *FrameStream) Next() (*image.RGBA, error) {
	if f.done {
		return nil, io.EOF
	}
	if _, err := io.ReadFull(f.out, f.buf); err != nil {
		f.done = true
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("decoder produced a partial frame: %w", err)
		}
		return nil, io.EOF
	}
	return &image.RGBA{
		Pix:    f.buf,
		Stride: f.width * 4,
		Rect:   image.Rect(0, 0, f.width, f.height),
	}, nil
}

// Close stops the decoder. Stopping before EOF kills the process and is not an error.
func (f *FrameStream) Close() error {
	if f.cmd == nil {
		return nil
	}
	early := !f.done
	f.out.Close()
	if early && f.cmd.Process != nil {
		f.cmd.Process.Kill()
	}
	err := f.cmd.Wait()
	tail := f.cmd.StderrTail(512)
	f.cmd = nil
	if err != nil && !early {
		if tail != "" {
			return fmt.Errorf("decoder exited: %w: %s", err, tail)
		}
		return fmt.Errorf("decoder exited: %w", err)
	}
	return nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
