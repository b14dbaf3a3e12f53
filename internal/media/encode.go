package media

import (
	"context"
	"fmt"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/types"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/utils"
)

// TargetSize is the length, in pixels, of the longer side of every output clip.
const TargetSize = 300

// ClipSpec is one trim + crop + scale job.
type ClipSpec struct {
	Input    string
	Stream   int // video stream index from Probe
	Output   string
	StartSec float64
	Duration float64
	Box      types.FaceBox
}

// EncodeError is a transcoder failure for a given clip. Stderr holds the tail
// of ffmpeg's diagnostic output.
type EncodeError struct {
	Output string
	Stderr string
	Err    error
}

func (e *EncodeError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("encode %s: %v: %s", e.Output, e.Err, e.Stderr)
	}
	return fmt.Sprintf("encode %s: %v", e.Output, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// ScaleFilter scales the longer side to size and lets ffmpeg derive the other,
// rounded to an even number so libx264 accepts it.
func ScaleFilter(size int) string {
	return fmt.Sprintf("scale=w='if(gt(iw,ih),%d,-2)':h='if(gt(iw,ih),-2,%d)'", size, size)
}

// EncodeArgs constructs the complete ffmpeg argument slice for spec.
func EncodeArgs(spec ClipSpec) []string {
	b := spec.Box
	args := make([]string, 0, 32)

	// --- Preamble ---
	args = append(args, "ffmpeg", "-hide_banner", "-nostdin", "-loglevel", "error")

	// --- Trim (input seeking) ---
	args = append(args,
		"-ss", formatSeconds(spec.StartSec),
		"-t", formatSeconds(spec.Duration),
		"-i", spec.Input,
	)

	// --- Crop + scale ---
	vf := fmt.Sprintf("crop=%d:%d:%d:%d,%s", b.Width(), b.Height(), b.Left, b.Top, ScaleFilter(TargetSize))
	args = append(args, "-vf", vf)

	// --- Streams & codecs ---
	args = append(args,
		"-map", fmt.Sprintf("0:%d", spec.Stream),
		"-map", "0:a:0?",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-strict", "experimental",
	)

	// --- Output (overwrite) ---
	args = append(args, "-y", spec.Output)
	return args
}

// Encode runs ffmpeg for spec. Failures come back as *EncodeError.
func Encode(ctx context.Context, spec ClipSpec) error {
	if spec.Box.Width() <= 0 || spec.Box.Height() <= 0 {
		return &EncodeError{Output: spec.Output, Err: fmt.Errorf("empty crop box %+v", spec.Box)}
	}
	args := EncodeArgs(spec)
	cmd := utils.NewSafeCommand(ctx, args[0], args[1:]...)
	if err := cmd.Run(); err != nil {
		return &EncodeError{Output: spec.Output, Stderr: cmd.StderrTail(1024), Err: err}
	}
	return nil
}
