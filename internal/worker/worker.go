// Package worker drives an external face-detection process over a
// length-prefixed pipe protocol and exposes it as a locate.Detector.
//
// Request on the child's stdin:
//
//	[uint32 len][uint32 width][uint32 height][width*height*3 RGB bytes]
//
// Response on FD 3:
//
//	[uint32 len][status byte][body]
//
// status 0 carries a JSON array of {"box":[xmin,ymin,w,h],"score":s} in
// coordinates relative to the frame. status 1 carries [uint32 len][message].
package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/types"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/utils"
)

const (
	statusOK    = 0
	statusError = 1

	// maxResponse bounds a single reply so a corrupted header cannot make us allocate gigabytes.
	maxResponse = 16 << 20
)

// ErrNoCommand is returned when the worker command line is empty.
var ErrNoCommand = errors.New("face worker command is empty")

type face struct {
	Box   [4]float64 `json:"box"`
	Score float64    `json:"score"`
}

// FaceWorker is a long-lived detector subprocess.
type FaceWorker struct {
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	mu  sync.Mutex
	buf []byte
}

// Start launches commandLine (split on whitespace) with a side-channel pipe as FD 3.
func Start(ctx context.Context, commandLine string) (*FaceWorker, error) {
	argv := strings.Fields(commandLine)
	if len(argv) == 0 {
		return nil, ErrNoCommand
	}
	proc := utils.NewSafeCommand(ctx, argv[0], argv[1:]...)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	proc.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := proc.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := proc.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("face worker failed to start: %w", err)
	}

	// Only the child keeps the write end.
	w.Close()

	return &FaceWorker{
		Cmd:      proc,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

// Detect sends frame to the worker and converts its reply into pixel-space detections.
func (w *FaceWorker) Detect(ctx context.Context, frame *image.RGBA) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := frame.Bounds()
	width, height := b.Dx(), b.Dy()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = packRGB(w.buf[:0], frame)
	resp, err := w.communicate(uint32(width), uint32(height), w.buf)
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp, width, height)
}

func (w *FaceWorker) communicate(width, height uint32, rgb []byte) ([]byte, error) {
	var hdr [12]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(8+len(rgb)))
	binary.BigEndian.PutUint32(hdr[4:8], width)
	binary.BigEndian.PutUint32(hdr[8:12], height)
	if _, err := w.Stdin.Write(hdr[:]); err != nil {
		return nil, w.wrap(err)
	}
	if _, err := w.Stdin.Write(rgb); err != nil {
		return nil, w.wrap(err)
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(w.DataPipe, lenBuf[:]); err != nil {
		// The worker usually died here; its stderr says why.
		return nil, w.wrap(err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxResponse {
		return nil, fmt.Errorf("face worker response too large: %d bytes", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(w.DataPipe, body); err != nil {
		return nil, w.wrap(err)
	}
	return body, nil
}

func (w *FaceWorker) wrap(err error) error {
	if tail := w.Cmd.StderrTail(512); tail != "" {
		return fmt.Errorf("face worker pipe: %w (stderr: %s)", err, tail)
	}
	return fmt.Errorf("face worker pipe: %w", err)
}

// Close shuts the pipes and waits for the process to exit.
func (w *FaceWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	if err := w.Cmd.Wait(); err != nil {
		return fmt.Errorf("face worker exit: %w", err)
	}
	return nil
}

func decodeResponse(resp []byte, width, height int) ([]types.Detection, error) {
	if len(resp) == 0 {
		return nil, fmt.Errorf("face worker sent an empty response")
	}
	r := bytes.NewReader(resp[1:])

	switch resp[0] {
	case statusOK:
		var faces []face
		if err := json.NewDecoder(r).Decode(&faces); err != nil {
			return nil, fmt.Errorf("decode face worker response: %w", err)
		}
		dets := make([]types.Detection, 0, len(faces))
		for _, f := range faces {
			dets = append(dets, toPixels(f, width, height))
		}
		return dets, nil
	case statusError:
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("face worker error with unreadable message: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("face worker error with truncated message: %w", err)
		}
		return nil, fmt.Errorf("face worker error: %s", msg)
	default:
		return nil, fmt.Errorf("face worker sent unknown status %d", resp[0])
	}
}

// toPixels truncates relative coordinates the same way for every edge.
func toPixels(f face, width, height int) types.Detection {
	left := int(f.Box[0] * float64(width))
	top := int(f.Box[1] * float64(height))
	return types.Detection{
		Left:   left,
		Top:    top,
		Right:  left + int(f.Box[2]*float64(width)),
		Bottom: top + int(f.Box[3]*float64(height)),
		Score:  f.Score,
	}
}

// packRGB drops the alpha channel, appending tightly packed RGB rows to dst.
func packRGB(dst []byte, img *image.RGBA) []byte {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			p := row[x*4 : x*4+3]
			dst = append(dst, p[0], p[1], p[2])
		}
	}
	return dst
}
