// Package media wraps the ffprobe and ffmpeg executables: stream metadata,
// raw frame decoding over a pipe, and face-crop clip encoding.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/utils"
)

// ErrNoVideoStream is returned when ffprobe finds no usable video stream.
var ErrNoVideoStream = errors.New("no video stream")

// Info describes the primary video stream of a file.
type Info struct {
	Stream   int // absolute stream index, for -map 0:N
	FPS      float64
	Width    int
	Height   int
	Duration float64 // seconds, 0 when unknown
}

// ProbeArgs lists every stream so cover art can be told apart from the video.
func ProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	}
}

// Probe runs one ffprobe JSON call against path.
func Probe(ctx context.Context, path string) (Info, error) {
	cmd := utils.NewSafeCommand(ctx, "ffprobe", ProbeArgs(path)...)
	out, err := cmd.Output()
	if err != nil {
		if tail := cmd.StderrTail(512); tail != "" {
			return Info{}, fmt.Errorf("ffprobe %q: %w: %s", path, err, tail)
		}
		return Info{}, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	return ParseProbeJSON(out)
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		Index        int            `json:"index"`
		CodecType    string         `json:"codec_type"`
		Width        int            `json:"width"`
		Height       int            `json:"height"`
		AvgFrameRate string         `json:"avg_frame_rate"`
		RFrameRate   string         `json:"r_frame_rate"`
		Disposition  map[string]int `json:"disposition"`
	} `json:"streams"`
}

// ParseProbeJSON converts raw ffprobe JSON into Info.
// Exported for testing without a real ffprobe binary.
func ParseProbeJSON(data []byte) (Info, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	for _, s := range raw.Streams {
		if s.CodecType != "video" || s.Disposition["attached_pic"] == 1 {
			continue
		}
		fps := ParseRate(s.AvgFrameRate)
		if fps <= 0 {
			fps = ParseRate(s.RFrameRate)
		}
		if fps <= 0 || s.Width <= 0 || s.Height <= 0 {
			return Info{}, fmt.Errorf("%w: fps=%q size=%dx%d", ErrNoVideoStream, s.AvgFrameRate, s.Width, s.Height)
		}
		dur, _ := strconv.ParseFloat(strings.TrimSpace(raw.Format.Duration), 64)
		return Info{Stream: s.Index, FPS: fps, Width: s.Width, Height: s.Height, Duration: dur}, nil
	}
	return Info{}, ErrNoVideoStream
}

// ParseRate parses ffprobe rationals such as "30000/1001" or plain numbers.
// It returns 0 for "0/0", "N/A", and anything unparsable.
func ParseRate(s string) float64 {
	s = strings.TrimSpace(s)
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
