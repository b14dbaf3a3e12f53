package types

import "image"

// VideoEntry is one parsed line of the input list.
type VideoEntry struct {
	PersonName   string
	VideoID      string
	StartTime    string  // HH:MM:SS as written in the list
	StartSeconds int     // StartTime converted to seconds
	Duration     float64 // seconds
	Gender       string
	Age          string
	Racial       string
	Country      string
}

// Identity is the compound PersonName_VideoID key naming a source video.
func (e VideoEntry) Identity() string {
	return e.PersonName + "_" + e.VideoID
}

// Detection is a single face candidate as reported by a detector, in frame pixels.
type Detection struct {
	Left   int
	Top    int
	Right  int
	Bottom int
	Score  float64
}

// FaceBox is a margin-expanded face region clamped to the frame.
type FaceBox struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

func (b FaceBox) Width() int  { return b.Right - b.Left }
func (b FaceBox) Height() int { return b.Bottom - b.Top }

// Rect returns the box as an image.Rectangle.
func (b FaceBox) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// FrameBox pairs a frame index with the box found in it.
type FrameBox struct {
	Index int
	Box   FaceBox
}

// ClipRecord is the ledger row written for every clip that was produced.
type ClipRecord struct {
	VideoID    string
	PersonName string
	Height     int
	Width      int
	StartFrame int
	EndFrame   int
	Box        FaceBox
	Gender     string
	Country    string
	Racial     string
	Age        string
}
