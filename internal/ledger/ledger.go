// Package ledger appends clip records to the metadata CSV.
package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/types"
)

// Header is the fixed first row of every ledger file.
var Header = []string{
	"video_id", "person_name", "height", "width", "start_frame", "end_frame",
	"left", "top", "right", "bottom", "gender", "country", "racial", "age",
}

// Init makes sure the ledger at path exists and starts with Header. An
// existing non-empty file is left untouched. created reports whether the
// header was written by this call.
func Init(path string) (created bool, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("create ledger directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		st, serr := os.Stat(path)
		if serr != nil {
			return false, fmt.Errorf("stat ledger: %w", serr)
		}
		if st.Size() > 0 {
			return false, nil
		}
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	}
	if err != nil {
		return false, fmt.Errorf("create ledger: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		return false, fmt.Errorf("write ledger header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return false, fmt.Errorf("write ledger header: %w", err)
	}
	return true, nil
}

// Row renders rec in Header order.
func Row(rec types.ClipRecord) []string {
	return []string{
		rec.VideoID,
		rec.PersonName,
		strconv.Itoa(rec.Height),
		strconv.Itoa(rec.Width),
		strconv.Itoa(rec.StartFrame),
		strconv.Itoa(rec.EndFrame),
		strconv.Itoa(rec.Box.Left),
		strconv.Itoa(rec.Box.Top),
		strconv.Itoa(rec.Box.Right),
		strconv.Itoa(rec.Box.Bottom),
		rec.Gender,
		rec.Country,
		rec.Racial,
		rec.Age,
	}
}

// Ledger is an open, append-only handle on the CSV.
type Ledger struct {
	mu   sync.Mutex
	f    *os.File
	w    *csv.Writer
	Path string
}

// Open opens an initialized ledger for appending.
func Open(path string) (*Ledger, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &Ledger{f: f, w: csv.NewWriter(f), Path: path}, nil
}

// Append writes one row and flushes it to disk.
func (l *Ledger) Append(rec types.ClipRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Write(Row(rec)); err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}
	return nil
}

// Record appends rec; clipPath is not part of the ledger.
func (l *Ledger) Record(ctx context.Context, rec types.ClipRecord, clipPath string) error {
	return l.Append(rec)
}

func (l *Ledger) Name() string { return "ledger" }

func (l *Ledger) Close() error {
	return l.f.Close()
}
