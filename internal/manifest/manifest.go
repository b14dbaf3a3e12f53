// Package manifest parses the pipe-delimited video list into typed entries.
//
// Each line has the form
//
//	PersonName_VideoKey|HH:MM:SS|duration|gender|age|racial|country
package manifest

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/types"
)

const (
	fieldCount = 7
	separator  = "|"
)

// FormatError reports a list line (or identity) that does not follow the expected layout.
type FormatError struct {
	Line   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid format (%s): %q", e.Reason, e.Line)
}

// ParseLine decodes one list line into a VideoEntry.
func ParseLine(line string) (types.VideoEntry, error) {
	line = strings.TrimSpace(line)
	parts := strings.Split(line, separator)
	if len(parts) != fieldCount {
		return types.VideoEntry{}, &FormatError{Line: line, Reason: fmt.Sprintf("expected %d fields, got %d", fieldCount, len(parts))}
	}

	name, id, err := SplitIdentity(parts[0])
	if err != nil {
		return types.VideoEntry{}, err
	}

	startSec, err := ParseClock(parts[1])
	if err != nil {
		return types.VideoEntry{}, &FormatError{Line: line, Reason: err.Error()}
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil || math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0 {
		return types.VideoEntry{}, &FormatError{Line: line, Reason: fmt.Sprintf("invalid duration %q", parts[2])}
	}

	return types.VideoEntry{
		PersonName:   name,
		VideoID:      id,
		StartTime:    parts[1],
		StartSeconds: startSec,
		Duration:     duration,
		Gender:       parts[3],
		Age:          parts[4],
		Racial:       parts[5],
		Country:      parts[6],
	}, nil
}

// SplitIdentity splits "PersonName_VideoKey" at its last underscore, so a
// person name may itself contain underscores.
func SplitIdentity(identity string) (name, videoID string, err error) {
	i := strings.LastIndex(identity, "_")
	if i <= 0 || i == len(identity)-1 {
		return "", "", &FormatError{Line: identity, Reason: "identity must be PersonName_VideoKey"}
	}
	name, videoID = identity[:i], identity[i+1:]
	for _, part := range []string{name, videoID} {
		if !isPathSegment(part) {
			return "", "", &FormatError{Line: identity, Reason: fmt.Sprintf("%q is not usable as a file name", part)}
		}
	}
	return name, videoID, nil
}

// isPathSegment reports whether s names a single entry inside a directory.
// Person names become directories and identities become file names.
func isPathSegment(s string) bool {
	if strings.ContainsAny(s, `/\`) || s == "." || s == ".." {
		return false
	}
	return filepath.IsLocal(s)
}

// ParseClock converts an HH:MM:SS wall-clock offset into seconds.
func ParseClock(hms string) (int, error) {
	parts := strings.Split(strings.TrimSpace(hms), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("start time %q is not HH:MM:SS", hms)
	}
	limits := [3]int{23, 59, 59}
	var vals [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] || len(p) > 2 {
			return 0, fmt.Errorf("start time %q is not HH:MM:SS", hms)
		}
		vals[i] = n
	}
	return vals[0]*3600 + vals[1]*60 + vals[2], nil
}

// Load reads every non-blank line of the list at path. Malformed lines are
// returned in skipped rather than failing the load; err is set only when the
// file itself cannot be read.
func Load(path string) (entries []types.VideoEntry, skipped []error, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open video list: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry, perr := ParseLine(line)
		if perr != nil {
			skipped = append(skipped, perr)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read video list: %w", err)
	}
	return entries, skipped, nil
}

// Identities returns the distinct identities of entries in first-seen order.
func Identities(entries []types.VideoEntry) []string {
	seen := make(map[string]bool, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		id := e.Identity()
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
