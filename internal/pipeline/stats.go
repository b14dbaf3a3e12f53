package pipeline

import "fmt"

// Stage is a step of a pipeline run.
type Stage int

const (
	StageInit Stage = iota
	StageListLoaded
	StageDownloading
	StageExtracting
	StageCleanup
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageInit:
		return "INIT"
	case StageListLoaded:
		return "LIST_LOADED"
	case StageDownloading:
		return "DOWNLOADING"
	case StageExtracting:
		return "EXTRACTING"
	case StageCleanup:
		return "CLEANUP"
	case StageDone:
		return "DONE"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Summary tracks aggregate counters across a run.
type Summary struct {
	Entries     int // parsed list entries
	Skipped     int // malformed list lines
	Identities  int // distinct sources
	Downloaded  int
	Existing    int // already on disk, not downloaded again
	FetchFailed int

	Clips        int // clips written to the ledger
	NoFace       int // dropped: no qualifying face in the window
	EncodeFailed int
	Missing      int // source file absent at extraction time
	Failed       int // any other extraction error
	SinkErrors   int // optional sink failures (never drop a ledger row)
}

// Dropped is every entry that did not produce a clip.
func (s Summary) Dropped() int {
	return s.NoFace + s.EncodeFailed + s.Missing + s.Failed
}
