package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/config"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/extract"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/fetch"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/media"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/types"
)

const videoList = `Alice_abc123|00:00:05|10|female|30-40|asian|ID
this line is broken
Bob_def456|00:00:01|3|male|20-30|white|US
Alice_abc123|00:01:00|2|female|30-40|asian|ID
Carol_nofc01|00:00:00|5|female|40-50|black|NG
Dave_badenc|00:00:00|5|male|50-60|white|DE
Eve_gone99|00:00:00|5|female|20-30|asian|JP
`

// fakeGetter writes a placeholder file for every identity except those in fail.
type fakeGetter struct {
	dir  string
	fail map[string]bool
}

func (g *fakeGetter) Fetch(ctx context.Context, id string) fetch.Result {
	path := filepath.Join(g.dir, id+".mp4")
	if g.fail[id] {
		return fetch.Result{Identity: id, Path: path, Err: &fetch.FetchError{Identity: id, Err: errors.New("Video unavailable")}}
	}
	if err := os.WriteFile(path, []byte("video"), 0644); err != nil {
		return fetch.Result{Identity: id, Err: err}
	}
	return fetch.Result{Identity: id, Path: path}
}

type call struct {
	entry     types.VideoEntry
	outDir    string
	srcExists bool
}

// fakeExtractor decides the outcome from the video id.
type fakeExtractor struct {
	calls []call
}

func (x *fakeExtractor) Extract(ctx context.Context, src string, e types.VideoEntry, outDir string) (*types.ClipRecord, error) {
	_, statErr := os.Stat(src)
	x.calls = append(x.calls, call{entry: e, outDir: outDir, srcExists: statErr == nil})

	switch e.VideoID {
	case "nofc01":
		return nil, extract.ErrNoFace
	case "badenc":
		return nil, &media.EncodeError{Output: "x", Err: errors.New("exit status 1")}
	}
	return &types.ClipRecord{
		VideoID: e.VideoID, PersonName: e.PersonName, Height: 360, Width: 640,
		StartFrame: e.StartSeconds * 25, EndFrame: e.StartSeconds*25 + int(e.Duration*25),
		Box:    types.FaceBox{Left: 80, Top: 30, Right: 220, Bottom: 170},
		Gender: e.Gender, Country: e.Country, Racial: e.Racial, Age: e.Age,
	}, nil
}

type recordingSink struct {
	name  string
	err   error
	paths []string
}

func (s *recordingSink) Record(ctx context.Context, rec types.ClipRecord, clipPath string) error {
	s.paths = append(s.paths, clipPath)
	return s.err
}

func (s *recordingSink) Name() string { return s.name }

func setup(t *testing.T) (config.Config, *fakeGetter) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default(root)
	require.NoError(t, os.WriteFile(cfg.InputList, []byte(videoList), 0644))
	return cfg, &fakeGetter{dir: cfg.TempDir, fail: map[string]bool{"Eve_gone99": true}}
}

func TestRun_EndToEnd(t *testing.T) {
	cfg, getter := setup(t)
	ext := &fakeExtractor{}
	good := &recordingSink{name: "catalog"}
	bad := &recordingSink{name: "kafka", err: errors.New("broker down")}
	var stdout bytes.Buffer

	o := &Orchestrator{
		Config:    cfg,
		Downloads: &fetch.Pool{Getter: getter, Workers: 2},
		Extractor: ext,
		Sinks:     []Sink{good, bad},
		Stdout:    &stdout,
		Stderr:    io.Discard,
	}

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StageDone, o.Stage())

	assert.Equal(t, 6, sum.Entries)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 5, sum.Identities)
	assert.Equal(t, 4, sum.Downloaded)
	assert.Equal(t, 1, sum.FetchFailed)
	assert.Equal(t, 3, sum.Clips)
	assert.Equal(t, 1, sum.NoFace)
	assert.Equal(t, 1, sum.EncodeFailed)
	assert.Equal(t, 1, sum.Missing)
	assert.Equal(t, 3, sum.SinkErrors)
	assert.Equal(t, 3, sum.Dropped())

	// Ledger rows follow input order among successes; sink failures do not drop rows.
	data, err := os.ReadFile(cfg.LedgerPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "video_id,person_name,"))
	assert.Equal(t, "abc123,Alice,360,640,125,375,80,30,220,170,female,ID,asian,30-40", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "def456,Bob,"))
	assert.True(t, strings.HasPrefix(lines[3], "abc123,Alice,360,640,1500,1550,"))

	// Extraction ran in input order, into per-person directories.
	require.Len(t, ext.calls, 5)
	assert.Equal(t, "abc123", ext.calls[0].entry.VideoID)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "Alice"), ext.calls[0].outDir)
	assert.DirExists(t, filepath.Join(cfg.OutputDir, "Bob"))

	// Alice's source is shared by two entries and must survive the first one.
	assert.True(t, ext.calls[2].srcExists, "source removed before its last entry")

	assert.Equal(t, []string{
		filepath.Join(cfg.OutputDir, "Alice", "abc123_cropped.mp4"),
		filepath.Join(cfg.OutputDir, "Bob", "def456_cropped.mp4"),
		filepath.Join(cfg.OutputDir, "Alice", "abc123_cropped.mp4"),
	}, good.paths)

	assert.NoDirExists(t, cfg.TempDir)

	out := stdout.String()
	assert.Contains(t, out, "Skipping line")
	assert.Contains(t, out, "Failed to download Eve_gone99")
	assert.Contains(t, out, "ffmpeg error in badenc")
	assert.Contains(t, out, "kafka failed for abc123")
	assert.NotContains(t, out, "nofc01", "no-face drops are silent")
}

func TestRun_AppendsAcrossRuns(t *testing.T) {
	cfg, getter := setup(t)
	for i := 0; i < 2; i++ {
		o := &Orchestrator{
			Config:    cfg,
			Downloads: &fetch.Pool{Getter: getter, Workers: 1},
			Extractor: &fakeExtractor{},
			Stdout:    io.Discard,
			Stderr:    io.Discard,
		}
		_, err := o.Run(context.Background())
		require.NoError(t, err)
	}

	data, err := os.ReadFile(cfg.LedgerPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 1+3*2, "one header, rows from both runs")
}

func TestRun_MissingListIsFatal(t *testing.T) {
	cfg := config.Default(t.TempDir())
	o := &Orchestrator{
		Config:    cfg,
		Downloads: &fetch.Pool{Getter: &fakeGetter{dir: cfg.TempDir}},
		Extractor: &fakeExtractor{},
		Stdout:    io.Discard,
		Stderr:    io.Discard,
	}

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, StageInit, o.Stage())
	assert.FileExists(t, cfg.LedgerPath, "ledger initialized before the list is read")
}

func TestRun_Cancelled(t *testing.T) {
	cfg, getter := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ext := &fakeExtractor{}
	o := &Orchestrator{
		Config:    cfg,
		Downloads: &fetch.Pool{Getter: getter},
		Extractor: ext,
		Stdout:    io.Discard,
		Stderr:    io.Discard,
	}
	_, err := o.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, ext.calls)
	assert.Equal(t, StageDownloading, o.Stage())
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "LIST_LOADED", StageListLoaded.String())
	assert.Equal(t, "DONE", StageDone.String())
	assert.Equal(t, "Stage(42)", Stage(42).String())
}

// templateDownloader writes the file yt-dlp would produce for tmpl.
type templateDownloader struct{}

func (templateDownloader) Download(ctx context.Context, url, tmpl string) error {
	return os.WriteFile(strings.Replace(tmpl, "%(ext)s", "mp4", 1), []byte("video"), 0644)
}

func TestRun_PathLikeIdentityIsSkipped(t *testing.T) {
	cfg := config.Default(t.TempDir())
	victim := filepath.Join(cfg.OutputDir, "Alice", "abc123_cropped.mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(victim), 0755))
	require.NoError(t, os.WriteFile(victim, []byte("earlier clip"), 0644))

	list := "../output/Alice/abc123_cropped|00:00:00|1|f|1|x|y\n" +
		"Bob_def456|00:00:01|3|male|20-30|white|US\n"
	require.NoError(t, os.WriteFile(cfg.InputList, []byte(list), 0644))

	ext := &fakeExtractor{}
	o := &Orchestrator{
		Config: cfg,
		Downloads: &fetch.Pool{
			Getter:  &fetch.Fetcher{Dir: cfg.TempDir, Downloader: templateDownloader{}},
			Workers: 1,
		},
		Extractor: ext,
		Stdout:    io.Discard,
		Stderr:    io.Discard,
	}

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.Identities)
	assert.Equal(t, 0, sum.Existing)
	require.Len(t, ext.calls, 1)
	assert.Equal(t, "def456", ext.calls[0].entry.VideoID)
	assert.FileExists(t, victim, "files outside the temp dir are never removed")
}
