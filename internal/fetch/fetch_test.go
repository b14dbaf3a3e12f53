package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// fakeDownloader writes the file yt-dlp would have produced, or fails for listed URLs.
type fakeDownloader struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	noOut bool
}

func (d *fakeDownloader) Download(ctx context.Context, url, tmpl string) error {
	d.mu.Lock()
	d.calls = append(d.calls, url)
	err := d.fail[url]
	d.mu.Unlock()
	if err != nil {
		return err
	}
	if d.noOut {
		return nil
	}
	return os.WriteFile(strings.Replace(tmpl, "%(ext)s", "mp4", 1), []byte("video"), 0644)
}

func TestWatchURL(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", WatchURL("abc123"))
}

func TestFetch_Downloads(t *testing.T) {
	dir := t.TempDir()
	dl := &fakeDownloader{}
	f := &Fetcher{Dir: dir, Downloader: dl}

	res := f.Fetch(context.Background(), "Mary_Jane_xYz-09")
	require.NoError(t, res.Err)
	assert.False(t, res.Existing)
	assert.Equal(t, filepath.Join(dir, "Mary_Jane_xYz-09.mp4"), res.Path)
	assert.FileExists(t, res.Path)
	assert.Equal(t, []string{"https://www.youtube.com/watch?v=xYz-09"}, dl.calls)
}

func TestFetch_ExistingIsNoop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Alice_abc123.mp4"), []byte("x"), 0644))

	dl := &fakeDownloader{}
	f := &Fetcher{Dir: dir, Downloader: dl}

	res := f.Fetch(context.Background(), "Alice_abc123")
	require.NoError(t, res.Err)
	assert.True(t, res.Existing)
	assert.Empty(t, dl.calls, "no network call for an existing file")
}

func TestFetch_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("remote failure", func(t *testing.T) {
		dl := &fakeDownloader{fail: map[string]error{WatchURL("gone"): errors.New("Video unavailable")}}
		res := (&Fetcher{Dir: dir, Downloader: dl}).Fetch(context.Background(), "Bob_gone")
		var fe *FetchError
		require.True(t, errors.As(res.Err, &fe))
		assert.Equal(t, "Bob_gone", fe.Identity)
		assert.Contains(t, fe.Error(), "Video unavailable")
	})

	t.Run("bad identity", func(t *testing.T) {
		dl := &fakeDownloader{}
		res := (&Fetcher{Dir: dir, Downloader: dl}).Fetch(context.Background(), "nounderscore")
		var fe *FetchError
		assert.True(t, errors.As(res.Err, &fe))
		assert.Empty(t, dl.calls)
	})

	t.Run("identity outside dir", func(t *testing.T) {
		outside := filepath.Join(filepath.Dir(dir), "victim_x1.mp4")
		require.NoError(t, os.WriteFile(outside, []byte("x"), 0644))
		defer os.Remove(outside)

		dl := &fakeDownloader{}
		res := (&Fetcher{Dir: dir, Downloader: dl}).Fetch(context.Background(), "../victim_x1")
		var fe *FetchError
		require.True(t, errors.As(res.Err, &fe))
		assert.False(t, res.Existing, "a file outside Dir is never reused")
		assert.Empty(t, dl.calls)
	})

	t.Run("no output file", func(t *testing.T) {
		dl := &fakeDownloader{noOut: true}
		res := (&Fetcher{Dir: dir, Downloader: dl}).Fetch(context.Background(), "Carol_x1")
		var fe *FetchError
		assert.True(t, errors.As(res.Err, &fe))
	})
}

type countingGetter struct {
	inFlight, peak atomic.Int32
	failFor        string
}

func (g *countingGetter) Fetch(ctx context.Context, id string) Result {
	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	g.inFlight.Add(-1)
	if id == g.failFor {
		return Result{Identity: id, Err: &FetchError{Identity: id, Err: errors.New("boom")}}
	}
	return Result{Identity: id, Path: id + ".mp4"}
}

func TestPool_Run(t *testing.T) {
	ids := []string{"A_1", "B_2", "C_3", "D_4", "E_5", "F_6", "G_7"}
	g := &countingGetter{failFor: "C_3"}
	p := &Pool{Getter: g, Workers: 2}

	var seen []string
	results := p.Run(context.Background(), ids, func(r Result) {
		seen = append(seen, r.Identity)
	})

	require.Len(t, results, len(ids))
	for i, r := range results {
		assert.Equal(t, ids[i], r.Identity, "results aligned to input")
	}
	assert.Error(t, results[2].Err)
	assert.NoError(t, results[3].Err, "one failure does not stop the pool")
	assert.ElementsMatch(t, ids, seen)
	assert.LessOrEqual(t, g.peak.Load(), int32(2))
}

func TestPool_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := &countingGetter{}
	results := (&Pool{Getter: g, Workers: 2}).Run(ctx, []string{"A_1", "B_2"}, nil)

	for _, r := range results {
		assert.True(t, errors.Is(r.Err, context.Canceled))
	}
	assert.Zero(t, g.peak.Load(), "nothing started after cancel")
}

func TestPool_RateLimited(t *testing.T) {
	g := &countingGetter{}
	p := &Pool{Getter: g, Workers: 4, Limiter: rate.NewLimiter(rate.Inf, 1)}
	results := p.Run(context.Background(), []string{"A_1", "B_2", "C_3"}, nil)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}
