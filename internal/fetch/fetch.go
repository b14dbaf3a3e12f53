// Package fetch downloads source videos for identities into a local workspace.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lrstanley/go-ytdlp"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/manifest"
)

// Format asks for the best mp4 video with m4a audio, falling back to the best single mp4.
const Format = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]"

// WatchURL is the canonical watch page for a video key.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// FetchError is a failed retrieval for one identity.
type FetchError struct {
	Identity string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Identity, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Downloader retrieves url and writes it following the yt-dlp output template.
type Downloader interface {
	Download(ctx context.Context, url, outputTemplate string) error
}

// YtdlpDownloader shells out to yt-dlp through go-ytdlp.
type YtdlpDownloader struct{}

func (YtdlpDownloader) Download(ctx context.Context, url, outputTemplate string) error {
	_, err := ytdlp.New().
		Format(Format).
		MergeOutputFormat("mp4").
		Output(outputTemplate).
		NoPlaylist().
		EmbedMetadata().
		Quiet().
		NoProgress().
		Run(ctx, url)
	return err
}

// Result is the outcome of fetching one identity.
type Result struct {
	Identity string
	Path     string
	Existing bool // target was already on disk, nothing downloaded
	Err      error
}

// Fetcher downloads identities into Dir as {identity}.mp4.
type Fetcher struct {
	Dir        string
	Downloader Downloader
}

// TargetPath is the local file an identity downloads to.
func (f *Fetcher) TargetPath(identity string) string {
	return filepath.Join(f.Dir, identity+".mp4")
}

// Fetch downloads identity unless its target already exists. Errors are
// reported in Result.Err as *FetchError; nothing is retried.
func (f *Fetcher) Fetch(ctx context.Context, identity string) Result {
	target := f.TargetPath(identity)
	res := Result{Identity: identity, Path: target}

	_, videoID, err := manifest.SplitIdentity(identity)
	if err != nil {
		res.Err = &FetchError{Identity: identity, Err: err}
		return res
	}

	if _, err := os.Stat(target); err == nil {
		res.Existing = true
		return res
	}

	tmpl := filepath.Join(f.Dir, identity+".%(ext)s")
	if err := f.Downloader.Download(ctx, WatchURL(videoID), tmpl); err != nil {
		res.Err = &FetchError{Identity: identity, Err: err}
		return res
	}

	if _, err := os.Stat(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = errors.New("downloader finished without producing an mp4")
		}
		res.Err = &FetchError{Identity: identity, Err: err}
	}
	return res
}
