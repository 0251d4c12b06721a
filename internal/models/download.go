// Package models locates whisper.cpp ggml model files and downloads missing
// ones from HuggingFace.
package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"github.com/chaz8081/media2text/internal/config"
)

// BaseURL is where the ggml conversions of the whisper models are published.
const BaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// ErrModelMissing is returned when a model is absent and downloads are disabled.
var ErrModelMissing = errors.New("model not found")

// FileName returns the ggml file name for a model size, e.g. ggml-base.bin.
func FileName(size string) string {
	return "ggml-" + size + ".bin"
}

// Path returns where the model of the given size lives inside dir.
func Path(dir, size string) string {
	return filepath.Join(dir, FileName(size))
}

// Store resolves model files in a directory and fetches missing ones.
type Store struct {
	Dir          string
	AutoDownload bool
	BaseURL      string
	Client       *http.Client
	Progress     io.Writer // nil disables the progress bar
}

// NewStore returns a Store rooted at dir that downloads from BaseURL.
func NewStore(dir string, autoDownload bool) *Store {
	return &Store{
		Dir:          dir,
		AutoDownload: autoDownload,
		BaseURL:      BaseURL,
		Client:       http.DefaultClient,
		Progress:     os.Stderr,
	}
}

// Ensure returns the path of the model for size, downloading it first when
// it is missing and downloads are enabled.
func (s *Store) Ensure(ctx context.Context, size string) (string, error) {
	if !config.ValidModelSize(size) {
		return "", fmt.Errorf("models: unknown model size %q", size)
	}

	destPath := Path(s.Dir, size)
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		return destPath, nil
	}

	if !s.AutoDownload {
		return "", fmt.Errorf("models: %s: %w (enable models.auto_download or place it there manually)", destPath, ErrModelMissing)
	}

	if err := s.download(ctx, size, destPath); err != nil {
		return "", err
	}
	return destPath, nil
}

// download fetches the ggml model into destPath via a temp file and rename.
func (s *Store) download(ctx context.Context, size, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("models: creating models dir: %w", err)
	}

	url := s.BaseURL + "/" + FileName(size)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("models: building request: %w", err)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("models: downloading %s: %w", FileName(size), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("models: download %s failed: HTTP %d", FileName(size), resp.StatusCode)
	}

	// Write to temp file first, then rename (atomic)
	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("models: creating temp file: %w", err)
	}

	var w io.Writer = f
	if s.Progress != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(s.Progress),
			progressbar.OptionSetDescription(FileName(size)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(s.Progress) }),
		)
		w = io.MultiWriter(f, bar)
	}

	written, err := io.Copy(w, resp.Body)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && resp.ContentLength > 0 && written != resp.ContentLength {
		err = fmt.Errorf("short read: got %s of %s",
			humanize.Bytes(uint64(written)), humanize.Bytes(uint64(resp.ContentLength)))
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("models: writing %s: %w", FileName(size), err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("models: moving model file: %w", err)
	}
	return nil
}

// Describe returns a short human-readable summary of a present model file.
func Describe(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return filepath.Base(path)
	}
	return fmt.Sprintf("%s (%s)", filepath.Base(path), humanize.Bytes(uint64(info.Size())))
}
