// Package whispercpp runs whisper.cpp ggml models through the cgo bindings.
package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/chaz8081/media2text/internal/models"
	"github.com/chaz8081/media2text/internal/transcribe"
)

// ErrFP16Unsupported is returned when half precision inference is requested.
// The bindings always run the ggml weights at their stored precision.
var ErrFP16Unsupported = errors.New("whispercpp: fp16 inference is not supported")

// Options tune inference.
type Options struct {
	Threads uint // 0 keeps the whisper.cpp default
	FP16    bool // must be false
}

// Loader opens models from a models.Store, downloading them if the store
// allows it.
type Loader struct {
	store *models.Store
	opts  Options
}

var _ transcribe.Loader = (*Loader)(nil)

// NewLoader returns a Loader backed by store.
func NewLoader(store *models.Store, opts Options) (*Loader, error) {
	if opts.FP16 {
		return nil, ErrFP16Unsupported
	}
	return &Loader{store: store, opts: opts}, nil
}

// Load resolves the ggml file for size and loads it.
func (l *Loader) Load(ctx context.Context, size string) (transcribe.Model, error) {
	path, err := l.store.Ensure(ctx, size)
	if err != nil {
		return nil, err
	}
	m, err := Open(path, l.opts)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Model wraps a loaded whisper.cpp model.
type Model struct {
	model whisper.Model
	opts  Options
}

// Open loads the ggml model at path. The caller must call Close when done.
func Open(path string, opts Options) (*Model, error) {
	if opts.FP16 {
		return nil, ErrFP16Unsupported
	}
	model, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: load model %q: %w", path, err)
	}
	return &Model{model: model, opts: opts}, nil
}

// Close releases the model.
func (m *Model) Close() error {
	if m.model != nil {
		err := m.model.Close()
		m.model = nil
		return err
	}
	return nil
}

// DetectLanguage runs auto-detection over samples and returns the language
// code whisper settled on. English-only models always report "en".
func (m *Model) DetectLanguage(samples []float32) (string, error) {
	if !m.model.IsMultilingual() {
		return "en", nil
	}
	wctx, err := m.newContext("auto")
	if err != nil {
		return "", err
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whispercpp: process: %w", err)
	}
	return wctx.DetectedLanguage(), nil
}

// Transcribe decodes samples in language and joins the segments.
func (m *Model) Transcribe(samples []float32, language string) (string, error) {
	if !m.model.IsMultilingual() {
		language = "en"
	}
	wctx, err := m.newContext(language)
	if err != nil {
		return "", err
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whispercpp: process: %w", err)
	}

	var segments []string
	for {
		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whispercpp: next segment: %w", err)
		}
		segments = append(segments, strings.TrimSpace(seg.Text))
	}

	return strings.TrimSpace(strings.Join(segments, " ")), nil
}

func (m *Model) newContext(language string) (whisper.Context, error) {
	wctx, err := m.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whispercpp: create context: %w", err)
	}
	if err := wctx.SetLanguage(language); err != nil {
		return nil, fmt.Errorf("whispercpp: set language %q: %w", language, err)
	}
	wctx.SetTranslate(false)
	if m.opts.Threads > 0 {
		wctx.SetThreads(m.opts.Threads)
	}
	return wctx, nil
}
