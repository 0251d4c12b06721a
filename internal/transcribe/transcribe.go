// Package transcribe identifies the spoken language of an audio file and
// converts its speech to text.
//
// Model inference is delegated to a Loader; the whisper.cpp implementation
// lives in internal/whispercpp so this package builds without cgo.
package transcribe

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultLanguage is reported when the model cannot tell the language.
const DefaultLanguage = "en"

// DetectWindow is how much audio the language detector listens to. whisper
// identifies language from a single 30s mel window.
const DetectWindow = 30 * time.Second

const sampleRate = 16000

// Model is a loaded speech model.
type Model interface {
	// DetectLanguage returns the language code spoken in samples, or "" when
	// the model does not report one.
	DetectLanguage(samples []float32) (string, error)
	// Transcribe returns the text of samples, decoding in the given language.
	Transcribe(samples []float32, language string) (string, error)
	// Close releases model resources.
	Close() error
}

// Loader opens a model by size name ("base", "medium", ...).
type Loader interface {
	Load(ctx context.Context, size string) (Model, error)
}

// SampleSource decodes an audio file into mono 16kHz float32 samples.
type SampleSource interface {
	Load(ctx context.Context, path string) ([]float32, error)
}

// ModelSizes decides which model size serves which step.
type ModelSizes struct {
	Detect     string            // language identification
	Default    string            // transcription for languages not in ByLanguage
	ByLanguage map[string]string // per-language transcription overrides
}

// DefaultModelSizes uses base everywhere except Persian, which base
// transcribes poorly.
func DefaultModelSizes() ModelSizes {
	return ModelSizes{
		Detect:     "base",
		Default:    "base",
		ByLanguage: map[string]string{"fa": "medium"},
	}
}

// For returns the transcription model size for a language code.
func (s ModelSizes) For(language string) string {
	if size, ok := s.ByLanguage[language]; ok && size != "" {
		return size
	}
	return s.Default
}

// Transcript is the outcome of one transcription.
type Transcript struct {
	Text      string
	Language  string
	ModelSize string
	Audio     time.Duration
	Elapsed   time.Duration
}

// Service runs language detection and transcription over audio files.
// It is not safe for concurrent use.
type Service struct {
	loader Loader
	source SampleSource
	sizes  ModelSizes
	log    zerolog.Logger

	models      map[string]Model
	samplesPath string
	samples     []float32
}

// NewService wires a model loader and sample source together.
func NewService(loader Loader, source SampleSource, sizes ModelSizes, log zerolog.Logger) *Service {
	return &Service{
		loader: loader,
		source: source,
		sizes:  sizes,
		log:    log,
		models: make(map[string]Model),
	}
}

// DetectLanguage identifies the language spoken in the first DetectWindow of
// audioPath using the detect-size model. It falls back to DefaultLanguage
// when the model reports nothing.
func (s *Service) DetectLanguage(ctx context.Context, audioPath string) (string, error) {
	s.log.Info().Msg("🌐 Detecting language...")

	samples, err := s.load(ctx, audioPath)
	if err != nil {
		return "", err
	}
	if limit := int(DetectWindow.Seconds()) * sampleRate; len(samples) > limit {
		samples = samples[:limit]
	}

	model, err := s.model(ctx, s.sizes.Detect)
	if err != nil {
		return "", err
	}

	lang, err := model.DetectLanguage(samples)
	if err != nil {
		return "", fmt.Errorf("transcribe: detect language: %w", err)
	}
	if lang == "" {
		s.log.Debug().Msg("model reported no language, assuming default")
		lang = DefaultLanguage
	}

	s.log.Info().Str("language", lang).Msgf("Detected language: %s", lang)
	return lang, nil
}

// Transcribe converts the full audio at audioPath to text in the given
// language, using the model size ModelSizes.For selects.
func (s *Service) Transcribe(ctx context.Context, audioPath, language string) (*Transcript, error) {
	size := s.sizes.For(language)
	s.log.Info().Str("model", size).Msgf("🧠 Transcribing with '%s' model...", size)

	samples, err := s.load(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	model, err := s.model(ctx, size)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	text, err := model.Transcribe(samples, language)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %s model: %w", size, err)
	}

	t := &Transcript{
		Text:      text,
		Language:  language,
		ModelSize: size,
		Audio:     time.Duration(len(samples)) * time.Second / sampleRate,
		Elapsed:   time.Since(start),
	}
	s.log.Debug().
		Dur("audio", t.Audio).
		Dur("elapsed", t.Elapsed).
		Int("chars", len(text)).
		Msg("transcription finished")
	return t, nil
}

// Close releases every model the service loaded.
func (s *Service) Close() error {
	var firstErr error
	for size, m := range s.models {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("transcribe: close %s model: %w", size, err)
		}
		delete(s.models, size)
	}
	s.samples = nil
	s.samplesPath = ""
	return firstErr
}

// load decodes audioPath, reusing the previous decode when the path repeats.
func (s *Service) load(ctx context.Context, audioPath string) ([]float32, error) {
	if s.samples != nil && s.samplesPath == audioPath {
		return s.samples, nil
	}
	samples, err := s.source.Load(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: load audio: %w", err)
	}
	s.samplesPath = audioPath
	s.samples = samples
	return samples, nil
}

// model returns the loaded model for size, loading it on first use.
func (s *Service) model(ctx context.Context, size string) (Model, error) {
	if m, ok := s.models[size]; ok {
		return m, nil
	}
	start := time.Now()
	m, err := s.loader.Load(ctx, size)
	if err != nil {
		return nil, fmt.Errorf("transcribe: load %s model: %w", size, err)
	}
	s.log.Debug().Str("model", size).Dur("elapsed", time.Since(start)).Msg("model loaded")
	s.models[size] = m
	return m, nil
}
