// Package pipeline turns one media file into a raw and a corrected transcript.
//
// The steps run strictly in order: classify, extract audio from video,
// detect the language, transcribe, save the raw text, correct it, save the
// corrected text, and remove any temporary audio.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaz8081/media2text/internal/media"
	"github.com/chaz8081/media2text/internal/transcribe"
)

// Stages reported in Error.
const (
	StageInput      = "input"
	StageExtract    = "extract"
	StageDetect     = "detect"
	StageTranscribe = "transcribe"
	StageSave       = "save"
)

var (
	// ErrInputNotFound means the input path does not exist.
	ErrInputNotFound = errors.New("input file not found")
	// ErrUnsupportedInput means the input extension is neither video nor audio.
	ErrUnsupportedInput = errors.New("unsupported file format")
)

// Error is a failure in one pipeline stage.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Extractor pulls the audio track out of a video file.
type Extractor interface {
	ExtractAudio(ctx context.Context, videoPath, outPath string) error
}

// Speech detects languages and transcribes audio files.
type Speech interface {
	DetectLanguage(ctx context.Context, audioPath string) (string, error)
	Transcribe(ctx context.Context, audioPath, language string) (*transcribe.Transcript, error)
}

// Tuner corrects a transcript. It returns the input text when it cannot.
type Tuner interface {
	Tune(ctx context.Context, text, language string) string
}

// Options name the files a run reads and writes.
type Options struct {
	Dir       string // output directory
	RawFile   string
	TunedFile string
	TempAudio string // where audio extracted from video is written
}

// DefaultOptions writes into the working directory.
func DefaultOptions() Options {
	return Options{
		Dir:       ".",
		RawFile:   "transcript_raw.txt",
		TunedFile: "transcript_tuned.txt",
		TempAudio: "temp_audio.wav",
	}
}

// Result describes a finished run.
type Result struct {
	Input     string
	Kind      media.Kind
	Language  string
	ModelSize string
	Raw       string
	Tuned     string
	RawPath   string
	TunedPath string
	TempAudio string // empty when the input was already audio
	Edits     transcribe.EditStats
	Elapsed   time.Duration
}

// Pipeline wires the stages together. It is not safe for concurrent use:
// every run writes the same output files.
type Pipeline struct {
	extractor Extractor
	speech    Speech
	tuner     Tuner
	opts      Options
	log       zerolog.Logger
}

// New returns a Pipeline. Empty Options fields take DefaultOptions values.
func New(extractor Extractor, speech Speech, tuner Tuner, opts Options, log zerolog.Logger) *Pipeline {
	def := DefaultOptions()
	if opts.Dir == "" {
		opts.Dir = def.Dir
	}
	if opts.RawFile == "" {
		opts.RawFile = def.RawFile
	}
	if opts.TunedFile == "" {
		opts.TunedFile = def.TunedFile
	}
	if opts.TempAudio == "" {
		opts.TempAudio = def.TempAudio
	}
	return &Pipeline{
		extractor: extractor,
		speech:    speech,
		tuner:     tuner,
		opts:      opts,
		log:       log,
	}
}

// Run processes input. A missing or unsupported input returns
// ErrInputNotFound or ErrUnsupportedInput and touches nothing; any other
// failure is an *Error naming the stage. Correction failures are not errors:
// the raw text is saved as the tuned text instead.
func (p *Pipeline) Run(ctx context.Context, input string) (*Result, error) {
	start := time.Now()

	info, err := os.Stat(input)
	if errors.Is(err, os.ErrNotExist) {
		p.log.Error().Str("input", input).Msgf("❌ File not found: %s", input)
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, input)
	}
	if err != nil {
		return nil, &Error{Stage: StageInput, Err: err}
	}
	if info.IsDir() {
		return nil, &Error{Stage: StageInput, Err: fmt.Errorf("%s is a directory", input)}
	}

	res := &Result{Input: input, Kind: media.Classify(input)}
	audioPath := input
	switch res.Kind {
	case media.Video:
		p.log.Info().Str("input", input).Msg("🎬 Extracting audio from video...")
		if err := p.extractor.ExtractAudio(ctx, input, p.opts.TempAudio); err != nil {
			return nil, &Error{Stage: StageExtract, Err: err}
		}
		audioPath = p.opts.TempAudio
		res.TempAudio = p.opts.TempAudio
	case media.Audio:
		p.log.Debug().Str("input", input).Msg("input is audio, no extraction needed")
	default:
		p.log.Error().Str("input", input).Msgf("❌ Unsupported file format: %s", filepath.Ext(input))
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedInput, filepath.Ext(input))
	}

	lang, err := p.speech.DetectLanguage(ctx, audioPath)
	if err != nil {
		return nil, &Error{Stage: StageDetect, Err: err}
	}
	res.Language = lang

	tr, err := p.speech.Transcribe(ctx, audioPath, lang)
	if err != nil {
		return nil, &Error{Stage: StageTranscribe, Err: err}
	}
	res.Raw = tr.Text
	res.ModelSize = tr.ModelSize

	res.RawPath = filepath.Join(p.opts.Dir, p.opts.RawFile)
	if err := p.save(res.RawPath, res.Raw); err != nil {
		return nil, err
	}

	res.Tuned = p.tuner.Tune(ctx, res.Raw, lang)
	res.TunedPath = filepath.Join(p.opts.Dir, p.opts.TunedFile)
	if err := p.save(res.TunedPath, res.Tuned); err != nil {
		return nil, err
	}

	res.Edits = transcribe.WordEditRate(res.Raw, res.Tuned)
	p.log.Info().
		Int("edits", res.Edits.Edits()).
		Int("words", res.Edits.RefWords).
		Msgf("Correction changed %.1f%% of words", res.Edits.Rate*100)

	p.cleanup(res.TempAudio)

	res.Elapsed = time.Since(start)
	p.log.Info().Dur("elapsed", res.Elapsed).Msg("✅ Processing complete!")
	return res, nil
}

func (p *Pipeline) cleanup(tempAudio string) {
	if tempAudio == "" {
		return
	}
	if err := os.Remove(tempAudio); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.log.Warn().Err(err).Str("path", tempAudio).Msg("⚠️ Could not remove temporary audio")
		return
	}
	p.log.Info().Str("path", tempAudio).Msg("🧹 Removed temporary audio")
}
