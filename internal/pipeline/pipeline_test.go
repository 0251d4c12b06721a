package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/chaz8081/media2text/internal/media"
	"github.com/chaz8081/media2text/internal/transcribe"
)

type fakeExtractor struct {
	calls []string
	err   error
}

func (f *fakeExtractor) ExtractAudio(_ context.Context, videoPath, outPath string) error {
	f.calls = append(f.calls, videoPath+"->"+outPath)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outPath, []byte("RIFF"), 0644)
}

type fakeSpeech struct {
	lang      string
	text      string
	detectErr error
	err       error
	paths     []string
	langs     []string
}

func (f *fakeSpeech) DetectLanguage(_ context.Context, audioPath string) (string, error) {
	f.paths = append(f.paths, audioPath)
	return f.lang, f.detectErr
}

func (f *fakeSpeech) Transcribe(_ context.Context, audioPath, language string) (*transcribe.Transcript, error) {
	f.paths = append(f.paths, audioPath)
	f.langs = append(f.langs, language)
	if f.err != nil {
		return nil, f.err
	}
	return &transcribe.Transcript{Text: f.text, Language: language, ModelSize: "base"}, nil
}

type fakeTuner struct {
	fn    func(text, language string) string
	calls int
}

func (f *fakeTuner) Tune(_ context.Context, text, language string) string {
	f.calls++
	if f.fn == nil {
		return text
	}
	return f.fn(text, language)
}

type fixture struct {
	dir       string
	opts      Options
	extractor *fakeExtractor
	speech    *fakeSpeech
	tuner     *fakeTuner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	return &fixture{
		dir: dir,
		opts: Options{
			Dir:       filepath.Join(dir, "out"),
			RawFile:   "transcript_raw.txt",
			TunedFile: "transcript_tuned.txt",
			TempAudio: filepath.Join(dir, "temp_audio.wav"),
		},
		extractor: &fakeExtractor{},
		speech:    &fakeSpeech{lang: "en", text: "hello world how are you"},
		tuner:     &fakeTuner{},
	}
}

func (f *fixture) input(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte("media"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (f *fixture) run(input string) (*Result, error) {
	p := New(f.extractor, f.speech, f.tuner, f.opts, zerolog.Nop())
	return p.Run(context.Background(), input)
}

func (f *fixture) rawPath() string   { return filepath.Join(f.opts.Dir, f.opts.RawFile) }
func (f *fixture) tunedPath() string { return filepath.Join(f.opts.Dir, f.opts.TunedFile) }

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("%s should not exist, stat err = %v", path, err)
	}
}

func TestRunAudio(t *testing.T) {
	f := newFixture(t)
	f.tuner.fn = func(string, string) string { return "Hello world, how are you?" }
	input := f.input(t, "clip.MP3")

	res, err := f.run(input)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Kind != media.Audio || res.Language != "en" || res.ModelSize != "base" {
		t.Errorf("Result = %+v", res)
	}
	if res.TempAudio != "" {
		t.Errorf("TempAudio = %q, want none for audio input", res.TempAudio)
	}
	if len(f.extractor.calls) != 0 {
		t.Errorf("extractor called for audio input: %v", f.extractor.calls)
	}
	for _, p := range f.speech.paths {
		if p != input {
			t.Errorf("speech saw %q, want the input itself", p)
		}
	}
	assertMissing(t, f.opts.TempAudio)

	if got := readFile(t, f.rawPath()); got != "hello world how are you" {
		t.Errorf("raw file = %q", got)
	}
	if got := readFile(t, f.tunedPath()); got != "Hello world, how are you?" {
		t.Errorf("tuned file = %q", got)
	}
	if res.Edits.Edits() != 0 {
		t.Errorf("Edits = %+v, want none for punctuation-only changes", res.Edits)
	}
}

func TestRunVideoRemovesTempAudio(t *testing.T) {
	f := newFixture(t)
	input := f.input(t, "talk.mkv")

	res, err := f.run(input)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Kind != media.Video || res.TempAudio != f.opts.TempAudio {
		t.Errorf("Result = %+v", res)
	}
	if len(f.extractor.calls) != 1 || f.extractor.calls[0] != input+"->"+f.opts.TempAudio {
		t.Errorf("extractor calls = %v", f.extractor.calls)
	}
	if len(f.speech.paths) != 2 || f.speech.paths[0] != f.opts.TempAudio || f.speech.paths[1] != f.opts.TempAudio {
		t.Errorf("speech paths = %v, want the extracted audio", f.speech.paths)
	}
	assertMissing(t, f.opts.TempAudio)
	if _, err := os.Stat(input); err != nil {
		t.Errorf("input must be left in place: %v", err)
	}
}

func TestRunSavesRawBeforeTuning(t *testing.T) {
	f := newFixture(t)
	var rawAtTune string
	f.tuner.fn = func(text, _ string) string {
		data, _ := os.ReadFile(f.rawPath())
		rawAtTune = string(data)
		return strings.ToUpper(text)
	}

	if _, err := f.run(f.input(t, "a.wav")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rawAtTune != "hello world how are you" {
		t.Errorf("raw file at tune time = %q", rawAtTune)
	}
}

func TestRunTunerFallbackKeepsRawText(t *testing.T) {
	f := newFixture(t)
	f.speech.lang = "fa"
	f.speech.text = "سلام دنیا"

	res, err := f.run(f.input(t, "a.ogg"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.tuner.calls != 1 {
		t.Errorf("tuner calls = %d, want 1", f.tuner.calls)
	}
	if got := readFile(t, f.tunedPath()); got != "سلام دنیا" {
		t.Errorf("tuned file = %q, want raw text", got)
	}
	if res.Edits.Rate != 0 {
		t.Errorf("Edits.Rate = %v, want 0", res.Edits.Rate)
	}
}

func TestRunOverwritesOutputs(t *testing.T) {
	f := newFixture(t)
	if err := os.MkdirAll(f.opts.Dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.rawPath(), []byte(strings.Repeat("old ", 100)), 0644); err != nil {
		t.Fatal(err)
	}
	f.speech.text = "new"

	if _, err := f.run(f.input(t, "a.m4a")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := readFile(t, f.rawPath()); got != "new" {
		t.Errorf("raw file = %q, want overwritten", got)
	}
}

func TestRunMissingInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(filepath.Join(f.dir, "nope.mp4"))
	if !errors.Is(err, ErrInputNotFound) {
		t.Fatalf("Run() error = %v, want ErrInputNotFound", err)
	}
	if len(f.extractor.calls)+len(f.speech.paths)+f.tuner.calls != 0 {
		t.Error("no stage should run for a missing input")
	}
	assertMissing(t, f.rawPath())
	assertMissing(t, f.tunedPath())
}

func TestRunUnsupportedInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(f.input(t, "notes.txt"))
	if !errors.Is(err, ErrUnsupportedInput) {
		t.Fatalf("Run() error = %v, want ErrUnsupportedInput", err)
	}
	var stageErr *Error
	if errors.As(err, &stageErr) {
		t.Errorf("unsupported input should not be a stage error, got stage %q", stageErr.Stage)
	}
	if len(f.speech.paths) != 0 {
		t.Error("speech should not run for unsupported input")
	}
	assertMissing(t, f.rawPath())
	assertMissing(t, f.tunedPath())
	assertMissing(t, f.opts.TempAudio)
}

func TestRunDirectoryInput(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(f.dir, "folder.mp4")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}

	_, err := f.run(dir)
	var stageErr *Error
	if !errors.As(err, &stageErr) || stageErr.Stage != StageInput {
		t.Fatalf("Run() error = %v, want input stage error", err)
	}
}

func TestRunStageErrors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		input     string
		setup     func(f *fixture)
		wantStage string
		tempLeft  bool
	}{
		{
			name:      "extract",
			input:     "a.mp4",
			setup:     func(f *fixture) { f.extractor.err = boom },
			wantStage: StageExtract,
		},
		{
			name:      "detect",
			input:     "a.mov",
			setup:     func(f *fixture) { f.speech.detectErr = boom },
			wantStage: StageDetect,
			tempLeft:  true,
		},
		{
			name:      "transcribe",
			input:     "a.aac",
			setup:     func(f *fixture) { f.speech.err = boom },
			wantStage: StageTranscribe,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			_, err := f.run(f.input(t, tt.input))
			var stageErr *Error
			if !errors.As(err, &stageErr) {
				t.Fatalf("Run() error = %v, want *Error", err)
			}
			if stageErr.Stage != tt.wantStage {
				t.Errorf("Stage = %q, want %q", stageErr.Stage, tt.wantStage)
			}
			if !errors.Is(err, boom) {
				t.Errorf("error should wrap the cause: %v", err)
			}
			if f.tuner.calls != 0 {
				t.Error("tuner should not run after a fatal stage")
			}
			assertMissing(t, f.rawPath())
			assertMissing(t, f.tunedPath())

			_, statErr := os.Stat(f.opts.TempAudio)
			if tt.tempLeft && statErr != nil {
				t.Errorf("temp audio should stay after a failed run: %v", statErr)
			}
		})
	}
}

func TestRunSaveError(t *testing.T) {
	f := newFixture(t)
	blocker := filepath.Join(f.dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	f.opts.Dir = filepath.Join(blocker, "out")

	_, err := f.run(f.input(t, "a.wav"))
	var stageErr *Error
	if !errors.As(err, &stageErr) || stageErr.Stage != StageSave {
		t.Fatalf("Run() error = %v, want save stage error", err)
	}
	if f.tuner.calls != 0 {
		t.Error("tuner should not run when the raw transcript cannot be saved")
	}
}

func TestNewFillsDefaults(t *testing.T) {
	p := New(nil, nil, nil, Options{}, zerolog.Nop())
	if p.opts != DefaultOptions() {
		t.Errorf("opts = %+v, want defaults", p.opts)
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Stage: StageDetect, Err: errors.New("model crashed")}
	if got := err.Error(); got != "pipeline: detect: model crashed" {
		t.Errorf("Error() = %q", got)
	}
}

// The pipeline driven by the real transcription service, with fake models.
type stubModel struct{ lang, text string }

func (m *stubModel) DetectLanguage([]float32) (string, error)     { return m.lang, nil }
func (m *stubModel) Transcribe([]float32, string) (string, error) { return m.text, nil }
func (m *stubModel) Close() error                                 { return nil }

type stubLoader map[string]*stubModel

func (l stubLoader) Load(_ context.Context, size string) (transcribe.Model, error) {
	m, ok := l[size]
	if !ok {
		return nil, errors.New("no model " + size)
	}
	return m, nil
}

type stubSource struct{}

func (stubSource) Load(context.Context, string) ([]float32, error) {
	return make([]float32, 16000), nil
}

func TestRunWithTranscribeService(t *testing.T) {
	f := newFixture(t)
	loader := stubLoader{
		"base":   {lang: "fa", text: "wrong model"},
		"medium": {text: "متن فارسی"},
	}
	svc := transcribe.NewService(loader, stubSource{}, transcribe.DefaultModelSizes(), zerolog.Nop())
	defer svc.Close()

	p := New(f.extractor, svc, f.tuner, f.opts, zerolog.Nop())
	res, err := p.Run(context.Background(), f.input(t, "lecture.flv"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Language != "fa" || res.ModelSize != "medium" {
		t.Errorf("Result = %+v", res)
	}
	if got := readFile(t, f.rawPath()); got != "متن فارسی" {
		t.Errorf("raw file = %q", got)
	}
}
