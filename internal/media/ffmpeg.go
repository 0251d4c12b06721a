package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CommandResult is the captured outcome of one external command.
type CommandResult struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
}

// CommandRunner abstracts process execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

// Run executes one command and captures stdout, stderr and the exit code.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{
		Stdout: stdout.Bytes(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// CommandError reports a failed external command with the tail of its stderr.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited with %d", e.Command, e.ExitCode)
	if tail := stderrTail(e.Stderr, 3); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// stderrTail returns the last n non-empty lines of ffmpeg output, which is
// where it puts the actual failure reason after the banner and stream info.
func stderrTail(stderr string, n int) string {
	var lines []string
	for _, line := range strings.Split(stderr, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

// Extractor writes the audio track of a video container to a PCM WAV file.
type Extractor struct {
	ffmpegPath string
	runner     CommandRunner
	stat       func(name string) (os.FileInfo, error)
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithFFmpegPath overrides the ffmpeg binary.
func WithFFmpegPath(path string) Option {
	return func(e *Extractor) { e.ffmpegPath = path }
}

// WithCommandRunner sets the command runner.
func WithCommandRunner(r CommandRunner) Option {
	return func(e *Extractor) { e.runner = r }
}

// NewExtractor returns an Extractor backed by ffmpeg from PATH.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		ffmpegPath: "ffmpeg",
		runner:     ExecRunner{},
		stat:       os.Stat,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractAudio decodes videoPath and writes its audio track to outPath as
// mono 16 kHz signed 16-bit little-endian PCM. An existing outPath is overwritten.
func (e *Extractor) ExtractAudio(ctx context.Context, videoPath, outPath string) error {
	args := BuildExtractArgs(videoPath, outPath)
	res, err := e.runner.Run(ctx, e.ffmpegPath, args...)
	if err != nil {
		return fmt.Errorf("media: extract audio from %s: %w", videoPath, &CommandError{
			Command:  e.ffmpegPath,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      err,
		})
	}

	info, err := e.stat(outPath)
	if err != nil {
		return fmt.Errorf("media: ffmpeg completed but %s is missing: %w", outPath, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("media: ffmpeg wrote an empty file %s (no audio track?)", outPath)
	}
	return nil
}

// BuildExtractArgs builds ffmpeg args for mono 16 kHz pcm_s16le WAV output.
func BuildExtractArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}
