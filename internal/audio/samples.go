// Package audio turns audio files into the mono 16kHz float32 samples whisper
// expects.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/chaz8081/media2text/internal/media"
)

// SampleRate is the rate whisper models are trained on.
const SampleRate = 16000

// Loader decodes audio files into normalized float32 samples.
type Loader struct {
	ffmpegPath string
	runner     media.CommandRunner
}

// Option configures a Loader.
type Option func(*Loader)

// WithFFmpegPath overrides the ffmpeg binary used for non-WAV inputs.
func WithFFmpegPath(path string) Option {
	return func(l *Loader) { l.ffmpegPath = path }
}

// WithCommandRunner sets the command runner used for ffmpeg decoding.
func WithCommandRunner(r media.CommandRunner) Option {
	return func(l *Loader) { l.runner = r }
}

// NewLoader returns a Loader that decodes 16kHz 16-bit WAV natively and hands
// everything else to ffmpeg.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		ffmpegPath: "ffmpeg",
		runner:     media.ExecRunner{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns mono 16kHz float32 samples in [-1.0, 1.0] for path.
// No temporary files are written.
func (l *Loader) Load(ctx context.Context, path string) ([]float32, error) {
	var (
		samples []float32
		err     error
	)
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		samples, err = decodeWAV(path)
		if errors.Is(err, errNeedsResample) {
			samples, err = l.decodeFFmpeg(ctx, path)
		}
	} else {
		samples, err = l.decodeFFmpeg(ctx, path)
	}
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("audio: %s contains no samples", path)
	}
	return samples, nil
}

var errNeedsResample = errors.New("audio: wav needs resampling")

// decodeWAV reads a 16kHz 16-bit PCM WAV with go-audio/wav, downmixing to mono.
// Other rates and depths return errNeedsResample.
func decodeWAV(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, errNeedsResample
	}
	if dec.SampleRate != SampleRate || dec.BitDepth != 16 || dec.WavAudioFormat != 1 || dec.NumChans == 0 {
		return nil, errNeedsResample
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("audio: rewind %s: %w", path, err)
	}
	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: decode WAV %s: %w", path, err)
	}
	return intBufferToMono(buf), nil
}

// intBufferToMono converts interleaved 16-bit samples to mono float32
// normalized to [-1.0, 1.0] by averaging channels.
func intBufferToMono(buf *audio.IntBuffer) []float32 {
	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 1 {
		channels = buf.Format.NumChannels
	}

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < channels; c++ {
			sum += buf.Data[i*channels+c]
		}
		samples[i] = float32(sum) / float32(channels) / 32768.0
	}
	return samples
}

// decodeFFmpeg pipes path through ffmpeg as raw mono 16kHz float32 on stdout.
func (l *Loader) decodeFFmpeg(ctx context.Context, path string) ([]float32, error) {
	args := BuildDecodeArgs(path)
	res, err := l.runner.Run(ctx, l.ffmpegPath, args...)
	if err != nil {
		return nil, fmt.Errorf("audio: decode %s: %w", path, &media.CommandError{
			Command:  l.ffmpegPath,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      err,
		})
	}
	return bytesToFloat32(res.Stdout, uint32(len(res.Stdout)/4)), nil
}

// BuildDecodeArgs builds ffmpeg args that write f32le mono 16kHz to stdout.
func BuildDecodeArgs(path string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-i", path,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "f32le",
		"-",
	}
}

// bytesToFloat32 converts raw bytes (little-endian float32) to a float32 slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}

// Duration returns the playback length of mono 16kHz samples in seconds.
func Duration(samples []float32) float64 {
	return float64(len(samples)) / SampleRate
}
