// Package media classifies input files and extracts audio tracks from video
// containers with ffmpeg.
package media

import (
	"maps"
	"path/filepath"
	"slices"
	"strings"
)

// Kind is the route an input file takes through the pipeline.
type Kind int

const (
	Unsupported Kind = iota
	Video
	Audio
)

func (k Kind) String() string {
	switch k {
	case Video:
		return "video"
	case Audio:
		return "audio"
	default:
		return "unsupported"
	}
}

var (
	videoExts = map[string]bool{".mp4": true, ".mkv": true, ".mov": true, ".avi": true, ".flv": true}
	audioExts = map[string]bool{".wav": true, ".mp3": true, ".m4a": true, ".aac": true, ".ogg": true}
)

// Classify routes path by its lowercased extension.
func Classify(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case videoExts[ext]:
		return Video
	case audioExts[ext]:
		return Audio
	default:
		return Unsupported
	}
}

// VideoExtensions returns the supported video extensions, sorted.
func VideoExtensions() []string { return slices.Sorted(maps.Keys(videoExts)) }

// AudioExtensions returns the supported audio extensions, sorted.
func AudioExtensions() []string { return slices.Sorted(maps.Keys(audioExts)) }
