package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/chaz8081/media2text/internal/media"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media2text <video_or_audio_file>",
		Short: "Transcribe a video or audio file and correct the transcript",
		Long: "media2text extracts speech from a media file, detects its language, " +
			"transcribes it with a local whisper model and corrects the text through OpenRouter.\n\n" +
			"Video: " + strings.Join(media.VideoExtensions(), " ") + "\n" +
			"Audio: " + strings.Join(media.AudioExtensions(), " "),
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Usage is for argument mistakes only.
			cmd.SilenceUsage = true
			return run(cmd.Context(), args[0])
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	return cmd
}
