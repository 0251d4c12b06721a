package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
)

// save writes text to path as-is, replacing any previous content.
func (p *Pipeline) save(path, text string) error {
	if err := writeText(path, text); err != nil {
		p.log.Error().Err(err).Str("path", path).Msg("❌ Failed to save transcript")
		return &Error{Stage: StageSave, Err: err}
	}
	p.log.Info().Str("path", path).Msgf("💾 Saved: %s", filepath.Base(path))
	return nil
}

func writeText(path, text string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
