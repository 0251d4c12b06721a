package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/chaz8081/media2text/internal/audio"
	"github.com/chaz8081/media2text/internal/config"
	"github.com/chaz8081/media2text/internal/media"
	"github.com/chaz8081/media2text/internal/models"
	"github.com/chaz8081/media2text/internal/pipeline"
	"github.com/chaz8081/media2text/internal/transcribe"
	"github.com/chaz8081/media2text/internal/tune"
	"github.com/chaz8081/media2text/internal/whispercpp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	err := cmd.ExecuteContext(ctx)
	code := exitCode(err)
	if code != 0 && !errors.Is(err, errReported) && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	stop()
	os.Exit(code)
}

// errReported marks failures that were already logged.
var errReported = errors.New("reported")

// exitCode maps a run error to the process exit status. Missing and
// unsupported inputs are not failures.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, pipeline.ErrInputNotFound), errors.Is(err, pipeline.ErrUnsupportedInput):
		return 0
	default:
		return 1
	}
}

func run(ctx context.Context, input string) error {
	log := newLogger(os.Stderr, "info")

	cfg, err := loadConfig(os.Getenv("MEDIA2TEXT_CONFIG"), log)
	if err != nil {
		log.Error().Err(err).Msg("❌ Config error")
		return errors.Join(errReported, err)
	}
	if err := cfg.LoadEnv(".env"); err != nil {
		log.Error().Err(err).Msg("❌ Config error")
		return errors.Join(errReported, err)
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("❌ Config error")
		return errors.Join(errReported, err)
	}
	log = log.Level(config.ParseLogLevel(cfg.LogLevel))
	logConfig(log, cfg)

	store := models.NewStore(cfg.Models.Dir, cfg.Models.AutoDownload)
	loader, err := whispercpp.NewLoader(store, whispercpp.Options{
		Threads: cfg.Models.Threads,
		FP16:    cfg.Models.FP16,
	})
	if err != nil {
		log.Error().Err(err).Msg("❌ Model setup failed")
		return errors.Join(errReported, err)
	}

	speech := transcribe.NewService(loader, audio.NewLoader(), transcribe.ModelSizes{
		Detect:     cfg.Models.Detect,
		Default:    cfg.Models.Default,
		ByLanguage: cfg.Models.ByLanguage,
	}, log)
	defer func() {
		if err := speech.Close(); err != nil {
			log.Warn().Err(err).Msg("closing models")
		}
	}()

	tuner := tune.New(tune.Config{
		APIKey:       cfg.OpenRouter.APIKey,
		BaseURL:      cfg.OpenRouter.BaseURL,
		Model:        cfg.OpenRouter.Model,
		Temperature:  cfg.OpenRouter.Temperature,
		Timeout:      cfg.OpenRouter.Timeout,
		Referer:      cfg.OpenRouter.Referer,
		Title:        cfg.OpenRouter.Title,
		Instructions: tune.DefaultInstructions(),
	}, log)

	p := pipeline.New(media.NewExtractor(), speech, tuner, pipeline.Options{
		Dir:       cfg.Output.Dir,
		RawFile:   cfg.Output.RawFile,
		TunedFile: cfg.Output.TunedFile,
		TempAudio: cfg.Output.TempAudio,
	}, log)

	_, err = p.Run(ctx, input)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pipeline.ErrInputNotFound), errors.Is(err, pipeline.ErrUnsupportedInput):
		return err
	default:
		var stageErr *pipeline.Error
		if errors.As(err, &stageErr) {
			log.Error().Str("stage", stageErr.Stage).Err(stageErr.Err).Msg("❌ Processing failed")
		} else {
			log.Error().Err(err).Msg("❌ Processing failed")
		}
		return errors.Join(errReported, err)
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string, log zerolog.Logger) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Debug().Str("path", defaultPath).Msg("config loaded")
		return cfg, nil
	}

	log.Debug().Msg("no config file found, using defaults")
	return config.Default(), nil
}

// logConfig records the effective settings at debug level.
func logConfig(log zerolog.Logger, cfg *config.Config) {
	log.Debug().
		Str("models_dir", cfg.Models.Dir).
		Str("detect_model", cfg.Models.Detect).
		Str("default_model", cfg.Models.Default).
		Interface("by_language", cfg.Models.ByLanguage).
		Uint("threads", cfg.Models.Threads).
		Str("remote_model", cfg.OpenRouter.Model).
		Str("output_dir", cfg.Output.Dir).
		Msg("configuration")
}
