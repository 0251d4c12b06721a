package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	Output     OutputConfig     `yaml:"output"`
	Models     ModelsConfig     `yaml:"models"`
	LogLevel   string           `yaml:"log_level" env:"MEDIA2TEXT_LOG_LEVEL"`
}

// OpenRouterConfig holds settings for the remote text-correction endpoint.
type OpenRouterConfig struct {
	// APIKey is never read from YAML; it comes from the environment or .env only.
	APIKey      string        `yaml:"-" env:"OPENROUTER_API_KEY"`
	BaseURL     string        `yaml:"base_url" env:"OPENROUTER_BASE_URL"`
	Model       string        `yaml:"model" env:"OPENROUTER_MODEL"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	Referer     string        `yaml:"referer"`
	Title       string        `yaml:"title"`
}

// OutputConfig holds output and temporary file names.
type OutputConfig struct {
	Dir       string `yaml:"dir"`
	RawFile   string `yaml:"raw_file"`
	TunedFile string `yaml:"tuned_file"`
	TempAudio string `yaml:"temp_audio"`
}

// ModelsConfig holds local whisper model settings.
type ModelsConfig struct {
	Dir          string            `yaml:"dir" env:"MEDIA2TEXT_MODELS_DIR"`
	AutoDownload bool              `yaml:"auto_download"`
	Detect       string            `yaml:"detect"`
	Default      string            `yaml:"default"`
	ByLanguage   map[string]string `yaml:"by_language"`
	Threads      uint              `yaml:"threads"`
	FP16         bool              `yaml:"fp16"` // must stay false: CPU inference only
}

// validSizes lists the ggml model sizes published for whisper.cpp.
var validSizes = map[string]bool{
	"tiny": true, "tiny.en": true,
	"base": true, "base.en": true,
	"small": true, "small.en": true,
	"medium": true, "medium.en": true,
	"large-v1": true, "large-v2": true, "large-v3": true,
}

// ValidModelSize reports whether size names a known whisper.cpp ggml model.
func ValidModelSize(size string) bool {
	return validSizes[size]
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "media2text")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultModelsDir returns the directory whisper models are stored in.
func DefaultModelsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "models")
	}
	return filepath.Join(home, ".local", "share", "media2text", "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		OpenRouter: OpenRouterConfig{
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "tngtech/deepseek-r1t2-chimera:free",
			Temperature: 0.3,
			Timeout:     30 * time.Second,
			Referer:     "https://localhost",
			Title:       "Audio Corrector",
		},
		Output: OutputConfig{
			Dir:       ".",
			RawFile:   "transcript_raw.txt",
			TunedFile: "transcript_tuned.txt",
			TempAudio: "temp_audio.wav",
		},
		Models: ModelsConfig{
			Dir:          DefaultModelsDir(),
			AutoDownload: true,
			Detect:       "base",
			Default:      "base",
			ByLanguage:   map[string]string{"fa": "medium"},
			Threads:      uint(runtime.NumCPU()),
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in models.dir is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Models.Dir = expandTilde(cfg.Models.Dir)

	return cfg, nil
}

// LoadEnv overlays environment variables onto cfg. The dotenv file is loaded
// first when present; variables already set in the process win over it.
func (c *Config) LoadEnv(dotenvPath string) error {
	if dotenvPath != "" {
		if _, err := os.Stat(dotenvPath); err == nil {
			if err := godotenv.Load(dotenvPath); err != nil {
				return fmt.Errorf("loading %s: %w", dotenvPath, err)
			}
		}
	}

	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}

	c.Models.Dir = expandTilde(c.Models.Dir)
	return nil
}

// ErrMissingAPIKey is returned by Validate when no API credential is configured.
var ErrMissingAPIKey = errors.New("OpenRouter API key not found, add OPENROUTER_API_KEY to .env")

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OpenRouter.APIKey) == "" {
		return ErrMissingAPIKey
	}

	if c.OpenRouter.BaseURL == "" {
		return fmt.Errorf("openrouter.base_url must not be empty")
	}

	if c.OpenRouter.Model == "" {
		return fmt.Errorf("openrouter.model must not be empty")
	}

	if c.OpenRouter.Temperature < 0 || c.OpenRouter.Temperature > 2 {
		return fmt.Errorf("openrouter.temperature must be within [0, 2], got %v", c.OpenRouter.Temperature)
	}

	if c.OpenRouter.Timeout <= 0 {
		return fmt.Errorf("openrouter.timeout must be > 0")
	}

	if c.Output.RawFile == "" || c.Output.TunedFile == "" || c.Output.TempAudio == "" {
		return fmt.Errorf("output.raw_file, output.tuned_file and output.temp_audio must not be empty")
	}

	if c.Output.RawFile == c.Output.TunedFile {
		return fmt.Errorf("output.raw_file and output.tuned_file must differ, both are %q", c.Output.RawFile)
	}

	if c.Models.Dir == "" {
		return fmt.Errorf("models.dir must not be empty")
	}

	for _, size := range []string{c.Models.Detect, c.Models.Default} {
		if !ValidModelSize(size) {
			return fmt.Errorf("unknown model size %q", size)
		}
	}
	for lang, size := range c.Models.ByLanguage {
		if !ValidModelSize(size) {
			return fmt.Errorf("models.by_language[%s]: unknown model size %q", lang, size)
		}
	}

	if c.Models.FP16 {
		return fmt.Errorf("models.fp16 is not supported: inference runs on CPU in full precision")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a config log level to a zerolog level, defaulting to info.
func ParseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
