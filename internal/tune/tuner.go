// Package tune corrects transcripts through an OpenAI-compatible
// chat-completion endpoint such as OpenRouter.
package tune

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// Defaults for Config fields left zero.
const (
	DefaultBaseURL     = "https://openrouter.ai/api/v1"
	DefaultModel       = "tngtech/deepseek-r1t2-chimera:free"
	DefaultTemperature = 0.3
	DefaultTimeout     = 30 * time.Second
	DefaultReferer     = "https://localhost"
	DefaultTitle       = "Audio Corrector"
)

var errNoChoices = errors.New("response has no choices")

// Config describes the endpoint and request parameters.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Temperature  float32
	Timeout      time.Duration // per attempt
	Referer      string
	Title        string
	Instructions Instructions
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Referer == "" {
		c.Referer = DefaultReferer
	}
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if c.Instructions.Default == "" && len(c.Instructions.ByLanguage) == 0 {
		c.Instructions = DefaultInstructions()
	}
}

// Option configures a Tuner.
type Option func(*Tuner)

// WithTransport sets the transport used for the verified attempt. The
// insecure retry clones it with certificate checks turned off.
func WithTransport(t *http.Transport) Option {
	return func(tu *Tuner) { tu.transport = t }
}

// Tuner sends transcripts for correction. A Tuner never fails the caller:
// on any error it hands back the text it was given.
type Tuner struct {
	cfg       Config
	log       zerolog.Logger
	transport *http.Transport

	secure   *openai.Client
	insecure *openai.Client
}

// New builds a Tuner from cfg, filling zero fields with the package defaults.
func New(cfg Config, log zerolog.Logger, opts ...Option) *Tuner {
	cfg.applyDefaults()
	t := &Tuner{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(t)
	}
	if t.transport == nil {
		t.transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	insecure := t.transport.Clone()
	if insecure.TLSClientConfig == nil {
		insecure.TLSClientConfig = &tls.Config{}
	}
	insecure.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec // retry path only, after a certificate failure

	t.secure = t.client(t.transport)
	t.insecure = t.client(insecure)
	return t
}

func (t *Tuner) client(rt http.RoundTripper) *openai.Client {
	cc := openai.DefaultConfig(t.cfg.APIKey)
	cc.BaseURL = t.cfg.BaseURL
	cc.HTTPClient = &http.Client{
		Timeout: t.cfg.Timeout,
		Transport: &headerTransport{
			base: rt,
			headers: map[string]string{
				"HTTP-Referer": t.cfg.Referer,
				"X-Title":      t.cfg.Title,
			},
		},
	}
	return openai.NewClientWithConfig(cc)
}

// Tune returns text corrected for language. A certificate failure on the
// first attempt earns exactly one retry without verification; any other
// failure returns text unchanged.
func (t *Tuner) Tune(ctx context.Context, text, language string) string {
	t.log.Info().Str("language", language).Msgf("✨ Tuning %s text via OpenRouter...", language)

	req := t.request(text, language)
	out, err := t.complete(ctx, t.secure, req)
	if err == nil {
		return out
	}

	if !IsTLSError(err) {
		t.log.Error().Err(err).Msg("❌ OpenRouter error")
		return text
	}

	t.log.Warn().Err(err).Msg("⚠️ SSL error detected. Retrying with SSL verification disabled...")
	out, err = t.complete(ctx, t.insecure, req)
	if err != nil {
		t.log.Error().Err(err).Msg("❌ OpenRouter failed after SSL retry")
		return text
	}
	return out
}

func (t *Tuner) request(text, language string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: t.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: t.cfg.Instructions.For(language)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: t.cfg.Temperature,
	}
}

func (t *Tuner) complete(ctx context.Context, c *openai.Client, req openai.ChatCompletionRequest) (string, error) {
	start := time.Now()
	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("tune: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("tune: chat completion: %w", errNoChoices)
	}
	t.log.Debug().
		Str("model", resp.Model).
		Int("tokens", resp.Usage.TotalTokens).
		Dur("elapsed", time.Since(start)).
		Msg("completion received")
	return resp.Choices[0].Message.Content, nil
}

// IsTLSError reports whether err stems from certificate validation or the
// TLS handshake.
func IsTLSError(err error) bool {
	if err == nil {
		return false
	}
	var (
		verifyErr    *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
		rootsErr     x509.SystemRootsError
		headerErr    tls.RecordHeaderError
		alertErr     tls.AlertError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr) ||
		errors.As(err, &rootsErr) ||
		errors.As(err, &headerErr) ||
		errors.As(err, &alertErr)
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (h *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range h.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return h.base.RoundTrip(req)
}
