package scorer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// ClientOption customises a scorer built around an existing client
type ClientOption func(*scorer)

// Internal scorer implementation
type scorer struct {
	client  OpenAIClient
	config  Config
	prompt  string
	metrics *MetricsRecorder
}

// NewScorer creates a new OpenAI-backed sentiment scorer
func NewScorer(cfg Config) (Scorer, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	prompt := sentimentPrompt
	if cfg.PromptText != "" {
		prompt = cfg.PromptText
	} else if sentimentPromptError != nil {
		return nil, sentimentPromptError
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &scorer{
		client:  openai.NewClientWithConfig(clientCfg),
		config:  cfg,
		prompt:  prompt,
		metrics: NewMetricsRecorder(cfg.EnableMetrics),
	}, nil
}

// WithPrompt overrides the system prompt
func WithPrompt(prompt string) ClientOption {
	return func(s *scorer) {
		s.prompt = prompt
	}
}

// WithConfig replaces the default config of a client-backed scorer
func WithConfig(cfg Config) ClientOption {
	return func(s *scorer) {
		s.config = cfg
		s.metrics = NewMetricsRecorder(cfg.EnableMetrics)
	}
}

// NewWithClient creates a new scorer with a custom OpenAI client and options
func NewWithClient(client OpenAIClient, opts ...ClientOption) Scorer {
	s := &scorer{
		client: client,
		config: Config{
			Model:      openai.GPT4oMini,
			MaxLength:  DefaultMaxLength,
			Truncation: true,
		},
		prompt:  sentimentPrompt,
		metrics: NewMetricsRecorder(false),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScoreTexts scores every text with one chat completion call
func (s *scorer) ScoreTexts(ctx context.Context, texts []string, opts ...ScoringOption) ([]Result, error) {
	if len(texts) == 0 {
		return []Result{}, nil
	}

	options := resolveOptions(append(s.config.scoringDefaults(), opts...)...)

	prepared, err := PrepareTexts(texts, options.maxLength, options.truncation)
	if err != nil {
		return nil, err
	}

	results, err := s.processBatch(ctx, prepared, options)
	if err != nil {
		return nil, err
	}

	slog.Info("Batch scoring completed",
		"texts_scored", len(results),
		"model", options.model)

	return results, nil
}

// GetHealth reports the static configuration of the backend
func (s *scorer) GetHealth(ctx context.Context) HealthStatus {
	return HealthStatus{
		Healthy: true,
		Status:  "ok",
		Details: map[string]interface{}{
			"model":      s.config.Model,
			"max_length": s.config.MaxLength,
			"truncation": s.config.Truncation,
		},
	}
}
