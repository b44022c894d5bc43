package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/omni/question-oracle/logging"
)

// ErrGeneration is returned when no usable answer was produced for a question.
var ErrGeneration = errors.New("answer generation failed")

const (
	DefaultModel   = openai.GPT3Dot5Turbo
	DefaultTimeout = time.Minute
)

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAIProvider answers questions with a single-message chat completion.
type OpenAIProvider struct {
	logger  logging.Logger
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAIProvider(logger logging.Logger, cfg Config) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &OpenAIProvider{
		logger:  logger.WithField("model", cfg.Model),
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

// Answer returns the trimmed content of the first completion choice.
func (p *OpenAIProvider) Answer(ctx context.Context, question string) (string, error) {
	defer ObserveDuration(p.model)()
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: question,
			},
		},
	})
	if err != nil {
		ObserveResult(p.model, "error")
		return "", fmt.Errorf("can't create chat completion: %v: %w", err, ErrGeneration)
	}
	if len(res.Choices) == 0 {
		ObserveResult(p.model, "empty")
		return "", fmt.Errorf("completion %s has no choices: %w", res.ID, ErrGeneration)
	}
	answer := strings.TrimSpace(res.Choices[0].Message.Content)
	if answer == "" {
		ObserveResult(p.model, "empty")
		return "", fmt.Errorf("completion %s has empty content: %w", res.ID, ErrGeneration)
	}
	ObserveResult(p.model, "ok")
	p.logger.WithFields(logrus.Fields{
		"completion_id":     res.ID,
		"completion_tokens": res.Usage.CompletionTokens,
		"prompt_tokens":     res.Usage.PromptTokens,
	}).Debug("generated answer")
	return answer, nil
}
