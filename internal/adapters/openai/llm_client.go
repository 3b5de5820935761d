package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/PetrosWatts/regdeadline/internal/config"
	"github.com/PetrosWatts/regdeadline/internal/core"
	"github.com/PetrosWatts/regdeadline/internal/utils"
)

// Classifier asks an OpenAI chat model whether a reply is an opt-out request
type Classifier struct {
	client        *openai.Client
	cfg           config.OpenAIConfig
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewClassifier creates a new OpenAI reply classifier. baseURL overrides the
// API endpoint when set.
func NewClassifier(cfg config.OpenAIConfig, baseURL string, logger *zap.Logger, textProcessor *utils.TextProcessor) (*Classifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai.api_key: %w", core.ErrMissingCredentials)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	return &Classifier{
		client:        openai.NewClientWithConfig(clientCfg),
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}, nil
}

// IsOptOut implements core.ReplyClassifier
func (c *Classifier) IsOptOut(ctx context.Context, email *core.InboundEmail) (bool, error) {
	body := c.textProcessor.ProcessText(email.Body, c.cfg.MaxBodySize)

	req := openai.ChatCompletionRequest{
		Model: c.cfg.ModelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You classify email replies. Respond only with JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: utils.FormatOptOutPrompt(email.From, email.Subject, body),
			},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return false, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return false, fmt.Errorf("empty response from OpenAI")
	}

	verdict, err := utils.ParseOptOutVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return false, err
	}

	c.logger.Debug("OpenAI classified reply",
		zap.String("model", c.cfg.ModelName),
		zap.String("completion_id", resp.ID),
		zap.Bool("unsubscribe", verdict.Unsubscribe),
		zap.Float64("confidence", verdict.Confidence))
	return verdict.Unsubscribe, nil
}
