package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/PetrosWatts/regdeadline/internal/config"
	"github.com/PetrosWatts/regdeadline/internal/core"
	"github.com/PetrosWatts/regdeadline/internal/utils"
)

// Classifier asks a Gemini model whether a reply is an opt-out request
type Classifier struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	cfg           config.GeminiConfig
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewClassifier creates a new Gemini reply classifier
func NewClassifier(ctx context.Context, cfg config.GeminiConfig, logger *zap.Logger, textProcessor *utils.TextProcessor) (*Classifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini.api_key: %w", core.ErrMissingCredentials)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.ModelName)
	model.SetTemperature(cfg.Temperature)
	model.SetTopP(cfg.TopP)
	model.SetMaxOutputTokens(int32(cfg.MaxTokens))
	model.ResponseMIMEType = "application/json"

	return &Classifier{
		client:        client,
		model:         model,
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}, nil
}

// Close closes the Gemini client
func (c *Classifier) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsOptOut implements core.ReplyClassifier
func (c *Classifier) IsOptOut(ctx context.Context, email *core.InboundEmail) (bool, error) {
	body := c.textProcessor.ProcessText(email.Body, c.cfg.MaxBodySize)
	prompt := utils.FormatOptOutPrompt(email.From, email.Subject, body)

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return false, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	verdict, err := parseVerdict(resp)
	if err != nil {
		return false, err
	}

	c.logger.Debug("Gemini classified reply",
		zap.String("model", c.cfg.ModelName),
		zap.Bool("unsubscribe", verdict.Unsubscribe),
		zap.Float64("confidence", verdict.Confidence))
	return verdict.Unsubscribe, nil
}

// parseVerdict reads the opt-out verdict from the first candidate
func parseVerdict(resp *genai.GenerateContentResponse) (*utils.OptOutVerdict, error) {
	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("empty response from Gemini")
	}
	return utils.ParseOptOutVerdict(text)
}

// responseText joins the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}
