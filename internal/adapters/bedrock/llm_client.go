package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/PetrosWatts/regdeadline/internal/config"
	"github.com/PetrosWatts/regdeadline/internal/core"
	"github.com/PetrosWatts/regdeadline/internal/utils"
)

// InvokeModelAPI is the part of the Bedrock runtime client used here
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Classifier asks a Bedrock model whether a reply is an opt-out request
type Classifier struct {
	client        InvokeModelAPI
	cfg           config.BedrockConfig
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewClassifier creates a new Bedrock reply classifier
func NewClassifier(
	client InvokeModelAPI,
	cfg config.BedrockConfig,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *Classifier {
	return &Classifier{
		client:        client,
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// IsOptOut implements core.ReplyClassifier
func (c *Classifier) IsOptOut(ctx context.Context, email *core.InboundEmail) (bool, error) {
	body := c.textProcessor.ProcessText(email.Body, c.cfg.MaxBodySize)
	prompt := utils.FormatOptOutPrompt(email.From, email.Subject, body)

	payload, err := c.requestBody(prompt)
	if err != nil {
		return false, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.cfg.ModelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return false, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	text, err := c.responseText(resp.Body)
	if err != nil {
		return false, err
	}

	verdict, err := utils.ParseOptOutVerdict(text)
	if err != nil {
		return false, err
	}

	c.logger.Debug("Bedrock classified reply",
		zap.String("model", c.cfg.ModelID),
		zap.Bool("unsubscribe", verdict.Unsubscribe),
		zap.Float64("confidence", verdict.Confidence),
		zap.String("explanation", verdict.Explanation))
	return verdict.Unsubscribe, nil
}

func (c *Classifier) requestBody(prompt string) ([]byte, error) {
	switch {
	case c.isLegacyAnthropicModel():
		return json.Marshal(map[string]interface{}{
			"prompt":               "\n\nHuman: " + prompt + "\n\nAssistant:",
			"max_tokens_to_sample": c.cfg.MaxTokens,
			"temperature":          c.cfg.Temperature,
			"top_p":                c.cfg.TopP,
		})
	case c.isAnthropicModel():
		return json.Marshal(map[string]interface{}{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        c.cfg.MaxTokens,
			"temperature":       c.cfg.Temperature,
			"top_p":             c.cfg.TopP,
			"messages": []map[string]interface{}{
				{"role": "user", "content": prompt},
			},
		})
	case c.isAmazonTitanModel():
		return json.Marshal(map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": c.cfg.MaxTokens,
				"temperature":   c.cfg.Temperature,
				"topP":          c.cfg.TopP,
			},
		})
	default:
		return json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  c.cfg.MaxTokens,
			"temperature": c.cfg.Temperature,
			"top_p":       c.cfg.TopP,
		})
	}
}

func (c *Classifier) responseText(body []byte) (string, error) {
	switch {
	case c.isLegacyAnthropicModel():
		var resp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		return resp.Completion, nil
	case c.isAnthropicModel():
		var resp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		var b strings.Builder
		for _, part := range resp.Content {
			if part.Type == "text" {
				b.WriteString(part.Text)
			}
		}
		return b.String(), nil
	case c.isAmazonTitanModel():
		var resp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(resp.Results) == 0 {
			return "", fmt.Errorf("empty response from Titan model")
		}
		return resp.Results[0].OutputText, nil
	default:
		var resp struct {
			Output   string `json:"output"`
			Text     string `json:"text"`
			Response string `json:"response"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return string(body), nil
		}
		for _, s := range []string{resp.Output, resp.Text, resp.Response} {
			if s != "" {
				return s, nil
			}
		}
		return string(body), nil
	}
}

// isAnthropicModel also matches cross-region ids such as eu.anthropic.claude-...
func (c *Classifier) isAnthropicModel() bool {
	return strings.Contains(c.cfg.ModelID, "anthropic.claude")
}

// isLegacyAnthropicModel matches the Claude models that only speak the text completions API
func (c *Classifier) isLegacyAnthropicModel() bool {
	return strings.Contains(c.cfg.ModelID, "anthropic.claude-v2") ||
		strings.Contains(c.cfg.ModelID, "anthropic.claude-instant")
}

func (c *Classifier) isAmazonTitanModel() bool {
	return strings.HasPrefix(c.cfg.ModelID, "amazon.titan")
}
