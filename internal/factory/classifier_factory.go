package factory

import (
	"context"
	"fmt"

	"github.com/PetrosWatts/regdeadline/internal/adapters/bedrock"
	"github.com/PetrosWatts/regdeadline/internal/adapters/gemini"
	"github.com/PetrosWatts/regdeadline/internal/adapters/openai"
	"github.com/PetrosWatts/regdeadline/internal/config"
	"github.com/PetrosWatts/regdeadline/internal/core"
	"github.com/PetrosWatts/regdeadline/internal/utils"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"
)

// ClassifierFactory creates reply classifiers
type ClassifierFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewClassifierFactory creates a new classifier factory
func NewClassifierFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *ClassifierFactory {
	return &ClassifierFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateKeywordClassifier creates the keyword classifier used as the fallback
func (f *ClassifierFactory) CreateKeywordClassifier() *core.KeywordClassifier {
	return core.NewKeywordClassifier(f.cfg.GetClassifier().Keywords)
}

// CreateClassifier creates the reply classifier selected by classifier.provider
func (f *ClassifierFactory) CreateClassifier() (core.ReplyClassifier, error) {
	provider := f.cfg.GetClassifier().Provider

	switch provider {
	case "", "keyword":
		return f.CreateKeywordClassifier(), nil
	case "bedrock":
		return f.createBedrock()
	case "gemini":
		return gemini.NewClassifier(context.Background(), f.cfg.GetGemini(), f.logger, f.textProcessor)
	case "openai":
		return openai.NewClassifier(f.cfg.GetOpenAI(), f.cfg.GetString("openai.base_url"), f.logger, f.textProcessor)
	default:
		return nil, fmt.Errorf("unsupported classifier provider: %s", provider)
	}
}

func (f *ClassifierFactory) createBedrock() (core.ReplyClassifier, error) {
	bedrockCfg := f.cfg.GetBedrock()

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(bedrockCfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return bedrock.NewClassifier(
		bedrockruntime.NewFromConfig(awsCfg),
		bedrockCfg,
		f.logger,
		f.textProcessor,
	), nil
}
