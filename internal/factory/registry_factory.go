package factory

import (
	"fmt"

	"github.com/PetrosWatts/regdeadline/internal/adapters/companieshouse"
	"github.com/PetrosWatts/regdeadline/internal/config"
	"github.com/PetrosWatts/regdeadline/internal/core"
	"github.com/PetrosWatts/regdeadline/internal/templates"
	"go.uber.org/zap"
)

// RegistryFactory creates the deadline source and the message renderer
type RegistryFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewRegistryFactory creates a new registry factory
func NewRegistryFactory(cfg *config.Config, logger *zap.Logger) *RegistryFactory {
	return &RegistryFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateDeadlineSource creates the Companies House client
func (f *RegistryFactory) CreateDeadlineSource() (core.DeadlineSource, error) {
	registryCfg, err := f.cfg.GetRegistry()
	if err != nil {
		return nil, fmt.Errorf("invalid registry configuration: %w", err)
	}
	return companieshouse.NewClient(registryCfg, f.logger), nil
}

// CreateRenderer creates the template renderer, honouring templates.dir
func (f *RegistryFactory) CreateRenderer() (core.Renderer, error) {
	return templates.NewRenderer(f.cfg.GetString("templates.dir"), f.logger)
}
