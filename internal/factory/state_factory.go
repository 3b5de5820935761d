package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/PetrosWatts/regdeadline/internal/adapters/state"
	"github.com/PetrosWatts/regdeadline/internal/config"
	"github.com/PetrosWatts/regdeadline/internal/core"
	"go.uber.org/zap"
)

// StateFactory creates state stores based on configuration
type StateFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStateFactory creates a new state factory
func NewStateFactory(cfg *config.Config, logger *zap.Logger) *StateFactory {
	return &StateFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStateStore creates a state store based on the configuration
func (f *StateFactory) CreateStateStore() (core.StateStore, error) {
	stateCfg := f.cfg.GetState()
	ctx := context.Background()

	f.logger.Debug("Creating state store", zap.String("type", stateCfg.Type))

	switch stateCfg.Type {
	case "json":
		return state.NewJSONStore(stateCfg.Dir, f.logger)
	case "memory":
		return state.NewMemoryStore(f.logger), nil
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(stateCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return state.OpenSQLStore(ctx, state.DriverSQLite, stateCfg.SQLitePath, f.logger)
	case "mysql":
		return state.OpenSQLStore(ctx, state.DriverMySQL, stateCfg.MySQLDSN, f.logger)
	case "postgres":
		return state.OpenSQLStore(ctx, state.DriverPostgres, stateCfg.PostgresDSN, f.logger)
	case "redis":
		return state.NewRedisStore(ctx, stateCfg.RedisAddr, stateCfg.RedisPassword, stateCfg.RedisDB, stateCfg.RedisPrefix, f.logger)
	default:
		return nil, fmt.Errorf("unsupported state store type: %s", stateCfg.Type)
	}
}
