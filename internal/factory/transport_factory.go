package factory

import (
	"context"
	"fmt"

	"github.com/PetrosWatts/regdeadline/internal/adapters/transport"
	"github.com/PetrosWatts/regdeadline/internal/config"
	"github.com/PetrosWatts/regdeadline/internal/core"
	"go.uber.org/zap"
)

// TransportFactory creates the outbound sender and the inbound mailbox opener
type TransportFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewTransportFactory creates a new transport factory
func NewTransportFactory(cfg *config.Config, logger *zap.Logger) *TransportFactory {
	return &TransportFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSender creates the outbound mail sender selected by transport.type
func (f *TransportFactory) CreateSender() (core.Sender, error) {
	transportType := f.cfg.GetString("transport.type")

	switch transportType {
	case "smtp":
		smtpCfg, err := f.cfg.GetSMTP()
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP configuration: %w", err)
		}
		return transport.NewSMTPSender(smtpCfg, f.logger)
	case "ses":
		return transport.NewSESSender(context.Background(), f.cfg.GetSES(), f.logger)
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", transportType)
	}
}

// CreateMailboxOpener creates the IMAP mailbox opener
func (f *TransportFactory) CreateMailboxOpener() core.MailboxOpener {
	return transport.NewIMAPOpener(f.cfg.GetIMAP(), f.logger)
}
