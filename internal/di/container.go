package di

import (
	"github.com/google/uuid"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/PetrosWatts/regdeadline/internal/adapters/mimeutil"
	"github.com/PetrosWatts/regdeadline/internal/config"
	"github.com/PetrosWatts/regdeadline/internal/core"
	"github.com/PetrosWatts/regdeadline/internal/factory"
	"github.com/PetrosWatts/regdeadline/internal/logging"
	"github.com/PetrosWatts/regdeadline/internal/utils"
)

// Options holds the command line overrides applied on top of the loaded configuration
type Options struct {
	ConfigFile string
	Verbose    bool
	DryRun     bool
}

// BuildContainer creates and configures a dependency injection container.
// Providers run lazily, so a command only opens the transports it uses.
func BuildContainer(opts Options) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		return loadConfig(opts)
	}); err != nil {
		return nil, err
	}

	// Register logger, tagged with a run id
	if err := container.Provide(func(cfg *config.Config) (*zap.Logger, error) {
		logger, err := logging.InitLogger(cfg)
		if err != nil {
			return nil, err
		}
		return logger.With(zap.String("run_id", uuid.NewString())), nil
	}); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewStateFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewTransportFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewRegistryFactory); err != nil {
		return nil, err
	}
	if err := provideClassifiers(container); err != nil {
		return nil, err
	}

	// Register state store
	if err := container.Provide(func(f *factory.StateFactory) (core.StateStore, error) {
		return f.CreateStateStore()
	}); err != nil {
		return nil, err
	}

	// Register mail transport
	if err := container.Provide(func(f *factory.TransportFactory) (core.Sender, error) {
		return f.CreateSender()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.TransportFactory) core.MailboxOpener {
		return f.CreateMailboxOpener()
	}); err != nil {
		return nil, err
	}

	// Register registry client and renderer
	if err := container.Provide(func(f *factory.RegistryFactory) (core.DeadlineSource, error) {
		return f.CreateDeadlineSource()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.RegistryFactory) (core.Renderer, error) {
		return f.CreateRenderer()
	}); err != nil {
		return nil, err
	}

	// Register send policy, read once at startup
	if err := container.Provide(func(cfg *config.Config) core.SendPolicy {
		return sendPolicy(cfg.GetSend())
	}); err != nil {
		return nil, err
	}

	// Register governor
	if err := container.Provide(func(
		store core.StateStore,
		sender core.Sender,
		policy core.SendPolicy,
		logger *zap.Logger,
	) *core.Governor {
		return core.NewGovernor(store, store, sender, policy, logger)
	}); err != nil {
		return nil, err
	}

	// Register services
	if err := container.Provide(func(
		store core.StateStore,
		source core.DeadlineSource,
		governor *core.Governor,
		renderer core.Renderer,
		cfg *config.Config,
		logger *zap.Logger,
	) *core.ReminderService {
		return core.NewReminderService(store, source, governor, renderer, cfg.GetRun().ReminderWindowDays, logger)
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(func(
		source core.DeadlineSource,
		store core.StateStore,
		governor *core.Governor,
		renderer core.Renderer,
		cfg *config.Config,
		logger *zap.Logger,
	) *core.LeadScanner {
		run := cfg.GetRun()
		return core.NewLeadScanner(source, store, governor, renderer, core.LeadConfig{
			PoolSize:   run.LeadPoolSize,
			MaxEmails:  run.LeadMaxEmails,
			WindowDays: run.LeadWindowDays,
			Recipient:  run.LeadRecipient,
		}, logger)
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(func(
		opener core.MailboxOpener,
		store core.StateStore,
		parser core.MessageParser,
		classifier core.ReplyClassifier,
		keywords *core.KeywordClassifier,
		logger *zap.Logger,
	) *core.UnsubscribeService {
		return core.NewUnsubscribeService(opener, store, parser, classifier, keywords, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideClassifiers registers the message parser and the reply classifiers
func provideClassifiers(container *dig.Container) error {
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return err
	}
	if err := container.Provide(factory.NewClassifierFactory); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.ClassifierFactory) (core.ReplyClassifier, error) {
		return f.CreateClassifier()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.ClassifierFactory) *core.KeywordClassifier {
		return f.CreateKeywordClassifier()
	}); err != nil {
		return err
	}
	return container.Provide(func() core.MessageParser {
		return mimeutil.NewParser()
	})
}

func loadConfig(opts Options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigFile != "" {
		cfg, err = config.NewFromFile(opts.ConfigFile)
	} else {
		cfg, err = config.New()
	}
	if err != nil {
		return nil, err
	}

	if opts.Verbose {
		cfg.Set("logging.level", "debug")
	}
	if opts.DryRun {
		cfg.Set("send.safety_mode", true)
	}
	return cfg, nil
}

func sendPolicy(send config.SendConfig) core.SendPolicy {
	return core.SendPolicy{
		DailyCap:          send.DailyCap,
		PerRunCap:         send.PerRunCap,
		Sleep:             send.Sleep,
		SafetyMode:        send.SafetyMode,
		SafeTestInbox:     send.SafeTestInbox,
		FromAddress:       send.FromAddress,
		FromName:          send.FromName,
		CampaignHeader:    send.CampaignHeader,
		CampaignID:        send.CampaignID,
		UnsubscribeMailto: send.UnsubscribeMailto,
	}
}
