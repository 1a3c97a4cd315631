package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cradoe/fundsrail/internal/cache"
	"github.com/cradoe/fundsrail/internal/config"
	"github.com/cradoe/fundsrail/internal/errHandler"
	"github.com/cradoe/fundsrail/internal/funding"
	"github.com/cradoe/fundsrail/internal/helper"
	"github.com/cradoe/fundsrail/internal/limits"
	"github.com/cradoe/fundsrail/internal/lock"
	"github.com/cradoe/fundsrail/internal/notify"
	"github.com/cradoe/fundsrail/internal/provider"
	"github.com/cradoe/fundsrail/internal/queue"
	"github.com/cradoe/fundsrail/internal/repository"
	seeders "github.com/cradoe/fundsrail/internal/seeder"
	"github.com/cradoe/fundsrail/internal/settlement"
	"github.com/cradoe/fundsrail/internal/smtp"
	"github.com/cradoe/fundsrail/internal/stream"
	"github.com/cradoe/fundsrail/internal/transfer"
	"github.com/cradoe/fundsrail/internal/worker"
	"github.com/joho/godotenv"
)

// Application holds the services shared by the HTTP server and the background workers.
type Application struct {
	Config config.Config
	DB     repository.Database
	Cache  *cache.Cache
	Logger *slog.Logger
	Mailer *smtp.Mailer
	Kafka  *stream.KafkaStream
	WG     sync.WaitGroup

	errorHandler *errHandler.ErrorRepository
	helper       *helper.HelperRepository

	Transfers  *transfer.Orchestrator
	Settlement *settlement.Handler
	Worker     *worker.Worker
}

func NewApplication(logger *slog.Logger) (*Application, error) {
	if err := godotenv.Load(); err != nil {
		logger.Warn("no .env file loaded", "error", err)
	}

	cfg := loadConfig()

	db, err := repository.New(cfg.Db.Dsn, cfg.Db.Automigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	mailer, err := smtp.NewMailer(cfg.Smtp.Host, cfg.Smtp.Port, cfg.Smtp.Username, cfg.Smtp.Password, cfg.Smtp.From)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize mailer: %w", err)
	}

	app := &Application{
		Config: cfg,
		DB:     db,
		Cache:  cache.New(cfg.Redis.Addr, cfg.Redis.DB),
		Logger: logger,
		Mailer: mailer,
		Kafka:  stream.New(cfg.KafkaServers, logger),
	}

	app.helper = helper.New(cfg.BaseURL, &app.WG, logger)
	app.errorHandler = errHandler.New(cfg.Notifications.Email, mailer, logger, app.helper)

	app.wire()

	return app, nil
}

// wire builds the transfer, settlement and funding services on top of the shared clients.
func (app *Application) wire() {
	cfg := app.Config

	lockOptions := lock.Options{
		TTL:        cfg.Lock.TTL,
		RetryCount: cfg.Lock.RetryCount,
		RetryDelay: cfg.Lock.RetryDelay,
	}
	locker := lock.NewRedisLocker(app.Cache)

	providers := provider.NewClient(provider.Endpoints{
		RiskURL:       cfg.Providers.RiskURL,
		QuoteURL:      cfg.Providers.QuoteURL,
		MonitoringURL: cfg.Providers.MonitoringURL,
		FundingURL:    cfg.Providers.FundingURL,
	}, cfg.Providers.APIKey, cfg.Providers.Timeout)

	notifier := notify.Multi{
		notify.NewMailSink(app.DB.User(), app.Mailer, cfg.BaseURL),
		notify.NewStreamSink(app.Kafka),
	}

	ledger := app.DB.Ledger()

	app.Transfers = transfer.New(transfer.Config{
		Provider:        cfg.Transfer.Provider,
		SettlementAsset: cfg.Transfer.SettlementAsset,
		QuoteExpiry:     cfg.Transfer.QuoteExpiry,
		Lock:            lockOptions,
	}, transfer.Deps{
		Ledger:     ledger,
		Accounts:   app.DB.ExternalAccount(),
		Kyc:        app.DB.ProviderKyc(),
		Limits:     limits.NewValidator(app.DB.KYC(), ledger),
		Risk:       providers,
		Quotes:     providers,
		Monitoring: providers,
		Jobs:       queue.NewKafkaQueue(app.Kafka, app.Cache),
		Locker:     locker,
		Activity:   app.DB.Activity(),
		Notifier:   notifier,
		Background: app.helper,
		Logger:     app.Logger,
	})

	app.Settlement = settlement.New(settlement.Config{
		Lock:           lockOptions,
		LinkRetries:    cfg.Settlement.LinkRetries,
		LinkRetryDelay: cfg.Settlement.LinkRetryDelay,
	}, app.DB.BlockchainLedger(), locker, notifier, app.helper, app.Logger)

	executor := funding.NewExecutor(funding.Config{Lock: lockOptions}, ledger, providers, locker, notifier, app.helper, app.Logger)

	app.Worker = worker.New(app.Kafka, executor, app.Settlement, app.Logger)
}

// Seed loads reference data such as the KYC tiers.
func (app *Application) Seed(ctx context.Context) error {
	return seeders.New(app.DB, app.Logger).Run(ctx)
}

// Close releases the shared clients once the server and workers have stopped.
func (app *Application) Close() {
	app.WG.Wait()

	app.Kafka.Close()

	if err := app.Cache.Close(); err != nil {
		app.Logger.Error("failed to close redis", slog.Any("error", err))
	}
	if err := app.DB.Close(); err != nil {
		app.Logger.Error("failed to close database", slog.Any("error", err))
	}
}
