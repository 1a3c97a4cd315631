package app

import (
	"time"

	"github.com/cradoe/fundsrail/internal/config"
	"github.com/cradoe/fundsrail/internal/env"
)

// loadConfig reads the environment. Defaults are for local development only,
// never put a production value here.
func loadConfig() config.Config {
	var cfg config.Config

	cfg.BaseURL = env.GetString("BASE_URL", "http://localhost:4444")
	cfg.HttpPort = env.GetInt("HTTP_PORT", 4444)

	cfg.Db.Dsn = env.GetString("DB_DSN", "user:pass@localhost:5432/fundsrail?sslmode=disable")
	cfg.Db.Automigrate = env.GetBool("DB_AUTOMIGRATE", true)
	cfg.Db.Seed = env.GetBool("DB_SEED", false)

	cfg.Redis.Addr = env.GetString("REDIS_ADDR", "localhost:6379")
	cfg.Redis.DB = env.GetInt("REDIS_DB", 0)

	cfg.Jwt.SecretKey = env.GetString("JWT_SECRET_KEY", "ajf5nx3qmp6zquevllxocxqvyz42ypuo")
	cfg.Webhook.Secret = env.GetString("WEBHOOK_SECRET", "")

	// server errors won't be sent via email if NOTIFICATIONS_EMAIL is not set
	cfg.Notifications.Email = env.GetString("NOTIFICATIONS_EMAIL", "")

	cfg.Smtp.Host = env.GetString("SMTP_HOST", "example.smtp.host")
	cfg.Smtp.Port = env.GetInt("SMTP_PORT", 25)
	cfg.Smtp.Username = env.GetString("SMTP_USERNAME", "example_username")
	cfg.Smtp.Password = env.GetString("SMTP_PASSWORD", "pa55word")
	cfg.Smtp.From = env.GetString("SMTP_FROM", "Fundsrail <no_reply@example.org>")

	cfg.KafkaServers = env.GetString("KAFKA_SERVERS", "localhost:9092")

	cfg.Lock.TTL = env.GetDuration("LOCK_TTL", 30*time.Second)
	cfg.Lock.RetryCount = env.GetInt("LOCK_RETRY_COUNT", 10)
	cfg.Lock.RetryDelay = env.GetDuration("LOCK_RETRY_DELAY", 200*time.Millisecond)

	cfg.Providers.RiskURL = env.GetString("PROVIDER_RISK_URL", "http://localhost:8081/risk")
	cfg.Providers.QuoteURL = env.GetString("PROVIDER_QUOTE_URL", "http://localhost:8081/quotes")
	cfg.Providers.MonitoringURL = env.GetString("PROVIDER_MONITORING_URL", "http://localhost:8081/monitoring")
	cfg.Providers.FundingURL = env.GetString("PROVIDER_FUNDING_URL", "http://localhost:8081/funding")
	cfg.Providers.APIKey = env.GetString("PROVIDER_API_KEY", "")
	cfg.Providers.Timeout = env.GetDuration("PROVIDER_TIMEOUT", 10*time.Second)

	cfg.Transfer.Provider = env.GetString("TRANSFER_PROVIDER", "zerohash")
	cfg.Transfer.SettlementAsset = env.GetString("TRANSFER_SETTLEMENT_ASSET", "USDC")
	cfg.Transfer.QuoteExpiry = env.GetDuration("TRANSFER_QUOTE_EXPIRY", 30*time.Second)

	cfg.Settlement.LinkRetries = env.GetInt("SETTLEMENT_LINK_RETRIES", 3)
	cfg.Settlement.LinkRetryDelay = env.GetDuration("SETTLEMENT_LINK_RETRY_DELAY", 100*time.Millisecond)
	cfg.Settlement.ReconcileSchedule = env.GetString("SETTLEMENT_RECONCILE_SCHEDULE", "@every 1m")

	return cfg
}
