package config

import "time"

type Config struct {
	BaseURL  string
	HttpPort int
	Db       struct {
		Dsn         string
		Automigrate bool
		Seed        bool
	}
	Redis struct {
		Addr string
		DB   int
	}
	Jwt struct {
		SecretKey string
	}
	Webhook struct {
		// Secret signs provider callbacks (HMAC-SHA256 over the raw body)
		Secret string
	}
	Notifications struct {
		Email string
	}
	Smtp struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}
	KafkaServers string
	Lock         struct {
		TTL        time.Duration
		RetryCount int
		RetryDelay time.Duration
	}
	Providers struct {
		RiskURL       string
		QuoteURL      string
		MonitoringURL string
		FundingURL    string
		APIKey        string
		Timeout       time.Duration
	}
	Transfer struct {
		// Provider is the bank-link provider used to select the user's external account
		Provider string
		// SettlementAsset is the asset the provider quotes fiat against
		SettlementAsset string
		QuoteExpiry     time.Duration
	}
	Settlement struct {
		LinkRetries       int
		LinkRetryDelay    time.Duration
		ReconcileSchedule string
	}
}
