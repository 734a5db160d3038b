package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`

	BotToken    string `envconfig:"BOT_TOKEN"`
	BotUsername string `envconfig:"BOT_USERNAME" default:"zenith_ii_bot"`
	RootAdminID int64  `envconfig:"ROOT_ADMIN_ID" default:"0"`

	DBDsn string `envconfig:"DB_DSN" default:"zenith.db"`

	HTTPAddr string `envconfig:"HTTP_ADDR" default:"0.0.0.0:8080"`

	Redis struct {
		Addr     string `envconfig:"REDIS_ADDR"`
		Password string `envconfig:"REDIS_PASSWORD"`
		DB       int    `envconfig:"REDIS_DB" default:"0"`
	} `envconfig:""`

	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"30m"`

	LLM struct {
		APIKey       string        `envconfig:"LLM_API_KEY"`
		BaseURL      string        `envconfig:"LLM_BASE_URL" default:"https://openrouter.ai/api/v1"`
		Model        string        `envconfig:"LLM_MODEL" default:"deepseek/deepseek-chat-v3-0324:free"`
		Timeout      time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
		HistoryLimit int           `envconfig:"LLM_HISTORY_LIMIT" default:"20"`
	} `envconfig:""`

	YooKassa struct {
		ShopID      string `envconfig:"YOOKASSA_SHOP_ID"`
		SecretKey   string `envconfig:"YOOKASSA_SECRET_KEY"`
		APIURL      string `envconfig:"YOOKASSA_API_URL" default:"https://api.yookassa.ru/v3"`
		ReturnURL   string `envconfig:"YOOKASSA_RETURN_URL" default:"https://t.me/zenith_ii_bot"`
		WebhookPath string `envconfig:"YOOKASSA_WEBHOOK_PATH" default:"/yookassa/webhook"`
		TrustAnyIP  bool   `envconfig:"YOOKASSA_TRUST_ANY_IP" default:"false"`
	} `envconfig:""`

	Payments struct {
		DepositMin     int           `envconfig:"DEPOSIT_MIN" default:"100"`
		DepositMax     int           `envconfig:"DEPOSIT_MAX" default:"15000"`
		PollDelay      time.Duration `envconfig:"PAYMENT_POLL_DELAY" default:"5s"`
		PollInterval   time.Duration `envconfig:"PAYMENT_POLL_INTERVAL" default:"5s"`
		PollAttempts   int           `envconfig:"PAYMENT_POLL_ATTEMPTS" default:"12"`
		ReconcileAfter time.Duration `envconfig:"PAYMENT_RECONCILE_AFTER" default:"10m"`
		ReconcileSpec  string        `envconfig:"PAYMENT_RECONCILE_SPEC" default:"*/5 * * * *"`
	} `envconfig:""`

	ReferralMinWithdrawal int `envconfig:"REFERRAL_MIN_WITHDRAWAL" default:"10"`
}

// Load читает .env (если есть) и переменные окружения.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.BotToken == "" {
		return errors.New("BOT_TOKEN is required")
	}
	if c.Payments.DepositMin <= 0 || c.Payments.DepositMax < c.Payments.DepositMin {
		return fmt.Errorf("invalid deposit bounds %d..%d", c.Payments.DepositMin, c.Payments.DepositMax)
	}
	if c.LLM.HistoryLimit < 0 {
		return errors.New("LLM_HISTORY_LIMIT must not be negative")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

// PaymentsEnabled true, если заданы реквизиты магазина.
func (c *Config) PaymentsEnabled() bool {
	return c.YooKassa.ShopID != "" && c.YooKassa.SecretKey != ""
}
