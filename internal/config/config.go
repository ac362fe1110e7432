package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Config is assembled once at startup and handed to constructors; nothing
// below main reads the environment.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	AMQP     AMQPConfig
	Schedule ScheduleConfig
	Capture  CaptureConfig
	Queue    QueueConfig
	Dispatch DispatchConfig
	CNPJA    CNPJAConfig
	Gateway  GatewayConfig
	ZAPI     ZAPIConfig
	Twilio   TwilioConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.App.Timezone, err)
	}
	d := c.Dispatch
	if d.StartHour < 0 || d.StartHour > 23 || d.EndHour < 1 || d.EndHour > 24 || d.StartHour >= d.EndHour {
		return fmt.Errorf("dispatch hours must satisfy 0 <= start < end <= 24, got [%d,%d)", d.StartHour, d.EndHour)
	}
	if d.DailyLimit < 0 {
		return fmt.Errorf("DAILY_LIMIT must not be negative")
	}
	if d.BatchSize <= 0 {
		return fmt.Errorf("DISPATCH_BATCH_SIZE must be positive")
	}
	if d.MaxAttempts <= 0 {
		return fmt.Errorf("DISPATCH_MAX_ATTEMPTS must be positive")
	}
	switch strings.ToLower(c.Gateway.Provider) {
	case GatewayZAPI, GatewayTwilio:
	default:
		return fmt.Errorf("GATEWAY_PROVIDER %q not supported", c.Gateway.Provider)
	}
	return nil
}

// Location returns the pipeline time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type AppConfig struct {
	Env           string        `envconfig:"APP_ENV" default:"dev"`
	Port          string        `envconfig:"APP_PORT" default:"8080"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"`
	Timezone      string        `envconfig:"TIMEZONE" default:"America/Sao_Paulo"`
	HTTPTimeout   time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	AdminPhone    string        `envconfig:"ADMIN_PHONE"`
	TemplatesPath string        `envconfig:"TEMPLATES_PATH" default:"message_templates/templates.json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

type DBConfig struct {
	Driver      string `envconfig:"DB_DRIVER" default:"sqlite"`
	DSN         string `envconfig:"DB_DSN" default:"prospeccao.db"`
	AutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`

	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
}

type RedisConfig struct {
	URL     string        `envconfig:"REDIS_URL"`
	LockTTL time.Duration `envconfig:"REDIS_LOCK_TTL" default:"2h"`
}

type AMQPConfig struct {
	URL          string `envconfig:"AMQP_URL"`
	InboundQueue string `envconfig:"AMQP_INBOUND_QUEUE" default:"inbound_messages"`
}

type ScheduleConfig struct {
	Capture  string `envconfig:"SCHEDULE_CAPTURE" default:"0 8 * * *"`
	Queue    string `envconfig:"SCHEDULE_QUEUE" default:"10 8 * * *"`
	Dispatch string `envconfig:"SCHEDULE_DISPATCH" default:"@every 2m"`
	Followup string `envconfig:"SCHEDULE_FOLLOWUP" default:"@every 30m"`
}

type CaptureConfig struct {
	WindowDays     int    `envconfig:"CAPTURE_WINDOW_DAYS" default:"30"`
	PageSize       int    `envconfig:"CAPTURE_PAGE_SIZE" default:"50"`
	MaxPages       int    `envconfig:"CAPTURE_MAX_PAGES" default:"20"`
	ActivityFilter string `envconfig:"CAPTURE_ACTIVITY_FILTER"`
	StateFilter    string `envconfig:"CAPTURE_STATE_FILTER"`
}

// ActivityPrefixes splits the comma-separated activity-code filter.
func (c CaptureConfig) ActivityPrefixes() []string {
	return splitList(c.ActivityFilter, false)
}

// States splits the comma-separated state filter, upper-cased.
func (c CaptureConfig) States() []string {
	return splitList(c.StateFilter, true)
}

type QueueConfig struct {
	Window time.Duration `envconfig:"QUEUE_WINDOW" default:"24h"`
}

type DispatchConfig struct {
	DailyLimit   int           `envconfig:"DAILY_LIMIT" default:"50"`
	StartHour    int           `envconfig:"DISPATCH_START_HOUR" default:"9"`
	EndHour      int           `envconfig:"DISPATCH_END_HOUR" default:"18"`
	BatchSize    int           `envconfig:"DISPATCH_BATCH_SIZE" default:"10"`
	SendInterval time.Duration `envconfig:"DISPATCH_SEND_INTERVAL" default:"30s"`
	MaxAttempts  int           `envconfig:"DISPATCH_MAX_ATTEMPTS" default:"1"`
	StaleAfter   time.Duration `envconfig:"DISPATCH_STALE_AFTER" default:"30m"`
	SkipHolidays bool          `envconfig:"DISPATCH_SKIP_HOLIDAYS" default:"false"`
}

type CNPJAConfig struct {
	BaseURL string `envconfig:"CNPJA_BASE_URL" default:"https://api.cnpja.com"`
	APIKey  string `envconfig:"CNPJA_API_KEY"`
}

const (
	GatewayZAPI   = "zapi"
	GatewayTwilio = "twilio"
)

type GatewayConfig struct {
	Provider string `envconfig:"GATEWAY_PROVIDER" default:"zapi"`
}

type ZAPIConfig struct {
	BaseURL     string `envconfig:"ZAPI_BASE_URL" default:"https://api.z-api.io"`
	InstanceID  string `envconfig:"ZAPI_INSTANCE_ID"`
	Token       string `envconfig:"ZAPI_TOKEN"`
	ClientToken string `envconfig:"ZAPI_CLIENT_TOKEN"`
}

type TwilioConfig struct {
	AccountSID string `envconfig:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `envconfig:"TWILIO_AUTH_TOKEN"`
	From       string `envconfig:"TWILIO_FROM"`
	WhatsApp   bool   `envconfig:"TWILIO_WHATSAPP" default:"true"`
}

func splitList(raw string, upper bool) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if upper {
			part = strings.ToUpper(part)
		}
		out = append(out, part)
	}
	return out
}
