package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting the server reads from the environment.
type Config struct {
	Env         string
	Port        string
	FrontendURL string

	Database DatabaseConfig
	JWT      JWTConfig
	Stripe   StripeConfig
	Mux      MuxConfig
	Redis    RedisConfig
	Email    EmailConfig
	PostHog  PostHogConfig
	Supabase SupabaseConfig
	Log      LogConfig

	GoogleClientID string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	TimeZone string

	MaxOpenConns int
	MaxIdleConns int
}

// DSN builds the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode, d.TimeZone,
	)
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

type MuxConfig struct {
	TokenID       string
	TokenSecret   string
	WebhookSecret string
	APIURL        string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type EmailConfig struct {
	SendGridAPIKey string
	From           string
	FromName       string
}

type PostHogConfig struct {
	APIKey string
	Host   string
}

type SupabaseConfig struct {
	URL    string
	Key    string
	Bucket string
}

type LogConfig struct {
	Level  string
	Format string
}

// AppConfig is set by Load and read by handlers and services.
var AppConfig *Config

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Env:         v.GetString("APP_ENV"),
		Port:        v.GetString("PORT"),
		FrontendURL: strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
		Database: DatabaseConfig{
			Host:         v.GetString("DB_HOST"),
			Port:         v.GetInt("DB_PORT"),
			User:         v.GetString("DB_USER"),
			Password:     v.GetString("DB_PASSWORD"),
			Name:         v.GetString("DB_NAME"),
			SSLMode:      v.GetString("DB_SSLMODE"),
			TimeZone:     v.GetString("DB_TIMEZONE"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("JWT_SECRET"),
			Expiration: v.GetDuration("JWT_EXPIRATION"),
		},
		Stripe: StripeConfig{
			SecretKey:     v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
			Currency:      strings.ToLower(v.GetString("STRIPE_CURRENCY")),
		},
		Mux: MuxConfig{
			TokenID:       v.GetString("MUX_TOKEN_ID"),
			TokenSecret:   v.GetString("MUX_TOKEN_SECRET"),
			WebhookSecret: v.GetString("MUX_WEBHOOK_SECRET"),
			APIURL:        strings.TrimRight(v.GetString("MUX_API_URL"), "/"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Email: EmailConfig{
			SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
			From:           v.GetString("EMAIL_FROM"),
			FromName:       v.GetString("EMAIL_FROM_NAME"),
		},
		PostHog: PostHogConfig{
			APIKey: v.GetString("POSTHOG_API_KEY"),
			Host:   v.GetString("POSTHOG_HOST"),
		},
		Supabase: SupabaseConfig{
			URL:    strings.TrimRight(v.GetString("SUPABASE_URL"), "/"),
			Key:    v.GetString("SUPABASE_KEY"),
			Bucket: v.GetString("SUPABASE_BUCKET"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		GoogleClientID: v.GetString("GOOGLE_CLIENT_ID"),
	}

	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
		if cfg.IsProduction() {
			cfg.Log.Format = "json"
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "vinakademin")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_TIMEZONE", "Europe/Stockholm")
	v.SetDefault("DB_MAX_OPEN_CONNS", 100)
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)

	v.SetDefault("JWT_EXPIRATION", "72h")
	v.SetDefault("STRIPE_CURRENCY", "sek")
	v.SetDefault("MUX_API_URL", "https://api.mux.com")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("EMAIL_FROM", "hej@vinakademin.se")
	v.SetDefault("EMAIL_FROM_NAME", "Vinakademin")
	v.SetDefault("POSTHOG_HOST", "https://eu.i.posthog.com")
	v.SetDefault("SUPABASE_BUCKET", "uploads")
	v.SetDefault("LOG_LEVEL", "info")
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.JWT.Expiration <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRATION must be positive"))
	}
	if c.IsProduction() {
		if c.JWT.Secret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
		if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required when Stripe is enabled"))
		}
	}
	if c.JWT.Secret == "" {
		c.JWT.Secret = "development-secret"
	}
	return errors.Join(errs...)
}
