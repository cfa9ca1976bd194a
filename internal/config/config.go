// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	TokenSecret    string `mapstructure:"TOKEN_SECRET"`
	Port           string `mapstructure:"PORT"`
	AppBaseURL     string `mapstructure:"APP_BASE_URL"`
	DBDriver       string `mapstructure:"DB_DRIVER"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	DBReadHost     string `mapstructure:"DB_READ_HOST"`
	DBReadPort     string `mapstructure:"DB_READ_PORT"`
	DBReadUser     string `mapstructure:"DB_READ_USER"`
	DBReadPassword string `mapstructure:"DB_READ_PASSWORD"`
	SQLitePath     string `mapstructure:"SQLITE_PATH"`
	DBSchemaMode   string `mapstructure:"DB_SCHEMA_MODE"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	Env            string `mapstructure:"APP_ENV"`

	// Invitation lifecycle
	InvitationTTL           time.Duration `mapstructure:"INVITATION_TTL"`
	InvitationSweepInterval time.Duration `mapstructure:"INVITATION_SWEEP_INTERVAL"`
	PasswordResetTTL        time.Duration `mapstructure:"PASSWORD_RESET_TTL"`
	PaginationItems         int           `mapstructure:"PAGINATION_ITEMS"`

	// Outbound mail
	MailProvider    string        `mapstructure:"MAIL_PROVIDER"`
	MailFrom        string        `mapstructure:"MAIL_FROM"`
	MailSendTimeout time.Duration `mapstructure:"MAIL_SEND_TIMEOUT"`
	SMTPHost        string        `mapstructure:"SMTP_HOST"`
	SMTPPort        string        `mapstructure:"SMTP_PORT"`
	SMTPUser        string        `mapstructure:"SMTP_USER"`
	SMTPPassword    string        `mapstructure:"SMTP_PASSWORD"`

	SessionTTL time.Duration `mapstructure:"SESSION_TTL"`

	TracingEnabled  bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampler  float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

const defaultSecret = "your-secret-key-change-in-production"

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional; env vars and defaults cover everything.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("APP_BASE_URL", "http://localhost:8375")
	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "welcomemat")
	viper.SetDefault("DB_READ_HOST", "")
	viper.SetDefault("DB_READ_PORT", "5432")
	viper.SetDefault("DB_READ_USER", "user")
	viper.SetDefault("DB_READ_PASSWORD", "password")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("SQLITE_PATH", "welcomemat.db")
	viper.SetDefault("DB_SCHEMA_MODE", "hybrid")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("JWT_SECRET", defaultSecret)
	viper.SetDefault("TOKEN_SECRET", "")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("INVITATION_TTL", "72h")
	viper.SetDefault("INVITATION_SWEEP_INTERVAL", "15m")
	viper.SetDefault("PASSWORD_RESET_TTL", "24h")
	viper.SetDefault("PAGINATION_ITEMS", 20)
	viper.SetDefault("MAIL_PROVIDER", "log")
	viper.SetDefault("MAIL_FROM", "Welcome Mat <no-reply@welcomemat.local>")
	viper.SetDefault("MAIL_SEND_TIMEOUT", "10s")
	viper.SetDefault("SMTP_PORT", "587")
	viper.SetDefault("SESSION_TTL", "30m")
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
}

func (c *Config) normalize() {
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.DBSchemaMode = strings.ToLower(strings.TrimSpace(c.DBSchemaMode))
	c.MailProvider = strings.ToLower(strings.TrimSpace(c.MailProvider))
	c.AppBaseURL = strings.TrimRight(strings.TrimSpace(c.AppBaseURL), "/")
	if c.TokenSecret == "" {
		c.TokenSecret = c.JWTSecret
	}
}

// IsProduction reports whether the config targets a production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.InvitationTTL <= 0 {
		return errors.New("INVITATION_TTL must be positive")
	}
	switch c.DBDriver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.MailProvider {
	case "", "log":
	case "smtp":
		if c.SMTPHost == "" {
			return errors.New("SMTP_HOST is required when MAIL_PROVIDER is smtp")
		}
	default:
		return fmt.Errorf("unknown MAIL_PROVIDER %q", c.MailProvider)
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBDriver != "sqlite" && (c.DBPassword == "password" || c.DBPassword == "") {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBDriver != "sqlite" && (c.DBSSLMode == "disable" || c.DBSSLMode == "") {
			return errors.New("DB_SSLMODE must not be 'disable' in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
		if c.MailProvider == "log" || c.MailProvider == "" {
			log.Println("WARNING: MAIL_PROVIDER is 'log' in production. Invitations will not be delivered.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
