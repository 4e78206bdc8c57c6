package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/yourusername/crm-reminders/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	DataSourceDatabase = "database"
	DataSourceRemote   = "remote"
)

type Config struct {
	// HTTP API
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Auth
	JWTSecret string `envconfig:"JWT_SECRET"`

	// Data source: "database" reads the service's own tables and runs
	// send-reminders in-process, "remote" talks to the hosted backend.
	DataSource     string        `envconfig:"DATA_SOURCE" default:"database"`
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	BackendURL     string        `envconfig:"BACKEND_URL"`
	BackendAPIKey  string        `envconfig:"BACKEND_API_KEY"`
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"15s"`

	// Reminder trigger offsets in days
	QuoteFollowupDays  []int `envconfig:"REMINDER_QUOTE_DAYS" default:"3,7,14"`
	InvoicePaymentDays []int `envconfig:"REMINDER_INVOICE_DAYS" default:"-3,0,7,14"`

	// Zero disables the built-in scheduler
	DispatchInterval time.Duration `envconfig:"DISPATCH_INTERVAL" default:"0"`

	// SMTP
	SMTPHost     string        `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int           `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser     string        `envconfig:"SMTP_USER" default:""`
	SMTPPassword string        `envconfig:"SMTP_PASSWORD" default:""`
	SMTPFrom     string        `envconfig:"SMTP_FROM" default:"noreply@example.com"`
	EmailRate    int           `envconfig:"EMAIL_RATE_LIMIT" default:"10"`
	EmailRetry   time.Duration `envconfig:"EMAIL_RETRY" default:"3s"`
}

func LoadConfig() (*Config, error) {
	godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.DataSource {
	case DataSourceDatabase:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for data source %q", c.DataSource)
		}
	case DataSourceRemote:
		if c.BackendURL == "" {
			return fmt.Errorf("BACKEND_URL is required for data source %q", c.DataSource)
		}
	default:
		return fmt.Errorf("unknown DATA_SOURCE %q", c.DataSource)
	}
	if c.EmailRate <= 0 {
		return fmt.Errorf("EMAIL_RATE_LIMIT must be positive")
	}
	return nil
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Organisation{}, &models.Quote{}, &models.Invoice{}, &models.ReminderLog{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
