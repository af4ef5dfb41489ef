// Package config loads service configuration from the environment.
// An optional .env file in the working directory is applied first.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers understood by repository.Open.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP     HTTPConfig
	Store    StoreConfig
	Postgres PostgresConfig
	SQLite   SQLiteConfig
	Mongo    MongoConfig
	Code     CodeConfig
	Sheets   SheetsConfig
	Logging  LoggingConfig
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AllowedOrigins  []string      `env:"HTTP_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	MaxUploadBytes  int64         `env:"HTTP_MAX_UPLOAD_BYTES" envDefault:"10485760"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Driver  string        `env:"STORE_DRIVER" envDefault:"memory"`
	Timeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName   string `env:"DB_NAME" envDefault:"eventcheckin"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"20"`
}

// DSN builds a libpq-compatible connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// SQLiteConfig points at the embedded database file.
type SQLiteConfig struct {
	Path string `env:"SQLITE_PATH" envDefault:"data/attendees.db"`
}

// MongoConfig describes the document database connection.
type MongoConfig struct {
	URI        string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	Database   string `env:"MONGO_DATABASE" envDefault:"eventcheckin"`
	Collection string `env:"MONGO_COLLECTION" envDefault:"users"`
}

// CodeConfig controls what goes into the scannable code and how it is drawn.
type CodeConfig struct {
	Mode          string `env:"QR_MODE" envDefault:"json"` // json|url
	PublicBaseURL string `env:"QR_PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	ImageAPI      string `env:"QR_IMAGE_API" envDefault:"https://api.qrserver.com/v1/create-qr-code/"`
	Size          int    `env:"QR_SIZE" envDefault:"250"`
}

// SheetsConfig enables Google Sheets import/export when both fields are set.
type SheetsConfig struct {
	SpreadsheetID   string `env:"SHEETS_SPREADSHEET_ID"`
	CredentialsFile string `env:"SHEETS_CREDENTIALS_FILE"`
	SheetName       string `env:"SHEETS_SHEET_NAME" envDefault:"Attendees"`
}

// Enabled reports whether Sheets integration is configured.
func (c SheetsConfig) Enabled() bool {
	return c.SpreadsheetID != "" && c.CredentialsFile != ""
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string `env:"LOG_LEVEL" envDefault:"info"`
	Format        string `env:"LOG_FORMAT" envDefault:"text"` // text|json
	IncludeCaller bool   `env:"LOG_INCLUDE_CALLER" envDefault:"false"`
}

// Load applies an optional .env file, then parses and validates the environment.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return Parse()
}

// Parse reads configuration from environment variables only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	cfg.Code.Mode = strings.ToLower(strings.TrimSpace(cfg.Code.Mode))
	cfg.Code.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.Code.PublicBaseURL), "/")
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverMemory, DriverPostgres, DriverSQLite, DriverMongo:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}

	switch c.Code.Mode {
	case "json":
	case "url":
		if c.Code.PublicBaseURL == "" {
			errs = append(errs, errors.New("QR_PUBLIC_BASE_URL is required when QR_MODE=url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown QR_MODE %q", c.Code.Mode))
	}
	if c.Code.Size <= 0 {
		errs = append(errs, errors.New("QR_SIZE must be positive"))
	}

	if (c.Sheets.SpreadsheetID == "") != (c.Sheets.CredentialsFile == "") {
		errs = append(errs, errors.New("SHEETS_SPREADSHEET_ID and SHEETS_CREDENTIALS_FILE must be set together"))
	}

	return errors.Join(errs...)
}
