package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	App      AppConfig
	Referral ReferralConfig
	Jobs     JobsConfig
	Email    EmailConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret   string
	Environment string
	FrontendURL string
}

// ReferralConfig holds commission and payout rules
type ReferralConfig struct {
	BaseURL       string
	MinimumPayout decimal.Decimal
	HoldPeriod    time.Duration
	WalkTimeout   time.Duration
}

// JobsConfig holds cron schedules for maintenance jobs
type JobsConfig struct {
	Enabled         bool
	ReleaseSchedule string
	AuditSchedule   string
}

// EmailConfig holds Brevo transactional email settings
type EmailConfig struct {
	BrevoAPIKey string
	SenderEmail string
	SenderName  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return load(true)
}

// LoadCLI loads configuration for maintenance tooling, which never issues
// or checks tokens and therefore runs without JWT_SECRET.
func LoadCLI() (*Config, error) {
	return load(false)
}

func load(requireSecret bool) (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	minPayout, err := getEnvDecimal("MIN_PAYOUT_USD", "25")
	if err != nil {
		return nil, err
	}
	holdPeriod, err := getEnvDuration("COMMISSION_HOLD_PERIOD", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}
	walkTimeout, err := getEnvDuration("COMMISSION_WALK_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "referral_engine"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		App: AppConfig{
			JWTSecret:   getEnv("JWT_SECRET", ""),
			Environment: getEnv("APP_ENV", "development"),
			FrontendURL: getEnv("FRONTEND_URL", ""),
		},
		Referral: ReferralConfig{
			BaseURL:       getEnv("REFERRAL_BASE_URL", "http://localhost:3000/signup"),
			MinimumPayout: minPayout,
			HoldPeriod:    holdPeriod,
			WalkTimeout:   walkTimeout,
		},
		Jobs: JobsConfig{
			Enabled:         getEnvBool("JOBS_ENABLED", true),
			ReleaseSchedule: getEnv("RELEASE_SCHEDULE", "@every 1h"),
			AuditSchedule:   getEnv("AUDIT_SCHEDULE", "@daily"),
		},
		Email: EmailConfig{
			BrevoAPIKey: getEnv("BREVO_API_KEY", ""),
			SenderEmail: getEnv("EMAIL_SENDER", ""),
			SenderName:  getEnv("EMAIL_SENDER_NAME", ""),
		},
	}

	// Validate required fields
	if requireSecret && config.App.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if !config.Referral.MinimumPayout.IsPositive() {
		return nil, fmt.Errorf("MIN_PAYOUT_USD must be positive")
	}

	return config, nil
}

// IsProduction reports whether the service runs with production settings
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvDecimal(key, defaultValue string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnv(key, defaultValue))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
