package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Gmail     GmailConfig     `mapstructure:"gmail"`
	Stripe    StripeConfig    `mapstructure:"stripe"`
	Toll      TollConfig      `mapstructure:"toll"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// GmailConfig holds Gmail API configuration
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	UserEmail    string `mapstructure:"user_email"`
}

// StripeConfig holds Stripe API configuration
type StripeConfig struct {
	APIKey        string `mapstructure:"api_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// TollConfig holds toll policy configuration
type TollConfig struct {
	Amount           float64 `mapstructure:"amount"`
	TrustedDomains   string  `mapstructure:"trusted_domains"`
	AutomationMarker string  `mapstructure:"automation_marker"`
	AwaitingLabel    string  `mapstructure:"awaiting_label"`
	PaidLabel        string  `mapstructure:"paid_label"`
	SuccessURL       string  `mapstructure:"success_url"`
	CancelURL        string  `mapstructure:"cancel_url"`
	EmailSubject     string  `mapstructure:"email_subject"`
	EmailBody        string  `mapstructure:"email_body"`
	EmailFromName    string  `mapstructure:"email_from_name"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
	LookbackHours   int `mapstructure:"lookback_hours"`
	OverlapMinutes  int `mapstructure:"overlap_minutes"`
	MaxResults      int `mapstructure:"max_results"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()

	// Bind environment variables
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)

	viper.SetDefault("toll.amount", 0.25)
	viper.SetDefault("toll.automation_marker", "[jmc]")
	viper.SetDefault("toll.awaiting_label", "Awaiting Toll")
	viper.SetDefault("toll.paid_label", "Toll Paid")
	viper.SetDefault("toll.email_subject", "Payment required to reach my inbox")

	viper.SetDefault("scheduler.interval_minutes", 1)
	viper.SetDefault("scheduler.lookback_hours", 48)
	viper.SetDefault("scheduler.overlap_minutes", 5)
	viper.SetDefault("scheduler.max_results", 500)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")

	// Gmail
	viper.BindEnv("gmail.client_id", "GMAIL_CLIENT_ID")
	viper.BindEnv("gmail.client_secret", "GMAIL_CLIENT_SECRET")
	viper.BindEnv("gmail.refresh_token", "GMAIL_REFRESH_TOKEN")
	viper.BindEnv("gmail.user_email", "GMAIL_USER_EMAIL")

	// Stripe
	viper.BindEnv("stripe.api_key", "STRIPE_API_KEY")
	viper.BindEnv("stripe.webhook_secret", "STRIPE_WEBHOOK_SECRET")

	// Toll
	viper.BindEnv("toll.amount", "TOLL_AMOUNT")
	viper.BindEnv("toll.trusted_domains", "TOLL_TRUSTED_DOMAINS")
	viper.BindEnv("toll.automation_marker", "TOLL_AUTOMATION_MARKER")
	viper.BindEnv("toll.awaiting_label", "TOLL_AWAITING_LABEL")
	viper.BindEnv("toll.paid_label", "TOLL_PAID_LABEL")
	viper.BindEnv("toll.success_url", "TOLL_SUCCESS_URL")
	viper.BindEnv("toll.cancel_url", "TOLL_CANCEL_URL")
	viper.BindEnv("toll.email_subject", "TOLL_EMAIL_SUBJECT")
	viper.BindEnv("toll.email_body", "TOLL_EMAIL_BODY")
	viper.BindEnv("toll.email_from_name", "TOLL_EMAIL_FROM_NAME")

	// Scheduler
	viper.BindEnv("scheduler.interval_minutes", "SCHEDULER_INTERVAL_MINUTES")
	viper.BindEnv("scheduler.lookback_hours", "SCHEDULER_LOOKBACK_HOURS")
	viper.BindEnv("scheduler.overlap_minutes", "SCHEDULER_OVERLAP_MINUTES")
	viper.BindEnv("scheduler.max_results", "SCHEDULER_MAX_RESULTS")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// TrustedDomainList splits the configured trusted domains into a cleaned slice
func (c *TollConfig) TrustedDomainList() []string {
	if strings.TrimSpace(c.TrustedDomains) == "" {
		return nil
	}
	var domains []string
	for _, d := range strings.Split(c.TrustedDomains, ",") {
		d = strings.TrimSpace(d)
		if d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	if c.Gmail.ClientID == "" || c.Gmail.ClientSecret == "" || c.Gmail.RefreshToken == "" {
		return fmt.Errorf("Gmail OAuth2 credentials are required")
	}

	if c.Gmail.UserEmail == "" {
		return fmt.Errorf("Gmail user email is required")
	}

	if c.Stripe.APIKey == "" || c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("Stripe API key and webhook secret are required")
	}

	if c.Toll.Amount <= 0 {
		return fmt.Errorf("toll amount must be greater than 0")
	}

	if c.Scheduler.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	return nil
}
