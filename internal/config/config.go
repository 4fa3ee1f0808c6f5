// Package config loads settings from an optional YAML file with environment
// variables layered on top. Environment always wins.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable pointing at the YAML file.
const EnvConfigPath = "CLIPSWIFT_CONFIG"

const minJWTSecretLen = 32

type Config struct {
	Debug    bool           `yaml:"debug"`
	Checkout CheckoutConfig `yaml:"checkout"`
	State    StateConfig    `yaml:"state"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Backend  BackendConfig  `yaml:"backend"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	GenAI    GenAIConfig    `yaml:"genai"`
	// Coordinator is the listen address of `clipswift serve`.
	Coordinator string `yaml:"coordinator"`
}

// CheckoutConfig drives the editing surface's upgrade flow.
type CheckoutConfig struct {
	BackendURL  string        `yaml:"backend_url"`
	PriceID     string        `yaml:"price_id"`
	SuccessURL  string        `yaml:"success_url"`
	CancelURL   string        `yaml:"cancel_url"`
	Window      time.Duration `yaml:"window"`
	ClosedDelay time.Duration `yaml:"closed_delay"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

type StateConfig struct {
	Backend     string `yaml:"backend"` // file, memory, postgres, dynamo
	Path        string `yaml:"path"`
	DatabaseURL string `yaml:"database_url"`
	DynamoTable string `yaml:"dynamo_table"`
	Profile     string `yaml:"profile"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	SyncTopic    string   `yaml:"sync_topic"`
	PaymentTopic string   `yaml:"payment_topic"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type BackendConfig struct {
	Addr          string        `yaml:"addr"`
	StripeKey     string        `yaml:"stripe_key"`
	WebhookSecret string        `yaml:"webhook_secret"`
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenExpiry   time.Duration `yaml:"token_expiry"`
	DatabaseURL   string        `yaml:"database_url"`
}

type SMTPConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	From string `yaml:"from"`
}

type GenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// Default returns the settings used when neither file nor environment says
// otherwise.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Checkout: CheckoutConfig{
			BackendURL:  "http://localhost:3000",
			PriceID:     "price_clipswift_lifetime",
			SuccessURL:  "https://clipswift.example.com/success",
			CancelURL:   "https://clipswift.example.com/cancel",
			Window:      15 * time.Minute,
			ClosedDelay: 2 * time.Second,
			HTTPTimeout: 10 * time.Second,
		},
		State: StateConfig{
			Backend:     "file",
			Path:        home + "/.clipswift/state.json",
			DynamoTable: "clipswift_state",
			Profile:     "default",
		},
		Kafka: KafkaConfig{
			SyncTopic:    "clipswift-sync",
			PaymentTopic: "clipswift-payments",
		},
		Backend: BackendConfig{
			Addr:        ":3000",
			TokenExpiry: 365 * 24 * time.Hour,
		},
		SMTP: SMTPConfig{
			Host: "localhost",
			Port: "1025",
			From: "noreply@example.com",
		},
		GenAI: GenAIConfig{
			Model: "gemini-2.0-flash",
		},
		Coordinator: "127.0.0.1:8765",
	}
}

// Load reads path (when non-empty, otherwise $CLIPSWIFT_CONFIG) over the
// defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Debug = getBool("CLIPSWIFT_DEBUG", c.Debug)
	c.Coordinator = getEnv("CLIPSWIFT_COORDINATOR", c.Coordinator)

	c.Checkout.BackendURL = getEnv("BACKEND_URL", c.Checkout.BackendURL)
	c.Checkout.PriceID = getEnv("STRIPE_PRICE_ID", c.Checkout.PriceID)
	c.Checkout.SuccessURL = getEnv("CHECKOUT_SUCCESS_URL", c.Checkout.SuccessURL)
	c.Checkout.CancelURL = getEnv("CHECKOUT_CANCEL_URL", c.Checkout.CancelURL)

	var err error
	if c.Checkout.Window, err = getDuration("CHECKOUT_WINDOW", c.Checkout.Window); err != nil {
		return err
	}
	if c.Checkout.ClosedDelay, err = getDuration("CHECKOUT_CLOSED_DELAY", c.Checkout.ClosedDelay); err != nil {
		return err
	}
	if c.Backend.TokenExpiry, err = getDuration("TOKEN_EXPIRY", c.Backend.TokenExpiry); err != nil {
		return err
	}

	c.State.Backend = getEnv("STATE_BACKEND", c.State.Backend)
	c.State.Path = getEnv("STATE_PATH", c.State.Path)
	c.State.DatabaseURL = getEnv("DATABASE_URL", c.State.DatabaseURL)
	c.State.DynamoTable = getEnv("DYNAMODB_TABLE", c.State.DynamoTable)
	c.State.Profile = getEnv("STATE_PROFILE", c.State.Profile)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
	}
	c.Kafka.SyncTopic = getEnv("KAFKA_SYNC_TOPIC", c.Kafka.SyncTopic)
	c.Kafka.PaymentTopic = getEnv("KAFKA_PAYMENT_TOPIC", c.Kafka.PaymentTopic)

	c.Backend.Addr = getEnv("LISTEN_ADDR", c.Backend.Addr)
	c.Backend.StripeKey = getEnv("STRIPE_SECRET_KEY", c.Backend.StripeKey)
	c.Backend.WebhookSecret = getEnv("STRIPE_WEBHOOK_SECRET", c.Backend.WebhookSecret)
	c.Backend.JWTSecret = getEnv("JWT_SECRET", c.Backend.JWTSecret)
	c.Backend.DatabaseURL = getEnv("PAYMENTS_DATABASE_URL", c.Backend.DatabaseURL)

	c.SMTP.Host = getEnv("SMTP_HOST", c.SMTP.Host)
	c.SMTP.Port = getEnv("SMTP_PORT", c.SMTP.Port)
	c.SMTP.From = getEnv("SMTP_FROM", c.SMTP.From)

	c.GenAI.APIKey = getEnv("GEMINI_API_KEY", c.GenAI.APIKey)
	c.GenAI.Model = getEnv("GENAI_MODEL", c.GenAI.Model)
	return nil
}

// ValidateBackend checks the settings paymentd cannot start without.
func (c Config) ValidateBackend() error {
	var errs []error
	if c.Backend.StripeKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if c.Backend.WebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	if c.Backend.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.Backend.JWTSecret) < minJWTSecretLen {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters long", minJWTSecretLen))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
