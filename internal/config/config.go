package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the mailer services.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Queue    QueueConfig    `yaml:"queue"`
	Redis    RedisConfig    `yaml:"redis"`
	Send     SendConfig     `yaml:"send"`
	Resend   ResendConfig   `yaml:"resend"`
	SES      SESConfig      `yaml:"ses"`
	Webhooks WebhookConfig  `yaml:"webhooks"`
	Branding BrandingConfig `yaml:"branding"`
	Auth     AuthConfig     `yaml:"auth"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns URL when set, otherwise builds one from the parts.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

type QueueConfig struct {
	// Driver is "memory" or "amqp".
	Driver  string `yaml:"driver"`
	AMQPURL string `yaml:"amqp_url"`
	Topic   string `yaml:"topic"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SendConfig struct {
	// Provider is "resend", "ses" or "log".
	Provider  string        `yaml:"provider"`
	Timeout   time.Duration `yaml:"timeout"`
	FromEmail string        `yaml:"from_email"`
	FromName  string        `yaml:"from_name"`
}

type ResendConfig struct {
	APIKey string `yaml:"api_key"`
}

type SESConfig struct {
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	Region           string `yaml:"region"`
	ConfigurationSet string `yaml:"configuration_set"`
}

type WebhookConfig struct {
	// Dedupe is "none", "postgres" or "redis".
	Dedupe    string        `yaml:"dedupe"`
	DedupeTTL time.Duration `yaml:"dedupe_ttl"`
}

type BrandingConfig struct {
	LogoBucket string        `yaml:"logo_bucket"`
	LogoKey    string        `yaml:"logo_key"`
	LogoRegion string        `yaml:"logo_region"`
	LogoTTL    time.Duration `yaml:"logo_ttl"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		HTTP:     HTTPConfig{Addr: ":8080", AllowedOrigins: []string{"*"}},
		Log:      LogConfig{Level: "info"},
		Database: DatabaseConfig{Host: "localhost", Port: "5432", Name: "crm"},
		Queue:    QueueConfig{Driver: "memory", Topic: "email_events"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Send:     SendConfig{Provider: "log", Timeout: 30 * time.Second},
		SES:      SESConfig{Region: "us-east-1"},
		Webhooks: WebhookConfig{Dedupe: "postgres", DedupeTTL: 7 * 24 * time.Hour},
		Branding: BrandingConfig{LogoTTL: 10 * time.Minute},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv loads .env (if any), the YAML file named by CONFIG_PATH and
// then applies environment overrides.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.HTTP.Addr, "HTTP_ADDR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.Port, "DB_PORT")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Queue.Driver, "QUEUE_DRIVER")
	setString(&c.Queue.AMQPURL, "AMQP_URL")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Send.Provider, "SEND_PROVIDER")
	setString(&c.Send.FromEmail, "SEND_FROM_EMAIL")
	setString(&c.Send.FromName, "SEND_FROM_NAME")
	setString(&c.Resend.APIKey, "RESEND_API_KEY")
	setString(&c.SES.AccessKey, "AWS_SES_ACCESS_KEY")
	setString(&c.SES.SecretKey, "AWS_SES_SECRET_KEY")
	setString(&c.SES.Region, "AWS_SES_REGION")
	setString(&c.Webhooks.Dedupe, "WEBHOOK_DEDUPE")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")

	if v := os.Getenv("SEND_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Send.Timeout = time.Duration(secs) * time.Second
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate rejects unknown driver names and unusable timeouts.
func (c *Config) Validate() error {
	switch c.Send.Provider {
	case "resend", "ses", "log":
	default:
		return fmt.Errorf("unknown send provider %q", c.Send.Provider)
	}
	switch c.Webhooks.Dedupe {
	case "none", "postgres", "redis":
	default:
		return fmt.Errorf("unknown webhook dedupe mode %q", c.Webhooks.Dedupe)
	}
	switch c.Queue.Driver {
	case "memory", "amqp":
	default:
		return fmt.Errorf("unknown queue driver %q", c.Queue.Driver)
	}
	if c.Send.Timeout <= 0 {
		return errors.New("send timeout must be positive")
	}
	if c.Queue.Driver == "amqp" && c.Queue.AMQPURL == "" {
		return errors.New("amqp queue driver requires amqp_url")
	}
	return nil
}
