package internal

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Firestore     FirestoreConfig     `mapstructure:"firestore"`
	Mongo         MongoConfig         `mapstructure:"mongo"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Email         EmailConfig         `mapstructure:"email"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Security      SecurityConfig      `mapstructure:"security"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Environment   string              `mapstructure:"environment"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	OpenAPIPath       string        `mapstructure:"openapi_path"`
}

const (
	DriverFirestore = "firestore"
	DriverMongo     = "mongo"
	DriverPostgres  = "postgres"
	DriverSQLite    = "sqlite"
)

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type FirestoreConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	PendingPayments string `mapstructure:"pending_payments_collection"`
	Invoices        string `mapstructure:"invoices_collection"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type GatewayConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	SecretKey string        `mapstructure:"secret_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RetryMax  int           `mapstructure:"retry_max"`
}

// Configured is false when no credentials were provided. The service still
// starts; confirmations then fail with a configuration error.
func (c GatewayConfig) Configured() bool {
	return strings.TrimSpace(c.SecretKey) != ""
}

type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type KafkaConfig struct {
	Brokers                []string `mapstructure:"brokers"`
	ConsumerGroup          string   `mapstructure:"consumer_group"`
	PaymentConfirmedTopic  string   `mapstructure:"payment_confirmed_topic"`
	NotificationRetryTopic string   `mapstructure:"notification_retry_topic"`
	MaxNotificationRetries int      `mapstructure:"max_notification_retries"`
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type SecurityConfig struct {
	// JWTPublicKey is a base64 encoded PEM RSA public key used to verify
	// operator tokens on the admin endpoints.
	JWTPublicKey string `mapstructure:"jwt_public_key"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ----------------- DEFAULTS -----------------

func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.OpenAPIPath == "" {
		c.Server.OpenAPIPath = "./api/openapi.yml"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverFirestore
	}
	if c.Firestore.PendingPayments == "" {
		c.Firestore.PendingPayments = "pendingPayments"
	}
	if c.Firestore.Invoices == "" {
		c.Firestore.Invoices = "invoices"
	}
	if c.Gateway.BaseURL == "" {
		c.Gateway.BaseURL = "https://api.stripe.com"
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 30 * time.Second
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 30 * time.Second
	}
	if c.Kafka.PaymentConfirmedTopic == "" {
		c.Kafka.PaymentConfirmedTopic = "payments.confirmed"
	}
	if c.Kafka.NotificationRetryTopic == "" {
		c.Kafka.NotificationRetryTopic = "notifications.retry"
	}
	if c.Kafka.ConsumerGroup == "" {
		c.Kafka.ConsumerGroup = "coaching-payments"
	}
	if c.Kafka.MaxNotificationRetries == 0 {
		c.Kafka.MaxNotificationRetries = 5
	}
	if c.Archive.Prefix == "" {
		c.Archive.Prefix = "receipts"
	}
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	switch c.Database.Driver {
	case DriverFirestore:
		if c.Firestore.ProjectID == "" {
			errs = append(errs, "firestore config: project_id is required")
		}
	case DriverMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			errs = append(errs, "mongo config: uri and database are required")
		}
	}

	if err := c.Email.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("email config: %v", err))
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		errs = append(errs, "archive config: bucket is required when enabled")
	}

	if c.Security.JWTPublicKey != "" {
		if _, err := c.Security.GetPublicKey(); err != nil {
			errs = append(errs, fmt.Sprintf("security config: %v", err))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		for _, origin := range c.Origins() {
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *ServerConfig) Origins() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case DriverFirestore, DriverMongo:
		return nil
	case DriverPostgres, DriverSQLite:
		if c.Source == "" {
			return errors.New("source is required for relational drivers")
		}
		if c.MaxIdleConns > c.MaxOpenConns {
			return errors.New("max_idle_conns cannot be greater than max_open_conns")
		}
		return nil
	default:
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *EmailConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Host == "" || c.Port == 0 {
		return errors.New("host and port are required when email is enabled")
	}
	if c.From == "" {
		return errors.New("from is required when email is enabled")
	}
	return nil
}

func (c *SecurityConfig) GetPublicKey() (*rsa.PublicKey, error) {
	keyData, err := base64.StdEncoding.DecodeString(c.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(keyData)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT public key: %w", err)
	}
	return key, nil
}
