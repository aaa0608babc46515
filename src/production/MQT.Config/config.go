package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers understood by the container.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Unlock duration bounds in milliseconds, enforced by the dispatcher.
const (
	MinUnlockMs = 50
	MaxUnlockMs = 10000
)

// Config holds all locker service configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Store configuration
	Store StoreConfig `json:"store"`

	// MQTT configuration
	MQTT MQTTConfig `json:"mqtt"`

	// Locker protocol configuration
	Locker LockerConfig `json:"locker"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// CORS configuration
	CORS CORSConfig `json:"cors"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// StoreConfig selects and configures the durable store
type StoreConfig struct {
	Driver     string `json:"driver"`
	SQLitePath string `json:"sqlite_path"`

	PostgresHost     string `json:"postgres_host"`
	PostgresPort     int    `json:"postgres_port"`
	PostgresUser     string `json:"postgres_user"`
	PostgresPassword string `json:"postgres_password"`
	PostgresDB       string `json:"postgres_db"`
	PostgresSSLMode  string `json:"postgres_ssl_mode"`
	MaxConns         int    `json:"max_conns"`
	MinConns         int    `json:"min_conns"`

	MongoURI string `json:"mongo_uri"`
	MongoDB  string `json:"mongo_db"`

	ConnectTimeout time.Duration `json:"connect_timeout"`
}

// MQTTConfig holds MQTT-related configuration
type MQTTConfig struct {
	BrokerHost           string        `json:"broker_host"`
	BrokerPort           int           `json:"broker_port"`
	BrokerUser           string        `json:"broker_user"`
	BrokerPass           string        `json:"broker_pass"`
	UseTLS               bool          `json:"use_tls"`
	CACertPath           string        `json:"ca_cert_path"`
	ClientID             string        `json:"client_id"`
	KeepAlive            time.Duration `json:"keep_alive"`
	PingTimeout          time.Duration `json:"ping_timeout"`
	ConnectWait          time.Duration `json:"connect_wait"`
	MaxReconnectInterval time.Duration `json:"max_reconnect_interval"`
}

// LockerConfig holds the locker topic scheme and command defaults
type LockerConfig struct {
	TopicPrefix     string `json:"topic_prefix"`
	QoS             int    `json:"qos"` // subscription only; commands are always QoS 1
	DefaultUnlockMs int    `json:"default_unlock_ms"`
	IngestBuffer    int    `json:"ingest_buffer"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"` // json or text
	Output       string `json:"output"` // stdout, stderr, or file path
	EnableCaller bool   `json:"enable_caller"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

// Load loads configuration from environment variables with fallback defaults
func Load() (*Config, error) {
	// A missing .env is fine, variables may be set directly
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8000"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		Store: StoreConfig{
			Driver:           strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
			SQLitePath:       getEnv("SQLITE_PATH", "locker.db"),
			PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
			PostgresPort:     getInt("POSTGRES_PORT", 5432),
			PostgresUser:     getEnv("POSTGRES_USER", ""),
			PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
			PostgresDB:       getEnv("POSTGRES_DB", "locker"),
			PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns:         getInt("POSTGRES_MAX_CONNS", 10),
			MinConns:         getInt("POSTGRES_MIN_CONNS", 2),
			MongoURI:         getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			MongoDB:          getEnv("MONGODB_DB", "locker"),
			ConnectTimeout:   getDuration("STORE_CONNECT_TIMEOUT", 20*time.Second),
		},
		MQTT: MQTTConfig{
			BrokerHost:           getEnv("BROKER_HOST", "localhost"),
			BrokerPort:           getInt("BROKER_PORT", 1883),
			BrokerUser:           getEnv("BROKER_USER", ""),
			BrokerPass:           getEnv("BROKER_PASS", ""),
			UseTLS:               getBool("BROKER_TLS", false),
			CACertPath:           getEnv("BROKER_CA_FILE", ""),
			ClientID:             getEnv("MQTT_CLIENT_ID", "locker-backend"),
			KeepAlive:            getDuration("MQTT_KEEP_ALIVE", 60*time.Second),
			PingTimeout:          getDuration("MQTT_PING_TIMEOUT", 10*time.Second),
			ConnectWait:          getDuration("MQTT_CONNECT_WAIT", 2*time.Second),
			MaxReconnectInterval: getDuration("MQTT_MAX_RECONNECT_INTERVAL", time.Minute),
		},
		Locker: LockerConfig{
			TopicPrefix:     getEnv("LOCKER_TOPIC_PREFIX", "locker"),
			QoS:             getInt("LOCKER_QOS", 1),
			DefaultUnlockMs: getInt("LOCKER_DEFAULT_UNLOCK_MS", 1500),
			IngestBuffer:    getInt("LOCKER_INGEST_BUFFER", 1024),
		},
		Logging: LoggingConfig{
			Level:        getEnv("LOG_LEVEL", "info"),
			Format:       getEnv("LOG_FORMAT", "text"),
			Output:       getEnv("LOG_OUTPUT", "stdout"),
			EnableCaller: getBool("LOG_ENABLE_CALLER", false),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods:   getStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders:   getStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "X-Request-ID"}),
			ExposedHeaders:   getStringSlice("CORS_EXPOSED_HEADERS", []string{"Content-Length", "X-Request-ID"}),
			AllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getInt("CORS_MAX_AGE", 43200), // 12 hours
		},
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required for the postgres driver")
		}
	case DriverMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Locker.TopicPrefix == "" || strings.Contains(c.Locker.TopicPrefix, "/") {
		return fmt.Errorf("LOCKER_TOPIC_PREFIX must be a single non-empty topic segment")
	}
	if c.Locker.QoS < 0 || c.Locker.QoS > 2 {
		return fmt.Errorf("LOCKER_QOS must be 0, 1 or 2")
	}
	if c.Locker.DefaultUnlockMs < MinUnlockMs || c.Locker.DefaultUnlockMs > MaxUnlockMs {
		return fmt.Errorf("LOCKER_DEFAULT_UNLOCK_MS must be between %d and %d", MinUnlockMs, MaxUnlockMs)
	}
	if c.Locker.IngestBuffer < 1 {
		return fmt.Errorf("LOCKER_INGEST_BUFFER must be positive")
	}
	return nil
}

// GetDatabaseDSN returns the postgres connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Store.PostgresHost, c.Store.PostgresPort, c.Store.PostgresUser, c.Store.PostgresPassword, c.Store.PostgresDB, c.Store.PostgresSSLMode)
}

// GetMQTTBrokerURL returns the MQTT broker URL
func (c *Config) GetMQTTBrokerURL() string {
	scheme := "tcp"
	if c.MQTT.UseTLS {
		scheme = "tcps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.MQTT.BrokerHost, c.MQTT.BrokerPort)
}

// PublisherClientID and SubscriberClientID keep the two broker sessions apart.
func (c *Config) PublisherClientID() string {
	return c.MQTT.ClientID + "-pub"
}

func (c *Config) SubscriberClientID() string {
	return c.MQTT.ClientID + "-sub"
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return intValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if value == "1" || value == "true" || value == "TRUE" {
		return true
	}
	if value == "0" || value == "false" || value == "FALSE" {
		return false
	}
	log.Fatalf("invalid %s: %q (expected true/false or 1/0)", key, value)
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return duration
}

func getStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
