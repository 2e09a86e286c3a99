package config

import (
	"fmt"
	"strings"
	"time"

	"rtc-coordinator/pkg/constants"
	"rtc-coordinator/pkg/env"
)

// Quality sink backends
const (
	QualitySinkLog       = "log"
	QualitySinkCockroach = "cockroach"
	QualitySinkCassandra = "cassandra"
)

// Config holds all configuration for the coordinator
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Cassandra CassandraConfig
	MinIO     MinIOConfig
	Call      CallConfig
	Signaling SignalingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port        int
	Environment string // development, staging, production
	ServiceName string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration

	// RateLimit is the number of API requests allowed per user per RateWindow
	RateLimit  int
	RateWindow time.Duration
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// CassandraConfig holds Cassandra configuration
type CassandraConfig struct {
	Hosts    []string
	Keyspace string
	Username string
	Password string
	Timeout  time.Duration
}

// MinIOConfig holds MinIO configuration for recording uploads
type MinIOConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string
}

// CallConfig holds session lifecycle and quality settings
type CallConfig struct {
	RingTimeout         time.Duration
	IdleTimeout         time.Duration
	ReaperInterval      time.Duration
	PacketLossThreshold float64
	LatencyThreshold    float64
	RecordingFormat     string
	QualitySink         string // log, cockroach, cassandra
}

// SignalingConfig holds WebSocket transport settings
type SignalingConfig struct {
	MaxConnections int
	SendBufferSize int
	AllowedOrigins []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        env.GetInt("PORT", 8085),
			Environment: env.GetString("ENV", "development"),
			ServiceName: env.GetString("SERVICE_NAME", "call-coordinator"),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/coordinator.log"),
		},
		Redis: RedisConfig{
			Enabled:    env.GetBool("REDIS_ENABLED", true),
			Host:       env.GetString("REDIS_HOST", "localhost"),
			Port:       env.GetInt("REDIS_PORT", 6379),
			Password:   env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:         env.GetInt("REDIS_DB", 0),
			PoolSize:   env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:    env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
			RateLimit:  env.GetInt("API_RATE_LIMIT", 120),
			RateWindow: env.GetDuration("API_RATE_WINDOW", time.Minute),
		},
		Database: DatabaseConfig{
			Host:     env.GetString("DB_HOST", "localhost"),
			Port:     env.GetInt("DB_PORT", 26257),
			User:     env.GetString("DB_USER", "root"),
			Password: env.GetStringFromFile("DB_PASSWORD", ""),
			Database: env.GetString("DB_NAME", "rtc_coordinator"),
			SSLMode:  env.GetString("DB_SSL_MODE", "disable"),
		},
		Cassandra: CassandraConfig{
			Hosts:    env.GetStringSlice("CASSANDRA_HOSTS", []string{"localhost"}),
			Keyspace: env.GetString("CASSANDRA_KEYSPACE", "rtc_coordinator"),
			Username: env.GetString("CASSANDRA_USER", ""),
			Password: env.GetStringFromFile("CASSANDRA_PASSWORD", ""),
			Timeout:  env.GetDuration("CASSANDRA_TIMEOUT", 10*time.Second),
		},
		MinIO: MinIOConfig{
			Enabled:   env.GetBool("MINIO_ENABLED", false),
			Endpoint:  env.GetString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", "minioadmin"),
			UseSSL:    env.GetBool("MINIO_USE_SSL", false),
			Bucket:    env.GetString("MINIO_BUCKET", "call-recordings"),
			Region:    env.GetString("MINIO_REGION", "us-east-1"),
		},
		Call: CallConfig{
			RingTimeout:         env.GetDuration("CALL_RING_TIMEOUT", constants.DefaultRingTimeout),
			IdleTimeout:         env.GetDuration("CALL_IDLE_TIMEOUT", constants.DefaultIdleTimeout),
			ReaperInterval:      env.GetDuration("CALL_REAPER_INTERVAL", constants.DefaultReaperInterval),
			PacketLossThreshold: env.GetFloat("QUALITY_PACKET_LOSS_THRESHOLD", constants.DefaultPacketLossThreshold),
			LatencyThreshold:    env.GetFloat("QUALITY_LATENCY_THRESHOLD", constants.DefaultLatencyThreshold),
			RecordingFormat:     env.GetString("RECORDING_FORMAT", constants.DefaultRecordingFormat),
			QualitySink:         strings.ToLower(env.GetString("QUALITY_SINK", QualitySinkLog)),
		},
		Signaling: SignalingConfig{
			MaxConnections: env.GetInt("WS_MAX_SIGNALING_CONNECTIONS", constants.DefaultMaxSignalingConnections),
			SendBufferSize: env.GetInt("WS_SEND_BUFFER_SIZE", constants.DefaultSendBufferSize),
			AllowedOrigins: env.GetStringSlice("WS_ALLOWED_ORIGINS", []string{
				"http://localhost:3000",
				"http://127.0.0.1:3000",
			}),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Call.QualitySink {
	case QualitySinkLog, QualitySinkCockroach, QualitySinkCassandra:
	default:
		return fmt.Errorf("QUALITY_SINK must be one of log, cockroach, cassandra (got %q)", c.Call.QualitySink)
	}

	if c.Call.RingTimeout <= 0 || c.Call.IdleTimeout <= 0 {
		return fmt.Errorf("call ring and idle timeouts must be positive")
	}
	if c.Call.ReaperInterval < time.Second {
		return fmt.Errorf("CALL_REAPER_INTERVAL must be at least 1s")
	}
	if c.Call.PacketLossThreshold < 0 || c.Call.LatencyThreshold < 0 {
		return fmt.Errorf("quality thresholds must not be negative")
	}
	if strings.ContainsAny(c.Call.RecordingFormat, "./ ") || c.Call.RecordingFormat == "" {
		return fmt.Errorf("RECORDING_FORMAT must be a bare file extension")
	}

	if c.Signaling.MaxConnections <= 0 || c.Signaling.SendBufferSize <= 0 {
		return fmt.Errorf("signaling connection limits must be positive")
	}

	if c.Server.Environment == "production" {
		if c.MinIO.Enabled && c.MinIO.AccessKey == "minioadmin" {
			return fmt.Errorf("MINIO_ACCESS_KEY must be changed in production")
		}
		for _, origin := range c.Signaling.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("WS_ALLOWED_ORIGINS must not contain * in production")
			}
		}
	}

	return nil
}

// Addr returns the HTTP listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
