package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	pstrings "habitat/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	JWTSigningKey   string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"habitat"`
	JWTAudience     string        `env:"JWT_AUDIENCE" envDefault:"habitat-api"`
}

// Database points at Postgres. An empty URL runs every store in memory.
type Database struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
	ApplySchema     bool          `env:"DATABASE_APPLY_SCHEMA" envDefault:"false"`
}

// RedisConfig backs the invitation token cache. An empty URL disables it.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	TokenTTL     time.Duration `env:"REDIS_TOKEN_TTL" envDefault:"24h"`
}

// Kafka drives the outbox relay. No brokers means events stay in the outbox.
type Kafka struct {
	Brokers           []string      `env:"KAFKA_BROKERS" envSeparator:","`
	Topic             string        `env:"KAFKA_TOPIC" envDefault:"inspection-events"`
	Partitions        int32         `env:"KAFKA_PARTITIONS" envDefault:"3"`
	ReplicationFactor int16         `env:"KAFKA_REPLICATION_FACTOR" envDefault:"1"`
	RelayInterval     time.Duration `env:"KAFKA_RELAY_INTERVAL" envDefault:"1s"`
	RelayBatchSize    int           `env:"KAFKA_RELAY_BATCH_SIZE" envDefault:"100"`
}

// Storage selects the blob backend: memory, local or gcs.
type Storage struct {
	Backend      string `env:"STORAGE_BACKEND" envDefault:"local"`
	Bucket       string `env:"STORAGE_BUCKET"`
	Prefix       string `env:"STORAGE_PREFIX"`
	LocalDir     string `env:"STORAGE_LOCAL_DIR" envDefault:"./.data/storage"`
	LocalBaseURL string `env:"STORAGE_LOCAL_BASE_URL" envDefault:"http://localhost:8080/files"`
	LocalSignKey string `env:"STORAGE_LOCAL_SIGN_KEY" envDefault:"dev-storage-key"`
}

// Inspection holds the signature workflow knobs.
type Inspection struct {
	// InvitationTTL of zero keeps invitation tokens valid forever.
	InvitationTTL      time.Duration `env:"INSPECTION_INVITATION_TTL" envDefault:"0s"`
	TxTimeout          time.Duration `env:"INSPECTION_TX_TIMEOUT" envDefault:"5s"`
	SignedURLTTL       time.Duration `env:"INSPECTION_SIGNED_URL_TTL" envDefault:"15m"`
	UploadMaxAttempts  int           `env:"INSPECTION_UPLOAD_MAX_ATTEMPTS" envDefault:"3"`
	UploadInitialDelay time.Duration `env:"INSPECTION_UPLOAD_INITIAL_DELAY" envDefault:"200ms"`
	MaxSignatureBytes  int64         `env:"INSPECTION_MAX_SIGNATURE_BYTES" envDefault:"2097152"`
	AuditBufferSize    int           `env:"INSPECTION_AUDIT_BUFFER" envDefault:"256"`
}

// RateLimit bounds requests per client IP on the invitation token routes.
// Zero disables it.
type RateLimit struct {
	TokenRequests int           `env:"RATELIMIT_TOKEN_REQUESTS" envDefault:"30"`
	TokenWindow   time.Duration `env:"RATELIMIT_TOKEN_WINDOW" envDefault:"1m"`
}

type Config struct {
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	Server     Server
	Database   Database
	Redis      RedisConfig
	Kafka      Kafka
	Storage    Storage
	Inspection Inspection
	RateLimit  RateLimit
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.Kafka.Brokers = pstrings.DedupeAndTrim(cfg.Kafka.Brokers)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Storage.Backend {
	case "memory", "local":
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("STORAGE_BUCKET is required when STORAGE_BACKEND=gcs")
		}
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND %q (use memory, local or gcs)", c.Storage.Backend)
	}
	if c.Inspection.InvitationTTL < 0 {
		return fmt.Errorf("INSPECTION_INVITATION_TTL cannot be negative")
	}
	if c.Inspection.UploadMaxAttempts < 1 {
		return fmt.Errorf("INSPECTION_UPLOAD_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}
