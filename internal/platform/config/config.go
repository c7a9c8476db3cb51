package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	platformstrings "immersion/pkg/platform/strings"
)

// Config is the full process configuration. Every field has a development
// default so the server starts with no environment at all.
type Config struct {
	Server        Server
	Database      DatabaseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Outbox        OutboxConfig
	Broadcast     BroadcastConfig
	FranceTravail FranceTravailConfig
	Webhooks      []WebhookConsumer
	Log           LogConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	ShutdownTimeout time.Duration
}

// DatabaseConfig tunes the Postgres pool. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the shared token cache. An empty URL keeps tokens in
// process memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the event stream subscriber. No brokers disables it.
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	Partitions  int32
	Replication int16
}

type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Workers      int
}

// BroadcastConfig holds the delivery policy shared by every partner gateway.
type BroadcastConfig struct {
	RetryBase         time.Duration
	RetryMaxBackoff   time.Duration
	RetryDeadline     time.Duration
	RetryJitter       time.Duration
	RequestTimeout    time.Duration
	TokenSafetyMargin time.Duration
	CircuitThreshold  int
}

// FranceTravailConfig configures the France Travail partner. No client id
// disables it.
type FranceTravailConfig struct {
	APIBaseURL     string
	AuthBaseURL    string
	ClientID       string
	ClientSecret   string
	Scope          string
	CommonQuota    Quota
	BroadcastQuota Quota
}

// Quota is a token bucket size and the window it refills over.
type Quota struct {
	Reservoir int
	Interval  time.Duration
}

// WebhookConsumer is an API consumer subscribed to convention updates.
type WebhookConsumer struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CallbackURL   string `json:"callbackUrl"`
	Authorization string `json:"authorization"`
}

type LogConfig struct {
	Level  string
	Format string
}

// Enabled reports whether partner credentials are configured.
func (c FranceTravailConfig) Enabled() bool {
	return c.ClientID != "" && c.APIBaseURL != ""
}

// FromEnv builds the configuration from environment variables so main stays lean.
func FromEnv() (Config, error) {
	e := &env{}
	cfg := Config{
		// The JWT default is for development and must be overridden in production.
		Server: Server{
			Addr:            e.str("IMMERSION_ADDR", ":8080"),
			JWTSigningKey:   e.str("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			URL:             e.str("DATABASE_URL", ""),
			MaxOpenConns:    e.integer("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    e.integer("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: e.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:     e.list("KAFKA_BROKERS"),
			Topic:       e.str("KAFKA_TOPIC", "immersion.convention-events"),
			Partitions:  int32(e.integer("KAFKA_TOPIC_PARTITIONS", 3)),
			Replication: int16(e.integer("KAFKA_TOPIC_REPLICATION", 1)),
		},
		Outbox: OutboxConfig{
			PollInterval: e.duration("OUTBOX_POLL_INTERVAL", 10*time.Second),
			BatchSize:    e.integer("OUTBOX_BATCH_SIZE", 50),
			Workers:      e.integer("OUTBOX_WORKERS", 4),
		},
		Broadcast: BroadcastConfig{
			RetryBase:         e.duration("BROADCAST_RETRY_BASE", time.Second),
			RetryMaxBackoff:   e.duration("BROADCAST_RETRY_MAX_BACKOFF", 30*time.Second),
			RetryDeadline:     e.duration("BROADCAST_RETRY_DEADLINE", 2*time.Minute),
			RetryJitter:       e.duration("BROADCAST_RETRY_JITTER", 250*time.Millisecond),
			RequestTimeout:    e.duration("BROADCAST_REQUEST_TIMEOUT", 10*time.Second),
			TokenSafetyMargin: e.duration("BROADCAST_TOKEN_SAFETY_MARGIN", 30*time.Second),
			CircuitThreshold:  e.integer("BROADCAST_CIRCUIT_THRESHOLD", 5),
		},
		FranceTravail: FranceTravailConfig{
			APIBaseURL:   e.str("FT_API_BASE_URL", ""),
			AuthBaseURL:  e.str("FT_AUTH_BASE_URL", ""),
			ClientID:     e.str("FT_CLIENT_ID", ""),
			ClientSecret: e.str("FT_CLIENT_SECRET", ""),
			Scope:        e.str("FT_SCOPE", "api_immersion-prov2"),
			CommonQuota: Quota{
				Reservoir: e.integer("FT_COMMON_RESERVOIR", 1),
				Interval:  e.duration("FT_COMMON_INTERVAL", time.Second),
			},
			BroadcastQuota: Quota{
				Reservoir: e.integer("FT_BROADCAST_RESERVOIR", 2),
				Interval:  e.duration("FT_BROADCAST_INTERVAL", time.Second),
			},
		},
		Log: LogConfig{
			Level:  e.str("LOG_LEVEL", "info"),
			Format: e.str("LOG_FORMAT", "json"),
		},
	}
	if raw := os.Getenv("WEBHOOK_CONSUMERS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Webhooks); err != nil {
			e.fail("WEBHOOK_CONSUMERS", err)
		}
	}
	if e.err != nil {
		return Config{}, e.err
	}
	return cfg, nil
}

// env reads typed values and keeps the first parse error.
type env struct {
	err error
}

func (e *env) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("config %s: %w", key, err)
	}
}

func (e *env) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return d
}

func (e *env) list(key string) []string {
	return platformstrings.SplitList(os.Getenv(key), ",")
}
