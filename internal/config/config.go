package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	RabbitMQ    RabbitMQConfig
	Reservation ReservationConfig
	Jobs        JobsConfig
	Import      ImportConfig
	Log         LogConfig
}

type ServerConfig struct {
	Host string
	Port int
	// RateLimit is the number of reserve calls a client may make per
	// RateWindow.
	RateLimit  int
	RateWindow time.Duration
	// IdempotencyTTL is how long a completed Idempotency-Key is remembered.
	IdempotencyTTL time.Duration
}

// RedisConfig is optional; an empty Addr disables caching, pub/sub,
// idempotency and rate limiting.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

// RabbitMQConfig is optional; an empty URL disables the AMQP event sink.
type RabbitMQConfig struct {
	URL   string
	Queue string
}

type ReservationConfig struct {
	DefaultTTL   time.Duration
	MinTTL       time.Duration
	MaxTTL       time.Duration
	PromotionTTL time.Duration
}

type JobsConfig struct {
	Enabled      bool
	ExpirySpec   string
	WaitlistSpec string
	BatchSize    int
}

type ImportConfig struct {
	Location *time.Location
}

type LogConfig struct {
	Level slog.Level
	JSON  bool
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverHost := os.Getenv("SERVER_HOST")
	if serverHost == "" {
		serverHost = "localhost"
	}

	serverPort, err := envInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	rateLimit, err := envInt("RESERVE_RATE_LIMIT", 10)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	rateWindow, err := envDuration("RESERVE_RATE_WINDOW", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	idemTTL, err := envDuration("IDEMPOTENCY_TTL", 2*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	serverCfg := ServerConfig{
		Host:           serverHost,
		Port:           serverPort,
		RateLimit:      rateLimit,
		RateWindow:     rateWindow,
		IdempotencyTTL: idemTTL,
	}

	postgresHost := os.Getenv("POSTGRES_HOST")
	if postgresHost == "" {
		postgresHost = "localhost"
	}

	postgresPort, err := envInt("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	postgresSSLMode := os.Getenv("POSTGRES_SSLMODE")
	if postgresSSLMode == "" {
		postgresSSLMode = "disable"
	}

	maxConns, err := envInt("POSTGRES_MAX_CONNS", 0)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	postgresCfg := PostgresConfig{
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		Host:     postgresHost,
		Port:     postgresPort,
		SSLMode:  postgresSSLMode,
		MaxConns: int32(maxConns),
	}

	redisDB, err := envInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	redisCfg := RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	rabbitCfg := RabbitMQConfig{
		URL:   os.Getenv("RABBITMQ_URL"),
		Queue: os.Getenv("RABBITMQ_QUEUE"),
	}

	reservationCfg, err := newReservationConfig()
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	batch, err := envInt("JOBS_BATCH_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	jobsCfg := JobsConfig{
		Enabled:      os.Getenv("JOBS_DISABLED") != "true",
		ExpirySpec:   envString("JOBS_EXPIRY_SPEC", "@every 1m"),
		WaitlistSpec: envString("JOBS_WAITLIST_SPEC", "@every 5m"),
		BatchSize:    batch,
	}

	tz := envString("IMPORT_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid IMPORT_TIMEZONE: %w", op, err)
	}

	logCfg := LogConfig{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
		JSON:  strings.EqualFold(os.Getenv("LOG_FORMAT"), "json"),
	}

	return &Config{
		Server:      serverCfg,
		Postgres:    postgresCfg,
		Redis:       redisCfg,
		RabbitMQ:    rabbitCfg,
		Reservation: reservationCfg,
		Jobs:        jobsCfg,
		Import:      ImportConfig{Location: loc},
		Log:         logCfg,
	}, nil
}

func newReservationConfig() (ReservationConfig, error) {
	var (
		cfg ReservationConfig
		err error
	)

	if cfg.DefaultTTL, err = envDuration("RESERVATION_TTL", 15*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.MinTTL, err = envDuration("RESERVATION_MIN_TTL", time.Minute); err != nil {
		return cfg, err
	}
	if cfg.MaxTTL, err = envDuration("RESERVATION_MAX_TTL", time.Hour); err != nil {
		return cfg, err
	}
	if cfg.PromotionTTL, err = envDuration("WAITLIST_PROMOTION_TTL", cfg.DefaultTTL); err != nil {
		return cfg, err
	}

	if cfg.MinTTL > cfg.MaxTTL {
		return cfg, fmt.Errorf("RESERVATION_MIN_TTL %s exceeds RESERVATION_MAX_TTL %s", cfg.MinTTL, cfg.MaxTTL)
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
