// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Config is the process configuration read from the environment.
type Config struct {
	Port     string
	LogLevel logrus.Level

	// Postgres is optional; an empty host disables persistence.
	PGHost     string
	PGPort     string
	PGUser     string
	PGPassword string
	PGDatabase string

	// RedisAddr is optional; empty disables move-history publishing.
	RedisAddr        string
	RedisDB          int
	HistoryQueueName string

	FinishedRoomGrace     time.Duration
	MatchSeatTimeout      time.Duration
	NavalPlacementTimeout time.Duration
	MemoryFlipBackDelay   time.Duration
	MemoryDeckSize        int

	JanitorSchedule     string
	TournamentRetention time.Duration

	HistorianBatchSize int
	HistorianFlush     time.Duration

	AuthPrivateKeyPath string
	AuthPublicKeyPath  string
}

const DefaultHistoryQueue = "arena_moves"

// Load reads every setting, applying defaults for missing values.
func Load() (Config, error) {
	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "debug"))
	if err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	c := Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: level,

		PGHost:     os.Getenv("PG_HOST"),
		PGPort:     getEnv("PG_PORT", "5432"),
		PGUser:     os.Getenv("POSTGRES_USER"),
		PGPassword: os.Getenv("POSTGRES_PASSWORD"),
		PGDatabase: os.Getenv("PG_DATABASE"),

		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		HistoryQueueName: getEnv("HISTORY_QUEUE_NAME", DefaultHistoryQueue),

		MemoryDeckSize:  getEnvInt("MEMORY_DECK_SIZE", 16),
		JanitorSchedule: getEnv("JANITOR_SCHEDULE", "@every 5m"),

		HistorianBatchSize: getEnvInt("HISTORIAN_BATCH_SIZE", 100),

		AuthPrivateKeyPath: os.Getenv("AUTH_PRIVATE_KEY_PATH"),
		AuthPublicKeyPath:  os.Getenv("AUTH_PUBLIC_KEY_PATH"),
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"FINISHED_ROOM_GRACE", 60 * time.Second, &c.FinishedRoomGrace},
		{"MATCH_SEAT_TIMEOUT", 2 * time.Minute, &c.MatchSeatTimeout},
		{"NAVAL_PLACEMENT_TIMEOUT", 60 * time.Second, &c.NavalPlacementTimeout},
		{"MEMORY_FLIP_BACK_DELAY", 1200 * time.Millisecond, &c.MemoryFlipBackDelay},
		{"TOURNAMENT_RETENTION", 30 * time.Minute, &c.TournamentRetention},
	}
	for _, d := range durations {
		v, err := getEnvDuration(d.key, d.def)
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}
	c.HistorianFlush = time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond
	return c, nil
}

// PostgresURL is the pgx connection string, or "" when Postgres is off.
func (c Config) PostgresURL() string {
	if c.PGHost == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
