package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ayhamrabea/arabic-platform-sub000/pkg/database"
)

type Config struct {
	DB            database.Config
	StoreDriver   string
	RedisAddr     string
	JWTSecret     string
	AMQPURL       string
	ServerPort    string
	CORSOrigins   []string
	StatsCacheTTL time.Duration
	SweepInterval time.Duration
	SeedFile      string
}

// Load reads .env if present, then the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	return &Config{
		DB: database.Config{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "quizengine"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		StoreDriver:   getEnv("STORE_DRIVER", "postgres"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		AMQPURL:       getEnv("AMQP_URL", ""),
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		StatsCacheTTL: getDuration("STATS_CACHE_TTL", 10*time.Minute),
		SweepInterval: getDuration("SWEEP_INTERVAL", 30*time.Second),
		SeedFile:      getEnv("SEED_FILE", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("Warning: invalid %s %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
