package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	KVBackendMemory   = "memory"
	KVBackendRedis    = "redis"
	KVBackendPostgres = "postgres"
)

type Config struct {
	// Server
	Port        string
	Env         string
	FrontendURL string
	LogFile     string

	// Storage
	KVBackend     string
	DatabaseURL   string
	RedisURL      string
	MigrationsDir string

	// JWT
	JWTSecret string

	// Remote content API
	GenerateURL       string
	LiveQuestionsURL  string
	ChatAnswerURL     string
	ChannelVideosURL  string
	LatestLiveURL     string
	ContentAPITimeout time.Duration

	// Gemini AI
	GeminiAPIKey         string
	GeminiModel          string
	GeminiConcurrentReqs int

	// Generation
	StrictAnswers      bool
	RandomSeed         int64
	GenerateRatePerMin int
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "development"),
		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
		LogFile:     getEnvOrDefault("LOG_FILE", ""),

		KVBackend:     strings.ToLower(getEnvOrDefault("KV_BACKEND", KVBackendMemory)),
		DatabaseURL:   getEnvOrDefault("DATABASE_URL", ""),
		RedisURL:      getEnvOrDefault("REDIS_URL", ""),
		MigrationsDir: getEnvOrDefault("MIGRATIONS_DIR", "migrations"),

		JWTSecret: mustGetEnv("JWT_SECRET"),

		GenerateURL:       getEnvOrDefault("CONTENT_GENERATE_URL", ""),
		LiveQuestionsURL:  getEnvOrDefault("CONTENT_LIVE_QUESTIONS_URL", ""),
		ChatAnswerURL:     getEnvOrDefault("CONTENT_CHAT_ANSWER_URL", ""),
		ChannelVideosURL:  getEnvOrDefault("CONTENT_CHANNEL_VIDEOS_URL", ""),
		LatestLiveURL:     getEnvOrDefault("CONTENT_LATEST_LIVE_URL", ""),
		ContentAPITimeout: time.Duration(getEnvAsIntOrDefault("CONTENT_API_TIMEOUT_SECONDS", 120)) * time.Second,

		GeminiAPIKey:         getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:          getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),

		StrictAnswers:      getEnvAsBoolOrDefault("STRICT_ANSWERS", false),
		RandomSeed:         int64(getEnvAsIntOrDefault("RANDOM_SEED", 0)),
		GenerateRatePerMin: getEnvAsIntOrDefault("GENERATE_REQUESTS_PER_MINUTE", 10),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.KVBackend {
	case KVBackendMemory:
	case KVBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("KV_BACKEND=redis requires REDIS_URL")
		}
	case KVBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("KV_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown KV_BACKEND %q", c.KVBackend)
	}
	if c.GenerateRatePerMin <= 0 {
		return fmt.Errorf("GENERATE_REQUESTS_PER_MINUTE must be positive")
	}
	return nil
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
