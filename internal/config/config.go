package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                      string
	VerifyToken               string
	WhatsAppToken             string
	PhoneNumberID             string
	WhatsAppBusinessAccountID string
	GraphAPIURL               string

	// Database
	DBDriver   string // postgres or sqlite
	DBPath     string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string
	DBLogLevel string

	LogLevel string

	// Flow engine
	FlowTimeout   time.Duration
	Timezone      string
	GraphCacheTTL time.Duration

	// Per-conversation serialization
	LockBackend   string // memory or redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	// Outbound throttling (messages per second per workspace)
	SendRate  float64
	SendBurst int

	HTTPCallTimeout time.Duration
	AIResponderURL  string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port:                      getEnv("PORT", "8080"),
		VerifyToken:               getEnv("VERIFY_TOKEN", ""),
		WhatsAppToken:             getEnv("WHATSAPP_TOKEN", ""),
		PhoneNumberID:             getEnv("PHONE_NUMBER_ID", ""),
		WhatsAppBusinessAccountID: getEnv("WABA_ID", ""),
		GraphAPIURL:               getEnv("GRAPH_API_URL", "https://graph.facebook.com/v19.0"),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBPath:     getEnv("DB_PATH", "./flowbot.db"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "flowbot"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBLogLevel: getEnv("DB_LOG_LEVEL", "warn"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		FlowTimeout:   getDuration("FLOW_TIMEOUT", 12*time.Minute),
		Timezone:      getEnv("TIMEZONE", "Local"),
		GraphCacheTTL: getDuration("GRAPH_CACHE_TTL", 5*time.Minute),

		LockBackend:   getEnv("LOCK_BACKEND", "memory"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),
		LockTTL:       getDuration("LOCK_TTL", 30*time.Second),

		SendRate:  getFloat("SEND_RATE", 20),
		SendBurst: getInt("SEND_BURST", 5),

		HTTPCallTimeout: getDuration("HTTP_CALL_TIMEOUT", 15*time.Second),
		AIResponderURL:  getEnv("AI_RESPONDER_URL", ""),
	}
}

// Location resolves the configured time zone used for working-hours checks.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("Warning: unknown TIMEZONE %q, using local time", c.Timezone)
		return time.Local
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Warning: invalid integer for %s: %q", key, value)
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Printf("Warning: invalid number for %s: %q", key, value)
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Warning: invalid duration for %s: %q", key, value)
	}
	return fallback
}
