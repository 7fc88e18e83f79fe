package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	Environment     string
	FirebaseProject string

	ServiceAccountJSON string
	ServiceAccountPath string

	StoreBackend    string // "firestore" or "memory"
	PresenceBackend string // "firestore", "redis" or "memory"

	StorageProvider string // "gcs" or "s3"
	StorageBucket   string
	S3              S3Config

	Redis       RedisConfig
	PresenceTTL time.Duration

	LoadingTimeout     time.Duration
	TypingWindow       time.Duration
	MaxAttachmentBytes int64
}

type S3Config struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PublicBase string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		FirebaseProject:    getEnv("FIREBASE_PROJECT_ID", ""),
		ServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		ServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		StoreBackend:       getEnv("STORE_BACKEND", "firestore"),
		PresenceBackend:    getEnv("PRESENCE_BACKEND", "firestore"),
		StorageProvider:    getEnv("STORAGE_PROVIDER", "gcs"),
		StorageBucket:      getEnv("STORAGE_BUCKET", ""),
		S3: S3Config{
			Region:     getEnv("S3_REGION", ""),
			Bucket:     getEnv("S3_BUCKET", ""),
			AccessKey:  getEnv("S3_ACCESS_KEY", ""),
			SecretKey:  getEnv("S3_SECRET_KEY", ""),
			Endpoint:   getEnv("S3_ENDPOINT", ""),
			PublicBase: getEnv("S3_PUBLIC_BASE", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		PresenceTTL:        getEnvAsDuration("PRESENCE_TTL", 5*time.Minute),
		LoadingTimeout:     getEnvAsDuration("LOADING_TIMEOUT", 8*time.Second),
		TypingWindow:       getEnvAsDuration("TYPING_WINDOW", 6*time.Second),
		MaxAttachmentBytes: getEnvAsInt64("MAX_ATTACHMENT_BYTES", 25<<20),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
