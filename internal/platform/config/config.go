package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort string
	BaseURL string
	JWTKey  []byte
	JWTExp  time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AdminToken string
	AnswerSalt string

	// Shared timer for invite combats; individual per-leg timer for open ones.
	TimeLimitSeconds int
	// How long an OPEN combat waits for a second participant.
	JoinWindowHours int
	// Plaintext combat keys survive this long in the retrieval window.
	CombatKeyTTLSeconds int

	HFAPIBase        string
	HFTimeoutSeconds int

	AuthRateLimitMaxAttempts   int
	AuthRateLimitWindowMinutes int
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = &Config{
		APIPort:                    getEnv("API_PORT", "8080"),
		BaseURL:                    getEnv("BASE_URL", "http://localhost:3000"),
		JWTKey:                     []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:                     time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		DBHost:                     getEnv("DB_HOST", "localhost"),
		DBPort:                     getEnv("DB_PORT", "5432"),
		DBUser:                     getEnv("DB_USER", "user"),
		DBPassword:                 getEnv("DB_PASSWORD", "password"),
		DBName:                     getEnv("DB_NAME", "moltbattle_db"),
		DBSslMode:                  getEnv("DB_SSLMODE", "disable"),
		RedisAddr:                  getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:              getEnv("REDIS_PASSWORD", ""),
		RedisDB:                    getEnvAsInt("REDIS_DB", 0),
		AdminToken:                 getEnv("ADMIN_TOKEN", "admin-secret-token"),
		AnswerSalt:                 getEnv("ANSWER_SALT", "moltbattle_default_salt"),
		TimeLimitSeconds:           getEnvAsInt("TIME_LIMIT_SECONDS", 60),
		JoinWindowHours:            getEnvAsInt("JOIN_WINDOW_HOURS", 24),
		CombatKeyTTLSeconds:        getEnvAsInt("COMBAT_KEY_TTL_SECONDS", 600),
		HFAPIBase:                  getEnv("HF_API_BASE", "https://datasets-server.huggingface.co"),
		HFTimeoutSeconds:           getEnvAsInt("HF_TIMEOUT_SECONDS", 30),
		AuthRateLimitMaxAttempts:   getEnvAsInt("AUTH_RATE_LIMIT_MAX_ATTEMPTS", 5),
		AuthRateLimitWindowMinutes: getEnvAsInt("AUTH_RATE_LIMIT_WINDOW_MINUTES", 15),
	}

	AppConfig.DBConnStr = "host=" + AppConfig.DBHost +
		" port=" + AppConfig.DBPort +
		" user=" + AppConfig.DBUser +
		" password=" + AppConfig.DBPassword +
		" dbname=" + AppConfig.DBName +
		" sslmode=" + AppConfig.DBSslMode
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
