package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port         string
	DatabasePath string
	LogLevel     string

	// Security settings
	JWTSecret          string
	TokenEncryptionKey string
	OAuthStateString   string
	AllowedOrigins     []string

	// Plaid (aggregator)
	PlaidClientID string
	PlaidSecret   string
	PlaidEnv      string

	// Stripe (processor)
	StripeClientID   string
	StripeSecretKey  string
	StripeAPIBaseURL string

	// PayPal (processor)
	PayPalClientID     string
	PayPalClientSecret string
	PayPalEnv          string

	// Sync engine
	ProviderTimeout       time.Duration // one provider call
	SyncFetchTimeout      time.Duration // one credential's whole fetch
	ProviderRatePerSecond int
	SyncWindowDays        int
	SyncConcurrency       int
	CategoryMapPath       string
	IntegrationRetention  time.Duration

	// Frontend URL for reference (e.g., CORS, redirects)
	FrontendBaseURL string
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
// It centralizes all configuration logic for the application.
func LoadConfig() {
	// 1. Try loading from the current directory (standard behavior)
	errEnv := godotenv.Load()

	// 2. If not found, try loading from the parent directory
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables (expected in production).")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	// --- Security & Tokens (Secrets) ---
	jwtSecret := getRequiredEnv("JWT_SECRET")
	tokenEncryptionKey := getRequiredEnv("TOKEN_ENCRYPTION_KEY")

	oauthStateString := getEnv("OAUTH_STATE_STRING", "secure-random-state-string-for-dev-only")
	if oauthStateString == "secure-random-state-string-for-dev-only" {
		log.Println("WARNING: Using default OAUTH_STATE_STRING. Set this in production.")
	}

	frontendBaseURL := getEnv("APP_BASE_URL", "http://localhost:3000")

	Cfg = &AppConfig{
		// Core
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./financeflow.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		// Security
		JWTSecret:          jwtSecret,
		TokenEncryptionKey: tokenEncryptionKey,
		OAuthStateString:   oauthStateString,
		AllowedOrigins:     getEnvAsList("ALLOWED_ORIGINS", frontendBaseURL),

		// Providers
		PlaidClientID: getEnv("PLAID_CLIENT_ID", ""),
		PlaidSecret:   getEnv("PLAID_SECRET", ""),
		PlaidEnv:      getEnv("PLAID_ENV", "sandbox"),

		StripeClientID:   getEnv("STRIPE_CLIENT_ID", ""),
		StripeSecretKey:  getEnv("STRIPE_SECRET_KEY", ""),
		StripeAPIBaseURL: getEnv("STRIPE_API_BASE_URL", "https://api.stripe.com"),

		PayPalClientID:     getEnv("PAYPAL_CLIENT_ID", ""),
		PayPalClientSecret: getEnv("PAYPAL_CLIENT_SECRET", ""),
		PayPalEnv:          getEnv("PAYPAL_ENV", "sandbox"),

		// Sync engine
		ProviderTimeout:       getEnvAsDuration("PROVIDER_TIMEOUT", 20*time.Second),
		SyncFetchTimeout:      getEnvAsDuration("SYNC_FETCH_TIMEOUT", 90*time.Second),
		ProviderRatePerSecond: getEnvAsInt("PROVIDER_RATE_PER_SECOND", 5),
		SyncWindowDays:        getEnvAsInt("SYNC_WINDOW_DAYS", 30),
		SyncConcurrency:       getEnvAsInt("SYNC_CONCURRENCY", 4),
		CategoryMapPath:       getEnv("CATEGORY_MAP_PATH", "data/categories.yaml"),
		IntegrationRetention:  getEnvAsDuration("INTEGRATION_RETENTION", 720*time.Hour), // 30 days

		FrontendBaseURL: frontendBaseURL,
	}

	if Cfg.SyncWindowDays <= 0 {
		log.Printf("WARNING: SYNC_WINDOW_DAYS must be positive, got %d. Using 30.", Cfg.SyncWindowDays)
		Cfg.SyncWindowDays = 30
	}
	if Cfg.SyncFetchTimeout < Cfg.ProviderTimeout {
		log.Printf("WARNING: SYNC_FETCH_TIMEOUT (%s) is shorter than PROVIDER_TIMEOUT (%s). Using %s.",
			Cfg.SyncFetchTimeout, Cfg.ProviderTimeout, Cfg.ProviderTimeout)
		Cfg.SyncFetchTimeout = Cfg.ProviderTimeout
	}
	if Cfg.SyncConcurrency <= 0 {
		Cfg.SyncConcurrency = 1
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, PlaidEnv=%s, PayPalEnv=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.PlaidEnv, Cfg.PayPalEnv)
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

// getRequiredEnv retrieves an environment variable or terminates the application if not set.
func getRequiredEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set or is empty. Application cannot start securely.", key)
	}
	return value
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

// getEnvAsList retrieves and parses a comma-separated list, dropping empty entries.
func getEnvAsList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}
