// config.go - Configuration loaded from environment variables

package configs

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

var (
	// OCR provider selection: "gemini" or "mistral"
	OCR_PROVIDER string

	// Gemini AI Configuration
	GEMINI_API_KEY       string
	OCR_MODEL_NAME       string
	STRUCTURE_MODEL_NAME string

	// Mistral OCR Configuration
	MISTRAL_API_KEY    string
	MISTRAL_MODEL_NAME string
	MISTRAL_BASE_URL   string

	// Pricing (per 1M tokens in USD)
	OCR_INPUT_PRICE_PER_MILLION        float64
	OCR_OUTPUT_PRICE_PER_MILLION       float64
	STRUCTURE_INPUT_PRICE_PER_MILLION  float64
	STRUCTURE_OUTPUT_PRICE_PER_MILLION float64
	USD_TO_THB                         float64

	// Gemini request budget
	GEMINI_REQUESTS_PER_MINUTE int
	GEMINI_MAX_RETRIES         int
	OCR_TIMEOUT                int // seconds
	STRUCTURE_TIMEOUT          int // seconds

	// Server Configuration
	PORT            string
	GIN_MODE        string
	UPLOAD_DIR      string
	ALLOWED_ORIGINS string
	MAX_UPLOAD_MB   int

	// Dataset
	DATASET_DIR         string
	ENABLE_OBJECT_STORE bool
	OBJECT_BUCKET       string

	// MongoDB Configuration
	MONGO_URI     string
	MONGO_DB_NAME string

	// Image preprocessing settings
	ENABLE_IMAGE_PREPROCESSING bool
	MAX_IMAGE_DIMENSION        int
	PREPROCESS_MODE            string

	// Labeling thresholds
	AUTO_LABEL_THRESHOLD        float64 // fuzzy score at or above which a scan is labeled without review
	REVIEW_CONFIDENCE_THRESHOLD float64 // OCR confidence below which an invoice row needs review
	SESSION_TTL_MINUTES         int

	// Logging
	LOG_LEVEL  string
	LOG_FORMAT string
)

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	OCR_PROVIDER = strings.ToLower(getEnv("OCR_PROVIDER", "gemini"))

	GEMINI_API_KEY = getEnv("GEMINI_API_KEY", "")
	OCR_MODEL_NAME = getEnv("OCR_MODEL_NAME", "gemini-2.5-flash")
	STRUCTURE_MODEL_NAME = getEnv("STRUCTURE_MODEL_NAME", "gemini-2.5-flash-lite")

	MISTRAL_API_KEY = getEnv("MISTRAL_API_KEY", "")
	MISTRAL_MODEL_NAME = getEnv("MISTRAL_MODEL_NAME", "mistral-ocr-latest")
	MISTRAL_BASE_URL = getEnv("MISTRAL_BASE_URL", "https://api.mistral.ai")

	// Flash for OCR, Flash-Lite for structuring
	OCR_INPUT_PRICE_PER_MILLION = getEnvFloat("OCR_INPUT_PRICE_PER_MILLION", 0.30)
	OCR_OUTPUT_PRICE_PER_MILLION = getEnvFloat("OCR_OUTPUT_PRICE_PER_MILLION", 2.50)
	STRUCTURE_INPUT_PRICE_PER_MILLION = getEnvFloat("STRUCTURE_INPUT_PRICE_PER_MILLION", 0.10)
	STRUCTURE_OUTPUT_PRICE_PER_MILLION = getEnvFloat("STRUCTURE_OUTPUT_PRICE_PER_MILLION", 0.40)
	USD_TO_THB = getEnvFloat("USD_TO_THB", 36.0)

	GEMINI_REQUESTS_PER_MINUTE = getEnvInt("GEMINI_REQUESTS_PER_MINUTE", 15)
	GEMINI_MAX_RETRIES = getEnvInt("GEMINI_MAX_RETRIES", 3)
	OCR_TIMEOUT = getEnvInt("OCR_TIMEOUT", 45)
	STRUCTURE_TIMEOUT = getEnvInt("STRUCTURE_TIMEOUT", 30)

	PORT = getEnv("PORT", "8080")
	GIN_MODE = getEnv("GIN_MODE", "release")
	UPLOAD_DIR = getEnv("UPLOAD_DIR", "uploads")
	ALLOWED_ORIGINS = getEnv("ALLOWED_ORIGINS", "*")
	MAX_UPLOAD_MB = getEnvInt("MAX_UPLOAD_MB", 10)

	DATASET_DIR = getEnv("DATASET_DIR", "dataset")
	ENABLE_OBJECT_STORE = getEnvBool("ENABLE_OBJECT_STORE", false)
	OBJECT_BUCKET = getEnv("OBJECT_BUCKET", "dataset")

	MONGO_URI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	MONGO_DB_NAME = getEnv("MONGO_DB_NAME", "invoice_labeler")

	ENABLE_IMAGE_PREPROCESSING = getEnvBool("ENABLE_IMAGE_PREPROCESSING", true)
	MAX_IMAGE_DIMENSION = getEnvInt("MAX_IMAGE_DIMENSION", 2000)
	PREPROCESS_MODE = getEnv("PREPROCESS_MODE", "balanced")

	AUTO_LABEL_THRESHOLD = getEnvFloat("AUTO_LABEL_THRESHOLD", 0.7)
	REVIEW_CONFIDENCE_THRESHOLD = getEnvFloat("REVIEW_CONFIDENCE_THRESHOLD", 0.7)
	SESSION_TTL_MINUTES = getEnvInt("SESSION_TTL_MINUTES", 60)

	LOG_LEVEL = getEnv("LOG_LEVEL", "info")
	LOG_FORMAT = getEnv("LOG_FORMAT", "auto")

	log.Debug().Str("provider", OCR_PROVIDER).Msg("Configuration loaded")
}

// ValidateServerConfig checks the settings the HTTP server cannot start without.
// The offline CLI commands never call it.
func ValidateServerConfig() error {
	var errs []error

	switch OCR_PROVIDER {
	case "gemini":
	case "mistral":
		if MISTRAL_API_KEY == "" {
			errs = append(errs, errors.New("MISTRAL_API_KEY environment variable is required when OCR_PROVIDER=mistral"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported OCR_PROVIDER %q (want gemini or mistral)", OCR_PROVIDER))
	}

	// structuring always runs on Gemini
	if GEMINI_API_KEY == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY environment variable is required"))
	}
	if MAX_UPLOAD_MB <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", MAX_UPLOAD_MB))
	}
	if AUTO_LABEL_THRESHOLD < 0 || AUTO_LABEL_THRESHOLD > 1 {
		errs = append(errs, fmt.Errorf("AUTO_LABEL_THRESHOLD must be within [0,1], got %g", AUTO_LABEL_THRESHOLD))
	}

	return errors.Join(errs...)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
