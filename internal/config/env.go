package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

// DefaultEmbedModel is the OpenAI model used when EMBED_MODEL is unset.
const DefaultEmbedModel = "text-embedding-3-small"

type Config struct {
	// workspace
	TempDir   string
	KeepFiles []string

	// blob storage
	AwsAccessKey       string
	AwsSecretKey       string
	AwsRegion          string
	S3Endpoint         string
	RawDataBucket      string
	RawDataBlobName    string
	ChunkEmbeddingsKey string

	// corpus
	MetadataFileName string
	DocumentEncoding string
	DocumentLimit    int

	// chunking
	ChunkTokens     int
	OverlapTokens   int
	ChunkSeparators []string
	TokenEncoding   string

	// embeddings
	EmbedProvider         string
	AzureOpenAIEndpoint   string
	AzureOpenAIAPIVersion string
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	EmbedDeployment       string
	EmbedModel            string
	EmbedDim              int
	EmbedBatchSize        int
	EmbedRPS              float64
	AIAPIKey              string

	// index
	IndexBackend   string
	IndexName      string
	DatabaseURL    string
	SslCertPath    string
	BleveIndexDir  string
	IndexBatchSize int

	// retry
	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// logging
	LogFilePath string
	LogLevel    string
	Environment string
}

// LoadConfig loads the environment variables (and an optional .env file) and returns config.
// envFile may be empty, in which case ./.env is tried.
func LoadConfig(envFile string) *Config {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Printf("WARN: could not load %s: %v", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	return &Config{
		TempDir:   getEnv("TEMP_DIR_PATH", "./tmp"),
		KeepFiles: getEnvList("KEEP_FILES", []string{".keep"}),

		AwsAccessKey:       getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:       getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:          getEnv("AWS_REGION", "us-east-2"),
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		RawDataBucket:      getEnv("RAW_DATA_BUCKET", ""),
		RawDataBlobName:    getEnv("RAW_DATA_BLOB_NAME", "raw-data"),
		ChunkEmbeddingsKey: getEnv("CHUNK_EMBEDDINGS_BLOB", "chunks.json"),

		MetadataFileName: getEnv("METADATA_FILE_NAME", "metadata.json"),
		DocumentEncoding: getEnv("DOCUMENT_ENCODING", "latin1"),
		DocumentLimit:    getEnvInt("DOCUMENT_LIMIT", 0),

		ChunkTokens:     getEnvInt("CHUNK_TOKENS", 1024),
		OverlapTokens:   getEnvInt("CHUNK_OVERLAP_TOKENS", 50),
		ChunkSeparators: getEnvSeparators("CHUNK_SEPARATORS", []string{"\n\n", ".", "\n"}),
		TokenEncoding:   getEnv("TOKEN_ENCODING", "cl100k_base"),

		EmbedProvider:         getEnv("EMBED_PROVIDER", "azure-openai"),
		AzureOpenAIEndpoint:   getEnv("AZURE_OPENAI_ENDPOINT", ""),
		AzureOpenAIAPIVersion: getEnv("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		EmbedDeployment:       getEnv("EMBEDDINGS_DEPLOYMENT", ""),
		EmbedModel:            getEnv("EMBED_MODEL", DefaultEmbedModel),
		EmbedDim:              getEnvInt("EMBED_DIM", 1536),
		EmbedBatchSize:        getEnvInt("EMBED_BATCH_SIZE", 16),
		EmbedRPS:              getEnvFloat("EMBED_RPS", 0),
		AIAPIKey:              getEnv("GEMINI_API_KEY", ""),

		IndexBackend:   getEnv("INDEX_BACKEND", "pgvector"),
		IndexName:      getEnv("CHUNK_INDEX_NAME", "chunks"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		SslCertPath:    getEnv("SSL_CERT_PATH", ""),
		BleveIndexDir:  getEnv("BLEVE_INDEX_DIR", "./index"),
		IndexBatchSize: getEnvInt("INDEX_BATCH_SIZE", 100),

		RetryMaxAttempts:     getEnvInt("RETRY_MAX_ATTEMPTS", 4),
		RetryInitialInterval: getEnvDuration("RETRY_INITIAL_INTERVAL", 500*time.Millisecond),
		RetryMaxInterval:     getEnvDuration("RETRY_MAX_INTERVAL", 10*time.Second),

		LogFilePath: getEnv("LOG_FILE_PATH", "etl.log"),
		LogLevel:    getEnv("LOG_LEVEL", ""),
		Environment: getEnv("GO_ENV", "development"),
	}
}

// ValidateEmbed checks the settings the embed stage cannot run without.
func (c *Config) ValidateEmbed() error {
	var errs []error
	if c.TempDir == "" {
		errs = append(errs, errors.New("TEMP_DIR_PATH not set"))
	}
	if c.RawDataBucket == "" {
		errs = append(errs, errors.New("RAW_DATA_BUCKET not set"))
	}
	if c.ChunkTokens <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_TOKENS must be positive, got %d", c.ChunkTokens))
	}
	if c.OverlapTokens < 0 {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP_TOKENS must not be negative, got %d", c.OverlapTokens))
	}
	if c.EmbedDim <= 0 {
		errs = append(errs, fmt.Errorf("EMBED_DIM must be positive, got %d", c.EmbedDim))
	}
	switch c.EmbedProvider {
	case "azure-openai":
		if c.AzureOpenAIEndpoint == "" {
			errs = append(errs, errors.New("AZURE_OPENAI_ENDPOINT not set"))
		}
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY not set"))
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY not set"))
		}
	case "gemini":
		if c.AIAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMBED_PROVIDER %q", c.EmbedProvider))
	}
	return multierr.Combine(errs...)
}

// ValidateIndex checks the settings the index stage cannot run without.
func (c *Config) ValidateIndex() error {
	var errs []error
	if c.TempDir == "" {
		errs = append(errs, errors.New("TEMP_DIR_PATH not set"))
	}
	if c.RawDataBucket == "" {
		errs = append(errs, errors.New("RAW_DATA_BUCKET not set"))
	}
	if c.IndexName == "" {
		errs = append(errs, errors.New("CHUNK_INDEX_NAME not set"))
	}
	switch c.IndexBackend {
	case "pgvector":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL not set"))
		}
	case "bleve":
		if c.BleveIndexDir == "" {
			errs = append(errs, errors.New("BLEVE_INDEX_DIR not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown INDEX_BACKEND %q", c.IndexBackend))
	}
	return multierr.Combine(errs...)
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a number, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}

// getEnvList reads a comma separated list.
func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvSeparators reads a JSON string array so escapes like "\n\n" survive the env file.
func getEnvSeparators(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var seps []string
	if err := json.Unmarshal([]byte(v), &seps); err != nil || len(seps) == 0 {
		log.Printf("WARN: %s=%q not a JSON string list, using default", key, v)
		return def
	}
	return seps
}
