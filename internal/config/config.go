package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort  string
	LogLevel  string
	DataDir   string
	UploadDir string
	DBPath    string
	StaticDir string

	GeminiAPIKey         string
	GeminiModel          string
	GeminiEmbeddingModel string
	EmbedBatchSize       int

	MaxFilesPerRequest     int
	MaxUploadFileSizeBytes int64
	AllowedExtensions      []string

	ChunkSize            int
	ChunkOverlap         int
	PDFMinCharsBeforeOCR int
	RetrievalMaxDistance float64
	VectorStore          string
	VectorStoreFallback  bool
	VectorStoreFile      string
	QdrantHost           string
	QdrantPort           int
	QdrantAPIKey         string
	QdrantCollection     string
	FileStorage          string
	MinIOEndpoint        string
	MinIOAccessKey       string
	MinIOSecretKey       string
	MinIOBucket          string
	MinIOUseSSL          bool
}

var AppConfig Config

// allowedExtensions is fixed; it is not read from the environment.
var allowedExtensions = []string{"pdf", "jpg", "jpeg", "png"}

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dataDir := getEnv("APP_DATA_DIR", "data")

	AppConfig = Config{
		HTTPPort:  getEnv("HTTP_PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "INFO"),
		DataDir:   dataDir,
		UploadDir: getEnv("APP_UPLOAD_DIR", filepath.Join(dataDir, "uploads")),
		DBPath:    getEnv("APP_DB_PATH", filepath.Join(dataDir, "app.db")),
		StaticDir: getEnv("STATIC_DIR", ""),

		// GEMINI_API_KEY is optional at boot: requests needing the provider answer 503 instead.
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", getEnv("GOOGLE_API_KEY", "")),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		GeminiEmbeddingModel: getEnv("GEMINI_EMBED_MODEL", "text-embedding-004"),
		EmbedBatchSize:       getEnvAsInt("EMBED_BATCH_SIZE", 100),

		MaxFilesPerRequest:     getEnvAsInt("MAX_FILES_PER_REQUEST", 10),
		MaxUploadFileSizeBytes: getEnvAsInt64("MAX_UPLOAD_FILE_SIZE_BYTES", 50*1024*1024),
		AllowedExtensions:      allowedExtensions,

		ChunkSize:            getEnvAsInt("CHUNK_SIZE", 900),
		ChunkOverlap:         getEnvAsInt("CHUNK_OVERLAP", 180),
		PDFMinCharsBeforeOCR: getEnvAsInt("PDF_MIN_CHARS_BEFORE_OCR", 40),
		RetrievalMaxDistance: getEnvAsFloat("RETRIEVAL_MAX_DISTANCE", 0.45),

		VectorStore:         strings.ToLower(getEnv("VECTOR_STORE", "qdrant")),
		VectorStoreFallback: getEnvAsBool("VECTOR_STORE_FALLBACK", true),
		VectorStoreFile:     getEnv("VECTOR_STORE_FILE", filepath.Join(dataDir, "vectors.json")),
		QdrantHost:          getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:          getEnvAsInt("QDRANT_PORT", 6334),
		QdrantAPIKey:        getEnv("QDRANT_API_KEY", ""),
		QdrantCollection:    getEnv("QDRANT_COLLECTION", "document_chunks"),

		FileStorage:    strings.ToLower(getEnv("FILE_STORAGE", "disk")),
		MinIOEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinIOBucket:    getEnv("MINIO_BUCKET", "documents"),
		MinIOUseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
	}

	if err := AppConfig.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
}

// Validate checks option combinations that would make the pipeline unusable.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	}
	if c.MaxFilesPerRequest <= 0 {
		return fmt.Errorf("MAX_FILES_PER_REQUEST must be positive, got %d", c.MaxFilesPerRequest)
	}
	if c.MaxUploadFileSizeBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_FILE_SIZE_BYTES must be positive, got %d", c.MaxUploadFileSizeBytes)
	}
	if c.EmbedBatchSize <= 0 {
		return fmt.Errorf("EMBED_BATCH_SIZE must be positive, got %d", c.EmbedBatchSize)
	}
	if c.RetrievalMaxDistance < 0 || c.RetrievalMaxDistance > 2 {
		return fmt.Errorf("RETRIEVAL_MAX_DISTANCE must be in [0, 2], got %g", c.RetrievalMaxDistance)
	}
	switch c.VectorStore {
	case "qdrant", "memory":
	default:
		return fmt.Errorf("unknown VECTOR_STORE %q", c.VectorStore)
	}
	switch c.FileStorage {
	case "disk":
	case "minio":
		if c.MinIOEndpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required when FILE_STORAGE=minio")
		}
	default:
		return fmt.Errorf("unknown FILE_STORAGE %q", c.FileStorage)
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	switch valueStr {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}
