package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		ChunkSize:              900,
		ChunkOverlap:           180,
		MaxFilesPerRequest:     10,
		MaxUploadFileSizeBytes: 1024,
		EmbedBatchSize:         100,
		RetrievalMaxDistance:   0.45,
		VectorStore:            "memory",
		FileStorage:            "disk",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "overlap equals size", mutate: func(c *Config) { c.ChunkOverlap = 900 }, wantErr: "CHUNK_OVERLAP"},
		{name: "negative overlap", mutate: func(c *Config) { c.ChunkOverlap = -1 }, wantErr: "CHUNK_OVERLAP"},
		{name: "zero size", mutate: func(c *Config) { c.ChunkSize = 0 }, wantErr: "CHUNK_SIZE"},
		{name: "no files allowed", mutate: func(c *Config) { c.MaxFilesPerRequest = 0 }, wantErr: "MAX_FILES_PER_REQUEST"},
		{name: "distance out of range", mutate: func(c *Config) { c.RetrievalMaxDistance = 3 }, wantErr: "RETRIEVAL_MAX_DISTANCE"},
		{name: "unknown vector store", mutate: func(c *Config) { c.VectorStore = "chroma" }, wantErr: "VECTOR_STORE"},
		{name: "minio without endpoint", mutate: func(c *Config) { c.FileStorage = "minio" }, wantErr: "MINIO_ENDPOINT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("DOCQA_TEST_INT", "42")
	t.Setenv("DOCQA_TEST_FLOAT", "0.25")
	t.Setenv("DOCQA_TEST_BOOL", "yes")
	t.Setenv("DOCQA_TEST_BAD", "not-a-number")

	assert.Equal(t, 42, getEnvAsInt("DOCQA_TEST_INT", 1))
	assert.Equal(t, int64(42), getEnvAsInt64("DOCQA_TEST_INT", 1))
	assert.Equal(t, 0.25, getEnvAsFloat("DOCQA_TEST_FLOAT", 1))
	assert.True(t, getEnvAsBool("DOCQA_TEST_BOOL", false))
	assert.Equal(t, 7, getEnvAsInt("DOCQA_TEST_BAD", 7))
	assert.False(t, getEnvAsBool("DOCQA_TEST_BAD", false))
	assert.Equal(t, "fallback", getEnv("DOCQA_TEST_MISSING", "fallback"))
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("APP_DATA_DIR", t.TempDir())
	t.Setenv("VECTOR_STORE", "memory")

	LoadConfig()

	assert.Equal(t, 900, AppConfig.ChunkSize)
	assert.Equal(t, 180, AppConfig.ChunkOverlap)
	assert.Equal(t, 0.45, AppConfig.RetrievalMaxDistance)
	assert.Equal(t, []string{"pdf", "jpg", "jpeg", "png"}, AppConfig.AllowedExtensions)
	assert.Equal(t, "memory", AppConfig.VectorStore)
}
