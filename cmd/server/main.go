package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"tusas.com/document-qa/internal/api"
	"tusas.com/document-qa/internal/config"
	"tusas.com/document-qa/internal/core"
	"tusas.com/document-qa/internal/filestore"
	"tusas.com/document-qa/internal/metrics"
	"tusas.com/document-qa/internal/pdf"
	"tusas.com/document-qa/internal/store"
	"tusas.com/document-qa/internal/vectorstore"
	"tusas.com/document-qa/internal/vectorstore/memory"
	"tusas.com/document-qa/internal/vectorstore/qdrant"
)

func main() {
	// Load configuration
	config.LoadConfig()
	cfg := config.AppConfig

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if cfg.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}
	core.SetDebug(cfg.LogLevel == "DEBUG")

	// Command line flag for batch ingestion
	ingestFlag := flag.String("ingest", "", "Comma-separated list of files to ingest, then exit")
	flag.Parse()

	metrics.Init()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	files, err := newFileStorage(startupCtx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize file storage: %v", err)
	}

	vectors := newVectorStore(startupCtx, cfg)
	defer vectors.Close()

	// The provider client is built on first use so the server boots without a key.
	provider := core.NewProviderCache(cfg.GeminiAPIKey, core.GeminiFactory(core.GeminiOptions{
		Model:          cfg.GeminiModel,
		EmbeddingModel: cfg.GeminiEmbeddingModel,
		BatchSize:      cfg.EmbedBatchSize,
	}))
	defer provider.Close()
	if !provider.Configured() {
		log.Println("GEMINI_API_KEY is not set; upload and question endpoints will answer 503")
	}

	chunker, err := core.NewChunkBuilder(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatalf("Invalid chunking configuration: %v", err)
	}
	extractor := core.NewExtractor(files, pdf.NewReader(), cfg.PDFMinCharsBeforeOCR)
	limits := core.UploadLimits{
		MaxFiles:          cfg.MaxFilesPerRequest,
		MaxFileSize:       cfg.MaxUploadFileSizeBytes,
		AllowedExtensions: cfg.AllowedExtensions,
	}

	documentService := core.NewDocumentService(dbStore, files, extractor, chunker, vectors, provider, limits)
	qaService := core.NewQAService(dbStore, vectors, provider, cfg.RetrievalMaxDistance)
	healthService := core.NewHealthService(dbStore, vectors, provider)

	// Handle batch ingestion if flag is set
	if *ingestFlag != "" {
		if err := ingestFiles(documentService, *ingestFlag); err != nil {
			log.Fatalf("Ingestion failed: %v", err)
		}
		return
	}

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(documentService, qaService, healthService, limits.MaxFiles, limits.MaxFileSize)
	router := api.NewRouter(apiHandler, cfg.StaticDir)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,  // Multi-file uploads
		WriteTimeout: 300 * time.Second, // Ingestion runs OCR and embedding inside the request
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// provider, vectors and dbStore are closed by their defers.
	log.Println("Server exiting gracefully")
}

func newFileStorage(ctx context.Context, cfg config.Config) (filestore.Storage, error) {
	if cfg.FileStorage == "minio" {
		return filestore.NewMinIOStorage(ctx, filestore.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
	}
	return filestore.NewDiskStorage(cfg.UploadDir)
}

// newVectorStore never fails: when no backend comes up the returned store
// reports itself down and vector operations answer 503.
func newVectorStore(ctx context.Context, cfg config.Config) vectorstore.Store {
	openMemory := func(context.Context) (vectorstore.Store, error) {
		return memory.Open(cfg.VectorStoreFile)
	}
	if cfg.VectorStore == "memory" {
		return vectorstore.Select(ctx, "memory", openMemory, "", nil)
	}

	openQdrant := func(ctx context.Context) (vectorstore.Store, error) {
		return qdrant.NewStorage(ctx, qdrant.Config{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
		})
	}
	var fallback vectorstore.Factory
	if cfg.VectorStoreFallback {
		fallback = openMemory
	}
	return vectorstore.Select(ctx, "qdrant", openQdrant, "memory", fallback)
}

func ingestFiles(documents *core.DocumentService, list string) error {
	log.Println("Starting ingestion process...")

	var uploads []core.UploadFile
	for _, path := range strings.Split(list, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		uploads = append(uploads, core.UploadFile{
			Filename:    filepath.Base(path),
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
			Data:        data,
		})
	}

	// Files are sent in request-sized batches so the per-request limit still applies.
	ctx := context.Background()
	batch := config.AppConfig.MaxFilesPerRequest
	var indexed, rejected int
	for start := 0; start < len(uploads); start += batch {
		end := min(start+batch, len(uploads))
		result, err := documents.Upload(ctx, uploads[start:end])
		if err != nil {
			return err
		}
		for _, a := range result.AcceptedFiles {
			log.Printf("Indexed %s as %s", a.Filename, a.DocumentID)
		}
		for _, r := range result.RejectedFiles {
			log.Printf("Rejected %s: %s", r.Filename, r.Reason)
		}
		indexed += len(result.AcceptedFiles)
		rejected += len(result.RejectedFiles)
	}
	log.Printf("Ingestion complete. Indexed %d files, rejected %d. Exiting.", indexed, rejected)
	return nil
}
