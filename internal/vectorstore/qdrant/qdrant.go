package qdrant

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"tusas.com/document-qa/internal/domain"
	"tusas.com/document-qa/internal/utils"
	"tusas.com/document-qa/internal/vectorstore"
)

const (
	fieldDocumentID = "document_id"
	fieldChunkID    = "chunk_id"
	fieldFilename   = "filename"
	fieldChunkIndex = "chunk_index"
	fieldPage       = "page"
	fieldText       = "text"
)

type Config struct {
	Host       string
	Port       int
	APIKey     string
	Collection string
}

// pointsClient is the subset of *qdrant.Client the store uses.
type pointsClient interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// Storage keeps chunk vectors in a Qdrant collection with cosine distance.
// The collection is created on first upsert using that embedding's dimension.
type Storage struct {
	client     pointsClient
	collection string

	mu    sync.Mutex
	ready bool
}

// NewStorage dials Qdrant and verifies it answers a health check.
func NewStorage(ctx context.Context, cfg Config) (*Storage, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	if _, err := client.HealthCheck(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant health check failed: %w", err)
	}

	s := &Storage{client: client, collection: cfg.Collection}
	exists, err := client.CollectionExists(ctx, cfg.Collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to check collection %s: %w", cfg.Collection, err)
	}
	s.ready = exists
	log.Printf("Qdrant: connected to %s:%d (collection %q exists: %t)", cfg.Host, cfg.Port, cfg.Collection, exists)
	return s, nil
}

func (s *Storage) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if dimension <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dimension)
	}

	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		// Another process may have created it in the meantime.
		exists, cerr := s.client.CollectionExists(ctx, s.collection)
		if cerr != nil || !exists {
			return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
		}
	} else {
		log.Printf("Qdrant: created collection %q (dim=%d)", s.collection, dimension)
	}

	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      fieldDocumentID,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		log.Printf("Qdrant: could not index %s payload field: %v", fieldDocumentID, err)
	}

	s.ready = true
	return nil
}

// hasCollection reports whether the collection exists, asking Qdrant again
// while it has not been seen, since another process may create it.
func (s *Storage) hasCollection(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return true, nil
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection %s: %w", s.collection, err)
	}
	s.ready = exists
	return exists, nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, embeddings [][]float32) error {
	if err := vectorstore.CheckUpsertInput(chunks, embeddings); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, len(embeddings[0])); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, ch := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(ch.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(chunkPayload(ch)),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, embedding []float32, documentIDs []string, topK int) ([]domain.RetrievedChunk, error) {
	if len(documentIDs) == 0 || topK <= 0 {
		return nil, nil
	}
	exists, err := s.hasCollection(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		// Nothing was ever indexed.
		return nil, nil
	}

	query := make([]float32, len(embedding))
	copy(query, embedding)
	limit := uint64(topK)

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeywords(fieldDocumentID, documentIDs...),
			},
		},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}

	results := make([]domain.RetrievedChunk, 0, len(points))
	for _, p := range points {
		results = append(results, retrievedFromPayload(p.GetPayload(), p.GetScore()))
	}
	return results, nil
}

func (s *Storage) Ping(ctx context.Context) bool {
	_, err := s.client.HealthCheck(ctx)
	return err == nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

// chunkPayload omits the page key for non-paged sources.
func chunkPayload(ch domain.Chunk) map[string]any {
	payload := map[string]any{
		fieldDocumentID: ch.DocumentID,
		fieldChunkID:    ch.ID,
		fieldFilename:   ch.Filename,
		fieldChunkIndex: int64(ch.Index),
		fieldText:       ch.Text,
	}
	if ch.Page != nil {
		payload[fieldPage] = int64(*ch.Page)
	}
	return payload
}

func retrievedFromPayload(payload map[string]*qdrant.Value, score float32) domain.RetrievedChunk {
	rc := domain.RetrievedChunk{Distance: scoreToDistance(score)}
	if v, ok := payload[fieldChunkID]; ok {
		rc.ChunkID = v.GetStringValue()
	}
	if v, ok := payload[fieldDocumentID]; ok {
		rc.DocumentID = v.GetStringValue()
	}
	if v, ok := payload[fieldFilename]; ok {
		rc.Filename = v.GetStringValue()
	}
	if v, ok := payload[fieldText]; ok {
		rc.Text = v.GetStringValue()
	}
	if v, ok := payload[fieldPage]; ok {
		if _, isInt := v.GetKind().(*qdrant.Value_IntegerValue); isInt {
			rc.Page = domain.IntPtr(int(v.GetIntegerValue()))
		}
	}
	return rc
}

// scoreToDistance converts Qdrant's cosine similarity into cosine distance.
func scoreToDistance(score float32) float64 {
	return utils.ClampDistance(1 - float64(score))
}
