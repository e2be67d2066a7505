package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"tusas.com/document-qa/internal/domain"
	"tusas.com/document-qa/internal/utils"
	"tusas.com/document-qa/internal/vectorstore"
)

const fileVersion = 1

// Storage is a brute-force cosine-distance vector store. With a non-empty
// path every upsert is flushed to a JSON file and reloaded on start.
type Storage struct {
	mu      sync.RWMutex
	path    string
	records []record
	byID    map[string]int
}

type record struct {
	ChunkID    string    `json:"chunk_id"`
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	ChunkIndex int       `json:"chunk_index"`
	Page       *int      `json:"page,omitempty"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding"`
}

type snapshot struct {
	Version int      `json:"version"`
	Records []record `json:"records"`
}

// NewStorage creates a RAM-only store.
func NewStorage() *Storage {
	return &Storage{byID: make(map[string]int)}
}

// Open creates a store persisted at path, loading existing records.
func Open(path string) (*Storage, error) {
	s := NewStorage()
	s.path = path
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read vector file %s: %w", path, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode vector file %s: %w", path, err)
	}
	if snap.Version != fileVersion {
		return nil, fmt.Errorf("unsupported vector file version %d", snap.Version)
	}
	for _, r := range snap.Records {
		s.records = put(s.records, s.byID, r)
	}
	return s, nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, embeddings [][]float32) error {
	if err := vectorstore.CheckUpsertInput(chunks, embeddings); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Changes go to copies and only replace the live index once persisted.
	records := slices.Clone(s.records)
	byID := maps.Clone(s.byID)
	for i, ch := range chunks {
		vec := make([]float32, len(embeddings[i]))
		copy(vec, embeddings[i])
		records = put(records, byID, record{
			ChunkID:    ch.ID,
			DocumentID: ch.DocumentID,
			Filename:   ch.Filename,
			ChunkIndex: ch.Index,
			Page:       ch.Page,
			Text:       ch.Text,
			Embedding:  vec,
		})
	}
	if err := s.flush(records); err != nil {
		return err
	}
	s.records, s.byID = records, byID
	return nil
}

func (s *Storage) Query(ctx context.Context, embedding []float32, documentIDs []string, topK int) ([]domain.RetrievedChunk, error) {
	if len(documentIDs) == 0 || topK <= 0 {
		return nil, nil
	}
	allowed := make(map[string]struct{}, len(documentIDs))
	for _, id := range documentIDs {
		allowed[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]domain.RetrievedChunk, 0)
	for _, r := range s.records {
		if _, ok := allowed[r.DocumentID]; !ok {
			continue
		}
		results = append(results, domain.RetrievedChunk{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			Filename:   r.Filename,
			Page:       r.Page,
			Text:       r.Text,
			Distance:   utils.CosineDistance(embedding, r.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *Storage) Ping(ctx context.Context) bool { return true }

func (s *Storage) Close() error { return nil }

// Len returns the number of stored vectors.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// put replaces the record with the same chunk ID or appends it.
func put(records []record, byID map[string]int, r record) []record {
	if i, ok := byID[r.ChunkID]; ok {
		records[i] = r
		return records
	}
	byID[r.ChunkID] = len(records)
	return append(records, r)
}

// flush writes records atomically via rename. Caller holds mu.
func (s *Storage) flush(records []record) error {
	if s.path == "" {
		return nil
	}
	data, err := json.Marshal(snapshot{Version: fileVersion, Records: records})
	if err != nil {
		return fmt.Errorf("failed to encode vector file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create vector file directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write vector file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace vector file: %w", err)
	}
	return nil
}
