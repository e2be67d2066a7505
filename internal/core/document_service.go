package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"tusas.com/document-qa/internal/domain"
	"tusas.com/document-qa/internal/filestore"
	"tusas.com/document-qa/internal/metrics"
	"tusas.com/document-qa/internal/store"
	"tusas.com/document-qa/internal/vectorstore"
)

var (
	// ErrTooManyFiles rejects a whole upload batch.
	ErrTooManyFiles     = errors.New("too many files")
	ErrDocumentNotFound = errors.New("document not found")
)

var (
	errNothingExtracted = errors.New("extraction produced nothing")
	errNoChunks         = errors.New("no chunks produced")
)

const (
	reasonUnsupportedExtension = "unsupported file extension"
	reasonEmptyFile            = "file is empty"
)

// DocumentRepository is the relational persistence the pipeline writes to.
type DocumentRepository interface {
	CreateDocument(ctx context.Context, doc *store.Document) error
	UpdateDocumentStatus(ctx context.Context, documentID, status, language string, errorMessage *string) error
	ListDocuments(ctx context.Context) ([]store.Document, error)
	GetDocumentByID(ctx context.Context, documentID string) (*store.Document, error)
	GetDocumentsByIDs(ctx context.Context, ids []string) ([]store.Document, error)
	ReplaceSegments(ctx context.Context, documentID string, segments []domain.Segment) error
	GetSegmentsByDocumentID(ctx context.Context, documentID string) ([]store.SegmentRecord, error)
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error
	GetChunksByDocumentID(ctx context.Context, documentID string) ([]store.ChunkRecord, error)
}

type UploadFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

type UploadLimits struct {
	MaxFiles          int
	MaxFileSize       int64
	AllowedExtensions []string
}

type AcceptedFile struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
}

type RejectedFile struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

type UploadResult struct {
	DocumentIDs   []string       `json:"document_ids"`
	AcceptedFiles []AcceptedFile `json:"accepted_files"`
	RejectedFiles []RejectedFile `json:"rejected_files"`
}

type DocumentSummary struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	FileType  string    `json:"file_type"`
	Language  string    `json:"language"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// DocumentDetail is one document with what ingestion stored for it.
type DocumentDetail struct {
	DocumentSummary
	FileSize     int64            `json:"file_size"`
	ErrorMessage *string          `json:"error_message,omitempty"`
	Segments     []SegmentSummary `json:"segments"`
	Chunks       []ChunkSummary   `json:"chunks"`
}

type SegmentSummary struct {
	Page       *int   `json:"page"`
	Source     string `json:"source"`
	Characters int    `json:"characters"`
}

type ChunkSummary struct {
	ChunkID string `json:"chunk_id"`
	Index   int    `json:"index"`
	Page    *int   `json:"page"`
	Snippet string `json:"snippet"`
}

// IngestResult is the outcome of one file: Status is StatusIndexed or
// StatusFailed, and Reason is set for failures. DocumentID is empty when the
// file never got a document row.
type IngestResult struct {
	DocumentID string
	Filename   string
	Status     string
	Reason     string
}

type DocumentService struct {
	repo      DocumentRepository
	files     filestore.Storage
	extractor *Extractor
	chunker   *ChunkBuilder
	vectors   vectorstore.Store
	ai        AIClientSource
	limits    UploadLimits
	metrics   *metrics.PipelineMetrics
}

func NewDocumentService(
	repo DocumentRepository,
	files filestore.Storage,
	extractor *Extractor,
	chunker *ChunkBuilder,
	vectors vectorstore.Store,
	ai AIClientSource,
	limits UploadLimits,
) *DocumentService {
	return &DocumentService{
		repo:      repo,
		files:     files,
		extractor: extractor,
		chunker:   chunker,
		vectors:   vectors,
		ai:        ai,
		limits:    limits,
		metrics:   metrics.Metrics(),
	}
}

// Upload validates and ingests files one after another. A failing file is
// reported in RejectedFiles and never stops its siblings. The only errors
// returned are ErrTooManyFiles and ErrProviderUnavailable.
func (s *DocumentService) Upload(ctx context.Context, files []UploadFile) (*UploadResult, error) {
	if len(files) > s.limits.MaxFiles {
		return nil, fmt.Errorf("%w: at most %d files per request, got %d", ErrTooManyFiles, s.limits.MaxFiles, len(files))
	}

	result := &UploadResult{
		DocumentIDs:   []string{},
		AcceptedFiles: []AcceptedFile{},
		RejectedFiles: []RejectedFile{},
	}

	var ai AIClient
	for _, f := range files {
		filename := f.Filename
		if filename == "" {
			filename = "unknown"
		}

		if reason := s.validate(filename, f.Data); reason != "" {
			log.Printf("Rejected upload %q: %s", filename, reason)
			s.metrics.RecordDocument("rejected")
			result.RejectedFiles = append(result.RejectedFiles, RejectedFile{Filename: filename, Reason: reason})
			continue
		}

		if ai == nil {
			client, err := s.ai.AIClient(ctx)
			if err != nil {
				return nil, err
			}
			ai = client
		}

		res := s.IngestFile(ctx, ai, UploadFile{Filename: filename, ContentType: f.ContentType, Data: f.Data})
		if res.Status == domain.StatusIndexed {
			s.metrics.RecordDocument("indexed")
			result.DocumentIDs = append(result.DocumentIDs, res.DocumentID)
			result.AcceptedFiles = append(result.AcceptedFiles, AcceptedFile{
				DocumentID: res.DocumentID,
				Filename:   res.Filename,
				Status:     res.Status,
			})
			continue
		}
		s.metrics.RecordDocument("failed")
		result.RejectedFiles = append(result.RejectedFiles, RejectedFile{Filename: res.Filename, Reason: res.Reason})
	}
	return result, nil
}

// validate returns a rejection reason, or "" when the file is acceptable.
func (s *DocumentService) validate(filename string, data []byte) string {
	if !slices.Contains(s.limits.AllowedExtensions, fileExtension(filename)) {
		return reasonUnsupportedExtension
	}
	if len(data) == 0 {
		return reasonEmptyFile
	}
	if int64(len(data)) > s.limits.MaxFileSize {
		return fmt.Sprintf("file is too large (max %d bytes)", s.limits.MaxFileSize)
	}
	return ""
}

// IngestFile stores one validated file, creates its document row and runs
// the pipeline to a terminal status.
func (s *DocumentService) IngestFile(ctx context.Context, ai AIClient, f UploadFile) IngestResult {
	res := IngestResult{Filename: f.Filename, Status: domain.StatusFailed}

	documentID := uuid.NewString()
	saved, err := s.files.Save(ctx, documentID, f.Filename, f.ContentType, f.Data)
	if err != nil {
		log.Printf("Failed to store %q: %v", f.Filename, err)
		res.Reason = processingFailed(err)
		return res
	}

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	doc := &store.Document{
		ID:          documentID,
		Filename:    f.Filename,
		FileType:    fileExtension(f.Filename),
		MimeType:    contentType,
		StoragePath: saved.Location,
		FileSize:    saved.Size,
		Language:    domain.LanguageUnknown,
		Status:      domain.StatusProcessing,
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		log.Printf("Failed to create document row for %q: %v", f.Filename, err)
		res.Reason = processingFailed(err)
		return res
	}
	res.DocumentID = documentID

	language, err := s.process(ctx, ai, doc)
	if err != nil {
		log.Printf("Ingestion of document %s (%s) failed: %v", documentID, f.Filename, err)
		msg := err.Error()
		if uerr := s.repo.UpdateDocumentStatus(ctx, documentID, domain.StatusFailed, "", &msg); uerr != nil {
			log.Printf("Failed to mark document %s as failed: %v", documentID, uerr)
		}
		res.Reason = processingFailed(err)
		return res
	}

	if err := s.repo.UpdateDocumentStatus(ctx, documentID, domain.StatusIndexed, language, nil); err != nil {
		log.Printf("Failed to mark document %s as indexed: %v", documentID, err)
		res.Reason = processingFailed(err)
		return res
	}
	log.Printf("Indexed document %s (%s), language=%s", documentID, f.Filename, language)
	res.Status = domain.StatusIndexed
	return res
}

// process runs extract -> segments -> chunks -> embed -> chunk rows -> vectors
// and returns the detected language.
func (s *DocumentService) process(ctx context.Context, ai AIClient, doc *store.Document) (string, error) {
	segments, err := s.extractor.Extract(ctx, ai, doc.StoragePath, doc.FileType)
	if err != nil {
		return "", err
	}
	if len(segments) == 0 {
		return "", errNothingExtracted
	}
	if err := s.repo.ReplaceSegments(ctx, doc.ID, segments); err != nil {
		return "", err
	}

	chunks := s.chunker.Build(doc.ID, doc.Filename, segments)
	if len(chunks) == 0 {
		return "", errNoChunks
	}
	debugf("document %s: %d segments, %d chunks", doc.ID, len(segments), len(chunks))

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	embeddings, err := ai.EmbedTexts(ctx, texts, TaskRetrievalDocument)
	if err != nil {
		return "", err
	}
	if len(embeddings) != len(chunks) {
		return "", fmt.Errorf("%w: %d chunks, %d embeddings", vectorstore.ErrLengthMismatch, len(chunks), len(embeddings))
	}

	if err := s.repo.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return "", err
	}
	if err := s.vectors.Upsert(ctx, chunks, embeddings); err != nil {
		return "", err
	}
	s.metrics.RecordChunks(len(chunks))

	parts := make([]string, len(segments))
	for i, seg := range segments {
		parts[i] = seg.Text
	}
	return DetectLanguage(strings.Join(parts, "\n")), nil
}

func (s *DocumentService) ListDocuments(ctx context.Context) ([]DocumentSummary, error) {
	docs, err := s.repo.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	out := make([]DocumentSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, summarize(d))
	}
	return out, nil
}

// GetDocument returns ErrDocumentNotFound for unknown ids.
func (s *DocumentService) GetDocument(ctx context.Context, documentID string) (*DocumentDetail, error) {
	doc, err := s.repo.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}

	segments, err := s.repo.GetSegmentsByDocumentID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	chunks, err := s.repo.GetChunksByDocumentID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	detail := &DocumentDetail{
		DocumentSummary: summarize(*doc),
		FileSize:        doc.FileSize,
		ErrorMessage:    doc.ErrorMessage,
		Segments:        make([]SegmentSummary, 0, len(segments)),
		Chunks:          make([]ChunkSummary, 0, len(chunks)),
	}
	for _, seg := range segments {
		detail.Segments = append(detail.Segments, SegmentSummary{
			Page:       seg.Page,
			Source:     seg.Source,
			Characters: utf8.RuneCountInString(seg.Text),
		})
	}
	for _, ch := range chunks {
		detail.Chunks = append(detail.Chunks, ChunkSummary{
			ChunkID: ch.ID,
			Index:   ch.ChunkIndex,
			Page:    ch.Page,
			Snippet: Snippet(ch.Text),
		})
	}
	return detail, nil
}

func summarize(d store.Document) DocumentSummary {
	return DocumentSummary{
		ID:        d.ID,
		Filename:  d.Filename,
		FileType:  d.FileType,
		Language:  d.Language,
		Status:    d.Status,
		CreatedAt: d.CreatedAt,
	}
}

func fileExtension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

func processingFailed(err error) string {
	return "processing failed: " + err.Error()
}
