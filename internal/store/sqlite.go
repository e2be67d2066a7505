package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"tusas.com/document-qa/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dataSourceName); dir != "." && !strings.HasPrefix(dataSourceName, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sep := "?"
	if strings.Contains(dataSourceName, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dataSourceName+sep+"_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database answers a trivial query.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS documents (
        id TEXT PRIMARY KEY, -- UUID
        filename TEXT NOT NULL,
        file_type TEXT NOT NULL,
        mime_type TEXT NOT NULL,
        storage_path TEXT NOT NULL,
        file_size INTEGER NOT NULL,
        language TEXT NOT NULL DEFAULT 'unknown',
        status TEXT NOT NULL DEFAULT 'uploaded'
            CHECK (status IN ('uploaded', 'processing', 'indexed', 'failed')),
        error_message TEXT,
        created_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS document_segments (
        id TEXT PRIMARY KEY, -- UUID
        document_id TEXT NOT NULL,
        page INTEGER,
        source TEXT NOT NULL CHECK (source IN ('native', 'ocr')),
        text TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        FOREIGN KEY (document_id) REFERENCES documents (id) ON DELETE CASCADE
    );
    CREATE INDEX IF NOT EXISTS idx_document_segments_document_id ON document_segments (document_id);

    CREATE TABLE IF NOT EXISTS document_chunks (
        id TEXT PRIMARY KEY, -- UUID
        document_id TEXT NOT NULL,
        chunk_index INTEGER NOT NULL,
        page INTEGER,
        text TEXT NOT NULL,
        FOREIGN KEY (document_id) REFERENCES documents (id) ON DELETE CASCADE
    );
    CREATE INDEX IF NOT EXISTS idx_document_chunks_document_id ON document_chunks (document_id);
    `
	_, err := s.db.Exec(schema)
	return err
}

// Document methods
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.Language == "" {
		doc.Language = domain.LanguageUnknown
	}
	if doc.Status == "" {
		doc.Status = domain.StatusUploaded
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, filename, file_type, mime_type, storage_path, file_size, language, status, error_message, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.FileType, doc.MimeType, doc.StoragePath, doc.FileSize,
		doc.Language, doc.Status, doc.ErrorMessage, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute document insert: %w", err)
	}
	return nil
}

// UpdateDocumentStatus sets status and error message. An empty language
// leaves the stored language untouched.
func (s *SQLiteStore) UpdateDocumentStatus(ctx context.Context, documentID, status, language string, errorMessage *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents
         SET status = ?, language = COALESCE(NULLIF(?, ''), language), error_message = ?
         WHERE id = ?`,
		status, language, errorMessage, documentID)
	if err != nil {
		return fmt.Errorf("failed to execute document status update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("document %s not found, status not updated", documentID)
	}
	return nil
}

func (s *SQLiteStore) GetDocumentByID(ctx context.Context, documentID string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, documentSelect+" WHERE id = ?", documentID)
	doc, err := scanDocument(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns all documents, newest first.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, documentSelect+" ORDER BY created_at DESC, rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// GetDocumentsByIDs silently ignores unknown ids.
func (s *SQLiteStore) GetDocumentsByIDs(ctx context.Context, ids []string) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, documentSelect+" WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents by id: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

const documentSelect = `SELECT id, filename, file_type, mime_type, storage_path, file_size, language, status, error_message, created_at FROM documents`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var errMsg sql.NullString
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.FileType, &doc.MimeType, &doc.StoragePath,
		&doc.FileSize, &doc.Language, &doc.Status, &errMsg, &doc.CreatedAt); err != nil {
		return nil, err
	}
	if errMsg.Valid {
		doc.ErrorMessage = &errMsg.String
	}
	return &doc, nil
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate document rows: %w", err)
	}
	return docs, nil
}

// Segment methods

// ReplaceSegments swaps the full segment set of a document in one transaction.
func (s *SQLiteStore) ReplaceSegments(ctx context.Context, documentID string, segments []domain.Segment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM document_segments WHERE document_id = ?", documentID); err != nil {
			return fmt.Errorf("failed to delete old segments: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO document_segments (id, document_id, page, source, text, created_at) VALUES (?, ?, ?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare segment insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, seg := range segments {
			if _, err := stmt.ExecContext(ctx, uuid.NewString(), documentID, seg.Page, seg.Source, seg.Text, now); err != nil {
				return fmt.Errorf("failed to execute segment insert: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetSegmentsByDocumentID(ctx context.Context, documentID string) ([]SegmentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, document_id, page, source, text, created_at FROM document_segments WHERE document_id = ? ORDER BY page ASC, rowid ASC",
		documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var segments []SegmentRecord
	for rows.Next() {
		var seg SegmentRecord
		var page sql.NullInt64
		if err := rows.Scan(&seg.ID, &seg.DocumentID, &page, &seg.Source, &seg.Text, &seg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan segment row: %w", err)
		}
		if page.Valid {
			p := int(page.Int64)
			seg.Page = &p
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// Chunk methods

// ReplaceChunks swaps the chunk metadata of a document in one transaction.
func (s *SQLiteStore) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM document_chunks WHERE document_id = ?", documentID); err != nil {
			return fmt.Errorf("failed to delete old chunks: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO document_chunks (id, document_id, chunk_index, page, text) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare chunk insert: %w", err)
		}
		defer stmt.Close()

		for _, ch := range chunks {
			if _, err := stmt.ExecContext(ctx, ch.ID, documentID, ch.Index, ch.Page, ch.Text); err != nil {
				return fmt.Errorf("failed to execute chunk insert: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetChunksByDocumentID(ctx context.Context, documentID string) ([]ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, document_id, chunk_index, page, text FROM document_chunks WHERE document_id = ? ORDER BY chunk_index ASC",
		documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []ChunkRecord
	for rows.Next() {
		var ch ChunkRecord
		var page sql.NullInt64
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.ChunkIndex, &page, &ch.Text); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if page.Valid {
			p := int(page.Int64)
			ch.Page = &p
		}
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
