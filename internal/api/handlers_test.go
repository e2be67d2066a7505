package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tusas.com/document-qa/internal/core"
	"tusas.com/document-qa/internal/filestore"
	"tusas.com/document-qa/internal/pdf"
	"tusas.com/document-qa/internal/store"
	"tusas.com/document-qa/internal/vectorstore/memory"
)

const testMaxFiles = 3

type fakeAI struct{}

func fakeVector(text string) []float32 {
	lowered := strings.ToLower(text)
	v := []float32{0, 0, 0.05}
	if strings.Contains(lowered, "ankara") {
		v[0] = 1
	}
	if strings.Contains(lowered, "mars") {
		v[1] = 1
	}
	return v
}

func (fakeAI) EmbedTexts(ctx context.Context, texts []string, task core.EmbeddingTask) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = fakeVector(t)
	}
	return out, nil
}

func (fakeAI) ExtractTextFromImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	return "Mock OCR metni", nil
}

func (fakeAI) AnswerQuestion(ctx context.Context, question string, items []core.ContextItem) (*core.GroundedAnswer, error) {
	if strings.Contains(strings.ToLower(question), "mars") {
		return &core.GroundedAnswer{Answer: core.NoEvidenceAnswer, CitationIDs: []string{}}, nil
	}
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Text), "ankara") {
			return &core.GroundedAnswer{Answer: "Belgeye gore Ankara bilgisi mevcut.", CitationIDs: []string{it.Tag}}, nil
		}
	}
	return &core.GroundedAnswer{Answer: core.NoEvidenceAnswer, CitationIDs: []string{}}, nil
}

type fakePDF struct{}

func (fakePDF) ReadPages(data []byte) ([]pdf.Page, error) {
	return []pdf.Page{{Number: 1, Text: "Ankara merkezli üretim tesisi"}}, nil
}

const testMaxFileSize = 1 << 20

func newTestRouter(t *testing.T, apiKey, staticDir string) http.Handler {
	t.Helper()
	dir := t.TempDir()

	db, err := store.NewSQLiteStore(filepath.Join(dir, "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	files, err := filestore.NewDiskStorage(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	vectors := memory.NewStorage()
	chunker, err := core.NewChunkBuilder(900, 180)
	require.NoError(t, err)

	provider := core.NewProviderCache(apiKey, func(ctx context.Context, apiKey string) (core.AIClient, error) {
		return fakeAI{}, nil
	})
	limits := core.UploadLimits{MaxFiles: testMaxFiles, MaxFileSize: testMaxFileSize, AllowedExtensions: []string{"pdf", "jpg", "jpeg", "png"}}

	documents := core.NewDocumentService(db, files, core.NewExtractor(files, fakePDF{}, 10), chunker, vectors, provider, limits)
	qa := core.NewQAService(db, vectors, provider, 0.45)
	health := core.NewHealthService(db, vectors, provider)

	return NewRouter(NewAPIHandler(documents, qa, health, limits.MaxFiles, limits.MaxFileSize), staticDir)
}

func newTestServer(t *testing.T, apiKey, staticDir string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newTestRouter(t, apiKey, staticDir))
	t.Cleanup(srv.Close)
	return srv
}

type part struct {
	name        string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="files"; filename="%s"`, p.name)}
		h["Content-Type"] = []string{p.contentType}
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func upload(t *testing.T, srv *httptest.Server, parts ...part) *http.Response {
	t.Helper()
	body, contentType := multipartBody(t, parts...)
	resp, err := http.Post(srv.URL+"/api/documents", contentType, body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func ask(t *testing.T, srv *httptest.Server, payload any) *http.Response {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/questions", "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func samplePDF() part {
	return part{name: "ankara.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4 sample")}
}

func uploadSample(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := upload(t, srv, samplePDF())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[core.UploadResult](t, resp)
	require.Len(t, res.DocumentIDs, 1)
	return res.DocumentIDs[0]
}

func TestUploadAndList(t *testing.T) {
	srv := newTestServer(t, "test-key", "")

	resp := upload(t, srv, samplePDF(), part{name: "notes.txt", contentType: "text/plain", data: []byte("plain")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[core.UploadResult](t, resp)
	require.Len(t, res.AcceptedFiles, 1)
	assert.Equal(t, "indexed", res.AcceptedFiles[0].Status)
	require.Len(t, res.RejectedFiles, 1)
	assert.Equal(t, "unsupported file extension", res.RejectedFiles[0].Reason)

	list, err := http.Get(srv.URL + "/api/documents")
	require.NoError(t, err)
	defer list.Body.Close()
	require.Equal(t, http.StatusOK, list.StatusCode)

	docs := decode[[]map[string]any](t, list)
	require.Len(t, docs, 1)
	assert.Equal(t, "indexed", docs[0]["status"])
	assert.Equal(t, "tr", docs[0]["language"])
	assert.Equal(t, "pdf", docs[0]["file_type"])
	assert.NotContains(t, docs[0], "storage_path")
}

func TestGetDocument(t *testing.T) {
	srv := newTestServer(t, "test-key", "")
	docID := uploadSample(t, srv)

	resp, err := http.Get(srv.URL + "/api/documents/" + docID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decode[core.DocumentDetail](t, resp)
	assert.Equal(t, docID, detail.ID)
	assert.Equal(t, "indexed", detail.Status)
	assert.Len(t, detail.Segments, 1)
	require.Len(t, detail.Chunks, 1)
	assert.Equal(t, "Ankara merkezli üretim tesisi", detail.Chunks[0].Snippet)

	missing, err := http.Get(srv.URL + "/api/documents/does-not-exist")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestAsk_GroundedAnswer(t *testing.T) {
	srv := newTestServer(t, "test-key", "")
	docID := uploadSample(t, srv)

	resp := ask(t, srv, map[string]any{"question": "Ankara ile ilgili ne var?", "document_ids": []string{docID}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ans := decode[core.Answer](t, resp)
	assert.Equal(t, "grounded_answer", ans.Mode)
	require.NotEmpty(t, ans.Citations)
	assert.Equal(t, docID, ans.Citations[0].DocumentID)
	assert.GreaterOrEqual(t, ans.Confidence, 0.0)
	assert.LessOrEqual(t, ans.Confidence, 1.0)
}

func TestAsk_NoEvidence(t *testing.T) {
	srv := newTestServer(t, "test-key", "")
	docID := uploadSample(t, srv)

	resp := ask(t, srv, map[string]any{"question": "Mars ussu hakkinda bilgi var mi?", "document_ids": []string{docID}, "top_k": 3})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw := decode[map[string]any](t, resp)
	assert.Equal(t, "no_evidence", raw["mode"])
	assert.Equal(t, core.NoEvidenceAnswer, raw["answer"])
	assert.Equal(t, []any{}, raw["citations"])
	assert.Equal(t, 0.0, raw["confidence"])
}

func TestUpload_EmptyFile(t *testing.T) {
	srv := newTestServer(t, "test-key", "")

	resp := upload(t, srv, part{name: "empty.pdf", contentType: "application/pdf"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[core.UploadResult](t, resp)
	assert.Empty(t, res.AcceptedFiles)
	require.Len(t, res.RejectedFiles, 1)
	assert.Equal(t, core.RejectedFile{Filename: "empty.pdf", Reason: "file is empty"}, res.RejectedFiles[0])

	list, err := http.Get(srv.URL + "/api/documents")
	require.NoError(t, err)
	defer list.Body.Close()
	assert.Empty(t, decode[[]map[string]any](t, list))
}

func TestUpload_TooManyFiles(t *testing.T) {
	srv := newTestServer(t, "test-key", "")

	parts := make([]part, testMaxFiles+1)
	for i := range parts {
		parts[i] = part{name: fmt.Sprintf("doc-%d.pdf", i), contentType: "application/pdf", data: []byte("%PDF")}
	}
	resp := upload(t, srv, parts...)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[errorResponse](t, resp)
	assert.Contains(t, body.Detail, fmt.Sprint(testMaxFiles))
}

func TestUpload_TooManyLargeFilesNamesTheLimit(t *testing.T) {
	router := newTestRouter(t, "test-key", "")

	parts := make([]part, 0, testMaxFiles+1)
	for i := 0; i < testMaxFiles; i++ {
		parts = append(parts, part{name: fmt.Sprintf("doc-%d.pdf", i), contentType: "application/pdf", data: []byte("%PDF")})
	}
	// The surplus file alone is larger than the whole request allowance.
	parts = append(parts, part{name: "huge.pdf", contentType: "application/pdf", data: bytes.Repeat([]byte("a"), 8*testMaxFileSize)})
	body, contentType := multipartBody(t, parts...)

	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, fmt.Sprintf("At most %d files can be uploaded per request", testMaxFiles), resp.Detail)
}

func TestUpload_OversizedFileIsRejectedPerFile(t *testing.T) {
	srv := newTestServer(t, "test-key", "")

	resp := upload(t, srv,
		part{name: "big.pdf", contentType: "application/pdf", data: bytes.Repeat([]byte("a"), testMaxFileSize+10)},
		samplePDF(),
	)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[core.UploadResult](t, resp)
	require.Len(t, res.RejectedFiles, 1)
	assert.Equal(t, "big.pdf", res.RejectedFiles[0].Filename)
	assert.Contains(t, res.RejectedFiles[0].Reason, "file is too large")
	require.Len(t, res.AcceptedFiles, 1)
	assert.Equal(t, "ankara.pdf", res.AcceptedFiles[0].Filename)
}

func TestUpload_MissingAPIKey(t *testing.T) {
	srv := newTestServer(t, "", "")

	resp := upload(t, srv, samplePDF())
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[errorResponse](t, resp)
	assert.Contains(t, strings.ToUpper(body.Detail), "API_KEY")
}

func TestUpload_NoFiles(t *testing.T) {
	srv := newTestServer(t, "test-key", "")
	resp := upload(t, srv)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAsk_Validation(t *testing.T) {
	srv := newTestServer(t, "test-key", "")

	tests := []struct {
		name    string
		payload any
	}{
		{"short question", map[string]any{"question": "ab", "document_ids": []string{"x"}}},
		{"long question", map[string]any{"question": strings.Repeat("a", 2001), "document_ids": []string{"x"}}},
		{"no documents", map[string]any{"question": "Ankara?", "document_ids": []string{}}},
		{"top_k zero", map[string]any{"question": "Ankara?", "document_ids": []string{"x"}, "top_k": 0}},
		{"top_k too large", map[string]any{"question": "Ankara?", "document_ids": []string{"x"}, "top_k": 16}},
		{"not json", "plain string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ask(t, srv, tt.payload)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		})
	}
}

func TestAsk_UnknownDocumentIsNoEvidence(t *testing.T) {
	srv := newTestServer(t, "", "")

	resp := ask(t, srv, map[string]any{"question": "Ankara?", "document_ids": []string{"does-not-exist"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ans := decode[core.Answer](t, resp)
	assert.Equal(t, "no_evidence", ans.Mode)
	assert.Equal(t, 0, ans.UsedChunks)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, "", "")

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	report := decode[core.HealthReport](t, resp)
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "ok", report.Services["database"])
	assert.Equal(t, "ok", report.Services["vector_store"])
	assert.Equal(t, "missing_api_key", report.Services["gemini"])
}

func TestMetricsAndStatic(t *testing.T) {
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>Belge Soru-Cevap</h1>"), 0o644))
	srv := newTestServer(t, "test-key", static)
	uploadSample(t, srv)

	metrics, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	require.Equal(t, http.StatusOK, metrics.StatusCode)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(metrics.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "docqa_ingest_documents_total")

	root, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer root.Body.Close()
	require.Equal(t, http.StatusOK, root.StatusCode)
	buf.Reset()
	_, err = buf.ReadFrom(root.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Belge Soru-Cevap")
}
