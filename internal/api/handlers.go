package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"tusas.com/document-qa/internal/core"
	"tusas.com/document-qa/internal/vectorstore"
)

const (
	minQuestionLength = 3
	maxQuestionLength = 2000
	defaultTopK       = 5
	maxTopK           = 15

	// multipartOverhead covers part headers and boundaries.
	multipartOverhead = 1 << 20
)

type APIHandler struct {
	documents   *core.DocumentService
	qa          *core.QAService
	health      *core.HealthService
	maxFiles    int
	maxFileSize int64
}

func NewAPIHandler(documents *core.DocumentService, qa *core.QAService, health *core.HealthService, maxFiles int, maxFileSize int64) *APIHandler {
	return &APIHandler{
		documents:   documents,
		qa:          qa,
		health:      health,
		maxFiles:    maxFiles,
		maxFileSize: maxFileSize,
	}
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeServiceError maps pipeline errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, core.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, "Document not found")
	case errors.Is(err, core.ErrTooManyFiles):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrProviderUnavailable), errors.Is(err, vectorstore.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, core.ErrResponseParse):
		log.Printf("Error in %s: %v", op, err)
		writeError(w, http.StatusBadGateway, "AI provider returned an unreadable answer")
	default:
		log.Printf("Error in %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "Failed to "+op)
	}
}

// UploadDocumentsHandler streams the multipart body part by part, so a
// request with too many files is refused at the first surplus file header.
func (h *APIHandler) UploadDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxFiles+1)*h.maxFileSize+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart body: "+err.Error())
		return
	}

	var files []core.UploadFile
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeBodyError(w, err)
			return
		}
		if part.FormName() != "files" || part.FileName() == "" {
			continue
		}
		if len(files) == h.maxFiles {
			part.Close()
			writeError(w, http.StatusBadRequest, fmt.Sprintf("At most %d files can be uploaded per request", h.maxFiles))
			return
		}

		data, err := h.readPart(part)
		if err != nil {
			log.Printf("Error reading upload %q: %v", part.FileName(), err)
			writeBodyError(w, err)
			return
		}
		files = append(files, core.UploadFile{
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	if len(files) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "At least one file is required in the 'files' field")
		return
	}

	result, err := h.documents.Upload(r.Context(), files)
	if err != nil {
		writeServiceError(w, "upload documents", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body is too large")
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid multipart body: "+err.Error())
}

// readPart reads at most one byte past the size limit so oversized files are
// still reported per file without buffering them whole. The remainder is
// discarded by the next NextPart call.
func (h *APIHandler) readPart(part *multipart.Part) ([]byte, error) {
	defer part.Close()
	return io.ReadAll(io.LimitReader(part, h.maxFileSize+1))
}

func (h *APIHandler) ListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documents.ListDocuments(r.Context())
	if err != nil {
		writeServiceError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *APIHandler) GetDocumentHandler(w http.ResponseWriter, r *http.Request) {
	detail, err := h.documents.GetDocument(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		writeServiceError(w, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type AskRequest struct {
	Question    string   `json:"question"`
	DocumentIDs []string `json:"document_ids"`
	TopK        *int     `json:"top_k,omitempty"`
}

func (req *AskRequest) validate() (int, error) {
	req.Question = strings.TrimSpace(req.Question)
	n := utf8.RuneCountInString(req.Question)
	if n < minQuestionLength || n > maxQuestionLength {
		return 0, fmt.Errorf("question must be between %d and %d characters", minQuestionLength, maxQuestionLength)
	}
	if len(req.DocumentIDs) == 0 {
		return 0, errors.New("document_ids must contain at least one id")
	}
	topK := defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	if topK < 1 || topK > maxTopK {
		return 0, fmt.Errorf("top_k must be between 1 and %d", maxTopK)
	}
	return topK, nil
}

func (h *APIHandler) AskQuestionHandler(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid request body: "+err.Error())
		return
	}
	topK, err := req.validate()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	answer, err := h.qa.Ask(r.Context(), req.Question, req.DocumentIDs, topK)
	if err != nil {
		writeServiceError(w, "answer question", err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.health.Check(r.Context()))
}
