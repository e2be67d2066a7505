package domain

// Document lifecycle states.
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusIndexed    = "indexed"
	StatusFailed     = "failed"
)

// Detected document languages.
const (
	LanguageTurkish = "tr"
	LanguageEnglish = "en"
	LanguageOther   = "other"
	LanguageUnknown = "unknown"
)

// Segment sources.
const (
	SourceNative = "native"
	SourceOCR    = "ocr"
)

// Segment is a page- or image-scoped piece of extracted raw text.
// Page is nil for non-paged sources.
type Segment struct {
	Page   *int
	Source string
	Text   string
}

// Chunk is a bounded slice of normalized text prepared for embedding.
type Chunk struct {
	ID         string
	DocumentID string
	Filename   string
	Index      int
	Page       *int
	Text       string
}

// RetrievedChunk is a similarity query hit. Distance is cosine distance,
// lower is more similar.
type RetrievedChunk struct {
	ChunkID    string
	DocumentID string
	Filename   string
	Page       *int
	Text       string
	Distance   float64
}

// Citation points from an answer back to the chunk that justifies it.
type Citation struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Page       *int   `json:"page"`
	ChunkID    string `json:"chunk_id"`
	Snippet    string `json:"snippet"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
