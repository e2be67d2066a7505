package core

import (
	"context"
	"fmt"
	"log"
	"math"

	"tusas.com/document-qa/internal/domain"
	"tusas.com/document-qa/internal/metrics"
	"tusas.com/document-qa/internal/vectorstore"
)

const (
	ModeGroundedAnswer = "grounded_answer"
	ModeNoEvidence     = "no_evidence"

	snippetLength = 220
)

type Answer struct {
	Answer     string            `json:"answer"`
	Mode       string            `json:"mode"`
	Citations  []domain.Citation `json:"citations"`
	Confidence float64           `json:"confidence"`
	UsedChunks int               `json:"used_chunks"`
}

// QAService answers questions only from chunks of indexed documents that
// fall under the distance threshold.
type QAService struct {
	repo        DocumentRepository
	vectors     vectorstore.Store
	ai          AIClientSource
	maxDistance float64
	metrics     *metrics.PipelineMetrics
}

func NewQAService(repo DocumentRepository, vectors vectorstore.Store, ai AIClientSource, maxDistance float64) *QAService {
	return &QAService{
		repo:        repo,
		vectors:     vectors,
		ai:          ai,
		maxDistance: maxDistance,
		metrics:     metrics.Metrics(),
	}
}

func (s *QAService) Ask(ctx context.Context, question string, documentIDs []string, topK int) (*Answer, error) {
	ans, err := s.ask(ctx, question, documentIDs, topK)
	switch {
	case err != nil:
		s.metrics.RecordQuestion("error")
	case ans.Mode == ModeNoEvidence:
		s.metrics.RecordQuestion("no_evidence")
	default:
		s.metrics.RecordQuestion("answered")
	}
	return ans, err
}

func (s *QAService) ask(ctx context.Context, question string, documentIDs []string, topK int) (*Answer, error) {
	docs, err := s.repo.GetDocumentsByIDs(ctx, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve documents: %w", err)
	}
	var indexed []string
	for _, d := range docs {
		if d.Status == domain.StatusIndexed {
			indexed = append(indexed, d.ID)
		}
	}
	if len(indexed) == 0 {
		log.Println("QA no_evidence: no indexed documents among the requested ids")
		return noEvidence(0), nil
	}

	ai, err := s.ai.AIClient(ctx)
	if err != nil {
		return nil, err
	}

	vectors, err := ai.EmbedTexts(ctx, []string{question}, TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to get query embedding: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 query embedding, got %d", len(vectors))
	}

	retrieved, err := s.vectors.Query(ctx, vectors[0], indexed, max(2*topK, topK))
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	relevant := FilterByDistance(retrieved, s.maxDistance, topK)
	if len(relevant) == 0 {
		log.Printf("QA no_evidence: none of %d retrieved chunks under distance %.2f", len(retrieved), s.maxDistance)
		return noEvidence(0), nil
	}

	items := make([]ContextItem, len(relevant))
	byTag := make(map[string]domain.RetrievedChunk, len(relevant))
	for i, rc := range relevant {
		tag := citationTag(i)
		items[i] = contextItem(tag, rc)
		byTag[tag] = rc
	}

	grounded, err := ai.AnswerQuestion(ctx, question, items)
	if err != nil {
		return nil, fmt.Errorf("grounded answer failed: %w", err)
	}

	var cited []domain.RetrievedChunk
	seen := make(map[string]struct{}, len(grounded.CitationIDs))
	for _, tag := range grounded.CitationIDs {
		rc, ok := byTag[tag]
		if !ok {
			debugf("dropping unknown citation tag %q", tag)
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		cited = append(cited, rc)
	}

	if len(cited) == 0 || grounded.Answer == "" || grounded.Declined() {
		log.Printf("QA no_evidence: provider declined or cited nothing (%d chunks considered)", len(relevant))
		return noEvidence(len(relevant)), nil
	}

	citations := make([]domain.Citation, len(cited))
	for i, rc := range cited {
		citations[i] = domain.Citation{
			DocumentID: rc.DocumentID,
			Filename:   rc.Filename,
			Page:       rc.Page,
			ChunkID:    rc.ChunkID,
			Snippet:    Snippet(rc.Text),
		}
	}

	return &Answer{
		Answer:     grounded.Answer,
		Mode:       ModeGroundedAnswer,
		Citations:  citations,
		Confidence: Confidence(cited),
		UsedChunks: len(relevant),
	}, nil
}

// FilterByDistance keeps chunks with distance <= maxDistance, in order, up to topK.
func FilterByDistance(chunks []domain.RetrievedChunk, maxDistance float64, topK int) []domain.RetrievedChunk {
	out := make([]domain.RetrievedChunk, 0, min(len(chunks), topK))
	for _, rc := range chunks {
		if len(out) == topK {
			break
		}
		if rc.Distance <= maxDistance {
			out = append(out, rc)
		}
	}
	return out
}

// Confidence is 1 - mean(distance) over the cited chunks, clamped to [0, 1]
// and rounded to 3 decimals.
func Confidence(cited []domain.RetrievedChunk) float64 {
	if len(cited) == 0 {
		return 0
	}
	var sum float64
	for _, rc := range cited {
		sum += rc.Distance
	}
	score := math.Max(0, math.Min(1, 1-sum/float64(len(cited))))
	return math.Round(score*1000) / 1000
}

// Snippet is the whitespace-collapsed prefix of a chunk shown in citations.
func Snippet(text string) string {
	r := []rune(NormalizeWhitespace(text))
	if len(r) > snippetLength {
		r = r[:snippetLength]
	}
	return string(r)
}

func noEvidence(usedChunks int) *Answer {
	return &Answer{
		Answer:     NoEvidenceAnswer,
		Mode:       ModeNoEvidence,
		Citations:  []domain.Citation{},
		Confidence: 0,
		UsedChunks: usedChunks,
	}
}
