package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"tusas.com/document-qa/internal/pdf"
)

// fakeAI embeds by keyword presence so similar topics land close together.
type fakeAI struct {
	mu         sync.Mutex
	ocrText    string
	ocrCalls   int
	embedCalls int
	embedErr   error
	answer     func(question string, items []ContextItem) (*GroundedAnswer, error)
	lastItems  []ContextItem
}

var fakeVocabulary = []string{"ankara", "istanbul", "ucak", "mars"}

func fakeVector(text string) []float32 {
	lowered := strings.ToLower(text)
	v := make([]float32, len(fakeVocabulary)+1)
	for i, w := range fakeVocabulary {
		if strings.Contains(lowered, w) {
			v[i] = 1
		}
	}
	v[len(fakeVocabulary)] = 0.05
	return v
}

func (f *fakeAI) EmbedTexts(ctx context.Context, texts []string, task EmbeddingTask) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = fakeVector(t)
	}
	return out, nil
}

func (f *fakeAI) ExtractTextFromImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ocrCalls++
	return f.ocrText, nil
}

func (f *fakeAI) AnswerQuestion(ctx context.Context, question string, items []ContextItem) (*GroundedAnswer, error) {
	f.mu.Lock()
	f.lastItems = items
	f.mu.Unlock()
	if f.answer != nil {
		return f.answer(question, items)
	}
	return keywordAnswer(question, items)
}

// keywordAnswer cites the first item sharing a keyword with the question.
func keywordAnswer(question string, items []ContextItem) (*GroundedAnswer, error) {
	q := strings.ToLower(question)
	for _, item := range items {
		text := strings.ToLower(item.Text)
		for _, w := range fakeVocabulary {
			if strings.Contains(q, w) && strings.Contains(text, w) {
				return &GroundedAnswer{Answer: "Belgeye gore " + w + " bilgisi mevcut.", CitationIDs: []string{item.Tag}}, nil
			}
		}
	}
	return &GroundedAnswer{Answer: NoEvidenceAnswer, CitationIDs: []string{}}, nil
}

type fakeSource struct {
	client AIClient
	err    error
}

func (s *fakeSource) AIClient(ctx context.Context) (AIClient, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.client, nil
}

func (s *fakeSource) Configured() bool { return s.err == nil }

type fakePDF struct {
	pages []pdf.Page
	err   error
}

func (f *fakePDF) ReadPages(data []byte) ([]pdf.Page, error) {
	return f.pages, f.err
}

type fakeFiles struct {
	data map[string][]byte
}

func (f *fakeFiles) ReadFile(ctx context.Context, location string) ([]byte, error) {
	d, ok := f.data[location]
	if !ok {
		return nil, errors.New("no such file")
	}
	return d, nil
}
