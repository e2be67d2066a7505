package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"tusas.com/document-qa/internal/metrics"
)

const (
	ocrPrompt = "Bu gorseldeki tum metni eksiksiz olarak cikar. " +
		"Yorum ekleme, sadece metni dondur."

	answerSystemInstruction = "You answer questions strictly from the supplied document excerpts. " +
		"Each excerpt has a citation id (cid). Use only information found in the excerpts, " +
		"answer in the language of the question, and list every cid you relied on in citation_ids. " +
		"If the excerpts do not contain the answer, set answerable to false, return an empty " +
		"citation_ids list and answer exactly: \"" + NoEvidenceAnswer + "\""
)

// GeminiClient implements AIClient on the Gemini API.
type GeminiClient struct {
	client         *genai.Client
	modelName      string
	embeddingModel string
	batchSize      int
	metrics        *metrics.PipelineMetrics
}

type GeminiOptions struct {
	Model          string
	EmbeddingModel string
	BatchSize      int
}

func NewGeminiClient(ctx context.Context, apiKey string, opts GeminiOptions) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 || batchSize > DefaultEmbedBatchSize {
		batchSize = DefaultEmbedBatchSize
	}
	return &GeminiClient{
		client:         client,
		modelName:      opts.Model,
		embeddingModel: opts.EmbeddingModel,
		batchSize:      batchSize,
		metrics:        metrics.Metrics(),
	}, nil
}

// GeminiFactory adapts NewGeminiClient for ProviderCache.
func GeminiFactory(opts GeminiOptions) ClientFactory {
	return func(ctx context.Context, apiKey string) (AIClient, error) {
		return NewGeminiClient(ctx, apiKey, opts)
	}
}

func (s *GeminiClient) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *GeminiClient) EmbedTexts(ctx context.Context, texts []string, task EmbeddingTask) ([][]float32, error) {
	em := s.client.EmbeddingModel(s.embeddingModel)
	if task == TaskRetrievalQuery {
		em.TaskType = genai.TaskTypeRetrievalQuery
	} else {
		em.TaskType = genai.TaskTypeRetrievalDocument
	}

	return EmbedInBatches(ctx, texts, s.batchSize, func(ctx context.Context, batch []string) ([][]float32, error) {
		defer s.metrics.ObserveProvider("embed", time.Now())

		b := em.NewBatch()
		for _, t := range batch {
			b.AddContent(genai.Text(t))
		}
		res, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("gemini embedding request failed: %w", err)
		}

		vectors := make([][]float32, 0, len(res.Embeddings))
		for _, e := range res.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return nil, fmt.Errorf("no embedding data received from gemini")
			}
			vectors = append(vectors, e.Values)
		}
		return vectors, nil
	})
}

func (s *GeminiClient) ExtractTextFromImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	defer s.metrics.ObserveProvider("ocr", time.Now())

	model := s.client.GenerativeModel(s.modelName)
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx, genai.Text(ocrPrompt), genai.ImageData(imageFormat(mimeType), data))
	if err != nil {
		return "", fmt.Errorf("gemini ocr request failed: %w", err)
	}
	return strings.TrimSpace(responseText(resp)), nil
}

func (s *GeminiClient) AnswerQuestion(ctx context.Context, question string, items []ContextItem) (*GroundedAnswer, error) {
	defer s.metrics.ObserveProvider("answer", time.Now())

	model := s.client.GenerativeModel(s.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(answerSystemInstruction)},
	}

	temp := float32(0.1)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"answer":       {Type: genai.TypeString},
				"citation_ids": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				"answerable":   {Type: genai.TypeBoolean},
			},
			Required: []string{"answer", "citation_ids"},
		},
	}

	contextJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode context items: %w", err)
	}
	prompt := fmt.Sprintf("--- CONTEXT START ---\n%s\n--- CONTEXT END ---\n\nQuestion: %s", contextJSON, question)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini answer request failed: %w", err)
	}
	raw := responseText(resp)
	if raw == "" {
		log.Println("Gemini response was empty or had no valid candidates/parts.")
		return nil, fmt.Errorf("%w: empty response", ErrResponseParse)
	}
	return ParseGroundedAnswer(raw)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		} else {
			log.Printf("Gemini response part was not text: %T", part)
		}
	}
	return text.String()
}

// imageFormat maps a MIME type to the short format genai.ImageData expects.
func imageFormat(mimeType string) string {
	format := strings.ToLower(strings.TrimPrefix(mimeType, "image/"))
	switch format {
	case "jpg", "jpeg", "pjpeg":
		return "jpeg"
	case "":
		return "png"
	}
	return format
}
