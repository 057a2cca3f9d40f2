package embedding

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// GenAIEngine generates embeddings via Google's Gemini API.
type GenAIEngine struct {
	client   *genai.Client
	model    string
	taskType string

	mu         sync.Mutex
	dimensions int // 0 until the first real call reports a vector length
}

// NewGenAIEngine builds a GenAIEngine for the given model and task type.
// model is caller-configurable (internal/embedding's Config.GenAIModel),
// so the output dimensionality cannot be assumed at construction time the
// way a single fixed Gemini model could — Dimensions reports the size
// actually observed from the API rather than a constant.
func NewGenAIEngine(apiKey, model, taskType string) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding: genai api key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("embedding: create genai client: %w", err)
	}

	return &GenAIEngine{client: client, model: model, taskType: taskTypeFromString(taskType)}, nil
}

func taskTypeFromString(taskType string) string {
	switch taskType {
	case "CLASSIFICATION":
		return "CLASSIFICATION"
	case "CLUSTERING":
		return "CLUSTERING"
	case "RETRIEVAL_DOCUMENT":
		return "RETRIEVAL_DOCUMENT"
	case "RETRIEVAL_QUERY":
		return "RETRIEVAL_QUERY"
	case "CODE_RETRIEVAL_QUERY":
		return "CODE_RETRIEVAL_QUERY"
	case "QUESTION_ANSWERING":
		return "QUESTION_ANSWERING"
	case "FACT_VERIFICATION":
		return "FACT_VERIFICATION"
	default:
		return "SEMANTIC_SIMILARITY"
	}
}

// Embed generates an embedding for a single text.
func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{TaskType: e.taskType})
	if err != nil {
		return nil, fmt.Errorf("embedding: genai embed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("embedding: genai returned no embeddings")
	}
	vec := result.Embeddings[0].Values
	e.recordDimensions(len(vec))
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (e *GenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{TaskType: e.taskType})
	if err != nil {
		return nil, fmt.Errorf("embedding: genai batch embed: %w", err)
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = emb.Values
	}
	if len(embeddings) > 0 {
		e.recordDimensions(len(embeddings[0]))
	}
	return embeddings, nil
}

func (e *GenAIEngine) recordDimensions(n int) {
	e.mu.Lock()
	e.dimensions = n
	e.mu.Unlock()
}

// Dimensions returns the vector length observed from the last embedding
// call, or gemini-embedding-001's native 768 before any call has run.
// FindTopK skips corpus vectors whose length disagrees with the query's,
// so a caller configuring a non-default model gets a correct value here
// after the first real embedding instead of a silently wrong constant.
func (e *GenAIEngine) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dimensions == 0 {
		return 768
	}
	return e.dimensions
}

// Name identifies this engine for logging.
func (e *GenAIEngine) Name() string { return fmt.Sprintf("genai:%s", e.model) }

// Close satisfies Engine; the engine holds nothing that needs releasing,
// so it always returns nil.
func (e *GenAIEngine) Close() error {
	return nil
}
