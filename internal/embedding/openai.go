package embedding

import (
	"context"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"memlayer/internal/memerrors"
)

// defaultEmbeddingRetryAfter is used when a rate-limit response carries no
// parseable hint.
const defaultEmbeddingRetryAfter = 60 * time.Second

// OpenAIEmbedder wraps the official OpenAI embeddings endpoint as an
// Embedder, following the client-construction and error-classification
// conventions established for completion.OpenAIProvider.
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
}

// NewOpenAIEmbedder returns an embedder targeting model, whose outputs are
// dimension floats wide.
func NewOpenAIEmbedder(apiKey, model string, dimension int) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		dimension: dimension,
	}
}

// Dimension implements Embedder.
func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:          openai.EmbeddingModel(e.model),
		Dimensions:     openai.Int(int64(e.dimension)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, classifyEmbeddingError(err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return nil, memerrors.New(memerrors.KindLLM, "received empty embedding response from OpenAI")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

func classifyEmbeddingError(err error) error {
	if err == nil {
		return nil
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "429") || strings.Contains(errStr, "rate") || strings.Contains(errStr, "quota"):
		return memerrors.NewRateLimitError(defaultEmbeddingRetryAfter)
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "timeout") || strings.Contains(errStr, "connection"):
		return memerrors.Wrap(memerrors.KindLLM, err, "openai embedding transient error")
	default:
		return memerrors.Wrap(memerrors.KindLLM, err, "openai embedding request failed")
	}
}
