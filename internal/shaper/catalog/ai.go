package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// Comparer produces a short prose comparison of products for the
// product-compare widget.
type Comparer interface {
	Compare(ctx context.Context, products []Product, focus string) (string, error)
}

// DefaultEmbeddingModel is the default OpenAI embeddings model.
const DefaultEmbeddingModel = oai.EmbeddingModelTextEmbedding3Small

// AIClient implements [Comparer] and [Embedder] over the OpenAI API.
type AIClient struct {
	client         oai.Client
	model          string
	embeddingModel string
}

// AIOption is a functional option for [NewAIClient].
type AIOption func(*aiConfig)

type aiConfig struct {
	baseURL        string
	timeout        time.Duration
	embeddingModel string
}

// WithAIBaseURL overrides the default API base URL, for OpenAI-compatible
// providers.
func WithAIBaseURL(url string) AIOption {
	return func(c *aiConfig) { c.baseURL = url }
}

// WithAITimeout sets a per-request HTTP timeout.
func WithAITimeout(d time.Duration) AIOption {
	return func(c *aiConfig) { c.timeout = d }
}

// WithEmbeddingModel overrides [DefaultEmbeddingModel].
func WithEmbeddingModel(model string) AIOption {
	return func(c *aiConfig) { c.embeddingModel = model }
}

// NewAIClient constructs the OpenAI-backed comparer and embedder.
func NewAIClient(apiKey, model string, opts ...AIOption) (*AIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("catalog ai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("catalog ai: model must not be empty")
	}

	cfg := &aiConfig{embeddingModel: DefaultEmbeddingModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &AIClient{
		client:         oai.NewClient(reqOpts...),
		model:          model,
		embeddingModel: cfg.embeddingModel,
	}, nil
}

// Compare implements [Comparer] with a single chat completion over the
// products' titles, prices and descriptions.
func (a *AIClient) Compare(ctx context.Context, products []Product, focus string) (string, error) {
	var sb strings.Builder
	for _, p := range products {
		fmt.Fprintf(&sb, "- %s (%.2f %s): %s\n", p.Title, p.Price, p.Currency, p.Description)
	}
	prompt := "Compare the following products for a shopper"
	if focus != "" {
		prompt += ", focusing on " + focus
	}
	prompt += ". Be concise and concrete.\n\n" + sb.String()

	resp, err := a.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage("You are a product comparison assistant. Answer in at most three short paragraphs."),
			oai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("catalog ai: compare: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("catalog ai: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed implements [Embedder].
func (a *AIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: a.embeddingModel,
		Input: oai.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("catalog ai: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("catalog ai: empty embedding response")
	}
	out := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// Dimensions implements [Embedder] for the known OpenAI embedding models.
func (a *AIClient) Dimensions() int {
	lower := strings.ToLower(a.embeddingModel)
	switch {
	case strings.Contains(lower, "text-embedding-3-large"):
		return 3072
	default:
		return 1536
	}
}
