package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/Aleph-Alpha/endpoint-embeddings/v1/tracer"
)

// openAIProvider talks to any OpenAI-compatible embeddings API through the
// official SDK. The configured endpoint is the API base URL.
type openAIProvider struct {
	client     openai.Client
	httpClient *http.Client
	baseURL    string
	model      openai.EmbeddingModel
	dimensions int
	tracer     *tracer.Tracer
}

func newOpenAIProvider(cfg *Config, token string) *openAIProvider {
	httpClient := &http.Client{Timeout: cfg.httpTimeout()}
	baseURL := strings.TrimRight(cfg.Endpoint, "/") + "/"

	p := &openAIProvider{
		httpClient: httpClient,
		baseURL:    baseURL,
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		tracer:     cfg.Tracer,
	}

	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		// one request per call
		option.WithMaxRetries(0),
		option.WithMiddleware(p.injectTraceHeaders),
	}

	if token != "" {
		if strings.EqualFold(cfg.AuthHeader, defaultAuthHeader) && cfg.AuthScheme == defaultAuthScheme {
			opts = append(opts, option.WithAPIKey(token))
		} else {
			opts = append(opts, option.WithHeader(cfg.AuthHeader, authHeaderValue(cfg.AuthScheme, token)))
		}
	}
	for k, v := range cfg.ExtraHeaders {
		opts = append(opts, option.WithHeader(strings.TrimSpace(k), strings.TrimSpace(v)))
	}

	p.client = openai.NewClient(opts...)
	return p
}

func (p *openAIProvider) injectTraceHeaders(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	p.tracer.InjectHeaders(req.Context(), req.Header)
	return next(req)
}

func (p *openAIProvider) setTracer(t *tracer.Tracer) {
	p.tracer = t
}

// Embed sends all texts as one embeddings.create call.
func (p *openAIProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model:          p.model,
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if p.dimensions > 0 {
		params.Dimensions = openai.Int(int64(p.dimensions))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &APIError{
				StatusCode: apiErr.StatusCode,
				Body:       strings.TrimSpace(apiErr.RawJSON()),
				URL:        p.baseURL + "embeddings",
			}
		}
		return nil, fmt.Errorf("embedding: post %sembeddings: %w", p.baseURL, err)
	}

	// Servers that omit "index" decode as all zeros; keep response order then.
	indexed := false
	for _, d := range resp.Data {
		if d.Index != 0 {
			indexed = true
			break
		}
	}

	items := make([]indexedEmbedding, len(resp.Data))
	for i, d := range resp.Data {
		items[i] = indexedEmbedding{Embedding: d.Embedding}
		if indexed {
			idx := int(d.Index)
			items[i].Index = &idx
		}
	}
	return orderByIndex(items)
}

// Close releases idle keep-alive connections.
func (p *openAIProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
