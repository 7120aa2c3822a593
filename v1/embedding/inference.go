package embedding

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Aleph-Alpha/endpoint-embeddings/v1/tracer"
)

// inferenceProvider posts JSON directly to the configured URL.
type inferenceProvider struct {
	url        string
	format     Format
	model      string
	dimensions int
	normalize  *bool
	truncate   bool
	headers    http.Header
	httpClient *http.Client
	tracer     *tracer.Tracer
}

func newInferenceProvider(cfg *Config, token string) *inferenceProvider {
	return &inferenceProvider{
		url:        cfg.Endpoint,
		format:     cfg.Format,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		normalize:  cfg.Normalize,
		truncate:   cfg.Truncate,
		headers:    requestHeaders(cfg, token),
		httpClient: &http.Client{Timeout: cfg.httpTimeout()},
		tracer:     cfg.Tracer,
	}
}

type openAIRequest struct {
	Model      string   `json:"model,omitempty"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type teiRequest struct {
	Inputs    []string `json:"inputs"`
	Truncate  bool     `json:"truncate,omitempty"`
	Normalize *bool    `json:"normalize,omitempty"`
}

type instancesRequest struct {
	Instances []string `json:"instances"`
}

func (p *inferenceProvider) requestBody(texts []string) (any, error) {
	switch p.format {
	case FormatOpenAI, "":
		return openAIRequest{Model: p.model, Input: texts, Dimensions: p.dimensions}, nil
	case FormatTEI:
		return teiRequest{Inputs: texts, Truncate: p.truncate, Normalize: p.normalize}, nil
	case FormatInstances:
		return instancesRequest{Instances: texts}, nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, p.format)
	}
}

// Embed sends all texts in a single request.
func (p *inferenceProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	body, err := p.requestBody(texts)
	if err != nil {
		return nil, err
	}

	raw, err := p.postJSON(ctx, body)
	if err != nil {
		return nil, err
	}
	return decodeEmbeddings(raw)
}

// Close releases idle keep-alive connections.
func (p *inferenceProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func (p *inferenceProvider) setTracer(t *tracer.Tracer) {
	p.tracer = t
}
