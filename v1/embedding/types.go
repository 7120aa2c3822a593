package embedding

import "context"

// Provider turns a batch of texts into one vector per text, in input order.
// Implementations perform exactly one request per call.
//
//go:generate mockgen -source=types.go -destination=mock_provider.go -package=embedding
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// ProviderKind selects how requests reach the endpoint.
type ProviderKind string

const (
	// ProviderInference posts JSON to the configured URL as-is.
	ProviderInference ProviderKind = "inference"

	// ProviderOpenAI uses the OpenAI SDK with the endpoint as base URL.
	ProviderOpenAI ProviderKind = "openai"
)

// Format is the request body shape used by the inference provider.
type Format string

const (
	// FormatOpenAI sends {"model","input","dimensions"}.
	FormatOpenAI Format = "openai"

	// FormatTEI sends {"inputs","truncate","normalize"} as expected by
	// text-embeddings-inference.
	FormatTEI Format = "tei"

	// FormatInstances sends {"instances"}, the shape used by most managed
	// model-serving endpoints.
	FormatInstances Format = "instances"
)

const (
	operationEmbedQuery     = "embed_query"
	operationEmbedDocuments = "embed_documents"
)
