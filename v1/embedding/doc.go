// Package embedding is a thin client for a hosted text-embedding endpoint.
//
// # Overview
//
// A Client holds exactly one endpoint URL and exposes two operations:
//
//	vec, err := client.EmbedQuery(ctx, "what is a vector store?")
//	vecs, err := client.EmbedDocuments(ctx, []string{"doc one", "doc two"})
//
// Each call is one synchronous HTTP POST. EmbedDocuments returns one vector
// per input in input order; when the endpoint reports an "index" per item the
// vectors are re-ordered by it. There are no retries, no chunking of large
// batches and no caching. Failures are returned as they happen:
//
//   - transport errors are wrapped, so errors.Is(err, context.Canceled) works
//   - non-2xx answers become *APIError (see IsStatus, IsUnauthorized)
//   - undecodable bodies wrap ErrMalformedResponse
//   - a wrong number of vectors wraps ErrCountMismatch
//
// # Configuration
//
// Configuration comes from the environment (NewConfig) or a YAML file with
// environment overrides (LoadConfig):
//
//   - EMBEDDING_ENDPOINT             URL to post to (required)
//   - EMBEDDING_PROVIDER             "inference" (default) or "openai"
//   - EMBEDDING_FORMAT               "openai" (default), "tei" or "instances"
//   - EMBEDDING_MODEL                model name for the openai format
//   - EMBEDDING_DIMENSIONS           optional output dimensions
//   - EMBEDDING_API_TOKEN            bearer token
//   - EMBEDDING_API_TOKEN_FILE       file holding the token
//   - EMBEDDING_AUTH_HEADER          default "Authorization"
//   - EMBEDDING_AUTH_SCHEME          default "Bearer", "none" for a bare token
//   - EMBEDDING_EXTRA_HEADERS        "k:v,k2:v2"
//   - EMBEDDING_QUERY_PREFIX         prepended to EmbedQuery input
//   - EMBEDDING_DOCUMENT_PREFIX      prepended to EmbedDocuments inputs
//   - EMBEDDING_HTTP_TIMEOUT_SECONDS default 30, -1 for no client timeout
//
// Request bodies per format:
//
//	openai     {"model": "...", "input": ["..."], "dimensions": 256}
//	tei        {"inputs": ["..."], "truncate": true, "normalize": true}
//	instances  {"instances": ["..."]}
//
// The response decoder accepts any of the common envelopes regardless of the
// request format.
//
// With EMBEDDING_PROVIDER=openai the official OpenAI SDK is used and the
// endpoint is treated as the API base URL ("https://host/v1").
//
// # Observability
//
// Every call opens a client span on the global OpenTelemetry provider and
// injects the W3C trace headers into the request. WithObserver attaches an
// observability.Observer (for example metrics.Metrics) that is notified once
// per call with Component "embedding".
//
// # Dependency Injection (Fx)
//
//	app := fx.New(
//	    fx.Provide(embedding.NewConfig),
//	    embedding.FXModule,
//	    fx.Invoke(func(c *embedding.Client) {
//	        // use embeddings
//	    }),
//	)
package embedding
