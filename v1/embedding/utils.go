package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of a failed response is kept in APIError.
const maxErrorBody = 4 << 10

// postJSON sends one HTTP POST to the endpoint and returns the raw response body.
// Non-2xx answers become *APIError; transport errors are wrapped so that
// context cancellation stays visible to errors.Is.
func (p *inferenceProvider) postJSON(ctx context.Context, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("embedding: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("embedding: build request: %w", err)
	}
	for k, v := range p.headers {
		req.Header[k] = v
	}
	p.tracer.InjectHeaders(ctx, req.Header)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: post %s: %w", p.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
			URL:        p.url,
		}
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedding: read response: %w", err)
	}
	return out, nil
}

// indexedEmbedding is one element of an OpenAI-style "data" array.
type indexedEmbedding struct {
	Index     *int      `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// responseEnvelope covers the object-shaped responses we accept.
type responseEnvelope struct {
	Data        []indexedEmbedding `json:"data"`
	Embeddings  [][]float64        `json:"embeddings"`
	Predictions json.RawMessage    `json:"predictions"`
}

// decodeEmbeddings accepts any of:
//
//	{"data":[{"index":0,"embedding":[...]}]}
//	[[...], ...]
//	{"embeddings":[[...]]}
//	{"predictions":[[...]]} or {"predictions":[{"embedding":[...]}]}
//	[{"embedding":[...]}]
//
// Vectors carrying an index are returned in index order.
func decodeEmbeddings(body []byte) ([][]float64, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	if body[0] == '[' {
		return decodeArray(body)
	}

	var env responseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	switch {
	case env.Data != nil:
		return orderByIndex(env.Data)
	case env.Embeddings != nil:
		return checkVectors(env.Embeddings)
	case len(env.Predictions) > 0:
		return decodeArray(env.Predictions)
	default:
		return nil, fmt.Errorf("%w: no data, embeddings or predictions field", ErrMalformedResponse)
	}
}

func decodeArray(raw []byte) ([][]float64, error) {
	var vectors [][]float64
	if err := json.Unmarshal(raw, &vectors); err == nil {
		return checkVectors(vectors)
	}

	var items []indexedEmbedding
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return orderByIndex(items)
}

// orderByIndex places each vector at its index when every item has one,
// otherwise it keeps the order of the response.
func orderByIndex(items []indexedEmbedding) ([][]float64, error) {
	indexed := len(items) > 0
	for _, it := range items {
		if it.Index == nil {
			indexed = false
			break
		}
	}

	out := make([][]float64, len(items))
	if !indexed {
		for i, it := range items {
			out[i] = it.Embedding
		}
		return checkVectors(out)
	}

	for _, it := range items {
		idx := *it.Index
		if idx < 0 || idx >= len(items) {
			return nil, fmt.Errorf("%w: index %d out of range for %d items", ErrMalformedResponse, idx, len(items))
		}
		if out[idx] != nil {
			return nil, fmt.Errorf("%w: duplicate index %d", ErrMalformedResponse, idx)
		}
		out[idx] = it.Embedding
	}
	return checkVectors(out)
}

func checkVectors(vectors [][]float64) ([][]float64, error) {
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty vector at position %d", ErrMalformedResponse, i)
		}
	}
	return vectors, nil
}
