package graphstore

import (
	"context"
	"errors"
)

// MetadataLinksKey is the metadata key AddTexts reads links from.
const MetadataLinksKey = "links"

var (
	// ErrLengthMismatch is returned when texts, metadatas and ids differ in length.
	ErrLengthMismatch = errors.New("graphstore: length mismatch")

	// ErrInvalidArgument is returned for out-of-range search parameters.
	ErrInvalidArgument = errors.New("graphstore: invalid argument")

	// ErrUnknownSearchType is returned by Search for unsupported search types.
	ErrUnknownSearchType = errors.New("graphstore: unknown search type")

	// ErrUnsupportedFilter is returned for metadata filter values outside the
	// rules documented on MatchesFilter.
	ErrUnsupportedFilter = errors.New("graphstore: unsupported filter value")
)

// Direction of a link relative to the node carrying it.
type Direction string

const (
	DirectionIn    Direction = "in"
	DirectionOut   Direction = "out"
	DirectionBidir Direction = "bidir"
)

// Link is a typed, tagged edge endpoint. An edge exists from node A to node B
// when A carries an outgoing link and B an incoming link with the same Kind
// and Tag. Bidirectional links count as both.
type Link struct {
	Kind      string    `json:"kind"`
	Tag       string    `json:"tag"`
	Direction Direction `json:"direction"`
}

// IncomingLink returns a link other nodes can point at.
func IncomingLink(kind, tag string) Link {
	return Link{Kind: kind, Tag: tag, Direction: DirectionIn}
}

// OutgoingLink returns a link pointing at nodes with a matching incoming link.
func OutgoingLink(kind, tag string) Link {
	return Link{Kind: kind, Tag: tag, Direction: DirectionOut}
}

// BidirLink returns a link that is both incoming and outgoing.
func BidirLink(kind, tag string) Link {
	return Link{Kind: kind, Tag: tag, Direction: DirectionBidir}
}

// Outgoing reports whether the link can start an edge.
func (l Link) Outgoing() bool {
	return l.Direction == DirectionOut || l.Direction == DirectionBidir
}

// Incoming reports whether the link can end an edge.
func (l Link) Incoming() bool {
	return l.Direction == DirectionIn || l.Direction == DirectionBidir
}

// Key identifies the edge class of a link regardless of direction.
func (l Link) Key() string {
	return l.Kind + "\x00" + l.Tag
}

// Node is a document chunk stored in the graph.
type Node struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Links    []Link         `json:"links,omitempty"`
}

// OutgoingLinks returns the links of n that can start an edge.
func (n Node) OutgoingLinks() []Link {
	var out []Link
	for _, l := range n.Links {
		if l.Outgoing() {
			out = append(out, l)
		}
	}
	return out
}

// IncomingLinks returns the links of n that can end an edge.
func (n Node) IncomingLinks() []Link {
	var in []Link
	for _, l := range n.Links {
		if l.Incoming() {
			in = append(in, l)
		}
	}
	return in
}

// ScoredNode is a search result with its cosine similarity to the query.
type ScoredNode struct {
	Node
	Score float64 `json:"score"`
}

// StoredNode is a node together with its embedding, as held by a Backend.
type StoredNode struct {
	Node
	Vector []float64
}

// Hit is a Backend search result.
type Hit struct {
	StoredNode
	Score float64
}

// Embedder computes embeddings; *embedding.Client satisfies it.
//
//go:generate mockgen -source=types.go -destination=mock_types.go -package=graphstore
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error)
}

// Backend persists nodes and answers vector and adjacency queries.
type Backend interface {
	// Upsert inserts or replaces nodes by ID.
	Upsert(ctx context.Context, nodes []StoredNode) error

	// Search returns the k nodes most similar to vector that match filter,
	// best first.
	Search(ctx context.Context, vector []float64, k int, filter map[string]any) ([]Hit, error)

	// Adjacent returns nodes with an incoming link matching any of the given
	// outgoing links, ranked by similarity to vector. k <= 0 means no limit.
	Adjacent(ctx context.Context, links []Link, vector []float64, k int, filter map[string]any) ([]Hit, error)

	// Get returns the nodes that exist among ids, in ids order.
	Get(ctx context.Context, ids []string) ([]StoredNode, error)

	// Delete removes nodes by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error
}
