// Package graphstore is a hybrid vector-and-graph store built on the
// embedding client.
//
// Nodes are text chunks with metadata and links. Links are typed and tagged;
// an edge runs from a node with an outgoing link to every node with an
// incoming link of the same kind and tag, which makes it cheap to connect
// chunks by shared hyperlinks, keywords or parent documents without storing
// explicit edges:
//
//	store := graphstore.NewStore(client, graphstore.NewMemoryBackend())
//	ids, err := store.AddNodes(ctx, []graphstore.Node{
//		{Text: "Go has goroutines.", Links: []graphstore.Link{graphstore.OutgoingLink("href", "concurrency")}},
//		{Text: "Channels synchronise goroutines.", Links: []graphstore.Link{graphstore.IncomingLink("href", "concurrency")}},
//	})
//
// Retrieval strategies:
//
//   - similarity: k nearest nodes
//   - similarity_score_threshold: k nearest nodes above a cosine threshold
//   - traversal: k nearest nodes plus everything reachable within depth edges
//   - mmr: maximal marginal relevance over the fetch_k nearest nodes
//   - mmr_traversal: MMR whose candidate set grows along edges
//
// Search dispatches by name and AsRetriever binds a strategy for reuse.
//
// Metadata filters follow the rules on MatchesFilter in every backend; the
// storetest package checks a backend against them.
//
// Backends: MemoryBackend keeps everything in process; the qdrant package
// provides a persistent one.
package graphstore
