// Package qdrant stores graphstore nodes in the Qdrant vector database.
//
// The package wraps the official Qdrant Go client with a connection-owning
// [QdrantClient] and a [GraphAdapter] that implements [graphstore.Backend],
// so a [graphstore.Store] can persist its nodes in a Qdrant collection
// instead of process memory.
//
// # Core Features
//
//   - Managed client lifecycle with Fx integration
//   - Config loaded from QDRANT_* environment variables
//   - Health check on client initialization
//   - Collection bootstrap with cosine distance and a keyword index on
//     incoming link keys
//   - Batched upserts that wait for persistence
//   - Metadata equality filters translated into payload match conditions
//
// # Payload Layout
//
// Every node becomes one point:
//
//	node_id   string      original node ID
//	text      string      node text
//	metadata  object      node metadata (integers stay integers)
//	links     []object    {kind, tag, direction}
//	links_in  []string    keys of incoming links, indexed as keyword
//
// Node IDs that are UUIDs are used as point IDs directly; other IDs are
// mapped onto name-based UUIDs, so any string works as a node ID.
//
// # Basic Usage
//
//	client, err := qdrant.NewQdrantClient(qdrant.QdrantParams{
//	    Config: qdrant.FromEndpoint("localhost").WithCollection("docs", 384),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.EnsureCollection(ctx, "docs", 384); err != nil {
//	    log.Fatal(err)
//	}
//
//	store := graphstore.NewStore(embedder, qdrant.NewGraphAdapter(client, "docs"))
//	ids, err := store.AddTexts(ctx, texts, metadatas, nil)
//	results, err := store.TraversalSearch(ctx, "what is a link?", graphstore.DefaultTraversalOptions())
//
// # Filters
//
// Metadata filters passed to the store are converted with [MetadataFilter],
// following graphstore.MatchesFilter: strings, booleans, integral numbers and
// string or int slices (IN semantics) become Must conditions, graphstore.Not
// values become MustNot conditions, and anything else yields
// [ErrUnsupportedFilter]. Lower-level conditions can be composed directly
// with [FilterSet]:
//
//	fs := (&qdrant.FilterSet{}).And(
//	    qdrant.TextCondition{Key: "source", Value: "wiki", FieldType: qdrant.MetadataField},
//	    qdrant.IntAnyCondition{Key: "year", Values: []int64{2023, 2024}, FieldType: qdrant.MetadataField},
//	)
//
// # FX Module Integration
//
//	app := fx.New(
//	    logger.FXModule,
//	    fx.Provide(qdrant.NewConfig),
//	    qdrant.FXModule,
//	    fx.Invoke(func(backend graphstore.Backend) { ... }),
//	)
//	app.Run()
//
// With Config.VectorSize set, the collection is created on application start.
package qdrant
