package qdrant

import (
	"context"
	"fmt"
	"time"

	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/Aleph-Alpha/endpoint-embeddings/v1/graphstore"
	"github.com/Aleph-Alpha/endpoint-embeddings/v1/observability"
)

// GraphAdapter stores graph nodes as points of one Qdrant collection and
// implements graphstore.Backend.
//
// Each point carries the node ID, text, metadata and links in its payload.
// Incoming link keys are duplicated into a keyword array so adjacency
// queries are a single filtered vector query.
type GraphAdapter struct {
	client     *QdrantClient
	collection string
	observer   observability.Observer
}

var _ graphstore.Backend = (*GraphAdapter)(nil)

// NewGraphAdapter returns an adapter over collection. An empty collection
// name falls back to the client's configured collection.
func NewGraphAdapter(client *QdrantClient, collection string) *GraphAdapter {
	if collection == "" && client.cfg != nil {
		collection = client.cfg.Collection
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return &GraphAdapter{client: client, collection: collection}
}

// WithObserver attaches an observer notified after every backend call.
func (a *GraphAdapter) WithObserver(observer observability.Observer) *GraphAdapter {
	a.observer = observer
	return a
}

// Collection returns the collection the adapter operates on.
func (a *GraphAdapter) Collection() string {
	return a.collection
}

// Upsert writes nodes in batches of defaultBatchSize, waiting for each
// batch to be persisted.
func (a *GraphAdapter) Upsert(ctx context.Context, nodes []graphstore.StoredNode) (err error) {
	start := time.Now()
	defer func() { a.observe("upsert", start, len(nodes), err) }()

	if len(nodes) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: node without id", graphstore.ErrInvalidArgument)
		}
		p, err := toPoint(n)
		if err != nil {
			return fmt.Errorf("[Qdrant] %w", err)
		}
		points = append(points, p)
	}

	wait := true
	for begin := 0; begin < len(points); begin += defaultBatchSize {
		end := min(begin+defaultBatchSize, len(points))

		_, err := a.client.api.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: a.collection,
			Points:         points[begin:end],
			Wait:           &wait,
		})
		if err != nil {
			return fmt.Errorf("[Qdrant] batch upsert failed at [%d:%d]: %w", begin, end, err)
		}
		a.client.logger.Debug("Upserted batch", nil, map[string]interface{}{
			"collection": a.collection,
			"from":       begin,
			"to":         end,
		})
	}
	return nil
}

// Search returns the k points closest to vector that match filter.
func (a *GraphAdapter) Search(ctx context.Context, vector []float64, k int, filter map[string]any) (hits []graphstore.Hit, err error) {
	start := time.Now()
	defer func() { a.observe("search", start, len(hits), err) }()

	if k <= 0 {
		return nil, nil
	}

	fs, err := MetadataFilter(filter)
	if err != nil {
		return nil, err
	}
	return a.query(ctx, vector, uint64(k), buildFilter(fs))
}

// Adjacent returns points with an incoming link matching one of the
// outgoing links. k <= 0 returns every match, sized with an exact count.
func (a *GraphAdapter) Adjacent(ctx context.Context, links []graphstore.Link, vector []float64, k int, filter map[string]any) (hits []graphstore.Hit, err error) {
	start := time.Now()
	defer func() { a.observe("adjacent", start, len(hits), err) }()

	var keys []string
	seen := make(map[string]struct{}, len(links))
	for _, l := range links {
		if !l.Outgoing() {
			continue
		}
		if _, ok := seen[l.Key()]; ok {
			continue
		}
		seen[l.Key()] = struct{}{}
		keys = append(keys, l.Key())
	}
	if len(keys) == 0 {
		return nil, nil
	}

	fs, err := MetadataFilter(filter)
	if err != nil {
		return nil, err
	}
	if fs == nil {
		fs = &FilterSet{}
	}
	fs.And(TextAnyCondition{Key: payloadLinksIn, Values: keys})
	qf := buildFilter(fs)

	limit := uint64(k)
	if k <= 0 {
		exact := true
		limit, err = a.client.api.Count(ctx, &qdrant.CountPoints{
			CollectionName: a.collection,
			Filter:         qf,
			Exact:          &exact,
		})
		if err != nil {
			return nil, fmt.Errorf("[Qdrant] count failed: %w", err)
		}
		if limit == 0 {
			return nil, nil
		}
	}
	return a.query(ctx, vector, limit, qf)
}

func (a *GraphAdapter) query(ctx context.Context, vector []float64, limit uint64, filter *qdrant.Filter) ([]graphstore.Hit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", graphstore.ErrInvalidArgument)
	}

	resp, err := a.client.api.Query(ctx, &qdrant.QueryPoints{
		CollectionName: a.collection,
		Query:          qdrant.NewQuery(toFloat32(vector)...),
		Limit:          &limit,
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("[Qdrant] query failed: %w", err)
	}

	hits := make([]graphstore.Hit, 0, len(resp))
	for _, p := range resp {
		hits = append(hits, graphstore.Hit{
			StoredNode: fromPayload(p.GetId(), p.GetPayload(), p.GetVectors()),
			Score:      float64(p.GetScore()),
		})
	}
	return hits, nil
}

// Get returns the nodes that exist among ids, in ids order.
func (a *GraphAdapter) Get(ctx context.Context, ids []string) (nodes []graphstore.StoredNode, err error) {
	start := time.Now()
	defer func() { a.observe("get", start, len(nodes), err) }()

	if len(ids) == 0 {
		return nil, nil
	}

	resp, err := a.client.api.Get(ctx, &qdrant.GetPoints{
		CollectionName: a.collection,
		Ids:            pointIDs(ids),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("[Qdrant] get failed: %w", err)
	}

	byID := make(map[string]graphstore.StoredNode, len(resp))
	for _, p := range resp {
		n := fromPayload(p.GetId(), p.GetPayload(), p.GetVectors())
		byID[n.ID] = n
	}

	nodes = make([]graphstore.StoredNode, 0, len(byID))
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			nodes = append(nodes, n)
			delete(byID, id)
		}
	}
	return nodes, nil
}

// Delete removes nodes by ID, waiting for the operation to complete.
func (a *GraphAdapter) Delete(ctx context.Context, ids []string) (err error) {
	start := time.Now()
	defer func() { a.observe("delete", start, len(ids), err) }()

	if len(ids) == 0 {
		return nil
	}

	wait := true
	_, err = a.client.api.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: a.collection,
		Points:         qdrant.NewPointsSelector(pointIDs(ids)...),
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("[Qdrant] delete failed: %w", err)
	}
	return nil
}

func (a *GraphAdapter) observe(operation string, start time.Time, size int, err error) {
	if a.observer == nil {
		return
	}
	a.observer.ObserveOperation(observability.OperationContext{
		Component: "qdrant",
		Operation: operation,
		Resource:  a.collection,
		Duration:  time.Since(start),
		Error:     err,
		Size:      int64(size),
	})
}
