package qdrant

import (
	"context"
	"fmt"
	"slices"

	qdrant "github.com/qdrant/go-client/qdrant"
)

// Collection is a decoupled summary of a Qdrant collection.
type Collection struct {
	Name       string
	Status     string
	Vectors    uint64
	Points     uint64
	VectorSize int
	Distance   string
}

// EnsureCollection creates the collection with cosine distance if it is
// missing, together with the keyword index on incoming link keys that
// adjacency queries filter on. Calling it on an existing collection is a no-op.
func (c *QdrantClient) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	if name == "" {
		return fmt.Errorf("collection name cannot be empty")
	}
	if vectorSize <= 0 {
		return fmt.Errorf("vector size must be greater than 0")
	}

	collections, err := c.api.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("[Qdrant] failed to list collections: %w", err)
	}

	if slices.Contains(collections, name) {
		c.logger.Debug("Qdrant collection already exists", nil, map[string]interface{}{"collection": name})
		return nil
	}

	c.logger.Info("Creating Qdrant collection", nil, map[string]interface{}{
		"collection":  name,
		"vector_size": vectorSize,
	})

	req := &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	}
	if err := c.api.CreateCollection(ctx, req); err != nil {
		return fmt.Errorf("[Qdrant] failed to create collection '%s': %w", name, err)
	}

	wait := true
	_, err = c.api.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: name,
		FieldName:      payloadLinksIn,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("[Qdrant] failed to index '%s' on '%s': %w", payloadLinksIn, name, err)
	}
	return nil
}

// GetCollection returns status and vector settings of a collection.
func (c *QdrantClient) GetCollection(ctx context.Context, name string) (*Collection, error) {
	if c.api == nil {
		return nil, fmt.Errorf("[Qdrant] client not initialized")
	}
	if name == "" {
		return nil, fmt.Errorf("collection name cannot be empty")
	}

	info, err := c.api.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("[Qdrant] failed to get collection '%s': %w", name, err)
	}

	size, distance := extractVectorDetails(info)
	return &Collection{
		Name:       name,
		Status:     info.GetStatus().String(),
		Vectors:    derefUint64(info.IndexedVectorsCount),
		Points:     derefUint64(info.PointsCount),
		VectorSize: size,
		Distance:   distance,
	}, nil
}

// ListCollections returns the names of all collections.
func (c *QdrantClient) ListCollections(ctx context.Context) ([]string, error) {
	if c.api == nil {
		return nil, fmt.Errorf("[Qdrant] client not initialized")
	}

	names, err := c.api.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("[Qdrant] failed to list collections: %w", err)
	}
	return names, nil
}

// DeleteCollection drops a collection and all of its points.
func (c *QdrantClient) DeleteCollection(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("collection name cannot be empty")
	}
	if err := c.api.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("[Qdrant] failed to delete collection '%s': %w", name, err)
	}
	c.logger.Info("Deleted Qdrant collection", nil, map[string]interface{}{"collection": name})
	return nil
}
