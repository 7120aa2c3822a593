package qdrant

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/Aleph-Alpha/endpoint-embeddings/v1/graphstore"
)

// Payload layout of a stored graph node.
const (
	payloadNodeID   = "node_id"
	payloadText     = "text"
	payloadMetadata = "metadata"
	payloadLinks    = "links"
	payloadLinksIn  = "links_in"
)

// pointNamespace derives stable point UUIDs for node IDs that are not UUIDs.
var pointNamespace = uuid.MustParse("6f0d8a3e-2c1b-4f7e-9a55-3d2c8e1b7a40")

// pointID maps a node ID onto a Qdrant point ID. UUIDs are used as-is,
// anything else is hashed into a name-based UUID.
func pointID(nodeID string) *qdrant.PointId {
	if u, err := uuid.Parse(nodeID); err == nil {
		return qdrant.NewID(u.String())
	}
	return qdrant.NewID(uuid.NewSHA1(pointNamespace, []byte(nodeID)).String())
}

func pointIDs(nodeIDs []string) []*qdrant.PointId {
	ids := make([]*qdrant.PointId, len(nodeIDs))
	for i, id := range nodeIDs {
		ids[i] = pointID(id)
	}
	return ids
}

// toPoint converts a stored node into an upsertable point.
func toPoint(n graphstore.StoredNode) (*qdrant.PointStruct, error) {
	payload, err := nodePayload(n.Node)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", n.ID, err)
	}
	return &qdrant.PointStruct{
		Id:      pointID(n.ID),
		Vectors: qdrant.NewVectors(toFloat32(n.Vector)...),
		Payload: qdrant.NewValueMap(payload),
	}, nil
}

func nodePayload(n graphstore.Node) (map[string]any, error) {
	metadata, err := normalizeMetadata(n.Metadata)
	if err != nil {
		return nil, err
	}

	links := make([]any, 0, len(n.Links))
	linksIn := make([]any, 0, len(n.Links))
	for _, l := range n.Links {
		links = append(links, map[string]any{
			"kind":      l.Kind,
			"tag":       l.Tag,
			"direction": string(l.Direction),
		})
		if l.Incoming() {
			linksIn = append(linksIn, l.Key())
		}
	}

	return map[string]any{
		payloadNodeID:   n.ID,
		payloadText:     n.Text,
		payloadMetadata: metadata,
		payloadLinks:    links,
		payloadLinksIn:  linksIn,
	}, nil
}

// normalizeMetadata round-trips metadata through JSON so every value is one
// the payload encoder accepts. Integral numbers stay integers.
func normalizeMetadata(metadata map[string]any) (map[string]any, error) {
	if len(metadata) == 0 {
		return map[string]any{}, nil
	}

	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return normalizeValue(out).(map[string]any), nil
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeValue(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeValue(item)
		}
		return val
	default:
		return val
	}
}

// fromPayload rebuilds a stored node from a point payload and vector.
func fromPayload(id *qdrant.PointId, payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput) graphstore.StoredNode {
	n := graphstore.StoredNode{
		Node: graphstore.Node{
			ID:   payload[payloadNodeID].GetStringValue(),
			Text: payload[payloadText].GetStringValue(),
		},
		Vector: denseVector(vectors),
	}
	if n.ID == "" {
		n.ID = extractPointID(id)
	}

	if fields := payload[payloadMetadata].GetStructValue().GetFields(); len(fields) > 0 {
		n.Metadata = convertPayload(fields)
	}

	for _, v := range payload[payloadLinks].GetListValue().GetValues() {
		fields := v.GetStructValue().GetFields()
		n.Links = append(n.Links, graphstore.Link{
			Kind:      fields["kind"].GetStringValue(),
			Tag:       fields["tag"].GetStringValue(),
			Direction: graphstore.Direction(fields["direction"].GetStringValue()),
		})
	}
	return n
}

// extractPointID returns the string form of a point ID.
func extractPointID(id *qdrant.PointId) string {
	switch v := id.GetPointIdOptions().(type) {
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	case *qdrant.PointId_Uuid:
		return v.Uuid
	default:
		return ""
	}
}

// convertPayload converts Qdrant's protobuf payload to a generic map.
func convertPayload(payload map[string]*qdrant.Value) map[string]any {
	if payload == nil {
		return nil
	}
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		result[k] = extractValue(v)
	}
	return result
}

// extractValue recursively converts a Qdrant Value to a Go native type.
func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_NullValue:
		return nil
	case *qdrant.Value_StructValue:
		if val.StructValue == nil {
			return nil
		}
		return convertPayload(val.StructValue.Fields)
	case *qdrant.Value_ListValue:
		if val.ListValue == nil {
			return nil
		}
		items := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			items[i] = extractValue(item)
		}
		return items
	default:
		return nil
	}
}
