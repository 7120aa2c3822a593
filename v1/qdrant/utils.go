package qdrant

import (
	qdrant "github.com/qdrant/go-client/qdrant"
)

// extractVectorDetails returns the vector dimension and distance metric of a
// collection with a single unnamed vector, or (0, "") when the nested
// protobuf config is missing or of another shape.
func extractVectorDetails(info *qdrant.CollectionInfo) (int, string) {
	if info == nil ||
		info.Config == nil ||
		info.Config.Params == nil ||
		info.Config.Params.VectorsConfig == nil ||
		info.Config.Params.VectorsConfig.Config == nil {
		return 0, ""
	}

	if cfg, ok := info.Config.Params.VectorsConfig.Config.(*qdrant.VectorsConfig_Params); ok {
		return int(cfg.Params.Size), cfg.Params.Distance.String()
	}

	return 0, ""
}

// derefUint64 returns 0 for nil.
func derefUint64(v *uint64) uint64 {
	if v != nil {
		return *v
	}
	return 0
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// denseVector reads the single unnamed vector of a point. Newer servers fill
// the dense oneof, older ones the flat data field.
func denseVector(v *qdrant.VectorsOutput) []float64 {
	out := v.GetVector()
	if out == nil {
		return nil
	}
	if dense := out.GetDense().GetData(); len(dense) > 0 {
		return toFloat64(dense)
	}
	return toFloat64(out.GetData())
}
