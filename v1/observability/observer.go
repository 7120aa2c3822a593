package observability

import "time"

// Observer receives a notification for every completed client operation.
type Observer interface {
	ObserveOperation(ctx OperationContext)
}

// OperationContext describes a single completed operation.
type OperationContext struct {
	// Component is the reporting package, e.g. "embedding" or "qdrant".
	Component string

	// Operation is the logical operation, e.g. "embed_query".
	Operation string

	// Resource is the primary target (endpoint host, collection name).
	Resource string

	// SubResource adds optional detail (wire format, search type).
	SubResource string

	// Duration is the wall-clock time the operation took.
	Duration time.Duration

	// Error is nil on success.
	Error error

	// Size is the number of items processed (texts embedded, points written).
	Size int64

	// Metadata carries operation-specific details.
	Metadata map[string]interface{}
}

// Status returns "success" or "error" depending on Error.
func (o OperationContext) Status() string {
	if o.Error != nil {
		return "error"
	}
	return "success"
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(ctx OperationContext)

// ObserveOperation calls f(ctx).
func (f ObserverFunc) ObserveOperation(ctx OperationContext) {
	f(ctx)
}

// NoopObserver discards all notifications.
type NoopObserver struct{}

func (NoopObserver) ObserveOperation(OperationContext) {}
