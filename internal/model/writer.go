package model

import (
	"context"

	core "FlowChains/internal/core/model"
)

// Writer defines a generic interface for handing emitted flows to a sink.
type Writer interface {
	// Write takes ownership of a single emitted flow and persists or forwards it.
	Write(ctx context.Context, flow *core.FlowRecord) error

	// Close flushes anything buffered and releases the sink.
	Close() error
}
