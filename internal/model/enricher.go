package model

import (
	"context"

	core "FlowChains/internal/core/model"
)

// Enricher adds metadata to a packet record before it reaches the flow table.
type Enricher interface {
	Enrich(ctx context.Context, packet *core.PacketRecord)
}
