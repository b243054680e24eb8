package model

import (
	core "FlowChains/internal/core/model"
)

// Analyzer inspects a reassembled flow and annotates it in place.
type Analyzer interface {
	Name() string
	Analyze(flow *core.FlowRecord)
}
