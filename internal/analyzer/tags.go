package analyzer

import (
	"strings"

	"FlowChains/internal/core/model"
	"FlowChains/internal/enrich"
	contract "FlowChains/internal/model"
)

func init() {
	Register("tags", func() contract.Analyzer { return Tags{} })
}

// Tags labels flows from the reverse DNS domains of their packets: the
// network direction (internal, outgoing, incoming) and nxdomain. Flows whose
// packets were not enriched get no tags.
type Tags struct{}

func (Tags) Name() string { return "tags" }

func (Tags) Analyze(flow *model.FlowRecord) {
	if flow == nil {
		return
	}
	seen := make(map[string]bool)
	for _, p := range flow.Packets {
		if p.Network == nil {
			continue
		}
		for _, tag := range []string{netDirection(p.Network), nxdomain(p.Network)} {
			if tag != "" && !seen[tag] {
				seen[tag] = true
				flow.Tags = append(flow.Tags, tag)
			}
		}
	}
}

func netDirection(n *model.NetworkLayer) string {
	src, dst := n.SrcDomain, n.DstDomain
	switch {
	case src == enrich.DomainInternal:
		if dst == enrich.DomainInternal || strings.Contains(dst, "multicast") || strings.Contains(dst, "broadcast") {
			return "internal"
		}
		if dst == "" {
			return ""
		}
		return "outgoing"
	case dst == enrich.DomainInternal:
		return "incoming"
	default:
		return ""
	}
}

func nxdomain(n *model.NetworkLayer) string {
	if n.SrcDomain == enrich.DomainNX || n.DstDomain == enrich.DomainNX {
		return "nxdomain"
	}
	return ""
}
