package direction

import (
	"FlowChains/internal/core/model"
)

// wellKnownPortLimit separates service ports from ephemeral ones.
const wellKnownPortLimit = 1024

// Classifier guesses whether a packet travels client to server or server to client.
type Classifier struct {
	locality Locality
}

// NewClassifier creates a Classifier. A nil locality uses DefaultCIDRLocality.
func NewClassifier(locality Locality) *Classifier {
	if locality == nil {
		locality = DefaultCIDRLocality()
	}
	return &Classifier{locality: locality}
}

var defaultClassifier = NewClassifier(nil)

// Classify runs the default classifier.
func Classify(p *model.PacketRecord) model.Direction {
	return defaultClassifier.Classify(p)
}

// Classify applies, in order: TCP handshake/teardown flags, the port
// heuristic, the address locality heuristic, and finally defaults to CTS.
func (c *Classifier) Classify(p *model.PacketRecord) model.Direction {
	if p == nil {
		return model.CTS
	}
	t := p.Transport

	if t != nil && t.Type == model.TransportTCP {
		switch {
		case t.Flags.Has(model.FlagSynAck), t.Flags.Has(model.FlagFinAck):
			return model.STC
		case t.Flags.Has(model.FlagSyn), t.Flags.Has(model.FlagFin):
			return model.CTS
		}
	}

	if t != nil && t.SrcPort.Valid && t.DstPort.Valid {
		return byPorts(t.SrcPort.Port, t.DstPort.Port)
	}

	if n := p.Network; n != nil && len(n.Src) > 0 && len(n.Dst) > 0 {
		srcIn := c.locality.IsInternal(n.Src)
		dstIn := c.locality.IsInternal(n.Dst)
		switch {
		case srcIn && !dstIn:
			return model.CTS
		case dstIn && !srcIn:
			return model.STC
		}
	}
	return model.CTS
}

func byPorts(sport, dport uint16) model.Direction {
	switch {
	case dport < wellKnownPortLimit && sport > dport:
		return model.CTS
	case sport < wellKnownPortLimit && sport < dport:
		return model.STC
	case sport < dport:
		return model.STC
	default:
		return model.CTS
	}
}
