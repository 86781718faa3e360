// Package rewrite implements the packet rewrite engine. It applies a
// validated rule set to one decoded packet at a time and re-emits byte
// correct output, recomputing checksums where a transform invalidated them.
package rewrite

import (
	"bytes"
	"fmt"

	"github.com/google/gopacket"

	"Replaya/internal/rules"
)

// Result is the outcome of applying a rule set to a single packet.
type Result struct {
	// Data is the serialized packet after rewriting. When nothing applied,
	// it is the original packet bytes.
	Data []byte
	// CaptureInfo carries the (possibly timestamp-shifted) capture metadata,
	// with lengths matching Data.
	CaptureInfo gopacket.CaptureInfo
	// Modified reports whether Data differs from the input bytes.
	Modified bool
	// Warning is set when a transform could not be applied cleanly; the
	// packet is still emitted.
	Warning string
}

// Engine rewrites packets according to a rule set. It is stateless and
// safe for concurrent use from independent stream runs.
type Engine struct{}

// NewEngine creates a rewrite engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Apply runs the full rule set against one packet. It never fails a packet:
// transforms that cannot apply are no-ops, and any unexpected error falls
// back to the original bytes with a warning. Stage order is fixed: IP
// mapping, MAC mapping, port mapping, VLAN operation, timestamp shift,
// payload replacement.
func (e *Engine) Apply(pkt gopacket.Packet, rs *rules.RuleSet) (result Result) {
	original := pkt.Data()
	ci := pkt.Metadata().CaptureInfo

	result = Result{Data: original, CaptureInfo: ci}

	// Replay integrity over strict correctness: a panicking decode or
	// serialize must not lose the packet.
	defer func() {
		if r := recover(); r != nil {
			result = Result{
				Data:        original,
				CaptureInfo: ci,
				Warning:     fmt.Sprintf("rule application panicked: %v", r),
			}
		}
	}()

	if rs == nil || rs.Empty() {
		return result
	}

	if rs.TimestampShift != 0 {
		result.CaptureInfo.Timestamp = ci.Timestamp.Add(rs.TimestampShift)
	}

	s, ok := decodeStack(pkt)
	if !ok {
		// Unsupported link layer; only the timestamp shift applies.
		return result
	}

	changed := false
	needChecksums := false

	if len(rs.IPMap) > 0 {
		s.applyIPMapping(rs.IPMap, &changed, &needChecksums)
	}
	if len(rs.MACMap) > 0 {
		s.applyMACMapping(rs.MACMap, &changed)
	}
	if len(rs.PortMap) > 0 {
		s.applyPortMapping(rs.PortMap, &changed, &needChecksums)
	}
	if rs.VLAN != nil {
		s.applyVLANOp(rs.VLAN, &changed)
	}
	if len(rs.Payload) > 0 {
		s.applyPayloadRules(rs.Payload, &changed, &needChecksums)
	}

	if !changed {
		return result
	}

	data, err := s.serialize(needChecksums)
	if err != nil {
		result.Warning = fmt.Sprintf("failed to serialize rewritten packet: %v", err)
		return result
	}

	result.Data = data
	result.CaptureInfo.CaptureLength = len(data)
	result.CaptureInfo.Length = len(data)
	result.Modified = !bytes.Equal(data, original)
	return result
}
