// Package rules defines the declarative packet transformation rule set and
// its validation. A RuleSet is validated in full before any packet is
// touched and is immutable afterwards.
package rules

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidRule is wrapped by every validation failure, naming the
// offending rule kind and value.
var ErrInvalidRule = errors.New("invalid rule")

// VLANOpKind enumerates the mutually exclusive VLAN operations.
type VLANOpKind int

const (
	VLANAdd VLANOpKind = iota
	VLANRemove
	VLANModify
)

// VLANOp describes a single VLAN operation. Tag is unused for VLANRemove.
type VLANOp struct {
	Kind VLANOpKind
	Tag  uint16
}

// PayloadRule is one exact byte-sequence substitution, applied in order.
type PayloadRule struct {
	Search  []byte
	Replace []byte
}

// RuleSet is a validated, immutable description of requested transformations.
// Address and MAC keys are stored in canonical form (net.IP.String /
// net.HardwareAddr.String) so the engine can match by exact lookup.
type RuleSet struct {
	IPMap   map[string]net.IP
	MACMap  map[string]net.HardwareAddr
	PortMap map[uint16]uint16

	VLAN           *VLANOp
	TimestampShift time.Duration
	Payload        []PayloadRule
}

// Empty reports whether the rule set carries no transformations at all.
func (rs *RuleSet) Empty() bool {
	return len(rs.IPMap) == 0 && len(rs.MACMap) == 0 && len(rs.PortMap) == 0 &&
		rs.VLAN == nil && rs.TimestampShift == 0 && len(rs.Payload) == 0
}

// macPattern is the canonical colon or hyphen separated 6-octet hex form.
var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}$`)

// Parse validates an untrusted rule mapping (e.g. decoded from JSON or YAML)
// and returns an immutable RuleSet. Validation is total and side-effect-free;
// a single invalid entry rejects the whole set. Unknown top-level keys are
// ignored for forward compatibility.
func Parse(raw map[string]any) (*RuleSet, error) {
	rs := &RuleSet{
		IPMap:   make(map[string]net.IP),
		MACMap:  make(map[string]net.HardwareAddr),
		PortMap: make(map[uint16]uint16),
	}

	if v, ok := raw["ip_mapping"]; ok && v != nil {
		if err := parseIPMapping(v, rs); err != nil {
			return nil, err
		}
	}
	if v, ok := raw["mac_mapping"]; ok && v != nil {
		if err := parseMACMapping(v, rs); err != nil {
			return nil, err
		}
	}
	if v, ok := raw["port_mapping"]; ok && v != nil {
		if err := parsePortMapping(v, rs); err != nil {
			return nil, err
		}
	}
	if v, ok := raw["vlan_operations"]; ok && v != nil {
		if err := parseVLANOperations(v, rs); err != nil {
			return nil, err
		}
	}
	if v, ok := raw["timestamp_shift"]; ok && v != nil {
		secs, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: timestamp_shift: not a number: %v", ErrInvalidRule, v)
		}
		rs.TimestampShift = time.Duration(secs * float64(time.Second))
	}
	if v, ok := raw["payload_replacement"]; ok && v != nil {
		if err := parsePayloadReplacement(v, rs); err != nil {
			return nil, err
		}
	}

	return rs, nil
}

func parseIPMapping(v any, rs *RuleSet) error {
	mapping, err := toStringMap(v, "ip_mapping")
	if err != nil {
		return err
	}
	for from, to := range mapping {
		fromIP := net.ParseIP(from)
		if fromIP == nil {
			return fmt.Errorf("%w: ip_mapping: invalid address %q", ErrInvalidRule, from)
		}
		toStr, ok := to.(string)
		if !ok {
			return fmt.Errorf("%w: ip_mapping: value for %q is not a string", ErrInvalidRule, from)
		}
		toIP := net.ParseIP(toStr)
		if toIP == nil {
			return fmt.Errorf("%w: ip_mapping: invalid address %q", ErrInvalidRule, toStr)
		}
		rs.IPMap[fromIP.String()] = toIP
	}
	return nil
}

func parseMACMapping(v any, rs *RuleSet) error {
	mapping, err := toStringMap(v, "mac_mapping")
	if err != nil {
		return err
	}
	for from, to := range mapping {
		toStr, ok := to.(string)
		if !ok {
			return fmt.Errorf("%w: mac_mapping: value for %q is not a string", ErrInvalidRule, from)
		}
		if !macPattern.MatchString(from) {
			return fmt.Errorf("%w: mac_mapping: invalid address %q", ErrInvalidRule, from)
		}
		if !macPattern.MatchString(toStr) {
			return fmt.Errorf("%w: mac_mapping: invalid address %q", ErrInvalidRule, toStr)
		}
		fromMAC, err := net.ParseMAC(from)
		if err != nil {
			return fmt.Errorf("%w: mac_mapping: invalid address %q", ErrInvalidRule, from)
		}
		toMAC, err := net.ParseMAC(toStr)
		if err != nil {
			return fmt.Errorf("%w: mac_mapping: invalid address %q", ErrInvalidRule, toStr)
		}
		rs.MACMap[fromMAC.String()] = toMAC
	}
	return nil
}

func parsePortMapping(v any, rs *RuleSet) error {
	mapping, err := toStringMap(v, "port_mapping")
	if err != nil {
		return err
	}
	for from, to := range mapping {
		fromPort, ok := portFromString(from)
		if !ok {
			return fmt.Errorf("%w: port_mapping: invalid port %q", ErrInvalidRule, from)
		}
		toPort, ok := portFromValue(to)
		if !ok {
			return fmt.Errorf("%w: port_mapping: invalid port %v", ErrInvalidRule, to)
		}
		rs.PortMap[fromPort] = toPort
	}
	return nil
}

func parseVLANOperations(v any, rs *RuleSet) error {
	ops, err := toStringMap(v, "vlan_operations")
	if err != nil {
		return err
	}

	// add > remove > modify: the first configured operation wins.
	if tag, ok := ops["add_vlan"]; ok && truthy(tag) {
		id, ok := vlanID(tag)
		if !ok {
			return fmt.Errorf("%w: vlan_operations: invalid vlan id %v", ErrInvalidRule, tag)
		}
		rs.VLAN = &VLANOp{Kind: VLANAdd, Tag: id}
		return nil
	}
	if flag, ok := ops["remove_vlan"]; ok && truthy(flag) {
		rs.VLAN = &VLANOp{Kind: VLANRemove}
		return nil
	}
	if tag, ok := ops["modify_vlan"]; ok && truthy(tag) {
		id, ok := vlanID(tag)
		if !ok {
			return fmt.Errorf("%w: vlan_operations: invalid vlan id %v", ErrInvalidRule, tag)
		}
		rs.VLAN = &VLANOp{Kind: VLANModify, Tag: id}
	}
	return nil
}

func parsePayloadReplacement(v any, rs *RuleSet) error {
	list, ok := v.([]any)
	if !ok {
		return fmt.Errorf("%w: payload_replacement: not a list", ErrInvalidRule)
	}
	for _, item := range list {
		entry, err := toStringMap(item, "payload_replacement")
		if err != nil {
			return err
		}
		search, okS := entry["search"].(string)
		replace, okR := entry["replace"].(string)
		if !okS || !okR {
			return fmt.Errorf("%w: payload_replacement: entry needs string search and replace", ErrInvalidRule)
		}
		rs.Payload = append(rs.Payload, PayloadRule{
			Search:  []byte(search),
			Replace: []byte(replace),
		})
	}
	return nil
}

// toStringMap accepts the map shapes produced by encoding/json and yaml.v3.
func toStringMap(v any, kind string) (map[string]any, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprintf("%v", k)] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s: not a mapping", ErrInvalidRule, kind)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func portFromString(s string) (uint16, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return portInRange(n)
}

func portFromValue(v any) (uint16, bool) {
	if s, ok := v.(string); ok {
		return portFromString(s)
	}
	f, ok := toFloat(v)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return portInRange(int(f))
}

func portInRange(n int) (uint16, bool) {
	if n < 1 || n > 65535 {
		return 0, false
	}
	return uint16(n), true
}

func vlanID(v any) (uint16, bool) {
	f, ok := toFloat(v)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	n := int(f)
	if n < 1 || n > 4094 {
		return 0, false
	}
	return uint16(n), true
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	case string:
		return t != ""
	default:
		f, ok := toFloat(v)
		return !ok || f != 0
	}
}
