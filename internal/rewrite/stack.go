package rewrite

import (
	"bytes"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"Replaya/internal/rules"
)

// stack is a mutable, per-packet copy of the protocol layers the engine
// knows how to rebuild. Layers are copied by value so the source packet is
// never mutated in place.
type stack struct {
	eth   *layers.Ethernet
	dot1q *layers.Dot1Q
	ip4   *layers.IPv4
	ip6   *layers.IPv6
	tcp   *layers.TCP
	udp   *layers.UDP
	icmp4 *layers.ICMPv4
	icmp6 *layers.ICMPv6

	// payload is the innermost raw payload, present only when the packet
	// decodes down to a modeled transport layer.
	payload []byte
	// trailer carries the undecoded remainder for packets whose inner
	// structure is not modeled (ARP, IP options protocols, v6 extension
	// chains). It is emitted verbatim after the last modeled layer.
	trailer []byte
}

// decodeStack copies the modeled layers out of a decoded packet. It reports
// false for link layers the engine cannot rebuild byte-correctly (e.g.
// loopback pseudo-headers), in which case only the timestamp shift applies.
func decodeStack(pkt gopacket.Packet) (*stack, bool) {
	pktLayers := pkt.Layers()
	if len(pktLayers) == 0 {
		return nil, false
	}
	switch pktLayers[0].LayerType() {
	case layers.LayerTypeEthernet, layers.LayerTypeIPv4, layers.LayerTypeIPv6:
	default:
		return nil, false
	}

	s := &stack{}

	if l := pkt.Layer(layers.LayerTypeEthernet); l != nil {
		eth := *(l.(*layers.Ethernet))
		s.eth = &eth
	}
	if l := pkt.Layer(layers.LayerTypeDot1Q); l != nil {
		dot1q := *(l.(*layers.Dot1Q))
		s.dot1q = &dot1q
	}

	if l := pkt.Layer(layers.LayerTypeIPv4); l != nil {
		ip4 := *(l.(*layers.IPv4))
		s.ip4 = &ip4
	} else if l := pkt.Layer(layers.LayerTypeIPv6); l != nil {
		ip6 := *(l.(*layers.IPv6))
		s.ip6 = &ip6
	}

	switch {
	case s.ip4 == nil && s.ip6 == nil:
		// No network layer (ARP and friends): keep everything after the
		// link header untouched.
		if s.dot1q != nil {
			s.trailer = copyBytes(s.dot1q.Payload)
		} else if s.eth != nil {
			s.trailer = copyBytes(s.eth.Payload)
		}
		return s, true
	case s.ip4 != nil && !transportModeled(s.ip4.Protocol.LayerType(), pkt):
		s.trailer = copyBytes(s.ip4.Payload)
		return s, true
	case s.ip6 != nil && !transportModeled(s.ip6.NextHeader.LayerType(), pkt):
		s.trailer = copyBytes(s.ip6.Payload)
		return s, true
	}

	if l := pkt.Layer(layers.LayerTypeTCP); l != nil {
		tcp := *(l.(*layers.TCP))
		s.tcp = &tcp
		s.payload = copyBytes(tcp.Payload)
	} else if l := pkt.Layer(layers.LayerTypeUDP); l != nil {
		udp := *(l.(*layers.UDP))
		s.udp = &udp
		s.payload = copyBytes(udp.Payload)
	} else if l := pkt.Layer(layers.LayerTypeICMPv4); l != nil {
		icmp := *(l.(*layers.ICMPv4))
		s.icmp4 = &icmp
		s.payload = copyBytes(icmp.Payload)
	} else if l := pkt.Layer(layers.LayerTypeICMPv6); l != nil {
		icmp := *(l.(*layers.ICMPv6))
		s.icmp6 = &icmp
		s.payload = copyBytes(icmp.Payload)
	}

	return s, true
}

// transportModeled reports whether the layer directly following the network
// header is one the stack can rebuild. Fragments and extension-header
// chains fall back to the raw trailer path.
func transportModeled(lt gopacket.LayerType, pkt gopacket.Packet) bool {
	switch lt {
	case layers.LayerTypeTCP, layers.LayerTypeUDP,
		layers.LayerTypeICMPv4, layers.LayerTypeICMPv6:
		return pkt.Layer(lt) != nil
	default:
		return false
	}
}

func (s *stack) applyIPMapping(ipMap map[string]net.IP, changed, needChecksums *bool) {
	if s.ip4 != nil {
		if mapped, ok := ipMap[s.ip4.SrcIP.String()]; ok && mapped.To4() != nil {
			s.ip4.SrcIP = mapped.To4()
			*changed = true
			*needChecksums = true
		}
		if mapped, ok := ipMap[s.ip4.DstIP.String()]; ok && mapped.To4() != nil {
			s.ip4.DstIP = mapped.To4()
			*changed = true
			*needChecksums = true
		}
		return
	}
	if s.ip6 != nil {
		// IPv6 has no header checksum, but the transport pseudo-header
		// checksum still covers the addresses.
		if mapped, ok := ipMap[s.ip6.SrcIP.String()]; ok {
			s.ip6.SrcIP = mapped.To16()
			*changed = true
			*needChecksums = true
		}
		if mapped, ok := ipMap[s.ip6.DstIP.String()]; ok {
			s.ip6.DstIP = mapped.To16()
			*changed = true
			*needChecksums = true
		}
	}
}

func (s *stack) applyMACMapping(macMap map[string]net.HardwareAddr, changed *bool) {
	if s.eth == nil {
		return
	}
	if mapped, ok := macMap[s.eth.SrcMAC.String()]; ok {
		s.eth.SrcMAC = mapped
		*changed = true
	}
	if mapped, ok := macMap[s.eth.DstMAC.String()]; ok {
		s.eth.DstMAC = mapped
		*changed = true
	}
}

func (s *stack) applyPortMapping(portMap map[uint16]uint16, changed, needChecksums *bool) {
	if s.tcp != nil {
		if mapped, ok := portMap[uint16(s.tcp.SrcPort)]; ok {
			s.tcp.SrcPort = layers.TCPPort(mapped)
			*changed = true
			*needChecksums = true
		}
		if mapped, ok := portMap[uint16(s.tcp.DstPort)]; ok {
			s.tcp.DstPort = layers.TCPPort(mapped)
			*changed = true
			*needChecksums = true
		}
		return
	}
	if s.udp != nil {
		if mapped, ok := portMap[uint16(s.udp.SrcPort)]; ok {
			s.udp.SrcPort = layers.UDPPort(mapped)
			*changed = true
			*needChecksums = true
		}
		if mapped, ok := portMap[uint16(s.udp.DstPort)]; ok {
			s.udp.DstPort = layers.UDPPort(mapped)
			*changed = true
			*needChecksums = true
		}
	}
}

// applyVLANOp performs exactly one of add/remove/modify. Add only applies
// to untagged Ethernet frames; remove strips the first tag and restores a
// plain Ethernet header; modify rewrites the first tag's id in place.
func (s *stack) applyVLANOp(op *rules.VLANOp, changed *bool) {
	switch op.Kind {
	case rules.VLANAdd:
		if s.eth == nil || s.dot1q != nil {
			return
		}
		s.dot1q = &layers.Dot1Q{
			VLANIdentifier: op.Tag,
			Type:           s.eth.EthernetType,
		}
		s.eth.EthernetType = layers.EthernetTypeDot1Q
		*changed = true
	case rules.VLANRemove:
		if s.dot1q == nil {
			return
		}
		if s.eth != nil {
			s.eth.EthernetType = s.dot1q.Type
		}
		s.dot1q = nil
		*changed = true
	case rules.VLANModify:
		if s.dot1q == nil {
			return
		}
		s.dot1q.VLANIdentifier = op.Tag
		*changed = true
	}
}

func (s *stack) applyPayloadRules(prules []rules.PayloadRule, changed, needChecksums *bool) {
	if len(s.payload) == 0 {
		return
	}
	out := s.payload
	for _, r := range prules {
		if len(r.Search) == 0 {
			continue
		}
		out = bytes.ReplaceAll(out, r.Search, r.Replace)
	}
	if !bytes.Equal(out, s.payload) {
		s.payload = out
		*changed = true
		// Transport checksums cover the payload bytes.
		*needChecksums = true
	}
}

// serialize rebuilds the packet from the (possibly modified) layer copies.
func (s *stack) serialize(computeChecksums bool) ([]byte, error) {
	var out []gopacket.SerializableLayer

	if s.eth != nil {
		out = append(out, s.eth)
	}
	if s.dot1q != nil {
		out = append(out, s.dot1q)
	}

	var network gopacket.NetworkLayer
	if s.ip4 != nil {
		network = s.ip4
		out = append(out, s.ip4)
	} else if s.ip6 != nil {
		network = s.ip6
		out = append(out, s.ip6)
	}

	switch {
	case s.tcp != nil:
		if computeChecksums && network != nil {
			s.tcp.SetNetworkLayerForChecksum(network)
		}
		out = append(out, s.tcp)
	case s.udp != nil:
		if computeChecksums && network != nil {
			s.udp.SetNetworkLayerForChecksum(network)
		}
		out = append(out, s.udp)
	case s.icmp4 != nil:
		out = append(out, s.icmp4)
	case s.icmp6 != nil:
		if computeChecksums && s.ip6 != nil {
			s.icmp6.SetNetworkLayerForChecksum(s.ip6)
		}
		out = append(out, s.icmp6)
	}

	if s.payload != nil {
		out = append(out, gopacket.Payload(s.payload))
	}
	if s.trailer != nil {
		out = append(out, gopacket.Payload(s.trailer))
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: computeChecksums,
	}
	if err := gopacket.SerializeLayers(buf, opts, out...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
