package rewrite

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Replaya/internal/rules"
)

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

func buildTCPPacket(t *testing.T, srcIP, dstIP string, srcPort, dstPort uint16, payload []byte) gopacket.Packet {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(srcIP).To4(),
		DstIP:    net.ParseIP(dstIP).To4(),
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     1000,
		Window:  65535,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)))

	pkt := gopacket.NewPacket(buf.Bytes(), layers.LinkTypeEthernet, gopacket.Default)
	pkt.Metadata().CaptureInfo = gopacket.CaptureInfo{
		Timestamp:     time.Unix(1700000000, 0),
		CaptureLength: len(buf.Bytes()),
		Length:        len(buf.Bytes()),
	}
	return pkt
}

func buildVLANPacket(t *testing.T, vlan uint16, payload []byte) gopacket.Packet {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeDot1Q,
	}
	dot1q := &layers.Dot1Q{
		VLANIdentifier: vlan,
		Type:           layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 1, 1, 1).To4(),
		DstIP:    net.IPv4(10, 1, 1, 2).To4(),
	}
	udp := &layers.UDP{SrcPort: 5000, DstPort: 5001}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, dot1q, ip, udp, gopacket.Payload(payload)))

	pkt := gopacket.NewPacket(buf.Bytes(), layers.LinkTypeEthernet, gopacket.Default)
	pkt.Metadata().CaptureInfo = gopacket.CaptureInfo{
		Timestamp:     time.Unix(1700000000, 0),
		CaptureLength: len(buf.Bytes()),
		Length:        len(buf.Bytes()),
	}
	return pkt
}

func mustParse(t *testing.T, raw map[string]any) *rules.RuleSet {
	t.Helper()
	rs, err := rules.Parse(raw)
	require.NoError(t, err)
	return rs
}

func payload(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte('a' + i%26)
	}
	return out
}

func TestApplyIPMapping(t *testing.T) {
	pkt := buildTCPPacket(t, "192.168.1.100", "192.168.1.200", 1234, 80, payload(64))
	origIP := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	origChecksum := origIP.Checksum

	rs := mustParse(t, map[string]any{
		"ip_mapping": map[string]any{"192.168.1.100": "10.0.0.100"},
	})

	engine := NewEngine()
	res := engine.Apply(pkt, rs)

	require.True(t, res.Modified)
	out := gopacket.NewPacket(res.Data, layers.LinkTypeEthernet, gopacket.Default)
	ip := out.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	assert.Equal(t, "10.0.0.100", ip.SrcIP.String())
	assert.Equal(t, "192.168.1.200", ip.DstIP.String())
	assert.NotEqual(t, origChecksum, ip.Checksum, "header checksum must be recomputed")
}

func TestApplyPortMapping(t *testing.T) {
	pkt := buildTCPPacket(t, "10.0.0.1", "10.0.0.2", 8080, 443, payload(64))

	rs := mustParse(t, map[string]any{
		"port_mapping": map[string]any{"8080": 80},
	})

	res := NewEngine().Apply(pkt, rs)
	require.True(t, res.Modified)

	out := gopacket.NewPacket(res.Data, layers.LinkTypeEthernet, gopacket.Default)
	tcp := out.Layer(layers.LayerTypeTCP).(*layers.TCP)
	assert.Equal(t, layers.TCPPort(80), tcp.SrcPort)
	assert.Equal(t, layers.TCPPort(443), tcp.DstPort)
}

func TestApplyMACMapping(t *testing.T) {
	pkt := buildTCPPacket(t, "10.0.0.1", "10.0.0.2", 1234, 80, payload(64))

	rs := mustParse(t, map[string]any{
		"mac_mapping": map[string]any{"00:11:22:33:44:55": "de:ad:be:ef:00:01"},
	})

	res := NewEngine().Apply(pkt, rs)
	require.True(t, res.Modified)

	out := gopacket.NewPacket(res.Data, layers.LinkTypeEthernet, gopacket.Default)
	eth := out.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	assert.Equal(t, "de:ad:be:ef:00:01", eth.SrcMAC.String())
	assert.Equal(t, dstMAC.String(), eth.DstMAC.String())
}

func TestApplyPayloadReplacement(t *testing.T) {
	body := []byte("GET / HTTP/1.1\r\nHost: internal.example.com\r\nUser-Agent: probe\r\n\r\n")
	pkt := buildTCPPacket(t, "10.0.0.1", "10.0.0.2", 1234, 80, body)
	origTCP := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	origChecksum := origTCP.Checksum

	rs := mustParse(t, map[string]any{
		"payload_replacement": []any{
			map[string]any{"search": "internal.example.com", "replace": "test.local"},
		},
	})

	res := NewEngine().Apply(pkt, rs)
	require.True(t, res.Modified)

	out := gopacket.NewPacket(res.Data, layers.LinkTypeEthernet, gopacket.Default)
	tcp := out.Layer(layers.LayerTypeTCP).(*layers.TCP)
	assert.Contains(t, string(tcp.Payload), "test.local")
	assert.NotContains(t, string(tcp.Payload), "internal.example.com")
	assert.NotEqual(t, origChecksum, tcp.Checksum, "transport checksum must follow the payload")
	assert.Equal(t, len(res.Data), res.CaptureInfo.CaptureLength)
}

func TestApplyVLANAddThenRemoveRestoresPacket(t *testing.T) {
	pkt := buildTCPPacket(t, "10.0.0.1", "10.0.0.2", 1234, 80, payload(64))
	original := append([]byte(nil), pkt.Data()...)

	engine := NewEngine()

	added := engine.Apply(pkt, mustParse(t, map[string]any{
		"vlan_operations": map[string]any{"add_vlan": 100},
	}))
	require.True(t, added.Modified)
	assert.Equal(t, len(original)+4, len(added.Data))

	tagged := gopacket.NewPacket(added.Data, layers.LinkTypeEthernet, gopacket.Default)
	tagged.Metadata().CaptureInfo = added.CaptureInfo
	dot1q := tagged.Layer(layers.LayerTypeDot1Q)
	require.NotNil(t, dot1q)
	assert.Equal(t, uint16(100), dot1q.(*layers.Dot1Q).VLANIdentifier)

	removed := engine.Apply(tagged, mustParse(t, map[string]any{
		"vlan_operations": map[string]any{"remove_vlan": true},
	}))
	require.True(t, removed.Modified)
	assert.Equal(t, original, removed.Data)
}

func TestApplyVLANModify(t *testing.T) {
	pkt := buildVLANPacket(t, 100, payload(64))

	res := NewEngine().Apply(pkt, mustParse(t, map[string]any{
		"vlan_operations": map[string]any{"modify_vlan": 200},
	}))
	require.True(t, res.Modified)

	out := gopacket.NewPacket(res.Data, layers.LinkTypeEthernet, gopacket.Default)
	dot1q := out.Layer(layers.LayerTypeDot1Q).(*layers.Dot1Q)
	assert.Equal(t, uint16(200), dot1q.VLANIdentifier)
}

func TestApplyVLANAddIsNoOpOnTaggedFrame(t *testing.T) {
	pkt := buildVLANPacket(t, 100, payload(64))

	res := NewEngine().Apply(pkt, mustParse(t, map[string]any{
		"vlan_operations": map[string]any{"add_vlan": 200},
	}))
	assert.False(t, res.Modified)
	assert.Equal(t, pkt.Data(), res.Data)
}

func TestApplyNoMatchIsByteIdentical(t *testing.T) {
	pkt := buildTCPPacket(t, "10.0.0.1", "10.0.0.2", 1234, 80, payload(64))

	rs := mustParse(t, map[string]any{
		"ip_mapping":   map[string]any{"172.16.0.1": "172.16.0.2"},
		"port_mapping": map[string]any{"9999": 1111},
		"mac_mapping":  map[string]any{"aa:bb:cc:dd:ee:ff": "11:22:33:44:55:66"},
	})

	res := NewEngine().Apply(pkt, rs)
	assert.False(t, res.Modified)
	assert.Equal(t, pkt.Data(), res.Data)
}

func TestApplyIsDeterministic(t *testing.T) {
	rs := mustParse(t, map[string]any{
		"ip_mapping":   map[string]any{"192.168.1.100": "10.0.0.100"},
		"port_mapping": map[string]any{"8080": 80},
	})
	engine := NewEngine()

	first := engine.Apply(buildTCPPacket(t, "192.168.1.100", "10.0.0.2", 8080, 443, payload(64)), rs)
	second := engine.Apply(buildTCPPacket(t, "192.168.1.100", "10.0.0.2", 8080, 443, payload(64)), rs)

	assert.Equal(t, first.Data, second.Data)
}

func TestApplyTimestampShiftDoesNotModifyBytes(t *testing.T) {
	pkt := buildTCPPacket(t, "10.0.0.1", "10.0.0.2", 1234, 80, payload(64))
	origTS := pkt.Metadata().CaptureInfo.Timestamp

	res := NewEngine().Apply(pkt, mustParse(t, map[string]any{
		"timestamp_shift": 2.5,
	}))

	assert.False(t, res.Modified)
	assert.Equal(t, pkt.Data(), res.Data)
	assert.Equal(t, origTS.Add(2500*time.Millisecond), res.CaptureInfo.Timestamp)
}

func TestApplyEmptyRuleSet(t *testing.T) {
	pkt := buildTCPPacket(t, "10.0.0.1", "10.0.0.2", 1234, 80, payload(64))

	res := NewEngine().Apply(pkt, mustParse(t, map[string]any{}))
	assert.False(t, res.Modified)
	assert.Equal(t, pkt.Data(), res.Data)

	res = NewEngine().Apply(pkt, nil)
	assert.False(t, res.Modified)
}

func TestApplyARPOnlyMACsChange(t *testing.T) {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, arp, gopacket.Payload(payload(46))))

	pkt := gopacket.NewPacket(buf.Bytes(), layers.LinkTypeEthernet, gopacket.Default)
	pkt.Metadata().CaptureInfo = gopacket.CaptureInfo{
		Timestamp:     time.Unix(1700000000, 0),
		CaptureLength: len(buf.Bytes()),
		Length:        len(buf.Bytes()),
	}

	rs := mustParse(t, map[string]any{
		"mac_mapping": map[string]any{srcMAC.String(): "de:ad:be:ef:00:01"},
		"ip_mapping":  map[string]any{"10.0.0.1": "10.9.9.9"},
	})

	res := NewEngine().Apply(pkt, rs)
	require.True(t, res.Modified)

	out := gopacket.NewPacket(res.Data, layers.LinkTypeEthernet, gopacket.Default)
	outEth := out.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	assert.Equal(t, "de:ad:be:ef:00:01", outEth.SrcMAC.String())
	// The ARP body is carried through untouched.
	assert.Equal(t, pkt.Data()[14:], res.Data[14:])
}
