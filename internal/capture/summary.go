package capture

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"Replaya/pkg/pcapio"
)

// FileSummary is a quick description of a capture file, cheap enough to
// compute on upload.
type FileSummary struct {
	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size"`
	Format   string `json:"file_format"`
	Readable bool   `json:"readable"`
}

// Summary inspects the file's magic bytes without reading any packets.
func Summary(path string) (*FileSummary, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, err
	}

	summary := &FileSummary{
		FilePath: path,
		FileSize: info.Size(),
		Format:   string(pcapio.FormatUnknown),
	}

	format, err := pcapio.DetectFormat(path)
	if err != nil {
		return summary, nil
	}
	summary.Format = string(format)
	summary.Readable = format != pcapio.FormatUnknown
	return summary, nil
}

// packetSummary renders a one-line human-readable view of a packet, used
// by preview samples.
func packetSummary(pkt gopacket.Packet) string {
	var parts []string

	if l := pkt.Layer(layers.LayerTypeEthernet); l != nil {
		eth := l.(*layers.Ethernet)
		parts = append(parts, fmt.Sprintf("Ether %s > %s", eth.SrcMAC, eth.DstMAC))
	}
	if l := pkt.Layer(layers.LayerTypeDot1Q); l != nil {
		dot1q := l.(*layers.Dot1Q)
		parts = append(parts, fmt.Sprintf("Dot1Q vlan=%d", dot1q.VLANIdentifier))
	}
	if l := pkt.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		parts = append(parts, fmt.Sprintf("IPv4 %s > %s", ip.SrcIP, ip.DstIP))
	} else if l := pkt.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		parts = append(parts, fmt.Sprintf("IPv6 %s > %s", ip.SrcIP, ip.DstIP))
	}
	switch {
	case pkt.Layer(layers.LayerTypeTCP) != nil:
		tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
		parts = append(parts, fmt.Sprintf("TCP %d > %d", tcp.SrcPort, tcp.DstPort))
	case pkt.Layer(layers.LayerTypeUDP) != nil:
		udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		parts = append(parts, fmt.Sprintf("UDP %d > %d", udp.SrcPort, udp.DstPort))
	case pkt.Layer(layers.LayerTypeICMPv4) != nil:
		parts = append(parts, "ICMP")
	case pkt.Layer(layers.LayerTypeICMPv6) != nil:
		parts = append(parts, "ICMPv6")
	}

	if len(parts) == 0 {
		return fmt.Sprintf("%d raw bytes", len(pkt.Data()))
	}
	parts = append(parts, fmt.Sprintf("%d bytes", len(pkt.Data())))
	return strings.Join(parts, " / ")
}
