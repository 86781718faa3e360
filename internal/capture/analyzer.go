package capture

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
)

// Analysis is the read-only result of a single forward pass over a capture.
// The unique-value slices are de-duplicated and sorted.
type Analysis struct {
	FilePath      string   `json:"file_path"`
	FileSize      int64    `json:"file_size"`
	Format        string   `json:"file_format"`
	PacketCount   int      `json:"packet_count"`
	UniqueIPs     []string `json:"unique_ips"`
	UniqueMACs    []string `json:"unique_macs"`
	UniquePorts   []int    `json:"unique_ports"`
	Protocols     []string `json:"protocols"`
	VLANTags      []int    `json:"vlan_tags"`
	HasTimestamps bool     `json:"has_timestamps"`
	Duration      float64  `json:"duration"`
	DataRate      float64  `json:"data_rate"`
	Limited       bool     `json:"analysis_limited,omitempty"`
	LimitReason   string   `json:"analysis_limit_reason,omitempty"`
}

// Analyzer scans capture files for rule-authoring feedback. It never
// mutates its input.
type Analyzer struct {
	// MaxPackets is the hard ceiling of packets examined.
	MaxPackets int
	// PerformanceLimit short-circuits the scan earlier, flagging the
	// analysis as limited rather than silently truncating.
	PerformanceLimit int
}

// NewAnalyzer creates an analyzer with the given ceilings. Non-positive
// values fall back to the defaults (1,000,000 and 100,000).
func NewAnalyzer(maxPackets, performanceLimit int) *Analyzer {
	if maxPackets <= 0 {
		maxPackets = 1000000
	}
	if performanceLimit <= 0 {
		performanceLimit = 100000
	}
	return &Analyzer{MaxPackets: maxPackets, PerformanceLimit: performanceLimit}
}

// Analyze performs one bounded forward pass, collecting distinct endpoints,
// ports, protocols and VLAN ids plus the capture's timing extent.
func (a *Analyzer) Analyze(input string) (*Analysis, error) {
	summary, err := Summary(input)
	if err != nil {
		return nil, err
	}

	reader, err := openCapture(input)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	analysis := &Analysis{
		FilePath: input,
		FileSize: summary.FileSize,
		Format:   summary.Format,
	}

	ips := make(map[string]struct{})
	macs := make(map[string]struct{})
	ports := make(map[int]struct{})
	protocols := make(map[string]struct{})
	vlans := make(map[int]struct{})

	var firstTS, lastTS time.Time
	var totalBytes int64

	linkType := reader.LinkType()
	limit := a.MaxPackets
	if a.PerformanceLimit < limit {
		limit = a.PerformanceLimit
	}

	for analysis.PacketCount < limit {
		data, ci, err := reader.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read failed after %d packets: %w", analysis.PacketCount, err)
		}

		analysis.PacketCount++
		totalBytes += int64(len(data))

		if !ci.Timestamp.IsZero() {
			analysis.HasTimestamps = true
			if firstTS.IsZero() {
				firstTS = ci.Timestamp
			}
			lastTS = ci.Timestamp
		}

		pkt := gopacket.NewPacket(data, linkType, gopacket.Lazy)

		if l := pkt.Layer(layers.LayerTypeEthernet); l != nil {
			eth := l.(*layers.Ethernet)
			macs[eth.SrcMAC.String()] = struct{}{}
			macs[eth.DstMAC.String()] = struct{}{}
		}
		if l := pkt.Layer(layers.LayerTypeDot1Q); l != nil {
			vlans[int(l.(*layers.Dot1Q).VLANIdentifier)] = struct{}{}
		}
		if l := pkt.Layer(layers.LayerTypeIPv4); l != nil {
			ip := l.(*layers.IPv4)
			ips[ip.SrcIP.String()] = struct{}{}
			ips[ip.DstIP.String()] = struct{}{}
			protocols["IPv4"] = struct{}{}
		} else if l := pkt.Layer(layers.LayerTypeIPv6); l != nil {
			ip := l.(*layers.IPv6)
			ips[ip.SrcIP.String()] = struct{}{}
			ips[ip.DstIP.String()] = struct{}{}
			protocols["IPv6"] = struct{}{}
		}
		switch {
		case pkt.Layer(layers.LayerTypeTCP) != nil:
			tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
			ports[int(tcp.SrcPort)] = struct{}{}
			ports[int(tcp.DstPort)] = struct{}{}
			protocols["TCP"] = struct{}{}
		case pkt.Layer(layers.LayerTypeUDP) != nil:
			udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
			ports[int(udp.SrcPort)] = struct{}{}
			ports[int(udp.DstPort)] = struct{}{}
			protocols["UDP"] = struct{}{}
		case pkt.Layer(layers.LayerTypeICMPv4) != nil,
			pkt.Layer(layers.LayerTypeICMPv6) != nil:
			protocols["ICMP"] = struct{}{}
		}
	}

	if analysis.PacketCount >= a.PerformanceLimit && a.PerformanceLimit < a.MaxPackets {
		analysis.Limited = true
		analysis.LimitReason = fmt.Sprintf(
			"Analysis stopped at %d packets for performance reasons. Full file can still be replayed.",
			analysis.PacketCount)
		logrus.Warnf("Large capture detected, stopping analysis at %d packets", analysis.PacketCount)
	}

	if !firstTS.IsZero() && !lastTS.IsZero() {
		analysis.Duration = lastTS.Sub(firstTS).Seconds()
		if analysis.Duration > 0 {
			analysis.DataRate = float64(totalBytes) / analysis.Duration
		}
	}

	analysis.UniqueIPs = sortedStrings(ips)
	analysis.UniqueMACs = sortedStrings(macs)
	analysis.UniquePorts = sortedInts(ports)
	analysis.Protocols = sortedStrings(protocols)
	analysis.VLANTags = sortedInts(vlans)

	return analysis, nil
}

func sortedStrings(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func sortedInts(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
