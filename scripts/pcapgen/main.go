package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"Replaya/pkg/pcapio"
)

// Generates a small synthetic capture with a traffic mix that exercises
// every rewrite rule kind: plain TCP/UDP flows, a VLAN-tagged slice and a
// few ICMP echoes.
func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	packetCount := flag.Int("c", 1000, "Number of packets to generate")
	vlanEvery := flag.Int("vlan-every", 5, "Tag every Nth packet with VLAN 100 (0 disables)")
	seed := flag.Int64("seed", 0, "Random seed (0 uses the current time)")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	w, err := pcapio.CreateFile(*outputFile, layers.LinkTypeEthernet)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer w.Close()

	log.Printf("Generating %d packets into %s (seed %d)...", *packetCount, *outputFile, *seed)

	base := time.Now().Add(-time.Duration(*packetCount) * time.Millisecond)
	hosts := []net.IP{
		{192, 168, 1, 100},
		{192, 168, 1, 101},
		{10, 0, 0, 5},
		{172, 16, 0, 9},
	}
	macs := []net.HardwareAddr{
		{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01},
	}

	for i := 0; i < *packetCount; i++ {
		srcIP := hosts[rng.Intn(len(hosts))]
		dstIP := hosts[rng.Intn(len(hosts))]
		eth := &layers.Ethernet{
			SrcMAC:       macs[rng.Intn(len(macs))],
			DstMAC:       macs[rng.Intn(len(macs))],
			EthernetType: layers.EthernetTypeIPv4,
		}

		stack := []gopacket.SerializableLayer{eth}
		if *vlanEvery > 0 && i%*vlanEvery == 0 {
			eth.EthernetType = layers.EthernetTypeDot1Q
			stack = append(stack, &layers.Dot1Q{
				VLANIdentifier: 100,
				Type:           layers.EthernetTypeIPv4,
			})
		}

		ip := &layers.IPv4{
			Version: 4,
			TTL:     64,
			SrcIP:   srcIP,
			DstIP:   dstIP,
		}
		stack = append(stack, ip)

		payload := make([]byte, rng.Intn(400)+50)
		rng.Read(payload)
		copy(payload, "host=internal.example.com ")

		switch i % 3 {
		case 0:
			ip.Protocol = layers.IPProtocolTCP
			tcp := &layers.TCP{
				SrcPort: layers.TCPPort(rng.Intn(64000) + 1024),
				DstPort: 8080,
				Seq:     rng.Uint32(),
				SYN:     i%7 == 0,
				Window:  14600,
			}
			tcp.SetNetworkLayerForChecksum(ip)
			stack = append(stack, tcp)
		case 1:
			ip.Protocol = layers.IPProtocolUDP
			udp := &layers.UDP{
				SrcPort: layers.UDPPort(rng.Intn(64000) + 1024),
				DstPort: 53,
			}
			udp.SetNetworkLayerForChecksum(ip)
			stack = append(stack, udp)
		default:
			ip.Protocol = layers.IPProtocolICMPv4
			stack = append(stack, &layers.ICMPv4{
				TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
				Seq:      uint16(i),
			})
		}
		stack = append(stack, gopacket.Payload(payload))

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{
			ComputeChecksums: true,
			FixLengths:       true,
		}
		if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
			log.Fatalf("Failed to serialize layers: %v", err)
		}

		data := buf.Bytes()
		ci := gopacket.CaptureInfo{
			Timestamp:     base.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := w.WritePacket(ci, data); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
	}

	log.Printf("Successfully generated %d packets into %s.", *packetCount, *outputFile)
}
