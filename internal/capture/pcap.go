package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/freed-tools/internal/freed"
)

// pcapngMagic is the section header block type opening a pcapng file.
var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

type packetDataReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// LoadPCAP reads the capture file at path.
func LoadPCAP(path string, port int, dec freed.Decoder) (Rows, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadPCAP(f, port, dec)
}

// ReadPCAP extracts UDP payloads sent to port (0 for any port) from a pcap
// or pcapng stream and classifies each one with dec. Rows carry the
// capture timestamps, so a packet capture replays with its original
// timing.
func ReadPCAP(r io.Reader, port int, dec freed.Decoder) (Rows, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}

	var src packetDataReader
	if bytes.Equal(magic, pcapngMagic) {
		src, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}

	var rows Rows
	for n := 1; ; n++ {
		data, ci, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("capture packet %d: %w", n, err)
		}

		pkt := gopacket.NewPacket(data, src.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if port != 0 && int(udp.DstPort) != port {
			continue
		}

		row := Row{Time: ci.Timestamp}
		if ip, ok := sourceIP(pkt); ok {
			row.Source = netip.AddrPortFrom(ip, uint16(udp.SrcPort))
		}
		res := dec.Classify(udp.Payload)
		row.Valid = res.Valid()
		if row.Valid {
			row.Packet = res.Packet
		}
		rows = append(rows, row)
	}
}

func sourceIP(pkt gopacket.Packet) (netip.Addr, bool) {
	var raw []byte
	switch l := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		raw = l.SrcIP
	case *layers.IPv6:
		raw = l.SrcIP
	default:
		return netip.Addr{}, false
	}
	addr, ok := netip.AddrFromSlice(raw)
	return addr.Unmap(), ok
}
