package capture

import (
	"bytes"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/freed-tools/internal/freed"
)

type capturedUDP struct {
	at      time.Duration
	dstPort uint16
	payload []byte
}

func buildPCAP(t *testing.T, pkts []capturedUDP) []byte {
	t.Helper()
	var out bytes.Buffer
	w := pcapgo.NewWriter(&out)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	for _, p := range pkts {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
			DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(192, 168, 1, 50),
			DstIP:    net.IPv4(192, 168, 1, 10),
		}
		udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(p.dstPort)}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(p.payload)))

		data := buf.Bytes()
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     base.Add(p.at),
			CaptureLength: len(data),
			Length:        len(data),
		}, data))
	}
	return out.Bytes()
}

func TestReadPCAP_FiltersAndClassifies(t *testing.T) {
	raw := buildPCAP(t, []capturedUDP{
		{0, 6000, freed.NewBuilder().WithFrame(10).MustBytes()},
		{10 * time.Millisecond, 5353, []byte("mdns noise")},
		{33 * time.Millisecond, 6000, freed.NewBuilder().WithFrame(11).WithoutLens().MustBytes()},
		{66 * time.Millisecond, 6000, []byte{0x44, 0x02, 0x00}},
	})

	rows, err := ReadPCAP(bytes.NewReader(raw), 6000, freed.Decoder{})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.True(t, rows[0].Valid)
	assert.Equal(t, uint32(10), rows[0].Packet.Frame)
	assert.Equal(t, netip.MustParseAddrPort("192.168.1.50:40000"), rows[0].Source)
	assert.True(t, rows[0].Time.Equal(base))

	assert.False(t, rows[1].Packet.HasLens())
	assert.Equal(t, 33*time.Millisecond, rows[1].Time.Sub(rows[0].Time))
	assert.False(t, rows[2].Valid)

	all, err := ReadPCAP(bytes.NewReader(raw), 0, freed.Decoder{})
	require.NoError(t, err)
	assert.Len(t, all, 4, "port 0 keeps every UDP datagram")
}

func TestReadPCAP_NotACapture(t *testing.T) {
	_, err := ReadPCAP(bytes.NewReader([]byte("timestamp,valid\n")), 6000, freed.Decoder{})
	assert.Error(t, err)

	_, err = ReadPCAP(bytes.NewReader(nil), 6000, freed.Decoder{})
	assert.Error(t, err)
}
