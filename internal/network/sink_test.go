package network

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/banshee-data/freed-tools/internal/freed"
)

func TestUDPSink_Mock(t *testing.T) {
	sock := NewMockUDPSocket(nil)
	factory := NewMockUDPSocketFactory(sock)

	sink, err := DialUDPSink(factory, "127.0.0.1", 6000)
	require.NoError(t, err)
	require.Len(t, factory.ListenCalls, 1)
	assert.Nil(t, factory.ListenCalls[0].Addr, "sender binds an ephemeral port")

	buf := freed.NewBuilder().MustBytes()
	require.NoError(t, sink.Send(buf))
	buf[0] = 0
	require.Len(t, sock.Written, 1)
	assert.Equal(t, freed.PacketID, sock.Written[0].Data[0], "sink does not retain the caller's buffer")
	assert.Equal(t, "127.0.0.1:6000", sink.Destination().String())

	sock.WriteError = errors.New("host unreachable")
	assert.ErrorContains(t, sink.Send(buf), "host unreachable")

	require.NoError(t, sink.Close())
	assert.True(t, sock.Closed)
}

func TestUDPSink_Loopback(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()
	port := conn.LocalAddr().(*net.UDPAddr).Port

	sink, err := DialUDPSink(nil, "127.0.0.1", port)
	require.NoError(t, err)
	defer sink.Close()

	want := freed.NewBuilder().WithFrame(42).MustBytes()
	require.NoError(t, sink.Send(want))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	got := make([]byte, 64)
	n, _, err := conn.ReadFromUDP(got)
	require.NoError(t, err)
	assert.Equal(t, want, got[:n])
}

func TestUDPSink_ResolveError(t *testing.T) {
	_, err := DialUDPSink(NewMockUDPSocketFactory(NewMockUDPSocket(nil)), "127.0.0.1", -1)
	assert.Error(t, err)
}

type fakePort struct {
	bytes.Buffer
	closed   bool
	writeErr error
	short    bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	if p.short {
		return len(b) - 1, nil
	}
	return p.Buffer.Write(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestSerialSink(t *testing.T) {
	port := &fakePort{}
	sink := NewSerialSink("/dev/ttyUSB0", port)

	a := freed.NewBuilder().WithFrame(1).MustBytes()
	b := freed.NewBuilder().WithFrame(2).WithoutLens().MustBytes()
	require.NoError(t, sink.Send(a))
	require.NoError(t, sink.Send(b))
	assert.Equal(t, append(append([]byte{}, a...), b...), port.Bytes())

	port.short = true
	assert.ErrorContains(t, sink.Send(a), "short write")
	port.short = false
	port.writeErr = errors.New("device unplugged")
	assert.ErrorContains(t, sink.Send(a), "/dev/ttyUSB0")

	require.NoError(t, sink.Close())
	assert.True(t, port.closed)
}

func TestSerialOptions_Mode(t *testing.T) {
	tests := []struct {
		name string
		opts SerialOptions
		want serial.Mode
	}{
		{"defaults", SerialOptions{}, serial.Mode{BaudRate: 38400, DataBits: 8, Parity: serial.OddParity, StopBits: serial.OneStopBit}},
		{"explicit", SerialOptions{BaudRate: 115200, DataBits: 7, StopBits: 2, Parity: "even"}, serial.Mode{BaudRate: 115200, DataBits: 7, Parity: serial.EvenParity, StopBits: serial.TwoStopBits}},
		{"no parity", SerialOptions{Parity: " n "}, serial.Mode{BaudRate: 38400, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := tt.opts.SerialMode()
			require.NoError(t, err)
			assert.Equal(t, tt.want, *mode)
		})
	}
}

func TestSerialOptions_Invalid(t *testing.T) {
	for _, opts := range []SerialOptions{
		{DataBits: 9},
		{StopBits: 3},
		{Parity: "mark"},
	} {
		_, err := opts.SerialMode()
		assert.Error(t, err, "%+v", opts)
	}
}
