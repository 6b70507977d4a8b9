package network

import (
	"fmt"
	"net"
	"strconv"
)

// UDPSink sends each datagram to a fixed destination. It satisfies
// pace.Sink.
type UDPSink struct {
	sock UDPSocket
	dst  *net.UDPAddr
}

// DialUDPSink resolves host:port and opens an unbound socket for sending.
// A nil factory uses real sockets.
func DialUDPSink(factory UDPSocketFactory, host string, port int) (*UDPSink, error) {
	if factory == nil {
		factory = RealUDPSocketFactory{}
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid UDP port %d", port)
	}
	target := net.JoinHostPort(host, strconv.Itoa(port))
	dst, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", target, err)
	}
	sock, err := factory.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("open UDP socket: %w", err)
	}
	return &UDPSink{sock: sock, dst: dst}, nil
}

// Send writes buf as one datagram.
func (s *UDPSink) Send(buf []byte) error {
	n, err := s.sock.WriteToUDP(buf, s.dst)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("short write to %s: %d of %d bytes", s.dst, n, len(buf))
	}
	return nil
}

func (s *UDPSink) Close() error { return s.sock.Close() }

// Destination is the resolved target address.
func (s *UDPSink) Destination() *net.UDPAddr { return s.dst }
