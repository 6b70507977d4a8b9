package network

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/rs/zerolog"

	"github.com/banshee-data/freed-tools/internal/monitoring"
	"github.com/banshee-data/freed-tools/internal/timeutil"
)

const forwardQueueSize = 1000

// Forwarder relays datagrams to a second address without blocking the
// receive loop. Packets are dropped when the queue is full.
type Forwarder struct {
	sock  UDPSocket
	dst   *net.UDPAddr
	queue chan []byte
	clock timeutil.Clock
	log   zerolog.Logger

	logInterval time.Duration

	forwarded metrics.Counter
	dropped   metrics.Counter

	mu      sync.RWMutex
	started bool
	closed  bool
	done    chan struct{}
}

// ForwarderConfig configures NewForwarder. Zero values take defaults.
type ForwarderConfig struct {
	Host          string
	Port          int
	LogInterval   time.Duration
	SocketFactory UDPSocketFactory
	Clock         timeutil.Clock
	Metrics       metrics.Registry
}

// NewForwarder opens a send socket towards cfg.Host:cfg.Port.
func NewForwarder(cfg ForwarderConfig) (*Forwarder, error) {
	if cfg.SocketFactory == nil {
		cfg.SocketFactory = RealUDPSocketFactory{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewRegistry()
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = time.Minute
	}

	target := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dst, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("resolve forward address: %w", err)
	}
	sock, err := cfg.SocketFactory.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("create forward socket: %w", err)
	}

	return &Forwarder{
		sock:        sock,
		dst:         dst,
		queue:       make(chan []byte, forwardQueueSize),
		clock:       cfg.Clock,
		log:         monitoring.Component("forwarder"),
		logInterval: cfg.LogInterval,
		forwarded:   metrics.GetOrRegisterCounter("forward.sent", cfg.Metrics),
		dropped:     metrics.GetOrRegisterCounter("forward.dropped", cfg.Metrics),
		done:        make(chan struct{}),
	}, nil
}

// Start launches the send goroutine. It runs until ctx is done or Close
// is called.
func (f *Forwarder) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started || f.closed {
		return
	}
	f.started = true
	go f.run(ctx)
	f.log.Info().Str("address", f.dst.String()).Msg("forwarding packets")
}

func (f *Forwarder) run(ctx context.Context) {
	defer close(f.done)

	ticker := f.clock.NewTicker(f.logInterval)
	defer ticker.Stop()

	var failed int64
	var lastErr error
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-f.queue:
			if !ok {
				return
			}
			if _, err := f.sock.WriteToUDP(pkt, f.dst); err != nil {
				f.dropped.Inc(1)
				failed++
				lastErr = err
				continue
			}
			f.forwarded.Inc(1)
		case <-ticker.C():
			if failed > 0 {
				f.log.Warn().Err(lastErr).Int64("dropped", failed).Msg("forwarded packets dropped")
				failed, lastErr = 0, nil
			}
		}
	}
}

// ForwardAsync queues a copy of packet.
func (f *Forwarder) ForwardAsync(packet []byte) {
	cp := append([]byte(nil), packet...)
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		f.dropped.Inc(1)
		return
	}
	select {
	case f.queue <- cp:
	default:
		f.dropped.Inc(1)
	}
}

// Forwarded counts packets written to the destination.
func (f *Forwarder) Forwarded() int64 { return f.forwarded.Count() }

// Dropped counts packets lost to a full queue or a write error.
func (f *Forwarder) Dropped() int64 { return f.dropped.Count() }

// Close stops the send goroutine, draining queued packets first, and
// closes the socket.
func (f *Forwarder) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.queue)
	started := f.started
	f.mu.Unlock()

	if started {
		<-f.done
	}
	return f.sock.Close()
}
