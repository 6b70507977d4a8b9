package network

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/rs/zerolog"

	"github.com/banshee-data/freed-tools/internal/freed"
	"github.com/banshee-data/freed-tools/internal/monitoring"
	"github.com/banshee-data/freed-tools/internal/timeutil"
	"github.com/banshee-data/freed-tools/internal/validate"
)

// maxDatagram is larger than any FreeD packet so oversized datagrams are
// seen whole.
const maxDatagram = 4096

// Recorder persists classified datagrams, e.g. to a CSV log or database.
type Recorder interface {
	Record(validate.Event) error
}

// ListenerConfig configures a Listener. Zero values take defaults.
type ListenerConfig struct {
	// Address is host:port to bind, e.g. "0.0.0.0:6000".
	Address string
	RcvBuf  int
	// ReadTimeout bounds each receive so cancellation and rate reports
	// are never delayed longer than this. Default 1s.
	ReadTimeout time.Duration
	// ReportInterval is the rate window length. Default 1s.
	ReportInterval time.Duration
	// Duration stops the listener after this long; zero runs until ctx
	// is done.
	Duration time.Duration

	Decoder   freed.Decoder
	Recorder  Recorder
	Forwarder *Forwarder
	Sources   *validate.SourceTracker

	// OnEvent observes every classified datagram.
	OnEvent func(validate.Event)
	// OnRate is called at the end of each rate window.
	OnRate func(rate float64, s validate.Session)

	SocketFactory UDPSocketFactory
	Clock         timeutil.Clock
	Metrics       metrics.Registry
}

// Listener receives FreeD datagrams, classifies each one independently
// and folds the results into a validate.Session.
type Listener struct {
	cfg ListenerConfig
	log zerolog.Logger

	packets metrics.Counter
	valid   metrics.Counter
	invalid metrics.Counter
}

// NewListener applies defaults to cfg.
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Second
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = time.Second
	}
	if cfg.SocketFactory == nil {
		cfg.SocketFactory = RealUDPSocketFactory{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewRegistry()
	}
	return &Listener{
		cfg:     cfg,
		log:     monitoring.Component("listener"),
		packets: metrics.GetOrRegisterCounter("listener.packets", cfg.Metrics),
		valid:   metrics.GetOrRegisterCounter("listener.valid", cfg.Metrics),
		invalid: metrics.GetOrRegisterCounter("listener.invalid", cfg.Metrics),
	}
}

// Run listens until ctx is done, the configured duration elapses or the
// socket fails. Cancellation and expiry return a nil error. The summary
// covers everything received, whatever the exit path.
func (l *Listener) Run(ctx context.Context) (validate.Summary, error) {
	clock := l.cfg.Clock

	addr, err := net.ResolveUDPAddr("udp", l.cfg.Address)
	if err != nil {
		return validate.Summary{}, fmt.Errorf("resolve UDP address: %w", err)
	}
	sock, err := l.cfg.SocketFactory.ListenUDP("udp", addr)
	if err != nil {
		return validate.Summary{}, fmt.Errorf("listen on %s: %w", l.cfg.Address, err)
	}
	defer sock.Close()

	if l.cfg.RcvBuf > 0 {
		if err := sock.SetReadBuffer(l.cfg.RcvBuf); err != nil {
			l.log.Warn().Err(err).Int("bytes", l.cfg.RcvBuf).Msg("failed to set UDP receive buffer")
		}
	}
	if l.cfg.Forwarder != nil {
		l.cfg.Forwarder.Start(ctx)
	}

	start := clock.Now()
	var deadline time.Time
	if l.cfg.Duration > 0 {
		deadline = start.Add(l.cfg.Duration)
	}
	l.log.Info().
		Str("address", l.cfg.Address).
		Dur("duration", l.cfg.Duration).
		Str("lens_policy", l.cfg.Decoder.LensPolicy.String()).
		Msg("listener started")

	session := validate.NewSession(start)
	summarize := func() validate.Summary { return validate.Summarize(session, clock.Now()) }
	buf := make([]byte, maxDatagram)

	for {
		now := clock.Now()
		if rate, next, ok := validate.RateDue(session, now, l.cfg.ReportInterval); ok {
			session = next
			if l.cfg.OnRate != nil {
				l.cfg.OnRate(rate, session)
			}
			l.log.Debug().Float64("rate", rate).Int("packets", session.Packets).Msg("packet rate")
		}

		if ctx.Err() != nil {
			l.log.Info().Msg("listener stopping due to context cancellation")
			return summarize(), nil
		}
		if !deadline.IsZero() && !now.Before(deadline) {
			l.log.Info().Msg("listener duration elapsed")
			return summarize(), nil
		}

		readBy := now.Add(l.cfg.ReadTimeout)
		if !deadline.IsZero() && readBy.After(deadline) {
			readBy = deadline
		}
		if err := sock.SetReadDeadline(readBy); err != nil {
			return summarize(), fmt.Errorf("set read deadline: %w", err)
		}

		n, from, err := sock.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return summarize(), nil
			}
			if errors.Is(err, net.ErrClosed) {
				return summarize(), fmt.Errorf("UDP socket closed: %w", err)
			}
			l.log.Warn().Err(err).Msg("UDP read error")
			continue
		}

		ev := validate.Event{
			Time:   clock.Now(),
			Size:   n,
			Result: l.cfg.Decoder.Classify(buf[:n]),
		}
		if !ev.Result.Valid() {
			ev.Raw = append([]byte(nil), buf[:n]...)
		}
		if from != nil {
			ap := from.AddrPort()
			ev.Source = netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
		}
		session = validate.Observe(session, ev)
		l.observe(ev, buf[:n])

		if l.cfg.Recorder != nil {
			if err := l.cfg.Recorder.Record(ev); err != nil {
				return summarize(), fmt.Errorf("record packet: %w", err)
			}
		}
	}
}

func (l *Listener) observe(ev validate.Event, raw []byte) {
	l.packets.Inc(1)
	if ev.Result.Valid() {
		l.valid.Inc(1)
		p := ev.Result.Packet
		l.log.Debug().
			Str("source", ev.Source.String()).
			Uint32("frame", p.Frame).
			Float64("x", p.X).Float64("y", p.Y).Float64("z", p.Z).
			Float64("pan", p.Pan).Float64("tilt", p.Tilt).Float64("roll", p.Roll).
			Msg("valid packet")
		if l.cfg.Forwarder != nil {
			l.cfg.Forwarder.ForwardAsync(raw)
		}
	} else {
		l.invalid.Inc(1)
		l.log.Warn().
			Str("source", ev.Source.String()).
			Str("reason", ev.Result.Reason().String()).
			Str("raw", hex.EncodeToString(raw)).
			Msg("invalid packet")
	}

	if l.cfg.Sources != nil {
		l.cfg.Sources.Observe(ev)
	}
	if l.cfg.OnEvent != nil {
		l.cfg.OnEvent(ev)
	}
}
