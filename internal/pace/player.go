package pace

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/rs/zerolog"

	"github.com/banshee-data/freed-tools/internal/freed"
	"github.com/banshee-data/freed-tools/internal/monitoring"
	"github.com/banshee-data/freed-tools/internal/pattern"
	"github.com/banshee-data/freed-tools/internal/timeutil"
)

// minPassInterval separates consecutive loop passes so a sequence whose
// timestamps are all equal cannot spin.
const minPassInterval = time.Millisecond

// Metric names registered in Config.Metrics.
const (
	MetricSent       = "pace.sent"
	MetricSendErrors = "pace.send_errors"
	MetricLateness   = "pace.lateness_us"
)

type waitResult int

const (
	waitReached waitResult = iota
	waitCancelled
	waitExpired
)

// Player paces packets into a Sink. Create one with NewReplayPlayer or
// NewLivePlayer; a Player runs at most once.
type Player struct {
	cfg   Config
	sink  Sink
	clock timeutil.Clock
	log   zerolog.Logger

	items []TimedPacket

	gen   pattern.Generator
	lens  *freed.Lens
	frame uint32

	buf []byte

	sent       metrics.Counter
	sendErrors metrics.Counter
	lateness   metrics.Histogram

	mu       sync.Mutex
	state    State
	progress Progress
	runStart time.Time
}

// NewReplayPlayer returns a Player that sends items in order, preserving
// their relative timestamps divided by cfg.Speed. The caller keeps
// ownership of sink if an error is returned.
func NewReplayPlayer(items []TimedPacket, sink Sink, cfg Config) (*Player, error) {
	if len(items) == 0 {
		return nil, &ConfigError{Field: "packets", Reason: "replay sequence is empty"}
	}
	p, err := newPlayer(sink, cfg, false)
	if err != nil {
		return nil, err
	}
	p.items = append([]TimedPacket(nil), items...)
	p.progress.Total = len(items)
	return p, nil
}

// NewLivePlayer returns a Player that samples gen at cfg.Rate ticks per
// second. Each packet carries a copy of lens (nil omits the trailer) and
// a frame number counting up from zero. Speed and Loop are ignored.
func NewLivePlayer(gen pattern.Generator, lens *freed.Lens, sink Sink, cfg Config) (*Player, error) {
	if gen == nil {
		return nil, &ConfigError{Field: "generator", Reason: "must not be nil"}
	}
	p, err := newPlayer(sink, cfg, true)
	if err != nil {
		return nil, err
	}
	p.gen = gen
	if lens != nil {
		l := *lens
		p.lens = &l
	}
	return p, nil
}

func newPlayer(sink Sink, cfg Config, live bool) (*Player, error) {
	if sink == nil {
		return nil, &ConfigError{Field: "sink", Reason: "must not be nil"}
	}
	if err := cfg.validate(live); err != nil {
		return nil, err
	}
	cfg.withDefaults()

	return &Player{
		cfg:        cfg,
		sink:       sink,
		clock:      cfg.Clock,
		log:        monitoring.Component("pace"),
		buf:        make([]byte, 0, freed.FullPacketLength),
		sent:       metrics.GetOrRegisterCounter(MetricSent, cfg.Metrics),
		sendErrors: metrics.GetOrRegisterCounter(MetricSendErrors, cfg.Metrics),
		lateness:   metrics.GetOrRegisterHistogram(MetricLateness, cfg.Metrics, metrics.NewUniformSample(1028)),
	}, nil
}

// State returns the current lifecycle state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns a snapshot of the run's progress.
func (p *Player) Stats() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.progress
	if !p.runStart.IsZero() && p.state == Running {
		s.Elapsed = p.clock.Since(p.runStart)
	}
	return s
}

// Run blocks until the sequence completes, the configured duration
// elapses, ctx is cancelled or a fatal send error occurs. Cancellation
// returns nil with State Cancelled. The sink is closed before Run returns
// on every path.
func (p *Player) Run(ctx context.Context) (err error) {
	p.mu.Lock()
	if p.state != Idle {
		p.mu.Unlock()
		return ErrAlreadyRun
	}
	p.state = Running
	p.runStart = p.clock.Now()
	start := p.runStart
	p.mu.Unlock()

	var final State
	defer func() {
		if cerr := p.sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("pace: close sink: %w", cerr)
		}
		p.mu.Lock()
		p.state = final
		p.progress.Elapsed = p.clock.Since(start)
		prog := p.progress
		p.mu.Unlock()

		p.log.Info().
			Str("state", final.String()).
			Int("sent", prog.Sent).
			Int("failed", prog.Failed).
			Int("passes", prog.Pass).
			Dur("elapsed", prog.Elapsed).
			Msg("player finished")
	}()

	var deadline time.Time
	if p.cfg.Duration > 0 {
		deadline = start.Add(p.cfg.Duration)
	}

	if p.gen != nil {
		p.log.Info().
			Float64("rate", p.cfg.Rate).
			Dur("duration", p.cfg.Duration).
			Msg("starting live generation")
		final, err = p.runLive(ctx, start, deadline)
	} else {
		p.log.Info().
			Int("packets", len(p.items)).
			Float64("speed", p.cfg.Speed).
			Bool("loop", p.cfg.Loop).
			Dur("duration", p.cfg.Duration).
			Msg("starting replay")
		final, err = p.runReplay(ctx, deadline)
	}
	return err
}

func (p *Player) runReplay(ctx context.Context, deadline time.Time) (State, error) {
	first := p.items[0].Time
	var passStart time.Time

	for pass := 1; ; pass++ {
		if pass > 1 {
			switch p.wait(ctx, passStart.Add(minPassInterval), deadline) {
			case waitCancelled:
				return Cancelled, nil
			case waitExpired:
				return Completed, nil
			}
			p.log.Debug().Int("pass", pass).Msg("restarting replay")
		}
		passStart = p.clock.Now()
		p.setPass(pass)

		for i, item := range p.items {
			target := passStart.Add(scaleOffset(item.Time.Sub(first), p.cfg.Speed))
			switch p.wait(ctx, target, deadline) {
			case waitCancelled:
				return Cancelled, nil
			case waitExpired:
				return Completed, nil
			}
			if err := p.send(pass, i, item.Packet, target); err != nil {
				return Failed, err
			}
		}

		if !p.cfg.Loop {
			return Completed, nil
		}
	}
}

func (p *Player) runLive(ctx context.Context, start, deadline time.Time) (State, error) {
	p.setPass(1)
	for n := 0; ; n++ {
		target := start.Add(clampDuration(float64(n) * float64(time.Second) / p.cfg.Rate))
		switch p.wait(ctx, target, deadline) {
		case waitCancelled:
			return Cancelled, nil
		case waitExpired:
			return Completed, nil
		}

		pose := p.gen(p.clock.Since(start))
		pkt := pose.Packet(p.frame, p.lens)
		p.frame++
		if err := p.send(1, n, pkt, target); err != nil {
			return Failed, err
		}
	}
}

// wait blocks until target. A target at or beyond a non-zero deadline
// waits only until the deadline and reports expiry.
func (p *Player) wait(ctx context.Context, target, deadline time.Time) waitResult {
	if !deadline.IsZero() && !target.Before(deadline) {
		if err := timeutil.WaitUntil(ctx, p.clock, deadline); err != nil {
			return waitCancelled
		}
		return waitExpired
	}
	if err := timeutil.WaitUntil(ctx, p.clock, target); err != nil {
		return waitCancelled
	}
	return waitReached
}

func (p *Player) send(pass, idx int, pkt freed.Packet, target time.Time) error {
	buf, err := freed.AppendEncode(p.buf[:0], pkt)
	if err == nil {
		p.buf = buf
		p.lateness.Update(p.clock.Since(target).Microseconds())
		err = p.sink.Send(buf)
	}

	if err != nil {
		p.sendErrors.Inc(1)
		se := SendError{Index: idx, Pass: pass, Frame: pkt.Frame, Err: err}
		p.mu.Lock()
		p.progress.Failed++
		p.mu.Unlock()
		if p.cfg.OnError != nil {
			p.cfg.OnError(se)
		}
		if p.cfg.ErrorPolicy == StopOnError {
			p.log.Error().Err(err).Int("index", idx).Uint32("frame", pkt.Frame).Msg("send failed, stopping")
			return &se
		}
		p.log.Warn().Err(err).Int("index", idx).Uint32("frame", pkt.Frame).Msg("send failed, skipping")
		return nil
	}

	p.sent.Inc(1)
	p.mu.Lock()
	p.progress.Sent++
	p.progress.Index = idx
	p.progress.Packet = pkt
	p.progress.Elapsed = p.clock.Since(p.runStart)
	prog := p.progress
	p.mu.Unlock()
	if p.cfg.OnProgress != nil {
		p.cfg.OnProgress(prog)
	}
	return nil
}

func (p *Player) setPass(pass int) {
	p.mu.Lock()
	p.progress.Pass = pass
	p.mu.Unlock()
}

// scaleOffset divides a recorded offset by speed. Negative offsets are
// kept so out-of-order input sends immediately.
func scaleOffset(d time.Duration, speed float64) time.Duration {
	if speed == 1 {
		return d
	}
	return clampDuration(float64(d) / speed)
}

// clampDuration converts ns to a Duration, saturating at the int64 range
// so a tiny speed or rate schedules far in the future rather than wrapping
// into the past.
func clampDuration(ns float64) time.Duration {
	switch {
	case ns >= math.MaxInt64:
		return math.MaxInt64
	case ns <= math.MinInt64:
		return math.MinInt64
	}
	return time.Duration(ns)
}
