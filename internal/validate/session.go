// Package validate folds classified FreeD datagrams into receive
// statistics.
//
// Session is a plain value: Observe and RateDue take a Session and return
// the next one, so a listener owns its counters explicitly and tests can
// drive the fold without a socket.
package validate

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/banshee-data/freed-tools/internal/freed"
)

// Event is one received datagram after classification.
type Event struct {
	Time   time.Time
	Source netip.AddrPort
	// Size is the datagram length in bytes.
	Size   int
	Result freed.Result
	// Raw holds a copy of the datagram for invalid packets only.
	Raw []byte
}

// Session accumulates totals for one listening run.
type Session struct {
	Started time.Time

	Packets  int
	Valid    int
	Invalid  int
	ByReason [freed.NumReasons]int
	Bytes    int64

	// FrameGaps counts valid packets whose frame number did not follow the
	// previous valid packet's. Gaps are reported, never rejected.
	FrameGaps int
	LastFrame uint32
	haveFrame bool

	WindowStart   time.Time
	WindowPackets int
	LastRate      float64
}

// NewSession starts an empty session at now.
func NewSession(now time.Time) Session {
	return Session{Started: now, WindowStart: now}
}

// Observe returns s with e folded in.
func Observe(s Session, e Event) Session {
	s.Packets++
	s.WindowPackets++
	s.Bytes += int64(e.Size)

	if !e.Result.Valid() {
		s.Invalid++
		s.ByReason[e.Result.Reason()]++
		return s
	}

	s.Valid++
	frame := e.Result.Packet.Frame
	if s.haveFrame && frame != s.LastFrame+1 {
		s.FrameGaps++
	}
	s.LastFrame = frame
	s.haveFrame = true
	return s
}

// RateDue reports the packet rate over the current window once interval
// has elapsed since the window started, and returns s with a fresh window.
// ok is false, and s unchanged, while the window is still open.
func RateDue(s Session, now time.Time, interval time.Duration) (rate float64, next Session, ok bool) {
	elapsed := now.Sub(s.WindowStart)
	if elapsed < interval || elapsed <= 0 {
		return 0, s, false
	}
	rate = float64(s.WindowPackets) / elapsed.Seconds()
	s.LastRate = rate
	s.WindowPackets = 0
	s.WindowStart = now
	return rate, s, true
}

// Summary is the end-of-run report.
type Summary struct {
	Packets   int
	Valid     int
	Invalid   int
	ByReason  map[freed.Reason]int
	FrameGaps int
	Duration  time.Duration
}

// Summarize closes s at now.
func Summarize(s Session, now time.Time) Summary {
	sum := Summary{
		Packets:   s.Packets,
		Valid:     s.Valid,
		Invalid:   s.Invalid,
		FrameGaps: s.FrameGaps,
		Duration:  now.Sub(s.Started),
		ByReason:  map[freed.Reason]int{},
	}
	for r, n := range s.ByReason {
		if n > 0 {
			sum.ByReason[freed.Reason(r)] = n
		}
	}
	return sum
}

// ValidPercent is the share of valid packets, or 0 when none arrived.
func (s Summary) ValidPercent() float64 {
	if s.Packets == 0 {
		return 0
	}
	return float64(s.Valid) / float64(s.Packets) * 100
}

// AverageRate is packets per second over the whole run.
func (s Summary) AverageRate() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Packets) / s.Duration.Seconds()
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total packets received: %d\n", s.Packets)
	fmt.Fprintf(&b, "Valid packets: %d\n", s.Valid)
	fmt.Fprintf(&b, "Invalid packets: %d\n", s.Invalid)
	if s.Packets > 0 {
		fmt.Fprintf(&b, "Valid packet rate: %.1f%%\n", s.ValidPercent())
	}
	for r := freed.ReasonNone + 1; r < freed.NumReasons; r++ {
		if n := s.ByReason[r]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", r, n)
		}
	}
	if s.FrameGaps > 0 {
		fmt.Fprintf(&b, "Frame gaps: %d\n", s.FrameGaps)
	}
	return b.String()
}
