package validate

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/freed-tools/internal/freed"
)

var (
	epoch  = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	camera = netip.MustParseAddrPort("192.168.1.50:40000")
)

func validEvent(at time.Duration, frame uint32) Event {
	buf := freed.NewBuilder().WithFrame(frame).MustBytes()
	return Event{
		Time:   epoch.Add(at),
		Source: camera,
		Size:   len(buf),
		Result: freed.Classify(buf),
	}
}

func invalidEvent(at time.Duration, buf []byte) Event {
	return Event{Time: epoch.Add(at), Source: camera, Size: len(buf), Result: freed.Classify(buf)}
}

func TestObserve_Counts(t *testing.T) {
	s := NewSession(epoch)
	s = Observe(s, validEvent(0, 10))
	s = Observe(s, validEvent(10*time.Millisecond, 11))
	s = Observe(s, invalidEvent(20*time.Millisecond, []byte{0x44, 0x01}))
	s = Observe(s, invalidEvent(30*time.Millisecond, freed.NewBuilder().WithID(0x45).MustBytes()))

	assert.Equal(t, 4, s.Packets)
	assert.Equal(t, 2, s.Valid)
	assert.Equal(t, 2, s.Invalid)
	assert.Equal(t, 1, s.ByReason[freed.ReasonShortBuffer])
	assert.Equal(t, 1, s.ByReason[freed.ReasonBadID])
	assert.Equal(t, int64(2+3*freed.FullPacketLength), s.Bytes)
	assert.Equal(t, uint32(11), s.LastFrame)
	assert.Zero(t, s.FrameGaps)
}

func TestObserve_DoesNotMutateInput(t *testing.T) {
	s0 := NewSession(epoch)
	s1 := Observe(s0, validEvent(0, 1))
	assert.Zero(t, s0.Packets)
	assert.Equal(t, 1, s1.Packets)
}

func TestObserve_FrameGaps(t *testing.T) {
	s := NewSession(epoch)
	for i, f := range []uint32{1, 2, 4, 5, 5, 0xFFFFFFFF, 0} {
		s = Observe(s, validEvent(time.Duration(i)*time.Millisecond, f))
	}
	// 2->4 skips, 5->5 repeats, 5->max jumps; max->0 is wraparound.
	assert.Equal(t, 3, s.FrameGaps)
	assert.Equal(t, 7, s.Valid, "gaps never reject packets")
}

func TestRateDue(t *testing.T) {
	s := NewSession(epoch)
	for i := 0; i < 25; i++ {
		s = Observe(s, validEvent(time.Duration(i)*40*time.Millisecond, uint32(i)))
	}

	_, same, ok := RateDue(s, epoch.Add(500*time.Millisecond), time.Second)
	assert.False(t, ok)
	assert.Equal(t, s, same)

	rate, next, ok := RateDue(s, epoch.Add(time.Second), time.Second)
	require.True(t, ok)
	assert.InDelta(t, 25.0, rate, 1e-9)
	assert.Zero(t, next.WindowPackets)
	assert.Equal(t, epoch.Add(time.Second), next.WindowStart)
	assert.Equal(t, 25, next.Packets, "totals survive the window roll")
	assert.InDelta(t, 25.0, next.LastRate, 1e-9)

	rate, _, ok = RateDue(next, epoch.Add(3*time.Second), time.Second)
	require.True(t, ok)
	assert.Zero(t, rate)
}

func TestSummarize(t *testing.T) {
	s := NewSession(epoch)
	s = Observe(s, validEvent(0, 1))
	s = Observe(s, validEvent(0, 2))
	s = Observe(s, validEvent(0, 3))
	s = Observe(s, invalidEvent(0, freed.NewBuilder().WithType(0x02).MustBytes()))

	sum := Summarize(s, epoch.Add(2*time.Second))
	assert.Equal(t, 4, sum.Packets)
	assert.InDelta(t, 75.0, sum.ValidPercent(), 1e-9)
	assert.InDelta(t, 2.0, sum.AverageRate(), 1e-9)
	assert.Equal(t, map[freed.Reason]int{freed.ReasonBadType: 1}, sum.ByReason)

	out := sum.String()
	assert.Contains(t, out, "Total packets received: 4")
	assert.Contains(t, out, "Valid packet rate: 75.0%")
	assert.Contains(t, out, "bad_type: 1")
}

func TestSummary_Empty(t *testing.T) {
	sum := Summarize(NewSession(epoch), epoch)
	assert.Zero(t, sum.ValidPercent())
	assert.Zero(t, sum.AverageRate())
	assert.NotContains(t, sum.String(), "Valid packet rate")
}
