package timeutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_SinceUntil(t *testing.T) {
	clock := RealClock{}
	assert.GreaterOrEqual(t, clock.Since(time.Now().Add(-time.Second)), time.Second)
	assert.Greater(t, clock.Until(time.Now().Add(time.Hour)), 59*time.Minute)
}

func TestRealClock_NewTimer(t *testing.T) {
	timer := RealClock{}.NewTimer(10 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Error("timer did not fire")
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	ticker := RealClock{}.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Error("ticker did not fire")
	}
}

func TestWaitUntil_RealClockNeverEarly(t *testing.T) {
	clock := RealClock{}
	target := time.Now().Add(20 * time.Millisecond)
	require.NoError(t, WaitUntil(context.Background(), clock, target))
	assert.False(t, time.Now().Before(target))
}

func TestWaitUntil_PastTarget(t *testing.T) {
	clock := NewMockClock(epoch)
	require.NoError(t, WaitUntil(context.Background(), clock, epoch.Add(-time.Second)))
	assert.Empty(t, clock.Waits(), "no timer for a past target")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, WaitUntil(ctx, clock, epoch), context.Canceled)
}

func TestWaitUntil_Cancelled(t *testing.T) {
	clock := NewMockClock(epoch)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- WaitUntil(ctx, clock, epoch.Add(time.Hour)) }()

	require.Eventually(t, func() bool { return clock.PendingTimers() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("WaitUntil did not observe cancellation")
	}
	assert.Equal(t, 0, clock.PendingTimers(), "timer stopped on exit")
}

func TestWaitUntil_MockAdvance(t *testing.T) {
	clock := NewMockClock(epoch)
	done := make(chan error, 1)
	go func() { done <- WaitUntil(context.Background(), clock, epoch.Add(time.Second)) }()

	require.Eventually(t, func() bool { return clock.PendingTimers() == 1 }, time.Second, time.Millisecond)
	clock.Advance(500 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("returned before deadline")
	case <-time.After(10 * time.Millisecond):
	}

	clock.Advance(500 * time.Millisecond)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitUntil did not return after deadline")
	}
}

func TestAutoClock_JumpsToDeadline(t *testing.T) {
	clock := NewAutoClock(epoch)

	require.NoError(t, WaitUntil(context.Background(), clock, epoch.Add(250*time.Millisecond)))
	assert.Equal(t, epoch.Add(250*time.Millisecond), clock.Now())

	require.NoError(t, WaitUntil(context.Background(), clock, epoch.Add(time.Second)))
	assert.Equal(t, epoch.Add(time.Second), clock.Now())
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 750 * time.Millisecond}, clock.Waits())
}

func TestMockClock_SetDoesNotFire(t *testing.T) {
	clock := NewMockClock(epoch)
	timer := clock.NewTimer(time.Second)
	clock.Set(epoch.Add(time.Hour))

	select {
	case <-timer.C():
		t.Fatal("Set should not fire timers")
	default:
	}
	clock.Advance(0)
	select {
	case <-timer.C():
	default:
		t.Fatal("Advance should fire the expired timer")
	}
}

func TestMockTimer_StopReset(t *testing.T) {
	clock := NewMockClock(epoch)
	timer := clock.NewTimer(time.Second)

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	clock.Advance(2 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}

	assert.False(t, timer.Reset(time.Second))
	clock.Advance(999 * time.Millisecond)
	select {
	case <-timer.C():
		t.Fatal("reset timer fired early")
	default:
	}
	clock.Advance(time.Millisecond)
	select {
	case <-timer.C():
	default:
		t.Fatal("reset timer did not fire")
	}
}

func TestMockTicker(t *testing.T) {
	clock := NewMockClock(epoch)
	ticker := clock.NewTicker(time.Second)

	clock.Advance(time.Second)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire")
	}

	ticker.Stop()
	clock.Advance(time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}

	ticker.Reset(time.Second)
	ticker.(*MockTicker).Trigger(epoch)
	select {
	case got := <-ticker.C():
		assert.Equal(t, epoch, got)
	default:
		t.Fatal("Trigger did not deliver")
	}
}
