package pattern

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func assertPose(t *testing.T, want, got Pose) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, eps, "x")
	assert.InDelta(t, want.Y, got.Y, eps, "y")
	assert.InDelta(t, want.Z, got.Z, eps, "z")
	assert.InDelta(t, want.Pan, got.Pan, eps, "pan")
	assert.InDelta(t, want.Tilt, got.Tilt, eps, "tilt")
	assert.InDelta(t, want.Roll, got.Roll, eps, "roll")
}

func TestCircle(t *testing.T) {
	p := Params{Size: 1500, Height: 1800, Period: 8 * time.Second}

	assertPose(t, Pose{X: 1500, Y: 0, Z: 1800}, Sample(Circle, 0, p))
	assertPose(t, Pose{X: 0, Y: 1500, Z: 1800, Pan: 90}, Sample(Circle, 2*time.Second, p))
	assertPose(t, Pose{X: -1500, Y: 0, Z: 1800, Pan: 180}, Sample(Circle, 4*time.Second, p))
}

func TestCircle_PanWrapsEachPeriod(t *testing.T) {
	p := DefaultParams()
	first := Sample(Circle, 2500*time.Millisecond, p)
	later := Sample(Circle, 1000*p.Period+2500*time.Millisecond, p)

	assertPose(t, first, later)
	assert.InDelta(t, 90.0, later.Pan, eps)
}

func TestFigure8(t *testing.T) {
	p := DefaultParams()

	assertPose(t, Pose{X: 1000, Y: 0, Z: 2000}, Sample(Figure8, 0, p))

	// Quarter period: cos(t)=0, so the curve crosses the origin.
	q := Sample(Figure8, p.Period/4, p)
	assert.InDelta(t, 0, q.X, 1e-6)
	assert.InDelta(t, 0, q.Y, 1e-6)

	// Eighth period: t=π/4, d=1.5.
	e := Sample(Figure8, p.Period/8, p)
	r := math.Sqrt2 / 2
	assert.InDelta(t, 1000*r/1.5, e.X, eps)
	assert.InDelta(t, 1000*0.5/1.5, e.Y, eps)
	assert.InDelta(t, 2000, e.Z, eps)
	assert.InDelta(t, math.Atan2(e.Y, e.X)*180/math.Pi, e.Pan, eps)
	assert.Zero(t, e.Tilt)
	assert.Zero(t, e.Roll)
}

func TestOscillate(t *testing.T) {
	p := DefaultParams()

	assertPose(t, Pose{X: 0, Z: 2500, Pan: 0, Tilt: 15}, Sample(Oscillate, 0, p))
	assertPose(t, Pose{X: 1000, Z: 2000, Pan: 30, Tilt: 0}, Sample(Oscillate, p.Period/4, p))
	assertPose(t, Pose{X: 0, Z: 1500, Pan: 0, Tilt: -15}, Sample(Oscillate, p.Period/2, p))
}

func TestSample_Deterministic(t *testing.T) {
	p := DefaultParams()
	for _, v := range []Variant{Circle, Figure8, Oscillate} {
		for _, e := range []time.Duration{0, 333 * time.Millisecond, 17 * time.Second} {
			assert.Equal(t, Sample(v, e, p), Sample(v, e, p), "%v at %v", v, e)
		}
	}
}

func TestSample_Degenerate(t *testing.T) {
	assert.Equal(t, Pose{}, Sample(Variant(9), time.Second, DefaultParams()))
	assert.Equal(t, Pose{}, Sample(Circle, time.Second, Params{Size: 1}))
}

func TestParseVariant(t *testing.T) {
	for _, name := range Variants() {
		v, err := ParseVariant(name)
		require.NoError(t, err)
		assert.Equal(t, name, v.String())
	}

	v, err := ParseVariant(" Figure8 ")
	require.NoError(t, err)
	assert.Equal(t, Figure8, v)

	_, err = ParseVariant("spiral")
	assert.ErrorIs(t, err, ErrUnknownVariant)
	assert.Contains(t, err.Error(), "circle, figure8, oscillate")
	assert.Equal(t, "variant(7)", Variant(7).String())
}

func TestNewGenerator(t *testing.T) {
	g, err := NewGenerator(Circle, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, Sample(Circle, time.Second, DefaultParams()), g(time.Second))

	_, err = NewGenerator(Variant(-1), DefaultParams())
	assert.ErrorIs(t, err, ErrUnknownVariant)

	_, err = NewGenerator(Circle, Params{Size: 1, Period: 0})
	assert.Error(t, err)

	_, err = NewGenerator(Circle, Params{Size: math.NaN(), Period: time.Second})
	assert.Error(t, err)
}

func TestPose_Packet(t *testing.T) {
	pose := Pose{X: 1, Y: 2, Z: 3, Pan: 4, Tilt: 5, Roll: 6}
	pkt := pose.Packet(12, &SimulatedLens)

	assert.Equal(t, uint32(12), pkt.Frame)
	assert.Equal(t, 4.0, pkt.Pan)
	require.True(t, pkt.HasLens())
	assert.Equal(t, 1.0, pkt.Zoom())
	assert.Equal(t, 0.5, pkt.Focus())

	pkt.Lens.Zoom = 3
	assert.Equal(t, 1.0, SimulatedLens.Zoom, "packet lens is a copy")

	assert.False(t, pose.Packet(0, nil).HasLens())
}
