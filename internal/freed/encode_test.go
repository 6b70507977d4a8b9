package freed

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Layout(t *testing.T) {
	p := NewPacket(1000)
	p.X, p.Y, p.Z = 1024, -512, 2048
	p.Pan, p.Tilt, p.Roll = 0.5, -10923.0/32768.0, 0

	buf, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t, mustHex(t, referenceHex), buf)
}

func TestEncode_LensTrailer(t *testing.T) {
	p := NewPacket(7)
	p.Lens = &Lens{Zoom: 1.0, Focus: 0.5}

	buf, err := Encode(p)
	require.NoError(t, err)
	require.Len(t, buf, FullPacketLength)
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x00}, buf[offZoom:offZoom+4])
	assert.Equal(t, []byte{0x00, 0x00, 0x40, 0x00}, buf[offFocus:offFocus+4])
}

func TestEncode_HeaderIsFixed(t *testing.T) {
	p := Packet{ID: 0x00, Type: 0x09, Version: 0x07}
	buf, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{PacketID, PacketTypePosition, 0x07}, buf[:3])
}

func TestEncode_RoundsToNearest(t *testing.T) {
	p := NewPacket(0)
	p.X = 1.0 / 64 * 0.6 // 0.6 of a unit rounds up
	p.Y = 1.0 / 64 * 0.4 // 0.4 rounds down
	p.Pan = -1.0 / 32768 * 0.6

	buf, err := Encode(p)
	require.NoError(t, err)
	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, 1.0/64, got.X)
	assert.Equal(t, 0.0, got.Y)
	assert.Equal(t, -1.0/32768, got.Pan)
}

func TestEncode_OutOfRange(t *testing.T) {
	limitMM := float64(math.MaxInt32) / PositionScale

	tests := []struct {
		name string
		mod  func(p *Packet)
	}{
		{"x too large", func(p *Packet) { p.X = limitMM + 1 }},
		{"z too small", func(p *Packet) { p.Z = -limitMM - 1 }},
		{"pan too large", func(p *Packet) { p.Pan = 70000 }},
		{"roll NaN", func(p *Packet) { p.Roll = math.NaN() }},
		{"tilt +Inf", func(p *Packet) { p.Tilt = math.Inf(1) }},
		{"zoom -Inf", func(p *Packet) { p.Lens = &Lens{Zoom: math.Inf(-1)} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPacket(1)
			tt.mod(&p)

			dst := []byte{0xAA}
			out, err := AppendEncode(dst, p)
			assert.ErrorIs(t, err, ErrOutOfRange)
			assert.Equal(t, []byte{0xAA}, out)
			assert.ErrorIs(t, CheckRange(p), ErrOutOfRange)
		})
	}

	p := NewPacket(1)
	p.X = limitMM
	assert.NoError(t, CheckRange(p))
}

func TestEncodeDecode_RoundTripPrecision(t *testing.T) {
	rng := rand.New(rand.NewSource(20240601))
	span := func(limit float64) float64 { return (rng.Float64()*2 - 1) * limit }

	for i := 0; i < 2000; i++ {
		p := NewPacket(rng.Uint32())
		p.X, p.Y, p.Z = span(1e6), span(1e6), span(1e6)
		p.Pan, p.Tilt, p.Roll = span(3600), span(180), span(180)
		if i%2 == 0 {
			p.Lens = &Lens{Zoom: span(10), Focus: span(10)}
		}

		buf, err := Encode(p)
		require.NoError(t, err)
		got, err := Decode(buf)
		require.NoError(t, err)

		assert.Equal(t, p.Frame, got.Frame)
		assert.InDelta(t, p.X, got.X, posTolerance)
		assert.InDelta(t, p.Y, got.Y, posTolerance)
		assert.InDelta(t, p.Z, got.Z, posTolerance)
		assert.InDelta(t, p.Pan, got.Pan, angleTolerance)
		assert.InDelta(t, p.Tilt, got.Tilt, angleTolerance)
		assert.InDelta(t, p.Roll, got.Roll, angleTolerance)
		assert.Equal(t, p.HasLens(), got.HasLens())
		assert.InDelta(t, p.Zoom(), got.Zoom(), angleTolerance)
		assert.InDelta(t, p.Focus(), got.Focus(), angleTolerance)
	}
}

func TestPacket_String(t *testing.T) {
	p := NewBuilder().Packet()
	s := p.String()
	assert.Contains(t, s, "frame=1000")
	assert.Contains(t, s, "zoom=1.00")

	p.Lens = nil
	assert.NotContains(t, p.String(), "zoom")
}
