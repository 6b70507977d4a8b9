package freed

import (
	"encoding/binary"
	"fmt"
	"math"
)

type scaledField struct {
	name  string
	v     float64
	scale float64
}

// Encode serialises p. The header always carries PacketID and
// PacketTypePosition; p.Version is written as-is. The lens trailer is
// appended when p.Lens is set.
func Encode(p Packet) ([]byte, error) {
	return AppendEncode(make([]byte, 0, FullPacketLength), p)
}

// AppendEncode appends the encoding of p to dst. On error dst is returned
// unchanged.
func AppendEncode(dst []byte, p Packet) ([]byte, error) {
	fields := [8]scaledField{
		{"x", p.X, PositionScale},
		{"y", p.Y, PositionScale},
		{"z", p.Z, PositionScale},
		{"pan", p.Pan, AngleScale},
		{"tilt", p.Tilt, AngleScale},
		{"roll", p.Roll, AngleScale},
	}
	n := 6
	if p.Lens != nil {
		fields[6] = scaledField{"zoom", p.Lens.Zoom, AngleScale}
		fields[7] = scaledField{"focus", p.Lens.Focus, AngleScale}
		n = 8
	}

	var vals [8]int32
	for i, f := range fields[:n] {
		s, err := toFixed(f.v, f.scale)
		if err != nil {
			return dst, fmt.Errorf("encode %s=%v: %w", f.name, f.v, err)
		}
		vals[i] = s
	}

	dst = append(dst, PacketID, PacketTypePosition, p.Version)
	dst = binary.BigEndian.AppendUint32(dst, p.Frame)
	for _, v := range vals[:n] {
		dst = binary.BigEndian.AppendUint32(dst, uint32(v))
	}
	return dst, nil
}

// toFixed rounds v*scale to the nearest integer.
func toFixed(v, scale float64) (int32, error) {
	s := math.Round(v * scale)
	if math.IsNaN(s) || s < math.MinInt32 || s > math.MaxInt32 {
		return 0, ErrOutOfRange
	}
	return int32(s), nil
}

// CheckRange reports whether every field of p survives encoding.
func CheckRange(p Packet) error {
	_, err := AppendEncode(nil, p)
	return err
}
