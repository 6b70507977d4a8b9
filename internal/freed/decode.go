package freed

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// LensPolicy decides what happens when a buffer reaches LensThreshold but
// is too short to hold both lens fields (37 or 38 bytes).
type LensPolicy int

const (
	// LensStrict rejects the whole packet with ReasonTruncatedLens, matching
	// the behaviour of deployed FreeD validators.
	LensStrict LensPolicy = iota
	// LensOmitTruncated keeps the mandatory fields and drops the lens trailer.
	LensOmitTruncated
)

func (p LensPolicy) String() string {
	switch p {
	case LensStrict:
		return "strict"
	case LensOmitTruncated:
		return "omit"
	default:
		return "unknown"
	}
}

// ParseLensPolicy accepts "strict" or "omit" (also "omit-truncated").
func ParseLensPolicy(name string) (LensPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "strict":
		return LensStrict, nil
	case "omit", "omit-truncated":
		return LensOmitTruncated, nil
	default:
		return LensStrict, fmt.Errorf("freed: unknown lens policy %q (choose strict or omit)", name)
	}
}

// Decoder decodes datagrams under a configurable lens policy.
// The zero value uses LensStrict.
type Decoder struct {
	LensPolicy LensPolicy
}

// Result is the tagged outcome of classifying one datagram.
type Result struct {
	Packet Packet
	// Err is nil for valid packets.
	Err *DecodeError
}

// Valid reports whether the datagram decoded successfully.
func (r Result) Valid() bool { return r.Err == nil }

// Reason returns the rejection reason, or ReasonNone for valid packets.
func (r Result) Reason() Reason {
	if r.Err == nil {
		return ReasonNone
	}
	return r.Err.Reason
}

// Decode decodes buf with the default (strict) lens policy.
func Decode(buf []byte) (Packet, error) {
	return Decoder{}.Decode(buf)
}

// Classify decodes buf with the default policy and returns a Result.
func Classify(buf []byte) Result {
	return Decoder{}.Classify(buf)
}

// Classify decodes buf and returns a Result.
func (d Decoder) Classify(buf []byte) Result {
	p, err := d.decode(buf)
	return Result{Packet: p, Err: err}
}

// Decode decodes buf. The returned error, if any, is a *DecodeError.
func (d Decoder) Decode(buf []byte) (Packet, error) {
	p, err := d.decode(buf)
	if err != nil {
		return Packet{}, err
	}
	return p, nil
}

func (d Decoder) decode(buf []byte) (Packet, *DecodeError) {
	n := len(buf)
	if n < MinPacketLength {
		return Packet{}, &DecodeError{Reason: ReasonShortBuffer, Length: n}
	}
	if buf[offID] != PacketID {
		return Packet{}, &DecodeError{Reason: ReasonBadID, Length: n, Got: buf[offID]}
	}
	if buf[offType] != PacketTypePosition {
		return Packet{}, &DecodeError{Reason: ReasonBadType, Length: n, Got: buf[offType]}
	}

	p := Packet{
		ID:      buf[offID],
		Type:    buf[offType],
		Version: buf[offVersion],
		Frame:   binary.BigEndian.Uint32(buf[offFrame:]),
		X:       fixed(buf, offX, PositionScale),
		Y:       fixed(buf, offY, PositionScale),
		Z:       fixed(buf, offZ, PositionScale),
		Pan:     fixed(buf, offPan, AngleScale),
		Tilt:    fixed(buf, offTilt, AngleScale),
		Roll:    fixed(buf, offRoll, AngleScale),
	}

	if n < LensThreshold {
		return p, nil
	}
	if n < FullPacketLength {
		if d.LensPolicy == LensOmitTruncated {
			return p, nil
		}
		return Packet{}, &DecodeError{Reason: ReasonTruncatedLens, Length: n}
	}
	p.Lens = &Lens{
		Zoom:  fixed(buf, offZoom, AngleScale),
		Focus: fixed(buf, offFocus, AngleScale),
	}
	return p, nil
}

func fixed(buf []byte, off int, scale float64) float64 {
	return float64(int32(binary.BigEndian.Uint32(buf[off:]))) / scale
}
