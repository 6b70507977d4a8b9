package freed

import (
	"errors"
	"fmt"
)

var (
	ErrShortBuffer   = errors.New("freed: buffer shorter than mandatory fields")
	ErrBadID         = errors.New("freed: unexpected packet id")
	ErrBadType       = errors.New("freed: unsupported packet type")
	ErrTruncatedLens = errors.New("freed: truncated lens section")
	ErrOutOfRange    = errors.New("freed: value outside int32 range after scaling")
)

// Reason classifies why a buffer was rejected.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonShortBuffer
	ReasonBadID
	ReasonBadType
	ReasonTruncatedLens

	// NumReasons sizes per-reason counters.
	NumReasons
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonShortBuffer:
		return "short_buffer"
	case ReasonBadID:
		return "bad_id"
	case ReasonBadType:
		return "bad_type"
	case ReasonTruncatedLens:
		return "truncated_lens"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

func (r Reason) sentinel() error {
	switch r {
	case ReasonShortBuffer:
		return ErrShortBuffer
	case ReasonBadID:
		return ErrBadID
	case ReasonBadType:
		return ErrBadType
	case ReasonTruncatedLens:
		return ErrTruncatedLens
	default:
		return nil
	}
}

// DecodeError is the Invalid classification returned by Decode.
type DecodeError struct {
	Reason Reason
	// Length is the size of the rejected buffer.
	Length int
	// Got holds the offending header byte for ReasonBadID and ReasonBadType.
	Got byte
}

func (e *DecodeError) Error() string {
	switch e.Reason {
	case ReasonBadID:
		return fmt.Sprintf("%v: got 0x%02x, want 0x%02x", ErrBadID, e.Got, PacketID)
	case ReasonBadType:
		return fmt.Sprintf("%v: got 0x%02x, want 0x%02x", ErrBadType, e.Got, PacketTypePosition)
	case ReasonShortBuffer:
		return fmt.Sprintf("%v: %d bytes, need %d", ErrShortBuffer, e.Length, MinPacketLength)
	case ReasonTruncatedLens:
		return fmt.Sprintf("%v: %d bytes, need %d", ErrTruncatedLens, e.Length, FullPacketLength)
	default:
		return "freed: invalid packet"
	}
}

func (e *DecodeError) Unwrap() error { return e.Reason.sentinel() }

// ReasonOf extracts the rejection reason from err, or ReasonNone.
func ReasonOf(err error) Reason {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Reason
	}
	return ReasonNone
}
