package freed

import "fmt"

// Wire constants for the position/rotation packet.
const (
	PacketID           byte = 0x44 // 'D'
	PacketTypePosition byte = 0x01
	DefaultVersion     byte = 0x02

	// PositionScale converts wire integers to millimetres.
	PositionScale = 64.0
	// AngleScale converts wire integers to degrees and lens units.
	AngleScale = 32768.0

	// MinPacketLength covers the header, frame number, position and
	// orientation (roll ends at byte 30).
	MinPacketLength = 31
	// LensThreshold is the buffer length at which the lens trailer is read.
	// It is two bytes short of FullPacketLength; see LensPolicy.
	LensThreshold = 37
	// FullPacketLength is a packet with a complete zoom/focus trailer.
	FullPacketLength = 39
)

const (
	offID      = 0
	offType    = 1
	offVersion = 2
	offFrame   = 3
	offX       = 7
	offY       = 11
	offZ       = 15
	offPan     = 19
	offTilt    = 23
	offRoll    = 27
	offZoom    = 31
	offFocus   = 35
)

// Lens is the optional zoom/focus trailer.
type Lens struct {
	Zoom  float64
	Focus float64
}

// Packet is one decoded FreeD position/rotation sample.
type Packet struct {
	ID      byte
	Type    byte
	Version byte
	Frame   uint32

	// Position in millimetres.
	X, Y, Z float64
	// Orientation in degrees.
	Pan, Tilt, Roll float64

	// Lens is nil when the datagram carried no lens trailer.
	Lens *Lens
}

// NewPacket returns a packet with the fixed header fields populated.
func NewPacket(frame uint32) Packet {
	return Packet{
		ID:      PacketID,
		Type:    PacketTypePosition,
		Version: DefaultVersion,
		Frame:   frame,
	}
}

// HasLens reports whether the packet carries zoom/focus data.
func (p Packet) HasLens() bool { return p.Lens != nil }

// Zoom returns the zoom value, or 0 when no lens data is present.
func (p Packet) Zoom() float64 {
	if p.Lens == nil {
		return 0
	}
	return p.Lens.Zoom
}

// Focus returns the focus value, or 0 when no lens data is present.
func (p Packet) Focus() float64 {
	if p.Lens == nil {
		return 0
	}
	return p.Lens.Focus
}

func (p Packet) String() string {
	s := fmt.Sprintf("frame=%d pos=(%.2f, %.2f, %.2f)mm rot=(%.2f, %.2f, %.2f)deg",
		p.Frame, p.X, p.Y, p.Z, p.Pan, p.Tilt, p.Roll)
	if p.Lens != nil {
		s += fmt.Sprintf(" zoom=%.2f focus=%.2f", p.Lens.Zoom, p.Lens.Focus)
	}
	return s
}
