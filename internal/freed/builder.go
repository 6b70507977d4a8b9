package freed

// Builder assembles packets for fixtures and self-tests. It starts from a
// known-good sample and each With* call overrides one field. ID and type can
// be overridden to produce deliberately invalid datagrams.
type Builder struct {
	id      byte
	typ     byte
	version byte
	frame   uint32

	x, y, z         float64
	pan, tilt, roll float64
	lens            *Lens
}

// NewBuilder returns a builder seeded with the reference fixture:
// frame 1000, position (1000, -500, 2000) mm, rotation (45, -30, 0) deg,
// zoom 1.0 and focus 0.5.
func NewBuilder() *Builder {
	return &Builder{
		id:      PacketID,
		typ:     PacketTypePosition,
		version: DefaultVersion,
		frame:   1000,
		x:       1000,
		y:       -500,
		z:       2000,
		pan:     45,
		tilt:    -30,
		roll:    0,
		lens:    &Lens{Zoom: 1.0, Focus: 0.5},
	}
}

func (b *Builder) WithID(id byte) *Builder         { b.id = id; return b }
func (b *Builder) WithType(t byte) *Builder        { b.typ = t; return b }
func (b *Builder) WithVersion(v byte) *Builder     { b.version = v; return b }
func (b *Builder) WithFrame(frame uint32) *Builder { b.frame = frame; return b }

// WithPosition sets x, y and z in millimetres.
func (b *Builder) WithPosition(x, y, z float64) *Builder {
	b.x, b.y, b.z = x, y, z
	return b
}

// WithRotation sets pan, tilt and roll in degrees.
func (b *Builder) WithRotation(pan, tilt, roll float64) *Builder {
	b.pan, b.tilt, b.roll = pan, tilt, roll
	return b
}

func (b *Builder) WithX(v float64) *Builder    { b.x = v; return b }
func (b *Builder) WithY(v float64) *Builder    { b.y = v; return b }
func (b *Builder) WithZ(v float64) *Builder    { b.z = v; return b }
func (b *Builder) WithPan(v float64) *Builder  { b.pan = v; return b }
func (b *Builder) WithTilt(v float64) *Builder { b.tilt = v; return b }
func (b *Builder) WithRoll(v float64) *Builder { b.roll = v; return b }

// WithLens sets the zoom/focus trailer.
func (b *Builder) WithLens(zoom, focus float64) *Builder {
	b.lens = &Lens{Zoom: zoom, Focus: focus}
	return b
}

// WithoutLens drops the zoom/focus trailer.
func (b *Builder) WithoutLens() *Builder {
	b.lens = nil
	return b
}

// Packet returns the packet described by the builder.
func (b *Builder) Packet() Packet {
	p := Packet{
		ID:      b.id,
		Type:    b.typ,
		Version: b.version,
		Frame:   b.frame,
		X:       b.x,
		Y:       b.y,
		Z:       b.z,
		Pan:     b.pan,
		Tilt:    b.tilt,
		Roll:    b.roll,
	}
	if b.lens != nil {
		l := *b.lens
		p.Lens = &l
	}
	return p
}

// Bytes encodes the packet, writing the builder's raw id and type bytes.
func (b *Builder) Bytes() ([]byte, error) {
	buf, err := Encode(b.Packet())
	if err != nil {
		return nil, err
	}
	buf[offID] = b.id
	buf[offType] = b.typ
	return buf, nil
}

// MustBytes is Bytes for fixtures known to be in range.
func (b *Builder) MustBytes() []byte {
	buf, err := b.Bytes()
	if err != nil {
		panic(err)
	}
	return buf
}
