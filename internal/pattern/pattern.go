// Package pattern synthesises camera motion for the FreeD simulator.
//
// Every function here is pure: the same variant, elapsed time and
// parameters always produce the same pose.
package pattern

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/banshee-data/freed-tools/internal/freed"
)

// ErrUnknownVariant is returned by ParseVariant for unrecognised names.
var ErrUnknownVariant = errors.New("pattern: unknown variant")

// Variant selects a motion pattern.
type Variant int

const (
	Circle Variant = iota
	Figure8
	Oscillate
)

var variantNames = [...]string{
	Circle:    "circle",
	Figure8:   "figure8",
	Oscillate: "oscillate",
}

func (v Variant) String() string {
	if v < 0 || int(v) >= len(variantNames) {
		return fmt.Sprintf("variant(%d)", int(v))
	}
	return variantNames[v]
}

// Valid reports whether v names a known pattern.
func (v Variant) Valid() bool {
	return v >= 0 && int(v) < len(variantNames)
}

// Variants lists the accepted pattern names.
func Variants() []string {
	return append([]string(nil), variantNames[:]...)
}

// ParseVariant maps a name such as "figure8" to its Variant.
func ParseVariant(name string) (Variant, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range variantNames {
		if s == n {
			return Variant(i), nil
		}
	}
	return 0, fmt.Errorf("%w %q (choose from %s)", ErrUnknownVariant, name, strings.Join(variantNames[:], ", "))
}

// Params shapes a pattern. Size is the radius, lobe size or amplitude in
// millimetres depending on the variant; Height is the base Z.
type Params struct {
	Size   float64
	Height float64
	Period time.Duration
}

// DefaultParams is a 1 m pattern at 2 m height with a 10 s period.
func DefaultParams() Params {
	return Params{Size: 1000, Height: 2000, Period: 10 * time.Second}
}

// Validate rejects parameters that cannot produce a pattern.
func (p Params) Validate() error {
	if p.Period <= 0 {
		return fmt.Errorf("pattern: period must be positive, got %v", p.Period)
	}
	if math.IsNaN(p.Size) || math.IsInf(p.Size, 0) || math.IsNaN(p.Height) || math.IsInf(p.Height, 0) {
		return errors.New("pattern: size and height must be finite")
	}
	return nil
}

// Pose is a camera position (mm) and orientation (degrees).
type Pose struct {
	X, Y, Z         float64
	Pan, Tilt, Roll float64
}

// Packet wraps the pose in a FreeD packet with the given frame number.
func (p Pose) Packet(frame uint32, lens *freed.Lens) freed.Packet {
	pkt := freed.NewPacket(frame)
	pkt.X, pkt.Y, pkt.Z = p.X, p.Y, p.Z
	pkt.Pan, pkt.Tilt, pkt.Roll = p.Pan, p.Tilt, p.Roll
	if lens != nil {
		l := *lens
		pkt.Lens = &l
	}
	return pkt
}

// SimulatedLens is the fixed zoom/focus attached to simulated packets.
var SimulatedLens = freed.Lens{Zoom: 1.0, Focus: 0.5}

// phase returns 2π·elapsed/period with elapsed reduced modulo the period,
// keeping angles bounded on long runs.
func phase(elapsed, period time.Duration) float64 {
	e := elapsed % period
	if e < 0 {
		e += period
	}
	return 2 * math.Pi * float64(e) / float64(period)
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Sample evaluates variant v at elapsed. Unknown variants and invalid
// params yield the zero pose.
func Sample(v Variant, elapsed time.Duration, p Params) Pose {
	if p.Period <= 0 {
		return Pose{}
	}
	t := phase(elapsed, p.Period)

	switch v {
	case Circle:
		return Pose{
			X:   p.Size * math.Cos(t),
			Y:   p.Size * math.Sin(t),
			Z:   p.Height,
			Pan: degrees(t),
		}
	case Figure8:
		s := math.Sin(t)
		d := 1 + s*s
		x := p.Size * math.Cos(t) / d
		y := p.Size * s * math.Cos(t) / d
		return Pose{
			X:   x,
			Y:   y,
			Z:   p.Height,
			Pan: degrees(math.Atan2(y, x)),
		}
	case Oscillate:
		return Pose{
			X:    p.Size * math.Sin(t),
			Y:    0,
			Z:    p.Height + p.Size*math.Cos(t)/2,
			Pan:  30 * math.Sin(t),
			Tilt: 15 * math.Cos(t),
		}
	default:
		return Pose{}
	}
}

// Generator maps elapsed time to a pose.
type Generator func(elapsed time.Duration) Pose

// NewGenerator binds a variant and params into a Generator.
func NewGenerator(v Variant, p Params) (Generator, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w %v", ErrUnknownVariant, v)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return func(elapsed time.Duration) Pose {
		return Sample(v, elapsed, p)
	}, nil
}
