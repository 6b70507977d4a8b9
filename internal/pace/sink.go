package pace

import (
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/freed-tools/internal/freed"
)

// Sink accepts encoded datagrams. Send must not retain buf after it
// returns. Close is called exactly once when the Player finishes.
type Sink interface {
	Send(buf []byte) error
	io.Closer
}

// TimedPacket pairs a packet with its recorded capture time.
type TimedPacket struct {
	Time   time.Time
	Packet freed.Packet
}

// SendError describes a packet the Player failed to deliver.
type SendError struct {
	// Index is the packet's position in the replay sequence, or the tick
	// number in live mode.
	Index int
	Pass  int
	Frame uint32
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("pace: send packet %d (frame %d, pass %d): %v", e.Index, e.Frame, e.Pass, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
