// Package capture persists and reloads received FreeD traffic.
//
// Three formats are supported: the CSV packet log written by the validator,
// a SQLite capture store holding any number of sessions, and pcap files
// recorded with tcpdump or Wireshark. All of them load into Rows, which
// feed both the replayer and the analyser.
package capture

import (
	"net/netip"
	"time"

	"github.com/banshee-data/freed-tools/internal/freed"
	"github.com/banshee-data/freed-tools/internal/pace"
	"github.com/banshee-data/freed-tools/internal/validate"
)

// Row is one received datagram. Packet is meaningful only when Valid.
type Row struct {
	Time   time.Time
	Source netip.AddrPort
	Valid  bool
	Packet freed.Packet
}

// RowFromEvent converts a classified datagram into a Row.
func RowFromEvent(e validate.Event) Row {
	r := Row{Time: e.Time, Source: e.Source, Valid: e.Result.Valid()}
	if r.Valid {
		r.Packet = e.Result.Packet
	}
	return r
}

// Rows is an ordered capture.
type Rows []Row

// Valid returns the valid rows in order.
func (rs Rows) Valid() Rows {
	out := make(Rows, 0, len(rs))
	for _, r := range rs {
		if r.Valid {
			out = append(out, r)
		}
	}
	return out
}

// Timed returns the valid rows as a replay sequence, in capture order.
func (rs Rows) Timed() []pace.TimedPacket {
	out := make([]pace.TimedPacket, 0, len(rs))
	for _, r := range rs {
		if r.Valid {
			out = append(out, pace.TimedPacket{Time: r.Time, Packet: r.Packet})
		}
	}
	return out
}

// Span is the time between the first and last row.
func (rs Rows) Span() time.Duration {
	if len(rs) < 2 {
		return 0
	}
	return rs[len(rs)-1].Time.Sub(rs[0].Time)
}
