package capture

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/freed-tools/internal/freed"
	"github.com/banshee-data/freed-tools/internal/validate"
)

// TimestampLayout is the timestamp format of the CSV packet log, in local
// time with millisecond precision.
const TimestampLayout = "2006-01-02 15:04:05.000"

// Header lists the CSV packet log columns in the order they are written.
var Header = []string{
	"timestamp", "source_ip", "source_port", "valid", "frame",
	"x_pos", "y_pos", "z_pos", "pan", "tilt", "roll", "zoom", "focus",
}

// ErrMissingColumn reports a CSV log without a required column.
var ErrMissingColumn = errors.New("capture: missing column")

// CSVWriter appends classified datagrams to a CSV packet log. Each row is
// flushed as it is written so an interrupted capture keeps its data.
type CSVWriter struct {
	w      *csv.Writer
	closer io.Closer
}

// NewCSVWriter writes the header to w.
func NewCSVWriter(w io.Writer) (*CSVWriter, error) {
	cw := &CSVWriter{w: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		cw.closer = c
	}
	if err := cw.w.Write(Header); err != nil {
		return nil, err
	}
	cw.w.Flush()
	return cw, cw.w.Error()
}

// CreateCSV truncates or creates path and writes the header.
func CreateCSV(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create packet log: %w", err)
	}
	cw, err := NewCSVWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return cw, nil
}

// Record writes e as one row. Invalid datagrams leave the numeric columns
// empty.
func (cw *CSVWriter) Record(e validate.Event) error {
	return cw.WriteRow(RowFromEvent(e))
}

// WriteRow writes r.
func (cw *CSVWriter) WriteRow(r Row) error {
	rec := make([]string, len(Header))
	rec[0] = r.Time.Format(TimestampLayout)
	if r.Source.IsValid() {
		rec[1] = r.Source.Addr().String()
		rec[2] = strconv.Itoa(int(r.Source.Port()))
	}
	rec[3] = strconv.FormatBool(r.Valid)
	if r.Valid {
		p := r.Packet
		rec[4] = strconv.FormatUint(uint64(p.Frame), 10)
		for i, v := range []float64{p.X, p.Y, p.Z, p.Pan, p.Tilt, p.Roll} {
			rec[5+i] = formatFloat(v)
		}
		if p.Lens != nil {
			rec[11] = formatFloat(p.Lens.Zoom)
			rec[12] = formatFloat(p.Lens.Focus)
		}
	}
	if err := cw.w.Write(rec); err != nil {
		return err
	}
	cw.w.Flush()
	return cw.w.Error()
}

// Close flushes and closes the underlying writer when it is closable.
func (cw *CSVWriter) Close() error {
	cw.w.Flush()
	if err := cw.w.Error(); err != nil {
		return err
	}
	if cw.closer != nil {
		return cw.closer.Close()
	}
	return nil
}

// formatFloat keeps every digit so a replayed row re-encodes to the same
// wire integers it was decoded from.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// LoadCSV reads the packet log at path.
func LoadCSV(path string) (Rows, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses a packet log. Columns are matched by header name, so
// column order and extra columns do not matter. timestamp and valid are
// required; valid rows also need frame and the six pose columns. Empty
// zoom and focus mean the packet had no lens data.
func ReadCSV(r io.Reader) (Rows, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty packet log", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range []string{"timestamp", "valid"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, name)
		}
	}

	var rows Rows
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row, err := parseRow(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
}

func parseRow(rec []string, cols map[string]int) (Row, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var row Row
	ts, err := ParseTimestamp(field("timestamp"))
	if err != nil {
		return row, err
	}
	row.Time = ts

	if ip := field("source_ip"); ip != "" {
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			return row, fmt.Errorf("source_ip: %w", err)
		}
		port, err := strconv.ParseUint(field("source_port"), 10, 16)
		if err != nil {
			return row, fmt.Errorf("source_port: %w", err)
		}
		row.Source = netip.AddrPortFrom(addr, uint16(port))
	}

	row.Valid, err = strconv.ParseBool(field("valid"))
	if err != nil {
		return row, fmt.Errorf("valid: %w", err)
	}
	if !row.Valid {
		return row, nil
	}

	frame, err := strconv.ParseUint(field("frame"), 10, 32)
	if err != nil {
		return row, fmt.Errorf("frame: %w", err)
	}
	p := freed.NewPacket(uint32(frame))
	for _, c := range []struct {
		name string
		dst  *float64
	}{
		{"x_pos", &p.X}, {"y_pos", &p.Y}, {"z_pos", &p.Z},
		{"pan", &p.Pan}, {"tilt", &p.Tilt}, {"roll", &p.Roll},
	} {
		if *c.dst, err = strconv.ParseFloat(field(c.name), 64); err != nil {
			return row, fmt.Errorf("%s: %w", c.name, err)
		}
	}

	zoom, focus := field("zoom"), field("focus")
	if zoom != "" || focus != "" {
		var lens freed.Lens
		if lens.Zoom, err = parseOptionalFloat(zoom); err != nil {
			return row, fmt.Errorf("zoom: %w", err)
		}
		if lens.Focus, err = parseOptionalFloat(focus); err != nil {
			return row, fmt.Errorf("focus: %w", err)
		}
		p.Lens = &lens
	}
	if err := freed.CheckRange(p); err != nil {
		return row, fmt.Errorf("frame %d: %w", p.Frame, err)
	}
	row.Packet = p
	return row, nil
}

func parseOptionalFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// ParseTimestamp accepts TimestampLayout in local time, with any number of
// fractional digits, or RFC 3339.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02 15:04:05.999999999", s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: expected %q or RFC 3339", s, TimestampLayout)
	}
	return t, nil
}
