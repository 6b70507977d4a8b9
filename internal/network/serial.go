package network

import (
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"
)

// SerialOptions describes the RS-422 link a FreeD sink writes to. Zero
// fields take the FreeD defaults of 38400 baud, 8 data bits, odd parity
// and one stop bit.
type SerialOptions struct {
	BaudRate int    `json:"baud_rate" toml:"baud_rate"`
	DataBits int    `json:"data_bits" toml:"data_bits"`
	StopBits int    `json:"stop_bits" toml:"stop_bits"`
	Parity   string `json:"parity" toml:"parity"`
}

// Normalize validates the options and applies defaults for unset values.
func (o SerialOptions) Normalize() (SerialOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 38400
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "O", "ODD":
		parity = "O"
	case "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	opts.Parity = parity
	return opts, nil
}

// SerialMode converts the options into the mode go.bug.st/serial opens
// ports with.
func (o SerialOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.OddParity
	}
	return mode, nil
}

// SerialSink writes each packet to a serial line. FreeD over RS-422 has
// no framing beyond the packet itself.
type SerialSink struct {
	port io.WriteCloser
	name string
}

// NewSerialSink wraps an already open port.
func NewSerialSink(name string, port io.WriteCloser) *SerialSink {
	return &SerialSink{port: port, name: name}
}

// OpenSerialSink opens the serial device at path.
func OpenSerialSink(path string, opts SerialOptions) (*SerialSink, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return NewSerialSink(path, port), nil
}

func (s *SerialSink) Send(buf []byte) error {
	n, err := s.port.Write(buf)
	if err != nil {
		return fmt.Errorf("write %s: %w", s.name, err)
	}
	if n != len(buf) {
		return fmt.Errorf("short write to %s: %d of %d bytes", s.name, n, len(buf))
	}
	return nil
}

func (s *SerialSink) Close() error { return s.port.Close() }
