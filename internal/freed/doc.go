// Package freed implements the FreeD camera-tracking wire format.
//
// A FreeD "D1" datagram carries a camera position (millimetres) and
// orientation (degrees) as big-endian signed fixed-point integers, with an
// optional zoom/focus trailer. Decoding never panics: malformed buffers are
// reported as a *DecodeError so callers can classify them like any other
// packet.
package freed
