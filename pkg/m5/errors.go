package m5

import "fmt"

// PayloadSizeError indicates a request payload beyond the one-byte
// length field.
type PayloadSizeError struct {
	Len int
}

// Error implements error.
func (e *PayloadSizeError) Error() string {
	return fmt.Sprintf("payload %d bytes, max %d", e.Len, MaxPayload)
}

// TimeoutError reports the receive state where progress stopped: the
// header never showed up, the frame broke off mid-way, or the
// checksum failed (stalled at await-crc with both bytes in).
type TimeoutError struct {
	State State
}

// Error implements error.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no valid response, stalled at %s", e.State)
}

// OpcodeError indicates a response echoing a different opcode than
// the request.
type OpcodeError struct {
	Want byte
	Got  byte
}

// Error implements error.
func (e *OpcodeError) Error() string {
	return fmt.Sprintf("opcode mismatch: sent %#02x, got %#02x", e.Want, e.Got)
}

// StatusError wraps a non-zero status word from the reader.
type StatusError struct {
	Opcode byte
	Status uint16
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("reader status %#04x for opcode %#02x", e.Status, e.Opcode)
}
