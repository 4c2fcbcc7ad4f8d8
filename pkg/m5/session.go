// Package m5 implements the request/response protocol of the M5e UHF
// reader family on top of a transport channel.
//
// Wire formats:
//
//	request:  0xff, length, opcode, payload, CRC hi, CRC lo
//	response: 0xff, length, opcode, status hi, status lo, payload, CRC hi, CRC lo
//
// The request checksum covers {length, opcode, payload}; the response
// checksum additionally covers the status word. The asymmetry is the
// wire contract, not an accident.
package m5

import (
	"context"
	"time"

	"github.com/tagworks/uhf.go/pkg/channel"
	"github.com/tagworks/uhf.go/pkg/crc16"
)

// Header opens every frame in both directions.
const Header byte = 0xff

// MaxPayload is the largest declared payload length.
const MaxPayload = 0xff

// Defaults for Config zero values. The original documents its timeout
// in units of hundreds of milliseconds while the loop actually delays
// 10ms per tick; the observed 10ms is what ships.
const (
	DefaultTickDelay  = 10 * time.Millisecond
	DefaultTicks      = 500
	DefaultAttempts   = 1
	DefaultPayloadCap = MaxPayload
)

// Config carries the session tunables.
type Config struct {
	// TickDelay paces the receive loop: one tick is this delay
	// followed by at most one non-blocking byte read.
	TickDelay time.Duration
	// Ticks is the receive budget per exchange.
	Ticks int
	// Attempts is the retry policy Exchange applies around a failed
	// exchange. Failures are never retried below Exchange.
	Attempts int
	// PayloadCap sizes the response payload buffer.
	PayloadCap int
}

func (c *Config) setDefaults() {
	if c.TickDelay == 0 {
		c.TickDelay = DefaultTickDelay
	}
	if c.Ticks == 0 {
		c.Ticks = DefaultTicks
	}
	if c.Attempts == 0 {
		c.Attempts = DefaultAttempts
	}
	if c.PayloadCap == 0 {
		c.PayloadCap = DefaultPayloadCap
	}
}

// Session drives one exchange at a time over one channel. It is not
// reentrant: a caller must finish or abandon an exchange before
// starting the next.
type Session struct {
	ch  *channel.Channel
	cfg Config

	header byte
	length byte
	opcode byte
	status uint16
	crc    uint16
	data   []byte
	n      int
	state  State
}

// NewSession creates a session over an open channel.
func NewSession(ch *channel.Channel, cfg Config) *Session {
	cfg.setDefaults()
	return &Session{
		ch:    ch,
		cfg:   cfg,
		data:  make([]byte, cfg.PayloadCap),
		state: AwaitHeader,
	}
}

// State returns the last reached receive state.
func (s *Session) State() State { return s.state }

// Opcode returns the opcode of the last response.
func (s *Session) Opcode() byte { return s.opcode }

// Status returns the status word of the last response.
func (s *Session) Status() uint16 { return s.status }

// Length returns the declared payload length of the last response.
func (s *Session) Length() int { return int(s.length) }

// Payload returns the payload of the last response: exactly the
// declared length, truncated to the buffer capacity.
func (s *Session) Payload() []byte {
	n := int(s.length)
	if n > len(s.data) {
		n = len(s.data)
	}
	return s.data[:n]
}

// SendRequest frames and transmits one request. The checksum covers
// length, opcode and payload; a request carries no status word.
func (s *Session) SendRequest(ctx context.Context, opcode byte, payload []byte) error {
	if len(payload) > MaxPayload {
		return &PayloadSizeError{Len: len(payload)}
	}
	s.header = Header
	s.length = byte(len(payload))
	s.opcode = opcode
	reg := crc16.Update(crc16.Update(crc16.Init(), s.length), opcode)
	s.crc = crc16.Sum(reg, payload)

	frame := make([]byte, 0, len(payload)+5)
	frame = append(frame, Header, s.length, opcode)
	frame = append(frame, payload...)
	frame = append(frame, byte(s.crc>>8), byte(s.crc))
	return s.ch.Write(ctx, frame)
}

// ReceiveResponse assembles one response frame, spending at most the
// given tick budget. Each tick sleeps the configured delay and then
// reads at most one queued byte. The return value is the state where
// assembly stopped; Done means a verified frame. A checksum mismatch
// parks the session in AwaitCRC and burns the remaining budget: the
// exchange is over, retry is the caller's call.
func (s *Session) ReceiveResponse(ctx context.Context, ticks int) State {
	s.state = AwaitHeader
	s.n = 0
	s.status = 0
	s.crc = 0

	fail := false
	for ticks > 0 {
		select {
		case <-ctx.Done():
			return s.state
		case <-time.After(s.cfg.TickDelay):
		}

		switch s.state {
		case AwaitHeader:
			if b, ok := s.ch.TryRead(); ok && b == Header {
				s.header = b
				s.state = AwaitLength
			}
		case AwaitLength:
			if b, ok := s.ch.TryRead(); ok {
				s.length = b
				s.state = AwaitOpcode
			}
		case AwaitOpcode:
			if b, ok := s.ch.TryRead(); ok {
				s.opcode = b
				s.n = 0
				s.state = AwaitStatus
			}
		case AwaitStatus:
			if b, ok := s.ch.TryRead(); ok {
				s.status = s.status<<8 | uint16(b)
				if s.n++; s.n == 2 {
					s.n = 0
					s.state = AwaitData
				}
			}
		case AwaitData:
			if s.n >= int(s.length) {
				s.n = 0
				s.state = AwaitCRC
				break
			}
			if b, ok := s.ch.TryRead(); ok {
				if s.n < len(s.data) {
					s.data[s.n] = b
				}
				s.n++
			}
		case AwaitCRC:
			if b, ok := s.ch.TryRead(); ok {
				s.crc = s.crc<<8 | uint16(b)
				if s.n++; s.n == 2 {
					if s.responseCRC() == s.crc {
						s.state = Done
					} else {
						fail = true
					}
				}
			}
		}

		if s.state == Done || fail {
			break
		}
		ticks--
	}
	return s.state
}

// responseCRC folds the received fields the way the reader does for
// responses: length, opcode, status word, payload.
func (s *Session) responseCRC() uint16 {
	reg := crc16.Update(crc16.Update(crc16.Init(), s.length), s.opcode)
	reg = crc16.Update(reg, byte(s.status>>8))
	reg = crc16.Update(reg, byte(s.status))
	return crc16.Sum(reg, s.Payload())
}

// Validate accepts the last exchange iff it completed, echoed the
// expected opcode and reported a zero status word.
func (s *Session) Validate(expected byte) error {
	if s.state != Done {
		return &TimeoutError{State: s.state}
	}
	if s.opcode != expected {
		return &OpcodeError{Want: expected, Got: s.opcode}
	}
	if s.status != 0 {
		return &StatusError{Opcode: s.opcode, Status: s.status}
	}
	return nil
}

// Exchange runs one full request/response with the configured retry
// policy. Queued bytes are cleared before each attempt so a stale
// partial frame cannot satisfy the new request.
func (s *Session) Exchange(ctx context.Context, opcode byte, payload []byte) error {
	var err error
	for i := 0; i < s.cfg.Attempts; i++ {
		s.ch.ClearRx()
		if err = s.SendRequest(ctx, opcode, payload); err != nil {
			return err
		}
		s.ReceiveResponse(ctx, s.cfg.Ticks)
		if err = s.Validate(opcode); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return err
}
