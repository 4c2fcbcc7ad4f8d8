package m5

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tagworks/uhf.go/pkg/channel"
	"github.com/tagworks/uhf.go/pkg/crc16"
)

// readerPort fakes the reader side of the wire: written bytes are
// reassembled into request frames, and an optional respond hook
// queues the reply.
type readerPort struct {
	rx chan byte

	mu      sync.Mutex
	cur     []byte
	reqs    [][]byte
	respond func(req []byte) []byte
	closed  bool
}

func newReaderPort() *readerPort {
	return &readerPort{rx: make(chan byte, 512)}
}

func (p *readerPort) ReadByte(ctx context.Context) (byte, error) {
	select {
	case b, ok := <-p.rx:
		if !ok {
			return 0, io.EOF
		}
		return b, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (p *readerPort) WriteByte(_ context.Context, b byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cur = append(p.cur, b)
	if len(p.cur) >= 2 && p.cur[0] == Header && len(p.cur) == int(p.cur[1])+5 {
		req := p.cur
		p.cur = nil
		p.reqs = append(p.reqs, req)
		if p.respond != nil {
			if reply := p.respond(req); reply != nil {
				for _, c := range reply {
					p.rx <- c
				}
			}
		}
	}
	return nil
}

func (p *readerPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.rx)
	}
	return nil
}

func (p *readerPort) inject(s []byte) {
	for _, b := range s {
		p.rx <- b
	}
}

func (p *readerPort) requests() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	reqs := make([][]byte, len(p.reqs))
	copy(reqs, p.reqs)
	return reqs
}

// responseFrame builds a well-formed response; the checksum covers
// length, opcode, status and data. The crc16 engine itself is pinned
// by its own golden tests.
func responseFrame(opcode byte, status uint16, data []byte) []byte {
	reg := crc16.Update(crc16.Update(crc16.Init(), byte(len(data))), opcode)
	reg = crc16.Update(reg, byte(status>>8))
	reg = crc16.Update(reg, byte(status))
	reg = crc16.Sum(reg, data)
	frame := []byte{Header, byte(len(data)), opcode, byte(status >> 8), byte(status)}
	frame = append(frame, data...)
	return append(frame, byte(reg>>8), byte(reg))
}

var fastConfig = Config{
	TickDelay: 200 * time.Microsecond,
	Ticks:     3000,
}

func newTestSession(t *testing.T, cfg Config) (*Session, *readerPort) {
	t.Helper()
	port := newReaderPort()
	ch, err := channel.Open(0, port, channel.Config{Capacity: 512})
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })
	return NewSession(ch, cfg), port
}

func TestSendRequestFrame(t *testing.T) {
	s, port := newTestSession(t, fastConfig)
	require.NoError(t, s.SendRequest(context.Background(), OpReadTagIDSingle, []byte{0x03, 0xe8}))
	// captured reader trace: ff 02 21 03 e8 d5 09
	require.Equal(t, [][]byte{{0xff, 0x02, 0x21, 0x03, 0xe8, 0xd5, 0x09}}, port.requests())
}

func TestSendRequestTooLarge(t *testing.T) {
	s, _ := newTestSession(t, fastConfig)
	err := s.SendRequest(context.Background(), OpReadTagData, make([]byte, MaxPayload+1))
	var sizeErr *PayloadSizeError
	require.ErrorAs(t, err, &sizeErr)
	require.Equal(t, MaxPayload+1, sizeErr.Len)
}

func TestReceiveResponseDone(t *testing.T) {
	s, port := newTestSession(t, fastConfig)
	// captured reader trace, with leading line noise the header scan
	// must skip: ff 02 21 00 00 03 e8 51 66
	port.inject([]byte{0x00, 0x42, 0xff, 0x02, 0x21, 0x00, 0x00, 0x03, 0xe8, 0x51, 0x66})

	state := s.ReceiveResponse(context.Background(), fastConfig.Ticks)
	require.Equal(t, Done, state)
	require.NoError(t, s.Validate(OpReadTagIDSingle))
	require.Equal(t, uint16(0), s.Status())
	require.Equal(t, []byte{0x03, 0xe8}, s.Payload())
}

func TestReceiveResponseCRCMismatch(t *testing.T) {
	s, port := newTestSession(t, fastConfig)
	port.inject([]byte{0xff, 0x02, 0x21, 0x00, 0x00, 0x03, 0xe8, 0x51, 0x67})

	start := time.Now()
	state := s.ReceiveResponse(context.Background(), fastConfig.Ticks)
	require.Equal(t, AwaitCRC, state)
	// a mismatch ends the exchange at once instead of ticking out
	require.Less(t, time.Since(start), time.Duration(fastConfig.Ticks)*fastConfig.TickDelay/2)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, s.Validate(OpReadTagIDSingle), &timeoutErr)
	require.Equal(t, AwaitCRC, timeoutErr.State)
}

func TestReceiveResponseSilentReader(t *testing.T) {
	s, _ := newTestSession(t, fastConfig)
	require.Equal(t, AwaitHeader, s.ReceiveResponse(context.Background(), 5))
}

func TestReceiveResponsePartialFrame(t *testing.T) {
	s, port := newTestSession(t, fastConfig)
	port.inject([]byte{0xff, 0x02})
	require.Equal(t, AwaitOpcode, s.ReceiveResponse(context.Background(), 50))

	var timeoutErr *TimeoutError
	require.ErrorAs(t, s.Validate(OpReadTagIDSingle), &timeoutErr)
	require.Equal(t, AwaitOpcode, timeoutErr.State)
}

func TestReceiveResponseZeroLengthPayload(t *testing.T) {
	s, port := newTestSession(t, fastConfig)
	port.inject(responseFrame(OpSetPowerMode, 0, nil))
	require.Equal(t, Done, s.ReceiveResponse(context.Background(), fastConfig.Ticks))
	require.NoError(t, s.Validate(OpSetPowerMode))
	require.Empty(t, s.Payload())
}

func TestReceiveResponseCanceled(t *testing.T) {
	s, _ := newTestSession(t, fastConfig)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, AwaitHeader, s.ReceiveResponse(ctx, fastConfig.Ticks))
}

func TestValidateOpcodeAndStatus(t *testing.T) {
	s, port := newTestSession(t, fastConfig)
	port.inject(responseFrame(OpSetRegion, 0, nil))
	require.Equal(t, Done, s.ReceiveResponse(context.Background(), fastConfig.Ticks))

	var opErr *OpcodeError
	require.ErrorAs(t, s.Validate(OpSetPowerMode), &opErr)
	require.Equal(t, OpSetPowerMode, opErr.Want)
	require.Equal(t, OpSetRegion, opErr.Got)

	port.inject(responseFrame(OpSetRegion, 0x0105, nil))
	require.Equal(t, Done, s.ReceiveResponse(context.Background(), fastConfig.Ticks))
	var statusErr *StatusError
	require.ErrorAs(t, s.Validate(OpSetRegion), &statusErr)
	require.Equal(t, uint16(0x0105), statusErr.Status)
}

func TestExchange(t *testing.T) {
	s, port := newTestSession(t, fastConfig)
	port.respond = func(req []byte) []byte {
		return responseFrame(req[2], 0, []byte{0xaa, 0xbb})
	}
	require.NoError(t, s.Exchange(context.Background(), OpReadTagData, []byte{0x01}))
	require.Equal(t, []byte{0xaa, 0xbb}, s.Payload())
}

func TestExchangeRetries(t *testing.T) {
	cfg := fastConfig
	cfg.Ticks = 20
	cfg.Attempts = 2
	s, port := newTestSession(t, cfg)

	var calls int
	port.respond = func(req []byte) []byte {
		if calls++; calls == 1 {
			return nil // first request goes unanswered
		}
		return responseFrame(req[2], 0, nil)
	}
	require.NoError(t, s.Exchange(context.Background(), OpSetRegion, []byte{byte(RegionEU)}))
	require.Len(t, port.requests(), 2)
}

func TestExchangeExhaustsAttempts(t *testing.T) {
	cfg := fastConfig
	cfg.Ticks = 10
	cfg.Attempts = 3
	s, port := newTestSession(t, cfg)

	err := s.Exchange(context.Background(), OpSetRegion, []byte{byte(RegionEU)})
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, AwaitHeader, timeoutErr.State)
	require.Len(t, port.requests(), 3)
}
