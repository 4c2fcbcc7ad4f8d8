// Package channel bridges a physical byte port to protocol logic. An
// arrival pump moves every inbound byte into a ring buffer; outbound
// bytes go straight to the port. One Channel exists per port slot,
// created once and reused.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tagworks/uhf.go/pkg/ring"
)

// PortID selects one of the fixed channel slots.
type PortID uint8

// MaxPorts is the number of channel slots. Channels are fully
// independent; nothing is shared across slots.
const MaxPorts PortID = 2

// Defaults mirror the original firmware configuration.
const (
	DefaultCapacity   = 64
	DefaultScratchLen = 64
	DefaultTerminator = '\n'
	DefaultPollDelay  = time.Millisecond
)

var (
	// ErrBadPort indicates a port id outside the channel slots.
	ErrBadPort = errors.New("port id out of range")
	// ErrNoPort indicates Open was called without a physical port.
	ErrNoPort = errors.New("no physical port")
	// ErrClosed indicates the channel has been closed.
	ErrClosed = errors.New("channel closed")
)

// Port is the physical byte transport behind a Channel.
type Port interface {
	// ReadByte blocks until one byte arrives or ctx is done.
	ReadByte(ctx context.Context) (byte, error)
	// WriteByte blocks until b is handed off or ctx is done.
	WriteByte(ctx context.Context, b byte) error
	Close() error
}

// Config carries the per-channel tunables. Zero values select the
// defaults above.
type Config struct {
	Capacity   int           // inbound ring capacity
	ScratchLen int           // outbound scratch size
	Terminator byte          // end-of-message byte on the wire
	PollDelay  time.Duration // pacing for blocking ring reads
}

func (c *Config) setDefaults() {
	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.ScratchLen == 0 {
		c.ScratchLen = DefaultScratchLen
	}
	if c.Terminator == 0 {
		c.Terminator = DefaultTerminator
	}
	if c.PollDelay == 0 {
		c.PollDelay = DefaultPollDelay
	}
}

// Channel owns the inbound ring buffer and the outbound scratch for
// one port. Exactly one goroutine (the pump) produces into the ring;
// the caller is the single consumer.
type Channel struct {
	id      PortID
	port    Port
	cfg     Config
	rx      *ring.Buffer
	scratch []byte
	pending atomic.Int32 // terminators seen minus messages taken

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

var (
	regMu    sync.Mutex
	registry [MaxPorts]*Channel
)

// Open creates the channel for a port slot, starting its arrival
// pump. It is idempotent: opening an already-open slot returns the
// existing channel untouched, never a new one.
func Open(id PortID, port Port, cfg Config) (*Channel, error) {
	if id >= MaxPorts {
		return nil, fmt.Errorf("%w: %d", ErrBadPort, id)
	}
	regMu.Lock()
	defer regMu.Unlock()
	if ch := registry[id]; ch != nil {
		return ch, nil
	}
	if port == nil {
		return nil, ErrNoPort
	}
	cfg.setDefaults()
	if cfg.Capacity < 2 {
		return nil, fmt.Errorf("ring capacity %d: need at least 2", cfg.Capacity)
	}
	ch := &Channel{
		id:      id,
		port:    port,
		cfg:     cfg,
		rx:      ring.New(cfg.Capacity),
		scratch: make([]byte, cfg.ScratchLen),
	}
	ch.start()
	registry[id] = ch
	return ch, nil
}

// Close stops the pump, closes the physical port and frees the slot
// so the port id can be opened again.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	c.stopLocked()
	c.mu.Unlock()

	regMu.Lock()
	if registry[c.id] == c {
		registry[c.id] = nil
	}
	regMu.Unlock()
	return c.port.Close()
}

// Suspend stops the arrival pump. Bytes arriving while suspended stay
// in the physical port, not the ring.
func (c *Channel) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Resume clears receive state and restarts the arrival pump. It is a
// no-op on a running channel apart from the clear.
func (c *Channel) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.ClearRx()
	if c.cancel == nil {
		c.start()
	}
}

func (c *Channel) start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.pump(ctx, c.done)
}

func (c *Channel) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
		c.cancel = nil
	}
}

// pump is the asynchronous producer: it moves every byte the port
// delivers into the ring. This is the single write path into the
// buffer.
func (c *Channel) pump(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		b, err := c.port.ReadByte(ctx)
		if err != nil {
			return
		}
		c.rx.Push(b)
		if b == c.cfg.Terminator {
			c.pending.Add(1)
		}
	}
}

// TryRead returns one queued byte without blocking.
func (c *Channel) TryRead() (byte, bool) {
	var one [1]byte
	if c.rx.Drain(one[:]) == 0 {
		return 0, false
	}
	return one[0], true
}

// Read returns one queued byte, polling until it arrives or ctx is
// done. The original busy-waits forever here; the context is the
// redesigned bound on that wait.
func (c *Channel) Read(ctx context.Context) (byte, error) {
	for {
		if b, ok := c.TryRead(); ok {
			return b, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(c.cfg.PollDelay):
		}
	}
}

// Get drains queued bytes into dst and returns the count.
func (c *Channel) Get(dst []byte) int {
	return c.rx.Drain(dst)
}

// GetMessage drains queued bytes into dst through the configured
// terminator and returns the count. Taking a message decrements the
// pending counter.
func (c *Channel) GetMessage(dst []byte) int {
	n := c.rx.DrainUntil(dst, c.cfg.Terminator)
	if n > 0 && c.pending.Load() > 0 {
		c.pending.Add(-1)
	}
	return n
}

// Pending returns the number of terminators seen but not yet taken.
// Advisory only: a concurrent GetMessage may already have consumed
// the message this counts.
func (c *Channel) Pending() int {
	if n := int(c.pending.Load()); n > 0 {
		return n
	}
	return 0
}

// ClearRx discards queued bytes and the pending-terminator count.
func (c *Channel) ClearRx() {
	c.rx.Clear()
	c.pending.Store(0)
}

// WriteByte hands one byte to the physical port.
func (c *Channel) WriteByte(ctx context.Context, b byte) error {
	return c.port.WriteByte(ctx, b)
}

// Write hands the bytes of p to the physical port in order.
func (c *Channel) Write(ctx context.Context, p []byte) error {
	for _, b := range p {
		if err := c.port.WriteByte(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// Scratch exposes the outbound scratch buffer for callers that build
// a message in place before WriteScratch.
func (c *Channel) Scratch() []byte {
	return c.scratch
}

// WriteScratch writes the scratch buffer up to its terminating zero.
func (c *Channel) WriteScratch(ctx context.Context) error {
	for _, b := range c.scratch {
		if b == 0 {
			break
		}
		if err := c.port.WriteByte(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// Terminator returns the configured end-of-message byte.
func (c *Channel) Terminator() byte {
	return c.cfg.Terminator
}
