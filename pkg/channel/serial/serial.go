// Package serial adapts a hardware serial port to channel.Port.
package serial

import (
	"context"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"
)

// DefaultBaudRate matches the reader module's factory setting.
const DefaultBaudRate = 9600

// DefaultReadPacing bounds one underlying read so cancellation is
// honored between attempts.
const DefaultReadPacing = 100 * time.Millisecond

// Config selects the port parameters. The reader talks 8N1.
type Config struct {
	BaudRate   int
	ReadPacing time.Duration
}

// Port implements channel.Port over a serial device.
type Port struct {
	name string
	port serial.Port
}

// Open opens the named device in 8N1 mode.
func Open(name string, cfg Config) (*Port, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadPacing == 0 {
		cfg.ReadPacing = DefaultReadPacing
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(cfg.ReadPacing); err != nil {
		p.Close()
		return nil, err
	}
	glog.V(2).Infof("opened %s at %d baud", name, cfg.BaudRate)
	return &Port{name: name, port: p}, nil
}

// Name returns the device name the port was opened with.
func (p *Port) Name() string {
	return p.name
}

// ReadByte implements channel.Port. The device read returns every
// ReadPacing even when idle, which is when ctx gets checked.
func (p *Port) ReadByte(ctx context.Context) (byte, error) {
	var buf [1]byte
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := p.port.Read(buf[:])
		if err != nil {
			return 0, err
		}
		if n > 0 {
			return buf[0], nil
		}
	}
}

// WriteByte implements channel.Port. Serial writes land in the OS
// buffer, so the cancellation bound is checked between bytes rather
// than inside the write.
func (p *Port) WriteByte(ctx context.Context, b byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := [1]byte{b}
	_, err := p.port.Write(buf[:])
	return err
}

// Close implements channel.Port.
func (p *Port) Close() error {
	glog.V(2).Infof("closing %s", p.name)
	return p.port.Close()
}
