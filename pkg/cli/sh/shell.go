// Package sh provides the interactive shell for talking to a UHF
// reader over a serial port.
package sh

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/tagworks/uhf.go/pkg/channel"
	"github.com/tagworks/uhf.go/pkg/channel/serial"
	"github.com/tagworks/uhf.go/pkg/m5"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool

	Shell   *ishell.Shell
	Channel *channel.Channel
	Session *m5.Session
}

const (
	shellKey      = "$shell"
	noPortPrompt  = "[none] > "
	cmdTimeout    = 5 * time.Second
	defaultDevice = "/dev/ttyAMA0"
)

var (
	// flags

	evalOnly bool
	device   string
	baudRate int

	// commands
	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.StringVar(&device, "device", defaultDevice, "Serial device of the reader.")
	flag.IntVar(&baudRate, "baud", serial.DefaultBaudRate, "Baud rate of the serial device.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New() *Shell {
	s := &Shell{
		Interactive: !evalOnly,

		Shell: ishell.New(),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(noPortPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps command func requiring an open port.
func MustBeOpen(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Session == nil {
			c.Err(fmt.Errorf("no port open"))
			return
		}
		fn(c)
	}
}

// DoSession runs fn against the open session with a command timeout.
func DoSession(c *ishell.Context, fn func(context.Context, *m5.Session) error) error {
	s := ShellFrom(c)
	if s.Session == nil {
		err := fmt.Errorf("no port open")
		c.Err(err)
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()
	if err := fn(ctx, s.Session); err != nil {
		c.Err(err)
		return err
	}
	return nil
}

// Open opens the serial device and binds a session to it.
func (s *Shell) Open(name string, baud int) error {
	port, err := serial.Open(name, serial.Config{BaudRate: baud})
	if err != nil {
		return err
	}
	ch, err := channel.Open(0, port, channel.Config{})
	if err != nil {
		port.Close()
		return err
	}
	s.ClosePort()
	s.Channel = ch
	s.Session = m5.NewSession(ch, m5.Config{Attempts: 2})
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", name))
	return nil
}

// ClosePort closes the current port if any.
func (s *Shell) ClosePort() {
	if s.Channel != nil {
		s.Channel.Close()
		s.Channel = nil
		s.Session = nil
		s.Shell.SetPrompt(noPortPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if device != "" {
		if s.Interactive {
			s.Shell.Printf("Opening %s ...\n", device)
		}
		if err := s.Open(device, baudRate); err != nil {
			log.Fatalf("open %q failed: %v", device, err)
		}
	}
	defer s.ClosePort()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// OpenCmd opens a serial device.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "DEVICE [BAUD]",
		Func: func(c *ishell.Context) {
			name, baud := device, baudRate
			if len(c.Args) >= 1 {
				name = c.Args[0]
			}
			if len(c.Args) >= 2 {
				if _, err := fmt.Sscanf(c.Args[1], "%d", &baud); err != nil {
					c.Err(fmt.Errorf("invalid BAUD: %v", err))
					return
				}
			}
			if err := ShellFrom(c).Open(name, baud); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes the current port.
	CloseCmd = ishell.Cmd{
		Name:    "close",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).ClosePort()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New().Run(flag.Args()...)
}
