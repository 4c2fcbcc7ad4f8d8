// Package reader provides the shell commands driving a UHF reader.
package reader

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/tagworks/uhf.go/pkg/cli/sh"
	"github.com/tagworks/uhf.go/pkg/m5"
)

var regions = map[string]m5.Region{
	"na":  m5.RegionNA,
	"eu":  m5.RegionEU,
	"eu3": m5.RegionEU3,
}

var (
	// BootCmd exposes the firmware boot command.
	BootCmd = ishell.Cmd{
		Name: "boot",
		Help: "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if sh.DoSession(c, func(ctx context.Context, s *m5.Session) error {
				return s.BootFirmware(ctx)
			}) == nil {
				c.Println("OK")
			}
		}),
	}

	// BootstrapCmd runs the full power-up sequence.
	BootstrapCmd = ishell.Cmd{
		Name:    "bootstrap",
		Aliases: []string{"up"},
		Help:    "[na|eu|eu3]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			region := m5.RegionNA
			if len(c.Args) > 0 {
				var ok bool
				if region, ok = regions[c.Args[0]]; !ok {
					c.Err(fmt.Errorf("unknown region %q", c.Args[0]))
					return
				}
			}
			if sh.DoSession(c, func(ctx context.Context, s *m5.Session) error {
				return s.Bootstrap(ctx, region)
			}) == nil {
				c.Println("OK")
			}
		}),
	}

	// VersionCmd prints the firmware version block.
	VersionCmd = ishell.Cmd{
		Name:    "version",
		Aliases: []string{"v"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			var version []byte
			if sh.DoSession(c, func(ctx context.Context, s *m5.Session) (err error) {
				version, err = s.FirmwareVersion(ctx)
				return
			}) == nil {
				c.Println(hex.EncodeToString(version))
			}
		}),
	}

	// ProtocolCmd selects the tag protocol.
	ProtocolCmd = ishell.Cmd{
		Name: "protocol",
		Help: "[gen2]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) > 0 && c.Args[0] != "gen2" {
				c.Err(fmt.Errorf("unknown protocol %q", c.Args[0]))
				return
			}
			if sh.DoSession(c, func(ctx context.Context, s *m5.Session) error {
				return s.SetTagProtocol(ctx, m5.TagProtocolGen2)
			}) == nil {
				c.Println("OK")
			}
		}),
	}

	// RegionCmd selects the regulatory region.
	RegionCmd = ishell.Cmd{
		Name: "region",
		Help: "na|eu|eu3",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("region required"))
				return
			}
			region, ok := regions[c.Args[0]]
			if !ok {
				c.Err(fmt.Errorf("unknown region %q", c.Args[0]))
				return
			}
			if sh.DoSession(c, func(ctx context.Context, s *m5.Session) error {
				return s.SetRegion(ctx, region)
			}) == nil {
				c.Println("OK")
			}
		}),
	}

	// PowerModeCmd selects the idle power mode.
	PowerModeCmd = ishell.Cmd{
		Name:    "powermode",
		Aliases: []string{"pm"},
		Help:    "MODE(0-3)",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("MODE required"))
				return
			}
			val, err := strconv.ParseUint(c.Args[0], 10, 8)
			if err != nil || val > uint64(m5.PowerModeMaxSave) {
				c.Err(fmt.Errorf("invalid MODE: %q", c.Args[0]))
				return
			}
			if sh.DoSession(c, func(ctx context.Context, s *m5.Session) error {
				return s.SetPowerMode(ctx, m5.PowerMode(val))
			}) == nil {
				c.Println("OK")
			}
		}),
	}

	// TxPowerCmd sets the read TX power.
	TxPowerCmd = ishell.Cmd{
		Name:    "txpower",
		Aliases: []string{"tx"},
		Help:    "CENTI_DBM",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("CENTI_DBM required"))
				return
			}
			val, err := strconv.ParseUint(c.Args[0], 10, 16)
			if err != nil {
				c.Err(fmt.Errorf("invalid CENTI_DBM: %v", err))
				return
			}
			if sh.DoSession(c, func(ctx context.Context, s *m5.Session) error {
				return s.SetTxPower(ctx, uint16(val))
			}) == nil {
				c.Println("OK")
			}
		}),
	}

	// ReadCmd singulates one tag and prints its EPC.
	ReadCmd = ishell.Cmd{
		Name:    "read",
		Aliases: []string{"r"},
		Help:    "[TIMEOUT_MS]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			timeout := m5.DefaultSearchTimeout
			if len(c.Args) > 0 {
				val, err := strconv.ParseUint(c.Args[0], 10, 16)
				if err != nil {
					c.Err(fmt.Errorf("invalid TIMEOUT_MS: %v", err))
					return
				}
				timeout = uint16(val)
			}
			epc := make([]byte, m5.MaxPayload)
			var n int
			if sh.DoSession(c, func(ctx context.Context, s *m5.Session) (err error) {
				n, err = s.ReadEPC(ctx, epc, timeout)
				return
			}) == nil {
				c.Println(hex.EncodeToString(epc[:n]))
			}
		}),
	}

	// StatusCmd prints the state of the last exchange.
	StatusCmd = ishell.Cmd{
		Name: "status",
		Help: "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			s := sh.ShellFrom(c).Session
			c.Printf("state=%s opcode=%#02x status=%#04x len=%d\n",
				s.State(), s.Opcode(), s.Status(), s.Length())
		}),
	}

	// SuspendCmd parks the reader channel.
	SuspendCmd = ishell.Cmd{
		Name: "suspend",
		Help: "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			sh.ShellFrom(c).Session.Suspend()
		}),
	}

	// ResumeCmd restarts the channel and reruns the power-up sequence.
	ResumeCmd = ishell.Cmd{
		Name: "resume",
		Help: "[na|eu|eu3]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			region := m5.RegionNA
			if len(c.Args) > 0 {
				var ok bool
				if region, ok = regions[c.Args[0]]; !ok {
					c.Err(fmt.Errorf("unknown region %q", c.Args[0]))
					return
				}
			}
			if sh.DoSession(c, func(ctx context.Context, s *m5.Session) error {
				return s.Resume(ctx, region)
			}) == nil {
				c.Println("OK")
			}
		}),
	}
)

func init() {
	sh.AddCmds(
		&BootCmd,
		&BootstrapCmd,
		&VersionCmd,
		&ProtocolCmd,
		&RegionCmd,
		&PowerModeCmd,
		&TxPowerCmd,
		&ReadCmd,
		&StatusCmd,
		&SuspendCmd,
		&ResumeCmd,
	)
}
