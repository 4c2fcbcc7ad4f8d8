package m5

import (
	"context"
	"errors"
	"time"
)

// Reader opcodes used by this module.
const (
	OpGetFirmwareVersion byte = 0x03
	OpBootFirmware       byte = 0x04
	OpReadTagIDSingle    byte = 0x21
	OpReadTagData        byte = 0x28
	OpSetTxPower         byte = 0x92
	OpSetTagProtocol     byte = 0x93
	OpSetRegion          byte = 0x97
	OpSetPowerMode       byte = 0x98
	OpSetReaderConfig    byte = 0x9a
)

// StatusAlreadyBooted is what the boot command reports when the
// application firmware is already running.
const StatusAlreadyBooted uint16 = 0x0101

// Region selects the regulatory radio region.
type Region byte

// Region codes.
const (
	RegionNA  Region = 0x01
	RegionEU  Region = 0x02
	RegionEU3 Region = 0x08
)

// TagProtocolGen2 is the EPCglobal Gen2 tag protocol code.
const TagProtocolGen2 uint16 = 0x0005

// PowerMode selects the reader's idle power behavior. TX power is
// unaffected.
type PowerMode byte

// Power modes, full power to deepest save.
const (
	PowerModeFull PowerMode = iota
	PowerModeMinSave
	PowerModeMedSave
	PowerModeMaxSave
)

// DefaultSearchTimeout is the tag search timeout carried in read
// requests, in milliseconds on the wire.
const DefaultSearchTimeout uint16 = 0x03e8

// bootDelay gives the module time to settle after the pump restarts;
// the application firmware itself may take up to 650ms to boot.
const bootDelay = 100 * time.Millisecond

// FirmwareVersion reads the version block of the running firmware.
// The returned slice aliases the session payload buffer.
func (s *Session) FirmwareVersion(ctx context.Context) ([]byte, error) {
	if err := s.Exchange(ctx, OpGetFirmwareVersion, nil); err != nil {
		return nil, err
	}
	return s.Payload(), nil
}

// BootFirmware starts the application firmware. A reader already past
// boot answers status 0x0101; that counts as success.
func (s *Session) BootFirmware(ctx context.Context) error {
	err := s.Exchange(ctx, OpBootFirmware, nil)
	var status *StatusError
	if errors.As(err, &status) && status.Status == StatusAlreadyBooted {
		return nil
	}
	return err
}

// SetRegion selects the regulatory region.
func (s *Session) SetRegion(ctx context.Context, r Region) error {
	return s.Exchange(ctx, OpSetRegion, []byte{byte(r)})
}

// SetTagProtocol selects the tag protocol, normally Gen2.
func (s *Session) SetTagProtocol(ctx context.Context, proto uint16) error {
	return s.Exchange(ctx, OpSetTagProtocol, []byte{byte(proto >> 8), byte(proto)})
}

// SetPowerMode selects the reader's idle power behavior.
func (s *Session) SetPowerMode(ctx context.Context, m PowerMode) error {
	return s.Exchange(ctx, OpSetPowerMode, []byte{byte(m)})
}

// SetTxPower sets the read TX power in centi-dBm.
func (s *Session) SetTxPower(ctx context.Context, centiDBm uint16) error {
	return s.Exchange(ctx, OpSetTxPower, []byte{byte(centiDBm >> 8), byte(centiDBm)})
}

// SetMaxEPCLength widens the EPC limit to 496 bits.
func (s *Session) SetMaxEPCLength(ctx context.Context) error {
	return s.Exchange(ctx, OpSetReaderConfig, []byte{0x01, 0x02, 0x01})
}

// ReadEPC singulates the first available tag and copies its EPC into
// dst: exactly the declared response length, truncated to fit dst.
// timeout is the search bound the reader applies, in milliseconds.
func (s *Session) ReadEPC(ctx context.Context, dst []byte, timeout uint16) (int, error) {
	err := s.Exchange(ctx, OpReadTagIDSingle, []byte{byte(timeout >> 8), byte(timeout)})
	if err != nil {
		return 0, err
	}
	return copy(dst, s.Payload()), nil
}

// Bootstrap runs the power-up sequence: boot the firmware, select the
// region, Gen2, deepest power save, extended EPC length.
func (s *Session) Bootstrap(ctx context.Context, region Region) error {
	steps := []func(context.Context) error{
		s.BootFirmware,
		func(ctx context.Context) error { return s.SetRegion(ctx, region) },
		func(ctx context.Context) error { return s.SetTagProtocol(ctx, TagProtocolGen2) },
		func(ctx context.Context) error { return s.SetPowerMode(ctx, PowerModeMaxSave) },
		s.SetMaxEPCLength,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Resume restarts the channel and reruns the power-up sequence.
func (s *Session) Resume(ctx context.Context, region Region) error {
	s.ch.Resume()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(bootDelay):
	}
	return s.Bootstrap(ctx, region)
}

// Suspend parks the channel; Resume undoes it.
func (s *Session) Suspend() {
	s.ch.Suspend()
}
