package crc16

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// Golden values taken from captured reader frames. Request checksums
// cover {length, opcode, payload}; response checksums additionally
// cover the two status bytes between opcode and payload.
func TestGolden(t *testing.T) {
	testCases := []struct {
		in     []byte
		expect uint16
	}{
		// requests
		{[]byte{0x00, 0x03}, 0x1d0c},                         // get firmware version
		{[]byte{0x00, 0x04}, 0x1d0b},                         // boot firmware
		{[]byte{0x02, 0x21, 0x03, 0xe8}, 0xd509},             // read tag id, 1s timeout
		{[]byte{0x02, 0x92, 0x03, 0xe8}, 0x42b1},             // set read tx power
		{[]byte{0x02, 0x93, 0x00, 0x05}, 0x517d},             // set tag protocol gen2
		{[]byte{0x01, 0x97, 0x02}, 0x4bbf},                   // set region EU
		{[]byte{0x01, 0x98, 0x03}, 0x44be},                   // set power mode
		{[]byte{0x03, 0x9a, 0x01, 0x02, 0x01}, 0xad5c},       // set max epc length
		// responses, status word included
		{[]byte{0x00, 0x92, 0x00, 0x00}, 0x273b},
		{[]byte{0x00, 0x98, 0x00, 0x00}, 0x8671},
		{[]byte{0x00, 0x9a, 0x00, 0x00}, 0xa633},
		{[]byte{0x00, 0x04, 0x01, 0x01}, 0xc545},             // boot: already running
		{[]byte{0x02, 0x21, 0x00, 0x00, 0x03, 0xe8}, 0x5166}, // read tag id echo
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%x", tc.in), func(t *testing.T) {
			require.Equal(t, tc.expect, Sum(Init(), tc.in))
		})
	}
}

// The register must thread across calls so field groups fold into one
// checksum.
func TestUpdateThreads(t *testing.T) {
	frame := []byte{0x02, 0x21, 0x00, 0x00, 0x03, 0xe8}
	reg := Init()
	reg = Update(reg, frame[0])
	reg = Update(reg, frame[1])
	reg = Sum(reg, frame[2:4])
	reg = Sum(reg, frame[4:])
	require.Equal(t, Sum(Init(), frame), reg)
	require.Equal(t, uint16(0x5166), reg)
}

// Excluding the zero status word changes the checksum: the serial
// form is sensitive to interior zero bytes, which is exactly why
// request and response checksums differ.
func TestStatusBytesMatter(t *testing.T) {
	withStatus := Sum(Init(), []byte{0x02, 0x21, 0x00, 0x00, 0x03, 0xe8})
	withoutStatus := Sum(Init(), []byte{0x02, 0x21, 0x03, 0xe8})
	require.NotEqual(t, withoutStatus, withStatus)
}

func TestSumEmpty(t *testing.T) {
	require.Equal(t, Preset, Sum(Init(), nil))
}
