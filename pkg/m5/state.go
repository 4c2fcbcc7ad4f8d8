package m5

// State tracks receive progress through a response frame. The state
// where progress stopped doubles as the exchange's error code, so a
// failed exchange tells apart a silent reader, a partial frame and a
// checksum failure.
type State uint8

const (
	// Done means a complete frame arrived and its checksum matched.
	Done State = iota
	// AwaitHeader waits for the 0xff frame header.
	AwaitHeader
	// AwaitLength waits for the declared payload length.
	AwaitLength
	// AwaitOpcode waits for the echoed opcode.
	AwaitOpcode
	// AwaitStatus collects the two status bytes, high first.
	AwaitStatus
	// AwaitData collects the declared number of payload bytes.
	AwaitData
	// AwaitCRC collects the two checksum bytes and verifies them.
	AwaitCRC
)

var stateNames = [...]string{
	Done:        "done",
	AwaitHeader: "await-header",
	AwaitLength: "await-length",
	AwaitOpcode: "await-opcode",
	AwaitStatus: "await-status",
	AwaitData:   "await-data",
	AwaitCRC:    "await-crc",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
