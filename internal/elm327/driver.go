// Package elm327 implements the transport.Backend contract over a
// text-mode ELM327-compatible adapter, absorbing its statefulness,
// AT-command protocol, and known firmware quirks behind a line-buffered
// ASCII parser.
package elm327

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/anodyne74/evtelemetry/internal/transport"
)

// Phase is the adapter's operational state.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseInitialising
	PhaseConnected
)

// TxPhase is the per-request transmit substate.
type TxPhase int

const (
	TxIdle TxPhase = iota
	TxAtCommand
	TxRequestPacket
	TxTimeout
	TxError
)

// lineWriter is a carriage-return-terminated line sink: a socket,
// serial port, or packet-notify characteristic write.
type lineWriter interface {
	WriteLine(line string) error
}

// ringBufferSize bounds the receive ring buffer well above any single
// adapter response line.
const ringBufferSize = 2048

// Driver implements transport.Backend over an ELM327-compatible adapter.
// It is shared by the ELMStream and ELMPacket transport back-ends, which
// differ only in how bytes reach WriteLine/feed.
type Driver struct {
	writer lineWriter
	sink   transport.Sink

	mu sync.Mutex

	phase   Phase
	txPhase TxPhase

	lastReqID, lastRspID uint32
	last29Bit            bool
	lastBitrate500k      bool

	version      string
	versionMajor int
	versionMinor int
	isV15Quirk   bool

	requestTimeout time.Duration
	bitrateIs500k  bool

	filterEnabled bool

	ring    [ringBufferSize]byte
	ringLen int

	pending chan outcome // signalled once by the parser at the next '>'
	atLines []string     // lines seen during the in-flight AT command
}

// NewDriver constructs a driver writing AT commands and hex request lines
// through w, forwarding reassembled frames and link errors to sink.
func NewDriver(w lineWriter, sink transport.Sink) *Driver {
	return &Driver{writer: w, sink: sink, filterEnabled: true}
}

// Init begins the adapter's init sequence and blocks until it completes
// or fails.
func (d *Driver) Init(role transport.Role, requestTimeout time.Duration, bitrateIs500k bool) error {
	d.mu.Lock()
	d.requestTimeout = requestTimeout
	d.bitrateIs500k = bitrateIs500k
	d.phase = PhaseInitialising
	d.lastReqID = 0
	d.lastRspID = 0
	d.mu.Unlock()

	return d.runInitSequence()
}

// initCommands is the canonical reset/configure sequence: reset, echo
// off, no auto-format, flow-control on, no memory saves, no line-feeds,
// no headers, spaces between bytes, fixed ST timeout, custom
// flow-control header/data/mode.
var initCommands = []string{
	"ATZ",
	"ATE0",
	"ATCAF0",
	"ATCFC1",
	"ATM0",
	"ATL0",
	"ATH0",
	"ATS1",
	"ATST7D",
	"ATFCSH",
	"ATFCSD300000",
	"ATFCSM1",
}

func (d *Driver) runInitSequence() error {
	for _, cmd := range initCommands {
		outcome, lines := d.sendATCommand(cmd)
		if outcome != outcomeSuccess {
			d.mu.Lock()
			d.phase = PhaseDisconnected
			d.mu.Unlock()
			return fmt.Errorf("elm327: init command %q failed", cmd)
		}
		if cmd == "ATZ" {
			d.latchVersion(lines)
		}
	}

	d.mu.Lock()
	d.phase = PhaseConnected
	d.mu.Unlock()
	return nil
}

// latchVersion extracts the adapter's announced version from the ATZ reset
// banner (e.g. "ELM327 v1.5") and latches the v1.5 quirk flag.
func (d *Driver) latchVersion(lines []string) {
	for _, line := range lines {
		if !strings.HasPrefix(line, "E") {
			continue
		}
		idx := strings.IndexByte(line, 'v')
		if idx < 0 || idx+1 >= len(line) {
			continue
		}
		rest := strings.TrimSpace(line[idx+1:])
		parts := strings.SplitN(rest, ".", 2)
		major, _ := strconv.Atoi(strings.TrimSpace(parts[0]))
		minor := 0
		if len(parts) > 1 {
			digits := strings.TrimFunc(parts[1], func(r rune) bool {
				return r < '0' || r > '9'
			})
			minor, _ = strconv.Atoi(digits)
		}

		d.mu.Lock()
		d.version = rest
		d.versionMajor = major
		d.versionMinor = minor
		d.isV15Quirk = major == 1 && minor == 5
		d.mu.Unlock()
		return
	}
}

func (d *Driver) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase == PhaseConnected
}

// TransmitRequest runs the per-request handshake: protocol switch on
// bit-width change, ATSH/ATFCSH on request-id change, ATCRA on
// response-id change, v1.5 trailing-zero stripping, then the
// hex-encoded payload line.
func (d *Driver) TransmitRequest(reqID, rspID uint32, length int, data [8]byte) error {
	d.mu.Lock()
	is29Bit := reqID > 0x7FF
	headerChanged := is29Bit != d.last29Bit
	reqChanged := reqID != d.lastReqID
	rspChanged := rspID != d.lastRspID
	quirk := d.isV15Quirk
	is500k := d.bitrateIs500k
	d.mu.Unlock()

	if headerChanged {
		if outcome, _ := d.sendATCommand(protocolCommand(is29Bit, is500k)); outcome != outcomeSuccess {
			return fmt.Errorf("elm327: protocol switch failed")
		}
	}

	if reqChanged {
		if outcome, _ := d.sendATCommand(fmt.Sprintf("ATSH%03X", reqID)); outcome != outcomeSuccess {
			return fmt.Errorf("elm327: ATSH failed")
		}
		if quirk && is29Bit {
			if outcome, _ := d.sendATCommand(fmt.Sprintf("ATCP%02X", (reqID>>24)&0xFF)); outcome != outcomeSuccess {
				return fmt.Errorf("elm327: ATCP failed")
			}
		}
		if outcome, _ := d.sendATCommand(fmt.Sprintf("ATFCSH%03X", reqID)); outcome != outcomeSuccess {
			return fmt.Errorf("elm327: ATFCSH failed")
		}
	}

	if rspChanged {
		if outcome, _ := d.sendATCommand(fmt.Sprintf("ATCRA%03X", rspID)); outcome != outcomeSuccess {
			return fmt.Errorf("elm327: ATCRA failed")
		}
	}

	d.mu.Lock()
	d.last29Bit = is29Bit
	d.lastReqID = reqID
	d.lastRspID = rspID
	d.mu.Unlock()

	payload := data[:length]
	if quirk {
		payload = stripTrailingZeros(payload)
	}

	return d.sendRequestLine(hexEncode(payload))
}

// TransmitFlowControl sends nothing and reports success: the init
// sequence (ATCFC1, ATFCSM1) has the ELM327 generate its own ISO-TP flow
// control, so the flow-control frame the ISO-TP layer emits after each
// first frame is not forwarded to the adapter.
func (d *Driver) TransmitFlowControl(reqID uint32, length int, data [8]byte) error {
	return nil
}

func (d *Driver) SetResponseFilter(enable bool) {
	d.mu.Lock()
	d.filterEnabled = enable
	d.mu.Unlock()
}

// MarkResponseComplete returns the transmit phase to idle once the ISO-TP
// layer has finished consuming the lines this exchange delivered.
func (d *Driver) MarkResponseComplete() {
	d.mu.Lock()
	d.txPhase = TxIdle
	d.mu.Unlock()
}

func protocolCommand(is29Bit, is500k bool) string {
	switch {
	case !is29Bit && is500k:
		return "ATTP6"
	case !is29Bit && !is500k:
		return "ATTP7"
	case is29Bit && is500k:
		return "ATTP8"
	default:
		return "ATTP9"
	}
}

// stripTrailingZeros evades a v1.5 clone firmware bug by trimming trailing
// zero bytes from the outgoing payload.
func stripTrailingZeros(data []byte) []byte {
	end := len(data)
	for end > 0 && data[end-1] == 0 {
		end--
	}
	return data[:end]
}

func hexEncode(data []byte) string {
	var b strings.Builder
	for i, by := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", by)
	}
	return b.String()
}
