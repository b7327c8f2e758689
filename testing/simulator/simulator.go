// Package simulator implements a fake ELM327 adapter: it speaks the
// same carriage-return-terminated, '>'-prompted line protocol the real
// internal/elm327.Driver drives, so internal/transport.ELMStream can be
// pointed at it in place of real hardware.
package simulator

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Responder holds canned UDS responses keyed by the exact hex request
// line a decoder's catalogue would send (space-separated byte pairs,
// e.g. "03 22 11 03"). A multi-line value simulates a multi-frame
// response: the simulator writes every line before the closing '>',
// without waiting for a flow-control frame from the caller - real
// flow control is a driver-side concern this fake adapter doesn't need
// to reproduce.
type Responder struct {
	mu        sync.Mutex
	responses map[string][]string
}

// NewResponder creates an empty responder; use SetResponse to populate it.
func NewResponder() *Responder {
	return &Responder{responses: make(map[string][]string)}
}

// SetResponse installs the response lines for requestHex.
func (r *Responder) SetResponse(requestHex string, lines ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[normalizeHex(requestHex)] = lines
}

func (r *Responder) lookup(requestHex string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines, ok := r.responses[normalizeHex(requestHex)]
	return lines, ok
}

func normalizeHex(s string) string {
	fields := strings.Fields(strings.ToUpper(s))
	return strings.Join(fields, " ")
}

// Session drives one adapter conversation over a single connection
// (a TCP socket or a serial port), processing AT commands and hex
// request lines line by line until the connection closes.
type Session struct {
	conn io.ReadWriteCloser
	r    *Responder
}

// NewSession wraps conn with r's canned responses.
func NewSession(conn io.ReadWriteCloser, r *Responder) *Session {
	return &Session{conn: conn, r: r}
}

// Run reads CR-terminated lines from the connection and replies to
// each, until a read error (typically the peer closing the connection)
// ends the loop. The NUL the driver writes after each CR arrives at the
// start of the next line and is dropped.
func (s *Session) Run() error {
	reader := bufio.NewReader(s.conn)
	for {
		line, err := reader.ReadString('\r')
		if err != nil {
			return err
		}
		cmd := strings.TrimSpace(strings.Trim(line, "\x00"))
		if cmd == "" {
			continue
		}
		if err := s.handleLine(cmd); err != nil {
			return err
		}
	}
}

func (s *Session) handleLine(cmd string) error {
	upper := strings.ToUpper(cmd)
	switch {
	case upper == "ATZ":
		return s.reply("ELM327 v1.5")
	case strings.HasPrefix(upper, "AT"):
		return s.reply("OK")
	default:
		lines, ok := s.r.lookup(cmd)
		if !ok {
			return s.reply("NO DATA")
		}
		return s.reply(lines...)
	}
}

func (s *Session) reply(lines ...string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintf(s.conn, "%s\r\n", line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(s.conn, ">")
	return err
}

// NewLeafResponder seeds a Responder with canned replies for the Leaf
// decoder's catalogue (internal/vehicle/decoder/leaf.go): every
// single-frame DID as a single-frame response, and the 53-byte traction
// telemetry response as a first frame plus seven consecutive frames,
// exercising the ISO-TP first/consecutive-frame path.
func NewLeafResponder() *Responder {
	r := NewResponder()

	// Requests arrive with trailing zero bytes stripped because the
	// simulator announces itself as a v1.5 adapter.
	r.SetResponse("03 22 11 03", "04 62 11 03 B4") // 180 raw * 0.08 = 14.4V
	r.SetResponse("03 22 11 05", "04 62 11 05 AA") // max temp, raw 170
	r.SetResponse("03 22 11 06", "04 62 11 06 96") // min temp, raw 150
	r.SetResponse("03 22 11 40", "06 62 11 40 FF 79 8C")
	r.SetResponse("03 22 11 50", "05 62 11 50 05 DC") // 1500W aux

	// Traction telemetry: 53 bytes over a first frame and seven
	// consecutive frames. Torque raw 100 (10.0Nm), speed raw 5000
	// (50.0km/h), elevation raw 200 (20.0m).
	r.SetResponse("02 21 01",
		"10 35 61 01 00 00 00 00",
		"21 00 00 00 00 00 64 00",
		"22 00 00 00 00 00 00 00",
		"23 13 88 00 00 00 00 00",
		"24 00 00 00 00 C8 00 00",
		"25 00 00 00 00 00 00 00",
		"26 00 00 00 00 00 00 00",
		"27 00 00 00 00 00",
	)

	return r
}
