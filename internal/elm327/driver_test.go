package elm327

import (
	"strings"
	"testing"
	"time"

	"github.com/anodyne74/evtelemetry/internal/transport"
)

// scriptedLink is a lineWriter whose replies are fed straight back into
// the driver's parser, standing in for a real adapter on the far end of
// a stream.
type scriptedLink struct {
	d     *Driver
	lines []string
	reply func(line string) string
}

func (l *scriptedLink) WriteLine(line string) error {
	l.lines = append(l.lines, line)
	if r := l.reply(line); r != "" {
		l.d.Feed([]byte(r))
	}
	return nil
}

type recordingSink struct {
	frames []struct {
		rspID  uint32
		length int
		data   [8]byte
	}
	errs []transport.ErrorKind
}

func (s *recordingSink) Receive(rspID uint32, length int, frame [8]byte) {
	s.frames = append(s.frames, struct {
		rspID  uint32
		length int
		data   [8]byte
	}{rspID, length, frame})
}
func (s *recordingSink) InterfaceError(kind transport.ErrorKind) {
	s.errs = append(s.errs, kind)
}

// v15Adapter mimics a v1.5 clone: reset banner on ATZ, OK for every
// other AT command, and per-request canned hex lines.
func v15Adapter(responses map[string]string) func(string) string {
	return func(line string) string {
		switch {
		case line == "ATZ":
			return "ELM327 v1.5\r>"
		case strings.HasPrefix(line, "AT"):
			return "OK\r>"
		default:
			if r, ok := responses[line]; ok {
				return r
			}
			return "NO DATA\r>"
		}
	}
}

func newTestDriver(t *testing.T, responses map[string]string) (*Driver, *scriptedLink, *recordingSink) {
	t.Helper()
	link := &scriptedLink{reply: v15Adapter(responses)}
	sink := &recordingSink{}
	d := NewDriver(link, sink)
	link.d = d
	if err := d.Init(transport.RoleTester, 50*time.Millisecond, false); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return d, link, sink
}

func TestInitSendsCanonicalCommandSequence(t *testing.T) {
	d, link, _ := newTestDriver(t, nil)

	if len(link.lines) != len(initCommands) {
		t.Fatalf("expected %d init commands, got %d: %v", len(initCommands), len(link.lines), link.lines)
	}
	for i, cmd := range initCommands {
		if link.lines[i] != cmd {
			t.Errorf("init command %d: expected %q, got %q", i, cmd, link.lines[i])
		}
	}
	if !d.Connected() {
		t.Error("expected driver connected after init")
	}
}

func TestInitLatchesVersionAndQuirk(t *testing.T) {
	d, _, _ := newTestDriver(t, nil)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.versionMajor != 1 || d.versionMinor != 5 {
		t.Errorf("expected version 1.5, got %d.%d", d.versionMajor, d.versionMinor)
	}
	if !d.isV15Quirk {
		t.Error("expected the v1.5 quirk flag latched")
	}
}

func TestRequestHandshakeAndQuirkStrip(t *testing.T) {
	responses := map[string]string{
		"03 22 11 03": "04 62 11 03 B4\r>",
	}
	d, link, sink := newTestDriver(t, responses)

	start := len(link.lines)
	data := [8]byte{0x03, 0x22, 0x11, 0x03} // trailing zeros stripped by the quirk
	if err := d.TransmitRequest(0x797, 0x79A, 8, data); err != nil {
		t.Fatalf("TransmitRequest failed: %v", err)
	}

	want := []string{"ATSH797", "ATFCSH797", "ATCRA79A", "03 22 11 03"}
	got := link.lines[start:]
	if len(got) != len(want) {
		t.Fatalf("expected lines %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	if len(sink.frames) != 1 {
		t.Fatalf("expected one frame forwarded, got %d", len(sink.frames))
	}
	if sink.frames[0].rspID != 0x79A || sink.frames[0].length != 5 {
		t.Errorf("expected 5 bytes on 0x79A, got %d on %03X", sink.frames[0].length, sink.frames[0].rspID)
	}
}

func TestNoRedundantCommandsBetweenIdenticalRequests(t *testing.T) {
	responses := map[string]string{
		"03 22 11 03": "04 62 11 03 B4\r>",
	}
	d, link, _ := newTestDriver(t, responses)

	data := [8]byte{0x03, 0x22, 0x11, 0x03}
	if err := d.TransmitRequest(0x797, 0x79A, 8, data); err != nil {
		t.Fatalf("first TransmitRequest failed: %v", err)
	}

	start := len(link.lines)
	if err := d.TransmitRequest(0x797, 0x79A, 8, data); err != nil {
		t.Fatalf("second TransmitRequest failed: %v", err)
	}

	got := link.lines[start:]
	if len(got) != 1 || got[0] != "03 22 11 03" {
		t.Fatalf("expected only the payload line between identical requests, got %v", got)
	}
}

func TestReconnectResendsInitAndHeaders(t *testing.T) {
	responses := map[string]string{
		"03 22 11 03": "04 62 11 03 B4\r>",
	}
	d, link, _ := newTestDriver(t, responses)

	data := [8]byte{0x03, 0x22, 0x11, 0x03}
	if err := d.TransmitRequest(0x797, 0x79A, 8, data); err != nil {
		t.Fatalf("TransmitRequest failed: %v", err)
	}

	// Link drop and re-establishment: the init sequence reruns and the
	// cached ids are gone, so ATSH/ATCRA must reappear.
	d.SetConnected(false)
	if d.Connected() {
		t.Fatal("expected driver disconnected after link loss")
	}

	start := len(link.lines)
	if err := d.Init(transport.RoleTester, 50*time.Millisecond, false); err != nil {
		t.Fatalf("re-init failed: %v", err)
	}
	if got := link.lines[start : start+len(initCommands)]; got[0] != "ATZ" {
		t.Fatalf("expected the init sequence re-sent, got %v", got)
	}

	start = len(link.lines)
	if err := d.TransmitRequest(0x797, 0x79A, 8, data); err != nil {
		t.Fatalf("TransmitRequest after reconnect failed: %v", err)
	}
	rejoined := strings.Join(link.lines[start:], ",")
	if !strings.Contains(rejoined, "ATSH797") || !strings.Contains(rejoined, "ATCRA79A") {
		t.Errorf("expected ATSH/ATCRA re-emitted after reconnect, got %v", link.lines[start:])
	}
}

func TestAdapterNoDataFailsRequest(t *testing.T) {
	d, _, _ := newTestDriver(t, nil) // every request answers NO DATA

	data := [8]byte{0x03, 0x22, 0x11, 0x03}
	if err := d.TransmitRequest(0x797, 0x79A, 8, data); err == nil {
		t.Fatal("expected an error for a NO DATA response")
	}
	if !d.Connected() {
		t.Error("expected link to stay connected through an adapter protocol error")
	}
}

func TestMultiLineResponseForwardsEachFrameInOrder(t *testing.T) {
	responses := map[string]string{
		"02 21 01": "10 0A 61 01 00 00 00 00\r21 00 32 00 64 00 00 00\r>",
	}
	d, _, sink := newTestDriver(t, responses)

	data := [8]byte{0x02, 0x21, 0x01}
	if err := d.TransmitRequest(0x79B, 0x7BB, 8, data); err != nil {
		t.Fatalf("TransmitRequest failed: %v", err)
	}

	if len(sink.frames) != 2 {
		t.Fatalf("expected two frames forwarded, got %d", len(sink.frames))
	}
	if sink.frames[0].data[0] != 0x10 || sink.frames[1].data[0] != 0x21 {
		t.Errorf("expected first/consecutive frame order, got %02X then %02X",
			sink.frames[0].data[0], sink.frames[1].data[0])
	}
	for _, f := range sink.frames {
		if f.rspID != 0x7BB {
			t.Errorf("expected frames tagged with response id 0x7BB, got %03X", f.rspID)
		}
	}
}

func TestExchangeTimeoutSignalsSink(t *testing.T) {
	link := &scriptedLink{reply: func(string) string { return "" }} // adapter never answers
	sink := &recordingSink{}
	d := NewDriver(link, sink)
	link.d = d

	err := d.Init(transport.RoleTester, time.Millisecond, false)
	if err == nil {
		t.Fatal("expected init to fail when the adapter never answers")
	}
	if len(sink.errs) == 0 || sink.errs[0] != transport.ErrTimeout {
		t.Fatalf("expected a timeout error signalled, got %v", sink.errs)
	}
	if d.Connected() {
		t.Error("expected driver disconnected after init failure")
	}
}
