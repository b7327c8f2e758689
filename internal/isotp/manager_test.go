package isotp

import (
	"testing"
	"time"

	"github.com/anodyne74/evtelemetry/internal/transport"
)

type fakeBackend struct {
	sent        []fakeRequest
	flowControl []fakeRequest
	completed   int
}

type fakeRequest struct {
	reqID, rspID uint32
	length       int
	data         [8]byte
}

func (b *fakeBackend) Init(role transport.Role, requestTimeout time.Duration, bitrateIs500k bool) error {
	return nil
}
func (b *fakeBackend) Connected() bool { return true }
func (b *fakeBackend) TransmitRequest(reqID, rspID uint32, length int, data [8]byte) error {
	b.sent = append(b.sent, fakeRequest{reqID, rspID, length, data})
	return nil
}
func (b *fakeBackend) TransmitFlowControl(reqID uint32, length int, data [8]byte) error {
	b.flowControl = append(b.flowControl, fakeRequest{reqID: reqID, length: length, data: data})
	return nil
}
func (b *fakeBackend) SetResponseFilter(enable bool) {}
func (b *fakeBackend) MarkResponseComplete()         { b.completed++ }

type fakeSink struct {
	rspID  uint32
	length int
	data   []byte
	errs   []transport.ErrorKind
}

func (s *fakeSink) RxData(rspID uint32, length int, data []byte) {
	s.rspID, s.length, s.data = rspID, length, append([]byte{}, data...)
}
func (s *fakeSink) NoteError(kind transport.ErrorKind) {
	s.errs = append(s.errs, kind)
}

func TestManagerSingleFrame(t *testing.T) {
	sink := &fakeSink{}
	mgr := NewManager(sink)
	backend := &fakeBackend{}
	mgr.SetBackend(backend)

	mgr.Transmit(0x7E0, 0x7E8, 3, [8]byte{0x03, 0x22, 0x11})
	mgr.Receive(0x7E8, 5, [8]byte{0x03, 0x62, 0x11, 0x03, 0xC8})

	if backend.completed != 1 {
		t.Fatalf("expected MarkResponseComplete once, got %d", backend.completed)
	}
	if sink.length != 3 {
		t.Fatalf("expected 3 bytes delivered, got %d", sink.length)
	}
	want := []byte{0x62, 0x11, 0x03}
	for i, b := range want {
		if sink.data[i] != b {
			t.Errorf("byte %d: expected %02X, got %02X", i, b, sink.data[i])
		}
	}
}

func TestManagerMultiFrame(t *testing.T) {
	sink := &fakeSink{}
	mgr := NewManager(sink)
	backend := &fakeBackend{}
	mgr.SetBackend(backend)

	mgr.Transmit(0x7E0, 0x7E8, 2, [8]byte{0x02, 0x21})

	// First frame: total length 10, 6 payload bytes follow the 2-byte PCI.
	mgr.Receive(0x7E8, 8, [8]byte{0x10, 0x0A, 0x61, 0x01, 0x00, 0x00, 0x00, 0x00})
	if len(backend.flowControl) != 1 {
		t.Fatalf("expected one flow-control frame sent, got %d", len(backend.flowControl))
	}
	if sink.data != nil {
		t.Fatal("expected no delivery before reassembly completes")
	}

	// Consecutive frame carrying the remaining 4 bytes.
	mgr.Receive(0x7E8, 5, [8]byte{0x21, 0x00, 0x32, 0x00, 0x64})

	if backend.completed != 1 {
		t.Fatalf("expected MarkResponseComplete once, got %d", backend.completed)
	}
	if sink.length != 10 {
		t.Fatalf("expected 10 reassembled bytes, got %d", sink.length)
	}
}

func TestManagerReassembles53ByteResponse(t *testing.T) {
	sink := &fakeSink{}
	mgr := NewManager(sink)
	backend := &fakeBackend{}
	mgr.SetBackend(backend)

	mgr.Transmit(0x79B, 0x7BB, 8, [8]byte{0x02, 0x21, 0x01})

	// First frame declares 53 bytes and carries the first six.
	mgr.Receive(0x7BB, 8, [8]byte{0x10, 0x35, 0x61, 0x01, 0x00, 0x00, 0x00, 0x00})

	if len(backend.flowControl) != 1 {
		t.Fatalf("expected one flow-control frame, got %d", len(backend.flowControl))
	}
	fc := backend.flowControl[0]
	if fc.reqID != 0x79B {
		t.Errorf("expected flow control sent to 0x79B, got %03X", fc.reqID)
	}
	wantFC := [8]byte{0x30, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	if fc.length != 8 || fc.data != wantFC {
		t.Errorf("expected flow-control frame 30 00 00 00 00 00 00 00, got % X", fc.data)
	}

	// Consecutive frames 1..7; the manager truncates the final one to
	// the declared total.
	for seq := byte(1); seq <= 7; seq++ {
		if sink.data != nil {
			t.Fatalf("delivery happened before sequence %d", seq)
		}
		mgr.Receive(0x7BB, 8, [8]byte{0x20 | seq})
	}

	if backend.completed != 1 {
		t.Fatalf("expected MarkResponseComplete once, got %d", backend.completed)
	}
	if sink.length != 53 {
		t.Fatalf("expected 53 reassembled bytes, got %d", sink.length)
	}
	if len(backend.flowControl) != 1 {
		t.Errorf("expected flow control sent only once per first frame, got %d", len(backend.flowControl))
	}
	if sink.data[0] != 0x61 || sink.data[1] != 0x01 {
		t.Errorf("expected payload to start 61 01, got %02X %02X", sink.data[0], sink.data[1])
	}
}

func TestManagerRejectsWrongResponseID(t *testing.T) {
	sink := &fakeSink{}
	mgr := NewManager(sink)
	backend := &fakeBackend{}
	mgr.SetBackend(backend)

	mgr.Transmit(0x7E0, 0x7E8, 3, [8]byte{0x03, 0x22, 0x11})
	mgr.Receive(0x7DF, 5, [8]byte{0x03, 0x62, 0x11, 0x03, 0xC8})

	if backend.completed != 0 {
		t.Error("expected no completion for a frame on the wrong response ID")
	}
	if sink.data != nil {
		t.Error("expected no delivery for a frame on the wrong response ID")
	}
}

func TestManagerRejectsOutOfSequenceConsecutiveFrame(t *testing.T) {
	sink := &fakeSink{}
	mgr := NewManager(sink)
	backend := &fakeBackend{}
	mgr.SetBackend(backend)

	mgr.Transmit(0x7E0, 0x7E8, 2, [8]byte{0x02, 0x21})
	mgr.Receive(0x7E8, 8, [8]byte{0x10, 0x0A, 0x61, 0x01, 0x00, 0x00, 0x00, 0x00})

	// Sequence number 2 is out of order; the expected next is 1.
	mgr.Receive(0x7E8, 5, [8]byte{0x22, 0x00, 0x32, 0x00, 0x64})

	if backend.completed != 0 {
		t.Error("expected reassembly to remain incomplete on out-of-sequence consecutive frame")
	}
}
