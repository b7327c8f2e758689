// Package isotp implements a simplified ISO 15765-2 reassembly layer: it
// fingerprints, reassembles and dispatches single-, first- and
// consecutive-frame UDS responses while enforcing at-most-one
// outstanding request, and forwards completed payloads to the vehicle
// layer above it.
package isotp

import (
	"sync"

	"github.com/anodyne74/evtelemetry/internal/transport"
)

const (
	pciTypeSingleFrame      = 0x0
	pciTypeFirstFrame       = 0x1
	pciTypeConsecutiveFrame = 0x2

	// rejectSequence is latched after a single frame (or on reassembly
	// failure) so that no legal 4-bit consecutive-frame sequence number
	// can ever match it again: a real sequence number is always 4 bits
	// (0-15), a range 0xFF can never fall inside.
	rejectSequence = 0xFF

	// maxResponseLen is sized generously above the largest UDS response
	// any supported decoder catalogue uses.
	maxResponseLen = 4096
)

// Sink is the upward contract the CAN manager delivers completed
// payloads and forwarded errors through (the vehicle manager). Declared
// structurally here, rather than importing package vehicle, so isotp
// has no dependency on vehicle and no import cycle can form.
type Sink interface {
	RxData(rspID uint32, length int, data []byte)
	NoteError(kind transport.ErrorKind)
}

// Manager is the CAN manager: one reassembly state machine sitting
// between a transport.Backend and a Sink.
type Manager struct {
	backend transport.Backend
	sink    Sink

	mu sync.Mutex

	reqID, rspID    uint32
	expectedTotal   int
	assembled       int
	nextSeq         byte
	buf             [maxResponseLen]byte
	flowControlSent bool
}

// NewManager binds a CAN manager to the given upward sink. The backend
// it drives is supplied afterward via SetBackend: a back-end's own
// construction needs this manager as its transport.Sink, so the two
// are necessarily built in two phases.
func NewManager(sink Sink) *Manager {
	return &Manager{sink: sink, nextSeq: rejectSequence}
}

// SetBackend binds the transport back-end this manager drives. Must be
// called before Transmit; safe to call once, before any traffic flows.
func (m *Manager) SetBackend(backend transport.Backend) {
	m.mu.Lock()
	m.backend = backend
	m.mu.Unlock()
}

// Transmit records the (reqID, rspID) pair as the current expectation
// and forwards the request to the transport.
func (m *Manager) Transmit(reqID, rspID uint32, length int, payload [8]byte) error {
	m.mu.Lock()
	m.reqID = reqID
	m.rspID = rspID
	m.expectedTotal = 0
	m.assembled = 0
	m.nextSeq = rejectSequence
	m.flowControlSent = false
	m.mu.Unlock()

	return m.backend.TransmitRequest(reqID, rspID, length, payload)
}

// SetResponseFilter forwards to the transport.
func (m *Manager) SetResponseFilter(enable bool) {
	m.backend.SetResponseFilter(enable)
}

// Receive is the inbound frame callback (may run from an interrupt
// context on the on-chip back-end). It implements the
// single/first/consecutive reassembly rules.
func (m *Manager) Receive(rspID uint32, length int, frame [8]byte) {
	m.mu.Lock()

	if rspID != m.rspID {
		m.mu.Unlock()
		return
	}
	if length < 1 {
		m.mu.Unlock()
		return
	}

	pciType := frame[0] >> 4

	switch pciType {
	case pciTypeSingleFrame:
		n := int(frame[0] & 0x0F)
		if n > length-1 {
			n = length - 1
		}
		if n < 0 {
			n = 0
		}
		out := make([]byte, n)
		copy(out, frame[1:1+n])
		m.nextSeq = rejectSequence
		m.mu.Unlock()

		m.backend.MarkResponseComplete()
		m.sink.RxData(rspID, n, out)

	case pciTypeFirstFrame:
		if length < 2 {
			m.invalidateLocked()
			m.mu.Unlock()
			return
		}
		total := (int(frame[0]&0x0F) << 8) | int(frame[1])
		if total > maxResponseLen {
			total = maxResponseLen
		}
		m.expectedTotal = total
		m.assembled = 0

		n := length - 2
		if n > total {
			n = total
		}
		if n > 0 {
			copy(m.buf[0:n], frame[2:2+n])
			m.assembled = n
		}
		m.nextSeq = 1

		reqID := m.reqID
		sendFC := reqID != 0 && !m.flowControlSent
		if sendFC {
			m.flowControlSent = true
		}
		done := m.assembled >= m.expectedTotal
		var delivered []byte
		if done {
			delivered = make([]byte, m.assembled)
			copy(delivered, m.buf[:m.assembled])
		}
		m.mu.Unlock()

		if sendFC {
			flowControl := [8]byte{0x30, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
			if err := m.backend.TransmitFlowControl(reqID, 8, flowControl); err != nil {
				m.sink.NoteError(transport.ErrLinkTransient)
			}
		}
		if done {
			m.backend.MarkResponseComplete()
			m.sink.RxData(rspID, len(delivered), delivered)
		}

	case pciTypeConsecutiveFrame:
		seq := frame[0] & 0x0F
		if seq != m.nextSeq&0x0F || m.nextSeq == rejectSequence {
			m.mu.Unlock()
			return
		}

		remaining := m.expectedTotal - m.assembled
		n := length - 1
		if n > remaining {
			n = remaining
		}
		if n > 0 {
			copy(m.buf[m.assembled:m.assembled+n], frame[1:1+n])
			m.assembled += n
		}
		m.nextSeq = (m.nextSeq + 1) % 16

		done := m.assembled >= m.expectedTotal
		var delivered []byte
		if done {
			delivered = make([]byte, m.assembled)
			copy(delivered, m.buf[:m.assembled])
			m.nextSeq = rejectSequence
		}
		m.mu.Unlock()

		if done {
			m.backend.MarkResponseComplete()
			m.sink.RxData(rspID, len(delivered), delivered)
		}

	default:
		// Any other PCI nibble is dropped.
	}
}

// InterfaceError forwards a transport error up to the sink.
func (m *Manager) InterfaceError(kind transport.ErrorKind) {
	m.sink.NoteError(kind)
}

func (m *Manager) invalidateLocked() {
	m.expectedTotal = 0
	m.assembled = 0
	m.nextSeq = rejectSequence
}
