package vehicle

import (
	"fmt"
	"sync"

	"github.com/anodyne74/evtelemetry/internal/isotp"
	"github.com/anodyne74/evtelemetry/internal/transport"
)

// link is the subset of *isotp.Manager the vehicle Manager drives a
// Decoder's requests through. Declared structurally so this package
// never imports isotp's concrete type into its public surface.
type link interface {
	Transmit(reqID, rspID uint32, length int, payload [8]byte) error
	SetResponseFilter(enable bool)
}

// Manager owns the active decoder, a single-entry "response ready"
// slot, and the pending-mask flag, and drives the decoder's
// five-function binding each evaluator tick. Distinct from Registry,
// which is the fleet-bookkeeping layer.
type Manager struct {
	decoder Decoder
	link    link
	backend transport.Backend

	mu          sync.Mutex
	slotFull    bool
	slotRspID   uint32
	slotLen     int
	slotData    []byte
	maskPending bool
	pendingMask Capability
}

// NewManager constructs an uninitialised vehicle manager. Call Init with
// a decoder registry to select a decoder and bring up the transport.
func NewManager() *Manager {
	return &Manager{}
}

// BackendFactory builds a transport back-end given the ISO-TP sink it
// must deliver frames to. Back-ends and the ISO-TP manager sitting in
// front of them need each other to exist before either can be fully
// constructed, so Init takes a factory rather than a ready Backend.
type BackendFactory func(sink transport.Sink) (transport.Backend, error)

// Init finds decoder by name in the registry, builds the ISO-TP manager
// and its back-end in the two phases BackendFactory requires, brings
// the transport up at the decoder's bit-rate and timeout, and calls
// decoder.Init.
func (m *Manager) Init(decoders map[string]Decoder, vehicleName string, newBackend BackendFactory) error {
	decoder, ok := decoders[vehicleName]
	if !ok {
		return fmt.Errorf("vehicle: unknown vehicle %q", vehicleName)
	}

	link := isotp.NewManager(m)
	backend, err := newBackend(link)
	if err != nil {
		return fmt.Errorf("vehicle: building transport: %w", err)
	}
	link.SetBackend(backend)

	// Bind the decoder before bringing the transport up: an init-time
	// timeout propagates through NoteError, which must already have a
	// decoder to land on.
	m.decoder = decoder
	m.backend = backend
	m.link = link

	if err := backend.Init(transport.RoleTester, decoder.RequestTimeout(), decoder.BitrateIs500k()); err != nil {
		return fmt.Errorf("vehicle: transport init failed: %w", err)
	}

	return decoder.Init(m)
}

// Transmit implements RequestTransmitter by forwarding to the ISO-TP
// layer wired up in Init.
func (m *Manager) Transmit(d RequestDescriptor) error {
	return m.link.Transmit(d.ReqID, d.RspID, d.Len, d.Data)
}

// SetResponseFilter implements RequestTransmitter.
func (m *Manager) SetResponseFilter(enable bool) {
	m.link.SetResponseFilter(enable)
}

// RxData implements isotp.Sink: copy (rspID, length, data) into the
// single-entry slot iff it is empty; drop otherwise. May run from an
// interrupt-adjacent context on the on-chip back-end.
func (m *Manager) RxData(rspID uint32, length int, data []byte) {
	m.mu.Lock()
	if !m.slotFull {
		m.slotRspID = rspID
		m.slotLen = length
		m.slotData = append(m.slotData[:0], data...)
		m.slotFull = true
	}
	m.mu.Unlock()
}

// NoteError implements isotp.Sink by forwarding to the decoder.
func (m *Manager) NoteError(kind transport.ErrorKind) {
	m.decoder.NoteError(kind)
}

// SetRequestMask queues an asynchronous capability-mask update, applied
// by the decoder on its next Evaluate.
func (m *Manager) SetRequestMask(mask Capability) {
	m.mu.Lock()
	m.pendingMask = mask
	m.maskPending = true
	m.mu.Unlock()
}

// Evaluate is the periodic evaluator tick: deliver any buffered
// response, apply any pending mask update, then let the decoder drive
// its own round-robin request schedule.
func (m *Manager) Evaluate() {
	m.mu.Lock()
	rspID, length := m.slotRspID, m.slotLen
	var data []byte
	full := m.slotFull
	if full {
		// Copy out of the slot rather than aliasing it: RxData reuses
		// slotData's backing array on the next delivery, and the decoder
		// call below runs unlocked.
		data = append([]byte(nil), m.slotData...)
		m.slotFull = false
	}
	mask := m.pendingMask
	maskPending := m.maskPending
	m.maskPending = false
	m.mu.Unlock()

	if full {
		m.decoder.RxData(rspID, length, data)
	}
	if maskPending {
		m.decoder.SetRequestMask(mask)
	}
	m.decoder.Evaluate(m)
}

// Decoder returns the active decoder, or nil before Init.
func (m *Manager) Decoder() Decoder {
	return m.decoder
}

// Connected reports whether the underlying transport link is up.
func (m *Manager) Connected() bool {
	if m.backend == nil {
		return false
	}
	return m.backend.Connected()
}
