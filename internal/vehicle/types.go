// Package vehicle implements the decoder/manager half of the OBD-II core:
// response matching against a per-platform request catalogue, numeric
// extraction of physical quantities, and round-robin scheduling of the
// compiled request list.
package vehicle

import (
	"time"

	"github.com/anodyne74/evtelemetry/internal/transport"
)

// Capability is a bit-flag identifying one physical quantity the core can
// publish. A decoder declares the subset it supports via its capability
// mask; a caller requests a subset via SetRequestMask.
type Capability uint32

const (
	CapHVVoltage Capability = 1 << iota
	CapHVCurrent
	CapHVTempMin
	CapHVTempMax
	CapLVVoltage
	CapLVCurrent
	CapLVTemp
	CapAuxPower
	CapFrontTorque
	CapRearTorque
	CapSpeed
	CapElevation

	capCount = iota
)

// AllCapabilities is the full set of quantities the core knows about.
var AllCapabilities = func() Capability {
	var m Capability
	for i := 0; i < capCount; i++ {
		m |= 1 << i
	}
	return m
}()

// CapabilityNames maps each single-bit Capability to its display name,
// in broker table-slot order.
var CapabilityNames = map[Capability]string{
	CapHVVoltage:   "hv_voltage",
	CapHVCurrent:   "hv_current",
	CapHVTempMin:   "hv_temp_min",
	CapHVTempMax:   "hv_temp_max",
	CapLVVoltage:   "lv_voltage",
	CapLVCurrent:   "lv_current",
	CapLVTemp:      "lv_temp",
	CapAuxPower:    "aux_power",
	CapFrontTorque: "front_torque",
	CapRearTorque:  "rear_torque",
	CapSpeed:       "speed",
	CapElevation:   "elevation",
}

// LowestSet returns the lowest set bit of m, or 0 if m is zero.
func (m Capability) LowestSet() Capability {
	return m & (-m)
}

// Index returns the bit index (0-based) of the lowest set bit, or -1 if m
// is zero. Used to map a single-bit capability to a broker table slot.
func (m Capability) Index() int {
	if m == 0 {
		return -1
	}
	lowest := m.LowestSet()
	idx := 0
	for lowest > 1 {
		lowest >>= 1
		idx++
	}
	return idx
}

// Has reports whether m contains every bit of sub.
func (m Capability) Has(sub Capability) bool {
	return m&sub == sub
}

// RequestDescriptor is an immutable, statically-defined UDS request. Byte 0
// of Data is the ISO-TP PCI (single-frame length), byte 1 is the UDS
// service identifier, and bytes 2..n are sub-function/data-identifier
// bytes. Descriptors never change after construction.
type RequestDescriptor struct {
	// Name is a human-readable label used in logs and tests.
	Name string
	// ReqID is the CAN identifier the request is transmitted on.
	ReqID uint32
	// RspID is the CAN identifier the response is expected on.
	RspID uint32
	// Len is the number of meaningful bytes in Data (<=8).
	Len int
	// Data is the 8-byte request payload; Data[0] is the ISO-TP PCI byte.
	Data [8]byte
}

// SID returns the UDS service identifier byte of the request.
func (r RequestDescriptor) SID() byte {
	return r.Data[1]
}

// DisplayRange bounds a published quantity for gauge/chart scaling.
type DisplayRange struct {
	Min float64
	Max float64
}

// RequestTransmitter is the surface a Decoder uses to issue a request
// and to control response filtering. It is implemented by the vehicle
// Manager, which forwards to the ISO-TP layer and ultimately the
// selected transport.
type RequestTransmitter interface {
	Transmit(d RequestDescriptor) error
	SetResponseFilter(enable bool)
}

// Decoder is the per-platform behaviour assigned to a vehicle module: a
// static request catalogue, a capability mask, and the five function
// bindings (init, evaluate, set_request_mask, rx_data, note_error).
//
// Evaluate and RxData are only ever called from the vehicle Manager's
// single evaluator goroutine (Manager.Evaluate drains the buffered
// response before calling RxData), so implementations need no internal
// locking of their own.
type Decoder interface {
	// Name is the human-readable platform name.
	Name() string
	// Capabilities is the static mask of quantities this decoder supports.
	Capabilities() Capability
	// DisplayRanges returns the five display-range tuples used for
	// gauge/chart scaling: power, aux power, torque, HV current, LV
	// voltage.
	DisplayRanges() (power, aux, torque, hvCurrent, lvVoltage DisplayRange)
	// BitrateIs500k reports the CAN bit-rate this platform's gateway uses.
	BitrateIs500k() bool
	// RequestTimeout is the per-request timeout for this platform.
	RequestTimeout() time.Duration

	// Init performs one-shot setup, e.g. disabling transport-level
	// response filtering when the vehicle gateway already filters.
	Init(t RequestTransmitter) error
	// Evaluate is called once per orchestrator tick. If no request is in
	// flight and the compiled request list is non-empty it transmits the
	// next descriptor and advances the round-robin cursor. If a request is
	// in flight it consumes any pending completion/error/timeout and
	// clears the in-flight marker.
	Evaluate(t RequestTransmitter)
	// SetRequestMask asynchronously queues a capability mask; the next
	// Evaluate call compacts the catalogue to the entries needed to
	// satisfy it and resets the round-robin cursor.
	SetRequestMask(mask Capability)
	// RxData matches a response against the static catalogue via
	// ResolveIndex, applies the matched entry's numeric decoder, and
	// publishes results through the broker. data is the reassembled
	// ISO-TP payload and may exceed 8 bytes for multi-frame responses.
	RxData(rspID uint32, length int, data []byte)
	// NoteError records an error kind. On transport.ErrTimeout it sets a
	// flag the next Evaluate call consumes, clearing the in-flight marker;
	// the Evaluate call after that issues the next catalogue entry.
	NoteError(kind transport.ErrorKind)
}

// Vehicle is a registered, persisted vehicle record, datastore-facing
// and keyed off the EV capability set.
type Vehicle struct {
	VIN          string
	Make         string
	Model        string
	Year         int
	Capabilities Capability
	State        State
	LastUpdated  time.Time
}

// State is the most recently observed reading for every capability the
// broker tracks, kept for persistence and anomaly detection. Fields are
// zero when no value has ever been published for that capability.
type State struct {
	HVVoltage   float64
	HVCurrent   float64
	HVTempMin   float64
	HVTempMax   float64
	LVVoltage   float64
	LVCurrent   float64
	LVTemp      float64
	AuxPower    float64
	FrontTorque float64
	RearTorque  float64
	Speed       float64
	Elevation   float64
	LastUpdated time.Time
}

// Profile holds vehicle-specific thresholds used by anomaly detection:
// battery and torque limits for the platform.
type Profile struct {
	MaxHVVoltage     float64
	MinHVVoltage     float64
	MaxHVTemp        float64
	MaxLVTemp        float64
	MaxFrontTorque   float64
	MaxRearTorque    float64
	CustomThresholds map[Capability]float64
}

// Alert represents a threshold-exceeded condition for a VIN.
type Alert struct {
	Type       string
	Severity   string // "info", "warning", "critical"
	Message    string
	Timestamp  time.Time
	Value      float64
	Threshold  float64
	Capability Capability
}
