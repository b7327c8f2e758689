package decoder

import (
	"time"

	"github.com/anodyne74/evtelemetry/internal/broker"
	"github.com/anodyne74/evtelemetry/internal/transport"
	"github.com/anodyne74/evtelemetry/internal/vehicle"
)

// Leaf decodes a single-motor front-wheel-drive EV platform (e.g.
// Nissan Leaf): no rear traction motor, so CapRearTorque is never in
// its capability mask.
type Leaf struct {
	scheduler
	state  state
	broker *broker.Broker
	capMap capabilityMap
}

var leafFullMask = vehicle.CapHVVoltage | vehicle.CapHVTempMin | vehicle.CapHVTempMax |
	vehicle.CapLVVoltage | vehicle.CapLVCurrent | vehicle.CapLVTemp |
	vehicle.CapAuxPower | vehicle.CapFrontTorque | vehicle.CapSpeed | vehicle.CapElevation

var leafCatalogue = []catalogueEntry{
	{ // index 0 — HV voltage request: raw byte 3 * 0.08 yields volts.
		descriptor: vehicle.RequestDescriptor{
			Name: "hv_pack_voltage", ReqID: 0x797, RspID: 0x79A, Len: 8,
			Data: [8]byte{0x03, 0x22, 0x11, 0x03, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 3, width: 1, scale: 0.08, capability: vehicle.CapHVVoltage},
		},
	},
	{ // index 1
		descriptor: vehicle.RequestDescriptor{
			Name: "hv_pack_temp_max", ReqID: 0x798, RspID: 0x79C, Len: 8,
			Data: [8]byte{0x03, 0x22, 0x11, 0x05, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 3, width: 1, piecewise: hvTempBreakpoints, capability: vehicle.CapHVTempMax},
		},
	},
	{ // index 2
		descriptor: vehicle.RequestDescriptor{
			Name: "hv_pack_temp_min", ReqID: 0x798, RspID: 0x79C, Len: 8,
			Data: [8]byte{0x03, 0x22, 0x11, 0x06, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 3, width: 1, piecewise: hvTempBreakpoints, capability: vehicle.CapHVTempMin},
		},
	},
	{ // index 3
		descriptor: vehicle.RequestDescriptor{
			Name: "lv_battery", ReqID: 0x7A0, RspID: 0x7A4, Len: 8,
			Data: [8]byte{0x03, 0x22, 0x11, 0x40, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 3, width: 1, scale: 0.05, capability: vehicle.CapLVVoltage},
			{offset: 4, width: 1, signed: true, scale: 0.1, bias: -12.8, capability: vehicle.CapLVCurrent},
			{offset: 5, width: 1, piecewise: hvTempBreakpoints, capability: vehicle.CapLVTemp},
		},
	},
	{ // index 4
		descriptor: vehicle.RequestDescriptor{
			Name: "aux_power", ReqID: 0x7A1, RspID: 0x7A5, Len: 8,
			Data: [8]byte{0x03, 0x22, 0x11, 0x50, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 3, width: 2, scale: 1.0, capability: vehicle.CapAuxPower},
		},
	},
	{ // index 5 — traction motor telemetry: a 53-byte multi-frame response.
		descriptor: vehicle.RequestDescriptor{
			Name: "traction", ReqID: 0x79B, RspID: 0x7BB, Len: 8,
			Data: [8]byte{0x02, 0x21, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 5, width: 1, internal: func(s *state, raw float64) { s.gearReverse = raw != 0 }},
			{offset: 10, width: 2, signed: true, scale: 0.1, capability: vehicle.CapFrontTorque, signFlipByGear: true},
			{offset: 20, width: 2, scale: 0.01, capability: vehicle.CapSpeed},
			{offset: 30, width: 2, signed: true, scale: 0.1, capability: vehicle.CapElevation},
		},
	},
}

var leafCapabilityMap = capabilityMap{
	vehicle.CapHVVoltage:   {0},
	vehicle.CapHVTempMax:   {1},
	vehicle.CapHVTempMin:   {2},
	vehicle.CapLVVoltage:   {3},
	vehicle.CapLVCurrent:   {3},
	vehicle.CapLVTemp:      {3},
	vehicle.CapAuxPower:    {4},
	vehicle.CapFrontTorque: {5},
	vehicle.CapSpeed:       {5},
	vehicle.CapElevation:   {5},
}

// NewLeaf constructs a Leaf decoder publishing to br.
func NewLeaf(br *broker.Broker) *Leaf {
	d := &Leaf{
		broker: br,
		capMap: leafCapabilityMap,
	}
	newScheduler(&d.scheduler, leafCatalogue, leafFullMask)
	return d
}

func (d *Leaf) Name() string                     { return "leaf" }
func (d *Leaf) Capabilities() vehicle.Capability { return leafFullMask }
func (d *Leaf) BitrateIs500k() bool              { return false }
func (d *Leaf) RequestTimeout() time.Duration    { return 50 * time.Millisecond }

func (d *Leaf) DisplayRanges() (power, aux, torque, hvCurrent, lvVoltage vehicle.DisplayRange) {
	return vehicle.DisplayRange{Min: 0, Max: 80000},
		vehicle.DisplayRange{Min: 0, Max: 2000},
		vehicle.DisplayRange{Min: -280, Max: 280},
		vehicle.DisplayRange{Min: -200, Max: 200},
		vehicle.DisplayRange{Min: 10, Max: 16}
}

// Init disables transport-level response filtering: the Leaf's gateway
// already filters by response id, so the core doesn't need to as well.
func (d *Leaf) Init(t vehicle.RequestTransmitter) error {
	t.SetResponseFilter(false)
	return nil
}

func (d *Leaf) Evaluate(t vehicle.RequestTransmitter) {
	d.scheduler.evaluate(t, d.capMap)
}

func (d *Leaf) SetRequestMask(mask vehicle.Capability) {
	d.scheduler.setRequestMask(mask)
}

func (d *Leaf) RxData(rspID uint32, length int, data []byte) {
	entry, ok := d.scheduler.resolve(rspID, length, data)
	if !ok {
		return
	}
	applyFields(entry, data, &d.state, d.broker)
}

func (d *Leaf) NoteError(kind transport.ErrorKind) {
	d.scheduler.noteError(kind)
}
