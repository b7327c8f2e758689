package decoder

import (
	"time"

	"github.com/anodyne74/evtelemetry/internal/broker"
	"github.com/anodyne74/evtelemetry/internal/transport"
	"github.com/anodyne74/evtelemetry/internal/vehicle"
)

// MEBAwd decodes the VW MEB platform's all-wheel-drive variant: front
// and rear traction motors sharing one gear-position signal, the full
// HV/LV telemetry set, and GPS elevation.
type MEBAwd struct {
	scheduler
	state  state
	broker *broker.Broker
	capMap capabilityMap
}

var mebAwdFullMask = vehicle.AllCapabilities

var mebAwdCatalogue = []catalogueEntry{
	{ // index 0
		descriptor: vehicle.RequestDescriptor{
			Name: "hv_pack_voltage_current", ReqID: 0x7D0, RspID: 0x7D8, Len: 8,
			Data: [8]byte{0x03, 0x22, 0x40, 0x10, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 3, width: 2, scale: 0.01, capability: vehicle.CapHVVoltage},
			{offset: 5, width: 2, signed: true, scale: 0.1, capability: vehicle.CapHVCurrent},
		},
	},
	{ // index 1
		descriptor: vehicle.RequestDescriptor{
			Name: "hv_pack_temp", ReqID: 0x7D0, RspID: 0x7D8, Len: 8,
			Data: [8]byte{0x03, 0x22, 0x40, 0x20, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 3, width: 1, piecewise: hvTempBreakpoints, capability: vehicle.CapHVTempMax},
			{offset: 4, width: 1, piecewise: hvTempBreakpoints, capability: vehicle.CapHVTempMin},
		},
	},
	{ // index 2
		descriptor: vehicle.RequestDescriptor{
			Name: "lv_battery", ReqID: 0x7D2, RspID: 0x7DA, Len: 8,
			Data: [8]byte{0x03, 0x22, 0x40, 0x40, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 3, width: 1, scale: 0.05, capability: vehicle.CapLVVoltage},
			{offset: 4, width: 1, signed: true, scale: 0.1, bias: -12.8, capability: vehicle.CapLVCurrent},
			{offset: 5, width: 1, piecewise: hvTempBreakpoints, capability: vehicle.CapLVTemp},
		},
	},
	{ // index 3
		descriptor: vehicle.RequestDescriptor{
			Name: "aux_power", ReqID: 0x7D2, RspID: 0x7DA, Len: 8,
			Data: [8]byte{0x03, 0x22, 0x40, 0x50, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 3, width: 2, scale: 1.0, capability: vehicle.CapAuxPower},
		},
	},
	{ // index 4
		descriptor: vehicle.RequestDescriptor{
			Name: "gear_position", ReqID: 0x7D0, RspID: 0x7D8, Len: 8,
			Data: [8]byte{0x03, 0x22, 0x40, 0x60, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 3, width: 1, internal: func(s *state, raw float64) { s.gearReverse = raw == 2 }},
		},
	},
	{ // index 5
		descriptor: vehicle.RequestDescriptor{
			Name: "front_traction", ReqID: 0x7D1, RspID: 0x7D9, Len: 8,
			Data: [8]byte{0x02, 0x21, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 10, width: 2, signed: true, scale: 0.1, capability: vehicle.CapFrontTorque, signFlipByGear: true},
			{offset: 20, width: 2, scale: 0.01, capability: vehicle.CapSpeed},
		},
	},
	{ // index 6
		descriptor: vehicle.RequestDescriptor{
			Name: "rear_traction", ReqID: 0x7D1, RspID: 0x7D9, Len: 8,
			Data: [8]byte{0x02, 0x21, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 10, width: 2, signed: true, scale: 0.1, capability: vehicle.CapRearTorque, signFlipByGear: true},
		},
	},
	{ // index 7
		descriptor: vehicle.RequestDescriptor{
			Name: "gps_elevation", ReqID: 0x7D3, RspID: 0x7DB, Len: 8,
			Data: [8]byte{0x03, 0x22, 0x40, 0x70, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 3, width: 2, signed: true, scale: 0.1, capability: vehicle.CapElevation},
		},
	},
}

var mebAwdCapabilityMap = capabilityMap{
	vehicle.CapHVVoltage:   {0},
	vehicle.CapHVCurrent:   {0},
	vehicle.CapHVTempMax:   {1},
	vehicle.CapHVTempMin:   {1},
	vehicle.CapLVVoltage:   {2},
	vehicle.CapLVCurrent:   {2},
	vehicle.CapLVTemp:      {2},
	vehicle.CapAuxPower:    {3},
	vehicle.CapFrontTorque: {4, 5},
	vehicle.CapRearTorque:  {4, 6},
	vehicle.CapSpeed:       {5},
	vehicle.CapElevation:   {7},
}

// NewMEBAwd constructs a MEBAwd decoder publishing to br.
func NewMEBAwd(br *broker.Broker) *MEBAwd {
	d := &MEBAwd{
		broker: br,
		capMap: mebAwdCapabilityMap,
	}
	newScheduler(&d.scheduler, mebAwdCatalogue, mebAwdFullMask)
	return d
}

func (d *MEBAwd) Name() string                     { return "meb-awd" }
func (d *MEBAwd) Capabilities() vehicle.Capability { return mebAwdFullMask }
func (d *MEBAwd) BitrateIs500k() bool              { return true }
func (d *MEBAwd) RequestTimeout() time.Duration    { return 40 * time.Millisecond }

func (d *MEBAwd) DisplayRanges() (power, aux, torque, hvCurrent, lvVoltage vehicle.DisplayRange) {
	return vehicle.DisplayRange{Min: 0, Max: 200000},
		vehicle.DisplayRange{Min: 0, Max: 2500},
		vehicle.DisplayRange{Min: -450, Max: 450},
		vehicle.DisplayRange{Min: -400, Max: 400},
		vehicle.DisplayRange{Min: 10, Max: 16}
}

func (d *MEBAwd) Init(t vehicle.RequestTransmitter) error {
	t.SetResponseFilter(false)
	return nil
}

func (d *MEBAwd) Evaluate(t vehicle.RequestTransmitter) {
	d.scheduler.evaluate(t, d.capMap)
}

func (d *MEBAwd) SetRequestMask(mask vehicle.Capability) {
	d.scheduler.setRequestMask(mask)
}

func (d *MEBAwd) RxData(rspID uint32, length int, data []byte) {
	entry, ok := d.scheduler.resolve(rspID, length, data)
	if !ok {
		return
	}
	applyFields(entry, data, &d.state, d.broker)
}

func (d *MEBAwd) NoteError(kind transport.ErrorKind) {
	d.scheduler.noteError(kind)
}
