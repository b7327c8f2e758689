package decoder

import (
	"time"

	"github.com/anodyne74/evtelemetry/internal/broker"
	"github.com/anodyne74/evtelemetry/internal/transport"
	"github.com/anodyne74/evtelemetry/internal/vehicle"
)

// MEBRwd decodes the VW MEB platform's rear-wheel-drive variant: a
// single rear traction motor, 500k-bitrate gateway, and HV current
// telemetry the Leaf's catalogue doesn't expose.
type MEBRwd struct {
	scheduler
	state  state
	broker *broker.Broker
	capMap capabilityMap
}

var mebRwdFullMask = vehicle.CapHVVoltage | vehicle.CapHVCurrent | vehicle.CapHVTempMin | vehicle.CapHVTempMax |
	vehicle.CapLVVoltage | vehicle.CapLVCurrent | vehicle.CapLVTemp |
	vehicle.CapAuxPower | vehicle.CapRearTorque | vehicle.CapSpeed | vehicle.CapElevation

var mebRwdCatalogue = []catalogueEntry{
	{ // index 0
		descriptor: vehicle.RequestDescriptor{
			Name: "hv_pack_voltage_current", ReqID: 0x7E0, RspID: 0x7E8, Len: 8,
			Data: [8]byte{0x03, 0x22, 0x30, 0x10, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 3, width: 2, scale: 0.01, capability: vehicle.CapHVVoltage},
			{offset: 5, width: 2, signed: true, scale: 0.1, capability: vehicle.CapHVCurrent},
		},
	},
	{ // index 1
		descriptor: vehicle.RequestDescriptor{
			Name: "hv_pack_temp", ReqID: 0x7E0, RspID: 0x7E8, Len: 8,
			Data: [8]byte{0x03, 0x22, 0x30, 0x20, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 3, width: 1, piecewise: hvTempBreakpoints, capability: vehicle.CapHVTempMax},
			{offset: 4, width: 1, piecewise: hvTempBreakpoints, capability: vehicle.CapHVTempMin},
		},
	},
	{ // index 2
		descriptor: vehicle.RequestDescriptor{
			Name: "lv_battery", ReqID: 0x7E2, RspID: 0x7EA, Len: 8,
			Data: [8]byte{0x03, 0x22, 0x30, 0x40, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 3, width: 1, scale: 0.05, capability: vehicle.CapLVVoltage},
			{offset: 4, width: 1, signed: true, scale: 0.1, bias: -12.8, capability: vehicle.CapLVCurrent},
			{offset: 5, width: 1, piecewise: hvTempBreakpoints, capability: vehicle.CapLVTemp},
		},
	},
	{ // index 3
		descriptor: vehicle.RequestDescriptor{
			Name: "aux_power", ReqID: 0x7E2, RspID: 0x7EA, Len: 8,
			Data: [8]byte{0x03, 0x22, 0x30, 0x50, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 3, width: 2, scale: 1.0, capability: vehicle.CapAuxPower},
		},
	},
	{ // index 4
		descriptor: vehicle.RequestDescriptor{
			Name: "gear_position", ReqID: 0x7E0, RspID: 0x7E8, Len: 8,
			Data: [8]byte{0x03, 0x22, 0x30, 0x60, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 3, width: 1, internal: func(s *state, raw float64) { s.gearReverse = raw == 2 }},
		},
	},
	{ // index 5
		descriptor: vehicle.RequestDescriptor{
			Name: "rear_traction", ReqID: 0x7E1, RspID: 0x7E9, Len: 8,
			Data: [8]byte{0x02, 0x21, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
		fields: []fieldDecode{
			{offset: 10, width: 2, signed: true, scale: 0.1, capability: vehicle.CapRearTorque, signFlipByGear: true},
			{offset: 20, width: 2, scale: 0.01, capability: vehicle.CapSpeed},
			{offset: 30, width: 2, signed: true, scale: 0.1, capability: vehicle.CapElevation},
		},
	},
}

var mebRwdCapabilityMap = capabilityMap{
	vehicle.CapHVVoltage:  {0},
	vehicle.CapHVCurrent:  {0},
	vehicle.CapHVTempMax:  {1},
	vehicle.CapHVTempMin:  {1},
	vehicle.CapLVVoltage:  {2},
	vehicle.CapLVCurrent:  {2},
	vehicle.CapLVTemp:     {2},
	vehicle.CapAuxPower:   {3},
	vehicle.CapRearTorque: {4, 5},
	vehicle.CapSpeed:      {5},
	vehicle.CapElevation:  {5},
}

// NewMEBRwd constructs a MEBRwd decoder publishing to br.
func NewMEBRwd(br *broker.Broker) *MEBRwd {
	d := &MEBRwd{
		broker: br,
		capMap: mebRwdCapabilityMap,
	}
	newScheduler(&d.scheduler, mebRwdCatalogue, mebRwdFullMask)
	return d
}

func (d *MEBRwd) Name() string                     { return "meb-rwd" }
func (d *MEBRwd) Capabilities() vehicle.Capability { return mebRwdFullMask }
func (d *MEBRwd) BitrateIs500k() bool              { return true }
func (d *MEBRwd) RequestTimeout() time.Duration    { return 40 * time.Millisecond }

func (d *MEBRwd) DisplayRanges() (power, aux, torque, hvCurrent, lvVoltage vehicle.DisplayRange) {
	return vehicle.DisplayRange{Min: 0, Max: 150000},
		vehicle.DisplayRange{Min: 0, Max: 2500},
		vehicle.DisplayRange{Min: -420, Max: 420},
		vehicle.DisplayRange{Min: -350, Max: 350},
		vehicle.DisplayRange{Min: 10, Max: 16}
}

func (d *MEBRwd) Init(t vehicle.RequestTransmitter) error {
	t.SetResponseFilter(false)
	return nil
}

func (d *MEBRwd) Evaluate(t vehicle.RequestTransmitter) {
	d.scheduler.evaluate(t, d.capMap)
}

func (d *MEBRwd) SetRequestMask(mask vehicle.Capability) {
	d.scheduler.setRequestMask(mask)
}

func (d *MEBRwd) RxData(rspID uint32, length int, data []byte) {
	entry, ok := d.scheduler.resolve(rspID, length, data)
	if !ok {
		return
	}
	applyFields(entry, data, &d.state, d.broker)
}

func (d *MEBRwd) NoteError(kind transport.ErrorKind) {
	d.scheduler.noteError(kind)
}
