package decoder

import (
	"errors"
	"math"
	"testing"

	"github.com/anodyne74/evtelemetry/internal/broker"
	"github.com/anodyne74/evtelemetry/internal/transport"
	"github.com/anodyne74/evtelemetry/internal/vehicle"
)

type fakeTransmitter struct {
	sent    []vehicle.RequestDescriptor
	filters []bool
	err     error
}

func (f *fakeTransmitter) Transmit(d vehicle.RequestDescriptor) error {
	f.sent = append(f.sent, d)
	return f.err
}
func (f *fakeTransmitter) SetResponseFilter(enable bool) {
	f.filters = append(f.filters, enable)
}

func subscribe(t *testing.T, br *broker.Broker, bit vehicle.Capability) *float64 {
	t.Helper()
	got := math.NaN()
	br.RegisterCallback(uint32(bit), func(value float64) { got = value })
	return &got
}

func TestLeafInitDisablesResponseFilter(t *testing.T) {
	tx := &fakeTransmitter{}
	d := NewLeaf(broker.New(false))

	if err := d.Init(tx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if len(tx.filters) != 1 || tx.filters[0] != false {
		t.Fatalf("expected response filtering disabled once, got %v", tx.filters)
	}
}

func TestLeafEvaluateIssuesOneRequestPerTickWhenIdle(t *testing.T) {
	tx := &fakeTransmitter{}
	d := NewLeaf(broker.New(false))

	d.Evaluate(tx)
	if len(tx.sent) != 1 {
		t.Fatalf("expected one request on the first tick, got %d", len(tx.sent))
	}

	// While in flight nothing new is issued.
	d.Evaluate(tx)
	d.Evaluate(tx)
	if len(tx.sent) != 1 {
		t.Fatalf("expected no new request while in flight, got %d", len(tx.sent))
	}
}

func TestLeafTimeoutAdvancesRoundRobin(t *testing.T) {
	tx := &fakeTransmitter{}
	d := NewLeaf(broker.New(false))

	d.Evaluate(tx) // request 0 in flight
	d.NoteError(transport.ErrTimeout)
	d.Evaluate(tx) // consumes the timeout, clears in-flight
	d.Evaluate(tx) // issues the next catalogue entry

	if len(tx.sent) != 2 {
		t.Fatalf("expected two requests, got %d", len(tx.sent))
	}
	if tx.sent[0].Name == tx.sent[1].Name {
		t.Errorf("expected round-robin to advance past %q", tx.sent[0].Name)
	}
}

func TestLeafTransmitErrorClearsInFlight(t *testing.T) {
	tx := &fakeTransmitter{err: errors.New("NO DATA")}
	d := NewLeaf(broker.New(false))

	d.Evaluate(tx)
	d.Evaluate(tx)

	// Each tick's request fails and frees the slot for the next.
	if len(tx.sent) != 2 {
		t.Fatalf("expected a request per tick on transmit failure, got %d", len(tx.sent))
	}
}

func TestLeafRxDataPublishesHVVoltage(t *testing.T) {
	br := broker.New(false)
	got := subscribe(t, br, vehicle.CapHVVoltage)
	d := NewLeaf(br)

	tx := &fakeTransmitter{}
	d.Evaluate(tx) // hv_pack_voltage in flight

	d.RxData(0x79A, 4, []byte{0x62, 0x11, 0x03, 0xB4})
	br.Drain()

	if math.Abs(*got-14.4) > 1e-9 {
		t.Fatalf("expected 14.40V published, got %v", *got)
	}

	// The completion frees the in-flight slot; the next two ticks consume
	// it and issue the next entry.
	d.Evaluate(tx)
	d.Evaluate(tx)
	if len(tx.sent) != 2 {
		t.Fatalf("expected the next request after completion, got %d", len(tx.sent))
	}
}

func TestLeafRxDataIgnoresUnmatchedResponse(t *testing.T) {
	br := broker.New(false)
	got := subscribe(t, br, vehicle.CapHVVoltage)
	d := NewLeaf(br)

	d.RxData(0x79A, 3, []byte{0x7F, 0x22, 0x31})
	br.Drain()

	if !math.IsNaN(*got) {
		t.Fatalf("expected no publication for a negative response, got %v", *got)
	}
}

func TestLeafTractionMultiFrameDecode(t *testing.T) {
	br := broker.New(false)
	torque := subscribe(t, br, vehicle.CapFrontTorque)
	speed := subscribe(t, br, vehicle.CapSpeed)
	d := NewLeaf(br)

	data := make([]byte, 53)
	data[0] = 0x61
	data[1] = 0x01
	data[10] = 0x00
	data[11] = 0x64 // raw 100 -> 10.0 Nm
	data[20] = 0x13
	data[21] = 0x88 // raw 5000 -> 50.0 km/h

	d.RxData(0x7BB, len(data), data)
	br.Drain()

	if math.Abs(*torque-10.0) > 1e-9 {
		t.Errorf("expected front torque 10.0, got %v", *torque)
	}
	if math.Abs(*speed-50.0) > 1e-9 {
		t.Errorf("expected speed 50.0, got %v", *speed)
	}
}

func TestLeafReverseGearFlipsTorqueSign(t *testing.T) {
	br := broker.New(false)
	torque := subscribe(t, br, vehicle.CapFrontTorque)
	d := NewLeaf(br)

	// The traction response carries its own gear byte at offset 5; any
	// nonzero value is reverse, and the field table applies it to the
	// torque decoded from the same payload.
	data := make([]byte, 53)
	data[0] = 0x61
	data[1] = 0x01
	data[5] = 0x01
	data[10] = 0x00
	data[11] = 0x64
	d.RxData(0x7BB, len(data), data)
	br.Drain()

	if math.Abs(*torque+10.0) > 1e-9 {
		t.Fatalf("expected front torque -10.0 in reverse, got %v", *torque)
	}
}

func TestMEBAwdReverseGearFlipsTorqueSign(t *testing.T) {
	br := broker.New(false)
	torque := subscribe(t, br, vehicle.CapRearTorque)
	d := NewMEBAwd(br)

	// Gear position 2 is reverse.
	d.RxData(0x7D8, 4, []byte{0x62, 0x40, 0x60, 0x02})

	data := make([]byte, 20)
	data[0] = 0x61
	data[1] = 0x04
	data[10] = 0x00
	data[11] = 0x64
	d.RxData(0x7D9, len(data), data)
	br.Drain()

	if math.Abs(*torque+10.0) > 1e-9 {
		t.Fatalf("expected rear torque -10.0 in reverse, got %v", *torque)
	}
}

func TestScheduleForMapCompactsToMask(t *testing.T) {
	schedule := scheduleForMap(leafCapabilityMap, vehicle.CapHVVoltage|vehicle.CapSpeed)

	seen := make(map[int]bool)
	for _, idx := range schedule {
		if idx < 0 || idx >= len(leafCatalogue) {
			t.Fatalf("schedule index %d out of catalogue range", idx)
		}
		if seen[idx] {
			t.Fatalf("schedule index %d duplicated", idx)
		}
		seen[idx] = true
	}

	// Exactly the entries mapped by the requested bits: hv voltage (0)
	// and the traction group (5).
	if len(schedule) != 2 || !seen[0] || !seen[5] {
		t.Fatalf("expected schedule {0, 5}, got %v", schedule)
	}
}

func TestSetRequestMaskAppliedOnNextEvaluate(t *testing.T) {
	tx := &fakeTransmitter{}
	d := NewLeaf(broker.New(false))

	d.SetRequestMask(vehicle.CapAuxPower)
	d.Evaluate(tx)

	if len(tx.sent) != 1 {
		t.Fatalf("expected one request, got %d", len(tx.sent))
	}
	if tx.sent[0].Name != "aux_power" {
		t.Errorf("expected the compacted list to start at aux_power, got %q", tx.sent[0].Name)
	}
}

func TestSetRequestMaskEmptyStopsRequests(t *testing.T) {
	tx := &fakeTransmitter{}
	d := NewLeaf(broker.New(false))

	d.SetRequestMask(0)
	d.Evaluate(tx)

	if len(tx.sent) != 0 {
		t.Fatalf("expected no requests for an empty mask, got %d", len(tx.sent))
	}
}

func TestInterpolatePiecewiseTemperature(t *testing.T) {
	// Segment [140, 170) maps to [20, 30); raw 155 lands mid-segment.
	got := interpolate(hvTempBreakpoints, 155)
	if math.Abs(got-25.0) > 1e-9 {
		t.Errorf("expected 25.0 degC at raw 155, got %v", got)
	}

	if got := interpolate(hvTempBreakpoints, -5); got != -40 {
		t.Errorf("expected clamp to -40 below range, got %v", got)
	}
	if got := interpolate(hvTempBreakpoints, 300); got != 80 {
		t.Errorf("expected clamp to 80 above range, got %v", got)
	}
}
