package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/brutella/can"
)

// OnChipCAN is the on-chip CAN controller back-end. It opens a SocketCAN
// bus, installs a receive callback that runs in the bus's own dispatch
// goroutine (an interrupt-equivalent context), and arms a one-shot timer
// per outstanding request. The bus runs at whatever bit-rate the
// interface was configured with; Init's bitrateIs500k argument is not
// applied.
type OnChipCAN struct {
	ifName string
	sink   Sink

	mu             sync.Mutex
	bus            *can.Bus
	connected      bool
	filterEnabled  bool
	currentReqID   uint32
	currentRspID   uint32
	requestTimeout time.Duration
	timer          *time.Timer
}

// NewOnChipCAN constructs a back-end bound to the given SocketCAN
// interface name (e.g. "can0"). Frames are delivered to sink.
func NewOnChipCAN(ifName string, sink Sink) *OnChipCAN {
	return &OnChipCAN{ifName: ifName, sink: sink, filterEnabled: true}
}

func (o *OnChipCAN) Init(role Role, requestTimeout time.Duration, bitrateIs500k bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.requestTimeout = requestTimeout

	bus, err := can.NewBusForInterfaceWithName(o.ifName)
	if err != nil {
		return fmt.Errorf("on-chip CAN: failed to open %s: %w", o.ifName, err)
	}

	o.bus = bus
	o.bus.SubscribeFunc(o.handleFrame)

	go func() {
		// Connect blocks reading the bus until Disconnect is called; it is
		// the bus's own dispatch loop and plays the role of an interrupt
		// receive context.
		if err := o.bus.ConnectAndPublish(); err != nil {
			o.mu.Lock()
			o.connected = false
			o.mu.Unlock()
			o.sink.InterfaceError(ErrLinkTransient)
		}
	}()

	o.connected = true
	return nil
}

func (o *OnChipCAN) Connected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.connected
}

// handleFrame runs in the bus dispatch goroutine. While response
// filtering is enabled it drops anything whose id isn't the one we're
// currently expecting a response on, filtering at the transport boundary
// as well as the ISO-TP layer above it; with filtering disabled every
// frame is forwarded.
func (o *OnChipCAN) handleFrame(frame can.Frame) {
	o.mu.Lock()
	expected := o.currentRspID
	filter := o.filterEnabled
	o.mu.Unlock()

	if filter && uint32(frame.ID) != expected {
		return
	}

	var data [8]byte
	n := copy(data[:], frame.Data[:frame.Length])
	o.sink.Receive(uint32(frame.ID), n, data)
}

func (o *OnChipCAN) TransmitRequest(reqID, rspID uint32, length int, data [8]byte) error {
	o.mu.Lock()
	if o.bus == nil {
		o.mu.Unlock()
		return fmt.Errorf("on-chip CAN: not initialised")
	}
	if o.currentRspID != rspID {
		o.reconfigureFilterLocked(rspID)
	}
	o.currentReqID = reqID
	o.currentRspID = rspID
	timeout := o.requestTimeout
	bus := o.bus
	o.mu.Unlock()

	frame := can.Frame{
		ID:     reqID,
		Length: uint8(length),
	}
	copy(frame.Data[:], data[:])

	if err := bus.Publish(frame); err != nil {
		return fmt.Errorf("on-chip CAN: publish failed: %w", err)
	}

	o.armTimer(timeout)
	return nil
}

func (o *OnChipCAN) TransmitFlowControl(reqID uint32, length int, data [8]byte) error {
	o.mu.Lock()
	bus := o.bus
	o.mu.Unlock()
	if bus == nil {
		return fmt.Errorf("on-chip CAN: not initialised")
	}

	frame := can.Frame{ID: reqID, Length: uint8(length)}
	copy(frame.Data[:], data[:])
	if err := bus.Publish(frame); err != nil {
		return fmt.Errorf("on-chip CAN: flow-control publish failed: %w", err)
	}
	return nil
}

// reconfigureFilterLocked points the response filter at the expected
// response id. brutella/can exposes no acceptance-filter ioctl
// on every platform, so this narrows the software-side check
// handleFrame performs instead of reprogramming silicon; the net effect
// on the rest of the core is identical.
func (o *OnChipCAN) reconfigureFilterLocked(rspID uint32) {
	o.currentRspID = rspID
}

func (o *OnChipCAN) SetResponseFilter(enable bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.filterEnabled = enable
}

func (o *OnChipCAN) MarkResponseComplete() {
	o.mu.Lock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.mu.Unlock()
}

func (o *OnChipCAN) armTimer(timeout time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(timeout, func() {
		o.sink.InterfaceError(ErrTimeout)
	})
}

// Close tears down the bus connection, triggering SocketCAN's own bus-off
// recovery path on reconnect.
func (o *OnChipCAN) Close() error {
	o.mu.Lock()
	bus := o.bus
	o.connected = false
	o.mu.Unlock()
	if bus == nil {
		return nil
	}
	return bus.Disconnect()
}
