package transport

import (
	"time"
)

// PacketSink is the downward half of a packet-notify transport: writing
// a line means issuing one characteristic write (or equivalent framed
// send). Implementing any BLE/Wi-Fi stack is out of scope here; ELMPacket
// treats whatever carries these packets as an opaque collaborator
// supplied by the caller.
type PacketSink interface {
	WritePacket(data []byte) error
}

// ELMPacket is the "ELM327 over a packet link" back-end, used where the
// adapter is reached over a packet-oriented notify/write characteristic
// rather than a continuous byte stream. It implements the same
// line-writer contract as ELMStream but frames each line as a single
// packet instead of appending it to a shared byte pipe.
type ELMPacket struct {
	driver streamDriver
	sink   PacketSink
}

// NewELMPacket constructs a packet-link back-end over sink. AttachDriver
// must be called before Init.
func NewELMPacket(sink PacketSink) *ELMPacket {
	return &ELMPacket{sink: sink}
}

func (e *ELMPacket) AttachDriver(driver streamDriver) {
	e.driver = driver
}

func (e *ELMPacket) Init(role Role, requestTimeout time.Duration, bitrateIs500k bool) error {
	e.driver.SetConnected(true)
	return e.driver.Init(role, requestTimeout, bitrateIs500k)
}

func (e *ELMPacket) Connected() bool { return e.driver.Connected() }

func (e *ELMPacket) TransmitRequest(reqID, rspID uint32, length int, data [8]byte) error {
	return e.driver.TransmitRequest(reqID, rspID, length, data)
}

func (e *ELMPacket) TransmitFlowControl(reqID uint32, length int, data [8]byte) error {
	return e.driver.TransmitFlowControl(reqID, length, data)
}

func (e *ELMPacket) SetResponseFilter(enable bool) {
	e.driver.SetResponseFilter(enable)
}

func (e *ELMPacket) MarkResponseComplete() {
	e.driver.MarkResponseComplete()
}

// WriteLine implements the elm327 driver's lineWriter by wrapping the
// line in a single packet write, CR-NUL terminated like the stream
// variant so a caller capturing both transports sees an identical wire
// convention.
func (e *ELMPacket) WriteLine(line string) error {
	return e.sink.WritePacket(append([]byte(line), 0x0D, 0x00))
}

// Feed forwards an inbound packet to the driver's ring-buffer parser;
// call this from the packet sink's own notify callback.
func (e *ELMPacket) Feed(data []byte) {
	e.driver.Feed(data)
}

// NotifyDisconnected tells the driver the packet link dropped.
func (e *ELMPacket) NotifyDisconnected() {
	e.driver.SetConnected(false)
}
