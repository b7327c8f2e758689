package transport

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/tarm/serial"
)

// streamDriver is the subset of *elm327.Driver an ELMStream back-end
// drives. Declared structurally so package transport never imports
// package elm327 — elm327 already imports transport for ErrorKind and
// Sink, and a reverse import would cycle.
type streamDriver interface {
	Init(role Role, requestTimeout time.Duration, bitrateIs500k bool) error
	Connected() bool
	TransmitRequest(reqID, rspID uint32, length int, data [8]byte) error
	TransmitFlowControl(reqID uint32, length int, data [8]byte) error
	SetResponseFilter(enable bool)
	MarkResponseComplete()
	Feed(data []byte)
	SetConnected(connected bool)
}

// ELMStream is the "ELM327 over a stream" back-end: a byte stream
// (Wi-Fi socket or serial link) carrying carriage-return terminated AT
// commands and hex request lines, read by a background goroutine that
// feeds bytes to the adapter driver's ring-buffer parser.
type ELMStream struct {
	driver streamDriver
	stream io.ReadWriteCloser
	stopCh chan struct{}
}

// NewELMStreamSerial opens addr (a serial device path) at baud.
// AttachDriver must be called before Init.
func NewELMStreamSerial(addr string, baud int) (*ELMStream, error) {
	cfg := &serial.Config{Name: addr, Baud: baud, ReadTimeout: time.Second}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("elmstream: opening serial port %s: %w", addr, err)
	}
	return &ELMStream{stream: port}, nil
}

// NewELMStreamSocket dials addr (host:port) over TCP, for Wi-Fi-socket
// ELM327 adapters. AttachDriver must be called before Init.
func NewELMStreamSocket(addr string) (*ELMStream, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("elmstream: dialing %s: %w", addr, err)
	}
	return &ELMStream{stream: conn}, nil
}

// AttachDriver binds the adapter driver this back-end feeds received
// bytes into and delegates Backend calls to. The driver is constructed
// with this ELMStream as its lineWriter, so the two must be wired
// together after both exist (see newBackendFactory in
// internal/orchestrator).
func (e *ELMStream) AttachDriver(driver streamDriver) {
	e.driver = driver
}

func (e *ELMStream) Init(role Role, requestTimeout time.Duration, bitrateIs500k bool) error {
	e.stopCh = make(chan struct{})
	go e.readLoop()

	e.driver.SetConnected(true)
	return e.driver.Init(role, requestTimeout, bitrateIs500k)
}

func (e *ELMStream) readLoop() {
	reader := bufio.NewReaderSize(e.stream, ringBufferSize)
	buf := make([]byte, 256)
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		n, err := reader.Read(buf)
		if n > 0 {
			e.driver.Feed(buf[:n])
		}
		if err != nil {
			e.driver.SetConnected(false)
			return
		}
	}
}

// ringBufferSize mirrors the elm327 driver's ring buffer so a single
// Read call can never outrun what the parser can absorb in one Feed.
const ringBufferSize = 2048

func (e *ELMStream) Connected() bool { return e.driver.Connected() }

func (e *ELMStream) TransmitRequest(reqID, rspID uint32, length int, data [8]byte) error {
	return e.driver.TransmitRequest(reqID, rspID, length, data)
}

func (e *ELMStream) TransmitFlowControl(reqID uint32, length int, data [8]byte) error {
	return e.driver.TransmitFlowControl(reqID, length, data)
}

// SetResponseFilter delegates to the driver; filtering at this layer
// is implicit in the adapter's ATCRA.
func (e *ELMStream) SetResponseFilter(enable bool) {
	e.driver.SetResponseFilter(enable)
}

func (e *ELMStream) MarkResponseComplete() {
	e.driver.MarkResponseComplete()
}

// WriteLine implements the elm327 driver's lineWriter: it writes cmd
// followed by CR then NUL.
func (e *ELMStream) WriteLine(line string) error {
	_, err := e.stream.Write(append([]byte(line), 0x0D, 0x00))
	return err
}

// Close stops the reader goroutine and closes the underlying stream.
func (e *ELMStream) Close() error {
	if e.stopCh != nil {
		close(e.stopCh)
	}
	return e.stream.Close()
}
