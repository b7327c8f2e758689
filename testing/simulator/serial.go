package simulator

import (
	"fmt"

	"github.com/tarm/serial"
)

// OpenSerial runs a fake ELM327 adapter over a serial port, e.g. one
// end of a socat-created pseudo-terminal pair standing in for real
// hardware during local testing.
func OpenSerial(portName string, baud int, r *Responder) error {
	port, err := serial.OpenPort(&serial.Config{Name: portName, Baud: baud})
	if err != nil {
		return fmt.Errorf("simulator: opening serial port %s: %w", portName, err)
	}
	defer port.Close()

	return NewSession(port, r).Run()
}
