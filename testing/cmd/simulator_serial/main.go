package main

import (
	"flag"
	"log"

	"github.com/anodyne74/evtelemetry/testing/simulator"
)

func main() {
	port := flag.String("port", "COM10", "Serial port to open")
	baud := flag.Int("baud", 38400, "Baud rate")
	flag.Parse()

	if err := simulator.OpenSerial(*port, *baud, simulator.NewLeafResponder()); err != nil {
		log.Fatal(err)
	}
}
