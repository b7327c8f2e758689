package main

import (
	"flag"
	"log"

	"github.com/anodyne74/evtelemetry/testing/simulator"
)

func main() {
	addr := flag.String("addr", "localhost:6789", "Address to listen on")
	flag.Parse()

	if err := simulator.ListenTCP(*addr, simulator.NewLeafResponder()); err != nil {
		log.Fatal(err)
	}
}
