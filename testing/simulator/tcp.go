package simulator

import (
	"log"
	"net"
)

// ListenTCP runs a fake ELM327-over-Wi-Fi-socket adapter on addr,
// serving r's canned responses to every connection it accepts.
func ListenTCP(addr string, r *Responder) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer listener.Close()

	log.Printf("simulator: listening on %s", addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("simulator: accept error: %v", err)
			continue
		}
		go func() {
			defer conn.Close()
			log.Printf("simulator: connection from %s", conn.RemoteAddr())
			if err := NewSession(conn, r).Run(); err != nil {
				log.Printf("simulator: session ended: %v", err)
			}
		}()
	}
}
