// Package orchestrator wires the transport, ISO-TP, vehicle manager and
// data broker layers together and drives the two cooperating periodic
// loops: the vehicle evaluator and the observer.
package orchestrator

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/anodyne74/evtelemetry/internal/broker"
	"github.com/anodyne74/evtelemetry/internal/elm327"
	"github.com/anodyne74/evtelemetry/internal/transport"
	"github.com/anodyne74/evtelemetry/internal/vehicle"
	"github.com/anodyne74/evtelemetry/internal/vehicle/decoder"
)

// TransportKind selects one of three back-end variants: an on-chip CAN
// controller, or an ELM327 adapter reached over a TCP socket or a serial
// link. The ELM327-over-packet back-end (transport.ELMPacket) has no
// TransportKind and is not built by this package.
type TransportKind int

const (
	TransportOnChipCAN TransportKind = iota
	TransportELMSocket
	TransportELMSerial
)

// Config is the external configuration needed to stand up one vehicle
// session: which vehicle to decode, which transport to use, and that
// transport's addressing.
type Config struct {
	VehicleName   string
	Transport     TransportKind
	CANInterface  string // for TransportOnChipCAN
	SocketAddr    string // for TransportELMSocket
	SerialPort    string // for TransportELMSerial
	SerialBaud    int
	EvaluatorTick time.Duration
	ObserverTick  time.Duration
}

// Orchestrator owns one live decoder/transport session: the vehicle
// manager driving a decoder's request schedule, and the broker every
// decoder publishes decoded values to.
type Orchestrator struct {
	cfg     Config
	manager *vehicle.Manager
	broker  *broker.Broker

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs an Orchestrator from cfg but does not start it.
func New(cfg Config, br *broker.Broker) (*Orchestrator, error) {
	manager := vehicle.NewManager()
	decoders := map[string]vehicle.Decoder{
		"leaf":    decoder.NewLeaf(br),
		"meb-rwd": decoder.NewMEBRwd(br),
		"meb-awd": decoder.NewMEBAwd(br),
	}

	factory := newBackendFactory(cfg)
	if err := manager.Init(decoders, cfg.VehicleName, factory); err != nil {
		return nil, fmt.Errorf("orchestrator: vehicle init: %w", err)
	}

	return &Orchestrator{cfg: cfg, manager: manager, broker: br}, nil
}

// newBackendFactory returns the transport factory vehicle.Manager.Init
// needs: given the ISO-TP sink a back-end must deliver frames to, build
// and return the concrete back-end for cfg.Transport. The two ELM327
// variants construct their stream first, then attach an elm327.Driver
// bound to that sink.
func newBackendFactory(cfg Config) vehicle.BackendFactory {
	return func(sink transport.Sink) (transport.Backend, error) {
		switch cfg.Transport {
		case TransportOnChipCAN:
			ifName := cfg.CANInterface
			if ifName == "" {
				ifName = "can0"
			}
			return transport.NewOnChipCAN(ifName, sink), nil

		case TransportELMSocket:
			stream, err := transport.NewELMStreamSocket(cfg.SocketAddr)
			if err != nil {
				return nil, err
			}
			driver := elm327.NewDriver(stream, sink)
			stream.AttachDriver(driver)
			return stream, nil

		case TransportELMSerial:
			stream, err := transport.NewELMStreamSerial(cfg.SerialPort, cfg.SerialBaud)
			if err != nil {
				return nil, err
			}
			driver := elm327.NewDriver(stream, sink)
			stream.AttachDriver(driver)
			return stream, nil

		default:
			return nil, fmt.Errorf("orchestrator: unknown transport kind %v", cfg.Transport)
		}
	}
}

// Start launches the vehicle evaluator and observer loops and returns
// immediately.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	stopCh := o.stopCh
	doneCh := o.doneCh
	o.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		tick := o.cfg.EvaluatorTick
		if tick <= 0 {
			tick = 10 * time.Millisecond
		}
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				o.manager.Evaluate()
			}
		}
	}()

	go func() {
		defer wg.Done()
		tick := o.cfg.ObserverTick
		if tick <= 0 {
			tick = 50 * time.Millisecond
		}
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				o.broker.Drain()
			}
		}
	}()

	go func() {
		wg.Wait()
		close(doneCh)
	}()
}

// Stop signals both loops to exit and waits for them to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	stopCh := o.stopCh
	doneCh := o.doneCh
	o.running = false
	o.mu.Unlock()

	close(stopCh)
	<-doneCh
	log.Println("orchestrator: stopped")
}

// Manager exposes the underlying vehicle manager, e.g. for callers that
// want the active decoder's name or display ranges.
func (o *Orchestrator) Manager() *vehicle.Manager {
	return o.manager
}

// Connected reports whether the underlying transport link is up.
func (o *Orchestrator) Connected() bool {
	return o.manager.Connected()
}
