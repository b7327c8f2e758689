package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/anodyne74/evtelemetry/internal/broker"
	"github.com/anodyne74/evtelemetry/internal/capture"
	"github.com/anodyne74/evtelemetry/internal/config"
	"github.com/anodyne74/evtelemetry/internal/datastore"
	"github.com/anodyne74/evtelemetry/internal/orchestrator"
	"github.com/anodyne74/evtelemetry/internal/vehicle"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// TelemetryData is one broadcast frame of decoded vehicle quantities,
// keyed by the same names vehicle.CapabilityNames assigns each bit.
type TelemetryData struct {
	Connected bool               `json:"connected"`
	Vehicle   string             `json:"vehicle"`
	Values    map[string]float64 `json:"values"`
}

var (
	clients    = make(map[*websocket.Conn]bool)
	clientsMux sync.Mutex
)

func wsHandler(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Websocket upgrade error: %v", err)
		return
	}

	clientsMux.Lock()
	clients[ws] = true
	clientsMux.Unlock()

	defer func() {
		clientsMux.Lock()
		delete(clients, ws)
		clientsMux.Unlock()
		ws.Close()
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
}

func broadcastTelemetry(data TelemetryData) {
	clientsMux.Lock()
	defer clientsMux.Unlock()

	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("Error marshaling telemetry: %v", err)
		return
	}

	for client := range clients {
		if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("Error sending to client: %v", err)
			client.Close()
			delete(clients, client)
		}
	}
}

// snapshot accumulates the broker's latest delivered value for every
// capability, plus a bitmask of which were updated since the last
// broadcast. Guarded separately from clientsMux since it's written
// from the observer loop's own goroutine.
type snapshot struct {
	mu      sync.Mutex
	values  map[string]float64
	updated vehicle.Capability
}

func newSnapshot() *snapshot {
	return &snapshot{values: make(map[string]float64)}
}

func (s *snapshot) set(bit vehicle.Capability, name string, value float64) {
	s.mu.Lock()
	s.values[name] = value
	s.updated |= bit
	s.mu.Unlock()
}

// copyValues returns the accumulated values and the updated-since-last
// mask, clearing the mask for the next broadcast interval.
func (s *snapshot) copyValues() (map[string]float64, vehicle.Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	updated := s.updated
	s.updated = 0
	return out, updated
}

// stateFromValues maps a capability-name-keyed snapshot back onto a
// vehicle.State, the shape the registry persists and runs anomaly
// detection against.
func stateFromValues(values map[string]float64) vehicle.State {
	return vehicle.State{
		HVVoltage:   values["hv_voltage"],
		HVCurrent:   values["hv_current"],
		HVTempMin:   values["hv_temp_min"],
		HVTempMax:   values["hv_temp_max"],
		LVVoltage:   values["lv_voltage"],
		LVCurrent:   values["lv_current"],
		LVTemp:      values["lv_temp"],
		AuxPower:    values["aux_power"],
		FrontTorque: values["front_torque"],
		RearTorque:  values["rear_torque"],
		Speed:       values["speed"],
		Elevation:   values["elevation"],
	}
}

// profileFromConfig builds a vehicle.Profile from the config file's flat
// default-threshold block, the only anomaly thresholds a single-vehicle
// dashboard configures today.
func profileFromConfig(cfg *config.Config) vehicle.Profile {
	dt := cfg.Profile.DefaultThresholds
	return vehicle.Profile{
		MinHVVoltage:   dt.HVVoltageMin,
		MaxHVTemp:      dt.HVTempMax,
		MaxFrontTorque: dt.TorqueMax,
		MaxRearTorque:  dt.TorqueMax,
	}
}

var configFile string

func init() {
	flag.StringVar(&configFile, "config", "config.yaml", "Path to configuration file")
	flag.Parse()
}

func main() {
	router := mux.NewRouter()
	router.HandleFunc("/ws", wsHandler)
	router.PathPrefix("/").Handler(http.FileServer(http.Dir("static")))

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, port)

	go func() {
		log.Printf("Starting web server on http://%s", serverAddr)
		if err := http.ListenAndServe(serverAddr, router); err != nil {
			log.Fatal(err)
		}
	}()

	br := broker.New(cfg.Broker.FastAverage)
	snap := newSnapshot()
	for bit, name := range vehicle.CapabilityNames {
		capBit, capName := bit, name
		br.RegisterCallback(uint32(capBit), func(value float64) {
			snap.set(capBit, capName, value)
		})
	}

	orchCfg, err := cfg.OrchestratorConfig()
	if err != nil {
		log.Fatalf("Error resolving transport config: %v", err)
	}

	orch, err := orchestrator.New(orchCfg, br)
	if err != nil {
		log.Fatalf("Error initialising vehicle session: %v", err)
	}
	orch.Start()

	// A single-vehicle registry entry, keyed off the configured platform
	// name, so persisted state and anomaly detection have somewhere to
	// live even though this dashboard only ever drives one vehicle.
	registry := vehicle.NewRegistry()
	vin := cfg.Vehicle.Name
	model := orch.Manager().Decoder().Name()
	profile := profileFromConfig(cfg)
	registered, err := registry.RegisterVehicle(vin, cfg.Vehicle.Name, model, 0, orch.Manager().Decoder().Capabilities())
	if err != nil {
		log.Printf("Error registering vehicle: %v", err)
	}
	registry.RegisterProfile(cfg.Vehicle.Name, model, profile)

	// Persistence is optional: without both backends configured the
	// dashboard runs live-only.
	var store datastore.Store
	if cfg.Datastore.SQLite.Path != "" && cfg.Datastore.InfluxDB.URL != "" {
		store, err = datastore.NewStore(&datastore.Config{
			SQLitePath:     cfg.Datastore.SQLite.Path,
			InfluxDBURL:    cfg.Datastore.InfluxDB.URL,
			InfluxDBOrg:    cfg.Datastore.InfluxDB.Org,
			InfluxDBToken:  cfg.Datastore.InfluxDB.Token,
			InfluxDBBucket: cfg.Datastore.InfluxDB.Bucket,
		})
		if err != nil {
			log.Printf("Datastore disabled: %v", err)
			store = nil
		}
	}
	if store != nil {
		if registered != nil {
			if err := store.SaveVehicle(registered); err != nil {
				log.Printf("Error persisting vehicle registration: %v", err)
			}
		}
		if err := store.SaveProfile(cfg.Vehicle.Name, model, &profile); err != nil {
			log.Printf("Error persisting profile: %v", err)
		}
		defer store.Close()
	}

	var recorder *capture.Recorder
	if cfg.Capture.Enabled {
		recorder = capture.NewRecorder(cfg.Vehicle.Name)
		if cfg.Capture.Filename != "" {
			recorder.SetFilePath(cfg.Capture.Filename)
		}
		if err := recorder.Start(); err != nil {
			log.Printf("Capture disabled: %v", err)
			recorder = nil
		}
	}

	// Broadcast a telemetry frame every second from whatever the broker
	// has accumulated, mirroring the decoupling between decode rate and
	// dashboard refresh rate the observer/evaluator split is for. Each
	// tick also feeds the registry so anomaly detection runs against the
	// same snapshot the dashboard sees.
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			values, updated := snap.copyValues()
			broadcastTelemetry(TelemetryData{
				Connected: orch.Connected(),
				Vehicle:   cfg.Vehicle.Name,
				Values:    values,
			})

			if store != nil && updated != 0 {
				sample := &datastore.TelemetrySample{
					Timestamp: time.Now(),
					VIN:       vin,
					Values:    values,
					Updated:   updated,
				}
				if err := store.SaveTelemetry(vin, sample); err != nil {
					log.Printf("Error persisting telemetry: %v", err)
				}
			}

			if recorder != nil && updated != 0 {
				if err := recorder.RecordSnapshot(uint32(updated), values); err != nil {
					log.Printf("Error recording capture frame: %v", err)
				}
			}

			if err := registry.UpdateVehicleState(vin, stateFromValues(values)); err != nil {
				log.Printf("Error updating vehicle state: %v", err)
				continue
			}
			alerts, err := registry.DetectAnomalies(vin)
			if err != nil {
				log.Printf("Error detecting anomalies: %v", err)
				continue
			}
			for _, a := range alerts {
				log.Printf("[%s] %s: %s", a.Severity, a.Type, a.Message)
				if store != nil {
					alert := a
					if err := store.SaveAlert(vin, &alert); err != nil {
						log.Printf("Error persisting alert: %v", err)
					}
				}
			}
		}
	}()

	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		<-stop

		clientsMux.Lock()
		for client := range clients {
			client.Close()
			delete(clients, client)
		}
		clientsMux.Unlock()

		orch.Stop()

		if recorder != nil && recorder.IsRunning() {
			if err := recorder.Stop(); err != nil {
				log.Printf("Error saving capture session: %v", err)
			}
		}

		log.Println("Cleanup completed")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	close(stop)
	<-done
}
