package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anodyne74/evtelemetry/internal/orchestrator"
)

// Config is the top-level configuration file shape: which vehicle
// platform to decode, how to reach its adapter, where the dashboard
// listens, and where telemetry is persisted.
type Config struct {
	Vehicle struct {
		Name string `yaml:"name"`
	} `yaml:"vehicle"`

	Transport struct {
		Kind         string `yaml:"kind"` // "onchip", "elm-socket", "elm-serial"
		CANInterface string `yaml:"canInterface"`
		SocketAddr   string `yaml:"socketAddress"`
		SerialPort   string `yaml:"serialPort"`
		SerialBaud   int    `yaml:"serialBaud"`
	} `yaml:"transport"`

	Broker struct {
		FastAverage     bool `yaml:"fastAverage"`
		ObserverTickMs  int  `yaml:"observerTickMs"`
		EvaluatorTickMs int  `yaml:"evaluatorTickMs"`
	} `yaml:"broker"`

	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Capture struct {
		Enabled  bool   `yaml:"enabled"`
		Filename string `yaml:"filename"`
	} `yaml:"capture"`

	Datastore struct {
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		InfluxDB struct {
			URL    string `yaml:"url"`
			Org    string `yaml:"org"`
			Bucket string `yaml:"bucket"`
			Token  string `yaml:"token"`
		} `yaml:"influxdb"`
	} `yaml:"datastore"`

	Profile struct {
		DefaultThresholds struct {
			HVVoltageMin float64 `yaml:"hv_voltage_min"`
			HVTempMax    float64 `yaml:"hv_temp_max"`
			TorqueMax    float64 `yaml:"torque_max"`
		} `yaml:"default_thresholds"`
	} `yaml:"profile"`
}

// LoadConfig reads the config file and returns a Config struct.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &cfg, nil
}

// OrchestratorConfig translates the YAML transport section into the
// orchestrator's Config, resolving the textual transport kind.
func (c *Config) OrchestratorConfig() (orchestrator.Config, error) {
	var kind orchestrator.TransportKind
	switch c.Transport.Kind {
	case "onchip", "":
		kind = orchestrator.TransportOnChipCAN
	case "elm-socket":
		kind = orchestrator.TransportELMSocket
	case "elm-serial":
		kind = orchestrator.TransportELMSerial
	default:
		return orchestrator.Config{}, fmt.Errorf("config: unknown transport kind %q", c.Transport.Kind)
	}

	return orchestrator.Config{
		VehicleName:   c.Vehicle.Name,
		Transport:     kind,
		CANInterface:  c.Transport.CANInterface,
		SocketAddr:    c.Transport.SocketAddr,
		SerialPort:    c.Transport.SerialPort,
		SerialBaud:    c.Transport.SerialBaud,
		EvaluatorTick: millisOrDefault(c.Broker.EvaluatorTickMs, 10),
		ObserverTick:  millisOrDefault(c.Broker.ObserverTickMs, 50),
	}, nil
}

func millisOrDefault(ms, fallback int) time.Duration {
	if ms <= 0 {
		ms = fallback
	}
	return time.Duration(ms) * time.Millisecond
}
