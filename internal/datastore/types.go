package datastore

import (
	"time"

	"github.com/anodyne74/evtelemetry/internal/vehicle"
)

// Store defines the interface for vehicle data storage.
type Store interface {
	// Vehicle management
	SaveVehicle(v *vehicle.Vehicle) error
	GetVehicle(vin string) (*vehicle.Vehicle, error)
	ListVehicles() ([]*vehicle.Vehicle, error)
	DeleteVehicle(vin string) error

	// Profile management
	SaveProfile(make, model string, profile *vehicle.Profile) error
	GetProfile(make, model string) (*vehicle.Profile, error)
	ListProfiles() (map[string]*vehicle.Profile, error)

	// Telemetry storage
	SaveTelemetry(vin string, sample *TelemetrySample) error
	GetTelemetry(vin string, start, end time.Time) ([]*TelemetrySample, error)
	GetLatestTelemetry(vin string) (*TelemetrySample, error)

	// Performance metrics
	SavePerformanceReport(vin string, report *vehicle.PerformanceReport) error
	GetPerformanceReports(vin string, start, end time.Time) ([]*vehicle.PerformanceReport, error)

	// Maintenance records
	SaveServiceRecord(vin string, record *vehicle.ServiceRecord) error
	GetServiceHistory(vin string) ([]*vehicle.ServiceRecord, error)

	// Alert history
	SaveAlert(vin string, alert *vehicle.Alert) error
	GetAlerts(vin string, start, end time.Time) ([]*vehicle.Alert, error)

	// Database management
	Close() error
}

// TelemetrySample is one dashboard broadcast tick: every capability value the
// vehicle manager has published, plus a bitmask of which were actually
// updated since the previous sample (as opposed to carried forward).
type TelemetrySample struct {
	Timestamp time.Time          `json:"timestamp"`
	VIN       string             `json:"vin"`
	Values    map[string]float64 `json:"values"`
	Updated   vehicle.Capability `json:"updated"`
}
