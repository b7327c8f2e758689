package vehicle

import (
	"fmt"
	"sync"
	"time"
)

// Registry tracks registered vehicles and their platform profiles for
// persistence and anomaly detection. It is distinct from Manager
// (core.go), which owns the live decoder/transport session; Registry is
// the fleet-bookkeeping half, kept separate from the OBD-II core.
type Registry struct {
	vehicles map[string]*Vehicle // VIN -> Vehicle mapping
	profiles map[string]*Profile // Make/Model -> Profile mapping
	mu       sync.RWMutex
}

// NewRegistry creates a new vehicle registry instance.
func NewRegistry() *Registry {
	return &Registry{
		vehicles: make(map[string]*Vehicle),
		profiles: make(map[string]*Profile),
	}
}

// RegisterVehicle adds a new vehicle to the registry.
func (r *Registry) RegisterVehicle(vin, make, model string, year int, caps Capability) (*Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.vehicles[vin]; exists {
		return nil, fmt.Errorf("vehicle with VIN %s already registered", vin)
	}

	v := &Vehicle{
		VIN:          vin,
		Make:         make,
		Model:        model,
		Year:         year,
		Capabilities: caps,
		LastUpdated:  time.Now(),
	}

	r.vehicles[vin] = v
	return v, nil
}

// GetVehicle retrieves a vehicle by VIN.
func (r *Registry) GetVehicle(vin string) (*Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, exists := r.vehicles[vin]
	if !exists {
		return nil, fmt.Errorf("vehicle with VIN %s not found", vin)
	}
	return v, nil
}

// UpdateVehicleState updates the vehicle's state with new data.
func (r *Registry) UpdateVehicleState(vin string, state State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, exists := r.vehicles[vin]
	if !exists {
		return fmt.Errorf("vehicle with VIN %s not found", vin)
	}

	state.LastUpdated = time.Now()
	v.State = state
	v.LastUpdated = state.LastUpdated
	return nil
}

// RegisterProfile adds or updates a vehicle profile.
func (r *Registry) RegisterProfile(make, model string, profile Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s-%s", make, model)
	r.profiles[key] = &profile
}

// GetProfile retrieves a vehicle profile by make and model.
func (r *Registry) GetProfile(make, model string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := fmt.Sprintf("%s-%s", make, model)
	profile, exists := r.profiles[key]
	if !exists {
		return nil, fmt.Errorf("profile for %s %s not found", make, model)
	}
	return profile, nil
}

// DetectAnomalies checks vehicle state against its profile and returns alerts.
func (r *Registry) DetectAnomalies(vin string) ([]Alert, error) {
	v, err := r.GetVehicle(vin)
	if err != nil {
		return nil, err
	}

	profile, err := r.GetProfile(v.Make, v.Model)
	if err != nil {
		return nil, err
	}

	var alerts []Alert
	now := time.Now()

	if profile.MaxHVVoltage > 0 && v.State.HVVoltage > profile.MaxHVVoltage {
		alerts = append(alerts, Alert{
			Type:       "HVVoltage",
			Severity:   "critical",
			Message:    fmt.Sprintf("HV battery voltage exceeds limit (%.1f > %.1f)", v.State.HVVoltage, profile.MaxHVVoltage),
			Timestamp:  now,
			Value:      v.State.HVVoltage,
			Threshold:  profile.MaxHVVoltage,
			Capability: CapHVVoltage,
		})
	}

	if profile.MinHVVoltage > 0 && v.State.HVVoltage > 0 && v.State.HVVoltage < profile.MinHVVoltage {
		alerts = append(alerts, Alert{
			Type:       "HVVoltage",
			Severity:   "warning",
			Message:    fmt.Sprintf("HV battery voltage below minimum (%.1f < %.1f)", v.State.HVVoltage, profile.MinHVVoltage),
			Timestamp:  now,
			Value:      v.State.HVVoltage,
			Threshold:  profile.MinHVVoltage,
			Capability: CapHVVoltage,
		})
	}

	if profile.MaxHVTemp > 0 && v.State.HVTempMax > profile.MaxHVTemp {
		alerts = append(alerts, Alert{
			Type:       "HVTemperature",
			Severity:   "warning",
			Message:    fmt.Sprintf("HV battery temperature too high: %.1f°C", v.State.HVTempMax),
			Timestamp:  now,
			Value:      v.State.HVTempMax,
			Threshold:  profile.MaxHVTemp,
			Capability: CapHVTempMax,
		})
	}

	if profile.MaxLVTemp > 0 && v.State.LVTemp > profile.MaxLVTemp {
		alerts = append(alerts, Alert{
			Type:       "LVTemperature",
			Severity:   "warning",
			Message:    fmt.Sprintf("LV battery temperature too high: %.1f°C", v.State.LVTemp),
			Timestamp:  now,
			Value:      v.State.LVTemp,
			Threshold:  profile.MaxLVTemp,
			Capability: CapLVTemp,
		})
	}

	if profile.MaxFrontTorque > 0 && v.State.FrontTorque > profile.MaxFrontTorque {
		alerts = append(alerts, Alert{
			Type:       "FrontTorque",
			Severity:   "warning",
			Message:    fmt.Sprintf("Front traction torque exceeds expected max: %.1f Nm", v.State.FrontTorque),
			Timestamp:  now,
			Value:      v.State.FrontTorque,
			Threshold:  profile.MaxFrontTorque,
			Capability: CapFrontTorque,
		})
	}

	if profile.MaxRearTorque > 0 && v.State.RearTorque > profile.MaxRearTorque {
		alerts = append(alerts, Alert{
			Type:       "RearTorque",
			Severity:   "warning",
			Message:    fmt.Sprintf("Rear traction torque exceeds expected max: %.1f Nm", v.State.RearTorque),
			Timestamp:  now,
			Value:      v.State.RearTorque,
			Threshold:  profile.MaxRearTorque,
			Capability: CapRearTorque,
		})
	}

	for cap, threshold := range profile.CustomThresholds {
		if value, ok := valueForCapability(v.State, cap); ok && value > threshold {
			alerts = append(alerts, Alert{
				Type:       "Custom",
				Severity:   "warning",
				Message:    fmt.Sprintf("Custom threshold exceeded for %s: %.1f > %.1f", CapabilityNames[cap], value, threshold),
				Timestamp:  now,
				Value:      value,
				Threshold:  threshold,
				Capability: cap,
			})
		}
	}

	return alerts, nil
}

// valueForCapability reads the State field matching a single-bit Capability.
func valueForCapability(state State, cap Capability) (float64, bool) {
	switch cap {
	case CapHVVoltage:
		return state.HVVoltage, true
	case CapHVCurrent:
		return state.HVCurrent, true
	case CapHVTempMin:
		return state.HVTempMin, true
	case CapHVTempMax:
		return state.HVTempMax, true
	case CapLVVoltage:
		return state.LVVoltage, true
	case CapLVCurrent:
		return state.LVCurrent, true
	case CapLVTemp:
		return state.LVTemp, true
	case CapAuxPower:
		return state.AuxPower, true
	case CapFrontTorque:
		return state.FrontTorque, true
	case CapRearTorque:
		return state.RearTorque, true
	case CapSpeed:
		return state.Speed, true
	case CapElevation:
		return state.Elevation, true
	default:
		return 0, false
	}
}

// BuildPerformanceReport turns analysis metrics (internal/analysis) into
// a PerformanceReport, scoring efficiency from the EV quantities this
// decoder core actually produces.
func BuildPerformanceReport(duration time.Duration, avgSpeed, maxSpeed, avgTorque, maxTorque, idlePercent float64, rapidAccels, rapidDecels int) *PerformanceReport {
	report := &PerformanceReport{
		Timestamp: time.Now(),
		Duration:  duration,
		Stats: PerformanceStats{
			AverageSpeed:     avgSpeed,
			MaxSpeed:         maxSpeed,
			AverageFrontTorq: avgTorque,
			MaxFrontTorq:     maxTorque,
			IdleTimePercent:  idlePercent,
			RapidAccels:      rapidAccels,
			RapidDecels:      rapidDecels,
		},
		Alerts: make([]Alert, 0),
	}

	if avgSpeed > 0 {
		report.Stats.EfficiencyScore = calculateEfficiencyScore(idlePercent, rapidAccels, rapidDecels)
	}

	return report
}

// calculateEfficiencyScore generates a 0-100 score based on idle time and
// harsh-driving events.
func calculateEfficiencyScore(idlePercent float64, rapidAccels, rapidDecels int) float64 {
	score := 100.0

	if idlePercent > 20 {
		score -= (idlePercent - 20) * 0.5
	}

	score -= float64(rapidAccels) * 2
	score -= float64(rapidDecels) * 2

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return score
}
