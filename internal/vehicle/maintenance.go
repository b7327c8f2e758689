package vehicle

import "time"

// PerformanceReport represents a detailed analysis of vehicle performance
type PerformanceReport struct {
	Timestamp time.Time
	Duration  time.Duration
	Stats     PerformanceStats
	Alerts    []Alert
}

// PerformanceStats contains calculated performance metrics
type PerformanceStats struct {
	AverageSpeed     float64
	MaxSpeed         float64
	AverageFrontTorq float64
	MaxFrontTorq     float64
	IdleTimePercent  float64
	RapidAccels      int
	RapidDecels      int
	EfficiencyScore  float64
}

// Maintenance represents vehicle maintenance information
type Maintenance struct {
	LastService     time.Time
	NextService     time.Time
	Mileage         float64
	ServiceHistory  []ServiceRecord
	PendingServices []string
}

// ServiceRecord represents a maintenance service record
type ServiceRecord struct {
	Date        time.Time
	Type        string
	Description string
	Mileage     float64
	Technician  string
	Parts       []string
	Cost        float64
}

// ServiceSchedule represents maintenance intervals for a vehicle
type ServiceSchedule struct {
	Items []ServiceItem
}

// ServiceItem represents a scheduled maintenance item
type ServiceItem struct {
	Name           string
	IntervalMiles  float64
	IntervalMonths int
	Description    string
	EstimatedCost  float64
	Priority       string // "required", "recommended", "optional"
}

// DefaultServiceSchedule returns a basic EV service schedule. Unlike the
// ICE schedule it replaces, there is no oil or air filter interval; the
// items reflect the HV/LV systems this decoder core actually instruments.
func DefaultServiceSchedule() ServiceSchedule {
	return ServiceSchedule{
		Items: []ServiceItem{
			{
				Name:           "12V Battery Check",
				IntervalMiles:  10000,
				IntervalMonths: 12,
				Description:    "Test LV battery voltage and charging system",
				EstimatedCost:  20,
				Priority:       "recommended",
			},
			{
				Name:           "Tire Rotation",
				IntervalMiles:  7500,
				IntervalMonths: 6,
				Description:    "Rotate and balance tires",
				EstimatedCost:  30,
				Priority:       "recommended",
			},
			{
				Name:           "HV Battery Coolant Service",
				IntervalMiles:  60000,
				IntervalMonths: 60,
				Description:    "Inspect and replace HV battery coolant",
				EstimatedCost:  150,
				Priority:       "required",
			},
			{
				Name:           "Brake Service",
				IntervalMiles:  30000,
				IntervalMonths: 24,
				Description:    "Inspect and service brake system (regen reduces wear but fluid still ages)",
				EstimatedCost:  200,
				Priority:       "required",
			},
		},
	}
}
