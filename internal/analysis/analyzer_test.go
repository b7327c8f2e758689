package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/anodyne74/evtelemetry/internal/capture"
)

func TestAnalyzer(t *testing.T) {
	now := time.Now()
	session := &capture.Session{
		StartTime:   now,
		EndTime:     now.Add(10 * time.Second),
		VehicleInfo: "5YJ3E1EA0LF000000 Model 3 2023",
		Frames: []capture.Frame{
			// Idle phase
			{
				Type:      capture.FrameTypeCapability,
				Timestamp: now,
				Decoded: &capture.CapabilitySnapshot{
					Values: map[string]float64{
						"speed":        0.0,
						"front_torque": 5.0,
						"hv_voltage":   380.0,
					},
				},
			},
			// Acceleration phase
			{
				Type:      capture.FrameTypeCapability,
				Timestamp: now.Add(2 * time.Second),
				Decoded: &capture.CapabilitySnapshot{
					Values: map[string]float64{
						"speed":        20.0,
						"front_torque": 180.0,
						"hv_voltage":   370.0,
					},
				},
			},
			// Further acceleration (20 km/h/s)
			{
				Type:      capture.FrameTypeCapability,
				Timestamp: now.Add(4 * time.Second),
				Decoded: &capture.CapabilitySnapshot{
					Values: map[string]float64{
						"speed":        60.0,
						"front_torque": 60.0,
						"hv_voltage":   365.0,
					},
				},
			},
			// Deceleration phase
			{
				Type:      capture.FrameTypeCapability,
				Timestamp: now.Add(6 * time.Second),
				Decoded: &capture.CapabilitySnapshot{
					Values: map[string]float64{
						"speed":        30.0,
						"front_torque": 10.0,
						"hv_voltage":   368.0,
					},
				},
			},
			// Raw CAN frame
			{
				Type:      capture.FrameTypeCAN,
				Timestamp: now.Add(8 * time.Second),
				ID:        0x7E8,
				Data:      []byte{0x02, 0x41, 0x0D, 0x45, 0x00, 0x00, 0x00, 0x00},
			},
		},
	}

	analyzer := NewAnalyzer(session, DefaultOptions())

	analysis, err := analyzer.Analyze()
	if err != nil {
		t.Fatalf("Analysis failed: %v", err)
	}

	if analysis.SessionInfo.Duration != 10*time.Second {
		t.Errorf("Expected duration 10s, got %v", analysis.SessionInfo.Duration)
	}
	if analysis.SessionInfo.TotalFrames != 5 {
		t.Errorf("Expected 5 frames, got %d", analysis.SessionInfo.TotalFrames)
	}

	if analysis.Performance.Speed.Max != 60.0 {
		t.Errorf("Expected max speed 60.0, got %f", analysis.Performance.Speed.Max)
	}
	if analysis.Performance.HVVoltage.Min != 365.0 {
		t.Errorf("Expected min HV voltage 365.0, got %f", analysis.Performance.HVVoltage.Min)
	}

	if analysis.DrivingBehavior.RapidAccel == 0 {
		t.Error("Expected at least one rapid acceleration")
	}
	if analysis.DrivingBehavior.RapidDecel == 0 {
		t.Error("Expected at least one rapid deceleration")
	}

	if analysis.CANActivity.UniqueIDs != 1 {
		t.Errorf("Expected 1 unique CAN ID, got %d", analysis.CANActivity.UniqueIDs)
	}
}

func TestCalculateStats(t *testing.T) {
	values := []float64{1.0, 2.0, 3.0, 4.0, 5.0}
	stats := CalculateStats(values)

	expected := Stats{
		Min:    1.0,
		Max:    5.0,
		Mean:   3.0,
		StdDev: 1.5811388300841898,
	}

	if stats.Min != expected.Min {
		t.Errorf("Expected min %f, got %f", expected.Min, stats.Min)
	}
	if stats.Max != expected.Max {
		t.Errorf("Expected max %f, got %f", expected.Max, stats.Max)
	}
	if stats.Mean != expected.Mean {
		t.Errorf("Expected mean %f, got %f", expected.Mean, stats.Mean)
	}
	if math.Abs(stats.StdDev-expected.StdDev) > 0.0001 {
		t.Errorf("Expected stddev %f, got %f", expected.StdDev, stats.StdDev)
	}
}
