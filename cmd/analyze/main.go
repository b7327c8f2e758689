package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/anodyne74/evtelemetry/internal/analysis"
	"github.com/anodyne74/evtelemetry/internal/capture"
	"github.com/anodyne74/evtelemetry/internal/vehicle"
)

func main() {
	var (
		inputFile string
		fullPhase bool
	)

	flag.StringVar(&inputFile, "file", "", "Capture file to analyze")
	flag.BoolVar(&fullPhase, "full", false, "Print individual driving phases")
	flag.Parse()

	if inputFile == "" {
		fmt.Println("Please specify a capture file with -file")
		os.Exit(1)
	}

	session, err := capture.LoadSession(inputFile)
	if err != nil {
		log.Fatalf("Failed to load session: %v", err)
	}

	analyzer := analysis.NewAnalyzer(session, analysis.DefaultOptions())
	result, err := analyzer.Analyze()
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	fmt.Printf("\nSession Analysis for %s\n", filepath.Base(inputFile))
	fmt.Printf("=================================\n")
	fmt.Printf("Duration: %s\n", result.SessionInfo.Duration)
	fmt.Printf("Total Frames: %d\n", result.SessionInfo.TotalFrames)
	fmt.Printf("Unique CAN IDs: %d\n", result.CANActivity.UniqueIDs)
	fmt.Printf("Bus Load: %.2f%%\n", result.CANActivity.BusLoad)

	fmt.Printf("\nPerformance Metrics:\n")
	fmt.Printf("- Max Speed: %.2f km/h\n", result.Performance.Speed.Max)
	fmt.Printf("- Average Speed: %.2f km/h\n", result.Performance.Speed.Mean)
	fmt.Printf("- Max Front Torque: %.2f Nm\n", result.Performance.FrontTorque.Max)
	fmt.Printf("- HV Voltage Range: %.1f - %.1f V\n", result.Performance.HVVoltage.Min, result.Performance.HVVoltage.Max)
	fmt.Printf("- Max HV Temp: %.1f degC\n", result.Performance.HVTempMax.Max)
	fmt.Printf("- Data Rate: %.2f frames/sec\n", result.Performance.DataRate)

	fmt.Printf("\nDriving Behavior:\n")
	fmt.Printf("- Idle Time: %.1f%%\n", result.DrivingBehavior.IdleTime)
	fmt.Printf("- Rapid Accelerations: %d\n", result.DrivingBehavior.RapidAccel)
	fmt.Printf("- Rapid Decelerations: %d\n", result.DrivingBehavior.RapidDecel)

	if fullPhase {
		fmt.Printf("\nDriving Phases:\n")
		for _, phase := range result.DrivingBehavior.Phases {
			fmt.Printf("- %s: %s (%s - %s)\n", phase.Type, phase.Duration,
				phase.StartTime.Format("15:04:05"), phase.EndTime.Format("15:04:05"))
		}
	}

	report := vehicle.BuildPerformanceReport(
		result.SessionInfo.Duration,
		result.Performance.Speed.Mean, result.Performance.Speed.Max,
		result.Performance.FrontTorque.Mean, result.Performance.FrontTorque.Max,
		result.DrivingBehavior.IdleTime,
		result.DrivingBehavior.RapidAccel, result.DrivingBehavior.RapidDecel,
	)
	fmt.Printf("\nEfficiency Score: %.1f/100\n", report.Stats.EfficiencyScore)
}
