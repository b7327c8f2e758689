package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/anodyne74/evtelemetry/internal/datastore"
)

func main() {
	var (
		dbPath     string
		vin        string
		queryType  string
		sinceHours int
		formatJSON bool
	)

	flag.StringVar(&dbPath, "db", "telemetry.db", "Path to the SQLite registration database")
	flag.StringVar(&vin, "vin", "", "Vehicle VIN to query")
	flag.StringVar(&queryType, "query", "vehicle", "Type of query: vehicle, profile, reports, alerts")
	flag.IntVar(&sinceHours, "since", 24, "Lookback window in hours for reports/alerts")
	flag.BoolVar(&formatJSON, "json", false, "Output in JSON format")
	flag.Parse()

	store, err := datastore.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	end := time.Now()
	start := end.Add(-time.Duration(sinceHours) * time.Hour)

	switch queryType {
	case "vehicle":
		if vin == "" {
			vehicles, err := store.ListVehicles()
			if err != nil {
				log.Fatalf("Failed to list vehicles: %v", err)
			}
			output(vehicles, formatJSON)
			return
		}
		v, err := store.GetVehicle(vin)
		if err != nil {
			log.Fatalf("Failed to get vehicle: %v", err)
		}
		output(v, formatJSON)

	case "profile":
		profiles, err := store.ListProfiles()
		if err != nil {
			log.Fatalf("Failed to list profiles: %v", err)
		}
		output(profiles, formatJSON)

	case "reports":
		if vin == "" {
			fmt.Println("Please specify -vin for a reports query")
			os.Exit(1)
		}
		reports, err := store.GetPerformanceReports(vin, start, end)
		if err != nil {
			log.Fatalf("Failed to get performance reports: %v", err)
		}
		output(reports, formatJSON)

	case "alerts":
		if vin == "" {
			fmt.Println("Please specify -vin for an alerts query")
			os.Exit(1)
		}
		alerts, err := store.GetAlerts(vin, start, end)
		if err != nil {
			log.Fatalf("Failed to get alerts: %v", err)
		}
		output(alerts, formatJSON)

	default:
		fmt.Printf("Unknown query type %q\n", queryType)
		os.Exit(1)
	}
}

func output(data interface{}, formatJSON bool) {
	if formatJSON {
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal data: %v", err)
		}
		fmt.Println(string(out))
		return
	}
	fmt.Printf("%+v\n", data)
}
