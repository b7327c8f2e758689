package datastore

import (
	"testing"
	"time"

	"github.com/anodyne74/evtelemetry/internal/vehicle"
)

func newTestStore(t *testing.T) *SQLiteStore {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndGetVehicle(t *testing.T) {
	store := newTestStore(t)

	v := &vehicle.Vehicle{
		VIN:          "5YJ3E1EA0LF000000",
		Make:         "Tesla",
		Model:        "Model 3",
		Year:         2023,
		Capabilities: vehicle.CapHVVoltage | vehicle.CapSpeed | vehicle.CapFrontTorque,
		LastUpdated:  time.Now().UTC().Truncate(time.Second),
	}

	if err := store.SaveVehicle(v); err != nil {
		t.Fatalf("SaveVehicle failed: %v", err)
	}

	got, err := store.GetVehicle(v.VIN)
	if err != nil {
		t.Fatalf("GetVehicle failed: %v", err)
	}
	if got.Make != v.Make || got.Model != v.Model {
		t.Errorf("expected %s %s, got %s %s", v.Make, v.Model, got.Make, got.Model)
	}
	if got.Capabilities != v.Capabilities {
		t.Errorf("expected capabilities %v, got %v", v.Capabilities, got.Capabilities)
	}
}

func TestGetVehicleNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetVehicle("does-not-exist")
	if err == nil {
		t.Error("expected an error for an unregistered VIN")
	}
}

func TestListVehicles(t *testing.T) {
	store := newTestStore(t)

	for _, vin := range []string{"VIN1", "VIN2"} {
		v := &vehicle.Vehicle{VIN: vin, Make: "Nissan", Model: "Leaf", Year: 2022, Capabilities: vehicle.CapHVVoltage}
		if err := store.SaveVehicle(v); err != nil {
			t.Fatalf("SaveVehicle failed: %v", err)
		}
	}

	vehicles, err := store.ListVehicles()
	if err != nil {
		t.Fatalf("ListVehicles failed: %v", err)
	}
	if len(vehicles) != 2 {
		t.Fatalf("expected 2 vehicles, got %d", len(vehicles))
	}
}

func TestDeleteVehicle(t *testing.T) {
	store := newTestStore(t)
	v := &vehicle.Vehicle{VIN: "VIN-DEL", Make: "Nissan", Model: "Leaf", Year: 2022}
	if err := store.SaveVehicle(v); err != nil {
		t.Fatalf("SaveVehicle failed: %v", err)
	}

	if err := store.DeleteVehicle("VIN-DEL"); err != nil {
		t.Fatalf("DeleteVehicle failed: %v", err)
	}

	if _, err := store.GetVehicle("VIN-DEL"); err == nil {
		t.Error("expected GetVehicle to fail after deletion")
	}
}

func TestSaveAndGetProfile(t *testing.T) {
	store := newTestStore(t)

	profile := &vehicle.Profile{
		MaxHVVoltage:   400.0,
		MinHVVoltage:   300.0,
		MaxFrontTorque: 250.0,
		CustomThresholds: map[vehicle.Capability]float64{
			vehicle.CapHVTempMax: 45.0,
		},
	}

	if err := store.SaveProfile("Tesla", "Model 3", profile); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}

	got, err := store.GetProfile("Tesla", "Model 3")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.MaxHVVoltage != profile.MaxHVVoltage {
		t.Errorf("expected MaxHVVoltage %v, got %v", profile.MaxHVVoltage, got.MaxHVVoltage)
	}
	if got.CustomThresholds[vehicle.CapHVTempMax] != 45.0 {
		t.Errorf("expected custom threshold 45.0, got %v", got.CustomThresholds[vehicle.CapHVTempMax])
	}
}

func TestSaveAndGetAlerts(t *testing.T) {
	store := newTestStore(t)
	vin := "VIN-ALERT"
	v := &vehicle.Vehicle{VIN: vin, Make: "Tesla", Model: "Model 3", Year: 2023}
	if err := store.SaveVehicle(v); err != nil {
		t.Fatalf("SaveVehicle failed: %v", err)
	}

	now := time.Now().UTC()
	alert := &vehicle.Alert{
		Type:       "HVVoltage",
		Severity:   "critical",
		Message:    "HV battery voltage exceeds limit",
		Timestamp:  now,
		Value:      410.0,
		Threshold:  400.0,
		Capability: vehicle.CapHVVoltage,
	}

	if err := store.SaveAlert(vin, alert); err != nil {
		t.Fatalf("SaveAlert failed: %v", err)
	}

	alerts, err := store.GetAlerts(vin, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("GetAlerts failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Capability != vehicle.CapHVVoltage {
		t.Errorf("expected capability %v, got %v", vehicle.CapHVVoltage, alerts[0].Capability)
	}
}

func TestSaveAndGetServiceHistory(t *testing.T) {
	store := newTestStore(t)
	vin := "VIN-SERVICE"
	v := &vehicle.Vehicle{VIN: vin, Make: "Tesla", Model: "Model 3", Year: 2023}
	if err := store.SaveVehicle(v); err != nil {
		t.Fatalf("SaveVehicle failed: %v", err)
	}

	record := &vehicle.ServiceRecord{
		Date:        time.Now().UTC(),
		Type:        "HV Battery Coolant Service",
		Description: "Replaced HV battery coolant",
		Mileage:     60000,
		Technician:  "J. Smith",
		Parts:       []string{"coolant"},
		Cost:        150.0,
	}

	if err := store.SaveServiceRecord(vin, record); err != nil {
		t.Fatalf("SaveServiceRecord failed: %v", err)
	}

	history, err := store.GetServiceHistory(vin)
	if err != nil {
		t.Fatalf("GetServiceHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 service record, got %d", len(history))
	}
	if history[0].Type != record.Type {
		t.Errorf("expected type %q, got %q", record.Type, history[0].Type)
	}
}
