package datastore

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/query"
)

// escapeFluxString escapes a value for interpolation inside a
// double-quoted Flux string literal. The client library's QueryAPI
// takes a raw query string with no parameter-binding support, so any
// value built into the filter predicate must be escaped by hand.
func escapeFluxString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// InfluxDBStore implements telemetry storage using InfluxDB. Each
// capability is written as its own field on a single "vehicle_telemetry" point
// per sample, so the field set tracks whatever the platform's decoder
// actually publishes rather than a fixed ICE PID list.
type InfluxDBStore struct {
	client   influxdb2.Client
	org      string
	bucket   string
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
}

// NewInfluxDBStore creates a new InfluxDB-backed store.
func NewInfluxDBStore(url, token, org, bucket string) (*InfluxDBStore, error) {
	client := influxdb2.NewClient(url, token)

	store := &InfluxDBStore{
		client:   client,
		org:      org,
		bucket:   bucket,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		queryAPI: client.QueryAPI(org),
	}

	if _, err := client.Ping(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	return store, nil
}

func (s *InfluxDBStore) SaveTelemetry(vin string, sample *TelemetrySample) error {
	fields := make(map[string]interface{}, len(sample.Values))
	for k, v := range sample.Values {
		fields[k] = v
	}

	point := influxdb2.NewPoint(
		"vehicle_telemetry",
		map[string]string{
			"vin": vin,
		},
		fields,
		sample.Timestamp,
	)

	if err := s.writeAPI.WritePoint(context.Background(), point); err != nil {
		return fmt.Errorf("failed to write telemetry sample: %w", err)
	}

	return nil
}

func (s *InfluxDBStore) GetTelemetry(vin string, start, end time.Time) ([]*TelemetrySample, error) {
	query := fmt.Sprintf(`
		from(bucket:"%s")
			|> range(start: %s, stop: %s)
			|> filter(fn: (r) => r["_measurement"] == "vehicle_telemetry" and r["vin"] == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
	`, s.bucket, start.Format(time.RFC3339), end.Format(time.RFC3339), escapeFluxString(vin))

	result, err := s.queryAPI.Query(context.Background(), query)
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry: %w", err)
	}
	defer result.Close()

	var samples []*TelemetrySample
	for result.Next() {
		record := result.Record()
		samples = append(samples, recordToSample(record, vin))
	}

	return samples, result.Err()
}

func (s *InfluxDBStore) GetLatestTelemetry(vin string) (*TelemetrySample, error) {
	query := fmt.Sprintf(`
		from(bucket:"%s")
			|> range(start: -1h)
			|> filter(fn: (r) => r["_measurement"] == "vehicle_telemetry" and r["vin"] == "%s")
			|> last()
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
	`, s.bucket, escapeFluxString(vin))

	result, err := s.queryAPI.Query(context.Background(), query)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest telemetry: %w", err)
	}
	defer result.Close()

	if !result.Next() {
		return nil, fmt.Errorf("no telemetry data found for VIN: %s", vin)
	}

	return recordToSample(result.Record(), vin), nil
}

// recordToSample collects every non-reserved field on a pivoted record
// into a TelemetrySample's Values map, keyed by its InfluxDB field name
// (matching vehicle.CapabilityNames).
func recordToSample(record *query.FluxRecord, vin string) *TelemetrySample {
	values := make(map[string]float64)
	for k, v := range record.Values() {
		if k == "_time" || k == "_measurement" || k == "_start" || k == "_stop" || k == "result" || k == "table" || k == "vin" {
			continue
		}
		if f, ok := v.(float64); ok {
			values[k] = f
		}
	}

	return &TelemetrySample{
		Timestamp: record.Time(),
		VIN:       vin,
		Values:    values,
	}
}

func (s *InfluxDBStore) Close() error {
	s.client.Close()
	return nil
}
