package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Frame type tags. "CAN" and "OBD2" carry raw/request-level traffic;
// "CAPABILITY" carries a decoded snapshot of the broker's published
// values, letting a capture session interleave wire-level frames with
// what the vehicle manager actually resolved them to.
const (
	FrameTypeCAN        = "CAN"
	FrameTypeOBD2       = "OBD2"
	FrameTypeCapability = "CAPABILITY"
)

// CapabilitySnapshot is the Decoded payload of a FrameTypeCapability
// frame: the capability mask updated on this tick and the values
// published for it, keyed by name (matching vehicle.CapabilityNames).
type CapabilitySnapshot struct {
	Updated uint32             `json:"updated"`
	Values  map[string]float64 `json:"values"`
}

// Frame represents a captured data frame.
type Frame struct {
	Timestamp time.Time   `json:"timestamp"`
	Type      string      `json:"type"`         // FrameTypeCAN, FrameTypeOBD2 or FrameTypeCapability
	ID        uint32      `json:"id,omitempty"` // CAN ID if applicable
	Data      []byte      `json:"data"`         // Raw frame data
	Decoded   interface{} `json:"decoded"`      // Decoded data (if available); a *CapabilitySnapshot for FrameTypeCapability
}

// UnmarshalJSON restores the concrete Decoded payload a saved session
// would otherwise lose to generic JSON decoding: a FrameTypeCapability
// frame's Decoded comes back as a *CapabilitySnapshot, so the analyzer
// sees the same shape on a loaded session as on a live one.
func (f *Frame) UnmarshalJSON(data []byte) error {
	type alias Frame
	aux := struct {
		Decoded json.RawMessage `json:"decoded"`
		*alias
	}{alias: (*alias)(f)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if len(aux.Decoded) == 0 || string(aux.Decoded) == "null" {
		f.Decoded = nil
		return nil
	}

	if f.Type == FrameTypeCapability {
		var snap CapabilitySnapshot
		if err := json.Unmarshal(aux.Decoded, &snap); err != nil {
			return fmt.Errorf("failed to unmarshal capability snapshot: %w", err)
		}
		f.Decoded = &snap
		return nil
	}

	var generic interface{}
	if err := json.Unmarshal(aux.Decoded, &generic); err != nil {
		return err
	}
	f.Decoded = generic
	return nil
}

// Session represents a capture session
type Session struct {
	StartTime   time.Time         `json:"start_time"`
	EndTime     time.Time         `json:"end_time,omitempty"`
	VehicleInfo string            `json:"vehicle_info"`
	Frames      []Frame           `json:"frames"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	filePath    string            // Path where session will be saved
}

// NewSession creates a new capture session
func NewSession(vehicleInfo string) *Session {
	return &Session{
		StartTime:   time.Now(),
		VehicleInfo: vehicleInfo,
		Frames:      make([]Frame, 0),
		Metadata:    make(map[string]string),
	}
}

// AddFrame adds a frame to the session
func (s *Session) AddFrame(frame Frame) {
	s.Frames = append(s.Frames, frame)
}

// SetMetadata adds or updates metadata
func (s *Session) SetMetadata(key, value string) {
	s.Metadata[key] = value
}

// SetFilePath sets where Save writes the session, overriding the
// generated default under captures/.
func (s *Session) SetFilePath(path string) {
	s.filePath = path
}

// Save writes the session to disk
func (s *Session) Save() error {
	if s.filePath == "" {
		// Generate default filename if none specified
		timestamp := time.Now().Format("20060102_150405")
		s.filePath = filepath.Join("captures", fmt.Sprintf("session_%s.json", timestamp))
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Set end time
	s.EndTime = time.Now()

	// Marshal to JSON
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Write to file
	if err := os.WriteFile(s.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	return nil
}
