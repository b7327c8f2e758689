package capture

import (
	"fmt"
	"sync"
	"time"
)

// Recorder is the write side of the capture facility: while running it
// accumulates frames into a session, keeping a per-type tally that is
// stamped into the session metadata when recording stops. The dashboard's
// broadcast tick records one capability snapshot per interval; transports
// may record raw CAN frames alongside, interleaved by timestamp.
type Recorder struct {
	mu      sync.Mutex
	session *Session
	running bool
	counts  map[string]int
}

// NewRecorder creates a recorder with a fresh session for vehicleInfo.
func NewRecorder(vehicleInfo string) *Recorder {
	return &Recorder{
		session: NewSession(vehicleInfo),
		counts:  make(map[string]int),
	}
}

// SetFilePath sets where the session is written when the recorder stops.
func (r *Recorder) SetFilePath(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.SetFilePath(path)
}

// SetMetadata adds metadata to the session.
func (r *Recorder) SetMetadata(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.SetMetadata(key, value)
}

// Start begins the recording session.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("recorder is already running")
	}
	r.running = true
	return nil
}

// Stop ends the session, stamps the per-type frame tallies into its
// metadata, and saves it.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return fmt.Errorf("recorder is not running")
	}
	r.running = false

	for frameType, n := range r.counts {
		r.session.SetMetadata("frames."+frameType, fmt.Sprintf("%d", n))
	}
	return r.session.Save()
}

// Record adds a frame to the current session, stamping a timestamp if
// the caller left it zero.
func (r *Recorder) Record(frame Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return fmt.Errorf("recorder is not running")
	}
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now()
	}

	r.counts[frame.Type]++
	r.session.AddFrame(frame)
	return nil
}

// RecordSnapshot records one decoded capability snapshot: the updated
// bitmask and the value set the broker delivered this interval. The map
// is copied, so callers may reuse theirs.
func (r *Recorder) RecordSnapshot(updated uint32, values map[string]float64) error {
	copied := make(map[string]float64, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return r.Record(Frame{
		Type:    FrameTypeCapability,
		Decoded: &CapabilitySnapshot{Updated: updated, Values: copied},
	})
}

// RecordCANFrame records one raw CAN frame.
func (r *Recorder) RecordCANFrame(id uint32, data []byte) error {
	return r.Record(Frame{
		Type: FrameTypeCAN,
		ID:   id,
		Data: append([]byte(nil), data...),
	})
}

// FrameCount reports how many frames of frameType have been recorded.
func (r *Recorder) FrameCount(frameType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[frameType]
}

// IsRunning returns the current recording state.
func (r *Recorder) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
