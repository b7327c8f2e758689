package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// LoadSession reads a session previously written by Session.Save.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// Replayer replays a session's frames in the order they are stored, at
// a configurable speed multiplier, preserving the inter-frame gaps
// recorded during capture.
type Replayer struct {
	session *Session
	speed   float64
}

// NewReplayer creates a replayer for session. Speed defaults to 1.0
// (real-time) until SetSpeed is called.
func NewReplayer(session *Session) *Replayer {
	return &Replayer{session: session, speed: 1.0}
}

// SetSpeed sets the replay speed multiplier; 2.0 plays twice as fast,
// 0.5 half as fast. Values <= 0 disable the inter-frame delay entirely.
func (r *Replayer) SetSpeed(speed float64) {
	r.speed = speed
}

// Play delivers each frame to fn in order, sleeping between frames to
// reproduce the original timing scaled by speed.
func (r *Replayer) Play(fn func(frame Frame)) {
	frames := r.session.Frames
	for i, frame := range frames {
		if i > 0 && r.speed > 0 {
			gap := frame.Timestamp.Sub(frames[i-1].Timestamp)
			if gap > 0 {
				time.Sleep(time.Duration(float64(gap) / r.speed))
			}
		}
		fn(frame)
	}
}
