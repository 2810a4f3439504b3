// Package feed receives sensor frames from the robot team and drives the
// particle filter engine. Robots send newline-delimited JSON frames over
// UDP; the same parser serves live traffic, pcap replays and the synthetic
// generator.
package feed

import (
	"encoding/json"
	"fmt"
)

// FrameType discriminates the sensor frame payloads.
type FrameType string

const (
	FrameOdometry  FrameType = "odometry"
	FrameLandmarks FrameType = "landmarks"
	FrameTarget    FrameType = "target"
)

// LandmarkSighting is one landmark entry inside a landmarks frame, in the
// robot's body frame. AreaRatio is the detected vs expected blob area used
// by the covariance model.
type LandmarkSighting struct {
	ID        int     `json:"id"`
	Found     bool    `json:"found"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	AreaRatio float64 `json:"area_ratio"`
}

// Frame is one sensor message from a robot. Robot ids are 1-based on the
// wire, matching the team numbering painted on the platforms.
type Frame struct {
	Type      FrameType `json:"type"`
	Robot     int       `json:"robot"`
	UnixNanos int64     `json:"t"`

	// Odometry increment (body frame), or target sighting position.
	X     float64 `json:"x,omitempty"`
	Y     float64 `json:"y,omitempty"`
	Z     float64 `json:"z,omitempty"`
	Theta float64 `json:"theta,omitempty"`

	// Target payload
	Found    bool    `json:"found,omitempty"`
	Mismatch float64 `json:"mismatch,omitempty"`

	// Landmarks payload
	Landmarks []LandmarkSighting `json:"landmarks,omitempty"`
}

// ParseFrame decodes and validates a single JSON frame.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("bad frame JSON: %w", err)
	}
	switch f.Type {
	case FrameOdometry, FrameLandmarks, FrameTarget:
	default:
		return Frame{}, fmt.Errorf("unknown frame type %q", f.Type)
	}
	if f.Robot < 1 {
		return Frame{}, fmt.Errorf("frame robot id %d is not 1-based", f.Robot)
	}
	return f, nil
}

// Encode serializes a frame to its wire form, without the trailing newline.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}
