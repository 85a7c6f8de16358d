package models

import "time"

// ProgressSnapshot is a point-in-time view of a validation run.
type ProgressSnapshot struct {
	Processed  int
	Total      int
	Successful int
	Failed     int
	TwoFactor  int
	Stopped    bool
	Elapsed    time.Duration
	// Throughput is processed accounts per minute.
	Throughput float64
	// ETA estimates the remaining time at the current throughput.
	ETA time.Duration
}

// Percent returns run completion as a percentage.
func (s ProgressSnapshot) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Processed) / float64(s.Total) * 100
}

// HitRate returns the share of processed accounts that validated.
func (s ProgressSnapshot) HitRate() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.Processed) * 100
}
