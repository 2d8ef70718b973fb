package models

import "time"

// TrendSignal is one observed signal inside a trend cluster.
type TrendSignal struct {
	Name       string  `json:"name"`
	Lifecycle  string  `json:"lifecycle"` // "emerging", "peaking", "declining"
	Velocity   float64 `json:"velocity"`
	Confidence float64 `json:"confidence"`
}

// TrendCluster is an intelligence-department grouping of related signals.
// Trend clusters are promotion sources: promoting one seeds a strategy
// project with a synthesized summary of its strongest signals.
type TrendCluster struct {
	ID         string        `json:"id" badgerhold:"key"`
	Name       string        `json:"name"`
	Department Department    `json:"department"`
	Summary    string        `json:"summary,omitempty"`
	Signals    []TrendSignal `json:"signals,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
