// Package singleinstance lets one resident own the loopback HTTP endpoint and
// lets clients find it.
package singleinstance

import (
	"errors"
)

const (
	residentHost = "127.0.0.1"
	// HealthPath answers Health for discovery.
	HealthPath = "/api/health"
	// ServiceName identifies a WatchPoint resident on the health endpoint.
	ServiceName = "watchpoint"
)

// ErrAlreadyRunning is returned when another resident owns the start port.
var ErrAlreadyRunning = errors.New("another resident is already running")

// ErrNotFound is returned when no resident answers in the range.
var ErrNotFound = errors.New("no resident found")

// Health is the discovery document served on HealthPath.
type Health struct {
	Service string `json:"service"`
	Status  string `json:"status"`
	PID     int    `json:"pid,omitempty"`
	Version string `json:"version,omitempty"`
}

// OK reports whether h identifies a healthy resident.
func (h Health) OK() bool { return h.Service == ServiceName && h.Status == "ok" }
