// Package performance provides performance tracking and monitoring capabilities
// for LeadBeacon operations with real-time metrics.
package performance

import (
	"fmt"
	"sync"
	"time"
)

// Tracker manages performance markers and provides metrics aggregation
type Tracker struct {
	markers map[string]*Marker // Active and completed markers by unique ID
	mu      sync.RWMutex       // Protects concurrent access
	started time.Time          // When tracking started
	config  *TrackerConfig     // Tracker configuration
}

// TrackerConfig contains configuration options for the performance tracker
type TrackerConfig struct {
	MaxMarkers            int           `json:"maxMarkers"`            // Maximum number of markers to retain
	CleanupInterval       time.Duration `json:"cleanupInterval"`       // How often to clean up old data
	SlowResponseThreshold time.Duration `json:"slowResponseThreshold"` // Warn threshold for completed operations
}

// DefaultTrackerConfig returns a sensible default configuration
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		MaxMarkers:            10000,
		CleanupInterval:       time.Minute * 10,
		SlowResponseThreshold: time.Millisecond * 500,
	}
}

// NewTracker creates a new performance tracker with the given configuration
func NewTracker(config *TrackerConfig) *Tracker {
	if config == nil {
		config = DefaultTrackerConfig()
	}

	return &Tracker{
		markers: make(map[string]*Marker),
		started: time.Now(),
		config:  config,
	}
}

// StartOperation creates and registers a new performance marker
func (t *Tracker) StartOperation(operation string) *Marker {
	marker := &Marker{
		Operation: operation,
		StartTime: time.Now(),
		Success:   true, // Assume success unless explicitly set otherwise
		Metadata:  make(map[string]any),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	markerID := fmt.Sprintf("%s-%d", operation, marker.StartTime.UnixNano())
	t.markers[markerID] = marker

	if len(t.markers) > t.config.MaxMarkers {
		t.evictOldest()
	}

	return marker
}

// GetRecentMetrics returns completed markers within the given window
func (t *Tracker) GetRecentMetrics(within time.Duration) []Marker {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := time.Now().Add(-within)
	var metrics []Marker
	for _, marker := range t.markers {
		if marker.Completed && marker.EndTime.After(cutoff) {
			metrics = append(metrics, *marker)
		}
	}
	return metrics
}

// GetActiveOperations returns markers that have not completed yet
func (t *Tracker) GetActiveOperations() []Marker {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var active []Marker
	for _, marker := range t.markers {
		if !marker.Completed {
			active = append(active, *marker)
		}
	}
	return active
}

// GetOverallStats returns aggregate statistics for all tracked operations
func (t *Tracker) GetOverallStats() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var completed, failed, slow int
	var totalDuration time.Duration
	for _, marker := range t.markers {
		if !marker.Completed {
			continue
		}
		completed++
		totalDuration += marker.Duration
		if !marker.Success {
			failed++
		}
		if marker.Duration > t.config.SlowResponseThreshold {
			slow++
		}
	}

	stats := map[string]any{
		"uptime":     time.Since(t.started).String(),
		"tracked":    len(t.markers),
		"completed":  completed,
		"failed":     failed,
		"slow":       slow,
		"maxMarkers": t.config.MaxMarkers,
	}
	if completed > 0 {
		stats["avgDuration"] = (totalDuration / time.Duration(completed)).String()
	}
	return stats
}

// Cleanup removes completed markers older than the cleanup interval
func (t *Tracker) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-t.config.CleanupInterval)
	for id, marker := range t.markers {
		if marker.Completed && marker.EndTime.Before(cutoff) {
			delete(t.markers, id)
		}
	}
}

// evictOldest removes the oldest completed marker; caller must hold the lock.
func (t *Tracker) evictOldest() {
	var oldestID string
	var oldestTime time.Time
	for id, marker := range t.markers {
		if !marker.Completed {
			continue
		}
		if oldestID == "" || marker.EndTime.Before(oldestTime) {
			oldestID = id
			oldestTime = marker.EndTime
		}
	}
	if oldestID != "" {
		delete(t.markers, oldestID)
	}
}
