// Package metrics provides in-memory timing statistics for pipeline stages.
package metrics

import (
	"math"
	"sync"
	"time"
)

// StageMetrics holds aggregated timings for a single stage.
type StageMetrics struct {
	Count     int64
	Items     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// StageSnapshot provides computed stats from raw metrics.
type StageSnapshot struct {
	Count       int64   `json:"count"`
	Items       int64   `json:"items"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// Snapshot is a point-in-time view of all recorded stages.
type Snapshot struct {
	UptimeSeconds float64                   `json:"uptime_seconds"`
	Stages        map[string]*StageSnapshot `json:"stages"`
}

// Collector aggregates in-memory timing statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	stages    map[string]*StageMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		stages:    make(map[string]*StageMetrics),
	}
}

// RecordStage records one stage pass over the given number of items.
func (c *Collector) RecordStage(stage string, items int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.stages[stage]
	if !ok {
		m = &StageMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.stages[stage] = m
	}

	m.Count++
	m.Items += int64(items)
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Stages:        make(map[string]*StageSnapshot, len(c.stages)),
	}
	for stage, m := range c.stages {
		if m.Count == 0 {
			continue
		}
		snap.Stages[stage] = &StageSnapshot{
			Count:       m.Count,
			Items:       m.Items,
			TotalTimeMs: m.TotalTime.Milliseconds(),
			AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
			MinTimeMs:   m.MinTime.Milliseconds(),
			MaxTimeMs:   m.MaxTime.Milliseconds(),
		}
	}
	return snap
}
