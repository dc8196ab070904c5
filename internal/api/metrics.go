package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-controls/internal/modulehost"
	"github.com/nerrad567/gray-logic-controls/internal/pool"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	WebSocket     WSMetrics         `json:"websocket"`
	ModuleHost    *modulehost.Stats `json:"module_host,omitempty"`
	Controls      ControlMetrics    `json:"controls"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int            `json:"connected_clients"`
	Subscribers      map[string]int `json:"subscribers"`
	DroppedEvents    uint64         `json:"dropped_events"`
}

// ControlMetrics contains control registry statistics.
type ControlMetrics struct {
	Total    int            `json:"total"`
	ByKind   map[string]int `json:"by_kind"`
	Learning int            `json:"learning"`
}

// handleMetrics returns runtime, hub, bridge and registry statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
		metrics.WebSocket.Subscribers = s.hub.Subscribers()
		metrics.WebSocket.DroppedEvents = s.hub.Dropped()
	}

	if s.bridge != nil {
		stats := s.bridge.Stats()
		metrics.ModuleHost = &stats
	}

	byKind := make(map[string]int, len(pool.AllKinds()))
	for _, k := range pool.AllKinds() {
		byKind[string(k)] = 0
	}
	controls := s.registry.ListControls()
	for _, c := range controls {
		byKind[string(c.Kind)]++
	}
	metrics.Controls = ControlMetrics{
		Total:    len(controls),
		ByKind:   byKind,
		Learning: len(s.registry.LearningIDs()),
	}

	writeJSON(w, http.StatusOK, metrics)
}
