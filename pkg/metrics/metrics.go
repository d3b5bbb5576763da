// Package metrics keeps local time series for toggle operations and
// host load, backed by an embedded tsdb under the workdir.
package metrics

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/nakabonne/tstorage"
	"go.uber.org/zap"
)

const (
	MetricToggleLatency = "poe_toggle_latency_ms"
	MetricToggleTotal   = "poe_toggle_total"
	MetricSystemCPU     = "system_cpu_percent"
	MetricSystemMem     = "system_mem_percent"
)

var (
	mu      sync.Mutex
	storage tstorage.Storage
)

// InitMetrics opens the metrics storage under workdir/metrics.
func InitMetrics(workdir string) error {
	mu.Lock()
	defer mu.Unlock()
	s, err := tstorage.NewStorage(
		tstorage.WithDataPath(filepath.Join(workdir, "metrics")),
		tstorage.WithTimestampPrecision(tstorage.Seconds),
		tstorage.WithPartitionDuration(6*time.Hour),
		tstorage.WithRetention(7*24*time.Hour),
	)
	if err != nil {
		return err
	}
	storage = s
	return nil
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if storage == nil {
		return nil
	}
	err := storage.Close()
	storage = nil
	return err
}

func insert(rows []tstorage.Row) {
	mu.Lock()
	s := storage
	mu.Unlock()
	if s == nil {
		return
	}
	if err := s.InsertRows(rows); err != nil {
		zap.L().Debug("metrics insert failed", zap.Error(err))
	}
}

// RecordToggle stores one toggle exchange: its latency and outcome,
// labelled by switch address.
func RecordToggle(ipaddr string, latency time.Duration, success bool) {
	now := time.Now().Unix()
	outcome := "ok"
	if !success {
		outcome = "failed"
	}
	insert([]tstorage.Row{
		{
			Metric:    MetricToggleLatency,
			Labels:    []tstorage.Label{{Name: "ipaddr", Value: ipaddr}},
			DataPoint: tstorage.DataPoint{Timestamp: now, Value: float64(latency.Milliseconds())},
		},
		{
			Metric:    MetricToggleTotal,
			Labels:    []tstorage.Label{{Name: "outcome", Value: outcome}},
			DataPoint: tstorage.DataPoint{Timestamp: now, Value: 1},
		},
	})
}

// RecordSystem stores host load gauges.
func RecordSystem(cpuPercent, memPercent float64) {
	now := time.Now().Unix()
	insert([]tstorage.Row{
		{Metric: MetricSystemCPU, DataPoint: tstorage.DataPoint{Timestamp: now, Value: cpuPercent}},
		{Metric: MetricSystemMem, DataPoint: tstorage.DataPoint{Timestamp: now, Value: memPercent}},
	})
}

// LatencySummary summary statistics over recent toggle latency
type LatencySummary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean_ms"`
	P95   float64 `json:"p95_ms"`
	Max   float64 `json:"max_ms"`
}

// ToggleLatencySummary aggregates toggle latency for one switch over
// the trailing window. A switch with no samples yields a zero value.
func ToggleLatencySummary(ipaddr string, window time.Duration) LatencySummary {
	mu.Lock()
	s := storage
	mu.Unlock()
	if s == nil {
		return LatencySummary{}
	}
	end := time.Now().Unix()
	start := end - int64(window.Seconds())
	points, err := s.Select(MetricToggleLatency,
		[]tstorage.Label{{Name: "ipaddr", Value: ipaddr}}, start, end)
	if err != nil || len(points) == 0 {
		return LatencySummary{}
	}
	values := make([]float64, 0, len(points))
	for _, point := range points {
		values = append(values, point.Value)
	}
	mean, _ := stats.Mean(values)
	p95, _ := stats.Percentile(values, 95)
	max, _ := stats.Max(values)
	return LatencySummary{Count: len(values), Mean: mean, P95: p95, Max: max}
}
