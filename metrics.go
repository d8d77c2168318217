package edl

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the job-latency histogram buckets in
// nanoseconds. Buckets cover from 1ms to 100s log-spaced, wider than a
// block device's since one job here spans a whole partition transfer
// rather than a single sector I/O.
var LatencyBuckets = []uint64{
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	5_000_000_000,  // 5s
	10_000_000_000, // 10s
	30_000_000_000, // 30s
	100_000_000_000, // 100s
}

const numLatencyBuckets = 8

// Metrics tracks per-session job statistics: how many program/read/erase
// jobs ran, how many bytes moved, and how long each job took.
type Metrics struct {
	ProgramOps atomic.Uint64
	ReadOps    atomic.Uint64
	EraseOps   atomic.Uint64
	PatchOps   atomic.Uint64

	ProgramBytes atomic.Uint64
	ReadBytes    atomic.Uint64

	ProgramErrors atomic.Uint64
	ReadErrors    atomic.Uint64
	EraseErrors   atomic.Uint64
	PatchErrors   atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// LatencyBuckets[i] holds the cumulative count of jobs with latency
	// <= LatencyBuckets[i] (package-level var of the same name).
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a metrics instance timestamped at session open.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordProgram records one write/program job.
func (m *Metrics) RecordProgram(bytes uint64, latencyNs uint64, success bool) {
	m.ProgramOps.Add(1)
	if success {
		m.ProgramBytes.Add(bytes)
	} else {
		m.ProgramErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordRead records one read job.
func (m *Metrics) RecordRead(bytes uint64, latencyNs uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordErase records one erase job.
func (m *Metrics) RecordErase(latencyNs uint64, success bool) {
	m.EraseOps.Add(1)
	if !success {
		m.EraseErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordPatch records one patch application.
func (m *Metrics) RecordPatch(latencyNs uint64, success bool) {
	m.PatchOps.Add(1)
	if !success {
		m.PatchErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the session as closed.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time read of Metrics.
type MetricsSnapshot struct {
	ProgramOps uint64
	ReadOps    uint64
	EraseOps   uint64
	PatchOps   uint64

	ProgramBytes uint64
	ReadBytes    uint64

	ProgramErrors uint64
	ReadErrors    uint64
	EraseErrors   uint64
	PatchErrors   uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	ProgramThroughputBps float64
	ReadThroughputBps    float64
	TotalOps             uint64
	TotalBytes           uint64
	ErrorRate            float64
}

// Snapshot computes a MetricsSnapshot, including latency percentiles
// estimated by linear interpolation across the histogram buckets.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ProgramOps:    m.ProgramOps.Load(),
		ReadOps:       m.ReadOps.Load(),
		EraseOps:      m.EraseOps.Load(),
		PatchOps:      m.PatchOps.Load(),
		ProgramBytes:  m.ProgramBytes.Load(),
		ReadBytes:     m.ReadBytes.Load(),
		ProgramErrors: m.ProgramErrors.Load(),
		ReadErrors:    m.ReadErrors.Load(),
		EraseErrors:   m.EraseErrors.Load(),
		PatchErrors:   m.PatchErrors.Load(),
	}

	snap.TotalOps = snap.ProgramOps + snap.ReadOps + snap.EraseOps + snap.PatchOps
	snap.TotalBytes = snap.ProgramBytes + snap.ReadBytes

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.ProgramThroughputBps = float64(snap.ProgramBytes) / uptimeSeconds
		snap.ReadThroughputBps = float64(snap.ReadBytes) / uptimeSeconds
	}

	totalErrors := snap.ProgramErrors + snap.ReadErrors + snap.EraseErrors + snap.PatchErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters, used between test cases.
func (m *Metrics) Reset() {
	m.ProgramOps.Store(0)
	m.ReadOps.Store(0)
	m.EraseOps.Store(0)
	m.PatchOps.Store(0)
	m.ProgramBytes.Store(0)
	m.ReadBytes.Store(0)
	m.ProgramErrors.Store(0)
	m.ReadErrors.Store(0)
	m.EraseErrors.Store(0)
	m.PatchErrors.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer lets a UI collaborator receive job metrics without depending
// on Metrics directly (spec §5's "UI thread is a pure observer").
type Observer interface {
	ObserveProgram(bytes uint64, latencyNs uint64, success bool)
	ObserveRead(bytes uint64, latencyNs uint64, success bool)
	ObserveErase(latencyNs uint64, success bool)
	ObservePatch(latencyNs uint64, success bool)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveProgram(uint64, uint64, bool) {}
func (NoOpObserver) ObserveRead(uint64, uint64, bool)    {}
func (NoOpObserver) ObserveErase(uint64, bool)           {}
func (NoOpObserver) ObservePatch(uint64, bool)           {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver returns an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveProgram(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordProgram(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordRead(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveErase(latencyNs uint64, success bool) {
	o.metrics.RecordErase(latencyNs, success)
}

func (o *MetricsObserver) ObservePatch(latencyNs uint64, success bool) {
	o.metrics.RecordPatch(latencyNs, success)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
