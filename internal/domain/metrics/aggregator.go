// Package metrics derives read-only statistics from completion records. All
// functions are total (empty input yields zero values) and tolerate any
// record ordering.
package metrics

import (
	"math"
	"sort"

	"github.com/vitalsched/vitalsched/internal/domain/task"
	"github.com/vitalsched/vitalsched/internal/domain/tracker"
)

// GroupStats summarizes response-time latency for one slice of records.
type GroupStats struct {
	Count          int     `json:"count"`
	MeanLatency    float64 `json:"mean_latency"`
	MedianLatency  float64 `json:"median_latency"`
	StdDevLatency  float64 `json:"stddev_latency"`
	MinLatency     float64 `json:"min_latency"`
	MaxLatency     float64 `json:"max_latency"`
	ComplianceRate float64 `json:"compliance_rate"`
}

// TierComparison relates cloud latency to edge latency.
type TierComparison struct {
	EdgeMeanLatency    float64 `json:"edge_mean_latency"`
	CloudMeanLatency   float64 `json:"cloud_mean_latency"`
	CloudEdgeMeanRatio float64 `json:"cloud_edge_mean_ratio"`
}

// Summary is the full derived metrics snapshot served to the metrics sink.
type Summary struct {
	TotalTasks     int                         `json:"total_tasks"`
	Throughput     float64                     `json:"throughput"`
	P50            float64                     `json:"p50"`
	P90            float64                     `json:"p90"`
	P95            float64                     `json:"p95"`
	P99            float64                     `json:"p99"`
	ComplianceRate float64                     `json:"compliance_rate"`
	ByUrgency      map[task.Urgency]GroupStats `json:"by_urgency"`
	ByTier         map[string]GroupStats       `json:"by_tier"`
	Tiers          TierComparison              `json:"tiers"`
}

// Percentile computes the nearest-rank percentile of the values. Values need
// not be sorted. Returns 0 for empty input.
func Percentile(values []float64, pct int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(math.Ceil(float64(pct)/100.0*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev is the population standard deviation; 0 for fewer than two values.
func stdDev(values []float64) float64 {
	if len(values) <= 1 {
		return 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

func responseTimes(records []tracker.CompletionRecord) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.ResponseTime
	}
	return out
}

// ComplianceRate returns the fraction of SLA-compliant records, 0 when
// empty.
func ComplianceRate(records []tracker.CompletionRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	compliant := 0
	for _, r := range records {
		if r.SLACompliant {
			compliant++
		}
	}
	return float64(compliant) / float64(len(records))
}

// Throughput is completed tasks per second of observed run time, where run
// time is the maximum response time in the set.
func Throughput(records []tracker.CompletionRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	maxResp := 0.0
	for _, r := range records {
		if r.ResponseTime > maxResp {
			maxResp = r.ResponseTime
		}
	}
	if maxResp <= 0 {
		return 0
	}
	return float64(len(records)) / maxResp
}

func groupStats(records []tracker.CompletionRecord) GroupStats {
	if len(records) == 0 {
		return GroupStats{}
	}
	lat := responseTimes(records)
	minLat, maxLat := lat[0], lat[0]
	for _, v := range lat {
		if v < minLat {
			minLat = v
		}
		if v > maxLat {
			maxLat = v
		}
	}
	return GroupStats{
		Count:          len(records),
		MeanLatency:    mean(lat),
		MedianLatency:  Percentile(lat, 50),
		StdDevLatency:  stdDev(lat),
		MinLatency:     minLat,
		MaxLatency:     maxLat,
		ComplianceRate: ComplianceRate(records),
	}
}

// Summarize computes the full metrics snapshot from the record set.
func Summarize(records []tracker.CompletionRecord) Summary {
	byUrgency := make(map[task.Urgency][]tracker.CompletionRecord)
	byTier := make(map[string][]tracker.CompletionRecord)
	for _, r := range records {
		byUrgency[r.Urgency] = append(byUrgency[r.Urgency], r)
		byTier[r.Tier] = append(byTier[r.Tier], r)
	}

	s := Summary{
		TotalTasks:     len(records),
		Throughput:     Throughput(records),
		ComplianceRate: ComplianceRate(records),
		ByUrgency:      make(map[task.Urgency]GroupStats, len(byUrgency)),
		ByTier:         make(map[string]GroupStats, len(byTier)),
	}

	lat := responseTimes(records)
	s.P50 = Percentile(lat, 50)
	s.P90 = Percentile(lat, 90)
	s.P95 = Percentile(lat, 95)
	s.P99 = Percentile(lat, 99)

	for u, recs := range byUrgency {
		s.ByUrgency[u] = groupStats(recs)
	}
	for tier, recs := range byTier {
		s.ByTier[tier] = groupStats(recs)
	}

	edgeMean := s.ByTier["edge"].MeanLatency
	cloudMean := s.ByTier["cloud"].MeanLatency
	s.Tiers = TierComparison{
		EdgeMeanLatency:  edgeMean,
		CloudMeanLatency: cloudMean,
	}
	if edgeMean > 0 {
		s.Tiers.CloudEdgeMeanRatio = cloudMean / edgeMean
	}

	return s
}
