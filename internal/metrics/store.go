package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// maxNodeSeriesKeys caps the number of per-node placement series kept in
// memory, to bound growth on clusters that churn node names.
const maxNodeSeriesKeys = 100_000

// Store is an in-memory time-series window over recent scheduling decisions,
// used by internal/apiserver to answer "how is the scheduler behaving right
// now" queries without going back to the durable audit log. Durable,
// queryable history lives in internal/audit's SQLite log; Store only ever
// holds the trailing retention window and is safe to lose on restart.
type Store struct {
	mu         sync.RWMutex
	decisions  []decisionPoint
	nodeSeries map[string][]time.Time // node name -> placement timestamps
	retention  time.Duration
}

type decisionPoint struct {
	Timestamp     time.Time
	LatencyMillis int64
	FeasibleNodes int
	Placed        bool
}

// NewStore creates a new metrics Store retaining data points younger than
// retention.
func NewStore(retention time.Duration) *Store {
	return &Store{
		nodeSeries: make(map[string][]time.Time),
		retention:  retention,
	}
}

// RecordDecision records the outcome of one Scheduler.Schedule call. node is
// empty when the call returned no feasible node.
func (s *Store) RecordDecision(ts time.Time, latency time.Duration, feasibleNodes int, node string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decisions = append(s.decisions, decisionPoint{
		Timestamp:     ts,
		LatencyMillis: latency.Milliseconds(),
		FeasibleNodes: feasibleNodes,
		Placed:        node != "",
	})
	s.evictDecisions()

	if node != "" {
		s.nodeSeries[node] = append(s.nodeSeries[node], ts)
		s.evictNode(node)
	}
}

// DecisionWindow summarizes scheduling decisions over a trailing duration.
type DecisionWindow struct {
	Start             time.Time
	End               time.Time
	DataPoints        int
	Placed            int
	Infeasible        int
	P50LatencyMillis  int64
	P95LatencyMillis  int64
	P99LatencyMillis  int64
	MaxLatencyMillis  int64
	MeanFeasibleNodes float64
}

// GetDecisionWindow returns a summary of decisions recorded within the last
// duration. Returns nil if no decisions fall in the window.
func (s *Store) GetDecisionWindow(duration time.Duration) *DecisionWindow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-duration)
	var filtered []decisionPoint
	for _, d := range s.decisions {
		if d.Timestamp.After(cutoff) {
			filtered = append(filtered, d)
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	latencies := make([]int64, len(filtered))
	feasibleSum := 0
	placed, infeasible := 0, 0
	for i, d := range filtered {
		latencies[i] = d.LatencyMillis
		feasibleSum += d.FeasibleNodes
		if d.Placed {
			placed++
		} else {
			infeasible++
		}
	}

	return &DecisionWindow{
		Start:             filtered[0].Timestamp,
		End:               filtered[len(filtered)-1].Timestamp,
		DataPoints:        len(filtered),
		Placed:            placed,
		Infeasible:        infeasible,
		P50LatencyMillis:  percentile(latencies, 50),
		P95LatencyMillis:  percentile(latencies, 95),
		P99LatencyMillis:  percentile(latencies, 99),
		MaxLatencyMillis:  maxVal(latencies),
		MeanFeasibleNodes: float64(feasibleSum) / float64(len(filtered)),
	}
}

// NodePlacementCount returns how many pods were placed on name within the
// trailing duration, used to spot a node being favored or starved.
func (s *Store) NodePlacementCount(name string, duration time.Duration) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-duration)
	count := 0
	for _, ts := range s.nodeSeries[name] {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}

func (s *Store) evictDecisions() {
	cutoff := time.Now().Add(-s.retention)
	i := 0
	for i < len(s.decisions) && s.decisions[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.decisions = s.decisions[i:]
	}
}

func (s *Store) evictNode(name string) {
	cutoff := time.Now().Add(-s.retention)
	points := s.nodeSeries[name]
	i := 0
	for i < len(points) && points[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		remaining := points[i:]
		if len(remaining) == 0 {
			delete(s.nodeSeries, name)
		} else {
			s.nodeSeries[name] = remaining
		}
	}
}

// Cleanup drops node series with no data points left in the retention
// window and enforces maxNodeSeriesKeys. Call this periodically (e.g.
// hourly) from cmd/skippyd.
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.retention)
	for key, points := range s.nodeSeries {
		if len(points) == 0 || points[len(points)-1].Before(cutoff) {
			delete(s.nodeSeries, key)
		}
	}

	if len(s.nodeSeries) > maxNodeSeriesKeys {
		type keyAge struct {
			key string
			ts  time.Time
		}
		entries := make([]keyAge, 0, len(s.nodeSeries))
		for k, pts := range s.nodeSeries {
			if len(pts) > 0 {
				entries = append(entries, keyAge{k, pts[len(pts)-1]})
			}
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].ts.Before(entries[j].ts) })
		toRemove := len(entries) - maxNodeSeriesKeys
		for i := 0; i < toRemove; i++ {
			delete(s.nodeSeries, entries[i].key)
		}
	}
}

// agg is the shared Aggregator used to reduce a window's latency samples
// into the percentiles/max DecisionWindow reports.
var agg = NewAggregator()

func percentile(values []int64, pct int) int64 {
	if len(values) == 0 {
		return 0
	}
	return int64(math.Round(agg.Percentile(toFloats(values), float64(pct))))
}

func maxVal(values []int64) int64 {
	if len(values) == 0 {
		return 0
	}
	return int64(agg.Max(toFloats(values)))
}

func toFloats(values []int64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
