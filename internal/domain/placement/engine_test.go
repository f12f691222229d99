package placement

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vitalsched/vitalsched/internal/domain/task"
)

type fakeFabric struct {
	edgeRates  []float64
	cloudRates []float64
}

func (f *fakeFabric) TierNodeCount(tier string) int {
	if tier == TierEdge {
		return len(f.edgeRates)
	}
	return len(f.cloudRates)
}

func (f *fakeFabric) NodeRates(tier string) []float64 {
	if tier == TierEdge {
		return f.edgeRates
	}
	return f.cloudRates
}

func normalVitals() task.VitalSigns {
	return task.VitalSigns{HeartRate: 75, SystolicBP: 120, Temperature: 36.8, SpO2: 98}
}

func mustTask(t *testing.T, id int64, urgency task.Urgency, vitals task.VitalSigns) *task.Task {
	t.Helper()
	tk, err := task.New(id, int(id), urgency, vitals, 0)
	if err != nil {
		t.Fatalf("task.New: %v", err)
	}
	return tk
}

func newEngine(f Fabric) *Engine {
	return NewEngine(f, 0, 1, zerolog.Nop())
}

func TestAssign_CriticalAlwaysEdgeFastestNode(t *testing.T) {
	f := &fakeFabric{edgeRates: []float64{1000, 3000, 2000}, cloudRates: []float64{5000}}
	e := newEngine(f)

	tk := mustTask(t, 1, task.UrgencyCritical, normalVitals())
	d, err := e.Assign(tk)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if d.Tier != TierEdge {
		t.Errorf("tier = %s, want edge", d.Tier)
	}
	if d.Node != 1 {
		t.Errorf("node = %d, want 1 (highest rate)", d.Node)
	}
	if tk.AssignedTier() != TierEdge {
		t.Errorf("task tier = %q, want edge", tk.AssignedTier())
	}
	if d.Slice != "URLLC" {
		t.Errorf("slice = %s, want URLLC", d.Slice)
	}
}

func TestAssign_NormalAlwaysCloudRoundRobin(t *testing.T) {
	f := &fakeFabric{edgeRates: []float64{2500}, cloudRates: []float64{1000, 1000, 1000}}
	e := newEngine(f)

	for _, want := range []struct {
		id   int64
		node int
	}{{0, 0}, {1, 1}, {2, 2}, {3, 0}, {7, 1}} {
		tk := mustTask(t, want.id, task.UrgencyNormal, normalVitals())
		d, err := e.Assign(tk)
		if err != nil {
			t.Fatalf("Assign: %v", err)
		}
		if d.Tier != TierCloud {
			t.Errorf("task %d: tier = %s, want cloud", want.id, d.Tier)
		}
		if d.Node != want.node {
			t.Errorf("task %d: node = %d, want %d", want.id, d.Node, want.node)
		}
	}
}

// fillEdge places enough CRITICAL tasks to push edge utilization to the
// given level. With n nodes and slack s, each placement adds 1/(n*s).
func fillEdge(t *testing.T, e *Engine, placements int) {
	t.Helper()
	for i := 0; i < placements; i++ {
		tk := mustTask(t, int64(1000+i), task.UrgencyCritical, normalVitals())
		if _, err := e.Assign(tk); err != nil {
			t.Fatalf("fillEdge: %v", err)
		}
	}
}

func TestAssign_HighAbnormalVitalsWiderEdgeWindow(t *testing.T) {
	// 4 edge nodes, slack 5 -> each placement adds 0.05 utilization.
	f := &fakeFabric{
		edgeRates:  []float64{2500, 2500, 2500, 2500},
		cloudRates: []float64{1000, 1000},
	}
	e := NewEngine(f, 5, 1, zerolog.Nop())
	fillEdge(t, e, 17) // utilization 0.85

	if u := e.EdgeUtilization(); u != 0.85 {
		t.Fatalf("edge utilization = %.2f, want 0.85", u)
	}

	// Abnormal-vitals HIGH task: 0.85 < 0.9, stays on edge.
	abnormal := mustTask(t, 1, task.UrgencyHigh,
		task.VitalSigns{HeartRate: 75, SystolicBP: 170, Temperature: 36.8, SpO2: 98})
	d, err := e.Assign(abnormal)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if d.Tier != TierEdge {
		t.Errorf("abnormal HIGH at 0.85 utilization: tier = %s, want edge", d.Tier)
	}
}

func TestAssign_HighNormalVitalsDeflectsToCloud(t *testing.T) {
	f := &fakeFabric{
		edgeRates:  []float64{2500, 2500, 2500, 2500},
		cloudRates: []float64{1000, 1000},
	}
	e := NewEngine(f, 5, 1, zerolog.Nop())
	fillEdge(t, e, 17) // utilization 0.85

	// Normal-vitals HIGH task: 0.85 >= 0.8, goes to cloud.
	tk := mustTask(t, 2, task.UrgencyHigh, normalVitals())
	d, err := e.Assign(tk)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if d.Tier != TierCloud {
		t.Errorf("normal HIGH at 0.85 utilization: tier = %s, want cloud", d.Tier)
	}
}

func TestAssign_HighLowUtilizationStaysOnEdge(t *testing.T) {
	f := &fakeFabric{edgeRates: []float64{2500, 2500}, cloudRates: []float64{1000}}
	e := newEngine(f)

	tk := mustTask(t, 1, task.UrgencyHigh, normalVitals())
	d, err := e.Assign(tk)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if d.Tier != TierEdge {
		t.Errorf("HIGH at zero utilization: tier = %s, want edge", d.Tier)
	}
}

func TestAssign_EmptyFleetFails(t *testing.T) {
	f := &fakeFabric{edgeRates: nil, cloudRates: []float64{1000}}
	e := newEngine(f)

	tk := mustTask(t, 1, task.UrgencyCritical, normalVitals())
	_, err := e.Assign(tk)
	var noNodes *NoNodesError
	if !errors.As(err, &noNodes) {
		t.Fatalf("err = %v, want *NoNodesError", err)
	}
	if noNodes.Tier != TierEdge {
		t.Errorf("failed tier = %s, want edge", noNodes.Tier)
	}
	if tk.AssignedTier() != "" {
		t.Error("failed placement must not record a tier on the task")
	}
	if edge, cloud := e.AssignedCounts(); edge != 0 || cloud != 0 {
		t.Errorf("counters after failure = %d/%d, want 0/0", edge, cloud)
	}
}

func TestAssign_CountersAndUtilization(t *testing.T) {
	f := &fakeFabric{edgeRates: []float64{2500, 2500}, cloudRates: []float64{1000}}
	e := NewEngine(f, 3, 1, zerolog.Nop())

	e.Assign(mustTask(t, 1, task.UrgencyCritical, normalVitals()))
	e.Assign(mustTask(t, 2, task.UrgencyNormal, normalVitals()))
	e.Assign(mustTask(t, 3, task.UrgencyCritical, normalVitals()))

	edge, cloud := e.AssignedCounts()
	if edge != 2 || cloud != 1 {
		t.Errorf("counts = %d/%d, want 2 edge, 1 cloud", edge, cloud)
	}
	// 2 assigned / (2 nodes * slack 3).
	want := 2.0 / 6.0
	if u := e.EdgeUtilization(); u != want {
		t.Errorf("utilization = %.4f, want %.4f", u, want)
	}
}

func TestSliceLatency_JitterWithinBounds(t *testing.T) {
	f := &fakeFabric{edgeRates: []float64{2500}, cloudRates: []float64{1000}}
	e := newEngine(f)

	for i := 0; i < 50; i++ {
		d, err := e.Assign(mustTask(t, int64(i), task.UrgencyNormal, normalVitals()))
		if err != nil {
			t.Fatalf("Assign: %v", err)
		}
		if d.Slice != "mIoT" {
			t.Fatalf("slice = %s, want mIoT", d.Slice)
		}
		if d.NetworkLatencyMs < 80 || d.NetworkLatencyMs > 120 {
			t.Errorf("latency %.2fms outside ±20%% of 100ms", d.NetworkLatencyMs)
		}
	}
}
