package placement

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vitalsched/vitalsched/internal/domain/task"
)

// Tier names used across the scheduler. The edge tier trades capacity for
// latency; the cloud tier is the opposite.
const (
	TierEdge  = "edge"
	TierCloud = "cloud"
)

// DefaultSlackFactor scales node count into an admission band for the edge
// utilization calculation: each edge node is assumed to absorb this many
// concurrent tasks before the tier counts as saturated.
const DefaultSlackFactor = 3.0

// Edge admission thresholds for HIGH urgency tasks. Tasks with abnormal
// vitals get the wider window.
const (
	edgeThresholdLowLatency = 0.9
	edgeThresholdDefault    = 0.8
)

// Network slice base latencies in milliseconds, telemetry only.
const (
	sliceURLLCLatencyMs = 1.0
	sliceEMBBLatencyMs  = 10.0
	sliceMIoTLatencyMs  = 100.0
)

// Fabric is the compute-fabric view the engine needs to make placement
// decisions.
type Fabric interface {
	// TierNodeCount returns the number of resource instances in a tier.
	TierNodeCount(tier string) int
	// NodeRates returns each node's processing rate in work units per
	// second, indexed by node.
	NodeRates(tier string) []float64
}

// NoNodesError reports that the selected tier has no resource instances.
// The task is left undispatched; the caller chooses whether to drop or
// requeue it.
type NoNodesError struct {
	Tier string
}

func (e *NoNodesError) Error() string {
	return fmt.Sprintf("no nodes available in tier %q", e.Tier)
}

// Decision describes a successful placement.
type Decision struct {
	Tier             string  `json:"tier"`
	Node             int     `json:"node"`
	Slice            string  `json:"slice"`
	NetworkLatencyMs float64 `json:"network_latency_ms"`
}

// Engine selects a tier and node for each dequeued task. Per-tier assigned
// counters are instance state, so independent engines can be tested in
// isolation.
type Engine struct {
	fabric Fabric
	slack  float64
	logger zerolog.Logger

	mu            sync.Mutex
	rng           *rand.Rand
	edgeAssigned  int
	cloudAssigned int
}

// NewEngine creates a placement engine. slack <= 0 selects
// DefaultSlackFactor; seed makes the slice-latency jitter reproducible.
func NewEngine(fabric Fabric, slack float64, seed int64, logger zerolog.Logger) *Engine {
	if slack <= 0 {
		slack = DefaultSlackFactor
	}
	return &Engine{
		fabric: fabric,
		slack:  slack,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Assign chooses a tier and node for the task, records the tier on the task
// and returns the decision. On *NoNodesError the task is untouched.
func (e *Engine) Assign(t *task.Task) (Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var tierName string
	switch t.Urgency {
	case task.UrgencyCritical:
		// Critical tasks never deflect to cloud.
		tierName = TierEdge
	case task.UrgencyHigh:
		util := e.edgeUtilizationLocked()
		threshold := edgeThresholdDefault
		if t.RequiresLowLatency() {
			threshold = edgeThresholdLowLatency
		}
		if util < threshold {
			tierName = TierEdge
		} else {
			tierName = TierCloud
		}
		e.logger.Debug().
			Int64("task_id", t.ID).
			Float64("edge_utilization", util).
			Float64("threshold", threshold).
			Str("tier", tierName).
			Msg("high urgency placement")
	default:
		tierName = TierCloud
	}

	node, err := e.selectNodeLocked(tierName, t)
	if err != nil {
		e.logger.Error().
			Int64("task_id", t.ID).
			Str("urgency", string(t.Urgency)).
			Str("tier", tierName).
			Msg("placement failed, no nodes in tier")
		return Decision{}, err
	}

	t.SetAssignedTier(tierName)
	switch tierName {
	case TierEdge:
		e.edgeAssigned++
	case TierCloud:
		e.cloudAssigned++
	}

	slice, latency := e.sliceLatencyLocked(t.Urgency)
	d := Decision{Tier: tierName, Node: node, Slice: slice, NetworkLatencyMs: latency}

	e.logger.Info().
		Int64("task_id", t.ID).
		Int("patient_id", t.PatientID).
		Str("urgency", string(t.Urgency)).
		Str("tier", d.Tier).
		Int("node", d.Node).
		Str("slice", d.Slice).
		Float64("network_latency_ms", d.NetworkLatencyMs).
		Msg("task placed")
	return d, nil
}

// selectNodeLocked picks a node in the tier: highest processing rate for
// CRITICAL tasks, deterministic round-robin by task id otherwise.
func (e *Engine) selectNodeLocked(tierName string, t *task.Task) (int, error) {
	n := e.fabric.TierNodeCount(tierName)
	if n == 0 {
		return 0, &NoNodesError{Tier: tierName}
	}

	if t.Urgency == task.UrgencyCritical {
		rates := e.fabric.NodeRates(tierName)
		best := 0
		for i, r := range rates {
			if r > rates[best] {
				best = i
			}
		}
		return best, nil
	}
	return int(t.ID % int64(n)), nil
}

// edgeUtilizationLocked estimates edge load as assigned tasks over node
// count scaled by the slack factor, clamped to [0, 1]. An empty edge fleet
// counts as fully utilized.
func (e *Engine) edgeUtilizationLocked() float64 {
	n := e.fabric.TierNodeCount(TierEdge)
	if n == 0 {
		return 1.0
	}
	util := float64(e.edgeAssigned) / (float64(n) * e.slack)
	if util > 1.0 {
		util = 1.0
	}
	return util
}

// EdgeUtilization exposes the current utilization estimate for snapshots.
func (e *Engine) EdgeUtilization() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.edgeUtilizationLocked()
}

// AssignedCounts returns how many tasks were placed on each tier.
func (e *Engine) AssignedCounts() (edge, cloud int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.edgeAssigned, e.cloudAssigned
}

// sliceLatencyLocked picks the network slice class for the urgency and
// jitters its base latency by up to ±20%. The value is informational and
// never gates placement.
func (e *Engine) sliceLatencyLocked(u task.Urgency) (string, float64) {
	var slice string
	var base float64
	switch u {
	case task.UrgencyCritical:
		slice, base = "URLLC", sliceURLLCLatencyMs
	case task.UrgencyHigh:
		slice, base = "eMBB", sliceEMBBLatencyMs
	default:
		slice, base = "mIoT", sliceMIoTLatencyMs
	}
	latency := base + (e.rng.Float64()-0.5)*0.4*base
	return slice, latency
}
