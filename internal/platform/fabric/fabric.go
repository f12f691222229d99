// Package fabric models the two-tier compute substrate tasks execute on. The
// simulated implementation advances virtual time per node instead of running
// anything for real, which keeps scheduling experiments deterministic.
package fabric

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// CompletionFunc receives the outcome of one executed task: how long it ran
// and the virtual timestamp it finished at. An alias so callers can pass
// plain function literals across package boundaries.
type CompletionFunc = func(taskID int64, executionTime, completedAt float64)

type node struct {
	rate      float64
	busyUntil float64
}

type dispatched struct {
	taskID       int64
	tier         string
	node         int
	complexity   int64
	payloadKB    int
	dispatchedAt float64
}

// Simulated is an in-process compute fabric. Each node executes one task at
// a time at its configured rate (work units per second); queued work on a
// node starts when the node frees up.
type Simulated struct {
	mu      sync.Mutex
	nodes   map[string][]*node
	pending []dispatched
	tiers   map[int64]string
	logger  zerolog.Logger
}

// NewSimulated builds a fabric with one node per entry of each rate slice.
func NewSimulated(edgeRates, cloudRates []float64, logger zerolog.Logger) *Simulated {
	s := &Simulated{
		nodes:  make(map[string][]*node, 2),
		tiers:  make(map[int64]string),
		logger: logger.With().Str("component", "fabric").Logger(),
	}
	for _, r := range edgeRates {
		s.nodes["edge"] = append(s.nodes["edge"], &node{rate: r})
	}
	for _, r := range cloudRates {
		s.nodes["cloud"] = append(s.nodes["cloud"], &node{rate: r})
	}
	return s
}

func (s *Simulated) TierNodeCount(tier string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes[tier])
}

func (s *Simulated) NodeRates(tier string) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	rates := make([]float64, len(s.nodes[tier]))
	for i, n := range s.nodes[tier] {
		rates[i] = n.rate
	}
	return rates
}

// TierOfTask reports where a task was dispatched. Used to backfill tier
// attribution on completion records.
func (s *Simulated) TierOfTask(taskID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tier, ok := s.tiers[taskID]
	return tier, ok
}

// Dispatch hands a task to a node. Execution is deferred until Run.
func (s *Simulated) Dispatch(taskID int64, tier string, nodeIdx int, complexity int64, payloadKB int, at float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fleet := s.nodes[tier]
	if nodeIdx < 0 || nodeIdx >= len(fleet) {
		return fmt.Errorf("fabric: no node %d on tier %s (have %d)", nodeIdx, tier, len(fleet))
	}
	s.tiers[taskID] = tier
	s.pending = append(s.pending, dispatched{
		taskID:       taskID,
		tier:         tier,
		node:         nodeIdx,
		complexity:   complexity,
		payloadKB:    payloadKB,
		dispatchedAt: at,
	})

	s.logger.Debug().
		Int64("task_id", taskID).
		Str("tier", tier).
		Int("node", nodeIdx).
		Int64("complexity", complexity).
		Int("payload_kb", payloadKB).
		Msg("task dispatched")
	return nil
}

// Pending reports how many dispatched tasks have not executed yet.
func (s *Simulated) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Run executes all pending tasks in dispatch order and reports each outcome
// through cb. A task starts at its dispatch time or when its node frees up,
// whichever is later. Returns the number of tasks executed.
func (s *Simulated) Run(cb CompletionFunc) int {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, d := range batch {
		s.mu.Lock()
		n := s.nodes[d.tier][d.node]
		start := d.dispatchedAt
		if n.busyUntil > start {
			start = n.busyUntil
		}
		execTime := float64(d.complexity) / n.rate
		completedAt := start + execTime
		n.busyUntil = completedAt
		s.mu.Unlock()

		cb(d.taskID, execTime, completedAt)
	}
	return len(batch)
}
