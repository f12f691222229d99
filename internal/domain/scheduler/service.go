// Package scheduler ties admission, placement, execution and tracking
// together behind one service used by both the HTTP surface and the
// simulation command.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalsched/vitalsched/internal/domain/metrics"
	"github.com/vitalsched/vitalsched/internal/domain/placement"
	"github.com/vitalsched/vitalsched/internal/domain/queue"
	"github.com/vitalsched/vitalsched/internal/domain/task"
	"github.com/vitalsched/vitalsched/internal/domain/tracker"
)

// Placement failure policies. Drop discards a task that cannot be placed,
// requeue puts it back at the front of its admission tier for a later cycle.
const (
	PolicyDrop    = "drop"
	PolicyRequeue = "requeue"
)

// Fabric is the compute substrate the scheduler dispatches onto.
type Fabric interface {
	TierNodeCount(tier string) int
	NodeRates(tier string) []float64
	Dispatch(taskID int64, tier string, node int, complexity int64, payloadKB int, at float64) error
	Run(cb func(taskID int64, executionTime, completedAt float64)) int
}

// SubmitResult reports the outcome of one admission attempt.
type SubmitResult struct {
	TaskID      int64        `json:"task_id"`
	Urgency     task.Urgency `json:"urgency"`
	Accepted    bool         `json:"accepted"`
	ExpectedSLA float64      `json:"expected_sla"`
}

// DispatchedTask pairs a task with the placement it received.
type DispatchedTask struct {
	TaskID  int64              `json:"task_id"`
	Urgency task.Urgency       `json:"urgency"`
	Place   placement.Decision `json:"placement"`
}

// DispatchReport summarizes one dispatch cycle.
type DispatchReport struct {
	Dispatched []DispatchedTask `json:"dispatched"`
	Dropped    int              `json:"dropped"`
	Requeued   int              `json:"requeued"`
}

type Service struct {
	queue   *queue.AdmissionQueue
	engine  *placement.Engine
	fabric  Fabric
	tracker *tracker.Tracker
	policy  string
	logger  zerolog.Logger

	mu       sync.Mutex
	nextID   int64
	rejected int

	started time.Time
	nowFn   func() float64
}

// NewService wires the scheduling pipeline. policy must be PolicyDrop or
// PolicyRequeue.
func NewService(q *queue.AdmissionQueue, engine *placement.Engine, fab Fabric,
	tr *tracker.Tracker, policy string, logger zerolog.Logger) (*Service, error) {
	if policy != PolicyDrop && policy != PolicyRequeue {
		return nil, fmt.Errorf("scheduler: unknown placement policy %q", policy)
	}
	s := &Service{
		queue:   q,
		engine:  engine,
		fabric:  fab,
		tracker: tr,
		policy:  policy,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		started: time.Now(),
	}
	s.nowFn = func() float64 { return time.Since(s.started).Seconds() }
	return s, nil
}

// Submit admits a reading arriving now.
func (s *Service) Submit(ctx context.Context, patientID int, vitals task.VitalSigns, urgency task.Urgency) (SubmitResult, error) {
	return s.SubmitAt(ctx, patientID, vitals, urgency, s.nowFn())
}

// SubmitAt admits a reading with an explicit arrival time. When urgency is
// empty it is classified from the vitals.
func (s *Service) SubmitAt(_ context.Context, patientID int, vitals task.VitalSigns, urgency task.Urgency, arrival float64) (SubmitResult, error) {
	if urgency == "" {
		urgency = task.ClassifyUrgency(vitals)
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	t, err := task.New(id, patientID, urgency, vitals, arrival)
	if err != nil {
		return SubmitResult{}, err
	}

	s.tracker.Track(t)
	accepted := s.queue.Enqueue(t)
	if !accepted {
		s.mu.Lock()
		s.rejected++
		s.mu.Unlock()
	}

	return SubmitResult{
		TaskID:      t.ID,
		Urgency:     t.Urgency,
		Accepted:    accepted,
		ExpectedSLA: t.ExpectedSLA(),
	}, nil
}

// DispatchQueued drains the admission queue in priority order, places each
// task and hands it to the fabric. Placement failures follow the configured
// policy.
func (s *Service) DispatchQueued(ctx context.Context) (DispatchReport, error) {
	var report DispatchReport
	now := s.nowFn()

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		t := s.queue.DequeueNext()
		if t == nil {
			break
		}

		decision, err := s.engine.Assign(t)
		if err != nil {
			var noNodes *placement.NoNodesError
			if errors.As(err, &noNodes) {
				switch s.policy {
				case PolicyRequeue:
					s.queue.Requeue(t)
					report.Requeued++
					s.logger.Warn().Int64("task_id", t.ID).Str("tier", noNodes.Tier).
						Msg("no capacity, task requeued")
					// the rest of the queue would hit the same empty tier
					return report, nil
				default:
					report.Dropped++
					s.logger.Error().Int64("task_id", t.ID).Str("tier", noNodes.Tier).
						Msg("no capacity, task dropped")
					continue
				}
			}
			return report, err
		}

		if err := s.fabric.Dispatch(t.ID, decision.Tier, decision.Node,
			t.Complexity(), t.PayloadSize(), now); err != nil {
			return report, err
		}
		report.Dispatched = append(report.Dispatched, DispatchedTask{
			TaskID:  t.ID,
			Urgency: t.Urgency,
			Place:   decision,
		})
	}

	s.logger.Info().
		Int("dispatched", len(report.Dispatched)).
		Int("dropped", report.Dropped).
		Int("requeued", report.Requeued).
		Msg("dispatch cycle complete")
	return report, nil
}

// ExecutePending runs everything dispatched to the fabric and records each
// completion. Returns the number of tasks executed.
func (s *Service) ExecutePending(ctx context.Context) int {
	return s.fabric.Run(func(taskID int64, executionTime, completedAt float64) {
		s.tracker.OnCompletion(ctx, taskID, executionTime, completedAt)
	})
}

// QueueStats exposes per-tier admission counters.
func (s *Service) QueueStats() map[task.Urgency]queue.Stats {
	return s.queue.AllStats()
}

// Rejected reports how many submissions the queue turned away.
func (s *Service) Rejected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected
}

// MetricsSummary derives the current metrics snapshot from completions so
// far.
func (s *Service) MetricsSummary() metrics.Summary {
	return metrics.Summarize(s.tracker.Records())
}

// Records returns a page of completion records in completion order.
func (s *Service) Records(limit, offset int) ([]tracker.CompletionRecord, int) {
	all := s.tracker.Records()
	total := len(all)
	// An out-of-range page still serializes as an empty JSON array.
	if offset >= total {
		return []tracker.CompletionRecord{}, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total
}

// EdgeUtilization reports current edge fleet load.
func (s *Service) EdgeUtilization() float64 {
	return s.engine.EdgeUtilization()
}
