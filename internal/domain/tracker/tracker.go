package tracker

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vitalsched/vitalsched/internal/domain/task"
)

// CompletionRecord captures the final accounting for one completed task.
// Records are immutable once appended.
type CompletionRecord struct {
	ID            uuid.UUID    `json:"id"`
	TaskID        int64        `json:"task_id"`
	PatientID     int          `json:"patient_id"`
	Urgency       task.Urgency `json:"urgency"`
	Tier          string       `json:"tier"`
	WaitingTime   float64      `json:"waiting_time"`
	ExecutionTime float64      `json:"execution_time"`
	ResponseTime  float64      `json:"response_time"`
	ExpectedSLA   float64      `json:"expected_sla"`
	SLACompliant  bool         `json:"sla_compliant"`
	CompletedAt   float64      `json:"completed_at"`
}

// TierResolver reports which tier executed a task, used to backfill records
// for tasks whose placement was never recorded.
type TierResolver interface {
	TierOfTask(taskID int64) (string, bool)
}

// Tracker builds completion records from fabric completion signals. The
// record list is append-only; callers get copies.
type Tracker struct {
	mu       sync.Mutex
	tasks    map[int64]*task.Task
	records  []CompletionRecord
	resolver TierResolver
	archive  CompletionArchive
	logger   zerolog.Logger
}

// New creates a tracker. resolver may be nil when no backfill source exists;
// archive may be nil to disable persistence.
func New(resolver TierResolver, archive CompletionArchive, logger zerolog.Logger) *Tracker {
	return &Tracker{
		tasks:    make(map[int64]*task.Task),
		resolver: resolver,
		archive:  archive,
		logger:   logger,
	}
}

// Track registers a submitted task so its completion signal can be matched
// later.
func (tr *Tracker) Track(t *task.Task) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.tasks[t.ID] = t
}

// OnCompletion handles a completion signal from the compute fabric. Unknown
// task ids are logged and skipped, never fatal; that guards against stale or
// duplicate signals. The caller is responsible for signalling each task at
// most once; a second signal for a known id produces a second record.
func (tr *Tracker) OnCompletion(ctx context.Context, taskID int64, executionTime, completedAt float64) {
	tr.mu.Lock()
	t, ok := tr.tasks[taskID]
	tr.mu.Unlock()
	if !ok {
		tr.logger.Warn().
			Int64("task_id", taskID).
			Msg("completion signal for unknown task, skipping")
		return
	}

	tier := t.AssignedTier()
	if tier == "" && tr.resolver != nil {
		if resolved, found := tr.resolver.TierOfTask(taskID); found {
			t.SetAssignedTier(resolved)
			tier = resolved
			tr.logger.Debug().
				Int64("task_id", taskID).
				Str("tier", tier).
				Msg("backfilled tier from fabric")
		}
	}
	if tier == "" {
		tier = "unknown"
	}

	responseTime := completedAt - t.ArrivalTime
	rec := CompletionRecord{
		ID:            uuid.New(),
		TaskID:        t.ID,
		PatientID:     t.PatientID,
		Urgency:       t.Urgency,
		Tier:          tier,
		WaitingTime:   t.WaitingTime(),
		ExecutionTime: executionTime,
		ResponseTime:  responseTime,
		ExpectedSLA:   t.ExpectedSLA(),
		SLACompliant:  responseTime <= t.ExpectedSLA(),
		CompletedAt:   completedAt,
	}

	tr.mu.Lock()
	tr.records = append(tr.records, rec)
	tr.mu.Unlock()

	if tr.archive != nil {
		if err := tr.archive.Save(ctx, &rec); err != nil {
			// Archival is best effort; the in-memory record stands.
			tr.logger.Error().Err(err).
				Int64("task_id", taskID).
				Msg("failed to archive completion record")
		}
	}

	evt := tr.logger.Info()
	if !rec.SLACompliant {
		evt = tr.logger.Warn()
	}
	evt.
		Int64("task_id", t.ID).
		Int("patient_id", t.PatientID).
		Str("urgency", string(t.Urgency)).
		Str("tier", tier).
		Float64("response_time", responseTime).
		Float64("expected_sla", rec.ExpectedSLA).
		Bool("sla_compliant", rec.SLACompliant).
		Msg("task completed")
}

// Records returns a copy of the completion record list in append order.
func (tr *Tracker) Records() []CompletionRecord {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]CompletionRecord, len(tr.records))
	copy(out, tr.records)
	return out
}

// Count returns the number of completion records.
func (tr *Tracker) Count() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.records)
}
