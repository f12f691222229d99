package queue

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vitalsched/vitalsched/internal/domain/task"
)

// DefaultCapacity bounds each urgency tier's queue unless overridden.
const DefaultCapacity = 100

// dispatchDelay is the nominal queue-to-dispatch latency recorded as waiting
// time on dequeue. Wall-clock execution wait is accounted by the compute
// fabric, not here.
const dispatchDelay = 0.1

// Stats holds per-tier queue counters. Counters are cumulative for the run
// and never reset.
type Stats struct {
	Enqueued      int `json:"enqueued"`
	Dequeued      int `json:"dequeued"`
	Size          int `json:"size"`
	MaxSize       int `json:"max_size"`
	SLACompliant  int `json:"sla_compliant"`
	SLAViolations int `json:"sla_violations"`
}

// tier is one bounded arrival-ordered queue. Strict priority across tiers is
// enforced structurally by AdmissionQueue draining tiers in a fixed order,
// not by a comparator.
type tier struct {
	tasks []*task.Task
	stats Stats
}

// insert keeps tasks ordered by arrival time ascending; ties preserve
// enqueue order.
func (q *tier) insert(t *task.Task) {
	i := sort.Search(len(q.tasks), func(i int) bool {
		return q.tasks[i].ArrivalTime > t.ArrivalTime
	})
	q.tasks = append(q.tasks, nil)
	copy(q.tasks[i+1:], q.tasks[i:])
	q.tasks[i] = t
}

func (q *tier) pop() *task.Task {
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t
}

// AdmissionQueue is the bounded three-tier admission structure. A task lives
// in exactly one tier, chosen by its urgency at enqueue time. All state is
// owned by the instance so multiple schedulers can coexist.
type AdmissionQueue struct {
	mu       sync.Mutex
	capacity int
	logger   zerolog.Logger

	critical tier
	high     tier
	normal   tier
}

// New creates an empty admission queue. capacity <= 0 selects
// DefaultCapacity.
func New(capacity int, logger zerolog.Logger) *AdmissionQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &AdmissionQueue{capacity: capacity, logger: logger}
}

func (a *AdmissionQueue) tierFor(u task.Urgency) *tier {
	switch u {
	case task.UrgencyCritical:
		return &a.critical
	case task.UrgencyHigh:
		return &a.high
	default:
		return &a.normal
	}
}

// Enqueue admits a task into its urgency tier. It returns false, with no
// state change, when the tier is at capacity; the caller decides whether to
// drop, retry or escalate.
func (a *AdmissionQueue) Enqueue(t *task.Task) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	q := a.tierFor(t.Urgency)
	if len(q.tasks) >= a.capacity {
		a.logger.Warn().
			Int64("task_id", t.ID).
			Int("patient_id", t.PatientID).
			Str("urgency", string(t.Urgency)).
			Int("capacity", a.capacity).
			Msg("queue overflow, task rejected")
		return false
	}

	q.insert(t)
	q.stats.Enqueued++
	q.stats.Size = len(q.tasks)
	if q.stats.Size > q.stats.MaxSize {
		q.stats.MaxSize = q.stats.Size
	}

	a.logger.Debug().
		Int64("task_id", t.ID).
		Int("patient_id", t.PatientID).
		Str("urgency", string(t.Urgency)).
		Int("queue_size", q.stats.Size).
		Msg("task queued")
	return true
}

// Requeue puts a previously dequeued task back into its tier at its original
// arrival position. Admission and dequeue counters are untouched so a task
// that bounces off placement is still counted once.
func (a *AdmissionQueue) Requeue(t *task.Task) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	q := a.tierFor(t.Urgency)
	if len(q.tasks) >= a.capacity {
		a.logger.Warn().
			Int64("task_id", t.ID).
			Str("urgency", string(t.Urgency)).
			Msg("queue overflow, requeue rejected")
		return false
	}

	q.insert(t)
	q.stats.Size = len(q.tasks)
	if q.stats.Size > q.stats.MaxSize {
		q.stats.MaxSize = q.stats.Size
	}

	a.logger.Debug().
		Int64("task_id", t.ID).
		Str("urgency", string(t.Urgency)).
		Msg("task requeued")
	return true
}

// DequeueNext pops the highest-priority pending task, draining CRITICAL
// before HIGH before NORMAL. It records the nominal waiting time on the task
// and performs the queueing-delay SLA check for the dequeue event. Returns
// nil when all tiers are empty.
func (a *AdmissionQueue) DequeueNext() *task.Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dequeueLocked()
}

func (a *AdmissionQueue) dequeueLocked() *task.Task {
	var q *tier
	switch {
	case len(a.critical.tasks) > 0:
		q = &a.critical
	case len(a.high.tasks) > 0:
		q = &a.high
	case len(a.normal.tasks) > 0:
		q = &a.normal
	default:
		return nil
	}

	t := q.pop()
	q.stats.Size = len(q.tasks)

	// A requeued task already passed through here once; counting it again
	// would skew the dequeue and queueing-delay SLA counters.
	first := !t.Dequeued()
	t.SetWaitingTime(dispatchDelay)

	if first {
		q.stats.Dequeued++

		// Queueing-delay SLA check. This is distinct from the end-to-end
		// response-time check the tracker performs on completion.
		if t.WaitingTime() <= t.ExpectedSLA() {
			q.stats.SLACompliant++
		} else {
			q.stats.SLAViolations++
			a.logger.Warn().
				Int64("task_id", t.ID).
				Str("urgency", string(t.Urgency)).
				Float64("waited", t.WaitingTime()).
				Float64("sla", t.ExpectedSLA()).
				Msg("queueing delay SLA violation")
		}
	}

	a.logger.Debug().
		Int64("task_id", t.ID).
		Str("urgency", string(t.Urgency)).
		Float64("waited", t.WaitingTime()).
		Msg("task dequeued")
	return t
}

// DequeueAll drains every tier, returning the CRITICAL block, then the HIGH
// block, then the NORMAL block, each in arrival order.
func (a *AdmissionQueue) DequeueAll() []*task.Task {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*task.Task, 0, len(a.critical.tasks)+len(a.high.tasks)+len(a.normal.tasks))
	for {
		t := a.dequeueLocked()
		if t == nil {
			break
		}
		out = append(out, t)
	}
	return out
}

// HasPendingWork reports whether any tier holds a task.
func (a *AdmissionQueue) HasPendingWork() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.critical.tasks) > 0 || len(a.high.tasks) > 0 || len(a.normal.tasks) > 0
}

// Pending returns the total number of queued tasks across tiers.
func (a *AdmissionQueue) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.critical.tasks) + len(a.high.tasks) + len(a.normal.tasks)
}

// Stats returns a snapshot of one tier's counters.
func (a *AdmissionQueue) Stats(u task.Urgency) Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tierFor(u).stats
}

// AllStats returns counter snapshots for every tier.
func (a *AdmissionQueue) AllStats() map[task.Urgency]Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[task.Urgency]Stats{
		task.UrgencyCritical: a.critical.stats,
		task.UrgencyHigh:     a.high.stats,
		task.UrgencyNormal:   a.normal.stats,
	}
}
