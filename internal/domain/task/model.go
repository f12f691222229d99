package task

import (
	"fmt"
)

// Urgency classifies how quickly a task must be processed. It is fixed at
// task creation and determines queue tier, SLA budget and placement policy.
type Urgency string

const (
	UrgencyCritical Urgency = "CRITICAL"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyNormal   Urgency = "NORMAL"
)

// Urgencies lists all levels in strict priority order.
var Urgencies = []Urgency{UrgencyCritical, UrgencyHigh, UrgencyNormal}

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyCritical, UrgencyHigh, UrgencyNormal:
		return true
	}
	return false
}

// VitalSigns is an immutable snapshot of IoT sensor readings attached to a
// task at arrival.
type VitalSigns struct {
	HeartRate   int     `json:"heart_rate"`
	SystolicBP  int     `json:"systolic_bp"`
	Temperature float64 `json:"temperature"`
	SpO2        int     `json:"spo2"`
}

// Validate rejects physically impossible readings at the boundary, before
// they can enter queue or placement state.
func (v VitalSigns) Validate() error {
	if v.HeartRate <= 0 || v.HeartRate > 300 {
		return fmt.Errorf("heart_rate out of range: %d", v.HeartRate)
	}
	if v.SystolicBP <= 0 || v.SystolicBP > 300 {
		return fmt.Errorf("systolic_bp out of range: %d", v.SystolicBP)
	}
	if v.Temperature < 25 || v.Temperature > 45 {
		return fmt.Errorf("temperature out of range: %.1f", v.Temperature)
	}
	if v.SpO2 <= 0 || v.SpO2 > 100 {
		return fmt.Errorf("spo2 out of range: %d", v.SpO2)
	}
	return nil
}

// Abnormal reports whether any vital sign is outside the monitoring band
// that warrants low-latency handling for HIGH urgency tasks.
func (v VitalSigns) Abnormal() bool {
	return v.HeartRate > 120 || v.HeartRate < 60 ||
		v.SystolicBP > 160 || v.SystolicBP < 100 ||
		v.Temperature > 38.5 || v.SpO2 < 92
}

// ClassifyUrgency derives an urgency level from raw vitals using the triage
// thresholds applied to incoming sensor data.
func ClassifyUrgency(v VitalSigns) Urgency {
	if v.HeartRate > 150 || v.HeartRate < 50 ||
		v.SystolicBP > 180 || v.SystolicBP < 90 ||
		v.Temperature > 40.0 || v.SpO2 < 85 {
		return UrgencyCritical
	}
	if v.Abnormal() {
		return UrgencyHigh
	}
	return UrgencyNormal
}

// Task is a unit of medical processing work derived from one IoT reading.
// Identity, urgency, vitals and arrival time are immutable; waiting time and
// assigned tier are each set exactly once as the task moves through the
// scheduler.
type Task struct {
	ID          int64
	PatientID   int
	Urgency     Urgency
	Vitals      VitalSigns
	Condition   string
	ArrivalTime float64 // simulation-relative seconds

	waitingTime float64
	waitingSet  bool
	tier        string
}

// New validates inputs and builds a task. The task id is assigned by the
// scheduler, not chosen by callers.
func New(id int64, patientID int, urgency Urgency, vitals VitalSigns, arrival float64) (*Task, error) {
	if !urgency.Valid() {
		return nil, fmt.Errorf("invalid urgency %q", urgency)
	}
	if err := vitals.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vitals: %w", err)
	}
	if arrival < 0 {
		return nil, fmt.Errorf("negative arrival time %.2f", arrival)
	}
	return &Task{
		ID:          id,
		PatientID:   patientID,
		Urgency:     urgency,
		Vitals:      vitals,
		ArrivalTime: arrival,
	}, nil
}

// SetWaitingTime records queue-to-dispatch delay. Only the first call takes
// effect.
func (t *Task) SetWaitingTime(seconds float64) {
	if t.waitingSet {
		return
	}
	t.waitingTime = seconds
	t.waitingSet = true
}

// WaitingTime returns the recorded queueing delay, zero until dequeue.
func (t *Task) WaitingTime() float64 { return t.waitingTime }

// Dequeued reports whether the task has left the admission queue.
func (t *Task) Dequeued() bool { return t.waitingSet }

// SetAssignedTier records the placement decision. Only the first call takes
// effect; a task is placed exactly once.
func (t *Task) SetAssignedTier(tier string) {
	if t.tier != "" {
		return
	}
	t.tier = tier
}

// AssignedTier returns the tier name, empty until placement.
func (t *Task) AssignedTier() string { return t.tier }

// Complexity returns the computational cost in work units. Abnormal vitals
// raise the cost for CRITICAL and HIGH tasks because their analysis pipeline
// runs additional pattern detection.
func (t *Task) Complexity() int64 {
	switch t.Urgency {
	case UrgencyCritical:
		c := int64(5000)
		if t.Vitals.HeartRate > 150 || t.Vitals.SpO2 < 85 {
			c += 2000
		}
		return c
	case UrgencyHigh:
		c := int64(8000)
		if t.Vitals.SystolicBP > 160 || t.Vitals.Temperature > 38.5 {
			c += 1000
		}
		return c
	default:
		return 25000
	}
}

// PayloadSize returns the data volume in size units moved for this task.
func (t *Task) PayloadSize() int {
	switch t.Urgency {
	case UrgencyCritical:
		return 100
	case UrgencyHigh:
		return 250
	default:
		return 1000
	}
}

// ExpectedSLA returns the response-time budget in seconds.
func (t *Task) ExpectedSLA() float64 {
	switch t.Urgency {
	case UrgencyCritical:
		return 2.0
	case UrgencyHigh:
		return 10.0
	default:
		return 60.0
	}
}

// RequiresLowLatency reports whether the task should prefer the edge tier:
// every CRITICAL task, and HIGH tasks whose vitals are abnormal.
func (t *Task) RequiresLowLatency() bool {
	return t.Urgency == UrgencyCritical ||
		(t.Urgency == UrgencyHigh && t.Vitals.Abnormal())
}

// PriorityScore combines the urgency base score, a waiting-time bonus capped
// at 20 points and a severity bonus from vital-sign deviation. It is
// recomputed on every call so a later waiting time is reflected immediately.
func (t *Task) PriorityScore() float64 {
	var base float64
	switch t.Urgency {
	case UrgencyCritical:
		base = 100.0
	case UrgencyHigh:
		base = 50.0
	default:
		base = 10.0
	}

	waitingBonus := t.waitingTime * 2
	if waitingBonus > 20.0 {
		waitingBonus = 20.0
	}

	return base + waitingBonus + t.severityBonus()
}

// severityBonus scores each vital independently: an inner deviation band
// contributes a small fixed bonus, the outer band roughly doubles it.
func (t *Task) severityBonus() float64 {
	v := t.Vitals
	bonus := 0.0

	if v.HeartRate > 150 || v.HeartRate < 50 {
		bonus += 10.0
	} else if v.HeartRate > 120 || v.HeartRate < 60 {
		bonus += 5.0
	}

	if v.SystolicBP > 180 || v.SystolicBP < 90 {
		bonus += 10.0
	} else if v.SystolicBP > 160 || v.SystolicBP < 100 {
		bonus += 5.0
	}

	if v.Temperature > 40.0 {
		bonus += 8.0
	} else if v.Temperature > 38.5 {
		bonus += 4.0
	}

	if v.SpO2 < 85 {
		bonus += 12.0
	} else if v.SpO2 < 92 {
		bonus += 6.0
	}

	return bonus
}

func (t *Task) String() string {
	return fmt.Sprintf("Task[ID:%d, Patient:%d, %s, Priority:%.1f]",
		t.ID, t.PatientID, t.Urgency, t.PriorityScore())
}
