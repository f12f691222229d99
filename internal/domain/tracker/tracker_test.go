package tracker

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vitalsched/vitalsched/internal/domain/task"
)

type fakeResolver struct {
	tiers map[int64]string
}

func (f *fakeResolver) TierOfTask(taskID int64) (string, bool) {
	tier, ok := f.tiers[taskID]
	return tier, ok
}

func mustTask(t *testing.T, id int64, urgency task.Urgency, arrival float64) *task.Task {
	t.Helper()
	tk, err := task.New(id, int(id), urgency,
		task.VitalSigns{HeartRate: 75, SystolicBP: 120, Temperature: 36.8, SpO2: 98}, arrival)
	if err != nil {
		t.Fatalf("task.New: %v", err)
	}
	return tk
}

func TestOnCompletion_BuildsRecord(t *testing.T) {
	tr := New(nil, nil, zerolog.Nop())
	tk := mustTask(t, 1, task.UrgencyCritical, 10)
	tk.SetWaitingTime(0.1)
	tk.SetAssignedTier("edge")
	tr.Track(tk)

	tr.OnCompletion(context.Background(), 1, 0.5, 11.5)

	recs := tr.Records()
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.TaskID != 1 || rec.PatientID != 1 {
		t.Errorf("identity = %d/%d, want 1/1", rec.TaskID, rec.PatientID)
	}
	if rec.Tier != "edge" {
		t.Errorf("tier = %q, want edge", rec.Tier)
	}
	if rec.ResponseTime != 1.5 {
		t.Errorf("response time = %.2f, want 1.5 (completion 11.5 - arrival 10)", rec.ResponseTime)
	}
	if rec.ExecutionTime != 0.5 {
		t.Errorf("execution time = %.2f, want 0.5", rec.ExecutionTime)
	}
	if !rec.SLACompliant {
		t.Error("1.5s response within 2.0s SLA should be compliant")
	}
}

func TestOnCompletion_SLAViolation(t *testing.T) {
	tr := New(nil, nil, zerolog.Nop())
	tk := mustTask(t, 1, task.UrgencyCritical, 0)
	tk.SetAssignedTier("edge")
	tr.Track(tk)

	tr.OnCompletion(context.Background(), 1, 2.5, 2.5)

	rec := tr.Records()[0]
	if rec.SLACompliant {
		t.Error("2.5s response past 2.0s SLA must be a violation")
	}
	if rec.ExpectedSLA != 2.0 {
		t.Errorf("expected SLA = %.1f, want 2.0", rec.ExpectedSLA)
	}
}

func TestOnCompletion_UnknownTaskSkipped(t *testing.T) {
	tr := New(nil, nil, zerolog.Nop())
	tr.OnCompletion(context.Background(), 999, 1.0, 1.0)
	if tr.Count() != 0 {
		t.Errorf("unknown completion produced %d records, want 0", tr.Count())
	}
}

func TestOnCompletion_TierBackfillFromResolver(t *testing.T) {
	resolver := &fakeResolver{tiers: map[int64]string{5: "cloud"}}
	tr := New(resolver, nil, zerolog.Nop())
	tk := mustTask(t, 5, task.UrgencyNormal, 0)
	tr.Track(tk) // tier never recorded by placement

	tr.OnCompletion(context.Background(), 5, 1.0, 3.0)

	rec := tr.Records()[0]
	if rec.Tier != "cloud" {
		t.Errorf("tier = %q, want backfilled cloud", rec.Tier)
	}
	if tk.AssignedTier() != "cloud" {
		t.Errorf("task tier = %q, want backfilled cloud", tk.AssignedTier())
	}
}

func TestOnCompletion_NoResolverFallsBackToUnknown(t *testing.T) {
	tr := New(nil, nil, zerolog.Nop())
	tk := mustTask(t, 6, task.UrgencyNormal, 0)
	tr.Track(tk)

	tr.OnCompletion(context.Background(), 6, 1.0, 3.0)

	if rec := tr.Records()[0]; rec.Tier != "unknown" {
		t.Errorf("tier = %q, want unknown", rec.Tier)
	}
}

func TestOnCompletion_ArchivesRecord(t *testing.T) {
	archive := NewArchiveMemory()
	tr := New(nil, archive, zerolog.Nop())
	tk := mustTask(t, 1, task.UrgencyHigh, 0)
	tk.SetAssignedTier("edge")
	tr.Track(tk)

	tr.OnCompletion(context.Background(), 1, 1.0, 2.0)

	items, total, err := archive.List(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("archive holds %d/%d records, want 1", len(items), total)
	}
	if items[0].TaskID != 1 {
		t.Errorf("archived task id = %d, want 1", items[0].TaskID)
	}
}

func TestArchiveMemory_Pagination(t *testing.T) {
	archive := NewArchiveMemory()
	ctx := context.Background()
	for i := int64(0); i < 5; i++ {
		archive.Save(ctx, &CompletionRecord{TaskID: i})
	}

	items, total, err := archive.List(ctx, 2, 4)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 5 || len(items) != 1 {
		t.Errorf("got %d items of %d total, want 1 of 5", len(items), total)
	}

	items, _, _ = archive.List(ctx, 2, 10)
	if len(items) != 0 {
		t.Errorf("offset past end returned %d items, want 0", len(items))
	}
}
