package navigation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func mkStep(patientID uuid.UUID, stage JourneyStage, key string, status StepStatus, required bool, seq int) *NavigationStep {
	return &NavigationStep{
		ID:           uuid.New(),
		PatientID:    patientID,
		CancerType:   "breast",
		JourneyStage: stage,
		StepKey:      key,
		StepName:     key,
		IsRequired:   required,
		Status:       status,
		IsCompleted:  status == StatusCompleted,
		CreatedAt:    testNow.Add(time.Duration(seq) * time.Minute),
		UpdatedAt:    testNow.Add(time.Duration(seq) * time.Minute),
	}
}

func overdueBy(st *NavigationStep, days int) *NavigationStep {
	d := testNow.AddDate(0, 0, -days)
	st.DueDate = &d
	return st
}

func dueIn(st *NavigationStep, days int) *NavigationStep {
	d := testNow.AddDate(0, 0, days)
	st.DueDate = &d
	return st
}

func completedAfter(st *NavigationStep, days int) *NavigationStep {
	at := st.CreatedAt.AddDate(0, 0, days)
	st.Status = StatusCompleted
	st.IsCompleted = true
	st.CompletedAt = &at
	return st
}

func TestStepUrgencyOrdering(t *testing.T) {
	p := uuid.New()
	over20 := overdueBy(mkStep(p, StageScreening, "a", StatusPending, true, 0), 20)
	over5 := overdueBy(mkStep(p, StageScreening, "b", StatusPending, true, 1), 5)
	due2 := dueIn(mkStep(p, StageScreening, "c", StatusPending, true, 2), 2)
	noDue := mkStep(p, StageScreening, "d", StatusPending, true, 3)

	if stepUrgencyLess(over20, over5, testNow) != -1 {
		t.Error("20 days overdue should beat 5 days overdue")
	}
	if stepUrgencyLess(over5, due2, testNow) != -1 {
		t.Error("any overdue step should beat a not-yet-due step")
	}
	if stepUrgencyLess(due2, noDue, testNow) != -1 {
		t.Error("a due date should beat no due date")
	}
	if stepUrgencyLess(noDue, noDue, testNow) != 0 {
		t.Error("identical urgency should tie")
	}
}

func TestSelectCriticalStepsPicksMostUrgentPerPatient(t *testing.T) {
	p := &Patient{ID: uuid.New(), FirstName: "Ana", LastName: "Silva", CancerType: "breast", JourneyStage: StageScreening}
	steps := []*NavigationStep{
		dueIn(mkStep(p.ID, StageScreening, "soon", StatusPending, true, 0), 2),
		overdueBy(mkStep(p.ID, StageScreening, "late", StatusPending, true, 1), 20),
		completedAfter(mkStep(p.ID, StageScreening, "done", StatusPending, true, 2), 3),
	}

	entries := selectCriticalSteps(steps, []*Patient{p}, testNow, DefaultAnalyticsConfig(), CriticalStepFilters{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.CriticalStep.StepKey != "late" {
		t.Fatalf("expected the overdue step, got %s", e.CriticalStep.StepKey)
	}
	if e.CriticalStep.Status != StatusOverdue {
		t.Error("critical step should carry the derived status")
	}
	if e.DaysOverdue != 20 || !e.CriticalOverdue {
		t.Errorf("expected 20 days critical overdue, got %d/%v", e.DaysOverdue, e.CriticalOverdue)
	}
	if e.TotalSteps != 3 || e.CompletedSteps != 1 {
		t.Errorf("rollup wrong: %d/%d", e.CompletedSteps, e.TotalSteps)
	}
	if e.OpenAlerts != 1 {
		t.Errorf("expected 1 open alert, got %d", e.OpenAlerts)
	}
}

func TestSelectCriticalStepsSkipsPatientsWithoutActiveRequiredWork(t *testing.T) {
	done := &Patient{ID: uuid.New(), FirstName: "Done", JourneyStage: StageScreening}
	optional := &Patient{ID: uuid.New(), FirstName: "Optional", JourneyStage: StageScreening}
	steps := []*NavigationStep{
		completedAfter(mkStep(done.ID, StageScreening, "a", StatusPending, true, 0), 2),
		// only optional work left open
		overdueBy(mkStep(optional.ID, StageScreening, "b", StatusPending, false, 1), 5),
		completedAfter(mkStep(optional.ID, StageScreening, "c", StatusPending, true, 2), 2),
	}

	entries := selectCriticalSteps(steps, []*Patient{done, optional}, testNow, DefaultAnalyticsConfig(), CriticalStepFilters{})
	if len(entries) != 0 {
		t.Fatalf("patients without active required steps must be excluded, got %d entries", len(entries))
	}
}

func TestSelectCriticalStepsSortAndTruncate(t *testing.T) {
	mk := func(name string, score float64, overdueDays int, seq int) (*Patient, *NavigationStep) {
		p := &Patient{ID: uuid.New(), FirstName: name, CancerType: "breast", JourneyStage: StageScreening, PriorityScore: score}
		st := mkStep(p.ID, StageScreening, "step", StatusPending, true, seq)
		if overdueDays > 0 {
			overdueBy(st, overdueDays)
		}
		return p, st
	}
	p1, s1 := mk("mild", 1, 2, 0)
	p2, s2 := mk("worst", 1, 30, 1)
	p3, s3 := mk("bad", 1, 10, 2)
	p4, s4 := mk("high-priority", 9, 10, 3)

	cfg := DefaultAnalyticsConfig()
	entries := selectCriticalSteps(
		[]*NavigationStep{s1, s2, s3, s4},
		[]*Patient{p1, p2, p3, p4},
		testNow, cfg, CriticalStepFilters{MaxResults: 2},
	)
	if len(entries) != 2 {
		t.Fatalf("expected truncation to 2, got %d", len(entries))
	}
	// Sorted before truncation: the 30-day breach first, then among the
	// 10-day ties the higher priority score.
	if entries[0].PatientName != "worst" {
		t.Errorf("expected worst first, got %s", entries[0].PatientName)
	}
	if entries[1].PatientName != "high-priority" {
		t.Errorf("expected priority tiebreak, got %s", entries[1].PatientName)
	}
}

func TestSelectCriticalStepsFilters(t *testing.T) {
	breast := &Patient{ID: uuid.New(), FirstName: "B", CancerType: "breast", JourneyStage: StageScreening}
	lung := &Patient{ID: uuid.New(), FirstName: "L", CancerType: "lung", JourneyStage: StageDiagnosis}
	lungStep := overdueBy(mkStep(lung.ID, StageDiagnosis, "pet_ct", StatusPending, true, 1), 3)
	lungStep.CancerType = "lung"
	steps := []*NavigationStep{
		overdueBy(mkStep(breast.ID, StageScreening, "mammogram", StatusPending, true, 0), 3),
		lungStep,
	}

	entries := selectCriticalSteps(steps, []*Patient{breast, lung}, testNow, DefaultAnalyticsConfig(),
		CriticalStepFilters{CancerType: "lung"})
	if len(entries) != 1 || entries[0].PatientName != "L" {
		t.Fatalf("cancer type filter failed: %+v", entries)
	}

	entries = selectCriticalSteps(steps, []*Patient{breast, lung}, testNow, DefaultAnalyticsConfig(),
		CriticalStepFilters{Stage: StageScreening})
	if len(entries) != 1 || entries[0].PatientName != "B" {
		t.Fatalf("stage filter failed: %+v", entries)
	}
}

func TestSelectCriticalStepsCancerTypeFilterIgnoresCase(t *testing.T) {
	p := &Patient{ID: uuid.New(), FirstName: "Ana", CancerType: "Breast", JourneyStage: StageScreening}
	st := overdueBy(mkStep(p.ID, StageScreening, "mammogram", StatusPending, true, 0), 3)
	// Rows written before normalization landed can carry mixed case.
	st.CancerType = "Breast"

	entries := selectCriticalSteps([]*NavigationStep{st}, []*Patient{p}, testNow,
		DefaultAnalyticsConfig(), CriticalStepFilters{CancerType: "breast"})
	if len(entries) != 1 {
		t.Fatalf("filter %q missed step stored as %q", "breast", st.CancerType)
	}

	entries = selectCriticalSteps([]*NavigationStep{st}, []*Patient{p}, testNow,
		DefaultAnalyticsConfig(), CriticalStepFilters{CancerType: " BREAST "})
	if len(entries) != 1 {
		t.Fatal("filter value itself should be normalized")
	}
}

func TestComputeMetricsCounts(t *testing.T) {
	p1 := &Patient{ID: uuid.New(), JourneyStage: StageScreening}
	p2 := &Patient{ID: uuid.New(), JourneyStage: StageScreening}
	steps := []*NavigationStep{
		overdueBy(mkStep(p1.ID, StageScreening, "a", StatusPending, true, 0), 20),
		overdueBy(mkStep(p1.ID, StageScreening, "b", StatusPending, true, 1), 3),
		dueIn(mkStep(p2.ID, StageScreening, "c", StatusPending, true, 2), 3),
		completedAfter(mkStep(p2.ID, StageScreening, "d", StatusPending, true, 3), 10),
	}

	m := computeMetrics(steps, []*Patient{p1, p2}, testNow, DefaultAnalyticsConfig())
	if m.OverdueStepsCount != 2 {
		t.Errorf("overdue count: got %d, want 2", m.OverdueStepsCount)
	}
	if m.CriticalOverdueStepsCount != 1 {
		t.Errorf("critical overdue count: got %d, want 1", m.CriticalOverdueStepsCount)
	}
	if m.StepsDueSoonCount != 1 {
		t.Errorf("due soon count: got %d, want 1", m.StepsDueSoonCount)
	}
	if m.OverallCompletionRatePct != 25 {
		t.Errorf("overall completion: got %d, want 25", m.OverallCompletionRatePct)
	}
	if m.PatientsByStage[StageScreening] != 2 {
		t.Errorf("patients by stage: got %d, want 2", m.PatientsByStage[StageScreening])
	}

	var screening *StageMetrics
	for i := range m.StageMetrics {
		if m.StageMetrics[i].Stage == StageScreening {
			screening = &m.StageMetrics[i]
		}
	}
	if screening == nil {
		t.Fatal("screening stage metrics missing")
	}
	if screening.PatientsCount != 2 {
		t.Errorf("distinct patients with steps: got %d, want 2", screening.PatientsCount)
	}
	if screening.TotalSteps != 4 || screening.CompletedSteps != 1 || screening.OverdueSteps != 2 {
		t.Errorf("stage rollup wrong: %+v", screening)
	}
	if screening.AverageTimeDays == nil || *screening.AverageTimeDays != 10 {
		t.Errorf("average time: got %v, want 10", screening.AverageTimeDays)
	}
}

func TestComputeMetricsAverageTimeNilWithoutCompletions(t *testing.T) {
	p := &Patient{ID: uuid.New(), JourneyStage: StageDiagnosis}
	steps := []*NavigationStep{mkStep(p.ID, StageDiagnosis, "biopsy", StatusPending, true, 0)}

	m := computeMetrics(steps, []*Patient{p}, testNow, DefaultAnalyticsConfig())
	for _, sm := range m.StageMetrics {
		if sm.Stage == StageDiagnosis {
			if sm.AverageTimeDays != nil {
				t.Fatalf("average time must be nil without completions, got %v", *sm.AverageTimeDays)
			}
			if sm.CompletionRatePct != 0 {
				t.Fatalf("completion rate: got %d, want 0", sm.CompletionRatePct)
			}
		}
	}
}

func TestDetectBottlenecks(t *testing.T) {
	cfg := DefaultAnalyticsConfig()
	mkMetrics := func(stage JourneyStage, total, completed int) StageMetrics {
		sm := StageMetrics{Stage: stage, StageLabel: stage.Label(), TotalSteps: total, CompletedSteps: completed}
		if total > 0 {
			sm.CompletionRatePct = completed * 100 / total
		}
		return sm
	}

	// Half the patients sit in diagnosis completing 30% of steps.
	byStage := map[JourneyStage]int{StageDiagnosis: 5, StageScreening: 3, StageTreatment: 2}
	out := detectBottlenecks([]StageMetrics{
		mkMetrics(StageScreening, 10, 9),
		mkMetrics(StageDiagnosis, 10, 3),
		mkMetrics(StageTreatment, 10, 1),
	}, byStage, 10, cfg)
	if len(out) != 1 {
		t.Fatalf("expected 1 bottleneck, got %d", len(out))
	}
	b := out[0]
	if b.Stage != StageDiagnosis || b.Percentage != 50 {
		t.Errorf("wrong bottleneck: %+v", b)
	}
	if b.Reason == "" {
		t.Error("bottleneck must carry a reason")
	}

	// Same share but healthy completion: not a bottleneck.
	out = detectBottlenecks([]StageMetrics{mkMetrics(StageDiagnosis, 10, 9)}, byStage, 10, cfg)
	if len(out) != 0 {
		t.Fatalf("90%% completion should not be flagged, got %+v", out)
	}

	// Poor completion but too few patients held: not a bottleneck.
	out = detectBottlenecks([]StageMetrics{mkMetrics(StageDiagnosis, 10, 3)},
		map[JourneyStage]int{StageDiagnosis: 2}, 10, cfg)
	if len(out) != 0 {
		t.Fatalf("20%% share should not be flagged, got %+v", out)
	}
}

func TestDetectBottlenecksSlowThroughput(t *testing.T) {
	cfg := DefaultAnalyticsConfig()
	avg := 30.0
	sm := StageMetrics{Stage: StageTreatment, StageLabel: "Treatment", TotalSteps: 10, CompletedSteps: 8,
		CompletionRatePct: 80, AverageTimeDays: &avg}
	out := detectBottlenecks([]StageMetrics{sm}, map[JourneyStage]int{StageTreatment: 6}, 10, cfg)
	if len(out) != 1 {
		t.Fatalf("slow stage with high share should be flagged, got %d", len(out))
	}
	if out[0].Reason == "" || out[0].AverageTimeDays == nil {
		t.Errorf("reason and average time expected: %+v", out[0])
	}
}

func TestAnalyticsEndToEnd(t *testing.T) {
	steps := newMemStepRepo()
	patients := newMemPatientRepo()
	p := patients.add(&Patient{FirstName: "Ana", LastName: "Silva", CancerType: "breast", JourneyStage: StageScreening, PriorityScore: 5})
	st := overdueBy(mkStep(p.ID, StageScreening, "mammogram", StatusPending, true, 0), 20)
	if _, err := steps.CreateIfAbsent(context.Background(), st); err != nil {
		t.Fatal(err)
	}

	a := NewAnalytics(steps, patients, DefaultAnalyticsConfig())
	a.now = func() time.Time { return testNow }

	entries, err := a.CriticalSteps(context.Background(), CriticalStepFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].PatientName != "Ana Silva" {
		t.Fatalf("unexpected worklist: %+v", entries)
	}

	m, err := a.Metrics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if m.OverdueStepsCount != 1 || m.CriticalOverdueStepsCount != 1 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
}
