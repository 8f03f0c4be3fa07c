package navigation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// AnalyticsConfig holds the alerting and bottleneck thresholds. Clinical
// SLAs vary by institution, so none of these are hard-coded at call sites.
type AnalyticsConfig struct {
	CriticalOverdueDays          int
	DueSoonDays                  int
	MaxCriticalResults           int
	BottleneckPatientSharePct    float64
	BottleneckCompletionFloorPct float64
	BottleneckAvgTimeCeilingDays float64
}

func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		CriticalOverdueDays:          14,
		DueSoonDays:                  7,
		MaxCriticalResults:           50,
		BottleneckPatientSharePct:    25,
		BottleneckCompletionFloorPct: 50,
		BottleneckAvgTimeCeilingDays: 21,
	}
}

// CriticalStepFilters narrows the critical-steps worklist. Zero values mean
// "no filter"; MaxResults 0 uses the configured default.
type CriticalStepFilters struct {
	Stage      JourneyStage
	CancerType string
	MaxResults int
}

// PatientCriticalStep is one worklist row: the patient, their single most
// urgent open step, and completion rollups.
type PatientCriticalStep struct {
	PatientID        uuid.UUID       `json:"patient_id"`
	PatientName      string          `json:"patient_name"`
	CancerType       string          `json:"cancer_type"`
	JourneyStage     JourneyStage    `json:"journey_stage"`
	PriorityScore    float64         `json:"priority_score"`
	PriorityCategory string          `json:"priority_category,omitempty"`
	CriticalStep     *NavigationStep `json:"critical_step"`
	DaysOverdue      int             `json:"days_overdue"`
	CriticalOverdue  bool            `json:"critical_overdue"`
	TotalSteps       int             `json:"total_steps"`
	CompletedSteps   int             `json:"completed_steps"`
	CompletionRate   float64         `json:"completion_rate"`
	OpenAlerts       int             `json:"open_alerts"`
}

// StageMetrics aggregates one journey stage across all patients with steps
// in it. AverageTimeDays is nil, not zero, when the stage has no completed
// steps; zero would read as an instant turnaround.
type StageMetrics struct {
	Stage      JourneyStage `json:"journey_stage"`
	StageLabel string       `json:"stage_label"`
	// PatientsCount is the distinct patients holding steps in this stage.
	// A patient keeps counting here after moving on if earlier-stage steps
	// remain, so this can exceed the current-stage histogram in
	// Metrics.PatientsByStage.
	PatientsCount     int `json:"patients_count"`
	TotalSteps        int          `json:"total_steps"`
	CompletedSteps    int          `json:"completed_steps"`
	OverdueSteps      int          `json:"overdue_steps"`
	CompletionRatePct int          `json:"completion_rate_pct"`
	AverageTimeDays   *float64     `json:"average_time_days"`
}

// Bottleneck flags a stage disproportionately holding patients combined with
// poor completion or slow throughput.
type Bottleneck struct {
	Stage      JourneyStage `json:"journey_stage"`
	StageLabel string       `json:"stage_label"`
	// PatientsCount is the patients whose current journey stage is this
	// stage, the basis of Percentage. It is sourced from the current-stage
	// histogram, not from step rows like StageMetrics.PatientsCount.
	PatientsCount int     `json:"patients_count"`
	Percentage    float64 `json:"percentage"`
	AverageTimeDays *float64     `json:"average_time_days"`
	Reason          string       `json:"reason"`
}

// Metrics is the dashboard payload.
type Metrics struct {
	OverdueStepsCount         int                  `json:"overdue_steps_count"`
	CriticalOverdueStepsCount int                  `json:"critical_overdue_steps_count"`
	StepsDueSoonCount         int                  `json:"steps_due_soon_count"`
	OverallCompletionRatePct  int                  `json:"overall_completion_rate_pct"`
	PatientsByStage           map[JourneyStage]int `json:"patients_by_stage"`
	StageMetrics              []StageMetrics       `json:"stage_metrics"`
	Bottlenecks               []Bottleneck         `json:"bottlenecks"`
}

// Label returns the human-readable stage name used in dashboards.
func (s JourneyStage) Label() string {
	switch s {
	case StageScreening:
		return "Screening"
	case StageNavigation:
		return "Navigation"
	case StageDiagnosis:
		return "Diagnosis"
	case StageTreatment:
		return "Treatment"
	case StageFollowUp:
		return "Follow-up"
	}
	return string(s)
}

// Analytics computes read models over the current step collection. Every
// call re-reads a snapshot and computes from scratch; there is no hidden
// accumulation, so concurrent calls need no coordination.
type Analytics struct {
	steps    StepRepository
	patients PatientRepository
	cfg      AnalyticsConfig
	now      func() time.Time
}

func NewAnalytics(steps StepRepository, patients PatientRepository, cfg AnalyticsConfig) *Analytics {
	return &Analytics{steps: steps, patients: patients, cfg: cfg, now: time.Now}
}

func (a *Analytics) snapshot(ctx context.Context) ([]*NavigationStep, []*Patient, error) {
	steps, err := a.steps.ListAll(ctx)
	if err != nil {
		return nil, nil, err
	}
	const pageSize = 500
	var patients []*Patient
	offset := 0
	for {
		page, total, err := a.patients.List(ctx, pageSize, offset)
		if err != nil {
			return nil, nil, err
		}
		patients = append(patients, page...)
		offset += len(page)
		if offset >= total || len(page) == 0 {
			break
		}
	}
	return steps, patients, nil
}

// CriticalSteps selects, for each patient with at least one active required
// step, the single most urgent open step, sorted most urgent first and
// truncated to the result cap only after sorting.
func (a *Analytics) CriticalSteps(ctx context.Context, filters CriticalStepFilters) ([]*PatientCriticalStep, error) {
	steps, patients, err := a.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return selectCriticalSteps(steps, patients, a.now(), a.cfg, filters), nil
}

// Metrics computes the full dashboard payload.
func (a *Analytics) Metrics(ctx context.Context) (*Metrics, error) {
	steps, patients, err := a.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return computeMetrics(steps, patients, a.now(), a.cfg), nil
}

// stepUrgencyLess orders two steps most-urgent-first: OVERDUE beats any
// non-overdue; among overdue, the oldest breach wins; among the rest, the
// soonest due date wins with nil due dates last. Returns 0 on a tie.
func stepUrgencyLess(x, y *NavigationStep, now time.Time) int {
	xOver := x.EffectiveStatus(now) == StatusOverdue
	yOver := y.EffectiveStatus(now) == StatusOverdue
	switch {
	case xOver && !yOver:
		return -1
	case !xOver && yOver:
		return 1
	case xOver && yOver:
		xd, yd := x.DaysOverdue(now), y.DaysOverdue(now)
		if xd != yd {
			if xd > yd {
				return -1
			}
			return 1
		}
		return 0
	}
	switch {
	case x.DueDate == nil && y.DueDate == nil:
		return 0
	case x.DueDate == nil:
		return 1
	case y.DueDate == nil:
		return -1
	case x.DueDate.Before(*y.DueDate):
		return -1
	case y.DueDate.Before(*x.DueDate):
		return 1
	}
	return 0
}

func selectCriticalSteps(steps []*NavigationStep, patients []*Patient, now time.Time, cfg AnalyticsConfig, filters CriticalStepFilters) []*PatientCriticalStep {
	byPatient := make(map[uuid.UUID]*Patient, len(patients))
	for _, p := range patients {
		byPatient[p.ID] = p
	}

	// Cancer types are matched on the normalized key, same as the catalog.
	cancerFilter := NormalizeCancerType(filters.CancerType)

	grouped := make(map[uuid.UUID][]*NavigationStep)
	for _, st := range steps {
		if filters.Stage != "" && st.JourneyStage != filters.Stage {
			continue
		}
		if cancerFilter != "" && NormalizeCancerType(st.CancerType) != cancerFilter {
			continue
		}
		grouped[st.PatientID] = append(grouped[st.PatientID], st)
	}

	var entries []*PatientCriticalStep
	for patientID, patientSteps := range grouped {
		patient := byPatient[patientID]
		if patient == nil {
			continue
		}

		var critical *NavigationStep
		total, completed, alerts := 0, 0, 0
		hasActiveRequired := false
		for _, st := range patientSteps {
			total++
			eff := st.EffectiveStatus(now)
			if eff == StatusCompleted {
				completed++
			}
			if eff == StatusOverdue {
				alerts++
			}
			if !eff.IsActive() {
				continue
			}
			if st.IsRequired {
				hasActiveRequired = true
			}
			if critical == nil {
				critical = st
				continue
			}
			switch stepUrgencyLess(st, critical, now) {
			case -1:
				critical = st
			case 0:
				// equal urgency: earliest-created step stays
				if st.CreatedAt.Before(critical.CreatedAt) {
					critical = st
				}
			}
		}
		// Patients with no open required work have nothing to action.
		if !hasActiveRequired || critical == nil {
			continue
		}

		rate := 0.0
		if total > 0 {
			rate = float64(completed) / float64(total)
		}
		shown := *critical
		shown.Status = shown.EffectiveStatus(now)
		entries = append(entries, &PatientCriticalStep{
			PatientID:        patient.ID,
			PatientName:      patient.FullName(),
			CancerType:       patient.CancerType,
			JourneyStage:     patient.JourneyStage,
			PriorityScore:    patient.PriorityScore,
			PriorityCategory: patient.PriorityCategory,
			CriticalStep:     &shown,
			DaysOverdue:      critical.DaysOverdue(now),
			CriticalOverdue:  critical.IsCriticalOverdue(now, cfg.CriticalOverdueDays),
			TotalSteps:       total,
			CompletedSteps:   completed,
			CompletionRate:   rate,
			OpenAlerts:       alerts,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		switch stepUrgencyLess(entries[i].CriticalStep, entries[j].CriticalStep, now) {
		case -1:
			return true
		case 1:
			return false
		}
		if entries[i].PriorityScore != entries[j].PriorityScore {
			return entries[i].PriorityScore > entries[j].PriorityScore
		}
		return entries[i].CriticalStep.CreatedAt.Before(entries[j].CriticalStep.CreatedAt)
	})

	max := filters.MaxResults
	if max <= 0 {
		max = cfg.MaxCriticalResults
	}
	// Truncate only after sorting or the wrong patients get dropped.
	if len(entries) > max {
		entries = entries[:max]
	}
	return entries
}

func computeMetrics(steps []*NavigationStep, patients []*Patient, now time.Time, cfg AnalyticsConfig) *Metrics {
	m := &Metrics{PatientsByStage: make(map[JourneyStage]int)}
	for _, p := range patients {
		m.PatientsByStage[p.JourneyStage]++
	}

	type stageAcc struct {
		patients  map[uuid.UUID]bool
		total     int
		completed int
		overdue   int
		timeSum   float64
		timeN     int
	}
	accs := make(map[JourneyStage]*stageAcc, len(Stages()))
	for _, stage := range Stages() {
		accs[stage] = &stageAcc{patients: make(map[uuid.UUID]bool)}
	}

	totalSteps, completedSteps := 0, 0
	for _, st := range steps {
		eff := st.EffectiveStatus(now)
		totalSteps++
		if eff == StatusCompleted {
			completedSteps++
		}
		if eff == StatusOverdue {
			m.OverdueStepsCount++
			if st.IsCriticalOverdue(now, cfg.CriticalOverdueDays) {
				m.CriticalOverdueStepsCount++
			}
		} else if eff.IsActive() && st.IsDueSoon(now, cfg.DueSoonDays) {
			m.StepsDueSoonCount++
		}

		acc := accs[st.JourneyStage]
		if acc == nil {
			continue
		}
		acc.patients[st.PatientID] = true
		acc.total++
		if eff == StatusCompleted {
			acc.completed++
		}
		if eff == StatusOverdue {
			acc.overdue++
		}
		if days, ok := st.CompletionTime(); ok {
			acc.timeSum += days
			acc.timeN++
		}
	}
	if totalSteps > 0 {
		m.OverallCompletionRatePct = int(math.Round(float64(completedSteps) / float64(totalSteps) * 100))
	}

	for _, stage := range Stages() {
		acc := accs[stage]
		sm := StageMetrics{
			Stage:          stage,
			StageLabel:     stage.Label(),
			PatientsCount:  len(acc.patients),
			TotalSteps:     acc.total,
			CompletedSteps: acc.completed,
			OverdueSteps:   acc.overdue,
		}
		if acc.total > 0 {
			sm.CompletionRatePct = int(math.Round(float64(acc.completed) / float64(acc.total) * 100))
		}
		if acc.timeN > 0 {
			avg := acc.timeSum / float64(acc.timeN)
			sm.AverageTimeDays = &avg
		}
		m.StageMetrics = append(m.StageMetrics, sm)
	}

	m.Bottlenecks = detectBottlenecks(m.StageMetrics, m.PatientsByStage, len(patients), cfg)
	return m
}

// detectBottlenecks flags stages holding an outsized share of patients that
// are also completing poorly or slowly. Both conditions must hold; the
// reason names whichever threshold was breached.
func detectBottlenecks(stageMetrics []StageMetrics, patientsByStage map[JourneyStage]int, totalPatients int, cfg AnalyticsConfig) []Bottleneck {
	if totalPatients == 0 {
		return nil
	}
	var out []Bottleneck
	for _, sm := range stageMetrics {
		holding := patientsByStage[sm.Stage]
		pct := float64(holding) / float64(totalPatients) * 100
		if pct <= cfg.BottleneckPatientSharePct {
			continue
		}
		var reason string
		switch {
		case sm.TotalSteps > 0 && float64(sm.CompletionRatePct) < cfg.BottleneckCompletionFloorPct:
			reason = fmt.Sprintf("completion rate %d%% below %.0f%% floor", sm.CompletionRatePct, cfg.BottleneckCompletionFloorPct)
		case sm.AverageTimeDays != nil && *sm.AverageTimeDays > cfg.BottleneckAvgTimeCeilingDays:
			reason = fmt.Sprintf("average completion time %.1f days exceeds %.0f day ceiling", *sm.AverageTimeDays, cfg.BottleneckAvgTimeCeilingDays)
		default:
			continue
		}
		out = append(out, Bottleneck{
			Stage:           sm.Stage,
			StageLabel:      sm.StageLabel,
			PatientsCount:   holding,
			Percentage:      pct,
			AverageTimeDays: sm.AverageTimeDays,
			Reason:          reason,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Percentage > out[j].Percentage })
	return out
}
