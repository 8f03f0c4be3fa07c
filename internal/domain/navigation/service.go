package navigation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Catalog supplies the step templates for a cancer type and stage.
// Implemented by the catalog package; lookups never fail.
type Catalog interface {
	Steps(cancerType string, stage JourneyStage) []StepDefinition
}

// AdvancePolicy controls what happens to incomplete optional steps from
// earlier stages when a patient's journey stage advances.
type AdvancePolicy string

const (
	// PolicyKeepPending leaves earlier-stage steps untouched.
	PolicyKeepPending AdvancePolicy = "keep-pending"
	// PolicyMarkNotApplicable closes incomplete optional steps from
	// earlier stages as NOT_APPLICABLE. Required steps always stay open.
	PolicyMarkNotApplicable AdvancePolicy = "mark-not-applicable"
)

// EnsureResult reports what step instantiation did for one patient. Errors
// holds one entry per failed step creation; a failing step never aborts the
// rest of the run.
type EnsureResult struct {
	PatientID uuid.UUID `json:"patient_id"`
	Created   int       `json:"created"`
	Skipped   int       `json:"skipped"`
	Errors    []string  `json:"errors,omitempty"`
}

// BulkInitResult aggregates a run over all patients. Errors holds one entry
// per failed patient; failures never abort the run.
type BulkInitResult struct {
	Initialized int      `json:"initialized"`
	Skipped     int      `json:"skipped"`
	Patients    int      `json:"patients"`
	Errors      []string `json:"errors,omitempty"`
}

// Service orchestrates step instantiation and lifecycle updates.
type Service struct {
	steps    StepRepository
	patients PatientRepository
	catalog  Catalog
	policy   AdvancePolicy
	log      zerolog.Logger
	now      func() time.Time
	// tx wraps multi-write operations in one unit of work when the
	// service is backed by a real database. Default runs fn directly.
	tx func(ctx context.Context, fn func(context.Context) error) error
}

func NewService(steps StepRepository, patients PatientRepository, cat Catalog, policy AdvancePolicy, log zerolog.Logger) *Service {
	if policy == "" {
		policy = PolicyKeepPending
	}
	return &Service{
		steps:    steps,
		patients: patients,
		catalog:  cat,
		policy:   policy,
		log:      log,
		now:      time.Now,
		tx:       func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) },
	}
}

// WithTxRunner installs the transaction wrapper applied to multi-write
// operations such as stage advancement.
func (s *Service) WithTxRunner(run func(ctx context.Context, fn func(context.Context) error) error) {
	s.tx = run
}

// EnsureSteps instantiates catalog steps for the patient. With no stages
// given, the patient's current stage is used; callers expanding the whole
// journey pass Stages(). Steps that already exist for (patient, stage,
// step_key) are skipped, so the call is safe to repeat and safe to race.
func (s *Service) EnsureSteps(ctx context.Context, patientID uuid.UUID, stages ...JourneyStage) (*EnsureResult, error) {
	patient, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if len(stages) == 0 {
		stages = []JourneyStage{patient.JourneyStage}
	}
	for _, stage := range stages {
		if !stage.Valid() {
			return nil, &ValidationError{Field: "journey_stage", Message: "unknown journey stage"}
		}
	}
	return s.ensure(ctx, patient, stages...)
}

func (s *Service) ensure(ctx context.Context, patient *Patient, stages ...JourneyStage) (*EnsureResult, error) {
	now := s.now()
	cancerType := NormalizeCancerType(patient.CancerType)
	result := &EnsureResult{PatientID: patient.ID}
	for _, stage := range stages {
		for _, def := range s.catalog.Steps(cancerType, stage) {
			step := &NavigationStep{
				PatientID:       patient.ID,
				CancerType:      cancerType,
				JourneyStage:    stage,
				StepKey:         def.StepKey,
				StepName:        def.StepName,
				StepDescription: def.StepDescription,
				IsRequired:      def.IsRequired,
				Status:          StatusPending,
			}
			if def.DefaultDueOffsetDays != nil {
				// Catalog offsets set the informational target date; the
				// SLA due date stays an operator decision.
				expected := now.AddDate(0, 0, *def.DefaultDueOffsetDays)
				step.ExpectedDate = &expected
			}
			created, err := s.steps.CreateIfAbsent(ctx, step)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("step %s/%s: %v", stage, def.StepKey, err))
				continue
			}
			if created {
				result.Created++
			} else {
				result.Skipped++
			}
		}
	}
	return result, nil
}

// InitializeAllPatients ensures current-stage steps for every patient. A
// failing patient is recorded and the run continues.
func (s *Service) InitializeAllPatients(ctx context.Context) (*BulkInitResult, error) {
	const pageSize = 200
	result := &BulkInitResult{}
	offset := 0
	for {
		patients, total, err := s.patients.List(ctx, pageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, p := range patients {
			res, err := s.ensure(ctx, p, p.JourneyStage)
			if err != nil {
				s.log.Error().Err(err).Str("patient_id", p.ID.String()).Msg("step initialization failed")
				result.Errors = append(result.Errors, fmt.Sprintf("patient %s: %v", p.ID, err))
				continue
			}
			for _, e := range res.Errors {
				result.Errors = append(result.Errors, fmt.Sprintf("patient %s: %s", p.ID, e))
			}
			result.Patients++
			result.Initialized += res.Created
			result.Skipped += res.Skipped
		}
		offset += len(patients)
		if offset >= total || len(patients) == 0 {
			break
		}
	}
	return result, nil
}

// GetStep returns a step with its read-time status derived.
func (s *Service) GetStep(ctx context.Context, id uuid.UUID) (*NavigationStep, error) {
	step, err := s.steps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	step.Status = step.EffectiveStatus(s.now())
	return step, nil
}

// ListPatientSteps returns a patient's steps with read-time statuses.
func (s *Service) ListPatientSteps(ctx context.Context, patientID uuid.UUID, filter StepFilter) ([]*NavigationStep, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	steps, err := s.steps.ListByPatient(ctx, patientID, filter)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, st := range steps {
		st.Status = st.EffectiveStatus(now)
	}
	return steps, nil
}

// ListActiveSteps pages through every open step across all patients, with
// read-time statuses.
func (s *Service) ListActiveSteps(ctx context.Context, limit, offset int) ([]*NavigationStep, int, error) {
	steps, total, err := s.steps.ListActive(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	for _, st := range steps {
		st.Status = st.EffectiveStatus(now)
	}
	return steps, total, nil
}

// UpdateStep applies a partial update under optimistic concurrency. A lost
// race surfaces as ErrConflict; callers reload and retry.
func (s *Service) UpdateStep(ctx context.Context, id uuid.UUID, update *StepUpdate) (*NavigationStep, error) {
	step, err := s.steps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := step.UpdatedAt
	if err := update.Apply(step, s.now()); err != nil {
		return nil, err
	}
	if err := s.steps.Update(ctx, step, expected); err != nil {
		return nil, err
	}
	step.Status = step.EffectiveStatus(s.now())
	return step, nil
}

// AddFinding appends a clinical finding to the step. Duplicate findings are
// rejected.
func (s *Service) AddFinding(ctx context.Context, id uuid.UUID, finding string) (*NavigationStep, error) {
	if finding == "" {
		return nil, &ValidationError{Field: "finding", Message: "must not be empty"}
	}
	step, err := s.steps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, f := range step.Findings {
		if f == finding {
			return nil, &ValidationError{Field: "finding", Message: "already recorded"}
		}
	}
	expected := step.UpdatedAt
	step.Findings = append(step.Findings, finding)
	if err := s.steps.Update(ctx, step, expected); err != nil {
		return nil, err
	}
	return step, nil
}

// RemoveFinding deletes a finding; removing one that is not present is a
// no-op, not an error.
func (s *Service) RemoveFinding(ctx context.Context, id uuid.UUID, finding string) (*NavigationStep, error) {
	step, err := s.steps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	kept := step.Findings[:0]
	removed := false
	for _, f := range step.Findings {
		if f == finding {
			removed = true
			continue
		}
		kept = append(kept, f)
	}
	if !removed {
		return step, nil
	}
	expected := step.UpdatedAt
	step.Findings = kept
	if err := s.steps.Update(ctx, step, expected); err != nil {
		return nil, err
	}
	return step, nil
}

// AddAttachment appends an uploaded document's descriptor to the step. The
// descriptor is stored untouched; file contents are another service's
// concern.
func (s *Service) AddAttachment(ctx context.Context, id uuid.UUID, att FileAttachment) (*NavigationStep, error) {
	if att.FileName == "" {
		return nil, &ValidationError{Field: "attachment", Message: "file_name is required"}
	}
	step, err := s.steps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if att.UploadedAt.IsZero() {
		att.UploadedAt = s.now()
	}
	expected := step.UpdatedAt
	step.Attachments = append(step.Attachments, att)
	if err := s.steps.Update(ctx, step, expected); err != nil {
		return nil, err
	}
	return step, nil
}

// AdvanceStage moves a patient to a later journey stage and instantiates the
// new stage's steps. Stages never move backward. Earlier-stage optional
// steps are handled per the configured policy.
func (s *Service) AdvanceStage(ctx context.Context, patientID uuid.UUID, next JourneyStage) (*EnsureResult, error) {
	if !next.Valid() {
		return nil, &ValidationError{Field: "journey_stage", Message: "unknown journey stage"}
	}
	patient, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if next.Order() <= patient.JourneyStage.Order() {
		return nil, &ValidationError{
			Field:   "journey_stage",
			Message: fmt.Sprintf("cannot move from %s to %s: stages only advance", patient.JourneyStage, next),
		}
	}
	var result *EnsureResult
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.patients.UpdateStage(ctx, patientID, next); err != nil {
			return err
		}
		patient.JourneyStage = next

		if s.policy == PolicyMarkNotApplicable {
			if err := s.closeEarlierOptional(ctx, patientID, next); err != nil {
				return err
			}
		}
		res, err := s.ensure(ctx, patient, next)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) closeEarlierOptional(ctx context.Context, patientID uuid.UUID, next JourneyStage) error {
	steps, err := s.steps.ListByPatient(ctx, patientID, StepFilter{OnlyActive: true})
	if err != nil {
		return err
	}
	now := s.now()
	for _, st := range steps {
		if st.IsRequired || st.JourneyStage.Order() >= next.Order() {
			continue
		}
		expected := st.UpdatedAt
		st.Status = StatusNotApplicable
		st.UpdatedAt = now
		if err := s.steps.Update(ctx, st, expected); err != nil {
			return err
		}
	}
	return nil
}
