package navigation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StepFilter narrows step listings. Zero values mean "no filter".
type StepFilter struct {
	Stage       JourneyStage
	Status      StepStatus
	OnlyActive  bool
	DueBefore   *time.Time
	HasFindings bool
}

// StepRepository persists navigation steps.
type StepRepository interface {
	// CreateIfAbsent inserts the step unless a step with the same
	// (patient_id, journey_stage, step_key) already exists. Returns true
	// when a row was inserted.
	CreateIfAbsent(ctx context.Context, step *NavigationStep) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*NavigationStep, error)
	// Update writes the step only if the stored updated_at still equals
	// expectedUpdatedAt; a stale expectation returns ErrConflict.
	Update(ctx context.Context, step *NavigationStep, expectedUpdatedAt time.Time) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, filter StepFilter) ([]*NavigationStep, error)
	// ListActive returns every non-terminal step across all patients,
	// for analytics and the overdue sweep.
	ListActive(ctx context.Context, limit, offset int) ([]*NavigationStep, int, error)
	ListAll(ctx context.Context) ([]*NavigationStep, error)
	// MarkOverdue persists OVERDUE on active steps whose due date is
	// before the cutoff, returning the number of rows touched.
	MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error)
}

// PatientRepository is the read-only view of patients the navigation
// service needs.
type PatientRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	UpdateStage(ctx context.Context, id uuid.UUID, stage JourneyStage) error
}
