package navigation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JourneyStage is an ordered phase of the patient journey. Stages only move
// forward; Order gives the comparison key.
type JourneyStage string

const (
	StageScreening  JourneyStage = "SCREENING"
	StageNavigation JourneyStage = "NAVIGATION"
	StageDiagnosis  JourneyStage = "DIAGNOSIS"
	StageTreatment  JourneyStage = "TREATMENT"
	StageFollowUp   JourneyStage = "FOLLOW_UP"
)

var stageOrder = map[JourneyStage]int{
	StageScreening:  0,
	StageNavigation: 1,
	StageDiagnosis:  2,
	StageTreatment:  3,
	StageFollowUp:   4,
}

// Stages returns all journey stages in journey order.
func Stages() []JourneyStage {
	return []JourneyStage{StageScreening, StageNavigation, StageDiagnosis, StageTreatment, StageFollowUp}
}

// Order returns the stage's position in the journey, or -1 for an unknown
// stage.
func (s JourneyStage) Order() int {
	if o, ok := stageOrder[s]; ok {
		return o
	}
	return -1
}

// Valid reports whether s is a known journey stage.
func (s JourneyStage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// NormalizeCancerType lower-cases and trims a free-form cancer type so every
// boundary that keys on it (catalog lookup, step stamping, worklist filters)
// compares the same value.
func NormalizeCancerType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseStage parses a stage name case-insensitively.
func ParseStage(s string) (JourneyStage, error) {
	stage := JourneyStage(strings.ToUpper(strings.TrimSpace(s)))
	if !stage.Valid() {
		return "", &ValidationError{Field: "journey_stage", Message: fmt.Sprintf("unknown journey stage %q", s)}
	}
	return stage, nil
}

// StepStatus is the lifecycle state of a navigation step.
type StepStatus string

const (
	StatusPending       StepStatus = "PENDING"
	StatusInProgress    StepStatus = "IN_PROGRESS"
	StatusCompleted     StepStatus = "COMPLETED"
	StatusOverdue       StepStatus = "OVERDUE"
	StatusCancelled     StepStatus = "CANCELLED"
	StatusNotApplicable StepStatus = "NOT_APPLICABLE"
)

var validStatuses = map[StepStatus]bool{
	StatusPending:       true,
	StatusInProgress:    true,
	StatusCompleted:     true,
	StatusOverdue:       true,
	StatusCancelled:     true,
	StatusNotApplicable: true,
}

// Valid reports whether s is a known step status.
func (s StepStatus) Valid() bool { return validStatuses[s] }

// IsTerminal reports whether the status ends the step's lifecycle. Terminal
// steps never derive to OVERDUE and are excluded from active-step analytics.
func (s StepStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNotApplicable
}

// IsActive reports whether the step still represents open work.
func (s StepStatus) IsActive() bool {
	return s == StatusPending || s == StatusInProgress || s == StatusOverdue
}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(s string) (StepStatus, error) {
	status := StepStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown step status %q", s)}
	}
	return status, nil
}

// StepDefinition is a catalog template entry: one checklist step a patient
// of a given cancer type owes in a given journey stage.
type StepDefinition struct {
	StepKey              string `json:"step_key"`
	StepName             string `json:"step_name"`
	StepDescription      string `json:"step_description"`
	IsRequired           bool   `json:"is_required"`
	DefaultDueOffsetDays *int   `json:"default_due_offset_days,omitempty"`
}

// FileAttachment is an uploaded document's descriptor, stored inline as
// JSONB. Contents live in blob storage; this core stores the metadata
// untouched.
type FileAttachment struct {
	FileName     string    `json:"file_name" db:"file_name"`
	OriginalName string    `json:"original_name,omitempty" db:"original_name"`
	MimeType     string    `json:"mime_type,omitempty" db:"mime_type"`
	Size         int64     `json:"size,omitempty" db:"size"`
	Path         string    `json:"path,omitempty" db:"path"`
	UploadedAt   time.Time `json:"uploaded_at" db:"uploaded_at"`
	UploadedBy   string    `json:"uploaded_by,omitempty" db:"uploaded_by"`
}

// NavigationStep is one checklist item on a patient's journey. DueDate is
// the operator-set SLA deadline and the sole driver of overdue derivation;
// ExpectedDate is the catalog-derived target and informational only.
type NavigationStep struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	PatientID        uuid.UUID        `json:"patient_id" db:"patient_id"`
	CancerType       string           `json:"cancer_type" db:"cancer_type"`
	JourneyStage     JourneyStage     `json:"journey_stage" db:"journey_stage"`
	StepKey          string           `json:"step_key" db:"step_key"`
	StepName         string           `json:"step_name" db:"step_name"`
	StepDescription  string           `json:"step_description,omitempty" db:"step_description"`
	IsRequired       bool             `json:"is_required" db:"is_required"`
	Status           StepStatus       `json:"status" db:"status"`
	IsCompleted      bool             `json:"is_completed" db:"is_completed"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	CompletedBy      *string          `json:"completed_by,omitempty" db:"completed_by"`
	ExpectedDate     *time.Time       `json:"expected_date,omitempty" db:"expected_date"`
	DueDate          *time.Time       `json:"due_date,omitempty" db:"due_date"`
	ActualDate       *time.Time       `json:"actual_date,omitempty" db:"actual_date"`
	InstitutionName  *string          `json:"institution_name,omitempty" db:"institution_name"`
	ProfessionalName *string          `json:"professional_name,omitempty" db:"professional_name"`
	Result           *string          `json:"result,omitempty" db:"result"`
	Findings         []string         `json:"findings" db:"findings"`
	Attachments      []FileAttachment `json:"attachments" db:"attachments"`
	Notes            *string          `json:"notes,omitempty" db:"notes"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// Patient is the projection of the patient record the navigation service
// needs; the full clinical record lives elsewhere.
type Patient struct {
	ID               uuid.UUID    `json:"id" db:"id"`
	FirstName        string       `json:"first_name" db:"first_name"`
	LastName         string       `json:"last_name" db:"last_name"`
	CancerType       string       `json:"cancer_type" db:"cancer_type"`
	JourneyStage     JourneyStage `json:"journey_stage" db:"journey_stage"`
	PriorityScore    float64      `json:"priority_score" db:"priority_score"`
	PriorityCategory string       `json:"priority_category,omitempty" db:"priority_category"`
	NavigatorID      *uuid.UUID   `json:"navigator_id,omitempty" db:"navigator_id"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at" db:"updated_at"`
}

// FullName returns the display name used in analytics rollups.
func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}
