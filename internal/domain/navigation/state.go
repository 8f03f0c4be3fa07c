package navigation

import (
	"time"
)

// EffectiveStatus derives the status a reader should see at the given
// instant. Terminal statuses are returned as stored; an active step with a
// due date in the past reads as OVERDUE. Pure function of the step and now;
// nothing is written.
func (s *NavigationStep) EffectiveStatus(now time.Time) StepStatus {
	if s.Status.IsTerminal() {
		return s.Status
	}
	if s.DueDate != nil && now.After(*s.DueDate) {
		return StatusOverdue
	}
	if s.Status == StatusOverdue {
		// Stored OVERDUE whose due date was pushed out or cleared decays
		// back to PENDING.
		return StatusPending
	}
	return s.Status
}

// DaysOverdue returns whole days elapsed since the due date, 0 when the step
// is not overdue or has no due date. Terminal steps are never overdue.
func (s *NavigationStep) DaysOverdue(now time.Time) int {
	if s.Status.IsTerminal() || s.DueDate == nil || !now.After(*s.DueDate) {
		return 0
	}
	return int(now.Sub(*s.DueDate).Hours() / 24)
}

// IsCriticalOverdue reports whether the step has been overdue for more than
// criticalDays days.
func (s *NavigationStep) IsCriticalOverdue(now time.Time, criticalDays int) bool {
	return s.DaysOverdue(now) > criticalDays
}

// IsDueSoon reports whether an active step's due date falls within the next
// withinDays days. Already-overdue steps are not "due soon".
func (s *NavigationStep) IsDueSoon(now time.Time, withinDays int) bool {
	if s.Status.IsTerminal() || s.DueDate == nil {
		return false
	}
	if now.After(*s.DueDate) {
		return false
	}
	return s.DueDate.Sub(now) <= time.Duration(withinDays)*24*time.Hour
}

// CompletionTime returns the days from step creation to completion, and
// whether the step has a usable completion timestamp.
func (s *NavigationStep) CompletionTime() (float64, bool) {
	if !s.IsCompleted || s.CompletedAt == nil {
		return 0, false
	}
	d := s.CompletedAt.Sub(s.CreatedAt)
	if d < 0 {
		return 0, false
	}
	return d.Hours() / 24, true
}

// StepUpdate is a partial update to a step. Nil fields are left unchanged;
// unknown fields are rejected at the transport boundary.
type StepUpdate struct {
	Status           *StepStatus `json:"status,omitempty"`
	IsCompleted      *bool       `json:"is_completed,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
	CompletedBy      *string     `json:"completed_by,omitempty"`
	ExpectedDate     *time.Time  `json:"expected_date,omitempty"`
	DueDate          *time.Time  `json:"due_date,omitempty"`
	ClearDueDate     bool        `json:"clear_due_date,omitempty"`
	ActualDate       *time.Time  `json:"actual_date,omitempty"`
	InstitutionName  *string     `json:"institution_name,omitempty"`
	ProfessionalName *string     `json:"professional_name,omitempty"`
	Result           *string     `json:"result,omitempty"`
	Findings         *[]string   `json:"findings,omitempty"`
	Notes            *string     `json:"notes,omitempty"`
}

// Apply mutates the step with the update's non-nil fields at the given
// instant, keeping is_completed and status consistent. Completion is
// idempotent: a redundant "complete" keeps the original completed_at.
// Un-completing clears the completion fields and reverts to PENDING; the
// read-time derivation re-flags OVERDUE if the due date has passed.
func (u *StepUpdate) Apply(step *NavigationStep, now time.Time) error {
	target := step.Status
	if u.Status != nil {
		if !u.Status.Valid() {
			return &ValidationError{Field: "status", Message: "unknown step status"}
		}
		target = *u.Status
	}
	if u.IsCompleted != nil {
		// is_completed wins over a contradictory status in the same
		// update; operators toggle the flag, automation sets statuses.
		if *u.IsCompleted {
			target = StatusCompleted
		} else if target == StatusCompleted {
			target = StatusPending
		}
	}

	switch {
	case target == StatusCompleted && !step.IsCompleted:
		at := now
		if u.CompletedAt != nil {
			at = *u.CompletedAt
		}
		step.CompletedAt = &at
		step.CompletedBy = u.CompletedBy
	case target == StatusCompleted && step.IsCompleted:
		if u.CompletedAt != nil {
			step.CompletedAt = u.CompletedAt
		}
		if u.CompletedBy != nil {
			step.CompletedBy = u.CompletedBy
		}
	case target != StatusCompleted && step.IsCompleted:
		step.CompletedAt = nil
		step.CompletedBy = nil
	}
	step.Status = target
	step.IsCompleted = target == StatusCompleted

	if u.ExpectedDate != nil {
		d := *u.ExpectedDate
		step.ExpectedDate = &d
	}
	if u.ClearDueDate {
		step.DueDate = nil
	} else if u.DueDate != nil {
		// A past due date is legal (historical data entry); the step
		// simply reads as overdue on the next evaluation.
		d := *u.DueDate
		step.DueDate = &d
	}
	if u.ActualDate != nil {
		d := *u.ActualDate
		step.ActualDate = &d
	}
	if u.InstitutionName != nil {
		step.InstitutionName = u.InstitutionName
	}
	if u.ProfessionalName != nil {
		step.ProfessionalName = u.ProfessionalName
	}
	if u.Result != nil {
		step.Result = u.Result
	}
	if u.Findings != nil {
		step.Findings = append([]string(nil), (*u.Findings)...)
	}
	if u.Notes != nil {
		step.Notes = u.Notes
	}
	step.UpdatedAt = now
	return nil
}
