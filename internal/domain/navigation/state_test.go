package navigation

import (
	"testing"
	"time"
)

func datePtr(t time.Time) *time.Time { return &t }

func TestEffectiveStatus(t *testing.T) {
	now := testNow
	past := now.AddDate(0, 0, -5)
	future := now.AddDate(0, 0, 5)

	tests := []struct {
		name   string
		status StepStatus
		due    *time.Time
		want   StepStatus
	}{
		{"pending no due date", StatusPending, nil, StatusPending},
		{"pending future due date", StatusPending, &future, StatusPending},
		{"pending past due date", StatusPending, &past, StatusOverdue},
		{"in progress past due date", StatusInProgress, &past, StatusOverdue},
		{"completed past due date stays completed", StatusCompleted, &past, StatusCompleted},
		{"cancelled past due date stays cancelled", StatusCancelled, &past, StatusCancelled},
		{"not applicable past due date stays", StatusNotApplicable, &past, StatusNotApplicable},
		{"stored overdue with pushed-out due date decays", StatusOverdue, &future, StatusPending},
		{"stored overdue with cleared due date decays", StatusOverdue, nil, StatusPending},
		{"stored overdue still past stays overdue", StatusOverdue, &past, StatusOverdue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &NavigationStep{Status: tt.status, DueDate: tt.due}
			if got := st.EffectiveStatus(now); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDaysOverdueFloorsWholeDays(t *testing.T) {
	now := testNow
	tests := []struct {
		name string
		due  time.Time
		want int
	}{
		{"36 hours late is 1 day", now.Add(-36 * time.Hour), 1},
		{"23 hours late is 0 days", now.Add(-23 * time.Hour), 0},
		{"exactly 14 days", now.AddDate(0, 0, -14), 14},
		{"20 days", now.AddDate(0, 0, -20), 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &NavigationStep{Status: StatusPending, DueDate: &tt.due}
			if got := st.DaysOverdue(now); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}

	terminal := &NavigationStep{Status: StatusCompleted, DueDate: datePtr(now.AddDate(0, 0, -20))}
	if got := terminal.DaysOverdue(now); got != 0 {
		t.Errorf("terminal step is never overdue, got %d", got)
	}
}

func TestIsCriticalOverdueBoundary(t *testing.T) {
	now := testNow
	at14 := &NavigationStep{Status: StatusPending, DueDate: datePtr(now.AddDate(0, 0, -14))}
	if at14.IsCriticalOverdue(now, 14) {
		t.Error("exactly 14 days overdue is not yet critical")
	}
	at15 := &NavigationStep{Status: StatusPending, DueDate: datePtr(now.AddDate(0, 0, -15))}
	if !at15.IsCriticalOverdue(now, 14) {
		t.Error("15 days overdue should be critical")
	}
}

func TestIsDueSoon(t *testing.T) {
	now := testNow
	tests := []struct {
		name   string
		status StepStatus
		due    *time.Time
		want   bool
	}{
		{"due in 3 days", StatusPending, datePtr(now.AddDate(0, 0, 3)), true},
		{"due in exactly 7 days", StatusPending, datePtr(now.AddDate(0, 0, 7)), true},
		{"due in 10 days", StatusPending, datePtr(now.AddDate(0, 0, 10)), false},
		{"already overdue is not due soon", StatusPending, datePtr(now.AddDate(0, 0, -1)), false},
		{"no due date", StatusPending, nil, false},
		{"completed step", StatusCompleted, datePtr(now.AddDate(0, 0, 3)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &NavigationStep{Status: tt.status, DueDate: tt.due}
			if got := st.IsDueSoon(now, 7); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompletionTime(t *testing.T) {
	created := testNow
	completed := created.AddDate(0, 0, 10)
	st := &NavigationStep{Status: StatusCompleted, IsCompleted: true, CreatedAt: created, CompletedAt: &completed}
	days, ok := st.CompletionTime()
	if !ok || days != 10 {
		t.Fatalf("got %v/%v, want 10/true", days, ok)
	}

	open := &NavigationStep{Status: StatusPending, CreatedAt: created}
	if _, ok := open.CompletionTime(); ok {
		t.Error("open step has no completion time")
	}
}

func TestApplyCompletionIdempotent(t *testing.T) {
	now := testNow
	st := &NavigationStep{Status: StatusPending}
	done := true
	if err := (&StepUpdate{IsCompleted: &done}).Apply(st, now); err != nil {
		t.Fatal(err)
	}
	first := *st.CompletedAt

	// Redundant complete keeps the original timestamp.
	later := now.AddDate(0, 0, 2)
	if err := (&StepUpdate{IsCompleted: &done}).Apply(st, later); err != nil {
		t.Fatal(err)
	}
	if !st.CompletedAt.Equal(first) {
		t.Errorf("redundant complete changed completed_at: %v -> %v", first, st.CompletedAt)
	}

	// An explicit timestamp still overrides.
	backdated := now.AddDate(0, 0, -1)
	if err := (&StepUpdate{IsCompleted: &done, CompletedAt: &backdated}).Apply(st, later); err != nil {
		t.Fatal(err)
	}
	if !st.CompletedAt.Equal(backdated) {
		t.Errorf("explicit completed_at not applied: %v", st.CompletedAt)
	}
}

func TestApplyCompletedFlagWinsOverStatus(t *testing.T) {
	now := testNow
	st := &NavigationStep{Status: StatusPending}
	done := true
	cancelled := StatusCancelled
	if err := (&StepUpdate{Status: &cancelled, IsCompleted: &done}).Apply(st, now); err != nil {
		t.Fatal(err)
	}
	if st.Status != StatusCompleted || !st.IsCompleted {
		t.Fatalf("is_completed must win over a contradictory status, got %s", st.Status)
	}
}

func TestApplyStatusKeepsFlagConsistent(t *testing.T) {
	now := testNow
	st := &NavigationStep{Status: StatusPending}
	completed := StatusCompleted
	if err := (&StepUpdate{Status: &completed}).Apply(st, now); err != nil {
		t.Fatal(err)
	}
	if !st.IsCompleted {
		t.Fatal("status COMPLETED must set is_completed")
	}

	cancelled := StatusCancelled
	if err := (&StepUpdate{Status: &cancelled}).Apply(st, now); err != nil {
		t.Fatal(err)
	}
	if st.IsCompleted || st.CompletedAt != nil {
		t.Fatal("leaving COMPLETED must clear completion fields")
	}
}

func TestApplyRejectsUnknownStatus(t *testing.T) {
	st := &NavigationStep{Status: StatusPending}
	bad := StepStatus("DONE")
	if err := (&StepUpdate{Status: &bad}).Apply(st, testNow); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestApplyDueDateHandling(t *testing.T) {
	now := testNow
	st := &NavigationStep{Status: StatusPending}

	// A past due date is legal.
	past := now.AddDate(0, 0, -3)
	if err := (&StepUpdate{DueDate: &past}).Apply(st, now); err != nil {
		t.Fatal(err)
	}
	if st.DueDate == nil || !st.DueDate.Equal(past) {
		t.Fatalf("due date not applied: %v", st.DueDate)
	}
	if st.EffectiveStatus(now) != StatusOverdue {
		t.Error("past due date should read as overdue")
	}

	if err := (&StepUpdate{ClearDueDate: true}).Apply(st, now); err != nil {
		t.Fatal(err)
	}
	if st.DueDate != nil {
		t.Fatal("clear_due_date must remove the due date")
	}
	if st.EffectiveStatus(now) != StatusPending {
		t.Error("cleared due date should read as pending again")
	}
}

func TestApplyFindingsReplacedByCopy(t *testing.T) {
	st := &NavigationStep{Status: StatusPending}
	in := []string{"a", "b"}
	if err := (&StepUpdate{Findings: &in}).Apply(st, testNow); err != nil {
		t.Fatal(err)
	}
	in[0] = "mutated"
	if st.Findings[0] != "a" {
		t.Error("findings must be copied, not aliased")
	}
}
