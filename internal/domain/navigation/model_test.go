package navigation

import "testing"

func TestStageOrdering(t *testing.T) {
	stages := Stages()
	for i := 1; i < len(stages); i++ {
		if stages[i-1].Order() >= stages[i].Order() {
			t.Errorf("%s should order before %s", stages[i-1], stages[i])
		}
	}
	if JourneyStage("REMISSION").Order() != -1 {
		t.Error("unknown stage must order as -1")
	}
}

func TestParseStage(t *testing.T) {
	for _, in := range []string{"screening", "SCREENING", " Screening "} {
		stage, err := ParseStage(in)
		if err != nil {
			t.Fatalf("ParseStage(%q): %v", in, err)
		}
		if stage != StageScreening {
			t.Errorf("ParseStage(%q) = %s", in, stage)
		}
	}
	if _, err := ParseStage("intake"); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStatusPartition(t *testing.T) {
	for status := range validStatuses {
		if status.IsTerminal() == status.IsActive() {
			t.Errorf("%s must be exactly one of terminal or active", status)
		}
	}
	terminal := []StepStatus{StatusCompleted, StatusCancelled, StatusNotApplicable}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	active := []StepStatus{StatusPending, StatusInProgress, StatusOverdue}
	for _, s := range active {
		if !s.IsActive() {
			t.Errorf("%s should be active", s)
		}
	}
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus("in_progress")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusInProgress {
		t.Errorf("got %s", status)
	}
	if _, err := ParseStatus("done"); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPatientFullName(t *testing.T) {
	p := &Patient{FirstName: "Maria", LastName: "Souza"}
	if p.FullName() != "Maria Souza" {
		t.Errorf("got %q", p.FullName())
	}
	single := &Patient{FirstName: "Cher"}
	if single.FullName() != "Cher" {
		t.Errorf("got %q", single.FullName())
	}
}
