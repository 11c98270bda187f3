package engine

import (
	"testing"
	"time"
)

func TestDeploymentState_RecordAndOutput(t *testing.T) {
	state := NewDeploymentState()
	state.Record(&StepResult{
		StepName: "create-vnet",
		Outcome:  OutcomeSuccess,
		Outputs:  map[string]string{"vnetId": "/subscriptions/sub1/vnet"},
	})

	v, ok := state.Output("create-vnet", "vnetId")
	if !ok {
		t.Fatal("Expected output to resolve")
	}
	if v != "/subscriptions/sub1/vnet" {
		t.Errorf("Expected captured value, got %q", v)
	}

	if _, ok := state.Output("create-vnet", "missing"); ok {
		t.Error("Expected miss for undeclared output")
	}
	if _, ok := state.Output("unknown-step", "vnetId"); ok {
		t.Error("Expected miss for unknown step")
	}
}

func TestDeploymentState_FailedStepsAnswerNothing(t *testing.T) {
	state := NewDeploymentState()
	state.Record(&StepResult{
		StepName: "create-app",
		Outcome:  OutcomeFatal,
		Outputs:  map[string]string{"appId": "partial"},
	})

	if _, ok := state.Output("create-app", "appId"); ok {
		t.Error("Expected failed step outputs to be unavailable")
	}
}

func TestDeploymentState_NoOpStepsAnswerReferences(t *testing.T) {
	state := NewDeploymentState()
	state.Record(&StepResult{
		StepName: "create-vnet",
		Outcome:  OutcomeNoOp,
		Outputs:  map[string]string{"vnetId": "/subscriptions/sub1/vnet"},
	})

	// Reused resources satisfy references exactly like created ones.
	if _, ok := state.Output("create-vnet", "vnetId"); !ok {
		t.Error("Expected reused step outputs to be available")
	}
}

func TestDeploymentState_RecordReplacesWithoutDuplicating(t *testing.T) {
	state := NewDeploymentState()
	state.Record(&StepResult{StepName: "step1", Outcome: OutcomeRetryableFailure})
	state.Record(&StepResult{StepName: "step1", Outcome: OutcomeSuccess})

	results := state.Results()
	if len(results) != 1 {
		t.Fatalf("Expected 1 result after replacement, got %d", len(results))
	}
	if results[0].Outcome != OutcomeSuccess {
		t.Errorf("Expected replaced result, got %s", results[0].Outcome)
	}
}

func TestDeploymentState_ResultsPreserveOrder(t *testing.T) {
	state := NewDeploymentState()
	state.Record(&StepResult{StepName: "step-b", Outcome: OutcomeSuccess})
	state.Record(&StepResult{StepName: "step-a", Outcome: OutcomeSuccess})
	state.Record(&StepResult{StepName: "step-c", Outcome: OutcomeSuccess})

	results := state.Results()
	want := []string{"step-b", "step-a", "step-c"}
	for i, name := range want {
		if results[i].StepName != name {
			t.Errorf("Expected %s at position %d, got %s", name, i, results[i].StepName)
		}
	}
}

func TestDeploymentState_Manifest(t *testing.T) {
	state := NewDeploymentState()
	state.Record(&StepResult{
		StepName: "create-vnet",
		Outcome:  OutcomeSuccess,
		Outputs:  map[string]string{"vnetId": "/subscriptions/sub1/vnet"},
	})
	state.Record(&StepResult{
		StepName: "create-app",
		Outcome:  OutcomeFatal,
		Outputs:  map[string]string{"appId": "partial"},
	})
	state.Record(&StepResult{
		StepName: "no-outputs",
		Outcome:  OutcomeSuccess,
	})

	manifest := state.Manifest()

	if len(manifest) != 1 {
		t.Fatalf("Expected 1 manifest entry, got %d", len(manifest))
	}
	if manifest["create-vnet"]["vnetId"] != "/subscriptions/sub1/vnet" {
		t.Errorf("Expected vnet outputs in manifest, got %+v", manifest)
	}

	// The manifest is a copy; mutating it must not affect state.
	manifest["create-vnet"]["vnetId"] = "tampered"
	if v, _ := state.Output("create-vnet", "vnetId"); v != "/subscriptions/sub1/vnet" {
		t.Error("Manifest mutation leaked into state")
	}
}

func TestRunSummary_Duration(t *testing.T) {
	start := time.Now()
	summary := &RunSummary{StartedAt: start, FinishedAt: start.Add(90 * time.Second)}

	if summary.Duration() != 90*time.Second {
		t.Errorf("Expected 90s duration, got %v", summary.Duration())
	}
}

func TestRunSummary_AllNoOp(t *testing.T) {
	summary := &RunSummary{Results: []*StepResult{
		{StepName: "a", Outcome: OutcomeNoOp},
		{StepName: "b", Outcome: OutcomeNoOp},
	}}
	if !summary.AllNoOp() {
		t.Error("Expected all-noop summary")
	}

	summary.Results = append(summary.Results, &StepResult{StepName: "c", Outcome: OutcomeSuccess})
	if summary.AllNoOp() {
		t.Error("Expected mixed summary to not be all-noop")
	}

	empty := &RunSummary{}
	if empty.AllNoOp() {
		t.Error("Expected empty summary to not be all-noop")
	}
}
