package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/provio/provio/pkg/engine"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(Config{
		Path:   filepath.Join(t.TempDir(), "journal.db"),
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_RecordAndReadBack(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	steps := []engine.Step{
		{Name: "vnet", Resource: "vnet-demo", Action: "network vnet create"},
		{Name: "cert", Resource: "cert-demo", Action: "cert create"},
	}
	started := time.Now().UTC().Truncate(time.Second)

	if err := j.RunStarted(ctx, "run-1", "demo", steps); err != nil {
		t.Fatalf("RunStarted() error = %v", err)
	}

	if err := j.Event(ctx, engine.Event{
		Type:    engine.EventStepStarted,
		Level:   engine.EventLevelInfo,
		RunID:   "run-1",
		Step:    "vnet",
		Message: "Executing step",
		Data:    map[string]interface{}{"attempt": float64(1)},
	}); err != nil {
		t.Fatalf("Event() error = %v", err)
	}

	if err := j.StepFinished(ctx, "run-1", &engine.StepResult{
		StepName:   "vnet",
		Resource:   "vnet-demo",
		Outcome:    engine.OutcomeSuccess,
		Decision:   engine.DecisionCreate,
		Ref:        &engine.ResourceReference{ID: "/vnets/vnet-demo", Name: "vnet-demo"},
		Outputs:    map[string]string{"id": "/vnets/vnet-demo"},
		Attempts:   2,
		Converged:  true,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
	}); err != nil {
		t.Fatalf("StepFinished() error = %v", err)
	}

	if err := j.StepFinished(ctx, "run-1", &engine.StepResult{
		StepName:   "cert",
		Resource:   "cert-demo",
		Outcome:    engine.OutcomeSuccess,
		Decision:   engine.DecisionCreate,
		Attempts:   1,
		Converged:  false,
		Warning:    engine.NewPollTimeoutError("cert", "az cert show", 10),
		StartedAt:  started.Add(3 * time.Second),
		FinishedAt: started.Add(10 * time.Second),
	}); err != nil {
		t.Fatalf("StepFinished() error = %v", err)
	}

	if err := j.RunFinished(ctx, "run-1", &engine.RunSummary{
		RunID:      "run-1",
		Stack:      "demo",
		Status:     engine.StatusCompleted,
		Manifest:   map[string]map[string]string{"vnet": {"id": "/vnets/vnet-demo"}},
		StartedAt:  started,
		FinishedAt: started.Add(10 * time.Second),
	}); err != nil {
		t.Fatalf("RunFinished() error = %v", err)
	}

	run, err := j.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Stack != "demo" {
		t.Errorf("run stack = %q, want demo", run.Stack)
	}
	if run.Status != engine.StatusCompleted {
		t.Errorf("run status = %s, want completed", run.Status)
	}
	if run.StepCount != 2 {
		t.Errorf("run step_count = %d, want 2", run.StepCount)
	}
	if run.FinishedAt == nil {
		t.Error("Expected finished_at to be set")
	}
	if run.Manifest["vnet"]["id"] != "/vnets/vnet-demo" {
		t.Errorf("Unexpected manifest: %v", run.Manifest)
	}

	results, err := j.ListSteps(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListSteps() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 step records, got %d", len(results))
	}
	if results[0].StepName != "vnet" || results[1].StepName != "cert" {
		t.Errorf("Unexpected step order: %s, %s", results[0].StepName, results[1].StepName)
	}
	if results[0].ResourceID != "/vnets/vnet-demo" {
		t.Errorf("resource_id = %q, want /vnets/vnet-demo", results[0].ResourceID)
	}
	if results[0].Outputs["id"] != "/vnets/vnet-demo" {
		t.Errorf("Unexpected outputs: %v", results[0].Outputs)
	}
	if results[1].Converged {
		t.Error("Expected cert step to be recorded as unconverged")
	}
	if results[1].Warning == "" {
		t.Error("Expected cert step warning to be recorded")
	}

	events, err := j.ListEvents(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Type != engine.EventStepStarted || events[0].Step != "vnet" {
		t.Errorf("Unexpected event: %+v", events[0])
	}
	if events[0].Data["attempt"] != float64(1) {
		t.Errorf("Unexpected event data: %v", events[0].Data)
	}
}

func TestJournal_ListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		if err := j.RunStarted(ctx, id, "demo", nil); err != nil {
			t.Fatalf("RunStarted(%s) error = %v", id, err)
		}
		// Distinct started_at so ordering is deterministic.
		_, err := j.db.ExecContext(ctx, `UPDATE runs SET started_at = ? WHERE id = ?`,
			time.Now().UTC().Add(time.Duration(i)*time.Minute), id)
		if err != nil {
			t.Fatalf("failed to adjust started_at: %v", err)
		}
	}

	runs, err := j.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Errorf("Unexpected order: %s, %s", runs[0].ID, runs[1].ID)
	}
	if runs[0].Status != engine.StatusRunning {
		t.Errorf("run status = %s, want running", runs[0].Status)
	}
}

func TestJournal_StepFinishedReplacesEarlierRow(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	if err := j.RunStarted(ctx, "run-1", "demo", nil); err != nil {
		t.Fatalf("RunStarted() error = %v", err)
	}

	first := &engine.StepResult{
		StepName:   "vnet",
		Resource:   "vnet-demo",
		Outcome:    engine.OutcomeFatal,
		Attempts:   1,
		Err:        engine.NewPermanentError("provider rejected request", nil),
		StartedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
	}
	if err := j.StepFinished(ctx, "run-1", first); err != nil {
		t.Fatalf("StepFinished() error = %v", err)
	}

	second := &engine.StepResult{
		StepName:   "vnet",
		Resource:   "vnet-demo",
		Outcome:    engine.OutcomeNoOp,
		Decision:   engine.DecisionReuse,
		Attempts:   1,
		Converged:  true,
		StartedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
	}
	if err := j.StepFinished(ctx, "run-1", second); err != nil {
		t.Fatalf("StepFinished() error = %v", err)
	}

	results, err := j.ListSteps(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListSteps() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 step record after replacement, got %d", len(results))
	}
	if results[0].Outcome != engine.OutcomeNoOp {
		t.Errorf("outcome = %s, want noop", results[0].Outcome)
	}
	if results[0].Error != "" {
		t.Errorf("Expected error cleared after replacement, got %q", results[0].Error)
	}
}

func TestJournal_NotFound(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	if _, err := j.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun() error = %v, want ErrNotFound", err)
	}

	err := j.RunFinished(ctx, "missing", &engine.RunSummary{
		Status:     engine.StatusCompleted,
		FinishedAt: time.Now(),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("RunFinished() error = %v, want ErrNotFound", err)
	}
}

func TestJournal_ReopenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(Config{Path: path, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := j.RunStarted(ctx, "run-1", "demo", nil); err != nil {
		t.Fatalf("RunStarted() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	j, err = Open(Config{Path: path, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("Reopen error = %v", err)
	}
	defer j.Close()

	run, err := j.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() after reopen error = %v", err)
	}
	if run.Stack != "demo" {
		t.Errorf("run stack = %q, want demo", run.Stack)
	}
}
