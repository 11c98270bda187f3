package stack

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/provio/provio/pkg/engine"
)

const demoManifest = `
stack: {
	name: "demo"
	description: "demo network stack"
	provider: {
		binary: "az"
		base_args: ["--output", "json"]
	}
	steps: [
		{
			name:     "vnet"
			resource: "vnet-demo"
			action:   "network vnet create"
			args: {
				name:             "vnet-demo"
				"resource-group": "rg-demo"
			}
			probe: {
				action: "network vnet list"
				args: {"resource-group": "rg-demo"}
			}
			captures: [{name: "id"}, {name: "subnet_id", path: "subnets.0.id"}]
		},
		{
			name:     "cert"
			resource: "cert-demo"
			action:   "network application-gateway ssl-cert create"
			args: {
				"vnet-id": "ref://vnet/id"
			}
			probe: {action: "network application-gateway ssl-cert list"}
			poll: {
				action:           "network application-gateway ssl-cert show"
				attempts:         10
				interval_seconds: 30
				predicate:        "status[\"provisioningState\"] == \"Succeeded\""
				remediation:      "az network application-gateway ssl-cert show --name cert-demo"
			}
		},
		{
			name:     "app-secret"
			resource: "app"
			secret: {
				resource:  "app"
				role:      "client-secret"
				mode:      "reuse"
				generator: "token"
			}
		},
	]
}
`

func TestParser_ParseInline(t *testing.T) {
	p := NewParser()
	manifest, err := p.ParseInline(context.Background(), demoManifest)
	if err != nil {
		t.Fatalf("ParseInline() error = %v", err)
	}

	if manifest.Stack.Name != "demo" {
		t.Errorf("stack name = %q, want %q", manifest.Stack.Name, "demo")
	}
	if manifest.Stack.Provider.Binary != "az" {
		t.Errorf("provider binary = %q, want %q", manifest.Stack.Provider.Binary, "az")
	}
	if len(manifest.Stack.Steps) != 3 {
		t.Fatalf("Expected 3 steps, got %d", len(manifest.Stack.Steps))
	}

	vnet := manifest.Stack.Steps[0]
	if vnet.Probe == nil || vnet.Probe.Action != "network vnet list" {
		t.Errorf("Unexpected probe on first step: %+v", vnet.Probe)
	}
	if len(vnet.Captures) != 2 || vnet.Captures[1].Path != "subnets.0.id" {
		t.Errorf("Unexpected captures: %+v", vnet.Captures)
	}

	cert := manifest.Stack.Steps[1]
	if cert.Poll == nil || cert.Poll.Attempts != 10 || cert.Poll.IntervalSeconds != 30 {
		t.Errorf("Unexpected poll spec: %+v", cert.Poll)
	}
}

func TestParser_BuildSteps(t *testing.T) {
	p := NewParser()
	manifest, err := p.ParseInline(context.Background(), demoManifest)
	if err != nil {
		t.Fatalf("ParseInline() error = %v", err)
	}

	steps, err := p.BuildSteps(&manifest.Stack)
	if err != nil {
		t.Fatalf("BuildSteps() error = %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("Expected 3 steps, got %d", len(steps))
	}

	cert := steps[1]
	if cert.Poll == nil {
		t.Fatal("Expected poll spec on cert step")
	}
	if cert.Poll.Interval != 30*time.Second {
		t.Errorf("poll interval = %v, want 30s", cert.Poll.Interval)
	}
	if cert.Poll.Predicate == nil {
		t.Fatal("Expected compiled predicate")
	}
	ok, err := cert.Poll.Predicate.Eval(context.Background(), map[string]interface{}{
		"provisioningState": "Succeeded",
	})
	if err != nil {
		t.Fatalf("predicate eval error = %v", err)
	}
	if !ok {
		t.Error("Expected predicate to accept a succeeded state")
	}

	secret := steps[2]
	if secret.Secret == nil {
		t.Fatal("Expected secret spec on secret step")
	}
	if secret.Secret.Mode != engine.SecretModeReuse {
		t.Errorf("secret mode = %s, want reuse", secret.Secret.Mode)
	}
	if secret.Secret.Name() != "app-client-secret" {
		t.Errorf("derived secret name = %q, want app-client-secret", secret.Secret.Name())
	}

	// The built sequence passes static reference validation.
	if err := engine.ValidateSequence(steps); err != nil {
		t.Errorf("ValidateSequence() error = %v", err)
	}
}

func TestParser_ParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.cue")
	if err := os.WriteFile(path, []byte(demoManifest), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	p := NewParser()
	manifest, steps, err := p.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if manifest.Stack.Name != "demo" {
		t.Errorf("stack name = %q, want demo", manifest.Stack.Name)
	}
	if len(steps) != 3 {
		t.Errorf("Expected 3 steps, got %d", len(steps))
	}
	if len(manifest.SourceFiles) != 1 || manifest.SourceFiles[0] != path {
		t.Errorf("Unexpected source files: %v", manifest.SourceFiles)
	}
}

func TestParser_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		wantIn   string
	}{
		{
			name:     "missing stack",
			manifest: `other: {}`,
			wantIn:   "no \"stack\" definition",
		},
		{
			name: "no steps",
			manifest: `stack: {
				name: "demo"
				provider: {binary: "az"}
				steps: []
			}`,
			wantIn: "validation failed",
		},
		{
			name: "bad step name",
			manifest: `stack: {
				name: "demo"
				provider: {binary: "az"}
				steps: [{name: "-bad", resource: "x", action: "a"}]
			}`,
			wantIn: "validation failed",
		},
		{
			name: "bad secret mode",
			manifest: `stack: {
				name: "demo"
				provider: {binary: "az"}
				steps: [{
					name: "s", resource: "x"
					secret: {resource: "x", role: "r", mode: "sometimes"}
				}]
			}`,
			wantIn: "validation failed",
		},
		{
			name: "action without probe",
			manifest: `stack: {
				name: "demo"
				provider: {binary: "az"}
				steps: [{name: "vnet", resource: "vnet-demo", action: "network vnet create"}]
			}`,
			wantIn: "validation failed",
		},
		{
			name: "poll without attempts",
			manifest: `stack: {
				name: "demo"
				provider: {binary: "az"}
				steps: [{
					name: "s", resource: "x", action: "a"
					poll: {action: "show", interval_seconds: 5}
				}]
			}`,
			wantIn: "validation failed",
		},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ParseInline(context.Background(), tt.manifest)
			if err == nil {
				t.Fatal("Expected parse to fail")
			}
			if !strings.Contains(err.Error(), tt.wantIn) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantIn, err)
			}
		})
	}
}

func TestParser_BuildSteps_BadPredicate(t *testing.T) {
	p := NewParser()
	stack := StackConfig{
		Name:     "demo",
		Provider: ProviderConfig{Binary: "az"},
		Steps: []StepConfig{{
			Name:     "cert",
			Resource: "cert-demo",
			Action:   "create",
			Probe:    &ProbeConfig{Action: "list"},
			Poll: &PollConfig{
				Action:          "show",
				Attempts:        3,
				IntervalSeconds: 5,
				Predicate:       "status[",
			},
		}},
	}

	_, err := p.BuildSteps(&stack)
	if err == nil {
		t.Fatal("Expected error for malformed predicate")
	}
	if engine.CodeOf(err) != engine.ErrCodeStepGraph {
		t.Errorf("CodeOf() = %s, want %s", engine.CodeOf(err), engine.ErrCodeStepGraph)
	}
}

func TestParser_LoadDirectory(t *testing.T) {
	dir := t.TempDir()
	// Split the manifest: base stack in one file, steps in another; CUE
	// unifies them.
	base := `stack: {
		name: "demo"
		provider: {binary: "az"}
	}`
	steps := `stack: steps: [{
		name: "vnet", resource: "vnet-demo", action: "network vnet create"
		probe: {action: "network vnet list"}
	}]`
	if err := os.WriteFile(filepath.Join(dir, "base.cue"), []byte(base), 0o644); err != nil {
		t.Fatalf("failed to write base.cue: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "steps.cue"), []byte(steps), 0o644); err != nil {
		t.Fatalf("failed to write steps.cue: %v", err)
	}
	// Non-CUE files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("scratch"), 0o644); err != nil {
		t.Fatalf("failed to write notes.txt: %v", err)
	}

	p := NewParser()
	manifest, err := p.Parse(context.Background(), dir)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if manifest.Stack.Name != "demo" {
		t.Errorf("stack name = %q, want demo", manifest.Stack.Name)
	}
	if len(manifest.Stack.Steps) != 1 {
		t.Errorf("Expected 1 step from unified files, got %d", len(manifest.Stack.Steps))
	}
}
