package engine

import (
	"testing"
)

func TestEnvName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "clientSecret", want: "CLIENT_SECRET"},
		{in: "dbAdminPassword", want: "DB_ADMIN_PASSWORD"},
		{in: "db-admin-password", want: "DB_ADMIN_PASSWORD"},
		{in: "token", want: "TOKEN"},
		{in: "TOKEN", want: "TOKEN"},
		{in: "api.key", want: "API_KEY"},
	}

	for _, tt := range tests {
		if got := EnvName(tt.in); got != tt.want {
			t.Errorf("EnvName(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestSecretName(t *testing.T) {
	if got := SecretName("demo-app", "client-secret"); got != "demo-app-client-secret" {
		t.Errorf("Expected demo-app-client-secret, got %s", got)
	}
}

func TestCredentialSpec_VaultName(t *testing.T) {
	spec := CredentialSpec{Name: "clientSecret", Resource: "demo-app", Role: "client-secret"}
	if got := spec.VaultName(); got != "demo-app-client-secret" {
		t.Errorf("Expected derived vault name, got %s", got)
	}

	bare := CredentialSpec{Name: "clientSecret"}
	if got := bare.VaultName(); got != "" {
		t.Errorf("Expected empty vault name without coordinates, got %s", got)
	}
}

func TestSecretSpec_Name(t *testing.T) {
	spec := SecretSpec{Resource: "app", Role: "jwt-key"}
	if got := spec.Name(); got != "app-jwt-key" {
		t.Errorf("Expected app-jwt-key, got %s", got)
	}
}

func TestStepOutcome_Predicates(t *testing.T) {
	if !OutcomeSuccess.Succeeded() || !OutcomeNoOp.Succeeded() {
		t.Error("Expected success and noop to count as succeeded")
	}
	if OutcomeFatal.Succeeded() || OutcomeRetryableFailure.Succeeded() {
		t.Error("Expected failures to not count as succeeded")
	}
	if !OutcomeFatal.IsFailure() || !OutcomeRetryableFailure.IsFailure() {
		t.Error("Expected failures to report as failures")
	}
}

func TestDeploymentStatus_Predicates(t *testing.T) {
	if !StatusCompleted.IsTerminal() || !StatusAborted.IsTerminal() {
		t.Error("Expected completed and aborted to be terminal")
	}
	if StatusRunning.IsTerminal() {
		t.Error("Expected running to not be terminal")
	}
	if !StatusPending.IsActive() || !StatusRunning.IsActive() {
		t.Error("Expected pending and running to be active")
	}
}

func TestValidation(t *testing.T) {
	if err := SecretMode("rotate").Validate(); err == nil {
		t.Error("Expected error for unknown secret mode")
	}
	if err := SecretModeReuse.Validate(); err != nil {
		t.Errorf("Expected reuse mode to validate, got: %v", err)
	}
	if err := SecretGenerator("rsa").Validate(); err == nil {
		t.Error("Expected error for unknown generator")
	}
	if err := GeneratorSSHKeypair.Validate(); err != nil {
		t.Errorf("Expected ssh-keypair generator to validate, got: %v", err)
	}
	if err := Decision("adopt").Validate(); err == nil {
		t.Error("Expected error for unknown decision")
	}
	if err := CredentialSource("keychain").Validate(); err == nil {
		t.Error("Expected error for unknown credential source")
	}
	if err := DeploymentStatus("paused").Validate(); err == nil {
		t.Error("Expected error for unknown status")
	}
	if err := StepOutcome("partial").Validate(); err == nil {
		t.Error("Expected error for unknown outcome")
	}
}
