package provider

import (
	"testing"

	"github.com/provio/provio/pkg/engine"
)

func TestNewClassifier_EmbeddedRulesParse(t *testing.T) {
	c, err := NewClassifier()
	if err != nil {
		t.Fatalf("failed to build classifier from embedded rules: %v", err)
	}
	if len(c.rules) == 0 {
		t.Fatal("Expected embedded rule table to contain rules")
	}
}

func TestClassifier_Classify(t *testing.T) {
	c, err := NewClassifier()
	if err != nil {
		t.Fatalf("failed to build classifier: %v", err)
	}

	tests := []struct {
		name      string
		exitCode  int
		stderr    string
		wantClass engine.ErrorClass
		wantCode  string
	}{
		{
			name:      "throttling is retryable",
			exitCode:  1,
			stderr:    "ERROR: Operation failed: TooManyRequests, please retry",
			wantClass: engine.ErrorClassThrottled,
			wantCode:  engine.ErrCodeProviderFailed,
		},
		{
			name:      "rate limit keyword",
			exitCode:  1,
			stderr:    "request was throttled by the service",
			wantClass: engine.ErrorClassThrottled,
			wantCode:  engine.ErrCodeProviderFailed,
		},
		{
			name:      "connection reset is transient",
			exitCode:  1,
			stderr:    "read tcp 10.0.0.4:443: connection reset by peer",
			wantClass: engine.ErrorClassTransient,
			wantCode:  engine.ErrCodeProviderFailed,
		},
		{
			name:      "gateway errors are transient",
			exitCode:  1,
			stderr:    "HTTP 503 Service Unavailable",
			wantClass: engine.ErrorClassTransient,
			wantCode:  engine.ErrCodeProviderFailed,
		},
		{
			name:      "in-flight operation is a conflict",
			exitCode:  1,
			stderr:    "Conflict: another operation is in progress on this resource",
			wantClass: engine.ErrorClassConflict,
			wantCode:  engine.ErrCodeProviderFailed,
		},
		{
			name:      "auth failure is permanent",
			exitCode:  1,
			stderr:    "AuthorizationFailed: the client does not have permission",
			wantClass: engine.ErrorClassPermanent,
			wantCode:  engine.ErrCodePermissionDenied,
		},
		{
			name:      "quota exhaustion is permanent",
			exitCode:  1,
			stderr:    "QuotaExceeded: cores quota exceeded in region",
			wantClass: engine.ErrorClassPermanent,
			wantCode:  engine.ErrCodeProviderFailed,
		},
		{
			name:      "exit code 3 is not found",
			exitCode:  3,
			stderr:    "",
			wantClass: engine.ErrorClassPermanent,
			wantCode:  engine.ErrCodeNotFound,
		},
		{
			name:      "not found stderr pattern",
			exitCode:  1,
			stderr:    "ResourceNotFound: the resource 'vnet-demo' could not be located",
			wantClass: engine.ErrorClassPermanent,
			wantCode:  engine.ErrCodeNotFound,
		},
		{
			name:      "unknown failure defaults to permanent",
			exitCode:  1,
			stderr:    "something entirely unexpected happened",
			wantClass: engine.ErrorClassPermanent,
			wantCode:  engine.ErrCodeProviderFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.exitCode, tt.stderr)
			if got.Class != tt.wantClass {
				t.Errorf("Classify() class = %s, want %s (rule %q)", got.Class, tt.wantClass, got.Rule)
			}
			if got.Code != tt.wantCode {
				t.Errorf("Classify() code = %s, want %s (rule %q)", got.Code, tt.wantCode, got.Rule)
			}
		})
	}
}

func TestParseRules_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{
			name:    "valid rule",
			yaml:    "rules:\n  - name: x\n    class: transient\n    patterns: [timeout]\n",
			wantErr: false,
		},
		{
			name:    "missing name",
			yaml:    "rules:\n  - class: transient\n    patterns: [timeout]\n",
			wantErr: true,
		},
		{
			name:    "invalid class",
			yaml:    "rules:\n  - name: x\n    class: sideways\n    patterns: [timeout]\n",
			wantErr: true,
		},
		{
			name:    "rule matching nothing",
			yaml:    "rules:\n  - name: x\n    class: transient\n",
			wantErr: true,
		},
		{
			name:    "not yaml",
			yaml:    "{{nope",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseRules() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClassifier_FirstMatchWins(t *testing.T) {
	c, err := ParseRules([]byte(
		"rules:\n" +
			"  - name: first\n    class: transient\n    patterns: [boom]\n" +
			"  - name: second\n    class: permanent\n    patterns: [boom]\n"))
	if err != nil {
		t.Fatalf("failed to parse rules: %v", err)
	}
	got := c.Classify(1, "boom")
	if got.Rule != "first" {
		t.Errorf("Expected first rule to win, got %q", got.Rule)
	}
	if got.Class != engine.ErrorClassTransient {
		t.Errorf("Classify() class = %s, want transient", got.Class)
	}
}
