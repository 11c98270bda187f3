package stack

import (
	"context"
	"testing"
	"time"
)

func TestPredicateCompiler_Compile(t *testing.T) {
	c := NewPredicateCompiler(0)

	tests := []struct {
		name    string
		expr    string
		status  map[string]interface{}
		want    bool
		wantErr bool
	}{
		{
			name:   "provisioning state equality",
			expr:   `status["provisioningState"] == "Succeeded"`,
			status: map[string]interface{}{"provisioningState": "Succeeded"},
			want:   true,
		},
		{
			name:   "not yet converged",
			expr:   `status["provisioningState"] == "Succeeded"`,
			status: map[string]interface{}{"provisioningState": "Updating"},
			want:   false,
		},
		{
			name: "nested path",
			expr: `status["properties"]["provisioningState"] == "Succeeded"`,
			status: map[string]interface{}{
				"properties": map[string]interface{}{"provisioningState": "Succeeded"},
			},
			want: true,
		},
		{
			name:   "safe lookup with get",
			expr:   `status.get("state", "") in ["Issued", "Active"]`,
			status: map[string]interface{}{"state": "Issued"},
			want:   true,
		},
		{
			name:   "missing key with get default",
			expr:   `status.get("state", "") == "Issued"`,
			status: map[string]interface{}{},
			want:   false,
		},
		{
			name:   "numeric comparison",
			expr:   `status["readyReplicas"] >= 3`,
			status: map[string]interface{}{"readyReplicas": float64(3)},
			want:   true,
		},
		{
			name:    "missing key without get errors",
			expr:    `status["absent"] == "x"`,
			status:  map[string]interface{}{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := c.Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			got, err := pred.Eval(context.Background(), tt.status)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Eval() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Eval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPredicateCompiler_SyntaxErrorsFailAtCompileTime(t *testing.T) {
	c := NewPredicateCompiler(0)

	for _, expr := range []string{"", "status[", "def f(): pass"} {
		if _, err := c.Compile(expr); err == nil {
			t.Errorf("Compile(%q) succeeded, expected error", expr)
		}
	}
}

func TestPredicateCompiler_Timeout(t *testing.T) {
	c := NewPredicateCompiler(50 * time.Millisecond)

	// A large comprehension chain that cannot finish inside the budget.
	pred, err := c.Compile(`len([x*y for x in range(100000) for y in range(100000)]) > 0`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	start := time.Now()
	_, err = pred.Eval(context.Background(), map[string]interface{}{})
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Eval took %v, expected the timeout to cut it short", elapsed)
	}
}
