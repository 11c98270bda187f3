package provider

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"testing"

	"github.com/provio/provio/pkg/engine"
)

// TestHelperProcess is re-executed by the tests below to stand in for a
// provider binary. It prints HELPER_STDOUT, writes HELPER_STDERR to stderr
// and exits with HELPER_EXIT.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	if out := os.Getenv("HELPER_STDOUT"); out != "" {
		fmt.Fprint(os.Stdout, out)
	}
	if errOut := os.Getenv("HELPER_STDERR"); errOut != "" {
		fmt.Fprint(os.Stderr, errOut)
	}
	code := 0
	fmt.Sscanf(os.Getenv("HELPER_EXIT"), "%d", &code)
	os.Exit(code)
}

func helperCLI(t *testing.T, stdout, stderr string, exit int) *CLI {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("HELPER_STDOUT", stdout)
	t.Setenv("HELPER_STDERR", stderr)
	t.Setenv("HELPER_EXIT", fmt.Sprintf("%d", exit))

	cli, err := New(Config{
		Binary:   os.Args[0],
		BaseArgs: []string{"-test.run=TestHelperProcess", "--"},
	})
	if err != nil {
		t.Fatalf("failed to create CLI provider: %v", err)
	}
	return cli
}

func TestCLI_Invoke_Success(t *testing.T) {
	cli := helperCLI(t, `{"id":"/subscriptions/s/vnet-demo","name":"vnet-demo"}`, "", 0)

	inv, err := cli.Invoke(context.Background(), "network vnet show", map[string]string{"name": "vnet-demo"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if inv.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", inv.ExitCode)
	}
	obj, err := inv.OutputObject()
	if err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	if obj["name"] != "vnet-demo" {
		t.Errorf("output name = %v, want vnet-demo", obj["name"])
	}
}

func TestCLI_Invoke_NonJSONOutputIgnored(t *testing.T) {
	cli := helperCLI(t, "Deployment accepted\n", "", 0)

	inv, err := cli.Invoke(context.Background(), "deploy", nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if inv.Output != nil {
		t.Errorf("Expected nil output for non-JSON stdout, got %s", inv.Output)
	}
}

func TestCLI_Invoke_ClassifiedFailure(t *testing.T) {
	tests := []struct {
		name          string
		stderr        string
		exit          int
		wantRetryable bool
		wantCode      string
	}{
		{"throttled", "ERROR: too many requests", 1, true, engine.ErrCodeProviderFailed},
		{"transient", "connection reset by peer", 1, true, engine.ErrCodeProviderFailed},
		{"auth", "AuthorizationFailed", 1, false, engine.ErrCodePermissionDenied},
		{"not found exit code", "", 3, false, engine.ErrCodeNotFound},
		{"unknown", "kaboom", 1, false, engine.ErrCodeProviderFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli := helperCLI(t, "", tt.stderr, tt.exit)

			inv, err := cli.Invoke(context.Background(), "network vnet create", nil)
			if err == nil {
				t.Fatal("Expected error for non-zero exit")
			}
			if inv == nil {
				t.Fatal("Expected invocation alongside the error")
			}
			if inv.ExitCode != tt.exit {
				t.Errorf("ExitCode = %d, want %d", inv.ExitCode, tt.exit)
			}
			if engine.IsRetryable(err) != tt.wantRetryable {
				t.Errorf("IsRetryable() = %v, want %v for %v", engine.IsRetryable(err), tt.wantRetryable, err)
			}
			if engine.CodeOf(err) != tt.wantCode {
				t.Errorf("CodeOf() = %s, want %s", engine.CodeOf(err), tt.wantCode)
			}
		})
	}
}

func TestCLI_Invoke_MissingBinary(t *testing.T) {
	cli, err := New(Config{Binary: "/nonexistent/provider-binary"})
	if err != nil {
		t.Fatalf("failed to create CLI provider: %v", err)
	}
	inv, err := cli.Invoke(context.Background(), "anything", nil)
	if err == nil {
		t.Fatal("Expected error for missing binary")
	}
	if !engine.IsPermanent(err) {
		t.Errorf("Expected permanent classification, got %v", err)
	}
	if inv.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1 for a process that never ran", inv.ExitCode)
	}
}

func TestCLI_BuildArgs_SortedAndStable(t *testing.T) {
	cli, err := New(Config{Binary: "az", BaseArgs: []string{"--output", "json"}})
	if err != nil {
		t.Fatalf("failed to create CLI provider: %v", err)
	}

	got := cli.buildArgs("network vnet create", map[string]string{
		"resource-group": "rg-demo",
		"name":           "vnet-demo",
		"no-wait":        "",
	})
	want := []string{
		"--output", "json",
		"network", "vnet", "create",
		"--name", "vnet-demo",
		"--no-wait",
		"--resource-group", "rg-demo",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("buildArgs() = %v, want %v", got, want)
	}
}

func TestNew_RequiresBinary(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("Expected error creating a provider without a binary")
	}
}
