package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeScenario(t *testing.T, dir string, s Scenario) string {
	t.Helper()
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal scenario: %v", err)
	}
	path := filepath.Join(dir, "scenario.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return path
}

func TestExecuteAllowsAndDeniesPerScenario(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, Scenario{
		Readable: "/data/",
		Calls: []Call{
			{
				Name:     "allowed-read",
				Segments: []SegmentCall{{Name: "fileaccess", Data: map[string]any{"read": "/data/a.txt"}}},
			},
			{
				Name:     "denied-read",
				Segments: []SegmentCall{{Name: "fileaccess", Data: map[string]any{"read": "/etc/passwd"}}},
			},
		},
	})

	inv, err := ParseInvocation([]string{"-workdir", dir, "-scenario", path})
	if err != nil {
		t.Fatalf("ParseInvocation: %v", err)
	}

	result, err := Execute(context.Background(), inv)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode != ExitAccessDenied {
		t.Fatalf("ExitCode = %d, want ExitAccessDenied", result.ExitCode)
	}
	if len(result.Calls) != 2 {
		t.Fatalf("expected 2 call results, got %d", len(result.Calls))
	}
	if !result.Calls[0].Allowed {
		t.Fatal("expected the first call to be allowed")
	}
	if result.Calls[1].Allowed {
		t.Fatal("expected the second call to be denied")
	}
}

func TestExecuteWritesTraceFile(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, Scenario{
		Readable: "/data/",
		Calls: []Call{
			{Name: "allowed-read", Segments: []SegmentCall{{Name: "fileaccess", Data: map[string]any{"read": "/data/a.txt"}}}},
		},
	})

	inv, err := ParseInvocation([]string{"-workdir", dir, "-scenario", path, "-trace", "trace.json"})
	if err != nil {
		t.Fatalf("ParseInvocation: %v", err)
	}

	if _, err := Execute(context.Background(), inv); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := os.Stat(inv.TracePath); err != nil {
		t.Fatalf("expected a trace file at %q: %v", inv.TracePath, err)
	}
}

func TestExecutePolicyFileOverridesScenario(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, Scenario{
		Readable: "/data/",
		Calls: []Call{
			{Name: "read-outside-scenario-policy", Segments: []SegmentCall{{Name: "fileaccess", Data: map[string]any{"read": "/secrets/a.txt"}}}},
		},
	})

	policyPath := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(policyPath, []byte("readable:\n  - /secrets/\n"), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	inv, err := ParseInvocation([]string{"-workdir", dir, "-scenario", path, "-policy", "policy.yaml"})
	if err != nil {
		t.Fatalf("ParseInvocation: %v", err)
	}

	result, err := Execute(context.Background(), inv)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode != ExitSuccess {
		t.Fatalf("ExitCode = %d, want ExitSuccess (policy file should have granted /secrets/ read access)", result.ExitCode)
	}
}

func TestExecuteWritesLineageFile(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, Scenario{
		Readable: "/data/",
		Calls: []Call{
			{Name: "allowed-read", Segments: []SegmentCall{{Name: "fileaccess", Data: map[string]any{"read": "/data/a.txt"}}}},
		},
	})

	inv, err := ParseInvocation([]string{"-workdir", dir, "-scenario", path, "-lineage-out", "lineage.dot"})
	if err != nil {
		t.Fatalf("ParseInvocation: %v", err)
	}

	if _, err := Execute(context.Background(), inv); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	data, err := os.ReadFile(inv.LineagePath)
	if err != nil {
		t.Fatalf("expected a lineage file at %q: %v", inv.LineagePath, err)
	}
	if !strings.HasPrefix(string(data), "digraph lineage {") {
		t.Fatalf("expected a DOT digraph, got %q", data)
	}
}

func TestExecuteRejectsMalformedScenario(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.json")
	if err := os.WriteFile(path, []byte(`{"unknownField": true}`), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}

	inv, err := ParseInvocation([]string{"-workdir", dir, "-scenario", path})
	if err != nil {
		t.Fatalf("ParseInvocation: %v", err)
	}

	_, execErr := Execute(context.Background(), inv)
	if execErr == nil {
		t.Fatal("expected an error for a scenario with unknown fields")
	}
	if ExitCode(execErr) != ExitConfigError {
		t.Fatalf("ExitCode = %d, want ExitConfigError", ExitCode(execErr))
	}
}
