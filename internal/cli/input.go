// Package cli implements the deterministic command-line boundary for the
// ctxsim demo: parsing flags into a canonical Invocation before any engine
// logic runs, and an explicit exit-code taxonomy callers translate straight
// into os.Exit. Grounded on the teacher's own cli.ParseInvocation: no env
// reads, no implicit process-CWD dependency, every path resolved under an
// explicit, required, absolute WorkDir.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const (
	ExitSuccess           = 0
	ExitAccessDenied      = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// Invocation is the fully canonicalized description of a ctxsim run. All
// paths are resolved relative to WorkDir, which must be absolute, so the
// run never depends on the process's current working directory.
type Invocation struct {
	ScenarioPath string
	WorkDir      string
	AuditDir     string
	TracePath    string
	TraceEnabled bool
	PolicyPath   string
	LineagePath  string
}

// InvocationError carries the exit code a parse failure should produce.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// ParseInvocation parses CLI flags into a canonical Invocation. It never
// reads environment variables and never assumes the process's CWD.
func ParseInvocation(args []string) (Invocation, error) {
	fs := flag.NewFlagSet("ctxsim", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var workDir, scenarioPath, auditDir, tracePath, policyPath, lineagePath string
	fs.StringVar(&workDir, "workdir", "", "Absolute working directory. Required.")
	fs.StringVar(&scenarioPath, "scenario", "", "Scenario file path. Required.")
	fs.StringVar(&auditDir, "audit-dir", "", "Audit trail directory (optional).")
	fs.StringVar(&tracePath, "trace", "", "Trace output path (optional).")
	fs.StringVar(&policyPath, "policy", "", "YAML security-policy file overriding the scenario's inline policy (optional).")
	fs.StringVar(&lineagePath, "lineage-out", "", "Write a Graphviz DOT rendering of the task lineage after the run (optional).")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidInvocationf("%v", err)
	}
	if fs.NArg() != 0 {
		return Invocation{}, invalidInvocationf("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}

	workDir = filepath.Clean(workDir)
	if workDir == "" {
		return Invocation{}, invalidInvocationf("--workdir is required")
	}
	if !filepath.IsAbs(workDir) {
		return Invocation{}, invalidInvocationf("--workdir must be an absolute path (got %q)", workDir)
	}

	if scenarioPath == "" {
		return Invocation{}, invalidInvocationf("--scenario is required")
	}
	resolvedScenario, err := resolveUnderWorkDir(workDir, scenarioPath)
	if err != nil {
		return Invocation{}, err
	}

	inv := Invocation{ScenarioPath: resolvedScenario, WorkDir: workDir}

	if strings.TrimSpace(auditDir) != "" {
		resolved, err := resolveUnderWorkDir(workDir, auditDir)
		if err != nil {
			return Invocation{}, err
		}
		inv.AuditDir = resolved
	}
	if strings.TrimSpace(tracePath) != "" {
		resolved, err := resolveUnderWorkDir(workDir, tracePath)
		if err != nil {
			return Invocation{}, err
		}
		inv.TracePath = resolved
		inv.TraceEnabled = true
	}
	if strings.TrimSpace(policyPath) != "" {
		resolved, err := resolveUnderWorkDir(workDir, policyPath)
		if err != nil {
			return Invocation{}, err
		}
		inv.PolicyPath = resolved
	}
	if strings.TrimSpace(lineagePath) != "" {
		resolved, err := resolveUnderWorkDir(workDir, lineagePath)
		if err != nil {
			return Invocation{}, err
		}
		inv.LineagePath = resolved
	}

	return inv, nil
}

func resolveUnderWorkDir(workDir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", invalidInvocationf("path must not be empty")
	}
	clean := filepath.Clean(p)
	if clean == "." {
		return "", invalidInvocationf("path must not be '.'")
	}
	if filepath.IsAbs(clean) {
		return clean, nil
	}
	return filepath.Clean(filepath.Join(workDir, clean)), nil
}

// ExitCode extracts a semantic exit code from an error returned by
// ParseInvocation or Execute. Unrecognized errors map to ExitInternalError.
func ExitCode(err error) int {
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	if err == nil {
		return ExitSuccess
	}
	return ExitInternalError
}
