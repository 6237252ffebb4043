package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"ctxguard"
	"ctxguard/internal/audit"
	"ctxguard/internal/config"
	"ctxguard/internal/ctxview"
	"ctxguard/internal/fileaccess"
	"ctxguard/internal/trace"
)

// CallResult is one Call's outcome.
type CallResult struct {
	Name    string `json:"name"`
	Allowed bool   `json:"allowed"`
	Error   string `json:"error,omitempty"`
}

// Result is the full outcome of Execute.
type Result struct {
	ExitCode int          `json:"exitCode"`
	Calls    []CallResult `json:"calls"`
}

// Execute loads the scenario named by inv, wires a root FileAccessController
// from its policy, and runs every declared call through the current
// context, the way an embedding application would: each call builds its own
// SegmentOption list and is sent through ctxguard.GetCurrentContext().
func Execute(ctx context.Context, inv Invocation) (Result, error) {
	scenario, err := LoadScenario(inv.ScenarioPath)
	if err != nil {
		return Result{ExitCode: ExitCode(err)}, err
	}

	ctxguard.Reset()
	ctxguard.SetLogger(zap.NewNop())

	recorder := trace.NewRecorder()
	ctxguard.SetTraceSink(recorder)

	if inv.AuditDir != "" {
		store, err := audit.NewStore(inv.AuditDir, nil)
		if err != nil {
			return Result{ExitCode: ExitConfigError}, &InvocationError{ExitCode: ExitConfigError, Message: err.Error()}
		}
		ctxguard.SetAuditStore(store)
	}

	opts := fileaccess.Options{
		Readable: scenario.Readable,
		Writable: scenario.Writable,
		Listable: scenario.Listable,
	}
	if inv.PolicyPath != "" {
		policy, err := config.Load(inv.PolicyPath)
		if err != nil {
			return Result{ExitCode: ExitConfigError}, &InvocationError{ExitCode: ExitConfigError, Message: err.Error()}
		}
		opts = policy.FileAccessOptions()
	}

	segments, err := ctxguard.AddFileAccessController(nil, opts)
	if err != nil {
		return Result{ExitCode: ExitConfigError}, &InvocationError{ExitCode: ExitConfigError, Message: err.Error()}
	}
	frameID, err := ctxguard.PushControllers(segments)
	if err != nil {
		return Result{ExitCode: ExitInternalError}, err
	}
	defer ctxguard.PopControllers(frameID)

	result := Result{ExitCode: ExitSuccess}
	for _, call := range scenario.Calls {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		opts := make([]ctxview.SegmentOption, 0, len(call.Segments))
		for _, seg := range call.Segments {
			opts = append(opts, ctxview.SegmentOption{Name: seg.Name, Data: seg.Data})
		}

		_, callErr := ctxguard.GetCurrentContext().RunInContext(opts, func(args []any) (any, error) {
			return "ok", nil
		}, call.Args)

		cr := CallResult{Name: call.Name, Allowed: callErr == nil}
		if callErr != nil {
			cr.Error = callErr.Error()
			result.ExitCode = ExitAccessDenied
		}
		result.Calls = append(result.Calls, cr)
	}

	if inv.TraceEnabled {
		if err := writeTrace(inv.TracePath, recorder.Snapshot()); err != nil {
			return result, &InvocationError{ExitCode: ExitInternalError, Message: err.Error()}
		}
	}

	if inv.LineagePath != "" {
		dot := ctxguard.LineageSnapshot().DOT()
		if err := os.WriteFile(inv.LineagePath, []byte(dot), 0o644); err != nil {
			return result, &InvocationError{ExitCode: ExitInternalError, Message: fmt.Sprintf("write lineage: %v", err)}
		}
	}

	return result, nil
}

func writeTrace(path string, events []trace.Event) error {
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	return nil
}
