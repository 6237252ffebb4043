package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// SegmentCall names one segment this Call should be run through, and the
// per-call descriptor data CreateChild receives for that segment.
type SegmentCall struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}

// Call is one invocation to exercise against the context stack.
type Call struct {
	Name     string        `json:"name"`
	Segments []SegmentCall `json:"segments"`
	Args     []any         `json:"args"`
}

// Scenario is the ctxsim input format: the security policy a root
// FileAccessController should enforce, plus an ordered list of calls to run
// through it.
type Scenario struct {
	Readable any    `json:"readable"`
	Writable any    `json:"writable"`
	Listable any    `json:"listable"`
	Calls    []Call `json:"calls"`
}

// LoadScenario strictly decodes path as JSON: unknown fields and trailing
// content are rejected, matching the teacher's own graph-loading discipline
// (internal/cli/graph.go's LoadGraphFromFile in the source this was ported
// from).
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &InvocationError{ExitCode: ExitConfigError, Message: fmt.Sprintf("open scenario: %v", err)}
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, &InvocationError{ExitCode: ExitConfigError, Message: fmt.Sprintf("decode scenario: %v", err)}
	}
	if err := dec.Decode(new(struct{})); err != io.EOF {
		return nil, &InvocationError{ExitCode: ExitConfigError, Message: "scenario file has trailing content"}
	}
	return &s, nil
}
