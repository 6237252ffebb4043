// ctxsim drives the ctxguard package against a scenario file: a declared
// read/write/list policy plus an ordered list of calls, each exercising the
// segmented context stack the way an embedding application would.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"ctxguard/internal/cli"
)

// main is a deterministic boundary: it canonicalizes all CLI inputs into an
// Invocation before any engine logic runs.
func main() {
	inv, err := cli.ParseInvocation(os.Args[1:])
	if err != nil {
		var invErr *cli.InvocationError
		if errors.As(err, &invErr) {
			fmt.Fprintln(os.Stderr, invErr.Message)
			os.Exit(invErr.ExitCode)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitInternalError)
	}

	result, execErr := cli.Execute(context.Background(), inv)
	if out, marshalErr := json.MarshalIndent(result, "", "  "); marshalErr == nil {
		fmt.Println(string(out))
	}
	if execErr != nil {
		fmt.Fprintln(os.Stderr, execErr)
		os.Exit(cli.ExitCode(execErr))
	}
	os.Exit(result.ExitCode)
}
