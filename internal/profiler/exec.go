package profiler

import (
	"context"
	"os/exec"
)

// buildCommand is split out so tests can swap it for a fake.
var buildCommand = func(ctx context.Context, binary string, args []string) *exec.Cmd {
	return exec.CommandContext(ctx, binary, args...)
}

// isBenignExitError reports whether err is merely a nonzero copier exit
// code (the copier's bitmask reports status through the exit code, not
// through failure to run) rather than a real failure to execute.
func isBenignExitError(err error) bool {
	_, ok := err.(*exec.ExitError)
	return ok
}
