// Package runner spawns check-plugin subprocesses and collects their exit
// status, output, and timing.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/wardenhq/sentryd/pkg/types"
)

// spawnFailureStatus is returned whenever a plugin could not be run to
// completion: the exec itself failed, or it was killed on timeout.
const spawnFailureStatus = 128

// killGrace is how long a timed-out child is given to exit after SIGTERM
// before the runner escalates to SIGKILL.
const killGrace = 2 * time.Second

// Runner bounds the number of plugin subprocesses in flight at once. The
// bound is a semaphore rather than a fixed worker goroutine count so a
// caller can submit far more runs than the concurrency limit and have them
// queue for a free slot, instead of blocking on a fixed-size channel.
type Runner struct {
	sem *semaphore.Weighted
}

// New creates a Runner that allows at most maxConcurrent plugins to be
// running at any moment.
func New(maxConcurrent int64) *Runner {
	return &Runner{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Run spawns argv[0] with the remaining argv as arguments, without a shell,
// writes stdinBytes to its stdin, and waits up to timeout for it to exit.
// It never returns an error: a failure to spawn, or a timeout, is reported
// as exit_status 128 with a diagnostic message in the output, per spec.
func (r *Runner) Run(ctx context.Context, argv []string, env []string, stdinBytes []byte, timeout time.Duration) types.CheckResult {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		now := time.Now()
		return types.CheckResult{
			ExecutionStart: now,
			ExecutionEnd:   now,
			ExitStatus:     spawnFailureStatus,
			Output:         fmt.Sprintf("runner: %v", err),
			State:          types.StateFromExitStatus(spawnFailureStatus),
		}
	}
	defer r.sem.Release(1)

	return r.exec(ctx, argv, env, stdinBytes, timeout)
}

func (r *Runner) exec(ctx context.Context, argv []string, env []string, stdinBytes []byte, timeout time.Duration) types.CheckResult {
	start := time.Now()

	if len(argv) == 0 {
		end := time.Now()
		return types.CheckResult{
			ExecutionStart: start,
			ExecutionEnd:   end,
			ExitStatus:     spawnFailureStatus,
			Output:         "runner: empty argv",
			State:          types.StateFromExitStatus(spawnFailureStatus),
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(argv[0], argv[1:]...)
	if len(env) > 0 {
		cmd.Env = env
	}
	if len(stdinBytes) > 0 {
		cmd.Stdin = bytes.NewReader(stdinBytes)
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		end := time.Now()
		return types.CheckResult{
			ExecutionStart: start,
			ExecutionEnd:   end,
			ExitStatus:     spawnFailureStatus,
			Output:         fmt.Sprintf("runner: spawn failed: %v", err),
			State:          types.StateFromExitStatus(spawnFailureStatus),
		}
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case err := <-waitCh:
		end := time.Now()
		status := exitStatus(err)
		output, perf := ParseOutput(out.String())
		return types.CheckResult{
			ExecutionStart:  start,
			ExecutionEnd:    end,
			ExitStatus:      status,
			Output:          output,
			PerformanceData: perf,
			State:           types.StateFromExitStatus(status),
		}
	case <-runCtx.Done():
		return r.killAndCollect(cmd, waitCh, &out, start)
	}
}

// killAndCollect signals a child that has exceeded its timeout, escalating
// to SIGKILL if it ignores SIGTERM within killGrace, and returns whatever
// output was captured before the kill.
func (r *Runner) killAndCollect(cmd *exec.Cmd, waitCh <-chan error, out *bytes.Buffer, start time.Time) types.CheckResult {
	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-waitCh:
	case <-time.After(killGrace):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-waitCh
	}

	end := time.Now()
	output := out.String()
	if output != "" {
		output += "\n"
	}
	output += "runner: terminated by signal after timeout"

	return types.CheckResult{
		ExecutionStart: start,
		ExecutionEnd:   end,
		ExitStatus:     spawnFailureStatus,
		Output:         output,
		State:          types.StateFromExitStatus(spawnFailureStatus),
	}
}

// exitStatus recovers the child's exit code from cmd.Wait's error, mapping
// signal termination to spawnFailureStatus rather than Go's raw -1.
func exitStatus(err error) int {
	if err == nil {
		return 0
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return spawnFailureStatus
	}

	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return spawnFailureStatus
	}
	if status.Signaled() {
		return spawnFailureStatus
	}
	return status.ExitStatus()
}
