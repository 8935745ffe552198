package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExitStatusOK(t *testing.T) {
	r := New(4)
	result := r.Run(context.Background(), []string{"true"}, nil, nil, 5*time.Second)

	assert.Equal(t, 0, result.ExitStatus)
	assert.False(t, result.ExecutionStart.IsZero())
	assert.False(t, result.ExecutionEnd.IsZero())
}

func TestRunExitStatusNonZero(t *testing.T) {
	r := New(4)
	result := r.Run(context.Background(), []string{"sh", "-c", "exit 2"}, nil, nil, 5*time.Second)

	assert.Equal(t, 2, result.ExitStatus)
}

func TestRunCapturesStdout(t *testing.T) {
	r := New(4)
	result := r.Run(context.Background(), []string{"sh", "-c", "echo hello"}, nil, nil, 5*time.Second)

	assert.Equal(t, "hello", result.Output)
}

func TestRunOutputParsedForPerformanceData(t *testing.T) {
	r := New(4)
	result := r.Run(context.Background(), []string{"sh", "-c", "echo 'OK - load 0.3|load1=0.3;1;5'"}, nil, nil, 5*time.Second)

	assert.Equal(t, "OK - load 0.3", result.Output)
	assert.Equal(t, "0.3", result.PerformanceData["load1"])
}

func TestRunSpawnFailureReturns128(t *testing.T) {
	r := New(4)
	result := r.Run(context.Background(), []string{"/nonexistent/binary-does-not-exist"}, nil, nil, 5*time.Second)

	assert.Equal(t, 128, result.ExitStatus)
	assert.NotEmpty(t, result.Output)
}

func TestRunEmptyArgvReturns128(t *testing.T) {
	r := New(4)
	result := r.Run(context.Background(), nil, nil, nil, 5*time.Second)

	assert.Equal(t, 128, result.ExitStatus)
}

func TestRunTimeoutKillsChildAndReturns128(t *testing.T) {
	r := New(4)
	start := time.Now()
	result := r.Run(context.Background(), []string{"sh", "-c", "sleep 30"}, nil, nil, 2*time.Second)
	elapsed := time.Since(start)

	assert.Equal(t, 128, result.ExitStatus)
	assert.Contains(t, result.Output, "signal")
	assert.True(t, elapsed < 6*time.Second, "expected kill within grace period, took %s", elapsed)
}

func TestRunRespectsConcurrencyBound(t *testing.T) {
	r := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A pre-cancelled context should fail to acquire the semaphore and
	// report the standard spawn-failure shape rather than blocking.
	result := r.Run(ctx, []string{"true"}, nil, nil, time.Second)
	assert.Equal(t, 128, result.ExitStatus)
}

func TestParseOutputSingleLine(t *testing.T) {
	output, perf := ParseOutput("OK - load 0.3|load1=0.3;1;5")

	assert.Equal(t, "OK - load 0.3", output)
	require.Contains(t, perf, "load1")
	assert.Equal(t, "0.3", perf["load1"])
}

func TestParseOutputNoPerformanceData(t *testing.T) {
	output, perf := ParseOutput("CRITICAL - disk full")

	assert.Equal(t, "CRITICAL - disk full", output)
	assert.Empty(t, perf)
}

func TestParseOutputMultiLine(t *testing.T) {
	output, perf := ParseOutput("line one|a=1\nline two|b=2;10;20")

	assert.Equal(t, "line one\nline two", output)
	assert.Equal(t, "1", perf["a"])
	assert.Equal(t, "2", perf["b"])
}

func TestParseOutputDropsThresholds(t *testing.T) {
	_, perf := ParseOutput("x|used=512MB;800;900;0;1000")

	assert.Equal(t, "512MB", perf["used"])
}
