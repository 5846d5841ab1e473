//go:build unix

package runner

import (
	"os/exec"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_TimeoutKillsProcessGroup(t *testing.T) {
	r := newTestRunner(t)

	// The shell prints its pid and leaves a background child that would
	// otherwise keep stdout open for 30s.
	start := time.Now()
	res := run(t, r, time.Second, "sh", "-c", "echo $$; sleep 30 & wait")
	assert.Less(t, time.Since(start), 5*time.Second)
	require.True(t, res.TimedOut)

	out := lines(t, res.Stdout)
	require.NotEmpty(t, out)
	pid, err := strconv.Atoi(out[0])
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return syscall.Kill(pid, 0) == syscall.ESRCH
	}, 2*time.Second, 20*time.Millisecond, "process %d still running", pid)
}

func TestRun_TimeoutBoundedWhenDescendantLeavesGroup(t *testing.T) {
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}
	r := newTestRunner(t)
	r.WaitDelay = 500 * time.Millisecond

	// The setsid child is outside the killed group and keeps stdout open
	// well past the timeout.
	start := time.Now()
	res := run(t, r, time.Second, "sh", "-c", "echo started; setsid sleep 8 & sleep 30")
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 4*time.Second)
	assert.True(t, res.TimedOut)
	assert.Equal(t, ExitCodeSignaled, res.ExitCode)
	assert.Equal(t, []string{"started"}, lines(t, res.Stdout))
}
