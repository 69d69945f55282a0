package runtime

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborworks/flotilla/pkg/types"
)

type recordingReporter struct {
	mu      sync.Mutex
	reports []types.ReportRequest
}

func (r *recordingReporter) Report(_ context.Context, req types.ReportRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, req)
	return nil
}

func (r *recordingReporter) terminal() *types.ReportRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.reports {
		if r.reports[i].Status.Terminal() {
			return &r.reports[i]
		}
	}
	return nil
}

func (r *recordingReporter) statuses() []types.ReportStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.ReportStatus, len(r.reports))
	for i, rep := range r.reports {
		out[i] = rep.Status
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *recordingReporter) {
	t.Helper()
	reporter := &recordingReporter{}
	return NewEngine("test-sailor", t.TempDir(), reporter), reporter
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func ownedRequest(t *testing.T, script string) types.LaunchRequest {
	t.Helper()
	return types.LaunchRequest{
		ChoreID:    "100",
		Script:     script,
		Ressources: types.NewResources(1, 0),
		Owner:      types.FlexInt(os.Getuid()),
	}
}

func TestLaunchReportsDone(t *testing.T) {
	engine, reporter := newTestEngine(t)

	req := ownedRequest(t, writeScript(t, "exit 0"))
	require.NoError(t, engine.Launch(req))

	assert.Eventually(t, func() bool { return reporter.terminal() != nil }, 5*time.Second, 20*time.Millisecond)

	term := reporter.terminal()
	assert.Equal(t, types.ReportDone, term.Status)
	require.NotNil(t, term.ExitCode)
	assert.Equal(t, 0, *term.ExitCode)
	assert.Equal(t, "test-sailor", term.Name)
	assert.Contains(t, reporter.statuses(), types.ReportRunning)
	assert.Equal(t, 0, engine.Count())
}

func TestLaunchReportsFailedWithExitCode(t *testing.T) {
	engine, reporter := newTestEngine(t)

	req := ownedRequest(t, writeScript(t, "exit 3"))
	require.NoError(t, engine.Launch(req))

	assert.Eventually(t, func() bool { return reporter.terminal() != nil }, 5*time.Second, 20*time.Millisecond)

	term := reporter.terminal()
	assert.Equal(t, types.ReportFailed, term.Status)
	require.NotNil(t, term.ExitCode)
	assert.Equal(t, 3, *term.ExitCode)
}

func TestLaunchIsIdempotent(t *testing.T) {
	engine, reporter := newTestEngine(t)

	require.NoError(t, engine.running.Update(func(table map[string]types.RunningChore) (bool, error) {
		table["100"] = types.RunningChore{ChoreID: "100", PID: os.Getpid()}
		return true, nil
	}))

	req := ownedRequest(t, writeScript(t, "exit 0"))
	require.NoError(t, engine.Launch(req))
	assert.Empty(t, reporter.statuses(), "duplicate launch must not start anything")
	assert.Equal(t, 1, engine.Count())
}

func TestLaunchValidation(t *testing.T) {
	engine, _ := newTestEngine(t)

	err := engine.Launch(types.LaunchRequest{Script: "/x.sh"})
	assert.ErrorIs(t, err, ErrBadRequest)

	err = engine.Launch(types.LaunchRequest{ChoreID: "1"})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestLaunchRefusesForeignOwner(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root, every uid is permitted")
	}

	engine, reporter := newTestEngine(t)

	req := ownedRequest(t, writeScript(t, "exit 0"))
	req.Owner = types.FlexInt(os.Getuid() + 1)
	err := engine.Launch(req)
	assert.ErrorIs(t, err, ErrNotPermitted)

	// the captain learns about the stillborn chore
	term := reporter.terminal()
	require.NotNil(t, term)
	assert.Equal(t, types.ReportFailed, term.Status)
	require.NotNil(t, term.ExitCode)
	assert.Equal(t, -1, *term.ExitCode)
}

func TestLaunchRefusesMissingWorkdir(t *testing.T) {
	engine, _ := newTestEngine(t)

	req := ownedRequest(t, writeScript(t, "exit 0"))
	req.WD = filepath.Join(t.TempDir(), "does-not-exist")
	assert.ErrorIs(t, engine.Launch(req), ErrBadRequest)
}

func TestCancelKillsAndReportsCanceled(t *testing.T) {
	engine, reporter := newTestEngine(t)

	req := ownedRequest(t, writeScript(t, "sleep 30"))
	require.NoError(t, engine.Launch(req))

	assert.Eventually(t, func() bool {
		_, ok := engine.running.Get("100")
		return ok
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, engine.Cancel("100"))

	assert.Eventually(t, func() bool { return reporter.terminal() != nil }, 10*time.Second, 50*time.Millisecond)
	assert.Equal(t, types.ReportCanceled, reporter.terminal().Status)
	assert.Equal(t, 0, engine.Count())
}

func TestCancelUnknownChoreIsNoop(t *testing.T) {
	engine, reporter := newTestEngine(t)
	require.NoError(t, engine.Cancel("missing"))
	assert.Empty(t, reporter.statuses())
}

func TestOutFileFraming(t *testing.T) {
	engine, reporter := newTestEngine(t)

	out := filepath.Join(t.TempDir(), "logs", "chore.out")
	req := ownedRequest(t, writeScript(t, `echo hello`))
	req.Out = out
	require.NoError(t, engine.Launch(req))

	assert.Eventually(t, func() bool { return reporter.terminal() != nil }, 5*time.Second, 20*time.Millisecond)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "START CHORE::100", lines[0])
	assert.Equal(t, "hello", lines[1])
	assert.Equal(t, "END CHORE::100", lines[2])
}

func TestRecoverFinalizesDeadEntries(t *testing.T) {
	engine, reporter := newTestEngine(t)

	require.NoError(t, engine.running.Update(func(table map[string]types.RunningChore) (bool, error) {
		// PIDs far above any live process on a test box
		table["200"] = types.RunningChore{ChoreID: "200", PID: 1 << 22}
		table["201"] = types.RunningChore{ChoreID: "201", PID: 1<<22 + 1, CancelRequested: true}
		return true, nil
	}))

	engine.Recover()

	byID := map[string]types.ReportStatus{}
	reporter.mu.Lock()
	for _, rep := range reporter.reports {
		byID[rep.ChoreID] = rep.Status
	}
	reporter.mu.Unlock()

	assert.Equal(t, types.ReportFailed, byID["200"])
	assert.Equal(t, types.ReportCanceled, byID["201"])
	assert.Equal(t, 0, engine.Count())
}

func TestRecoverAdoptsLiveProcess(t *testing.T) {
	engine, reporter := newTestEngine(t)

	// our own pid is certainly alive; the poll watcher must not report
	// a terminal status while it lives
	require.NoError(t, engine.running.Update(func(table map[string]types.RunningChore) (bool, error) {
		table["300"] = types.RunningChore{ChoreID: "300", PID: os.Getpid()}
		return true, nil
	}))

	engine.Recover()

	assert.Eventually(t, func() bool {
		for _, status := range reporter.statuses() {
			if status == types.ReportRunning {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
	assert.Nil(t, reporter.terminal())
	assert.Equal(t, 1, engine.Count())
}

func TestChildEnvOverrides(t *testing.T) {
	base := []string{"PATH=/usr/bin", "HOME=/root", "OMP_NUM_THREADS=64", "EDITOR=vi"}
	ident := identity{username: "ada"}

	env := map[string]string{}
	for _, kv := range childEnv(base, ident, "/work", 4, []int{0, 2}) {
		key, value, _ := strings.Cut(kv, "=")
		env[key] = value
	}

	assert.Equal(t, "/usr/bin", env["PATH"])
	assert.Equal(t, "vi", env["EDITOR"])
	assert.Equal(t, "/work", env["HOME"])
	assert.Equal(t, "ada", env["USER"])
	assert.Equal(t, "ada", env["LOGNAME"])
	assert.Equal(t, "/bin/sh", env["SHELL"])
	assert.Equal(t, "4", env["OMP_NUM_THREADS"])
	assert.Equal(t, "4", env["TORCH_NUM_THREADS"])
	assert.Equal(t, "4", env["TORCH_NUM_INTEROP_THREADS"])
	assert.Equal(t, "FALSE", env["MKL_DYNAMIC"])
	assert.Equal(t, "0,2", env["CUDA_VISIBLE_DEVICES"])
	assert.Equal(t, "0,2", env["ROCR_VISIBLE_DEVICES"])
}

func TestChildEnvInteropThreadCap(t *testing.T) {
	env := map[string]string{}
	for _, kv := range childEnv(nil, identity{username: "ada"}, "/work", 32, nil) {
		key, value, _ := strings.Cut(kv, "=")
		env[key] = value
	}
	assert.Equal(t, "32", env["TORCH_NUM_THREADS"])
	assert.Equal(t, "8", env["TORCH_NUM_INTEROP_THREADS"])
}

func TestShellCommand(t *testing.T) {
	direct := shellCommand("/path/run.sh", "", "42")
	assert.Contains(t, direct, "umask 022")
	assert.Contains(t, direct, ">/dev/null 2>&1")

	wrapped := shellCommand("/path/run.sh", "/var/log/chores/42.out", "42")
	assert.Contains(t, wrapped, "mkdir -p '/var/log/chores'")
	assert.Contains(t, wrapped, "START CHORE::42")
	assert.Contains(t, wrapped, "END CHORE::42")
	assert.Contains(t, wrapped, "exit $rc")
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "'/plain/path'", shellQuote("/plain/path"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}

func TestResolveWorkdir(t *testing.T) {
	dir := t.TempDir()

	got, err := resolveWorkdir(dir, "")
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = resolveWorkdir(filepath.Join(dir, "missing"), "")
	assert.ErrorIs(t, err, ErrBadRequest)

	got, err = resolveWorkdir("", dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	got, err = resolveWorkdir("", filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Equal(t, "/", got)
}
