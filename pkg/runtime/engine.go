package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	goruntime "runtime"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/harborworks/flotilla/pkg/log"
	"github.com/harborworks/flotilla/pkg/metrics"
	"github.com/harborworks/flotilla/pkg/storage"
	"github.com/harborworks/flotilla/pkg/types"
)

// Sentinel error kinds for launch handling. The agent's HTTP layer maps
// them onto status codes.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrNotPermitted = errors.New("not permitted")
)

// Reporter delivers chore status reports to the captain.
// client.CaptainClient implements it; tests substitute fakes.
type Reporter interface {
	Report(ctx context.Context, req types.ReportRequest) error
}

// Engine runs chore scripts as child processes under the submitter's
// identity and supervises them until their single terminal report.
type Engine struct {
	name     string
	running  *storage.FileStore[types.RunningChore]
	reporter Reporter
	hostCPUs int
	logger   zerolog.Logger

	// live chore_id -> process handle; re-adopted processes are absent
	// here and watched by PID polling instead
	mu    sync.Mutex
	procs map[string]*os.Process
}

// NewEngine creates an engine persisting its running table under dataDir
func NewEngine(name, dataDir string, reporter Reporter) *Engine {
	hostCPUs, err := cpu.Counts(true)
	if err != nil || hostCPUs < 1 {
		hostCPUs = goruntime.NumCPU()
	}

	return &Engine{
		name:     name,
		running:  storage.NewFileStore[types.RunningChore](filepath.Join(dataDir, "running_chores.json")),
		reporter: reporter,
		hostCPUs: hostCPUs,
		logger:   log.WithComponent("runtime"),
		procs:    make(map[string]*os.Process),
	}
}

// Count returns the number of chores currently supervised
func (e *Engine) Count() int {
	return len(e.running.Load())
}

// Launch starts a chore process. Launching a chore_id that is already
// in the running table is a no-op; the captain may re-dispatch after a
// missed acknowledgment.
func (e *Engine) Launch(req types.LaunchRequest) error {
	if req.ChoreID == "" {
		return fmt.Errorf("%w: chore_id is required", ErrBadRequest)
	}
	if req.Script == "" {
		return fmt.Errorf("%w: script is required", ErrBadRequest)
	}

	if _, ok := e.running.Get(req.ChoreID); ok {
		e.logger.Debug().Str("chore_id", req.ChoreID).Msg("Chore already running, launch ignored")
		return nil
	}

	ident, err := resolveIdentity(int(req.Owner))
	if err != nil {
		metrics.LaunchFailuresTotal.Inc()
		e.reportLaunchFailure(req.ChoreID)
		return err
	}

	wd, err := resolveWorkdir(req.WD, ident.home)
	if err != nil {
		metrics.LaunchFailuresTotal.Inc()
		e.reportLaunchFailure(req.ChoreID)
		return err
	}

	nCPUs := clamp(req.Ressources.NeedCPUs(), 1, e.hostCPUs)
	gpus := req.Ressources.GPUs.Indices()

	cmd := exec.Command("/bin/bash", "-c", shellCommand(req.Script, req.Out, req.ChoreID))
	cmd.Dir = wd
	cmd.Env = childEnv(os.Environ(), ident, wd, nCPUs, gpus)
	cmd.SysProcAttr = sysProcAttr(ident)

	if err := cmd.Start(); err != nil {
		metrics.LaunchFailuresTotal.Inc()
		e.reportLaunchFailure(req.ChoreID)
		return fmt.Errorf("failed to start chore %s: %w", req.ChoreID, err)
	}

	pid := cmd.Process.Pid
	if err := setAffinity(pid, nCPUs); err != nil {
		// pinning is advisory; the thread-cap env vars still bound the load
		e.logger.Warn().Err(err).Str("chore_id", req.ChoreID).Int("pid", pid).Msg("CPU pinning failed")
	}

	entry := types.RunningChore{
		ChoreID: req.ChoreID,
		PID:     pid,
		Start:   time.Now().Unix(),
		Owner:   req.Owner,
		Out:     req.Out,
	}
	if err := e.running.Update(func(table map[string]types.RunningChore) (bool, error) {
		table[req.ChoreID] = entry
		return true, nil
	}); err != nil {
		e.logger.Error().Err(err).Str("chore_id", req.ChoreID).Msg("Failed to persist running entry")
	}

	e.mu.Lock()
	e.procs[req.ChoreID] = cmd.Process
	e.mu.Unlock()

	metrics.LaunchesTotal.Inc()
	metrics.RunningChores.Set(float64(e.Count()))
	e.logger.Info().
		Str("chore_id", req.ChoreID).
		Int("pid", pid).
		Int("uid", ident.uid).
		Str("wd", wd).
		Int("cpus", nCPUs).
		Msg("Chore started")

	go e.watch(req.ChoreID, cmd)
	return nil
}

// watch supervises one child: an immediate Running report, a blocking
// wait, then the single terminal report.
func (e *Engine) watch(choreID string, cmd *exec.Cmd) {
	e.report(choreID, types.ReportRunning, nil)

	_ = cmd.Wait()
	exitCode := cmd.ProcessState.ExitCode()

	entry, _ := e.running.Get(choreID)
	status := types.ReportDone
	switch {
	case entry.CancelRequested:
		status = types.ReportCanceled
	case exitCode != 0:
		status = types.ReportFailed
	}

	e.logger.Info().
		Str("chore_id", choreID).
		Str("status", string(status)).
		Int("exit_code", exitCode).
		Msg("Chore finished")

	e.report(choreID, status, &exitCode)
	e.forget(choreID)
}

// Cancel flags the chore and fires the kill ladder. A chore_id not in
// the running table answers OK; the watcher owns the terminal report.
func (e *Engine) Cancel(choreID string) error {
	entry, ok := e.running.Get(choreID)
	if !ok {
		return nil
	}

	// the flag is durable before any signal so a crash between the two
	// still yields a Canceled report on recovery
	if err := e.running.Update(func(table map[string]types.RunningChore) (bool, error) {
		cur, ok := table[choreID]
		if !ok {
			return false, nil
		}
		cur.CancelRequested = true
		table[choreID] = cur
		return true, nil
	}); err != nil {
		return err
	}

	metrics.CancelsTotal.Inc()
	e.logger.Info().Str("chore_id", choreID).Int("pid", entry.PID).Msg("Cancel requested, killing process tree")

	go e.killLadder(entry.PID)
	return nil
}

// report posts one status to the captain, best effort. A lost terminal
// report is finalized by the captain's TTL cleanup.
func (e *Engine) report(choreID string, status types.ReportStatus, exitCode *int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := types.ReportRequest{Name: e.name, ChoreID: choreID, Status: status, ExitCode: exitCode}
	if err := e.reporter.Report(ctx, req); err != nil {
		e.logger.Warn().Err(err).Str("chore_id", choreID).Str("status", string(status)).Msg("Report failed")
	}
	if status.Terminal() {
		metrics.WatcherReportsTotal.WithLabelValues(string(status)).Inc()
	}
}

// reportLaunchFailure tells the captain a chore never started
func (e *Engine) reportLaunchFailure(choreID string) {
	exitCode := -1
	e.report(choreID, types.ReportFailed, &exitCode)
}

// forget drops a finished chore from the running table and handle map
func (e *Engine) forget(choreID string) {
	if err := e.running.Update(func(table map[string]types.RunningChore) (bool, error) {
		if _, ok := table[choreID]; !ok {
			return false, nil
		}
		delete(table, choreID)
		return true, nil
	}); err != nil {
		e.logger.Error().Err(err).Str("chore_id", choreID).Msg("Failed to drop running entry")
	}

	e.mu.Lock()
	delete(e.procs, choreID)
	e.mu.Unlock()

	metrics.RunningChores.Set(float64(e.Count()))
}

// identity is the resolved execution identity of a chore
type identity struct {
	uid       int
	gid       int
	groups    []uint32
	username  string
	home      string
	switching bool
}

// resolveIdentity maps the chore owner uid onto execution credentials.
// A non-root agent may only launch as itself; a missing passwd entry is
// non-fatal and falls back to numeric values.
func resolveIdentity(target int) (identity, error) {
	if target < 0 {
		return identity{}, fmt.Errorf("%w: invalid owner %d", ErrBadRequest, target)
	}

	euid := os.Geteuid()
	if target != euid && euid != 0 {
		return identity{}, fmt.Errorf("%w: cannot launch as uid %d while running as uid %d", ErrNotPermitted, target, euid)
	}

	ident := identity{
		uid:       target,
		username:  strconv.Itoa(target),
		switching: target != euid,
	}

	u, err := user.LookupId(strconv.Itoa(target))
	if err != nil {
		return ident, nil
	}

	ident.username = u.Username
	ident.home = u.HomeDir
	if gid, err := strconv.Atoi(u.Gid); err == nil {
		ident.gid = gid
	}
	if groupIDs, err := u.GroupIds(); err == nil {
		for _, g := range groupIDs {
			if gid, err := strconv.Atoi(g); err == nil {
				ident.groups = append(ident.groups, uint32(gid))
			}
		}
	}
	return ident, nil
}

// resolveWorkdir picks the chore working directory: the requested path
// (must exist), else the user's home, else /.
func resolveWorkdir(requested, home string) (string, error) {
	if requested != "" {
		abs, err := filepath.Abs(requested)
		if err != nil {
			return "", fmt.Errorf("%w: bad working directory %q", ErrBadRequest, requested)
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			return "", fmt.Errorf("%w: working directory %q does not exist", ErrBadRequest, abs)
		}
		return abs, nil
	}

	if home != "" {
		if info, err := os.Stat(home); err == nil && info.IsDir() {
			return home, nil
		}
	}
	return "/", nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
