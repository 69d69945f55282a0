package runtime

import (
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	termGrace       = 5 * time.Second
	descendantGrace = 3 * time.Second
	probeInterval   = 100 * time.Millisecond
)

// killLadder escalates until the chore's process tree is gone:
// TERM to the group, TERM to the leader, a grace wait, KILL to both,
// then a sweep over surviving descendants. Every step is best effort;
// the watcher still owns the terminal report.
func (e *Engine) killLadder(pid int) {
	signalGroup(pid, syscall.SIGTERM)
	terminatePID(pid)

	if waitGone(pid, termGrace) {
		e.reapDescendants(pid)
		return
	}

	signalGroup(pid, syscall.SIGKILL)
	killPID(pid)
	e.reapDescendants(pid)
}

// reapDescendants terminates whatever survived the group signals,
// typically grandchildren that double-forked out of the group.
func (e *Engine) reapDescendants(pid int) {
	survivors := descendants(pid)
	if len(survivors) == 0 {
		return
	}

	var errs *multierror.Error
	for _, p := range survivors {
		if err := p.Terminate(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	deadline := time.Now().Add(descendantGrace)
	for time.Now().Before(deadline) {
		if len(descendants(pid)) == 0 {
			break
		}
		time.Sleep(probeInterval)
	}

	for _, p := range descendants(pid) {
		if err := p.Kill(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		e.logger.Debug().Err(err).Int("pid", pid).Msg("Descendant sweep finished with errors")
	}
}

// descendants walks the live process tree below pid, pid excluded
func descendants(pid int) []*process.Process {
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}

	var out []*process.Process
	queue := []*process.Process{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		children, err := p.Children()
		if err != nil {
			continue
		}
		out = append(out, children...)
		queue = append(queue, children...)
	}
	return out
}

// waitGone polls until the pid disappears or the timeout elapses
func waitGone(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		alive, err := process.PidExists(int32(pid))
		if err == nil && !alive {
			return true
		}
		time.Sleep(probeInterval)
	}
	alive, err := process.PidExists(int32(pid))
	return err == nil && !alive
}

func terminatePID(pid int) {
	if p, err := process.NewProcess(int32(pid)); err == nil {
		_ = p.Terminate()
	}
}

func killPID(pid int) {
	if p, err := process.NewProcess(int32(pid)); err == nil {
		_ = p.Kill()
	}
}
