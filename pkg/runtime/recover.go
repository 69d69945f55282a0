package runtime

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/harborworks/flotilla/pkg/metrics"
	"github.com/harborworks/flotilla/pkg/types"
)

const adoptPollInterval = 500 * time.Millisecond

// Recover reconciles the persisted running table with reality after an
// agent restart. Entries whose process is still alive are re-adopted
// under a poll-based watcher (the process is no longer our child, so
// wait is unavailable); dead ones get their terminal report now.
func (e *Engine) Recover() {
	table := e.running.Load()
	if len(table) == 0 {
		return
	}

	for choreID, entry := range table {
		alive, err := process.PidExists(int32(entry.PID))
		if err == nil && alive {
			e.logger.Info().Str("chore_id", choreID).Int("pid", entry.PID).Msg("Re-adopted running chore")
			go e.watchAdopted(choreID, entry.PID)
			continue
		}

		// died while the agent was down; the exit code is lost
		exitCode := -1
		status := types.ReportFailed
		if entry.CancelRequested {
			status = types.ReportCanceled
		}
		e.logger.Warn().
			Str("chore_id", choreID).
			Int("pid", entry.PID).
			Str("status", string(status)).
			Msg("Chore died during agent downtime")
		e.report(choreID, status, &exitCode)
		e.forget(choreID)
	}

	metrics.RunningChores.Set(float64(e.Count()))
}

// watchAdopted supervises a re-adopted process by PID polling. The exit
// code of a non-child is unobservable, so a clean disappearance reports
// Done without one.
func (e *Engine) watchAdopted(choreID string, pid int) {
	e.report(choreID, types.ReportRunning, nil)

	for {
		alive, err := process.PidExists(int32(pid))
		if err == nil && !alive {
			break
		}
		time.Sleep(adoptPollInterval)
	}

	entry, _ := e.running.Get(choreID)
	status := types.ReportDone
	if entry.CancelRequested {
		status = types.ReportCanceled
	}

	e.logger.Info().Str("chore_id", choreID).Int("pid", pid).Str("status", string(status)).Msg("Adopted chore finished")
	e.report(choreID, status, nil)
	e.forget(choreID)
}
