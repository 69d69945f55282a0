package captain

import (
	"context"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/harborworks/flotilla/pkg/events"
	"github.com/harborworks/flotilla/pkg/metrics"
	"github.com/harborworks/flotilla/pkg/types"
)

// ReconcileOnce runs one enforcement cycle: per-user time budgets,
// per-sailor max_time, finalization of stuck cancel_requested chores,
// and the TTL purge of terminal chores. Sub-pass failures are collected
// and logged, never raised past the loop; no store lock is held across
// a network call.
func (c *Captain) ReconcileOnce(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconcileDuration)
		metrics.ReconcileCyclesTotal.Inc()
	}()

	now := time.Now().Unix()
	var errs *multierror.Error

	for _, marked := range c.overUserBudget(now) {
		if err := c.markCancel(ctx, marked, types.CancelSourceUserTimeLimit, types.ReasonExceededUserTimeLimit); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	for _, marked := range c.overSailorMaxTime(now) {
		if err := c.markCancel(ctx, marked, types.CancelSourceSailorMaxTime, types.ReasonExceededTimeLimit); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if err := c.finalizeStuck(ctx, now); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := c.purgeTerminal(now); err != nil {
		errs = multierror.Append(errs, err)
	}

	c.tokenManager.CleanupExpiredTokens()

	if err := errs.ErrorOrNil(); err != nil {
		c.logger.Error().Err(err).Msg("Reconcile cycle finished with errors")
		return err
	}
	return nil
}

// overUserBudget walks every owner with a positive time_limit and
// returns the chore ids whose cumulative duration breaks the budget.
// The walk is oldest-first so the longest-standing work is protected
// and the newest chores absorb the cut.
func (c *Captain) overUserBudget(now int64) []string {
	users := c.users.Load()

	byOwner := make(map[string][]types.Chore)
	for _, chore := range c.chores.Load() {
		if chore.IsTerminal() || chore.Status == types.ChoreStatusPending {
			continue
		}
		byOwner[ownerKey(chore.Owner)] = append(byOwner[ownerKey(chore.Owner)], chore)
	}

	var marked []string
	for owner, chores := range byOwner {
		user, ok := users[owner]
		if !ok {
			continue
		}
		limit := types.ParseTimeLimit(user.TimeLimit)
		if limit <= 0 {
			continue
		}

		sort.Slice(chores, func(i, j int) bool {
			ti, tj := chores[i].T0(now), chores[j].T0(now)
			if ti != tj {
				return ti < tj
			}
			return chores[i].ChoreID < chores[j].ChoreID
		})

		var total int64
		over := false
		for _, chore := range chores {
			if !over {
				total += now - chore.T0(now)
				if total > limit {
					over = true
				}
			}
			if over && chore.Status != types.ChoreStatusCancelRequested {
				marked = append(marked, chore.ChoreID)
			}
		}
	}
	return marked
}

// overSailorMaxTime returns the chore ids running past their sailor's
// per-chore max_time.
func (c *Captain) overSailorMaxTime(now int64) []string {
	crew := c.crew.Load()

	var marked []string
	for _, chore := range c.chores.Load() {
		if chore.Sailor == "" {
			continue
		}
		if chore.Status != types.ChoreStatusAssigned && chore.Status != types.ChoreStatusRunning {
			continue
		}
		sailor, ok := crew[chore.Sailor]
		if !ok {
			continue
		}
		limit := types.ParseTimeLimit(sailor.MaxTime)
		if limit <= 0 {
			continue
		}
		if now-chore.T0(now) > limit {
			marked = append(marked, chore.ChoreID)
		}
	}
	return marked
}

// markCancel persists the cancel_requested state, then best-effort
// POSTs the cancel to the sailor. Persist-before-POST is the ordering
// that keeps the cancel reason safe from a racing terminal report.
func (c *Captain) markCancel(ctx context.Context, choreID string, source types.CancelSource, reason string) error {
	now := time.Now().Unix()
	var sailorName string
	err := c.chores.Update(func(chores map[string]types.Chore) (bool, error) {
		chore, ok := chores[choreID]
		if !ok || chore.IsTerminal() || chore.Status == types.ChoreStatusCancelRequested {
			return false, nil
		}
		chore.Status = types.ChoreStatusCancelRequested
		chore.CancelRequestedAt = now
		chore.CancelSource = source
		if chore.Reason == "" {
			chore.Reason = reason
		}
		sailorName = chore.Sailor
		chores[choreID] = chore
		return true, nil
	})
	if err != nil {
		return err
	}
	if sailorName == "" {
		return nil
	}

	metrics.CancelRequestsTotal.WithLabelValues(string(source)).Inc()
	c.logger.Info().
		Str("chore_id", choreID).
		Str("sailor", sailorName).
		Str("source", string(source)).
		Msg("Chore marked for cancellation")
	c.publish(events.EventChoreCancelRequested, "chore cancel requested", map[string]string{
		"chore_id": choreID,
		"sailor":   sailorName,
		"source":   string(source),
	})

	c.postCancel(ctx, sailorName, choreID)
	return nil
}

// finalizeStuck closes out cancel_requested chores whose sailor never
// reported back within the finalization TTL: one last cancel POST, the
// reservation is optimistically freed, and the chore goes terminal.
func (c *Captain) finalizeStuck(ctx context.Context, now int64) error {
	ttl := int64(c.cfg.CancelRequestedTTL.Seconds())

	var errs *multierror.Error
	for id, chore := range c.chores.Load() {
		if chore.Status != types.ChoreStatusCancelRequested {
			continue
		}

		if chore.CancelRequestedAt == 0 {
			// legacy record: backfill from the best available timestamp
			backfill := chore.T0(now)
			if err := c.chores.Update(func(chores map[string]types.Chore) (bool, error) {
				cur, ok := chores[id]
				if !ok || cur.CancelRequestedAt != 0 {
					return false, nil
				}
				cur.CancelRequestedAt = backfill
				chores[id] = cur
				return true, nil
			}); err != nil {
				errs = multierror.Append(errs, err)
			}
			continue
		}

		if now-chore.CancelRequestedAt < ttl {
			continue
		}

		if chore.Sailor != "" {
			c.postCancel(ctx, chore.Sailor, id)
		}

		finalized, err := c.finalizeChore(id, now)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if !finalized {
			// a terminal report won the race
			continue
		}

		c.logger.Warn().Str("chore_id", id).Str("sailor", chore.Sailor).Msg("Finalized stuck cancel_requested chore")
		c.publish(events.EventChoreCanceled, "chore canceled by timeout", map[string]string{
			"chore_id": id,
			"sailor":   chore.Sailor,
		})
	}
	return errs.ErrorOrNil()
}

// finalizeChore flips one stuck chore to canceled and frees its
// reservation. Runs under reportMu: a terminal report racing the TTL
// must not release the same reservation twice.
func (c *Captain) finalizeChore(id string, now int64) (bool, error) {
	c.reportMu.Lock()
	defer c.reportMu.Unlock()

	cur, ok := c.chores.Get(id)
	if !ok || cur.Status != types.ChoreStatusCancelRequested {
		return false, nil
	}

	if cur.Sailor != "" {
		if err := c.releaseReservation(cur.Sailor, cur.Ressources); err != nil {
			c.logger.Error().Err(err).Str("chore_id", id).Msg("Failed to release reservation")
		}
	}

	return true, c.chores.Update(func(chores map[string]types.Chore) (bool, error) {
		cur, ok := chores[id]
		if !ok || cur.Status != types.ChoreStatusCancelRequested {
			return false, nil
		}
		cur.Status = types.ChoreStatusCanceled
		cur.End = now
		if cur.Reason == "" {
			cur.Reason = types.MapCancelReason(cur.CancelSource, types.ReasonCanceledByTimeout)
		}
		chores[id] = cur
		return true, nil
	})
}

// purgeTerminal drops terminal chores older than the cleanup TTL.
func (c *Captain) purgeTerminal(now int64) error {
	ttl := int64(c.cfg.CleanupTTL.Seconds())

	var purged []string
	err := c.chores.Update(func(chores map[string]types.Chore) (bool, error) {
		for id, chore := range chores {
			if chore.IsTerminal() && chore.End > 0 && now-chore.End >= ttl {
				delete(chores, id)
				purged = append(purged, id)
			}
		}
		return len(purged) > 0, nil
	})
	if err != nil {
		return err
	}

	for _, id := range purged {
		metrics.ChoresPurgedTotal.Inc()
		c.logger.Debug().Str("chore_id", id).Msg("Purged terminal chore")
		c.publish(events.EventChorePurged, "chore purged", map[string]string{"chore_id": id})
	}
	return nil
}
