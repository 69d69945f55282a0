package captain

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/harborworks/flotilla/pkg/events"
	"github.com/harborworks/flotilla/pkg/metrics"
	"github.com/harborworks/flotilla/pkg/types"
)

// SubmitChore admits a chore, persists it pending, and runs one
// assignment pass before returning so an idle fleet picks it up
// immediately. A user with a chores_limit is refused once their active
// chores meet it.
func (c *Captain) SubmitChore(ctx context.Context, req types.SubmitChoreRequest) (string, error) {
	if req.Script == "" {
		return "", fmt.Errorf("%w: script is required", ErrInvalid)
	}
	if req.Owner == nil {
		return "", fmt.Errorf("%w: owner is required", ErrInvalid)
	}

	owner := *req.Owner
	limit := c.choresLimit(owner)
	now := time.Now().Unix()

	chore := types.Chore{
		ChoreID:    c.nextChoreID(),
		Script:     req.Script,
		Service:    req.Service,
		Ressources: req.Demand(),
		Owner:      owner,
		Status:     types.ChoreStatusPending,
		Start:      now,
		Reason:     types.ReasonNoAvailableSailor,
	}

	err := c.chores.Update(func(chores map[string]types.Chore) (bool, error) {
		if limit > 0 && countActive(chores, owner, now, c.cfg.CancelRequestedTTL) >= limit {
			return false, fmt.Errorf("%w: user %d has reached its chores limit (%d)", ErrForbidden, int(owner), limit)
		}
		chores[chore.ChoreID] = chore
		return true, nil
	})
	if err != nil {
		return "", err
	}

	metrics.SubmissionsTotal.Inc()
	c.logger.Info().
		Str("chore_id", chore.ChoreID).
		Str("script", chore.Script).
		Int("owner", int(owner)).
		Msg("Chore submitted")
	c.publish(events.EventChoreSubmitted, "chore submitted", map[string]string{
		"chore_id": chore.ChoreID,
		"owner":    strconv.Itoa(int(owner)),
	})

	c.AssignPending(ctx)
	return chore.ChoreID, nil
}

// choresLimit reads the owner's chores_limit; 0 means unlimited.
func (c *Captain) choresLimit(owner types.FlexInt) int {
	user, ok := c.users.Get(ownerKey(owner))
	if !ok {
		return 0
	}
	return int(user.ChoresLimit)
}

// countActive counts the owner's chores that occupy a limit slot.
// cancel_requested chores past the finalization TTL no longer count:
// they are about to be finalized and must not wedge the user.
func countActive(chores map[string]types.Chore, owner types.FlexInt, now int64, cancelTTL time.Duration) int {
	n := 0
	for _, chore := range chores {
		if chore.Owner != owner || !chore.IsActive() {
			continue
		}
		if chore.Status == types.ChoreStatusCancelRequested &&
			chore.CancelRequestedAt > 0 &&
			now-chore.CancelRequestedAt >= int64(cancelTTL.Seconds()) {
			continue
		}
		n++
	}
	return n
}

// CancelChore handles POST /user_cancel. An unassigned chore goes
// terminal immediately; an assigned one is durably marked
// cancel_requested first, and only then is the sailor asked to kill it,
// so a racing terminal report can never lose the cancel reason.
func (c *Captain) CancelChore(ctx context.Context, choreID, reason string) error {
	return c.cancelChore(ctx, choreID, reason, nil)
}

// CancelChoreOwned is CancelChore restricted to the calling user's own
// chores, for the token-scoped /me/cancel endpoint.
func (c *Captain) CancelChoreOwned(ctx context.Context, choreID, reason string, owner int) error {
	return c.cancelChore(ctx, choreID, reason, &owner)
}

func (c *Captain) cancelChore(ctx context.Context, choreID, reason string, owner *int) error {
	if choreID == "" {
		return fmt.Errorf("%w: chore_id is required", ErrInvalid)
	}

	now := time.Now().Unix()
	var sailorName string
	err := c.chores.Update(func(chores map[string]types.Chore) (bool, error) {
		chore, ok := chores[choreID]
		if !ok {
			return false, fmt.Errorf("%w: unknown chore %s", ErrNotFound, choreID)
		}
		if owner != nil && int(chore.Owner) != *owner {
			return false, fmt.Errorf("%w: chore %s is not yours", ErrForbidden, choreID)
		}
		if chore.IsTerminal() {
			// repeated cancels are safe
			return false, nil
		}

		if chore.Sailor == "" {
			chore.Status = types.ChoreStatusCanceled
			chore.End = now
			chore.CancelSource = types.CancelSourceUser
			if reason != "" {
				chore.Reason = reason
			} else {
				chore.Reason = types.ReasonCanceledByUser
			}
			chores[choreID] = chore
			return true, nil
		}

		sailorName = chore.Sailor
		if chore.Status == types.ChoreStatusCancelRequested {
			// already decided: re-POST the cancel below but keep the
			// first timestamp and reason
			return false, nil
		}
		chore.Status = types.ChoreStatusCancelRequested
		chore.CancelRequestedAt = now
		chore.CancelSource = types.CancelSourceUser
		if reason != "" {
			chore.Reason = reason
		}
		chores[choreID] = chore
		return true, nil
	})
	if err != nil {
		return err
	}

	metrics.CancelRequestsTotal.WithLabelValues(string(types.CancelSourceUser)).Inc()

	if sailorName == "" {
		c.logger.Info().Str("chore_id", choreID).Msg("Unassigned chore canceled")
		c.publish(events.EventChoreCanceled, "chore canceled", map[string]string{"chore_id": choreID})
		return nil
	}

	c.logger.Info().Str("chore_id", choreID).Str("sailor", sailorName).Msg("Cancel requested")
	c.publish(events.EventChoreCancelRequested, "chore cancel requested", map[string]string{
		"chore_id": choreID,
		"sailor":   sailorName,
	})

	c.postCancel(ctx, sailorName, choreID)
	return nil
}

// postCancel forwards a cancel to a sailor, best effort. Failures are
// logged only; the reconciliation loop finalizes via TTL.
func (c *Captain) postCancel(ctx context.Context, sailorName, choreID string) {
	sailor, ok := c.crew.Get(sailorName)
	if !ok {
		c.logger.Warn().Str("chore_id", choreID).Str("sailor", sailorName).Msg("Cancel target sailor not in crew")
		return
	}
	if err := c.sailors.Cancel(ctx, sailor, choreID); err != nil {
		c.logger.Warn().Err(err).Str("chore_id", choreID).Str("sailor", sailorName).Msg("Cancel POST failed")
	}
}

// Consult answers GET /user_consult. With all set every chore is
// returned; otherwise the listing is scoped to the given owner, or to
// the captain's own uid when none is given.
func (c *Captain) Consult(owner string, all bool) []types.Chore {
	if !all && owner == "" {
		owner = strconv.Itoa(os.Getuid())
	}

	var out []types.Chore
	for _, chore := range c.chores.Load() {
		if !all && strconv.Itoa(int(chore.Owner)) != owner {
			continue
		}
		out = append(out, chore)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChoreID < out[j].ChoreID })
	return out
}

// ConsultOwner lists the chores of one numeric owner, for /me/chores.
func (c *Captain) ConsultOwner(owner int) []types.Chore {
	return c.Consult(strconv.Itoa(owner), false)
}
