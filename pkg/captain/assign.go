package captain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/harborworks/flotilla/pkg/events"
	"github.com/harborworks/flotilla/pkg/metrics"
	"github.com/harborworks/flotilla/pkg/types"
)

// AssignPending runs one assignment pass: every unassigned pending
// chore is offered to the alive sailor with the most headroom left
// after the allocation, the reservation is persisted optimistically,
// and the launch is dispatched. A failed dispatch rolls the
// reservation back and returns the chore to pending.
//
// Passes are serialized; submission, registration, heartbeat-driven
// wakeups and the reconciliation loop may all trigger one
// concurrently.
func (c *Captain) AssignPending(ctx context.Context) {
	c.assignMu.Lock()
	defer c.assignMu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AssignmentPassDuration)

	now := time.Now().Unix()
	crew := c.crew.Load()

	var pending []types.Chore
	for _, chore := range c.chores.Load() {
		if chore.Sailor == "" && (chore.Status == types.ChoreStatusPending || chore.Status == "") {
			pending = append(pending, chore)
		}
	}
	// oldest chore first: ids are issued monotonically
	sort.Slice(pending, func(i, j int) bool { return pending[i].ChoreID < pending[j].ChoreID })

	for _, chore := range pending {
		name := pickSailor(crew, chore, now)
		if name == "" {
			c.keepPending(chore.ChoreID, types.ReasonNoAvailableSailor)
			continue
		}

		sailor, err := c.reserve(name, chore)
		if err != nil {
			c.logger.Debug().Err(err).Str("chore_id", chore.ChoreID).Str("sailor", name).Msg("Reservation lost")
			c.keepPending(chore.ChoreID, types.ReasonNoAvailableSailor)
			continue
		}
		crew[name] = sailor

		if err := c.dispatch(ctx, sailor, chore); err != nil {
			c.logger.Warn().Err(err).Str("chore_id", chore.ChoreID).Str("sailor", name).Msg("Dispatch failed, rolling back")
			metrics.AssignmentRollbacksTotal.Inc()
			c.publish(events.EventSailorUnreachable, "sailor unreachable", map[string]string{
				"sailor":   name,
				"chore_id": chore.ChoreID,
			})
			crew[name] = c.rollback(name, chore)
			continue
		}

		metrics.AssignmentsTotal.Inc()
		c.logger.Info().Str("chore_id", chore.ChoreID).Str("sailor", name).Msg("Chore assigned")
		c.publish(events.EventChoreAssigned, "chore assigned", map[string]string{
			"chore_id": chore.ChoreID,
			"sailor":   name,
		})
	}
}

// pickSailor selects the candidate maximizing the headroom left after
// the allocation, (free_cpu-need_cpu)+(free_gpu-need_gpu). Ties go to
// the lexicographically smallest name so placement is deterministic.
func pickSailor(crew map[string]types.Sailor, chore types.Chore, now int64) string {
	needCPU := chore.Ressources.NeedCPUs()
	needGPU := chore.Ressources.NeedGPUs()

	best := ""
	bestHeadroom := -1
	for name, sailor := range crew {
		if !sailor.Alive(now) {
			continue
		}
		if chore.Service != "" && !sailor.HasService(chore.Service) {
			continue
		}
		freeCPU := sailor.FreeCPUs()
		freeGPU := sailor.FreeGPUs()
		if freeCPU < needCPU || freeGPU < needGPU {
			continue
		}
		headroom := (freeCPU - needCPU) + (freeGPU - needGPU)
		if headroom > bestHeadroom || (headroom == bestHeadroom && name < best) {
			best = name
			bestHeadroom = headroom
		}
	}
	return best
}

// reserve increments the sailor's used counters and marks the chore
// assigned, persisting crew first then chores. The capacity check is
// redone under the crew lock; the chore's eligibility is redone under
// the chores lock (a cancel may have raced the pass).
func (c *Captain) reserve(name string, chore types.Chore) (types.Sailor, error) {
	needCPU := chore.Ressources.NeedCPUs()
	needGPU := chore.Ressources.NeedGPUs()
	now := time.Now().Unix()

	var reserved types.Sailor
	err := c.crew.Update(func(crew map[string]types.Sailor) (bool, error) {
		sailor, ok := crew[name]
		if !ok {
			return false, fmt.Errorf("sailor %s disappeared", name)
		}
		if sailor.FreeCPUs() < needCPU || sailor.FreeGPUs() < needGPU {
			return false, fmt.Errorf("sailor %s no longer has capacity", name)
		}
		sailor.UsedCPUs += needCPU
		sailor.UsedGPUs += needGPU
		sailor.Status = types.SailorStatusBusy
		crew[name] = sailor
		reserved = sailor
		return true, nil
	})
	if err != nil {
		return types.Sailor{}, err
	}

	err = c.chores.Update(func(chores map[string]types.Chore) (bool, error) {
		cur, ok := chores[chore.ChoreID]
		if !ok || cur.Sailor != "" || cur.Status != types.ChoreStatusPending {
			return false, fmt.Errorf("chore %s is no longer pending", chore.ChoreID)
		}
		cur.Sailor = name
		cur.Status = types.ChoreStatusAssigned
		cur.AssignedAt = now
		cur.Reason = ""
		chores[chore.ChoreID] = cur
		return true, nil
	})
	if err != nil {
		c.rollbackCrew(name, chore)
		return types.Sailor{}, err
	}
	return reserved, nil
}

func (c *Captain) dispatch(ctx context.Context, sailor types.Sailor, chore types.Chore) error {
	return c.sailors.Launch(ctx, sailor, types.LaunchRequest{
		ChoreID:    chore.ChoreID,
		Script:     chore.Script,
		Ressources: chore.Ressources,
		Owner:      chore.Owner,
	})
}

// rollback undoes a reservation after a failed dispatch: the crew
// counters are released and the chore returns to pending with the
// unreachable reason.
func (c *Captain) rollback(name string, chore types.Chore) types.Sailor {
	sailor := c.rollbackCrew(name, chore)

	err := c.chores.Update(func(chores map[string]types.Chore) (bool, error) {
		cur, ok := chores[chore.ChoreID]
		if !ok || cur.Sailor != name || cur.Status != types.ChoreStatusAssigned {
			return false, nil
		}
		cur.Sailor = ""
		cur.Status = types.ChoreStatusPending
		cur.AssignedAt = 0
		cur.Reason = types.ReasonSailorUnreachable
		chores[chore.ChoreID] = cur
		return true, nil
	})
	if err != nil {
		c.logger.Error().Err(err).Str("chore_id", chore.ChoreID).Msg("Failed to return chore to pending")
	}
	return sailor
}

func (c *Captain) rollbackCrew(name string, chore types.Chore) types.Sailor {
	var rolled types.Sailor
	err := c.crew.Update(func(crew map[string]types.Sailor) (bool, error) {
		sailor, ok := crew[name]
		if !ok {
			return false, nil
		}
		sailor.UsedCPUs -= chore.Ressources.NeedCPUs()
		if sailor.UsedCPUs < 0 {
			sailor.UsedCPUs = 0
		}
		sailor.UsedGPUs -= chore.Ressources.NeedGPUs()
		if sailor.UsedGPUs < 0 {
			sailor.UsedGPUs = 0
		}
		sailor.Status = sailor.UsageStatus()
		crew[name] = sailor
		rolled = sailor
		return true, nil
	})
	if err != nil {
		c.logger.Error().Err(err).Str("sailor", name).Msg("Failed to roll back reservation")
	}
	return rolled
}

// keepPending refreshes a stranded chore's reason, idempotently.
func (c *Captain) keepPending(choreID, reason string) {
	err := c.chores.Update(func(chores map[string]types.Chore) (bool, error) {
		cur, ok := chores[choreID]
		if !ok || cur.Status != types.ChoreStatusPending || cur.Reason == reason {
			return false, nil
		}
		cur.Reason = reason
		chores[choreID] = cur
		return true, nil
	})
	if err != nil {
		c.logger.Error().Err(err).Str("chore_id", choreID).Msg("Failed to update pending reason")
	}
}
