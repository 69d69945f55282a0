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

// Prereg adds a sailor to the roster in status down with zeroed usage.
// Preregistration is the admission gate: register calls for unknown
// names are refused.
func (c *Captain) Prereg(req types.PreregRequest) error {
	if req.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if req.IP == "" {
		return fmt.Errorf("%w: ip is required", ErrInvalid)
	}

	err := c.crew.Update(func(crew map[string]types.Sailor) (bool, error) {
		sailor := crew[req.Name]
		sailor.Name = req.Name
		sailor.IP = req.IP
		sailor.Services = req.Services
		sailor.MaxTime = req.MaxTime
		sailor.UsedCPUs = 0
		sailor.UsedGPUs = 0
		sailor.Status = types.SailorStatusDown
		crew[req.Name] = sailor
		return true, nil
	})
	if err != nil {
		return err
	}

	c.logger.Info().Str("sailor", req.Name).Str("ip", req.IP).Msg("Sailor preregistered")
	c.publish(events.EventSailorPreregistered, "sailor preregistered", map[string]string{"sailor": req.Name})
	return nil
}

// Register ingests a sailor's capacity announcement. The sailor must be
// preregistered. Used counters are re-derived from the chores store
// rather than reset, so a sailor restart cannot erase reservations the
// captain still holds against it. Triggers an assignment pass.
func (c *Captain) Register(ctx context.Context, req types.RegisterRequest) error {
	if req.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}

	usedCPUs, usedGPUs := c.reservedOn(req.Name)
	now := time.Now().Unix()

	err := c.crew.Update(func(crew map[string]types.Sailor) (bool, error) {
		sailor, ok := crew[req.Name]
		if !ok {
			return false, fmt.Errorf("%w: sailor %s is not preregistered", ErrForbidden, req.Name)
		}
		if req.IP != "" {
			sailor.IP = req.IP
		}
		if req.Port > 0 {
			sailor.Port = int(req.Port)
		}
		sailor.CPUs = int(req.CPUs)
		sailor.GPUs = req.GPUs
		sailor.RAM = int64(req.RAM)
		sailor.UsedCPUs = usedCPUs
		sailor.UsedGPUs = usedGPUs
		sailor.LastSeen = now
		sailor.Status = sailor.UsageStatus()
		crew[req.Name] = sailor
		return true, nil
	})
	if err != nil {
		return err
	}

	c.logger.Info().
		Str("sailor", req.Name).
		Int("cpus", int(req.CPUs)).
		Int("gpus", len(req.GPUs)).
		Msg("Sailor registered")
	c.publish(events.EventSailorRegistered, "sailor registered", map[string]string{"sailor": req.Name})

	c.AssignPending(ctx)
	return nil
}

// Awake ingests a heartbeat: bumps last_seen and re-derives the status
// from the used counters.
func (c *Captain) Awake(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}

	now := time.Now().Unix()
	return c.crew.Update(func(crew map[string]types.Sailor) (bool, error) {
		sailor, ok := crew[name]
		if !ok {
			return false, fmt.Errorf("%w: sailor %s is not preregistered", ErrForbidden, name)
		}
		if now > sailor.LastSeen {
			sailor.LastSeen = now
		}
		sailor.Status = sailor.UsageStatus()
		crew[name] = sailor
		return true, nil
	})
}

// Report ingests a chore status report from a sailor. Unknown chores are
// swallowed so a late or duplicate report is harmless. Terminal reports
// release the sailor's reservation and trigger an assignment pass.
func (c *Captain) Report(ctx context.Context, req types.ReportRequest) error {
	if req.ChoreID == "" {
		return fmt.Errorf("%w: chore_id is required", ErrInvalid)
	}

	if !req.Status.Terminal() {
		return c.reportRunning(req.ChoreID)
	}

	// Serialized so a duplicated terminal report cannot release the
	// reservation twice between the snapshot read and the write.
	c.reportMu.Lock()
	defer c.reportMu.Unlock()

	chore, ok := c.chores.Get(req.ChoreID)
	if !ok || chore.IsTerminal() {
		return nil
	}

	if chore.Sailor != "" {
		if err := c.releaseReservation(chore.Sailor, chore.Ressources); err != nil {
			c.logger.Error().Err(err).Str("chore_id", chore.ChoreID).Msg("Failed to release reservation")
		}
	}

	status := req.Status.ChoreStatus()
	now := time.Now().Unix()
	err := c.chores.Update(func(chores map[string]types.Chore) (bool, error) {
		cur, ok := chores[req.ChoreID]
		if !ok || cur.IsTerminal() {
			return false, nil
		}
		cur.Status = status
		cur.End = now
		cur.ExitCode = req.ExitCode
		if cur.Reason == "" {
			cur.Reason = types.MapCancelReason(cur.CancelSource, string(status))
		}
		chores[req.ChoreID] = cur
		return true, nil
	})
	if err != nil {
		return err
	}

	metrics.ReportsTotal.WithLabelValues(string(req.Status)).Inc()
	c.logger.Info().
		Str("chore_id", req.ChoreID).
		Str("status", string(status)).
		Str("sailor", chore.Sailor).
		Msg("Chore reached terminal state")
	c.publish(terminalEvent(status), "chore "+string(status), map[string]string{
		"chore_id": req.ChoreID,
		"sailor":   chore.Sailor,
	})

	c.AssignPending(ctx)
	return nil
}

func (c *Captain) reportRunning(choreID string) error {
	now := time.Now().Unix()
	var started bool
	err := c.chores.Update(func(chores map[string]types.Chore) (bool, error) {
		cur, ok := chores[choreID]
		if !ok || cur.IsTerminal() {
			return false, nil
		}
		// cancel_requested is stickier than running: the sailor's
		// Running report may race the cancel decision.
		if cur.Status != types.ChoreStatusCancelRequested {
			cur.Status = types.ChoreStatusRunning
		}
		if cur.RunStart == 0 {
			cur.RunStart = now
			started = true
		}
		chores[choreID] = cur
		return true, nil
	})
	if err != nil {
		return err
	}

	metrics.ReportsTotal.WithLabelValues(string(types.ReportRunning)).Inc()
	if started {
		c.publish(events.EventChoreRunning, "chore running", map[string]string{"chore_id": choreID})
	}
	return nil
}

// releaseReservation gives a chore's cpus/gpus back to its sailor,
// clamping at zero, and re-derives the sailor status.
func (c *Captain) releaseReservation(name string, res types.Resources) error {
	return c.crew.Update(func(crew map[string]types.Sailor) (bool, error) {
		sailor, ok := crew[name]
		if !ok {
			return false, nil
		}
		sailor.UsedCPUs -= res.NeedCPUs()
		if sailor.UsedCPUs < 0 {
			sailor.UsedCPUs = 0
		}
		sailor.UsedGPUs -= res.NeedGPUs()
		if sailor.UsedGPUs < 0 {
			sailor.UsedGPUs = 0
		}
		sailor.Status = sailor.UsageStatus()
		crew[name] = sailor
		return true, nil
	})
}

// reservedOn sums the resource requests of non-terminal chores assigned
// to the named sailor.
func (c *Captain) reservedOn(name string) (cpus, gpus int) {
	for _, chore := range c.chores.Load() {
		if chore.Sailor != name || chore.IsTerminal() {
			continue
		}
		cpus += chore.Ressources.NeedCPUs()
		gpus += chore.Ressources.NeedGPUs()
	}
	return cpus, gpus
}

// CrewList answers GET /crew: the roster enriched with derived status
// and heartbeat age, sorted by name.
func (c *Captain) CrewList() []types.CrewMember {
	now := time.Now().Unix()

	var members []types.CrewMember
	for _, sailor := range c.crew.Load() {
		member := types.CrewMember{Sailor: sailor, DerivedStatus: sailor.DerivedStatus(now)}
		if sailor.LastSeen > 0 {
			age := now - sailor.LastSeen
			member.SeenAgo = &age
		}
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
	return members
}

// ListUsers answers GET /users, sorted by uid.
func (c *Captain) ListUsers() []types.User {
	var users []types.User
	for _, user := range c.users.Load() {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UID < users[j].UID })
	return users
}

// UpsertUser merges the given fields into a user record; absent fields
// keep their stored value.
func (c *Captain) UpsertUser(req types.UpsertUserRequest) error {
	if req.UID == "" {
		return fmt.Errorf("%w: uid is required", ErrInvalid)
	}

	return c.users.Update(func(users map[string]types.User) (bool, error) {
		user := users[string(req.UID)]
		user.UID = string(req.UID)
		if req.Name != nil {
			user.Name = *req.Name
		}
		if req.TimeLimit != nil {
			user.TimeLimit = *req.TimeLimit
		}
		if req.ChoresLimit != nil {
			user.ChoresLimit = *req.ChoresLimit
		}
		if req.Notes != nil {
			user.Notes = *req.Notes
		}
		users[string(req.UID)] = user
		return true, nil
	})
}

func terminalEvent(status types.ChoreStatus) events.EventType {
	switch status {
	case types.ChoreStatusDone:
		return events.EventChoreDone
	case types.ChoreStatusFailed:
		return events.EventChoreFailed
	default:
		return events.EventChoreCanceled
	}
}
