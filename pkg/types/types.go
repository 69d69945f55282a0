package types

// AliveThresholdSeconds is the heartbeat staleness bound: a sailor whose
// last_seen is older than this is reported down and receives no work.
const AliveThresholdSeconds int64 = 10

// SailorStatus represents the advertised state of a sailor
type SailorStatus string

const (
	SailorStatusDown SailorStatus = "down"
	SailorStatusIdle SailorStatus = "idle"
	SailorStatusBusy SailorStatus = "busy"
	SailorStatusFull SailorStatus = "full"
)

// ChoreStatus represents the lifecycle state of a chore
type ChoreStatus string

const (
	ChoreStatusPending         ChoreStatus = "pending"
	ChoreStatusAssigned        ChoreStatus = "assigned"
	ChoreStatusRunning         ChoreStatus = "running"
	ChoreStatusCancelRequested ChoreStatus = "cancel_requested"
	ChoreStatusDone            ChoreStatus = "done"
	ChoreStatusFailed          ChoreStatus = "failed"
	ChoreStatusCanceled        ChoreStatus = "canceled"
)

// ReportStatus is the wire status a sailor posts to /sailor_report
type ReportStatus string

const (
	ReportRunning  ReportStatus = "Running"
	ReportDone     ReportStatus = "Done"
	ReportFailed   ReportStatus = "Failed"
	ReportCanceled ReportStatus = "Canceled"
)

// Terminal reports end a chore; Running does not.
func (r ReportStatus) Terminal() bool {
	return r == ReportDone || r == ReportFailed || r == ReportCanceled
}

// ChoreStatus lowers the wire status to its stored form.
func (r ReportStatus) ChoreStatus() ChoreStatus {
	switch r {
	case ReportDone:
		return ChoreStatusDone
	case ReportFailed:
		return ChoreStatusFailed
	case ReportCanceled:
		return ChoreStatusCanceled
	default:
		return ChoreStatusRunning
	}
}

// CancelSource records which path decided a cancellation
type CancelSource string

const (
	CancelSourceUser          CancelSource = "user"
	CancelSourceSailorMaxTime CancelSource = "sailor_max_time"
	CancelSourceUserTimeLimit CancelSource = "user_time_limit"
	CancelSourceTimeout       CancelSource = "timeout"
)

// Canonical reason strings
const (
	ReasonNoAvailableSailor     = "no available sailor"
	ReasonSailorUnreachable     = "sailor unreachable"
	ReasonExceededTimeLimit     = "exceeded time limit"
	ReasonExceededUserTimeLimit = "exceeded user time limit"
	ReasonCanceledByUser        = "canceled by user"
	ReasonCanceledByTimeout     = "canceled by timeout"
)

// MapCancelReason returns the canonical reason string for a cancel source.
// Sources without a canonical mapping yield the given fallback.
func MapCancelReason(src CancelSource, fallback string) string {
	switch src {
	case CancelSourceSailorMaxTime:
		return ReasonExceededTimeLimit
	case CancelSourceUserTimeLimit:
		return ReasonExceededUserTimeLimit
	case CancelSourceUser:
		return ReasonCanceledByUser
	default:
		return fallback
	}
}

// GPU describes one device advertised by a sailor
type GPU struct {
	Type string `json:"type"`
	VRAM int64  `json:"vram"`
}

// Sailor is a worker node record, keyed by unique name in the crew store.
type Sailor struct {
	Name     string       `json:"name"`
	IP       string       `json:"ip"`
	Port     int          `json:"port,omitempty"`
	Services []string     `json:"services"`
	CPUs     int          `json:"cpus"`
	GPUs     []GPU        `json:"gpus"`
	RAM      int64        `json:"ram"`
	UsedCPUs int          `json:"used_cpus"`
	UsedGPUs int          `json:"used_gpus"`
	LastSeen int64        `json:"last_seen"`
	Status   SailorStatus `json:"status"`
	MaxTime  string       `json:"max_time,omitempty"`
}

// FreeCPUs returns the unreserved CPU count, never negative.
func (s *Sailor) FreeCPUs() int {
	if free := s.CPUs - s.UsedCPUs; free > 0 {
		return free
	}
	return 0
}

// FreeGPUs returns the unreserved GPU count, never negative.
func (s *Sailor) FreeGPUs() int {
	if free := len(s.GPUs) - s.UsedGPUs; free > 0 {
		return free
	}
	return 0
}

// HasService reports whether the sailor advertises the given service tag.
func (s *Sailor) HasService(service string) bool {
	for _, svc := range s.Services {
		if svc == service {
			return true
		}
	}
	return false
}

// UsageStatus derives full/busy/idle from the used counters alone.
// CPU usage drives the distinction; GPU-only usage counts as busy.
func (s *Sailor) UsageStatus() SailorStatus {
	if s.CPUs > 0 && s.UsedCPUs >= s.CPUs {
		return SailorStatusFull
	}
	if s.UsedCPUs > 0 || s.UsedGPUs > 0 {
		return SailorStatusBusy
	}
	return SailorStatusIdle
}

// DerivedStatus is UsageStatus overridden by heartbeat staleness.
func (s *Sailor) DerivedStatus(now int64) SailorStatus {
	if now-s.LastSeen > AliveThresholdSeconds {
		return SailorStatusDown
	}
	return s.UsageStatus()
}

// Alive reports whether the sailor heartbeated within the staleness bound.
func (s *Sailor) Alive(now int64) bool {
	return now-s.LastSeen <= AliveThresholdSeconds
}

// Resources is a chore's CPU/GPU request. The gpus field carries either a
// count or an explicit device-index list on the wire; the captain accounts
// by count, the sailor expands to indices.
type Resources struct {
	CPUs FlexInt `json:"cpus"`
	GPUs GPUSpec `json:"gpus"`
}

// NewResources builds a normalized count-form request.
func NewResources(cpus, gpus int) Resources {
	return Resources{CPUs: FlexInt(cpus), GPUs: GPUCount(gpus)}
}

// NeedCPUs is the CPU demand used for accounting; at least 1.
func (r Resources) NeedCPUs() int {
	if n := int(r.CPUs); n > 1 {
		return n
	}
	return 1
}

// NeedGPUs is the GPU demand used for accounting; never negative.
func (r Resources) NeedGPUs() int {
	if n := r.GPUs.Count(); n > 0 {
		return n
	}
	return 0
}

// Chore is one script-execution unit, keyed by unique chore_id.
type Chore struct {
	ChoreID           string       `json:"chore_id"`
	Script            string       `json:"script"`
	Service           string       `json:"service,omitempty"`
	Ressources        Resources    `json:"ressources"`
	Sailor            string       `json:"sailor,omitempty"`
	Owner             FlexInt      `json:"owner"`
	Status            ChoreStatus  `json:"status"`
	Start             int64        `json:"start"`
	AssignedAt        int64        `json:"assigned_at,omitempty"`
	RunStart          int64        `json:"run_start,omitempty"`
	CancelRequestedAt int64        `json:"cancel_requested_at,omitempty"`
	End               int64        `json:"end,omitempty"`
	ExitCode          *int         `json:"exit_code,omitempty"`
	Reason            string       `json:"reason,omitempty"`
	CancelSource      CancelSource `json:"cancel_source,omitempty"`
}

// IsTerminal reports whether the chore reached done/failed/canceled.
// The historical double-l spelling is tolerated on ingest.
func (c *Chore) IsTerminal() bool {
	switch c.Status {
	case ChoreStatusDone, ChoreStatusFailed, ChoreStatusCanceled, "cancelled":
		return true
	}
	return false
}

// IsActive reports whether the chore occupies a user's chores_limit slot.
func (c *Chore) IsActive() bool {
	switch c.Status {
	case ChoreStatusPending, ChoreStatusAssigned, ChoreStatusRunning, ChoreStatusCancelRequested:
		return true
	}
	return false
}

// T0 is the timestamp time-budget math counts from: run_start when known,
// else assigned_at, else start, else the given fallback.
func (c *Chore) T0(fallback int64) int64 {
	switch {
	case c.RunStart > 0:
		return c.RunStart
	case c.AssignedAt > 0:
		return c.AssignedAt
	case c.Start > 0:
		return c.Start
	}
	return fallback
}

// User is a per-uid policy record, keyed by the decimal uid string.
type User struct {
	UID         string  `json:"uid"`
	Name        string  `json:"name,omitempty"`
	TimeLimit   string  `json:"time_limit,omitempty"`
	ChoresLimit FlexInt `json:"chores_limit,omitempty"`
	Notes       string  `json:"notes,omitempty"`
}

// RunningChore is one entry of the sailor's persisted running table.
type RunningChore struct {
	ChoreID         string  `json:"chore_id"`
	PID             int     `json:"pid"`
	Start           int64   `json:"start"`
	CancelRequested bool    `json:"cancel_requested"`
	Owner           FlexInt `json:"owner"`
	Out             string  `json:"out,omitempty"`
}

// ServeFlag is the captain's discovery file, written on serve and removed
// on shutdown.
type ServeFlag struct {
	Port      int   `json:"port"`
	PID       int   `json:"pid"`
	StartedAt int64 `json:"started_at"`
}
