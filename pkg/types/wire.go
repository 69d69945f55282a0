package types

// Wire bodies for the captain and sailor HTTP surfaces. Field names are the
// wire contract; keep them stable.

// OKResponse is the generic success body.
type OKResponse struct {
	OK bool `json:"ok"`
}

// ErrorResponse is the generic failure body.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// IndexResponse answers GET / on the captain.
type IndexResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// PreregRequest is the body of POST /prereg.
type PreregRequest struct {
	Name     string     `json:"name"`
	IP       string     `json:"ip"`
	Services StringList `json:"services,omitempty"`
	MaxTime  string     `json:"max_time,omitempty"`
}

// RegisterRequest is the body of POST /sailor_register.
type RegisterRequest struct {
	Name string  `json:"name"`
	IP   string  `json:"ip"`
	Port FlexInt `json:"port,omitempty"`
	CPUs FlexInt `json:"cpus"`
	GPUs []GPU   `json:"gpus"`
	RAM  FlexInt `json:"ram"`
}

// AwakeRequest is the body of POST /sailor_awake.
type AwakeRequest struct {
	Name string `json:"name"`
}

// ReportRequest is the body of POST /sailor_report.
type ReportRequest struct {
	Name     string       `json:"name"`
	ChoreID  string       `json:"chore_id"`
	Status   ReportStatus `json:"status"`
	ExitCode *int         `json:"exit_code,omitempty"`
}

// SubmitChoreRequest is the body of POST /user_chore. Resource demands may
// arrive nested under ressources or as flat cpus/gpus fields.
type SubmitChoreRequest struct {
	Script     string     `json:"script"`
	Service    string     `json:"service,omitempty"`
	Ressources *Resources `json:"ressources,omitempty"`
	CPUs       *FlexInt   `json:"cpus,omitempty"`
	GPUs       *FlexInt   `json:"gpus,omitempty"`
	Owner      *FlexInt   `json:"owner,omitempty"`
}

// Demand normalizes the two accepted encodings to count form.
// Defaults: cpus=1, gpus=0.
func (r *SubmitChoreRequest) Demand() Resources {
	cpus, gpus := 1, 0
	if r.Ressources != nil {
		cpus = r.Ressources.NeedCPUs()
		gpus = r.Ressources.NeedGPUs()
	} else {
		if r.CPUs != nil {
			cpus = int(*r.CPUs)
		}
		if r.GPUs != nil {
			gpus = int(*r.GPUs)
		}
	}
	if cpus < 1 {
		cpus = 1
	}
	if gpus < 0 {
		gpus = 0
	}
	return NewResources(cpus, gpus)
}

// SubmitChoreResponse answers POST /user_chore.
type SubmitChoreResponse struct {
	OK      bool   `json:"ok"`
	ChoreID string `json:"chore_id"`
}

// CancelRequest is the body of POST /user_cancel, /me/cancel and the sailor
// cancel endpoints (which ignore reason).
type CancelRequest struct {
	ChoreID string `json:"chore_id"`
	Reason  string `json:"reason,omitempty"`
}

// UpsertUserRequest is the body of POST /user_upsert. Pointer fields merge:
// absent fields keep their stored value.
type UpsertUserRequest struct {
	UID         UserID   `json:"uid"`
	Name        *string  `json:"name,omitempty"`
	TimeLimit   *string  `json:"time_limit,omitempty"`
	ChoresLimit *FlexInt `json:"chores_limit,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse answers POST /login.
type LoginResponse struct {
	OK       bool   `json:"ok"`
	Token    string `json:"token"`
	UID      int    `json:"uid"`
	Username string `json:"username"`
}

// CrewMember is one element of the GET /crew response: the stored record
// enriched with the derived status and heartbeat age.
type CrewMember struct {
	Sailor
	DerivedStatus SailorStatus `json:"derived_status"`
	SeenAgo       *int64       `json:"seen_ago"`
}

// LaunchRequest is the body of POST /captain_request on the sailor.
type LaunchRequest struct {
	ChoreID    string    `json:"chore_id"`
	Script     string    `json:"script"`
	Ressources Resources `json:"ressources"`
	Owner      FlexInt   `json:"owner"`
	WD         string    `json:"wd,omitempty"`
	Out        string    `json:"out,omitempty"`
}
