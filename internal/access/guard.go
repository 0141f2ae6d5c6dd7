package access

// Section landing paths used as redirect targets.
const (
	ClientDashboardPath = "/dashboard"
	StaffDashboardPath  = "/staff/dashboard"
	LoginPath           = "/auth/login"
)

// Decision is the outcome of a guard. The concrete variants are Wait, Deny
// and Allow.
type Decision interface {
	isDecision()
	String() string
}

// Wait means resolution is still in flight; render a waiting indicator.
type Wait struct{}

// Deny means the principal belongs to the other section.
type Deny struct {
	Redirect string
}

// Allow means the protected content may render.
type Allow struct{}

func (Wait) isDecision()  {}
func (Deny) isDecision()  {}
func (Allow) isDecision() {}

func (Wait) String() string  { return "wait" }
func (Deny) String() string  { return "deny" }
func (Allow) String() string { return "allow" }

// Guard decides whether a user type may enter a section.
type Guard interface {
	Name() string
	Decide(UserType) Decision
}

// ClientGuard protects client-facing sections.
type ClientGuard struct{}

// Name identifies the guard in logs and metrics.
func (ClientGuard) Name() string { return "client" }

// Decide implements Guard.
func (ClientGuard) Decide(ut UserType) Decision {
	switch ut.(type) {
	case Loading:
		return Wait{}
	case Staff:
		return Deny{Redirect: StaffDashboardPath}
	case Client:
		return Allow{}
	default:
		return Deny{Redirect: LoginPath}
	}
}

// StaffGuard protects internal administration sections.
type StaffGuard struct{}

// Name identifies the guard in logs and metrics.
func (StaffGuard) Name() string { return "staff" }

// Decide implements Guard.
func (StaffGuard) Decide(ut UserType) Decision {
	switch ut.(type) {
	case Loading:
		return Wait{}
	case Staff:
		return Allow{}
	case Client:
		return Deny{Redirect: ClientDashboardPath}
	default:
		return Deny{Redirect: LoginPath}
	}
}

var (
	_ Guard = ClientGuard{}
	_ Guard = StaffGuard{}
)
