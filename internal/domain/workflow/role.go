package workflow

// Role is a capability granted to an identity
type Role string

const (
	RoleSubmitter Role = "submitter"
	RoleManager   Role = "manager"
	RoleFinance   Role = "finance"
	RoleAdmin     Role = "admin"
	RoleDirector  Role = "director"
)

// RoleSet is the set of roles held by one identity
type RoleSet map[Role]bool

// NewRoleSet builds a RoleSet from a list, ignoring unknown names
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		switch r {
		case RoleSubmitter, RoleManager, RoleFinance, RoleAdmin, RoleDirector:
			set[r] = true
		}
	}
	return set
}

// Has reports whether the set contains r
func (s RoleSet) Has(r Role) bool {
	return s[r]
}

// Actor is everything the table needs to know about who is acting
type Actor struct {
	ID    string
	Roles RoleSet
	// IsOwner is true when the actor submitted the request
	IsOwner bool
	// ManagesSubmitter is true when the actor is the submitter's linked manager
	ManagesSubmitter bool
}

// Requirement describes who may take a row of the transition table
type Requirement int

const (
	// RequireSubmitterRole: actor holds the submitter role
	RequireSubmitterRole Requirement = iota + 1
	// RequireOwner: actor is the request's submitter
	RequireOwner
	// RequireManagerOfSubmitter: actor manages the submitter, or is admin
	RequireManagerOfSubmitter
	// RequireFinance: actor holds finance, or is admin
	RequireFinance
)

// Allows reports whether the actor satisfies the requirement
func (r Requirement) Allows(a Actor) bool {
	switch r {
	case RequireSubmitterRole:
		return a.Roles.Has(RoleSubmitter)
	case RequireOwner:
		return a.IsOwner
	case RequireManagerOfSubmitter:
		return a.ManagesSubmitter || a.Roles.Has(RoleAdmin)
	case RequireFinance:
		return a.Roles.Has(RoleFinance) || a.Roles.Has(RoleAdmin)
	default:
		return false
	}
}

// NeedsManagerLink reports whether evaluating r requires a manager lookup
func (r Requirement) NeedsManagerLink() bool {
	return r == RequireManagerOfSubmitter
}

func (r Requirement) String() string {
	switch r {
	case RequireSubmitterRole:
		return "submitter"
	case RequireOwner:
		return "owner"
	case RequireManagerOfSubmitter:
		return "manager_of_submitter"
	case RequireFinance:
		return "finance"
	default:
		return "unknown"
	}
}
