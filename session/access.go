package session

// Requirement is what a protected area asks of the session.
type Requirement int

const (
	// RequireUser admits any signed-in identity.
	RequireUser Requirement = iota
	// RequireAdmin admits admins and store admins.
	RequireAdmin
)

// Access is the outcome of an authorization check.
type Access int

const (
	// AccessPending means the session is still resolving.
	AccessPending Access = iota
	// AccessLogin means no one is signed in.
	AccessLogin
	// AccessDenied means the identity lacks the required role.
	AccessDenied
	// AccessGranted means the area may be entered.
	AccessGranted
)

func (a Access) String() string {
	switch a {
	case AccessPending:
		return "pending"
	case AccessLogin:
		return "login"
	case AccessDenied:
		return "denied"
	case AccessGranted:
		return "granted"
	default:
		return "unknown"
	}
}

// Authorize decides whether s may enter an area guarded by req.
func Authorize(s Session, req Requirement) Access {
	if !s.Status.Terminal() {
		return AccessPending
	}
	if s.Identity == nil {
		return AccessLogin
	}
	if req == RequireAdmin && !s.Identity.Role.IsStaff() {
		return AccessDenied
	}
	return AccessGranted
}
