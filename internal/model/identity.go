package model

// Identity is the authenticated caller of one request.  It is built from
// the access token by the JWT middleware and handed to services, which
// check capabilities on it instead of reading the user row again.
type Identity struct {
    UserID uint64
    Kind   AccountKind
}

// CanReserve reports whether the caller may hold seats.  Business accounts
// publish events and never reserve.
func (i Identity) CanReserve() bool { return i.Kind == KindRegular }

// CanPublish reports whether the caller may create and edit events.
func (i Identity) CanPublish() bool { return i.Kind == KindBusiness }
