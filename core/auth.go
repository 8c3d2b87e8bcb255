package core

// Actor is the resolved identity of the calling principal, as established by
// the auth layer. Services use it to reject students acting for students other
// than themselves; staff decisions are authoritative and bypass that check.
type Actor struct {
	Username string
	Staff    bool // teacher or admin
}

// ActsFor reports whether the actor may perform an action on behalf of the
// student with the given username.
func (a Actor) ActsFor(username string) bool {
	return a.Staff || a.Username == username
}
