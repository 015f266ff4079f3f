package auth

import "errors"

// ErrNotOwner is returned by AssertOwns when the caller does not own the resource.
// Callers report it to clients as "not found" so the resource's existence stays hidden.
var ErrNotOwner = errors.New("resource is owned by another user")

// AssertOwns checks that the resource owned by ownerID belongs to the caller.
func AssertOwns(identity Identity, ownerID string) error {
	if identity.UserID == "" || ownerID != identity.UserID {
		return ErrNotOwner
	}
	return nil
}
