package auth

import (
	"context"
	"strings"
)

// EnsureOwner checks that the verified caller is the owner of the
// resource identified by ownerEmail. There are no roles or delegated
// permissions, only exact identity equality; any mismatch fails closed.
func EnsureOwner(ctx context.Context, ownerEmail string) error {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return ErrUnauthorized
	}
	if !strings.EqualFold(strings.TrimSpace(ownerEmail), id.Email) {
		return ErrForbidden
	}
	return nil
}
