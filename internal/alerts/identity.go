package alerts

import "context"

// Identity is the authenticated user as asserted by the identity provider.
type Identity struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
	RollNumber string `json:"roll_number,omitempty"`
	UserType   string `json:"user_type,omitempty"`
}

type identityKey struct{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity on ctx. ok is false when there is none or it
// has no user id.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, false
	}
	return id, true
}
