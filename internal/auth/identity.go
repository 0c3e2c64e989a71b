package auth

import (
	"context"

	"semaphore/posts/internal/model"
)

// Identity is the requester derived from a verified bearer token.
type Identity struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Role  model.Role `json:"role"`
	Email string     `json:"email,omitempty"`
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

// CanModify reports whether the requester may edit or delete the post: only
// its author or a teacher may.
func CanModify(identity Identity, post model.Post) bool {
	return identity.ID == post.Author || identity.Role == model.RoleTeacher
}

// HasRole reports whether role is in allowed. An empty allow-list admits any role.
func HasRole(role model.Role, allowed []model.Role) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, candidate := range allowed {
		if candidate == role {
			return true
		}
	}
	return false
}
