package domain

import "context"

type userDataKey struct{}

// WithUserData attaches data for a remote verifier to store with the
// identity it confirms.
func WithUserData(ctx context.Context, data interface{}) context.Context {
	return context.WithValue(ctx, userDataKey{}, data)
}

// UserData returns what WithUserData attached, or nil.
func UserData(ctx context.Context) interface{} {
	return ctx.Value(userDataKey{})
}
