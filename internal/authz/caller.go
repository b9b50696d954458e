package authz

import (
	"context"
	"slices"

	"github.com/scmgo/scm-server/internal/config"
)

// Caller is the identity on whose behalf an operation runs.
type Caller struct {
	Subject        string
	GrantedActions []string
}

// Anonymous returns the unauthenticated caller holding actions.
func Anonymous(actions ...string) Caller {
	return Caller{Subject: config.AnonymousSubject, GrantedActions: actions}
}

// System returns a caller holding every action, for internal maintenance tasks.
func System() Caller {
	return Caller{
		Subject:        "system",
		GrantedActions: []string{config.ActionRead, config.ActionWrite, config.ActionAdmin},
	}
}

// IsAnonymous reports whether the caller did not authenticate.
func (c Caller) IsAnonymous() bool {
	return c.Subject == "" || c.Subject == config.AnonymousSubject
}

// Has reports whether action was granted to the caller.
func (c Caller) Has(action string) bool {
	return slices.Contains(c.GrantedActions, action)
}

type callerKey struct{}

// WithCaller stores caller in ctx.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller stored by WithCaller.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(Caller)
	return caller, ok
}
