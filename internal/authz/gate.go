package authz

import (
	"context"
	stderrors "errors"

	"github.com/jmgilman/go/errors"
)

// ErrUnauthorized is returned when a caller lacks the capability for an operation.
var ErrUnauthorized = stderrors.New("unauthorized")

// Gate checks administrative capability before an entity manager touches state.
type Gate interface {
	RequireAdmin(ctx context.Context, caller Caller, resourceType string) error
	Require(ctx context.Context, caller Caller, action, resourceType string) error
}

type gate struct {
	authorizer Authorizer
}

// NewGate creates a Gate evaluating requests with authorizer.
func NewGate(authorizer Authorizer) Gate {
	return &gate{authorizer: authorizer}
}

// NewDefaultGate creates a Gate backed by the built-in Cedar policies.
func NewDefaultGate() Gate {
	authorizer, err := NewCedarAuthorizer(nil)
	if err != nil {
		// built-in policies always parse
		panic(err)
	}
	return NewGate(authorizer)
}

func (g *gate) RequireAdmin(ctx context.Context, caller Caller, resourceType string) error {
	return g.Require(ctx, caller, ActionAdmin, resourceType)
}

func (g *gate) Require(ctx context.Context, caller Caller, action, resourceType string) error {
	decision, err := g.authorizer.Authorize(ctx, Request{
		Subject:        caller.Subject,
		GrantedActions: caller.GrantedActions,
		Action:         action,
		ResourceType:   resourceType,
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "authorization evaluation failed")
	}
	if decision.Allowed {
		return nil
	}

	if caller.IsAnonymous() {
		return errors.Wrapf(ErrUnauthorized, errors.CodeUnauthorized,
			"authentication is required to %s %s", action, resourceType)
	}
	return errors.Wrapf(ErrUnauthorized, errors.CodeForbidden,
		"%s is not permitted to %s %s", caller.Subject, action, resourceType)
}
