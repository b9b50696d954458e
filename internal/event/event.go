// Package event provides the synchronous event bus that entity managers,
// the hook bridge and the authentication middleware publish to.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is anything published on the bus.
type Event interface {
	Topic() Topic
}

// Kind is the lifecycle phase of an entity event.
type Kind string

// Entity lifecycle kinds.
const (
	KindCreate Kind = "CREATE"
	KindModify Kind = "MODIFY"
	KindDelete Kind = "DELETE"
)

// EntityEvent is fired after a create, modify or delete was persisted.
type EntityEvent struct {
	ID         string
	Kind       Kind
	Source     Topic
	Entity     any
	OccurredAt time.Time
}

// NewEntityEvent creates an entity event for the collection topic.
func NewEntityEvent(source Topic, kind Kind, entity any) *EntityEvent {
	return &EntityEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		Source:     source,
		Entity:     entity,
		OccurredAt: time.Now().UTC(),
	}
}

// Topic implements Event.
func (e *EntityEvent) Topic() Topic {
	return e.Source
}

// HookEvent notifies listeners that a repository changed in its backend.
// It carries no diff data; listeners read the repository themselves.
type HookEvent struct {
	ID             string
	BackendKind    string
	RepositoryID   string
	RepositoryName string
	ChangeType     string
	Node           string
	// Handler names the backend that produced the notification.
	Handler    string
	OccurredAt time.Time
}

// NewHookEvent creates a hook event.
func NewHookEvent(backendKind, repositoryName, changeType, node string) *HookEvent {
	return &HookEvent{
		ID:             uuid.NewString(),
		BackendKind:    backendKind,
		RepositoryName: repositoryName,
		ChangeType:     changeType,
		Node:           node,
		Handler:        backendKind,
		OccurredAt:     time.Now().UTC(),
	}
}

// Topic implements Event.
func (*HookEvent) Topic() Topic {
	return TopicHook
}

// AuthenticationEvent is fired after a caller authenticated successfully.
type AuthenticationEvent struct {
	ID         string
	Subject    string
	Actions    []string
	OccurredAt time.Time
}

// NewAuthenticationEvent creates an authentication event.
func NewAuthenticationEvent(subject string, actions []string) *AuthenticationEvent {
	return &AuthenticationEvent{
		ID:         uuid.NewString(),
		Subject:    subject,
		Actions:    append([]string(nil), actions...),
		OccurredAt: time.Now().UTC(),
	}
}

// Topic implements Event.
func (*AuthenticationEvent) Topic() Topic {
	return TopicAuth
}
