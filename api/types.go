package api

import (
	"context"

	"kata-board/domain"
)

// Projects is the project management surface used by the handlers.
type Projects interface {
	List(ctx context.Context, actor domain.Actor, search string) ([]domain.Project, error)
	Get(ctx context.Context, actor domain.Actor, key string) (domain.Project, error)
	Create(ctx context.Context, actor domain.Actor, p domain.Project) (domain.Project, error)
	Update(ctx context.Context, actor domain.Actor, key string, upd domain.ProjectUpdate) (domain.Project, error)
	Delete(ctx context.Context, actor domain.Actor, key string) error
}

// Boards projects boards and applies card moves.
type Boards interface {
	Board(ctx context.Context, actor domain.Actor, key string) (domain.Board, error)
	Move(ctx context.Context, actor domain.Actor, key string, ev domain.MoveEvent) (domain.MoveResult, error)
}

// Users is the account administration surface.
type Users interface {
	List(ctx context.Context, actor domain.Actor, search string) ([]domain.User, error)
	Create(ctx context.Context, actor domain.Actor, nu domain.NewUser) (domain.User, error)
	Update(ctx context.Context, actor domain.Actor, cc string, upd domain.UserUpdate) (domain.User, error)
	Delete(ctx context.Context, actor domain.Actor, cc string) error
}

// Services groups the domain services exposed over HTTP.
type Services struct {
	Projects Projects
	Boards   Boards
	Users    Users
}

// Authenticator is implemented by types able to resolve the caller from headers.
type Authenticator interface {
	IdentityFromAuthHeader(string) (domain.Actor, error)
}

// Deduper prevents processing of duplicate move requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, scope, key string) (bool, error)
	// Remove deletes a previously added key so the client may retry.
	Remove(ctx context.Context, scope, key string) error
}

// envelope is the body of every JSON response.
type envelope struct {
	Data    any    `json:"data"`
	Message string `json:"message"`
}

type moveResponse struct {
	Moved   bool            `json:"moved"`
	Project *domain.Project `json:"project,omitempty"`
}
