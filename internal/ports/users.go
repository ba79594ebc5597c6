// Package ports defines the contracts between the application layer and
// the adapters that implement storage and infrastructure.
//
// Every method takes ctx first. Implementations log with ctx so their lines
// carry the trace id of the request they serve, and return domain errors.
package ports

import (
	"context"

	"github.com/jsamuelsen/tracecontext-service/internal/domain"
)

// UserRepository reads user accounts.
type UserRepository interface {
	// FindByID returns domain.ErrNotFound if no user has the id.
	FindByID(ctx context.Context, id int64) (*domain.User, error)

	// FindByUsername returns domain.ErrNotFound if no user has the name.
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
}

// UserService is the application API used by transport adapters.
type UserService interface {
	Authenticate(ctx context.Context, username, password string) (*domain.Session, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
}
