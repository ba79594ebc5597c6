// Package repository holds what the user repository adapters share: the
// seeded user set and the health check name.
package repository

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/jsamuelsen/tracecontext-service/internal/domain"
)

// HealthCheckName is the name both user repositories register under.
const HealthCheckName = "user-repository"

// SeedUser is a plaintext seed record.
type SeedUser struct {
	ID       int64
	Username string
	Email    string
	Password string
}

// Seeds are the demo users every repository starts with.
var Seeds = []SeedUser{
	{ID: 1, Username: "alice", Email: "alice@example.com", Password: "password123"},
	{ID: 2, Username: "bob", Email: "bob@example.com", Password: "password456"},
	{ID: 3, Username: "charlie", Email: "charlie@example.com", Password: "password789"},
}

// DefaultUsers hashes Seeds with the given bcrypt cost. A cost outside the
// bcrypt range falls back to bcrypt.DefaultCost.
func DefaultUsers(cost int) ([]*domain.User, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	users := make([]*domain.User, 0, len(Seeds))
	for _, s := range Seeds {
		hash, err := bcrypt.GenerateFromPassword([]byte(s.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("hashing password for %s: %w", s.Username, err)
		}
		users = append(users, &domain.User{
			ID:           s.ID,
			Username:     s.Username,
			Email:        s.Email,
			PasswordHash: hash,
		})
	}
	return users, nil
}
