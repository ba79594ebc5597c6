package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestDefaultUsers(t *testing.T) {
	users, err := DefaultUsers(bcrypt.MinCost)
	require.NoError(t, err)
	require.Len(t, users, len(Seeds))

	for i, u := range users {
		seed := Seeds[i]
		assert.Equal(t, seed.ID, u.ID)
		assert.Equal(t, seed.Username, u.Username)
		assert.Equal(t, seed.Email, u.Email)
		assert.NoError(t, bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(seed.Password)))
		assert.NotContains(t, string(u.PasswordHash), seed.Password)
	}
}

func TestDefaultUsers_InvalidCostFallsBack(t *testing.T) {
	users, err := DefaultUsers(0)
	require.NoError(t, err)

	cost, err := bcrypt.Cost(users[0].PasswordHash)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}
