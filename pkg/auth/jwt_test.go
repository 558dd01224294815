package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Minute, time.Hour)
	id := uuid.New()

	token, err := m.GenerateAccessToken(id, RoleTeacher, "t@example.com")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	actor, err := claims.Actor()
	require.NoError(t, err)
	assert.Equal(t, Actor{ID: id, Role: RoleTeacher}, actor)
}

func TestJWTManager_RejectsWrongSecret(t *testing.T) {
	token, err := NewJWTManager("a", time.Minute, time.Hour).GenerateAccessToken(uuid.New(), RoleStudent, "")
	require.NoError(t, err)

	_, err = NewJWTManager("b", time.Minute, time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestClaims_ActorRejectsSystemRole(t *testing.T) {
	c := &Claims{Sub: uuid.NewString(), Role: RoleSystem}
	_, err := c.Actor()
	assert.Error(t, err)
}
