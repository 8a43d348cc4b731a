package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transcaribe/tracking_core/internal/models"
)

func TestIssueAndParseToken(t *testing.T) {
	cfg := TokenConfig{Secret: []byte("test-secret"), TTL: time.Hour}
	user := models.User{ID: 7, Username: "maria"}

	token, err := IssueToken(cfg, user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subject, err := ParseToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "maria", subject)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	cfg := TokenConfig{Secret: []byte("test-secret"), TTL: time.Hour}
	token, err := IssueToken(cfg, models.User{ID: 7, Username: "maria"})
	require.NoError(t, err)

	_, err = ParseToken(TokenConfig{Secret: []byte("other-secret"), TTL: time.Hour}, token)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	cfg := TokenConfig{Secret: []byte("test-secret"), TTL: -time.Minute}
	token, err := IssueToken(cfg, models.User{ID: 7, Username: "maria"})
	require.NoError(t, err)

	_, err = ParseToken(cfg, token)
	assert.Error(t, err)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	cfg := TokenConfig{Secret: []byte("test-secret"), TTL: time.Hour}
	_, err := ParseToken(cfg, "not-a-token")
	assert.Error(t, err)
}
