package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"live-hub/domain"
)

func TestTokenDirectory_RoundTrip(t *testing.T) {
	req := require.New(t)
	directory := NewTokenDirectory("test-secret", 24*time.Hour)

	token, err := directory.GenerateToken("alice", time.Hour)
	req.NoError(err)

	identity, err := directory.LookupIdentityByToken(context.Background(), token)
	req.NoError(err)
	req.Equal(domain.Identity("alice"), identity)
}

func TestTokenDirectory_WrongSecret(t *testing.T) {
	req := require.New(t)
	issuerDir := NewTokenDirectory("secret-a", 24*time.Hour)
	verifierDir := NewTokenDirectory("secret-b", 24*time.Hour)

	token, err := issuerDir.GenerateToken("alice", time.Hour)
	req.NoError(err)

	_, err = verifierDir.LookupIdentityByToken(context.Background(), token)
	req.Error(err)
}

func TestTokenDirectory_Expired(t *testing.T) {
	req := require.New(t)
	directory := NewTokenDirectory("test-secret", 24*time.Hour)

	token, err := directory.GenerateToken("alice", -time.Minute)
	req.NoError(err)

	_, err = directory.LookupIdentityByToken(context.Background(), token)
	req.Error(err)
}

func TestTokenDirectory_LifetimeCap(t *testing.T) {
	req := require.New(t)
	directory := NewTokenDirectory("test-secret", time.Hour)

	// A token living longer than the cap is not honored, even though
	// its signature and expiration are valid
	longLived, err := directory.GenerateToken("alice", 48*time.Hour)
	req.NoError(err)
	_, err = directory.LookupIdentityByToken(context.Background(), longLived)
	req.Error(err)

	// Within the cap it resolves normally
	shortLived, err := directory.GenerateToken("alice", 30*time.Minute)
	req.NoError(err)
	identity, err := directory.LookupIdentityByToken(context.Background(), shortLived)
	req.NoError(err)
	req.Equal(domain.Identity("alice"), identity)

	// An uncapped directory accepts the long-lived token
	uncapped := NewTokenDirectory("test-secret", 0)
	_, err = uncapped.LookupIdentityByToken(context.Background(), longLived)
	req.NoError(err)
}

func TestTokenDirectory_Garbage(t *testing.T) {
	req := require.New(t)
	directory := NewTokenDirectory("test-secret", 24*time.Hour)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := directory.LookupIdentityByToken(context.Background(), token)
		req.Error(err, "token=%s", token)
	}
}

func TestTokenDirectory_MissingUsername(t *testing.T) {
	req := require.New(t)
	directory := NewTokenDirectory("test-secret", 24*time.Hour)

	token, err := directory.GenerateToken("", time.Hour)
	req.NoError(err)

	_, err = directory.LookupIdentityByToken(context.Background(), token)
	req.Error(err)
}
