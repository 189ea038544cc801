package services

import (
	"context"
	"eventmaster/auth"
	"eventmaster/domain"
	"eventmaster/errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestSessionService_LoginLogout(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	e := newEnv(t, nil)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	stored := auth.NewStoredSession(e.store)
	provider := auth.ChainSession{auth.ContextSession{}, stored}
	signer := auth.NewSigner("secret", time.Hour)
	sessions := NewSessionService(stored, provider, signer, auth.NewResolver(provider, log))

	user, ns := sessions.WhoAmI(ctx)
	req.Nil(user)
	req.Equal(domain.Anonymous, ns)

	token, signedIn, err := sessions.Login(ctx, "Ana@Example.com")
	req.NoError(err)
	req.Equal("ana@example.com", signedIn.ID)
	claims, err := signer.Validate(token.String())
	req.NoError(err)
	req.Equal(signedIn.ID, claims.UserID)

	user, ns = sessions.WhoAmI(ctx)
	req.NotNil(user)
	req.Equal(domain.Namespace("ana@example.com"), ns)

	req.NoError(sessions.Logout(ctx))
	user, ns = sessions.WhoAmI(ctx)
	req.Nil(user)
	req.Equal(domain.Anonymous, ns)
}

func TestSessionService_RejectsInvalidEmail(t *testing.T) {
	req := require.New(t)
	e := newEnv(t, nil)
	stored := auth.NewStoredSession(e.store)
	sessions := NewSessionService(stored, stored, auth.NewSigner("secret", time.Hour), e.resolver)

	_, _, err := sessions.Login(context.Background(), "not-an-email")
	req.ErrorIs(err, errors.ErrValidation)
}
