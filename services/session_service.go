package services

import (
	"context"
	"eventmaster/auth"
	"eventmaster/contract"
	"eventmaster/domain"
	"fmt"
)

type ISessionService interface {
	Login(ctx context.Context, email string) (Token, auth.User, error)
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) (*auth.User, domain.Namespace)
}

type Token string

func (t Token) String() string {
	return string(t)
}

// SessionService signs users in locally: there is no password, the email is the identity.
type SessionService struct {
	session  *auth.StoredSession
	provider auth.SessionProvider
	signer   *auth.Signer
	resolver contract.IResolver
}

func NewSessionService(session *auth.StoredSession, provider auth.SessionProvider,
	signer *auth.Signer, resolver contract.IResolver) *SessionService {
	return &SessionService{session: session, provider: provider, signer: signer, resolver: resolver}
}

func (s *SessionService) Login(ctx context.Context, email string) (Token, auth.User, error) {
	// 1. Validate the email format
	if err := auth.ValidateSignIn(auth.SignInRequest{Email: email}); err != nil {
		return "", auth.User{}, err
	}

	// 2. Persist the user so later runs resolve the same namespace
	user := auth.UserFromEmail(email)
	if err := s.session.SignIn(ctx, user); err != nil {
		return "", auth.User{}, fmt.Errorf("store session: %w", err)
	}

	// 3. Issue a token usable with the token session provider
	token, err := s.signer.Generate(user)
	if err != nil {
		return "", auth.User{}, fmt.Errorf("token generation failed: %w", err)
	}
	return Token(token), user, nil
}

func (s *SessionService) Logout(ctx context.Context) error {
	return s.session.SignOut(ctx)
}

// WhoAmI reports the current user, nil when anonymous, and the namespace in use.
func (s *SessionService) WhoAmI(ctx context.Context) (*auth.User, domain.Namespace) {
	ns := s.resolver.Resolve(ctx)
	user, err := s.provider.CurrentUser(ctx)
	if err != nil {
		return nil, ns
	}
	return user, ns
}
