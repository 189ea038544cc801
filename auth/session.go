//go:generate go run go.uber.org/mock/mockgen -source=session.go -destination=../mocks/mock_session_provider.go -package=mocks
package auth

import (
	"context"
	"encoding/json"
	"eventmaster/storage"
	"fmt"
)

// StoredUserKey is where the signed-in user is persisted between runs.
const StoredUserKey = "eventmaster_auth_user"

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// SessionProvider yields the signed-in user, or nil when nobody is signed in.
type SessionProvider interface {
	CurrentUser(ctx context.Context) (*User, error)
}

// ContextSession reads the user set with WithUser.
type ContextSession struct{}

func (ContextSession) CurrentUser(ctx context.Context) (*User, error) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// StoredSession keeps the signed-in user as JSON in the persistence layer.
type StoredSession struct {
	store storage.Persistence
}

func NewStoredSession(store storage.Persistence) *StoredSession {
	return &StoredSession{store: store}
}

func (s *StoredSession) CurrentUser(ctx context.Context) (*User, error) {
	raw, ok, err := s.store.Read(ctx, StoredUserKey)
	if err != nil || !ok {
		return nil, err
	}
	var user User
	if err = json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("decode stored user: %w", err)
	}
	return &user, nil
}

func (s *StoredSession) SignIn(ctx context.Context, user User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return s.store.Write(ctx, storage.Put(StoredUserKey, raw))
}

func (s *StoredSession) SignOut(ctx context.Context) error {
	return s.store.Delete(ctx, StoredUserKey)
}

// TokenSession validates the token set with WithToken.
type TokenSession struct {
	signer *Signer
}

func NewTokenSession(signer *Signer) TokenSession {
	return TokenSession{signer: signer}
}

func (s TokenSession) CurrentUser(ctx context.Context) (*User, error) {
	token, ok := TokenFromContext(ctx)
	if !ok {
		return nil, nil
	}
	claims, err := s.signer.Validate(token)
	if err != nil {
		return nil, err
	}
	return &User{ID: claims.UserID, Email: claims.Email, Name: claims.Name}, nil
}

// ChainSession asks each provider in order. The first user found wins and an
// error from one provider does not hide a later provider's user.
type ChainSession []SessionProvider

func (c ChainSession) CurrentUser(ctx context.Context) (*User, error) {
	var firstErr error
	for _, p := range c {
		user, err := p.CurrentUser(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if user != nil {
			return user, nil
		}
	}
	return nil, firstErr
}
