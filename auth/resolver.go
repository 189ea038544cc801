package auth

import (
	"context"
	"eventmaster/domain"
	"fmt"
	"log/slog"
	"strings"
)

// Resolver maps the signed-in identity to the storage namespace.
type Resolver struct {
	provider SessionProvider
	log      *slog.Logger
}

func NewResolver(provider SessionProvider, log *slog.Logger) *Resolver {
	return &Resolver{provider: provider, log: log}
}

// Resolve never fails: no session, an empty id, an error or a panic in the
// provider all fall back to domain.Anonymous.
func (r *Resolver) Resolve(ctx context.Context) (ns domain.Namespace) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("Session provider panicked, using anonymous namespace", "panic", fmt.Sprint(rec))
			ns = domain.Anonymous
		}
	}()
	if r.provider == nil {
		return domain.Anonymous
	}
	user, err := r.provider.CurrentUser(ctx)
	if err != nil {
		r.log.Warn("Session unreadable, using anonymous namespace", "error", err)
		return domain.Anonymous
	}
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return domain.Anonymous
	}
	return domain.Namespace(user.ID)
}
