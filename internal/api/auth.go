package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"trading-arena/internal/domain"
	"trading-arena/internal/idhash"
	"trading-arena/internal/storage"
)

type userKey struct{}

// authenticate resolves the bearer token to a user. Browsers cannot set
// headers on websocket requests, so the token may also arrive as the
// access_token query parameter.
func (s *Server) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeError(w, r, domain.NewError(domain.CodeUnauthorized, "missing bearer token"))
			return
		}

		user, err := s.repo.Users().GetByTokenHash(r.Context(), idhash.HashAPIToken(token))
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, r, domain.NewError(domain.CodeUnauthorized, "invalid token"))
			return
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// currentUser returns the authenticated user. Only valid behind authenticate.
func currentUser(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userKey{}).(*domain.User)
	return u
}
