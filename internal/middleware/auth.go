package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"venue-ledger-api/internal/common"
	"venue-ledger-api/internal/models"
)

// Headers read by TrustedHeaderResolver.
const (
	HeaderRole   = "X-Principal-Role"
	HeaderUser   = "X-Principal-User"
	HeaderVenue  = "X-Principal-Venue"
	headerAuth   = "Authorization"
	bearerPrefix = "Bearer "
)

// PrincipalResolver turns an incoming request into a principal. Token
// verification lives behind this interface.
type PrincipalResolver interface {
	Resolve(r *http.Request) (models.Principal, error)
}

// TrustedHeaderResolver accepts principals asserted by an upstream gateway
// that has already verified the bearer token.
type TrustedHeaderResolver struct{}

// Resolve reads the principal headers. A bearer token must be present.
func (TrustedHeaderResolver) Resolve(r *http.Request) (models.Principal, error) {
	auth := r.Header.Get(headerAuth)
	if !strings.HasPrefix(auth, bearerPrefix) || strings.TrimSpace(auth[len(bearerPrefix):]) == "" {
		return models.Principal{}, errors.New("missing bearer token")
	}
	p := models.Principal{
		UserID:  strings.TrimSpace(r.Header.Get(HeaderUser)),
		Role:    models.Role(strings.ToUpper(strings.TrimSpace(r.Header.Get(HeaderRole)))),
		VenueID: strings.TrimSpace(r.Header.Get(HeaderVenue)),
	}
	if !p.Role.Valid() {
		return models.Principal{}, errors.New("unknown principal role")
	}
	if _, err := uuid.Parse(p.UserID); err != nil {
		return models.Principal{}, errors.New("principal user must be a uuid")
	}
	return p, nil
}

type principalKey struct{}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by Authenticate.
func PrincipalFrom(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(models.Principal)
	return p, ok
}

// principalSlot lets middleware that runs before Authenticate see the
// principal once the inner handlers return.
type principalSlot struct {
	principal models.Principal
	set       bool
}

type slotKey struct{}

// observe returns r carrying a principal slot, reusing one already installed.
func observe(r *http.Request) (*http.Request, *principalSlot) {
	if s, ok := r.Context().Value(slotKey{}).(*principalSlot); ok {
		return r, s
	}
	s := &principalSlot{}
	return r.WithContext(context.WithValue(r.Context(), slotKey{}, s)), s
}

// Authenticate resolves the principal or answers 401.
func Authenticate(resolver PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := resolver.Resolve(r)
			if err != nil {
				log.WithError(err).WithField("path", r.URL.Path).Debug("principal rejected")
				writeError(w, http.StatusUnauthorized, common.ErrUnauthorized.Error())
				return
			}
			if s, ok := r.Context().Value(slotKey{}).(*principalSlot); ok {
				s.principal, s.set = p, true
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole answers 403 unless the principal holds one of roles.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, common.ErrUnauthorized.Error())
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				writeError(w, http.StatusForbidden, common.ErrForbidden.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
