package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"moltbattle/internal/common"
	"moltbattle/internal/common/security"
	"moltbattle/internal/domain/model"
	"moltbattle/internal/domain/repository"

	"github.com/go-chi/jwtauth/v5"
)

type contextKey string

const (
	UserIDCtxKey   contextKey = "userID"
	UserRoleCtxKey contextKey = "userRole"
	CombatIDCtxKey contextKey = "combatID"
)

// Authenticator accepts either a JWT session token or a "molt_" personal
// access token in the Authorization header. JWT claims are already verified
// by jwtauth.Verifier upstream; personal tokens are resolved against their
// stored digest.
func Authenticator(userRepo repository.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bearer := bearerToken(r); strings.HasPrefix(bearer, security.UserTokenPrefix) {
				user, err := userRepo.FindByPersonalTokenHash(r.Context(), security.HashToken(bearer))
				if err != nil {
					common.RespondWithError(w, http.StatusUnauthorized, "Invalid personal token")
					return
				}
				ctx := context.WithValue(r.Context(), UserIDCtxKey, user.ID)
				ctx = context.WithValue(ctx, UserRoleCtxKey, user.Role)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token, claims, err := jwtauth.FromContext(r.Context())
			if err != nil || token == nil {
				common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
				return
			}

			userID, err := security.GetUserIDFromClaims(claims)
			if err != nil {
				common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims: "+err.Error())
				return
			}
			userRole, err := security.GetUserRoleFromClaims(claims)
			if err != nil {
				common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims: "+err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), UserIDCtxKey, userID)
			ctx = context.WithValue(ctx, UserRoleCtxKey, userRole)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CombatKeyAuthenticator authenticates the agent surface: the bearer secret
// must be an unrevoked combat key. The key binds the caller to one combat,
// so both the user and combat ids land in the context.
func CombatKeyAuthenticator(keyRepo repository.CombatKeyRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer := bearerToken(r)
			if bearer == "" {
				common.RespondWithError(w, http.StatusUnauthorized, "Combat key required")
				return
			}
			key, err := keyRepo.FindByTokenHash(r.Context(), security.HashToken(bearer))
			if err != nil {
				common.RespondWithError(w, http.StatusUnauthorized, "Invalid or revoked combat key")
				return
			}
			ctx := context.WithValue(r.Context(), UserIDCtxKey, key.UserID)
			ctx = context.WithValue(ctx, CombatIDCtxKey, key.CombatID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnly passes callers whose session carries the admin role, or whose
// bearer matches the static operations token from the environment.
func AdminOnly(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminToken != "" {
				bearer := bearerToken(r)
				if subtle.ConstantTimeCompare([]byte(bearer), []byte(adminToken)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			role, ok := r.Context().Value(UserRoleCtxKey).(string)
			if !ok || role != model.RoleAdmin {
				common.RespondWithError(w, http.StatusForbidden, "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDCtxKey).(string)
	return userID, ok
}

func GetCombatIDFromContext(ctx context.Context) (string, bool) {
	combatID, ok := ctx.Value(CombatIDCtxKey).(string)
	return combatID, ok
}
