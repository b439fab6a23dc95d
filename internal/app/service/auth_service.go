package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"moltbattle/internal/app/ratelimit"
	"moltbattle/internal/common"
	"moltbattle/internal/common/security"
	"moltbattle/internal/domain/model"
	"moltbattle/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

type AuthService struct {
	userRepo repository.UserRepository
	limiter  ratelimit.Limiter
}

func NewAuthService(userRepo repository.UserRepository, limiter ratelimit.Limiter) *AuthService {
	return &AuthService{userRepo: userRepo, limiter: limiter}
}

// Limiter keys are namespaced per operation so a burst of failed logins
// does not consume a handle's signup budget and vice versa.
func loginKey(handle string) string  { return "login:" + handle }
func signupKey(handle string) string { return "signup:" + handle }
func tokenKey(userID string) string  { return "token:" + userID }

type SignupRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

type AuthResponse struct {
	UserID string `json:"user_id"`
	Handle string `json:"handle"`
	Token  string `json:"token"`
}

// Signup registers a user. Handles are slugified so display-style input
// ("Ada Lovelace") and the canonical handle ("ada-lovelace") collide
// deliberately.
func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	handle := slug.Make(req.Handle)
	if handle == "" {
		return nil, common.Errorf("handle is required: %w", common.ErrValidation)
	}
	if len(req.Password) < 8 {
		return nil, common.Errorf("password must be at least 8 characters: %w", common.ErrValidation)
	}

	allowed, err := s.limiter.Allow(ctx, signupKey(handle))
	if err != nil {
		return nil, common.Errorf("AuthService.Signup limiter: %w", err)
	}
	if !allowed {
		log.Printf("WARN: signup rate limit hit for handle %s", handle)
		return nil, common.Errorf("too many registration attempts for this handle: %w", common.ErrRateLimited)
	}

	hashed, err := security.HashPassword(req.Password)
	if err != nil {
		return nil, common.Errorf("AuthService.Signup hashing: %w", err)
	}

	user := &model.User{
		ID:             uuid.NewString(),
		Handle:         handle,
		HashedPassword: hashed,
		Role:           model.RoleUser,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if rerr := s.limiter.Record(ctx, signupKey(handle)); rerr != nil {
			log.Printf("ERROR: recording signup attempt for %s: %v", handle, rerr)
		}
		return nil, err
	}
	if err := s.limiter.Reset(ctx, signupKey(handle)); err != nil {
		log.Printf("ERROR: resetting signup attempts for %s: %v", handle, err)
	}

	token, err := security.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, common.Errorf("AuthService.Signup token: %w", err)
	}
	log.Printf("INFO: user %s registered as %s", user.ID, user.Handle)
	return &AuthResponse{UserID: user.ID, Handle: user.Handle, Token: token}, nil
}

type LoginRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

// Login authenticates by handle and password, counting failed attempts per
// handle. The counter resets on success so a legitimate user who fumbles a
// few times is not punished after getting in.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	handle := slug.Make(strings.TrimSpace(req.Handle))
	if handle == "" {
		return nil, common.Errorf("handle is required: %w", common.ErrValidation)
	}

	allowed, err := s.limiter.Allow(ctx, loginKey(handle))
	if err != nil {
		return nil, common.Errorf("AuthService.Login limiter: %w", err)
	}
	if !allowed {
		log.Printf("WARN: login rate limit hit for handle %s", handle)
		return nil, common.Errorf("too many failed logins for this handle: %w", common.ErrRateLimited)
	}

	user, err := s.userRepo.FindByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			if rerr := s.limiter.Record(ctx, loginKey(handle)); rerr != nil {
				log.Printf("ERROR: recording login attempt for %s: %v", handle, rerr)
			}
			return nil, common.Errorf("invalid handle or password: %w", common.ErrUnauthorized)
		}
		return nil, err
	}

	if !security.CheckPasswordHash(req.Password, user.HashedPassword) {
		if rerr := s.limiter.Record(ctx, loginKey(handle)); rerr != nil {
			log.Printf("ERROR: recording login attempt for %s: %v", handle, rerr)
		}
		return nil, common.Errorf("invalid handle or password: %w", common.ErrUnauthorized)
	}

	if err := s.limiter.Reset(ctx, loginKey(handle)); err != nil {
		log.Printf("ERROR: resetting login attempts for %s: %v", handle, err)
	}

	token, err := security.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, common.Errorf("AuthService.Login token: %w", err)
	}
	return &AuthResponse{UserID: user.ID, Handle: user.Handle, Token: token}, nil
}

type PersonalTokenResponse struct {
	Token string `json:"token"`
}

// CreatePersonalToken mints a long-lived API token for the caller. The
// plaintext is returned once; only its digest is stored. Mints count
// against the caller's window with no reset: unlike logins there is no
// failure case to forgive, the guard bounds the mint rate itself.
func (s *AuthService) CreatePersonalToken(ctx context.Context, userID string) (*PersonalTokenResponse, error) {
	allowed, err := s.limiter.Allow(ctx, tokenKey(userID))
	if err != nil {
		return nil, common.Errorf("AuthService.CreatePersonalToken limiter: %w", err)
	}
	if !allowed {
		log.Printf("WARN: personal token rate limit hit for user %s", userID)
		return nil, common.Errorf("too many personal tokens minted recently: %w", common.ErrRateLimited)
	}
	if err := s.limiter.Record(ctx, tokenKey(userID)); err != nil {
		log.Printf("ERROR: recording token mint for %s: %v", userID, err)
	}

	token, err := security.GenerateUserToken()
	if err != nil {
		return nil, common.Errorf("AuthService.CreatePersonalToken: %w", err)
	}
	if err := s.userRepo.CreatePersonalToken(ctx, userID, security.HashToken(token)); err != nil {
		return nil, err
	}
	return &PersonalTokenResponse{Token: token}, nil
}

// UserByPersonalToken resolves a "molt_"-prefixed bearer token to its owner.
func (s *AuthService) UserByPersonalToken(ctx context.Context, token string) (*model.User, error) {
	if !strings.HasPrefix(token, security.UserTokenPrefix) {
		return nil, common.ErrUnauthorized
	}
	user, err := s.userRepo.FindByPersonalTokenHash(ctx, security.HashToken(token))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, err
	}
	return user, nil
}
