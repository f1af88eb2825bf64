package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/roadpulse/server/internal/cache"
	"github.com/roadpulse/server/internal/config"
	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/store"
)

// UserStore is the slice of the user store the auth service uses.
type UserStore interface {
	Create(ctx context.Context, u *store.User) error
	GetByEmail(ctx context.Context, email string) (*store.User, error)
	GetByID(ctx context.Context, id string) (*store.User, error)
}

// dummyHash keeps the login path doing a bcrypt comparison even when the
// email matches nothing, so both failure modes cost the same.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// AuthService registers and verifies accounts. Both failure paths answer
// identically so neither leaks which emails exist.
type AuthService struct {
	users    UserStore
	gate     *cache.Gate
	usage    UsageStore
	logger   *zap.Logger
	login    config.RateWindow
	register config.RateWindow
}

func NewAuthService(users UserStore, gate *cache.Gate, usage UsageStore, logger *zap.Logger, limits config.RateLimitsConfig) *AuthService {
	login := limits.Login
	if login.Limit <= 0 {
		login = config.RateWindow{Limit: 10, Window: 15 * time.Minute}
	}
	register := limits.Register
	if register.Limit <= 0 {
		register = config.RateWindow{Limit: 5, Window: time.Hour}
	}
	return &AuthService{users: users, gate: gate, usage: usage, logger: logger, login: login, register: register}
}

// RegisterInput is a parsed registration request. The password cap is
// bcrypt's 72 byte input limit.
type RegisterInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"displayName" validate:"max=100"`
}

// LoginInput is a parsed login request.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register creates an account. A taken email gets the same answer as any
// other bad input.
func (s *AuthService) Register(ctx context.Context, clientIP string, in RegisterInput) (*store.User, error) {
	if err := validate.Struct(in); err != nil {
		return nil, invalidInput(err)
	}
	if d := s.gate.Allow(ctx, cache.RegisterKey(clientIP), s.register.Limit, s.register.Window); !d.Allowed {
		return nil, rateLimited("too many registration attempts, try again later", d)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errcode.Wrap(errcode.Internal, "hashing password", err)
	}

	u := &store.User{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(in.DisplayName),
	}
	err = s.users.Create(ctx, u)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, errcode.New(errcode.BadRequest, "unable to register with these credentials")
	}
	if err != nil {
		return nil, errcode.Wrap(errcode.Internal, "creating account", err)
	}

	recordUsage(ctx, s.logger, s.usage, store.UsageRegister, map[string]any{"userId": u.ID}, u.ID)
	s.logger.Info("account registered", zap.String("userId", u.ID))
	return u, nil
}

// Login verifies credentials. Unknown emails and wrong passwords answer
// identically.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*store.User, error) {
	if err := validate.Struct(in); err != nil {
		return nil, invalidInput(err)
	}
	if d := s.gate.Allow(ctx, cache.LoginKey(in.Email), s.login.Limit, s.login.Window); !d.Allowed {
		return nil, rateLimited("too many login attempts, try again later", d)
	}

	u, err := s.users.GetByEmail(ctx, in.Email)
	if errors.Is(err, store.ErrNotFound) {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(in.Password))
		return nil, errAuthFailed()
	}
	if err != nil {
		return nil, errcode.Wrap(errcode.Internal, "loading account", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return nil, errAuthFailed()
	}
	return u, nil
}

// GetUser loads an account by id.
func (s *AuthService) GetUser(ctx context.Context, id string) (*store.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errcode.New(errcode.NotFound, "user not found")
	}
	if err != nil {
		return nil, errcode.Wrap(errcode.Internal, "loading account", err)
	}
	return u, nil
}

func errAuthFailed() error {
	return errcode.New(errcode.Unauthorized, "invalid email or password")
}
