package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/identity-service/internal/model"
	"github.com/iliyamo/identity-service/internal/queue"
	"github.com/iliyamo/identity-service/internal/repository"
)

// CredentialStore reads and writes user records.
type CredentialStore interface {
	Create(ctx context.Context, u model.User) (uint64, error)
	GetByLogin(ctx context.Context, login string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	UpdatePassword(ctx context.Context, id uint64, hash string, now time.Time) error
}

// RoleSource resolves the role names snapshotted into tokens.
type RoleSource interface {
	NamesForUser(ctx context.Context, userID uint64) ([]string, error)
}

// HistoryStore is the append-only login history.
type HistoryStore interface {
	Append(ctx context.Context, e model.LoginHistoryEntry) error
	ListByUser(ctx context.Context, userID uint64, limit int) ([]model.LoginHistoryEntry, error)
}

// PasswordVerifier hashes and checks passwords.  utils.PasswordHasher
// satisfies it.
type PasswordVerifier interface {
	Hash(plain string) (string, error)
	Verify(plain, stored string) bool
	VerifyDummy(plain string)
}

// LoginPublisher receives an event per successful login.
type LoginPublisher interface {
	PublishLogin(ctx context.Context, ev queue.LoginEvent) error
}

// LogoutResult reports the blocklist write.  Expiry is the number of
// seconds the access token stays blocklisted.
type LogoutResult struct {
	Success bool  `json:"success"`
	Expiry  int64 `json:"expiry_time"`
}

const publishTimeout = 2 * time.Second

type AuthDeps struct {
	Users     CredentialStore
	Roles     RoleSource
	History   HistoryStore
	Passwords PasswordVerifier
	Tokens    *Tokenizer
	Events    LoginPublisher // optional
	Clock     Clock
	Log       *zap.Logger
}

// AuthService runs login, logout and refresh on top of the Tokenizer and
// the relational stores.  It holds no per-request state.
type AuthService struct {
	users     CredentialStore
	roles     RoleSource
	history   HistoryStore
	passwords PasswordVerifier
	tokens    *Tokenizer
	events    LoginPublisher
	clock     Clock
	log       *zap.Logger
}

func NewAuthService(d AuthDeps) *AuthService {
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &AuthService{
		users:     d.Users,
		roles:     d.Roles,
		history:   d.History,
		passwords: d.Passwords,
		tokens:    d.Tokens,
		events:    d.Events,
		clock:     d.Clock,
		log:       d.Log.Named("auth"),
	}
}

// Login verifies the password and issues a fresh pair, replacing any
// refresh token the user held.  Unknown logins and wrong passwords both
// return ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, login, password, userAgent string) (model.TokenPair, error) {
	log := s.log.With(zap.String("op", "login"), zap.String("login", login))
	log.Debug("start")

	u, err := s.users.GetByLogin(ctx, login)
	if errors.Is(err, repository.ErrNotFound) {
		s.passwords.VerifyDummy(password)
		log.Info("rejected: invalid credentials")
		return model.TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		log.Error("load user failed", zap.Error(err))
		return model.TokenPair{}, fmt.Errorf("load user: %w", err)
	}
	if !s.passwords.Verify(password, u.PasswordHash) {
		log.Info("rejected: invalid credentials", zap.Uint64("user_id", u.ID))
		return model.TokenPair{}, ErrInvalidCredentials
	}

	roles, err := s.roles.NamesForUser(ctx, u.ID)
	if err != nil {
		log.Error("load roles failed", zap.Error(err))
		return model.TokenPair{}, fmt.Errorf("load roles: %w", err)
	}
	pair, access, err := s.tokens.issue(ctx, u.ID, roles)
	if err != nil {
		log.Error("issue tokens failed", zap.Error(err))
		return model.TokenPair{}, err
	}

	now := s.clock.Now()
	entry := model.LoginHistoryEntry{
		ID:           uuid.NewString(),
		UserID:       u.ID,
		UserAgent:    userAgent,
		AuthDatetime: now,
	}
	// Tokens are already valid; a lost history row is not worth failing the login.
	if err := s.history.Append(ctx, entry); err != nil {
		log.Error("append login history failed", zap.Uint64("user_id", u.ID), zap.Error(err))
	}
	s.publish(ctx, queue.LoginEvent{
		UserID:    u.ID,
		Login:     u.Login,
		UserAgent: userAgent,
		Roles:     roles,
		TokenID:   access.ID,
		LoggedAt:  now.Format(time.RFC3339),
	})

	log.Info("ok", zap.Uint64("user_id", u.ID), zap.Strings("roles", roles))
	return pair, nil
}

func (s *AuthService) publish(ctx context.Context, ev queue.LoginEvent) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := s.events.PublishLogin(ctx, ev); err != nil {
		s.log.Warn("publish login event failed", zap.Uint64("user_id", ev.UserID), zap.Error(err))
	}
}

// Logout blocklists jti for the remaining lifetime of its access token.
// An already expired token needs no entry and is reported with zero expiry.
func (s *AuthService) Logout(ctx context.Context, jti string, remaining time.Duration) (LogoutResult, error) {
	log := s.log.With(zap.String("op", "logout"), zap.String("jti", jti))
	log.Debug("start", zap.Duration("remaining", remaining))

	if jti == "" {
		return LogoutResult{}, ErrInvalidToken
	}
	if remaining <= 0 {
		log.Info("token already expired")
		return LogoutResult{Success: true}, nil
	}
	if err := s.tokens.Blocklist(ctx, jti, remaining); err != nil {
		log.Error("blocklist failed", zap.Error(err))
		return LogoutResult{}, err
	}
	expiry := int64(math.Ceil(remaining.Seconds()))
	log.Info("ok", zap.Int64("expiry_s", expiry))
	return LogoutResult{Success: true, Expiry: expiry}, nil
}

// RefreshTokens rotates the subject's pair.  roles come from the presented
// token's claims so the snapshot carries over unchanged.
func (s *AuthService) RefreshTokens(ctx context.Context, subjectID uint64, roles []string, presented string) (model.TokenPair, error) {
	log := s.log.With(zap.String("op", "refresh"), zap.Uint64("user_id", subjectID))
	log.Debug("start")

	pair, err := s.tokens.Refresh(ctx, subjectID, presented, roles)
	switch {
	case errors.Is(err, ErrInvalidToken):
		log.Info("rejected: stale or unknown refresh token")
		return model.TokenPair{}, err
	case err != nil:
		log.Error("refresh failed", zap.Error(err))
		return model.TokenPair{}, err
	}
	log.Info("ok")
	return pair, nil
}

// maxEmailLen matches the width of users.email.
const maxEmailLen = 255

// Register creates a user after checking the login and password policy.
func (s *AuthService) Register(ctx context.Context, login, password, email string) (model.User, error) {
	login = strings.TrimSpace(login)
	if n := len([]rune(login)); n < 8 || n > 20 {
		return model.User{}, invalid("login must be between 8 and 20 characters")
	}
	email = strings.TrimSpace(email)
	if len([]rune(email)) > maxEmailLen {
		return model.User{}, invalid("email must be at most 255 characters")
	}
	if err := CheckPassword(password); err != nil {
		return model.User{}, err
	}
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return model.User{}, err
	}
	now := s.clock.Now()
	u := model.User{
		Login:        login,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	id, err := s.users.Create(ctx, u)
	if err != nil {
		s.log.Warn("register failed", zap.String("login", login), zap.Error(err))
		return model.User{}, err
	}
	u.ID = id
	s.log.Info("registered", zap.Uint64("user_id", id), zap.String("login", login))
	return u, nil
}

// ChangePassword replaces the user's hash after verifying the current
// password.  Tokens already issued stay valid until they expire.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint64, current, next string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.passwords.Verify(current, u.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := CheckPassword(next); err != nil {
		return err
	}
	hash, err := s.passwords.Hash(next)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash, s.clock.Now()); err != nil {
		return err
	}
	s.log.Info("password changed", zap.Uint64("user_id", userID))
	return nil
}

// History returns the user's logins, newest first.
func (s *AuthService) History(ctx context.Context, userID uint64, limit int) ([]model.LoginHistoryEntry, error) {
	return s.history.ListByUser(ctx, userID, limit)
}

// CheckPassword enforces the password policy for new passwords.
func CheckPassword(p string) error {
	if len([]rune(p)) < 8 {
		return invalid("password must be at least 8 characters")
	}
	var digitsOnly, lettersOnly = true, true
	var hasLower, hasUpper bool
	for _, r := range p {
		if !unicode.IsDigit(r) {
			digitsOnly = false
		}
		if !unicode.IsLetter(r) {
			lettersOnly = false
		}
		if unicode.IsLower(r) {
			hasLower = true
		}
		if unicode.IsUpper(r) {
			hasUpper = true
		}
	}
	switch {
	case digitsOnly:
		return invalid("password cannot consist of digits only")
	case lettersOnly:
		return invalid("password cannot consist of letters only")
	case hasLower && !hasUpper:
		return invalid("password cannot be all lower case")
	case hasUpper && !hasLower:
		return invalid("password cannot be all upper case")
	}
	return nil
}
