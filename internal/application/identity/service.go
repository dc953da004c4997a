// Package identity owns accounts, profiles and sessions: the backend every
// sign-in path (password, one-time code, Google, developer) ends in.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/medconnect-auth/internal/domain"
	"github.com/medconnect-auth/internal/pkg/id"
	pkgtoken "github.com/medconnect-auth/internal/pkg/token"
	"golang.org/x/crypto/bcrypt"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldPasswordHash   = "password_hash"
	fieldEmailConfirmed = "email_confirmed"
	fieldPhoneConfirmed = "phone_confirmed"
	fieldGoogleSub      = "google_sub"
	fieldEnable         = "enable"
)

const minPasswordLen = 8

type Service interface {
	AccountExists(ctx context.Context, email string) (bool, error)
	// PasswordSignIn checks that the account exists before checking the
	// password, so a missing account and a wrong password are distinct errors.
	PasswordSignIn(ctx context.Context, email, password string) (*domain.AuthResult, error)
	// SignInWithPassword reports both a missing account and a wrong password
	// as ErrInvalidCredentials.
	SignInWithPassword(ctx context.Context, email, password string) (*domain.AuthResult, error)
	CreateAccount(ctx context.Context, req domain.NewAccount) (*domain.Account, error)
	// SignInVerified opens a session for the owner of a verified email or
	// phone. When no account exists and createIfMissing is non-nil, one is created.
	SignInVerified(ctx context.Context, identity domain.VerifiedIdentity, createIfMissing *domain.NewAccount) (*domain.AuthResult, error)
	ResetPassword(ctx context.Context, email, newPassword string) error
	GoogleSignIn(ctx context.Context, idToken string) (*domain.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.AuthResult, error)
	Logout(ctx context.Context, sessionID string) error
	Current(ctx context.Context, sessionID string) (*domain.Session, error)
}

type accountStore interface {
	Create(ctx context.Context, a *domain.Account) error
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Account, error)
	Update(ctx context.Context, accountID string, updates map[string]interface{}) error
}

type sessionStore interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	GetByRefreshToken(ctx context.Context, token string) (*domain.Session, error)
	RotateRefreshToken(ctx context.Context, sessionID, newToken string, newExpiry int64) error
	Update(ctx context.Context, sessionID string, updates map[string]interface{}) error
	DisableByAccount(ctx context.Context, accountID string) error
}

type profileStore interface {
	Put(ctx context.Context, p *domain.Profile) error
}

type jwtSigner interface {
	Sign(accountID, accountType, sessionID string) (string, error)
}

type externalVerifier interface {
	Verify(ctx context.Context, token string) (*domain.ExternalIdentity, error)
}

type domainChecker interface {
	IsAllowed(email string) bool
}

type service struct {
	accounts        accountStore
	sessions        sessionStore
	profiles        profileStore
	jwtProvider     jwtSigner
	google          externalVerifier
	domains         domainChecker
	refreshTokenDur time.Duration
}

type ServiceDeps struct {
	AccountRepo     accountStore
	SessionRepo     sessionStore
	ProfileRepo     profileStore
	JWTProvider     jwtSigner
	Google          externalVerifier // optional
	Domains         domainChecker    // optional; restricts Google sign-up
	RefreshTokenDur time.Duration
}

func NewService(deps ServiceDeps) Service {
	dur := deps.RefreshTokenDur
	if dur <= 0 {
		dur = 30 * 24 * time.Hour
	}
	return &service{
		accounts:        deps.AccountRepo,
		sessions:        deps.SessionRepo,
		profiles:        deps.ProfileRepo,
		jwtProvider:     deps.JWTProvider,
		google:          deps.Google,
		domains:         deps.Domains,
		refreshTokenDur: dur,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *service) AccountExists(ctx context.Context, email string) (bool, error) {
	_, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (s *service) PasswordSignIn(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	acc, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("sign in %s: %w", email, domain.ErrAccountNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s.checkPasswordAndIssue(ctx, acc, password)
}

func (s *service) SignInWithPassword(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	acc, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("sign in: %w", domain.ErrInvalidCredentials)
	}
	if err != nil {
		return nil, err
	}
	return s.checkPasswordAndIssue(ctx, acc, password)
}

func (s *service) checkPasswordAndIssue(ctx context.Context, acc *domain.Account, password string) (*domain.AuthResult, error) {
	if acc.PasswordHash == "" {
		return nil, fmt.Errorf("account has no password: %w", domain.ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("sign in: %w", domain.ErrInvalidCredentials)
	}
	if !acc.Enable {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrForbidden)
	}
	if !acc.EmailConfirmed {
		return nil, fmt.Errorf("sign in: %w", domain.ErrEmailNotConfirmed)
	}
	return s.issueSession(ctx, acc)
}

func (s *service) CreateAccount(ctx context.Context, req domain.NewAccount) (*domain.Account, error) {
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" && req.Phone == "" {
		return nil, fmt.Errorf("email or phone is required: %w", domain.ErrValidation)
	}
	if req.Email != "" {
		if _, err := s.accounts.GetByEmail(ctx, req.Email); err == nil {
			return nil, fmt.Errorf("email already registered: %w", domain.ErrAccountAlreadyExists)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if req.Phone != "" {
		if _, err := s.accounts.GetByPhone(ctx, req.Phone); err == nil {
			return nil, fmt.Errorf("phone already registered: %w", domain.ErrAccountAlreadyExists)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if req.Selection.Type == "" {
		req.Selection.Type = domain.AccountTypeDoctor
	}
	if !req.Selection.Complete() {
		return nil, fmt.Errorf("organization details are incomplete: %w", domain.ErrValidation)
	}

	hash := req.PasswordHash
	if req.Password != "" {
		if len(req.Password) < minPasswordLen {
			return nil, fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, domain.ErrValidation)
		}
		b, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		hash = string(b)
	}
	provider := req.AuthProvider
	if provider == "" {
		provider = "local"
	}
	now := time.Now().UTC()
	acc := &domain.Account{
		AccountID:      id.New(),
		Email:          req.Email,
		Phone:          req.Phone,
		PasswordHash:   hash,
		AccountType:    req.Selection.Type,
		EmailConfirmed: req.EmailConfirmed,
		PhoneConfirmed: req.PhoneConfirmed,
		AuthProvider:   provider,
		GoogleSub:      req.GoogleSub,
		Enable:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("create account: %w", domain.ErrAccountAlreadyExists)
		}
		return nil, err
	}

	profile := &domain.Profile{
		UserID:    acc.AccountID,
		Username:  usernameFor(req),
		FullName:  req.FullName,
		Type:      acc.AccountType,
		IsPublic:  true,
		CreatedAt: now,
	}
	if acc.AccountType == domain.AccountTypeOrganization {
		profile.OrgName = req.Selection.Organization.Name
		profile.OrgType = req.Selection.Organization.Type
		profile.OrgCountry = req.Selection.Organization.Country
	}
	if err := s.profiles.Put(ctx, profile); err != nil {
		// The account is usable without a profile row; the profile editor recreates it.
		slog.Warn("failed to insert profile", "account_id", acc.AccountID, "err", err)
	}
	return acc, nil
}

func usernameFor(req domain.NewAccount) string {
	if req.Username != "" {
		return req.Username
	}
	if local, _, ok := strings.Cut(req.Email, "@"); ok && local != "" {
		return local
	}
	return strings.TrimPrefix(req.Phone, "+")
}

func (s *service) SignInVerified(ctx context.Context, identity domain.VerifiedIdentity, createIfMissing *domain.NewAccount) (*domain.AuthResult, error) {
	var (
		acc   *domain.Account
		err   error
		field string
	)
	if identity.Channel == domain.ChannelEmail {
		acc, err = s.accounts.GetByEmail(ctx, normalizeEmail(identity.Target))
		field = fieldEmailConfirmed
	} else {
		acc, err = s.accounts.GetByPhone(ctx, identity.Target)
		field = fieldPhoneConfirmed
	}
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound) && createIfMissing != nil:
		req := *createIfMissing
		if identity.Channel == domain.ChannelEmail {
			req.Email, req.EmailConfirmed = identity.Target, true
		} else {
			req.Phone, req.PhoneConfirmed = identity.Target, true
		}
		if acc, err = s.CreateAccount(ctx, req); err != nil {
			return nil, err
		}
	case errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("sign in %s: %w", identity.Target, domain.ErrAccountNotFound)
	default:
		return nil, err
	}

	if !acc.Enable {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrForbidden)
	}
	confirmed := acc.EmailConfirmed
	if field == fieldPhoneConfirmed {
		confirmed = acc.PhoneConfirmed
	}
	if !confirmed {
		if err := s.accounts.Update(ctx, acc.AccountID, map[string]interface{}{field: true}); err != nil {
			return nil, err
		}
		if field == fieldEmailConfirmed {
			acc.EmailConfirmed = true
		} else {
			acc.PhoneConfirmed = true
		}
	}
	return s.issueSession(ctx, acc)
}

func (s *service) ResetPassword(ctx context.Context, email, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, domain.ErrValidation)
	}
	acc, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("reset password: %w", domain.ErrAccountNotFound)
	}
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.accounts.Update(ctx, acc.AccountID, map[string]interface{}{
		fieldPasswordHash:   string(hash),
		fieldEmailConfirmed: true,
	}); err != nil {
		return err
	}
	if err := s.sessions.DisableByAccount(ctx, acc.AccountID); err != nil {
		slog.Warn("failed to revoke sessions after password reset", "account_id", acc.AccountID, "err", err)
	}
	return nil
}

func (s *service) GoogleSignIn(ctx context.Context, idToken string) (*domain.AuthResult, error) {
	if s.google == nil {
		return nil, fmt.Errorf("google sign-in unavailable: %w", domain.ErrBadRequest)
	}
	ext, err := s.google.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	if ext.Email == "" || !ext.EmailVerified {
		return nil, fmt.Errorf("google account email: %w", domain.ErrEmailNotConfirmed)
	}
	acc, err := s.accounts.GetByEmail(ctx, normalizeEmail(ext.Email))
	switch {
	case err == nil:
		if acc.GoogleSub == "" {
			if err := s.accounts.Update(ctx, acc.AccountID, map[string]interface{}{
				fieldGoogleSub:      ext.Subject,
				fieldEmailConfirmed: true,
			}); err != nil {
				return nil, err
			}
			acc.GoogleSub, acc.EmailConfirmed = ext.Subject, true
		}
	case errors.Is(err, domain.ErrNotFound):
		if s.domains != nil && !s.domains.IsAllowed(ext.Email) {
			return nil, fmt.Errorf("google sign-up %s: %w", ext.Email, domain.ErrUnsupportedDomain)
		}
		acc, err = s.CreateAccount(ctx, domain.NewAccount{
			Email:          ext.Email,
			FullName:       ext.Name,
			EmailConfirmed: true,
			AuthProvider:   ext.Provider,
			GoogleSub:      ext.Subject,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	if !acc.Enable {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrForbidden)
	}
	return s.issueSession(ctx, acc)
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (*domain.AuthResult, error) {
	sess, err := s.sessions.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", domain.ErrUnauthorized)
	}
	if sess.RefreshExpiresAt < time.Now().Unix() {
		return nil, fmt.Errorf("refresh token expired: %w", domain.ErrUnauthorized)
	}
	acc, err := s.accounts.Get(ctx, sess.AccountID)
	if err != nil {
		return nil, err
	}
	if !acc.Enable {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrForbidden)
	}
	newToken, err := pkgtoken.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	newExpiry := time.Now().Add(s.refreshTokenDur).Unix()
	if err := s.sessions.RotateRefreshToken(ctx, sess.SessionID, newToken, newExpiry); err != nil {
		return nil, err
	}
	bearer, err := s.jwtProvider.Sign(acc.AccountID, string(acc.AccountType), sess.SessionID)
	if err != nil {
		return nil, err
	}
	sess.RefreshToken = newToken
	sess.RefreshExpiresAt = newExpiry
	sess.Account = acc
	return &domain.AuthResult{AccessToken: bearer, RefreshToken: newToken, Session: sess}, nil
}

func (s *service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Update(ctx, sessionID, map[string]interface{}{fieldEnable: false})
}

func (s *service) Current(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Enable {
		return nil, fmt.Errorf("session expired: %w", domain.ErrUnauthorized)
	}
	acc, err := s.accounts.Get(ctx, sess.AccountID)
	if err != nil {
		return nil, err
	}
	sess.Account = acc
	return sess, nil
}

func (s *service) issueSession(ctx context.Context, acc *domain.Account) (*domain.AuthResult, error) {
	refreshToken, err := pkgtoken.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sess := &domain.Session{
		SessionID:        id.New(),
		AccountID:        acc.AccountID,
		Enable:           true,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: now.Add(s.refreshTokenDur).Unix(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	bearer, err := s.jwtProvider.Sign(acc.AccountID, string(acc.AccountType), sess.SessionID)
	if err != nil {
		return nil, err
	}
	sess.Account = acc
	return &domain.AuthResult{AccessToken: bearer, RefreshToken: refreshToken, Session: sess}, nil
}
