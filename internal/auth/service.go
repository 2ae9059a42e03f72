package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/identity-service/internal/config"
	"github.com/iliyamo/identity-service/internal/model"
	"github.com/iliyamo/identity-service/internal/utils"
)

// UserStore is the user persistence surface the orchestrator depends
// on, implemented by repository.UserRepo.  Uniqueness of email and
// username is enforced by the store (Create returns ErrEmailExists /
// ErrUsernameExists).
type UserStore interface {
	LockoutStore
	Create(ctx context.Context, email, username, passwordHash string, role model.Role) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByUsername(ctx context.Context, username string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	SetVerified(ctx context.Context, id uint64) error
	UpdatePassword(ctx context.Context, id uint64, passwordHash string) error
}

// SessionStore persists one record per active login, implemented by
// repository.SessionRepo.  Every mutation must be atomic against the
// backing store; RotateRefresh in particular is a compare-and-swap on
// the session's refresh token identifier.
type SessionStore interface {
	Create(ctx context.Context, s model.Session) error
	GetByID(ctx context.Context, id string) (model.Session, error)
	ListActive(ctx context.Context, userID uint64) ([]model.Session, error)
	Revoke(ctx context.Context, id, reason string) error
	RevokeAllForUser(ctx context.Context, userID uint64, reason string) (int64, error)
	RotateRefresh(ctx context.Context, id, oldJTI, newJTI string, expiresAt, lastUsedAt time.Time) (bool, error)
	RevokeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Mailer delivers account emails.  Calls are fire-and-forget from the
// orchestrator's point of view: failures are logged, never propagated.
type Mailer interface {
	SendVerification(ctx context.Context, user model.User, link string) error
	SendPasswordReset(ctx context.Context, user model.User, link string) error
}

// TokenPair is the access+refresh pair returned by login and refresh.
type TokenPair struct {
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshExpires time.Time
	SessionID      string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User                 model.User
	Pair                 TokenPair // zero value when no tokens were issued
	RequiresVerification bool
}

// RegisterInput carries already-type-checked registration fields from
// the transport layer.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	IPAddress string
	UserAgent string
}

// LoginInput carries a login attempt.  EmailOrUsername is resolved
// against both unique columns.
type LoginInput struct {
	EmailOrUsername string
	Password        string
	IPAddress       string
	UserAgent       string
}

// LogoutInput identifies the caller's verified access token and which
// sessions to terminate.  The fields come from claims the transport
// middleware already validated.
type LogoutInput struct {
	UserID        uint64
	Username      string
	AccessJTI     string
	AccessExpires time.Time
	SessionID     string
	All           bool
	IPAddress     string
	UserAgent     string
}

// Service is the auth orchestrator.  One login attempt walks
// Received -> Validated -> (LockedOut | CredentialRejected |
// Authenticated) -> SessionIssued -> TokensIssued; every terminal state
// writes an audit entry.  The service holds no mutable state of its
// own; all coordination happens through atomic store operations.
type Service struct {
	cfg       config.Config
	users     UserStore
	sessions  SessionStore
	blacklist *Blacklist
	lockout   *LockoutGuard
	audit     *AuditRecorder
	mailer    Mailer
}

// NewService wires the orchestrator.  mailer may be nil in environments
// without a broker; emails are then skipped with a log line.
func NewService(cfg config.Config, users UserStore, sessions SessionStore, bl *Blacklist, guard *LockoutGuard, audit *AuditRecorder, mailer Mailer) *Service {
	return &Service{
		cfg:       cfg,
		users:     users,
		sessions:  sessions,
		blacklist: bl,
		lockout:   guard,
		audit:     audit,
		mailer:    mailer,
	}
}

// Register creates a new, unverified USER account and emits a
// verification email.  Email delivery never blocks or fails the
// response.
func (s *Service) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.TrimSpace(in.Username)
	if email == "" || username == "" || !strings.Contains(email, "@") {
		return AuthResult{}, ErrValidation
	}

	hash, err := utils.HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.Create(ctx, email, username, hash, model.RoleUser)
	if err != nil {
		return AuthResult{}, err
	}

	s.sendVerificationMail(user)

	s.audit.Record(ctx, model.AuditLog{
		EventType:   model.AuditUserRegistered,
		UserID:      &user.ID,
		Username:    user.Username,
		IPAddress:   in.IPAddress,
		UserAgent:   in.UserAgent,
		Success:     true,
		Description: fmt.Sprintf("new user registered: %s", user.Username),
	})

	return AuthResult{User: user, RequiresVerification: !user.IsVerified}, nil
}

// Login authenticates a user and, on success, creates a session and
// issues an access+refresh token pair bound to it.  Unknown identity
// and wrong password are indistinguishable to the caller; only lockout
// is reported explicitly, with a retry-after hint.
func (s *Service) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	ident := strings.TrimSpace(in.EmailOrUsername)
	if ident == "" || in.Password == "" {
		return AuthResult{}, ErrValidation
	}

	user, err := s.findUser(ctx, ident)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.audit.Record(ctx, model.AuditLog{
				EventType:   model.AuditLoginFailed,
				Username:    ident,
				IPAddress:   in.IPAddress,
				UserAgent:   in.UserAgent,
				Success:     false,
				Description: "login attempt for unknown identity",
			})
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	now := time.Now().UTC()
	if locked, until := IsLocked(user, now); locked {
		s.audit.Record(ctx, model.AuditLog{
			EventType:   model.AuditUnauthorizedAccess,
			UserID:      &user.ID,
			Username:    user.Username,
			IPAddress:   in.IPAddress,
			UserAgent:   in.UserAgent,
			Success:     false,
			Description: "login attempt on locked account",
		})
		return AuthResult{}, &AccountLockedError{Until: until}
	}

	if !user.IsActive {
		s.audit.Record(ctx, model.AuditLog{
			EventType:   model.AuditUnauthorizedAccess,
			UserID:      &user.ID,
			Username:    user.Username,
			IPAddress:   in.IPAddress,
			UserAgent:   in.UserAgent,
			Success:     false,
			Description: "login attempt on disabled account",
		})
		return AuthResult{}, ErrAccountDisabled
	}

	if !utils.VerifyPassword(user.PasswordHash, in.Password) {
		return AuthResult{}, s.handleFailedLogin(ctx, user, in)
	}

	if s.cfg.RequireVerified && !user.IsVerified {
		s.audit.Record(ctx, model.AuditLog{
			EventType:   model.AuditUnauthorizedAccess,
			UserID:      &user.ID,
			Username:    user.Username,
			IPAddress:   in.IPAddress,
			UserAgent:   in.UserAgent,
			Success:     false,
			Description: "login attempt with unverified email",
		})
		return AuthResult{}, ErrEmailNotVerified
	}

	if err := s.lockout.RecordSuccess(ctx, user.ID); err != nil {
		// The login itself succeeded; a failed counter reset only means
		// the next failures reach the threshold a little earlier.
		log.Printf("auth: failed to reset lockout counter for user %d: %v", user.ID, err)
	}

	pair, err := s.openSession(ctx, user, in.IPAddress, in.UserAgent)
	if err != nil {
		return AuthResult{}, err
	}

	s.audit.Record(ctx, model.AuditLog{
		EventType:   model.AuditLoginSuccess,
		UserID:      &user.ID,
		Username:    user.Username,
		SessionID:   pair.SessionID,
		IPAddress:   in.IPAddress,
		UserAgent:   in.UserAgent,
		Success:     true,
		Description: fmt.Sprintf("successful login for user: %s", user.Username),
	})

	return AuthResult{User: user, Pair: pair}, nil
}

// Refresh rotates a refresh token: the presented token is consumed
// (blacklisted, one-time use) and a new access+refresh pair is issued
// against the same session.  Presenting an already-consumed token is
// treated as theft: the whole session is revoked and the call fails
// with ErrTokenReuse.  Of two concurrent calls with the same token at
// most one succeeds; the compare-and-swap on the session row decides.
func (s *Service) Refresh(ctx context.Context, refreshToken, ipAddress, userAgent string) (TokenPair, error) {
	claims, err := utils.ParseToken(s.cfg.JWTSecret, refreshToken)
	if err != nil {
		return TokenPair{}, s.rejectToken(ctx, err, ipAddress, userAgent, "refresh")
	}
	if claims.TokenType != model.TokenTypeRefresh || claims.SessionID == "" {
		return TokenPair{}, ErrTokenMalformed
	}
	userID, err := claims.UserID()
	if err != nil {
		return TokenPair{}, ErrTokenMalformed
	}

	blacklisted, blErr := s.blacklist.Contains(ctx, claims.ID)
	if blErr != nil {
		// Fail closed: an unanswerable blacklist rejects the token.
		log.Printf("auth: blacklist check failed during refresh: %v", blErr)
		return TokenPair{}, ErrTokenBlacklisted
	}
	if blacklisted {
		// A blacklisted jti only signals theft while its session is still
		// live: replaying a token that was retired by logout or revocation
		// hits a closed session and is routine, not an attack.
		sess, gerr := s.sessions.GetByID(ctx, claims.SessionID)
		if gerr != nil || !sess.Active(time.Now().UTC()) {
			s.audit.Record(ctx, model.AuditLog{
				EventType:   model.AuditUnauthorizedAccess,
				UserID:      &userID,
				SessionID:   claims.SessionID,
				IPAddress:   ipAddress,
				UserAgent:   userAgent,
				Success:     false,
				Description: "refresh with retired token against closed session",
			})
			return TokenPair{}, ErrSessionRevoked
		}
		return TokenPair{}, s.handleTokenReuse(ctx, userID, claims, ipAddress, userAgent)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrSessionRevoked
		}
		return TokenPair{}, err
	}
	if !user.IsActive {
		return TokenPair{}, ErrAccountDisabled
	}

	now := time.Now().UTC()
	next, err := utils.NewRefreshToken(s.cfg.JWTSecret, user.ID, claims.SessionID, s.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	rotated, err := s.sessions.RotateRefresh(ctx, claims.SessionID, claims.ID, next.JTI, next.Exp, now)
	if err != nil {
		return TokenPair{}, err
	}
	if !rotated {
		// The CAS missed: either the session is gone/revoked/expired, or
		// it is alive with a different outstanding jti, which means the
		// presented token was already rotated away.
		sess, gerr := s.sessions.GetByID(ctx, claims.SessionID)
		if gerr != nil || !sess.Active(now) {
			s.audit.Record(ctx, model.AuditLog{
				EventType:   model.AuditUnauthorizedAccess,
				UserID:      &user.ID,
				Username:    user.Username,
				SessionID:   claims.SessionID,
				IPAddress:   ipAddress,
				UserAgent:   userAgent,
				Success:     false,
				Description: "refresh against revoked or expired session",
			})
			return TokenPair{}, ErrSessionRevoked
		}
		return TokenPair{}, s.handleTokenReuse(ctx, user.ID, claims, ipAddress, userAgent)
	}

	// The presented token is consumed; record its jti until natural
	// expiry.  A failed insert is logged only: the CAS above already
	// guarantees the token can never rotate again.
	if err := s.blacklist.Add(ctx, model.BlacklistedToken{
		JTI:       claims.ID,
		TokenType: model.TokenTypeRefresh,
		UserID:    user.ID,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Time,
		Reason:    "rotated",
	}); err != nil {
		log.Printf("auth: failed to blacklist rotated refresh token: %v", err)
	}

	access, err := utils.NewAccessToken(s.cfg.JWTSecret, user.ID, string(user.Role), claims.SessionID, s.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, err
	}

	s.audit.Record(ctx, model.AuditLog{
		EventType:   model.AuditTokenRefreshed,
		UserID:      &user.ID,
		Username:    user.Username,
		SessionID:   claims.SessionID,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Success:     true,
		Description: "refresh token rotated",
	})

	return TokenPair{
		AccessToken:    access.Token,
		AccessExpires:  access.Exp,
		RefreshToken:   next.Token,
		RefreshExpires: next.Exp,
		SessionID:      claims.SessionID,
	}, nil
}

// Logout blacklists the caller's access token and revokes either the
// current session or, when All is set, every session the user has.
// Outstanding refresh token identifiers of the revoked sessions are
// blacklisted best-effort; a token that slips through still hits the
// revoked-session check on its next refresh.
func (s *Service) Logout(ctx context.Context, in LogoutInput) error {
	if err := s.blacklist.Add(ctx, model.BlacklistedToken{
		JTI:       in.AccessJTI,
		TokenType: model.TokenTypeAccess,
		UserID:    in.UserID,
		SessionID: in.SessionID,
		ExpiresAt: in.AccessExpires,
		Reason:    "logout",
	}); err != nil {
		log.Printf("auth: failed to blacklist access token on logout: %v", err)
	}

	if in.All {
		active, err := s.sessions.ListActive(ctx, in.UserID)
		if err != nil {
			return err
		}
		for _, sess := range active {
			s.blacklistSessionRefresh(ctx, sess, "logout all devices")
		}
		if _, err := s.sessions.RevokeAllForUser(ctx, in.UserID, "logout all devices"); err != nil {
			return err
		}
	} else if in.SessionID != "" {
		if sess, err := s.sessions.GetByID(ctx, in.SessionID); err == nil {
			s.blacklistSessionRefresh(ctx, sess, "logout")
		}
		if err := s.sessions.Revoke(ctx, in.SessionID, "logout"); err != nil {
			return err
		}
	}

	s.audit.Record(ctx, model.AuditLog{
		EventType:   model.AuditLogout,
		UserID:      &in.UserID,
		Username:    in.Username,
		SessionID:   in.SessionID,
		IPAddress:   in.IPAddress,
		UserAgent:   in.UserAgent,
		Success:     true,
		Description: fmt.Sprintf("logout (all=%t)", in.All),
	})
	return nil
}

// ListSessions returns the caller's active sessions, most recently used
// first.
func (s *Service) ListSessions(ctx context.Context, userID uint64) ([]model.Session, error) {
	return s.sessions.ListActive(ctx, userID)
}

// RevokeSession revokes one session.  Regular users may only revoke
// their own; a missing or foreign session reports ErrNotFound either
// way so session IDs cannot be probed.  The session's outstanding
// refresh token identifier is blacklisted best-effort.
func (s *Service) RevokeSession(ctx context.Context, actorID uint64, actorRole model.Role, sessionID, ipAddress, userAgent string) error {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserID != actorID && !actorRole.Can(model.CapRevokeAnySession) {
		return ErrNotFound
	}

	s.blacklistSessionRefresh(ctx, sess, "session revoked")
	if err := s.sessions.Revoke(ctx, sessionID, "revoked by user"); err != nil {
		return err
	}

	s.audit.Record(ctx, model.AuditLog{
		EventType:   model.AuditSessionRevoked,
		UserID:      &sess.UserID,
		SessionID:   sessionID,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Success:     true,
		Description: "session revoked",
	})
	return nil
}

// VerifyEmail consumes a verification token and marks the account
// verified.  Tokens are single-use: the jti is blacklisted on success.
func (s *Service) VerifyEmail(ctx context.Context, token, ipAddress, userAgent string) error {
	claims, err := utils.ParseToken(s.cfg.JWTSecret, token)
	if err != nil {
		return s.rejectToken(ctx, err, ipAddress, userAgent, "verify")
	}
	if claims.TokenType != model.TokenTypeVerify {
		return ErrTokenMalformed
	}
	userID, err := claims.UserID()
	if err != nil {
		return ErrTokenMalformed
	}

	used, blErr := s.blacklist.Contains(ctx, claims.ID)
	if blErr != nil {
		log.Printf("auth: blacklist check failed during email verification: %v", blErr)
		return ErrTokenBlacklisted
	}
	if used {
		return ErrTokenBlacklisted
	}

	if err := s.users.SetVerified(ctx, userID); err != nil {
		return err
	}
	if err := s.blacklist.Add(ctx, model.BlacklistedToken{
		JTI:       claims.ID,
		TokenType: model.TokenTypeVerify,
		UserID:    userID,
		ExpiresAt: claims.ExpiresAt.Time,
		Reason:    "consumed",
	}); err != nil {
		log.Printf("auth: failed to blacklist verification token: %v", err)
	}

	s.audit.Record(ctx, model.AuditLog{
		EventType:   model.AuditEmailVerified,
		UserID:      &userID,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Success:     true,
		Description: "email address verified",
	})
	return nil
}

// ForgotPassword issues a reset token and emails it.  The outcome is
// identical whether or not the address exists, so accounts cannot be
// enumerated through this endpoint.
func (s *Service) ForgotPassword(ctx context.Context, email, ipAddress, userAgent string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return ErrValidation
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	tok, err := utils.NewEmailToken(s.cfg.JWTSecret, user.ID, model.TokenTypeReset, s.cfg.EmailTokenTTL)
	if err != nil {
		return err
	}
	s.sendResetMail(user, tok.Token)

	s.audit.Record(ctx, model.AuditLog{
		EventType:   model.AuditPasswordResetRequested,
		UserID:      &user.ID,
		Username:    user.Username,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Success:     true,
		Description: "password reset requested",
	})
	return nil
}

// ResetPassword consumes a reset token, replaces the credential and
// revokes every session the user has.  Reset tokens are single-use.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword, ipAddress, userAgent string) error {
	claims, err := utils.ParseToken(s.cfg.JWTSecret, token)
	if err != nil {
		return s.rejectToken(ctx, err, ipAddress, userAgent, "reset")
	}
	if claims.TokenType != model.TokenTypeReset {
		return ErrTokenMalformed
	}
	userID, err := claims.UserID()
	if err != nil {
		return ErrTokenMalformed
	}

	used, blErr := s.blacklist.Contains(ctx, claims.ID)
	if blErr != nil {
		log.Printf("auth: blacklist check failed during password reset: %v", blErr)
		return ErrTokenBlacklisted
	}
	if used {
		return ErrTokenBlacklisted
	}

	hash, err := utils.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	if err := s.blacklist.Add(ctx, model.BlacklistedToken{
		JTI:       claims.ID,
		TokenType: model.TokenTypeReset,
		UserID:    userID,
		ExpiresAt: claims.ExpiresAt.Time,
		Reason:    "consumed",
	}); err != nil {
		log.Printf("auth: failed to blacklist reset token: %v", err)
	}

	// Every existing login is now suspect; force re-authentication.
	if _, err := s.sessions.RevokeAllForUser(ctx, userID, "password reset"); err != nil {
		log.Printf("auth: failed to revoke sessions after password reset for user %d: %v", userID, err)
	}

	s.audit.Record(ctx, model.AuditLog{
		EventType:   model.AuditPasswordResetCompleted,
		UserID:      &userID,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Success:     true,
		Description: "password reset completed, all sessions revoked",
	})
	return nil
}

// ----- internals -----

func (s *Service) findUser(ctx context.Context, emailOrUsername string) (model.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(emailOrUsername))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.User{}, err
	}
	return s.users.GetByUsername(ctx, emailOrUsername)
}

// handleFailedLogin runs the CredentialRejected branch: count the
// failure, engage lockout when the threshold is hit, audit either way.
func (s *Service) handleFailedLogin(ctx context.Context, user model.User, in LoginInput) error {
	engaged, until, err := s.lockout.RecordFailure(ctx, user.ID)
	if err != nil {
		log.Printf("auth: failed to record login failure for user %d: %v", user.ID, err)
	}
	if engaged {
		s.audit.Record(ctx, model.AuditLog{
			EventType:   model.AuditAccountLocked,
			UserID:      &user.ID,
			Username:    user.Username,
			IPAddress:   in.IPAddress,
			UserAgent:   in.UserAgent,
			Success:     true,
			Description: fmt.Sprintf("account locked after repeated failures until %s", until.Format(time.RFC3339)),
		})
		return &AccountLockedError{Until: until}
	}
	s.audit.Record(ctx, model.AuditLog{
		EventType:   model.AuditLoginFailed,
		UserID:      &user.ID,
		Username:    user.Username,
		IPAddress:   in.IPAddress,
		UserAgent:   in.UserAgent,
		Success:     false,
		Description: "failed login attempt: invalid password",
	})
	return ErrInvalidCredentials
}

// openSession creates the session record and the token pair bound to it.
func (s *Service) openSession(ctx context.Context, user model.User, ipAddress, userAgent string) (TokenPair, error) {
	now := time.Now().UTC()
	sessionID := uuid.NewString()

	refresh, err := utils.NewRefreshToken(s.cfg.JWTSecret, user.ID, sessionID, s.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	access, err := utils.NewAccessToken(s.cfg.JWTSecret, user.ID, string(user.Role), sessionID, s.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, err
	}

	if err := s.sessions.Create(ctx, model.Session{
		ID:         sessionID,
		UserID:     user.ID,
		RefreshJTI: refresh.JTI,
		UserAgent:  userAgent,
		IPAddress:  ipAddress,
		IssuedAt:   now,
		ExpiresAt:  refresh.Exp,
		LastUsedAt: now,
	}); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:    access.Token,
		AccessExpires:  access.Exp,
		RefreshToken:   refresh.Token,
		RefreshExpires: refresh.Exp,
		SessionID:      sessionID,
	}, nil
}

// handleTokenReuse runs the theft response: revoke the session the
// stolen token was bound to, blacklist the presented identifier and
// write a high-severity audit entry.
func (s *Service) handleTokenReuse(ctx context.Context, userID uint64, claims *utils.Claims, ipAddress, userAgent string) error {
	if err := s.sessions.Revoke(ctx, claims.SessionID, "refresh token reuse"); err != nil && !errors.Is(err, ErrNotFound) {
		log.Printf("auth: failed to revoke session %s after token reuse: %v", claims.SessionID, err)
	}
	if err := s.blacklist.Add(ctx, model.BlacklistedToken{
		JTI:       claims.ID,
		TokenType: model.TokenTypeRefresh,
		UserID:    userID,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Time,
		Reason:    "reuse detected",
	}); err != nil {
		log.Printf("auth: failed to blacklist reused refresh token: %v", err)
	}
	s.audit.Record(ctx, model.AuditLog{
		EventType:   model.AuditTokenReuseDetected,
		UserID:      &userID,
		SessionID:   claims.SessionID,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Success:     false,
		Description: "rotated refresh token presented again, session revoked",
	})
	return ErrTokenReuse
}

// rejectToken maps codec errors onto the core taxonomy and audits the
// rejection.
func (s *Service) rejectToken(ctx context.Context, err error, ipAddress, userAgent, kind string) error {
	mapped := MapTokenError(err)
	s.audit.Record(ctx, model.AuditLog{
		EventType:   model.AuditUnauthorizedAccess,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Success:     false,
		Description: fmt.Sprintf("%s token rejected: %v", kind, mapped),
	})
	return mapped
}

// MapTokenError translates jwt/v5 parse errors into the auth taxonomy.
func MapTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenInvalidClaims):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenInvalid
	default:
		return ErrTokenInvalid
	}
}

// blacklistSessionRefresh records a session's outstanding refresh token
// identifier as revoked.  Best-effort: the revoked-session check is the
// secondary guard if this fails.
func (s *Service) blacklistSessionRefresh(ctx context.Context, sess model.Session, reason string) {
	if sess.RefreshJTI == "" {
		return
	}
	if err := s.blacklist.Add(ctx, model.BlacklistedToken{
		JTI:       sess.RefreshJTI,
		TokenType: model.TokenTypeRefresh,
		UserID:    sess.UserID,
		SessionID: sess.ID,
		ExpiresAt: sess.ExpiresAt,
		Reason:    reason,
	}); err != nil {
		log.Printf("auth: failed to blacklist refresh token of session %s: %v", sess.ID, err)
	}
}

// sendVerificationMail issues a verification token and dispatches the
// email in the background with its own timeout, so broker latency never
// delays the register response.
func (s *Service) sendVerificationMail(user model.User) {
	if s.mailer == nil {
		log.Printf("auth: no mailer configured, skipping verification email for %s", user.Username)
		return
	}
	tok, err := utils.NewEmailToken(s.cfg.JWTSecret, user.ID, model.TokenTypeVerify, s.cfg.EmailTokenTTL)
	if err != nil {
		log.Printf("auth: failed to issue verification token for user %d: %v", user.ID, err)
		return
	}
	link := fmt.Sprintf("%s/verify-email?token=%s", s.cfg.FrontendBaseURL, tok.Token)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.mailer.SendVerification(ctx, user, link); err != nil {
			log.Printf("auth: verification email for user %d failed: %v", user.ID, err)
		}
	}()
}

func (s *Service) sendResetMail(user model.User, token string) {
	if s.mailer == nil {
		log.Printf("auth: no mailer configured, skipping reset email for %s", user.Username)
		return
	}
	link := fmt.Sprintf("%s/reset-password?token=%s", s.cfg.FrontendBaseURL, token)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.mailer.SendPasswordReset(ctx, user, link); err != nil {
			log.Printf("auth: password reset email for user %d failed: %v", user.ID, err)
		}
	}()
}

// PurgeExpired is the periodic maintenance pass: expired sessions are
// marked revoked and expired durable blacklist entries are deleted.
func (s *Service) PurgeExpired(ctx context.Context) {
	now := time.Now().UTC()
	if n, err := s.sessions.RevokeExpired(ctx, now); err != nil {
		log.Printf("auth: revoking expired sessions failed: %v", err)
	} else if n > 0 {
		log.Printf("auth: revoked %d expired sessions", n)
	}
	if n, err := s.blacklist.PurgeExpired(ctx); err != nil {
		log.Printf("auth: purging expired blacklist entries failed: %v", err)
	} else if n > 0 {
		log.Printf("auth: purged %d expired blacklist entries", n)
	}
}
