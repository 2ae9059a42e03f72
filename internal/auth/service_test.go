package auth

import (
    "context"
    "errors"
    "sort"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "golang.org/x/crypto/bcrypt"

    "github.com/iliyamo/identity-service/internal/config"
    "github.com/iliyamo/identity-service/internal/model"
    "github.com/iliyamo/identity-service/internal/utils"
)

// ----- in-memory stores -----
//
// The fakes hold the same row-level guarantees the SQL repositories get
// from the database: every mutation runs under one lock, RotateRefresh
// is a compare-and-swap, EngageLockout only fires for one caller.

type memUsers struct {
    mu     sync.Mutex
    nextID uint64
    byID   map[uint64]*model.User
}

func newMemUsers() *memUsers {
    return &memUsers{byID: map[uint64]*model.User{}}
}

func (s *memUsers) Create(_ context.Context, email, username, passwordHash string, role model.Role) (model.User, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, u := range s.byID {
        if u.Email == email {
            return model.User{}, ErrEmailExists
        }
        if u.Username == username {
            return model.User{}, ErrUsernameExists
        }
    }
    s.nextID++
    now := time.Now().UTC()
    u := &model.User{
        ID:           s.nextID,
        Email:        email,
        Username:     username,
        PasswordHash: passwordHash,
        Role:         role,
        IsActive:     true,
        CreatedAt:    now,
        UpdatedAt:    now,
    }
    s.byID[u.ID] = u
    return *u, nil
}

func (s *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, u := range s.byID {
        if u.Email == email {
            return *u, nil
        }
    }
    return model.User{}, ErrNotFound
}

func (s *memUsers) GetByUsername(_ context.Context, username string) (model.User, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, u := range s.byID {
        if u.Username == username {
            return *u, nil
        }
    }
    return model.User{}, ErrNotFound
}

func (s *memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if u, ok := s.byID[id]; ok {
        return *u, nil
    }
    return model.User{}, ErrNotFound
}

func (s *memUsers) SetVerified(_ context.Context, id uint64) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    u, ok := s.byID[id]
    if !ok {
        return ErrNotFound
    }
    u.IsVerified = true
    return nil
}

func (s *memUsers) UpdatePassword(_ context.Context, id uint64, passwordHash string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    u, ok := s.byID[id]
    if !ok {
        return ErrNotFound
    }
    u.PasswordHash = passwordHash
    return nil
}

func (s *memUsers) IncrementFailedLogins(_ context.Context, userID uint64) (int, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    u, ok := s.byID[userID]
    if !ok {
        return 0, ErrNotFound
    }
    u.FailedLoginAttempts++
    return u.FailedLoginAttempts, nil
}

func (s *memUsers) EngageLockout(_ context.Context, userID uint64, until time.Time, threshold int) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    u, ok := s.byID[userID]
    if !ok {
        return false, ErrNotFound
    }
    now := time.Now().UTC()
    if u.FailedLoginAttempts < threshold {
        return false, nil
    }
    if u.LockedUntil != nil && now.Before(*u.LockedUntil) {
        return false, nil
    }
    u.LockedUntil = &until
    u.FailedLoginAttempts = 0
    return true, nil
}

func (s *memUsers) ResetFailedLogins(_ context.Context, userID uint64) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    u, ok := s.byID[userID]
    if !ok {
        return ErrNotFound
    }
    now := time.Now().UTC()
    u.FailedLoginAttempts = 0
    u.LockedUntil = nil
    u.LastLoginAt = &now
    return nil
}

// setLockedUntil rewinds or clears the lockout window; tests use it
// instead of sleeping through real time.
func (s *memUsers) setLockedUntil(userID uint64, until *time.Time) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.byID[userID].LockedUntil = until
}

func (s *memUsers) setActive(userID uint64, active bool) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.byID[userID].IsActive = active
}

type memSessions struct {
    mu   sync.Mutex
    byID map[string]*model.Session
}

func newMemSessions() *memSessions {
    return &memSessions{byID: map[string]*model.Session{}}
}

func (s *memSessions) Create(_ context.Context, sess model.Session) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    cp := sess
    s.byID[sess.ID] = &cp
    return nil
}

func (s *memSessions) GetByID(_ context.Context, id string) (model.Session, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if sess, ok := s.byID[id]; ok {
        return *sess, nil
    }
    return model.Session{}, ErrNotFound
}

func (s *memSessions) ListActive(_ context.Context, userID uint64) ([]model.Session, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    now := time.Now().UTC()
    var out []model.Session
    for _, sess := range s.byID {
        if sess.UserID == userID && sess.Active(now) {
            out = append(out, *sess)
        }
    }
    // Same ordering contract as the SQL store: most recently used first.
    sort.Slice(out, func(i, j int) bool {
        return out[i].LastUsedAt.After(out[j].LastUsedAt)
    })
    return out, nil
}

func (s *memSessions) Revoke(_ context.Context, id, reason string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    sess, ok := s.byID[id]
    if !ok {
        return ErrNotFound
    }
    if sess.RevokedAt == nil {
        now := time.Now().UTC()
        sess.RevokedAt = &now
        sess.RevokedReason = reason
    }
    return nil
}

func (s *memSessions) RevokeAllForUser(_ context.Context, userID uint64, reason string) (int64, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    now := time.Now().UTC()
    var n int64
    for _, sess := range s.byID {
        if sess.UserID == userID && sess.RevokedAt == nil {
            t := now
            sess.RevokedAt = &t
            sess.RevokedReason = reason
            n++
        }
    }
    return n, nil
}

func (s *memSessions) RotateRefresh(_ context.Context, id, oldJTI, newJTI string, expiresAt, lastUsedAt time.Time) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    sess, ok := s.byID[id]
    now := time.Now().UTC()
    if !ok || sess.RefreshJTI != oldJTI || !sess.Active(now) {
        return false, nil
    }
    sess.RefreshJTI = newJTI
    sess.ExpiresAt = expiresAt
    sess.LastUsedAt = lastUsedAt
    return true, nil
}

func (s *memSessions) RevokeExpired(_ context.Context, now time.Time) (int64, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    var n int64
    for _, sess := range s.byID {
        if sess.RevokedAt == nil && !now.Before(sess.ExpiresAt) {
            t := now
            sess.RevokedAt = &t
            sess.RevokedReason = "expired"
            n++
        }
    }
    return n, nil
}

type memAudit struct {
    mu      sync.Mutex
    entries []model.AuditLog
}

func (a *memAudit) Insert(_ context.Context, e model.AuditLog) error {
    a.mu.Lock()
    defer a.mu.Unlock()
    e.ID = uint64(len(a.entries) + 1)
    a.entries = append(a.entries, e)
    return nil
}

func (a *memAudit) ListRecent(_ context.Context, limit, offset int) ([]model.AuditLog, error) {
    a.mu.Lock()
    defer a.mu.Unlock()
    out := make([]model.AuditLog, len(a.entries))
    copy(out, a.entries)
    return out, nil
}

func (a *memAudit) count(event model.AuditEvent) int {
    a.mu.Lock()
    defer a.mu.Unlock()
    n := 0
    for _, e := range a.entries {
        if e.EventType == event {
            n++
        }
    }
    return n
}

// ----- harness -----

type testEnv struct {
    svc      *Service
    cfg      config.Config
    users    *memUsers
    sessions *memSessions
    audit    *memAudit
}

func newTestEnv(t *testing.T) *testEnv {
    t.Helper()
    cfg := config.Config{
        JWTSecret:        "service-test-secret",
        AccessTTL:        30 * time.Minute,
        RefreshTTL:       7 * 24 * time.Hour,
        EmailTokenTTL:    24 * time.Hour,
        BcryptCost:       bcrypt.MinCost,
        LockoutThreshold: 5,
        LockoutDuration:  30 * time.Minute,
        FrontendBaseURL:  "http://localhost:3000",
    }
    users := newMemUsers()
    sessions := newMemSessions()
    audit := &memAudit{}
    svc := NewService(cfg,
        users,
        sessions,
        NewBlacklist(nil, newMemFallback()),
        NewLockoutGuard(users, cfg.LockoutThreshold, cfg.LockoutDuration),
        NewAuditRecorder(audit),
        nil, // no mailer; the service logs and moves on
    )
    return &testEnv{svc: svc, cfg: cfg, users: users, sessions: sessions, audit: audit}
}

const testPassword = "Sup3rSecret"

func (e *testEnv) register(t *testing.T, email, username string) model.User {
    t.Helper()
    res, err := e.svc.Register(context.Background(), RegisterInput{
        Email:    email,
        Username: username,
        Password: testPassword,
    })
    require.NoError(t, err)
    return res.User
}

func (e *testEnv) login(t *testing.T, ident string) AuthResult {
    t.Helper()
    res, err := e.svc.Login(context.Background(), LoginInput{
        EmailOrUsername: ident,
        Password:        testPassword,
        IPAddress:       "127.0.0.1",
        UserAgent:       "go-test",
    })
    require.NoError(t, err)
    return res
}

// ----- tests -----

func TestRegisterAndLogin(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()

    res, err := env.svc.Register(ctx, RegisterInput{
        Email:    "Alice@Example.com",
        Username: "alice",
        Password: testPassword,
    })
    require.NoError(t, err)
    assert.Equal(t, "alice@example.com", res.User.Email, "emails are normalized to lower case")
    assert.Equal(t, model.RoleUser, res.User.Role)
    assert.True(t, res.RequiresVerification)
    assert.Empty(t, res.Pair.AccessToken, "registration issues no tokens")
    assert.Equal(t, 1, env.audit.count(model.AuditUserRegistered))

    // Login works with the email or the username.
    byEmail := env.login(t, "alice@example.com")
    byName := env.login(t, "alice")
    assert.NotEqual(t, byEmail.Pair.SessionID, byName.Pair.SessionID, "each login opens its own session")

    claims, err := utils.ParseToken(env.cfg.JWTSecret, byEmail.Pair.AccessToken)
    require.NoError(t, err)
    assert.Equal(t, model.TokenTypeAccess, claims.TokenType)
    assert.Equal(t, byEmail.Pair.SessionID, claims.SessionID)
    assert.Equal(t, string(model.RoleUser), claims.Role)

    assert.Equal(t, 2, env.audit.count(model.AuditLoginSuccess))
}

func TestRegisterDuplicates(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    env.register(t, "bob@example.com", "bob")

    _, err := env.svc.Register(ctx, RegisterInput{Email: "bob@example.com", Username: "bobby", Password: testPassword})
    assert.ErrorIs(t, err, ErrEmailExists)

    _, err = env.svc.Register(ctx, RegisterInput{Email: "bob2@example.com", Username: "bob", Password: testPassword})
    assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestRegisterRejectsWeakPasswordAndBadInput(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()

    _, err := env.svc.Register(ctx, RegisterInput{Email: "x@example.com", Username: "x1", Password: "short"})
    assert.ErrorIs(t, err, utils.ErrWeakPassword)

    _, err = env.svc.Register(ctx, RegisterInput{Email: "not-an-email", Username: "x2", Password: testPassword})
    assert.ErrorIs(t, err, ErrValidation)
}

func TestLoginUnknownAndWrongPassword(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    env.register(t, "carol@example.com", "carol")

    // Unknown identity and wrong password are indistinguishable.
    _, err := env.svc.Login(ctx, LoginInput{EmailOrUsername: "nobody@example.com", Password: testPassword})
    assert.ErrorIs(t, err, ErrInvalidCredentials)

    _, err = env.svc.Login(ctx, LoginInput{EmailOrUsername: "carol@example.com", Password: "Wr0ngPassword"})
    assert.ErrorIs(t, err, ErrInvalidCredentials)

    assert.Equal(t, 2, env.audit.count(model.AuditLoginFailed))
}

func TestLoginDisabledAccount(t *testing.T) {
    env := newTestEnv(t)
    user := env.register(t, "dan@example.com", "dan")
    env.users.setActive(user.ID, false)

    _, err := env.svc.Login(context.Background(), LoginInput{EmailOrUsername: "dan", Password: testPassword})
    assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestLoginRequiresVerifiedEmailWhenConfigured(t *testing.T) {
    env := newTestEnv(t)
    env.cfg.RequireVerified = true
    env.svc = NewService(env.cfg, env.users, env.sessions,
        NewBlacklist(nil, newMemFallback()),
        NewLockoutGuard(env.users, env.cfg.LockoutThreshold, env.cfg.LockoutDuration),
        NewAuditRecorder(env.audit), nil)

    user := env.register(t, "eve@example.com", "eve")
    _, err := env.svc.Login(context.Background(), LoginInput{EmailOrUsername: "eve", Password: testPassword})
    assert.ErrorIs(t, err, ErrEmailNotVerified)

    require.NoError(t, env.users.SetVerified(context.Background(), user.ID))
    env.login(t, "eve")
}

func TestLockoutEngagesOnFifthFailure(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    user := env.register(t, "frank@example.com", "frank")

    bad := LoginInput{EmailOrUsername: "frank", Password: "Wr0ngPassword"}
    for i := 0; i < 4; i++ {
        _, err := env.svc.Login(ctx, bad)
        assert.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i+1)
    }

    // The 5th failure trips the lock and reports it, not a generic 401.
    _, err := env.svc.Login(ctx, bad)
    var locked *AccountLockedError
    require.ErrorAs(t, err, &locked)
    assert.ErrorIs(t, err, ErrAccountLocked)
    assert.WithinDuration(t, time.Now().UTC().Add(env.cfg.LockoutDuration), locked.Until, 5*time.Second)
    assert.Equal(t, 1, env.audit.count(model.AuditAccountLocked))

    // Even the correct password bounces while the window is open.
    _, err = env.svc.Login(ctx, LoginInput{EmailOrUsername: "frank", Password: testPassword})
    assert.ErrorIs(t, err, ErrAccountLocked)

    // Once the window elapses, a correct login succeeds and resets state.
    past := time.Now().UTC().Add(-time.Minute)
    env.users.setLockedUntil(user.ID, &past)
    env.login(t, "frank")

    u, err := env.users.GetByID(ctx, user.ID)
    require.NoError(t, err)
    assert.Zero(t, u.FailedLoginAttempts)
    assert.Nil(t, u.LockedUntil)
    assert.NotNil(t, u.LastLoginAt)
}

func TestLockoutConcurrentFailureStorm(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    env.register(t, "grace@example.com", "grace")

    const attempts = 20
    var wg sync.WaitGroup
    for i := 0; i < attempts; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            _, _ = env.svc.Login(ctx, LoginInput{EmailOrUsername: "grace", Password: "Wr0ngPassword"})
        }()
    }
    wg.Wait()

    // However the storm interleaves, the lock engages exactly once.
    assert.Equal(t, 1, env.audit.count(model.AuditAccountLocked))
}

func TestRefreshRotationAndReuseDetection(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    env.register(t, "heidi@example.com", "heidi")
    first := env.login(t, "heidi")

    // First rotation succeeds and stays on the same session.
    second, err := env.svc.Refresh(ctx, first.Pair.RefreshToken, "127.0.0.1", "go-test")
    require.NoError(t, err)
    assert.Equal(t, first.Pair.SessionID, second.SessionID)
    assert.NotEqual(t, first.Pair.RefreshToken, second.RefreshToken)
    assert.Equal(t, 1, env.audit.count(model.AuditTokenRefreshed))

    // Replaying the consumed token is treated as theft: the session dies.
    _, err = env.svc.Refresh(ctx, first.Pair.RefreshToken, "10.0.0.9", "stolen-client")
    assert.ErrorIs(t, err, ErrTokenReuse)
    assert.Equal(t, 1, env.audit.count(model.AuditTokenReuseDetected))

    // The legitimate holder is logged out too; its fresh token now hits
    // the revoked session.
    _, err = env.svc.Refresh(ctx, second.RefreshToken, "127.0.0.1", "go-test")
    assert.ErrorIs(t, err, ErrSessionRevoked)
}

func TestRefreshConcurrentUseSingleWinner(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    env.register(t, "ivan@example.com", "ivan")
    res := env.login(t, "ivan")

    var wg sync.WaitGroup
    results := make(chan error, 2)
    for i := 0; i < 2; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            _, err := env.svc.Refresh(ctx, res.Pair.RefreshToken, "127.0.0.1", "go-test")
            results <- err
        }()
    }
    wg.Wait()
    close(results)

    var ok, reuse int
    for err := range results {
        switch {
        case err == nil:
            ok++
        case errors.Is(err, ErrTokenReuse):
            reuse++
        default:
            t.Fatalf("unexpected refresh error: %v", err)
        }
    }
    assert.Equal(t, 1, ok, "the compare-and-swap admits exactly one rotation")
    assert.Equal(t, 1, reuse)
}

func TestRefreshRejectsWrongTokenKind(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    env.register(t, "judy@example.com", "judy")
    res := env.login(t, "judy")

    // An access token must not pass as a refresh token.
    _, err := env.svc.Refresh(ctx, res.Pair.AccessToken, "127.0.0.1", "go-test")
    assert.ErrorIs(t, err, ErrTokenMalformed)

    // An expired refresh token reports expiry.
    expired, err := utils.NewRefreshToken(env.cfg.JWTSecret, res.User.ID, res.Pair.SessionID, -time.Minute)
    require.NoError(t, err)
    _, err = env.svc.Refresh(ctx, expired.Token, "127.0.0.1", "go-test")
    assert.ErrorIs(t, err, ErrTokenExpired)

    // Garbage is malformed.
    _, err = env.svc.Refresh(ctx, "garbage", "127.0.0.1", "go-test")
    assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestLogoutCurrentSession(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    user := env.register(t, "kate@example.com", "kate")
    first := env.login(t, "kate")
    second := env.login(t, "kate")

    claims, err := utils.ParseToken(env.cfg.JWTSecret, first.Pair.AccessToken)
    require.NoError(t, err)

    require.NoError(t, env.svc.Logout(ctx, LogoutInput{
        UserID:        user.ID,
        Username:      user.Username,
        AccessJTI:     claims.ID,
        AccessExpires: claims.ExpiresAt.Time,
        SessionID:     first.Pair.SessionID,
    }))

    // The logged-out session is gone, the other one survives.
    active, err := env.svc.ListSessions(ctx, user.ID)
    require.NoError(t, err)
    require.Len(t, active, 1)
    assert.Equal(t, second.Pair.SessionID, active[0].ID)

    // The first session's refresh token is dead; the second still works.
    // The dead token hits the closed session, which is a routine
    // rejection rather than a theft signal.
    _, err = env.svc.Refresh(ctx, first.Pair.RefreshToken, "127.0.0.1", "go-test")
    assert.ErrorIs(t, err, ErrSessionRevoked)
    assert.Equal(t, 0, env.audit.count(model.AuditTokenReuseDetected))
    _, err = env.svc.Refresh(ctx, second.Pair.RefreshToken, "127.0.0.1", "go-test")
    assert.NoError(t, err)
}

func TestLogoutAllDevices(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    user := env.register(t, "liam@example.com", "liam")
    first := env.login(t, "liam")
    second := env.login(t, "liam")

    claims, err := utils.ParseToken(env.cfg.JWTSecret, first.Pair.AccessToken)
    require.NoError(t, err)

    require.NoError(t, env.svc.Logout(ctx, LogoutInput{
        UserID:        user.ID,
        Username:      user.Username,
        AccessJTI:     claims.ID,
        AccessExpires: claims.ExpiresAt.Time,
        SessionID:     first.Pair.SessionID,
        All:           true,
    }))

    active, err := env.svc.ListSessions(ctx, user.ID)
    require.NoError(t, err)
    assert.Empty(t, active)

    // Replaying tokens retired by an ordinary logout hits the closed
    // sessions; it is not treated as theft and raises no theft audit.
    _, err = env.svc.Refresh(ctx, first.Pair.RefreshToken, "127.0.0.1", "go-test")
    assert.ErrorIs(t, err, ErrSessionRevoked)
    _, err = env.svc.Refresh(ctx, second.Pair.RefreshToken, "127.0.0.1", "go-test")
    assert.ErrorIs(t, err, ErrSessionRevoked)
    assert.Equal(t, 0, env.audit.count(model.AuditTokenReuseDetected))
}

func TestSessionOrderingMostRecentlyUsedFirst(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    user := env.register(t, "ruth@example.com", "ruth")
    first := env.login(t, "ruth")
    second := env.login(t, "ruth")

    // Refreshing the older session bumps its last-used-at past the
    // newer login's, so it must move to the front of the listing.
    _, err := env.svc.Refresh(ctx, first.Pair.RefreshToken, "127.0.0.1", "go-test")
    require.NoError(t, err)

    active, err := env.svc.ListSessions(ctx, user.ID)
    require.NoError(t, err)
    require.Len(t, active, 2)
    assert.Equal(t, first.Pair.SessionID, active[0].ID)
    assert.Equal(t, second.Pair.SessionID, active[1].ID)
}

func TestRevokeSessionOwnership(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    owner := env.register(t, "mia@example.com", "mia")
    other := env.register(t, "noah@example.com", "noah")
    res := env.login(t, "mia")

    // A stranger may not revoke it, and cannot learn that it exists.
    err := env.svc.RevokeSession(ctx, other.ID, model.RoleUser, res.Pair.SessionID, "127.0.0.1", "go-test")
    assert.ErrorIs(t, err, ErrNotFound)

    // The owner may.
    require.NoError(t, env.svc.RevokeSession(ctx, owner.ID, model.RoleUser, res.Pair.SessionID, "127.0.0.1", "go-test"))
    active, err := env.svc.ListSessions(ctx, owner.ID)
    require.NoError(t, err)
    assert.Empty(t, active)
    assert.Equal(t, 1, env.audit.count(model.AuditSessionRevoked))

    // Admins may revoke anyone's session.
    res2 := env.login(t, "noah")
    require.NoError(t, env.svc.RevokeSession(ctx, owner.ID, model.RoleAdmin, res2.Pair.SessionID, "127.0.0.1", "go-test"))
}

func TestVerifyEmailFlow(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    user := env.register(t, "olive@example.com", "olive")

    tok, err := utils.NewEmailToken(env.cfg.JWTSecret, user.ID, model.TokenTypeVerify, time.Hour)
    require.NoError(t, err)

    require.NoError(t, env.svc.VerifyEmail(ctx, tok.Token, "127.0.0.1", "go-test"))
    u, err := env.users.GetByID(ctx, user.ID)
    require.NoError(t, err)
    assert.True(t, u.IsVerified)
    assert.Equal(t, 1, env.audit.count(model.AuditEmailVerified))

    // Verification tokens are single-use.
    err = env.svc.VerifyEmail(ctx, tok.Token, "127.0.0.1", "go-test")
    assert.ErrorIs(t, err, ErrTokenBlacklisted)

    // A reset token must not verify an email.
    wrong, err := utils.NewEmailToken(env.cfg.JWTSecret, user.ID, model.TokenTypeReset, time.Hour)
    require.NoError(t, err)
    err = env.svc.VerifyEmail(ctx, wrong.Token, "127.0.0.1", "go-test")
    assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestPasswordResetFlow(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    user := env.register(t, "pam@example.com", "pam")
    res := env.login(t, "pam")

    // Unknown addresses produce the same outcome as known ones.
    require.NoError(t, env.svc.ForgotPassword(ctx, "ghost@example.com", "127.0.0.1", "go-test"))
    require.NoError(t, env.svc.ForgotPassword(ctx, "pam@example.com", "127.0.0.1", "go-test"))
    assert.Equal(t, 1, env.audit.count(model.AuditPasswordResetRequested))

    tok, err := utils.NewEmailToken(env.cfg.JWTSecret, user.ID, model.TokenTypeReset, time.Hour)
    require.NoError(t, err)

    // A weak replacement is rejected and consumes nothing.
    err = env.svc.ResetPassword(ctx, tok.Token, "weak", "127.0.0.1", "go-test")
    assert.ErrorIs(t, err, utils.ErrWeakPassword)

    const newPassword = "N3wSecretValue"
    require.NoError(t, env.svc.ResetPassword(ctx, tok.Token, newPassword, "127.0.0.1", "go-test"))
    assert.Equal(t, 1, env.audit.count(model.AuditPasswordResetCompleted))

    // Reset tokens are single-use.
    err = env.svc.ResetPassword(ctx, tok.Token, newPassword, "127.0.0.1", "go-test")
    assert.ErrorIs(t, err, ErrTokenBlacklisted)

    // Existing sessions are revoked; the old password no longer works.
    active, err := env.svc.ListSessions(ctx, user.ID)
    require.NoError(t, err)
    assert.Empty(t, active)
    _, err = env.svc.Refresh(ctx, res.Pair.RefreshToken, "127.0.0.1", "go-test")
    assert.Error(t, err)

    _, err = env.svc.Login(ctx, LoginInput{EmailOrUsername: "pam", Password: testPassword})
    assert.ErrorIs(t, err, ErrInvalidCredentials)
    _, err = env.svc.Login(ctx, LoginInput{EmailOrUsername: "pam", Password: newPassword})
    assert.NoError(t, err)
}

func TestPurgeExpired(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    user := env.register(t, "quinn@example.com", "quinn")
    res := env.login(t, "quinn")

    // Force the session past its expiry.
    env.sessions.mu.Lock()
    env.sessions.byID[res.Pair.SessionID].ExpiresAt = time.Now().UTC().Add(-time.Minute)
    env.sessions.mu.Unlock()

    env.svc.PurgeExpired(ctx)

    active, err := env.svc.ListSessions(ctx, user.ID)
    require.NoError(t, err)
    assert.Empty(t, active)
}
