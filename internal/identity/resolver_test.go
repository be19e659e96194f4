package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/local-scope/localscope/internal/config"
	"github.com/local-scope/localscope/internal/domain"
)

type fakeAuth struct {
	mu            sync.Mutex
	session       *domain.Session
	listeners     map[int]func(domain.AuthEvent)
	next          int
	signIn        func(email, password string) (*domain.Session, error)
	signUp        func(SignUpRequest) (*domain.Session, error)
	signOutErr    error
	silentSignOut bool
}

func newFakeAuth(session *domain.Session) *fakeAuth {
	return &fakeAuth{session: session, listeners: map[int]func(domain.AuthEvent){}}
}

func (f *fakeAuth) emit(kind domain.AuthEventKind, session *domain.Session) {
	f.mu.Lock()
	f.session = session
	listeners := make([]func(domain.AuthEvent), 0, len(f.listeners))
	for _, l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.mu.Unlock()

	for _, l := range listeners {
		l(domain.AuthEvent{Kind: kind, Session: session})
	}
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, email, password string) (*domain.Session, error) {
	session, err := f.signIn(email, password)
	if err != nil {
		return nil, err
	}
	f.emit(domain.AuthEventSignedIn, session)
	return session, nil
}

func (f *fakeAuth) SignUp(_ context.Context, req SignUpRequest) (*domain.Session, error) {
	session, err := f.signUp(req)
	if err != nil {
		return nil, err
	}
	if session != nil {
		f.emit(domain.AuthEventSignedIn, session)
	}
	return session, nil
}

func (f *fakeAuth) SignOut(context.Context) error {
	if f.silentSignOut {
		return f.signOutErr
	}
	f.emit(domain.AuthEventSignedOut, nil)
	return f.signOutErr
}

func (f *fakeAuth) GetSession(context.Context) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, nil
}

func (f *fakeAuth) OnAuthStateChange(listener func(domain.AuthEvent)) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.listeners[id] = listener
	session := f.session
	f.mu.Unlock()

	listener(domain.AuthEvent{Kind: domain.AuthEventInitialSession, Session: session})
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

type fakeProfiles struct {
	mu        sync.Mutex
	rows      map[string]*domain.Profile
	get       func(ctx context.Context, userID string) (*domain.Profile, error)
	gets      map[string]int
	updates   int
	updateErr error
	normalize func(p *domain.Profile)
	noRow     bool
}

func newFakeProfiles(rows ...*domain.Profile) *fakeProfiles {
	f := &fakeProfiles{rows: map[string]*domain.Profile{}, gets: map[string]int{}}
	for _, p := range rows {
		f.rows[p.UserID] = p
	}
	return f
}

func (f *fakeProfiles) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	f.mu.Lock()
	f.gets[userID]++
	get := f.get
	f.mu.Unlock()
	if get != nil {
		return get(ctx, userID)
	}
	return f.row(userID)
}

func (f *fakeProfiles) row(userID string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return p.Clone(), nil
}

func (f *fakeProfiles) UpdateProfile(_ context.Context, userID string, update domain.ProfileUpdate) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	p, ok := f.rows[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	update.ApplyTo(p)
	if f.normalize != nil {
		f.normalize(p)
	}
	if f.noRow {
		return nil, nil
	}
	return p.Clone(), nil
}

func (f *fakeProfiles) getCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets[userID]
}

func (f *fakeProfiles) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *recordingNotifier) Notify(notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) all() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}

func sessionFor(userID string) *domain.Session {
	return &domain.Session{
		ID:          "s-" + userID,
		UserID:      userID,
		Email:       userID + "@example.com",
		AccessToken: "token-" + userID,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func profileFor(userID string, role domain.Role) *domain.Profile {
	return &domain.Profile{
		ID:               "p-" + userID,
		UserID:           userID,
		Email:            userID + "@example.com",
		FullName:         "User " + userID,
		Role:             role,
		SubscriptionTier: domain.TierFree,
	}
}

type harness struct {
	resolver *Resolver
	auth     *fakeAuth
	profiles *fakeProfiles
	notifier *recordingNotifier
	logs     *observer.ObservedLogs
}

func newHarness(t *testing.T, session *domain.Session, opts Options, rows ...*domain.Profile) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		auth:     newFakeAuth(session),
		profiles: newFakeProfiles(rows...),
		notifier: &recordingNotifier{},
		logs:     logs,
	}
	opts.Logger = zap.New(core)
	opts.Notifier = h.notifier
	h.resolver = NewResolver(h.auth, h.profiles, opts)
	t.Cleanup(h.resolver.Close)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.resolver.Start(context.Background()))
}

func (h *harness) settle(t *testing.T) domain.ResolvedIdentity {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	id, err := h.resolver.AwaitSettled(ctx)
	require.NoError(t, err)
	return id
}

func (h *harness) discards() int {
	return h.logs.FilterMessage("discarding stale profile result").Len()
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.IdentityConfig{
		ProfileFetchDelayMillis: 500,
		ProfileFetchTimeoutSec:  10,
		NotFoundRetries:         2,
		NotFoundBackoffMillis:   250,
	})
	assert.Equal(t, 500*time.Millisecond, opts.ProfileFetchDelay)
	assert.Equal(t, 10*time.Second, opts.ProfileFetchTimeout)
	assert.Equal(t, 2, opts.NotFoundRetries)
	assert.Equal(t, 250*time.Millisecond, opts.NotFoundBackoff)
}

func TestLoadingUntilFirstEvent(t *testing.T) {
	h := newHarness(t, nil, Options{})
	assert.True(t, h.resolver.Current().IsLoading)

	h.start(t)
	id := h.resolver.Current()
	assert.False(t, id.IsLoading)
	assert.False(t, id.HasSession())
	assert.Nil(t, id.Profile)
	assert.Equal(t, domain.ProfileStateNone, id.ProfileState)
}

func TestRestoredSessionLoadsProfile(t *testing.T) {
	h := newHarness(t, sessionFor("u-1"), Options{}, profileFor("u-1", domain.RoleBusinessUser))
	h.start(t)

	id := h.settle(t)
	require.True(t, id.Authenticated())
	assert.Equal(t, domain.RoleBusinessUser, id.Role())
	assert.Equal(t, domain.ProfileStateLoaded, id.ProfileState)
	assert.Equal(t, uint64(1), id.Generation)
}

func TestSignOutClearsProfileInSameStep(t *testing.T) {
	h := newHarness(t, sessionFor("u-1"), Options{}, profileFor("u-1", domain.RoleCustomer))
	h.start(t)
	require.True(t, h.settle(t).Authenticated())

	h.auth.emit(domain.AuthEventSignedOut, nil)

	id := h.resolver.Current()
	assert.Nil(t, id.Session)
	assert.Nil(t, id.Profile)
	assert.False(t, id.IsLoading)
}

func TestNullSessionNeverLeavesProfile(t *testing.T) {
	rows := []*domain.Profile{profileFor("a", domain.RoleCustomer), profileFor("b", domain.RoleAdmin)}
	h := newHarness(t, nil, Options{}, rows...)
	h.start(t)

	sequence := []*domain.Session{
		sessionFor("a"), nil, sessionFor("b"), sessionFor("a"), nil, nil,
		sessionFor("b"), sessionFor("b"), nil, sessionFor("a"), nil,
	}
	kinds := []domain.AuthEventKind{domain.AuthEventSignedIn, domain.AuthEventTokenRefreshed, domain.AuthEventUserUpdated}
	for i, s := range sequence {
		if s == nil {
			h.auth.emit(domain.AuthEventSignedOut, nil)
			id := h.resolver.Current()
			assert.Nil(t, id.Profile, "step %d", i)
			assert.False(t, id.IsLoading, "step %d", i)
			continue
		}
		h.auth.emit(kinds[i%len(kinds)], s)
	}

	h.resolver.Close()
	id := h.resolver.Current()
	assert.Nil(t, id.Session)
	assert.Nil(t, id.Profile)
}

func TestStaleFetchDoesNotOverwriteNewerGeneration(t *testing.T) {
	h := newHarness(t, nil, Options{},
		profileFor("slow", domain.RoleAdmin),
		profileFor("fast", domain.RoleCustomer))
	entered := make(chan struct{})
	release := make(chan struct{})
	h.profiles.get = func(_ context.Context, userID string) (*domain.Profile, error) {
		if userID == "slow" {
			close(entered)
			<-release
		}
		return h.profiles.row(userID)
	}
	h.start(t)

	h.auth.emit(domain.AuthEventTokenRefreshed, sessionFor("slow"))
	<-entered
	h.auth.emit(domain.AuthEventTokenRefreshed, sessionFor("fast"))

	id := h.settle(t)
	require.True(t, id.Authenticated())
	assert.Equal(t, "fast", id.Profile.UserID)

	close(release)
	require.Eventually(t, func() bool { return h.discards() == 1 }, 2*time.Second, 5*time.Millisecond)

	id = h.resolver.Current()
	assert.Equal(t, "fast", id.Session.UserID)
	assert.Equal(t, "fast", id.Profile.UserID)
	assert.Equal(t, domain.RoleCustomer, id.Role())
}

func TestSlowLoginRacingLogout(t *testing.T) {
	h := newHarness(t, nil, Options{}, profileFor("u-1", domain.RoleAdmin))
	entered := make(chan struct{})
	release := make(chan struct{})
	h.profiles.get = func(_ context.Context, userID string) (*domain.Profile, error) {
		close(entered)
		<-release
		return h.profiles.row(userID)
	}
	h.start(t)

	h.auth.emit(domain.AuthEventSignedIn, sessionFor("u-1"))
	<-entered
	h.auth.emit(domain.AuthEventSignedOut, nil)
	close(release)

	require.Eventually(t, func() bool { return h.discards() == 1 }, 2*time.Second, 5*time.Millisecond)
	id := h.resolver.Current()
	assert.Nil(t, id.Session)
	assert.Nil(t, id.Profile)
	assert.False(t, id.IsLoading)
}

func TestSignedInWaitsForFetchDelay(t *testing.T) {
	const delay = 80 * time.Millisecond
	h := newHarness(t, nil, Options{ProfileFetchDelay: delay}, profileFor("u-1", domain.RoleCustomer))
	var (
		mu        sync.Mutex
		fetchedAt time.Time
	)
	h.profiles.get = func(_ context.Context, userID string) (*domain.Profile, error) {
		mu.Lock()
		fetchedAt = time.Now()
		mu.Unlock()
		return h.profiles.row(userID)
	}
	h.start(t)

	emittedAt := time.Now()
	h.auth.emit(domain.AuthEventSignedIn, sessionFor("u-1"))
	assert.True(t, h.resolver.Current().IsLoading)

	id := h.settle(t)
	require.True(t, id.Authenticated())
	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, fetchedAt.Sub(emittedAt), delay)
}

func TestEndedContextSettlesPendingFetch(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		trigger func(h *harness)
	}{
		{
			name: "during fetch delay",
			opts: Options{ProfileFetchDelay: time.Hour},
			trigger: func(h *harness) {
				h.auth.emit(domain.AuthEventSignedIn, sessionFor("u-1"))
			},
		},
		{
			name: "during fetch",
			trigger: func(h *harness) {
				h.profiles.get = func(ctx context.Context, _ string) (*domain.Profile, error) {
					<-ctx.Done()
					return nil, ctx.Err()
				}
				h.auth.emit(domain.AuthEventSignedIn, sessionFor("u-1"))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil, tt.opts, profileFor("u-1", domain.RoleCustomer))
			ctx, cancel := context.WithCancel(context.Background())
			require.NoError(t, h.resolver.Start(ctx))
			tt.trigger(h)
			require.True(t, h.resolver.Current().IsLoading)

			cancel()
			id := h.settle(t)
			assert.False(t, id.IsLoading)
			assert.Equal(t, domain.ProfileStateFetchFailed, id.ProfileState)
			assert.NotNil(t, id.Session)
			assert.Nil(t, id.Profile)
		})
	}
}

func TestSupersededDuringDelaySkipsFetch(t *testing.T) {
	h := newHarness(t, nil, Options{ProfileFetchDelay: 50 * time.Millisecond}, profileFor("u-1", domain.RoleCustomer))
	h.start(t)

	h.auth.emit(domain.AuthEventUserUpdated, sessionFor("u-1"))
	h.auth.emit(domain.AuthEventSignedOut, nil)

	require.Eventually(t, func() bool { return h.discards() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, h.profiles.getCount("u-1"))
}

func TestMissingProfileIsTerminal(t *testing.T) {
	h := newHarness(t, sessionFor("u-1"), Options{})
	h.start(t)

	id := h.settle(t)
	assert.True(t, id.HasSession())
	assert.Nil(t, id.Profile)
	assert.False(t, id.IsLoading)
	assert.Equal(t, domain.ProfileStateNotFound, id.ProfileState)
	assert.Equal(t, 1, h.profiles.getCount("u-1"))
}

func TestMissingProfileRetriesWithBackoff(t *testing.T) {
	h := newHarness(t, sessionFor("u-1"), Options{NotFoundRetries: 3, NotFoundBackoff: time.Millisecond})
	h.profiles.get = func(_ context.Context, userID string) (*domain.Profile, error) {
		if h.profiles.getCount(userID) < 3 {
			return nil, domain.ErrProfileNotFound
		}
		return profileFor(userID, domain.RoleBusinessUser), nil
	}
	h.start(t)

	id := h.settle(t)
	require.True(t, id.Authenticated())
	assert.Equal(t, 3, h.profiles.getCount("u-1"))
}

func TestFetchErrorIsAbsorbed(t *testing.T) {
	h := newHarness(t, sessionFor("u-1"), Options{})
	h.profiles.get = func(context.Context, string) (*domain.Profile, error) {
		return nil, errors.New("connection reset")
	}
	h.start(t)

	id := h.settle(t)
	assert.True(t, id.HasSession())
	assert.Nil(t, id.Profile)
	assert.Equal(t, domain.ProfileStateFetchFailed, id.ProfileState)

	failures := h.logs.FilterMessage("profile fetch failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, zapcore.ErrorLevel, failures[0].Level)
}

func TestHungFetchTimesOut(t *testing.T) {
	h := newHarness(t, sessionFor("u-1"), Options{ProfileFetchTimeout: 30 * time.Millisecond})
	block := make(chan struct{})
	defer close(block)
	h.profiles.get = func(context.Context, string) (*domain.Profile, error) {
		<-block
		return nil, nil
	}
	h.start(t)

	id := h.settle(t)
	assert.False(t, id.IsLoading)
	assert.Equal(t, domain.ProfileStateFetchFailed, id.ProfileState)
}

func TestDifferentSubjectProfileIsDropped(t *testing.T) {
	h := newHarness(t, sessionFor("a"), Options{},
		profileFor("a", domain.RoleAdmin),
		profileFor("b", domain.RoleCustomer))
	h.start(t)
	require.True(t, h.settle(t).Authenticated())

	release := make(chan struct{})
	h.profiles.get = func(_ context.Context, userID string) (*domain.Profile, error) {
		<-release
		return h.profiles.row(userID)
	}

	h.auth.emit(domain.AuthEventTokenRefreshed, sessionFor("a"))
	id := h.resolver.Current()
	assert.True(t, id.IsLoading)
	require.NotNil(t, id.Profile, "same subject keeps its profile while reloading")

	h.auth.emit(domain.AuthEventSignedIn, sessionFor("b"))
	id = h.resolver.Current()
	assert.True(t, id.IsLoading)
	assert.Nil(t, id.Profile)

	close(release)
	id = h.settle(t)
	assert.Equal(t, "b", id.Profile.UserID)
}

func TestLoginEmailNotConfirmed(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.auth.signIn = func(email, _ string) (*domain.Session, error) {
		return nil, fmt.Errorf("sign in %q: %w", email, domain.ErrEmailNotConfirmed)
	}
	h.start(t)

	err := h.resolver.Login(context.Background(), "pending@example.com", "secret123")
	require.Error(t, err)
	assert.True(t, IsAuthErrorKind(err, AuthErrorEmailNotConfirmed))
	assert.ErrorIs(t, err, domain.ErrEmailNotConfirmed)
	assert.Nil(t, h.resolver.Current().Session)

	notices := h.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeError, notices[0].Level)
	assert.Contains(t, notices[0].Message, "confirm your email")
}

func TestLoginErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    AuthErrorKind
		message string
	}{
		{name: "sentinel", err: domain.ErrInvalidCredentials, kind: AuthErrorInvalidCredentials, message: "Invalid email or password. Please try again."},
		{name: "backend message", err: errors.New("Invalid login credentials"), kind: AuthErrorInvalidCredentials, message: "Invalid email or password. Please try again."},
		{name: "unconfirmed message", err: errors.New("Email not confirmed"), kind: AuthErrorEmailNotConfirmed},
		{name: "unknown passes raw message", err: errors.New("rate limit exceeded"), kind: AuthErrorUnknown, message: "rate limit exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil, Options{})
			h.auth.signIn = func(string, string) (*domain.Session, error) { return nil, tt.err }
			h.start(t)

			err := h.resolver.Login(context.Background(), "a@example.com", "x")
			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.kind, authErr.Kind)
			if tt.message != "" {
				assert.Equal(t, tt.message, authErr.UserMessage())
				assert.Equal(t, tt.message, h.notifier.all()[0].Message)
			}
		})
	}
}

func TestLoginSuccessResolvesThroughAuthStream(t *testing.T) {
	h := newHarness(t, nil, Options{}, profileFor("u-1", domain.RoleAdmin))
	h.auth.signIn = func(string, string) (*domain.Session, error) { return sessionFor("u-1"), nil }
	h.start(t)

	require.NoError(t, h.resolver.Login(context.Background(), "u-1@example.com", "secret123"))
	id := h.settle(t)
	assert.Equal(t, domain.RoleAdmin, id.Role())
	assert.Empty(t, h.notifier.all())
}

func TestSignupOutcomes(t *testing.T) {
	h := newHarness(t, nil, Options{}, profileFor("u-2", domain.RoleBusinessUser))
	h.start(t)
	ctx := context.Background()

	h.auth.signUp = func(req SignUpRequest) (*domain.Session, error) {
		assert.Equal(t, domain.RoleBusinessUser, req.Role)
		assert.Equal(t, "Ada", req.FullName)
		return nil, nil
	}
	outcome, err := h.resolver.Signup(ctx, "ada@example.com", "secret123", "Ada", domain.RoleBusinessUser)
	require.NoError(t, err)
	assert.Equal(t, SignupVerifyEmail, outcome)
	assert.Nil(t, h.resolver.Current().Session, "signup never signs in by itself")
	notices := h.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeInfo, notices[0].Level)
	assert.Contains(t, notices[0].Message, "ada@example.com")

	h.auth.signUp = func(SignUpRequest) (*domain.Session, error) { return sessionFor("u-2"), nil }
	outcome, err = h.resolver.Signup(ctx, "bob@example.com", "secret123", "Ada", domain.RoleBusinessUser)
	require.NoError(t, err)
	assert.Equal(t, SignupSignedIn, outcome)

	h.auth.signUp = func(SignUpRequest) (*domain.Session, error) { return nil, domain.ErrUserExists }
	_, err = h.resolver.Signup(ctx, "bob@example.com", "secret123", "Ada", domain.RoleBusinessUser)
	assert.True(t, IsAuthErrorKind(err, AuthErrorUnknown))
	assert.ErrorIs(t, err, domain.ErrUserExists)
}

func TestLogoutClearsEvenWhenBackendFails(t *testing.T) {
	h := newHarness(t, sessionFor("u-1"), Options{}, profileFor("u-1", domain.RoleCustomer))
	h.start(t)
	require.True(t, h.settle(t).Authenticated())

	boom := errors.New("network down")
	h.auth.silentSignOut = true
	h.auth.signOutErr = boom

	err := h.resolver.Logout(context.Background())
	assert.ErrorIs(t, err, boom)
	id := h.resolver.Current()
	assert.Nil(t, id.Session)
	assert.Nil(t, id.Profile)
}

func TestLogoutDoesNotDoubleCount(t *testing.T) {
	h := newHarness(t, sessionFor("u-1"), Options{}, profileFor("u-1", domain.RoleCustomer))
	h.start(t)
	h.settle(t)

	require.NoError(t, h.resolver.Logout(context.Background()))
	assert.Equal(t, uint64(2), h.resolver.Current().Generation)
}

func TestUpdateProfileWithoutSession(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.start(t)
	name := "New Name"

	err := h.resolver.UpdateProfile(context.Background(), domain.ProfileUpdate{FullName: &name})
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	assert.ErrorIs(t, h.resolver.UpgradeSubscription(context.Background()), domain.ErrSessionExpired)
	assert.Zero(t, h.profiles.updateCount())
}

func TestUpdateProfileMergesAfterWrite(t *testing.T) {
	h := newHarness(t, sessionFor("u-1"), Options{}, profileFor("u-1", domain.RoleCustomer))
	h.start(t)
	before := h.settle(t)

	name := "Ada Lovelace"
	require.NoError(t, h.resolver.UpdateProfile(context.Background(), domain.ProfileUpdate{FullName: &name}))
	id := h.resolver.Current()
	assert.Equal(t, "Ada Lovelace", id.Profile.FullName)
	assert.Greater(t, id.Version, before.Version)
	assert.Equal(t, before.Generation, id.Generation)
	assert.Equal(t, "User u-1", before.Profile.FullName, "earlier snapshots are not mutated")

	require.NoError(t, h.resolver.UpgradeSubscription(context.Background()))
	assert.Equal(t, domain.TierPro, h.resolver.Current().Profile.SubscriptionTier)
	assert.Equal(t, 2, h.profiles.updateCount())
}

func TestUpdateProfileKeepsStoredRow(t *testing.T) {
	h := newHarness(t, sessionFor("u-1"), Options{}, profileFor("u-1", domain.RoleCustomer))
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.profiles.normalize = func(p *domain.Profile) {
		p.FullName = strings.TrimSpace(p.FullName)
		p.UpdatedAt = stamp
	}
	h.start(t)
	h.settle(t)

	name := "  Ada  "
	require.NoError(t, h.resolver.UpdateProfile(context.Background(), domain.ProfileUpdate{FullName: &name}))
	stored, err := h.profiles.row("u-1")
	require.NoError(t, err)

	local := h.resolver.Current().Profile
	assert.Equal(t, "Ada", local.FullName)
	assert.Equal(t, stored, local)
	assert.True(t, stamp.Equal(local.UpdatedAt))
}

func TestUpdateProfileWithoutReturnedRowMergesLocally(t *testing.T) {
	h := newHarness(t, sessionFor("u-1"), Options{}, profileFor("u-1", domain.RoleCustomer))
	h.profiles.noRow = true
	h.start(t)
	h.settle(t)

	phone := "+44 20 7946 0000"
	require.NoError(t, h.resolver.UpdateProfile(context.Background(), domain.ProfileUpdate{Phone: &phone}))
	local := h.resolver.Current().Profile
	require.NotNil(t, local.Phone)
	assert.Equal(t, phone, *local.Phone)
	assert.Equal(t, "User u-1", local.FullName)
}

func TestUpdateProfileFailedWriteKeepsState(t *testing.T) {
	h := newHarness(t, sessionFor("u-1"), Options{}, profileFor("u-1", domain.RoleCustomer))
	h.start(t)
	h.settle(t)
	h.profiles.updateErr = errors.New("constraint violation")

	tier := domain.TierPro
	err := h.resolver.UpdateProfile(context.Background(), domain.ProfileUpdate{SubscriptionTier: &tier})
	require.Error(t, err)
	assert.Equal(t, domain.TierFree, h.resolver.Current().Profile.SubscriptionTier)
}

func TestRefreshIdentityRefetches(t *testing.T) {
	h := newHarness(t, sessionFor("u-1"), Options{ProfileFetchDelay: time.Hour}, profileFor("u-1", domain.RoleCustomer))
	h.start(t)
	before := h.settle(t)

	h.profiles.mu.Lock()
	h.profiles.rows["u-1"].Role = domain.RoleBusinessUser
	h.profiles.mu.Unlock()

	require.NoError(t, h.resolver.RefreshIdentity(context.Background()))
	id := h.resolver.Current()
	assert.False(t, id.IsLoading)
	assert.Equal(t, domain.RoleBusinessUser, id.Role())
	assert.Equal(t, before.Generation+1, id.Generation)
}

func TestRefreshIdentityWithoutSession(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.start(t)
	before := h.resolver.Current()

	require.NoError(t, h.resolver.RefreshIdentity(context.Background()))
	assert.Equal(t, before, h.resolver.Current())
}

func TestSubscribeDeliversOrderedSnapshots(t *testing.T) {
	h := newHarness(t, nil, Options{}, profileFor("u-1", domain.RoleCustomer))
	h.start(t)

	var (
		mu   sync.Mutex
		seen []domain.ResolvedIdentity
	)
	unsubscribe := h.resolver.Subscribe(func(id domain.ResolvedIdentity) {
		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()
	})

	h.auth.emit(domain.AuthEventTokenRefreshed, sessionFor("u-1"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 2*time.Second, 5*time.Millisecond)
	unsubscribe()
	h.auth.emit(domain.AuthEventSignedOut, nil)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.False(t, seen[0].HasSession())
	assert.True(t, seen[1].IsLoading)
	assert.True(t, seen[2].Authenticated())
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i].Version, seen[i-1].Version)
	}
}

func TestStartTwice(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.start(t)
	assert.Error(t, h.resolver.Start(context.Background()))
}
