package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/local-scope/localscope/internal/config"
	"github.com/local-scope/localscope/internal/domain"
	"github.com/local-scope/localscope/internal/observability"
)

// SignupOutcome tells the caller what a successful signup requires next.
type SignupOutcome int

const (
	// SignupVerifyEmail means no session was issued; the user must confirm the email.
	SignupVerifyEmail SignupOutcome = iota + 1
	// SignupSignedIn means the backend issued a session right away.
	SignupSignedIn
)

// Options tunes the resolver.
type Options struct {
	// ProfileFetchDelay is waited after SIGNED_IN and USER_UPDATED before fetching.
	ProfileFetchDelay time.Duration
	// ProfileFetchTimeout bounds one fetch; zero means no bound.
	ProfileFetchTimeout time.Duration
	// NotFoundRetries is how many times a missing row is fetched again.
	NotFoundRetries int
	// NotFoundBackoff is the first retry delay; it doubles per retry.
	NotFoundBackoff time.Duration

	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Notifier Notifier
}

// OptionsFromConfig maps IdentityConfig onto Options.
func OptionsFromConfig(cfg config.IdentityConfig) Options {
	return Options{
		ProfileFetchDelay:   cfg.ProfileFetchDelay(),
		ProfileFetchTimeout: cfg.ProfileFetchTimeout(),
		NotFoundRetries:     cfg.NotFoundRetries,
		NotFoundBackoff:     cfg.NotFoundBackoff(),
	}
}

// Listener receives every published snapshot.
type Listener func(domain.ResolvedIdentity)

// Resolver owns the current session and its profile. It is the only writer of
// the resolved identity; everything else reads snapshots.
type Resolver struct {
	auth     AuthBackend
	profiles ProfileStore
	opts     Options
	logger   *zap.Logger
	metrics  *observability.Metrics
	notifier Notifier

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	generation  uint64
	version     uint64
	session     *domain.Session
	profile     *domain.Profile
	loading     bool
	state       domain.ProfileState
	listeners   map[int]Listener
	nextID      int
	unsubscribe func()
	started     bool
	closed      bool
}

// NewResolver builds a resolver. It reports loading until the first auth event
// has been resolved.
func NewResolver(auth AuthBackend, profiles ProfileStore, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = logNotifier{logger: logger}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Resolver{
		auth:      auth,
		profiles:  profiles,
		opts:      opts,
		logger:    logger,
		metrics:   opts.Metrics,
		notifier:  notifier,
		ctx:       ctx,
		cancel:    cancel,
		loading:   true,
		state:     domain.ProfileStateNone,
		listeners: make(map[int]Listener),
	}
}

// Start subscribes to the backend's auth stream. In-flight fetches are
// cancelled when ctx ends.
func (r *Resolver) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.New("resolver closed")
	}
	if r.started {
		r.mu.Unlock()
		return errors.New("resolver already started")
	}
	r.started = true
	r.mu.Unlock()

	context.AfterFunc(ctx, r.cancel)
	unsubscribe := r.auth.OnAuthStateChange(r.handleAuthEvent)

	r.mu.Lock()
	r.unsubscribe = unsubscribe
	r.mu.Unlock()
	return nil
}

// Close unsubscribes from the auth stream and waits for in-flight fetches.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	r.cancel()
	r.wg.Wait()
}

// Current returns the latest snapshot.
func (r *Resolver) Current() domain.ResolvedIdentity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Subscribe registers l and immediately delivers the current snapshot to it.
// Snapshots may reach a listener out of order; Version orders them.
func (r *Resolver) Subscribe(l Listener) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	snap := r.snapshotLocked()
	r.mu.Unlock()

	l(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.listeners, id)
			r.mu.Unlock()
		})
	}
}

// AwaitSettled blocks until the resolver is no longer loading.
func (r *Resolver) AwaitSettled(ctx context.Context) (domain.ResolvedIdentity, error) {
	settled := make(chan domain.ResolvedIdentity, 1)
	unsubscribe := r.Subscribe(func(domain.ResolvedIdentity) {
		if cur := r.Current(); !cur.IsLoading {
			select {
			case settled <- cur:
			default:
			}
		}
	})
	defer unsubscribe()

	select {
	case id := <-settled:
		return id, nil
	case <-ctx.Done():
		return r.Current(), ctx.Err()
	}
}

// Login signs in with email and password. The session arrives through the
// auth stream; failures are classified, shown to the user and returned.
func (r *Resolver) Login(ctx context.Context, email, password string) error {
	if _, err := r.auth.SignInWithPassword(ctx, email, password); err != nil {
		authErr := classifyAuthError(err)
		r.notifier.Notify(Notice{Level: NoticeError, Title: "Login failed", Message: authErr.UserMessage()})
		return authErr
	}
	return nil
}

// Signup creates an account. It never signs the user in by itself.
func (r *Resolver) Signup(ctx context.Context, email, password, fullName string, role domain.Role) (SignupOutcome, error) {
	session, err := r.auth.SignUp(ctx, SignUpRequest{
		Email:    email,
		Password: password,
		FullName: fullName,
		Role:     role,
	})
	if err != nil {
		authErr := classifyAuthError(err)
		r.notifier.Notify(Notice{Level: NoticeError, Title: "Signup failed", Message: authErr.UserMessage()})
		return 0, authErr
	}
	if session == nil {
		r.notifier.Notify(Notice{
			Level:   NoticeInfo,
			Title:   "Verify your email",
			Message: "We sent a confirmation link to " + email + ". Confirm your address, then sign in.",
		})
		return SignupVerifyEmail, nil
	}
	return SignupSignedIn, nil
}

// Logout ends the backend session and clears the profile. Local state is
// cleared even when the backend call fails.
func (r *Resolver) Logout(ctx context.Context) error {
	err := r.auth.SignOut(ctx)

	r.mu.Lock()
	signedIn := r.session != nil
	r.mu.Unlock()
	if signedIn {
		r.handleAuthEvent(domain.AuthEvent{Kind: domain.AuthEventSignedOut})
	}

	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// UpdateProfile writes update for the signed-in user. Once the write succeeded
// the row the store returned replaces the local profile; a store that returns
// no row gets update merged locally instead.
func (r *Resolver) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) error {
	session, err := r.auth.GetSession(ctx)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if session == nil {
		return domain.ErrSessionExpired
	}

	stored, err := r.profiles.UpdateProfile(ctx, session.UserID, update)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	r.mu.Lock()
	if r.session == nil || r.session.UserID != session.UserID || r.profile == nil {
		r.mu.Unlock()
		return nil
	}
	var next *domain.Profile
	if stored != nil && stored.UserID == session.UserID {
		next = stored.Clone()
	} else {
		next = r.profile.Clone()
		update.ApplyTo(next)
	}
	r.profile = next
	snap := r.bumpLocked()
	r.mu.Unlock()

	r.publish(snap)
	return nil
}

// UpgradeSubscription moves the signed-in user to the pro tier.
func (r *Resolver) UpgradeSubscription(ctx context.Context) error {
	tier := domain.TierPro
	return r.UpdateProfile(ctx, domain.ProfileUpdate{SubscriptionTier: &tier})
}

// RefreshIdentity fetches the profile again in a new generation and returns
// once the result was applied. Without a session it does nothing.
func (r *Resolver) RefreshIdentity(ctx context.Context) error {
	r.mu.Lock()
	if r.session == nil {
		r.mu.Unlock()
		return nil
	}
	gen := r.beginGenerationLocked(r.session)
	userID := r.session.UserID
	snap := r.bumpLocked()
	r.mu.Unlock()

	r.metrics.GenerationStarted()
	r.publish(snap)

	profile, state := r.load(ctx, gen, userID)
	r.apply(gen, userID, profile, state)
	return ctx.Err()
}

func (r *Resolver) handleAuthEvent(ev domain.AuthEvent) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	session := cloneSession(ev.Session)
	gen := r.beginGenerationLocked(session)
	snap := r.bumpLocked()
	if session != nil {
		r.wg.Add(1)
	}
	r.mu.Unlock()

	r.metrics.GenerationStarted()
	r.logger.Debug("auth state changed",
		zap.String("event", string(ev.Kind)),
		zap.Uint64("generation", gen),
		zap.Bool("has_session", session != nil))
	r.publish(snap)

	if session == nil {
		return
	}
	var delay time.Duration
	if ev.Kind == domain.AuthEventSignedIn || ev.Kind == domain.AuthEventUserUpdated {
		delay = r.opts.ProfileFetchDelay
	}
	go r.fetch(gen, session.UserID, delay)
}

// beginGenerationLocked records session under a new generation. A nil session
// clears the profile in the same step; a different subject drops the old one.
func (r *Resolver) beginGenerationLocked(session *domain.Session) uint64 {
	r.generation++
	r.session = session
	if session == nil {
		r.profile = nil
		r.loading = false
		r.state = domain.ProfileStateNone
		return r.generation
	}
	if r.profile != nil && r.profile.UserID != session.UserID {
		r.profile = nil
	}
	r.loading = true
	r.state = domain.ProfileStateLoading
	return r.generation
}

// fetch resolves the profile of generation gen. When the resolver's context
// ends first the generation settles as fetch_failed, unless it was closed.
func (r *Resolver) fetch(gen uint64, userID string, delay time.Duration) {
	defer r.wg.Done()

	if delay > 0 && !r.sleep(r.ctx, delay) {
		r.abandon(gen, userID)
		return
	}
	if r.ctx.Err() != nil {
		r.abandon(gen, userID)
		return
	}
	if r.isStale(gen) {
		r.discard(gen, userID)
		return
	}

	profile, state := r.load(r.ctx, gen, userID)
	if r.ctx.Err() != nil {
		r.abandon(gen, userID)
		return
	}
	r.apply(gen, userID, profile, state)
}

func (r *Resolver) abandon(gen uint64, userID string) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}
	r.logger.Warn("profile fetch abandoned, resolver context ended",
		zap.String("user_id", userID),
		zap.Uint64("generation", gen))
	r.apply(gen, userID, nil, domain.ProfileStateFetchFailed)
}

// load fetches the row, retrying a missing row up to NotFoundRetries times.
func (r *Resolver) load(ctx context.Context, gen uint64, userID string) (*domain.Profile, domain.ProfileState) {
	backoff := r.opts.NotFoundBackoff
	for attempt := 0; ; attempt++ {
		profile, err := r.getProfile(ctx, userID)
		switch {
		case err == nil && profile != nil:
			return profile, domain.ProfileStateLoaded
		case err == nil, errors.Is(err, domain.ErrProfileNotFound):
			if attempt >= r.opts.NotFoundRetries || r.isStale(gen) {
				return nil, domain.ProfileStateNotFound
			}
			r.logger.Debug("profile row not found yet, retrying",
				zap.String("user_id", userID),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff))
			if !r.sleep(ctx, backoff) {
				return nil, domain.ProfileStateFetchFailed
			}
			backoff *= 2
		default:
			r.logger.Error("profile fetch failed",
				zap.String("user_id", userID),
				zap.Uint64("generation", gen),
				zap.Error(err))
			return nil, domain.ProfileStateFetchFailed
		}
	}
}

// getProfile runs one fetch bounded by ProfileFetchTimeout, even when the
// store ignores its context.
func (r *Resolver) getProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	if r.opts.ProfileFetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.ProfileFetchTimeout)
		defer cancel()
	}

	type result struct {
		profile *domain.Profile
		err     error
	}
	done := make(chan result, 1)
	go func() {
		profile, err := r.profiles.GetProfile(ctx, userID)
		done <- result{profile: profile, err: err}
	}()

	select {
	case res := <-done:
		return res.profile, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch profile %s: %w", userID, ctx.Err())
	}
}

// apply publishes a fetch result if gen is still the latest generation.
func (r *Resolver) apply(gen uint64, userID string, profile *domain.Profile, state domain.ProfileState) {
	r.mu.Lock()
	if gen != r.generation {
		r.mu.Unlock()
		r.discard(gen, userID)
		return
	}
	r.profile = profile.Clone()
	r.loading = false
	r.state = state
	snap := r.bumpLocked()
	r.mu.Unlock()

	r.metrics.ProfileFetchApplied(string(state))
	r.publish(snap)
}

func (r *Resolver) discard(gen uint64, userID string) {
	r.metrics.StaleProfileDiscarded()
	r.logger.Debug("discarding stale profile result",
		zap.String("user_id", userID),
		zap.Uint64("generation", gen))
}

func (r *Resolver) isStale(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return gen != r.generation
}

func (r *Resolver) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Resolver) bumpLocked() domain.ResolvedIdentity {
	r.version++
	return r.snapshotLocked()
}

func (r *Resolver) snapshotLocked() domain.ResolvedIdentity {
	return domain.ResolvedIdentity{
		Session:      cloneSession(r.session),
		Profile:      r.profile.Clone(),
		IsLoading:    r.loading,
		ProfileState: r.state,
		Generation:   r.generation,
		Version:      r.version,
	}
}

func (r *Resolver) publish(snap domain.ResolvedIdentity) {
	r.mu.Lock()
	listeners := make([]Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	r.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

func cloneSession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
