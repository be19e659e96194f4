package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/local-scope/localscope/internal/client"
	"github.com/local-scope/localscope/internal/config"
	"github.com/local-scope/localscope/internal/domain"
	"github.com/local-scope/localscope/internal/identity"
	"github.com/local-scope/localscope/internal/navigation"
	"github.com/local-scope/localscope/internal/observability"
	"github.com/local-scope/localscope/internal/persistence"
)

// Backend is what the shell needs from the auth and profile service.
type Backend interface {
	identity.AuthBackend
	identity.ProfileStore
}

// EmailVerifier is implemented by backends that can redeem confirmation tokens.
type EmailVerifier interface {
	VerifyEmail(ctx context.Context, token string) error
}

// Factory builds a shell for one command invocation.
type Factory func(ctx context.Context, opts *RootOptions) (*Shell, error)

// Shell owns one resolver and one guard and plays the part of the app's
// root layout: the guard watches every identity the resolver publishes and
// the shell follows its redirects.
type Shell struct {
	Resolver *identity.Resolver
	Guard    *navigation.Guard

	backend   Backend
	stopWatch func()

	mu        sync.Mutex
	location  string
	redirects []string
	notices   []NoticeView
	closers   []func()
}

// NoticeView is a notice as printed by the shell.
type NoticeView struct {
	Level   string `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Report is the outcome of a command.
type Report struct {
	UserID       string       `json:"user_id,omitempty"`
	Email        string       `json:"email,omitempty"`
	FullName     string       `json:"full_name,omitempty"`
	Role         string       `json:"role,omitempty"`
	Tier         string       `json:"subscription_tier,omitempty"`
	ProfileState string       `json:"profile_state"`
	State        string       `json:"state"`
	Location     string       `json:"location"`
	Redirects    []string     `json:"redirects,omitempty"`
	Notices      []NoticeView `json:"notices,omitempty"`
}

// NewShell wires a resolver and a guard over backend.
func NewShell(backend Backend, opts identity.Options) *Shell {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Shell{backend: backend}
	opts.Notifier = identity.NotifierFunc(s.notify)
	s.Resolver = identity.NewResolver(backend, backend, opts)
	s.Guard = navigation.NewGuard(navigation.NavigatorFunc(s.replace), logger, opts.Metrics)
	s.stopWatch = s.Guard.Watch(s.Resolver)
	return s
}

// OnClose registers f to run when the shell closes, in reverse order.
func (s *Shell) OnClose(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, f)
}

// Open starts the resolver at location and waits for the first identity.
func (s *Shell) Open(ctx context.Context, location string) error {
	s.goTo(location)
	if err := s.Resolver.Start(ctx); err != nil {
		return err
	}
	return s.settle(ctx)
}

// Close stops the resolver and releases everything registered with OnClose.
func (s *Shell) Close() {
	s.stopWatch()
	s.Resolver.Close()

	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// Navigate moves to location and lets the guard react.
func (s *Shell) Navigate(ctx context.Context, location string) error {
	s.goTo(location)
	return s.settle(ctx)
}

// VerifyEmail redeems a confirmation token when the backend supports it.
func (s *Shell) VerifyEmail(ctx context.Context, token string) error {
	v, ok := s.backend.(EmailVerifier)
	if !ok {
		return errors.New("backend cannot verify email addresses")
	}
	return v.VerifyEmail(ctx, token)
}

// Report waits for the identity to settle and describes where the shell ended up.
func (s *Shell) Report(ctx context.Context) (Report, error) {
	if err := s.settle(ctx); err != nil {
		return Report{}, err
	}
	id := s.Resolver.Current()
	in := s.Guard.Input()

	s.mu.Lock()
	defer s.mu.Unlock()
	r := Report{
		ProfileState: string(id.ProfileState),
		State:        string(navigation.Classify(in)),
		Location:     s.location,
		Redirects:    append([]string(nil), s.redirects...),
		Notices:      append([]NoticeView(nil), s.notices...),
	}
	if id.Session != nil {
		r.UserID = id.Session.UserID
		r.Email = id.Session.Email
	}
	if id.Profile != nil {
		r.FullName = id.Profile.FullName
		r.Role = string(id.Profile.Role)
		r.Tier = string(id.Profile.SubscriptionTier)
	}
	return r, nil
}

// settle waits for the resolver to settle and for the guard to finish the
// redirects it issued for that identity. The settled snapshot is handed over
// again in case the watcher has not delivered it yet.
func (s *Shell) settle(ctx context.Context) error {
	id, err := s.Resolver.AwaitSettled(ctx)
	if err != nil {
		return err
	}
	s.Guard.SetIdentity(id)
	s.Guard.Wait()
	return nil
}

// goTo is a navigation the user asked for.
func (s *Shell) goTo(location string) {
	s.mu.Lock()
	s.location = location
	s.mu.Unlock()
	s.Guard.SetLocation(location)
}

// replace is a navigation issued by the guard.
func (s *Shell) replace(target string) {
	s.mu.Lock()
	s.location = target
	s.redirects = append(s.redirects, target)
	s.mu.Unlock()
	s.Guard.SetLocation(target)
}

func (s *Shell) notify(n identity.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, NoticeView{Level: string(n.Level), Title: n.Title, Message: n.Message})
}

// DefaultShell builds a shell against the configured backend, with the session
// persisted in Redis.
func DefaultShell(ctx context.Context, opts *RootOptions) (*Shell, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	cfg.Logger.Output = "stderr"
	if opts.Verbose {
		cfg.Logger.Level = "debug"
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to init logger", err)
	}

	redis, err := persistence.ConnectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "session storage unavailable", err)
	}
	storage := client.NewRedisStorage(redis.Client, cfg.Client.StorageKey)

	c := client.New(cfg.Client, storage, logger)
	if err := c.Restore(ctx); err != nil {
		redis.Close()
		return nil, WrapExitError(ExitCommandError, "failed to restore session", err)
	}

	identityOpts := identity.OptionsFromConfig(cfg.Identity)
	identityOpts.Logger = logger
	shell := NewShell(c, identityOpts)

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	go c.StartAutoRefresh(refreshCtx, cfg.Client.AutoRefreshInterval())

	shell.OnClose(func() { _ = logger.Sync() })
	shell.OnClose(redis.Close)
	shell.OnClose(stopRefresh)
	logger.Debug("shell ready", zap.String("backend", cfg.Client.BaseURL))
	return shell, nil
}

func describe(err error) (code, message string) {
	var authErr *identity.AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind.String(), authErr.UserMessage()
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Message
	}
	switch {
	case errors.Is(err, domain.ErrSessionExpired):
		return "session_expired", "You are not signed in."
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout", "The backend did not answer in time."
	}
	return "error", fmt.Sprint(err)
}
