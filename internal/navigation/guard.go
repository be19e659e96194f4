package navigation

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/local-scope/localscope/internal/domain"
	"github.com/local-scope/localscope/internal/identity"
	"github.com/local-scope/localscope/internal/observability"
)

// State is the situation the guard classified its inputs into.
type State string

const (
	StateNavNotReady      State = "NAV_NOT_READY"
	StateResolving        State = "RESOLVING"
	StateUnauthenticated  State = "UNAUTHENTICATED"
	StateSessionNoProfile State = "SESSION_NO_PROFILE"
	StateAuthenticated    State = "AUTHENTICATED"
)

// Action is what the guard decided to do.
type Action string

const (
	ActionWait     Action = "wait"
	ActionRedirect Action = "redirect"
	ActionNone     Action = "none"
)

// Input is everything a decision depends on. A zero Now means the wall clock.
type Input struct {
	NavReady bool
	Location string
	Identity domain.ResolvedIdentity
	Now      time.Time
}

func (in Input) now() time.Time {
	if in.Now.IsZero() {
		return time.Now()
	}
	return in.Now
}

// Decision is the outcome of one evaluation. Target is set only for redirects.
type Decision struct {
	Action Action
	Target string
	State  State
	// Repeated is set by Guard when the inputs equal the previous evaluation
	// and nothing was issued.
	Repeated bool
}

// Classify maps the inputs onto a guard state. An expired session counts as
// no session, whatever profile is still held.
func Classify(in Input) State {
	switch {
	case !in.NavReady:
		return StateNavNotReady
	case in.Identity.IsLoading:
		return StateResolving
	case in.Identity.Session.Expired(in.now()):
		return StateUnauthenticated
	case in.Identity.Profile == nil:
		return StateSessionNoProfile
	default:
		return StateAuthenticated
	}
}

// Decide evaluates the redirect rules in order; the first match wins.
func Decide(in Input) Decision {
	state := Classify(in)
	public := IsPublicEntry(in.Location)

	switch {
	case state == StateNavNotReady || state == StateResolving:
		return Decision{Action: ActionWait, State: state}
	case state == StateUnauthenticated && !public:
		return Decision{Action: ActionRedirect, Target: RouteLogin, State: state}
	case state == StateSessionNoProfile && !public:
		return Decision{Action: ActionWait, State: state}
	case state == StateAuthenticated && public:
		return Decision{Action: ActionRedirect, Target: HomeFor(in.Identity.Profile.Role), State: state}
	default:
		return Decision{Action: ActionNone, State: state}
	}
}

// Navigator performs navigation. The guard only ever replaces the current
// entry so its redirects never pile up on the back stack.
type Navigator interface {
	Replace(target string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(target string)

// Replace calls f.
func (f NavigatorFunc) Replace(target string) { f(target) }

// key is the part of Input a decision actually reads.
type key struct {
	navReady bool
	location string
	state    State
	role     domain.Role
}

func keyOf(in Input) key {
	return key{
		navReady: in.NavReady,
		location: in.Location,
		state:    Classify(in),
		role:     in.Identity.Role(),
	}
}

// Guard re-evaluates Decide whenever one of its inputs changes and issues at
// most one Replace per evaluation. An evaluation whose inputs equal the
// previous one is a no-op.
type Guard struct {
	nav     Navigator
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu      sync.Mutex
	in      Input
	last    *key
	lastDec Decision
	// pending counts Replace calls still running; idle is signalled at zero.
	pending int
	idle    *sync.Cond
}

// NewGuard builds a guard with navigation not ready and identity resolving.
func NewGuard(nav Navigator, logger *zap.Logger, metrics *observability.Metrics) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{
		nav:     nav,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		in:      Input{Identity: domain.ResolvedIdentity{IsLoading: true}},
	}
	g.idle = sync.NewCond(&g.mu)
	return g
}

// SetIdentity feeds a resolver snapshot. Snapshots older than the one held are ignored.
func (g *Guard) SetIdentity(id domain.ResolvedIdentity) Decision {
	g.mu.Lock()
	if id.Version != 0 && id.Version < g.in.Identity.Version {
		dec := g.lastDec
		g.mu.Unlock()
		dec.Repeated = true
		return dec
	}
	g.in.Identity = id
	return g.evaluateLocked()
}

// SetLocation records the current location; navigation becomes ready.
func (g *Guard) SetLocation(location string) Decision {
	g.mu.Lock()
	g.in.Location = location
	g.in.NavReady = true
	return g.evaluateLocked()
}

// SetNavReady marks the navigation subsystem ready or not.
func (g *Guard) SetNavReady(ready bool) Decision {
	g.mu.Lock()
	g.in.NavReady = ready
	return g.evaluateLocked()
}

// Evaluate runs the rules on the current inputs.
func (g *Guard) Evaluate() Decision {
	g.mu.Lock()
	return g.evaluateLocked()
}

// Input returns the inputs the guard currently holds.
func (g *Guard) Input() Input {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.in
}

// Wait blocks until every Replace the guard issued has returned.
func (g *Guard) Wait() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.pending > 0 {
		g.idle.Wait()
	}
}

// evaluateLocked must be called with g.mu held; it releases it.
func (g *Guard) evaluateLocked() Decision {
	g.in.Now = g.now()
	k := keyOf(g.in)
	if g.last != nil && *g.last == k {
		dec := g.lastDec
		g.mu.Unlock()
		dec.Repeated = true
		return dec
	}

	dec := Decide(g.in)
	g.last = &k
	g.lastDec = dec
	if dec.Action != ActionRedirect {
		g.mu.Unlock()
		return dec
	}
	g.pending++
	g.mu.Unlock()

	g.logger.Info("guard redirect",
		zap.String("from", k.location),
		zap.String("to", dec.Target),
		zap.String("state", string(dec.State)))
	g.metrics.Redirected(dec.Target)
	g.nav.Replace(dec.Target)

	g.mu.Lock()
	g.pending--
	if g.pending == 0 {
		g.idle.Broadcast()
	}
	g.mu.Unlock()
	return dec
}

// IdentitySource publishes resolved identities.
type IdentitySource interface {
	Subscribe(l identity.Listener) (unsubscribe func())
}

var _ IdentitySource = (*identity.Resolver)(nil)

// Watch feeds every snapshot of src into the guard until stop is called.
func (g *Guard) Watch(src IdentitySource) (stop func()) {
	return src.Subscribe(func(id domain.ResolvedIdentity) {
		g.SetIdentity(id)
	})
}
