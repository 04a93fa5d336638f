// Package resilience guards calls to model and lookup providers with retries
// and per-provider circuit breakers.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/medcode-cli/internal/config"
)

// State is a circuit breaker state.
type State int

const (
	// Closed lets calls through.
	Closed State = iota
	// Open rejects calls until the reset timeout elapses.
	Open
	// HalfOpen lets probe calls through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a provider's breaker rejects a call.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// BreakerSettings controls when a breaker opens and recovers.
type BreakerSettings struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	// Probes is the number of half-open successes needed to close again.
	Probes int
	// Trips decides which errors count as failures. Nil counts every error.
	Trips func(err error) bool
	// OnStateChange observes transitions.
	OnStateChange func(name string, from, to State)
}

// DefaultBreakerSettings returns the settings used when nothing is configured.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		Probes:           1,
	}
}

// BreakerFromConfig builds settings from the circuit config section.
func BreakerFromConfig(cfg config.CircuitConfig) BreakerSettings {
	s := DefaultBreakerSettings()
	if cfg.FailureThreshold > 0 {
		s.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.ResetTimeoutSecs > 0 {
		s.ResetTimeout = time.Duration(cfg.ResetTimeoutSecs) * time.Second
	}
	return s
}

// Breaker is a circuit breaker for one provider.
type Breaker struct {
	name string
	cfg  BreakerSettings

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probeWins   int

	now func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerSettings) *Breaker {
	d := DefaultBreakerSettings()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = d.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = d.ResetTimeout
	}
	if cfg.Probes <= 0 {
		cfg.Probes = d.Probes
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// Name returns the provider name.
func (b *Breaker) Name() string { return b.name }

// Run calls fn unless the breaker is open and records the outcome.
func Run[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.admit(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

// State returns the current state, reporting HalfOpen once an open breaker's
// reset timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.lastFailure) >= b.cfg.ResetTimeout {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probeWins = 0
	if b.state != Closed {
		b.transition(Closed)
	}
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Open {
		return nil
	}
	if b.now().Sub(b.lastFailure) >= b.cfg.ResetTimeout {
		b.transition(HalfOpen)
		return nil
	}
	return eris.Wrapf(ErrCircuitOpen, "provider %s", b.name)
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	trips := b.cfg.Trips
	if trips == nil {
		trips = func(e error) bool { return e != nil }
	}

	if err == nil || !trips(err) {
		switch b.state {
		case HalfOpen:
			b.probeWins++
			if b.probeWins >= b.cfg.Probes {
				b.failures = 0
				b.probeWins = 0
				b.transition(Closed)
			}
		case Closed:
			b.failures = 0
		}
		return
	}

	b.failures++
	b.lastFailure = b.now()
	switch b.state {
	case Closed:
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(Open)
		}
	case HalfOpen:
		b.probeWins = 0
		b.transition(Open)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	zap.L().Info("circuit breaker state change",
		zap.String("provider", b.name),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

// Guard bundles a retry policy with one breaker per provider name. A single
// Guard is shared by every provider client built for a run.
type Guard struct {
	policy   RetryPolicy
	settings BreakerSettings

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewGuard creates a Guard.
func NewGuard(policy RetryPolicy, settings BreakerSettings) *Guard {
	return &Guard{policy: policy, settings: settings, breakers: make(map[string]*Breaker)}
}

// GuardFromConfig creates a Guard from the retry and circuit config sections.
func GuardFromConfig(cfg *config.Config) *Guard {
	return NewGuard(PolicyFromConfig(cfg.Retry), BreakerFromConfig(cfg.Circuit))
}

// Breaker returns the breaker for provider, creating it on first use.
func (g *Guard) Breaker(provider string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[provider]
	if !ok {
		b = NewBreaker(provider, g.settings)
		g.breakers[provider] = b
	}
	return b
}

// States snapshots every known breaker's state.
func (g *Guard) States() map[string]State {
	g.mu.Lock()
	list := make([]*Breaker, 0, len(g.breakers))
	for _, b := range g.breakers {
		list = append(list, b)
	}
	g.mu.Unlock()

	out := make(map[string]State, len(list))
	for _, b := range list {
		out[b.Name()] = b.State()
	}
	return out
}

// Call runs fn for provider with retries, each attempt passing through the
// provider's breaker. An open circuit is not retried.
func Call[T any](ctx context.Context, g *Guard, provider, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	b := g.Breaker(provider)
	p := g.policy
	if p.OnRetry == nil {
		p.OnRetry = LogRetries(provider, operation)
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = IsTransient
	}
	retryable := p.ShouldRetry
	p.ShouldRetry = func(err error) bool {
		return !eris.Is(err, ErrCircuitOpen) && retryable(err)
	}
	return Retry(ctx, p, func(ctx context.Context) (T, error) {
		return Run(ctx, b, fn)
	})
}
