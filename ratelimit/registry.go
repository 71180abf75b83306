// Package ratelimit paces outbound calls per provider.
//
// A Registry holds one state record per provider key. Two independent
// policies can be applied on each acquisition: a minimum spacing between
// consecutive grants and a ceiling on grants within a sliding window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"house-finder/utils"
)

// ErrInvalidProvider is returned when no provider key can be derived from a URL.
var ErrInvalidProvider = errors.New("ratelimit: invalid provider")

// Policy describes how calls to one provider are paced. Zero fields disable
// the corresponding rule.
type Policy struct {
	MinInterval  time.Duration
	MaxPerWindow int
	Window       time.Duration
}

// Every returns a spacing-only policy.
func Every(d time.Duration) Policy {
	return Policy{MinInterval: d}
}

// PerMinute returns a policy with spacing d and at most n grants per minute.
func PerMinute(d time.Duration, n int) Policy {
	return Policy{MinInterval: d, MaxPerWindow: n, Window: time.Minute}
}

func (p Policy) spacing() bool { return p.MinInterval > 0 }
func (p Policy) ceiling() bool { return p.MaxPerWindow > 0 && p.Window > 0 }

type providerState struct {
	// lock is a one-slot semaphore so waiters can give up on ctx.
	lock       chan struct{}
	lastCallAt time.Time
	// grants holds at most the last MaxPerWindow grant instants, oldest first.
	grants []time.Time
}

// Registry tracks pacing state for every provider seen during a run.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	providers map[string]*providerState

	clock   Clock
	logger  *utils.Logger
	waitLog *rate.Sometimes
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithLogger makes the Registry log (sparingly) when callers are held back.
func WithLogger(l *utils.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		providers: make(map[string]*providerState),
		clock:     realClock{},
		waitLog:   &rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire blocks until a call to provider is allowed under p, then records
// the grant. It returns ctx.Err() if ctx is done first, in which case no
// grant is recorded.
func (r *Registry) Acquire(ctx context.Context, provider string, p Policy) error {
	_, err := r.wait(ctx, provider, p)
	return err
}

func (r *Registry) state(provider string) *providerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.providers[provider]
	if !ok {
		st = &providerState{lock: make(chan struct{}, 1)}
		r.providers[provider] = st
	}
	return st
}

func (r *Registry) wait(ctx context.Context, provider string, p Policy) (time.Time, error) {
	if !p.spacing() && !p.ceiling() {
		return r.clock.Now(), nil
	}

	st := r.state(provider)
	select {
	case st.lock <- struct{}{}:
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
	defer func() { <-st.lock }()

	if p.spacing() && !st.lastCallAt.IsZero() {
		if elapsed := r.clock.Now().Sub(st.lastCallAt); elapsed < p.MinInterval {
			if err := r.sleep(ctx, provider, p.MinInterval-elapsed); err != nil {
				return time.Time{}, err
			}
		}
	}

	if p.ceiling() && len(st.grants) >= p.MaxPerWindow {
		oldest := st.grants[len(st.grants)-p.MaxPerWindow]
		if age := r.clock.Now().Sub(oldest); age < p.Window {
			if err := r.sleep(ctx, provider, p.Window-age); err != nil {
				return time.Time{}, err
			}
		}
	}

	now := r.clock.Now()
	st.lastCallAt = now
	if p.ceiling() {
		st.grants = append(st.grants, now)
		if extra := len(st.grants) - p.MaxPerWindow; extra > 0 {
			st.grants = append(st.grants[:0], st.grants[extra:]...)
		}
	}
	return now, nil
}

func (r *Registry) sleep(ctx context.Context, provider string, d time.Duration) error {
	if r.logger != nil {
		r.waitLog.Do(func() {
			r.logger.Debug("[ratelimit] waiting %v before calling %s", d.Round(time.Millisecond), provider)
		})
	}
	select {
	case <-r.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProviderFromURL returns the main domain of rawURL, e.g.
// "https://www.etuovi.com/kohde/1" yields "etuovi.com". IP hosts are
// returned as is.
func ProviderFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidProvider, err)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", fmt.Errorf("%w: no host in %q", ErrInvalidProvider, rawURL)
	}
	if net.ParseIP(host) != nil {
		return host, nil
	}

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return "", fmt.Errorf("%w: %q has no main domain", ErrInvalidProvider, host)
	}
	return labels[len(labels)-2] + "." + labels[len(labels)-1], nil
}
