package secret

import (
	"context"
	"fmt"
	"sort"
)

// Resolver dispatches references to providers by name
type Resolver struct {
	providers map[string]Provider
	observers []func(value string)
}

// Option configures a Resolver
type Option func(*Resolver)

// WithProvider registers p under name, replacing any default
func WithProvider(name string, p Provider) Option {
	return func(r *Resolver) { r.providers[name] = p }
}

// OnResolve calls fn with every value the resolver hands out. The log
// sanitizer uses it to learn which strings to mask.
func OnResolve(fn func(value string)) Option {
	return func(r *Resolver) { r.observers = append(r.observers, fn) }
}

// NewResolver returns a resolver with the env and keyring providers
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{providers: map[string]Provider{
		ProviderEnv:     NewEnvProvider(),
		ProviderKeyring: NewKeyringProvider(),
	}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) provider(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	if !p.Available() {
		return nil, fmt.Errorf("secret provider %s is not available on this system", name)
	}
	return p, nil
}

// Resolve returns the value ref points at
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (string, error) {
	p, err := r.provider(ref.Provider)
	if err != nil {
		return "", err
	}
	value, err := p.Lookup(ctx, ref.Key)
	if err != nil {
		return "", err
	}
	for _, fn := range r.observers {
		fn(value)
	}
	return value, nil
}

// Store writes value under ref
func (r *Resolver) Store(ctx context.Context, ref Ref, value string) error {
	p, err := r.provider(ref.Provider)
	if err != nil {
		return err
	}
	return p.Store(ctx, ref.Key, value)
}

// Expand replaces every reference in s with its value. The first failing
// reference aborts the expansion.
func (r *Resolver) Expand(ctx context.Context, s string) (string, error) {
	if !Contains(s) {
		return s, nil
	}

	var firstErr error
	out := refPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		ref, err := ParseRef(match)
		if err != nil {
			firstErr = err
			return match
		}
		value, err := r.Resolve(ctx, ref)
		if err != nil {
			firstErr = fmt.Errorf("resolve %s: %w", ref, err)
			return match
		}
		return value
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// Providers lists the providers usable on this system
func (r *Resolver) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for name, p := range r.providers {
		if p.Available() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
