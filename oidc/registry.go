package oidckit

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultStrategyName is registered when no strategies are configured.
const DefaultStrategyName = "oidc"

// RegistryOptions are shared by every strategy in a Registry.
type RegistryOptions struct {
	// Validate is used by strategies that do not set their own.
	Validate     Validator
	OmitCheckExp bool
	Logger       logrus.FieldLogger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Registry holds named policies sharing one key provider.
type Registry struct {
	order  []string
	byName map[string]*Policy
}

// NewRegistry builds one Policy per config. With no configs a single
// DefaultStrategyName strategy is registered.
func NewRegistry(keys KeyProvider, opts RegistryOptions, configs ...StrategyConfig) (*Registry, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	fallback := opts.Validate
	if fallback == nil {
		fallback = DefaultValidator
	}
	if len(configs) == 0 {
		configs = []StrategyConfig{{Name: DefaultStrategyName}}
	}

	r := &Registry{byName: make(map[string]*Policy, len(configs))}
	for i, cfg := range configs {
		if cfg.Name == "" {
			return nil, fmt.Errorf("strategy #%d: %w", i, ErrEmptyStrategyName)
		}
		if _, dup := r.byName[cfg.Name]; dup {
			return nil, fmt.Errorf("strategy %q: %w", cfg.Name, ErrDuplicateStrategy)
		}
		validate := cfg.Validate
		if validate == nil {
			validate = fallback
		}
		r.byName[cfg.Name] = &Policy{
			name:         cfg.Name,
			keys:         keys,
			validate:     validate,
			omitCheckExp: opts.OmitCheckExp,
			now:          opts.Now,
			log:          opts.Logger.WithField("tag", "oidc-policy"),
		}
		r.order = append(r.order, cfg.Name)
	}
	return r, nil
}

// Strategy returns the named policy.
func (r *Registry) Strategy(name string) (*Policy, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Names returns strategy names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Evaluate runs the named strategy.
func (r *Registry) Evaluate(ctx context.Context, name string, claims Claims, rawToken string) (Decision, error) {
	p, ok := r.Strategy(name)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return p.Evaluate(ctx, claims, rawToken)
}
