package oidckit

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwtkit "github.com/PaulFidika/oidcgate/jwt"
	"github.com/sirupsen/logrus"
)

// KeyProvider returns the keystore snapshot to verify against.
// *jwtkit.KeystoreHolder satisfies it.
type KeyProvider interface {
	Keystore() *jwtkit.Keystore
}

// Policy evaluates one named strategy: signature, then expiry, then the
// strategy's validator.
type Policy struct {
	name         string
	keys         KeyProvider
	validate     Validator
	omitCheckExp bool
	now          func() time.Time
	log          logrus.FieldLogger
}

// Name returns the strategy name.
func (p *Policy) Name() string { return p.name }

// Evaluate decides whether rawToken, whose decoded payload is claims, is
// accepted. Authentication failures are a negative Decision with a nil
// error; configuration errors and validator faults are returned as errors.
func (p *Policy) Evaluate(ctx context.Context, claims Claims, rawToken string) (Decision, error) {
	var ks *jwtkit.Keystore
	if p.keys != nil {
		ks = p.keys.Keystore()
	}
	if err := jwtkit.Verify(rawToken, ks); err != nil {
		p.log.WithFields(logrus.Fields{"tag": "oidc-verify", "strategy": p.name}).
			WithError(err).Error("token rejected")
		return Decision{}, nil
	}

	if !p.omitCheckExp {
		exp, ok, err := claims.Expiry()
		if err != nil {
			p.log.WithField("strategy", p.name).WithError(err).Info("token rejected: unreadable exp")
			return Decision{}, nil
		}
		if ok && !p.now().Before(exp) {
			p.log.WithFields(logrus.Fields{"strategy": p.name, "exp": exp}).Debug("token rejected: expired")
			return Decision{}, nil
		}
	}

	d, err := p.runValidator(ctx, claims)
	if err != nil {
		return Decision{}, err
	}
	return *d, nil
}

func (p *Policy) runValidator(ctx context.Context, claims Claims) (d *Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			d, err = nil, &ValidatorFaultError{Strategy: p.name, Panic: r}
		}
	}()
	d, err = p.validate(ctx, claims)
	if err != nil {
		if errors.Is(err, ErrConfiguration) {
			return nil, fmt.Errorf("strategy %q: %w", p.name, err)
		}
		return nil, &ValidatorFaultError{Strategy: p.name, Err: err}
	}
	if d == nil {
		return nil, fmt.Errorf("strategy %q: %w", p.name, ErrInvalidValidatorResult)
	}
	return d, nil
}
