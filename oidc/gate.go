package oidckit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	jwtkit "github.com/PaulFidika/oidcgate/jwt"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Options configures a Gate.
type Options struct {
	// TokenEndpoint and Clients enable the exchange proxy. Both are required.
	TokenEndpoint string
	Clients       ClientSecrets

	// TokenAuthStyle places client credentials; the zero value is the
	// Authorization header.
	TokenAuthStyle oauth2.AuthStyle

	// FetchKeystore loads the verification keys at startup and on Refresh.
	// Required unless Dev is set.
	FetchKeystore jwtkit.FetchFunc
	Dev           bool

	// Validate is the default validator for strategies that do not set one.
	Validate     Validator
	Strategies   []StrategyConfig
	OmitCheckExp bool

	// ExchangeTimeout bounds each upstream token call when HTTPClient is nil.
	// The client built for it does not follow redirects.
	ExchangeTimeout time.Duration
	HTTPClient      *http.Client

	Logger logrus.FieldLogger
}

// Gate is the assembled verifier and optional exchange proxy.
type Gate struct {
	Keys       *jwtkit.KeystoreHolder
	Strategies *Registry
	// Exchange is nil when no token endpoint or clients are configured.
	Exchange *TokenProxy

	fetch jwtkit.FetchFunc
	log   logrus.FieldLogger
}

// New loads the keystore and builds the strategies. It fails before any
// request can be served when no keystore can be obtained.
func New(ctx context.Context, opts Options) (*Gate, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	ks, err := jwtkit.LoadKeystore(ctx, opts.FetchKeystore, opts.Dev)
	if err != nil {
		if errors.Is(err, jwtkit.ErrKeystoreSourceRequired) || errors.Is(err, jwtkit.ErrDevKeystoreInProduction) {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return nil, err
	}
	if opts.FetchKeystore == nil {
		log.WithField("kids", ks.KeyIDs()).Warn("using bundled development keystore")
	}
	holder := jwtkit.NewKeystoreHolder(ks)

	reg, err := NewRegistry(holder, RegistryOptions{
		Validate:     opts.Validate,
		OmitCheckExp: opts.OmitCheckExp,
		Logger:       log,
	}, opts.Strategies...)
	if err != nil {
		return nil, err
	}

	g := &Gate{
		Keys:       holder,
		Strategies: reg,
		fetch:      opts.FetchKeystore,
		log:        log,
	}
	if opts.TokenEndpoint != "" && len(opts.Clients) > 0 {
		client := opts.HTTPClient
		if client == nil {
			client = noRedirectClient(opts.ExchangeTimeout)
		}
		ep := oauth2.Endpoint{TokenURL: opts.TokenEndpoint, AuthStyle: opts.TokenAuthStyle}
		g.Exchange = NewEndpointProxy(ep, opts.Clients,
			WithHTTPClient(client), WithProxyLogger(log))
	}
	return g, nil
}

// Refresh re-runs FetchKeystore and swaps the snapshot. On error the previous
// snapshot stays in service.
func (g *Gate) Refresh(ctx context.Context) error {
	if g.fetch == nil {
		return nil
	}
	return jwtkit.NewRefresher(g.Keys, g.fetch, jwtkit.WithRefreshLogger(g.log)).RefreshNow(ctx)
}

// Verify decodes rawToken and evaluates it with the named strategy. A token
// whose payload cannot be decoded is a negative decision, not an error.
func (g *Gate) Verify(ctx context.Context, strategy, rawToken string) (Decision, Claims, error) {
	p, ok := g.Strategies.Strategy(strategy)
	if !ok {
		return Decision{}, nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	claims, err := DecodeClaims(rawToken)
	if err != nil {
		g.log.WithFields(logrus.Fields{"tag": "oidc-verify", "strategy": strategy}).
			WithError(err).Error("token rejected")
		return Decision{}, nil, nil
	}
	d, err := p.Evaluate(ctx, claims, rawToken)
	if err != nil {
		return Decision{}, claims, err
	}
	return d, claims, nil
}
