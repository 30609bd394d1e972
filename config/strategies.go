package config

import (
	"context"
	"fmt"
	"net/http"
	"os"

	oidckit "github.com/PaulFidika/oidcgate/oidc"
	"gopkg.in/yaml.v3"
)

// StrategyFile is the YAML layout of OIDCGATE_STRATEGIES_FILE:
//
//	strategies:
//	  - name: api
//	    require:
//	      iss: https://idp.example.com
//	      scope: read:things
//	  - name: partner
//	    webhook: https://policy.internal/decide
type StrategyFile struct {
	Strategies []StrategySpec `yaml:"strategies"`
}

// StrategySpec declares one strategy. With neither Require nor Webhook the
// strategy accepts every authentic, unexpired token.
type StrategySpec struct {
	Name    string         `yaml:"name"`
	Require map[string]any `yaml:"require"`
	Webhook string         `yaml:"webhook"`
}

// LoadStrategies reads and builds the strategies in path. client is used by
// webhook validators.
func LoadStrategies(path string, client *http.Client) ([]oidckit.StrategyConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategies: %w", err)
	}
	return ParseStrategies(b, client)
}

// ParseStrategies builds strategies from YAML.
func ParseStrategies(b []byte, client *http.Client) ([]oidckit.StrategyConfig, error) {
	var f StrategyFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse strategies: %w", err)
	}
	out := make([]oidckit.StrategyConfig, 0, len(f.Strategies))
	for _, s := range f.Strategies {
		out = append(out, oidckit.StrategyConfig{Name: s.Name, Validate: s.validator(client)})
	}
	return out, nil
}

func (s StrategySpec) validator(client *http.Client) oidckit.Validator {
	var steps []oidckit.Validator
	if len(s.Require) > 0 {
		steps = append(steps, oidckit.RequireClaims(s.Require))
	}
	if s.Webhook != "" {
		steps = append(steps, oidckit.WebhookValidator(s.Webhook, client))
	}
	switch len(steps) {
	case 0:
		return nil
	case 1:
		return steps[0]
	}
	// Every step must accept; the last step's credentials win.
	return func(ctx context.Context, claims oidckit.Claims) (*oidckit.Decision, error) {
		var d *oidckit.Decision
		for _, step := range steps {
			var err error
			if d, err = step(ctx, claims); err != nil || d == nil || !d.IsValid {
				return d, err
			}
		}
		return d, nil
	}
}
