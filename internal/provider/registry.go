package provider

import (
	"context"
	"fmt"
	"sort"

	"github.com/kmassidik/movegh/internal/common/config"
	"github.com/kmassidik/movegh/internal/common/logger"
)

var liveProviders = []string{NameMTN, NameVodafone, NameAirtelTigo}

// Registry resolves providers by name
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// BuildRegistry wires every provider for the configured mode.
// Live mode loads each provider's secrets and fails fast on bad config.
func BuildRegistry(cfg config.PaymentsConfig, log *logger.Logger) (*Registry, error) {
	if cfg.Mode != config.ModeLive {
		providers := []Provider{NewMockProvider(cfg.WebhookSecret)}
		for _, name := range liveProviders {
			pcfg, err := LoadConfig(cfg.Mode, cfg.SecretsDir, cfg.WebhookSecret, name)
			if err != nil {
				return nil, err
			}
			providers = append(providers, &aliasedMock{MockProvider: NewMockProvider(pcfg.WebhookSecret), name: name})
		}
		return NewRegistry(providers...), nil
	}

	providers := make([]Provider, 0, len(liveProviders))
	for _, name := range liveProviders {
		pcfg, err := LoadConfig(cfg.Mode, cfg.SecretsDir, cfg.WebhookSecret, name)
		if err != nil {
			return nil, err
		}
		providers = append(providers, NewLiveProvider(pcfg, log.With("provider", name)))
	}
	return NewRegistry(providers...), nil
}

// aliasedMock lets mock mode answer for real provider names
type aliasedMock struct {
	*MockProvider
	name string
}

func (a *aliasedMock) Name() string { return a.name }

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, name)
	}
	return p, nil
}

// Health returns down for unknown providers
func (r *Registry) Health(ctx context.Context, name string) string {
	p, err := r.Get(name)
	if err != nil {
		return HealthDown
	}
	return p.HealthCheck(ctx)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
