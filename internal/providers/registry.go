package providers

import (
	"context"
	"fmt"
	"sort"

	"github.com/vouchr/storefront-backend/pkg/config"
	"github.com/vouchr/storefront-backend/pkg/enums"
	"github.com/vouchr/storefront-backend/pkg/logger"
)

// Registry resolves adapters by provider code. Adding a vendor is a
// registration, not a branch in the engine.
type Registry struct {
	gateways map[enums.ProviderCode]Gateway
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{gateways: make(map[enums.ProviderCode]Gateway)}
}

// Register adds a gateway; codes must be unique.
func (r *Registry) Register(gateway Gateway) error {
	if gateway == nil {
		return fmt.Errorf("gateway required")
	}
	code := gateway.Code()
	if !code.IsValid() {
		return fmt.Errorf("invalid provider code %q", code)
	}
	if _, exists := r.gateways[code]; exists {
		return fmt.Errorf("provider %s already registered", code)
	}
	r.gateways[code] = gateway
	return nil
}

// Gateway returns the adapter for code.
func (r *Registry) Gateway(code enums.ProviderCode) (Gateway, bool) {
	if r == nil {
		return nil, false
	}
	g, ok := r.gateways[code]
	return g, ok
}

// Codes lists registered providers in a stable order.
func (r *Registry) Codes() []enums.ProviderCode {
	codes := make([]enums.ProviderCode, 0, len(r.gateways))
	for code := range r.gateways {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// PriceListers returns the registered adapters that publish a price feed.
func (r *Registry) PriceListers() []PriceLister {
	var listers []PriceLister
	for _, code := range r.Codes() {
		if lister, ok := r.gateways[code].(PriceLister); ok {
			listers = append(listers, lister)
		}
	}
	return listers
}

// NewRegistryFromConfig registers every vendor whose credentials are set.
func NewRegistryFromConfig(cfg config.ProvidersConfig, logg *logger.Logger, opts ...Option) (*Registry, error) {
	registry := NewRegistry()
	var gateways []Gateway

	if cfg.Digiflazz.Enabled() {
		g, err := NewDigiflazz(cfg.Digiflazz, opts...)
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, g)
	}
	if cfg.TokoVoucher.Enabled() {
		g, err := NewTokoVoucher(cfg.TokoVoucher, opts...)
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, g)
	}
	if cfg.APIGames.Enabled() {
		g, err := NewAPIGames(cfg.APIGames, opts...)
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, g)
	}
	if cfg.MedanPedia.Enabled() {
		g, err := NewMedanPedia(cfg.MedanPedia, opts...)
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, g)
	}

	for _, g := range gateways {
		if err := registry.Register(g); err != nil {
			return nil, err
		}
	}
	if logg != nil {
		names := make([]string, 0, len(gateways))
		for _, code := range registry.Codes() {
			names = append(names, code.String())
		}
		logg.Info(logg.WithField(context.Background(), "providers", names), "provider registry ready")
	}
	return registry, nil
}
