package usecase

import (
	"fmt"
	"sync"

	syncdomain "dmarcview-backend/internal/sync/domain"
)

// ProviderRegistry routes pipeline calls to the adapter matching a provider
// tag. Adapters are created lazily and cached, one instance per provider.
type ProviderRegistry interface {
	Get(provider syncdomain.Provider) (syncdomain.MailProvider, error)
}

// ProviderFactory builds one adapter instance.
type ProviderFactory func() (syncdomain.MailProvider, error)

type providerRegistry struct {
	factories map[syncdomain.Provider]ProviderFactory
	cache     map[syncdomain.Provider]syncdomain.MailProvider
	mu        sync.Mutex
}

func NewProviderRegistry(factories map[syncdomain.Provider]ProviderFactory) ProviderRegistry {
	return &providerRegistry{
		factories: factories,
		cache:     make(map[syncdomain.Provider]syncdomain.MailProvider),
	}
}

func (r *providerRegistry) Get(provider syncdomain.Provider) (syncdomain.MailProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if adapter, ok := r.cache[provider]; ok {
		return adapter, nil
	}

	factory, ok := r.factories[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	adapter, err := factory()
	if err != nil {
		return nil, err
	}
	r.cache[provider] = adapter
	return adapter, nil
}
