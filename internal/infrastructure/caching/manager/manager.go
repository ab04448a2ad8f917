// Package manager provides the typed identity cache facade over the
// configured KV backend.
package manager

import (
	"context"
	"encoding/json"
	"time"

	"github.com/leadbeacon/leadbeacon-go/internal/domain/identity"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/caching/interfaces"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/caching/stores"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/leadbeacon/leadbeacon-go/pkg/config"
)

const (
	identityPrefix        = "identity:"
	personalizationPrefix = "personalize:"
)

// Manager is the identity/personalization cache used by the read paths:
// cache-first lookups with store fallback and write-back.
type Manager struct {
	store              interfaces.KVStore
	logger             *logging.ChanneledLogger
	identityTTL        time.Duration
	personalizationTTL time.Duration
}

// NewManager selects the backend from configuration: redis when REDIS_URL is
// set, otherwise the in-process store.
func NewManager(logger *logging.ChanneledLogger) (*Manager, error) {
	var store interfaces.KVStore
	if config.RedisURL != "" {
		redisStore, err := stores.NewRedisStore(config.RedisURL, logger)
		if err != nil {
			return nil, err
		}
		store = redisStore
	} else {
		store = stores.NewMemoryStore(config.CacheSweepInterval, logger)
	}

	return &Manager{
		store:              store,
		logger:             logger,
		identityTTL:        config.IdentityCacheTTL,
		personalizationTTL: config.PersonalizationTTL,
	}, nil
}

// NewManagerWithStore wires an explicit backend; used by tests.
func NewManagerWithStore(store interfaces.KVStore, logger *logging.ChanneledLogger) *Manager {
	return &Manager{
		store:              store,
		logger:             logger,
		identityTTL:        config.IdentityCacheTTL,
		personalizationTTL: config.PersonalizationTTL,
	}
}

// GetIdentity returns a cached identity profile for a tracking token.
func (m *Manager) GetIdentity(ctx context.Context, token string) (*identity.Profile, bool) {
	raw, found, err := m.store.Get(ctx, identityPrefix+token)
	if err != nil || !found {
		return nil, false
	}

	var profile identity.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		m.logger.Cache().Error("Corrupt cached identity entry, dropping", "token", token, "error", err.Error())
		m.store.Delete(ctx, identityPrefix+token)
		return nil, false
	}
	return &profile, true
}

// SetIdentity writes an identity profile back to the cache.
func (m *Manager) SetIdentity(ctx context.Context, token string, profile *identity.Profile) {
	raw, err := json.Marshal(profile)
	if err != nil {
		m.logger.Cache().Error("Failed to marshal identity profile", "token", token, "error", err.Error())
		return
	}
	if err := m.store.Set(ctx, identityPrefix+token, raw, m.identityTTL); err != nil {
		m.logger.Cache().Error("Failed to cache identity profile", "token", token, "error", err.Error())
	}
}

// GetPersonalization returns a cached personalization payload for a visitor
// or lead id.
func (m *Manager) GetPersonalization(ctx context.Context, vid string) (*identity.Personalization, bool) {
	raw, found, err := m.store.Get(ctx, personalizationPrefix+vid)
	if err != nil || !found {
		return nil, false
	}

	var p identity.Personalization
	if err := json.Unmarshal(raw, &p); err != nil {
		m.logger.Cache().Error("Corrupt cached personalization entry, dropping", "vid", vid, "error", err.Error())
		m.store.Delete(ctx, personalizationPrefix+vid)
		return nil, false
	}
	return &p, true
}

// SetPersonalization writes a personalization payload back to the cache.
func (m *Manager) SetPersonalization(ctx context.Context, vid string, p *identity.Personalization) {
	raw, err := json.Marshal(p)
	if err != nil {
		m.logger.Cache().Error("Failed to marshal personalization", "vid", vid, "error", err.Error())
		return
	}
	if err := m.store.Set(ctx, personalizationPrefix+vid, raw, m.personalizationTTL); err != nil {
		m.logger.Cache().Error("Failed to cache personalization", "vid", vid, "error", err.Error())
	}
}

// InvalidateIdentity drops a cached identity entry, used when a lead row
// changes under a cached token.
func (m *Manager) InvalidateIdentity(ctx context.Context, token string) {
	m.store.Delete(ctx, identityPrefix+token)
}

// Close releases the backend.
func (m *Manager) Close() error {
	return m.store.Close()
}
