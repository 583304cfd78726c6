package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/and27/supportops/internal/store"
)

// ErrDefaultOrgMissing means the fallback tenant is not seeded.
var ErrDefaultOrgMissing = errors.New("default org missing")

// OrgResolver maps requests to a tenant. An explicit org always wins; absent
// one, the default org is looked up by slug once and cached for the process
// lifetime.
type OrgResolver struct {
	store       store.OrgStore
	defaultSlug string

	mu       sync.Mutex
	cachedID string
}

func NewOrgResolver(st store.OrgStore, defaultSlug string) *OrgResolver {
	if defaultSlug == "" {
		defaultSlug = "default"
	}
	return &OrgResolver{store: st, defaultSlug: defaultSlug}
}

// Resolve returns the tenant id for a request. explicit comes from the
// X-Org-Id header or the payload and is trusted as-is.
func (r *OrgResolver) Resolve(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	return r.defaultOrgID(ctx)
}

func (r *OrgResolver) defaultOrgID(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cachedID != "" {
		return r.cachedID, nil
	}

	org, err := r.store.GetOrgBySlug(ctx, r.defaultSlug)
	if err != nil {
		var notFound *store.ErrNotFound
		if errors.As(err, &notFound) {
			log.Error().Str("org_slug", r.defaultSlug).Msg("Default org missing")
			return "", fmt.Errorf("%w: slug %q", ErrDefaultOrgMissing, r.defaultSlug)
		}
		return "", fmt.Errorf("resolve default org: %w", err)
	}

	r.cachedID = org.ID
	return r.cachedID, nil
}
