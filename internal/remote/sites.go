// internal/remote/sites.go
package remote

import (
	"context"
	"encoding/json"
	"time"

	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const sitesCacheKey = "sites:catalog"

// SitesCatalog serves the backend's site list with a Redis cache in front,
// so repeated campaign-form loads don't hammer the backend. The cache is
// best-effort: with no Redis client, or on cache errors, it falls through
// to the backend.
type SitesCatalog struct {
	Client *Client
	RDB    *r.Client
	TTL    time.Duration
	Logger *zap.Logger
}

func (s *SitesCatalog) Sites(ctx context.Context) ([]string, error) {
	if s.RDB != nil {
		if cached, err := s.RDB.Get(ctx, sitesCacheKey).Bytes(); err == nil {
			var sites []string
			if err := json.Unmarshal(cached, &sites); err == nil {
				return sites, nil
			}
		}
	}

	sites, err := s.Client.ListSites(ctx)
	if err != nil {
		return nil, err
	}

	if s.RDB != nil {
		if payload, err := json.Marshal(sites); err == nil {
			if err := s.RDB.Set(ctx, sitesCacheKey, payload, s.TTL).Err(); err != nil {
				s.Logger.Warn("failed to cache sites catalog", zap.Error(err))
			}
		}
	}
	return sites, nil
}
