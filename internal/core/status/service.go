// Package status keeps the current scan id of each scope.
package status

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"linkscan/internal/core/scope"
	rds "linkscan/internal/platform/redis"
)

type Store struct{ redis *rds.Service }

func NewStore(redis *rds.Service) *Store { return &Store{redis: redis} }

// Get returns the scope's current scan id, or ok=false when no scan is in flight.
func (s *Store) Get(ctx context.Context, sc scope.Scope) (string, bool, error) {
	id, err := s.redis.GetString(ctx, key(sc))
	if errors.Is(err, rds.ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read current scan id (%s): %w", sc, err)
	}
	return id, id != "", nil
}

func (s *Store) Set(ctx context.Context, sc scope.Scope, scanID string) error {
	if err := s.redis.SetString(ctx, key(sc), scanID, 0); err != nil {
		return fmt.Errorf("record current scan id (%s): %w", sc, err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, sc scope.Scope) error {
	if err := s.redis.Delete(ctx, key(sc)); err != nil {
		return fmt.Errorf("clear current scan id (%s): %w", sc, err)
	}
	return nil
}

func key(sc scope.Scope) string {
	if sc.IsNetwork() {
		return "linkscan:scan:current:network"
	}
	return "linkscan:scan:current:site:" + strconv.FormatInt(sc.SiteID(), 10)
}
