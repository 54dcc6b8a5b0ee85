package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/Yiling-J/theine-go"
)

// CachedProvider memoizes definitions for a short TTL. Definitions are
// immutable per version, so staleness is bounded by the TTL after an upsert
// through another process; local upserts call Invalidate.
type CachedProvider struct {
	next  Provider
	cache *theine.LoadingCache[string, *TestDefinition]
}

func NewCachedProvider(next Provider, size int64, ttl time.Duration) (*CachedProvider, error) {
	if size <= 0 {
		size = 1000
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	c, err := theine.NewBuilder[string, *TestDefinition](size).BuildWithLoader(func(ctx context.Context, testID string) (theine.Loaded[*TestDefinition], error) {
		def, err := next.GetTestDefinition(ctx, testID)
		if err != nil {
			return theine.Loaded[*TestDefinition]{}, err
		}
		return theine.Loaded[*TestDefinition]{
			Value: def,
			Cost:  1,
			TTL:   ttl,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("build test definition cache: %w", err)
	}
	return &CachedProvider{next: next, cache: c}, nil
}

func (p *CachedProvider) GetTestDefinition(ctx context.Context, testID string) (*TestDefinition, error) {
	def, err := p.cache.Get(ctx, testID)
	if err != nil {
		return nil, err
	}
	cp := *def
	return &cp, nil
}

func (p *CachedProvider) Invalidate(testID string) {
	p.cache.Delete(testID)
}
