package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"SignalFuse/internal/domain/models"
	domsvc "SignalFuse/internal/domain/service"
	"SignalFuse/internal/service/cache"
)

// CachedWeightProvider memoizes another provider keyed by symbol, horizon
// and a hash of the feature vector.
type CachedWeightProvider struct {
	next  domsvc.WeightProvider
	cache cache.BytesCache
	ttl   time.Duration
}

func NewCachedWeightProvider(next domsvc.WeightProvider, c cache.BytesCache, ttl time.Duration) *CachedWeightProvider {
	return &CachedWeightProvider{next: next, cache: c, ttl: ttl}
}

func (p *CachedWeightProvider) Weights(ctx context.Context, symbol string, h models.Horizon, features map[string]float64) (models.WeightSet, error) {
	if p.cache == nil || p.ttl <= 0 {
		return p.next.Weights(ctx, symbol, h, features)
	}
	key, err := weightsKey(symbol, h, features)
	if err != nil {
		return p.next.Weights(ctx, symbol, h, features)
	}
	if b, ok, err := p.cache.GetBytes(ctx, key); err == nil && ok {
		var ws models.WeightSet
		if json.Unmarshal(b, &ws) == nil && len(ws.Weights) > 0 {
			return ws, nil
		}
	}
	ws, err := p.next.Weights(ctx, symbol, h, features)
	if err != nil {
		return ws, err
	}
	if b, err := json.Marshal(ws); err == nil {
		_ = p.cache.SetBytes(ctx, key, b, p.ttl)
	}
	return ws, nil
}

func weightsKey(symbol string, h models.Horizon, features map[string]float64) (string, error) {
	// map keys marshal sorted
	b, err := json.Marshal(features)
	if err != nil {
		return "", err
	}
	f := fnv.New64a()
	_, _ = f.Write(b)
	return fmt.Sprintf("weights:%s:%s:%x", symbol, h, f.Sum64()), nil
}
