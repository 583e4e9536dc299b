package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"SignalFuse/internal/domain/models"
	domsvc "SignalFuse/internal/domain/service"
)

// StaticWeightProvider serves configured per-horizon weights.
type StaticWeightProvider struct {
	weights map[models.Horizon]map[string]float64
}

func NewStaticWeightProvider(scalp, swing map[string]float64) *StaticWeightProvider {
	return &StaticWeightProvider{weights: map[models.Horizon]map[string]float64{
		models.HorizonScalp: scalp,
		models.HorizonSwing: swing,
	}}
}

func (p *StaticWeightProvider) Weights(_ context.Context, _ string, h models.Horizon, _ map[string]float64) (models.WeightSet, error) {
	src, ok := p.weights[h]
	if !ok || len(src) == 0 {
		return models.WeightSet{}, fmt.Errorf("no static weights for horizon %q", h)
	}
	w := make(map[string]float64, len(src))
	for k, v := range src {
		w[k] = v
	}
	return models.WeightSet{Weights: w, ConfidenceMultiplier: 1, Source: "static"}, nil
}

// Sources lists the producer ids configured for h.
func (p *StaticWeightProvider) Sources(h models.Horizon) []string {
	out := make([]string, 0, len(p.weights[h]))
	for k := range p.weights[h] {
		out = append(out, k)
	}
	return out
}

// HTTPWeightProvider asks the ML service for weights given a feature vector.
type HTTPWeightProvider struct {
	base    *HTTPServiceBase
	retries int
	sources func(models.Horizon) []string
}

func NewHTTPWeightProvider(baseURL string, timeout time.Duration, retries int, sources func(models.Horizon) []string) *HTTPWeightProvider {
	return &HTTPWeightProvider{base: NewHTTPServiceBase(baseURL, timeout), retries: retries, sources: sources}
}

type weightsRequest struct {
	Symbol   string             `json:"symbol"`
	Horizon  string             `json:"horizon"`
	Sources  []string           `json:"sources,omitempty"`
	Features map[string]float64 `json:"features"`
}

type weightsResponse struct {
	Weights              map[string]float64 `json:"weights"`
	ConfidenceMultiplier float64            `json:"confidence_multiplier"`
}

func (p *HTTPWeightProvider) Weights(ctx context.Context, symbol string, h models.Horizon, features map[string]float64) (models.WeightSet, error) {
	req := weightsRequest{Symbol: symbol, Horizon: string(h), Features: features}
	if p.sources != nil {
		req.Sources = p.sources(h)
	}
	var resp weightsResponse
	if err := p.base.PostJSONWithRetry(ctx, "/weights/predict", req, &resp, p.retries+1); err != nil {
		return models.WeightSet{}, fmt.Errorf("predict weights: %w", err)
	}
	w := SanitizeWeights(resp.Weights)
	if len(w) == 0 {
		return models.WeightSet{}, fmt.Errorf("predict weights: empty weight set for %s", h)
	}
	mult := resp.ConfidenceMultiplier
	if mult <= 0 || math.IsNaN(mult) || math.IsInf(mult, 0) {
		mult = 1
	}
	return models.WeightSet{Weights: w, ConfidenceMultiplier: mult, Source: "ml"}, nil
}

// SanitizeWeights drops non-finite and non-positive entries and scales the
// rest down proportionally when they sum above 1.
func SanitizeWeights(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	var sum float64
	for k, v := range in {
		if k == "" || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			continue
		}
		out[k] = v
		sum += v
	}
	if sum > 1 {
		for k, v := range out {
			out[k] = v / sum
		}
	}
	return out
}

var (
	_ domsvc.WeightProvider = (*StaticWeightProvider)(nil)
	_ domsvc.WeightProvider = (*HTTPWeightProvider)(nil)
)
