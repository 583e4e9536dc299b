package fusion

import (
	"errors"
	"fmt"
	"sort"

	"SignalFuse/internal/domain/models"
)

// Decision boundaries on the direction score percent.
const (
	BuyThreshold  = 60.0
	SellThreshold = 40.0

	weightTolerance = 1e-9
	decidedByScore  = "threshold"
)

var (
	errNoParticipants   = errors.New("no participating source")
	errWeightsOverflow  = errors.New("weights of participating sources sum above 1")
	errDuplicatedSource = errors.New("duplicated source")
)

type participant struct {
	sig    models.NormalizedSignal
	weight float64
}

// Resolve reduces the normalized signals of one horizon to a direction.
// Sources without a positive weight are ignored; averages divide by the
// sum of the weights actually used.
func Resolve(h models.Horizon, normalized []models.NormalizedSignal, weights map[string]float64) (models.ResolvedSignal, error) {
	parts := make([]participant, 0, len(normalized))
	seen := make(map[string]struct{}, len(normalized))
	for _, n := range normalized {
		w, ok := weights[n.SourceID]
		if !ok || !finite(w) || w <= 0 {
			continue
		}
		if _, dup := seen[n.SourceID]; dup {
			return models.ResolvedSignal{}, &models.ComputationError{
				Horizon: h, Stage: "resolve", Err: fmt.Errorf("%w: %s", errDuplicatedSource, n.SourceID),
			}
		}
		seen[n.SourceID] = struct{}{}
		parts = append(parts, participant{sig: n, weight: w})
	}
	if len(parts) == 0 {
		return models.ResolvedSignal{}, &models.ComputationError{
			Horizon: h, Stage: "resolve", Inputs: map[string]float64{"signals": float64(len(normalized))}, Err: errNoParticipants,
		}
	}

	// Weight order fixes both the summation order and the tie-break.
	sort.SliceStable(parts, func(i, j int) bool {
		if parts[i].weight != parts[j].weight {
			return parts[i].weight > parts[j].weight
		}
		return parts[i].sig.SourceID < parts[j].sig.SourceID
	})

	var sumW, sumDir, sumConf float64
	for _, p := range parts {
		sumW += p.weight
		sumDir += p.weight * p.sig.DirectionScore
		sumConf += p.weight * p.sig.Confidence
	}
	if sumW > 1+weightTolerance {
		return models.ResolvedSignal{}, &models.ComputationError{
			Horizon: h, Stage: "resolve", Inputs: map[string]float64{"weight_sum": sumW}, Err: errWeightsOverflow,
		}
	}

	score := clamp(sumDir/sumW, -1, 1)
	pct := (score + 1) / 2 * 100
	res := models.ResolvedSignal{
		Horizon:               h,
		WeightedConfidence:    clamp(sumConf/sumW, 0, 100),
		DirectionScorePercent: pct,
		DecidedBy:             decidedByScore,
	}
	switch {
	case pct >= BuyThreshold-weightTolerance:
		res.Direction = models.DirectionBuy
	case pct <= SellThreshold+weightTolerance:
		res.Direction = models.DirectionSell
	default:
		best := parts[0]
		for _, p := range parts[1:] {
			if p.sig.Confidence > best.sig.Confidence {
				best = p
			}
		}
		res.Direction = models.DirectionSell
		if best.sig.DirectionScore > 0 {
			res.Direction = models.DirectionBuy
		}
		res.DecidedBy = best.sig.SourceID
	}
	return res, nil
}
