package fusion

import (
	"math"
	"strconv"

	"SignalFuse/internal/domain/models"
)

// NormalizeResult carries the normalized signals plus everything that was
// substituted or rejected along the way.
type NormalizeResult struct {
	Signals  []models.NormalizedSignal
	Issues   []*models.ConversionError
	Rejected []*models.InconsistentSignalError
}

// Normalize maps raw producer signals onto direction ±1 and confidence
// [0,100]. Unusable prices fall back to fallbackPrice and are reported as
// issues. A signal whose reported stop/target contradicts its direction is
// rejected, never repaired.
func Normalize(signals []models.SubsystemSignal, fallbackPrice float64) NormalizeResult {
	var res NormalizeResult
	for _, s := range signals {
		if !s.Direction.Valid() {
			res.Issues = append(res.Issues, &models.ConversionError{SourceID: s.SourceID, Field: "direction", Value: string(s.Direction)})
			continue
		}

		entry, entryOK := usablePrice(s.Entry)
		stop, stopOK := usablePrice(s.StopLoss)
		target, targetOK := usablePrice(s.TakeProfit)
		if !entryOK {
			res.Issues = append(res.Issues, conversionIssue(s.SourceID, "entry", s.Entry))
			entry = fallbackPrice
		}
		if !stopOK {
			res.Issues = append(res.Issues, conversionIssue(s.SourceID, "stop_loss", s.StopLoss))
			stop = fallbackPrice
		}
		if !targetOK {
			res.Issues = append(res.Issues, conversionIssue(s.SourceID, "take_profit", s.TakeProfit))
			target = fallbackPrice
		}

		// Only orderings between fields the producer actually reported.
		if entryOK && (stopOK || targetOK) && !orderingValid(s.Direction, entry, stop, stopOK, target, targetOK) {
			res.Rejected = append(res.Rejected, &models.InconsistentSignalError{
				SourceID:   s.SourceID,
				Direction:  s.Direction,
				Entry:      entry,
				StopLoss:   stop,
				TakeProfit: target,
			})
			continue
		}

		conf, ok := scaleConfidence(s.Confidence, s.Scale)
		if !ok {
			res.Issues = append(res.Issues, conversionIssue(s.SourceID, "confidence", s.Confidence))
		}
		if s.Scale != "" && s.Scale != models.ScalePercent && s.Scale != models.ScaleTen && s.Scale != models.ScaleUnit {
			res.Issues = append(res.Issues, &models.ConversionError{SourceID: s.SourceID, Field: "scale", Value: string(s.Scale)})
		}

		res.Signals = append(res.Signals, models.NormalizedSignal{
			SourceID:       s.SourceID,
			DirectionScore: s.Direction.Sign(),
			Confidence:     conf,
		})
	}
	return res
}

func usablePrice(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

func orderingValid(d models.Direction, entry, stop float64, stopOK bool, target float64, targetOK bool) bool {
	switch d {
	case models.DirectionBuy:
		if stopOK && stop >= entry {
			return false
		}
		if targetOK && target <= entry {
			return false
		}
	case models.DirectionSell:
		if stopOK && stop <= entry {
			return false
		}
		if targetOK && target >= entry {
			return false
		}
	}
	return true
}

// scaleConfidence re-scales to percent and clamps to [0,100]. A non-finite
// value becomes 0 and reports false.
func scaleConfidence(v float64, scale models.ConfidenceScale) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	switch scale {
	case models.ScaleTen:
		v *= 10
	case models.ScaleUnit:
		v *= 100
	}
	return clamp(v, 0, 100), true
}

func conversionIssue(source, field string, v float64) *models.ConversionError {
	return &models.ConversionError{SourceID: source, Field: field, Value: strconv.FormatFloat(v, 'g', -1, 64)}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
