package metrics

import (
	"context"
	"errors"
	"testing"

	"SignalFuse/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type failingProvider struct{}

func (failingProvider) Weights(context.Context, string, models.Horizon, map[string]float64) (models.WeightSet, error) {
	return models.WeightSet{}, errors.New("down")
}

func TestInstrumentedWeightsCountsErrors(t *testing.T) {
	w := NewInstrumentedWeights(failingProvider{})
	before := testutil.ToFloat64(AnalyticsErrors.WithLabelValues("scalp"))
	if _, err := w.Weights(context.Background(), "X", models.HorizonScalp, nil); err == nil {
		t.Fatalf("expected error to pass through")
	}
	if got := testutil.ToFloat64(AnalyticsErrors.WithLabelValues("scalp")); got != before+1 {
		t.Fatalf("errors = %v, want %v", got, before+1)
	}
}
