package fusion

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"SignalFuse/internal/domain/models"
)

func ns(id string, dir, conf float64) models.NormalizedSignal {
	return models.NormalizedSignal{SourceID: id, DirectionScore: dir, Confidence: conf}
}

func TestResolve_UnanimousSwingIsExtreme(t *testing.T) {
	weights := map[string]float64{"trend": 0.35, "structure": 0.35, "quantum": 0.30}
	res, err := Resolve(models.HorizonSwing, []models.NormalizedSignal{ns("trend", 1, 80), ns("structure", 1, 60)}, weights)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.DirectionScorePercent != 100 {
		t.Fatalf("expected 100%%, got %v", res.DirectionScorePercent)
	}
	if res.Direction != models.DirectionBuy || res.DecidedBy != "threshold" {
		t.Fatalf("unexpected decision %+v", res)
	}
	if math.Abs(res.WeightedConfidence-70) > 1e-9 {
		t.Fatalf("expected weighted confidence 70, got %v", res.WeightedConfidence)
	}
}

func TestResolve_Thresholds(t *testing.T) {
	cases := []struct {
		name    string
		signals []models.NormalizedSignal
		weights map[string]float64
		want    models.Direction
		by      string
	}{
		{
			name:    "buy above 60",
			signals: []models.NormalizedSignal{ns("a", 1, 50), ns("b", -1, 90), ns("c", 1, 40)},
			weights: map[string]float64{"a": 0.4, "b": 0.35, "c": 0.25},
			want:    models.DirectionBuy, by: "threshold",
		},
		{
			name:    "buy at exactly 60",
			signals: []models.NormalizedSignal{ns("a", 1, 50), ns("b", -1, 90)},
			weights: map[string]float64{"a": 0.6, "b": 0.4},
			want:    models.DirectionBuy, by: "threshold",
		},
		{
			name:    "sell below 40",
			signals: []models.NormalizedSignal{ns("a", -1, 50), ns("b", 1, 90)},
			weights: map[string]float64{"a": 0.7, "b": 0.3},
			want:    models.DirectionSell, by: "threshold",
		},
		{
			name:    "neutral band picks highest confidence",
			signals: []models.NormalizedSignal{ns("a", 1, 50), ns("b", -1, 90)},
			weights: map[string]float64{"a": 0.5, "b": 0.5},
			want:    models.DirectionSell, by: "b",
		},
		{
			name:    "exact tie goes to heavier source",
			signals: []models.NormalizedSignal{ns("a", 1, 70), ns("z", -1, 70)},
			weights: map[string]float64{"a": 0.45, "z": 0.55},
			want:    models.DirectionSell, by: "z",
		},
		{
			name:    "exact tie on equal weight goes to lower id",
			signals: []models.NormalizedSignal{ns("m", -1, 70), ns("b", 1, 70)},
			weights: map[string]float64{"m": 0.5, "b": 0.5},
			want:    models.DirectionBuy, by: "b",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Resolve(models.HorizonScalp, tc.signals, tc.weights)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Direction != tc.want || res.DecidedBy != tc.by {
				t.Fatalf("expected %s by %s, got %s by %s (pct=%v)", tc.want, tc.by, res.Direction, res.DecidedBy, res.DirectionScorePercent)
			}
		})
	}
}

func TestResolve_AbsentSourcesAreExcluded(t *testing.T) {
	weights := map[string]float64{"momentum": 0.4, "structure": 0.35, "quantum": 0.25}
	res, err := Resolve(models.HorizonScalp, []models.NormalizedSignal{ns("momentum", -1, 40), ns("unknown", 1, 99)}, weights)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.DirectionScorePercent != 0 || math.Abs(res.WeightedConfidence-40) > 1e-9 {
		t.Fatalf("expected only momentum to count, got %+v", res)
	}
}

func TestResolve_Errors(t *testing.T) {
	var ce *models.ComputationError

	_, err := Resolve(models.HorizonScalp, []models.NormalizedSignal{ns("a", 1, 50)}, map[string]float64{"b": 0.5})
	if !errors.As(err, &ce) || ce.Stage != "resolve" || ce.Horizon != models.HorizonScalp {
		t.Fatalf("expected computation error for no participants, got %v", err)
	}

	_, err = Resolve(models.HorizonSwing, []models.NormalizedSignal{ns("a", 1, 50), ns("b", 1, 50)}, map[string]float64{"a": 0.7, "b": 0.6})
	if !errors.As(err, &ce) || !errors.Is(err, errWeightsOverflow) {
		t.Fatalf("expected weight overflow, got %v", err)
	}

	_, err = Resolve(models.HorizonSwing, []models.NormalizedSignal{ns("a", 1, 50), ns("a", -1, 50)}, map[string]float64{"a": 0.5})
	if !errors.Is(err, errDuplicatedSource) {
		t.Fatalf("expected duplicated source error, got %v", err)
	}
}

func TestResolve_Monotonicity(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	ids := []string{"a", "b", "c"}
	weights := map[string]float64{"a": 0.4, "b": 0.35, "c": 0.25}
	for i := 0; i < 500; i++ {
		sigs := make([]models.NormalizedSignal, len(ids))
		for j, id := range ids {
			d := 1.0
			if r.Intn(2) == 0 {
				d = -1
			}
			sigs[j] = ns(id, d, r.Float64()*100)
		}
		before, err := Resolve(models.HorizonScalp, sigs, weights)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		k := r.Intn(len(sigs))
		bumped := append([]models.NormalizedSignal(nil), sigs...)
		bumped[k].Confidence = math.Min(100, bumped[k].Confidence+r.Float64()*30)
		after, err := Resolve(models.HorizonScalp, bumped, weights)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		agrees := bumped[k].DirectionScore == after.Direction.Sign()
		if agrees && after.DirectionScorePercent < before.DirectionScorePercent {
			t.Fatalf("agreeing bump decreased percent: %v -> %v", before.DirectionScorePercent, after.DirectionScorePercent)
		}
		if !agrees && after.DirectionScorePercent > before.DirectionScorePercent {
			t.Fatalf("disagreeing bump increased percent: %v -> %v", before.DirectionScorePercent, after.DirectionScorePercent)
		}
	}
}
