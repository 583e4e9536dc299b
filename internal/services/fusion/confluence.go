package fusion

import "SignalFuse/internal/domain/models"

// Confluence checklist thresholds.
const (
	rsiOverbought     = 70.0
	rsiOversold       = 30.0
	momentumConfluent = 0.6
)

// Factor names.
const (
	FactorRSI      = "rsi_zone"
	FactorMACD     = "macd_sign"
	FactorMAStack  = "ma_stack"
	FactorMomentum = "momentum"
	FactorPriceMA  = "price_vs_ma"
)

// ScoreConfluence counts how many context factors agree with the already
// resolved direction. The moving-average stack weighs double on swing, so
// MaxScore is 5 for scalp and 6 for swing.
func ScoreConfluence(h models.Horizon, d models.Direction, ctx models.MarketContext) models.ConfluenceResult {
	s := ctx.Snapshot
	buy := d == models.DirectionBuy

	maShort, maLong, maRef := s.MA20, s.MA50, s.MA20
	stackWeight := 1
	if h == models.HorizonSwing {
		maShort, maLong, maRef = s.MA50, s.MA200, s.MA50
		stackWeight = 2
	}

	var rsiOK, macdOK, stackOK, momOK, priceOK bool
	hist := s.MACDHistogram()
	if buy {
		rsiOK = s.RSI < rsiOverbought
		macdOK = hist > 0
		stackOK = maShort > 0 && maLong > 0 && maShort > maLong
		momOK = s.Momentum > momentumConfluent
		priceOK = maRef > 0 && ctx.Price < maRef
	} else {
		rsiOK = s.RSI > rsiOversold
		macdOK = hist < 0
		stackOK = maShort > 0 && maLong > 0 && maShort < maLong
		momOK = s.Momentum < -momentumConfluent
		priceOK = maRef > 0 && ctx.Price > maRef
	}

	factors := []models.ConfluenceFactor{
		{Name: FactorRSI, Passed: rsiOK, Weight: 1},
		{Name: FactorMACD, Passed: macdOK, Weight: 1},
		{Name: FactorMAStack, Passed: stackOK, Weight: stackWeight},
		{Name: FactorMomentum, Passed: momOK, Weight: 1},
		{Name: FactorPriceMA, Passed: priceOK, Weight: 1},
	}
	res := models.ConfluenceResult{Horizon: h, Factors: factors, Context: ctx}
	for _, f := range factors {
		res.MaxScore += f.Weight
		if f.Passed {
			res.Score += f.Weight
		}
	}
	return res
}
