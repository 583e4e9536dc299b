package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	models "SignalFuse/internal/domain/models"
	"SignalFuse/internal/usecase"

	"github.com/labstack/echo/v4"
)

type fakeAnalyzer struct {
	analysis *models.Analysis
	err      error
	last     usecase.AnalyzeParams
	limit    int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, p usecase.AnalyzeParams) (*models.Analysis, error) {
	f.last = p
	return f.analysis, f.err
}

func (f *fakeAnalyzer) Levels(context.Context, string) (models.SupportResistanceLevels, error) {
	if f.err != nil {
		return models.SupportResistanceLevels{}, f.err
	}
	return models.SupportResistanceLevels{Supports: []models.SupportResistanceLevel{{Price: 99, Label: "S1"}}}, nil
}

func (f *fakeAnalyzer) History(_ context.Context, symbol string, limit int) ([]models.SignalRecord, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []models.SignalRecord{{AnalysisID: "x", Symbol: symbol}}, nil
}

func serve(t *testing.T, a Analyzer, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	NewAnalysisHandler(nil, a).RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not json: %v: %s", err, rec.Body.String())
	}
	return rec, body
}

func okAnalysis() *models.Analysis {
	return &models.Analysis{
		ID:     "id-1",
		Symbol: "XAUUSD",
		Scalp:  &models.FinalSignal{Horizon: models.HorizonScalp, Direction: models.DirectionBuy, Confidence: 70},
	}
}

func TestAnalyzeLiveEmits(t *testing.T) {
	f := &fakeAnalyzer{analysis: okAnalysis()}
	rec, body := serve(t, f, "/api/analyze?symbol=xauusd")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !f.last.Emit || !f.last.AsOf.IsZero() || f.last.Symbol != "xauusd" {
		t.Fatalf("unexpected params %+v", f.last)
	}
	data, _ := body["data"].(map[string]interface{})
	if data["id"] != "id-1" {
		t.Fatalf("unexpected body %v", body)
	}
	if rec.Header().Get(echo.HeaderCacheControl) == "" {
		t.Fatalf("live responses should carry cache control")
	}
}

func TestAnalyzeReplayDoesNotEmit(t *testing.T) {
	f := &fakeAnalyzer{analysis: okAnalysis()}
	rec, _ := serve(t, f, "/api/analyze?symbol=XAUUSD&at=1709600000")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.last.Emit || !f.last.AsOf.Equal(time.Unix(1709600000, 0)) {
		t.Fatalf("unexpected params %+v", f.last)
	}
}

func TestAnalyzeValidation(t *testing.T) {
	for _, target := range []string{"/api/analyze", "/api/analyze?symbol=X&at=yesterday"} {
		rec, _ := serve(t, &fakeAnalyzer{analysis: okAnalysis()}, target)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", target, rec.Code)
		}
	}
}

func TestAnalyzeErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("candles: %w", models.ErrNotFound), http.StatusNotFound},
		{usecase.ErrSymbolRequired, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec, _ := serve(t, &fakeAnalyzer{err: tc.err}, "/api/analyze?symbol=XAUUSD")
		if rec.Code != tc.want {
			t.Fatalf("%v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestAnalyzeNoSignalsIsUnprocessable(t *testing.T) {
	f := &fakeAnalyzer{analysis: &models.Analysis{ID: "x", Symbol: "XAUUSD", Errors: map[string]string{"scalp": "no participating source"}}}
	rec, _ := serve(t, f, "/api/analyze?symbol=XAUUSD")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLevelsEndpoint(t *testing.T) {
	rec, body := serve(t, &fakeAnalyzer{}, "/api/levels?symbol=XAUUSD")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data, _ := body["data"].(map[string]interface{})
	if sup, _ := data["supports"].([]interface{}); len(sup) != 1 {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	f := &fakeAnalyzer{}
	rec, body := serve(t, f, "/api/history?symbol=XAUUSD")
	if rec.Code != http.StatusOK || f.limit != 50 {
		t.Fatalf("status = %d limit = %d", rec.Code, f.limit)
	}
	data, _ := body["data"].(map[string]interface{})
	if data["total"] != float64(1) {
		t.Fatalf("unexpected body %v", body)
	}

	rec, _ = serve(t, &fakeAnalyzer{}, "/api/history?symbol=XAUUSD&limit=501")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("limit above max should be rejected, got %d", rec.Code)
	}

	rec, _ = serve(t, &fakeAnalyzer{err: usecase.ErrJournalDisabled}, "/api/history?symbol=XAUUSD")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("disabled journal: status = %d", rec.Code)
	}
}
