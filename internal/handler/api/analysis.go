package api

import (
	"context"
	"errors"
	"time"

	models "SignalFuse/internal/domain/models"
	"SignalFuse/internal/usecase"
	xhttp "SignalFuse/pkg/http"
	xlogger "SignalFuse/pkg/logger"
	xutil "SignalFuse/pkg/util"

	"github.com/labstack/echo/v4"
)

// Analyzer is the slice of the analyze use case the HTTP layer needs.
type Analyzer interface {
	Analyze(ctx context.Context, p usecase.AnalyzeParams) (*models.Analysis, error)
	Levels(ctx context.Context, symbol string) (models.SupportResistanceLevels, error)
	History(ctx context.Context, symbol string, limit int) ([]models.SignalRecord, error)
}

// AnalysisHandler serves the analysis endpoints under /api.
type AnalysisHandler struct {
	logger *xlogger.Logger
	uc     Analyzer
}

func NewAnalysisHandler(logger *xlogger.Logger, uc Analyzer) *AnalysisHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &AnalysisHandler{logger: logger, uc: uc}
}

func (h *AnalysisHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/analyze", h.Analyze)
	g.GET("/levels", h.Levels)
	g.GET("/history", h.History)
}

// Analyze runs both horizons for a symbol. Without at the analysis is live
// and gets emitted; with at it is a read-only replay.
func (h *AnalysisHandler) Analyze(c echo.Context) error {
	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var asOf time.Time
	if req.At != "" {
		t, ok := xutil.ParseTime(req.At)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid at %q", req.At).WithParam("field", "at"))
		}
		asOf = t
	}

	a, err := h.uc.Analyze(c.Request().Context(), usecase.AnalyzeParams{
		Symbol: req.Symbol,
		AsOf:   asOf,
		Emit:   asOf.IsZero(),
	})
	if err != nil {
		h.logger.Error("analyze usecase error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	if a.Scalp == nil && a.Swing == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnprocessableError("no horizon produced a signal").
			WithParams(map[string]interface{}{"errors": a.Errors, "producer_errors": a.Producers}))
	}
	if asOf.IsZero() {
		c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	}
	return xhttp.SuccessResponse(c, a)
}

func (h *AnalysisHandler) Levels(c echo.Context) error {
	req := &models.LevelsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	lv, err := h.uc.Levels(c.Request().Context(), req.Symbol)
	if err != nil {
		h.logger.Error("levels usecase error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, lv)
}

func (h *AnalysisHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.uc.History(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		h.logger.Error("history usecase error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func toAppError(err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return xhttp.NotFoundError("no candles for symbol").WithError(err)
	case errors.Is(err, usecase.ErrSymbolRequired):
		return xhttp.BadRequestError("symbol required").WithError(err)
	case errors.Is(err, usecase.ErrJournalDisabled):
		return xhttp.UnavailableError("signal history is not enabled").WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.UnavailableError("analysis timed out").WithError(err)
	default:
		return xhttp.InternalError("analysis failed").WithError(err)
	}
}
