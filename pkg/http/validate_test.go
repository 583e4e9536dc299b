package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type listRequest struct {
	Symbol string `query:"symbol" validate:"required,max=8"`
	Limit  int    `query:"limit" default:"25" validate:"gte=1,lte=100"`
}

func bind(target string) (*listRequest, []ValidationError) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
	req := &listRequest{}
	return req, ReadAndValidateRequest(c, req)
}

func TestReadAndValidateRequestDefaults(t *testing.T) {
	req, verr := bind("/?symbol=BTC")
	if verr != nil {
		t.Fatalf("unexpected errors %+v", verr)
	}
	if req.Limit != 25 {
		t.Fatalf("default not applied: %d", req.Limit)
	}
}

func TestReadAndValidateRequestReportsQueryNames(t *testing.T) {
	_, verr := bind("/?limit=500")
	if len(verr) != 2 {
		t.Fatalf("expected two errors, got %+v", verr)
	}
	if verr[0].Field != "symbol" || verr[0].Code != "ERR_REQUIRED" || verr[0].Message != "symbol is required" {
		t.Fatalf("unexpected first error %+v", verr[0])
	}
	if verr[1].Field != "limit" || verr[1].Code != "ERR_LTE" || verr[1].Params["max"] != "100" {
		t.Fatalf("unexpected second error %+v", verr[1])
	}
}

func TestReadAndValidateRequestBindError(t *testing.T) {
	_, verr := bind("/?symbol=BTC&limit=many")
	if len(verr) != 1 || verr[0].Code != "ERR_BIND" {
		t.Fatalf("expected bind error, got %+v", verr)
	}
}
