package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondError(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, http.StatusNotFound, "document not found")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.JSONEq(t, `{"error":"document not found"}`, rr.Body.String())
}

func TestRespondStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondStatus(rr, http.StatusOK, "success", "Chat cleared")
	require.JSONEq(t, `{"status":"success","message":"Chat cleared"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	RespondStatus(rr, http.StatusBadGateway, "error", "upstream down")
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.JSONEq(t, `{"status":"error","error":"upstream down"}`, rr.Body.String())
}
