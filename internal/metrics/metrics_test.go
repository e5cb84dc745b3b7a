package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsSizes(t *testing.T) {
	handler := Middleware("test-svc")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sized", strings.NewReader("payload"))
	handler.ServeHTTP(rec, req)

	if got := testutil.CollectAndCount(httpRequestSize); got == 0 {
		t.Fatalf("expected request size observations, got %d series", got)
	}
	if got := testutil.CollectAndCount(httpResponseSize); got == 0 {
		t.Fatalf("expected response size observations, got %d series", got)
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	handler := Middleware("test-svc")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("recorder should pass the status through, got %d", rec.Code)
	}
	if got := testutil.CollectAndCount(httpRequests); got == 0 {
		t.Fatalf("expected request counter series, got %d", got)
	}
}
