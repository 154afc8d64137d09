package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(uploads.WithLabelValues("ok"))
	IncUpload("ok")
	assert.Equal(t, before+1, testutil.ToFloat64(uploads.WithLabelValues("ok")))

	before = testutil.ToFloat64(cleanupDeleted)
	AddCleanupDeleted(3)
	assert.Equal(t, before+3, testutil.ToFloat64(cleanupDeleted))
}

func TestHandlerServesRegisteredCollectors(t *testing.T) {
	Init()
	IncCheckout("placed")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `aiep_checkout_submissions_total{result="placed"}`)
}
