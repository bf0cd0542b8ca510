package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_RegistersCountersAndServesHandler(t *testing.T) {
	m := New("auctionhouse_test")
	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.BidsAccepted)
	assert.NotNil(t, m.AntiSnipeTriggered)
	assert.NotNil(t, m.WSConnectionsActive)
	assert.NotNil(t, m.QueueMessagesAcked)

	m.BidsAccepted.WithLabelValues("auction-1").Inc()
	m.AntiSnipeTriggered.Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "auctionhouse_test_anti_snipe_triggered_total")
}
