package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordAnnouncementSent()
		m.RecordAnnouncement("accepted")
		m.SetPeersKnown(3)
		m.RecordSend(nil, 10, time.Millisecond)
		m.RecordChunk("chat", 10)
		m.SetRelayClients(1)
		m.RecordRelayForward(2)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.RecordAnnouncementSent()
	m.RecordAnnouncementSent()
	m.RecordAnnouncement("accepted")
	m.RecordAnnouncement("self")
	m.SetPeersKnown(2)
	m.RecordSend(nil, 5, time.Millisecond)
	m.RecordSend(errors.New("refused"), 5, time.Millisecond)
	m.RecordChunk("chat", 7)
	m.RecordRelayForward(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnnouncementsSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnnouncementsReceived.WithLabelValues("self")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PeersKnown))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendsTotal.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendsTotal.WithLabelValues(ResultFailed)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.BytesSent))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.BytesInbound))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RelayForwarded))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordAnnouncementSent()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "lanchat_discovery_announcements_sent_total 1"))
}
