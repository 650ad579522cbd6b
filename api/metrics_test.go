package api

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alertRecorder struct {
	mu     sync.Mutex
	alerts []AlertEvent
}

func (r *alertRecorder) record(e AlertEvent) {
	r.mu.Lock()
	r.alerts = append(r.alerts, e)
	r.mu.Unlock()
}

func (r *alertRecorder) all() []AlertEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AlertEvent(nil), r.alerts...)
}

func TestLoginFailureSpikeAlert(t *testing.T) {
	rec := &alertRecorder{}
	collector := newMetricsCollector(rec.record)
	collector.loginFailures.threshold = 5

	for i := 0; i < 4; i++ {
		collector.recordEvent(AuditLoginFailure)
	}
	assert.Empty(t, rec.all(), "no alert below threshold")

	collector.recordEvent(AuditLoginFailure)
	alerts := rec.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLoginFailureSpike, alerts[0].Type)
	assert.Equal(t, 5, alerts[0].Count)
	assert.Equal(t, 5, alerts[0].Threshold)
}

func TestTokenRejectSpikeAlert(t *testing.T) {
	rec := &alertRecorder{}
	collector := newMetricsCollector(rec.record)
	collector.tokenRejects.threshold = 3

	collector.recordEvent(AuditTokenRejected)
	collector.recordEvent(AuditLoginSuccess)
	collector.recordEvent(AuditTokenRejected)
	assert.Empty(t, rec.all())

	collector.recordEvent(AuditTokenRejected)
	alerts := rec.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertTokenRejectSpike, alerts[0].Type)
}

func TestMetricsNoAlertWithoutCallback(t *testing.T) {
	collector := newMetricsCollector(nil)
	collector.recordEvent(AuditLoginFailure)
}

func TestMetricsNilCollector(t *testing.T) {
	var collector *metricsCollector
	collector.recordEvent(AuditLoginFailure)
}

func TestMetricsSlidingWindowExpiry(t *testing.T) {
	rec := &alertRecorder{}
	collector := newMetricsCollector(rec.record)
	collector.loginFailures.threshold = 5
	collector.loginFailures.window = 100 * time.Millisecond

	for i := 0; i < 4; i++ {
		collector.recordEvent(AuditLoginFailure)
	}
	time.Sleep(150 * time.Millisecond)

	collector.recordEvent(AuditLoginFailure)
	assert.Empty(t, rec.all(), "old failures should not count after window expiry")
}

func TestMetricsResetAfterAlert(t *testing.T) {
	rec := &alertRecorder{}
	collector := newMetricsCollector(rec.record)
	collector.loginFailures.threshold = 3

	for i := 0; i < 3; i++ {
		collector.recordEvent(AuditLoginFailure)
	}
	require.Len(t, rec.all(), 1, "first alert triggered")

	for i := 0; i < 2; i++ {
		collector.recordEvent(AuditLoginFailure)
	}
	assert.Len(t, rec.all(), 1, "no second alert yet")

	collector.recordEvent(AuditLoginFailure)
	assert.Len(t, rec.all(), 2, "second alert triggered")
}
