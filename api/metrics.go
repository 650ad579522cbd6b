package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertLoginFailureSpike AlertType = "login_failure_spike"
	AlertTokenRejectSpike  AlertType = "token_reject_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

const (
	defaultLoginFailureWindow    = 1 * time.Minute
	defaultLoginFailureThreshold = 50
	defaultTokenRejectWindow     = 1 * time.Minute
	defaultTokenRejectThreshold  = 100
)

// spikeWindow counts events in a sliding window and fires once per spike.
type spikeWindow struct {
	times     []time.Time
	window    time.Duration
	threshold int
}

func (s *spikeWindow) add(now time.Time) (int, bool) {
	s.times = append(s.times, now)
	s.times = trimWindow(s.times, now, s.window)
	n := len(s.times)
	if n < s.threshold {
		return n, false
	}
	// Reset to avoid repeated alerts within the same spike.
	s.times = s.times[:0]
	return n, true
}

// metricsCollector turns audit events into alerts.
type metricsCollector struct {
	mu            sync.Mutex
	loginFailures spikeWindow
	tokenRejects  spikeWindow
	alertFn       AlertFunc
}

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		loginFailures: spikeWindow{window: defaultLoginFailureWindow, threshold: defaultLoginFailureThreshold},
		tokenRejects:  spikeWindow{window: defaultTokenRejectWindow, threshold: defaultTokenRejectThreshold},
		alertFn:       alertFn,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	var (
		w   *spikeWindow
		typ AlertType
		msg string
	)
	switch event {
	case AuditLoginFailure:
		w, typ, msg = &m.loginFailures, AlertLoginFailureSpike, "login failure rate exceeds threshold"
	case AuditTokenRejected:
		w, typ, msg = &m.tokenRejects, AlertTokenRejectSpike, "rejected token rate exceeds threshold"
	default:
		return
	}

	now := time.Now()
	m.mu.Lock()
	count, fire := w.add(now)
	threshold := w.threshold
	m.mu.Unlock()
	if fire {
		m.alertFn(AlertEvent{
			Type:      typ,
			Message:   msg,
			Count:     count,
			Threshold: threshold,
			Timestamp: now,
		})
	}
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
