package api

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// reorderRequestMetrics collects per-request timings for the reorder route,
// the hottest write path during an active retro.
type reorderRequestMetrics struct {
	logger        *log.Logger
	start         time.Time
	authDuration  time.Duration
	applyDuration time.Duration
	crossColumn   bool
	errorStage    string
}

func newReorderRequestMetrics(logger *log.Logger) *reorderRequestMetrics {
	return &reorderRequestMetrics{
		logger: logger,
		start:  time.Now(),
	}
}

func (m *reorderRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *reorderRequestMetrics) ObserveApply(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.applyDuration = duration
}

func (m *reorderRequestMetrics) SetCrossColumn(cross bool) {
	m.crossColumn = cross
}

func (m *reorderRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *reorderRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":        "/api/boards/:id/reorder",
		"status":       status,
		"total_ms":     durationToMillis(time.Since(m.start)),
		"cross_column": m.crossColumn,
	}

	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.applyDuration > 0 {
		fields["apply_ms"] = durationToMillis(m.applyDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("reorder.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
