// Package telemetry adapts the error-tracking service. The sink is active
// only in production with a DSN configured; everywhere else every method is a
// no-op, so callers never branch on environment.
package telemetry

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/rescueradar/rescueradar/internal/config"
)

// sensitiveKey matches map keys whose values must never leave the process.
var sensitiveKey = regexp.MustCompile(`(?i)(password|token|secret|key|auth|dsn|api_key)`)

const redacted = "[REDACTED]"

// Sink is the process-wide telemetry adapter. It implements session.Alerter.
type Sink struct {
	enabled bool
	logger  *slog.Logger
}

// New initializes the sink. Outside production, or without a DSN, the
// returned sink is inert and Init is never called.
func New(cfg config.TelemetryConfig, environment string, logger *slog.Logger) (*Sink, error) {
	s := &Sink{logger: logger.With("component", "telemetry")}
	if environment != "production" || cfg.DSN == "" {
		s.logger.Debug("telemetry disabled",
			"environment", environment, "dsn_set", cfg.DSN != "")
		return s, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      environment,
		Release:          cfg.Release,
		SampleRate:       cfg.SampleRate,
		AttachStacktrace: true,
		BeforeSend:       scrubEvent,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	s.enabled = true
	return s, nil
}

// Enabled reports whether events actually leave the process.
func (s *Sink) Enabled() bool { return s.enabled }

// Breadcrumb records a trail entry attached to the next event.
func (s *Sink) Breadcrumb(category, message string, data map[string]any) {
	if !s.enabled {
		return
	}
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Data:      ScrubMap(data),
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	})
}

// CaptureError reports an error with tags.
func (s *Sink) CaptureError(err error, tags map[string]string) {
	if !s.enabled || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// AlertZeroItems fires the critical zero-items alert: a historically
// productive source returned nothing.
func (s *Sink) AlertZeroItems(configID string, historicalAvg float64) {
	s.logger.Error("ALERT zero items", "org", configID, "historical_avg", historicalAvg)
	s.message(sentry.LevelFatal,
		fmt.Sprintf("scrape of %s found 0 items (historical average %.1f)", configID, historicalAvg),
		map[string]string{"org": configID, "alert": "zero_items"})
}

// AlertPartialFailure fires the partial-failure alert, severity scaled by how
// far below expectation the scrape landed.
func (s *Sink) AlertPartialFailure(configID string, observed int, expected float64) {
	ratio := 1.0
	if expected > 0 {
		ratio = float64(observed) / expected
	}
	level := sentry.LevelWarning
	switch {
	case ratio < 0.1:
		level = sentry.LevelFatal
	case ratio < 0.25:
		level = sentry.LevelError
	}
	s.logger.Warn("ALERT partial failure",
		"org", configID, "observed", observed, "expected", expected, "ratio", ratio)
	s.message(level,
		fmt.Sprintf("scrape of %s found %d items, expected ~%.0f", configID, observed, expected),
		map[string]string{"org": configID, "alert": "partial_failure"})
}

// AlertEnrichmentFailureRate fires when the enrichment batch fails above the
// configured threshold.
func (s *Sink) AlertEnrichmentFailureRate(rate, threshold float64) {
	s.logger.Error("ALERT enrichment failure rate",
		"rate", rate, "threshold", threshold)
	s.message(sentry.LevelError,
		fmt.Sprintf("enrichment failure rate %.0f%% exceeds threshold %.0f%%", rate*100, threshold*100),
		map[string]string{"alert": "enrichment_failure_rate"})
}

func (s *Sink) message(level sentry.Level, msg string, tags map[string]string) {
	if !s.enabled {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureMessage(msg)
	})
}

// Flush drains queued events; call before process exit.
func (s *Sink) Flush(timeout time.Duration) {
	if !s.enabled {
		return
	}
	sentry.Flush(timeout)
}

// scrubEvent is the BeforeSend hook: strips request credentials and redacts
// sensitive keys anywhere in the event payload.
func scrubEvent(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if event == nil {
		return nil
	}
	if event.Request != nil {
		event.Request.Headers = nil
		event.Request.Cookies = ""
		event.Request.QueryString = ""
	}
	event.Extra = ScrubMap(event.Extra)
	for k, ctx := range event.Contexts {
		event.Contexts[k] = ScrubMap(ctx)
	}
	for k := range event.Tags {
		if sensitiveKey.MatchString(k) {
			event.Tags[k] = redacted
		}
	}
	return event
}

// ScrubMap returns a copy with values under sensitive keys redacted, at any
// nesting depth.
func ScrubMap[M ~map[string]V, V any](m M) M {
	if m == nil {
		return nil
	}
	out := make(M, len(m))
	for k, v := range m {
		if sensitiveKey.MatchString(k) {
			var r V
			if typed, ok := any(redacted).(V); ok {
				r = typed
			}
			out[k] = r
			continue
		}
		out[k] = scrubValue(v)
	}
	return out
}

func scrubValue[V any](v V) V {
	if nested, ok := any(v).(map[string]any); ok {
		if scrubbed, ok2 := any(ScrubMap(nested)).(V); ok2 {
			return scrubbed
		}
	}
	return v
}
