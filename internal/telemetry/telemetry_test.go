package telemetry

import (
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescueradar/rescueradar/internal/config"
	"github.com/rescueradar/rescueradar/internal/logging"
)

func TestNewDisabledOutsideProduction(t *testing.T) {
	s, err := New(config.TelemetryConfig{DSN: "https://key@sentry.example.org/1"}, "development", logging.Discard())
	require.NoError(t, err)
	assert.False(t, s.Enabled())
}

func TestNewDisabledWithoutDSN(t *testing.T) {
	s, err := New(config.TelemetryConfig{}, "production", logging.Discard())
	require.NoError(t, err)
	assert.False(t, s.Enabled())
}

func TestDisabledSinkIsInert(t *testing.T) {
	s, err := New(config.TelemetryConfig{}, "testing", logging.Discard())
	require.NoError(t, err)

	// None of these may panic or block on a disabled sink.
	s.Breadcrumb("scrape", "started", map[string]any{"org": "x"})
	s.CaptureError(assert.AnError, map[string]string{"org": "x"})
	s.AlertZeroItems("x", 42)
	s.AlertPartialFailure("x", 3, 100)
	s.AlertEnrichmentFailureRate(0.5, 0.25)
	s.Flush(time.Millisecond)
}

func TestScrubMapRedactsSensitiveKeys(t *testing.T) {
	in := map[string]any{
		"org":          "pets-in-turkey",
		"password":     "hunter2",
		"api_key":      "sk-123",
		"DATABASE_URL": "postgres://u:p@host/db",
		"Auth-Header":  "Bearer xyz",
		"nested": map[string]any{
			"sentry_dsn": "https://key@host/1",
			"count":      5,
		},
	}

	out := ScrubMap(in)
	assert.Equal(t, "pets-in-turkey", out["org"])
	assert.Equal(t, "[REDACTED]", out["password"])
	assert.Equal(t, "[REDACTED]", out["api_key"])
	assert.Equal(t, "[REDACTED]", out["Auth-Header"])
	assert.Equal(t, "postgres://u:p@host/db", out["DATABASE_URL"])

	nested := out["nested"].(map[string]any)
	assert.Equal(t, "[REDACTED]", nested["sentry_dsn"])
	assert.Equal(t, 5, nested["count"])

	// Input untouched.
	assert.Equal(t, "hunter2", in["password"])
}

func TestScrubMapStringValues(t *testing.T) {
	in := map[string]string{"token": "abc", "host": "example.org"}
	out := ScrubMap(in)
	assert.Equal(t, "[REDACTED]", out["token"])
	assert.Equal(t, "example.org", out["host"])
}

func TestScrubEvent(t *testing.T) {
	event := &sentry.Event{
		Request: &sentry.Request{
			URL:     "https://rescue.example.org/dogs",
			Headers: map[string]string{"Authorization": "Bearer xyz"},
			Cookies: "session=abc",
		},
		Extra: map[string]any{"db_password": "p", "org": "x"},
		Tags:  map[string]string{"api_key": "sk", "org": "x"},
	}

	out := scrubEvent(event, nil)
	require.NotNil(t, out)
	assert.Nil(t, out.Request.Headers)
	assert.Empty(t, out.Request.Cookies)
	assert.Equal(t, "[REDACTED]", out.Extra["db_password"])
	assert.Equal(t, "x", out.Extra["org"])
	assert.Equal(t, "[REDACTED]", out.Tags["api_key"])
	assert.Equal(t, "x", out.Tags["org"])

	assert.Nil(t, scrubEvent(nil, nil))
}
