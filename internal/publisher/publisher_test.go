package publisher

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/waterscraper/internal/config"
	"github.com/jgoulah/waterscraper/pkg/models"
)

func sampleState() SensorState {
	start := time.Date(2025, time.June, 19, 4, 0, 0, 0, time.UTC)
	return SensorState{
		CumulativeGallons: 1234.5,
		Latest: models.UsageRecord{
			PeriodStart:     start,
			PeriodEnd:       start.Add(time.Hour),
			Gallons:         73.0,
			TemperatureF:    61,
			HumidityPercent: 99,
		},
		RecordCount: 24,
	}
}

func TestPublishHomeAssistant(t *testing.T) {
	var gotBody atomic.Pointer[[]byte]

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/states/sensor.water_usage", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		gotBody.Store(&body)

		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	pub, err := New(config.MQTTConfig{}, config.HAConfig{
		Enabled:  true,
		URL:      srv.URL,
		Token:    "test-token",
		EntityID: "sensor.water_usage",
	})
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.Publish(sampleState()))

	body := gotBody.Load()
	require.NotNil(t, body)

	var payload struct {
		State      string         `json:"state"`
		Attributes map[string]any `json:"attributes"`
	}
	require.NoError(t, json.Unmarshal(*body, &payload))

	require.Equal(t, "1234.5", payload.State, "state is the cumulative total")
	require.Equal(t, "gal", payload.Attributes["unit_of_measurement"])
	require.Equal(t, "water", payload.Attributes["device_class"])
	require.Equal(t, "total_increasing", payload.Attributes["state_class"])
	require.Equal(t, "Thu, Jun 19, 2025 4:00 AM - 5:00 AM", payload.Attributes["last_updated_period"])
	require.InDelta(t, 73.0, payload.Attributes["latest_hourly_usage"], 0.001)
	require.InDelta(t, 24, payload.Attributes["record_count"], 0.001)
}

func TestPublishHomeAssistantRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "401: Unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	pub, err := New(config.MQTTConfig{}, config.HAConfig{
		Enabled:  true,
		URL:      srv.URL,
		Token:    "bad-token",
		EntityID: "sensor.water_usage",
	})
	require.NoError(t, err)
	defer pub.Close()

	err = pub.Publish(sampleState())
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

func TestNewRejectsIncompleteHAConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.HAConfig
	}{
		{"missing url", config.HAConfig{Enabled: true, Token: "t", EntityID: "sensor.w"}},
		{"missing token", config.HAConfig{Enabled: true, URL: "http://ha.local", EntityID: "sensor.w"}},
		{"missing entity", config.HAConfig{Enabled: true, URL: "http://ha.local", Token: "t"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(config.MQTTConfig{}, tc.cfg)
			require.Error(t, err)
		})
	}
}

func TestPublishWithNothingEnabled(t *testing.T) {
	pub, err := New(config.MQTTConfig{}, config.HAConfig{})
	require.NoError(t, err)

	err = pub.Publish(sampleState())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no publishing destination")
}
