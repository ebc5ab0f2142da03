package publisher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jgoulah/waterscraper/internal/config"
	"github.com/jgoulah/waterscraper/pkg/models"
)

// Publisher pushes water usage sensor state to Home Assistant, either
// through its HTTP states API, over MQTT, or both.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	haConfig    config.HAConfig
	httpClient  *http.Client
}

// New creates a new publisher
func New(mqttCfg config.MQTTConfig, haCfg config.HAConfig) (*Publisher, error) {
	if haCfg.Enabled {
		if haCfg.URL == "" {
			return nil, fmt.Errorf("Home Assistant URL is required when enabled")
		}
		if haCfg.Token == "" {
			return nil, fmt.Errorf("Home Assistant token is required when enabled")
		}
		if haCfg.EntityID == "" {
			return nil, fmt.Errorf("Home Assistant entity_id is required when enabled")
		}
	}

	var client mqtt.Client
	var topicPrefix string

	if mqttCfg.Enabled {
		if mqttCfg.Broker == "" {
			return nil, fmt.Errorf("MQTT broker address is required when enabled")
		}

		topicPrefix = mqttCfg.TopicPrefix
		if topicPrefix == "" {
			topicPrefix = "water_meter"
		}

		opts := mqtt.NewClientOptions()
		opts.AddBroker(fmt.Sprintf("tcp://%s", mqttCfg.Broker))
		opts.SetClientID("waterscraper")
		opts.SetAutoReconnect(true)
		opts.SetConnectRetry(true)
		opts.SetConnectTimeout(10 * time.Second)

		if mqttCfg.Username != "" {
			opts.SetUsername(mqttCfg.Username)
		}
		if mqttCfg.Password != "" {
			opts.SetPassword(mqttCfg.Password)
		}

		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
		}
	}

	return &Publisher{
		client:      client,
		topicPrefix: topicPrefix,
		haConfig:    haCfg,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// SensorState is the contract the home-automation sink consumes: the
// cumulative total becomes the sensor state (a total_increasing water
// meter), the latest record rides along as attributes.
type SensorState struct {
	CumulativeGallons float64
	Latest            models.UsageRecord
	RecordCount       int
}

// haStatePayload matches Home Assistant's POST /api/states/<entity_id> body
type haStatePayload struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

func (s SensorState) attributes() map[string]any {
	return map[string]any{
		"unit_of_measurement": "gal",
		"device_class":        "water",
		"state_class":         "total_increasing",
		"last_updated_period": s.Latest.Period(),
		"latest_hourly_usage": s.Latest.Gallons,
		"temperature_f":       s.Latest.TemperatureF,
		"precipitation_in":    s.Latest.PrecipitationIn,
		"humidity_percent":    s.Latest.HumidityPercent,
		"record_count":        s.RecordCount,
	}
}

// Publish sends the sensor state to every configured destination.
func (p *Publisher) Publish(state SensorState) error {
	if !p.haConfig.Enabled && p.client == nil {
		return fmt.Errorf("no publishing destination is enabled in config")
	}

	if p.haConfig.Enabled {
		if err := p.publishHTTP(state); err != nil {
			return err
		}
	}
	if p.client != nil {
		if err := p.publishMQTT(state); err != nil {
			return err
		}
	}
	return nil
}

// publishHTTP updates the sensor entity through Home Assistant's states API
func (p *Publisher) publishHTTP(state SensorState) error {
	apiURL := fmt.Sprintf("%s/api/states/%s", p.haConfig.URL, p.haConfig.EntityID)

	payload := haStatePayload{
		State:      fmt.Sprintf("%.1f", state.CumulativeGallons),
		Attributes: state.attributes(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequest("POST", apiURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+p.haConfig.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	// 200 on update, 201 on entity creation
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP error: status %d, response: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// publishMQTT publishes the state payload as JSON to <prefix>/state
func (p *Publisher) publishMQTT(state SensorState) error {
	payload := map[string]any{
		"state":      state.CumulativeGallons,
		"attributes": state.attributes(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding MQTT payload: %w", err)
	}

	topic := p.topicPrefix + "/state"
	if token := p.client.Publish(topic, 0, true, body); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
