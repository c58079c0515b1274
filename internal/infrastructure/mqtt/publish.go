package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/deckd/internal/protocol"
)

// maxPayloadSize caps MQTT payloads at 1MB, aligning with typical
// broker limits.
const maxPayloadSize = 1 << 20

// statusEnvelope is the JSON published to the status topic on every
// device state change.
type statusEnvelope struct {
	Daemon    string          `json:"daemon"`
	ClientID  string          `json:"client_id"`
	Device    protocol.Status `json:"device"`
	Timestamp string          `json:"timestamp"`
}

// Publish sends a message to the specified MQTT topic.
//
// QoS 0 is fire and forget, 1 guarantees at-least-once delivery, 2
// guarantees exactly-once at higher overhead. Retained messages are
// stored by the broker and delivered to new subscribers immediately;
// use them for state topics only.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishStatus publishes the current device status to the configured
// status topic as a retained message.
//
// Failures are logged rather than returned; status publishing is
// best-effort and must never hold up device event handling.
func (c *Client) PublishStatus(status protocol.Status) {
	env := statusEnvelope{
		Daemon:    "online",
		ClientID:  c.cfg.Broker.ClientID,
		Device:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(env)
	if err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Error("mqtt status marshal failed", "error", err)
		}
		return
	}

	if err := c.Publish(c.cfg.StatusTopic, payload, c.cfg.QoS, true); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("mqtt status publish failed", "error", err)
		}
	}
}
