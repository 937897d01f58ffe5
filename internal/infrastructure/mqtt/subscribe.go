package mqtt

import (
	"context"
	"fmt"
)

// Subscribe registers interest in a topic.
//
// Messages on the topic are delivered on the Consume stream in the order
// the broker sends them. Subscribing again to the same topic (for example
// after a reconnect) replaces the previous subscription.
//
// Parameters:
//   - topic: The topic filter to subscribe to
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Subscribe(topic string, qos byte) error {
	// Validate inputs
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	// Check connection state
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.clientMu.RLock()
	client := c.client
	c.clientMu.RUnlock()

	token := client.Subscribe(topic, qos, c.handleMessage)
	if err := waitToken(context.Background(), token, defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}

	return nil
}
