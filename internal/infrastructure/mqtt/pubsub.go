package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayload caps a single message at 1MB, in line with typical
// broker limits.
const maxPayload = 1 << 20

// Publish sends a message to a topic and waits for the broker to
// accept it at the given QoS. Retained messages are for state topics
// (device status, system status), never for commands.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayload {
		return fmt.Errorf("%w: payload %d bytes exceeds %d", ErrPublishFailed, len(payload), maxPayload)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return await(c.paho.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// Subscribe registers a handler for a topic pattern. Wildcards work
// as usual: fleetguard/telemetry/+ matches every device, fleetguard/#
// matches the whole tree. The subscription survives reconnects.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Track before the broker call so a reconnect racing this
	// subscribe still replays it.
	c.mu.Lock()
	c.subs[topic] = tracked{qos: qos, handler: handler}
	c.mu.Unlock()

	if err := await(c.paho.Subscribe(topic, qos, c.guard(handler)), ErrSubscribeFailed); err != nil {
		c.mu.Lock()
		delete(c.subs, topic)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Unsubscribe drops a subscription. Messages already in flight may
// still reach the handler.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()

	return await(c.paho.Unsubscribe(topic), ErrUnsubscribeFailed)
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// HasSubscription reports whether the exact topic pattern is tracked.
func (c *Client) HasSubscription(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subs[topic]
	return ok
}

func validate(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > 2 {
		return ErrInvalidQoS
	}
	return nil
}

// await blocks on a paho token, folding timeouts and token errors
// into the given sentinel.
func await(token pahomqtt.Token, sentinel error) error {
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("%w: no broker response within %v", sentinel, opTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
