// Package mqtt provides MQTT client connectivity for the serial bridge.
//
// This package manages:
//   - Connection to the broker with a Last Will and Testament
//   - Message publishing with QoS guarantees
//   - Topic subscriptions
//   - A single ordered event stream of inbound messages and connection loss
//
// # Architecture
//
// Client implements transport.Broker on top of paho.mqtt.golang. Paho
// invokes callbacks on its own goroutines; the client funnels them into
// one channel so the bridge can process everything on a single loop:
//
//	paho callbacks ──► eventStream ──► Consume() ──► bridge control loop
//
// Paho's built-in auto-reconnect is disabled. When the connection drops,
// an EventConnectionLost is emitted and the bridge decides whether and
// when to call Reconnect.
//
// # Security Considerations
//
//   - Use an ssl:// or mqtts:// address for TLS (minimum TLS 1.2)
//   - Credentials are validated against the broker ACL
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client := mqtt.NewClient(cfg.Broker)
//	err := client.Connect(ctx, transport.ConnectOptions{
//	    CleanSession: true,
//	    Will: &transport.Will{Topic: "gw/availability", Payload: []byte("offline"), QoS: 1},
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Disconnect()
//
//	_ = client.Subscribe("gw/serial/tx", 2)
//	for ev := range client.Consume() {
//	    // handle ev
//	}
package mqtt
