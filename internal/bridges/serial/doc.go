// Package serial bridges one serial device to an MQTT broker.
//
// Four topics are involved:
//
//   - transmit: payloads are written verbatim to the device
//   - receive_control: a decimal byte count n requests a read of up to n bytes
//   - receive: the bytes read in answer to a receive_control request
//   - availability: "online" while the session is up, "offline" otherwise
//     (published on clean exit, delivered by the broker as the last will
//     on an ungraceful one)
//
// # Architecture
//
//	               ┌──────────── Bridge (single control loop) ────────────┐
//	broker ──────► │ Consume() ─► EventMessage ──────► Router ─► Serial   │
//	               │           └► EventConnectionLost ► Session.Reconnect │
//	               └──────────────────────────────────────────────────────┘
//
// The Session owns the broker connection lifecycle: connect with a last
// will, subscribe, announce "online", detect loss, reconnect with a fixed
// interval and a bounded number of attempts, and announce "offline" on
// close. The Router dispatches each inbound message by topic. Every
// per-message failure is logged and dropped; only reconnect exhaustion
// ends the loop with an error.
//
// # Thread Safety
//
// Bridge.Run must be driven from one goroutine. Bridge.Shutdown may be
// called from any goroutine, any number of times.
package serial
