// Package transport defines the capabilities the serial bridge needs from
// its two transports: the MQTT broker and the serial device.
//
// The package holds contracts only. Concrete implementations live in
// internal/infrastructure/mqtt and internal/infrastructure/serialport, and
// the bridge runtime in internal/bridges/serial consumes them exclusively
// through these interfaces so it can be tested against in-memory fakes.
//
// # Event Stream
//
// A Broker delivers everything that happens on the broker side through a
// single ordered stream of Events:
//
//   - EventMessage: an inbound publish on a subscribed topic
//   - EventConnectionLost: the broker connection dropped unexpectedly
//
// The stream channel is closed only when StopConsuming is called, so a
// closed stream always means "shutdown requested" and never "connection
// lost". This removes the ambiguity of inferring disconnection from an
// empty read.
package transport
