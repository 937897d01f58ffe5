// Package config handles loading and validating serial bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The broker password should be set via SERIALBRIDGE_BROKER_PASSWORD
//   - The config file should have restricted permissions (0600)
//   - BrokerConfig redacts the password in String() and JSON output
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("/etc/serialbridge/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Topics.Transmit)
//
// Example file:
//
//	broker:
//	  address: "tcp://localhost:1883"
//	  client_id: "gateway-01"
//	topics:
//	  transmit: "gateway/serial/tx"
//	  receive: "gateway/serial/rx"
//	  receive_control: "gateway/serial/rx/control"
//	  availability: "gateway/serial/availability"
//	serial:
//	  device: "/dev/ttyUSB0"
//	  baud: 115200
//	  timeout: "500ms"
package config
