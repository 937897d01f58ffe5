package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/serial-mqtt-bridge/internal/infrastructure/config"
	"github.com/nerrad567/serial-mqtt-bridge/internal/transport"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for a connect handshake.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho MQTT options from the broker config and
// a connect request.
//
// This configures:
//   - Broker URL and client ID
//   - Authentication credentials (if provided)
//   - Clean session flag and retry hint window
//   - Last Will and Testament (if requested)
//   - TLS for ssl://, tls:// and mqtts:// addresses
//
// Paho's own auto-reconnect is always disabled. Reconnection is driven by
// the caller through Reconnect so that the retry bound is enforced in one
// place.
func buildClientOptions(cfg config.BrokerConfig, req transport.ConnectOptions) (*pahomqtt.ClientOptions, error) {
	u, err := url.Parse(cfg.Address)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid broker address %q", ErrConnectionFailed, cfg.Address)
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Address)
	opts.SetClientID(cfg.ClientID)

	if req.Username != "" {
		opts.SetUsername(req.Username)
		opts.SetPassword(req.Password)
	}

	opts.SetCleanSession(req.CleanSession)

	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	if req.RetryMinInterval > 0 {
		opts.SetConnectRetryInterval(req.RetryMinInterval)
	}
	if req.RetryMaxInterval > 0 {
		opts.SetMaxReconnectInterval(req.RetryMaxInterval)
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(connectTimeout)

	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	// Messages must reach the consumer in broker delivery order.
	opts.SetOrderMatters(true)

	if req.Will != nil {
		if req.Will.Topic == "" {
			return nil, fmt.Errorf("%w: will topic", ErrInvalidTopic)
		}
		if req.Will.QoS > maxQoS {
			return nil, fmt.Errorf("%w: will", ErrInvalidQoS)
		}
		opts.SetBinaryWill(req.Will.Topic, req.Will.Payload, req.Will.QoS, req.Will.Retained)
	}

	if isTLSScheme(u.Scheme) {
		opts.SetTLSConfig(&tls.Config{
			MinVersion:         tlsMinVersion,
			InsecureSkipVerify: cfg.TLSInsecureSkipVerify, //nolint:gosec // Opt-in for development brokers
		})
	}

	return opts, nil
}

// isTLSScheme reports whether a broker URL scheme implies TLS.
func isTLSScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "ssl", "tls", "mqtts", "tcps", "wss":
		return true
	default:
		return false
	}
}
