package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementSession = "bridge_session"
	measurementTraffic = "bridge_traffic"
)

// WriteBridgeEvent records a session lifecycle event.
//
// Example point:
//
//	bridge_session,client_id=gw-1,event=reconnect_attempt attempt=3i
func (c *Client) WriteBridgeEvent(clientID, event string, attempt int) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(bridgeEventPoint(clientID, event, attempt, time.Now()))
}

// WriteTraffic records bytes moved between the broker and the device.
//
// Example point:
//
//	bridge_traffic,client_id=gw-1,direction=rx bytes=2i,messages=1i
func (c *Client) WriteTraffic(clientID, direction string, bytes int) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(trafficPoint(clientID, direction, bytes, time.Now()))
}

func bridgeEventPoint(clientID, event string, attempt int, at time.Time) *write.Point {
	return write.NewPoint(
		measurementSession,
		map[string]string{
			"client_id": clientID,
			"event":     event,
		},
		map[string]interface{}{
			"attempt": attempt,
		},
		at,
	)
}

func trafficPoint(clientID, direction string, bytes int, at time.Time) *write.Point {
	return write.NewPoint(
		measurementTraffic,
		map[string]string{
			"client_id": clientID,
			"direction": direction,
		},
		map[string]interface{}{
			"bytes":    bytes,
			"messages": 1,
		},
		at,
	)
}
