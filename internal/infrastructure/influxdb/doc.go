// Package influxdb writes serial bridge telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Two measurements
// are written:
//
//   - bridge_session: one point per session event (connected,
//     connection_lost, reconnect_attempt, reconnected, reconnect_exhausted,
//     shutdown), tagged client_id and event
//   - bridge_traffic: one point per forwarded transmit or receive, tagged
//     client_id and direction (tx or rx)
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTraffic("gw-1", "tx", 12)
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval). Write
// failures are delivered to the SetOnError callback, never returned.
package influxdb
