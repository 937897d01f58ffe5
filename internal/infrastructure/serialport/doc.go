// Package serialport provides access to the bridged serial device.
//
// Port wraps go.bug.st/serial and implements transport.Serial. Each read
// is bounded by the configured timeout: a read that times out with no data
// returns zero bytes and no error, which the bridge treats as a valid
// short read.
//
// # Circuit Breaker
//
// When serial.breaker.failure_threshold is non-zero, device I/O runs
// through a sony/gobreaker circuit breaker. After the threshold of
// consecutive failures the breaker opens and further requests fail fast
// with ErrCircuitOpen until the reset timeout elapses and a trial request
// succeeds. Timeouts and short reads are not failures.
//
// # Usage
//
//	port, err := serialport.Open(cfg.Serial)
//	if err != nil {
//	    return err
//	}
//	defer port.Close()
//
//	_, err = port.Write([]byte{0x01, 0x02})
package serialport
