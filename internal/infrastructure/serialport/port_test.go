package serialport

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.bug.st/serial"

	"github.com/nerrad567/serial-mqtt-bridge/internal/infrastructure/config"
)

// fakeDevice is an in-memory device for testing.
type fakeDevice struct {
	mu       sync.Mutex
	written  bytes.Buffer
	rx       []byte
	maxWrite int // bytes accepted per Write call; 0 means all
	readErr  error
	writeErr error
	reads    int
	closed   int
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	n := len(p)
	if d.maxWrite > 0 && n > d.maxWrite {
		n = d.maxWrite
	}
	d.written.Write(p[:n])
	return n, nil
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	if d.readErr != nil {
		return 0, d.readErr
	}
	n := copy(p, d.rx)
	d.rx = d.rx[n:]
	return n, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

type captureLogger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (l *captureLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *captureLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func TestWrite_PassesBytesUnchanged(t *testing.T) {
	dev := &fakeDevice{}
	p := newPort("/dev/test", dev, config.BreakerConfig{})

	in := []byte{0x00, 0x01, 0xFE, 0xFF}
	n, err := p.Write(in)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != len(in) {
		t.Errorf("Write() n = %d, want %d", n, len(in))
	}
	if !bytes.Equal(dev.written.Bytes(), in) {
		t.Errorf("device received %v, want %v", dev.written.Bytes(), in)
	}
}

func TestWrite_CompletesPartialWrites(t *testing.T) {
	dev := &fakeDevice{maxWrite: 3}
	p := newPort("/dev/test", dev, config.BreakerConfig{})

	in := []byte("0123456789")
	n, err := p.Write(in)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != len(in) || dev.written.String() != "0123456789" {
		t.Errorf("Write() n = %d, device = %q", n, dev.written.String())
	}
}

func TestRead_ShortReadIsNotAnError(t *testing.T) {
	dev := &fakeDevice{rx: []byte{0x01, 0x02}}
	p := newPort("/dev/test", dev, config.BreakerConfig{})

	buf := make([]byte, 8)
	n, err := p.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != 2 || !bytes.Equal(buf[:n], []byte{0x01, 0x02}) {
		t.Errorf("Read() = %v, want [1 2]", buf[:n])
	}

	// Timed out with nothing available.
	n, err = p.Read(buf)
	if err != nil || n != 0 {
		t.Errorf("Read() after drain = %d, %v; want 0, nil", n, err)
	}
}

func TestRead_ZeroLengthSkipsDevice(t *testing.T) {
	dev := &fakeDevice{rx: []byte{0x01}}
	p := newPort("/dev/test", dev, config.BreakerConfig{})

	n, err := p.Read(nil)
	if err != nil || n != 0 {
		t.Errorf("Read(nil) = %d, %v; want 0, nil", n, err)
	}
	if dev.reads != 0 {
		t.Errorf("device reads = %d, want 0", dev.reads)
	}
}

func TestClose_Idempotent(t *testing.T) {
	dev := &fakeDevice{}
	p := newPort("/dev/test", dev, config.BreakerConfig{})

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if dev.closed != 1 {
		t.Errorf("device closed %d times, want 1", dev.closed)
	}

	if _, err := p.Write([]byte("x")); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Write() after Close error = %v, want ErrNotOpen", err)
	}
	if _, err := p.Read(make([]byte, 1)); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Read() after Close error = %v, want ErrNotOpen", err)
	}
	if _, err := p.Read(nil); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Read(nil) after Close error = %v, want ErrNotOpen", err)
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	dev := &fakeDevice{writeErr: errors.New("input/output error")}
	p := newPort("/dev/test", dev, config.BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})
	logger := &captureLogger{}
	p.SetLogger(logger)

	if p.BreakerState() != "closed" {
		t.Fatalf("BreakerState() = %q, want closed", p.BreakerState())
	}

	for i := 0; i < 2; i++ {
		if _, err := p.Write([]byte("x")); err == nil || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("Write() #%d error = %v, want device error", i, err)
		}
	}

	if _, err := p.Write([]byte("x")); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Write() error = %v, want ErrCircuitOpen", err)
	}
	if _, err := p.Read(make([]byte, 1)); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Read() error = %v, want ErrCircuitOpen", err)
	}
	if p.BreakerState() != "open" {
		t.Errorf("BreakerState() = %q, want open", p.BreakerState())
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warns) != 1 {
		t.Errorf("state change warnings = %v, want one", logger.warns)
	}
	if len(logger.errors) != 2 {
		t.Errorf("disconnect errors = %v, want two", logger.errors)
	}
}

func TestBreaker_TimeoutsDoNotTrip(t *testing.T) {
	dev := &fakeDevice{}
	p := newPort("/dev/test", dev, config.BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})

	buf := make([]byte, 4)
	for i := 0; i < 5; i++ {
		if _, err := p.Read(buf); err != nil {
			t.Fatalf("Read() #%d error = %v", i, err)
		}
	}
	if p.BreakerState() != "closed" {
		t.Errorf("BreakerState() = %q, want closed", p.BreakerState())
	}
}

func TestBreaker_Disabled(t *testing.T) {
	dev := &fakeDevice{readErr: errors.New("boom")}
	p := newPort("/dev/test", dev, config.BreakerConfig{})

	for i := 0; i < 10; i++ {
		if _, err := p.Read(make([]byte, 1)); errors.Is(err, ErrCircuitOpen) {
			t.Fatal("breaker tripped while disabled")
		}
	}
	if p.BreakerState() != "disabled" {
		t.Errorf("BreakerState() = %q, want disabled", p.BreakerState())
	}
}

func TestBuildMode(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.SerialConfig
		want    serial.Mode
		wantErr bool
	}{
		{
			name: "defaults",
			cfg:  config.SerialConfig{Baud: 9600},
			want: serial.Mode{BaudRate: 9600, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit},
		},
		{
			name: "7E2",
			cfg:  config.SerialConfig{Baud: 115200, DataBits: 7, Parity: "even", StopBits: 2},
			want: serial.Mode{BaudRate: 115200, DataBits: 7, Parity: serial.EvenParity, StopBits: serial.TwoStopBits},
		},
		{
			name: "odd mixed case",
			cfg:  config.SerialConfig{Baud: 19200, Parity: "Odd"},
			want: serial.Mode{BaudRate: 19200, DataBits: 8, Parity: serial.OddParity, StopBits: serial.OneStopBit},
		},
		{name: "bad data bits", cfg: config.SerialConfig{Baud: 9600, DataBits: 9}, wantErr: true},
		{name: "bad parity", cfg: config.SerialConfig{Baud: 9600, Parity: "sometimes"}, wantErr: true},
		{name: "bad stop bits", cfg: config.SerialConfig{Baud: 9600, StopBits: 3}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := buildMode(tt.cfg)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMode) {
					t.Errorf("buildMode() error = %v, want ErrInvalidMode", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("buildMode() error = %v", err)
			}
			if mode.BaudRate != tt.want.BaudRate || mode.DataBits != tt.want.DataBits ||
				mode.Parity != tt.want.Parity || mode.StopBits != tt.want.StopBits {
				t.Errorf("buildMode() = %+v, want %+v", *mode, tt.want)
			}
		})
	}
}

func TestOpen_MissingDevice(t *testing.T) {
	_, err := Open(config.SerialConfig{
		Device:  "/dev/serialbridge-does-not-exist",
		Baud:    9600,
		Timeout: time.Second,
	})
	if !errors.Is(err, ErrOpenFailed) {
		t.Errorf("Open() error = %v, want ErrOpenFailed", err)
	}
}

func TestIsDisconnect(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("read /dev/ttyUSB0: input/output error"), true},
		{fmt.Errorf("wrapped: %w", errors.New("no such device")), true},
		{errors.New("permission denied"), false},
	}

	for _, tt := range tests {
		if got := IsDisconnect(tt.err); got != tt.want {
			t.Errorf("IsDisconnect(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
