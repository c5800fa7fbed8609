package sensor

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"airmon-server/internal/modules/airquality/types"
)

// State is the connection lifecycle state of the device link.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReading
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReading:
		return "reading"
	default:
		return "unknown"
	}
}

// Status is the link state snapshot exposed to the API layer.
type Status struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Port      string `json:"port"`
	BaudRate  int    `json:"baud_rate"`
}

const (
	// settleDelay lets the device finish its boot sequence after the port
	// opens; bytes buffered during this window are stale and get discarded.
	settleDelay = 2 * time.Second
	// idlePoll bounds each blocking read so the loop stays responsive to
	// stop signals without busy-waiting.
	idlePoll = 100 * time.Millisecond
	// readErrorPause blocks Connect after a transient I/O failure so callers
	// do not hammer a flapping port.
	readErrorPause = 5 * time.Second
	// joinTimeout bounds how long Disconnect waits for the read loop to exit.
	joinTimeout = 2 * time.Second

	readingsBuffer = 64
)

// ErrNotConnected is returned by operations that need an open port.
var ErrNotConnected = errors.New("sensor: not connected")

type portOpener func(name string, mode *serial.Mode) (serial.Port, error)

// Link owns the serial connection to the sensor and streams decoded readings.
// Valid readings are delivered on the channel returned by Readings; callers
// drive reconnection, the link never retries on its own.
type Link struct {
	logger *slog.Logger
	open   portOpener
	now    func() time.Time
	settle time.Duration

	// OnReject, when set, is called once per line that failed to decode into
	// a complete reading. Set before Connect; rejections are routine and are
	// counted rather than logged.
	OnReject func()

	mu    sync.Mutex
	port  string
	baud  int
	state State
	conn  serial.Port
	// retryAfter blocks Connect until the read-error pause has elapsed.
	retryAfter time.Time

	readings chan types.Reading
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLink creates a link for the given port. An empty port triggers discovery
// on Connect. Baud <= 0 falls back to 9600, the device default.
func NewLink(port string, baud int, logger *slog.Logger) *Link {
	if baud <= 0 {
		baud = 9600
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Link{
		logger:   logger,
		open:     serial.Open,
		now:      time.Now,
		settle:   settleDelay,
		port:     port,
		baud:     baud,
		state:    StateDisconnected,
		readings: make(chan types.Reading, readingsBuffer),
	}
}

// Readings is the stream of decoded sensor samples. The channel is bounded;
// the read loop blocks on a full channel rather than dropping data.
func (l *Link) Readings() <-chan types.Reading {
	return l.readings
}

// State returns the current lifecycle state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Status reports the current link state and address.
func (l *Link) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		State:     l.state.String(),
		Connected: l.state == StateConnected || l.state == StateReading,
		Port:      l.port,
		BaudRate:  l.baud,
	}
}

// SetPort overrides the port used by the next Connect.
func (l *Link) SetPort(port string) {
	l.mu.Lock()
	l.port = port
	l.mu.Unlock()
}

// Connect opens the serial port with 8N1 framing, waits out the device boot
// sequence and discards any bytes that arrived during the settle window.
// When no port is configured one is discovered first.
func (l *Link) Connect() error {
	l.mu.Lock()
	if l.state != StateDisconnected {
		l.mu.Unlock()
		return fmt.Errorf("sensor: connect in state %s", l.state)
	}
	if wait := l.retryAfter.Sub(l.now()); wait > 0 {
		l.mu.Unlock()
		return fmt.Errorf("sensor: port flapping, retry in %s", wait.Round(time.Second))
	}
	if l.port == "" {
		l.port = DiscoverPort()
	}
	port, baud := l.port, l.baud
	l.state = StateConnecting
	l.mu.Unlock()

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	conn, err := l.open(port, mode)
	if err != nil {
		l.setState(StateDisconnected)
		return fmt.Errorf("sensor: open %s: %w", port, err)
	}

	time.Sleep(l.settle)
	if err := conn.ResetInputBuffer(); err != nil {
		l.logger.Warn("reset input buffer failed", "port", port, "error", err)
	}

	// The mutex was dropped for the open and settle window; a Disconnect
	// that landed in between wins, so re-check before committing the port.
	l.mu.Lock()
	if l.state != StateConnecting {
		st := l.state
		l.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("sensor: connect aborted in state %s", st)
	}
	l.conn = conn
	l.state = StateConnected
	l.mu.Unlock()

	l.logger.Info("sensor connected", "port", port, "baud", baud)
	return nil
}

// StartReading launches the read loop. The link must be connected.
func (l *Link) StartReading() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateReading {
		return nil
	}
	if l.state != StateConnected || l.conn == nil {
		return ErrNotConnected
	}
	l.state = StateReading
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	go l.readLoop(l.conn, l.stopCh, l.doneCh)
	return nil
}

// readLoop reads the port until stop is signalled or an I/O error occurs.
// Each bounded read appends to a line buffer; complete lines are decoded and
// valid readings are delivered downstream.
func (l *Link) readLoop(conn serial.Port, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	if err := conn.SetReadTimeout(idlePoll); err != nil {
		l.logger.Warn("set read timeout failed", "error", err)
	}

	buf := make([]byte, 256)
	var pending []byte

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := conn.Read(buf)
		if err != nil {
			l.logger.Error("sensor read failed", "port", l.port, "error", err)
			l.fail(conn)
			return
		}
		if n == 0 {
			continue
		}

		pending = append(pending, buf[:n]...)
		for {
			idx := bytes.IndexByte(pending, '\n')
			if idx < 0 {
				break
			}
			line := pending[:idx]
			pending = pending[idx+1:]
			l.handleLine(line, stop)
		}
	}
}

// fail tears down the link after a read error. The dead port is closed and
// released, and reconnects are held off for readErrorPause so a caller does
// not immediately reopen a flapping port. A concurrent Disconnect that
// already took the port keeps ownership of closing it.
func (l *Link) fail(conn serial.Port) {
	l.mu.Lock()
	owned := l.conn == conn
	if owned {
		l.conn = nil
	}
	l.state = StateDisconnected
	l.retryAfter = l.now().Add(readErrorPause)
	l.mu.Unlock()

	if owned {
		if err := conn.Close(); err != nil {
			l.logger.Warn("close port failed", "error", err)
		}
	}
}

func (l *Link) handleLine(raw []byte, stop <-chan struct{}) {
	line := strings.TrimSpace(strings.ToValidUTF8(string(raw), "�"))
	if line == "" {
		return
	}
	reading, ok := ParseLine(line, l.now())
	if !ok {
		if l.OnReject != nil {
			l.OnReject()
		}
		return
	}
	select {
	case l.readings <- reading:
	case <-stop:
	}
}

// SendCommand writes a newline-terminated command to the device. Best effort;
// a failure is reported to the caller and leaves the link as-is.
func (l *Link) SendCommand(cmd string) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("sensor: send %q: %w", cmd, err)
	}
	return nil
}

// Disconnect stops the read loop, waiting a bounded time for it to exit, and
// closes the port if open. Safe to call from any state, including before the
// first Connect, and always leaves the link disconnected.
func (l *Link) Disconnect() {
	l.mu.Lock()
	stopCh, doneCh := l.stopCh, l.doneCh
	l.stopCh, l.doneCh = nil, nil
	conn := l.conn
	l.conn = nil
	l.state = StateDisconnected
	l.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if doneCh != nil {
		select {
		case <-doneCh:
		case <-time.After(joinTimeout):
			l.logger.Warn("read loop did not exit in time")
		}
	}

	if conn != nil {
		if err := conn.Close(); err != nil {
			l.logger.Warn("close port failed", "error", err)
		}
	}

	l.logger.Info("sensor disconnected")
}

func (l *Link) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}
