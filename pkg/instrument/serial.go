package instrument

import (
	"bufio"
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// DefaultBaudRate is the DS1000E RS-232 default.
const DefaultBaudRate = 38400

// Serial is an instrument on a serial line speaking newline terminated SCPI.
type Serial struct {
	port     string
	baudRate int

	mu     sync.Mutex
	conn   serial.Port
	reader *bufio.Reader
}

// OpenSerial opens the serial port and sets the read timeout.
func OpenSerial(port string, baudRate int, timeout time.Duration) (*Serial, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	conn, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", port)
	}
	if err := conn.SetReadTimeout(timeout); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "failed to set read timeout on %s", port)
	}

	return &Serial{
		port:     port,
		baudRate: baudRate,
		conn:     conn,
		reader:   bufio.NewReaderSize(timeoutReader{conn}, 64*1024),
	}, nil
}

func (s *Serial) String() string {
	return "serial " + s.port
}

func (s *Serial) Write(ctx context.Context, cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, cmd)
}

func (s *Serial) Ask(ctx context.Context, cmd string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(ctx, cmd); err != nil {
		return nil, err
	}
	resp, err := readResponse(s.reader)
	if err != nil {
		return nil, errors.Wrapf(err, "serial read after %q", cmd)
	}
	return resp, nil
}

func (s *Serial) write(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.conn == nil {
		return errors.New("serial instrument is closed")
	}
	if _, err := s.conn.Write([]byte(cmd + "\n")); err != nil {
		return errors.Wrapf(err, "serial write %q", cmd)
	}
	return nil
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// timeoutReader turns the (0, nil) read that go.bug.st/serial returns on a
// read timeout into ErrTimeout.
type timeoutReader struct {
	port serial.Port
}

func (r timeoutReader) Read(b []byte) (int, error) {
	n, err := r.port.Read(b)
	if n == 0 && err == nil {
		return 0, ErrTimeout
	}
	return n, err
}
