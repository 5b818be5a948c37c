// Package transport owns the blocking TCP connection to a single
// Execution Engine process and the primitives higher layers are built
// from: Flush (and the lower-level WriteFrame) for outbound frames,
// ReadExact and ReadStatus for replies, and WriteByte/WriteRaw for
// unframed dependency sub-replies.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/lni/dragonboat/v4/logger"

	"github.com/kvhost/eeipc/ipc/elog"
	"github.com/kvhost/eeipc/ipc/framebuf"
)

var log = logger.GetLogger(elog.Transport)

// ErrUnexpectedEOF is returned by ReadExact and ReadStatus when the
// connection is closed before the requested number of bytes arrives.
var ErrUnexpectedEOF = errors.New("transport: unexpected EOF")

// Stream is a blocking, ordered byte stream to one EE process. It wraps
// a net.Conn and provides the exact-length read/write operations the
// reply reader and command dispatcher build on.
type Stream struct {
	conn net.Conn
}

// Dial connects to the EE on localhost at the given port, enabling
// TCP_NODELAY since latency dominates over throughput at the small
// request/reply sizes this protocol uses.
func Dial(port int) (*Stream, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: set nodelay: %w", err)
		}
	}
	log.Infof("connected to EE at %s", addr)
	return &Stream{conn: conn}, nil
}

// WriteFrame writes payload prefixed with a big-endian uint32 equal to
// len(payload)+4 — the length prefix counts its own four bytes. The
// write uses net.Buffers so the prefix and payload go out as a single
// scatter-gather syscall where the platform supports it.
func (s *Stream) WriteFrame(payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)+4))
	buffers := net.Buffers{header[:], payload}
	_, err := buffers.WriteTo(s.conn)
	if err != nil {
		return fmt.Errorf("transport: write frame: %w", err)
	}
	return nil
}

// ReadExact reads exactly n bytes or returns ErrUnexpectedEOF.
func (s *Stream) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.conn, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("transport: read exact %d bytes: %w", n, err)
	}
	return buf, nil
}

// ReadStatus reads the single status byte that begins every reply.
func (s *Stream) ReadStatus() (byte, error) {
	b, err := s.ReadExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteByte writes a single byte directly to the socket, used for the
// DependencyFound/DependencyNotFound sub-replies which bypass the frame
// buffer entirely.
func (s *Stream) WriteByte(b byte) error {
	_, err := s.conn.Write([]byte{b})
	if err != nil {
		return fmt.Errorf("transport: write byte: %w", err)
	}
	return nil
}

// Flush writes fb's reserved header slot with the big-endian length
// prefix (payload length plus the 4 prefix bytes themselves) and sends
// the whole buffer — header and payload together — in one write. This
// is the primary send path for the command dispatcher: the frame
// buffer is assembled once, in place, and handed here unchanged.
func (s *Stream) Flush(fb *framebuf.FrameBuffer) error {
	binary.BigEndian.PutUint32(fb.HeaderSlot(), uint32(fb.Len()+4))
	if _, err := s.conn.Write(fb.Bytes()); err != nil {
		return fmt.Errorf("transport: flush frame: %w", err)
	}
	return nil
}

// WriteRaw writes b directly to the socket with no framing at all,
// used for small fixed-size messages such as the dependency-found
// sub-reply that combine a status byte, a length, and a body in one
// send outside the ordinary outbound-frame path.
func (s *Stream) WriteRaw(b []byte) error {
	if _, err := s.conn.Write(b); err != nil {
		return fmt.Errorf("transport: write raw: %w", err)
	}
	return nil
}

// Close closes the underlying connection. Any blocked read or write
// unblocks with an error, which is how release() signals the EE
// connection is done without a separate cancellation mechanism.
func (s *Stream) Close() error {
	return s.conn.Close()
}
