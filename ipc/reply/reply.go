// Package reply implements the reply-reading half of the protocol: the
// iterative mid-reply callback loop, per-command reply-shape decoding,
// and exception/crash payload decoding.
package reply

import (
	"github.com/lni/dragonboat/v4/logger"

	"github.com/kvhost/eeipc/ipc/command"
	"github.com/kvhost/eeipc/ipc/dependency"
	"github.com/kvhost/eeipc/ipc/elog"
	"github.com/kvhost/eeipc/ipc/ipcerr"
	"github.com/kvhost/eeipc/ipc/transport"
	"github.com/kvhost/eeipc/ipc/wire"
)

var log = logger.GetLogger(elog.Reply)

// Reader reads replies off a Stream, resolving mid-reply dependency
// callbacks against a dependency.Source.
type Reader struct {
	stream *transport.Stream
	source dependency.Source
}

// New builds a Reader over stream, resolving dependency callbacks
// against source.
func New(stream *transport.Stream, source dependency.Source) *Reader {
	return &Reader{stream: stream, source: source}
}

// AwaitStatus runs the iterative callback loop: while the EE emits
// RETRIEVE_DEPENDENCY, look up the requested dependency and answer it
// on the raw socket, then read another status byte. It stops at the
// first terminal (non-RETRIEVE_DEPENDENCY) status: SUCCESS yields a nil
// error, and CRASH or any other status yields a typed error, so a nil
// return always means the EE replied command.StatusSuccess.
//
// This is deliberately a loop, not recursion: an EE that pulls
// thousands of dependencies for one fragment must not grow the Go
// call stack.
func (r *Reader) AwaitStatus() error {
	for {
		b, err := r.stream.ReadStatus()
		if err != nil {
			return &ipcerr.TransportClosedError{Op: "read status", Err: err}
		}
		status := command.Status(b)

		switch status {
		case command.StatusRetrieveDependency:
			if err := r.answerDependencyCallback(); err != nil {
				return err
			}
			continue
		case command.StatusCrash:
			return r.decodeCrash()
		case command.StatusSuccess:
			return nil
		default:
			return r.decodeException(byte(status))
		}
	}
}

// answerDependencyCallback reads the 4-byte dependency id the EE is
// requesting, looks it up, and writes the sub-reply directly on the
// socket — never through the frame buffer, which is still holding the
// outbound command this reply belongs to.
func (r *Reader) answerDependencyCallback() error {
	idBytes, err := r.stream.ReadExact(4)
	if err != nil {
		return &ipcerr.TransportClosedError{Op: "read dependency id", Err: err}
	}
	depID := wire.U32(idBytes)

	table, ok := r.source.NextDependency(depID)
	if !ok {
		log.Debugf("dependency %d not found", depID)
		if err := r.stream.WriteByte(byte(command.StatusDependencyNotFound)); err != nil {
			return &ipcerr.TransportClosedError{Op: "write dependency-not-found", Err: err}
		}
		return nil
	}

	log.Debugf("dependency %d found, %d bytes", depID, len(table))
	msg := make([]byte, 0, 1+4+len(table))
	msg = append(msg, byte(command.StatusDependencyFound))
	msg = wire.PutBytes(msg, table)
	if err := r.writeRaw(msg); err != nil {
		return &ipcerr.TransportClosedError{Op: "write dependency table", Err: err}
	}
	return nil
}

// writeRaw writes b directly to the socket, byte by byte semantics
// aside — used for the small fixed-size dependency sub-reply message
// which combines the status byte, length, and table body in one send.
func (r *Reader) writeRaw(b []byte) error {
	// The dependency sub-reply is not framed like an outbound command
	// (no outer length-includes-itself prefix), so it goes out via the
	// same raw path as WriteByte rather than WriteFrame.
	return r.stream.WriteRaw(b)
}

// decodeException reads the exception payload following a non-success,
// non-crash status and returns the corresponding typed error.
func (r *Reader) decodeException(status byte) error {
	lenBytes, err := r.stream.ReadExact(4)
	if err != nil {
		return &ipcerr.TransportClosedError{Op: "read exception length", Err: err}
	}
	length := wire.U32(lenBytes)
	if length == 0 {
		return &ipcerr.GenericEEError{Status: status}
	}
	payload, err := r.stream.ReadExact(int(length))
	if err != nil {
		return &ipcerr.TransportClosedError{Op: "read exception payload", Err: err}
	}
	return &ipcerr.EEException{Status: status, Payload: payload}
}

// decodeCrash reads the crash payload: an outer message length (framed
// separately from ordinary exception payloads), then reason, filename,
// line number, and a vector of trace strings.
func (r *Reader) decodeCrash() error {
	lenBytes, err := r.stream.ReadExact(4)
	if err != nil {
		return &ipcerr.TransportClosedError{Op: "read crash message length", Err: err}
	}
	msgLen := wire.U32(lenBytes)
	msg, err := r.stream.ReadExact(int(msgLen))
	if err != nil {
		return &ipcerr.TransportClosedError{Op: "read crash message", Err: err}
	}

	pos := 0
	readString := func() string {
		n := int(wire.U32(msg[pos:]))
		pos += 4
		s := string(msg[pos : pos+n])
		pos += n
		return s
	}

	reason := readString()
	file := readString()
	line := int32(wire.U32(msg[pos:]))
	pos += 4
	numTraces := int(wire.U32(msg[pos:]))
	pos += 4

	traces := make([]string, numTraces)
	for i := 0; i < numTraces; i++ {
		traces[i] = readString()
	}

	return &ipcerr.EECrashError{Reason: reason, File: file, Line: line, Traces: traces}
}

// readBoolByte reads a single byte and treats any nonzero value as
// true. Both ResultTableSet and DependencySet dirty flags use this one
// helper: the original source represented the same "was anything
// changed" flag two different ways (an 8-bit boolean in one reader, an
// implicit >0 comparison in the other) and this unifies them.
func readBoolByte(b []byte) bool {
	return b[0] != 0
}

// DecodeResultTableSet reads a ResultTableSet for exactly n tables, per
// the wire shape used by QueryPlanFragments and CustomPlanFragment: an
// outer length prefix, then a dirty byte, then for each table a
// dependency count (must be 1), a dependency id (discarded), and a
// self-length-prefixed table body.
func (r *Reader) DecodeResultTableSet(n int) (dependency.ResultTableSet, error) {
	body, err := r.readLengthPrefixedBlock()
	if err != nil {
		return dependency.ResultTableSet{}, err
	}

	pos := 0
	dirty := readBoolByte(body[pos:])
	pos++

	tables := make([]dependency.Table, n)
	for i := 0; i < n; i++ {
		depCount := wire.U32(body[pos:])
		pos += 4
		if depCount != 1 {
			return dependency.ResultTableSet{}, &ipcerr.ProtocolViolationError{
				Reason: "result table set: expected dependency count 1",
			}
		}
		pos += 4 // dependency id, ignored

		tableLen := int(wire.U32(body[pos:]))
		pos += 4
		tables[i] = dependency.Table(body[pos : pos+tableLen])
		pos += tableLen
	}

	return dependency.ResultTableSet{Dirty: dirty, Tables: tables}, nil
}

// DecodeDependencySet reads a DependencySet for PlanFragment: an outer
// length prefix (not counting itself), a dirty byte, a count, then that
// many (dep id, self-length-prefixed table) pairs.
func (r *Reader) DecodeDependencySet() (dependency.DependencySet, error) {
	body, err := r.readLengthPrefixedBlock()
	if err != nil {
		return dependency.DependencySet{}, err
	}

	pos := 0
	dirty := readBoolByte(body[pos:])
	pos++

	n := int(wire.U32(body[pos:]))
	pos += 4

	depIDs := make([]uint32, n)
	tables := make([]dependency.Table, n)
	for i := 0; i < n; i++ {
		depIDs[i] = wire.U32(body[pos:])
		pos += 4
		tableLen := int(wire.U32(body[pos:]))
		pos += 4
		tables[i] = dependency.Table(body[pos : pos+tableLen])
		pos += tableLen
	}

	return dependency.DependencySet{Dirty: dirty, DepIDs: depIDs, Tables: tables}, nil
}

// readLengthPrefixedBlock reads a 4-byte length (not including itself)
// followed by that many bytes, common to both result shapes and to
// GetStats' single-table message.
func (r *Reader) readLengthPrefixedBlock() ([]byte, error) {
	lenBytes, err := r.stream.ReadExact(4)
	if err != nil {
		return nil, &ipcerr.TransportClosedError{Op: "read block length", Err: err}
	}
	n := wire.U32(lenBytes)
	body, err := r.stream.ReadExact(int(n))
	if err != nil {
		return nil, &ipcerr.TransportClosedError{Op: "read block body", Err: err}
	}
	return body, nil
}
