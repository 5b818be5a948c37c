// Package driver exposes the public Command Dispatcher API: one Driver
// per Execution Engine, presenting a synchronous request/reply surface
// to the coordinator while speaking the length-prefixed binary IPC
// protocol underneath.
package driver

import (
	"fmt"

	"github.com/lni/dragonboat/v4/logger"

	"github.com/kvhost/eeipc/ipc/command"
	"github.com/kvhost/eeipc/ipc/dependency"
	"github.com/kvhost/eeipc/ipc/elog"
	"github.com/kvhost/eeipc/ipc/framebuf"
	"github.com/kvhost/eeipc/ipc/ipcerr"
	"github.com/kvhost/eeipc/ipc/reply"
	"github.com/kvhost/eeipc/ipc/supervisor"
	"github.com/kvhost/eeipc/ipc/transport"
	"github.com/kvhost/eeipc/ipc/wire"
)

var log = logger.GetLogger(elog.Driver)

// Identity is the fixed set of coordinates a Driver announces to the EE
// during Initialize.
type Identity struct {
	ClusterIndex int
	SiteID       int
	PartitionID  int
	HostID       int
	Hostname     string
	LogLevels    uint64
}

// Driver is one connection to one Execution Engine. It is not safe for
// concurrent use: exactly one request may be outstanding at a time.
type Driver struct {
	identity Identity

	supervisor *supervisor.Supervisor
	stream     *transport.Stream
	frame      *framebuf.FrameBuffer
	reader     *reply.Reader
}

// Open launches or attaches to an EE per supCfg, connects the stream
// transport once the readiness handshake completes, and issues the
// mandatory Initialize command. The returned Driver owns the socket,
// the frame buffer, and (in non-External mode) the child process.
func Open(identity Identity, supCfg supervisor.Config, source dependency.Source) (*Driver, error) {
	sup, err := supervisor.Start(supCfg)
	if err != nil {
		return nil, fmt.Errorf("driver: start EE: %w", err)
	}

	stream, err := transport.Dial(sup.Port())
	if err != nil {
		sup.Kill()
		return nil, fmt.Errorf("driver: connect to EE: %w", err)
	}

	d := &Driver{
		identity:   identity,
		supervisor: sup,
		stream:     stream,
		frame:      framebuf.New(),
		reader:     reply.New(stream, source),
	}

	if err := d.initialize(); err != nil {
		stream.Close()
		sup.Kill()
		return nil, err
	}
	return d, nil
}

// Release closes the socket — the EE's shutdown signal — then awaits
// the child process and joins its stdout reader.
func (d *Driver) Release() error {
	closeErr := d.stream.Close()
	if err := d.supervisor.Shutdown(); err != nil {
		return err
	}
	return closeErr
}

// call resets the frame buffer, invokes build to append the
// command-specific payload after the command code, flushes the frame,
// and runs the reply reader's callback loop through to a terminal
// status. It is the shared shape for commands whose reply is a bare
// status; callWithReply repeats it with a decode step for commands
// whose reply carries data, and ExportAction bypasses both.
func (d *Driver) call(code command.Code, build func(payload []byte) []byte) error {
	d.frame.Reset()
	payload := wire.PutU32(nil, uint32(code))
	payload = build(payload)
	d.frame.Append(payload)

	if err := d.stream.Flush(d.frame); err != nil {
		return err
	}
	return d.reader.AwaitStatus()
}

func (d *Driver) initialize() error {
	return d.call(command.Initialize, func(p []byte) []byte {
		p = wire.PutU32(p, uint32(d.identity.ClusterIndex))
		p = wire.PutU32(p, uint32(d.identity.SiteID))
		p = wire.PutU32(p, uint32(d.identity.PartitionID))
		p = wire.PutU32(p, uint32(d.identity.HostID))
		p = wire.PutU64(p, d.identity.LogLevels)
		p = wire.PutU16(p, uint16(len(d.identity.Hostname)))
		p = append(p, d.identity.Hostname...)
		return p
	})
}

// LoadCatalog sends the full catalog as a NUL-terminated UTF-8 byte
// string. A catalog larger than the current frame buffer capacity
// triggers a grow-by-copy before the payload is appended.
func (d *Driver) LoadCatalog(catalog string) error {
	return d.call(command.LoadCatalog, func(p []byte) []byte {
		p = append(p, catalog...)
		p = append(p, 0x00)
		return p
	})
}

// UpdateCatalog applies a catalog diff at the given version.
func (d *Driver) UpdateCatalog(version uint32, diff string) error {
	return d.call(command.UpdateCatalog, func(p []byte) []byte {
		p = wire.PutU32(p, version)
		p = append(p, diff...)
		p = append(p, 0x00)
		return p
	})
}

// Tick advances the EE's notion of time and last-committed transaction.
func (d *Driver) Tick(timeMillis uint64, lastCommittedTxnID uint64) error {
	return d.call(command.Tick, func(p []byte) []byte {
		p = wire.PutU64(p, timeMillis)
		p = wire.PutU64(p, lastCommittedTxnID)
		return p
	})
}

// Quiesce flushes any buffered export/replication state up to the
// given transaction.
func (d *Driver) Quiesce(lastCommittedTxnID uint64) error {
	return d.call(command.Quiesce, func(p []byte) []byte {
		p = wire.PutU64(p, lastCommittedTxnID)
		return p
	})
}

// PlanFragment executes one compiled plan fragment and returns its
// dependency set. serializedParams is the already-serialized parameter
// set for the fragment.
func (d *Driver) PlanFragment(
	txnID, lastCommittedTxnID, undoToken uint64,
	planFragmentID uint64,
	outputDepID, inputDepID uint32,
	serializedParams []byte,
) (dependency.DependencySet, error) {
	var result dependency.DependencySet
	err := d.callWithReply(command.PlanFragment, func(p []byte) []byte {
		p = wire.PutU64(p, txnID)
		p = wire.PutU64(p, lastCommittedTxnID)
		p = wire.PutU64(p, undoToken)
		p = wire.PutU64(p, planFragmentID)
		p = wire.PutU32(p, outputDepID)
		p = wire.PutU32(p, inputDepID)
		p = append(p, serializedParams...)
		return p
	}, func() error {
		var err error
		result, err = d.reader.DecodeDependencySet()
		return err
	})
	return result, err
}

// CustomPlanFragment executes an ad hoc, uncompiled plan string and
// returns its single result table.
func (d *Driver) CustomPlanFragment(
	txnID, lastCommittedTxnID, undoToken uint64,
	outputDepID, inputDepID uint32,
	serializedPlan string,
) (dependency.Table, error) {
	var result dependency.ResultTableSet
	err := d.callWithReply(command.CustomPlanFragment, func(p []byte) []byte {
		p = wire.PutU64(p, txnID)
		p = wire.PutU64(p, lastCommittedTxnID)
		p = wire.PutU64(p, undoToken)
		p = wire.PutU32(p, outputDepID)
		p = wire.PutU32(p, inputDepID)
		p = append(p, serializedPlan...)
		return p
	}, func() error {
		var err error
		result, err = d.reader.DecodeResultTableSet(1)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result.Tables[0], nil
}

// QueryPlanFragments executes a batch of compiled plan fragments in one
// round trip and returns one result table per fragment, in order.
func (d *Driver) QueryPlanFragments(
	txnID, lastCommittedTxnID, undoToken uint64,
	planFragmentIDs []uint64,
	inputDepIDs, outputDepIDs []uint32,
	serializedParameterSets []byte,
	numParameterSets uint32,
) ([]dependency.Table, error) {
	n := len(planFragmentIDs)
	var result dependency.ResultTableSet
	err := d.callWithReply(command.QueryPlanFragments, func(p []byte) []byte {
		p = wire.PutU64(p, txnID)
		p = wire.PutU64(p, lastCommittedTxnID)
		p = wire.PutU64(p, undoToken)
		p = wire.PutU32(p, uint32(n))
		p = wire.PutU32(p, numParameterSets)
		for _, id := range planFragmentIDs {
			p = wire.PutU64(p, id)
		}
		for _, id := range inputDepIDs {
			p = wire.PutU32(p, id)
		}
		for _, id := range outputDepIDs {
			p = wire.PutU32(p, id)
		}
		p = append(p, serializedParameterSets...)
		return p
	}, func() error {
		var err error
		result, err = d.reader.DecodeResultTableSet(n)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result.Tables, nil
}

// LoadTable loads a serialized table body into the EE for tableId. A
// table larger than the current frame buffer triggers a grow.
func (d *Driver) LoadTable(
	tableID uint32,
	txnID, lastCommittedTxnID, undoToken uint64,
	allowExport bool,
	table []byte,
) error {
	return d.call(command.LoadTable, func(p []byte) []byte {
		p = wire.PutU32(p, tableID)
		p = wire.PutU64(p, txnID)
		p = wire.PutU64(p, lastCommittedTxnID)
		p = wire.PutU64(p, undoToken)
		if allowExport {
			p = wire.PutU16(p, 1)
		} else {
			p = wire.PutU16(p, 0)
		}
		p = append(p, table...)
		return p
	})
}

// GetStats requests one statistics table for the given selector and
// locators.
func (d *Driver) GetStats(selectorOrdinal uint32, interval bool, now uint64, locators []uint32) (dependency.Table, error) {
	var result []byte
	err := d.callWithReply(command.GetStats, func(p []byte) []byte {
		p = wire.PutU32(p, selectorOrdinal)
		if interval {
			p = append(p, 1)
		} else {
			p = append(p, 0)
		}
		p = wire.PutU64(p, now)
		p = wire.PutU32(p, uint32(len(locators)))
		for _, l := range locators {
			p = wire.PutU32(p, l)
		}
		return p
	}, func() error {
		lenBytes, err := d.stream.ReadExact(4)
		if err != nil {
			return &ipcerr.TransportClosedError{Op: "read stats message length", Err: err}
		}
		n := wire.U32(lenBytes)
		body, err := d.stream.ReadExact(int(n))
		if err != nil {
			return &ipcerr.TransportClosedError{Op: "read stats message body", Err: err}
		}
		result = body
		return nil
	})
	return dependency.Table(result), err
}

// ReleaseUndoToken commits all effects at or before undoToken.
func (d *Driver) ReleaseUndoToken(undoToken uint64) error {
	return d.call(command.ReleaseUndoToken, func(p []byte) []byte {
		return wire.PutU64(p, undoToken)
	})
}

// UndoUndoToken rolls back all effects at or after undoToken.
func (d *Driver) UndoUndoToken(undoToken uint64) error {
	return d.call(command.UndoUndoToken, func(p []byte) []byte {
		return wire.PutU64(p, undoToken)
	})
}

// SetLogLevels reconfigures the EE's internal log levels.
func (d *Driver) SetLogLevels(logLevels uint64) error {
	return d.call(command.SetLogLevels, func(p []byte) []byte {
		return wire.PutU64(p, logLevels)
	})
}

// ActivateTableStream begins a streaming serialization pass over
// tableID (e.g. for snapshotting).
func (d *Driver) ActivateTableStream(tableID uint32, streamTypeOrdinal uint32) error {
	return d.call(command.ActivateTableStream, func(p []byte) []byte {
		p = wire.PutU32(p, tableID)
		p = wire.PutU32(p, streamTypeOrdinal)
		return p
	})
}

// TableStreamSerializeMore requests up to capacity bytes of the next
// chunk of tuple data from an active table stream. It returns the
// number of bytes copied into out (0 for end-of-stream, -1 for error);
// out must have length >= capacity.
func (d *Driver) TableStreamSerializeMore(tableID, streamTypeOrdinal, capacity uint32, out []byte) (int32, error) {
	var n int32
	err := d.callWithReply(command.TableStreamSerializeMore, func(p []byte) []byte {
		p = wire.PutU32(p, tableID)
		p = wire.PutU32(p, streamTypeOrdinal)
		p = wire.PutU32(p, capacity)
		return p
	}, func() error {
		lenBytes, err := d.stream.ReadExact(4)
		if err != nil {
			return &ipcerr.TransportClosedError{Op: "read stream chunk length", Err: err}
		}
		length := int32(wire.U32(lenBytes))
		n = length
		if length <= 0 {
			return nil
		}
		body, err := d.stream.ReadExact(int(length))
		if err != nil {
			return &ipcerr.TransportClosedError{Op: "read stream chunk body", Err: err}
		}
		copy(out, body)
		return nil
	})
	return n, err
}

// ExportActionResult is the reply to ExportAction, whose wire shape is
// deliberately asymmetric with every other command: no status byte, a
// signed 8-byte result offset, and — only if the offset is
// non-negative and poll was requested — a length-prefixed data block.
type ExportActionResult struct {
	ResultOffset int64
	Data         []byte
}

// ExportAction advances or queries the export stream for one table.
// This is the one command that bypasses the reply reader entirely: the
// EE writes an 8-byte result offset with no leading status byte, per
// spec's documented asymmetry.
func (d *Driver) ExportAction(ack, poll, reset, sync bool, ackOffset, seqNo uint64, tableID uint64) (ExportActionResult, error) {
	d.frame.Reset()
	p := wire.PutU32(nil, uint32(command.ExportAction))
	p = wire.PutU32(p, boolToU32(ack))
	p = wire.PutU32(p, boolToU32(poll))
	p = wire.PutU32(p, boolToU32(reset))
	p = wire.PutU32(p, boolToU32(sync))
	p = wire.PutU64(p, ackOffset)
	p = wire.PutU64(p, seqNo)
	p = wire.PutU64(p, tableID)
	d.frame.Append(p)

	if err := d.stream.Flush(d.frame); err != nil {
		return ExportActionResult{}, err
	}

	offsetBytes, err := d.stream.ReadExact(8)
	if err != nil {
		return ExportActionResult{}, &ipcerr.TransportClosedError{Op: "read export result offset", Err: err}
	}
	offset := int64(wire.U64(offsetBytes))
	if offset < 0 {
		return ExportActionResult{ResultOffset: offset}, nil
	}

	result := ExportActionResult{ResultOffset: offset}
	if poll {
		lenBytes, err := d.stream.ReadExact(4)
		if err != nil {
			return ExportActionResult{}, &ipcerr.TransportClosedError{Op: "read export data length", Err: err}
		}
		n := wire.U32(lenBytes)
		data, err := d.stream.ReadExact(int(n))
		if err != nil {
			return ExportActionResult{}, &ipcerr.TransportClosedError{Op: "read export data", Err: err}
		}
		result.Data = data
	}
	return result, nil
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// RecoveryMessage forwards a chunk of a recovery stream to the EE.
func (d *Driver) RecoveryMessage(msg []byte) error {
	return d.call(command.RecoveryMessage, func(p []byte) []byte {
		p = wire.PutU32(p, uint32(len(msg)))
		p = append(p, msg...)
		return p
	})
}

// TableHashCode computes a content hash of tableID's current state.
func (d *Driver) TableHashCode(tableID uint32) (uint64, error) {
	var hash uint64
	err := d.callWithReply(command.TableHashCode, func(p []byte) []byte {
		return wire.PutU32(p, tableID)
	}, func() error {
		b, err := d.stream.ReadExact(8)
		if err != nil {
			return &ipcerr.TransportClosedError{Op: "read table hash code", Err: err}
		}
		hash = wire.U64(b)
		return nil
	})
	return hash, err
}

// Hashinate computes which of partitionCount partitions a serialized
// single-value parameter set hashes to.
func (d *Driver) Hashinate(partitionCount uint32, serializedValue []byte) (uint32, error) {
	var partition uint32
	err := d.callWithReply(command.Hashinate, func(p []byte) []byte {
		p = wire.PutU32(p, partitionCount)
		p = append(p, serializedValue...)
		return p
	}, func() error {
		b, err := d.stream.ReadExact(4)
		if err != nil {
			return &ipcerr.TransportClosedError{Op: "read hashinate result", Err: err}
		}
		partition = wire.U32(b)
		return nil
	})
	return partition, err
}

// callWithReply is call plus an additional decode step run only after
// the status is confirmed SUCCESS.
func (d *Driver) callWithReply(code command.Code, build func([]byte) []byte, decode func() error) error {
	d.frame.Reset()
	p := wire.PutU32(nil, uint32(code))
	p = build(p)
	d.frame.Append(p)

	if err := d.stream.Flush(d.frame); err != nil {
		return err
	}
	if err := d.reader.AwaitStatus(); err != nil {
		return err
	}
	return decode()
}
