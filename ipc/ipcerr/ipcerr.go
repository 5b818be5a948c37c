// Package ipcerr defines the typed error kinds a Driver can surface,
// per the error taxonomy: transport failures and protocol violations
// are fatal to the driver, EE-reported failures carry the EE's own
// diagnostic payload, and unsupported commands never touch the socket.
package ipcerr

import "fmt"

// TransportClosedError wraps a socket EOF or I/O error encountered
// mid-frame. It is fatal: the driver must not be reused after one is
// returned.
type TransportClosedError struct {
	Op  string
	Err error
}

func (e *TransportClosedError) Error() string {
	return fmt.Sprintf("eeipc: transport closed during %s: %v", e.Op, e.Err)
}

func (e *TransportClosedError) Unwrap() error { return e.Err }

// ProtocolViolationError signals a reply that does not fit the
// documented wire contract. The reply reader returns it when a result
// table set carries a dependency count other than 1. A status byte
// outside the known set is reported as an EE exception instead, and
// length fields are not cross-checked against the bytes that follow.
type ProtocolViolationError struct {
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	return "eeipc: protocol violation: " + e.Reason
}

// EEException carries a decoded, non-empty exception payload the EE
// attached to a non-success status.
type EEException struct {
	Status  byte
	Payload []byte
}

func (e *EEException) Error() string {
	return fmt.Sprintf("eeipc: EE exception (status %d, %d byte payload)", e.Status, len(e.Payload))
}

// GenericEEError carries only a numeric status; the EE sent no
// exception payload to explain it.
type GenericEEError struct {
	Status byte
}

func (e *GenericEEError) Error() string {
	return fmt.Sprintf("eeipc: generic EE error (status %d)", e.Status)
}

// EECrashError captures an intentional crash report from the EE. Once
// received, the caller is expected to terminate the coordinator; the
// driver itself does not call os.Exit.
type EECrashError struct {
	Reason string
	File   string
	Line   int32
	Traces []string
}

func (e *EECrashError) Error() string {
	return fmt.Sprintf("eeipc: EE crash: %s (%s:%d)", e.Reason, e.File, e.Line)
}

// NotImplementedError is returned immediately, without any socket I/O,
// by Driver methods covering commands intentionally unsupported over
// IPC (read/write-set tracking, anti-caching, MMAP, ARIES, extract and
// load-table-from-file).
type NotImplementedError struct {
	Message string
}

func (e *NotImplementedError) Error() string {
	return "eeipc: not implemented: " + e.Message
}
