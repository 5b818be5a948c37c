// Package instrument holds the process-wide instrumentation error list:
// diagnostics emitted by a memory checker (e.g. Valgrind) wrapping an
// instrumented EE child process. It is the one piece of state every
// driver and supervisor instance in a process shares, per the
// concurrency model's "share nothing except the process-wide port
// counter and the process-wide instrumentation error list."
package instrument

import (
	"sort"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// errorList is an append-only, multi-writer log keyed by an atomically
// incremented sequence number so entries can be read back in insertion
// order without a mutex serializing writers.
var (
	errorList = xsync.NewMapOf[uint64, string]()
	seq       uint64
)

// Append adds msg to the process-wide instrumentation error list. Safe
// for concurrent use by any number of supervisor stdout readers.
func Append(msg string) {
	id := atomic.AddUint64(&seq, 1)
	errorList.Store(id, msg)
}

// Snapshot returns every message appended so far, in the order they
// were appended.
func Snapshot() []string {
	type entry struct {
		id  uint64
		msg string
	}
	entries := make([]entry, 0, errorList.Size())
	errorList.Range(func(id uint64, msg string) bool {
		entries = append(entries, entry{id, msg})
		return true
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.msg
	}
	return out
}

// Empty reports whether no instrumentation errors have been recorded.
// Tests consult this at teardown to validate an instrumented EE child
// exited clean.
func Empty() bool {
	return errorList.Size() == 0
}

// reset clears the list. Unexported: it exists only for test isolation
// within this module, never for driver-facing use — the list is
// process-wide and append-only from the driver's perspective.
func reset() {
	errorList.Clear()
	atomic.StoreUint64(&seq, 0)
}
