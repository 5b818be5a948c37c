package driver

import (
	"github.com/kvhost/eeipc/ipc/dependency"
	"github.com/kvhost/eeipc/ipc/ipcerr"
)

// The operations below are intentionally unsupported over IPC. Each
// returns a typed *ipcerr.NotImplementedError immediately, performing
// zero socket I/O — callers can assert this by interposing a mock
// transport and observing no bytes cross it.

// TrackingEnable is not implemented: read/write-set tracking is
// disabled for the IPC Execution Engine.
func (d *Driver) TrackingEnable(txnID int64) error {
	return notImplemented("Read/Write Set Tracking is disabled for IPC")
}

// TrackingFinish is not implemented: read/write-set tracking is
// disabled for the IPC Execution Engine.
func (d *Driver) TrackingFinish(txnID int64) error {
	return notImplemented("Read/Write Set Tracking is disabled for IPC")
}

// TrackingReadSet is not implemented: read/write-set tracking is
// disabled for the IPC Execution Engine.
func (d *Driver) TrackingReadSet(txnID int64) (dependency.Table, error) {
	return nil, notImplemented("Read/Write Set Tracking is disabled for IPC")
}

// TrackingWriteSet is not implemented: read/write-set tracking is
// disabled for the IPC Execution Engine.
func (d *Driver) TrackingWriteSet(txnID int64) (dependency.Table, error) {
	return nil, notImplemented("Read/Write Set Tracking is disabled for IPC")
}

// AntiCacheInitialize is not implemented: anti-caching is disabled for
// the IPC Execution Engine.
func (d *Driver) AntiCacheInitialize(dbFilePath string, blockSize int64) error {
	return notImplemented("Anti-Caching is disabled for IPC")
}

// AntiCacheReadBlocks is not implemented: anti-caching is disabled for
// the IPC Execution Engine.
func (d *Driver) AntiCacheReadBlocks(blockIDs []uint16, tupleOffsets []int32) error {
	return notImplemented("Anti-Caching is disabled for IPC")
}

// AntiCacheMergeBlocks is not implemented: anti-caching is disabled for
// the IPC Execution Engine.
func (d *Driver) AntiCacheMergeBlocks() error {
	return notImplemented("Anti-Caching is disabled for IPC")
}

// AntiCacheEvictBlock is not implemented: anti-caching is disabled for
// the IPC Execution Engine.
func (d *Driver) AntiCacheEvictBlock(blockSize int64, numBlocks int) (dependency.Table, error) {
	return nil, notImplemented("Anti-Caching is disabled for IPC")
}

// MMAPInitialize is not implemented: MMAP storage is disabled for the
// IPC Execution Engine.
func (d *Driver) MMAPInitialize(dbDir string, mapSize, syncFrequency int64) error {
	return notImplemented("Storage MMAP is disabled for IPC")
}

// ARIESInitialize is not implemented: ARIES recovery is disabled for
// the IPC Execution Engine.
func (d *Driver) ARIESInitialize(dbDir, logFile string) error {
	return notImplemented("ARIES recovery is disabled for IPC")
}

// GetAriesLogBufferLength is not implemented: ARIES recovery is
// disabled for the IPC Execution Engine.
func (d *Driver) GetAriesLogBufferLength() (int64, error) {
	return 0, notImplemented("ARIES recovery is disabled for IPC")
}

// GetAriesLogData is not implemented: ARIES recovery is disabled for
// the IPC Execution Engine.
func (d *Driver) GetAriesLogData(bufferLength int) ([]byte, error) {
	return nil, notImplemented("ARIES recovery is disabled for IPC")
}

// DoAriesRecoveryPhase is not implemented: ARIES recovery is disabled
// for the IPC Execution Engine.
func (d *Driver) DoAriesRecoveryPhase(replayPointer, replayLogSize, replayTxnID int64) error {
	return notImplemented("ARIES recovery is disabled for IPC")
}

// FreePointerToReplayLog is not implemented: ARIES recovery is disabled
// for the IPC Execution Engine.
func (d *Driver) FreePointerToReplayLog(pointer int64) error {
	return notImplemented("ARIES recovery is disabled for IPC")
}

// ReadAriesLogForReplay is not implemented: ARIES recovery is disabled
// for the IPC Execution Engine.
func (d *Driver) ReadAriesLogForReplay() (int64, error) {
	return 0, notImplemented("ARIES recovery is disabled for IPC")
}

// ExtractTable is not implemented over IPC.
func (d *Driver) ExtractTable(destinationShim, destinationFile string, caching bool) (int64, error) {
	return 0, notImplemented("ExtractTable is disabled for IPC")
}

// LoadTableFromFile is not implemented over IPC.
func (d *Driver) LoadTableFromFile(destinationShim, destinationFile string) (int64, error) {
	return 0, notImplemented("LoadTable is disabled for IPC")
}

func notImplemented(message string) error {
	return &ipcerr.NotImplementedError{Message: message}
}
