// Package command defines the wire command codes and reply status
// codes for the EE IPC protocol. The numeric values are fixed by the
// EE and must be reproduced exactly; callers never see them directly,
// only through the Driver's typed methods.
package command

// Code identifies an outbound command. The wire values of codes are
// stable; they are declared below in ascending order, with gaps where
// several legacy IDs (1, 8, 14, 15) were retired upstream and are
// intentionally absent.
type Code uint32

const (
	Initialize               Code = 0
	LoadCatalog              Code = 2
	ToggleProfiler           Code = 3 // reserved: no Driver method, dead on the wire upstream too
	Tick                     Code = 4
	GetStats                 Code = 5
	QueryPlanFragments       Code = 6
	PlanFragment             Code = 7
	LoadTable                Code = 9
	ReleaseUndoToken         Code = 10
	UndoUndoToken            Code = 11
	CustomPlanFragment       Code = 12
	SetLogLevels             Code = 13
	Quiesce                  Code = 16
	ActivateTableStream      Code = 17
	TableStreamSerializeMore Code = 18
	UpdateCatalog            Code = 19
	ExportAction             Code = 20
	RecoveryMessage          Code = 21
	TableHashCode            Code = 22
	Hashinate                Code = 23
)

// Status is the first byte of every ordinary reply (ExportAction is
// the sole exception — see driver.ExportAction).
type Status byte

const (
	StatusSuccess              Status = 0
	StatusGenericError         Status = 1
	StatusRetrieveDependency   Status = 100
	StatusDependencyFound      Status = 101
	StatusDependencyNotFound   Status = 102
	StatusCrash                Status = 104
)
