// Package dependency defines the data types exchanged during the
// mid-reply dependency callback sub-protocol and the two shapes a
// completed plan-fragment reply can take.
package dependency

// Table is an opaque, self-contained serialized table body. The
// catalog/table data model is out of scope for this driver: it never
// interprets the bytes, only frames and forwards them.
type Table []byte

// ResultTableSet is returned for QueryPlanFragments and
// CustomPlanFragment: a dirty flag and, per requested fragment, exactly
// one table (the dependency count and dependency id fields that precede
// each table on the wire are read and discarded — see
// DecodeResultTableSet in package reply).
type ResultTableSet struct {
	Dirty  bool
	Tables []Table
}

// DependencySet is returned for PlanFragment: a dirty flag and an
// arbitrary number of (dependency id, table) pairs.
type DependencySet struct {
	Dirty  bool
	DepIDs []uint32
	Tables []Table
}

// Source supplies dependency tables to the driver on demand while a
// reply from the EE is still in flight. It is the driver's only way of
// answering the EE's mid-reply RETRIEVE_DEPENDENCY callback.
type Source interface {
	// NextDependency returns the serialized table for depID, or
	// ok=false if the coordinator has no such dependency available.
	NextDependency(depID uint32) (table Table, ok bool)
}
