package uptimemesh

import "errors"

// ErrConflict signals that a conditional (LWT-style) write lost a version
// race. No store adapter operation returns it: heartbeat upserts overwrite
// unconditionally and result appends ignore duplicates.
var ErrConflict = errors.New("uptimemesh: conditional write conflict")

// ErrNotFound is returned when a lookup by id has no matching row.
var ErrNotFound = errors.New("uptimemesh: not found")

// ErrFenced describes a node that has self-fenced (NodeDead) and must not
// start new probes. The probe executor does not return it (Probe has no
// error result); the dispatch in cmd/uptimemesh-node checks IsFenced and
// skips the probe instead.
var ErrFenced = errors.New("uptimemesh: node is self-fenced, refusing new probes")
