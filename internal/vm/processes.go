package vm

import (
	"sync"

	"github.com/pablos123/paldos/internal/common"
)

// ProcessTable is the running-process table keyed by SpaceId (spec §9
// "Raw pointer graphs → arenas + stable ids": "running processes are
// indexed by SpaceId in a sparse table keyed by integer"). Eviction uses
// it to resolve a core-map entry's owning SpaceId back to a live
// AddrSpace, and to detect the "process exited mid-eviction" case (spec
// §9's "weak references from a page-table entry to a victim's owning
// process").
type ProcessTable struct {
	mu     sync.Mutex
	nextID common.SpaceId
	spaces map[common.SpaceId]*AddrSpace
}

// NewProcessTable constructs an empty table.
func NewProcessTable() *ProcessTable {
	return &ProcessTable{spaces: make(map[common.SpaceId]*AddrSpace)}
}

// NewSpaceId allocates the next unused SpaceId, used by the Exec syscall
// handler before constructing the AddrSpace it will register.
func (pt *ProcessTable) NewSpaceId() common.SpaceId {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.nextID++
	return pt.nextID
}

// Register records as under its own SpaceId.
func (pt *ProcessTable) Register(as *AddrSpace) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.spaces[as.SpaceId()] = as
}

// Unregister drops space from the table, called when its owning thread
// finishes (spec §3 "Lifecycles").
func (pt *ProcessTable) Unregister(space common.SpaceId) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	delete(pt.spaces, space)
}

// Lookup resolves space to its live AddrSpace, or false if it has already
// exited — the "dangling core-map entry" case from spec §9, to be treated
// as "nothing to write back."
func (pt *ProcessTable) Lookup(space common.SpaceId) (*AddrSpace, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	as, ok := pt.spaces[space]
	return as, ok
}
