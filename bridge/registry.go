package bridge

import (
	"sync"

	"github.com/google/uuid"
)

// DataclassType is what the registry remembers about one host dataclass
// type: enough to reconstruct the original host shape on output (spec
// §6.1: "output reconstructs the original host type").
type DataclassType struct {
	ID         uuid.UUID
	Name       string
	FieldNames []string
}

// DataclassRegistry maps a dataclass's type_id (spec §6.1) to the shape
// the host registered it with, so FromInternal can round-trip a Dataclass
// value back into its original host type instead of falling back to a
// generic record. Grounded on the teacher's registry.Table (a dense,
// build-once-then-looked-up-many-times table), adapted from a function
// table to a keyed-by-identity one since dataclass types aren't known
// until the host first sends one.
//
// A single interpreter run is strictly single-threaded (spec §5), but the
// registry is exposed as a field the host may keep across runs (spec §6.3
// persisted state), so the mutex guards against a host that shares one
// registry between concurrently-running interpreter instances.
type DataclassRegistry struct {
	mu    sync.Mutex
	types map[uuid.UUID]DataclassType
}

// NewDataclassRegistry returns an empty registry.
func NewDataclassRegistry() *DataclassRegistry {
	return &DataclassRegistry{types: make(map[uuid.UUID]DataclassType)}
}

// Register records (or overwrites, if the host re-sends the same type_id
// with updated field names) a dataclass type's shape.
func (r *DataclassRegistry) Register(id uuid.UUID, name string, fieldNames []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[id] = DataclassType{ID: id, Name: name, FieldNames: append([]string(nil), fieldNames...)}
}

// Lookup returns the registered type for id, if any.
func (r *DataclassRegistry) Lookup(id uuid.UUID) (DataclassType, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.types[id]
	return t, ok
}
