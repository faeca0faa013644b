package svm

import (
	"sort"

	"github.com/fortiblox/stratus-harness/pkg/types"
)

// Program is an on-chain program implemented in Go.
type Program interface {
	// Process executes one instruction. data is the raw instruction data.
	Process(ctx InvokeContext, data []byte) error
}

// ProgramFunc adapts a function to Program.
type ProgramFunc func(ctx InvokeContext, data []byte) error

// Process calls f(ctx, data).
func (f ProgramFunc) Process(ctx InvokeContext, data []byte) error {
	return f(ctx, data)
}

type registeredProgram struct {
	program  Program
	baseCost uint64
}

// Registry maps program ids to their implementations.
type Registry struct {
	programs map[types.Pubkey]registeredProgram
}

// NewRegistry creates an empty program registry.
func NewRegistry() *Registry {
	return &Registry{
		programs: make(map[types.Pubkey]registeredProgram),
	}
}

// Register installs prog under id, replacing any earlier program.
// baseCost is charged every time the program is invoked.
func (r *Registry) Register(id types.Pubkey, prog Program, baseCost uint64) {
	r.programs[id] = registeredProgram{program: prog, baseCost: baseCost}
}

// Lookup returns the program registered under id.
func (r *Registry) Lookup(id types.Pubkey) (Program, uint64, bool) {
	p, ok := r.programs[id]
	return p.program, p.baseCost, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id types.Pubkey) bool {
	_, ok := r.programs[id]
	return ok
}

// IDs returns the registered program ids in ascending order.
func (r *Registry) IDs() []types.Pubkey {
	ids := make([]types.Pubkey, 0, len(r.programs))
	for id := range r.programs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	return ids
}
