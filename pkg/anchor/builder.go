package anchor

import (
	"fmt"

	"github.com/fortiblox/stratus-harness/pkg/transaction"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// AccountRef is one named account of an instruction.
type AccountRef struct {
	Name       string
	Pubkey     types.Pubkey
	IsSigner   bool
	IsWritable bool
}

// Meta converts r to its wire form.
func (r AccountRef) Meta() transaction.AccountMeta {
	if r.IsWritable {
		return transaction.NewAccountMeta(r.Pubkey, r.IsSigner)
	}
	return transaction.NewReadonlyAccountMeta(r.Pubkey, r.IsSigner)
}

// AccountSet is a struct describing the accounts of an instruction, in
// order, the way an Anchor Accounts struct does.
type AccountSet interface {
	ToAccountMetas() []AccountRef
}

// Program creates instruction builders for one program.
type Program struct {
	ID  types.Pubkey
	IDL *IDL
}

// NewProgram returns a Program without an IDL.
func NewProgram(id types.Pubkey) *Program {
	return &Program{ID: id}
}

// Instruction starts building the named instruction.
func (p *Program) Instruction(name string) *InstructionBuilder {
	b := NewInstructionBuilder(p.ID, name)
	b.idl = p.IDL
	return b
}

// InstructionBuilder accumulates the accounts and arguments of one Anchor
// instruction. Methods chain; errors surface from Build.
type InstructionBuilder struct {
	programID types.Pubkey
	name      string
	idl       *IDL

	accounts []AccountRef
	index    map[string]int

	data    []byte
	dataSet bool
	err     error
}

// NewInstructionBuilder starts building the named instruction of programID.
func NewInstructionBuilder(programID types.Pubkey, name string) *InstructionBuilder {
	return &InstructionBuilder{
		programID: programID,
		name:      name,
		index:     make(map[string]int),
	}
}

// Name returns the instruction name.
func (b *InstructionBuilder) Name() string {
	return b.name
}

// ProgramID returns the program the instruction targets.
func (b *InstructionBuilder) ProgramID() types.Pubkey {
	return b.programID
}

// AccountWith appends an account with explicit flags.
func (b *InstructionBuilder) AccountWith(name string, addr types.Pubkey, writable, signer bool) *InstructionBuilder {
	b.index[name] = len(b.accounts)
	b.accounts = append(b.accounts, AccountRef{
		Name:       name,
		Pubkey:     addr,
		IsSigner:   signer,
		IsWritable: writable,
	})
	return b
}

// Account appends a read-only account.
func (b *InstructionBuilder) Account(name string, addr types.Pubkey) *InstructionBuilder {
	return b.AccountWith(name, addr, false, false)
}

// AccountMut appends a writable account.
func (b *InstructionBuilder) AccountMut(name string, addr types.Pubkey) *InstructionBuilder {
	return b.AccountWith(name, addr, true, false)
}

// Signer appends a writable signer.
func (b *InstructionBuilder) Signer(name string, addr types.Pubkey) *InstructionBuilder {
	return b.AccountWith(name, addr, true, true)
}

// SignerReadonly appends a read-only signer.
func (b *InstructionBuilder) SignerReadonly(name string, addr types.Pubkey) *InstructionBuilder {
	return b.AccountWith(name, addr, false, true)
}

// Accounts appends every account of set, in order.
func (b *InstructionBuilder) Accounts(set AccountSet) *InstructionBuilder {
	for _, ref := range set.ToAccountMetas() {
		b.AccountWith(ref.Name, ref.Pubkey, ref.IsWritable, ref.IsSigner)
	}
	return b
}

// SystemProgram appends the System Program as system_program.
func (b *InstructionBuilder) SystemProgram() *InstructionBuilder {
	return b.Account("system_program", types.SystemProgramAddr)
}

// TokenProgram appends the SPL Token program as token_program.
func (b *InstructionBuilder) TokenProgram() *InstructionBuilder {
	return b.Account("token_program", types.TokenProgramAddr)
}

// AssociatedTokenProgram appends the Associated Token program as
// associated_token_program.
func (b *InstructionBuilder) AssociatedTokenProgram() *InstructionBuilder {
	return b.Account("associated_token_program", types.AssociatedTokenProgramAddr)
}

// RentSysvar appends the Rent sysvar as rent.
func (b *InstructionBuilder) RentSysvar() *InstructionBuilder {
	return b.Account("rent", types.SysvarRentAddr)
}

// ClockSysvar appends the Clock sysvar as clock.
func (b *InstructionBuilder) ClockSysvar() *InstructionBuilder {
	return b.Account("clock", types.SysvarClockAddr)
}

// Args sets the instruction arguments, encoded positionally. Call it
// with no values for an instruction that takes none.
func (b *InstructionBuilder) Args(values ...interface{}) *InstructionBuilder {
	data, err := EncodeArgs(values...)
	if err != nil {
		if b.err == nil {
			b.err = &BuildError{Msg: fmt.Sprintf("failed to encode arguments of %s", b.name), Err: err}
		}
		return b
	}
	return b.ArgsData(data)
}

// ArgsData sets pre-encoded argument bytes, placed after the discriminator.
func (b *InstructionBuilder) ArgsData(data []byte) *InstructionBuilder {
	if b.dataSet {
		if b.err == nil {
			b.err = &BuildError{Msg: fmt.Sprintf("arguments of %s already set", b.name)}
		}
		return b
	}
	b.data = append([]byte(nil), data...)
	b.dataSet = true
	return b
}

// GetAccount returns the address last added under name.
func (b *InstructionBuilder) GetAccount(name string) (types.Pubkey, bool) {
	i, ok := b.index[name]
	if !ok {
		return types.Pubkey{}, false
	}
	return b.accounts[i].Pubkey, true
}

// AccountRefs returns the accounts in insertion order.
func (b *InstructionBuilder) AccountRefs() []AccountRef {
	out := make([]AccountRef, len(b.accounts))
	copy(out, b.accounts)
	return out
}

// Build returns the instruction. Accounts keep insertion order; the data
// is the discriminator followed by the arguments.
func (b *InstructionBuilder) Build() (transaction.Instruction, error) {
	if b.err != nil {
		return transaction.Instruction{}, b.err
	}
	if !b.dataSet {
		return transaction.Instruction{}, &BuildError{Msg: "No instruction data provided. Call .Args() before .Build()"}
	}

	disc := InstructionDiscriminator(b.name)
	if b.idl != nil {
		def, ok := b.idl.Instruction(b.name)
		if !ok {
			return transaction.Instruction{}, &BuildError{Msg: fmt.Sprintf("instruction %s not found in IDL %s", b.name, b.idl.Name())}
		}
		disc = def.Sighash()
	}

	metas := make([]transaction.AccountMeta, len(b.accounts))
	for i, ref := range b.accounts {
		metas[i] = ref.Meta()
	}

	data := make([]byte, 0, DiscriminatorSize+len(b.data))
	data = append(data, disc[:]...)
	data = append(data, b.data...)

	return transaction.NewInstruction(b.programID, data, metas...), nil
}

// Instructions returns Build's instruction as a one-element slice.
func (b *InstructionBuilder) Instructions() ([]transaction.Instruction, error) {
	ix, err := b.Build()
	if err != nil {
		return nil, err
	}
	return []transaction.Instruction{ix}, nil
}
