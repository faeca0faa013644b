package svm

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/transaction"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// MaxPermittedDataIncrease is how far a program other than the System
// Program may grow an account's data in one instruction.
const MaxPermittedDataIncrease = 10 * 1024

// AccountInfo is a program's view of one account during an instruction.
// Programs mutate it in place; changes are verified when the instruction
// (or a CPI it makes) completes.
type AccountInfo struct {
	Key        types.Pubkey
	Owner      types.Pubkey
	Lamports   uint64
	Data       []byte
	Executable bool
	RentEpoch  uint64
	IsSigner   bool
	IsWritable bool
}

// Resize changes the data length, zero-filling any new bytes.
func (a *AccountInfo) Resize(n int) {
	if n <= len(a.Data) {
		a.Data = a.Data[:n]
		return
	}
	data := make([]byte, n)
	copy(data, a.Data)
	a.Data = data
}

// IsOwnedBy reports whether program owns the account.
func (a *AccountInfo) IsOwnedBy(program types.Pubkey) bool {
	return a.Owner == program
}

func (a *AccountInfo) toAccount() *accounts.Account {
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return &accounts.Account{
		Lamports:   a.Lamports,
		Data:       data,
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
	}
}

func (a *AccountInfo) load(acc *accounts.Account) {
	a.Owner = acc.Owner
	a.Lamports = acc.Lamports
	a.Data = make([]byte, len(acc.Data))
	copy(a.Data, acc.Data)
	a.Executable = acc.Executable
	a.RentEpoch = acc.RentEpoch
}

// ReturnData is the data a program set with SetReturnData.
type ReturnData struct {
	ProgramID types.Pubkey
	Data      []byte
}

// InvokeContext is what a program sees while processing an instruction.
type InvokeContext interface {
	// ProgramID returns the id of the executing program.
	ProgramID() types.Pubkey

	// NumAccounts returns the number of accounts passed to the instruction.
	NumAccounts() int

	// GetAccount returns the account at the given instruction position.
	GetAccount(index int) (*AccountInfo, error)

	// AccountByKey returns the instruction account with the given address.
	AccountByKey(key types.Pubkey) (*AccountInfo, error)

	// GetRentMinimum returns the rent-exempt minimum for given data size.
	GetRentMinimum(dataLen uint64) uint64

	// Rent returns the Rent sysvar.
	Rent() Rent

	// Clock returns the Clock sysvar.
	Clock() Clock

	// Log records "Program log: <msg>".
	Log(msg string)

	// Logf formats and records a program log line.
	Logf(format string, args ...interface{})

	// EmitEvent records "Program data: <base64(data)>".
	EmitEvent(data []byte)

	// SetReturnData sets the transaction return data.
	SetReturnData(data []byte)

	// ConsumeCompute charges compute units against the transaction budget.
	ConsumeCompute(units uint64) error

	// RemainingCompute returns the compute units left in the budget.
	RemainingCompute() uint64

	// StackHeight returns 1 for a top-level instruction, 2 for its CPIs, and so on.
	StackHeight() int

	// Invoke executes ix as a cross-program invocation. Each entry of
	// signerSeeds derives a program address of the caller that signs ix.
	Invoke(ix transaction.Instruction, signerSeeds ...[][]byte) error
}

// txContext is the account table and log buffer shared by every frame
// of one transaction.
type txContext struct {
	registry   *Registry
	meter      *ComputeMeter
	keys       []types.Pubkey
	states     []*accounts.Account
	index      map[types.Pubkey]int
	logs       []string
	returnData *ReturnData
	clock      Clock
	rent       Rent
	stack      []types.Pubkey

	// abort holds the first failed CPI; a program cannot recover from it.
	abort error
}

func newTxContext(registry *Registry, meter *ComputeMeter, keys []types.Pubkey, states []*accounts.Account, clock Clock, rent Rent) *txContext {
	tc := &txContext{
		registry: registry,
		meter:    meter,
		keys:     keys,
		states:   states,
		index:    make(map[types.Pubkey]int, len(keys)),
		clock:    clock,
		rent:     rent,
	}
	for i, k := range keys {
		tc.index[k] = i
	}
	return tc
}

func (tc *txContext) log(format string, args ...interface{}) {
	tc.logs = append(tc.logs, fmt.Sprintf(format, args...))
}

// execute runs one instruction, top-level or nested, at the given depth.
func (tc *txContext) execute(programID types.Pubkey, metas []transaction.AccountMeta, data []byte, depth int) error {
	prog, baseCost, ok := tc.registry.Lookup(programID)
	if !ok {
		tc.log("Unknown program %s", programID)
		return ErrUnsupportedProgramID
	}

	// A program may call itself directly but not re-enter through another program.
	if n := len(tc.stack); n > 0 && tc.stack[n-1] != programID {
		for _, id := range tc.stack {
			if id == programID {
				tc.log("Program %s invoke [%d]", programID, depth)
				tc.log("Program %s failed: %v", programID, ErrReentrancyNotAllowed)
				return ErrReentrancyNotAllowed
			}
		}
	}

	f, err := tc.newFrame(programID, metas, depth)
	if err != nil {
		return err
	}

	tc.log("Program %s invoke [%d]", programID, depth)
	budget := tc.meter.Remaining()

	err = tc.meter.Consume(baseCost)
	if err == nil {
		tc.stack = append(tc.stack, programID)
		err = prog.Process(f, data)
		tc.stack = tc.stack[:len(tc.stack)-1]
		if tc.abort != nil {
			err = tc.abort
		}
	}
	if err == nil {
		err = f.verify(true)
	}
	if err == nil {
		f.commit()
	}

	tc.log("Program %s consumed %d of %d compute units", programID, budget-tc.meter.Remaining(), budget)
	if err != nil {
		tc.log("Program %s failed: %v", programID, err)
		return err
	}
	tc.log("Program %s success", programID)
	return nil
}

// frame is one program invocation.
type frame struct {
	tx        *txContext
	programID types.Pubkey
	depth     int

	// infos has one entry per instruction account; duplicates share a pointer.
	infos  []*AccountInfo
	unique []*AccountInfo
	pre    map[types.Pubkey]*accounts.Account

	preLamports uint64
}

func (tc *txContext) newFrame(programID types.Pubkey, metas []transaction.AccountMeta, depth int) (*frame, error) {
	f := &frame{
		tx:        tc,
		programID: programID,
		depth:     depth,
		infos:     make([]*AccountInfo, len(metas)),
		pre:       make(map[types.Pubkey]*accounts.Account, len(metas)),
	}

	byKey := make(map[types.Pubkey]*AccountInfo, len(metas))
	for i, m := range metas {
		if info, ok := byKey[m.PublicKey]; ok {
			info.IsSigner = info.IsSigner || m.IsSigner
			info.IsWritable = info.IsWritable || m.IsWritable
			f.infos[i] = info
			continue
		}

		idx, ok := tc.index[m.PublicKey]
		if !ok {
			return nil, ErrMissingAccount
		}
		state := tc.states[idx]
		info := &AccountInfo{
			Key:        m.PublicKey,
			IsSigner:   m.IsSigner,
			IsWritable: m.IsWritable,
		}
		info.load(state)

		byKey[m.PublicKey] = info
		f.infos[i] = info
		f.unique = append(f.unique, info)
		f.pre[m.PublicKey] = state.Clone()
		f.preLamports += state.Lamports
	}
	return f, nil
}

// verify checks every account against its state when the frame started
// (or when it last synced around a CPI). The lamport total is only
// compared once the program has returned.
func (f *frame) verify(final bool) error {
	var post uint64
	for _, info := range f.unique {
		if err := verifyAccount(f.programID, f.pre[info.Key], info); err != nil {
			return err
		}
		post += info.Lamports
	}
	if final && post != f.preLamports {
		return ErrUnbalancedInstruction
	}
	return nil
}

// commit writes the frame's accounts into the transaction table.
func (f *frame) commit() {
	for _, info := range f.unique {
		acc := info.toAccount()
		f.tx.states[f.tx.index[info.Key]] = acc
		f.pre[info.Key] = acc.Clone()
	}
}

// refresh reloads the frame's accounts after a CPI changed them.
func (f *frame) refresh() {
	for _, info := range f.unique {
		state := f.tx.states[f.tx.index[info.Key]]
		info.load(state)
		f.pre[info.Key] = state.Clone()
	}
}

func verifyAccount(programID types.Pubkey, pre *accounts.Account, post *AccountInfo) error {
	isWritable := post.IsWritable

	// Only the owner may assign a new owner, and only when the account is
	// writable, not executable, and its data is zeroed.
	if pre.Owner != post.Owner &&
		(!isWritable || pre.Executable || programID != pre.Owner || !isZeroed(post.Data)) {
		return ErrModifiedProgramID
	}

	// An account not owned by the program cannot have its balance decrease.
	if programID != pre.Owner && pre.Lamports > post.Lamports {
		return ErrExternalAccountLamportSpend
	}

	if pre.Lamports != post.Lamports {
		if !isWritable {
			return ErrReadonlyLamportChange
		}
		if pre.Executable {
			return ErrExecutableLamportChange
		}
	}

	if len(pre.Data) != len(post.Data) {
		if !isWritable || pre.Executable || programID != pre.Owner {
			return ErrInvalidRealloc
		}
		if len(post.Data) > accounts.MaxAccountDataSize {
			return ErrInvalidRealloc
		}
		if programID != types.SystemProgramAddr && len(post.Data) > len(pre.Data)+MaxPermittedDataIncrease {
			return ErrInvalidRealloc
		}
	}

	if !(programID == pre.Owner && isWritable && !pre.Executable) && !bytes.Equal(pre.Data, post.Data) {
		switch {
		case pre.Executable:
			return ErrExecutableDataModified
		case isWritable:
			return ErrExternalAccountDataModified
		default:
			return ErrReadonlyDataModified
		}
	}

	if pre.Executable != post.Executable {
		return ErrExecutableModified
	}

	if pre.RentEpoch != post.RentEpoch {
		return ErrRentEpochModified
	}

	return nil
}

func isZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

func (f *frame) ProgramID() types.Pubkey {
	return f.programID
}

func (f *frame) NumAccounts() int {
	return len(f.infos)
}

func (f *frame) GetAccount(index int) (*AccountInfo, error) {
	if index < 0 || index >= len(f.infos) {
		return nil, ErrNotEnoughAccountKeys
	}
	return f.infos[index], nil
}

func (f *frame) AccountByKey(key types.Pubkey) (*AccountInfo, error) {
	for _, info := range f.unique {
		if info.Key == key {
			return info, nil
		}
	}
	return nil, ErrMissingAccount
}

func (f *frame) GetRentMinimum(dataLen uint64) uint64 {
	return f.tx.rent.MinimumBalance(dataLen)
}

func (f *frame) Rent() Rent {
	return f.tx.rent
}

func (f *frame) Clock() Clock {
	return f.tx.clock
}

func (f *frame) Log(msg string) {
	f.tx.log("Program log: %s", msg)
}

func (f *frame) Logf(format string, args ...interface{}) {
	f.tx.log("Program log: %s", fmt.Sprintf(format, args...))
}

func (f *frame) EmitEvent(data []byte) {
	f.tx.log("Program data: %s", base64.StdEncoding.EncodeToString(data))
}

func (f *frame) SetReturnData(data []byte) {
	if len(data) == 0 {
		f.tx.returnData = nil
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.tx.returnData = &ReturnData{ProgramID: f.programID, Data: buf}
	f.tx.log("Program return: %s %s", f.programID, base64.StdEncoding.EncodeToString(buf))
}

func (f *frame) ConsumeCompute(units uint64) error {
	return f.tx.meter.Consume(units)
}

func (f *frame) RemainingCompute() uint64 {
	return f.tx.meter.Remaining()
}

func (f *frame) StackHeight() int {
	return f.depth
}

func (f *frame) Invoke(ix transaction.Instruction, signerSeeds ...[][]byte) error {
	err := f.invoke(ix, signerSeeds)
	if err != nil && f.tx.abort == nil {
		f.tx.abort = err
	}
	return err
}

func (f *frame) invoke(ix transaction.Instruction, signerSeeds [][][]byte) error {
	if f.depth > CPIDepthMax {
		return ErrCallDepth
	}
	if err := f.tx.meter.Consume(CUInvokeBase); err != nil {
		return err
	}

	signers := make(map[types.Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		if err := f.tx.meter.Consume(CUCreateProgramAddress); err != nil {
			return err
		}
		pda, err := types.CreateProgramAddress(seeds, f.programID)
		if err != nil {
			return ErrInvalidSeeds
		}
		signers[pda] = true
	}

	for _, m := range ix.Accounts {
		info, err := f.AccountByKey(m.PublicKey)
		if err != nil {
			f.tx.log("Instruction references an unknown account %s", m.PublicKey)
			return ErrMissingAccount
		}
		if m.IsWritable && !info.IsWritable {
			f.tx.log("%s's writable privilege escalated", m.PublicKey)
			return ErrPrivilegeEscalation
		}
		if m.IsSigner && !info.IsSigner && !signers[m.PublicKey] {
			f.tx.log("%s's signer privilege escalated", m.PublicKey)
			return ErrPrivilegeEscalation
		}
	}
	if !f.tx.registry.Has(ix.Program) {
		f.tx.log("Unknown program %s", ix.Program)
		return ErrMissingAccount
	}

	// Changes the caller made so far must be legal before the callee sees them.
	if err := f.verify(false); err != nil {
		return err
	}
	f.commit()

	if err := f.tx.execute(ix.Program, ix.Accounts, ix.Data, f.depth+1); err != nil {
		return err
	}

	f.refresh()
	return nil
}
