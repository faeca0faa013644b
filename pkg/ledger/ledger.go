// Package ledger provides an in-process Solana ledger for tests.
//
// The Ledger ties together:
// - an accounts.DB holding every account, sysvars and program accounts included
// - a blockstore.Store recording executed transactions
// - an svm.Processor executing transactions against the accounts
// - the Clock and Rent sysvars and the recent blockhash
//
// Transactions execute synchronously, one at a time, in submission order.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/blockstore"
	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/associatedtoken"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/computebudget"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/system"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/token"
	"github.com/fortiblox/stratus-harness/pkg/transaction"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// Ledger errors.
var (
	ErrClosed          = errors.New("ledger is closed")
	ErrBalanceOverflow = errors.New("balance overflow")
	ErrReservedAccount = errors.New("account is reserved by the ledger")
)

// genesisSeed derives the first blockhash.
const genesisSeed = "stratus-harness genesis"

// TransactionMeta is the outcome of a transaction that reached execution.
type TransactionMeta struct {
	Signature            types.Signature
	Slot                 uint64
	Logs                 []string
	ComputeUnitsConsumed uint64
	ComputeUnitLimit     uint64
	Fee                  uint64
	ReturnData           *svm.ReturnData

	// Err is nil when every instruction succeeded.
	Err error
}

// Ledger is a simulated Solana cluster of one bank.
type Ledger struct {
	mu sync.Mutex

	db        accounts.DB
	history   blockstore.Store
	processor *svm.Processor
	log       *zap.Logger

	clock     svm.Clock
	rent      svm.Rent
	blockhash types.Hash

	closed bool
}

// New creates a ledger at slot 0 with the builtin programs and sysvars installed.
func New(opts ...Option) (*Ledger, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.db == nil {
		o.db = accounts.NewMemoryDB()
	}
	if o.history == nil {
		o.history = blockstore.NewMemoryStore()
	}

	l := &Ledger{
		db:        o.db,
		history:   o.history,
		processor: svm.NewProcessor(svm.NewRegistry(), o.svm),
		log:       o.logger,
		rent:      svm.DefaultRent(),
		blockhash: types.ComputeHash([]byte(genesisSeed)),
	}
	l.clock = svm.Clock{
		Slot:                o.db.GetSlot(),
		Epoch:               o.db.GetSlot() / svm.SlotsPerEpoch,
		LeaderScheduleEpoch: o.db.GetSlot()/svm.SlotsPerEpoch + 1,
	}

	// A persistent accounts db may already carry a clock.
	if acc, err := o.db.GetAccount(types.SysvarClockAddr); err == nil {
		if clock, err := svm.DecodeClock(acc.Data); err == nil {
			l.clock = clock
		}
	}

	if err := l.installBuiltins(o.builtins); err != nil {
		return nil, fmt.Errorf("install builtins: %w", err)
	}
	if err := l.writeSysvars(); err != nil {
		return nil, fmt.Errorf("write sysvars: %w", err)
	}

	l.log.Debug("ledger created",
		zap.Uint64("slot", l.clock.Slot),
		zap.Int("programs", len(l.processor.Registry().IDs())),
		zap.Bool("sig_verify", o.svm.SigVerify),
		zap.Bool("blockhash_check", o.svm.BlockhashCheck),
	)
	return l, nil
}

func (l *Ledger) installBuiltins(all bool) error {
	builtins := []struct {
		id   types.Pubkey
		name string
		prog svm.Program
		cost uint64
	}{
		{system.ProgramID, "system_program", system.NewProcessor(), svm.CUSystemProgramDefault},
	}
	if all {
		builtins = append(builtins, []struct {
			id   types.Pubkey
			name string
			prog svm.Program
			cost uint64
		}{
			{computebudget.ProgramID, "compute_budget_program", computebudget.NewProcessor(), svm.CUComputeBudgetDefault},
			{token.ProgramID, "spl_token", token.NewProcessor(), svm.CUTokenProgramDefault},
			{associatedtoken.ProgramID, "spl_associated_token_account", associatedtoken.NewProcessor(), svm.CUAssociatedTokenDefault},
		}...)
	}

	for _, b := range builtins {
		l.processor.Registry().Register(b.id, b.prog, b.cost)
		if b.id == system.ProgramID {
			// The System Program address doubles as the owner of every
			// wallet; it never gets an account of its own.
			continue
		}
		err := l.db.SetAccount(b.id, &accounts.Account{
			Lamports:   1,
			Data:       []byte(b.name),
			Owner:      types.NativeLoaderAddr,
			Executable: true,
		})
		if err != nil {
			return err
		}
	}

	if !all {
		return nil
	}

	nativeMint := token.Mint{Decimals: token.NativeDecimals, IsInitialized: true}
	return l.db.SetAccount(token.NativeMint, &accounts.Account{
		Lamports: l.rent.MinimumBalance(token.MintSize),
		Data:     nativeMint.Marshal(),
		Owner:    token.ProgramID,
	})
}

func (l *Ledger) writeSysvars() error {
	err := l.db.SetAccount(types.SysvarClockAddr, &accounts.Account{
		Lamports: l.rent.MinimumBalance(svm.ClockSize),
		Data:     l.clock.Encode(),
		Owner:    types.SysvarOwnerAddr,
	})
	if err != nil {
		return err
	}
	if err := l.db.SetAccount(types.SysvarRentAddr, &accounts.Account{
		Lamports: l.rent.MinimumBalance(svm.RentSize),
		Data:     l.rent.Encode(),
		Owner:    types.SysvarOwnerAddr,
	}); err != nil {
		return err
	}
	return l.db.SetSlot(l.clock.Slot)
}

// AddProgram deploys prog under id with the default invocation cost.
func (l *Ledger) AddProgram(id types.Pubkey, prog svm.Program) error {
	return l.AddProgramWithCost(id, prog, svm.CUProgramDefault)
}

// AddProgramWithCost deploys prog under id. baseCost compute units are
// charged on every invocation before the program runs.
func (l *Ledger) AddProgramWithCost(id types.Pubkey, prog svm.Program, baseCost uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if types.IsSysvar(id) || id == system.ProgramID {
		return fmt.Errorf("%w: %s", ErrReservedAccount, id)
	}

	l.processor.Registry().Register(id, prog, baseCost)
	if err := l.db.SetAccount(id, &accounts.Account{
		Lamports:   l.rent.MinimumBalance(0),
		Owner:      types.BPFLoaderUpgradeableAddr,
		Executable: true,
	}); err != nil {
		return fmt.Errorf("write program account: %w", err)
	}

	l.log.Debug("program deployed", zap.Stringer("program_id", id), zap.Uint64("base_cost", baseCost))
	return nil
}

// Programs returns the ids of every executable program.
func (l *Ledger) Programs() []types.Pubkey {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processor.Registry().IDs()
}

// Airdrop credits lamports to pubkey, creating a system account if needed.
func (l *Ledger) Airdrop(pubkey types.Pubkey, lamports uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	acc, err := l.db.GetAccount(pubkey)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		acc = &accounts.Account{Owner: types.SystemProgramAddr}
	} else if err != nil {
		return err
	}
	if acc.Lamports > ^uint64(0)-lamports {
		return ErrBalanceOverflow
	}
	acc.Lamports += lamports

	if err := l.db.SetAccount(pubkey, acc); err != nil {
		return err
	}
	l.log.Debug("airdrop", zap.Stringer("pubkey", pubkey), zap.Uint64("lamports", lamports))
	return nil
}

// GetAccount returns the account at pubkey or accounts.ErrAccountNotFound.
func (l *Ledger) GetAccount(pubkey types.Pubkey) (*accounts.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	return l.db.GetAccount(pubkey)
}

// SetAccount overwrites the account at pubkey. A zero account deletes it.
// Writing a sysvar account updates the ledger's copy of that sysvar.
func (l *Ledger) SetAccount(pubkey types.Pubkey, account *accounts.Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if account == nil {
		account = &accounts.Account{}
	}

	switch pubkey {
	case types.SysvarClockAddr:
		clock, err := svm.DecodeClock(account.Data)
		if err != nil {
			return fmt.Errorf("decode clock: %w", err)
		}
		l.clock = clock
	case types.SysvarRentAddr:
		rent, err := svm.DecodeRent(account.Data)
		if err != nil {
			return fmt.Errorf("decode rent: %w", err)
		}
		l.rent = rent
	}
	return l.db.SetAccount(pubkey, account)
}

// HasAccount reports whether an account exists at pubkey.
func (l *Ledger) HasAccount(pubkey types.Pubkey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	ok, err := l.db.HasAccount(pubkey)
	return err == nil && ok
}

// GetBalance returns the lamports at pubkey, zero if the account does not exist.
func (l *Ledger) GetBalance(pubkey types.Pubkey) uint64 {
	acc, err := l.GetAccount(pubkey)
	if err != nil {
		return 0
	}
	return acc.Lamports
}

// MinimumBalanceForRentExemption returns the lamports an account with
// dataLen bytes needs to be rent exempt.
func (l *Ledger) MinimumBalanceForRentExemption(dataLen uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rent.MinimumBalance(dataLen)
}

// LatestBlockhash returns the only blockhash transactions may reference.
func (l *Ledger) LatestBlockhash() types.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blockhash
}

// ExpireBlockhash replaces the latest blockhash, invalidating transactions
// built against the old one.
func (l *Ledger) ExpireBlockhash() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rotateBlockhash()
}

func (l *Ledger) rotateBlockhash() {
	var slot [8]byte
	binary.LittleEndian.PutUint64(slot[:], l.clock.Slot)
	l.blockhash = types.ComputeHash(l.blockhash[:], slot[:])
}

// Clock returns the Clock sysvar.
func (l *Ledger) Clock() svm.Clock {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clock
}

// SetClock replaces the Clock sysvar.
func (l *Ledger) SetClock(clock svm.Clock) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	l.clock = clock
	return l.writeSysvars()
}

// Rent returns the Rent sysvar.
func (l *Ledger) Rent() svm.Rent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rent
}

// WarpToSlot moves the clock to slot, updating the epoch and the blockhash.
func (l *Ledger) WarpToSlot(slot uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	epoch := slot / svm.SlotsPerEpoch
	if epoch != l.clock.Epoch {
		l.clock.EpochStartTimestamp = l.clock.UnixTimestamp
	}
	l.clock.Slot = slot
	l.clock.Epoch = epoch
	l.clock.LeaderScheduleEpoch = epoch + 1
	l.rotateBlockhash()

	l.log.Debug("warped", zap.Uint64("slot", slot), zap.Uint64("epoch", epoch))
	return l.writeSysvars()
}

// SendTransaction executes tx and commits its effects.
//
// A transaction rejected before execution returns a nil meta and the
// rejection. One that executed returns its meta, and meta.Err as the
// error if an instruction failed; its fee is charged either way.
func (l *Ledger) SendTransaction(tx *transaction.Transaction) (*TransactionMeta, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}

	result, err := l.processor.Process(bankView{l}, tx)
	if err != nil {
		l.log.Debug("transaction rejected", zap.Stringer("signature", tx.Signature()), zap.Error(err))
		return nil, err
	}

	if err := l.db.ApplyBatch(result.Writes); err != nil {
		return nil, fmt.Errorf("commit accounts: %w", err)
	}

	meta := l.newMeta(result)
	if err := l.history.PutTransaction(l.historyRecord(tx, meta)); err != nil {
		return nil, fmt.Errorf("record transaction: %w", err)
	}

	fields := []zap.Field{
		zap.Stringer("signature", meta.Signature),
		zap.Uint64("slot", meta.Slot),
		zap.Uint64("compute_units", meta.ComputeUnitsConsumed),
		zap.Uint64("fee", meta.Fee),
		zap.Bool("success", meta.Err == nil),
	}
	if meta.Err != nil {
		fields = append(fields, zap.Error(meta.Err))
	}
	l.log.Debug("transaction executed", fields...)

	return meta, meta.Err
}

// SimulateTransaction executes tx without committing or recording it.
func (l *Ledger) SimulateTransaction(tx *transaction.Transaction) (*TransactionMeta, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}

	result, err := l.processor.Process(bankView{l}, tx)
	if err != nil {
		return nil, err
	}
	meta := l.newMeta(result)
	return meta, meta.Err
}

func (l *Ledger) newMeta(result *svm.Result) *TransactionMeta {
	return &TransactionMeta{
		Signature:            result.Signature,
		Slot:                 l.clock.Slot,
		Logs:                 result.Logs,
		ComputeUnitsConsumed: result.ComputeUnitsConsumed,
		ComputeUnitLimit:     result.ComputeUnitLimit,
		Fee:                  result.Fee,
		ReturnData:           result.ReturnData,
		Err:                  result.Err,
	}
}

func (l *Ledger) historyRecord(tx *transaction.Transaction, meta *TransactionMeta) *blockstore.Transaction {
	record := &blockstore.Transaction{
		Signature:   meta.Signature,
		Slot:        meta.Slot,
		BlockTime:   l.clock.UnixTimestamp,
		AccountKeys: tx.Message.Accounts,
		Meta: &blockstore.TransactionMeta{
			Fee:                  meta.Fee,
			LogMessages:          meta.Logs,
			ComputeUnitsConsumed: meta.ComputeUnitsConsumed,
		},
	}
	if meta.ReturnData != nil {
		record.Meta.ReturnData = &blockstore.ReturnData{
			ProgramID: meta.ReturnData.ProgramID,
			Data:      meta.ReturnData.Data,
		}
	}
	if meta.Err != nil {
		record.Meta.Err = &blockstore.TransactionError{InstructionIndex: -1, Message: meta.Err.Error()}
		var ixErr *svm.InstructionError
		if errors.As(meta.Err, &ixErr) {
			record.Meta.Err.InstructionIndex = ixErr.Index
		}
	}
	return record
}

// GetTransaction returns a recorded transaction.
func (l *Ledger) GetTransaction(sig types.Signature) (*blockstore.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	return l.history.GetTransaction(sig)
}

// GetSignaturesForAddress returns the signatures of recorded transactions
// that referenced address, newest first.
func (l *Ledger) GetSignaturesForAddress(address types.Pubkey, limit int) ([]blockstore.SignatureInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	return l.history.GetSignaturesForAddress(address, &blockstore.SignatureQueryOptions{Limit: limit})
}

// StateHash returns a fingerprint of every account in the ledger.
func (l *Ledger) StateHash() (types.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return types.Hash{}, ErrClosed
	}
	return accounts.ComputeStateHash(l.db)
}

// SaveSnapshot writes every account to a compressed snapshot at path.
func (l *Ledger) SaveSnapshot(path string) (*accounts.SnapshotHeader, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	header, err := accounts.WriteSnapshot(l.db, path)
	if err != nil {
		return nil, err
	}
	l.log.Debug("snapshot saved",
		zap.String("path", path),
		zap.Uint64("slot", header.Slot),
		zap.Uint64("accounts", header.AccountsCount),
		zap.Stringer("state_hash", header.StateHash),
	)
	return header, nil
}

// LoadSnapshot replaces every account with the snapshot at path. The clock
// and rent sysvars are reloaded from the snapshot's sysvar accounts.
func (l *Ledger) LoadSnapshot(path string) (*accounts.SnapshotHeader, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	header, err := accounts.LoadSnapshot(l.db, path)
	if err != nil {
		return nil, err
	}

	if acc, err := l.db.GetAccount(types.SysvarClockAddr); err == nil {
		if clock, err := svm.DecodeClock(acc.Data); err == nil {
			l.clock = clock
		}
	}
	if acc, err := l.db.GetAccount(types.SysvarRentAddr); err == nil {
		if rent, err := svm.DecodeRent(acc.Data); err == nil {
			l.rent = rent
		}
	}
	l.rotateBlockhash()

	l.log.Debug("snapshot loaded",
		zap.String("path", path),
		zap.Uint64("slot", header.Slot),
		zap.Uint64("accounts", header.AccountsCount),
	)
	return header, nil
}

// Close closes the accounts db and the transaction history.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	dbErr := l.db.Close()
	histErr := l.history.Close()
	if dbErr != nil {
		return fmt.Errorf("close accounts: %w", dbErr)
	}
	if histErr != nil {
		return fmt.Errorf("close history: %w", histErr)
	}
	return nil
}

// bankView is the ledger as the processor sees it while the ledger lock is held.
type bankView struct {
	l *Ledger
}

func (b bankView) GetAccount(pubkey types.Pubkey) (*accounts.Account, error) {
	return b.l.db.GetAccount(pubkey)
}

func (b bankView) IsBlockhashValid(hash types.Hash) bool {
	return hash == b.l.blockhash
}

func (b bankView) HasSignature(sig types.Signature) bool {
	return b.l.history.HasTransaction(sig)
}

func (b bankView) Clock() svm.Clock {
	return b.l.clock
}

func (b bankView) Rent() svm.Rent {
	return b.l.rent
}
