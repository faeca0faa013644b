// Package token implements the SPL Token program natively.
//
// Only single-owner authorities are supported; multisig accounts are not.
package token

import (
	"encoding/binary"

	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// ProgramID is the address of the token program.
//
// Current key: TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA
var ProgramID = types.TokenProgramAddr

// NativeMint is the mint of wrapped SOL.
var NativeMint = types.NativeMintAddr

// NativeDecimals is the number of decimals of wrapped SOL.
const NativeDecimals = 9

type Command byte

const (
	CommandInitializeMint Command = iota
	CommandInitializeAccount
	CommandInitializeMultisig
	CommandTransfer
	CommandApprove
	CommandRevoke
	CommandSetAuthority
	CommandMintTo
	CommandBurn
	CommandCloseAccount
	CommandFreezeAccount
	CommandThawAccount
	CommandTransferChecked
	CommandApproveChecked
	CommandMintToChecked
	CommandBurnChecked
	CommandInitializeAccount2
	CommandSyncNative
	CommandInitializeAccount3
	CommandInitializeMultisig2
	CommandInitializeMint2
)

const (
	ErrorNotRentExempt svm.CustomError = iota
	ErrorInsufficientFunds
	ErrorInvalidMint
	ErrorMintMismatch
	ErrorOwnerMismatch
	ErrorFixedSupply
	ErrorAlreadyInUse
	ErrorInvalidNumberOfProvidedSigners
	ErrorInvalidNumberOfRequiredSigners
	ErrorUninitializedState
	ErrorNativeNotSupported
	ErrorNonNativeHasBalance
	ErrorInvalidInstruction
	ErrorInvalidState
	ErrorOverflow
	ErrorAuthorityTypeNotSupported
	ErrorMintCannotFreeze
	ErrorAccountFrozen
	ErrorMintDecimalsMismatch
	ErrorNonNativeNotSupported
)

var errorMessages = map[svm.CustomError]string{
	ErrorNotRentExempt:                  "Lamport balance below rent-exempt threshold",
	ErrorInsufficientFunds:              "insufficient funds",
	ErrorInvalidMint:                    "Invalid Mint",
	ErrorMintMismatch:                   "Account not associated with this Mint",
	ErrorOwnerMismatch:                  "owner does not match",
	ErrorFixedSupply:                    "the total supply of this token is fixed",
	ErrorAlreadyInUse:                   "account or token already in use",
	ErrorInvalidNumberOfProvidedSigners: "Invalid number of provided signers",
	ErrorInvalidNumberOfRequiredSigners: "Invalid number of required signers",
	ErrorUninitializedState:             "State is uninitialized",
	ErrorNativeNotSupported:             "Instruction does not support native tokens",
	ErrorNonNativeHasBalance:            "Non-native account can only be closed if its balance is zero",
	ErrorInvalidInstruction:             "Invalid instruction",
	ErrorInvalidState:                   "State is invalid for requested operation",
	ErrorOverflow:                       "Operation overflowed",
	ErrorAuthorityTypeNotSupported:      "Account does not support specified authority type",
	ErrorMintCannotFreeze:               "This token mint cannot freeze accounts",
	ErrorAccountFrozen:                  "Account is frozen",
	ErrorMintDecimalsMismatch:           "The provided decimals value different from the Mint decimals",
	ErrorNonNativeNotSupported:          "Instruction does not support non-native tokens",
}

// ErrorMessage returns the description of a token program error code.
func ErrorMessage(code uint32) (string, bool) {
	msg, ok := errorMessages[svm.CustomError(code)]
	return msg, ok
}

type AuthorityType byte

const (
	AuthorityTypeMintTokens AuthorityType = iota
	AuthorityTypeFreezeAccount
	AuthorityTypeAccountHolder
	AuthorityTypeCloseAccount
)

// Processor executes token program instructions.
type Processor struct{}

func NewProcessor() *Processor {
	return &Processor{}
}

// Process executes a token instruction, logging the description of any
// token error it fails with.
func (p *Processor) Process(ctx svm.InvokeContext, data []byte) error {
	err := p.process(ctx, data)
	if code, ok := err.(svm.CustomError); ok {
		if msg, ok := errorMessages[code]; ok {
			ctx.Log("Error: " + msg)
		}
	}
	return err
}

func (p *Processor) process(ctx svm.InvokeContext, data []byte) error {
	if len(data) == 0 {
		return ErrorInvalidInstruction
	}

	r := &reader{data: data[1:]}
	switch Command(data[0]) {
	case CommandInitializeMint:
		ctx.Log("Instruction: InitializeMint")
		return p.processInitializeMint(ctx, r)
	case CommandInitializeMint2:
		ctx.Log("Instruction: InitializeMint2")
		return p.processInitializeMint(ctx, r)
	case CommandInitializeAccount:
		ctx.Log("Instruction: InitializeAccount")
		return p.processInitializeAccount(ctx, nil)
	case CommandInitializeAccount2, CommandInitializeAccount3:
		if Command(data[0]) == CommandInitializeAccount2 {
			ctx.Log("Instruction: InitializeAccount2")
		} else {
			ctx.Log("Instruction: InitializeAccount3")
		}
		owner := r.pubkey()
		if r.err != nil {
			return r.err
		}
		return p.processInitializeAccount(ctx, &owner)
	case CommandTransfer:
		ctx.Log("Instruction: Transfer")
		return p.processTransfer(ctx, r, false)
	case CommandTransferChecked:
		ctx.Log("Instruction: TransferChecked")
		return p.processTransfer(ctx, r, true)
	case CommandApprove:
		ctx.Log("Instruction: Approve")
		return p.processApprove(ctx, r, false)
	case CommandApproveChecked:
		ctx.Log("Instruction: ApproveChecked")
		return p.processApprove(ctx, r, true)
	case CommandRevoke:
		ctx.Log("Instruction: Revoke")
		return p.processRevoke(ctx)
	case CommandSetAuthority:
		ctx.Log("Instruction: SetAuthority")
		return p.processSetAuthority(ctx, r)
	case CommandMintTo:
		ctx.Log("Instruction: MintTo")
		return p.processMintTo(ctx, r, false)
	case CommandMintToChecked:
		ctx.Log("Instruction: MintToChecked")
		return p.processMintTo(ctx, r, true)
	case CommandBurn:
		ctx.Log("Instruction: Burn")
		return p.processBurn(ctx, r, false)
	case CommandBurnChecked:
		ctx.Log("Instruction: BurnChecked")
		return p.processBurn(ctx, r, true)
	case CommandCloseAccount:
		ctx.Log("Instruction: CloseAccount")
		return p.processCloseAccount(ctx)
	case CommandFreezeAccount:
		ctx.Log("Instruction: FreezeAccount")
		return p.processToggleFreeze(ctx, true)
	case CommandThawAccount:
		ctx.Log("Instruction: ThawAccount")
		return p.processToggleFreeze(ctx, false)
	case CommandSyncNative:
		ctx.Log("Instruction: SyncNative")
		return p.processSyncNative(ctx)
	default:
		return ErrorInvalidInstruction
	}
}

// processInitializeMint initializes a mint: [0] mint, [1] rent sysvar (v1 only).
func (p *Processor) processInitializeMint(ctx svm.InvokeContext, r *reader) error {
	decimals := r.u8()
	mintAuthority := r.pubkey()
	freezeAuthority := r.optionalPubkey()
	if r.err != nil {
		return r.err
	}

	info, err := ctx.GetAccount(0)
	if err != nil {
		return err
	}
	if !info.IsOwnedBy(ProgramID) {
		return svm.ErrIncorrectProgramID
	}
	if len(info.Data) != MintSize {
		return svm.ErrInvalidAccountData
	}

	var mint Mint
	mint.Unmarshal(info.Data)
	if mint.IsInitialized {
		return ErrorAlreadyInUse
	}
	if !ctx.Rent().IsExempt(info.Lamports, uint64(len(info.Data))) {
		return ErrorNotRentExempt
	}

	mint = Mint{
		MintAuthority:   &mintAuthority,
		Decimals:        decimals,
		IsInitialized:   true,
		FreezeAuthority: freezeAuthority,
	}
	copy(info.Data, mint.Marshal())
	return nil
}

// processInitializeAccount initializes a token account: [0] account, [1] mint,
// then [2] owner when owner is not carried in the instruction data.
func (p *Processor) processInitializeAccount(ctx svm.InvokeContext, owner *types.Pubkey) error {
	info, err := ctx.GetAccount(0)
	if err != nil {
		return err
	}
	mintInfo, err := ctx.GetAccount(1)
	if err != nil {
		return err
	}
	if owner == nil {
		ownerInfo, err := ctx.GetAccount(2)
		if err != nil {
			return err
		}
		owner = &ownerInfo.Key
	}

	if !info.IsOwnedBy(ProgramID) {
		return svm.ErrIncorrectProgramID
	}
	if len(info.Data) != AccountSize {
		return svm.ErrInvalidAccountData
	}

	var account Account
	account.Unmarshal(info.Data)
	if account.State != AccountStateUninitialized {
		return ErrorAlreadyInUse
	}

	reserve := ctx.Rent().MinimumBalance(uint64(len(info.Data)))
	if info.Lamports < reserve {
		return ErrorNotRentExempt
	}

	isNative := mintInfo.Key == NativeMint
	if !isNative {
		if !mintInfo.IsOwnedBy(ProgramID) {
			return svm.ErrIncorrectProgramID
		}
		if _, err := unpackMint(mintInfo); err != nil {
			return ErrorInvalidMint
		}
	}

	account = Account{
		Mint:  mintInfo.Key,
		Owner: *owner,
		State: AccountStateInitialized,
	}
	if isNative {
		account.IsNative = &reserve
		account.Amount = info.Lamports - reserve
	}
	copy(info.Data, account.Marshal())
	return nil
}

// processTransfer moves tokens: [0] source, [1] mint (checked only),
// [1|2] destination, [2|3] owner or delegate.
func (p *Processor) processTransfer(ctx svm.InvokeContext, r *reader, checked bool) error {
	amount := r.u64()
	var decimals uint8
	if checked {
		decimals = r.u8()
	}
	if r.err != nil {
		return r.err
	}

	idx := 0
	sourceInfo, err := ctx.GetAccount(idx)
	if err != nil {
		return err
	}
	idx++

	var mintInfo *svm.AccountInfo
	if checked {
		if mintInfo, err = ctx.GetAccount(idx); err != nil {
			return err
		}
		idx++
	}

	destInfo, err := ctx.GetAccount(idx)
	if err != nil {
		return err
	}
	authorityInfo, err := ctx.GetAccount(idx + 1)
	if err != nil {
		return err
	}

	source, err := unpackAccount(sourceInfo)
	if err != nil {
		return err
	}
	dest, err := unpackAccount(destInfo)
	if err != nil {
		return err
	}

	if source.IsFrozen() || dest.IsFrozen() {
		return ErrorAccountFrozen
	}
	if source.Amount < amount {
		return ErrorInsufficientFunds
	}
	if source.Mint != dest.Mint {
		return ErrorMintMismatch
	}

	if checked {
		if mintInfo.Key != source.Mint {
			return ErrorMintMismatch
		}
		mint, err := unpackMint(mintInfo)
		if err != nil {
			return err
		}
		if mint.Decimals != decimals {
			return ErrorMintDecimalsMismatch
		}
	}

	if err := authorizeSpend(source, authorityInfo, amount); err != nil {
		return err
	}

	// A self-transfer only validates the authority.
	if sourceInfo.Key == destInfo.Key {
		return nil
	}

	if dest.Amount > ^uint64(0)-amount {
		return ErrorOverflow
	}
	source.Amount -= amount
	dest.Amount += amount

	if source.IsNative != nil {
		if sourceInfo.Lamports < amount || destInfo.Lamports > ^uint64(0)-amount {
			return ErrorOverflow
		}
		sourceInfo.Lamports -= amount
		destInfo.Lamports += amount
	}

	copy(sourceInfo.Data, source.Marshal())
	copy(destInfo.Data, dest.Marshal())
	return nil
}

// processApprove sets a delegate: [0] source, [1] mint (checked only),
// [1|2] delegate, [2|3] owner.
func (p *Processor) processApprove(ctx svm.InvokeContext, r *reader, checked bool) error {
	amount := r.u64()
	var decimals uint8
	if checked {
		decimals = r.u8()
	}
	if r.err != nil {
		return r.err
	}

	idx := 0
	sourceInfo, err := ctx.GetAccount(idx)
	if err != nil {
		return err
	}
	idx++

	var mintInfo *svm.AccountInfo
	if checked {
		if mintInfo, err = ctx.GetAccount(idx); err != nil {
			return err
		}
		idx++
	}

	delegateInfo, err := ctx.GetAccount(idx)
	if err != nil {
		return err
	}
	ownerInfo, err := ctx.GetAccount(idx + 1)
	if err != nil {
		return err
	}

	source, err := unpackAccount(sourceInfo)
	if err != nil {
		return err
	}
	if source.IsFrozen() {
		return ErrorAccountFrozen
	}

	if checked {
		if mintInfo.Key != source.Mint {
			return ErrorMintMismatch
		}
		mint, err := unpackMint(mintInfo)
		if err != nil {
			return err
		}
		if mint.Decimals != decimals {
			return ErrorMintDecimalsMismatch
		}
	}

	if err := validateOwner(source.Owner, ownerInfo); err != nil {
		return err
	}

	delegate := delegateInfo.Key
	source.Delegate = &delegate
	source.DelegatedAmount = amount
	copy(sourceInfo.Data, source.Marshal())
	return nil
}

// processRevoke clears the delegate: [0] source, [1] owner.
func (p *Processor) processRevoke(ctx svm.InvokeContext) error {
	sourceInfo, err := ctx.GetAccount(0)
	if err != nil {
		return err
	}
	ownerInfo, err := ctx.GetAccount(1)
	if err != nil {
		return err
	}

	source, err := unpackAccount(sourceInfo)
	if err != nil {
		return err
	}
	if source.IsFrozen() {
		return ErrorAccountFrozen
	}
	if err := validateOwner(source.Owner, ownerInfo); err != nil {
		return err
	}

	source.Delegate = nil
	source.DelegatedAmount = 0
	copy(sourceInfo.Data, source.Marshal())
	return nil
}

// processSetAuthority changes an authority of a mint or account:
// [0] mint or account, [1] current authority.
func (p *Processor) processSetAuthority(ctx svm.InvokeContext, r *reader) error {
	authorityType := AuthorityType(r.u8())
	newAuthority := r.optionalPubkey()
	if r.err != nil {
		return r.err
	}

	info, err := ctx.GetAccount(0)
	if err != nil {
		return err
	}
	authorityInfo, err := ctx.GetAccount(1)
	if err != nil {
		return err
	}

	switch len(info.Data) {
	case AccountSize:
		account, err := unpackAccount(info)
		if err != nil {
			return err
		}
		if account.IsFrozen() {
			return ErrorAccountFrozen
		}

		switch authorityType {
		case AuthorityTypeAccountHolder:
			if err := validateOwner(account.Owner, authorityInfo); err != nil {
				return err
			}
			if newAuthority == nil {
				return ErrorInvalidInstruction
			}
			account.Owner = *newAuthority
			account.Delegate = nil
			account.DelegatedAmount = 0
			if account.IsNative != nil {
				account.CloseAuthority = nil
			}
		case AuthorityTypeCloseAccount:
			authority := account.Owner
			if account.CloseAuthority != nil {
				authority = *account.CloseAuthority
			}
			if err := validateOwner(authority, authorityInfo); err != nil {
				return err
			}
			account.CloseAuthority = newAuthority
		default:
			return ErrorAuthorityTypeNotSupported
		}
		copy(info.Data, account.Marshal())

	case MintSize:
		mint, err := unpackMint(info)
		if err != nil {
			return err
		}

		switch authorityType {
		case AuthorityTypeMintTokens:
			if mint.MintAuthority == nil {
				return ErrorFixedSupply
			}
			if err := validateOwner(*mint.MintAuthority, authorityInfo); err != nil {
				return err
			}
			mint.MintAuthority = newAuthority
		case AuthorityTypeFreezeAccount:
			if mint.FreezeAuthority == nil {
				return ErrorMintCannotFreeze
			}
			if err := validateOwner(*mint.FreezeAuthority, authorityInfo); err != nil {
				return err
			}
			mint.FreezeAuthority = newAuthority
		default:
			return ErrorAuthorityTypeNotSupported
		}
		copy(info.Data, mint.Marshal())

	default:
		return svm.ErrInvalidArgument
	}
	return nil
}

// processMintTo mints new tokens: [0] mint, [1] destination, [2] mint authority.
func (p *Processor) processMintTo(ctx svm.InvokeContext, r *reader, checked bool) error {
	amount := r.u64()
	var decimals uint8
	if checked {
		decimals = r.u8()
	}
	if r.err != nil {
		return r.err
	}

	mintInfo, err := ctx.GetAccount(0)
	if err != nil {
		return err
	}
	destInfo, err := ctx.GetAccount(1)
	if err != nil {
		return err
	}
	authorityInfo, err := ctx.GetAccount(2)
	if err != nil {
		return err
	}

	dest, err := unpackAccount(destInfo)
	if err != nil {
		return err
	}
	if dest.IsFrozen() {
		return ErrorAccountFrozen
	}
	if dest.IsNative != nil {
		return ErrorNativeNotSupported
	}
	if mintInfo.Key != dest.Mint {
		return ErrorMintMismatch
	}

	mint, err := unpackMint(mintInfo)
	if err != nil {
		return err
	}
	if checked && mint.Decimals != decimals {
		return ErrorMintDecimalsMismatch
	}
	if mint.MintAuthority == nil {
		return ErrorFixedSupply
	}
	if err := validateOwner(*mint.MintAuthority, authorityInfo); err != nil {
		return err
	}

	if dest.Amount > ^uint64(0)-amount || mint.Supply > ^uint64(0)-amount {
		return ErrorOverflow
	}
	dest.Amount += amount
	mint.Supply += amount

	copy(destInfo.Data, dest.Marshal())
	copy(mintInfo.Data, mint.Marshal())
	return nil
}

// processBurn destroys tokens: [0] account, [1] mint, [2] owner or delegate.
func (p *Processor) processBurn(ctx svm.InvokeContext, r *reader, checked bool) error {
	amount := r.u64()
	var decimals uint8
	if checked {
		decimals = r.u8()
	}
	if r.err != nil {
		return r.err
	}

	sourceInfo, err := ctx.GetAccount(0)
	if err != nil {
		return err
	}
	mintInfo, err := ctx.GetAccount(1)
	if err != nil {
		return err
	}
	authorityInfo, err := ctx.GetAccount(2)
	if err != nil {
		return err
	}

	source, err := unpackAccount(sourceInfo)
	if err != nil {
		return err
	}
	if source.IsFrozen() {
		return ErrorAccountFrozen
	}
	if source.IsNative != nil {
		return ErrorNativeNotSupported
	}
	if source.Amount < amount {
		return ErrorInsufficientFunds
	}
	if mintInfo.Key != source.Mint {
		return ErrorMintMismatch
	}

	mint, err := unpackMint(mintInfo)
	if err != nil {
		return err
	}
	if checked && mint.Decimals != decimals {
		return ErrorMintDecimalsMismatch
	}

	if err := authorizeSpend(source, authorityInfo, amount); err != nil {
		return err
	}

	if mint.Supply < amount {
		return ErrorOverflow
	}
	source.Amount -= amount
	mint.Supply -= amount

	copy(sourceInfo.Data, source.Marshal())
	copy(mintInfo.Data, mint.Marshal())
	return nil
}

// processCloseAccount closes a token account and returns its lamports:
// [0] account, [1] destination, [2] close authority.
func (p *Processor) processCloseAccount(ctx svm.InvokeContext) error {
	sourceInfo, err := ctx.GetAccount(0)
	if err != nil {
		return err
	}
	destInfo, err := ctx.GetAccount(1)
	if err != nil {
		return err
	}
	authorityInfo, err := ctx.GetAccount(2)
	if err != nil {
		return err
	}

	if sourceInfo.Key == destInfo.Key {
		return svm.ErrInvalidAccountData
	}

	source, err := unpackAccount(sourceInfo)
	if err != nil {
		return err
	}
	if source.IsNative == nil && source.Amount != 0 {
		return ErrorNonNativeHasBalance
	}

	authority := source.Owner
	if source.CloseAuthority != nil {
		authority = *source.CloseAuthority
	}
	if err := validateOwner(authority, authorityInfo); err != nil {
		return err
	}

	if destInfo.Lamports > ^uint64(0)-sourceInfo.Lamports {
		return ErrorOverflow
	}
	destInfo.Lamports += sourceInfo.Lamports
	sourceInfo.Lamports = 0
	sourceInfo.Resize(0)
	sourceInfo.Owner = types.SystemProgramAddr
	return nil
}

// processToggleFreeze freezes or thaws an account: [0] account, [1] mint,
// [2] freeze authority.
func (p *Processor) processToggleFreeze(ctx svm.InvokeContext, freeze bool) error {
	sourceInfo, err := ctx.GetAccount(0)
	if err != nil {
		return err
	}
	mintInfo, err := ctx.GetAccount(1)
	if err != nil {
		return err
	}
	authorityInfo, err := ctx.GetAccount(2)
	if err != nil {
		return err
	}

	source, err := unpackAccount(sourceInfo)
	if err != nil {
		return err
	}
	if source.IsNative != nil {
		return ErrorNativeNotSupported
	}
	if mintInfo.Key != source.Mint {
		return ErrorMintMismatch
	}
	if freeze == source.IsFrozen() {
		return ErrorInvalidState
	}

	mint, err := unpackMint(mintInfo)
	if err != nil {
		return err
	}
	if mint.FreezeAuthority == nil {
		return ErrorMintCannotFreeze
	}
	if err := validateOwner(*mint.FreezeAuthority, authorityInfo); err != nil {
		return err
	}

	if freeze {
		source.State = AccountStateFrozen
	} else {
		source.State = AccountStateInitialized
	}
	copy(sourceInfo.Data, source.Marshal())
	return nil
}

// processSyncNative sets a wrapped SOL account's amount from its lamports: [0] account.
func (p *Processor) processSyncNative(ctx svm.InvokeContext) error {
	info, err := ctx.GetAccount(0)
	if err != nil {
		return err
	}

	account, err := unpackAccount(info)
	if err != nil {
		return err
	}
	if account.IsNative == nil {
		return ErrorNonNativeNotSupported
	}

	reserve := *account.IsNative
	if info.Lamports < reserve {
		return ErrorInvalidState
	}
	amount := info.Lamports - reserve
	if amount < account.Amount {
		return ErrorInvalidState
	}
	account.Amount = amount
	copy(info.Data, account.Marshal())
	return nil
}

// authorizeSpend checks that authority may move amount out of source,
// consuming delegated allowance when the delegate signs.
func authorizeSpend(source *Account, authority *svm.AccountInfo, amount uint64) error {
	if source.Delegate != nil && *source.Delegate == authority.Key {
		if !authority.IsSigner {
			return svm.ErrMissingRequiredSignature
		}
		if source.DelegatedAmount < amount {
			return ErrorInsufficientFunds
		}
		source.DelegatedAmount -= amount
		if source.DelegatedAmount == 0 {
			source.Delegate = nil
		}
		return nil
	}
	return validateOwner(source.Owner, authority)
}

func validateOwner(expected types.Pubkey, authority *svm.AccountInfo) error {
	if expected != authority.Key {
		return ErrorOwnerMismatch
	}
	if !authority.IsSigner {
		return svm.ErrMissingRequiredSignature
	}
	return nil
}

func unpackAccount(info *svm.AccountInfo) (*Account, error) {
	if !info.IsOwnedBy(ProgramID) {
		return nil, svm.ErrIncorrectProgramID
	}
	var account Account
	if !account.Unmarshal(info.Data) {
		return nil, svm.ErrInvalidAccountData
	}
	if account.State == AccountStateUninitialized {
		return nil, ErrorUninitializedState
	}
	return &account, nil
}

func unpackMint(info *svm.AccountInfo) (*Mint, error) {
	if !info.IsOwnedBy(ProgramID) {
		return nil, svm.ErrIncorrectProgramID
	}
	var mint Mint
	if !mint.Unmarshal(info.Data) {
		return nil, svm.ErrInvalidAccountData
	}
	if !mint.IsInitialized {
		return nil, ErrorUninitializedState
	}
	return &mint, nil
}

// reader decodes packed instruction arguments.
type reader struct {
	data []byte
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.data) < n {
		r.err = ErrorInvalidInstruction
		return nil
	}
	b := r.data[:n]
	r.data = r.data[n:]
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) pubkey() types.Pubkey {
	var p types.Pubkey
	copy(p[:], r.take(types.PubkeySize))
	return p
}

// optionalPubkey reads an instruction COption, whose tag is a single byte.
func (r *reader) optionalPubkey() *types.Pubkey {
	switch r.u8() {
	case 0:
		return nil
	case 1:
		p := r.pubkey()
		return &p
	default:
		if r.err == nil {
			r.err = ErrorInvalidInstruction
		}
		return nil
	}
}
