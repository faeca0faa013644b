package token

import (
	"encoding/binary"

	"github.com/fortiblox/stratus-harness/pkg/transaction"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// InitializeMint returns an instruction initializing mint. A nil
// freezeAuthority leaves the mint unable to freeze accounts.
//
// Accounts expected by this instruction:
//
//	0. `[writable]` The mint to initialize.
//	1. `[]` Rent sysvar
func InitializeMint(mint, mintAuthority types.Pubkey, freezeAuthority *types.Pubkey, decimals uint8) transaction.Instruction {
	return transaction.NewInstruction(
		ProgramID,
		initializeMintData(CommandInitializeMint, mintAuthority, freezeAuthority, decimals),
		transaction.NewAccountMeta(mint, false),
		transaction.NewReadonlyAccountMeta(types.SysvarRentAddr, false),
	)
}

// InitializeMint2 is InitializeMint without the rent sysvar account.
func InitializeMint2(mint, mintAuthority types.Pubkey, freezeAuthority *types.Pubkey, decimals uint8) transaction.Instruction {
	return transaction.NewInstruction(
		ProgramID,
		initializeMintData(CommandInitializeMint2, mintAuthority, freezeAuthority, decimals),
		transaction.NewAccountMeta(mint, false),
	)
}

func initializeMintData(cmd Command, mintAuthority types.Pubkey, freezeAuthority *types.Pubkey, decimals uint8) []byte {
	data := make([]byte, 0, 67)
	data = append(data, byte(cmd), decimals)
	data = append(data, mintAuthority[:]...)
	return appendOptionalKey(data, freezeAuthority)
}

// InitializeAccount returns an instruction initializing a token account.
//
// Accounts expected by this instruction:
//
//	0. `[writable]`  The account to initialize.
//	1. `[]` The mint this account will be associated with.
//	2. `[]` The new account's owner.
//	3. `[]` Rent sysvar
func InitializeAccount(account, mint, owner types.Pubkey) transaction.Instruction {
	return transaction.NewInstruction(
		ProgramID,
		[]byte{byte(CommandInitializeAccount)},
		transaction.NewAccountMeta(account, false),
		transaction.NewReadonlyAccountMeta(mint, false),
		transaction.NewReadonlyAccountMeta(owner, false),
		transaction.NewReadonlyAccountMeta(types.SysvarRentAddr, false),
	)
}

// InitializeAccount3 is InitializeAccount with the owner in the
// instruction data and no rent sysvar.
func InitializeAccount3(account, mint, owner types.Pubkey) transaction.Instruction {
	data := append([]byte{byte(CommandInitializeAccount3)}, owner[:]...)

	return transaction.NewInstruction(
		ProgramID,
		data,
		transaction.NewAccountMeta(account, false),
		transaction.NewReadonlyAccountMeta(mint, false),
	)
}

// Transfer returns an instruction moving amount tokens from source to dest.
//
// Accounts expected by this instruction:
//
//	0. `[writable]` The source account.
//	1. `[writable]` The destination account.
//	2. `[signer]` The source account's owner/delegate.
func Transfer(source, dest, owner types.Pubkey, amount uint64) transaction.Instruction {
	return transaction.NewInstruction(
		ProgramID,
		amountData(CommandTransfer, amount),
		transaction.NewAccountMeta(source, false),
		transaction.NewAccountMeta(dest, false),
		transaction.NewReadonlyAccountMeta(owner, true),
	)
}

// TransferChecked is Transfer that also asserts the mint and its decimals.
//
// Accounts expected by this instruction:
//
//	0. `[writable]` The source account.
//	1. `[]` The token mint.
//	2. `[writable]` The destination account.
//	3. `[signer]` The source account's owner/delegate.
func TransferChecked(source, mint, dest, owner types.Pubkey, amount uint64, decimals uint8) transaction.Instruction {
	return transaction.NewInstruction(
		ProgramID,
		append(amountData(CommandTransferChecked, amount), decimals),
		transaction.NewAccountMeta(source, false),
		transaction.NewReadonlyAccountMeta(mint, false),
		transaction.NewAccountMeta(dest, false),
		transaction.NewReadonlyAccountMeta(owner, true),
	)
}

// Approve returns an instruction letting delegate spend up to amount from source.
func Approve(source, delegate, owner types.Pubkey, amount uint64) transaction.Instruction {
	return transaction.NewInstruction(
		ProgramID,
		amountData(CommandApprove, amount),
		transaction.NewAccountMeta(source, false),
		transaction.NewReadonlyAccountMeta(delegate, false),
		transaction.NewReadonlyAccountMeta(owner, true),
	)
}

func ApproveChecked(source, mint, delegate, owner types.Pubkey, amount uint64, decimals uint8) transaction.Instruction {
	return transaction.NewInstruction(
		ProgramID,
		append(amountData(CommandApproveChecked, amount), decimals),
		transaction.NewAccountMeta(source, false),
		transaction.NewReadonlyAccountMeta(mint, false),
		transaction.NewReadonlyAccountMeta(delegate, false),
		transaction.NewReadonlyAccountMeta(owner, true),
	)
}

// Revoke returns an instruction removing the delegate of source.
func Revoke(source, owner types.Pubkey) transaction.Instruction {
	return transaction.NewInstruction(
		ProgramID,
		[]byte{byte(CommandRevoke)},
		transaction.NewAccountMeta(source, false),
		transaction.NewReadonlyAccountMeta(owner, true),
	)
}

// SetAuthority returns an instruction changing an authority of a mint or
// account. A nil newAuthority removes it.
//
// Accounts expected by this instruction:
//
//	0. `[writable]` The mint or account to change the authority of.
//	1. `[signer]` The current authority of the mint or account.
func SetAuthority(account, currentAuthority types.Pubkey, newAuthority *types.Pubkey, authorityType AuthorityType) transaction.Instruction {
	data := []byte{byte(CommandSetAuthority), byte(authorityType)}
	data = appendOptionalKey(data, newAuthority)

	return transaction.NewInstruction(
		ProgramID,
		data,
		transaction.NewAccountMeta(account, false),
		transaction.NewReadonlyAccountMeta(currentAuthority, true),
	)
}

// MintTo returns an instruction minting amount new tokens into dest.
//
// Accounts expected by this instruction:
//
//	0. `[writable]` The mint.
//	1. `[writable]` The account to mint tokens to.
//	2. `[signer]` The mint's minting authority.
func MintTo(mint, dest, authority types.Pubkey, amount uint64) transaction.Instruction {
	return transaction.NewInstruction(
		ProgramID,
		amountData(CommandMintTo, amount),
		transaction.NewAccountMeta(mint, false),
		transaction.NewAccountMeta(dest, false),
		transaction.NewReadonlyAccountMeta(authority, true),
	)
}

func MintToChecked(mint, dest, authority types.Pubkey, amount uint64, decimals uint8) transaction.Instruction {
	return transaction.NewInstruction(
		ProgramID,
		append(amountData(CommandMintToChecked, amount), decimals),
		transaction.NewAccountMeta(mint, false),
		transaction.NewAccountMeta(dest, false),
		transaction.NewReadonlyAccountMeta(authority, true),
	)
}

// Burn returns an instruction destroying amount tokens held by account.
//
// Accounts expected by this instruction:
//
//	0. `[writable]` The account to burn from.
//	1. `[writable]` The token mint.
//	2. `[signer]` The account's owner/delegate.
func Burn(account, mint, owner types.Pubkey, amount uint64) transaction.Instruction {
	return transaction.NewInstruction(
		ProgramID,
		amountData(CommandBurn, amount),
		transaction.NewAccountMeta(account, false),
		transaction.NewAccountMeta(mint, false),
		transaction.NewReadonlyAccountMeta(owner, true),
	)
}

func BurnChecked(account, mint, owner types.Pubkey, amount uint64, decimals uint8) transaction.Instruction {
	return transaction.NewInstruction(
		ProgramID,
		append(amountData(CommandBurnChecked, amount), decimals),
		transaction.NewAccountMeta(account, false),
		transaction.NewAccountMeta(mint, false),
		transaction.NewReadonlyAccountMeta(owner, true),
	)
}

// CloseAccount returns an instruction closing account and sending its
// lamports to dest.
//
// Accounts expected by this instruction:
//
//	0. `[writable]` The account to close.
//	1. `[writable]` The destination account.
//	2. `[signer]` The account's owner or close authority.
func CloseAccount(account, dest, owner types.Pubkey) transaction.Instruction {
	return transaction.NewInstruction(
		ProgramID,
		[]byte{byte(CommandCloseAccount)},
		transaction.NewAccountMeta(account, false),
		transaction.NewAccountMeta(dest, false),
		transaction.NewReadonlyAccountMeta(owner, true),
	)
}

// FreezeAccount returns an instruction freezing account with the mint's
// freeze authority.
func FreezeAccount(account, mint, authority types.Pubkey) transaction.Instruction {
	return transaction.NewInstruction(
		ProgramID,
		[]byte{byte(CommandFreezeAccount)},
		transaction.NewAccountMeta(account, false),
		transaction.NewReadonlyAccountMeta(mint, false),
		transaction.NewReadonlyAccountMeta(authority, true),
	)
}

func ThawAccount(account, mint, authority types.Pubkey) transaction.Instruction {
	return transaction.NewInstruction(
		ProgramID,
		[]byte{byte(CommandThawAccount)},
		transaction.NewAccountMeta(account, false),
		transaction.NewReadonlyAccountMeta(mint, false),
		transaction.NewReadonlyAccountMeta(authority, true),
	)
}

// SyncNative returns an instruction updating a wrapped SOL account's
// amount to match its lamports.
func SyncNative(account types.Pubkey) transaction.Instruction {
	return transaction.NewInstruction(
		ProgramID,
		[]byte{byte(CommandSyncNative)},
		transaction.NewAccountMeta(account, false),
	)
}

func amountData(cmd Command, amount uint64) []byte {
	data := make([]byte, 1, 10)
	data[0] = byte(cmd)
	return binary.LittleEndian.AppendUint64(data, amount)
}

func appendOptionalKey(data []byte, key *types.Pubkey) []byte {
	if key == nil {
		return append(data, 0)
	}
	data = append(data, 1)
	return append(data, key[:]...)
}
