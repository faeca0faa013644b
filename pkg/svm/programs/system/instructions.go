package system

import (
	"encoding/binary"

	"github.com/fortiblox/stratus-harness/pkg/transaction"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// CreateAccount returns an instruction creating newAccount with space bytes
// owned by owner, funded with lamports from funder. Both must sign.
func CreateAccount(funder, newAccount, owner types.Pubkey, lamports, space uint64) transaction.Instruction {
	data := newData(InstructionCreateAccount, 52)
	data = binary.LittleEndian.AppendUint64(data, lamports)
	data = binary.LittleEndian.AppendUint64(data, space)
	data = append(data, owner[:]...)

	return transaction.NewInstruction(
		ProgramID,
		data,
		transaction.NewAccountMeta(funder, true),
		transaction.NewAccountMeta(newAccount, true),
	)
}

// Transfer returns an instruction moving lamports from from to to.
func Transfer(from, to types.Pubkey, lamports uint64) transaction.Instruction {
	data := newData(InstructionTransfer, 12)
	data = binary.LittleEndian.AppendUint64(data, lamports)

	return transaction.NewInstruction(
		ProgramID,
		data,
		transaction.NewAccountMeta(from, true),
		transaction.NewAccountMeta(to, false),
	)
}

// Assign returns an instruction assigning account to owner.
func Assign(account, owner types.Pubkey) transaction.Instruction {
	data := newData(InstructionAssign, 36)
	data = append(data, owner[:]...)

	return transaction.NewInstruction(
		ProgramID,
		data,
		transaction.NewAccountMeta(account, true),
	)
}

// Allocate returns an instruction allocating space bytes in account.
func Allocate(account types.Pubkey, space uint64) transaction.Instruction {
	data := newData(InstructionAllocate, 12)
	data = binary.LittleEndian.AppendUint64(data, space)

	return transaction.NewInstruction(
		ProgramID,
		data,
		transaction.NewAccountMeta(account, true),
	)
}

// CreateAccountWithSeed returns an instruction creating the account derived
// from base, seed, and owner. base must sign.
func CreateAccountWithSeed(funder, newAccount, base types.Pubkey, seed string, lamports, space uint64, owner types.Pubkey) transaction.Instruction {
	data := newData(InstructionCreateAccountWithSeed, 4+32+8+len(seed)+48)
	data = append(data, base[:]...)
	data = appendSeed(data, seed)
	data = binary.LittleEndian.AppendUint64(data, lamports)
	data = binary.LittleEndian.AppendUint64(data, space)
	data = append(data, owner[:]...)

	accounts := []transaction.AccountMeta{
		transaction.NewAccountMeta(funder, true),
		transaction.NewAccountMeta(newAccount, false),
	}
	if base != funder {
		accounts = append(accounts, transaction.NewReadonlyAccountMeta(base, true))
	}
	return transaction.NewInstruction(ProgramID, data, accounts...)
}

// AllocateWithSeed returns an instruction allocating and assigning a seed-derived account.
func AllocateWithSeed(account, base types.Pubkey, seed string, space uint64, owner types.Pubkey) transaction.Instruction {
	data := newData(InstructionAllocateWithSeed, 4+32+8+len(seed)+40)
	data = append(data, base[:]...)
	data = appendSeed(data, seed)
	data = binary.LittleEndian.AppendUint64(data, space)
	data = append(data, owner[:]...)

	return transaction.NewInstruction(
		ProgramID,
		data,
		transaction.NewAccountMeta(account, false),
		transaction.NewReadonlyAccountMeta(base, true),
	)
}

// AssignWithSeed returns an instruction assigning a seed-derived account to owner.
func AssignWithSeed(account, base types.Pubkey, seed string, owner types.Pubkey) transaction.Instruction {
	data := newData(InstructionAssignWithSeed, 4+32+8+len(seed)+32)
	data = append(data, base[:]...)
	data = appendSeed(data, seed)
	data = append(data, owner[:]...)

	return transaction.NewInstruction(
		ProgramID,
		data,
		transaction.NewAccountMeta(account, false),
		transaction.NewReadonlyAccountMeta(base, true),
	)
}

// TransferWithSeed returns an instruction moving lamports out of the account
// derived from base, seed, and fromOwner.
func TransferWithSeed(from, base types.Pubkey, seed string, fromOwner, to types.Pubkey, lamports uint64) transaction.Instruction {
	data := newData(InstructionTransferWithSeed, 4+8+8+len(seed)+32)
	data = binary.LittleEndian.AppendUint64(data, lamports)
	data = appendSeed(data, seed)
	data = append(data, fromOwner[:]...)

	return transaction.NewInstruction(
		ProgramID,
		data,
		transaction.NewAccountMeta(from, false),
		transaction.NewReadonlyAccountMeta(base, true),
		transaction.NewAccountMeta(to, false),
	)
}

func newData(instruction uint32, size int) []byte {
	data := make([]byte, 4, size)
	binary.LittleEndian.PutUint32(data, instruction)
	return data
}

func appendSeed(data []byte, seed string) []byte {
	data = binary.LittleEndian.AppendUint64(data, uint64(len(seed)))
	return append(data, seed...)
}
