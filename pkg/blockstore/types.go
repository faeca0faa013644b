// Package blockstore records the transactions a ledger has executed.
//
// It provides:
// - Transaction lookup by signature
// - Address-to-signature indexing, newest first
// - An in-memory store for tests and a BoltDB store that survives restarts
package blockstore

import (
	"encoding/binary"

	"github.com/fortiblox/stratus-harness/pkg/types"
)

// Transaction is an executed transaction and its outcome.
type Transaction struct {
	// Signature is the first signature, used as the transaction ID.
	Signature types.Signature

	// Slot is the slot the transaction executed in.
	Slot uint64

	// BlockTime is the Clock's unix timestamp at execution.
	BlockTime int64

	// AccountKeys lists all accounts referenced by this transaction.
	AccountKeys []types.Pubkey

	// Meta contains execution metadata (logs, consumed units, etc.).
	Meta *TransactionMeta
}

// TransactionMeta contains metadata about transaction execution.
type TransactionMeta struct {
	// Err contains the error if the transaction failed, nil on success.
	Err *TransactionError

	// Fee is the transaction fee in lamports.
	Fee uint64

	// LogMessages contains program log output.
	LogMessages []string

	// ComputeUnitsConsumed is the total compute units used.
	ComputeUnitsConsumed uint64

	// ReturnData is the data set by the last program to call set_return_data.
	ReturnData *ReturnData
}

// TransactionError represents a transaction execution error.
type TransactionError struct {
	// InstructionIndex is the failing instruction, or -1 for errors
	// outside any instruction.
	InstructionIndex int

	// Message is a human-readable error description.
	Message string
}

func (e *TransactionError) Error() string {
	return e.Message
}

// ReturnData is program return data recorded with a transaction.
type ReturnData struct {
	ProgramID types.Pubkey
	Data      []byte
}

// SignatureInfo is stored in the address-to-signature index.
type SignatureInfo struct {
	// Signature is the transaction signature.
	Signature types.Signature

	// Slot is the slot containing this transaction.
	Slot uint64

	// Err is present if the transaction failed.
	Err *TransactionError

	// BlockTime is the block timestamp.
	BlockTime int64
}

// SignatureQueryOptions configures signature queries.
type SignatureQueryOptions struct {
	// Limit is the maximum number of signatures to return. Zero means no limit.
	Limit int

	// Before returns signatures before (not including) this signature.
	Before *types.Signature
}

// Stats contains store statistics.
type Stats struct {
	// LatestSlot is the most recent slot a transaction executed in.
	LatestSlot uint64

	// TransactionCount is the total number of transactions recorded.
	TransactionCount uint64
}

func signatureInfo(txn *Transaction) SignatureInfo {
	info := SignatureInfo{
		Signature: txn.Signature,
		Slot:      txn.Slot,
		BlockTime: txn.BlockTime,
	}
	if txn.Meta != nil {
		info.Err = txn.Meta.Err
	}
	return info
}

// Helper functions for key encoding.

// EncodeSlotKey encodes a slot number as a big-endian 8-byte key.
// Big-endian ensures proper lexicographic ordering.
func EncodeSlotKey(slot uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, slot)
	return key
}

// DecodeSlotKey decodes a slot number from a big-endian 8-byte key.
func DecodeSlotKey(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key)
}

// EncodeSignatureKey encodes a signature as a key (raw bytes).
func EncodeSignatureKey(sig types.Signature) []byte {
	return sig[:]
}

// EncodeAddressKey encodes an address+sequence composite key.
// Format: [32-byte address][8-byte sequence big-endian]
func EncodeAddressKey(addr types.Pubkey, seq uint64) []byte {
	key := make([]byte, 40) // 32 + 8
	copy(key[:32], addr[:])
	binary.BigEndian.PutUint64(key[32:], seq)
	return key
}

// DecodeAddressKey decodes an address+sequence composite key.
func DecodeAddressKey(key []byte) (types.Pubkey, uint64) {
	var addr types.Pubkey
	if len(key) < 40 {
		return addr, 0
	}
	copy(addr[:], key[:32])
	seq := binary.BigEndian.Uint64(key[32:])
	return addr, seq
}
