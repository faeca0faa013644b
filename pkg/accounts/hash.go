package accounts

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/fortiblox/stratus-harness/pkg/types"
)

// ComputeAccountHash hashes every field of an account together with its
// address: blake3(lamports || rent_epoch || data || executable || owner || pubkey).
// Closed (zero) accounts hash to the zero value.
func ComputeAccountHash(pubkey types.Pubkey, account *Account) types.Hash {
	var out types.Hash
	if account == nil || account.IsZero() {
		return out
	}

	h := blake3.New()
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], account.Lamports)
	h.Write(u64[:])
	binary.LittleEndian.PutUint64(u64[:], account.RentEpoch)
	h.Write(u64[:])
	h.Write(account.Data)
	if account.Executable {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write(account.Owner[:])
	h.Write(pubkey[:])

	copy(out[:], h.Sum(nil))
	return out
}

// ComputeStateHash fingerprints the whole table: blake3 over the account
// hashes in ascending pubkey order. Two databases with identical accounts
// produce identical hashes regardless of backend.
func ComputeStateHash(db DB) (types.Hash, error) {
	h := blake3.New()
	err := db.IterateAccounts(func(pubkey types.Pubkey, account *Account) error {
		ah := ComputeAccountHash(pubkey, account)
		_, err := h.Write(ah[:])
		return err
	})
	if err != nil {
		return types.Hash{}, err
	}

	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out, nil
}
