package token

import (
	"encoding/binary"

	"github.com/fortiblox/stratus-harness/pkg/types"
)

type AccountState byte

const (
	AccountStateUninitialized AccountState = iota
	AccountStateInitialized
	AccountStateFrozen
)

const (
	// MintSize is the packed size of a Mint.
	MintSize = 82

	// AccountSize is the packed size of a token Account.
	AccountSize = 165
)

// COption tags are four bytes in account state.
const optionSize = 4

// Mint is the state of a token mint.
type Mint struct {
	// Optional authority used to mint new tokens. Without one the supply is fixed.
	MintAuthority *types.Pubkey
	// Total supply of tokens.
	Supply uint64
	// Number of base 10 digits to the right of the decimal place.
	Decimals uint8
	IsInitialized bool
	// Optional authority to freeze token accounts.
	FreezeAuthority *types.Pubkey
}

func (m *Mint) Marshal() []byte {
	b := make([]byte, MintSize)

	var offset int
	putOptionalKey(b, m.MintAuthority, &offset)
	putUint64(b, m.Supply, &offset)
	b[offset] = m.Decimals
	offset++
	if m.IsInitialized {
		b[offset] = 1
	}
	offset++
	putOptionalKey(b, m.FreezeAuthority, &offset)

	return b
}

func (m *Mint) Unmarshal(b []byte) bool {
	if len(b) != MintSize {
		return false
	}

	var offset int
	m.MintAuthority = getOptionalKey(b, &offset)
	m.Supply = getUint64(b, &offset)
	m.Decimals = b[offset]
	offset++
	m.IsInitialized = b[offset] != 0
	offset++
	m.FreezeAuthority = getOptionalKey(b, &offset)

	return true
}

// Account is the state of a token account.
type Account struct {
	// The mint associated with this account
	Mint types.Pubkey
	// The owner of this account.
	Owner types.Pubkey
	// The amount of tokens this account holds.
	Amount uint64
	// If set, then the 'DelegatedAmount' represents the amount
	// authorized by the delegate.
	Delegate *types.Pubkey
	State    AccountState
	// If set, this is a wrapped SOL account and the value is the
	// rent-exempt reserve that Amount excludes.
	IsNative *uint64
	// The amount delegated
	DelegatedAmount uint64
	// Optional authority to close the account.
	CloseAuthority *types.Pubkey
}

func (a *Account) Marshal() []byte {
	b := make([]byte, AccountSize)

	var offset int
	putKey(b, a.Mint, &offset)
	putKey(b, a.Owner, &offset)
	putUint64(b, a.Amount, &offset)
	putOptionalKey(b, a.Delegate, &offset)
	b[offset] = byte(a.State)
	offset++
	if a.IsNative != nil {
		binary.LittleEndian.PutUint32(b[offset:], 1)
		binary.LittleEndian.PutUint64(b[offset+optionSize:], *a.IsNative)
	}
	offset += optionSize + 8
	putUint64(b, a.DelegatedAmount, &offset)
	putOptionalKey(b, a.CloseAuthority, &offset)

	return b
}

func (a *Account) Unmarshal(b []byte) bool {
	if len(b) != AccountSize {
		return false
	}

	var offset int
	a.Mint = getKey(b, &offset)
	a.Owner = getKey(b, &offset)
	a.Amount = getUint64(b, &offset)
	a.Delegate = getOptionalKey(b, &offset)
	a.State = AccountState(b[offset])
	offset++
	a.IsNative = nil
	if binary.LittleEndian.Uint32(b[offset:]) != 0 {
		v := binary.LittleEndian.Uint64(b[offset+optionSize:])
		a.IsNative = &v
	}
	offset += optionSize + 8
	a.DelegatedAmount = getUint64(b, &offset)
	a.CloseAuthority = getOptionalKey(b, &offset)

	return true
}

func (a *Account) IsFrozen() bool {
	return a.State == AccountStateFrozen
}

func putKey(b []byte, key types.Pubkey, offset *int) {
	copy(b[*offset:], key[:])
	*offset += types.PubkeySize
}

func getKey(b []byte, offset *int) types.Pubkey {
	var key types.Pubkey
	copy(key[:], b[*offset:])
	*offset += types.PubkeySize
	return key
}

func putOptionalKey(b []byte, key *types.Pubkey, offset *int) {
	if key != nil {
		binary.LittleEndian.PutUint32(b[*offset:], 1)
		copy(b[*offset+optionSize:], key[:])
	}
	*offset += optionSize + types.PubkeySize
}

func getOptionalKey(b []byte, offset *int) *types.Pubkey {
	defer func() { *offset += optionSize + types.PubkeySize }()
	if binary.LittleEndian.Uint32(b[*offset:]) == 0 {
		return nil
	}
	var key types.Pubkey
	copy(key[:], b[*offset+optionSize:])
	return &key
}

func putUint64(b []byte, v uint64, offset *int) {
	binary.LittleEndian.PutUint64(b[*offset:], v)
	*offset += 8
}

func getUint64(b []byte, offset *int) uint64 {
	v := binary.LittleEndian.Uint64(b[*offset:])
	*offset += 8
	return v
}
