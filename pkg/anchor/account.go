package anchor

import (
	"fmt"

	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// AccountData is an Anchor account struct. AccountName must have a value
// receiver; it names the struct for the "account:" discriminator.
type AccountData interface {
	AccountName() string
}

// AccountReader is the read side of a ledger.
type AccountReader interface {
	GetAccount(pubkey types.Pubkey) (*accounts.Account, error)
}

// AccountDiscriminatorOf returns the discriminator of T.
func AccountDiscriminatorOf[T AccountData]() Discriminator {
	var zero T
	return AccountDiscriminator(zero.AccountName())
}

// EncodeAccount returns the discriminator of v followed by its Borsh
// encoding, the layout an Anchor program stores.
func EncodeAccount(v AccountData) ([]byte, error) {
	body, err := Encode(v)
	if err != nil {
		return nil, err
	}
	disc := AccountDiscriminator(v.AccountName())
	return append(disc[:], body...), nil
}

// DecodeAccount checks the discriminator of data and decodes the rest.
func DecodeAccount[T AccountData](data []byte) (T, error) {
	var out T
	if len(data) < DiscriminatorSize {
		return out, &AccountError{
			Kind: AccountDeserializationError,
			Err:  fmt.Errorf("account data has %d bytes, shorter than the discriminator", len(data)),
		}
	}
	if !AccountDiscriminatorOf[T]().Matches(data) {
		return out, &AccountError{Kind: AccountDiscriminatorMismatch}
	}
	return decodeAccountBody[T](data[DiscriminatorSize:])
}

// DecodeAccountUnchecked skips the first 8 bytes without checking them.
func DecodeAccountUnchecked[T AccountData](data []byte) (T, error) {
	var out T
	if len(data) < DiscriminatorSize {
		return out, &AccountError{
			Kind: AccountDeserializationError,
			Err:  fmt.Errorf("account data has %d bytes, shorter than the discriminator", len(data)),
		}
	}
	return decodeAccountBody[T](data[DiscriminatorSize:])
}

func decodeAccountBody[T AccountData](body []byte) (T, error) {
	var out T
	if err := Decode(body, &out); err != nil {
		return out, &AccountError{Kind: AccountDeserializationError, Err: err}
	}
	return out, nil
}

// GetAccount fetches addr from r and decodes it as T, checking the
// discriminator.
func GetAccount[T AccountData](r AccountReader, addr types.Pubkey) (T, error) {
	acc, err := fetch(r, addr)
	if err != nil {
		var zero T
		return zero, err
	}
	out, err := DecodeAccount[T](acc.Data)
	if err != nil {
		err.(*AccountError).Address = addr
	}
	return out, err
}

// GetAccountUnchecked fetches addr from r and decodes it as T without
// checking the discriminator.
func GetAccountUnchecked[T AccountData](r AccountReader, addr types.Pubkey) (T, error) {
	acc, err := fetch(r, addr)
	if err != nil {
		var zero T
		return zero, err
	}
	out, err := DecodeAccountUnchecked[T](acc.Data)
	if err != nil {
		err.(*AccountError).Address = addr
	}
	return out, err
}

func fetch(r AccountReader, addr types.Pubkey) (*accounts.Account, error) {
	acc, err := r.GetAccount(addr)
	if err != nil {
		return nil, &AccountError{Kind: AccountNotFound, Address: addr, Err: err}
	}
	if acc == nil {
		return nil, &AccountError{Kind: AccountNotFound, Address: addr}
	}
	return acc, nil
}
