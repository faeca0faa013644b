// Package escrow is an Anchor-style token escrow program. A maker locks
// token A in a vault and names the amount of token B wanted in exchange;
// a taker completes the swap, or the maker takes the tokens back.
package escrow

import (
	"github.com/fortiblox/stratus-harness/pkg/anchor"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// ProgramID is the address the escrow program is deployed at.
var ProgramID = types.MustPubkeyFromBase58("5ZWjj4rvNcEv3zSng7CCFaUGv9R8u13y9xNHqMm3zPE8")

// PDA seed prefixes.
var (
	OfferSeed = []byte("offer")
	VaultSeed = []byte("vault")
)

// Instruction names.
const (
	InstructionMakeOffer   = "make_offer"
	InstructionTakeOffer   = "take_offer"
	InstructionRefundOffer = "refund_offer"
)

// Offer is the state of an open offer.
type Offer struct {
	ID                 uint64
	Maker              types.Pubkey
	TokenMintA         types.Pubkey
	TokenMintB         types.Pubkey
	TokenBWantedAmount uint64
	// ExpiresAt is a unix timestamp; zero never expires.
	ExpiresAt int64
	Bump      uint8
}

func (Offer) AccountName() string { return "Offer" }

// OfferSpace is the size of an Offer account, discriminator included.
const OfferSpace = anchor.DiscriminatorSize + 8 + 32 + 32 + 32 + 8 + 8 + 1

// MakeOfferArgs are the arguments of make_offer, in order.
type MakeOfferArgs struct {
	ID                  uint64
	TokenAOfferedAmount uint64
	TokenBWantedAmount  uint64
	ExpiresAt           int64
}

type OfferMade struct {
	ID                  uint64
	Maker               types.Pubkey
	TokenMintA          types.Pubkey
	TokenMintB          types.Pubkey
	TokenAOfferedAmount uint64
	TokenBWantedAmount  uint64
}

func (OfferMade) EventName() string { return "OfferMade" }

type OfferTaken struct {
	ID    uint64
	Maker types.Pubkey
	Taker types.Pubkey
}

func (OfferTaken) EventName() string { return "OfferTaken" }

type OfferRefunded struct {
	ID     uint64
	Maker  types.Pubkey
	Amount uint64
}

func (OfferRefunded) EventName() string { return "OfferRefunded" }

// Program errors.
var (
	ErrInvalidAmount = anchor.NewError(0, "InvalidAmount", "Amount must be greater than zero")
	ErrOfferExpired  = anchor.NewError(1, "OfferExpired", "The offer has expired")
	ErrMintMismatch  = anchor.NewError(2, "MintMismatch", "Token account mint does not match the offer")
)

// Framework errors, with Anchor's codes.
var (
	ErrInstructionMissing           = &anchor.Error{Name: "InstructionMissing", Code: 100, Msg: "8 byte instruction identifier not provided"}
	ErrInstructionFallbackNotFound  = &anchor.Error{Name: "InstructionFallbackNotFound", Code: 101, Msg: "Fallback functions are not supported"}
	ErrInstructionDidNotDeserialize = &anchor.Error{Name: "InstructionDidNotDeserialize", Code: 102, Msg: "The program could not deserialize the given instruction"}
	ErrConstraintHasOne             = &anchor.Error{Name: "ConstraintHasOne", Code: 2001, Msg: "A has one constraint was violated"}
	ErrConstraintSigner             = &anchor.Error{Name: "ConstraintSigner", Code: 2002, Msg: "A signer constraint was violated"}
	ErrConstraintSeeds              = &anchor.Error{Name: "ConstraintSeeds", Code: 2006, Msg: "A seeds constraint was violated"}
	ErrAccountDiscriminatorMismatch = &anchor.Error{Name: "AccountDiscriminatorMismatch", Code: 3002, Msg: "Account discriminator did not match what was expected"}
	ErrAccountNotInitialized        = &anchor.Error{Name: "AccountNotInitialized", Code: 3012, Msg: "The program expected this account to be already initialized"}
)

// FindOfferAddress derives the offer account of maker with the given id.
func FindOfferAddress(maker types.Pubkey, id uint64) (types.Pubkey, uint8, error) {
	return types.FindProgramAddress([][]byte{OfferSeed, maker[:], idBytes(id)}, ProgramID)
}

// FindVaultAddress derives the token account holding an offer's tokens.
func FindVaultAddress(offer types.Pubkey) (types.Pubkey, uint8, error) {
	return types.FindProgramAddress([][]byte{VaultSeed, offer[:]}, ProgramID)
}

func idBytes(id uint64) []byte {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(id >> (8 * i))
	}
	return b
}
