package escrow

import (
	"github.com/fortiblox/stratus-harness/pkg/anchor"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/associatedtoken"
	"github.com/fortiblox/stratus-harness/pkg/transaction"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// MakeOfferAccounts are the accounts of make_offer. Offer and Vault are
// derived from Maker and the offer id when left zero.
type MakeOfferAccounts struct {
	Maker      types.Pubkey
	TokenMintA types.Pubkey
	TokenMintB types.Pubkey
	MakerATAA  types.Pubkey
	Offer      types.Pubkey
	Vault      types.Pubkey
}

func (a MakeOfferAccounts) ToAccountMetas() []anchor.AccountRef {
	return []anchor.AccountRef{
		{Name: "maker", Pubkey: a.Maker, IsSigner: true, IsWritable: true},
		{Name: "token_mint_a", Pubkey: a.TokenMintA},
		{Name: "token_mint_b", Pubkey: a.TokenMintB},
		{Name: "maker_token_account_a", Pubkey: a.MakerATAA, IsWritable: true},
		{Name: "offer", Pubkey: a.Offer, IsWritable: true},
		{Name: "vault", Pubkey: a.Vault, IsWritable: true},
	}
}

// TakeOfferAccounts are the accounts of take_offer. The taker's and maker's
// token accounts default to their associated token accounts.
type TakeOfferAccounts struct {
	Taker      types.Pubkey
	Maker      types.Pubkey
	TokenMintA types.Pubkey
	TokenMintB types.Pubkey
	TakerATAA  types.Pubkey
	TakerATAB  types.Pubkey
	MakerATAB  types.Pubkey
	Offer      types.Pubkey
	Vault      types.Pubkey
}

func (a TakeOfferAccounts) ToAccountMetas() []anchor.AccountRef {
	return []anchor.AccountRef{
		{Name: "taker", Pubkey: a.Taker, IsSigner: true, IsWritable: true},
		{Name: "maker", Pubkey: a.Maker, IsWritable: true},
		{Name: "token_mint_a", Pubkey: a.TokenMintA},
		{Name: "token_mint_b", Pubkey: a.TokenMintB},
		{Name: "taker_token_account_a", Pubkey: a.TakerATAA, IsWritable: true},
		{Name: "taker_token_account_b", Pubkey: a.TakerATAB, IsWritable: true},
		{Name: "maker_token_account_b", Pubkey: a.MakerATAB, IsWritable: true},
		{Name: "offer", Pubkey: a.Offer, IsWritable: true},
		{Name: "vault", Pubkey: a.Vault, IsWritable: true},
	}
}

// RefundOfferAccounts are the accounts of refund_offer.
type RefundOfferAccounts struct {
	Maker      types.Pubkey
	TokenMintA types.Pubkey
	MakerATAA  types.Pubkey
	Offer      types.Pubkey
	Vault      types.Pubkey
}

func (a RefundOfferAccounts) ToAccountMetas() []anchor.AccountRef {
	return []anchor.AccountRef{
		{Name: "maker", Pubkey: a.Maker, IsSigner: true, IsWritable: true},
		{Name: "token_mint_a", Pubkey: a.TokenMintA},
		{Name: "maker_token_account_a", Pubkey: a.MakerATAA, IsWritable: true},
		{Name: "offer", Pubkey: a.Offer, IsWritable: true},
		{Name: "vault", Pubkey: a.Vault, IsWritable: true},
	}
}

// MakeOffer builds a make_offer instruction.
func MakeOffer(accts MakeOfferAccounts, args MakeOfferArgs) (transaction.Instruction, error) {
	if accts.MakerATAA.IsZero() {
		ata, err := associatedtoken.FindAssociatedTokenAddress(accts.Maker, accts.TokenMintA)
		if err != nil {
			return transaction.Instruction{}, err
		}
		accts.MakerATAA = ata
	}
	if accts.Offer.IsZero() {
		offer, _, err := FindOfferAddress(accts.Maker, args.ID)
		if err != nil {
			return transaction.Instruction{}, err
		}
		accts.Offer = offer
	}
	if accts.Vault.IsZero() {
		vault, _, err := FindVaultAddress(accts.Offer)
		if err != nil {
			return transaction.Instruction{}, err
		}
		accts.Vault = vault
	}

	return anchor.NewInstructionBuilder(ProgramID, InstructionMakeOffer).
		Accounts(accts).
		SystemProgram().
		TokenProgram().
		Args(args.ID, args.TokenAOfferedAmount, args.TokenBWantedAmount, args.ExpiresAt).
		Build()
}

// TakeOffer builds a take_offer instruction for an offer of maker.
func TakeOffer(accts TakeOfferAccounts) (transaction.Instruction, error) {
	defaults := []struct {
		dst          *types.Pubkey
		wallet, mint types.Pubkey
	}{
		{&accts.TakerATAA, accts.Taker, accts.TokenMintA},
		{&accts.TakerATAB, accts.Taker, accts.TokenMintB},
		{&accts.MakerATAB, accts.Maker, accts.TokenMintB},
	}
	for _, d := range defaults {
		if !d.dst.IsZero() {
			continue
		}
		ata, err := associatedtoken.FindAssociatedTokenAddress(d.wallet, d.mint)
		if err != nil {
			return transaction.Instruction{}, err
		}
		*d.dst = ata
	}
	if accts.Vault.IsZero() {
		vault, _, err := FindVaultAddress(accts.Offer)
		if err != nil {
			return transaction.Instruction{}, err
		}
		accts.Vault = vault
	}

	return anchor.NewInstructionBuilder(ProgramID, InstructionTakeOffer).
		Accounts(accts).
		TokenProgram().
		Args().
		Build()
}

// RefundOffer builds a refund_offer instruction.
func RefundOffer(accts RefundOfferAccounts) (transaction.Instruction, error) {
	if accts.MakerATAA.IsZero() {
		ata, err := associatedtoken.FindAssociatedTokenAddress(accts.Maker, accts.TokenMintA)
		if err != nil {
			return transaction.Instruction{}, err
		}
		accts.MakerATAA = ata
	}
	if accts.Vault.IsZero() {
		vault, _, err := FindVaultAddress(accts.Offer)
		if err != nil {
			return transaction.Instruction{}, err
		}
		accts.Vault = vault
	}

	return anchor.NewInstructionBuilder(ProgramID, InstructionRefundOffer).
		Accounts(accts).
		TokenProgram().
		Args().
		Build()
}
