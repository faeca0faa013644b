package escrow

import (
	"errors"

	"github.com/fortiblox/stratus-harness/pkg/anchor"
	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/system"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/token"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

var (
	makeOfferDisc   = anchor.InstructionDiscriminator(InstructionMakeOffer)
	takeOfferDisc   = anchor.InstructionDiscriminator(InstructionTakeOffer)
	refundOfferDisc = anchor.InstructionDiscriminator(InstructionRefundOffer)
)

// Processor executes escrow instructions.
type Processor struct{}

func NewProcessor() *Processor {
	return &Processor{}
}

// Process dispatches on the 8-byte instruction discriminator.
func (p *Processor) Process(ctx svm.InvokeContext, data []byte) error {
	if len(data) < anchor.DiscriminatorSize {
		return anchor.Fail(ctx, ErrInstructionMissing)
	}

	switch {
	case makeOfferDisc.Matches(data):
		ctx.Log("Instruction: MakeOffer")
		var args MakeOfferArgs
		if err := anchor.Decode(data[anchor.DiscriminatorSize:], &args); err != nil {
			return anchor.Fail(ctx, ErrInstructionDidNotDeserialize)
		}
		return p.makeOffer(ctx, args)
	case takeOfferDisc.Matches(data):
		ctx.Log("Instruction: TakeOffer")
		return p.takeOffer(ctx)
	case refundOfferDisc.Matches(data):
		ctx.Log("Instruction: RefundOffer")
		return p.refundOffer(ctx)
	default:
		return anchor.Fail(ctx, ErrInstructionFallbackNotFound)
	}
}

func accountInfos(ctx svm.InvokeContext, n int) ([]*svm.AccountInfo, error) {
	infos := make([]*svm.AccountInfo, n)
	for i := range infos {
		info, err := ctx.GetAccount(i)
		if err != nil {
			return nil, err
		}
		infos[i] = info
	}
	return infos, nil
}

// makeOffer accounts:
//
//	0. `[signer, writable]` maker
//	1. `[]` token mint A
//	2. `[]` token mint B
//	3. `[writable]` maker's token A account
//	4. `[writable]` offer PDA
//	5. `[writable]` vault PDA
//	6. `[]` System program
//	7. `[]` Token program
func (p *Processor) makeOffer(ctx svm.InvokeContext, args MakeOfferArgs) error {
	infos, err := accountInfos(ctx, 8)
	if err != nil {
		return err
	}
	maker, mintA, mintB, makerATA, offerInfo, vault := infos[0], infos[1], infos[2], infos[3], infos[4], infos[5]

	if !maker.IsSigner {
		return anchor.Fail(ctx, ErrConstraintSigner)
	}
	if args.TokenAOfferedAmount == 0 || args.TokenBWantedAmount == 0 {
		return anchor.Fail(ctx, ErrInvalidAmount)
	}
	if !mintA.IsOwnedBy(token.ProgramID) || !mintB.IsOwnedBy(token.ProgramID) {
		return anchor.Fail(ctx, ErrAccountNotInitialized)
	}

	var source token.Account
	if !makerATA.IsOwnedBy(token.ProgramID) || !source.Unmarshal(makerATA.Data) {
		return anchor.Fail(ctx, ErrAccountNotInitialized)
	}
	if source.Mint != mintA.Key {
		return anchor.Fail(ctx, ErrMintMismatch)
	}

	offerAddr, bump, err := FindOfferAddress(maker.Key, args.ID)
	if err != nil || offerAddr != offerInfo.Key {
		return anchor.Fail(ctx, ErrConstraintSeeds)
	}
	vaultAddr, vaultBump, err := FindVaultAddress(offerAddr)
	if err != nil || vaultAddr != vault.Key {
		return anchor.Fail(ctx, ErrConstraintSeeds)
	}

	offerSeeds := [][]byte{OfferSeed, maker.Key[:], idBytes(args.ID), {bump}}
	if err := ctx.Invoke(
		system.CreateAccount(maker.Key, offerInfo.Key, ctx.ProgramID(), ctx.GetRentMinimum(OfferSpace), OfferSpace),
		offerSeeds,
	); err != nil {
		return err
	}

	vaultSeeds := [][]byte{VaultSeed, offerAddr[:], {vaultBump}}
	if err := ctx.Invoke(
		system.CreateAccount(maker.Key, vault.Key, token.ProgramID, ctx.GetRentMinimum(token.AccountSize), token.AccountSize),
		vaultSeeds,
	); err != nil {
		return err
	}
	if err := ctx.Invoke(token.InitializeAccount3(vault.Key, mintA.Key, offerAddr)); err != nil {
		return err
	}
	if err := ctx.Invoke(token.Transfer(makerATA.Key, vault.Key, maker.Key, args.TokenAOfferedAmount)); err != nil {
		return err
	}

	offer := Offer{
		ID:                 args.ID,
		Maker:              maker.Key,
		TokenMintA:         mintA.Key,
		TokenMintB:         mintB.Key,
		TokenBWantedAmount: args.TokenBWantedAmount,
		ExpiresAt:          args.ExpiresAt,
		Bump:               bump,
	}
	if err := writeOffer(offerInfo, offer); err != nil {
		return err
	}

	if err := emit(ctx, OfferMade{
		ID:                  args.ID,
		Maker:               maker.Key,
		TokenMintA:          mintA.Key,
		TokenMintB:          mintB.Key,
		TokenAOfferedAmount: args.TokenAOfferedAmount,
		TokenBWantedAmount:  args.TokenBWantedAmount,
	}); err != nil {
		return err
	}
	ctx.SetReturnData(offerAddr[:])
	return nil
}

// takeOffer accounts:
//
//	0. `[signer, writable]` taker
//	1. `[writable]` maker
//	2. `[]` token mint A
//	3. `[]` token mint B
//	4. `[writable]` taker's token A account
//	5. `[writable]` taker's token B account
//	6. `[writable]` maker's token B account
//	7. `[writable]` offer PDA
//	8. `[writable]` vault PDA
//	9. `[]` Token program
func (p *Processor) takeOffer(ctx svm.InvokeContext) error {
	infos, err := accountInfos(ctx, 10)
	if err != nil {
		return err
	}
	taker, maker, mintA, mintB := infos[0], infos[1], infos[2], infos[3]
	takerATAA, takerATAB, makerATAB, offerInfo, vault := infos[4], infos[5], infos[6], infos[7], infos[8]

	if !taker.IsSigner {
		return anchor.Fail(ctx, ErrConstraintSigner)
	}
	offer, seeds, err := loadOffer(ctx, offerInfo, maker, vault)
	if err != nil {
		return err
	}
	if offer.TokenMintA != mintA.Key || offer.TokenMintB != mintB.Key {
		return anchor.Fail(ctx, ErrMintMismatch)
	}
	if offer.ExpiresAt != 0 && ctx.Clock().UnixTimestamp > offer.ExpiresAt {
		return anchor.Fail(ctx, ErrOfferExpired)
	}

	var held token.Account
	if !held.Unmarshal(vault.Data) {
		return anchor.Fail(ctx, ErrAccountNotInitialized)
	}

	if err := ctx.Invoke(token.Transfer(takerATAB.Key, makerATAB.Key, taker.Key, offer.TokenBWantedAmount)); err != nil {
		return err
	}
	if err := ctx.Invoke(token.Transfer(vault.Key, takerATAA.Key, offerInfo.Key, held.Amount), seeds); err != nil {
		return err
	}
	if err := ctx.Invoke(token.CloseAccount(vault.Key, maker.Key, offerInfo.Key), seeds); err != nil {
		return err
	}
	closeAccount(offerInfo, maker)

	return emit(ctx, OfferTaken{ID: offer.ID, Maker: maker.Key, Taker: taker.Key})
}

// refundOffer accounts:
//
//	0. `[signer, writable]` maker
//	1. `[]` token mint A
//	2. `[writable]` maker's token A account
//	3. `[writable]` offer PDA
//	4. `[writable]` vault PDA
//	5. `[]` Token program
func (p *Processor) refundOffer(ctx svm.InvokeContext) error {
	infos, err := accountInfos(ctx, 6)
	if err != nil {
		return err
	}
	maker, mintA, makerATAA, offerInfo, vault := infos[0], infos[1], infos[2], infos[3], infos[4]

	if !maker.IsSigner {
		return anchor.Fail(ctx, ErrConstraintSigner)
	}
	offer, seeds, err := loadOffer(ctx, offerInfo, maker, vault)
	if err != nil {
		return err
	}
	if offer.TokenMintA != mintA.Key {
		return anchor.Fail(ctx, ErrMintMismatch)
	}

	var held token.Account
	if !held.Unmarshal(vault.Data) {
		return anchor.Fail(ctx, ErrAccountNotInitialized)
	}

	if err := ctx.Invoke(token.Transfer(vault.Key, makerATAA.Key, offerInfo.Key, held.Amount), seeds); err != nil {
		return err
	}
	if err := ctx.Invoke(token.CloseAccount(vault.Key, maker.Key, offerInfo.Key), seeds); err != nil {
		return err
	}
	closeAccount(offerInfo, maker)

	return emit(ctx, OfferRefunded{ID: offer.ID, Maker: maker.Key, Amount: held.Amount})
}

// loadOffer decodes the offer account and checks it against the maker and
// vault passed alongside it. It returns the offer's signer seeds.
func loadOffer(ctx svm.InvokeContext, offerInfo, maker, vault *svm.AccountInfo) (Offer, [][]byte, error) {
	if !offerInfo.IsOwnedBy(ctx.ProgramID()) || len(offerInfo.Data) == 0 {
		return Offer{}, nil, anchor.Fail(ctx, ErrAccountNotInitialized)
	}
	offer, err := anchor.DecodeAccount[Offer](offerInfo.Data)
	if err != nil {
		if errors.Is(err, anchor.ErrDiscriminatorMismatch) {
			return Offer{}, nil, anchor.Fail(ctx, ErrAccountDiscriminatorMismatch)
		}
		return Offer{}, nil, anchor.Fail(ctx, ErrAccountNotInitialized)
	}
	if offer.Maker != maker.Key {
		return Offer{}, nil, anchor.Fail(ctx, ErrConstraintHasOne)
	}

	seeds := [][]byte{OfferSeed, offer.Maker[:], idBytes(offer.ID), {offer.Bump}}
	addr, err := types.CreateProgramAddress(seeds, ctx.ProgramID())
	if err != nil || addr != offerInfo.Key {
		return Offer{}, nil, anchor.Fail(ctx, ErrConstraintSeeds)
	}
	vaultAddr, _, err := FindVaultAddress(addr)
	if err != nil || vaultAddr != vault.Key {
		return Offer{}, nil, anchor.Fail(ctx, ErrConstraintSeeds)
	}
	return offer, seeds, nil
}

func writeOffer(info *svm.AccountInfo, offer Offer) error {
	data, err := anchor.EncodeAccount(offer)
	if err != nil {
		return err
	}
	info.Resize(OfferSpace)
	copy(info.Data, data)
	return nil
}

// closeAccount hands the account's lamports to dest and returns it to the
// System program.
func closeAccount(info, dest *svm.AccountInfo) {
	dest.Lamports += info.Lamports
	info.Lamports = 0
	info.Resize(0)
	info.Owner = types.SystemProgramAddr
}

func emit(ctx svm.InvokeContext, event anchor.Event) error {
	data, err := anchor.EncodeEvent(event)
	if err != nil {
		return err
	}
	ctx.EmitEvent(data)
	return nil
}
