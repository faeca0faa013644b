package types

import (
	"bytes"
	"crypto/sha256"

	"github.com/jdgcs/ed25519/edwards25519"
	"github.com/pkg/errors"
)

// PDA constants.
const (
	MaxSeeds   = 16
	MaxSeedLen = 32
)

// pdaMarker is appended to the hash input of every program derived address.
var pdaMarker = []byte("ProgramDerivedAddress")

// PDA errors.
var (
	ErrMaxSeedsExceeded      = errors.New("max seeds exceeded")
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	ErrInvalidSeeds          = errors.New("invalid seeds, address must fall off the curve")
	ErrNoViableBump          = errors.New("unable to find a viable program address bump seed")
	ErrIllegalOwner          = errors.New("provided owner is not allowed")
)

// CreateProgramAddress derives sha256(seeds || programID || "ProgramDerivedAddress")
// and rejects results that decode as an ed25519 point, since those could
// have a private key.
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	var pda Pubkey
	if len(seeds) > MaxSeeds {
		return pda, ErrMaxSeedsExceeded
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return pda, ErrMaxSeedLengthExceeded
		}
		if _, err := h.Write(seed); err != nil {
			return pda, errors.Wrap(err, "failed to hash seed")
		}
	}
	h.Write(programID[:])
	h.Write(pdaMarker)
	copy(pda[:], h.Sum(nil))

	if IsOnCurve(pda) {
		return Pubkey{}, ErrInvalidSeeds
	}
	return pda, nil
}

// FindProgramAddress searches bump seeds from 255 down to 0 and returns the
// first off-curve address together with its bump.
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	if len(seeds) > MaxSeeds-1 {
		return Pubkey{}, 0, ErrMaxSeedsExceeded
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		pda, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return pda, uint8(bump), nil
		}
		if err != ErrInvalidSeeds {
			return Pubkey{}, 0, err
		}
	}
	return Pubkey{}, 0, ErrNoViableBump
}

// MustFindProgramAddress is FindProgramAddress for seeds known to be valid.
func MustFindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8) {
	pda, bump, err := FindProgramAddress(seeds, programID)
	if err != nil {
		panic(errors.Wrap(err, "find program address"))
	}
	return pda, bump
}

// CreateWithSeed derives sha256(base || seed || owner), the address scheme
// used by the System Program's *WithSeed instructions.
func CreateWithSeed(base Pubkey, seed string, owner Pubkey) (Pubkey, error) {
	if len(seed) > MaxSeedLen {
		return Pubkey{}, ErrMaxSeedLengthExceeded
	}
	if bytes.HasSuffix(owner[:], pdaMarker) {
		return Pubkey{}, ErrIllegalOwner
	}
	return Pubkey(ComputeHash(base[:], []byte(seed), owner[:])), nil
}

// IsOnCurve reports whether p decodes as a compressed ed25519 point.
func IsOnCurve(p Pubkey) bool {
	var point edwards25519.ExtendedGroupElement
	b := [32]byte(p)
	return point.FromBytes(&b)
}
