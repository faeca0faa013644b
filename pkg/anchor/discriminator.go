// Package anchor speaks the Anchor framework's conventions from Go:
// - 8-byte sighash discriminators for instructions, events and accounts
// - Borsh encoding of instruction arguments
// - a fluent builder producing transaction.Instruction values
// - event extraction from "Program data:" logs
// - discriminator-checked account decoding
// - Anchor IDL loading and AnchorError log lines
package anchor

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sighash namespaces.
const (
	NamespaceGlobal  = "global"
	NamespaceEvent   = "event"
	NamespaceAccount = "account"
)

// DiscriminatorSize is the length of every Anchor discriminator.
const DiscriminatorSize = 8

// Discriminator identifies an instruction, event or account type.
type Discriminator [DiscriminatorSize]byte

// SighashDiscriminator returns sha256(namespace + ":" + name)[:8].
func SighashDiscriminator(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))

	var d Discriminator
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// InstructionDiscriminator is the discriminator of an instruction. name is
// the snake_case handler name and is used verbatim.
func InstructionDiscriminator(name string) Discriminator {
	return SighashDiscriminator(NamespaceGlobal, name)
}

// EventDiscriminator is the discriminator of an event struct.
func EventDiscriminator(name string) Discriminator {
	return SighashDiscriminator(NamespaceEvent, name)
}

// AccountDiscriminator is the discriminator of an account struct.
func AccountDiscriminator(name string) Discriminator {
	return SighashDiscriminator(NamespaceAccount, name)
}

// Bytes returns the discriminator as a slice.
func (d Discriminator) Bytes() []byte {
	return d[:]
}

func (d Discriminator) String() string {
	return hex.EncodeToString(d[:])
}

// Matches reports whether data starts with d.
func (d Discriminator) Matches(data []byte) bool {
	if len(data) < DiscriminatorSize {
		return false
	}
	return Discriminator(data[:DiscriminatorSize]) == d
}
